//-------------------------------------------------------------------------
//
// pgEdge Warehouse Loader
//
// Copyright (c) 2025 - 2026, pgEdge, Inc.
// This software is released under The PostgreSQL License
//
//-------------------------------------------------------------------------

package load

import (
	"sync"
	"time"

	"github.com/HdrHistogram/hdrhistogram-go"

	"github.com/pgEdge/warehouse-loader/internal/model"
)

// stageTimer tracks per-record latency for one stage in microseconds.
// The histogram is not safe for concurrent use, so observations take a
// mutex; recording is a few nanoseconds next to the database work being
// measured.
type stageTimer struct {
	mu   sync.Mutex
	hist *hdrhistogram.Histogram
}

const maxRecordLatency = int64(60 * time.Second / time.Microsecond)

func newStageTimer() *stageTimer {
	return &stageTimer{hist: hdrhistogram.New(1, maxRecordLatency, 3)}
}

func (t *stageTimer) observe(d time.Duration) {
	us := d.Microseconds()
	if us < 1 {
		us = 1
	}
	if us > maxRecordLatency {
		us = maxRecordLatency
	}
	t.mu.Lock()
	t.hist.RecordValue(us)
	t.mu.Unlock()
}

func (t *stageTimer) summary() model.LatencySummary {
	t.mu.Lock()
	defer t.mu.Unlock()
	return model.LatencySummary{
		Count: t.hist.TotalCount(),
		P50Ms: float64(t.hist.ValueAtQuantile(50)) / 1000,
		P99Ms: float64(t.hist.ValueAtQuantile(99)) / 1000,
		MaxMs: float64(t.hist.Max()) / 1000,
	}
}
