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
	"context"
	"hash/fnv"
	"sync"
	"sync/atomic"

	"github.com/pgEdge/warehouse-loader/internal/model"
)

// runWorkers fans records out over a bounded pool. Records are routed by
// key, so all records sharing a key land on the same worker in arrival
// order and per-key writes serialize without locks. setup runs once per
// worker to build its private state, work runs per record, and flush
// runs after a worker drains its queue.
//
// The first worker error cancels the rest. Returns how many records
// completed their work call, so callers can report what a cancelled
// stage never attempted.
func runWorkers[S any](
	ctx context.Context,
	workers int,
	records []model.Record,
	route func(model.Record) string,
	setup func(workerID int) S,
	work func(ctx context.Context, state S, rec model.Record) error,
	flush func(ctx context.Context, state S) error,
) (int, error) {
	if workers <= 0 {
		workers = 1
	}
	if len(records) == 0 {
		return 0, nil
	}
	if workers > len(records) {
		workers = len(records)
	}

	queues := make([][]model.Record, workers)
	for _, rec := range records {
		w := int(routeHash(route(rec)) % uint32(workers))
		queues[w] = append(queues[w], rec)
	}

	ctx, cancel := context.WithCancelCause(ctx)
	defer cancel(nil)

	errCh := make(chan error, 1)
	setErr := func(err error) {
		if err == nil {
			return
		}
		select {
		case errCh <- err:
			cancel(err)
		default:
		}
	}

	var processed atomic.Int64
	var wg sync.WaitGroup
	wg.Add(workers)
	for w := 0; w < workers; w++ {
		go func(workerID int, queue []model.Record) {
			defer wg.Done()

			state := setup(workerID)
			for _, rec := range queue {
				if ctx.Err() != nil {
					return
				}
				if err := work(ctx, state, rec); err != nil {
					setErr(err)
					return
				}
				processed.Add(1)
			}
			if flush != nil {
				if err := flush(ctx, state); err != nil {
					setErr(err)
				}
			}
		}(w, queues[w])
	}
	wg.Wait()

	select {
	case err := <-errCh:
		return int(processed.Load()), err
	default:
	}
	return int(processed.Load()), context.Cause(ctx)
}

func routeHash(key string) uint32 {
	h := fnv.New32a()
	h.Write([]byte(key))
	return h.Sum32()
}
