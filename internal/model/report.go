package model

import (
	"time"
)

// Outcome classifies the result of loading one accepted record.
type Outcome string

const (
	OutcomeCreated        Outcome = "created"
	OutcomeUpdated        Outcome = "updated"
	OutcomeAlreadyPresent Outcome = "already_present"
)

// StageStatus is the terminal state of one entity-type stage.
type StageStatus string

const (
	StageCompleted StageStatus = "completed"
	StageFailed    StageStatus = "failed"
	StageSkipped   StageStatus = "skipped"
)

// Rejection pairs a record's natural key with every reason it was
// rejected, in rule order.
type Rejection struct {
	NaturalKey string   `json:"natural_key"`
	Reasons    []string `json:"reasons"`
}

// EntityReport aggregates per-record outcomes for one entity type.
type EntityReport struct {
	Accepted       int         `json:"accepted"`
	Rejected       int         `json:"rejected"`
	Created        int         `json:"created"`
	Updated        int         `json:"updated"`
	AlreadyPresent int         `json:"already_present"`
	Rejections     []Rejection `json:"rejections,omitempty"`
}

// Count records one accepted outcome.
func (r *EntityReport) Count(o Outcome) {
	r.Accepted++
	switch o {
	case OutcomeCreated:
		r.Created++
	case OutcomeUpdated:
		r.Updated++
	case OutcomeAlreadyPresent:
		r.AlreadyPresent++
	}
}

// Reject records one rejection with its ordered reasons.
func (r *EntityReport) Reject(naturalKey string, reasons []string) {
	r.Rejected++
	r.Rejections = append(r.Rejections, Rejection{NaturalKey: naturalKey, Reasons: reasons})
}

// Merge folds another report into this one. Used to combine per-worker
// accumulators without locking.
func (r *EntityReport) Merge(other *EntityReport) {
	r.Accepted += other.Accepted
	r.Rejected += other.Rejected
	r.Created += other.Created
	r.Updated += other.Updated
	r.AlreadyPresent += other.AlreadyPresent
	r.Rejections = append(r.Rejections, other.Rejections...)
}

// StageResult records how one pipeline stage ended. Remaining counts
// the records that were never attempted when a stage aborted.
type StageResult struct {
	Stage     string      `json:"stage"`
	Status    StageStatus `json:"status"`
	Error     string      `json:"error,omitempty"`
	Remaining int         `json:"remaining,omitempty"`
}

// DriftNotice surfaces a relational/document mismatch observed during
// synchronization. Drift is reported, never rolled back.
type DriftNotice struct {
	Entity     EntityType `json:"entity"`
	NaturalKey string     `json:"natural_key"`
	Field      string     `json:"field"`
	Relational string     `json:"relational"`
	Document   string     `json:"document"`
}

// LatencySummary condenses a stage's per-record latency histogram.
type LatencySummary struct {
	Count int64   `json:"count"`
	P50Ms float64 `json:"p50_ms"`
	P99Ms float64 `json:"p99_ms"`
	MaxMs float64 `json:"max_ms"`
}

// BatchReport is the batch outcome consumed by calling collaborators and
// persisted in the batch ledger.
type BatchReport struct {
	BatchID     string                       `json:"batch_id"`
	Source      string                       `json:"source"`
	StartedAt   time.Time                    `json:"started_at"`
	CompletedAt time.Time                    `json:"completed_at,omitzero"`
	Entities    map[EntityType]*EntityReport `json:"entities"`
	Stages      []StageResult                `json:"stages"`
	Drift       []DriftNotice                `json:"drift,omitempty"`
	Latency     map[string]LatencySummary    `json:"latency,omitempty"`
}

// NewBatchReport returns an empty report for the batch.
func NewBatchReport(batchID, source string) *BatchReport {
	return &BatchReport{
		BatchID:   batchID,
		Source:    source,
		StartedAt: time.Now().UTC(),
		Entities:  make(map[EntityType]*EntityReport),
	}
}

// Entity returns the report for one entity type, creating it on first use.
func (r *BatchReport) Entity(t EntityType) *EntityReport {
	er, ok := r.Entities[t]
	if !ok {
		er = &EntityReport{}
		r.Entities[t] = er
	}
	return er
}

// Failed reports whether any stage aborted.
func (r *BatchReport) Failed() bool {
	for _, s := range r.Stages {
		if s.Status == StageFailed {
			return true
		}
	}
	return false
}

// TotalRejected sums rejections across entity types.
func (r *BatchReport) TotalRejected() int {
	n := 0
	for _, er := range r.Entities {
		n += er.Rejected
	}
	return n
}

// TotalAccepted sums accepted records across entity types.
func (r *BatchReport) TotalAccepted() int {
	n := 0
	for _, er := range r.Entities {
		n += er.Accepted
	}
	return n
}
