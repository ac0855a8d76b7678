// Package status tracks the lifecycle of asynchronous search jobs for
// client polling.
package status

import (
	"fmt"
	"sync"
	"time"

	"github.com/kalambet/dealscout/internal/product"
)

// State is a search job lifecycle state.
type State string

const (
	StatePending    State = "pending"
	StateProcessing State = "processing"
	StateCompleted  State = "completed"
	StateFailed     State = "failed"
)

// Terminal reports whether the state is final.
func (s State) Terminal() bool {
	return s == StateCompleted || s == StateFailed
}

// Record is one search job's status as seen by polling clients. Results are
// present only when completed; Err only when failed.
type Record struct {
	State     State               `json:"status"`
	Results   []product.Candidate `json:"results,omitempty"`
	Err       string              `json:"error,omitempty"`
	UpdatedAt time.Time           `json:"updated_at"`
}

// Tracker is a process-wide table of job records keyed by search id.
// Safe for concurrent readers; each id is only ever written by the single
// pipeline goroutine that owns the job. Records are never evicted within
// the process lifetime (deliberate: terminal records stay pollable; see
// the TTL open question in DESIGN.md).
type Tracker struct {
	mu   sync.RWMutex
	jobs map[string]Record
}

// NewTracker creates an empty tracker.
func NewTracker() *Tracker {
	return &Tracker{jobs: make(map[string]Record)}
}

// Initialize creates a pending record for a fresh search id.
// Reusing an id is a caller bug and returns an error.
func (t *Tracker) Initialize(searchID string) error {
	t.mu.Lock()
	defer t.mu.Unlock()
	if _, exists := t.jobs[searchID]; exists {
		return fmt.Errorf("search id %q already initialized", searchID)
	}
	t.jobs[searchID] = Record{State: StatePending, UpdatedAt: time.Now().UTC()}
	return nil
}

// MarkProcessing transitions an existing record to processing.
// Unknown ids are ignored; that is an internal consistency bug surface,
// not a user-facing error.
func (t *Tracker) MarkProcessing(searchID string) {
	t.transition(searchID, func(r *Record) {
		r.State = StateProcessing
	})
}

// Complete transitions the record to completed with its final result set.
func (t *Tracker) Complete(searchID string, results []product.Candidate) {
	t.transition(searchID, func(r *Record) {
		r.State = StateCompleted
		r.Results = results
		r.Err = ""
	})
}

// Fail transitions the record to failed with a short message.
func (t *Tracker) Fail(searchID string, message string) {
	t.transition(searchID, func(r *Record) {
		r.State = StateFailed
		r.Results = nil
		r.Err = message
	})
}

// Get returns the record for the search id.
func (t *Tracker) Get(searchID string) (Record, bool) {
	t.mu.RLock()
	defer t.mu.RUnlock()
	r, ok := t.jobs[searchID]
	return r, ok
}

func (t *Tracker) transition(searchID string, apply func(*Record)) {
	t.mu.Lock()
	defer t.mu.Unlock()
	r, ok := t.jobs[searchID]
	if !ok {
		return
	}
	apply(&r)
	r.UpdatedAt = time.Now().UTC()
	t.jobs[searchID] = r
}
