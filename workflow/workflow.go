// Package workflow tracks the four ordered stages a submission moves through
// so clients can render progress that matches what the pipeline really did.
package workflow

import (
	"database/sql/driver"
	"encoding/json"
	"errors"
	"fmt"
	"sync"
)

// StageID names a workflow stage.
type StageID string

const (
	StageDocAnalysis StageID = "doc-analysis"
	StageProgramReq  StageID = "program-req"
	StageCalcRate    StageID = "calc-rate"
	StageSendData    StageID = "send-data"
)

const (
	ProgressNone     = 0
	ProgressStarted  = 50
	ProgressComplete = 100
)

var (
	ErrOutOfOrder = errors.New("workflow stage out of order")
	ErrFailed     = errors.New("workflow already failed")
	ErrFinished   = errors.New("workflow already finished")
)

// Stage is the client-visible state of one step.
type Stage struct {
	ID          StageID `json:"id"`
	Title       string  `json:"title"`
	Description string  `json:"description"`
	Progress    int     `json:"progress"`
	IsComplete  bool    `json:"isComplete"`
	IsCurrent   bool    `json:"isCurrent"`
	Degraded    bool    `json:"degraded,omitempty"`
}

// Stages is a JSONB-serializable stage list.
type Stages []Stage

// Value implements driver.Valuer for JSONB
func (s Stages) Value() (driver.Value, error) {
	if s == nil {
		return []byte("[]"), nil
	}
	return json.Marshal(s)
}

// Scan implements sql.Scanner for JSONB
func (s *Stages) Scan(value interface{}) error {
	var bytes []byte
	switch v := value.(type) {
	case []byte:
		bytes = v
	case string:
		bytes = []byte(v)
	default:
		*s = make(Stages, 0)
		return nil
	}
	if len(bytes) == 0 {
		*s = make(Stages, 0)
		return nil
	}
	return json.Unmarshal(bytes, s)
}

// Snapshot is a copy of the workflow at one point in time.
type Snapshot struct {
	Stages  Stages  `json:"stages"`
	Current StageID `json:"current,omitempty"`
	Failed  bool    `json:"failed"`
	Error   string  `json:"error,omitempty"`
}

// Done reports whether every stage completed.
func (s Snapshot) Done() bool {
	for _, st := range s.Stages {
		if !st.IsComplete {
			return false
		}
	}
	return len(s.Stages) > 0
}

// Observer receives a snapshot after every transition.
type Observer func(Snapshot)

// Tracker is a state machine over the ordered stages. Stages can only be
// started and completed in order and nothing moves after Fail.
type Tracker struct {
	mu       sync.Mutex
	stages   Stages
	current  int
	failed   bool
	errMsg   string
	observer Observer
}

// Option configures a Tracker.
type Option func(*Tracker)

// WithObserver registers fn to be called after every transition.
func WithObserver(fn Observer) Option {
	return func(t *Tracker) {
		t.observer = fn
	}
}

// DefaultStages returns the pristine stage list.
func DefaultStages() Stages {
	return Stages{
		{ID: StageDocAnalysis, Title: "Analyzing user document", Description: "Extract and analyze the data"},
		{ID: StageProgramReq, Title: "Analyzing Program Requirement", Description: "Evaluates profile with eligibility criteria"},
		{ID: StageCalcRate, Title: "Calculate approval rate", Description: "Likelihood of approval for the program"},
		{ID: StageSendData, Title: "Send user data to selected program", Description: "Send your data to the aid provider"},
	}
}

// NewTracker creates a tracker positioned at the first stage.
func NewTracker(opts ...Option) *Tracker {
	t := &Tracker{stages: DefaultStages()}
	for _, opt := range opts {
		opt(t)
	}
	return t
}

// Start moves the current stage to half progress.
func (t *Tracker) Start(id StageID) error {
	return t.transition(id, func(st *Stage) bool {
		st.Progress = ProgressStarted
		return false
	})
}

// Complete marks the current stage complete and advances.
func (t *Tracker) Complete(id StageID) error {
	return t.transition(id, func(st *Stage) bool {
		st.Progress = ProgressComplete
		st.IsComplete = true
		return true
	})
}

// CompleteDegraded completes the stage but flags that it ran in degraded
// mode, for example when analysis produced no usable score.
func (t *Tracker) CompleteDegraded(id StageID) error {
	return t.transition(id, func(st *Stage) bool {
		st.Progress = ProgressComplete
		st.IsComplete = true
		st.Degraded = true
		return true
	})
}

// Fail freezes every stage at its last progress.
func (t *Tracker) Fail(err error) {
	t.mu.Lock()
	if t.failed {
		t.mu.Unlock()
		return
	}
	t.failed = true
	if err != nil {
		t.errMsg = err.Error()
	}
	snap := t.snapshotLocked()
	t.mu.Unlock()
	t.notify(snap)
}

// Snapshot returns a copy of the current state.
func (t *Tracker) Snapshot() Snapshot {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.snapshotLocked()
}

func (t *Tracker) transition(id StageID, apply func(*Stage) bool) error {
	t.mu.Lock()
	if t.failed {
		t.mu.Unlock()
		return ErrFailed
	}
	if t.current >= len(t.stages) {
		t.mu.Unlock()
		return ErrFinished
	}
	st := &t.stages[t.current]
	if st.ID != id {
		t.mu.Unlock()
		return fmt.Errorf("%w: %s is current, got %s", ErrOutOfOrder, st.ID, id)
	}
	if apply(st) {
		t.current++
	}
	snap := t.snapshotLocked()
	t.mu.Unlock()
	t.notify(snap)
	return nil
}

func (t *Tracker) snapshotLocked() Snapshot {
	stages := make(Stages, len(t.stages))
	copy(stages, t.stages)
	snap := Snapshot{Stages: stages, Failed: t.failed, Error: t.errMsg}
	if t.current < len(stages) && !t.failed {
		stages[t.current].IsCurrent = true
		snap.Current = stages[t.current].ID
	}
	return snap
}

func (t *Tracker) notify(snap Snapshot) {
	if t.observer != nil {
		t.observer(snap)
	}
}
