package types

import (
	"errors"
	"time"
)

// TaskStatus represents the lifecycle state of an analysis task
type TaskStatus string

const (
	StatusQueued      TaskStatus = "queued"
	StatusExtracting  TaskStatus = "extracting"
	StatusSummarizing TaskStatus = "summarizing"
	StatusIndexing    TaskStatus = "indexing"
	StatusReady       TaskStatus = "ready"
	StatusGenerating  TaskStatus = "generating"
	StatusCompleted   TaskStatus = "completed"
	StatusFailed      TaskStatus = "failed"
)

// statusOrder defines the total order a task advances through.
// Failed is reachable from any non-terminal state and compares highest.
var statusOrder = map[TaskStatus]int{
	StatusQueued:      0,
	StatusExtracting:  1,
	StatusSummarizing: 2,
	StatusIndexing:    3,
	StatusReady:       4,
	StatusGenerating:  5,
	StatusCompleted:   6,
	StatusFailed:      7,
}

// Order returns the position of the status in the task lifecycle.
func (s TaskStatus) Order() int {
	return statusOrder[s]
}

// Valid reports whether the status is one of the defined states.
func (s TaskStatus) Valid() bool {
	_, ok := statusOrder[s]
	return ok
}

// Terminal reports whether no further status transitions are allowed.
func (s TaskStatus) Terminal() bool {
	return s == StatusFailed
}

// AtLeastReady reports whether artifact requests are valid for this status.
func (s TaskStatus) AtLeastReady() bool {
	return s != StatusFailed && s.Order() >= StatusReady.Order()
}

// Stage identifies one ordered phase of the analysis pipeline
type Stage string

const (
	StageExtract   Stage = "extract"
	StageRedact    Stage = "redact"
	StageSummarize Stage = "summarize"
	StageIndex     Stage = "index"
	StageFinalize  Stage = "finalize"
	StageGenerate  Stage = "generate"
)

// Cancellation reason recorded on the error record
const ReasonCancelled = "cancelled"

// ErrorRecord captures why a task transitioned to failed
type ErrorRecord struct {
	Stage  Stage  `json:"stage"`
	Reason string `json:"reason"`
	Cause  string `json:"cause,omitempty"`
}

// Task is one end-to-end analysis job for a single uploaded archive.
// It is owned by the task store; only the pipeline orchestrator mutates it.
type Task struct {
	ID        string       `json:"taskId"`
	FileName  string       `json:"fileName"`
	Status    TaskStatus   `json:"status"`
	Progress  int          `json:"progress"`
	Message   string       `json:"message"`
	FileCount int          `json:"fileCount"`
	CreatedAt time.Time    `json:"createdAt"`
	Error     *ErrorRecord `json:"error,omitempty"`
}

// Clone returns a snapshot copy safe to hand to readers.
func (t *Task) Clone() *Task {
	cp := *t
	if t.Error != nil {
		errCopy := *t.Error
		cp.Error = &errCopy
	}
	return &cp
}

// Validate checks task field integrity
func (t *Task) Validate() error {
	if t.ID == "" {
		return errors.New("task ID is required")
	}
	if !t.Status.Valid() {
		return errors.New("invalid task status")
	}
	if t.Progress < 0 || t.Progress > 100 {
		return errors.New("progress must be between 0 and 100")
	}
	return nil
}
