package jobengine

import "time"

// Job status values. done and failed_final are terminal for a row;
// reprocessing means enqueueing a new row, never resurrecting an old one.
const (
	StatusPending     = "pending"
	StatusProcessing  = "processing"
	StatusDone        = "done"
	StatusFailed      = "failed"
	StatusFailedFinal = "failed_final"
)

// JobState is embedded by every job table the engine processes. Transitions
// are driven solely by the engine; retry_count is monotonic.
type JobState struct {
	Status      string     `gorm:"column:status;index;default:pending"`
	RetryCount  int        `gorm:"column:retry_count;default:0"`
	LastTriedAt *time.Time `gorm:"column:last_tried_at"`
	NextRetryAt *time.Time `gorm:"column:next_retry_at"`
	LastError   string     `gorm:"column:last_error"`
}

// NewState returns the state of a freshly enqueued job.
func NewState() JobState {
	return JobState{Status: StatusPending}
}

// Row constrains a job table's row type: a pointer to the gorm model that
// exposes its primary key and embedded state.
type Row[T any] interface {
	*T
	JobID() string
	State() *JobState
}
