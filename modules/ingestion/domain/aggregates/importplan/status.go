package importplan

import "errors"

// Status is the persisted ingestionStatus. The numeric values are stored as-is
// and read by other tooling.
type Status int

const (
	StatusNotStarted Status = 0
	StatusOngoing    Status = 1
	StatusCompleted  Status = 2
	StatusFailed     Status = 3
)

var (
	ErrNotFound         = errors.New("import plan not found")
	ErrAlreadyOngoing   = errors.New("ingestion already started")
	ErrAlreadyCompleted = errors.New("ingestion already completed")
	ErrAlreadyFailed    = errors.New("ingestion already failed; reset the plan before retrying")
	ErrNotFailed        = errors.New("only a failed plan can be reset")
	ErrNotOngoing       = errors.New("ingestion is not ongoing")
	ErrStaleRun         = errors.New("status update from a superseded run")
)

func (s Status) String() string {
	switch s {
	case StatusNotStarted:
		return "not_started"
	case StatusOngoing:
		return "ongoing"
	case StatusCompleted:
		return "completed"
	case StatusFailed:
		return "failed"
	}
	return "unknown"
}

func (s Status) Terminal() bool {
	return s == StatusCompleted || s == StatusFailed
}

// StartError explains why a plan in status s cannot start. It is nil only for
// StatusNotStarted.
func (s Status) StartError() error {
	switch s {
	case StatusNotStarted:
		return nil
	case StatusOngoing:
		return ErrAlreadyOngoing
	case StatusCompleted:
		return ErrAlreadyCompleted
	case StatusFailed:
		return ErrAlreadyFailed
	}
	return errors.New("unknown ingestion status")
}
