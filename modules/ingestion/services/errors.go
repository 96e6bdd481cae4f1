package services

import (
	"errors"

	"github.com/stavrosangelis/clericus-neo4j-sub002/modules/ingestion/domain/aggregates/importplan"
)

// Start and LoadStatus return these synchronously, without touching plan state.
var (
	ErrInvalidPlanID    = errors.New("invalid import plan id")
	ErrPlanNotFound     = errors.New("import plan not found")
	ErrAlreadyOngoing   = importplan.ErrAlreadyOngoing
	ErrAlreadyCompleted = importplan.ErrAlreadyCompleted
	ErrAlreadyFailed    = importplan.ErrAlreadyFailed
)

// IsConfigError reports whether err was raised before a run started.
func IsConfigError(err error) bool {
	return errors.Is(err, ErrInvalidPlanID) ||
		errors.Is(err, ErrPlanNotFound) ||
		errors.Is(err, ErrAlreadyOngoing) ||
		errors.Is(err, ErrAlreadyCompleted) ||
		errors.Is(err, ErrAlreadyFailed)
}
