package services

import (
	"context"
	"time"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"

	"github.com/stavrosangelis/clericus-neo4j-sub002/modules/ingestion/domain/aggregates/importplan"
	"github.com/stavrosangelis/clericus-neo4j-sub002/pkg/eventbus"
)

// ProgressEvent is a partial status change of one plan. Nil fields are
// unchanged.
type ProgressEvent struct {
	PlanID uuid.UUID
	// StartedAt identifies the run; a plan restarted since ignores the event.
	StartedAt   *time.Time
	Progress    *float64
	Status      *importplan.Status
	Message     *string
	CompletedAt *time.Time
	Warnings    []string
}

func (e ProgressEvent) Update() importplan.StatusUpdate {
	return importplan.StatusUpdate{
		StartedAt:   e.StartedAt,
		Progress:    e.Progress,
		Status:      e.Status,
		Message:     e.Message,
		CompletedAt: e.CompletedAt,
		Warnings:    e.Warnings,
	}
}

// StatusSink persists progress events on the plan, which is what status
// readers poll.
func StatusSink(plans importplan.Repository) eventbus.Handler[ProgressEvent] {
	return func(ctx context.Context, ev ProgressEvent) error {
		return plans.UpdateIngestionStatus(ctx, ev.PlanID, ev.Update())
	}
}

// Run is the state threaded through the stages of one ingestion.
type Run struct {
	PlanID    uuid.UUID
	StartedAt time.Time
	Warnings  *Warnings

	bus *eventbus.Bus[ProgressEvent]
	log *logrus.Entry
}

func newRun(planID uuid.UUID, bus *eventbus.Bus[ProgressEvent], maxWarnings int, log *logrus.Entry) *Run {
	return &Run{
		PlanID:   planID,
		Warnings: NewWarnings(maxWarnings),
		bus:      bus,
		log:      log,
	}
}

// Report publishes an intermediate progress value with the current warnings.
// A failed write is logged and does not stop the run.
func (r *Run) Report(ctx context.Context, progress float64) {
	ev := ProgressEvent{PlanID: r.PlanID, StartedAt: r.runToken(), Progress: &progress, Warnings: r.Warnings.List()}
	if err := r.bus.Publish(ctx, ev); err != nil {
		r.log.WithError(err).WithField("progress", progress).Warn("ingestion: progress update failed")
	}
}

// Warn records a warning and logs it.
func (r *Run) Warn(fields logrus.Fields, format string, args ...any) {
	r.Warnings.Add(format, args...)
	r.log.WithFields(fields).Warnf(format, args...)
}

func (r *Run) finish(ctx context.Context, status importplan.Status, progress *float64, message string, completedAt *time.Time) error {
	ev := ProgressEvent{
		PlanID:      r.PlanID,
		StartedAt:   r.runToken(),
		Progress:    progress,
		Status:      &status,
		Message:     &message,
		CompletedAt: completedAt,
		Warnings:    r.Warnings.List(),
	}
	if ev.Warnings == nil {
		ev.Warnings = []string{}
	}
	return r.bus.Publish(ctx, ev)
}

func (r *Run) runToken() *time.Time {
	if r.StartedAt.IsZero() {
		return nil
	}
	at := r.StartedAt
	return &at
}

func percent(done, total int) float64 {
	if total <= 0 {
		return 0
	}
	return float64(done) / float64(total*2) * 100
}
