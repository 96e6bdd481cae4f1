package importplan

import (
	"fmt"
	"path/filepath"
	"strings"
	"time"

	"github.com/google/uuid"
)

// TimeLayout is the ISO-8601 form of ingestionStartedAt/ingestionCompletedAt.
const TimeLayout = "2006-01-02T15:04:05.000Z07:00"

// FormatTime renders t in TimeLayout, or "" for the zero time.
func FormatTime(t time.Time) string {
	if t.IsZero() {
		return ""
	}
	return t.UTC().Format(TimeLayout)
}

// ParseTime is the inverse of FormatTime.
func ParseTime(s string) (time.Time, error) {
	if strings.TrimSpace(s) == "" {
		return time.Time{}, nil
	}
	t, err := time.Parse(TimeLayout, s)
	if err != nil {
		return time.Parse(time.RFC3339Nano, s)
	}
	return t, nil
}

// Snapshot is the full persisted state of a plan.
type Snapshot struct {
	ID          uuid.UUID
	Label       string
	FilePath    string
	Columns     []string
	Relations   []string
	Status      Status
	Progress    float64
	Message     string
	StartedAt   time.Time
	CompletedAt time.Time
	Warnings    []string
	CreatedAt   time.Time
	UpdatedAt   time.Time
}

// ImportPlan maps one uploaded source file onto entities through its rules.
type ImportPlan struct {
	s Snapshot
}

func New(label, filePath string, columns []string, relations []RelationTemplate) (ImportPlan, error) {
	encoded, err := EncodeRelations(relations)
	if err != nil {
		return ImportPlan{}, err
	}
	return ImportPlan{s: Snapshot{
		ID:        uuid.New(),
		Label:     strings.TrimSpace(label),
		FilePath:  strings.TrimSpace(filePath),
		Columns:   append([]string(nil), columns...),
		Relations: encoded,
		Status:    StatusNotStarted,
	}}, nil
}

func Hydrate(s Snapshot) ImportPlan {
	return ImportPlan{s: s}
}

func (p ImportPlan) Snapshot() Snapshot {
	s := p.s
	s.Columns = append([]string(nil), p.s.Columns...)
	s.Relations = append([]string(nil), p.s.Relations...)
	s.Warnings = append([]string(nil), p.s.Warnings...)
	return s
}

func (p ImportPlan) ID() uuid.UUID          { return p.s.ID }
func (p ImportPlan) Label() string          { return p.s.Label }
func (p ImportPlan) FilePath() string       { return p.s.FilePath }
func (p ImportPlan) Columns() []string      { return p.s.Columns }
func (p ImportPlan) Status() Status         { return p.s.Status }
func (p ImportPlan) Progress() float64      { return p.s.Progress }
func (p ImportPlan) Message() string        { return p.s.Message }
func (p ImportPlan) StartedAt() time.Time   { return p.s.StartedAt }
func (p ImportPlan) CompletedAt() time.Time { return p.s.CompletedAt }
func (p ImportPlan) Warnings() []string     { return p.s.Warnings }
func (p ImportPlan) CreatedAt() time.Time   { return p.s.CreatedAt }
func (p ImportPlan) UpdatedAt() time.Time   { return p.s.UpdatedAt }

// FileName is the base name of the source file, used as the import document label.
func (p ImportPlan) FileName() string {
	if p.s.FilePath == "" {
		return p.s.Label
	}
	return filepath.Base(p.s.FilePath)
}

// Relations decodes the stored relation templates.
func (p ImportPlan) Relations() ([]RelationTemplate, error) {
	return ParseRelations(p.s.Relations)
}

// Start moves a NotStarted plan to Ongoing.
func (p ImportPlan) Start(at time.Time) (ImportPlan, error) {
	if err := p.s.Status.StartError(); err != nil {
		return p, err
	}
	p.s.Status = StatusOngoing
	p.s.Progress = 0
	p.s.Message = ""
	p.s.StartedAt = at
	p.s.CompletedAt = time.Time{}
	p.s.Warnings = nil
	return p, nil
}

// Reset returns a Failed plan to NotStarted.
func (p ImportPlan) Reset() (ImportPlan, error) {
	if p.s.Status != StatusFailed {
		return p, ErrNotFailed
	}
	p.s.Status = StatusNotStarted
	p.s.Progress = 0
	p.s.Message = ""
	p.s.StartedAt = time.Time{}
	p.s.CompletedAt = time.Time{}
	p.s.Warnings = nil
	return p, nil
}

// StatusUpdate is a partial update of the ingestion status fields. Nil fields
// are left untouched. StartedAt, when set, names the run the update comes from.
type StatusUpdate struct {
	StartedAt   *time.Time
	Progress    *float64
	Status      *Status
	Message     *string
	CompletedAt *time.Time
	Warnings    []string
}

// Apply returns p with u applied. Only an Ongoing plan takes updates, and only
// from the run that started it.
func (p ImportPlan) Apply(u StatusUpdate) (ImportPlan, error) {
	if p.s.Status != StatusOngoing {
		return p, fmt.Errorf("%w: plan is %s", ErrNotOngoing, p.s.Status)
	}
	if u.StartedAt != nil && !u.StartedAt.Equal(p.s.StartedAt) {
		return p, ErrStaleRun
	}
	if u.Progress != nil {
		p.s.Progress = clampProgress(*u.Progress)
	}
	if u.Status != nil {
		p.s.Status = *u.Status
	}
	if u.Message != nil {
		p.s.Message = *u.Message
	}
	if u.CompletedAt != nil {
		p.s.CompletedAt = *u.CompletedAt
	}
	if u.Warnings != nil {
		p.s.Warnings = append([]string(nil), u.Warnings...)
	}
	return p, nil
}

func clampProgress(v float64) float64 {
	switch {
	case v < 0:
		return 0
	case v > 100:
		return 100
	}
	return v
}

// StatusView is the read-only projection polled while a run is in flight.
type StatusView struct {
	PlanID      uuid.UUID `json:"_id"`
	Progress    float64   `json:"progress"`
	Status      Status    `json:"status"`
	State       string    `json:"state"`
	Message     string    `json:"message"`
	StartedAt   string    `json:"startedAt,omitempty"`
	CompletedAt string    `json:"completedAt,omitempty"`
	Warnings    []string  `json:"warnings,omitempty"`
}

func (p ImportPlan) View() StatusView {
	return StatusView{
		PlanID:      p.s.ID,
		Progress:    p.s.Progress,
		Status:      p.s.Status,
		State:       p.s.Status.String(),
		Message:     p.s.Message,
		StartedAt:   FormatTime(p.s.StartedAt),
		CompletedAt: FormatTime(p.s.CompletedAt),
		Warnings:    append([]string(nil), p.s.Warnings...),
	}
}
