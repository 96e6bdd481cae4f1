package services

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"github.com/stavrosangelis/clericus-neo4j-sub002/modules/ingestion/domain/aggregates/importplan"
	"github.com/stavrosangelis/clericus-neo4j-sub002/modules/ingestion/domain/entities/record"
	"github.com/stavrosangelis/clericus-neo4j-sub002/pkg/eventbus"
)

const tracerName = "github.com/stavrosangelis/clericus-neo4j-sub002/modules/ingestion"

// SourceReader loads the rows of an uploaded file, header row first.
type SourceReader interface {
	Read(ctx context.Context, path string) ([]record.RawRow, error)
}

// IngestionService drives an import plan from source rows to a linked set of
// persisted entities.
type IngestionService struct {
	plans  importplan.Repository
	stores record.Stores
	source SourceReader

	dispatcher *Dispatcher
	linker     *Linker
	bus        *eventbus.Bus[ProgressEvent]
	tracer     trace.Tracer
	m          *metrics
	opts       Options

	wg sync.WaitGroup
}

func NewIngestionService(
	plans importplan.Repository,
	stores record.Stores,
	refs record.ReferenceStore,
	source SourceReader,
	dates DateNormalizer,
	opts Options,
) (*IngestionService, error) {
	if plans == nil {
		return nil, invalidConfig("plan repository is required")
	}
	if missing := stores.Missing(); len(missing) > 0 {
		return nil, invalidConfig("entity stores missing for %v", missing)
	}
	if refs == nil {
		return nil, invalidConfig("reference store is required")
	}
	if source == nil {
		return nil, invalidConfig("source reader is required")
	}
	if dates == nil {
		return nil, invalidConfig("date normalizer is required")
	}
	opts.setDefaults()
	if opts.Workers < 1 {
		return nil, invalidConfig("workers must be positive, got %d", opts.Workers)
	}

	bus := eventbus.New[ProgressEvent](opts.Logger)
	bus.Subscribe(StatusSink(plans))

	parser := NewParser(NewExtractor(dates), stores, opts.Logger)
	return &IngestionService{
		plans:      plans,
		stores:     stores,
		source:     source,
		dispatcher: NewDispatcher(parser, opts.Workers, opts.Logger),
		linker:     NewLinker(refs, opts.ProgressEvery, opts.Logger),
		bus:        bus,
		tracer:     otel.Tracer(tracerName),
		m:          getMetrics(),
		opts:       opts,
	}, nil
}

// Progress exposes the progress events of every run, for callers that want
// more than the persisted status.
func (s *IngestionService) Progress() *eventbus.Bus[ProgressEvent] { return s.bus }

// Start claims the plan and runs the ingestion in the background. It returns
// once the plan is Ongoing; the run outlives ctx's cancellation.
func (s *IngestionService) Start(ctx context.Context, planID uuid.UUID) error {
	startedAt, err := s.claim(ctx, planID)
	if err != nil {
		return err
	}
	runCtx := context.WithoutCancel(ctx)
	s.wg.Add(1)
	go func() {
		defer s.wg.Done()
		_ = s.execute(runCtx, planID, startedAt)
	}()
	return nil
}

// Run claims the plan and ingests it before returning.
func (s *IngestionService) Run(ctx context.Context, planID uuid.UUID) error {
	startedAt, err := s.claim(ctx, planID)
	if err != nil {
		return err
	}
	return s.execute(ctx, planID, startedAt)
}

// Wait blocks until every run started with Start has finished.
func (s *IngestionService) Wait() { s.wg.Wait() }

func (s *IngestionService) LoadStatus(ctx context.Context, planID uuid.UUID) (importplan.StatusView, error) {
	p, err := s.load(ctx, planID)
	if err != nil {
		return importplan.StatusView{}, err
	}
	return p.View(), nil
}

func (s *IngestionService) load(ctx context.Context, planID uuid.UUID) (importplan.ImportPlan, error) {
	if planID == uuid.Nil {
		return importplan.ImportPlan{}, ErrInvalidPlanID
	}
	p, err := s.plans.GetByID(ctx, planID)
	if errors.Is(err, importplan.ErrNotFound) {
		return importplan.ImportPlan{}, fmt.Errorf("%w: %s", ErrPlanNotFound, planID)
	}
	if err != nil {
		return importplan.ImportPlan{}, err
	}
	return p, nil
}

// claim moves the plan to Ongoing with a compare-and-set, so of two
// concurrent starts only one wins. The returned start time identifies the run
// in its status updates; it is truncated to what Postgres stores.
func (s *IngestionService) claim(ctx context.Context, planID uuid.UUID) (time.Time, error) {
	p, err := s.load(ctx, planID)
	if err != nil {
		return time.Time{}, err
	}
	if err := p.Status().StartError(); err != nil {
		return time.Time{}, err
	}
	startedAt := s.opts.Now().UTC().Truncate(time.Microsecond)
	status, ok, err := s.plans.TryStart(ctx, planID, startedAt)
	if err != nil {
		return time.Time{}, err
	}
	if !ok {
		if err := status.StartError(); err != nil {
			return time.Time{}, err
		}
		return time.Time{}, ErrAlreadyOngoing
	}
	s.opts.Logger.WithField("plan_id", planID).Info("ingestion: started")
	return startedAt, nil
}

// execute is the error boundary of a run: any error or panic ends with the
// plan marked Failed.
func (s *IngestionService) execute(ctx context.Context, planID uuid.UUID, startedAt time.Time) (err error) {
	started := s.opts.Now()
	log := s.opts.Logger.WithField("plan_id", planID)
	run := newRun(planID, s.bus, s.opts.MaxWarnings, log)
	run.StartedAt = startedAt

	ctx, cancel := context.WithTimeout(ctx, s.opts.RunTimeout)
	defer cancel()

	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("ingestion panicked: %v", r)
		}
		result := "completed"
		if err != nil {
			result = "failed"
			if errors.Is(err, context.DeadlineExceeded) && ctx.Err() != nil {
				err = fmt.Errorf("ingestion timed out after %s: %w", s.opts.RunTimeout, err)
			}
			s.fail(ctx, run, err)
		}
		s.m.runsTotal.WithLabelValues(result).Inc()
		s.m.runDuration.WithLabelValues(result).Observe(s.opts.Now().Sub(started).Seconds())
	}()

	return s.ingest(ctx, run, log)
}

func (s *IngestionService) fail(ctx context.Context, run *Run, cause error) {
	run.log.WithError(cause).Error("ingestion: run failed")
	fctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), 10*time.Second)
	defer cancel()
	msg := truncateString("Ingestion failed: "+cause.Error(), s.opts.FailMessageMaxLen)
	if err := run.finish(fctx, importplan.StatusFailed, nil, msg, nil); err != nil {
		run.log.WithError(err).Error("ingestion: could not record failure")
	}
}

func (s *IngestionService) ingest(ctx context.Context, run *Run, log *logrus.Entry) error {
	plan, err := s.plans.GetByID(ctx, run.PlanID)
	if err != nil {
		return fmt.Errorf("load plan: %w", err)
	}
	rules, err := s.plans.Rules(ctx, run.PlanID)
	if err != nil {
		return fmt.Errorf("load rules: %w", err)
	}
	templates, err := plan.Relations()
	if err != nil {
		return fmt.Errorf("load relations: %w", err)
	}
	rows, err := s.source.Read(ctx, plan.FilePath())
	if err != nil {
		return fmt.Errorf("read source: %w", err)
	}
	log.WithFields(logrus.Fields{"rules": len(rules), "rows": len(rows), "relations": len(templates)}).Info("ingestion: inputs loaded")

	var parsed record.Buckets
	err = s.phase(ctx, run.PlanID, "ingestion.parse", func(ctx context.Context) error {
		parsed, err = s.dispatcher.ParseRules(ctx, rules, rows, run.Warnings)
		return err
	})
	if err != nil {
		return err
	}

	var deduped record.Buckets
	err = s.phase(ctx, run.PlanID, "ingestion.dedup", func(ctx context.Context) error {
		deduped = Dedup(parsed, templates)
		deduped[record.TypeResource] = append(deduped[record.TypeResource], importDocument(plan, rows))
		return ctx.Err()
	})
	if err != nil {
		return err
	}

	var persisted record.Buckets
	err = s.phase(ctx, run.PlanID, "ingestion.persist", func(ctx context.Context) error {
		persisted, err = s.persist(ctx, run, deduped)
		return err
	})
	if err != nil {
		return err
	}

	var stats LinkStats
	err = s.phase(ctx, run.PlanID, "ingestion.link", func(ctx context.Context) error {
		stats, err = s.linker.LinkEntities(ctx, run, persisted, templates)
		return err
	})
	if err != nil {
		return err
	}

	done := 100.0
	now := s.opts.Now()
	msg := completionMessage(persisted, stats, run.Warnings.Len())
	if err := run.finish(ctx, importplan.StatusCompleted, &done, msg, &now); err != nil {
		return fmt.Errorf("record completion: %w", err)
	}
	log.WithField("summary", msg).Info("ingestion: completed")
	return nil
}

func (s *IngestionService) phase(ctx context.Context, planID uuid.UUID, name string, fn func(context.Context) error) error {
	ctx, span := s.tracer.Start(ctx, name, trace.WithAttributes(attribute.String("plan_id", planID.String())))
	defer span.End()
	if err := fn(ctx); err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return err
	}
	return nil
}

// persist saves every record type by type. A record its store rejects is
// skipped with a warning; a store error ends the run.
func (s *IngestionService) persist(ctx context.Context, run *Run, deduped record.Buckets) (record.Buckets, error) {
	total := deduped.Total()
	out := make(record.Buckets, len(record.Types))
	done := 0

	for _, t := range record.Types {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		store := s.stores[t]
		for _, rec := range deduped[t] {
			res, err := store.Save(ctx, rec, s.opts.ActorID)
			if err != nil {
				return nil, fmt.Errorf("save %s (rows %v): %w", t, rowsOf(rec), err)
			}
			done++
			if done%s.opts.ProgressEvery == 0 {
				run.Report(ctx, percent(done, total))
			}
			if !res.Status || !res.Data.Persisted() {
				s.m.saveFailuresTotal.WithLabelValues(t.String()).Inc()
				reason := strings.Join(res.Errors, "; ")
				if reason == "" {
					reason = "store returned no id"
				}
				run.Warn(logrus.Fields{"entity_type": t.String(), "rows": rowsOf(rec)},
					"%s %q (rows %v) not saved: %s", t, displayName(rec), rowsOf(rec), reason)
				continue
			}
			saved := res.Data
			saved.Type = t
			saved.RefID = rec.RefID
			saved.Row = rec.Row
			saved.Rows = rec.Rows
			out[t] = append(out[t], saved)
			s.m.persistedTotal.WithLabelValues(t.String()).Inc()
		}
		run.Report(ctx, percent(done, total))
		run.log.WithFields(logrus.Fields{"entity_type": t.String(), "saved": len(out[t]), "of": len(deduped[t])}).Debug("ingestion: type persisted")
	}
	return out, nil
}

// importDocument is the Resource standing for the source file. Every data row
// belongs to it, so every ingested entity links back to it.
func importDocument(plan importplan.ImportPlan, rows []record.RawRow) record.Record {
	docRows := make([]int, 0, len(rows))
	for _, r := range rows {
		if r.Key > 0 {
			docRows = append(docRows, r.Key)
		}
	}
	row := 0
	if len(docRows) > 0 {
		row = docRows[0]
	}
	return record.Record{
		Type:  record.TypeResource,
		RefID: record.CustomRefID,
		Row:   row,
		Rows:  docRows,
		Fields: record.Fields{
			record.FieldLabel: plan.FileName(),
			"resourceType":    DocumentResourceType,
			"importPlanId":    plan.ID().String(),
		},
	}
}

func displayName(r record.Record) string {
	if l := r.Label(); l != "" {
		return l
	}
	return strings.TrimSpace(r.Fields.Text("firstName") + " " + r.Fields.Text("lastName"))
}

func completionMessage(persisted record.Buckets, stats LinkStats, warnings int) string {
	counts := persisted.Counts()
	names := make([]string, 0, len(counts))
	for name := range counts {
		names = append(names, name)
	}
	sort.Strings(names)
	parts := make([]string, 0, len(names))
	for _, name := range names {
		parts = append(parts, fmt.Sprintf("%d %s", counts[name], name))
	}
	msg := fmt.Sprintf("Ingestion completed: %s; %d relationships", strings.Join(parts, ", "), stats.Emitted-stats.Failed)
	if warnings > 0 {
		msg += fmt.Sprintf("; %d warnings", warnings)
	}
	return msg
}
