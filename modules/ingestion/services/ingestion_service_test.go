package services

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/require"

	"github.com/stavrosangelis/clericus-neo4j-sub002/modules/ingestion/domain/aggregates/importplan"
	"github.com/stavrosangelis/clericus-neo4j-sub002/modules/ingestion/domain/entities/importrule"
	"github.com/stavrosangelis/clericus-neo4j-sub002/modules/ingestion/domain/entities/record"
	"github.com/stavrosangelis/clericus-neo4j-sub002/modules/ingestion/domain/entities/term"
	"github.com/stavrosangelis/clericus-neo4j-sub002/modules/ingestion/infrastructure/dates"
	"github.com/stavrosangelis/clericus-neo4j-sub002/modules/ingestion/infrastructure/memstore"
	"github.com/stavrosangelis/clericus-neo4j-sub002/modules/ingestion/infrastructure/source"
)

type staticSource struct {
	rows []record.RawRow
	err  error
}

func (s staticSource) Read(context.Context, string) ([]record.RawRow, error) {
	return s.rows, s.err
}

// gatedSource blocks until release is closed or ctx ends.
type gatedSource struct {
	release chan struct{}
	rows    []record.RawRow
}

func (s gatedSource) Read(ctx context.Context, _ string) ([]record.RawRow, error) {
	select {
	case <-s.release:
		return s.rows, nil
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}

type panicStore struct{ record.EntityStore }

func (panicStore) Save(context.Context, record.Record, string) (record.SaveResult, error) {
	panic("store exploded")
}

type loadPanicStore struct{ record.EntityStore }

func (loadPanicStore) LoadUnpopulated(context.Context, int64) (record.Record, error) {
	panic("load exploded")
}

type rejectStore struct{ record.EntityStore }

func (rejectStore) Save(_ context.Context, rec record.Record, _ string) (record.SaveResult, error) {
	return record.SaveResult{Status: false, Data: rec, Errors: []string{"label is taken"}}, nil
}

type planFixture struct {
	rules     []importrule.Rule
	relations func(ids []string) []importplan.RelationTemplate
}

// seedPlan stores a plan for parish.csv with the given rules, in order.
func seedPlan(t *testing.T, s *memstore.Store, fx planFixture) importplan.ImportPlan {
	t.Helper()
	ctx := context.Background()
	base := time.Date(2024, 5, 1, 9, 0, 0, 0, time.UTC)

	rules := make([]importrule.ImportRule, 0, len(fx.rules))
	ids := make([]string, 0, len(fx.rules))
	for i, r := range fx.rules {
		ir, err := importrule.New(uuid.Nil, r, base.Add(time.Duration(i)*time.Second))
		require.NoError(t, err)
		rules = append(rules, ir)
		ids = append(ids, ir.ID.String())
	}
	var relations []importplan.RelationTemplate
	if fx.relations != nil {
		relations = fx.relations(ids)
	}

	p, err := importplan.New("parish records", "parish.csv", []string{"first", "last", "diocese", "place", "year"}, relations)
	require.NoError(t, err)
	p, err = s.Create(ctx, p)
	require.NoError(t, err)
	for _, ir := range rules {
		ir.ImportPlanID = p.ID()
		_, err := s.AddRule(ctx, ir)
		require.NoError(t, err)
	}
	return p
}

func newTestService(t *testing.T, s *memstore.Store, stores record.Stores, src SourceReader, opts Options) *IngestionService {
	t.Helper()
	if stores == nil {
		stores = s.Stores()
	}
	svc, err := NewIngestionService(s, stores, s, src, dates.New(), opts)
	require.NoError(t, err)
	return svc
}

var personOnly = planFixture{rules: []importrule.Rule{{
	EntityType: "Person",
	Columns: []importrule.ColumnRule{
		{Property: "firstName", Value: 0},
		{Property: "lastName", Value: 1},
	},
}}}

var twoPeople = []record.RawRow{
	{Key: 0, Cells: []any{"first", "last"}},
	{Key: 1, Cells: []any{"John", "Smith"}},
	{Key: 2, Cells: []any{"Mary", "Jones"}},
}

func TestRun_EndToEnd(t *testing.T) {
	dir := t.TempDir()
	csv := "first,last,diocese,place,year\n" +
		"John,Smith,Dublin Diocese,Dublin,1820\n" +
		"Mary,Jones,Dublin Diocese,Cork,1821\n"
	require.NoError(t, os.WriteFile(filepath.Join(dir, "parish.csv"), []byte(csv), 0o600))

	s := memstore.New()
	s.AddTerm(term.Term{LabelID: "hasAffiliation", InverseLabelID: "isAffiliationOf"})
	s.AddTerm(term.Term{LabelID: RelatedToLabel, InverseLabelID: RelatedToLabel})

	plan := seedPlan(t, s, planFixture{
		rules: []importrule.Rule{
			{EntityType: "Person", Columns: []importrule.ColumnRule{{Property: "firstName", Value: 0}, {Property: "lastName", Value: 1}}},
			{EntityType: "Organisation", Columns: []importrule.ColumnRule{
				{Property: "label", Value: 2},
				{Property: "organisationType", Value: importrule.NoColumn, Custom: true, CustomValue: "Diocese"},
			}},
			{EntityType: "Spatial", Columns: []importrule.ColumnRule{{Property: "label", Value: 3}}},
			{EntityType: "Temporal", Columns: []importrule.ColumnRule{{Property: "label", Value: 4, Type: importrule.ColumnDate}}},
		},
		relations: func(ids []string) []importplan.RelationTemplate {
			return []importplan.RelationTemplate{{
				RelationLabel: "hasAffiliation",
				SrcID:         ids[0],
				SrcType:       record.TypePerson,
				TargetID:      ids[1],
				TargetType:    record.TypeOrganisation,
			}}
		},
	})

	svc := newTestService(t, s, nil, source.NewReader(dir, nil), Options{ProgressEvery: 2})

	var mu sync.Mutex
	var events []ProgressEvent
	svc.Progress().Subscribe(func(_ context.Context, ev ProgressEvent) error {
		mu.Lock()
		events = append(events, ev)
		mu.Unlock()
		return nil
	})

	require.NoError(t, svc.Run(context.Background(), plan.ID()))

	got, err := s.GetByID(context.Background(), plan.ID())
	require.NoError(t, err)
	require.Equal(t, importplan.StatusCompleted, got.Status())
	require.InDelta(t, 100.0, got.Progress(), 0.001)
	require.False(t, got.CompletedAt().IsZero())
	require.Empty(t, got.Warnings())
	require.Equal(t,
		"Ingestion completed: 0 events, 1 organisations, 2 people, 1 resources, 2 spatials, 2 temporals; 9 relationships",
		got.Message())

	require.Len(t, s.Entities(record.TypePerson), 2)
	require.Len(t, s.Entities(record.TypeOrganisation), 1)
	require.Len(t, s.Entities(record.TypeSpatial), 2)
	temporals := s.Entities(record.TypeTemporal)
	require.Len(t, temporals, 2)
	require.Equal(t, "01-01-1820", temporals[0].Fields.Text("startDate"))

	docs := s.Entities(record.TypeResource)
	require.Len(t, docs, 1)
	require.Equal(t, "parish.csv", docs[0].Label())
	require.Equal(t, DocumentResourceType, docs[0].Fields.Text("resourceType"))
	require.Equal(t, plan.ID().String(), docs[0].Fields.Text("importPlanId"))

	affiliations := 0
	for _, e := range s.Edges() {
		if e.Label == "hasAffiliation" {
			affiliations++
		}
	}
	require.Equal(t, 2, affiliations)
	require.Len(t, s.Edges(), 9)

	mu.Lock()
	defer mu.Unlock()
	require.NotEmpty(t, events)
	last := events[len(events)-1]
	require.NotNil(t, last.Status)
	require.Equal(t, importplan.StatusCompleted, *last.Status)
	for i := 1; i < len(events); i++ {
		if events[i].Progress != nil && events[i-1].Progress != nil {
			require.GreaterOrEqual(t, *events[i].Progress, *events[i-1].Progress)
		}
	}
}

func TestStart_SecondStartIsRejected(t *testing.T) {
	s := memstore.New()
	plan := seedPlan(t, s, personOnly)
	release := make(chan struct{})
	svc := newTestService(t, s, nil, gatedSource{release: release, rows: twoPeople}, Options{})

	require.NoError(t, svc.Start(context.Background(), plan.ID()))
	require.ErrorIs(t, svc.Start(context.Background(), plan.ID()), ErrAlreadyOngoing)

	view, err := svc.LoadStatus(context.Background(), plan.ID())
	require.NoError(t, err)
	require.Equal(t, importplan.StatusOngoing, view.Status)

	close(release)
	svc.Wait()

	view, err = svc.LoadStatus(context.Background(), plan.ID())
	require.NoError(t, err)
	require.Equal(t, importplan.StatusCompleted, view.Status)
	require.Len(t, s.Entities(record.TypePerson), 2)
	require.ErrorIs(t, svc.Start(context.Background(), plan.ID()), ErrAlreadyCompleted)
}

func TestStart_ConcurrentStartsHaveOneWinner(t *testing.T) {
	s := memstore.New()
	plan := seedPlan(t, s, personOnly)
	release := make(chan struct{})
	svc := newTestService(t, s, nil, gatedSource{release: release, rows: twoPeople}, Options{})

	var wg sync.WaitGroup
	var mu sync.Mutex
	started, rejected := 0, 0
	for range 8 {
		wg.Add(1)
		go func() {
			defer wg.Done()
			err := svc.Start(context.Background(), plan.ID())
			mu.Lock()
			defer mu.Unlock()
			switch {
			case err == nil:
				started++
			case errors.Is(err, ErrAlreadyOngoing):
				rejected++
			}
		}()
	}
	wg.Wait()
	close(release)
	svc.Wait()

	require.Equal(t, 1, started)
	require.Equal(t, 7, rejected)
}

func TestStart_ReturnsBeforeTheRunEnds(t *testing.T) {
	s := memstore.New()
	plan := seedPlan(t, s, personOnly)
	release := make(chan struct{})
	svc := newTestService(t, s, nil, gatedSource{release: release, rows: twoPeople}, Options{})

	ctx, cancel := context.WithCancel(context.Background())
	require.NoError(t, svc.Start(ctx, plan.ID()))
	cancel()
	close(release)
	svc.Wait()

	view, err := svc.LoadStatus(context.Background(), plan.ID())
	require.NoError(t, err)
	require.Equal(t, importplan.StatusCompleted, view.Status)
}

func TestRun_SourceErrorFailsPlan(t *testing.T) {
	ctx := context.Background()
	s := memstore.New()
	plan := seedPlan(t, s, personOnly)
	svc := newTestService(t, s, nil, staticSource{err: errors.New("file vanished")}, Options{})

	err := svc.Run(ctx, plan.ID())
	require.Error(t, err)

	got, err := s.GetByID(ctx, plan.ID())
	require.NoError(t, err)
	require.Equal(t, importplan.StatusFailed, got.Status())
	require.Equal(t, "Ingestion failed: read source: file vanished", got.Message())
	require.True(t, got.CompletedAt().IsZero())

	require.ErrorIs(t, svc.Run(ctx, plan.ID()), ErrAlreadyFailed)

	require.NoError(t, s.Reset(ctx, plan.ID()))
	svc = newTestService(t, s, nil, staticSource{rows: twoPeople}, Options{})
	require.NoError(t, svc.Run(ctx, plan.ID()))
}

func TestRun_TimeoutFailsPlan(t *testing.T) {
	ctx := context.Background()
	s := memstore.New()
	plan := seedPlan(t, s, personOnly)
	svc := newTestService(t, s, nil, gatedSource{release: make(chan struct{})}, Options{RunTimeout: 20 * time.Millisecond})

	err := svc.Run(ctx, plan.ID())
	require.ErrorIs(t, err, context.DeadlineExceeded)

	got, err := s.GetByID(ctx, plan.ID())
	require.NoError(t, err)
	require.Equal(t, importplan.StatusFailed, got.Status())
	require.Contains(t, got.Message(), "timed out")
}

func TestRun_PanicFailsPlan(t *testing.T) {
	ctx := context.Background()
	s := memstore.New()
	plan := seedPlan(t, s, personOnly)
	stores := s.Stores()
	stores[record.TypePerson] = panicStore{stores[record.TypePerson]}
	svc := newTestService(t, s, stores, staticSource{rows: twoPeople}, Options{})

	err := svc.Run(ctx, plan.ID())
	require.ErrorContains(t, err, "panicked")

	got, err := s.GetByID(ctx, plan.ID())
	require.NoError(t, err)
	require.Equal(t, importplan.StatusFailed, got.Status())
	require.Contains(t, got.Message(), "store exploded")
}

func TestRun_ParserPanicFailsPlan(t *testing.T) {
	ctx := context.Background()
	s := memstore.New()
	plan := seedPlan(t, s, planFixture{rules: []importrule.Rule{{
		EntityType: "Person",
		Columns: []importrule.ColumnRule{
			{Property: "firstName", Value: 0},
			{Property: record.FieldID, Value: 2},
		},
	}}})
	stores := s.Stores()
	stores[record.TypePerson] = loadPanicStore{stores[record.TypePerson]}
	rows := []record.RawRow{
		{Key: 0, Cells: []any{"first", "last", "id"}},
		{Key: 1, Cells: []any{"John", "Smith", "7"}},
	}
	svc := newTestService(t, s, stores, staticSource{rows: rows}, Options{Workers: 2})

	err := svc.Run(ctx, plan.ID())
	require.ErrorContains(t, err, "panicked")

	got, err := s.GetByID(ctx, plan.ID())
	require.NoError(t, err)
	require.Equal(t, importplan.StatusFailed, got.Status())
	require.Contains(t, got.Message(), "load exploded")
}

func TestRun_ReapedRunCannotComplete(t *testing.T) {
	ctx := context.Background()
	s := memstore.New()
	plan := seedPlan(t, s, personOnly)
	release := make(chan struct{})
	svc := newTestService(t, s, nil, gatedSource{release: release, rows: twoPeople}, Options{})

	require.NoError(t, svc.Start(ctx, plan.ID()))
	n, err := s.MarkStale(ctx, time.Now().Add(time.Hour), staleMessage)
	require.NoError(t, err)
	require.Equal(t, 1, n)

	close(release)
	svc.Wait()

	got, err := s.GetByID(ctx, plan.ID())
	require.NoError(t, err)
	require.Equal(t, importplan.StatusFailed, got.Status())
	require.Equal(t, staleMessage, got.Message())
	require.True(t, got.CompletedAt().IsZero())
}

func TestRun_SupersededRunCannotWrite(t *testing.T) {
	ctx := context.Background()
	s := memstore.New()
	plan := seedPlan(t, s, personOnly)
	release := make(chan struct{})
	svc := newTestService(t, s, nil, gatedSource{release: release, rows: twoPeople}, Options{})

	require.NoError(t, svc.Start(ctx, plan.ID()))
	_, err := s.MarkStale(ctx, time.Now().Add(time.Hour), staleMessage)
	require.NoError(t, err)
	require.NoError(t, s.Reset(ctx, plan.ID()))
	restartedAt := time.Date(2030, 1, 1, 0, 0, 0, 0, time.UTC)
	_, ok, err := s.TryStart(ctx, plan.ID(), restartedAt)
	require.NoError(t, err)
	require.True(t, ok)

	close(release)
	svc.Wait()

	got, err := s.GetByID(ctx, plan.ID())
	require.NoError(t, err)
	require.Equal(t, importplan.StatusOngoing, got.Status())
	require.Equal(t, restartedAt, got.StartedAt())
	require.Zero(t, got.Progress())
}

func TestRun_RejectedRecordIsWarning(t *testing.T) {
	ctx := context.Background()
	s := memstore.New()
	s.AddTerm(term.Term{LabelID: RelatedToLabel, InverseLabelID: RelatedToLabel})
	plan := seedPlan(t, s, planFixture{rules: []importrule.Rule{
		personOnly.rules[0],
		{EntityType: "Organisation", Columns: []importrule.ColumnRule{{Property: "label", Value: 2}}},
	}})
	stores := s.Stores()
	stores[record.TypeOrganisation] = rejectStore{stores[record.TypeOrganisation]}
	rows := []record.RawRow{
		{Key: 0, Cells: []any{"first", "last", "diocese"}},
		{Key: 1, Cells: []any{"John", "Smith", "Meath"}},
	}
	svc := newTestService(t, s, stores, staticSource{rows: rows}, Options{})

	require.NoError(t, svc.Run(ctx, plan.ID()))

	got, err := s.GetByID(ctx, plan.ID())
	require.NoError(t, err)
	require.Equal(t, importplan.StatusCompleted, got.Status())
	require.Len(t, got.Warnings(), 1)
	require.Contains(t, got.Warnings()[0], `"Meath"`)
	require.Contains(t, got.Warnings()[0], "label is taken")
	require.Contains(t, got.Message(), "0 organisations")
	require.Contains(t, got.Message(), "1 warnings")
	require.Len(t, s.Entities(record.TypePerson), 1)
}

func TestLoadStatus_Errors(t *testing.T) {
	s := memstore.New()
	svc := newTestService(t, s, nil, staticSource{}, Options{})

	_, err := svc.LoadStatus(context.Background(), uuid.Nil)
	require.ErrorIs(t, err, ErrInvalidPlanID)
	require.True(t, IsConfigError(err))

	_, err = svc.LoadStatus(context.Background(), uuid.New())
	require.ErrorIs(t, err, ErrPlanNotFound)

	require.ErrorIs(t, svc.Start(context.Background(), uuid.New()), ErrPlanNotFound)
}

func TestNewIngestionService_Validates(t *testing.T) {
	s := memstore.New()
	stores := s.Stores()
	delete(stores, record.TypeEvent)

	_, err := NewIngestionService(s, stores, s, staticSource{}, dates.New(), Options{})
	require.ErrorIs(t, err, ErrInvalidConfig)

	_, err = NewIngestionService(s, s.Stores(), nil, staticSource{}, dates.New(), Options{})
	require.ErrorIs(t, err, ErrInvalidConfig)

	_, err = NewIngestionService(s, s.Stores(), s, staticSource{}, dates.New(), Options{Workers: -1})
	require.ErrorIs(t, err, ErrInvalidConfig)
}

func TestCompletionMessage(t *testing.T) {
	msg := completionMessage(record.Buckets{
		record.TypePerson: {{}, {}},
	}, LinkStats{Emitted: 5, Failed: 2}, 3)
	require.Equal(t, "Ingestion completed: 0 events, 0 organisations, 2 people, 0 resources, 0 spatials, 0 temporals; 3 relationships; 3 warnings", msg)
}
