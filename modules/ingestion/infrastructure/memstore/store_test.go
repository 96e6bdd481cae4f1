package memstore

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/stavrosangelis/clericus-neo4j-sub002/modules/ingestion/domain/aggregates/importplan"
	"github.com/stavrosangelis/clericus-neo4j-sub002/modules/ingestion/domain/entities/importrule"
	"github.com/stavrosangelis/clericus-neo4j-sub002/modules/ingestion/domain/entities/record"
	"github.com/stavrosangelis/clericus-neo4j-sub002/modules/ingestion/domain/entities/term"
)

func newPlan(t *testing.T, s *Store) importplan.ImportPlan {
	t.Helper()
	p, err := importplan.New("plan", "plan.csv", nil, nil)
	require.NoError(t, err)
	created, err := s.Create(context.Background(), p)
	require.NoError(t, err)
	return created
}

func TestTryStart_OnlyOneWinner(t *testing.T) {
	s := New()
	p := newPlan(t, s)

	var wg sync.WaitGroup
	var mu sync.Mutex
	wins := 0
	for range 16 {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, ok, err := s.TryStart(context.Background(), p.ID(), time.Now())
			if err == nil && ok {
				mu.Lock()
				wins++
				mu.Unlock()
			}
		}()
	}
	wg.Wait()
	require.Equal(t, 1, wins)

	status, ok, err := s.TryStart(context.Background(), p.ID(), time.Now())
	require.NoError(t, err)
	require.False(t, ok)
	require.Equal(t, importplan.StatusOngoing, status)
}

func TestMarkStaleAndReset(t *testing.T) {
	ctx := context.Background()
	s := New()
	old := newPlan(t, s)
	fresh := newPlan(t, s)

	now := time.Date(2024, 6, 1, 12, 0, 0, 0, time.UTC)
	_, _, err := s.TryStart(ctx, old.ID(), now.Add(-4*time.Hour))
	require.NoError(t, err)
	_, _, err = s.TryStart(ctx, fresh.ID(), now.Add(-time.Minute))
	require.NoError(t, err)

	n, err := s.MarkStale(ctx, now.Add(-3*time.Hour), "timed out")
	require.NoError(t, err)
	require.Equal(t, 1, n)

	got, err := s.GetByID(ctx, old.ID())
	require.NoError(t, err)
	require.Equal(t, importplan.StatusFailed, got.Status())
	require.Equal(t, "timed out", got.Message())

	require.ErrorIs(t, s.Reset(ctx, fresh.ID()), importplan.ErrNotFailed)
	require.NoError(t, s.Reset(ctx, old.ID()))
	got, err = s.GetByID(ctx, old.ID())
	require.NoError(t, err)
	require.Equal(t, importplan.StatusNotStarted, got.Status())
}

func TestRules_OrderedByCreation(t *testing.T) {
	ctx := context.Background()
	s := New()
	p := newPlan(t, s)
	base := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)

	late, err := importrule.New(p.ID(), importrule.Rule{EntityType: "Event"}, base.Add(time.Hour))
	require.NoError(t, err)
	early, err := importrule.New(p.ID(), importrule.Rule{EntityType: "Person"}, base)
	require.NoError(t, err)
	_, err = s.AddRule(ctx, late)
	require.NoError(t, err)
	_, err = s.AddRule(ctx, early)
	require.NoError(t, err)

	rules, err := s.Rules(ctx, p.ID())
	require.NoError(t, err)
	require.Equal(t, []importrule.ImportRule{early, late}, rules)
}

func TestSave_ValidatesAndUpdates(t *testing.T) {
	ctx := context.Background()
	s := New()
	people := s.Stores()[record.TypePerson]

	res, err := people.Save(ctx, record.Record{Type: record.TypePerson, Fields: record.Fields{"honorificPrefix": "Rev."}}, "test")
	require.NoError(t, err)
	require.False(t, res.Status)
	require.NotEmpty(t, res.Errors)

	res, err = people.Save(ctx, record.Record{Type: record.TypePerson, Fields: record.Fields{"firstName": "John"}}, "test")
	require.NoError(t, err)
	require.True(t, res.Status)
	id := res.Data.ID
	require.Positive(t, id)

	res, err = people.Save(ctx, record.Record{Type: record.TypePerson, ID: id, Fields: record.Fields{"firstName": "Jon"}}, "test")
	require.NoError(t, err)
	require.True(t, res.Status)
	require.Equal(t, id, res.Data.ID)

	loaded, err := people.LoadUnpopulated(ctx, id)
	require.NoError(t, err)
	require.Equal(t, "Jon", loaded.Fields.Text("firstName"))

	_, err = s.Stores()[record.TypeOrganisation].LoadUnpopulated(ctx, id)
	require.ErrorIs(t, err, record.ErrNotFound)
}

func TestUpdateReference_IdempotentAndOriented(t *testing.T) {
	ctx := context.Background()
	s := New()
	s.AddTerm(term.Term{LabelID: "hasAffiliation", InverseLabelID: "isAffiliationOf"})
	person := s.Put(record.Record{Type: record.TypePerson, Fields: record.Fields{"firstName": "John"}})
	org := s.Put(record.Record{Type: record.TypeOrganisation, Fields: record.Fields{"label": "Dublin Diocese"}})

	forward := record.Reference{
		Items:     [2]record.Item{{ID: person, Type: record.TypePerson}, {ID: org, Type: record.TypeOrganisation}},
		TermLabel: "hasAffiliation",
	}
	inverse := record.Reference{
		Items:     [2]record.Item{{ID: org, Type: record.TypeOrganisation}, {ID: person, Type: record.TypePerson}},
		TermLabel: "isAffiliationOf",
	}

	ch, err := s.UpdateReference(ctx, forward)
	require.NoError(t, err)
	require.Equal(t, record.Changes{Created: 1}, ch)

	ch, err = s.UpdateReference(ctx, inverse)
	require.NoError(t, err)
	require.Equal(t, record.Changes{Matched: 1}, ch)
	require.Len(t, s.Edges(), 1)
	require.Equal(t, person, s.Edges()[0].SrcID)

	loaded, err := s.Stores()[record.TypeOrganisation].Load(ctx, org)
	require.NoError(t, err)
	require.Equal(t, []record.Related{{ID: person, Type: record.TypePerson, TermLabel: "isAffiliationOf"}}, loaded.Related)

	_, err = s.UpdateReference(ctx, record.Reference{Items: forward.Items, TermLabel: "unknown"})
	require.ErrorIs(t, err, term.ErrUnknownTerm)
}

func TestUpdateIngestionStatus_AfterReapIsRejected(t *testing.T) {
	ctx := context.Background()
	s := New()
	p := newPlan(t, s)

	startedAt := time.Date(2024, 6, 1, 8, 0, 0, 0, time.UTC)
	_, ok, err := s.TryStart(ctx, p.ID(), startedAt)
	require.NoError(t, err)
	require.True(t, ok)
	n, err := s.MarkStale(ctx, startedAt.Add(time.Hour), "timed out")
	require.NoError(t, err)
	require.Equal(t, 1, n)

	done := importplan.StatusCompleted
	msg := "Ingestion completed"
	err = s.UpdateIngestionStatus(ctx, p.ID(), importplan.StatusUpdate{StartedAt: &startedAt, Status: &done, Message: &msg})
	require.ErrorIs(t, err, importplan.ErrNotOngoing)

	got, err := s.GetByID(ctx, p.ID())
	require.NoError(t, err)
	require.Equal(t, importplan.StatusFailed, got.Status())
	require.Equal(t, "timed out", got.Message())
}
