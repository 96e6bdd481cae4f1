// Package memstore is an in-memory implementation of every store the
// ingestion pipeline talks to. It backs tests and dry runs.
package memstore

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/stavrosangelis/clericus-neo4j-sub002/modules/ingestion/domain/aggregates/importplan"
	"github.com/stavrosangelis/clericus-neo4j-sub002/modules/ingestion/domain/entities/importrule"
	"github.com/stavrosangelis/clericus-neo4j-sub002/modules/ingestion/domain/entities/record"
	"github.com/stavrosangelis/clericus-neo4j-sub002/modules/ingestion/domain/entities/term"
)

// Edge is a stored relationship in the term's forward direction.
type Edge struct {
	SrcID    int64
	TargetID int64
	TermID   int64
	Label    string
}

type edgeKey struct {
	src, tgt, term int64
}

type Store struct {
	mu sync.Mutex

	plans    map[uuid.UUID]importplan.ImportPlan
	rules    map[uuid.UUID][]importrule.ImportRule
	entities map[int64]record.Record
	nextID   int64
	terms    []term.Term
	edges    map[edgeKey]Edge
	edgeSeq  []edgeKey

	now func() time.Time
}

var (
	_ importplan.Repository = (*Store)(nil)
	_ record.ReferenceStore = (*Store)(nil)
	_ term.Repository       = (*Store)(nil)
	_ record.EntityStore    = entityStore{}
)

func New() *Store {
	return &Store{
		plans:    make(map[uuid.UUID]importplan.ImportPlan),
		rules:    make(map[uuid.UUID][]importrule.ImportRule),
		entities: make(map[int64]record.Record),
		edges:    make(map[edgeKey]Edge),
		now:      time.Now,
	}
}

// SetClock replaces the clock used for plan timestamps.
func (s *Store) SetClock(now func() time.Time) {
	s.mu.Lock()
	s.now = now
	s.mu.Unlock()
}

// ---- plans ----

func (s *Store) GetByID(_ context.Context, id uuid.UUID) (importplan.ImportPlan, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	p, ok := s.plans[id]
	if !ok {
		return importplan.ImportPlan{}, importplan.ErrNotFound
	}
	return importplan.Hydrate(p.Snapshot()), nil
}

func (s *Store) Create(_ context.Context, p importplan.ImportPlan) (importplan.ImportPlan, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	snap := p.Snapshot()
	if snap.ID == uuid.Nil {
		snap.ID = uuid.New()
	}
	if _, exists := s.plans[snap.ID]; exists {
		return importplan.ImportPlan{}, fmt.Errorf("import plan %s already exists", snap.ID)
	}
	now := s.now()
	if snap.CreatedAt.IsZero() {
		snap.CreatedAt = now
	}
	snap.UpdatedAt = now
	stored := importplan.Hydrate(snap)
	s.plans[snap.ID] = stored
	return stored, nil
}

func (s *Store) Rules(_ context.Context, planID uuid.UUID) ([]importrule.ImportRule, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := append([]importrule.ImportRule(nil), s.rules[planID]...)
	sort.SliceStable(out, func(i, j int) bool { return out[i].CreatedAt.Before(out[j].CreatedAt) })
	return out, nil
}

func (s *Store) AddRule(_ context.Context, r importrule.ImportRule) (importrule.ImportRule, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.plans[r.ImportPlanID]; !ok {
		return importrule.ImportRule{}, importplan.ErrNotFound
	}
	if r.ID == uuid.Nil {
		r.ID = uuid.New()
	}
	if r.CreatedAt.IsZero() {
		r.CreatedAt = s.now()
	}
	s.rules[r.ImportPlanID] = append(s.rules[r.ImportPlanID], r)
	return r, nil
}

func (s *Store) TryStart(_ context.Context, id uuid.UUID, startedAt time.Time) (importplan.Status, bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	p, ok := s.plans[id]
	if !ok {
		return 0, false, importplan.ErrNotFound
	}
	started, err := p.Start(startedAt)
	if err != nil {
		return p.Status(), false, nil
	}
	s.plans[id] = s.touch(started)
	return importplan.StatusOngoing, true, nil
}

func (s *Store) UpdateIngestionStatus(_ context.Context, id uuid.UUID, u importplan.StatusUpdate) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	p, ok := s.plans[id]
	if !ok {
		return importplan.ErrNotFound
	}
	next, err := p.Apply(u)
	if err != nil {
		return err
	}
	s.plans[id] = s.touch(next)
	return nil
}

func (s *Store) MarkStale(_ context.Context, startedBefore time.Time, message string) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	failed := importplan.StatusFailed
	n := 0
	for id, p := range s.plans {
		if p.Status() != importplan.StatusOngoing || !p.StartedAt().Before(startedBefore) {
			continue
		}
		next, err := p.Apply(importplan.StatusUpdate{Status: &failed, Message: &message})
		if err != nil {
			return n, err
		}
		s.plans[id] = s.touch(next)
		n++
	}
	return n, nil
}

func (s *Store) Reset(_ context.Context, id uuid.UUID) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	p, ok := s.plans[id]
	if !ok {
		return importplan.ErrNotFound
	}
	reset, err := p.Reset()
	if err != nil {
		return err
	}
	s.plans[id] = s.touch(reset)
	return nil
}

func (s *Store) touch(p importplan.ImportPlan) importplan.ImportPlan {
	snap := p.Snapshot()
	snap.UpdatedAt = s.now()
	return importplan.Hydrate(snap)
}

// ---- terms ----

func (s *Store) AddTerm(t term.Term) term.Term {
	s.mu.Lock()
	defer s.mu.Unlock()
	if t.ID == 0 {
		t.ID = int64(len(s.terms) + 1)
	}
	s.terms = append(s.terms, t)
	return t
}

func (s *Store) List(_ context.Context) ([]term.Term, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]term.Term(nil), s.terms...), nil
}

// ---- relationships ----

// UpdateReference writes ref once; repeating it matches the existing edge.
func (s *Store) UpdateReference(_ context.Context, ref record.Reference) (record.Changes, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	o, err := term.Orient(ref, s.terms)
	if err != nil {
		return record.Changes{}, err
	}
	for _, it := range []record.Item{o.Source, o.Target} {
		e, ok := s.entities[it.ID]
		if !ok || e.Type != it.Type {
			return record.Changes{}, fmt.Errorf("%s %d: %w", it.Type, it.ID, record.ErrNotFound)
		}
	}
	k := edgeKey{src: o.Source.ID, tgt: o.Target.ID, term: o.Term.ID}
	if _, ok := s.edges[k]; ok {
		return record.Changes{Matched: 1}, nil
	}
	s.edges[k] = Edge{SrcID: k.src, TargetID: k.tgt, TermID: k.term, Label: o.Term.LabelID}
	s.edgeSeq = append(s.edgeSeq, k)
	return record.Changes{Created: 1}, nil
}

// Edges returns every relationship in insertion order.
func (s *Store) Edges() []Edge {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]Edge, 0, len(s.edgeSeq))
	for _, k := range s.edgeSeq {
		out = append(out, s.edges[k])
	}
	return out
}

// ---- entities ----

// Stores returns a per-type view for every entity type.
func (s *Store) Stores() record.Stores {
	out := make(record.Stores, len(record.Types))
	for _, t := range record.Types {
		out[t] = entityStore{s: s, t: t}
	}
	return out
}

// Put stores rec as an existing entity and returns its id.
func (s *Store) Put(rec record.Record) int64 {
	s.mu.Lock()
	defer s.mu.Unlock()
	if rec.ID == 0 {
		s.nextID++
		rec.ID = s.nextID
	} else if rec.ID > s.nextID {
		s.nextID = rec.ID
	}
	rec.Fields = rec.Fields.Clone()
	s.entities[rec.ID] = rec
	return rec.ID
}

// Entities returns the stored entities of type t ordered by id.
func (s *Store) Entities(t record.Type) []record.Record {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []record.Record
	for _, e := range s.entities {
		if e.Type == t {
			out = append(out, e)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out
}

type entityStore struct {
	s *Store
	t record.Type
}

func (es entityStore) LoadUnpopulated(_ context.Context, id int64) (record.Record, error) {
	es.s.mu.Lock()
	defer es.s.mu.Unlock()
	e, ok := es.s.entities[id]
	if !ok || e.Type != es.t {
		return record.Record{}, fmt.Errorf("%s %d: %w", es.t, id, record.ErrNotFound)
	}
	e.Fields = e.Fields.Clone()
	return e, nil
}

func (es entityStore) Load(ctx context.Context, id int64) (record.Record, error) {
	e, err := es.LoadUnpopulated(ctx, id)
	if err != nil {
		return record.Record{}, err
	}
	es.s.mu.Lock()
	defer es.s.mu.Unlock()
	labels := make(map[int64]term.Term, len(es.s.terms))
	for _, t := range es.s.terms {
		labels[t.ID] = t
	}
	for _, k := range es.s.edgeSeq {
		edge := es.s.edges[k]
		switch id {
		case edge.SrcID:
			e.Related = append(e.Related, record.Related{
				ID: edge.TargetID, Type: es.s.entities[edge.TargetID].Type, TermLabel: labels[edge.TermID].LabelID, Outgoing: true,
			})
		case edge.TargetID:
			label := labels[edge.TermID].InverseLabelID
			if label == "" {
				label = labels[edge.TermID].LabelID
			}
			e.Related = append(e.Related, record.Related{
				ID: edge.SrcID, Type: es.s.entities[edge.SrcID].Type, TermLabel: label,
			})
		}
	}
	return e, nil
}

func (es entityStore) Save(_ context.Context, rec record.Record, _ string) (record.SaveResult, error) {
	if errs := record.ValidateForSave(rec, es.t); len(errs) > 0 {
		return record.SaveResult{Status: false, Data: rec, Errors: errs}, nil
	}
	es.s.mu.Lock()
	defer es.s.mu.Unlock()
	if rec.ID > 0 {
		existing, ok := es.s.entities[rec.ID]
		if !ok || existing.Type != es.t {
			return record.SaveResult{Status: false, Data: rec, Errors: []string{fmt.Sprintf("%s %d not found", es.t, rec.ID)}}, nil
		}
	} else {
		es.s.nextID++
		rec.ID = es.s.nextID
	}
	stored := record.Record{Type: es.t, ID: rec.ID, Fields: rec.Fields.Clone()}
	es.s.entities[rec.ID] = stored
	out := stored
	out.Fields = stored.Fields.Clone()
	return record.SaveResult{Status: true, Data: out}, nil
}
