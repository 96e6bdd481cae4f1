package services

import (
	"strconv"
	"strings"

	"github.com/stavrosangelis/clericus-neo4j-sub002/modules/ingestion/domain/aggregates/importplan"
	"github.com/stavrosangelis/clericus-neo4j-sub002/modules/ingestion/domain/entities/record"
)

// KeyFunc returns the identity of a record within its type. Records with equal
// keys are the same entity.
type KeyFunc func(record.Record) string

func joinKey(parts ...string) string { return strings.Join(parts, "\x1f") }

func idKey(r record.Record) string { return strconv.FormatInt(r.ID, 10) }

// keyFuncs holds the per-type identity. Events need their related spatials and
// temporals and are handled by DedupEvents; people are not deduplicated here.
var keyFuncs = map[record.Type]KeyFunc{
	record.TypeOrganisation: func(r record.Record) string {
		return joinKey(idKey(r), r.Label(), r.Fields.Text("organisationType"))
	},
	record.TypeResource: func(r record.Record) string {
		return joinKey(idKey(r), r.Label(), r.Fields.Text("resourceType"))
	},
	record.TypeSpatial:  func(r record.Record) string { return r.Label() },
	record.TypeTemporal: func(r record.Record) string { return r.Label() },
}

// dedupBy collapses records with equal keys into the first one seen, which
// collects every contributing row. Header rows are dropped.
func dedupBy(items []record.Record, key KeyFunc) []record.Record {
	out := make([]record.Record, 0, len(items))
	index := make(map[string]int, len(items))
	for _, it := range items {
		if it.Row == 0 {
			continue
		}
		k := key(it)
		if i, ok := index[k]; ok {
			out[i].Rows = appendRow(out[i].Rows, it.Row)
			continue
		}
		it.Rows = []int{it.Row}
		index[k] = len(out)
		out = append(out, it)
	}
	return out
}

func appendRow(rows []int, row int) []int {
	for _, r := range rows {
		if r == row {
			return rows
		}
	}
	return append(rows, row)
}

func DedupOrganisations(items []record.Record) []record.Record {
	return dedupBy(items, keyFuncs[record.TypeOrganisation])
}

func DedupResources(items []record.Record) []record.Record {
	return dedupBy(items, keyFuncs[record.TypeResource])
}

func DedupSpatials(items []record.Record) []record.Record {
	return dedupBy(items, keyFuncs[record.TypeSpatial])
}

func DedupTemporals(items []record.Record) []record.Record {
	return dedupBy(items, keyFuncs[record.TypeTemporal])
}

// DedupPeople only drops header rows and seeds Rows. People are never merged
// here; identity resolution is left to a later disambiguation step.
func DedupPeople(items []record.Record) []record.Record {
	out := make([]record.Record, 0, len(items))
	for _, it := range items {
		if it.Row == 0 {
			continue
		}
		it.Rows = []int{it.Row}
		out = append(out, it)
	}
	return out
}

type eventContext struct {
	spatial  string
	temporal string
}

// DedupEvents merges events with the same label and eventType that also share
// the label of their related spatial or of their related temporal. spatials
// and temporals must already be deduplicated.
func DedupEvents(items, spatials, temporals []record.Record, templates []importplan.RelationTemplate) []record.Record {
	out := make([]record.Record, 0, len(items))
	ctxs := make([]eventContext, 0, len(items))
	candidates := make(map[string][]int)

	for _, it := range items {
		if it.Row == 0 {
			continue
		}
		ec := relatedContext(it, spatials, temporals, templates)
		k := joinKey(it.Label(), it.Fields.Text("eventType"))

		merged := false
		for _, i := range candidates[k] {
			if sameContext(ctxs[i], ec) {
				out[i].Rows = appendRow(out[i].Rows, it.Row)
				merged = true
				break
			}
		}
		if merged {
			continue
		}
		it.Rows = []int{it.Row}
		candidates[k] = append(candidates[k], len(out))
		out = append(out, it)
		ctxs = append(ctxs, ec)
	}
	return out
}

func sameContext(a, b eventContext) bool {
	if a.spatial != "" && a.spatial == b.spatial {
		return true
	}
	return a.temporal != "" && a.temporal == b.temporal
}

// relatedContext finds the labels of the first spatial and the first temporal
// that a relation template ties to ev and that share ev's row.
func relatedContext(ev record.Record, spatials, temporals []record.Record, templates []importplan.RelationTemplate) eventContext {
	spatialRefs := map[string]struct{}{}
	temporalRefs := map[string]struct{}{}
	for _, t := range templates {
		ref, typ, ok := t.Counterpart(ev.RefID)
		if !ok {
			continue
		}
		switch typ {
		case record.TypeSpatial:
			spatialRefs[ref] = struct{}{}
		case record.TypeTemporal:
			temporalRefs[ref] = struct{}{}
		}
	}
	return eventContext{
		spatial:  firstRelatedLabel(ev.Row, spatials, spatialRefs),
		temporal: firstRelatedLabel(ev.Row, temporals, temporalRefs),
	}
}

func firstRelatedLabel(row int, items []record.Record, refs map[string]struct{}) string {
	if len(refs) == 0 {
		return ""
	}
	for _, it := range items {
		if _, ok := refs[it.RefID]; ok && it.HasRow(row) {
			return it.Label()
		}
	}
	return ""
}

// Dedup runs every per-type deduplication. Spatials and temporals go first
// because event identity depends on them.
func Dedup(b record.Buckets, templates []importplan.RelationTemplate) record.Buckets {
	out := make(record.Buckets, len(record.Types))
	out[record.TypeSpatial] = DedupSpatials(b[record.TypeSpatial])
	out[record.TypeTemporal] = DedupTemporals(b[record.TypeTemporal])
	out[record.TypeOrganisation] = DedupOrganisations(b[record.TypeOrganisation])
	out[record.TypeResource] = DedupResources(b[record.TypeResource])
	out[record.TypePerson] = DedupPeople(b[record.TypePerson])
	out[record.TypeEvent] = DedupEvents(b[record.TypeEvent], out[record.TypeSpatial], out[record.TypeTemporal], templates)
	return out
}
