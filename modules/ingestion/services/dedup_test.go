package services

import (
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/stavrosangelis/clericus-neo4j-sub002/modules/ingestion/domain/aggregates/importplan"
	"github.com/stavrosangelis/clericus-neo4j-sub002/modules/ingestion/domain/entities/record"
)

func org(row int, label, orgType string) record.Record {
	return record.Record{
		Type:   record.TypeOrganisation,
		RefID:  "B",
		Row:    row,
		Fields: record.Fields{"label": label, "organisationType": orgType},
	}
}

func TestDedupOrganisations_CollectsRows(t *testing.T) {
	got := DedupOrganisations([]record.Record{
		org(2, "Dublin Diocese", "Diocese"),
		org(5, "Dublin Diocese", "Diocese"),
		org(3, "Dublin Diocese", "Parish"),
	})
	require.Len(t, got, 2)
	require.Equal(t, []int{2, 5}, got[0].Rows)
	require.Equal(t, []int{3}, got[1].Rows)
}

func TestDedup_HeaderRowDropped(t *testing.T) {
	items := []record.Record{org(0, "diocese", "type"), org(1, "Meath", "Diocese")}
	got := DedupOrganisations(items)
	require.Len(t, got, 1)
	require.Equal(t, []int{1}, got[0].Rows)

	people := DedupPeople([]record.Record{
		{Type: record.TypePerson, Row: 0, Fields: record.Fields{"firstName": "first"}},
		{Type: record.TypePerson, Row: 1, Fields: record.Fields{"firstName": "John"}},
		{Type: record.TypePerson, Row: 2, Fields: record.Fields{"firstName": "John"}},
	})
	require.Len(t, people, 2)
}

func TestDedup_InputOrderOnlyAffectsRowOrder(t *testing.T) {
	a := []record.Record{
		org(2, "Dublin Diocese", "Diocese"),
		org(4, "Meath", "Diocese"),
		org(5, "Dublin Diocese", "Diocese"),
	}
	b := []record.Record{a[2], a[1], a[0]}

	summary := func(items []record.Record) map[string][]int {
		out := map[string][]int{}
		for _, it := range DedupOrganisations(items) {
			rows := map[int]bool{}
			for _, r := range it.Rows {
				rows[r] = true
			}
			var sorted []int
			for r := 1; r <= 5; r++ {
				if rows[r] {
					sorted = append(sorted, r)
				}
			}
			out[it.Label()] = sorted
		}
		return out
	}
	require.Equal(t, summary(a), summary(b))
}

func TestDedupSpatialsAndTemporals_ByLabel(t *testing.T) {
	spatials := DedupSpatials([]record.Record{
		{Type: record.TypeSpatial, RefID: "S1", Row: 1, Fields: record.Fields{"label": "Cork"}},
		{Type: record.TypeSpatial, RefID: "S2", Row: 2, Fields: record.Fields{"label": "Cork"}},
	})
	require.Len(t, spatials, 1)
	require.Equal(t, "S1", spatials[0].RefID)
	require.Equal(t, []int{1, 2}, spatials[0].Rows)

	temporals := DedupTemporals([]record.Record{
		{Type: record.TypeTemporal, Row: 1, Fields: record.Fields{"label": "1820", "startDate": "01-01-1820"}},
		{Type: record.TypeTemporal, Row: 1, Fields: record.Fields{"label": "1820", "startDate": "01-01-1820"}},
	})
	require.Len(t, temporals, 1)
	require.Equal(t, []int{1}, temporals[0].Rows)
}

func TestDedupEvents_NeedSharedPlaceOrTime(t *testing.T) {
	templates := []importplan.RelationTemplate{
		{RelationLabel: "hasLocation", SrcID: "E", SrcType: record.TypeEvent, TargetID: "S", TargetType: record.TypeSpatial},
		{RelationLabel: "hasTime", SrcID: "E", SrcType: record.TypeEvent, TargetID: "T", TargetType: record.TypeTemporal},
	}
	ev := func(row int) record.Record {
		return record.Record{Type: record.TypeEvent, RefID: "E", Row: row, Fields: record.Fields{"label": "Ordination", "eventType": "ordination"}}
	}
	spatials := DedupSpatials([]record.Record{
		{Type: record.TypeSpatial, RefID: "S", Row: 1, Fields: record.Fields{"label": "Cork"}},
		{Type: record.TypeSpatial, RefID: "S", Row: 2, Fields: record.Fields{"label": "Cork"}},
		{Type: record.TypeSpatial, RefID: "S", Row: 3, Fields: record.Fields{"label": "Dublin"}},
	})
	temporals := DedupTemporals([]record.Record{
		{Type: record.TypeTemporal, RefID: "T", Row: 1, Fields: record.Fields{"label": "1820"}},
		{Type: record.TypeTemporal, RefID: "T", Row: 2, Fields: record.Fields{"label": "1821"}},
		{Type: record.TypeTemporal, RefID: "T", Row: 3, Fields: record.Fields{"label": "1822"}},
		{Type: record.TypeTemporal, RefID: "T", Row: 4, Fields: record.Fields{"label": "1822"}},
	})

	got := DedupEvents([]record.Record{ev(1), ev(2), ev(3), ev(4)}, spatials, temporals, templates)
	require.Len(t, got, 2)
	require.Equal(t, []int{1, 2}, got[0].Rows)
	require.Equal(t, []int{3, 4}, got[1].Rows)
}

func TestDedupEvents_NoContextNoMerge(t *testing.T) {
	items := []record.Record{
		{Type: record.TypeEvent, RefID: "E", Row: 1, Fields: record.Fields{"label": "Visit"}},
		{Type: record.TypeEvent, RefID: "E", Row: 2, Fields: record.Fields{"label": "Visit"}},
	}
	require.Len(t, DedupEvents(items, nil, nil, nil), 2)
}

func TestDedup_AllBuckets(t *testing.T) {
	in := record.Buckets{
		record.TypeOrganisation: {org(1, "Meath", "Diocese"), org(2, "Meath", "Diocese")},
		record.TypePerson: {
			{Type: record.TypePerson, Row: 1, Fields: record.Fields{"firstName": "John"}},
		},
	}
	out := Dedup(in, nil)
	require.Len(t, out[record.TypeOrganisation], 1)
	require.Len(t, out[record.TypePerson], 1)
	require.Empty(t, out[record.TypeEvent])
	require.Equal(t, []int{1}, out[record.TypePerson][0].Rows)
}
