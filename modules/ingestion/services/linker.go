package services

import (
	"context"
	"errors"
	"strconv"

	"github.com/sirupsen/logrus"

	"github.com/stavrosangelis/clericus-neo4j-sub002/modules/ingestion/domain/aggregates/importplan"
	"github.com/stavrosangelis/clericus-neo4j-sub002/modules/ingestion/domain/entities/record"
)

type LinkStats struct {
	Emitted int
	Created int
	Matched int
	Failed  int
}

// Linker writes the relationships between persisted records. Two records are
// candidates for a template when they came from at least one common row.
type Linker struct {
	refs          record.ReferenceStore
	progressEvery int
	log           *logrus.Entry
	m             *metrics
}

func NewLinker(refs record.ReferenceStore, progressEvery int, log *logrus.Entry) *Linker {
	if progressEvery < 1 {
		progressEvery = 100
	}
	if log == nil {
		log = logrusNop()
	}
	return &Linker{refs: refs, progressEvery: progressEvery, log: log, m: getMetrics()}
}

// LinkEntities emits one reference per template match plus an isRelatedTo
// edge from every record to the import document, when there is one. Progress
// continues from the half-way mark the persistence phase stopped at. Failed
// writes become warnings; only cancellation aborts.
func (l *Linker) LinkEntities(ctx context.Context, run *Run, persisted record.Buckets, templates []importplan.RelationTemplate) (LinkStats, error) {
	var all []record.Record
	for _, r := range persisted.Flatten() {
		if r.Persisted() {
			all = append(all, r)
		}
	}
	total := len(all)

	byRow := make(map[int][]int)
	doc := -1
	for i, r := range all {
		if r.RefID == record.CustomRefID && doc < 0 {
			doc = i
		}
		for _, row := range rowsOf(r) {
			byRow[row] = append(byRow[row], i)
		}
	}

	var stats LinkStats
	emitted := make(map[string]struct{})
	emit := func(src, tgt record.Record, srcType, tgtType record.Type, label string) error {
		key := strconv.FormatInt(src.ID, 10) + "|" + strconv.FormatInt(tgt.ID, 10) + "|" + label
		if _, ok := emitted[key]; ok {
			return nil
		}
		emitted[key] = struct{}{}
		stats.Emitted++

		ref := record.Reference{
			Items: [2]record.Item{
				{ID: src.ID, Type: srcType},
				{ID: tgt.ID, Type: tgtType},
			},
			TermLabel: label,
		}
		changes, err := l.refs.UpdateReference(ctx, ref)
		if err != nil {
			if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
				return err
			}
			stats.Failed++
			l.m.referencesTotal.WithLabelValues("failed").Inc()
			if run != nil {
				run.Warn(logrus.Fields{"src_id": src.ID, "target_id": tgt.ID, "term": label},
					"relationship %s %d -> %s %d (%s): %v", srcType, src.ID, tgtType, tgt.ID, label, err)
			}
			return nil
		}
		if changes.Created > 0 {
			stats.Created++
			l.m.referencesTotal.WithLabelValues("created").Inc()
		} else {
			stats.Matched++
			l.m.referencesTotal.WithLabelValues("matched").Inc()
		}
		return nil
	}

	for i, e := range all {
		if err := ctx.Err(); err != nil {
			return stats, err
		}
		related := coRowRecords(i, e, byRow)

		for _, t := range templates {
			if t.SrcID == e.RefID {
				for _, j := range related {
					if all[j].RefID == t.TargetID {
						if err := emit(e, all[j], t.SrcType, t.TargetType, t.RelationLabel); err != nil {
							return stats, err
						}
					}
				}
			}
			if t.TargetID == e.RefID {
				for _, j := range related {
					if all[j].RefID == t.SrcID {
						if err := emit(all[j], e, t.SrcType, t.TargetType, t.RelationLabel); err != nil {
							return stats, err
						}
					}
				}
			}
		}

		if doc >= 0 && i != doc {
			if err := emit(e, all[doc], e.Type, all[doc].Type, RelatedToLabel); err != nil {
				return stats, err
			}
		}

		if run != nil && (i+1)%l.progressEvery == 0 {
			run.Report(ctx, percent(total+i+1, total))
		}
	}

	l.log.WithFields(logrus.Fields{
		"emitted": stats.Emitted,
		"created": stats.Created,
		"matched": stats.Matched,
		"failed":  stats.Failed,
	}).Info("ingestion: relationships linked")
	return stats, nil
}

func rowsOf(r record.Record) []int {
	if len(r.Rows) > 0 {
		return r.Rows
	}
	return []int{r.Row}
}

// coRowRecords lists, once each, the records other than i sharing a row with e.
func coRowRecords(i int, e record.Record, byRow map[int][]int) []int {
	seen := map[int]struct{}{i: {}}
	var out []int
	for _, row := range rowsOf(e) {
		for _, j := range byRow[row] {
			if _, ok := seen[j]; ok {
				continue
			}
			seen[j] = struct{}{}
			out = append(out, j)
		}
	}
	return out
}
