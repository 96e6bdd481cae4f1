package services

import (
	"context"
	"fmt"

	"github.com/sirupsen/logrus"
	"golang.org/x/sync/errgroup"

	"github.com/stavrosangelis/clericus-neo4j-sub002/modules/ingestion/domain/entities/importrule"
	"github.com/stavrosangelis/clericus-neo4j-sub002/modules/ingestion/domain/entities/record"
)

// Dispatcher routes each import rule to the parser and buckets the results by
// entity type. Rules are independent, so they are parsed concurrently; the
// buckets keep rule order.
type Dispatcher struct {
	parser  *Parser
	workers int
	log     *logrus.Entry
}

func NewDispatcher(parser *Parser, workers int, log *logrus.Entry) *Dispatcher {
	if workers < 1 {
		workers = 1
	}
	if log == nil {
		log = logrusNop()
	}
	return &Dispatcher{parser: parser, workers: workers, log: log}
}

type decodedRule struct {
	rule importrule.Rule
	typ  record.Type
}

func (d *Dispatcher) ParseRules(ctx context.Context, rules []importrule.ImportRule, rows []record.RawRow, warn *Warnings) (record.Buckets, error) {
	decoded := make([]decodedRule, 0, len(rules))
	for _, ir := range rules {
		r, err := ir.Decode()
		if err != nil {
			return nil, err
		}
		t, ok := r.Type()
		if !ok {
			d.log.WithFields(logrus.Fields{"rule_id": r.RefID, "entity_type": r.EntityType}).Debug("ingestion: skipping rule with unknown entity type")
			continue
		}
		decoded = append(decoded, decodedRule{rule: r, typ: t})
	}

	results := make([][]record.Record, len(decoded))
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(d.workers)
	for i, dr := range decoded {
		g.Go(func() (err error) {
			// A worker panic fails its rule, not the process.
			defer func() {
				if r := recover(); r != nil {
					err = fmt.Errorf("rule %s panicked: %v", dr.rule.RefID, r)
				}
			}()
			recs, err := d.parser.ParseEntities(gctx, dr.typ, dr.rule, rows, warn)
			if err != nil {
				return err
			}
			results[i] = recs
			d.log.WithFields(logrus.Fields{
				"rule_id":     dr.rule.RefID,
				"entity_type": dr.typ.String(),
				"records":     len(recs),
			}).Debug("ingestion: rule parsed")
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}

	out := make(record.Buckets, len(record.Types))
	for i, dr := range decoded {
		out[dr.typ] = append(out[dr.typ], results[i]...)
	}
	return out, nil
}
