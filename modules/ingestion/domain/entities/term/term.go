package term

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"strings"

	"github.com/lithammer/fuzzysearch/fuzzy"

	"github.com/stavrosangelis/clericus-neo4j-sub002/modules/ingestion/domain/entities/record"
)

var ErrUnknownTerm = errors.New("unknown taxonomy term")

// Term is a relation label. A reference may name either direction: LabelID
// reads source to target, InverseLabelID reads target to source.
type Term struct {
	ID             int64
	Label          string
	LabelID        string
	InverseLabel   string
	InverseLabelID string
}

type Repository interface {
	List(ctx context.Context) ([]Term, error)
}

// Oriented is a reference resolved against a term, with Source and Target in
// the term's forward direction.
type Oriented struct {
	Source  record.Item
	Target  record.Item
	Term    Term
	Inverse bool
}

// Orient resolves ref against terms. An inverse match swaps the items so the
// stored edge always follows the term's forward label.
func Orient(ref record.Reference, terms []Term) (Oriented, error) {
	if ref.TermID > 0 {
		for _, t := range terms {
			if t.ID == ref.TermID {
				return Oriented{Source: ref.Items[0], Target: ref.Items[1], Term: t}, nil
			}
		}
		return Oriented{}, fmt.Errorf("%w: id %d", ErrUnknownTerm, ref.TermID)
	}

	label := strings.TrimSpace(ref.TermLabel)
	if label == "" {
		return Oriented{}, fmt.Errorf("%w: empty label", ErrUnknownTerm)
	}
	for _, t := range terms {
		if t.LabelID == label {
			return Oriented{Source: ref.Items[0], Target: ref.Items[1], Term: t}, nil
		}
	}
	for _, t := range terms {
		if t.InverseLabelID != "" && t.InverseLabelID == label {
			return Oriented{Source: ref.Items[1], Target: ref.Items[0], Term: t, Inverse: true}, nil
		}
	}

	if hints := Suggest(label, terms, 3); len(hints) > 0 {
		return Oriented{}, fmt.Errorf("%w: %q (did you mean %s?)", ErrUnknownTerm, label, strings.Join(hints, ", "))
	}
	return Oriented{}, fmt.Errorf("%w: %q", ErrUnknownTerm, label)
}

// Suggest returns up to limit known label ids closest to label.
func Suggest(label string, terms []Term, limit int) []string {
	candidates := make([]string, 0, len(terms)*2)
	for _, t := range terms {
		if t.LabelID != "" {
			candidates = append(candidates, t.LabelID)
		}
		if t.InverseLabelID != "" {
			candidates = append(candidates, t.InverseLabelID)
		}
	}
	ranks := fuzzy.RankFindNormalizedFold(label, candidates)
	if len(ranks) == 0 {
		// Also try the other way round so that over-long labels still get hints.
		for _, c := range candidates {
			if fuzzy.MatchNormalizedFold(c, label) {
				ranks = append(ranks, fuzzy.Rank{Target: c, Distance: len(label) - len(c)})
			}
		}
	}
	sort.Sort(ranks)
	out := make([]string, 0, limit)
	for _, r := range ranks {
		if len(out) == limit {
			break
		}
		out = append(out, r.Target)
	}
	return out
}
