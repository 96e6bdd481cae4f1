package main

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"strings"
	"time"

	"github.com/google/uuid"
	"gopkg.in/yaml.v3"

	"github.com/stavrosangelis/clericus-neo4j-sub002/modules/ingestion/domain/aggregates/importplan"
	"github.com/stavrosangelis/clericus-neo4j-sub002/modules/ingestion/domain/entities/importrule"
	"github.com/stavrosangelis/clericus-neo4j-sub002/modules/ingestion/domain/entities/record"
	"github.com/stavrosangelis/clericus-neo4j-sub002/modules/ingestion/domain/entities/term"
)

// planFile is the YAML form of an import plan. Relations name rules by their
// key; the keys are replaced with rule ids when the plan is built.
type planFile struct {
	Label     string         `yaml:"label" validate:"required"`
	File      string         `yaml:"file" validate:"required"`
	Columns   []string       `yaml:"columns"`
	Terms     []planTerm     `yaml:"terms" validate:"dive"`
	Rules     []planRule     `yaml:"rules" validate:"required,min=1,dive"`
	Relations []planRelation `yaml:"relations" validate:"dive"`
}

type planTerm struct {
	Label          string `yaml:"label" validate:"required"`
	LabelID        string `yaml:"labelId" validate:"required"`
	InverseLabel   string `yaml:"inverseLabel"`
	InverseLabelID string `yaml:"inverseLabelId"`
}

type planRule struct {
	Key             string `yaml:"key" validate:"required"`
	importrule.Rule `yaml:",inline"`
}

type planRelation struct {
	RelationLabel string      `yaml:"relationLabel" validate:"required"`
	Src           string      `yaml:"src" validate:"required"`
	SrcType       record.Type `yaml:"srcType"`
	Target        string      `yaml:"target" validate:"required"`
	TargetType    record.Type `yaml:"targetType"`
}

// builtPlan is a validated plan file turned into domain values.
type builtPlan struct {
	Plan  importplan.ImportPlan
	Rules []importrule.ImportRule
	Terms []term.Term
}

func parsePlanFile(r io.Reader) (planFile, error) {
	var pf planFile
	dec := yaml.NewDecoder(r)
	dec.KnownFields(true)
	if err := dec.Decode(&pf); err != nil {
		if errors.Is(err, io.EOF) {
			return planFile{}, errors.New("plan file is empty")
		}
		return planFile{}, fmt.Errorf("decode plan file: %w", err)
	}
	if err := importplan.Validator().Struct(pf); err != nil {
		return planFile{}, fmt.Errorf("plan file: %w", err)
	}
	return pf, nil
}

func parsePlanBytes(b []byte) (planFile, error) {
	return parsePlanFile(bytes.NewReader(b))
}

// build resolves rule keys into ids. Rules are stamped a millisecond apart
// from now so their stored order follows the file.
func (pf planFile) build(now time.Time) (builtPlan, error) {
	ids := make(map[string]string, len(pf.Rules))
	types := make(map[string]record.Type, len(pf.Rules))
	rules := make([]importrule.ImportRule, 0, len(pf.Rules))
	for i, pr := range pf.Rules {
		key := strings.TrimSpace(pr.Key)
		if _, dup := ids[key]; dup {
			return builtPlan{}, fmt.Errorf("rule key %q is used twice", key)
		}
		t, ok := pr.Rule.Type()
		if !ok {
			return builtPlan{}, fmt.Errorf("rule %q: unknown entity type %q", key, pr.EntityType)
		}
		ir, err := importrule.New(uuid.Nil, pr.Rule, now.Add(time.Duration(i)*time.Millisecond))
		if err != nil {
			return builtPlan{}, fmt.Errorf("rule %q: %w", key, err)
		}
		ids[key] = ir.ID.String()
		types[key] = t
		rules = append(rules, ir)
	}

	templates := make([]importplan.RelationTemplate, 0, len(pf.Relations))
	for _, rel := range pf.Relations {
		src, srcType, err := resolveRef(rel.Src, rel.SrcType, ids, types)
		if err != nil {
			return builtPlan{}, fmt.Errorf("relation %q: %w", rel.RelationLabel, err)
		}
		tgt, tgtType, err := resolveRef(rel.Target, rel.TargetType, ids, types)
		if err != nil {
			return builtPlan{}, fmt.Errorf("relation %q: %w", rel.RelationLabel, err)
		}
		templates = append(templates, importplan.RelationTemplate{
			RelationLabel: rel.RelationLabel,
			SrcID:         src,
			SrcType:       srcType,
			TargetID:      tgt,
			TargetType:    tgtType,
		})
	}

	plan, err := importplan.New(pf.Label, pf.File, pf.Columns, templates)
	if err != nil {
		return builtPlan{}, err
	}
	for i := range rules {
		rules[i].ImportPlanID = plan.ID()
	}

	terms := make([]term.Term, 0, len(pf.Terms))
	for _, t := range pf.Terms {
		terms = append(terms, term.Term{
			Label:          t.Label,
			LabelID:        t.LabelID,
			InverseLabel:   t.InverseLabel,
			InverseLabelID: t.InverseLabelID,
		})
	}
	return builtPlan{Plan: plan, Rules: rules, Terms: terms}, nil
}

// resolveRef maps a rule key to its id and entity type. The custom ref is the
// import document, a Resource.
func resolveRef(key string, declared record.Type, ids map[string]string, types map[string]record.Type) (string, record.Type, error) {
	key = strings.TrimSpace(key)
	if key == record.CustomRefID {
		if declared == record.TypeUnknown {
			declared = record.TypeResource
		}
		return key, declared, nil
	}
	id, ok := ids[key]
	if !ok {
		return "", record.TypeUnknown, fmt.Errorf("unknown rule key %q", key)
	}
	t := types[key]
	if declared != record.TypeUnknown && declared != t {
		return "", record.TypeUnknown, fmt.Errorf("rule %q is a %s, not a %s", key, t, declared)
	}
	return id, t, nil
}
