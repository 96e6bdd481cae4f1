package importrule

import (
	"encoding/json"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/require"
	"gopkg.in/yaml.v3"

	"github.com/stavrosangelis/clericus-neo4j-sub002/modules/ingestion/domain/entities/record"
)

func TestColumnIndex_AcceptsNumberAndString(t *testing.T) {
	var cols []ColumnRule
	err := json.Unmarshal([]byte(`[
		{"property":"firstName","value":0},
		{"property":"lastName","value":"1"},
		{"property":"note","value":-1,"custom":true,"customValue":"x"},
		{"property":"empty","value":""}
	]`), &cols)
	require.NoError(t, err)
	require.Equal(t, ColumnIndex(0), cols[0].Value)
	require.Equal(t, ColumnIndex(1), cols[1].Value)
	require.Equal(t, NoColumn, cols[2].Value)
	require.Equal(t, NoColumn, cols[3].Value)
}

func TestColumnIndex_RejectsGarbage(t *testing.T) {
	var c ColumnRule
	require.Error(t, json.Unmarshal([]byte(`{"value":"abc"}`), &c))
	require.Error(t, json.Unmarshal([]byte(`{"value":1.5}`), &c))
}

func TestColumnIndex_YAML(t *testing.T) {
	var cols []ColumnRule
	require.NoError(t, yaml.Unmarshal([]byte("- property: label\n  value: 2\n- property: type\n  value: \"3\"\n"), &cols))
	require.Equal(t, ColumnIndex(2), cols[0].Value)
	require.Equal(t, ColumnIndex(3), cols[1].Value)
}

func TestColumnRule_MissingValueMeansNoColumn(t *testing.T) {
	var c ColumnRule
	require.NoError(t, json.Unmarshal([]byte(`{"property":"note","type":"string"}`), &c))
	require.Equal(t, NoColumn, c.Value)
	require.Equal(t, "note", c.Property)

	var nested ColumnRule
	require.NoError(t, json.Unmarshal([]byte(`{"property":"alt","children":[{"property":"label"},{"property":"lang","value":3}]}`), &nested))
	require.Equal(t, NoColumn, nested.Value)
	require.Equal(t, NoColumn, nested.Children[0].Value)
	require.Equal(t, ColumnIndex(3), nested.Children[1].Value)

	var cols []ColumnRule
	require.NoError(t, yaml.Unmarshal([]byte("- property: note\n  type: string\n- property: label\n  value: 0\n"), &cols))
	require.Equal(t, NoColumn, cols[0].Value)
	require.Equal(t, ColumnIndex(0), cols[1].Value)
}

func TestDecode_StampsRefID(t *testing.T) {
	planID := uuid.New()
	created := time.Date(2024, 3, 1, 10, 0, 0, 0, time.UTC)
	ir, err := New(planID, Rule{
		EntityType: "Person",
		Columns:    []ColumnRule{{Property: "firstName", Value: 0}},
	}, created)
	require.NoError(t, err)

	r, err := ir.Decode()
	require.NoError(t, err)
	require.Equal(t, ir.ID.String(), r.RefID)
	require.Equal(t, SchemaVersion, r.SchemaVersion)
	typ, ok := r.Type()
	require.True(t, ok)
	require.Equal(t, record.TypePerson, typ)
	require.True(t, r.CreatedAt.Equal(created))
}

func TestDecode_RejectsNewerSchema(t *testing.T) {
	ir := ImportRule{ID: uuid.New(), Rule: json.RawMessage(`{"schemaVersion":2,"entityType":"Event","columns":[]}`)}
	_, err := ir.Decode()
	require.ErrorIs(t, err, ErrUnsupportedSchema)
}

func TestDecode_Empty(t *testing.T) {
	_, err := ImportRule{ID: uuid.New()}.Decode()
	require.ErrorIs(t, err, ErrEmptyRule)
}

func TestDecode_NestedChildren(t *testing.T) {
	ir := ImportRule{ID: uuid.New(), Rule: json.RawMessage(`{
		"entityType":"Person",
		"columns":[{"property":"alternateAppelation","value":-1,"children":[
			{"property":"firstName","value":"4"},
			{"property":"lang","value":-1,"custom":true,"customValue":"en"}
		]}]
	}`)}
	r, err := ir.Decode()
	require.NoError(t, err)
	require.Len(t, r.Columns, 1)
	require.True(t, r.Columns[0].IsComposite())
	require.Equal(t, ColumnIndex(4), r.Columns[0].Children[0].Value)
}
