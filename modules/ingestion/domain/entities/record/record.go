package record

import "slices"

// CustomRefID tags records synthesized by the pipeline rather than produced by a rule.
const CustomRefID = "custom"

// RawRow is one source row. Key is the row's position in the source file;
// the header row has key 0.
type RawRow struct {
	Key   int
	Cells []any
}

func (r RawRow) Cell(i int) any {
	if i < 0 || i >= len(r.Cells) {
		return nil
	}
	return r.Cells[i]
}

// DateRange is the normalized form of a free-text date.
type DateRange struct {
	StartDate string `json:"startDate"`
	EndDate   string `json:"endDate"`
	Label     string `json:"label"`
}

func (d DateRange) IsZero() bool {
	return d.StartDate == "" && d.EndDate == "" && d.Label == ""
}

// Record is an entity moving through the pipeline. A provisional record carries
// the single Row it came from; after deduplication Rows holds every
// contributing source row. ID is zero until the record is persisted or matched
// to an existing one.
type Record struct {
	Type    Type
	ID      int64
	RefID   string
	Row     int
	Rows    []int
	Fields  Fields
	Related []Related
}

func (r Record) Label() string { return r.Fields.Text(FieldLabel) }

func (r Record) Persisted() bool { return r.ID > 0 }

// HasRow reports whether row contributed to the record.
func (r Record) HasRow(row int) bool {
	if len(r.Rows) == 0 {
		return r.Row == row
	}
	return slices.Contains(r.Rows, row)
}

// Buckets groups records by entity type.
type Buckets map[Type][]Record

func (b Buckets) Total() int {
	n := 0
	for _, items := range b {
		n += len(items)
	}
	return n
}

// Flatten returns every record in persistence order.
func (b Buckets) Flatten() []Record {
	out := make([]Record, 0, b.Total())
	for _, t := range Types {
		out = append(out, b[t]...)
	}
	return out
}

// Counts returns the number of records per bucket name.
func (b Buckets) Counts() map[string]int {
	out := make(map[string]int, len(Types))
	for _, t := range Types {
		out[t.Bucket()] = len(b[t])
	}
	return out
}
