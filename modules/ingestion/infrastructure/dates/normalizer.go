// Package dates turns the free-text dates found in archival spreadsheets into
// dd-mm-yyyy ranges.
package dates

import (
	"regexp"
	"strconv"
	"strings"
	"time"

	"github.com/stavrosangelis/clericus-neo4j-sub002/modules/ingestion/domain/entities/record"
)

const outLayout = "02-01-2006"

type precision int

const (
	day precision = iota
	month
	year
)

type layout struct {
	layout string
	prec   precision
}

var layouts = []layout{
	{"02-01-2006", day},
	{"2-1-2006", day},
	{"02/01/2006", day},
	{"2/1/2006", day},
	{"02.01.2006", day},
	{"2.1.2006", day},
	{"2006-01-02", day},
	{"2 January 2006", day},
	{"2 Jan 2006", day},
	{"January 2, 2006", day},
	{"01-2006", month},
	{"1-2006", month},
	{"01/2006", month},
	{"1/2006", month},
	{"2006-01", month},
	{"January 2006", month},
	{"Jan 2006", month},
}

var (
	yearOnly  = regexp.MustCompile(`^\d{3,4}$`)
	rangeSeps = regexp.MustCompile(`\s+to\s+|\s*–\s*|\s*-\s*`)
	spaces    = regexp.MustCompile(`\s+`)
)

// Normalizer parses single dates and ranges.
type Normalizer struct{}

func New() *Normalizer { return &Normalizer{} }

// Parse returns the zero DateRange when raw is not a recognizable date.
func (n *Normalizer) Parse(raw string) record.DateRange {
	label := strings.TrimSpace(raw)
	if label == "" {
		return record.DateRange{}
	}
	clean := spaces.ReplaceAllString(label, " ")

	if start, end, ok := parseSingle(clean); ok {
		return record.DateRange{StartDate: start, EndDate: end, Label: label}
	}

	// Hyphens are also date separators, so try every split point and keep the
	// first one where both halves parse.
	for _, loc := range rangeSeps.FindAllStringIndex(clean, -1) {
		left, right := strings.TrimSpace(clean[:loc[0]]), strings.TrimSpace(clean[loc[1]:])
		if left == "" || right == "" {
			continue
		}
		ls, _, okL := parseSingle(left)
		_, re, okR := parseSingle(right)
		if okL && okR {
			return record.DateRange{StartDate: ls, EndDate: re, Label: label}
		}
	}
	return record.DateRange{}
}

// parseSingle returns the first and last day covered by s.
func parseSingle(s string) (string, string, bool) {
	if yearOnly.MatchString(s) {
		y, _ := strconv.Atoi(s)
		start := time.Date(y, time.January, 1, 0, 0, 0, 0, time.UTC)
		end := time.Date(y, time.December, 31, 0, 0, 0, 0, time.UTC)
		return format(start), format(end), true
	}
	for _, l := range layouts {
		t, err := time.Parse(l.layout, s)
		if err != nil {
			continue
		}
		switch l.prec {
		case month:
			end := t.AddDate(0, 1, -1)
			return format(t), format(end), true
		default:
			return format(t), format(t), true
		}
	}
	return "", "", false
}

func format(t time.Time) string {
	return t.Format(outLayout)
}
