package source

import (
	"bufio"
	"context"
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"os"

	"github.com/stavrosangelis/clericus-neo4j-sub002/modules/ingestion/domain/entities/record"
)

func eachCSV(ctx context.Context, path string, fn func(record.RawRow) error) error {
	f, err := os.Open(path)
	if err != nil {
		return err
	}
	defer f.Close()

	r := csv.NewReader(stripUTF8BOM(bufio.NewReader(f)))
	r.FieldsPerRecord = -1
	r.LazyQuotes = true
	r.ReuseRecord = true

	for key := 0; ; key++ {
		if key%checkEvery == 0 {
			if err := ctx.Err(); err != nil {
				return err
			}
		}
		raw, err := r.Read()
		if errors.Is(err, io.EOF) {
			return nil
		}
		if err != nil {
			return fmt.Errorf("csv row %d: %w", key, err)
		}
		if err := fn(record.RawRow{Key: key, Cells: coerceRow(raw)}); err != nil {
			return err
		}
	}
}

func stripUTF8BOM(r *bufio.Reader) *bufio.Reader {
	b, err := r.Peek(3)
	if err == nil && len(b) == 3 && b[0] == 0xEF && b[1] == 0xBB && b[2] == 0xBF {
		_, _ = r.Discard(3)
	}
	return r
}
