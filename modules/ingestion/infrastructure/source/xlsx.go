package source

import (
	"context"
	"errors"
	"fmt"

	"github.com/xuri/excelize/v2"

	"github.com/stavrosangelis/clericus-neo4j-sub002/modules/ingestion/domain/entities/record"
)

var ErrNoSheets = errors.New("workbook has no sheets")

// eachXLSX reads the first sheet fully into memory before emitting rows.
func eachXLSX(ctx context.Context, path string, fn func(record.RawRow) error) error {
	f, err := excelize.OpenFile(path)
	if err != nil {
		return fmt.Errorf("open workbook: %w", err)
	}
	defer func() { _ = f.Close() }()

	sheets := f.GetSheetList()
	if len(sheets) == 0 {
		return ErrNoSheets
	}
	rows, err := f.GetRows(sheets[0], excelize.Options{RawCellValue: true})
	if err != nil {
		return fmt.Errorf("read sheet %q: %w", sheets[0], err)
	}

	for key, raw := range rows {
		if key%checkEvery == 0 {
			if err := ctx.Err(); err != nil {
				return err
			}
		}
		if err := fn(record.RawRow{Key: key, Cells: coerceRow(raw)}); err != nil {
			return err
		}
	}
	return nil
}
