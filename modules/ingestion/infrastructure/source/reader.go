// Package source reads tabular upload files into raw rows. Row keys are the
// row's position in the file, so the header row is key 0.
package source

import (
	"context"
	"fmt"
	"path/filepath"

	"github.com/sirupsen/logrus"

	"github.com/stavrosangelis/clericus-neo4j-sub002/modules/ingestion/domain/entities/record"
)

const checkEvery = 500

type Reader struct {
	baseDir string
	log     *logrus.Entry
}

// NewReader resolves relative paths against baseDir.
func NewReader(baseDir string, log *logrus.Entry) *Reader {
	if log == nil {
		l := logrus.New()
		l.SetLevel(logrus.PanicLevel)
		log = logrus.NewEntry(l)
	}
	return &Reader{baseDir: baseDir, log: log}
}

func (r *Reader) resolve(path string) string {
	if filepath.IsAbs(path) || r.baseDir == "" {
		return path
	}
	return filepath.Join(r.baseDir, path)
}

// Each streams rows to fn in file order.
func (r *Reader) Each(ctx context.Context, path string, fn func(record.RawRow) error) error {
	full := r.resolve(path)
	format, err := DetectFormat(full)
	if err != nil {
		return fmt.Errorf("source %s: %w", filepath.Base(full), err)
	}
	r.log.WithFields(logrus.Fields{"path": full, "format": format}).Debug("source: reading")

	switch format {
	case FormatCSV:
		err = eachCSV(ctx, full, fn)
	case FormatXLSX:
		err = eachXLSX(ctx, full, fn)
	default:
		err = ErrUnsupportedFormat
	}
	if err != nil {
		return fmt.Errorf("source %s: %w", filepath.Base(full), err)
	}
	return nil
}

// Read collects every row, header included.
func (r *Reader) Read(ctx context.Context, path string) ([]record.RawRow, error) {
	var rows []record.RawRow
	err := r.Each(ctx, path, func(row record.RawRow) error {
		rows = append(rows, row)
		return nil
	})
	if err != nil {
		return nil, err
	}
	return rows, nil
}
