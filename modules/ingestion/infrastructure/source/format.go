package source

import (
	"errors"
	"fmt"
	"path/filepath"
	"strings"

	"github.com/gabriel-vasile/mimetype"
)

type Format string

const (
	FormatCSV  Format = "csv"
	FormatXLS  Format = "xls"
	FormatXLSX Format = "xlsx"
)

const xlsxMIME = "application/vnd.openxmlformats-officedocument.spreadsheetml.sheet"

var (
	ErrUnsupportedFormat = errors.New("unsupported source format")
	ErrFormatMismatch    = errors.New("file content does not match its extension")
)

// DetectFormat picks the format from the extension and checks it against the
// sniffed content, so a renamed binary is rejected before parsing.
func DetectFormat(path string) (Format, error) {
	ext := Format(strings.TrimPrefix(strings.ToLower(filepath.Ext(path)), "."))
	switch ext {
	case FormatCSV, FormatXLSX:
	case FormatXLS:
		return ext, fmt.Errorf("%w: legacy .xls workbooks must be saved as .xlsx", ErrUnsupportedFormat)
	default:
		return "", fmt.Errorf("%w: %q", ErrUnsupportedFormat, filepath.Ext(path))
	}

	mt, err := mimetype.DetectFile(path)
	if err != nil {
		return "", err
	}
	switch ext {
	case FormatCSV:
		if !isA(mt, "text/plain") {
			return "", fmt.Errorf("%w: %s is %s", ErrFormatMismatch, filepath.Base(path), mt.String())
		}
	case FormatXLSX:
		if !isA(mt, xlsxMIME) && !isA(mt, "application/zip") {
			return "", fmt.Errorf("%w: %s is %s", ErrFormatMismatch, filepath.Base(path), mt.String())
		}
	}
	return ext, nil
}

func isA(mt *mimetype.MIME, want string) bool {
	for m := mt; m != nil; m = m.Parent() {
		if m.Is(want) {
			return true
		}
	}
	return false
}
