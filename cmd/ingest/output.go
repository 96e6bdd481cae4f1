package main

import (
	"encoding/json"
	"fmt"
	"io"
)

// writeJSONLine prints v as one JSON document per line. Messages carry raw
// spreadsheet text, so HTML characters are left unescaped.
func writeJSONLine(w io.Writer, v any) error {
	enc := json.NewEncoder(w)
	enc.SetEscapeHTML(false)
	if err := enc.Encode(v); err != nil {
		return withCode(exitDB, fmt.Errorf("write output: %w", err))
	}
	return nil
}
