package output

import (
	"encoding/json"
	"fmt"
	"io"

	"github.com/dshills/tandem/internal/review"
)

// JSONWriter outputs the full verdict, transcript included, as JSON. A batch
// is written as one array in input order.
type JSONWriter struct{}

func (j *JSONWriter) Write(w io.Writer, v *review.Verdict) error {
	return encodeJSON(w, v)
}

func (j *JSONWriter) WriteAll(w io.Writer, verdicts []*review.Verdict) error {
	return encodeJSON(w, verdicts)
}

func encodeJSON(w io.Writer, v any) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	if err := enc.Encode(v); err != nil {
		return fmt.Errorf("writing JSON: %w", err)
	}
	return nil
}
