package output

import (
	"fmt"
	"io"

	"gopkg.in/yaml.v3"

	"github.com/dshills/tandem/internal/review"
)

// YAMLWriter outputs the full verdict as YAML, with the same field names as
// the JSON form. A batch becomes a multi-document stream.
type YAMLWriter struct{}

func (y *YAMLWriter) Write(w io.Writer, v *review.Verdict) error {
	return y.WriteAll(w, []*review.Verdict{v})
}

func (y *YAMLWriter) WriteAll(w io.Writer, verdicts []*review.Verdict) error {
	enc := yaml.NewEncoder(w)
	enc.SetIndent(2)
	for _, v := range verdicts {
		if err := enc.Encode(v); err != nil {
			return fmt.Errorf("encoding YAML: %w", err)
		}
	}
	return enc.Close()
}
