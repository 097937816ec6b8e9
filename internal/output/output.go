package output

import (
	"fmt"
	"io"
	"os"

	"github.com/dshills/tandem/internal/review"
)

// Formats lists the supported output formats.
var Formats = []string{"text", "json", "markdown", "yaml", "sarif"}

// Writer writes a verdict in a specific format.
type Writer interface {
	Write(w io.Writer, v *review.Verdict) error
}

// BatchWriter is implemented by formats that combine several verdicts into a
// single document.
type BatchWriter interface {
	WriteAll(w io.Writer, verdicts []*review.Verdict) error
}

// WriteAll writes verdicts to w in order, skipping nils. A lone verdict is
// written with Write; a batch goes through WriteAll when the format has one
// and is concatenated otherwise.
func WriteAll(w io.Writer, writer Writer, verdicts []*review.Verdict) error {
	batch := make([]*review.Verdict, 0, len(verdicts))
	for _, v := range verdicts {
		if v != nil {
			batch = append(batch, v)
		}
	}
	if bw, ok := writer.(BatchWriter); ok && len(batch) > 1 {
		return bw.WriteAll(w, batch)
	}
	for _, v := range batch {
		if err := writer.Write(w, v); err != nil {
			return err
		}
	}
	return nil
}

// GetWriter returns a writer for the specified format.
func GetWriter(format string) (Writer, error) {
	switch format {
	case "text", "":
		return &TextWriter{}, nil
	case "json":
		return &JSONWriter{}, nil
	case "markdown", "md":
		return &MarkdownWriter{}, nil
	case "yaml", "yml":
		return &YAMLWriter{}, nil
	case "sarif":
		return &SARIFWriter{}, nil
	default:
		return nil, fmt.Errorf("unsupported output format: %s", format)
	}
}

// WriteVerdict writes the verdict to the specified output (file path or stdout).
func WriteVerdict(v *review.Verdict, format, outPath string) error {
	writer, err := GetWriter(format)
	if err != nil {
		return err
	}

	if outPath == "" {
		return writer.Write(os.Stdout, v)
	}

	f, err := os.Create(outPath)
	if err != nil {
		return fmt.Errorf("creating output file: %w", err)
	}
	if err := writer.Write(f, v); err != nil {
		f.Close()
		return err
	}
	return f.Close()
}
