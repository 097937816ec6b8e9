package output

import (
	"bytes"
	"errors"
	"io"
	"strings"
	"testing"

	"gopkg.in/yaml.v3"

	"github.com/dshills/tandem/internal/review"
)

func TestYAMLWriter(t *testing.T) {
	var buf bytes.Buffer
	w := &YAMLWriter{}
	if err := w.Write(&buf, sampleVerdict()); err != nil {
		t.Fatalf("Write error: %v", err)
	}

	out := buf.String()
	for _, key := range []string{"outcome: agreed", "rounds: 1", "transcript:", "findings:"} {
		if !strings.Contains(out, key) {
			t.Errorf("YAML missing %q", key)
		}
	}

	var parsed review.Verdict
	if err := yaml.Unmarshal(buf.Bytes(), &parsed); err != nil {
		t.Fatalf("Output is not valid YAML: %v", err)
	}
	if len(parsed.Transcript) != 2 || parsed.Transcript[1].Agent != review.Junior {
		t.Errorf("Transcript = %+v", parsed.Transcript)
	}
	if parsed.Summary.Counts.High != 1 {
		t.Errorf("High count = %d, want 1", parsed.Summary.Counts.High)
	}
}

func TestYAMLWriter_BatchIsMultiDocument(t *testing.T) {
	second := sampleVerdict()
	second.ID = "conv-2"
	second.Findings = []review.Finding{}

	var buf bytes.Buffer
	if err := WriteAll(&buf, &YAMLWriter{}, []*review.Verdict{sampleVerdict(), second}); err != nil {
		t.Fatalf("WriteAll error: %v", err)
	}
	if strings.Count(buf.String(), "\n---\n") != 1 {
		t.Errorf("expected one document separator:\n%s", buf.String())
	}

	dec := yaml.NewDecoder(&buf)
	var ids []string
	for {
		var v review.Verdict
		err := dec.Decode(&v)
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			t.Fatalf("document %d is not valid YAML: %v", len(ids)+1, err)
		}
		ids = append(ids, v.ID)
	}
	if len(ids) != 2 || ids[0] != "conv-1" || ids[1] != "conv-2" {
		t.Errorf("decoded IDs = %v", ids)
	}
}
