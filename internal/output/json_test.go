package output

import (
	"bytes"
	"encoding/json"
	"testing"

	"github.com/dshills/tandem/internal/review"
)

func TestJSONWriter(t *testing.T) {
	var buf bytes.Buffer
	w := &JSONWriter{}
	if err := w.Write(&buf, sampleVerdict()); err != nil {
		t.Fatalf("Write error: %v", err)
	}

	var parsed review.Verdict
	if err := json.Unmarshal(buf.Bytes(), &parsed); err != nil {
		t.Fatalf("Output is not valid JSON: %v", err)
	}

	if parsed.Outcome != review.OutcomeAgreed {
		t.Errorf("Outcome = %q, want %q", parsed.Outcome, review.OutcomeAgreed)
	}
	if len(parsed.Transcript) != 2 {
		t.Errorf("Transcript length = %d, want 2", len(parsed.Transcript))
	}
	if len(parsed.Findings) != 2 {
		t.Errorf("Findings count = %d, want 2", len(parsed.Findings))
	}
	if parsed.Findings[0].Title != "Null pointer" {
		t.Errorf("Finding title = %q, want %q", parsed.Findings[0].Title, "Null pointer")
	}
	if parsed.Junior.Model != "qwen2.5-coder" {
		t.Errorf("Junior model = %q", parsed.Junior.Model)
	}
}

func TestJSONWriter_StableFieldNames(t *testing.T) {
	var buf bytes.Buffer
	if err := (&JSONWriter{}).Write(&buf, sampleVerdict()); err != nil {
		t.Fatalf("Write error: %v", err)
	}

	var raw map[string]json.RawMessage
	if err := json.Unmarshal(buf.Bytes(), &raw); err != nil {
		t.Fatal(err)
	}
	for _, key := range []string{"id", "outcome", "rounds", "senior", "junior", "input", "transcript", "findings", "summary", "usage", "startedAt", "finishedAt"} {
		if _, ok := raw[key]; !ok {
			t.Errorf("missing field %q", key)
		}
	}
	if _, ok := raw["error"]; ok {
		t.Error("error should be omitted when empty")
	}
}

func TestJSONWriter_BatchIsOneArray(t *testing.T) {
	second := sampleVerdict()
	second.ID = "conv-2"
	second.Outcome = review.OutcomeRoundsExhausted

	var buf bytes.Buffer
	if err := WriteAll(&buf, &JSONWriter{}, []*review.Verdict{sampleVerdict(), nil, second}); err != nil {
		t.Fatalf("WriteAll error: %v", err)
	}

	var parsed []review.Verdict
	if err := json.Unmarshal(buf.Bytes(), &parsed); err != nil {
		t.Fatalf("batch output is not one JSON document: %v", err)
	}
	if len(parsed) != 2 {
		t.Fatalf("got %d verdicts, want 2", len(parsed))
	}
	if parsed[0].ID != "conv-1" || parsed[1].ID != "conv-2" {
		t.Errorf("order = %s, %s", parsed[0].ID, parsed[1].ID)
	}
	if parsed[1].Outcome != review.OutcomeRoundsExhausted {
		t.Errorf("second outcome = %q", parsed[1].Outcome)
	}
}

func TestJSONWriter_SingleVerdictStaysAnObject(t *testing.T) {
	var buf bytes.Buffer
	if err := WriteAll(&buf, &JSONWriter{}, []*review.Verdict{nil, sampleVerdict()}); err != nil {
		t.Fatalf("WriteAll error: %v", err)
	}
	var parsed review.Verdict
	if err := json.Unmarshal(buf.Bytes(), &parsed); err != nil {
		t.Fatalf("expected a single JSON object: %v", err)
	}
	if parsed.ID != "conv-1" {
		t.Errorf("ID = %q", parsed.ID)
	}
}
