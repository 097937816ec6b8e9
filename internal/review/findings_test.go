package review

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseFindings(t *testing.T) {
	tests := []struct {
		name    string
		content string
		want    int
		wantErr bool
	}{
		{
			name:    "bare array",
			content: `[{"severity":"high","category":"bug","title":"nil deref","message":"m","path":"a.go","startLine":3,"endLine":4}]`,
			want:    1,
		},
		{
			name:    "empty array",
			content: "No issues.\n\n```json\n[]\n```",
			want:    0,
		},
		{
			name: "last fenced block wins",
			content: "Earlier:\n```json\n[{\"title\":\"old\"}]\n```\nRevised after discussion:\n```json\n" +
				`[{"title":"a","severity":"low"},{"title":"b","severity":"medium"}]` + "\n```\n",
			want: 2,
		},
		{
			name:    "prose around array",
			content: `I agree with the junior. Final list: [{"title":"x","severity":"medium","path":"b.go","startLine":1}] Thanks.`,
			want:    1,
		},
		{
			name:    "no array",
			content: "Looks good to me.",
			wantErr: true,
		},
		{
			name:    "broken json",
			content: "```json\n[{\"title\": ]\n```",
			wantErr: true,
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := ParseFindings(tt.content)
			if tt.wantErr {
				require.Error(t, err)
				assert.True(t, errors.Is(err, ErrNoFindings))
				return
			}
			require.NoError(t, err)
			assert.Len(t, got, tt.want)
		})
	}
}

func TestParseFindings_Fields(t *testing.T) {
	got, err := ParseFindings(`[{"severity":"Critical","category":"Security","title":"SQL injection","message":"m","suggestion":"s","confidence":0.9,"path":"db.go","startLine":10,"tags":["sql"]}]`)
	require.NoError(t, err)
	require.Len(t, got, 1)

	f := got[0]
	assert.Equal(t, SeverityHigh, f.Severity)
	assert.Equal(t, CategorySecurity, f.Category)
	assert.Equal(t, "db.go", f.Locations[0].Path)
	assert.Equal(t, LineRange{Start: 10, End: 10}, f.Locations[0].Lines)
	assert.Len(t, f.ID, 16)
	assert.Equal(t, []string{"sql"}, f.Tags)
}

func TestExtractFindings(t *testing.T) {
	transcript := []Turn{
		turn(Senior, 1, `[{"title":"first","category":"style","severity":"medium"}]`),
		turn(Junior, 1, "the style one is wrong, and you missed a race"),
		turn(Senior, 2, "```json\n"+`[{"title":"race","category":"correctness","severity":"medium"},{"title":"naming","category":"style","severity":"high"}]`+"\n```"),
		turn(Junior, 2, "[AGREE]"),
	}
	rules := &Rules{SeverityOverrides: map[string]string{"style": "low"}}

	got, err := ExtractFindings(transcript, rules)
	require.NoError(t, err)
	require.Len(t, got, 2)
	assert.Equal(t, "race", got[0].Title)
	assert.Equal(t, SeverityLow, got[1].Severity)

	got, err = ExtractFindings(nil, rules)
	assert.NoError(t, err)
	assert.Nil(t, got)
}
