package providers

import (
	"errors"
	"io"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSSEReader(t *testing.T) {
	stream := strings.Join([]string{
		": keep-alive",
		"event: content_block_delta",
		`data: {"a":1}`,
		"",
		"data: line one",
		"data: line two",
		"",
		"",
		"id: 7",
		"data: [DONE]",
	}, "\r\n")
	r := newSSEReader(strings.NewReader(stream))

	event, data, err := r.ReadEvent()
	require.NoError(t, err)
	assert.Equal(t, "content_block_delta", event)
	assert.Equal(t, `{"a":1}`, string(data))

	event, data, err = r.ReadEvent()
	require.NoError(t, err)
	assert.Empty(t, event)
	assert.Equal(t, "line one\nline two", string(data))

	_, data, err = r.ReadEvent()
	require.NoError(t, err)
	assert.Equal(t, "[DONE]", string(data))

	_, _, err = r.ReadEvent()
	assert.True(t, errors.Is(err, io.EOF))
}
