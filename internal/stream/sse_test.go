package stream

import (
	"io"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestEventReaderSingleFrame(t *testing.T) {
	t.Parallel()

	er := newEventReader(strings.NewReader("data: {\"type\":\"ping\"}\n\n"), nil)
	data, err := er.next()
	require.NoError(t, err)
	assert.Equal(t, `{"type":"ping"}`, data)

	_, err = er.next()
	assert.Equal(t, io.EOF, err)
}

func TestEventReaderMultilineData(t *testing.T) {
	t.Parallel()

	er := newEventReader(strings.NewReader("data: line one\ndata: line two\n\n"), nil)
	data, err := er.next()
	require.NoError(t, err)
	assert.Equal(t, "line one\nline two", data)
}

func TestEventReaderSkipsCommentsAndFields(t *testing.T) {
	t.Parallel()

	input := ": keep-alive\n\nevent: message\nid: 42\nretry: 3000\ndata: payload\n\n"
	er := newEventReader(strings.NewReader(input), nil)

	data, err := er.next()
	require.NoError(t, err)
	assert.Equal(t, "payload", data)
}

func TestEventReaderActivityHook(t *testing.T) {
	t.Parallel()

	var activity int
	input := ": keep-alive\n\ndata: a\n\n"
	er := newEventReader(strings.NewReader(input), func() { activity++ })

	_, err := er.next()
	require.NoError(t, err)

	// Every line counts, comments and separators included. The watchdog
	// cares about socket liveness, not frame completeness.
	assert.Equal(t, 4, activity)
}

func TestEventReaderUnterminatedFrame(t *testing.T) {
	t.Parallel()

	// A frame cut off mid-stream (no trailing blank line) is still delivered
	// once the stream ends, matching EventSource behavior on graceful close.
	er := newEventReader(strings.NewReader("data: tail\n"), nil)
	data, err := er.next()
	require.NoError(t, err)
	assert.Equal(t, "tail", data)
}
