package stream

import (
	"bufio"
	"io"
	"strings"
)

// SSE field prefixes per the W3C EventSource specification. Only data and
// comment lines matter for this endpoint; event/id/retry fields are accepted
// and ignored.
const (
	fieldData    = "data:"
	fieldEvent   = "event:"
	fieldID      = "id:"
	fieldRetry   = "retry:"
	fieldComment = ":"
)

// maxEventSize bounds a single SSE line; agent tool-call payloads can be
// large but are chunked well below this server-side.
const maxEventSize = 1 << 20 // 1MB

// eventReader decodes `data: ...\n\n` frames off a response body.
type eventReader struct {
	scanner *bufio.Scanner

	// onActivity fires for every line received, including comments and
	// blank separators, so the heartbeat watchdog sees raw socket liveness.
	onActivity func()
}

func newEventReader(r io.Reader, onActivity func()) *eventReader {
	sc := bufio.NewScanner(r)
	sc.Buffer(make([]byte, 0, 64*1024), maxEventSize)
	return &eventReader{scanner: sc, onActivity: onActivity}
}

// next blocks until a complete event arrives and returns its data payload
// (multiple data lines joined with newlines, per EventSource). Returns the
// underlying read error, or io.EOF on a clean end of stream.
func (er *eventReader) next() (string, error) {
	var data []string

	for er.scanner.Scan() {
		line := er.scanner.Text()
		if er.onActivity != nil {
			er.onActivity()
		}

		if line == "" {
			// Frame boundary. Comment-only frames produce no event.
			if len(data) > 0 {
				return strings.Join(data, "\n"), nil
			}
			continue
		}

		switch {
		case strings.HasPrefix(line, fieldData):
			data = append(data, strings.TrimPrefix(strings.TrimPrefix(line, fieldData), " "))
		case strings.HasPrefix(line, fieldEvent),
			strings.HasPrefix(line, fieldID),
			strings.HasPrefix(line, fieldRetry):
			// Accepted, unused by this endpoint.
		case strings.HasPrefix(line, fieldComment):
			// Keep-alive comment; activity already recorded.
		default:
			// Lines without a field prefix are treated as data per the
			// lenient parsing the web client applied.
			data = append(data, line)
		}
	}

	if err := er.scanner.Err(); err != nil {
		return "", err
	}
	if len(data) > 0 {
		return strings.Join(data, "\n"), nil
	}
	return "", io.EOF
}
