package stream

import (
	"strings"

	"github.com/tidwall/gjson"
)

// frameKind is the dispatch decision for one inbound SSE payload.
type frameKind int

const (
	// frameMessage is an application payload, forwarded verbatim.
	frameMessage frameKind = iota
	// framePing is a keep-alive; it refreshes the heartbeat and nothing else.
	framePing
	// frameAppError is a non-fatal error or warning status; surfaced through
	// OnError while the stream keeps listening.
	frameAppError
	// frameTerminal means the run is unambiguously finished; the stream
	// closes and never reconnects.
	frameTerminal
)

func (k frameKind) String() string {
	switch k {
	case framePing:
		return "ping"
	case frameAppError:
		return "app_error"
	case frameTerminal:
		return "terminal"
	default:
		return "message"
	}
}

// frame is one classified payload.
type frame struct {
	kind    frameKind
	data    string // raw payload for frameMessage
	message string // human text for frameAppError / frameTerminal
}

// Terminal status values emitted by the backend stream generator.
var terminalStatuses = map[string]bool{
	"completed": true,
	"failed":    true,
	"stopped":   true,
}

// classifyFrame decides how a decoded SSE data payload is handled. The
// backend vocabulary: {"type":"ping"}, {"type":"status","status":...},
// {"type":"status","status_type":"thread_run_end"}, {"type":"warning",...},
// {"status":"error","message":...}; anything else is an application message.
func classifyFrame(data string) frame {
	if !gjson.Valid(data) {
		// Plain-text control responses ("Run not found", "Run is no longer
		// active") end the stream; the run is gone server-side.
		lower := strings.ToLower(data)
		if strings.Contains(lower, "not found") || strings.Contains(lower, "no longer active") {
			return frame{kind: frameTerminal, message: strings.TrimSpace(data)}
		}
		return frame{kind: frameMessage, data: data}
	}

	typ := gjson.Get(data, "type").String()

	switch typ {
	case "ping":
		return frame{kind: framePing}

	case "warning":
		return frame{kind: frameAppError, message: gjson.Get(data, "message").String()}

	case "status":
		if gjson.Get(data, "status_type").String() == "thread_run_end" {
			return frame{kind: frameTerminal, message: "thread_run_end"}
		}
		status := gjson.Get(data, "status").String()
		if terminalStatuses[status] {
			return frame{kind: frameTerminal, message: status}
		}
		if status == "error" {
			return frame{kind: frameAppError, message: gjson.Get(data, "message").String()}
		}
		// Unknown status values ride through as messages so new backend
		// states are visible to the UI layer.
		return frame{kind: frameMessage, data: data}
	}

	// Bare {"status":"error"} frames appear on stream-setup failures.
	if typ == "" && gjson.Get(data, "status").String() == "error" {
		return frame{kind: frameAppError, message: gjson.Get(data, "message").String()}
	}

	return frame{kind: frameMessage, data: data}
}
