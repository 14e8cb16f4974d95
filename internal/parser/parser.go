// Package parser converts raw agent CLI output into a structured reply.
//
// The expected shape is a JSON array of typed records as produced by
// the agent's JSON output mode. A "result" record supplies the final
// content and the resumable session id. When no result record
// contributes content, "assistant" records' text segments are
// concatenated as a fallback. A legacy single-object shape and plain
// (non-JSON) text are also accepted.
package parser

import (
	"bytes"
	"encoding/json"
	"strings"
)

// Reply is the structured outcome of one parse. It is immutable once
// produced.
type Reply struct {
	Success   bool
	Content   string
	Error     string
	SessionID string
}

// record is one element of the primary output shape.
type record struct {
	Type      string          `json:"type"`
	Subtype   string          `json:"subtype,omitempty"`
	IsError   bool            `json:"is_error,omitempty"`
	Result    json.RawMessage `json:"result,omitempty"`
	Error     string          `json:"error,omitempty"`
	SessionID string          `json:"session_id,omitempty"`
	Message   *message        `json:"message,omitempty"`
	Content   json.RawMessage `json:"content,omitempty"`
}

// message is the nested payload of an "assistant" record.
type message struct {
	Content []segment `json:"content"`
}

// segment is one content block inside an assistant message.
type segment struct {
	Type string `json:"type"`
	Text string `json:"text,omitempty"`
}

// legacyObject is the old single-object output shape.
type legacyObject struct {
	Result  json.RawMessage `json:"result,omitempty"`
	Content json.RawMessage `json:"content,omitempty"`
	Text    json.RawMessage `json:"text,omitempty"`
}

// FailureMessage is the generic error reported when the output shape
// itself could not be interpreted, as opposed to an error the agent
// reported explicitly.
const FailureMessage = "failed to parse response"

const parseFailureMessage = FailureMessage

// Parse interprets raw agent output. It never panics across this
// boundary: any unexpected internal shape yields a failure Reply with a
// generic message.
func Parse(raw []byte) (reply Reply) {
	defer func() {
		if recover() != nil {
			reply = Reply{Success: false, Error: parseFailureMessage}
		}
	}()

	trimmed := bytes.TrimSpace(raw)
	if len(trimmed) == 0 {
		return Reply{Success: false, Error: parseFailureMessage}
	}

	var records []record
	if err := json.Unmarshal(trimmed, &records); err == nil {
		return parseRecords(records)
	}

	var legacy legacyObject
	if err := json.Unmarshal(trimmed, &legacy); err == nil {
		if r, ok := parseLegacy(legacy); ok {
			return r
		}
	}

	// Not structured data at all: the tool was in plain-text mode.
	return Reply{Success: true, Content: string(trimmed)}
}

// parseRecords walks the primary shape. The last "result" record wins;
// assistant text is the fallback when no result contributed content.
func parseRecords(records []record) Reply {
	reply := Reply{}
	var assistant strings.Builder
	haveResult := false

	for _, rec := range records {
		switch rec.Type {
		case "result":
			haveResult = true
			if rec.SessionID != "" {
				reply.SessionID = rec.SessionID
			}
			if rec.IsError {
				reply.Success = false
				reply.Error = errorText(rec)
				continue
			}
			reply.Success = true
			reply.Error = ""
			if text, ok := flattenText(rec.Result); ok && text != "" {
				reply.Content = text
			}
		case "assistant":
			if rec.Message == nil {
				continue
			}
			for _, seg := range rec.Message.Content {
				if seg.Type == "text" || seg.Type == "" {
					assistant.WriteString(seg.Text)
				}
			}
		case "system":
			if reply.SessionID == "" && rec.SessionID != "" {
				reply.SessionID = rec.SessionID
			}
		}
	}

	if !haveResult {
		text := assistant.String()
		if text == "" {
			return Reply{Success: false, Error: parseFailureMessage, SessionID: reply.SessionID}
		}
		reply.Success = true
		reply.Content = text
		return reply
	}

	if reply.Success && reply.Content == "" {
		reply.Content = assistant.String()
	}
	return reply
}

// parseLegacy handles the single-object shape. Returns false when the
// object carries none of the known content fields.
func parseLegacy(obj legacyObject) (Reply, bool) {
	for _, field := range []json.RawMessage{obj.Result, obj.Content, obj.Text} {
		if len(field) == 0 {
			continue
		}
		if text, ok := flattenText(field); ok {
			return Reply{Success: true, Content: text}, true
		}
		return Reply{Success: false, Error: parseFailureMessage}, true
	}
	return Reply{}, false
}

// errorText picks the error message from a failed result record.
func errorText(rec record) string {
	if rec.Error != "" {
		return rec.Error
	}
	if text, ok := flattenText(rec.Result); ok && text != "" {
		return text
	}
	return "agent reported an error"
}

// flattenText renders a raw JSON value as text. Strings pass through;
// segment lists are concatenated in order. Any other shape fails.
func flattenText(raw json.RawMessage) (string, bool) {
	if len(raw) == 0 {
		return "", true
	}

	var s string
	if err := json.Unmarshal(raw, &s); err == nil {
		return s, true
	}

	var segs []segment
	if err := json.Unmarshal(raw, &segs); err == nil {
		var b strings.Builder
		for _, seg := range segs {
			b.WriteString(seg.Text)
		}
		return b.String(), true
	}

	return "", false
}
