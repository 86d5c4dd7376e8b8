package capability

import (
	"bytes"
	"encoding/json"
	"strings"

	"github.com/SkySingh04/DreamOps-sub002/pkg/mcp"
)

// NormalizeResponse reduces a transport response to content records or an
// error message. Exactly one of the two return values is meaningful: a
// non-empty errMsg means the call failed.
//
// The payload is the response result, or its "content" member when the
// result is an object carrying one. An array of objects is returned as is;
// any other payload is wrapped in a single text record holding its JSON.
func NormalizeResponse(resp *mcp.Response) (content []Record, errMsg string) {
	if resp == nil {
		return nil, "empty response"
	}
	if resp.Error != nil {
		if resp.Error.Message == "" {
			return nil, "tool execution failed"
		}
		return nil, resp.Error.Error()
	}

	payload := bytes.TrimSpace(resp.Result)
	if len(payload) == 0 {
		payload = []byte("null")
	}

	var envelope struct {
		Content json.RawMessage `json:"content"`
		IsError bool            `json:"isError"`
	}
	if payload[0] == '{' && json.Unmarshal(payload, &envelope) == nil && envelope.Content != nil {
		payload = envelope.Content
		if envelope.IsError {
			records := toRecords(payload)
			if msg := joinText(records); msg != "" {
				return nil, msg
			}
			return nil, "tool execution failed"
		}
	}

	return toRecords(payload), ""
}

// toRecords returns the payload as records, wrapping anything that is not
// an array of objects.
func toRecords(payload json.RawMessage) []Record {
	var records []Record
	if err := json.Unmarshal(payload, &records); err == nil && !hasNil(records) {
		if records == nil {
			// JSON null decodes to a nil slice; it is not a sequence.
			return wrapText(payload)
		}
		return records
	}
	return wrapText(payload)
}

// hasNil reports null elements, which decode to nil maps and are not records.
func hasNil(records []Record) bool {
	for _, r := range records {
		if r == nil {
			return true
		}
	}
	return false
}

func wrapText(payload json.RawMessage) []Record {
	var buf bytes.Buffer
	if err := json.Compact(&buf, payload); err != nil {
		buf.Reset()
		buf.Write(payload)
	}
	return []Record{{"type": "text", "text": buf.String()}}
}

func joinText(records []Record) string {
	var parts []string
	for _, r := range records {
		if s, ok := r["text"].(string); ok && s != "" {
			parts = append(parts, s)
		}
	}
	return strings.Join(parts, "\n")
}
