// Package reply normalizes raw model output into a displayable reply.
// Models are instructed to emit reasoning scaffolding and, when they have a
// structured suggestion, a JSON object; both arrive embedded in free-form
// prose and neither is guaranteed to be well formed.
package reply

import (
	"encoding/json"
	"regexp"
)

// Kind discriminates the two reply variants.
type Kind string

const (
	KindStructured Kind = "structured"
	KindText       Kind = "text"
)

// ParsedReply is the result of Parse. Exactly one of Payload (structured)
// or Text (plain) is meaningful, selected by Kind.
type ParsedReply struct {
	Kind    Kind
	Payload map[string]any
	Text    string
}

// DisplayText returns the human-readable text for either variant. Structured
// payloads carry a "text" field for display; if it is missing or not a
// string, the empty string is returned rather than raw JSON.
func (r ParsedReply) DisplayText() string {
	if r.Kind == KindStructured {
		if s, ok := r.Payload["text"].(string); ok {
			return s
		}
		return ""
	}
	return r.Text
}

var (
	// An unterminated reasoning span is stripped to end of input.
	reasoningRe  = regexp.MustCompile(`(?s)\[REASONING_START\].*?(?:\[REASONING_END\]|$)`)
	fencedJSONRe = regexp.MustCompile("(?s)```json\\n(.*?)\\n```")
	braceSpanRe  = regexp.MustCompile(`(?s)\{.*\}`)
)

// Parse turns raw model output into a ParsedReply. It never fails: reasoning
// spans are stripped, then candidate JSON spans (a fenced json block first,
// then the first greedy brace span) are each tried for decoding. A span that
// does not decode to an object falls through silently; if nothing decodes
// the cleaned prose is returned as plain text.
func Parse(raw string) ParsedReply {
	cleaned := reasoningRe.ReplaceAllString(raw, "")

	for _, span := range candidateSpans(cleaned) {
		var payload map[string]any
		if err := json.Unmarshal([]byte(span), &payload); err == nil && payload != nil {
			return ParsedReply{Kind: KindStructured, Payload: payload}
		}
	}

	return ParsedReply{Kind: KindText, Text: cleaned}
}

// candidateSpans yields the JSON-looking spans of s in trial order. Only the
// first match of each detector is considered.
func candidateSpans(s string) []string {
	var spans []string
	if m := fencedJSONRe.FindStringSubmatch(s); m != nil {
		spans = append(spans, m[1])
	}
	if m := braceSpanRe.FindString(s); m != "" {
		spans = append(spans, m)
	}
	return spans
}
