package gemini

import "strings"

// Candidate identifies one invocable endpoint variant: a model name plus the
// API version segment used in the request URL. Two candidates are equal when
// both fields match.
type Candidate struct {
	Model      string
	APIVersion string
}

func (c Candidate) String() string {
	return c.Model + "/" + c.APIVersion
}

// DefaultCandidates returns the fixed priority list of known-good
// (model, version) pairs, tried in order after the sticky candidate.
func DefaultCandidates() []Candidate {
	return []Candidate{
		{Model: "gemini-1.5-flash", APIVersion: "v1"},
		{Model: "gemini-1.5-flash", APIVersion: "v1beta"},
		{Model: "gemini-1.5-pro", APIVersion: "v1"},
		{Model: "gemini-pro", APIVersion: "v1beta"},
	}
}

// supportsSystemInstruction reports whether the model's generation family
// accepts a dedicated system_instruction field. Older families reject the
// field, so the instruction is inlined into the final user turn instead.
func supportsSystemInstruction(model string) bool {
	return strings.Contains(model, "1.5")
}
