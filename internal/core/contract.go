package core

import (
	"encoding/json"
	"strings"
)

// DecodeArray enforces the strict response contract: the model's raw text,
// once stripped of code-fence markers, must parse as a JSON array into
// dest (a pointer to a slice). On failure it returns a *ParseError
// carrying the offending raw text.
//
// A length mismatch against the request is deliberately not an error
// here: providers occasionally drop or merge entries, and the merge step
// is identity-matched on the id field rather than by position. Entries
// with unmatched ids are ignored and unanswered ids stay un-enriched for
// this pass.
func DecodeArray(raw string, dest any) error {
	cleaned := stripCodeFences(raw)
	if err := json.Unmarshal([]byte(cleaned), dest); err != nil {
		return &ParseError{Raw: raw, Err: err}
	}
	return nil
}

// stripCodeFences removes leading and trailing fenced-code delimiters
// (``` or ```json, case-insensitively) that models like to wrap JSON in.
func stripCodeFences(raw string) string {
	s := strings.TrimSpace(raw)

	if strings.HasPrefix(s, "```") {
		s = s[len("```"):]
		// Language hint on the opening fence, e.g. ```json or ```JSON.
		if len(s) >= 4 && strings.EqualFold(s[:4], "json") {
			s = s[4:]
		}
		s = strings.TrimLeft(s, "\r\n")
	}

	s = strings.TrimSpace(s)
	if strings.HasSuffix(s, "```") {
		s = s[:len(s)-len("```")]
	}

	return strings.TrimSpace(s)
}
