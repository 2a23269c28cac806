package core

import (
	"strings"

	"golang.org/x/net/html"

	"github.com/inboxkit/email-enricher/internal/utils"
)

// DefaultMaxContentLength bounds the sanitized body placed in a prompt so
// prompt size, and therefore cost and latency, stays predictable.
const DefaultMaxContentLength = 15000

// skippedElements are removed entirely, contents included, before the
// visible text is extracted.
var skippedElements = map[string]bool{
	"script":   true,
	"style":    true,
	"nav":      true,
	"footer":   true,
	"iframe":   true,
	"noscript": true,
}

// ContentSanitizer strips markup and noise from raw email bodies and
// bounds them to maxLength characters. Sanitization is total: any input
// string, including empty, yields a usable result.
type ContentSanitizer struct {
	maxLength     int
	textProcessor *utils.TextProcessor
}

// NewContentSanitizer creates a new sanitizer with the given size bound.
// A non-positive maxLength falls back to DefaultMaxContentLength.
func NewContentSanitizer(maxLength int, textProcessor *utils.TextProcessor) *ContentSanitizer {
	if maxLength <= 0 {
		maxLength = DefaultMaxContentLength
	}
	return &ContentSanitizer{
		maxLength:     maxLength,
		textProcessor: textProcessor,
	}
}

// Sanitize extracts the visible text of a possibly-HTML body, collapses
// all whitespace runs to single spaces, trims, and truncates to the
// configured bound with a literal truncation marker appended.
func (s *ContentSanitizer) Sanitize(raw string) string {
	text := extractVisibleText(raw)

	// Collapse runs of whitespace (newlines and tabs included) and trim.
	text = strings.Join(strings.Fields(text), " ")

	return s.textProcessor.ProcessText(text, s.maxLength)
}

// extractVisibleText walks the HTML token stream, dropping skipped
// elements together with their contents. Plain-text input passes through
// unchanged since the tokenizer emits it as a single text token.
func extractVisibleText(raw string) string {
	tokenizer := html.NewTokenizer(strings.NewReader(raw))

	var b strings.Builder
	skipDepth := 0

	for {
		tokenType := tokenizer.Next()
		switch tokenType {
		case html.ErrorToken:
			// io.EOF or malformed markup; either way we keep what we have.
			return b.String()
		case html.StartTagToken:
			name, _ := tokenizer.TagName()
			if skippedElements[string(name)] {
				skipDepth++
			}
		case html.EndTagToken:
			name, _ := tokenizer.TagName()
			if skippedElements[string(name)] && skipDepth > 0 {
				skipDepth--
			}
		case html.TextToken:
			if skipDepth == 0 {
				b.Write(tokenizer.Text())
				b.WriteByte(' ')
			}
		}
	}
}
