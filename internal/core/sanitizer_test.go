package core

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/inboxkit/email-enricher/internal/utils"
)

func newTestSanitizer(maxLength int) *ContentSanitizer {
	return NewContentSanitizer(maxLength, utils.NewTextProcessor(zap.NewNop()))
}

func TestSanitizeStripsScriptContent(t *testing.T) {
	s := newTestSanitizer(0)

	assert.Equal(t, "Hello", s.Sanitize("<script>x</script>Hello"))
}

func TestSanitizeRemovesNoiseElementsWithContents(t *testing.T) {
	s := newTestSanitizer(0)

	input := `<html><head><style>body { color: red }</style></head>
<body><nav>Home | About</nav><div>Meeting at <b>3pm</b> tomorrow.</div>
<iframe src="x">tracking</iframe><footer>Unsubscribe</footer>
<noscript>enable js</noscript></body></html>`

	got := s.Sanitize(input)
	assert.Equal(t, "Meeting at 3pm tomorrow.", got)
}

func TestSanitizeCollapsesWhitespace(t *testing.T) {
	s := newTestSanitizer(0)

	assert.Equal(t, "a b c", s.Sanitize("  a\n\n\tb \r\n   c  "))
}

func TestSanitizeEmptyInput(t *testing.T) {
	s := newTestSanitizer(0)

	assert.Equal(t, "", s.Sanitize(""))
}

func TestSanitizeTruncatesToExactBound(t *testing.T) {
	s := newTestSanitizer(15000)

	got := s.Sanitize(strings.Repeat("a", 20000))
	require.True(t, strings.HasSuffix(got, utils.TruncationMarker))
	assert.Len(t, got, 15000+len(utils.TruncationMarker))
	assert.Equal(t, strings.Repeat("a", 15000), strings.TrimSuffix(got, utils.TruncationMarker))
}

func TestSanitizeShortInputNotTruncated(t *testing.T) {
	s := newTestSanitizer(15000)

	input := strings.Repeat("b", 100)
	assert.Equal(t, input, s.Sanitize(input))
}
