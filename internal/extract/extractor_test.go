package extract

import (
	"strings"
	"testing"
	"unicode/utf8"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestIsMarkup(t *testing.T) {
	t.Parallel()

	assert.True(t, IsMarkup("https://www.gutenberg.org/ebooks/84.html", []byte("plain")))
	assert.True(t, IsMarkup("https://www.gutenberg.org/files/84/84-h/84-h.HTM", nil))
	assert.True(t, IsMarkup("https://host/x?type=text/html", nil))
	assert.True(t, IsMarkup("https://www.gutenberg.org/ebooks/84.txt.utf-8", []byte("  \n<!DOCTYPE html><p>x</p>")))
	assert.False(t, IsMarkup("https://www.gutenberg.org/ebooks/84.txt.utf-8", []byte("The Project Gutenberg eBook")))
}

func TestExtractPlainTextPassesThrough(t *testing.T) {
	t.Parallel()

	raw := "Chapter 1\n\n\n\nIt is a truth universally acknowledged.  "
	got, err := New().Extract([]byte(raw), "https://host/1342.txt")
	require.NoError(t, err)
	assert.Equal(t, raw, got)
}

func TestExtractDropsInvalidUTF8(t *testing.T) {
	t.Parallel()

	got, err := New().Extract([]byte("caf\xe9 au lait"), "https://host/1.txt")
	require.NoError(t, err)
	assert.Equal(t, "caf au lait", got)

	got, err = New().Extract([]byte("<html><body><p>na\xefve \xff reader</p></body></html>"), "https://host/1.html")
	require.NoError(t, err)
	assert.True(t, utf8.ValidString(got))
	assert.Equal(t, "nave  reader", got)
}

func TestExtractHTMLRemovesNonContent(t *testing.T) {
	t.Parallel()

	raw := `<!DOCTYPE html>
<html>
<head><title>Frankenstein</title><style>p { color: red }</style></head>
<body>
<script>var tracking = "secret";</script>
<h1>Letter 1</h1>
<p>You will rejoice to hear that no disaster has accompanied the commencement.</p><p>I arrived here yesterday.</p>
<noscript>enable javascript</noscript>
<ul><li>one</li><li>two</li></ul>
<p>Walk<span>ing</span> on&nbsp;ice</p>
</body>
</html>`

	got, err := New().Extract([]byte(raw), "https://www.gutenberg.org/ebooks/84.html")
	require.NoError(t, err)

	assert.NotContains(t, got, "tracking")
	assert.NotContains(t, got, "color: red")
	assert.NotContains(t, got, "enable javascript")
	assert.NotContains(t, got, "Frankenstein", "head content is not visible text")

	lines := strings.Split(got, "\n")
	assert.Equal(t, "Letter 1", lines[0])
	assert.Contains(t, got, "commencement.\n")
	assert.Contains(t, got, "\nI arrived here yesterday.")
	assert.Contains(t, got, "one\n")
	assert.Contains(t, got, "Walking on ice")
	assert.NotContains(t, got, "\n\n\n")
}

func TestExtractFragmentWithoutBody(t *testing.T) {
	t.Parallel()

	got, err := New().Extract([]byte("<p>alpha</p><p>beta</p>"), "")
	require.NoError(t, err)
	assert.Equal(t, "alpha\n\nbeta", got)
}

func TestExtractMalformedMarkupIsBestEffort(t *testing.T) {
	t.Parallel()

	got, err := New().Extract([]byte("<div><p>unclosed <b>bold<div>tail"), "x.html")
	require.NoError(t, err)
	assert.Contains(t, got, "unclosed bold")
	assert.Contains(t, got, "tail")
}
