package content

import (
	"bytes"

	"github.com/microcosm-cc/bluemonday"
	"github.com/yuin/goldmark"
	"github.com/yuin/goldmark/extension"
)

var (
	policy = bluemonday.UGCPolicy()

	markdown = goldmark.New(
		goldmark.WithExtensions(extension.GFM),
	)
)

// Sanitize removes unsafe HTML from the input string using a strict policy.
// It is applied to message bodies and display names before persistence.
func Sanitize(input string) string {
	return policy.Sanitize(input)
}

// Render converts a message body from markdown to sanitized HTML for
// history responses. On a markdown failure the sanitized source is returned
// as-is rather than dropping the message.
func Render(body string) string {
	var buf bytes.Buffer
	if err := markdown.Convert([]byte(body), &buf); err != nil {
		return Sanitize(body)
	}
	return policy.Sanitize(buf.String())
}
