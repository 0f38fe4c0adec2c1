package templates

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestWrapUnwrapRoundTrip(t *testing.T) {
	bodies := []string{
		"<p>Hello {{.name}}</p>",
		"line one\nline two",
		"",
		"trailing newline\n",
		"{{if .flag}}yes{{end}}",
	}
	for _, body := range bodies {
		assert.Equal(t, body, Unwrap(Wrap(body)), "body %q", body)
	}
}

func TestWrapFraming(t *testing.T) {
	wrapped := Wrap("content")

	assert.Equal(t,
		"{{/* extends \"base-template\" */}}\n{{define \"content\"}}\ncontent\n{{end}}",
		wrapped)
}

func TestIsWrapped(t *testing.T) {
	assert.True(t, IsWrapped(Wrap("anything")))
	assert.False(t, IsWrapped("<p>plain</p>"))
	assert.False(t, IsWrapped(""))
	assert.False(t, IsWrapped(`{{define "content"}}x{{end}}`))
}

func TestUnwrapDegenerateInput(t *testing.T) {
	assert.Equal(t, "", Unwrap(""))
	assert.Equal(t, "", Unwrap("one\ntwo\nthree"))
}

func TestWrapIdempotenceIsNotAssumed(t *testing.T) {
	// Double wrapping is a caller bug; unwrapping once must still recover the
	// singly wrapped form exactly.
	once := Wrap("body")
	twice := Wrap(once)
	assert.Equal(t, once, Unwrap(twice))
}
