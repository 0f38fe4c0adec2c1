package templates

import (
	"context"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestExtractSimpleFields(t *testing.T) {
	names, err := Extract("<p>Hello {{.name}}, you are {{.age}}</p>")

	require.NoError(t, err)
	assert.Equal(t, []string{"age", "name"}, names)
}

func TestExtractDeduplicatesAndSorts(t *testing.T) {
	names, err := Extract("{{.b}} {{.a}} {{.b}} {{.a}}")

	require.NoError(t, err)
	assert.Equal(t, []string{"a", "b"}, names)
}

func TestExtractNestedFieldKeepsRoot(t *testing.T) {
	names, err := Extract("{{.user.profile.email}}")

	require.NoError(t, err)
	assert.Equal(t, []string{"user"}, names)
}

func TestExtractControlStructures(t *testing.T) {
	names, err := Extract(`{{if .flag}}{{.yes}}{{else}}{{.no}}{{end}}{{range .items}}{{.}}{{end}}`)

	require.NoError(t, err)
	assert.Equal(t, []string{"flag", "items", "no", "yes"}, names)
}

func TestExtractPipelines(t *testing.T) {
	names, err := Extract(`{{.name | printf "%s"}}`)

	require.NoError(t, err)
	assert.Equal(t, []string{"name"}, names)
}

func TestExtractUnwrapsFirst(t *testing.T) {
	names, err := Extract(Wrap("<p>{{.name}}</p>"))

	require.NoError(t, err)
	assert.Equal(t, []string{"name"}, names)
}

func TestExtractNoVariables(t *testing.T) {
	names, err := Extract("<p>static content</p>")

	require.NoError(t, err)
	assert.Empty(t, names)
}

func TestExtractParseError(t *testing.T) {
	_, err := Extract("{{.unterminated")

	assert.Error(t, err)
}

func TestExtractAsync(t *testing.T) {
	names, err := ExtractAsync(context.Background(), "{{.name}}")

	require.NoError(t, err)
	assert.Equal(t, []string{"name"}, names)
}

func TestExtractAsyncCancelled(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	// A body large enough that the parse cannot win the race against the
	// already-cancelled context.
	_, err := ExtractAsync(ctx, strings.Repeat("{{.x}} ", 50000))

	assert.ErrorIs(t, err, context.Canceled)
}
