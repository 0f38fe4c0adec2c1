package templates

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"notification-workers/internal/common/errors"
	"notification-workers/internal/models"
)

func engineFixture(withBase bool) (*Engine, *models.Template) {
	templates := map[string]*models.Template{}
	if withBase {
		templates[BaseTemplateSlug] = &models.Template{
			ID:      1,
			Slug:    BaseTemplateSlug,
			Content: "<html>" + ContentBlockPlaceholder + "</html>",
			IsBase:  true,
		}
	}
	leaf := &models.Template{
		ID:        2,
		Slug:      "greeting",
		Title:     "Hello {{.name}}",
		Content:   Wrap("<p>Hi {{.name}}</p>"),
		Variables: []string{"name"},
	}
	templates[leaf.Slug] = leaf

	return NewEngine(NewLoader(&countingStore{templates: templates})), leaf
}

func TestRenderWrappedInsideBase(t *testing.T) {
	engine, leaf := engineFixture(true)

	title, content, err := engine.Render(context.Background(), leaf,
		map[string]interface{}{"name": "Ann"})

	require.NoError(t, err)
	assert.Equal(t, "Hello Ann", title)
	assert.Equal(t, "<html>\n<p>Hi Ann</p>\n</html>", content)
}

func TestRenderEscapesHTML(t *testing.T) {
	engine, leaf := engineFixture(true)

	_, content, err := engine.Render(context.Background(), leaf,
		map[string]interface{}{"name": "<script>"})

	require.NoError(t, err)
	assert.NotContains(t, content, "<script>")
}

func TestRenderStrictFailsOnUnboundVariable(t *testing.T) {
	engine, leaf := engineFixture(true)

	_, _, err := engine.Render(context.Background(), leaf, map[string]interface{}{})

	assert.Error(t, err)
}

func TestRenderBaseMissing(t *testing.T) {
	engine, leaf := engineFixture(false)

	_, _, err := engine.Render(context.Background(), leaf,
		map[string]interface{}{"name": "Ann"})

	require.Error(t, err)
	assert.Equal(t, errors.CodeBaseTemplateMissing, errors.CodeOf(err))
}

func TestRenderUnwrappedStandsAlone(t *testing.T) {
	engine, _ := engineFixture(false)
	plain := &models.Template{
		Slug:    "plain",
		Title:   "T",
		Content: "<p>{{.name}}</p>",
	}

	_, content, err := engine.Render(context.Background(), plain,
		map[string]interface{}{"name": "Ann"})

	require.NoError(t, err)
	assert.Equal(t, "<p>Ann</p>", content)
}

func TestRenderPreviewSynthesizesValues(t *testing.T) {
	engine, leaf := engineFixture(true)

	content, err := engine.RenderPreview(context.Background(), leaf, nil)

	require.NoError(t, err)
	assert.Contains(t, content, "variable 0")
}

func TestRenderPreviewLenientOnUnbound(t *testing.T) {
	engine, leaf := engineFixture(true)

	content, err := engine.RenderPreview(context.Background(), leaf,
		map[string]interface{}{})

	require.NoError(t, err)
	assert.Contains(t, content, "<html>")
}

func TestRequireVariables(t *testing.T) {
	err := RequireVariables([]string{"a", "b", "c"},
		map[string]interface{}{"b": 1})

	require.Error(t, err)
	assert.Equal(t, errors.CodeMissingVariables, errors.CodeOf(err))
	assert.Equal(t, []string{"a", "c"}, errors.MissingVariableNames(err))
}

func TestRequireVariablesAllBound(t *testing.T) {
	err := RequireVariables([]string{"a"}, map[string]interface{}{"a": 1, "extra": 2})

	assert.NoError(t, err)
}
