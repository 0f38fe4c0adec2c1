package templates

import (
	"bytes"
	"context"
	"fmt"
	"html/template"

	"notification-workers/internal/common/errors"
	"notification-workers/internal/models"
)

// Engine renders template titles and bodies against variable bindings.
// Notification rendering is strict: required variables are checked before any
// parse and unresolved bindings fail the render. Previews are lenient and
// synthesize placeholder values instead.
type Engine struct {
	loader *Loader
}

func NewEngine(loader *Loader) *Engine {
	return &Engine{loader: loader}
}

// RequireVariables verifies every declared variable is bound. Returns a
// MISSING_VARIABLES error naming exactly the unbound names.
func RequireVariables(declared []string, bindings map[string]interface{}) error {
	var missing []string
	for _, name := range declared {
		if _, ok := bindings[name]; !ok {
			missing = append(missing, name)
		}
	}
	if len(missing) > 0 {
		return errors.NewMissingVariables(missing)
	}
	return nil
}

// Render produces the final title and content for a notification. Wrapped
// leaf content renders inside the base template shell; a wrapped leaf with no
// base installed is a BASE_TEMPLATE_MISSING error, distinct from a template
// that is simply absent.
func (e *Engine) Render(ctx context.Context, t *models.Template, bindings map[string]interface{}) (title, content string, err error) {
	content, err = e.renderContent(ctx, t, bindings, true)
	if err != nil {
		return "", "", err
	}

	title, err = renderString("title", t.Title, bindings, true)
	if err != nil {
		return "", "", err
	}
	return title, content, nil
}

// RenderPreview renders content for display with test data. Nil bindings
// synthesize a "variable N" value per declared variable; unbound references
// render leniently instead of failing.
func (e *Engine) RenderPreview(ctx context.Context, t *models.Template, bindings map[string]interface{}) (string, error) {
	if bindings == nil {
		bindings = make(map[string]interface{}, len(t.Variables))
		for i, name := range t.Variables {
			bindings[name] = fmt.Sprintf("variable %d", i)
		}
	}
	return e.renderContent(ctx, t, bindings, false)
}

func (e *Engine) renderContent(ctx context.Context, t *models.Template, bindings map[string]interface{}, strict bool) (string, error) {
	if !IsWrapped(t.Content) {
		return renderString(t.Slug, t.Content, bindings, strict)
	}

	base, err := e.loader.Resolve(ctx, BaseTemplateSlug, Wrapped)
	if err != nil {
		if errors.CodeOf(err) == errors.CodeTemplateNotFound {
			return "", errors.NewBaseTemplateMissing()
		}
		return "", err
	}

	tmpl := template.New(BaseTemplateSlug)
	if strict {
		tmpl = tmpl.Option("missingkey=error")
	}
	if tmpl, err = tmpl.Parse(base.Content); err != nil {
		return "", fmt.Errorf("parse base template: %w", err)
	}
	// The leaf's content block overrides the base's empty block; its own
	// top-level text is only the extends comment and whitespace.
	if tmpl, err = tmpl.Parse(t.Content); err != nil {
		return "", fmt.Errorf("parse template %q: %w", t.Slug, err)
	}

	var buf bytes.Buffer
	if err := tmpl.ExecuteTemplate(&buf, BaseTemplateSlug, bindings); err != nil {
		return "", fmt.Errorf("render template %q: %w", t.Slug, err)
	}
	return buf.String(), nil
}

func renderString(name, body string, bindings map[string]interface{}, strict bool) (string, error) {
	tmpl := template.New(name)
	if strict {
		tmpl = tmpl.Option("missingkey=error")
	}
	tmpl, err := tmpl.Parse(body)
	if err != nil {
		return "", fmt.Errorf("parse template %q: %w", name, err)
	}

	var buf bytes.Buffer
	if err := tmpl.Execute(&buf, bindings); err != nil {
		return "", fmt.Errorf("render template %q: %w", name, err)
	}
	return buf.String(), nil
}
