package templates

import (
	"context"
	"regexp"
	"strings"

	"go.uber.org/zap"

	"notification-workers/internal/common/errors"
	"notification-workers/internal/models"
)

var slugPattern = regexp.MustCompile(`^[a-z]+[a-z0-9-]*$`)

const maxSlugLength = 128

// Store is the persistence surface the template service writes through.
// Lookups return a nil template with nil error when absent.
type Store interface {
	TemplateStore
	GetByID(ctx context.Context, id int64) (*models.Template, error)
	GetBase(ctx context.Context) (*models.Template, error)
	List(ctx context.Context, limit, offset int) ([]*models.Template, error)
	Insert(ctx context.Context, t *models.Template) (*models.Template, error)
	Update(ctx context.Context, t *models.Template) (*models.Template, error)
	Delete(ctx context.Context, id int64) error
	ReferenceCount(ctx context.Context, id int64) (int64, error)
}

// SubmitTemplate is a validated template submission.
type SubmitTemplate struct {
	Slug         string                 `json:"slug"`
	Name         string                 `json:"name"`
	Title        string                 `json:"title"`
	Content      string                 `json:"content"`
	IsBase       bool                   `json:"is_base"`
	SearchParams map[string]interface{} `json:"search_params,omitempty"`
}

// Service owns the template write path: validation, wrap-on-write, variable
// extraction and cache invalidation.
type Service struct {
	store  Store
	loader *Loader
	engine *Engine
	logger *zap.Logger
}

func NewService(store Store, loader *Loader, engine *Engine, logger *zap.Logger) *Service {
	return &Service{
		store:  store,
		loader: loader,
		engine: engine,
		logger: logger.With(zap.String("component", "template-service")),
	}
}

// Create validates and persists a new template. Non-base content is stored
// wrapped; base content must carry the content-block placeholder and only one
// base may exist system-wide.
func (s *Service) Create(ctx context.Context, in SubmitTemplate) (*models.Template, error) {
	t, err := s.prepare(ctx, in, in.IsBase)
	if err != nil {
		return nil, err
	}

	if in.IsBase {
		existing, err := s.store.GetBase(ctx)
		if err != nil {
			return nil, err
		}
		if existing != nil {
			return nil, errors.NewBaseTemplateExists()
		}
	}

	created, err := s.store.Insert(ctx, t)
	if err != nil {
		return nil, err
	}

	s.loader.Invalidate()
	s.logger.Info("template created",
		zap.String("slug", created.Slug),
		zap.Bool("is_base", created.IsBase),
	)
	return display(created), nil
}

// Update re-validates, re-wraps, and re-extracts variables. The is_base flag
// of the stored template is kept: base-ness cannot be toggled by update.
func (s *Service) Update(ctx context.Context, id int64, in SubmitTemplate) (*models.Template, error) {
	existing, err := s.store.GetByID(ctx, id)
	if err != nil {
		return nil, err
	}
	if existing == nil {
		return nil, errors.NewTemplateNotFound(in.Slug)
	}

	t, err := s.prepare(ctx, in, existing.IsBase)
	if err != nil {
		return nil, err
	}
	t.ID = existing.ID
	t.CreatedAt = existing.CreatedAt

	updated, err := s.store.Update(ctx, t)
	if err != nil {
		return nil, err
	}

	s.loader.Invalidate()
	s.logger.Info("template updated", zap.String("slug", updated.Slug))
	return display(updated), nil
}

// Delete removes a template. The base template and templates referenced by
// notifications are protected: the delete is rejected, never cascaded.
func (s *Service) Delete(ctx context.Context, id int64) (*models.Template, error) {
	t, err := s.store.GetByID(ctx, id)
	if err != nil {
		return nil, err
	}
	if t == nil {
		return nil, errors.NewTemplateNotFound("")
	}
	if t.IsBase {
		return nil, errors.NewBaseTemplateDelete()
	}

	refs, err := s.store.ReferenceCount(ctx, id)
	if err != nil {
		return nil, err
	}
	if refs > 0 {
		return nil, errors.NewTemplateInUse(t.Slug)
	}

	if err := s.store.Delete(ctx, id); err != nil {
		return nil, err
	}

	s.loader.Invalidate()
	s.logger.Info("template deleted", zap.String("slug", t.Slug))
	return display(t), nil
}

// Get returns a template with its content in display form (unwrapped).
func (s *Service) Get(ctx context.Context, id int64) (*models.Template, error) {
	t, err := s.store.GetByID(ctx, id)
	if err != nil {
		return nil, err
	}
	if t == nil {
		return nil, errors.NewTemplateNotFound("")
	}
	return display(t), nil
}

// List returns templates in display form.
func (s *Service) List(ctx context.Context, limit, offset int) ([]*models.Template, error) {
	ts, err := s.store.List(ctx, limit, offset)
	if err != nil {
		return nil, err
	}
	out := make([]*models.Template, len(ts))
	for i, t := range ts {
		out[i] = display(t)
	}
	return out, nil
}

// Preview renders a template with test data for display. Requires the base
// template to be installed; the freshly fetched object is pre-seeded into the
// loader cache so the render does not re-read it.
func (s *Service) Preview(ctx context.Context, id int64, bindings map[string]interface{}) (string, error) {
	t, err := s.store.GetByID(ctx, id)
	if err != nil {
		return "", err
	}
	if t == nil {
		return "", errors.NewTemplateNotFound("")
	}

	base, err := s.store.GetBase(ctx)
	if err != nil {
		return "", err
	}
	if base == nil {
		return "", errors.NewBaseTemplateMissing()
	}

	s.loader.Preload(t)
	s.loader.Preload(base)

	return s.engine.RenderPreview(ctx, t, bindings)
}

// prepare validates a submission and produces the storable template: slug
// notation, search param types, content-block presence for base templates,
// wrap-on-write for everything else, and variable extraction off the request
// goroutine.
func (s *Service) prepare(ctx context.Context, in SubmitTemplate, isBase bool) (*models.Template, error) {
	slug := in.Slug
	if isBase {
		// The base template always lives under the reserved slug.
		slug = BaseTemplateSlug
	}
	if len(slug) > maxSlugLength || !slugPattern.MatchString(slug) {
		return nil, errors.NewInvalidSlug(slug)
	}

	if err := validateSearchParams(in.SearchParams); err != nil {
		return nil, err
	}

	content := in.Content
	if isBase {
		if !containsPlaceholder(content) {
			return nil, errors.NewInvalidContent(ContentBlockPlaceholder)
		}
	} else {
		content = Wrap(content)
	}

	variables, err := ExtractAsync(ctx, content)
	if err != nil {
		return nil, errors.NewInvalidContent(err.Error())
	}

	return &models.Template{
		Slug:         slug,
		Name:         in.Name,
		Title:        in.Title,
		Content:      content,
		IsBase:       isBase,
		Variables:    variables,
		SearchParams: in.SearchParams,
	}, nil
}

func validateSearchParams(params map[string]interface{}) error {
	for name, value := range params {
		switch value.(type) {
		case string, bool, int, int64, float64:
		default:
			return errors.NewInvalidSearchParams(name)
		}
	}
	return nil
}

func containsPlaceholder(content string) bool {
	return strings.Contains(content, ContentBlockPlaceholder)
}

// display returns a copy with the wrapping stripped for user-facing reads.
func display(t *models.Template) *models.Template {
	out := t.Clone()
	if !out.IsBase && IsWrapped(out.Content) {
		out.Content = Unwrap(out.Content)
	}
	return out
}
