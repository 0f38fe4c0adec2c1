package templates

import (
	"container/list"
	"context"
	"sync"
	"time"

	"notification-workers/internal/common/errors"
	"notification-workers/internal/models"
)

// WrapMode controls the form of the content a resolve returns. It is an
// explicit parameter on every call, never ambient state: dispatch rendering
// always needs Wrapped, user-facing display always needs Unwrapped.
type WrapMode int

const (
	// Wrapped returns leaf bodies with their base-extension wrapping intact.
	Wrapped WrapMode = iota
	// Unwrapped strips the wrapping before return.
	Unwrapped
)

const (
	cacheMaxEntries = 32
	cacheTTL        = 60 * time.Second
)

// TemplateStore is the persistence surface the loader reads through.
// A nil template with nil error means not found.
type TemplateStore interface {
	GetBySlug(ctx context.Context, slug string) (*models.Template, error)
}

type cacheEntry struct {
	slug     string
	template *models.Template
	storedAt time.Time
}

// Loader resolves templates by slug with a bounded TTL cache in front of the
// store. Safe for concurrent use; invalidation is last-writer-wins and may
// race briefly with an in-flight read, which is acceptable staleness bounded
// by the TTL.
type Loader struct {
	store TemplateStore

	mu      sync.Mutex
	entries map[string]*list.Element
	lru     *list.List // front = most recently used

	now func() time.Time
}

func NewLoader(store TemplateStore) *Loader {
	return &Loader{
		store:   store,
		entries: make(map[string]*list.Element),
		lru:     list.New(),
		now:     time.Now,
	}
}

// Resolve returns the template for slug, applying mode to the returned copy.
// The cache always keeps the stored (wrapped) form.
func (l *Loader) Resolve(ctx context.Context, slug string, mode WrapMode) (*models.Template, error) {
	t := l.cached(slug)
	if t == nil {
		var err error
		t, err = l.store.GetBySlug(ctx, slug)
		if err != nil {
			return nil, err
		}
		if t == nil {
			return nil, errors.NewTemplateNotFound(slug)
		}
		l.put(t)
	}

	out := t.Clone()
	if mode == Unwrapped && !out.IsBase && IsWrapped(out.Content) {
		out.Content = Unwrap(out.Content)
	}
	return out, nil
}

// Preload seeds the cache with a freshly fetched template, avoiding a
// redundant store read right after a write.
func (l *Loader) Preload(t *models.Template) {
	l.put(t)
}

// Invalidate drops every cache entry. Any template write calls this: wrapping
// state and variable sets can shift non-locally when the base changes, so
// whole-cache invalidation is the simple safe choice.
func (l *Loader) Invalidate() {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.entries = make(map[string]*list.Element)
	l.lru.Init()
}

func (l *Loader) cached(slug string) *models.Template {
	l.mu.Lock()
	defer l.mu.Unlock()

	el, ok := l.entries[slug]
	if !ok {
		return nil
	}
	entry := el.Value.(*cacheEntry)
	if l.now().Sub(entry.storedAt) >= cacheTTL {
		l.lru.Remove(el)
		delete(l.entries, slug)
		return nil
	}
	l.lru.MoveToFront(el)
	return entry.template
}

func (l *Loader) put(t *models.Template) {
	l.mu.Lock()
	defer l.mu.Unlock()

	if el, ok := l.entries[t.Slug]; ok {
		el.Value = &cacheEntry{slug: t.Slug, template: t, storedAt: l.now()}
		l.lru.MoveToFront(el)
		return
	}

	for l.lru.Len() >= cacheMaxEntries {
		oldest := l.lru.Back()
		if oldest == nil {
			break
		}
		l.lru.Remove(oldest)
		delete(l.entries, oldest.Value.(*cacheEntry).slug)
	}

	l.entries[t.Slug] = l.lru.PushFront(&cacheEntry{slug: t.Slug, template: t, storedAt: l.now()})
}
