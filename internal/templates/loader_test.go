package templates

import (
	"context"
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"notification-workers/internal/common/errors"
	"notification-workers/internal/models"
)

type countingStore struct {
	templates map[string]*models.Template
	calls     int
}

func (c *countingStore) GetBySlug(ctx context.Context, slug string) (*models.Template, error) {
	c.calls++
	return c.templates[slug], nil
}

func leafTemplate(slug string) *models.Template {
	return &models.Template{
		ID:      1,
		Slug:    slug,
		Title:   "Title",
		Content: Wrap("<p>{{.name}}</p>"),
	}
}

func TestResolveCachesHits(t *testing.T) {
	store := &countingStore{templates: map[string]*models.Template{
		"greeting": leafTemplate("greeting"),
	}}
	l := NewLoader(store)

	_, err := l.Resolve(context.Background(), "greeting", Wrapped)
	require.NoError(t, err)
	_, err = l.Resolve(context.Background(), "greeting", Wrapped)
	require.NoError(t, err)

	assert.Equal(t, 1, store.calls)
}

func TestResolveMiss(t *testing.T) {
	l := NewLoader(&countingStore{templates: map[string]*models.Template{}})

	_, err := l.Resolve(context.Background(), "absent", Wrapped)

	require.Error(t, err)
	assert.Equal(t, errors.CodeTemplateNotFound, errors.CodeOf(err))
}

func TestResolveWrapModes(t *testing.T) {
	store := &countingStore{templates: map[string]*models.Template{
		"greeting": leafTemplate("greeting"),
	}}
	l := NewLoader(store)

	wrapped, err := l.Resolve(context.Background(), "greeting", Wrapped)
	require.NoError(t, err)
	assert.True(t, IsWrapped(wrapped.Content))

	unwrapped, err := l.Resolve(context.Background(), "greeting", Unwrapped)
	require.NoError(t, err)
	assert.Equal(t, "<p>{{.name}}</p>", unwrapped.Content)

	// The cache keeps the stored form; an unwrapped read must not corrupt it.
	again, err := l.Resolve(context.Background(), "greeting", Wrapped)
	require.NoError(t, err)
	assert.True(t, IsWrapped(again.Content))
	assert.Equal(t, 1, store.calls)
}

func TestResolveTTLExpiry(t *testing.T) {
	store := &countingStore{templates: map[string]*models.Template{
		"greeting": leafTemplate("greeting"),
	}}
	l := NewLoader(store)

	clock := time.Date(2025, 3, 1, 12, 0, 0, 0, time.UTC)
	l.now = func() time.Time { return clock }

	_, err := l.Resolve(context.Background(), "greeting", Wrapped)
	require.NoError(t, err)

	clock = clock.Add(59 * time.Second)
	_, err = l.Resolve(context.Background(), "greeting", Wrapped)
	require.NoError(t, err)
	assert.Equal(t, 1, store.calls)

	clock = clock.Add(2 * time.Second)
	_, err = l.Resolve(context.Background(), "greeting", Wrapped)
	require.NoError(t, err)
	assert.Equal(t, 2, store.calls)
}

func TestResolveEvictsLeastRecentlyUsed(t *testing.T) {
	store := &countingStore{templates: make(map[string]*models.Template)}
	for i := 0; i < cacheMaxEntries+1; i++ {
		slug := fmt.Sprintf("slug-%02d", i)
		store.templates[slug] = leafTemplate(slug)
	}
	l := NewLoader(store)

	for i := 0; i < cacheMaxEntries; i++ {
		_, err := l.Resolve(context.Background(), fmt.Sprintf("slug-%02d", i), Wrapped)
		require.NoError(t, err)
	}
	// Touch slug-00 so slug-01 becomes the eviction candidate.
	_, err := l.Resolve(context.Background(), "slug-00", Wrapped)
	require.NoError(t, err)

	calls := store.calls
	_, err = l.Resolve(context.Background(), fmt.Sprintf("slug-%02d", cacheMaxEntries), Wrapped)
	require.NoError(t, err)
	require.Equal(t, calls+1, store.calls)

	// slug-00 survived; slug-01 was evicted.
	_, err = l.Resolve(context.Background(), "slug-00", Wrapped)
	require.NoError(t, err)
	assert.Equal(t, calls+1, store.calls)

	_, err = l.Resolve(context.Background(), "slug-01", Wrapped)
	require.NoError(t, err)
	assert.Equal(t, calls+2, store.calls)
}

func TestPreloadSkipsStoreRead(t *testing.T) {
	store := &countingStore{templates: map[string]*models.Template{}}
	l := NewLoader(store)

	l.Preload(leafTemplate("seeded"))

	got, err := l.Resolve(context.Background(), "seeded", Wrapped)
	require.NoError(t, err)
	assert.Equal(t, "seeded", got.Slug)
	assert.Equal(t, 0, store.calls)
}

func TestInvalidateDropsEverything(t *testing.T) {
	store := &countingStore{templates: map[string]*models.Template{
		"greeting": leafTemplate("greeting"),
	}}
	l := NewLoader(store)

	_, err := l.Resolve(context.Background(), "greeting", Wrapped)
	require.NoError(t, err)

	l.Invalidate()

	_, err = l.Resolve(context.Background(), "greeting", Wrapped)
	require.NoError(t, err)
	assert.Equal(t, 2, store.calls)
}

func TestResolveReturnsCopies(t *testing.T) {
	store := &countingStore{templates: map[string]*models.Template{
		"greeting": leafTemplate("greeting"),
	}}
	l := NewLoader(store)

	first, err := l.Resolve(context.Background(), "greeting", Wrapped)
	require.NoError(t, err)
	first.Content = "mutated"

	second, err := l.Resolve(context.Background(), "greeting", Wrapped)
	require.NoError(t, err)
	assert.NotEqual(t, "mutated", second.Content)
}
