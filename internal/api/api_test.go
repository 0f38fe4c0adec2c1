package api

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strconv"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"notification-workers/internal/dispatch"
	"notification-workers/internal/models"
	"notification-workers/internal/templates"
)

func init() {
	gin.SetMode(gin.TestMode)
}

// memTemplateStore is an in-memory templates.Store.
type memTemplateStore struct {
	nextID    int64
	templates map[int64]*models.Template
	refs      map[int64]int64
}

func newMemTemplateStore() *memTemplateStore {
	return &memTemplateStore{
		nextID:    1,
		templates: make(map[int64]*models.Template),
		refs:      make(map[int64]int64),
	}
}

func (m *memTemplateStore) GetBySlug(ctx context.Context, slug string) (*models.Template, error) {
	for _, t := range m.templates {
		if t.Slug == slug {
			return t, nil
		}
	}
	return nil, nil
}

func (m *memTemplateStore) GetByID(ctx context.Context, id int64) (*models.Template, error) {
	return m.templates[id], nil
}

func (m *memTemplateStore) GetBase(ctx context.Context) (*models.Template, error) {
	for _, t := range m.templates {
		if t.IsBase {
			return t, nil
		}
	}
	return nil, nil
}

func (m *memTemplateStore) List(ctx context.Context, limit, offset int) ([]*models.Template, error) {
	var out []*models.Template
	for id := int64(1); id < m.nextID; id++ {
		if t, ok := m.templates[id]; ok {
			out = append(out, t)
		}
	}
	return out, nil
}

func (m *memTemplateStore) Insert(ctx context.Context, t *models.Template) (*models.Template, error) {
	t.ID = m.nextID
	t.CreatedAt = time.Now()
	t.UpdatedAt = t.CreatedAt
	m.nextID++
	m.templates[t.ID] = t
	return t, nil
}

func (m *memTemplateStore) Update(ctx context.Context, t *models.Template) (*models.Template, error) {
	t.UpdatedAt = time.Now()
	m.templates[t.ID] = t
	return t, nil
}

func (m *memTemplateStore) Delete(ctx context.Context, id int64) error {
	delete(m.templates, id)
	return nil
}

func (m *memTemplateStore) ReferenceCount(ctx context.Context, id int64) (int64, error) {
	return m.refs[id], nil
}

type memNotificationStore struct {
	created []*models.Notification
	byID    map[uuid.UUID]*models.Notification
}

func (m *memNotificationStore) Create(ctx context.Context, n *models.Notification) (*models.Notification, error) {
	n.ID = uuid.New()
	n.CreatedAt = time.Now()
	m.created = append(m.created, n)
	return n, nil
}

func (m *memNotificationStore) GetByID(ctx context.Context, id uuid.UUID) (*models.Notification, error) {
	return m.byID[id], nil
}

type memMessageStore struct {
	byID map[uuid.UUID]*models.NotificationMessage
}

func (m *memMessageStore) MarkRead(ctx context.Context, id uuid.UUID) (*models.NotificationMessage, error) {
	msg, ok := m.byID[id]
	if !ok {
		return nil, nil
	}
	if msg.ReadAt == nil {
		now := time.Now()
		msg.ReadAt = &now
	}
	return msg, nil
}

func (m *memMessageStore) ListByUser(ctx context.Context, userID int64, limit, offset int) ([]*models.NotificationMessage, error) {
	var out []*models.NotificationMessage
	for _, msg := range m.byID {
		if msg.UserID != nil && *msg.UserID == userID {
			out = append(out, msg)
		}
	}
	return out, nil
}

type noopQueue struct {
	jobs []string
}

func (q *noopQueue) Enqueue(ctx context.Context, jobType string, payload interface{}) error {
	q.jobs = append(q.jobs, jobType)
	return nil
}

type fixture struct {
	router    *gin.Engine
	templates *memTemplateStore
	store     *memNotificationStore
	messages  *memMessageStore
	queue     *noopQueue
}

func newFixture(t *testing.T) *fixture {
	t.Helper()

	ts := newMemTemplateStore()
	loader := templates.NewLoader(ts)
	engine := templates.NewEngine(loader)
	svc := templates.NewService(ts, loader, engine, zap.NewNop())

	ns := &memNotificationStore{byID: make(map[uuid.UUID]*models.Notification)}
	queue := &noopQueue{}
	orch := dispatch.NewOrchestrator(ns, loader, queue, zap.NewNop())

	ms := &memMessageStore{byID: make(map[uuid.UUID]*models.NotificationMessage)}

	h := NewHandler(svc, orch, ms, zap.NewNop())
	return &fixture{router: h.Router(), templates: ts, store: ns, messages: ms, queue: queue}
}

func (f *fixture) do(t *testing.T, method, path string, body interface{}) *httptest.ResponseRecorder {
	t.Helper()
	var buf bytes.Buffer
	if body != nil {
		require.NoError(t, json.NewEncoder(&buf).Encode(body))
	}
	req := httptest.NewRequest(method, path, &buf)
	req.Header.Set("Content-Type", "application/json")
	w := httptest.NewRecorder()
	f.router.ServeHTTP(w, req)
	return w
}

func seedTemplates(t *testing.T, f *fixture) (base, leaf *models.Template) {
	t.Helper()
	var err error
	base, err = f.templates.Insert(context.Background(), &models.Template{
		Slug:    templates.BaseTemplateSlug,
		Content: "<html>" + templates.ContentBlockPlaceholder + "</html>",
		IsBase:  true,
	})
	require.NoError(t, err)
	leaf, err = f.templates.Insert(context.Background(), &models.Template{
		Slug:      "greeting",
		Title:     "Hello {{.name}}",
		Content:   templates.Wrap("<p>Hi {{.name}}</p>"),
		Variables: []string{"name"},
	})
	require.NoError(t, err)
	return base, leaf
}

func TestCreateTemplate(t *testing.T) {
	f := newFixture(t)

	w := f.do(t, http.MethodPost, "/api/v1/templates", templates.SubmitTemplate{
		Slug:    "welcome",
		Name:    "Welcome",
		Title:   "Welcome {{.name}}",
		Content: "<p>Hello {{.name}}</p>",
	})

	require.Equal(t, http.StatusCreated, w.Code)
	var got models.Template
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &got))
	assert.Equal(t, "welcome", got.Slug)
	assert.Equal(t, []string{"name"}, got.Variables)
}

func TestCreateTemplateInvalidSlug(t *testing.T) {
	f := newFixture(t)

	w := f.do(t, http.MethodPost, "/api/v1/templates", templates.SubmitTemplate{
		Slug:    "Not A Slug",
		Content: "x",
	})

	assert.Equal(t, http.StatusBadRequest, w.Code)
	assert.Contains(t, w.Body.String(), "INVALID_SLUG")
}

func TestGetTemplateNotFound(t *testing.T) {
	f := newFixture(t)

	w := f.do(t, http.MethodGet, "/api/v1/templates/99", nil)

	assert.Equal(t, http.StatusNotFound, w.Code)
	assert.Contains(t, w.Body.String(), "TEMPLATE_NOT_FOUND")
}

func TestDeleteBaseTemplateRejected(t *testing.T) {
	f := newFixture(t)
	base, _ := seedTemplates(t, f)

	w := f.do(t, http.MethodDelete, "/api/v1/templates/"+itoa(base.ID), nil)

	assert.Equal(t, http.StatusConflict, w.Code)
	assert.Contains(t, w.Body.String(), "BASE_TEMPLATE_DELETE")
}

func TestDeleteReferencedTemplateRejected(t *testing.T) {
	f := newFixture(t)
	_, leaf := seedTemplates(t, f)
	f.templates.refs[leaf.ID] = 2

	w := f.do(t, http.MethodDelete, "/api/v1/templates/"+itoa(leaf.ID), nil)

	assert.Equal(t, http.StatusConflict, w.Code)
	assert.Contains(t, w.Body.String(), "TEMPLATE_IN_USE")
}

func TestRenderTemplatePreview(t *testing.T) {
	f := newFixture(t)
	_, leaf := seedTemplates(t, f)

	w := f.do(t, http.MethodPost, "/api/v1/templates/"+itoa(leaf.ID)+"/render", renderRequest{
		TemplateData: map[string]interface{}{"name": "Ann"},
	})

	require.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), "Hi Ann")
}

func TestCreateNotification(t *testing.T) {
	f := newFixture(t)
	seedTemplates(t, f)

	w := f.do(t, http.MethodPost, "/api/v1/notifications/greeting", dispatch.CreateNotification{
		Contacts:     map[models.Channel]string{models.ChannelEmail: "ann@example.com"},
		TemplateData: map[string]interface{}{"name": "Ann"},
	})

	require.Equal(t, http.StatusCreated, w.Code)
	assert.Equal(t, []string{dispatch.JobDispatch}, f.queue.jobs)
	require.Len(t, f.store.created, 1)
}

func TestCreateNotificationMissingVariables(t *testing.T) {
	f := newFixture(t)
	seedTemplates(t, f)

	w := f.do(t, http.MethodPost, "/api/v1/notifications/greeting", dispatch.CreateNotification{
		Contacts:     map[models.Channel]string{models.ChannelEmail: "ann@example.com"},
		TemplateData: map[string]interface{}{},
	})

	assert.Equal(t, http.StatusBadRequest, w.Code)
	assert.Contains(t, w.Body.String(), "MISSING_VARIABLES")
}

func TestCreateNotificationUnknownTemplate(t *testing.T) {
	f := newFixture(t)

	w := f.do(t, http.MethodPost, "/api/v1/notifications/no-such", dispatch.CreateNotification{
		Contacts: map[models.Channel]string{models.ChannelEmail: "ann@example.com"},
	})

	assert.Equal(t, http.StatusNotFound, w.Code)
	assert.Contains(t, w.Body.String(), "TEMPLATE_NOT_FOUND")
}

func TestGetNotificationBadID(t *testing.T) {
	f := newFixture(t)

	w := f.do(t, http.MethodGet, "/api/v1/notifications/not-a-uuid", nil)

	assert.Equal(t, http.StatusBadRequest, w.Code)
}

func TestReadMessage(t *testing.T) {
	f := newFixture(t)
	id := uuid.New()
	f.messages.byID[id] = &models.NotificationMessage{ID: id, Channel: models.ChannelEmail}

	w := f.do(t, http.MethodPost, "/api/v1/messages/"+id.String()+"/read", nil)

	require.Equal(t, http.StatusOK, w.Code)
	var got models.NotificationMessage
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &got))
	assert.NotNil(t, got.ReadAt)
}

func TestReadMessageNotFound(t *testing.T) {
	f := newFixture(t)

	w := f.do(t, http.MethodPost, "/api/v1/messages/"+uuid.NewString()+"/read", nil)

	assert.Equal(t, http.StatusNotFound, w.Code)
}

func TestRoutesLiveUnderVersionPrefix(t *testing.T) {
	f := newFixture(t)

	assert.Equal(t, http.StatusOK, f.do(t, http.MethodGet, "/health", nil).Code)
	assert.Equal(t, http.StatusOK, f.do(t, http.MethodGet, "/api/v1/templates", nil).Code)
	assert.Equal(t, http.StatusNotFound, f.do(t, http.MethodGet, "/templates", nil).Code)
}

func itoa(id int64) string {
	return strconv.FormatInt(id, 10)
}
