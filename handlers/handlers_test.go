package handlers

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"io"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"

	"github.com/gofiber/fiber/v2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"

	"knowledge_backend/middleware"
	"knowledge_backend/models"
	"knowledge_backend/platform/database/testutil"
	"knowledge_backend/platform/events"
	"knowledge_backend/platform/llm"
	"knowledge_backend/platform/storage"
	"knowledge_backend/repository"
	"knowledge_backend/services"
)

const prefix = "/api/v1/knowledge-base"

type axisEmbedder struct{}

func (axisEmbedder) EmbedQuery(_ context.Context, text string) ([]float32, error) {
	if strings.Contains(strings.ToLower(text), "apple") {
		return []float32{1, 0, 0}, nil
	}
	return []float32{0, 1, 0}, nil
}

type recordingJobs struct {
	mu  sync.Mutex
	ids []string
}

func (j *recordingJobs) Submit(_ context.Context, id string) error {
	j.mu.Lock()
	defer j.mu.Unlock()
	j.ids = append(j.ids, id)
	return nil
}

type scriptedLLM struct {
	answers []string
	err     error
}

func (l *scriptedLLM) Chat(context.Context, llm.ChatRequest) (*llm.ChatResponse, error) {
	if l.err != nil {
		return nil, l.err
	}
	return &llm.ChatResponse{Answer: strings.Join(l.answers, "|")}, nil
}

func (l *scriptedLLM) Stream(_ context.Context, _ llm.ChatRequest, onChunk func(llm.StreamChunk) error) error {
	for _, a := range l.answers {
		if err := onChunk(llm.StreamChunk{ConversationID: "conv-1", Answer: a}); err != nil {
			return err
		}
	}
	return l.err
}

type testEnv struct {
	app   *fiber.App
	db    *gorm.DB
	store storage.Storage
	jobs  *recordingJobs
	llm   *scriptedLLM
}

func newTestEnv(t *testing.T) *testEnv {
	t.Helper()
	db := testutil.DB(t)
	store, err := storage.NewLocalStorage(t.TempDir())
	require.NoError(t, err)

	env := &testEnv{db: db, store: store, jobs: &recordingJobs{}, llm: &scriptedLLM{}}
	docs := repository.NewDocumentRepository(db)
	chunks := repository.NewChunkRepository(db)
	knowledge := services.NewKnowledgeService(docs, repository.NewTxRunner(db), store, env.jobs, events.NewLocalPublisher(), 1<<20)
	retrieval := services.NewRetrievalService(chunks, axisEmbedder{}, env.llm, services.RetrievalConfig{PreviewChars: 500, MaxDistance: 2})
	h := NewKnowledgeHandler(knowledge, retrieval)

	app := fiber.New(fiber.Config{ErrorHandler: ErrorHandler})
	kb := app.Group(prefix, middleware.RequireUser())
	kb.Post("/documents", h.Upload)
	kb.Get("/documents", h.List)
	kb.Get("/documents/:id", h.Get)
	kb.Get("/documents/:id/file", h.Download)
	kb.Patch("/documents/:id/group", h.UpdateGroup)
	kb.Post("/documents/:id/reingest", h.Reingest)
	kb.Delete("/documents/:id", h.Delete)
	kb.Post("/query", h.Query)
	kb.Post("/conversation/stream", h.ConversationStream)
	env.app = app
	return env
}

func (e *testEnv) do(t *testing.T, req *http.Request, user string) (*http.Response, []byte) {
	t.Helper()
	if user != "" {
		req.Header.Set(middleware.UserIDHeader, user)
	}
	resp, err := e.app.Test(req, -1)
	require.NoError(t, err)
	body, err := io.ReadAll(resp.Body)
	require.NoError(t, err)
	return resp, body
}

func jsonRequest(method, path string, body any) *http.Request {
	b, _ := json.Marshal(body)
	req := httptest.NewRequest(method, prefix+path, bytes.NewReader(b))
	req.Header.Set("Content-Type", "application/json")
	return req
}

func uploadRequest(t *testing.T, filename, content string, fields map[string]string) *http.Request {
	t.Helper()
	var buf bytes.Buffer
	mw := multipart.NewWriter(&buf)
	fw, err := mw.CreateFormFile("file", filename)
	require.NoError(t, err)
	_, err = fw.Write([]byte(content))
	require.NoError(t, err)
	for k, v := range fields {
		require.NoError(t, mw.WriteField(k, v))
	}
	require.NoError(t, mw.Close())

	req := httptest.NewRequest(http.MethodPost, prefix+"/documents", &buf)
	req.Header.Set("Content-Type", mw.FormDataContentType())
	return req
}

type envelope struct {
	Code    int             `json:"code"`
	Message string          `json:"message"`
	Data    json.RawMessage `json:"data"`
}

func decode[T any](t *testing.T, body []byte) (envelope, T) {
	t.Helper()
	var env envelope
	require.NoError(t, json.Unmarshal(body, &env))
	var data T
	if len(env.Data) > 0 {
		require.NoError(t, json.Unmarshal(env.Data, &data))
	}
	return env, data
}

func TestRequiresUser(t *testing.T) {
	env := newTestEnv(t)
	resp, body := env.do(t, httptest.NewRequest(http.MethodGet, prefix+"/documents", nil), "")
	assert.Equal(t, http.StatusUnauthorized, resp.StatusCode)
	e, _ := decode[any](t, body)
	assert.Equal(t, http.StatusUnauthorized, e.Code)
}

func TestDocumentLifecycle(t *testing.T) {
	env := newTestEnv(t)

	resp, body := env.do(t, uploadRequest(t, "notes.md", "# Apples\napples are red", map[string]string{"group_id": "g1"}), "u1")
	require.Equal(t, http.StatusCreated, resp.StatusCode, string(body))
	_, doc := decode[models.KnowledgeDocument](t, body)
	assert.Equal(t, models.StatusProcessing, doc.Status)
	assert.Equal(t, "notes.md", doc.OriginalFilename)
	require.NotNil(t, doc.GroupID)
	assert.Equal(t, "g1", *doc.GroupID)
	assert.Equal(t, []string{doc.ID}, env.jobs.ids)
	assert.NotContains(t, string(body), "file_path")

	resp, body = env.do(t, httptest.NewRequest(http.MethodGet, prefix+"/documents", nil), "u1")
	require.Equal(t, http.StatusOK, resp.StatusCode)
	_, list := decode[[]models.KnowledgeDocument](t, body)
	require.Len(t, list, 1)

	resp, body = env.do(t, httptest.NewRequest(http.MethodGet, prefix+"/documents?ungrouped=true", nil), "u1")
	require.Equal(t, http.StatusOK, resp.StatusCode)
	_, list = decode[[]models.KnowledgeDocument](t, body)
	assert.Empty(t, list)

	resp, _ = env.do(t, httptest.NewRequest(http.MethodGet, prefix+"/documents/"+doc.ID, nil), "u2")
	assert.Equal(t, http.StatusNotFound, resp.StatusCode)

	resp, body = env.do(t, httptest.NewRequest(http.MethodGet, prefix+"/documents/"+doc.ID+"/file", nil), "u1")
	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, "# Apples\napples are red", string(body))
	assert.Contains(t, resp.Header.Get("Content-Disposition"), "notes.md")

	resp, body = env.do(t, jsonRequest(http.MethodPatch, "/documents/"+doc.ID+"/group", map[string]any{"group_id": nil}), "u1")
	require.Equal(t, http.StatusOK, resp.StatusCode, string(body))
	_, updated := decode[models.KnowledgeDocument](t, body)
	assert.Nil(t, updated.GroupID)

	resp, body = env.do(t, httptest.NewRequest(http.MethodPost, prefix+"/documents/"+doc.ID+"/reingest", nil), "u1")
	assert.Equal(t, http.StatusConflict, resp.StatusCode, string(body))
	assert.Len(t, env.jobs.ids, 1)

	require.NoError(t, env.db.Model(&models.KnowledgeDocument{}).Where("id = ?", doc.ID).
		Update("status", models.StatusFailed).Error)
	resp, _ = env.do(t, httptest.NewRequest(http.MethodPost, prefix+"/documents/"+doc.ID+"/reingest", nil), "u1")
	assert.Equal(t, http.StatusAccepted, resp.StatusCode)
	assert.Len(t, env.jobs.ids, 2)

	resp, _ = env.do(t, httptest.NewRequest(http.MethodDelete, prefix+"/documents/"+doc.ID, nil), "u1")
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	resp, _ = env.do(t, httptest.NewRequest(http.MethodGet, prefix+"/documents/"+doc.ID, nil), "u1")
	assert.Equal(t, http.StatusNotFound, resp.StatusCode)
}

func TestUploadWithoutFile(t *testing.T) {
	env := newTestEnv(t)
	req := httptest.NewRequest(http.MethodPost, prefix+"/documents", strings.NewReader("{}"))
	req.Header.Set("Content-Type", "application/json")
	resp, _ := env.do(t, req, "u1")
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
}

func TestDownloadMissingFileIsGone(t *testing.T) {
	env := newTestEnv(t)
	doc := testutil.SeedDocument(t, context.Background(), env.db, "u1", models.StatusReady)
	resp, body := env.do(t, httptest.NewRequest(http.MethodGet, prefix+"/documents/"+doc.ID+"/file", nil), "u1")
	assert.Equal(t, http.StatusGone, resp.StatusCode)
	e, _ := decode[any](t, body)
	assert.Equal(t, "Document file missing", e.Message)
}

func seedSearchable(t *testing.T, env *testEnv) *models.KnowledgeDocument {
	t.Helper()
	ctx := context.Background()
	doc := testutil.SeedDocument(t, ctx, env.db, "u1", models.StatusReady)
	testutil.SeedChunk(t, ctx, env.db, doc.ID, 0, "Apples are red.", []float32{1, 0, 0})
	testutil.SeedChunk(t, ctx, env.db, doc.ID, 1, "Bananas are yellow.", []float32{0, 1, 0})
	return doc
}

func TestQuery(t *testing.T) {
	env := newTestEnv(t)
	doc := seedSearchable(t, env)

	resp, body := env.do(t, jsonRequest(http.MethodPost, "/query", map[string]any{"question": "apple?", "top_k": 1}), "u1")
	require.Equal(t, http.StatusOK, resp.StatusCode, string(body))
	_, out := decode[models.QueryResponse](t, body)
	assert.Nil(t, out.Answer)
	require.Len(t, out.Contexts, 1)
	assert.Equal(t, doc.ID, out.Contexts[0].DocumentID)
	assert.Equal(t, "Apples are red.", out.Contexts[0].Content)

	resp, _ = env.do(t, jsonRequest(http.MethodPost, "/query", map[string]any{"question": "apple?"}), "u2")
	require.Equal(t, http.StatusOK, resp.StatusCode)

	env.llm.answers = []string{"red"}
	resp, body = env.do(t, jsonRequest(http.MethodPost, "/query", map[string]any{"question": "apple?", "generate_answer": true}), "u1")
	require.Equal(t, http.StatusOK, resp.StatusCode)
	_, out = decode[models.QueryResponse](t, body)
	require.NotNil(t, out.Answer)
	assert.Equal(t, "red", *out.Answer)
}

func TestQueryValidation(t *testing.T) {
	env := newTestEnv(t)
	tests := []struct {
		name string
		body any
	}{
		{"empty question", map[string]any{"question": " "}},
		{"top_k too large", map[string]any{"question": "q", "top_k": 21}},
		{"negative top_k", map[string]any{"question": "q", "top_k": -1}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			resp, _ := env.do(t, jsonRequest(http.MethodPost, "/query", tt.body), "u1")
			assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
		})
	}
}

func TestQueryNotConfigured(t *testing.T) {
	env := newTestEnv(t)
	seedSearchable(t, env)
	env.llm.err = services.ErrNotConfigured

	resp, body := env.do(t, jsonRequest(http.MethodPost, "/query", map[string]any{"question": "apple", "generate_answer": true}), "u1")
	assert.Equal(t, http.StatusInternalServerError, resp.StatusCode)
	assert.Contains(t, string(body), "service not configured")
}

func TestConversationStream(t *testing.T) {
	env := newTestEnv(t)
	seedSearchable(t, env)
	env.llm.answers = []string{"Hi", "Hi there", "Hi there!"}

	resp, body := env.do(t, jsonRequest(http.MethodPost, "/conversation/stream", map[string]any{"question": "apple", "top_k": 1}), "u1")
	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, "text/event-stream", resp.Header.Get("Content-Type"))

	frames := strings.Split(strings.TrimSuffix(string(body), "\n\n"), "\n\n")
	require.Len(t, frames, 6)
	assert.True(t, strings.HasPrefix(frames[0], "event: context\ndata: {\"contexts\":["))
	assert.Equal(t, "event: meta\ndata: {\"conversation_id\":\"conv-1\"}", frames[1])
	assert.Equal(t, "event: delta\ndata: {\"text\":\"Hi\"}", frames[2])
	assert.Equal(t, "event: delta\ndata: {\"text\":\" there\"}", frames[3])
	assert.Equal(t, "event: delta\ndata: {\"text\":\"!\"}", frames[4])
	assert.Equal(t, "event: done\ndata: {\"ok\":true}", frames[5])
}

func TestConversationStreamProviderError(t *testing.T) {
	env := newTestEnv(t)
	seedSearchable(t, env)
	env.llm.err = errors.New("llm call failed: 502 bad gateway")

	resp, body := env.do(t, jsonRequest(http.MethodPost, "/conversation/stream", map[string]any{"question": "apple"}), "u1")
	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.True(t, strings.HasSuffix(string(body), "event: error\ndata: {\"message\":\"llm call failed: 502 bad gateway\"}\n\n"))
	assert.NotContains(t, string(body), "event: done")
}

func TestConversationStreamValidation(t *testing.T) {
	env := newTestEnv(t)
	resp, _ := env.do(t, jsonRequest(http.MethodPost, "/conversation/stream", map[string]any{"question": ""}), "u1")
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
}

type pingStub struct{ err error }

func (p pingStub) Ping(context.Context) error { return p.err }

func TestHealth(t *testing.T) {
	app := fiber.New(fiber.Config{ErrorHandler: ErrorHandler})
	app.Get("/healthz", NewHealthHandler(map[string]Pinger{"database": pingStub{}}).Health)
	app.Get("/sick", NewHealthHandler(map[string]Pinger{"redis": pingStub{err: errors.New("down")}}).Health)

	resp, err := app.Test(httptest.NewRequest(http.MethodGet, "/healthz", nil))
	require.NoError(t, err)
	assert.Equal(t, http.StatusOK, resp.StatusCode)

	resp, err = app.Test(httptest.NewRequest(http.MethodGet, "/sick", nil))
	require.NoError(t, err)
	assert.Equal(t, http.StatusServiceUnavailable, resp.StatusCode)
}
