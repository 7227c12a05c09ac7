package api

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"io"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"chatanything/app/agent"
	"chatanything/app/middleware"
	"chatanything/app/session"
	"chatanything/config"
	"chatanything/types"

	"github.com/gofiber/fiber/v2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeAsker struct {
	reply   agent.Reply
	err     error
	session string
	opts    agent.Options
}

func (f *fakeAsker) Ask(_ context.Context, sessionID, _ string, opts agent.Options) (agent.Reply, error) {
	f.session, f.opts = sessionID, opts
	return f.reply, f.err
}

type fakeLibrary struct {
	docs    []string
	cats    []string
	deleted []string
	err     error
}

func (f *fakeLibrary) Documents(context.Context) ([]string, error) { return f.docs, f.err }
func (f *fakeLibrary) Categories(context.Context) ([]string, error) { return f.cats, f.err }
func (f *fakeLibrary) Delete(_ context.Context, paths []string) error {
	if f.err != nil {
		return f.err
	}
	f.deleted = append(f.deleted, paths...)
	return nil
}

type fakeIngester struct {
	got      types.Upload
	contents string
	err      error
}

func (f *fakeIngester) Ingest(_ context.Context, up types.Upload) (types.IngestResult, error) {
	f.got = up
	if !up.Category.IsURL() {
		data, _ := os.ReadFile(up.Source)
		f.contents = string(data)
	}
	if f.err != nil {
		return types.IngestResult{}, f.err
	}
	return types.IngestResult{Path: up.Path, Category: up.Category, Chunks: 2}, nil
}

func newApp() *fiber.App {
	app := fiber.New(fiber.Config{ErrorHandler: ErrorHandler})
	app.Use(middleware.Session(time.Hour))
	return app
}

func jsonRequest(method, target string, body any) *http.Request {
	data, _ := json.Marshal(body)
	req := httptest.NewRequest(method, target, bytes.NewReader(data))
	req.Header.Set("Content-Type", "application/json")
	return req
}

func decode(t *testing.T, resp *http.Response, v any) {
	t.Helper()
	defer resp.Body.Close()
	require.NoError(t, json.NewDecoder(resp.Body).Decode(v))
}

func TestChat_Ask(t *testing.T) {
	asker := &fakeAsker{reply: agent.Reply{
		Answer:  "Marie Curie.",
		Related: []types.RelatedDocument{{Path: "curie.pdf", URL: "/media/docs/curie.pdf"}},
	}}
	app := newApp()
	h := NewChatHandler(asker, session.NewMemoryStore(), &fakeLibrary{})
	app.Post("/chat", h.HandleAsk)

	resp, err := app.Test(jsonRequest(http.MethodPost, "/chat", fiber.Map{"prompt": "who?", "category": "PDF", "tts": true}))
	require.NoError(t, err)
	assert.Equal(t, http.StatusOK, resp.StatusCode)

	var out types.ChatResponse
	decode(t, resp, &out)
	assert.Equal(t, "Marie Curie.", out.Answer)
	assert.Len(t, out.Related, 1)
	assert.Empty(t, out.Error)
	assert.Equal(t, agent.Options{Category: "PDF", TTS: true}, asker.opts)
	assert.NotEmpty(t, asker.session)
}

func TestChat_AskReportsServiceError(t *testing.T) {
	asker := &fakeAsker{reply: agent.Reply{
		Answer: "Error generating response: quota",
		Err:    &types.CompletionServiceError{Model: "m", Err: errors.New("quota")},
	}}
	app := newApp()
	app.Post("/chat", NewChatHandler(asker, session.NewMemoryStore(), &fakeLibrary{}).HandleAsk)

	resp, err := app.Test(jsonRequest(http.MethodPost, "/chat", fiber.Map{"prompt": "q"}))
	require.NoError(t, err)
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	var out types.ChatResponse
	decode(t, resp, &out)
	assert.Equal(t, "Error generating response: quota", out.Answer)
	assert.Contains(t, out.Error, "quota")
}

func TestChat_AskValidation(t *testing.T) {
	app := newApp()
	app.Post("/chat", NewChatHandler(&fakeAsker{}, session.NewMemoryStore(), &fakeLibrary{}).HandleAsk)

	resp, err := app.Test(jsonRequest(http.MethodPost, "/chat", fiber.Map{"prompt": ""}))
	require.NoError(t, err)
	assert.Equal(t, http.StatusUnprocessableEntity, resp.StatusCode)

	resp, err = app.Test(jsonRequest(http.MethodPost, "/chat", fiber.Map{"prompt": "   "}))
	require.NoError(t, err)
	assert.Equal(t, http.StatusUnprocessableEntity, resp.StatusCode)

	resp, err = app.Test(jsonRequest(http.MethodPost, "/chat", fiber.Map{"prompt": "q", "category": "Spreadsheet"}))
	require.NoError(t, err)
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
}

func TestChat_HistoryAndClear(t *testing.T) {
	tr := session.NewMemoryStore()
	app := newApp()
	h := NewChatHandler(&fakeAsker{}, tr, &fakeLibrary{})
	app.Get("/chat", h.HandleHistory)
	app.Delete("/chat", h.HandleClear)

	resp, err := app.Test(httptest.NewRequest(http.MethodGet, "/chat", nil))
	require.NoError(t, err)
	var cookie *http.Cookie
	for _, c := range resp.Cookies() {
		if c.Name == middleware.SessionCookie {
			cookie = c
		}
	}
	require.NotNil(t, cookie)
	var empty struct{ Turns []types.Turn }
	decode(t, resp, &empty)
	assert.NotNil(t, empty.Turns)
	assert.Empty(t, empty.Turns)

	require.NoError(t, tr.Append(context.Background(), cookie.Value,
		types.Turn{Role: types.RoleUser, Content: "hi"},
		types.Turn{Role: types.RoleAssistant, Content: "Hello! How can I assist you?"},
	))

	req := httptest.NewRequest(http.MethodGet, "/chat", nil)
	req.AddCookie(cookie)
	resp, err = app.Test(req)
	require.NoError(t, err)
	var hist struct{ Turns []types.Turn }
	decode(t, resp, &hist)
	require.Len(t, hist.Turns, 2)
	assert.Equal(t, "hi", hist.Turns[0].Content)

	req = httptest.NewRequest(http.MethodDelete, "/chat", nil)
	req.AddCookie(cookie)
	resp, err = app.Test(req)
	require.NoError(t, err)
	var msg map[string]string
	decode(t, resp, &msg)
	assert.Equal(t, "Chat history cleared!", msg["message"])

	turns, err := tr.History(context.Background(), cookie.Value)
	require.NoError(t, err)
	assert.Empty(t, turns)
}

func TestChat_Categories(t *testing.T) {
	app := newApp()
	app.Get("/cats", NewChatHandler(&fakeAsker{}, session.NewMemoryStore(), &fakeLibrary{cats: []string{"All", "PDF"}}).HandleCategories)

	resp, err := app.Test(httptest.NewRequest(http.MethodGet, "/cats", nil))
	require.NoError(t, err)
	var cats []string
	decode(t, resp, &cats)
	assert.Equal(t, []string{"All", "PDF"}, cats)
}

func multipartUpload(t *testing.T, mediaType, filename, content string) *http.Request {
	t.Helper()
	var body bytes.Buffer
	w := multipart.NewWriter(&body)
	require.NoError(t, w.WriteField("media_type", mediaType))
	fw, err := w.CreateFormFile("file", filename)
	require.NoError(t, err)
	_, err = io.WriteString(fw, content)
	require.NoError(t, err)
	require.NoError(t, w.Close())
	req := httptest.NewRequest(http.MethodPost, "/upload", &body)
	req.Header.Set("Content-Type", w.FormDataContentType())
	return req
}

func TestUpload_File(t *testing.T) {
	dir := t.TempDir()
	ing := &fakeIngester{}
	app := newApp()
	app.Post("/upload", NewUploadHandler(ing, dir).HandleFile)

	resp, err := app.Test(multipartUpload(t, "TXT", "notes.txt", "hello there"))
	require.NoError(t, err)
	assert.Equal(t, http.StatusOK, resp.StatusCode)

	var out struct {
		Message string             `json:"message"`
		Result  types.IngestResult `json:"result"`
	}
	decode(t, resp, &out)
	assert.Equal(t, "Your TXT has been processed successfully You can now go to the chat section to converse.", out.Message)
	assert.Equal(t, 2, out.Result.Chunks)

	assert.Equal(t, "notes.txt", ing.got.Path)
	assert.Equal(t, types.CategoryTXT, ing.got.Category)
	assert.Equal(t, "hello there", ing.contents)
	assert.NoFileExists(t, ing.got.Source)

	entries, err := os.ReadDir(dir)
	require.NoError(t, err)
	assert.Empty(t, entries)
}

func TestUpload_FileRejected(t *testing.T) {
	ing := &fakeIngester{}
	app := newApp()
	app.Post("/upload", NewUploadHandler(ing, t.TempDir()).HandleFile)

	resp, err := app.Test(multipartUpload(t, "PDF", "notes.txt", "x"))
	require.NoError(t, err)
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)

	resp, err = app.Test(multipartUpload(t, "YouTube", "notes.txt", "x"))
	require.NoError(t, err)
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
	assert.Empty(t, ing.got.Path)
}

func TestUpload_ExtractionErrorIs422(t *testing.T) {
	ing := &fakeIngester{err: &types.ExtractionError{Category: types.CategoryTXT, Source: "x", Err: types.ErrEmptyContent}}
	app := newApp()
	app.Post("/upload", NewUploadHandler(ing, t.TempDir()).HandleFile)

	resp, err := app.Test(multipartUpload(t, "TXT", "empty.txt", ""))
	require.NoError(t, err)
	assert.Equal(t, http.StatusUnprocessableEntity, resp.StatusCode)
	var out Error
	decode(t, resp, &out)
	assert.Contains(t, out.Message, "no text could be extracted")
}

func TestUpload_URL(t *testing.T) {
	ing := &fakeIngester{}
	app := newApp()
	h := NewUploadHandler(ing, t.TempDir())
	app.Post("/upload/url", h.HandleURL)

	resp, err := app.Test(jsonRequest(http.MethodPost, "/upload/url", fiber.Map{
		"url":        "https://www.youtube.com/watch?v=dQw4w9WgXcQ",
		"media_type": "YouTube",
	}))
	require.NoError(t, err)
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, types.Upload{
		Source:   "https://www.youtube.com/watch?v=dQw4w9WgXcQ",
		Path:     "https://www.youtube.com/watch?v=dQw4w9WgXcQ",
		Category: types.CategoryYouTube,
	}, ing.got)

	resp, err = app.Test(jsonRequest(http.MethodPost, "/upload/url", fiber.Map{"url": "https://example.com", "media_type": "PDF"}))
	require.NoError(t, err)
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)

	resp, err = app.Test(jsonRequest(http.MethodPost, "/upload/url", fiber.Map{"url": "not a url", "media_type": "Web URL"}))
	require.NoError(t, err)
	assert.Equal(t, http.StatusUnprocessableEntity, resp.StatusCode)
}

func TestUpload_StorageErrorIs502(t *testing.T) {
	ing := &fakeIngester{err: &types.StorageError{Op: "insert chunk 1/1", Err: errors.New("down")}}
	app := newApp()
	app.Post("/upload/url", NewUploadHandler(ing, t.TempDir()).HandleURL)

	resp, err := app.Test(jsonRequest(http.MethodPost, "/upload/url", fiber.Map{"url": "https://example.com/a", "media_type": "Web URL"}))
	require.NoError(t, err)
	assert.Equal(t, http.StatusBadGateway, resp.StatusCode)
}

func TestUpload_Types(t *testing.T) {
	app := newApp()
	app.Get("/types", NewUploadHandler(&fakeIngester{}, "").HandleTypes)

	resp, err := app.Test(httptest.NewRequest(http.MethodGet, "/types", nil))
	require.NoError(t, err)
	var out []mediaType
	decode(t, resp, &out)
	require.Len(t, out, len(types.Categories))
	assert.Equal(t, types.CategoryPDF, out[0].MediaType)
	assert.Equal(t, []string{".pdf"}, out[0].Extensions)
	assert.True(t, out[3].URL)
}

func TestDocuments(t *testing.T) {
	lib := &fakeLibrary{}
	app := newApp()
	h := NewDocumentHandler(lib)
	app.Get("/documents", h.HandleList)
	app.Delete("/documents", h.HandleDelete)

	resp, err := app.Test(httptest.NewRequest(http.MethodGet, "/documents", nil))
	require.NoError(t, err)
	var empty struct {
		Documents []string `json:"documents"`
		Message   string   `json:"message"`
	}
	decode(t, resp, &empty)
	assert.Empty(t, empty.Documents)
	assert.Equal(t, "No documents available to manage.", empty.Message)

	lib.docs = []string{"a.txt", "b.pdf"}
	resp, err = app.Test(httptest.NewRequest(http.MethodGet, "/documents", nil))
	require.NoError(t, err)
	var list struct {
		Documents []string `json:"documents"`
	}
	decode(t, resp, &list)
	assert.Equal(t, []string{"a.txt", "b.pdf"}, list.Documents)

	resp, err = app.Test(jsonRequest(http.MethodDelete, "/documents", fiber.Map{"paths": []string{"a.txt"}}))
	require.NoError(t, err)
	var msg map[string]string
	decode(t, resp, &msg)
	assert.Equal(t, "Selected documents have been deleted successfully.", msg["message"])
	assert.Equal(t, []string{"a.txt"}, lib.deleted)

	resp, err = app.Test(jsonRequest(http.MethodDelete, "/documents", fiber.Map{"paths": []string{}}))
	require.NoError(t, err)
	assert.Equal(t, http.StatusUnprocessableEntity, resp.StatusCode)
}

func TestDocuments_DeleteFailure(t *testing.T) {
	lib := &fakeLibrary{err: &types.StorageError{Op: "delete documents", Err: errors.New("a.txt: locked")}}
	app := newApp()
	app.Delete("/documents", NewDocumentHandler(lib).HandleDelete)

	resp, err := app.Test(jsonRequest(http.MethodDelete, "/documents", fiber.Map{"paths": []string{"a.txt"}}))
	require.NoError(t, err)
	assert.Equal(t, http.StatusBadGateway, resp.StatusCode)
	var out Error
	decode(t, resp, &out)
	assert.True(t, strings.HasPrefix(out.Message, "Error deleting selected documents: "))
	assert.Contains(t, out.Message, "a.txt: locked")
}

func TestPages(t *testing.T) {
	readme := filepath.Join(t.TempDir(), "README.md")
	require.NoError(t, os.WriteFile(readme, []byte("# Chat Anything\n"), 0o644))

	app := newApp()
	h := NewPageHandler(readme)
	app.Get("/pages", h.HandlePages)
	app.Get("/about", h.HandleAbout)
	app.Get("/missing", NewPageHandler(filepath.Join(t.TempDir(), "nope.md")).HandleAbout)

	resp, err := app.Test(httptest.NewRequest(http.MethodGet, "/pages", nil))
	require.NoError(t, err)
	var pages []string
	decode(t, resp, &pages)
	assert.Equal(t, []string{"Chat", "Upload Files", "Manage Documents", "About"}, pages)

	resp, err = app.Test(httptest.NewRequest(http.MethodGet, "/about", nil))
	require.NoError(t, err)
	body, _ := io.ReadAll(resp.Body)
	assert.Equal(t, "# Chat Anything\n", string(body))
	assert.Contains(t, resp.Header.Get("Content-Type"), "text/markdown")

	resp, err = app.Test(httptest.NewRequest(http.MethodGet, "/missing", nil))
	require.NoError(t, err)
	assert.Equal(t, http.StatusNotFound, resp.StatusCode)
}

func TestSettings(t *testing.T) {
	cfg, err := config.Parse([]byte(`{"backend":"bleve"}`))
	require.NoError(t, err)
	app := newApp()
	app.Get("/settings", NewConfigHandler(cfg, false).HandleGetConfig)

	resp, err := app.Test(httptest.NewRequest(http.MethodGet, "/settings", nil))
	require.NoError(t, err)
	var s Settings
	decode(t, resp, &s)
	assert.Equal(t, Settings{
		Model:        "mistral-large2",
		Backend:      "bleve",
		ChunkSize:    1512,
		ChunkOverlap: 256,
		NumChunks:    3,
	}, s)
}

func TestErrorHandler_FiberError(t *testing.T) {
	app := newApp()
	app.Get("/boom", func(c *fiber.Ctx) error { return errors.New("boom") })

	resp, err := app.Test(httptest.NewRequest(http.MethodGet, "/nowhere", nil))
	require.NoError(t, err)
	assert.Equal(t, http.StatusNotFound, resp.StatusCode)

	resp, err = app.Test(httptest.NewRequest(http.MethodGet, "/boom", nil))
	require.NoError(t, err)
	assert.Equal(t, http.StatusInternalServerError, resp.StatusCode)
	var out Error
	decode(t, resp, &out)
	assert.Equal(t, Error{Code: 500, Message: "boom"}, out)
}
