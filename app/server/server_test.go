package server

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"chatanything/app/agent"
	"chatanything/app/deps"
	"chatanything/app/library"
	"chatanything/app/session"
	"chatanything/config"
	"chatanything/loader/extract"
	"chatanything/loader/service"
	"chatanything/metrics"
	"chatanything/model"
	"chatanything/store"
	"chatanything/types"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func testDeps(t *testing.T, stageOpts ...store.LocalStageOption) *deps.Deps {
	t.Helper()
	media := t.TempDir()
	cfg, err := config.Parse([]byte(`{"backend":"bleve","server":{"media_dir":` + quote(media) + `}}`))
	require.NoError(t, err)

	backend, err := store.NewBleveStore("")
	require.NoError(t, err)
	t.Cleanup(func() { _ = backend.Close() })
	stage, err := store.NewLocalStage(filepath.Join(media, "docs"), "/media/docs", stageOpts...)
	require.NoError(t, err)

	ollama := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = io.WriteString(w, `{"response":"It is about radium.","done":true}`)
	}))
	t.Cleanup(ollama.Close)

	m := metrics.New()
	reg := extract.NewRegistry()
	reg.Register(types.CategoryTXT, extract.Text{})
	tr := session.NewMemoryStore()
	lib := library.New(backend, stage, time.Minute)

	return &deps.Deps{
		Config:      cfg,
		Metrics:     m,
		Backend:     backend,
		Stage:       stage,
		Transcripts: tr,
		Extractors:  reg,
		Pipeline:    service.New(reg, backend, service.WithStage(stage), service.WithMetrics(m)),
		Library:     lib,
		Agent: agent.New(backend, model.NewOllamaCompleter(ollama.URL, time.Minute), tr,
			agent.WithLinker(lib), agent.WithMetrics(m)),
	}
}

func quote(s string) string {
	b, _ := json.Marshal(s)
	return string(b)
}

func TestRoutes(t *testing.T) {
	d := testDeps(t)
	app := NewApp(d)

	resp, err := app.Test(httptest.NewRequest(http.MethodGet, "/check/healthy", nil))
	require.NoError(t, err)
	assert.Equal(t, http.StatusOK, resp.StatusCode)

	resp, err = app.Test(httptest.NewRequest(http.MethodGet, "/api/v1/pages", nil))
	require.NoError(t, err)
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.NotEmpty(t, resp.Cookies())

	resp, err = app.Test(httptest.NewRequest(http.MethodGet, "/api/v1/chat/categories", nil))
	require.NoError(t, err)
	var cats []string
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&cats))
	assert.Equal(t, []string{"All"}, cats)
}

func TestIngestThenChat(t *testing.T) {
	d := testDeps(t)
	app := NewApp(d)

	src := filepath.Join(t.TempDir(), "radium.txt")
	require.NoError(t, os.WriteFile(src, []byte("Radium was discovered by Marie Curie."), 0o644))
	_, err := d.Pipeline.Ingest(context.Background(), types.Upload{Source: src, Path: "radium.txt", Category: types.CategoryTXT})
	require.NoError(t, err)

	body, _ := json.Marshal(map[string]any{"prompt": "radium", "category": "TXT"})
	req := httptest.NewRequest(http.MethodPost, "/api/v1/chat", bytes.NewReader(body))
	req.Header.Set("Content-Type", "application/json")
	resp, err := app.Test(req)
	require.NoError(t, err)
	require.Equal(t, http.StatusOK, resp.StatusCode)

	var out types.ChatResponse
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&out))
	assert.Equal(t, "It is about radium.", out.Answer)
	require.Len(t, out.Related, 1)
	assert.Equal(t, types.RelatedDocument{Path: "radium.txt", URL: "/media/docs/radium.txt"}, out.Related[0])

	resp, err = app.Test(httptest.NewRequest(http.MethodGet, "/media/docs/radium.txt", nil))
	require.NoError(t, err)
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	staged, _ := io.ReadAll(resp.Body)
	assert.Equal(t, "Radium was discovered by Marie Curie.", string(staged))

	resp, err = app.Test(httptest.NewRequest(http.MethodGet, "/metrics", nil))
	require.NoError(t, err)
	metricsBody, _ := io.ReadAll(resp.Body)
	assert.True(t, strings.Contains(string(metricsBody), `chatanything_chat_total{outcome="ok"} 1`))
	assert.True(t, strings.Contains(string(metricsBody), `chatanything_ingest_total{category="TXT",outcome="ok"} 1`))
}

func TestStaticGuard(t *testing.T) {
	d := testDeps(t)
	require.NoError(t, os.WriteFile(filepath.Join(d.Config.Server.MediaDir, ".secret"), []byte("x"), 0o644))
	app := NewApp(d)

	resp, err := app.Test(httptest.NewRequest(http.MethodGet, "/media/.secret", nil))
	require.NoError(t, err)
	assert.Equal(t, http.StatusNotFound, resp.StatusCode)
}

func TestSignedDocumentLinks(t *testing.T) {
	d := testDeps(t, store.WithLinkSecret([]byte("s3cret")))
	app := NewApp(d)
	ctx := context.Background()

	src := filepath.Join(t.TempDir(), "radium.txt")
	require.NoError(t, os.WriteFile(src, []byte("Radium glows."), 0o644))
	_, err := d.Pipeline.Ingest(ctx, types.Upload{Source: src, Path: "radium.txt", Category: types.CategoryTXT})
	require.NoError(t, err)

	link, err := d.Stage.URL(ctx, "radium.txt", time.Minute)
	require.NoError(t, err)
	require.True(t, strings.HasPrefix(link, "/media/docs/radium.txt?token="))

	resp, err := app.Test(httptest.NewRequest(http.MethodGet, link, nil))
	require.NoError(t, err)
	assert.Equal(t, http.StatusOK, resp.StatusCode)

	resp, err = app.Test(httptest.NewRequest(http.MethodGet, "/media/docs/radium.txt", nil))
	require.NoError(t, err)
	assert.Equal(t, http.StatusForbidden, resp.StatusCode)

	expired, err := d.Stage.URL(ctx, "radium.txt", -time.Second)
	require.NoError(t, err)
	resp, err = app.Test(httptest.NewRequest(http.MethodGet, expired, nil))
	require.NoError(t, err)
	assert.Equal(t, http.StatusForbidden, resp.StatusCode)
}
