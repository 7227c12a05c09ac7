// Package deps builds the application state from configuration. The server
// and the loader share it so both talk to the same backend and stage.
package deps

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"path/filepath"
	"time"

	"chatanything/app/agent"
	"chatanything/app/library"
	"chatanything/app/session"
	"chatanything/config"
	"chatanything/loader/extract"
	"chatanything/loader/service"
	"chatanything/metrics"
	"chatanything/model"
	"chatanything/store"
	"chatanything/types"

	"github.com/google/uuid"
)

// AudioURLPrefix is where synthesized replies are served.
const AudioURLPrefix = "/media/audio"

// Deps is the explicit application state. Close releases everything it opened.
type Deps struct {
	Config      *config.Config
	Metrics     *metrics.Metrics
	Backend     store.Backend
	Stage       store.Stage
	Transcripts session.Store
	Extractors  *extract.Registry
	Pipeline    *service.Pipeline
	Library     *library.Library
	Agent       *agent.Agent
	// Speech reports whether replies can be read aloud.
	Speech bool

	closers []func() error
	logger  *slog.Logger
}

// Build opens every dependency. On error whatever was opened is closed.
func Build(ctx context.Context, cfg *config.Config) (*Deps, error) {
	return build(ctx, cfg, true)
}

// BuildIngest opens only what ingestion needs: the backend, the stage, the
// extractors and the pipeline.
func BuildIngest(ctx context.Context, cfg *config.Config) (*Deps, error) {
	return build(ctx, cfg, false)
}

func build(ctx context.Context, cfg *config.Config, chat bool) (_ *Deps, err error) {
	d := &Deps{
		Config:  cfg,
		Metrics: metrics.New(),
		logger:  slog.Default().With("component", "deps"),
	}
	defer func() {
		if err != nil {
			_ = d.Close()
		}
	}()

	if d.Backend, err = NewBackend(ctx, cfg); err != nil {
		return nil, err
	}
	d.closers = append(d.closers, d.Backend.Close)

	if d.Stage, err = d.newStage(ctx); err != nil {
		return nil, err
	}

	d.Extractors = d.newRegistry(ctx, d.Stage)
	d.Pipeline = service.New(d.Extractors, d.Backend,
		service.WithStage(d.Stage),
		service.WithMetrics(d.Metrics),
	)
	if !chat {
		return d, nil
	}

	d.Transcripts = NewTranscripts(ctx, cfg)
	d.closers = append(d.closers, d.Transcripts.Close)
	d.Library = library.New(d.Backend, d.Stage, cfg.Stage.URLTTL())

	opts := []agent.Option{
		agent.WithModel(cfg.Completion.Model),
		agent.WithLinker(d.Library),
		agent.WithMetrics(d.Metrics),
	}
	if synth := d.newSynthesizer(); synth != nil {
		d.Speech = true
		opts = append(opts, agent.WithSpeech(synth, filepath.Join(cfg.Server.MediaDir, "audio"), AudioURLPrefix))
	}
	completer := model.NewOllamaCompleter(cfg.Ollama.GenerateURL, time.Duration(cfg.Ollama.TimeoutSecs)*time.Second)
	d.Agent = agent.New(d.Backend, completer, d.Transcripts, opts...)

	return d, nil
}

// Close releases dependencies in reverse order of opening.
func (d *Deps) Close() error {
	var errs []error
	for i := len(d.closers) - 1; i >= 0; i-- {
		if err := d.closers[i](); err != nil {
			errs = append(errs, err)
		}
	}
	d.closers = nil
	return errors.Join(errs...)
}

// NewBackend opens the configured chunk table and search service.
func NewBackend(ctx context.Context, cfg *config.Config) (store.Backend, error) {
	switch cfg.Backend {
	case config.BackendBleve:
		b, err := store.NewBleveStore(cfg.Bleve.IndexPath)
		if err != nil {
			return nil, fmt.Errorf("error to open search index: %w", err)
		}
		return b, nil
	case config.BackendPostgres:
		embedder := model.NewEmbedder(cfg.Ollama.EmbeddingURL, cfg.Ollama.EmbeddingModel,
			time.Duration(cfg.Ollama.TimeoutSecs)*time.Second)
		pg, err := store.NewPostgresStore(ctx, cfg.Postgres.ConnString(), embedder, cfg.Postgres.EmbeddingDim)
		if err != nil {
			return nil, fmt.Errorf("error to connect to Postgres database: %w", err)
		}
		if err := pg.Init(ctx); err != nil {
			pg.Close()
			return nil, fmt.Errorf("error to create tables: %w", err)
		}
		return pg, nil
	default:
		return nil, fmt.Errorf("unknown backend %q", cfg.Backend)
	}
}

func (d *Deps) newStage(ctx context.Context) (store.Stage, error) {
	cfg := d.Config.Stage
	switch cfg.Type {
	case config.StageGCS:
		gcs, err := store.NewGCSStage(ctx, cfg.Bucket, cfg.CredentialsFile)
		if err != nil {
			return nil, err
		}
		d.closers = append(d.closers, gcs.Close)
		return gcs, nil
	default:
		secret := cfg.LinkSecret
		if secret == "" {
			d.logger.Info("no stage link_secret configured, document links last until restart")
			secret = uuid.NewString()
		}
		return store.NewLocalStage(cfg.LocalDir, cfg.PublicBase, store.WithLinkSecret([]byte(secret)))
	}
}

// NewTranscripts falls back to memory when redis is configured but unreachable.
func NewTranscripts(ctx context.Context, cfg *config.Config) session.Store {
	if cfg.Transcripts.Type != config.TranscriptsRedis {
		return session.NewMemoryStore()
	}
	rs := session.NewRedisStore(cfg.Transcripts.RedisAddr, cfg.Transcripts.RedisPassword,
		cfg.Transcripts.RedisDB, time.Duration(cfg.Transcripts.TTLSecs)*time.Second)
	pingCtx, cancel := context.WithTimeout(ctx, 3*time.Second)
	defer cancel()
	if err := rs.Ping(pingCtx); err != nil {
		slog.Default().Warn("redis unreachable, keeping transcripts in memory", "addr", cfg.Transcripts.RedisAddr, "err", err)
		_ = rs.Close()
		return session.NewMemoryStore()
	}
	return rs
}

func (d *Deps) newRegistry(ctx context.Context, stage store.Stage) *extract.Registry {
	r, closer := NewRegistry(ctx, d.Config, stage)
	if closer != nil {
		d.closers = append(d.closers, closer)
	}
	return r
}

// NewRegistry wires one extractor per category. Audio and video need speech
// recognition; when it cannot be set up they fail with the setup error. A GCS
// stage also carries recordings too large for inline recognition.
func NewRegistry(ctx context.Context, cfg *config.Config, stage store.Stage) (*extract.Registry, func() error) {
	r := extract.NewRegistry()
	web := time.Duration(cfg.Web.TimeoutSecs) * time.Second
	client := &http.Client{Timeout: web}

	r.Register(types.CategoryTXT, extract.Text{})
	r.Register(types.CategoryDOCX, extract.DOCX{})
	r.Register(types.CategoryPDF, extract.NewPDF(cfg.Docling.URL, &http.Client{Timeout: 10 * time.Minute},
		cfg.Docling.CropTop, cfg.Docling.CropBottom))

	var renderer extract.Renderer = extract.HTTPRenderer{Client: client, UserAgent: cfg.Web.UserAgent}
	if cfg.Web.Headless {
		renderer = extract.HeadlessRenderer{UserAgent: cfg.Web.UserAgent}
	}
	r.Register(types.CategoryWebURL, extract.Web{Renderer: renderer, Timeout: web})
	r.Register(types.CategoryYouTube, extract.NewYouTube(client, cfg.YouTube.Language))

	var topts []model.TranscriberOption
	if gcs, ok := stage.(*store.GCSStage); ok {
		topts = append(topts, model.WithAudioBucket(gcs))
	}
	transcriber, err := model.NewGCPTranscriber(ctx, cfg.Transcription.CredentialsFile, cfg.Transcription.LanguageCode, topts...)
	if err != nil {
		slog.Default().Warn("speech recognition unavailable", "err", err)
		unavailable := extract.Func(func(context.Context, string) (string, error) {
			return "", fmt.Errorf("speech recognition unavailable: %w", err)
		})
		r.Register(types.CategoryAudio, unavailable)
		r.Register(types.CategoryVideo, unavailable)
		return r, nil
	}
	audio := extract.Audio{Transcriber: transcriber}
	r.Register(types.CategoryAudio, audio)
	r.Register(types.CategoryVideo, extract.Video{FFmpegPath: cfg.Transcription.FFmpegPath, Audio: audio})
	return r, transcriber.Close
}

func (d *Deps) newSynthesizer() model.Synthesizer {
	cfg := d.Config.Speech
	if cfg.BaseURL == "" {
		return nil
	}
	s, err := model.NewSpeechClient(cfg.BaseURL, cfg.APIKeyEnv, cfg.Model, cfg.Voice)
	if err != nil {
		d.logger.Warn("text-to-speech disabled", "err", err)
		return nil
	}
	return s
}
