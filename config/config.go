// Package config loads the single JSON connection document the processes are
// started with.
package config

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"time"

	"github.com/go-playground/validator/v10"
)

// EnvVar holds the JSON-encoded configuration.
const EnvVar = "CHAT_ANYTHING_CONFIG"

// Fixed retrieval settings.
const (
	ChunkSize    = 1512
	ChunkOverlap = 256
	NumChunks    = 3
	DefaultModel = "mistral-large2"
)

const (
	BackendPostgres = "postgres"
	BackendBleve    = "bleve"

	StageLocal = "local"
	StageGCS   = "gcs"

	TranscriptsMemory = "memory"
	TranscriptsRedis  = "redis"
)

type ServerConfig struct {
	Addr       string `json:"addr"`
	MediaDir   string `json:"media_dir"`
	UploadDir  string `json:"upload_dir"`
	ReadmePath string `json:"readme_path"`
}

type PostgresConfig struct {
	Host         string `json:"host"`
	Port         int    `json:"port" validate:"omitempty,min=1,max=65535"`
	User         string `json:"user"`
	Password     string `json:"password"`
	Database     string `json:"database"`
	SSLMode      string `json:"sslmode" validate:"omitempty,oneof=disable allow prefer require verify-ca verify-full"`
	EmbeddingDim int    `json:"embedding_dim" validate:"omitempty,min=1"`
}

// ConnString renders the keyword/value DSN pgx expects.
func (p PostgresConfig) ConnString() string {
	return fmt.Sprintf("host=%s port=%d user=%s password=%s dbname=%s sslmode=%s",
		p.Host, p.Port, p.User, p.Password, p.Database, p.SSLMode)
}

type BleveConfig struct {
	IndexPath string `json:"index_path"`
}

type OllamaConfig struct {
	GenerateURL    string `json:"generate_url" validate:"omitempty,url"`
	EmbeddingURL   string `json:"embedding_url" validate:"omitempty,url"`
	EmbeddingModel string `json:"embedding_model"`
	TimeoutSecs    int    `json:"timeout_secs" validate:"omitempty,min=1"`
}

type CompletionConfig struct {
	Model string `json:"model"`
}

type SpeechConfig struct {
	BaseURL   string `json:"base_url" validate:"omitempty,url"`
	APIKeyEnv string `json:"api_key_env"`
	Model     string `json:"model"`
	Voice     string `json:"voice"`
}

type TranscriptionConfig struct {
	CredentialsFile string `json:"credentials_file"`
	LanguageCode    string `json:"language_code"`
	FFmpegPath      string `json:"ffmpeg_path"`
}

type StageConfig struct {
	Type            string `json:"type" validate:"omitempty,oneof=local gcs"`
	Bucket          string `json:"bucket"`
	CredentialsFile string `json:"credentials_file"`
	LocalDir        string `json:"local_dir"`
	PublicBase      string `json:"public_base"`
	LinkSecret      string `json:"link_secret"`
	URLTTLSecs      int    `json:"url_ttl_secs" validate:"omitempty,min=1"`
}

func (s StageConfig) URLTTL() time.Duration {
	return time.Duration(s.URLTTLSecs) * time.Second
}

type TranscriptsConfig struct {
	Type          string `json:"type" validate:"omitempty,oneof=memory redis"`
	RedisAddr     string `json:"redis_addr" validate:"omitempty,hostname_port"`
	RedisPassword string `json:"redis_password"`
	RedisDB       int    `json:"redis_db" validate:"min=0"`
	TTLSecs       int    `json:"ttl_secs" validate:"min=0"`
}

type DoclingConfig struct {
	URL        string  `json:"url" validate:"omitempty,url"`
	CropTop    float64 `json:"crop_top" validate:"min=0"`
	CropBottom float64 `json:"crop_bottom" validate:"min=0"`
}

type WebConfig struct {
	TimeoutSecs int    `json:"timeout_secs" validate:"omitempty,min=1"`
	Headless    bool   `json:"headless"`
	UserAgent   string `json:"user_agent"`
}

type YouTubeConfig struct {
	Language string `json:"language"`
}

type LoaderConfig struct {
	InboxDir       string `json:"inbox_dir"`
	ArchiveDir     string `json:"archive_dir"`
	BadDir         string `json:"bad_dir"`
	SettleTimeSecs int    `json:"settle_time_secs" validate:"omitempty,min=1"`
}

func (l LoaderConfig) SettleTime() time.Duration {
	return time.Duration(l.SettleTimeSecs) * time.Second
}

// Config is the root configuration document.
type Config struct {
	Server        ServerConfig        `json:"server"`
	Backend       string              `json:"backend" validate:"omitempty,oneof=postgres bleve"`
	Postgres      PostgresConfig      `json:"postgres"`
	Bleve         BleveConfig         `json:"bleve"`
	Ollama        OllamaConfig        `json:"ollama"`
	Completion    CompletionConfig    `json:"completion"`
	Speech        SpeechConfig        `json:"speech"`
	Transcription TranscriptionConfig `json:"transcription"`
	Stage         StageConfig         `json:"stage"`
	Transcripts   TranscriptsConfig   `json:"transcripts"`
	Docling       DoclingConfig       `json:"docling"`
	Web           WebConfig           `json:"web"`
	YouTube       YouTubeConfig       `json:"youtube"`
	Loader        LoaderConfig        `json:"loader"`
}

// Load reads the configuration from EnvVar.
func Load() (*Config, error) {
	raw := os.Getenv(EnvVar)
	if raw == "" {
		return nil, fmt.Errorf("missing env var %s", EnvVar)
	}
	return Parse([]byte(raw))
}

// Parse decodes, defaults and validates a configuration document.
func Parse(data []byte) (*Config, error) {
	var cfg Config
	if err := json.Unmarshal(data, &cfg); err != nil {
		return nil, fmt.Errorf("decode %s: %w", EnvVar, err)
	}
	applyDefaults(&cfg)
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

func (c *Config) Validate() error {
	if err := validator.New().Struct(c); err != nil {
		return fmt.Errorf("invalid configuration: %w", err)
	}
	var errs []error
	if c.Backend == BackendPostgres {
		if c.Postgres.Host == "" || c.Postgres.Database == "" {
			errs = append(errs, errors.New("postgres backend requires host and database"))
		}
		if c.Ollama.EmbeddingURL == "" {
			errs = append(errs, errors.New("postgres backend requires ollama.embedding_url"))
		}
	}
	if c.Stage.Type == StageGCS && c.Stage.Bucket == "" {
		errs = append(errs, errors.New("gcs stage requires stage.bucket"))
	}
	if c.Transcripts.Type == TranscriptsRedis && c.Transcripts.RedisAddr == "" {
		errs = append(errs, errors.New("redis transcripts require transcripts.redis_addr"))
	}
	return errors.Join(errs...)
}

func applyDefaults(cfg *Config) {
	if cfg.Server.Addr == "" {
		cfg.Server.Addr = ":3000"
	}
	if cfg.Server.MediaDir == "" {
		cfg.Server.MediaDir = "media"
	}
	if cfg.Server.UploadDir == "" {
		cfg.Server.UploadDir = os.TempDir()
	}
	if cfg.Server.ReadmePath == "" {
		cfg.Server.ReadmePath = "README.md"
	}
	if cfg.Backend == "" {
		cfg.Backend = BackendPostgres
	}
	if cfg.Postgres.Port == 0 {
		cfg.Postgres.Port = 5432
	}
	if cfg.Postgres.SSLMode == "" {
		cfg.Postgres.SSLMode = "disable"
	}
	if cfg.Postgres.EmbeddingDim == 0 {
		cfg.Postgres.EmbeddingDim = 768
	}
	if cfg.Ollama.GenerateURL == "" {
		cfg.Ollama.GenerateURL = "http://localhost:11434/api/generate"
	}
	if cfg.Ollama.EmbeddingModel == "" {
		cfg.Ollama.EmbeddingModel = "nomic-embed-text"
	}
	if cfg.Ollama.TimeoutSecs == 0 {
		cfg.Ollama.TimeoutSecs = 300
	}
	if cfg.Completion.Model == "" {
		cfg.Completion.Model = DefaultModel
	}
	if cfg.Speech.APIKeyEnv == "" {
		cfg.Speech.APIKeyEnv = "OPENAI_API_KEY"
	}
	if cfg.Speech.Model == "" {
		cfg.Speech.Model = "tts-1"
	}
	if cfg.Speech.Voice == "" {
		cfg.Speech.Voice = "alloy"
	}
	if cfg.Transcription.LanguageCode == "" {
		cfg.Transcription.LanguageCode = "en-US"
	}
	if cfg.Transcription.FFmpegPath == "" {
		cfg.Transcription.FFmpegPath = "ffmpeg"
	}
	if cfg.Stage.Type == "" {
		cfg.Stage.Type = StageLocal
	}
	if cfg.Stage.LocalDir == "" {
		cfg.Stage.LocalDir = "media/docs"
	}
	if cfg.Stage.PublicBase == "" {
		cfg.Stage.PublicBase = "/media/docs"
	}
	if cfg.Stage.URLTTLSecs == 0 {
		cfg.Stage.URLTTLSecs = 360
	}
	if cfg.Transcripts.Type == "" {
		cfg.Transcripts.Type = TranscriptsMemory
	}
	if cfg.Docling.URL == "" {
		cfg.Docling.URL = "http://localhost:5001/v1/convert/file"
	}
	if cfg.Web.TimeoutSecs == 0 {
		cfg.Web.TimeoutSecs = 30
	}
	if cfg.YouTube.Language == "" {
		cfg.YouTube.Language = "en"
	}
	if cfg.Loader.InboxDir == "" {
		cfg.Loader.InboxDir = "inbox"
	}
	if cfg.Loader.ArchiveDir == "" {
		cfg.Loader.ArchiveDir = "archive"
	}
	if cfg.Loader.BadDir == "" {
		cfg.Loader.BadDir = "bad"
	}
	if cfg.Loader.SettleTimeSecs == 0 {
		cfg.Loader.SettleTimeSecs = 5
	}
}
