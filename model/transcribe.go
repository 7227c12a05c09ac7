package model

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"log/slog"
	"path/filepath"
	"strings"
	"time"

	speech "cloud.google.com/go/speech/apiv1"
	"cloud.google.com/go/speech/apiv1/speechpb"
	"github.com/google/uuid"
	"google.golang.org/api/option"
)

// InlineAudioLimit is the largest payload recognition accepts as request content.
const InlineAudioLimit = 10 << 20

// Transcriber converts recorded speech into text.
type Transcriber interface {
	Transcribe(ctx context.Context, audio []byte, mimeType string) (string, error)
}

// AudioBucket holds audio too large to send inline. URI returns the gs://
// address recognition reads the object from.
type AudioBucket interface {
	Put(ctx context.Context, name string, r io.Reader) error
	Delete(ctx context.Context, name string) error
	URI(name string) string
}

// GCPTranscriber uses Google Cloud Speech-to-Text long running recognition.
type GCPTranscriber struct {
	client       *speech.Client
	languageCode string
	bucket       AudioBucket
}

type TranscriberOption func(*GCPTranscriber)

// WithAudioBucket lets recordings over InlineAudioLimit go through the bucket.
func WithAudioBucket(b AudioBucket) TranscriberOption {
	return func(t *GCPTranscriber) {
		t.bucket = b
	}
}

func NewGCPTranscriber(ctx context.Context, credentialsFile, languageCode string, opts ...TranscriberOption) (*GCPTranscriber, error) {
	var clientOpts []option.ClientOption
	if credentialsFile != "" {
		clientOpts = append(clientOpts, option.WithCredentialsFile(credentialsFile))
	}
	c, err := speech.NewClient(ctx, clientOpts...)
	if err != nil {
		return nil, fmt.Errorf("speech client: %w", err)
	}
	if languageCode == "" {
		languageCode = "en-US"
	}
	t := &GCPTranscriber{client: c, languageCode: languageCode}
	for _, opt := range opts {
		opt(t)
	}
	return t, nil
}

func (t *GCPTranscriber) Close() error {
	if t == nil || t.client == nil {
		return nil
	}
	return t.client.Close()
}

func (t *GCPTranscriber) Transcribe(ctx context.Context, audio []byte, mimeType string) (string, error) {
	if len(audio) == 0 {
		return "", fmt.Errorf("empty audio")
	}
	ctx, cancel := context.WithTimeout(ctx, 30*time.Minute)
	defer cancel()

	source, cleanup, err := t.audioSource(ctx, audio, mimeType)
	if err != nil {
		return "", err
	}
	defer cleanup()

	req := &speechpb.LongRunningRecognizeRequest{
		Config: &speechpb.RecognitionConfig{
			LanguageCode:               t.languageCode,
			EnableAutomaticPunctuation: true,
			Encoding:                   EncodingFor(mimeType),
		},
		Audio: source,
	}

	op, err := t.client.LongRunningRecognize(ctx, req)
	if err != nil {
		return "", fmt.Errorf("longrunningrecognize: %w", err)
	}
	resp, err := op.Wait(ctx)
	if err != nil {
		return "", fmt.Errorf("longrunningrecognize wait: %w", err)
	}

	parts := make([]string, 0, len(resp.GetResults()))
	for _, r := range resp.GetResults() {
		alts := r.GetAlternatives()
		if len(alts) == 0 {
			continue
		}
		if s := strings.TrimSpace(alts[0].GetTranscript()); s != "" {
			parts = append(parts, s)
		}
	}
	return strings.Join(parts, " "), nil
}

// audioSource sends small recordings inline and stages larger ones in the
// bucket. cleanup removes the staged object.
func (t *GCPTranscriber) audioSource(ctx context.Context, audio []byte, name string) (*speechpb.RecognitionAudio, func(), error) {
	if len(audio) <= InlineAudioLimit {
		return &speechpb.RecognitionAudio{
			AudioSource: &speechpb.RecognitionAudio_Content{Content: audio},
		}, func() {}, nil
	}
	if t.bucket == nil {
		return nil, nil, fmt.Errorf("audio is %d bytes, over the %d byte inline recognition limit; a gcs stage is required for longer recordings",
			len(audio), InlineAudioLimit)
	}

	object := "transcribe/" + uuid.NewString() + strings.ToLower(filepath.Ext(name))
	if err := t.bucket.Put(ctx, object, bytes.NewReader(audio)); err != nil {
		return nil, nil, fmt.Errorf("stage audio for recognition: %w", err)
	}
	cleanup := func() {
		if err := t.bucket.Delete(context.Background(), object); err != nil {
			slog.Default().Warn("error to delete staged audio", "object", object, "err", err)
		}
	}
	return &speechpb.RecognitionAudio{
		AudioSource: &speechpb.RecognitionAudio_Uri{Uri: t.bucket.URI(object)},
	}, cleanup, nil
}

// EncodingFor maps a mime type or file name onto a recognition encoding.
func EncodingFor(mimeOrName string) speechpb.RecognitionConfig_AudioEncoding {
	m := strings.ToLower(strings.TrimSpace(mimeOrName))
	ext := filepath.Ext(m)
	switch {
	case strings.Contains(m, "wav") || ext == ".wav":
		return speechpb.RecognitionConfig_LINEAR16
	case strings.Contains(m, "flac") || ext == ".flac":
		return speechpb.RecognitionConfig_FLAC
	case strings.Contains(m, "mp3") || strings.Contains(m, "mpeg") || ext == ".mp3":
		return speechpb.RecognitionConfig_MP3
	case strings.Contains(m, "ogg") || ext == ".ogg" || ext == ".opus":
		return speechpb.RecognitionConfig_OGG_OPUS
	default:
		return speechpb.RecognitionConfig_ENCODING_UNSPECIFIED
	}
}
