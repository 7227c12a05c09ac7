package extract

import (
	"context"
	"fmt"
	"os"
	"os/exec"
	"path/filepath"
	"strings"
	"time"

	"chatanything/model"
)

// Audio transcribes a recorded speech file.
type Audio struct {
	Transcriber model.Transcriber
}

func (a Audio) Extract(ctx context.Context, path string) (string, error) {
	data, err := readFile(ctx, path)
	if err != nil {
		return "", err
	}
	return a.Transcriber.Transcribe(ctx, data, filepath.Base(path))
}

// Video strips the audio track with ffmpeg and transcribes it.
type Video struct {
	FFmpegPath string
	Audio      Audio
	Timeout    time.Duration
}

func (v Video) Extract(ctx context.Context, path string) (string, error) {
	wav, err := v.extractAudio(ctx, path)
	if err != nil {
		return "", err
	}
	defer os.Remove(wav)
	return v.Audio.Extract(ctx, wav)
}

func (v Video) extractAudio(ctx context.Context, videoPath string) (string, error) {
	ffmpeg := v.FFmpegPath
	if ffmpeg == "" {
		ffmpeg = "ffmpeg"
	}
	if _, err := exec.LookPath(ffmpeg); err != nil {
		return "", fmt.Errorf("ffmpeg not found: %w", err)
	}
	timeout := v.Timeout
	if timeout <= 0 {
		timeout = 10 * time.Minute
	}

	out, err := os.CreateTemp("", "audio-*.wav")
	if err != nil {
		return "", err
	}
	out.Close()

	ctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	cmd := exec.CommandContext(ctx, ffmpeg,
		"-y",
		"-i", videoPath,
		"-vn",
		"-ac", "1",
		"-ar", "16000",
		"-f", "wav", out.Name(),
	)
	if msg, err := cmd.CombinedOutput(); err != nil {
		os.Remove(out.Name())
		return "", fmt.Errorf("ffmpeg extract audio failed: %w; out=%s", err, strings.TrimSpace(string(msg)))
	}
	return out.Name(), nil
}
