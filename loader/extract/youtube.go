package extract

import (
	"context"
	"errors"
	"fmt"
	"html"
	"net/http"
	"net/url"
	"regexp"
	"strings"

	"github.com/kkdai/youtube/v2"
)

var errNoTranscript = errors.New("video has no transcript")

// Captions is the part of the YouTube client the extractor uses.
type Captions interface {
	GetVideoContext(ctx context.Context, url string) (*youtube.Video, error)
	GetTranscriptCtx(ctx context.Context, video *youtube.Video, lang string) (youtube.VideoTranscript, error)
}

// YouTube downloads the transcript of a video.
type YouTube struct {
	Client   Captions
	Language string
}

func NewYouTube(client *http.Client, language string) YouTube {
	return YouTube{Client: &youtube.Client{HTTPClient: client}, Language: language}
}

var videoIDRegex = regexp.MustCompile(`^[A-Za-z0-9_-]{11}$`)

// VideoID finds the video id in the common YouTube link shapes.
func VideoID(raw string) (string, error) {
	u, err := url.Parse(strings.TrimSpace(raw))
	if err != nil {
		return "", err
	}
	var id string
	host := strings.TrimPrefix(strings.ToLower(u.Host), "www.")
	switch {
	case host == "youtu.be":
		id = strings.Trim(u.Path, "/")
	case strings.HasSuffix(host, "youtube.com"):
		if v := u.Query().Get("v"); v != "" {
			id = v
			break
		}
		parts := strings.Split(strings.Trim(u.Path, "/"), "/")
		if len(parts) == 2 && (parts[0] == "shorts" || parts[0] == "embed" || parts[0] == "live") {
			id = parts[1]
		}
	}
	if !videoIDRegex.MatchString(id) {
		return "", fmt.Errorf("no video id in %q", raw)
	}
	return id, nil
}

func (y YouTube) Extract(ctx context.Context, videoURL string) (string, error) {
	id, err := VideoID(videoURL)
	if err != nil {
		return "", err
	}
	client := y.Client
	if client == nil {
		client = &youtube.Client{}
	}

	video, err := client.GetVideoContext(ctx, id)
	if err != nil {
		return "", fmt.Errorf("youtube video %s: %w", id, err)
	}
	lang := y.Language
	if track, ok := pickTrack(video.CaptionTracks, y.Language); ok {
		lang = track.LanguageCode
	}

	transcript, err := client.GetTranscriptCtx(ctx, video, lang)
	if errors.Is(err, youtube.ErrTranscriptDisabled) {
		return "", errNoTranscript
	}
	if err != nil {
		return "", fmt.Errorf("youtube transcript %s: %w", id, err)
	}

	lines := make([]string, 0, len(transcript))
	for _, seg := range transcript {
		if s := strings.TrimSpace(html.UnescapeString(seg.Text)); s != "" {
			lines = append(lines, s)
		}
	}
	if len(lines) == 0 {
		return "", errNoTranscript
	}
	return strings.Join(lines, " "), nil
}

// pickTrack prefers a manual track in lang, then a generated one, then
// whatever comes first.
func pickTrack(tracks []youtube.CaptionTrack, lang string) (youtube.CaptionTrack, bool) {
	if len(tracks) == 0 {
		return youtube.CaptionTrack{}, false
	}
	var generated *youtube.CaptionTrack
	for i, t := range tracks {
		if !strings.EqualFold(t.LanguageCode, lang) {
			continue
		}
		if t.Kind != "asr" {
			return t, true
		}
		if generated == nil {
			generated = &tracks[i]
		}
	}
	if generated != nil {
		return *generated, true
	}
	return tracks[0], true
}
