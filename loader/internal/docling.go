package internal

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"os"
	"path/filepath"
	"regexp"
	"strings"

	"chatanything/types"
)

// Docling converts documents to markdown through a docling-serve endpoint.
type Docling struct {
	url    string
	client *http.Client
}

func NewDocling(url string, client *http.Client) *Docling {
	if client == nil {
		client = http.DefaultClient
	}
	return &Docling{url: url, client: client}
}

func (d *Docling) ConvertFile(ctx context.Context, path string) (string, error) {
	file, err := os.Open(path)
	if err != nil {
		return "", err
	}
	defer file.Close()

	var buf bytes.Buffer
	writer := multipart.NewWriter(&buf)
	part, err := writer.CreateFormFile("files", filepath.Base(path))
	if err != nil {
		return "", err
	}
	if _, err := io.Copy(part, file); err != nil {
		return "", err
	}
	if err := writer.Close(); err != nil {
		return "", err
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, d.url, &buf)
	if err != nil {
		return "", err
	}
	req.Header.Set("Content-Type", writer.FormDataContentType())

	resp, err := d.client.Do(req)
	if err != nil {
		return "", fmt.Errorf("docling request: %w", err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return "", err
	}
	if resp.StatusCode != http.StatusOK {
		return "", fmt.Errorf("docling error: status %d, body: %s", resp.StatusCode, strings.TrimSpace(string(body)))
	}

	var converted types.DoclingResponse
	if err := json.Unmarshal(body, &converted); err != nil {
		return "", fmt.Errorf("decode docling response: %w", err)
	}
	return CleanMarkdown(converted.Document.MdContent), nil
}

var (
	imgRegex        = regexp.MustCompile(`!\[[^\]]*\]\(data:image\/[a-zA-Z]+;base64,[^)]+\)`)
	imgCommentRegex = regexp.MustCompile(`<!--\s*image\s*-->`)
	blankLinesRegex = regexp.MustCompile(`\n{3,}`)
)

// CleanMarkdown drops inline images and collapses runs of blank lines.
func CleanMarkdown(md string) string {
	md = imgRegex.ReplaceAllString(md, "")
	md = imgCommentRegex.ReplaceAllString(md, "")
	md = blankLinesRegex.ReplaceAllString(md, "\n\n")
	return strings.TrimSpace(md)
}
