package extract

import (
	"archive/zip"
	"bytes"
	"context"
	"encoding/xml"
	"errors"
	"fmt"
	"io"
	"net/http"
	"os"
	"path/filepath"
	"strings"
	"unicode/utf8"

	"chatanything/loader/internal"
)

// Text reads a UTF-8 text file as is.
type Text struct{}

func (Text) Extract(ctx context.Context, path string) (string, error) {
	data, err := readFile(ctx, path)
	if err != nil {
		return "", err
	}
	if !utf8.Valid(data) {
		return "", errors.New("file is not valid UTF-8")
	}
	return string(bytes.TrimPrefix(data, []byte("\xef\xbb\xbf"))), nil
}

// DOCX joins the paragraph text of word/document.xml with newlines.
type DOCX struct{}

func (DOCX) Extract(ctx context.Context, path string) (string, error) {
	data, err := readFile(ctx, path)
	if err != nil {
		return "", err
	}
	reader, err := zip.NewReader(bytes.NewReader(data), int64(len(data)))
	if err != nil {
		return "", fmt.Errorf("open docx: %w", err)
	}
	for _, file := range reader.File {
		if file.Name != "word/document.xml" {
			continue
		}
		rc, err := file.Open()
		if err != nil {
			return "", err
		}
		content, err := io.ReadAll(rc)
		rc.Close()
		if err != nil {
			return "", err
		}
		return parseDocumentXML(content)
	}
	return "", errors.New("docx has no word/document.xml")
}

type documentXML struct {
	Body struct {
		Paragraphs []paragraph `xml:"p"`
	} `xml:"body"`
}

type paragraph struct {
	Runs []run `xml:"r"`
}

type run struct {
	Text []textElement `xml:"t"`
}

type textElement struct {
	Content string `xml:",chardata"`
}

func parseDocumentXML(content []byte) (string, error) {
	var doc documentXML
	if err := xml.Unmarshal(content, &doc); err != nil {
		return "", fmt.Errorf("parse document.xml: %w", err)
	}
	paras := make([]string, 0, len(doc.Body.Paragraphs))
	for _, p := range doc.Body.Paragraphs {
		var b strings.Builder
		for _, r := range p.Runs {
			for _, t := range r.Text {
				b.WriteString(t.Content)
			}
		}
		paras = append(paras, b.String())
	}
	return strings.TrimSpace(strings.Join(paras, "\n")), nil
}

// PDF validates the file with pdfcpu, optionally crops page margins, and hands
// it to docling for markdown conversion.
type PDF struct {
	Docling    *internal.Docling
	CropTop    float64
	CropBottom float64
}

// NewPDF converts through the docling endpoint at doclingURL.
func NewPDF(doclingURL string, client *http.Client, cropTop, cropBottom float64) PDF {
	return PDF{
		Docling:    internal.NewDocling(doclingURL, client),
		CropTop:    cropTop,
		CropBottom: cropBottom,
	}
}

func (p PDF) Extract(ctx context.Context, path string) (string, error) {
	if err := ctx.Err(); err != nil {
		return "", err
	}
	pages, err := internal.InspectPDF(path)
	if err != nil {
		return "", err
	}
	if pages == 0 {
		return "", errors.New("PDF has no pages")
	}

	src := path
	if p.CropTop > 0 || p.CropBottom > 0 {
		tmp, err := os.CreateTemp("", "crop-*"+filepath.Ext(path))
		if err != nil {
			return "", err
		}
		tmp.Close()
		defer os.Remove(tmp.Name())
		if err := internal.CropMargins(path, tmp.Name(), p.CropTop, p.CropBottom); err != nil {
			return "", err
		}
		src = tmp.Name()
	}
	return p.Docling.ConvertFile(ctx, src)
}
