package api

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"

	"chatanything/types"

	"github.com/gofiber/fiber/v2"
	"github.com/google/uuid"
)

type Ingester interface {
	Ingest(ctx context.Context, up types.Upload) (types.IngestResult, error)
}

type UploadHandler struct {
	ingester  Ingester
	uploadDir string
	logger    *slog.Logger
}

func NewUploadHandler(ingester Ingester, uploadDir string) *UploadHandler {
	return &UploadHandler{
		ingester:  ingester,
		uploadDir: uploadDir,
		logger:    slog.Default().With("component", "upload"),
	}
}

type mediaType struct {
	MediaType  types.Category `json:"media_type"`
	Extensions []string       `json:"extensions,omitempty"`
	URL        bool           `json:"url"`
}

func (h *UploadHandler) HandleTypes(c *fiber.Ctx) error {
	out := make([]mediaType, 0, len(types.Categories))
	for _, cat := range types.Categories {
		out = append(out, mediaType{MediaType: cat, Extensions: cat.Extensions(), URL: cat.IsURL()})
	}
	return c.JSON(out)
}

// HandleFile ingests one uploaded file. The document is recorded under its
// original file name; the temporary copy is removed afterwards.
func (h *UploadHandler) HandleFile(c *fiber.Ctx) error {
	category, err := types.ParseCategory(c.FormValue("media_type"))
	if err != nil || category.IsURL() {
		return NewError(fiber.StatusBadRequest, fmt.Sprintf("invalid media type %q for file upload", c.FormValue("media_type")))
	}
	fileHeader, err := c.FormFile("file")
	if err != nil {
		return NewError(fiber.StatusBadRequest, "missing file")
	}
	name := filepath.Base(fileHeader.Filename)
	if !category.Accepts(name) {
		return ErrUnsupportedFile(name, category)
	}

	if err := os.MkdirAll(h.uploadDir, 0o755); err != nil {
		return err
	}
	tmp := filepath.Join(h.uploadDir, uuid.NewString()+filepath.Ext(name))
	if err := c.SaveFile(fileHeader, tmp); err != nil {
		return err
	}
	defer func() {
		if err := os.Remove(tmp); err != nil {
			h.logger.Warn("temporary upload not removed", "file", tmp, "err", err)
		}
	}()
	h.logger.Info("file uploaded", "name", name, "category", category, "size", fileHeader.Size)

	return h.ingest(c, types.Upload{Source: tmp, Path: name, Category: category})
}

func (h *UploadHandler) HandleURL(c *fiber.Ctx) error {
	var params types.URLUploadParams
	if c.BodyParser(&params) != nil {
		return ErrBadRequest()
	}
	if errors := types.Validate(&params); len(errors) > 0 {
		return NewValidationError(errors)
	}
	category, _ := types.ParseCategory(params.MediaType)
	if !category.IsURL() {
		return NewError(fiber.StatusBadRequest, fmt.Sprintf("media type %s needs a file upload", category))
	}
	return h.ingest(c, types.Upload{Source: params.URL, Path: params.URL, Category: category})
}

func (h *UploadHandler) ingest(c *fiber.Ctx, up types.Upload) error {
	res, err := h.ingester.Ingest(c.UserContext(), up)
	if err != nil {
		return err
	}
	return c.JSON(fiber.Map{
		"message": fmt.Sprintf("Your %s has been processed successfully You can now go to the chat section to converse.", up.Category),
		"result":  res,
	})
}
