package api

import (
	"errors"
	"io/fs"
	"os"

	"github.com/gofiber/fiber/v2"
)

var Pages = []string{"Chat", "Upload Files", "Manage Documents", "About"}

type PageHandler struct {
	readmePath string
}

func NewPageHandler(readmePath string) *PageHandler {
	return &PageHandler{readmePath: readmePath}
}

func (h *PageHandler) HandlePages(c *fiber.Ctx) error {
	return c.JSON(Pages)
}

// HandleAbout serves the README as markdown.
func (h *PageHandler) HandleAbout(c *fiber.Ctx) error {
	data, err := os.ReadFile(h.readmePath)
	if errors.Is(err, fs.ErrNotExist) {
		return ErrNotFound(h.readmePath, "readme")
	}
	if err != nil {
		return err
	}
	c.Set(fiber.HeaderContentType, "text/markdown; charset=utf-8")
	return c.Send(data)
}
