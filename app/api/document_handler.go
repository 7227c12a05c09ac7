package api

import (
	"context"
	"fmt"

	"chatanything/types"

	"github.com/gofiber/fiber/v2"
)

type DocumentManager interface {
	Documents(ctx context.Context) ([]string, error)
	Delete(ctx context.Context, paths []string) error
}

type DocumentHandler struct {
	library DocumentManager
}

func NewDocumentHandler(library DocumentManager) *DocumentHandler {
	return &DocumentHandler{library: library}
}

func (h *DocumentHandler) HandleList(c *fiber.Ctx) error {
	docs, err := h.library.Documents(c.UserContext())
	if err != nil {
		return err
	}
	if len(docs) == 0 {
		return c.JSON(fiber.Map{
			"documents": []string{},
			"message":   "No documents available to manage.",
		})
	}
	return c.JSON(fiber.Map{"documents": docs})
}

func (h *DocumentHandler) HandleDelete(c *fiber.Ctx) error {
	var params types.DeleteParams
	if c.BodyParser(&params) != nil {
		return ErrBadRequest()
	}
	if errors := types.Validate(&params); len(errors) > 0 {
		return NewValidationError(errors)
	}
	if err := h.library.Delete(c.UserContext(), params.Paths); err != nil {
		return NewError(fiber.StatusBadGateway, fmt.Sprintf("Error deleting selected documents: %v", err))
	}
	return c.JSON(fiber.Map{"message": "Selected documents have been deleted successfully."})
}
