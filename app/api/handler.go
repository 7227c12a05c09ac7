package api

import (
	"context"
	"time"

	"chatanything/app/agent"
	"chatanything/app/middleware"
	"chatanything/app/session"
	"chatanything/types"

	"github.com/gofiber/fiber/v2"
)

type Asker interface {
	Ask(ctx context.Context, sessionID, question string, opts agent.Options) (agent.Reply, error)
}

type Categorizer interface {
	Categories(ctx context.Context) ([]string, error)
}

type ChatHandler struct {
	agent       Asker
	transcripts session.Store
	categories  Categorizer
}

func NewChatHandler(a Asker, transcripts session.Store, categories Categorizer) *ChatHandler {
	return &ChatHandler{
		agent:       a,
		transcripts: transcripts,
		categories:  categories,
	}
}

func (h *ChatHandler) HandleAsk(c *fiber.Ctx) error {
	var params types.ChatParams
	if c.BodyParser(&params) != nil {
		return ErrBadRequest()
	}
	if errors := types.Validate(&params); len(errors) > 0 {
		return NewValidationError(errors)
	}
	if _, err := types.FilterFor(params.Category); err != nil {
		return NewError(fiber.StatusBadRequest, err.Error())
	}

	reply, err := h.agent.Ask(c.UserContext(), middleware.SessionID(c), params.Prompt, agent.Options{
		Category: params.Category,
		TTS:      params.TTS,
	})
	if err != nil {
		return err
	}

	resp := types.ChatResponse{
		Answer:    reply.Answer,
		Related:   reply.Related,
		Audio:     reply.Audio,
		Timestamp: time.Now(),
	}
	if reply.Err != nil {
		resp.Error = reply.Err.Error()
	}
	return c.JSON(resp)
}

func (h *ChatHandler) HandleHistory(c *fiber.Ctx) error {
	turns, err := h.transcripts.History(c.UserContext(), middleware.SessionID(c))
	if err != nil {
		return &types.StorageError{Op: "read transcript", Err: err}
	}
	if turns == nil {
		turns = []types.Turn{}
	}
	return c.JSON(fiber.Map{"turns": turns})
}

func (h *ChatHandler) HandleClear(c *fiber.Ctx) error {
	if err := h.transcripts.Clear(c.UserContext(), middleware.SessionID(c)); err != nil {
		return &types.StorageError{Op: "clear transcript", Err: err}
	}
	return c.JSON(fiber.Map{"message": "Chat history cleared!"})
}

func (h *ChatHandler) HandleCategories(c *fiber.Ctx) error {
	cats, err := h.categories.Categories(c.UserContext())
	if err != nil {
		return err
	}
	return c.JSON(cats)
}
