package api

import (
	"chatanything/config"

	"github.com/gofiber/fiber/v2"
)

type Settings struct {
	Model        string `json:"model"`
	Backend      string `json:"backend"`
	ChunkSize    int    `json:"chunk_size"`
	ChunkOverlap int    `json:"chunk_overlap"`
	NumChunks    int    `json:"num_chunks"`
	TTS          bool   `json:"tts_available"`
}

type ConfigHandler struct {
	settings Settings
}

func NewConfigHandler(cfg *config.Config, ttsAvailable bool) *ConfigHandler {
	return &ConfigHandler{
		settings: Settings{
			Model:        cfg.Completion.Model,
			Backend:      cfg.Backend,
			ChunkSize:    config.ChunkSize,
			ChunkOverlap: config.ChunkOverlap,
			NumChunks:    config.NumChunks,
			TTS:          ttsAvailable,
		},
	}
}

func (h *ConfigHandler) HandleGetConfig(c *fiber.Ctx) error {
	return c.JSON(h.settings)
}
