package handlers

import (
	"encoding/json"
	"log/slog"
	"net/http"

	"github.com/jwebster45206/trail-engine/internal/config"
	"github.com/jwebster45206/trail-engine/pkg/chat"
)

// HealthResponse describes the configured pipeline. HasAPIKey is a
// boolean only; the key itself never leaves the process.
type HealthResponse struct {
	OK              bool                     `json:"ok"`
	Model           string                   `json:"model"`
	ModelCandidates []string                 `json:"modelCandidates"`
	RepairModel     string                   `json:"repairModel"`
	Provider        chat.ProviderPreferences `json:"provider"`
	Generation      GenerationSettings       `json:"generation"`
	HasAPIKey       bool                     `json:"hasApiKey"`
}

// GenerationSettings are the streaming-call generation parameters.
type GenerationSettings struct {
	MaxTokens   int     `json:"maxTokens"`
	Temperature float64 `json:"temperature"`
}

type HealthHandler struct {
	cfg    *config.Config
	logger *slog.Logger
}

func NewHealthHandler(cfg *config.Config, logger *slog.Logger) *HealthHandler {
	return &HealthHandler{
		cfg:    cfg,
		logger: logger,
	}
}

func (h *HealthHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	setCORSHeaders(w)
	w.Header().Set("Content-Type", "application/json")

	if r.Method != http.MethodGet {
		w.WriteHeader(http.StatusMethodNotAllowed)
		if err := json.NewEncoder(w).Encode(ErrorResponse{Error: "Method not allowed. Only GET is supported."}); err != nil {
			h.logger.Error("Failed to encode error response", "error", err)
		}
		return
	}

	h.logger.Debug("Health check requested",
		"method", r.Method,
		"path", r.URL.Path,
		"remote_addr", r.RemoteAddr)

	response := HealthResponse{
		OK:              true,
		Model:           h.cfg.Model,
		ModelCandidates: h.cfg.ModelCandidates(),
		RepairModel:     h.cfg.RepairModel,
		Provider: chat.NewProviderPreferences(
			h.cfg.ProviderSort,
			h.cfg.ProviderPartition,
			h.cfg.ProviderMinThroughput,
			h.cfg.ProviderMaxLatency,
		),
		Generation: GenerationSettings{
			MaxTokens:   h.cfg.MaxTokens,
			Temperature: h.cfg.Temperature,
		},
		HasAPIKey: h.cfg.APIKey != "",
	}

	w.WriteHeader(http.StatusOK)
	if err := json.NewEncoder(w).Encode(response); err != nil {
		h.logger.Error("Error encoding health response",
			"error", err,
			"method", r.Method,
			"path", r.URL.Path)
	}
}
