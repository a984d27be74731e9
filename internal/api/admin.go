package api

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"agora/internal/models"
)

// Checkpointer writes the current store state to durable storage.
type Checkpointer interface {
	Checkpoint(ctx context.Context) error
}

type AdminHandler struct {
	checkpointer Checkpointer
	stats        StatsSource
}

// StatsSource reports store sizes for admin replies.
type StatsSource interface {
	MessageCount() int
	UserCount() int
}

func NewAdminHandler(checkpointer Checkpointer, stats StatsSource) *AdminHandler {
	return &AdminHandler{checkpointer: checkpointer, stats: stats}
}

type SnapshotResponse struct {
	models.APIResponse
	Messages int   `json:"messages"`
	Users    int   `json:"users"`
	SavedAt  int64 `json:"savedAt"` // Unix ms
}

func (h *AdminHandler) SnapshotHandler(w http.ResponseWriter, r *http.Request) {
	if err := h.checkpointer.Checkpoint(r.Context()); err != nil {
		slog.Error("forced checkpoint failed", "error", err)
		writeJSONStatus(w, http.StatusInternalServerError, models.APIResponse{
			Success: false,
			Message: fmt.Sprintf("Failed to write snapshot: %v", err),
		})
		return
	}

	writeJSON(w, SnapshotResponse{
		APIResponse: models.APIResponse{Success: true, Message: "Snapshot written"},
		Messages:    h.stats.MessageCount(),
		Users:       h.stats.UserCount(),
		SavedAt:     time.Now().UnixMilli(),
	})
}
