package commands

import (
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"agora/internal/api"
	"agora/internal/config"
)

// Snapshot asks a running server to write a checkpoint through its admin API.
func Snapshot(cfg *config.Config, out io.Writer) error {
	url := fmt.Sprintf("http://%s/admin/snapshot", cfg.AdminAddr)
	resp, err := http.Post(url, "application/json", nil)
	if err != nil {
		return fmt.Errorf("failed to call admin API: %w. Is the server running?", err)
	}
	defer func() {
		_ = resp.Body.Close()
	}()

	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(resp.Body)
		return fmt.Errorf("failed to write snapshot (Status: %d): %s", resp.StatusCode, string(body))
	}

	var result api.SnapshotResponse
	if err := json.NewDecoder(resp.Body).Decode(&result); err != nil {
		return fmt.Errorf("failed to decode response: %w", err)
	}

	_, _ = fmt.Fprintf(out, "\nSnapshot written to %s\n", cfg.DBFile)
	_, _ = fmt.Fprintf(out, "Messages:  %d\n", result.Messages)
	_, _ = fmt.Fprintf(out, "Users:     %d\n", result.Users)
	_, _ = fmt.Fprintf(out, "Saved at:  %s\n\n", time.UnixMilli(result.SavedAt).Format(time.RFC3339))
	return nil
}
