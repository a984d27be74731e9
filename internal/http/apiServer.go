package http

import (
	"context"
	"log/slog"
	"net/http"
	"sync"

	"agora/internal/api"
	"agora/internal/metrics"
)

type APIServer struct {
	server *http.Server
	wg     sync.WaitGroup
}

func NewAPIServer(apiHandlers *api.API, m *metrics.Metrics, addr string) *APIServer {
	mux := http.NewServeMux()
	handle := func(pattern string, h http.HandlerFunc) {
		mux.Handle(pattern, m.Instrument(pattern, h))
	}
	auth := apiHandlers.RequireAuth

	// Session
	handle("POST /api/session", apiHandlers.RequireLimit(apiHandlers.SessionHandler))
	handle("DELETE /api/session", auth(apiHandlers.EndSessionHandler))

	// Users
	handle("GET /api/me", auth(apiHandlers.MeHandler))
	handle("POST /api/users", auth(apiHandlers.RegisterHandler))
	handle("PATCH /api/users/me", auth(apiHandlers.UpdateProfileHandler))
	handle("PUT /api/users/me/status", auth(apiHandlers.StatusHandler))
	handle("DELETE /api/users/me", auth(apiHandlers.DeleteAccountHandler))
	handle("GET /api/users", auth(apiHandlers.UsersHandler))
	handle("GET /api/users/search", auth(apiHandlers.SearchUsersHandler))
	handle("GET /api/users/{id}/role", auth(apiHandlers.UserRoleHandler))
	handle("GET /api/users/{id}/message-count", auth(apiHandlers.UserMessageCountHandler))
	handle("POST /api/users/{id}/ban", auth(apiHandlers.BanHandler))
	handle("DELETE /api/users/{id}/ban", auth(apiHandlers.UnbanHandler))
	handle("POST /api/users/{id}/moderator", auth(apiHandlers.AddModeratorHandler))
	handle("DELETE /api/users/{id}/moderator", auth(apiHandlers.RemoveModeratorHandler))
	handle("POST /api/users/{id}/admin", auth(apiHandlers.AddAdminHandler))
	handle("POST /api/users/{id}/transfer-admin", auth(apiHandlers.TransferAdminHandler))

	// Rooms and messages
	handle("GET /api/rooms", auth(apiHandlers.RoomsHandler))
	handle("POST /api/rooms", auth(apiHandlers.CreateRoomHandler))
	handle("GET /api/rooms/{room}/messages", auth(apiHandlers.MessagesHandler))
	handle("POST /api/rooms/{room}/messages", auth(apiHandlers.SendHandler))
	handle("GET /api/rooms/{room}/stats", auth(apiHandlers.RoomStatsHandler))
	handle("GET /api/rooms/{room}/pins", auth(apiHandlers.PinsHandler))
	handle("GET /api/messages/{id}", auth(apiHandlers.MessageHandler))
	handle("PATCH /api/messages/{id}", auth(apiHandlers.EditHandler))
	handle("DELETE /api/messages/{id}", auth(apiHandlers.DeleteHandler))
	handle("POST /api/messages/{id}/pin", auth(apiHandlers.PinHandler))
	handle("DELETE /api/messages/{id}/pin", auth(apiHandlers.UnpinHandler))
	handle("POST /api/messages/{id}/reactions", auth(apiHandlers.ReactionHandler))
	handle("GET /api/messages/{id}/thread", auth(apiHandlers.ThreadHandler))
	handle("GET /api/search", auth(apiHandlers.SearchHandler))
	handle("GET /api/stats", auth(apiHandlers.StatsHandler))

	// Moderation
	handle("GET /api/audit", auth(apiHandlers.AuditHandler))
	handle("POST /api/admin/clear-messages", auth(apiHandlers.ClearMessagesHandler))
	handle("POST /api/admin/clear-users", auth(apiHandlers.ClearUsersHandler))

	if addr == "" {
		addr = ":8080"
	}

	return &APIServer{
		server: &http.Server{
			Addr:    addr,
			Handler: mux,
		},
	}
}

func (s *APIServer) Start() error {
	slog.Info("API server started", "addr", s.server.Addr)
	s.wg.Add(1)
	defer s.wg.Done()

	if err := s.server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		return err
	}
	return nil
}

func (s *APIServer) Shutdown(ctx context.Context) error {
	defer s.wg.Wait()
	return s.server.Shutdown(ctx)
}
