package httpapi

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"

	"github.com/radiowatch/tetra-monitor/internal/hub"
	"github.com/radiowatch/tetra-monitor/internal/monitor"
)

type API struct {
	monitor *monitor.Service
	hub     *hub.Hub
	logger  *slog.Logger
}

func New(svc *monitor.Service, h *hub.Hub, logger *slog.Logger) *API {
	return &API{monitor: svc, hub: h, logger: logger}
}

func (a *API) Handler() http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(middleware.Recoverer)

	// The websocket route stays outside the timeout group; its connections
	// are long-lived by design.
	r.Get("/ws", a.hub.HandleWS)

	r.Group(func(r chi.Router) {
		r.Use(middleware.Timeout(20 * time.Second))
		r.Get("/healthz", a.health)
		r.Route("/api", func(api chi.Router) {
			api.Get("/status", a.status)
			api.Get("/state", a.state)
			api.Get("/terminals", a.listTerminals)
			api.Get("/terminals/{id}", a.getTerminal)
			api.Get("/history", a.history)
		})
	})
	return r
}

func (a *API) health(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]any{"status": "ok", "mode": a.monitor.Mode()})
}

func (a *API) status(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]any{
		"status":            "running",
		"mode":              a.monitor.Mode(),
		"uptimeSec":         int(a.monitor.Uptime().Seconds()),
		"activeConnections": a.hub.ClientCount(),
		"terminals":         len(a.monitor.Terminals()),
	})
}

func (a *API) state(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, a.monitor.Snapshot())
}

func (a *API) listTerminals(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]any{"items": a.monitor.Terminals()})
}

func (a *API) getTerminal(w http.ResponseWriter, r *http.Request) {
	view, ok := a.monitor.Terminal(chi.URLParam(r, "id"))
	if !ok {
		writeError(w, http.StatusNotFound, "not_found", "Terminal not found")
		return
	}
	writeJSON(w, http.StatusOK, view)
}

func (a *API) history(w http.ResponseWriter, r *http.Request) {
	scope := strings.ToLower(strings.TrimSpace(r.URL.Query().Get("scope")))
	switch scope {
	case "", "local":
		writeJSON(w, http.StatusOK, map[string]any{"items": a.monitor.History(true)})
	case "external":
		writeJSON(w, http.StatusOK, map[string]any{"items": a.monitor.History(false)})
	default:
		writeError(w, http.StatusBadRequest, "invalid_scope", "scope must be local or external")
	}
}

func writeJSON(w http.ResponseWriter, status int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(payload)
}

func writeError(w http.ResponseWriter, status int, code, message string) {
	writeJSON(w, status, map[string]any{
		"error": map[string]any{
			"code":    code,
			"message": message,
		},
	})
}

// RunServer starts the server and shuts it down gracefully when ctx ends.
func RunServer(ctx context.Context, server *http.Server, logger *slog.Logger) error {
	errCh := make(chan error, 1)
	go func() {
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	select {
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
		defer cancel()
		return server.Shutdown(shutdownCtx)
	case err := <-errCh:
		if err != nil {
			logger.Error("http server failed", "err", err)
			return err
		}
		return nil
	}
}
