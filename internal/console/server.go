// Package console exposes the aggregated feed to operators: a local HTTP
// surface for status checks and read-state operations, and an optional
// terminal dashboard.
package console

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/reliefops/notify-agent/internal/service"
	"github.com/reliefops/notify-agent/internal/transport/push"
)

type itemView struct {
	ID         string `json:"id"`
	Kind       string `json:"kind"`
	Title      string `json:"title"`
	Message    string `json:"message,omitempty"`
	Priority   string `json:"priority"`
	OccurredAt int64  `json:"occurred_at"`
	IsRead     bool   `json:"is_read"`
	UserName   string `json:"user_name,omitempty"`
	Status     string `json:"status,omitempty"`
}

type toastView struct {
	ID        string `json:"id"`
	Kind      string `json:"kind"`
	Title     string `json:"title"`
	Message   string `json:"message,omitempty"`
	Priority  string `json:"priority"`
	CreatedAt int64  `json:"created_at"`
}

type statusView struct {
	Connection    string      `json:"connection"`
	UnreadCount   int         `json:"unread_count"`
	PriorityCount int         `json:"priority_count"`
	Toasts        []toastView `json:"toasts"`
}

// Server is the local HTTP ops surface.
type Server struct {
	agg    *service.Aggregator
	conn   *push.Conn
	logger *slog.Logger
	srv    *http.Server
}

func NewServer(addr string, agg *service.Aggregator, conn *push.Conn, logger *slog.Logger) *Server {
	s := &Server{
		agg:    agg,
		conn:   conn,
		logger: logger,
	}

	r := chi.NewRouter()
	r.Get("/status", s.status)
	r.Get("/feed", s.feed)
	r.Post("/notifications/{id}/read", s.markRead)
	r.Post("/notifications/read-all", s.markAllRead)
	r.Post("/reconnect", s.reconnect)

	s.srv = &http.Server{
		Addr:         addr,
		Handler:      r,
		ReadTimeout:  5 * time.Second,
		WriteTimeout: 10 * time.Second,
	}
	return s
}

func (s *Server) Start() {
	go func() {
		s.logger.Info("console: listening", "addr", s.srv.Addr)
		if err := s.srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			s.logger.Error("console: server failed", "err", err)
		}
	}()
}

func (s *Server) Shutdown(ctx context.Context) error {
	return s.srv.Shutdown(ctx)
}

func (s *Server) status(w http.ResponseWriter, r *http.Request) {
	toasts := s.agg.Toasts()
	views := make([]toastView, len(toasts))
	for i, t := range toasts {
		views[i] = toastView{
			ID:        t.ID,
			Kind:      t.Kind.String(),
			Title:     t.Title,
			Message:   t.Message,
			Priority:  string(t.Priority),
			CreatedAt: t.CreatedAt,
		}
	}

	writeJSON(w, statusView{
		Connection:    s.conn.State().String(),
		UnreadCount:   s.agg.UnreadCount(),
		PriorityCount: s.agg.PriorityCount(),
		Toasts:        views,
	})
}

func (s *Server) feed(w http.ResponseWriter, r *http.Request) {
	merged := s.agg.Merged()
	views := make([]itemView, len(merged))
	for i, it := range merged {
		views[i] = itemView{
			ID:         it.ID,
			Kind:       it.Kind.String(),
			Title:      it.Title,
			Message:    it.Message,
			Priority:   string(it.Priority),
			OccurredAt: it.OccurredAt,
			IsRead:     s.agg.IsRead(it.ID),
			UserName:   it.UserName,
			Status:     it.Status,
		}
	}
	writeJSON(w, views)
}

func (s *Server) markRead(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	if id == "" {
		http.Error(w, "missing id", http.StatusBadRequest)
		return
	}
	s.agg.MarkRead(id)
	writeJSON(w, map[string]bool{"success": true})
}

func (s *Server) markAllRead(w http.ResponseWriter, r *http.Request) {
	s.agg.MarkAllRead()
	writeJSON(w, map[string]bool{"success": true})
}

// reconnect is the manual retry path for operators; it delegates to the
// connection manager's single reconnection authority.
func (s *Server) reconnect(w http.ResponseWriter, r *http.Request) {
	if err := s.conn.Reconnect(r.Context()); err != nil {
		s.logger.Warn("console: manual reconnect failed", "err", err)
		writeJSON(w, map[string]any{"success": false, "state": s.conn.State().String()})
		return
	}
	writeJSON(w, map[string]any{"success": true, "state": s.conn.State().String()})
}

func writeJSON(w http.ResponseWriter, v any) {
	w.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(w).Encode(v)
}

// unreadLabel renders the read marker used by the dashboard feed rows.
func unreadLabel(isRead bool) string {
	if isRead {
		return " "
	}
	return "*"
}
