// Package control is the HTTP surface consumed by the admin dashboard:
// thin façades over the session manager and the outbound gateway, plus
// a websocket feed of status/QR updates per tenant.
package control

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/gorilla/websocket"

	"github.com/mundoiahelp-code/sistema-gestion-completo-sub002/pkg/gateway"
	"github.com/mundoiahelp-code/sistema-gestion-completo-sub002/pkg/logger"
	"github.com/mundoiahelp-code/sistema-gestion-completo-sub002/pkg/session"
)

type Server struct {
	srv *http.Server
	mgr *session.Manager
	gw  *gateway.Gateway
	hub *Hub

	upgrader websocket.Upgrader
}

func NewServer(host string, port int, mgr *session.Manager, gw *gateway.Gateway, hub *Hub) *Server {
	s := &Server{
		mgr: mgr,
		gw:  gw,
		hub: hub,
		upgrader: websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 1024,
		},
	}

	mux := http.NewServeMux()
	mux.HandleFunc("GET /healthz", s.handleHealth)
	mux.HandleFunc("GET /tenants", s.handleList)
	mux.HandleFunc("POST /tenants/{id}/connect", s.handleConnect)
	mux.HandleFunc("GET /tenants/{id}/status", s.handleStatus)
	mux.HandleFunc("POST /tenants/{id}/logout", s.handleLogout)
	mux.HandleFunc("POST /tenants/{id}/messages", s.handleSend)
	mux.HandleFunc("GET /tenants/{id}/events", s.handleEvents)

	s.srv = &http.Server{
		Addr:              fmt.Sprintf("%s:%d", host, port),
		Handler:           mux,
		ReadHeaderTimeout: 10 * time.Second,
	}
	return s
}

// Handler exposes the mux for tests.
func (s *Server) Handler() http.Handler {
	return s.srv.Handler
}

func (s *Server) Start() error {
	logger.InfoCF("control", "Control server listening", map[string]any{"addr": s.srv.Addr})
	return s.srv.ListenAndServe()
}

func (s *Server) Stop(ctx context.Context) error {
	s.hub.Close()
	return s.srv.Shutdown(ctx)
}

func (s *Server) handleHealth(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func (s *Server) handleList(w http.ResponseWriter, _ *http.Request) {
	statuses := s.mgr.List()
	out := make([]StatusUpdate, 0, len(statuses))
	for _, st := range statuses {
		out = append(out, statusUpdate(st))
	}
	writeJSON(w, http.StatusOK, out)
}

func (s *Server) handleConnect(w http.ResponseWriter, r *http.Request) {
	tenantID := r.PathValue("id")
	st, err := s.mgr.Connect(tenantID)
	if err != nil {
		if errors.Is(err, session.ErrInvalidTenantID) {
			httpError(w, http.StatusBadRequest, err)
			return
		}
		httpError(w, http.StatusInternalServerError, err)
		return
	}
	writeJSON(w, http.StatusAccepted, statusUpdate(st))
}

func (s *Server) handleStatus(w http.ResponseWriter, r *http.Request) {
	tenantID := r.PathValue("id")
	st, ok := s.mgr.Status(tenantID)
	if !ok {
		httpError(w, http.StatusNotFound, fmt.Errorf("tenant %s has no session", tenantID))
		return
	}
	writeJSON(w, http.StatusOK, statusUpdate(st))
}

func (s *Server) handleLogout(w http.ResponseWriter, r *http.Request) {
	tenantID := r.PathValue("id")
	if err := s.mgr.Logout(r.Context(), tenantID); err != nil {
		if errors.Is(err, session.ErrUnknownTenant) {
			httpError(w, http.StatusNotFound, err)
			return
		}
		httpError(w, http.StatusInternalServerError, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "logged_out"})
}

func (s *Server) handleSend(w http.ResponseWriter, r *http.Request) {
	tenantID := r.PathValue("id")

	var body struct {
		Destination string `json:"destination"`
		Text        string `json:"text"`
	}
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
		httpError(w, http.StatusBadRequest, fmt.Errorf("invalid request body: %w", err))
		return
	}
	if body.Destination == "" || body.Text == "" {
		httpError(w, http.StatusBadRequest, errors.New("destination and text are required"))
		return
	}

	if err := s.gw.Send(r.Context(), tenantID, body.Destination, body.Text); err != nil {
		if errors.Is(err, gateway.ErrNotConnected) {
			httpError(w, http.StatusConflict, err)
			return
		}
		httpError(w, http.StatusBadGateway, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (s *Server) handleEvents(w http.ResponseWriter, r *http.Request) {
	tenantID := r.PathValue("id")

	conn, err := s.upgrader.Upgrade(w, r, nil)
	if err != nil {
		return // Upgrade already wrote the error response
	}

	sub := s.hub.subscribe(tenantID, conn)
	defer func() {
		s.hub.unsubscribe(tenantID, sub)
		conn.Close()
	}()

	// Push the current snapshot so late subscribers see a pending QR.
	// Routed through the subscriber so it cannot interleave with a
	// concurrent hub broadcast.
	if st, ok := s.mgr.Status(tenantID); ok {
		if err := sub.writeJSON(statusUpdate(st)); err != nil {
			return
		}
	}

	// Drain (and discard) client frames until the peer goes away.
	for {
		if _, _, err := conn.ReadMessage(); err != nil {
			return
		}
	}
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v)
}

func httpError(w http.ResponseWriter, status int, err error) {
	writeJSON(w, status, map[string]string{"error": err.Error()})
}
