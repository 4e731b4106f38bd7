package control

import (
	"sync"

	"github.com/gorilla/websocket"

	"github.com/mundoiahelp-code/sistema-gestion-completo-sub002/pkg/logger"
	"github.com/mundoiahelp-code/sistema-gestion-completo-sub002/pkg/session"
)

// StatusUpdate is the wire form of a session status change pushed to
// websocket subscribers (the admin dashboard polls QR codes this way).
type StatusUpdate struct {
	TenantID  string `json:"tenant_id"`
	State     string `json:"state"`
	Connected bool   `json:"connected"`
	QR        string `json:"qr,omitempty"`
	Identity  string `json:"identity,omitempty"`
}

func statusUpdate(st session.Status) StatusUpdate {
	return StatusUpdate{
		TenantID:  st.TenantID,
		State:     st.State.String(),
		Connected: st.State == session.StateConnected,
		QR:        st.QR,
		Identity:  st.Identity,
	}
}

// subscriber serializes writes to one websocket connection. gorilla
// allows a single concurrent writer per conn, and broadcasts arrive
// from supervisor goroutines concurrently with the snapshot write in
// the HTTP handler.
type subscriber struct {
	conn *websocket.Conn

	mu sync.Mutex
}

func (s *subscriber) writeJSON(v any) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.conn.WriteJSON(v)
}

// Hub fans session status changes out to per-tenant websocket
// subscribers. It implements session.StatusListener.
type Hub struct {
	mu   sync.Mutex
	subs map[string]map[*subscriber]struct{}
}

func NewHub() *Hub {
	return &Hub{subs: make(map[string]map[*subscriber]struct{})}
}

func (h *Hub) SessionStatusChanged(st session.Status) {
	update := statusUpdate(st)

	h.mu.Lock()
	subs := make([]*subscriber, 0, len(h.subs[st.TenantID]))
	for sub := range h.subs[st.TenantID] {
		subs = append(subs, sub)
	}
	h.mu.Unlock()

	for _, sub := range subs {
		if err := sub.writeJSON(update); err != nil {
			logger.DebugCF("control", "Dropping dead event subscriber", map[string]any{
				"tenant": st.TenantID,
				"error":  err.Error(),
			})
			h.unsubscribe(st.TenantID, sub)
			sub.conn.Close()
		}
	}
}

func (h *Hub) subscribe(tenantID string, conn *websocket.Conn) *subscriber {
	sub := &subscriber{conn: conn}
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.subs[tenantID] == nil {
		h.subs[tenantID] = make(map[*subscriber]struct{})
	}
	h.subs[tenantID][sub] = struct{}{}
	return sub
}

func (h *Hub) unsubscribe(tenantID string, sub *subscriber) {
	h.mu.Lock()
	defer h.mu.Unlock()
	if set, ok := h.subs[tenantID]; ok {
		delete(set, sub)
		if len(set) == 0 {
			delete(h.subs, tenantID)
		}
	}
}

// Close closes every subscriber connection.
func (h *Hub) Close() {
	h.mu.Lock()
	defer h.mu.Unlock()
	for _, set := range h.subs {
		for sub := range set {
			sub.conn.Close()
		}
	}
	h.subs = make(map[string]map[*subscriber]struct{})
}
