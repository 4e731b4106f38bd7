// Package session owns the per-tenant connection state machine and the
// supervisor loops that drive it. The chat-platform protocol itself is
// an external collaborator reached through the Socket and Dialer
// interfaces; pkg/wa provides the production implementation.
package session

import (
	"context"
	"errors"
	"strings"
	"sync"
	"time"
)

var ErrInvalidTenantID = errors.New("invalid tenant id")

// ValidateTenantID rejects empty IDs and IDs containing path separators
// or "..": tenant IDs name credential database files on disk.
func ValidateTenantID(tenantID string) error {
	trimmed := strings.TrimSpace(tenantID)
	if trimmed == "" || trimmed != tenantID {
		return ErrInvalidTenantID
	}
	if strings.ContainsAny(tenantID, "/\\") || strings.Contains(tenantID, "..") {
		return ErrInvalidTenantID
	}
	return nil
}

// Socket is one live platform connection. Implementations must close
// the Events channel once the connection is permanently finished.
type Socket interface {
	Connect(ctx context.Context) error
	Disconnect()
	Logout(ctx context.Context) error
	Send(ctx context.Context, destination, text string) error
	LookupHandle(ctx context.Context, remainder string) (string, bool)
	Events() <-chan Event
}

// Dialer produces a fresh Socket for a tenant, loading that tenant's
// persisted credentials in the process.
type Dialer interface {
	Dial(ctx context.Context, tenantID string) (Socket, error)
}

// CredentialStore is the durable auth-material collaborator. Load
// happens inside Dial; the supervisor only needs purge and enumeration.
type CredentialStore interface {
	Purge(tenantID string) error
	ListTenants() ([]string, error)
}

// Registry is the concurrency-safe tenant → session map shared by the
// supervisors, the outbound gateway and the control plane.
type Registry interface {
	Get(tenantID string) (*Session, bool)
	Put(tenantID string, s *Session)
	Remove(tenantID string)
	List() []*Session
}

// StatusListener receives session status changes (QR issued, connected,
// reconnecting, logged out). Used by the control plane's event feed.
type StatusListener interface {
	SessionStatusChanged(st Status)
}

// Status is a read-only snapshot of a session.
type Status struct {
	TenantID      string
	State         State
	QR            string
	Identity      string
	RetryCount    int
	LastAttemptAt time.Time
}

// Session is the per-tenant connection record. The socket field is
// mutated only by this tenant's supervisor loop; everything else reads
// it through Sender.
type Session struct {
	TenantID string

	mu          sync.RWMutex
	state       State
	qr          string
	identity    string
	retryCount  int
	lastAttempt time.Time
	sock        Socket

	cancel    context.CancelFunc
	terminate func()
}

func newSession(tenantID string) *Session {
	return &Session{TenantID: tenantID, state: StateDisconnected}
}

func (s *Session) Status() Status {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return Status{
		TenantID:      s.TenantID,
		State:         s.state,
		QR:            s.qr,
		Identity:      s.identity,
		RetryCount:    s.retryCount,
		LastAttemptAt: s.lastAttempt,
	}
}

func (s *Session) State() State {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.state
}

// Sender returns a send capability when the session is connected.
func (s *Session) Sender() (Socket, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.state != StateConnected || s.sock == nil {
		return nil, false
	}
	return s.sock, true
}

// transition moves to next, clearing the QR payload whenever the state
// actually changes. The identity only holds while connected.
func (s *Session) transition(next State) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.state == next {
		return
	}
	if s.state == StateConnected {
		s.identity = ""
	}
	s.state = next
	s.qr = ""
}

func (s *Session) setQR(code string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.qr = code
}

func (s *Session) setIdentity(identity string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.identity = identity
	s.retryCount = 0
}

func (s *Session) setSocket(sock Socket) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.sock = sock
}

func (s *Session) socket() Socket {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.sock
}

func (s *Session) markAttempt() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.retryCount++
	s.lastAttempt = time.Now()
}
