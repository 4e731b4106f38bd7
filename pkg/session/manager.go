package session

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/mundoiahelp-code/sistema-gestion-completo-sub002/pkg/bus"
	"github.com/mundoiahelp-code/sistema-gestion-completo-sub002/pkg/logger"
)

var ErrUnknownTenant = errors.New("unknown tenant")

const defaultReconnectDelay = 3 * time.Second

// Options wires a Manager. Listener may be nil.
type Options struct {
	Registry       Registry
	Dialer         Dialer
	Credentials    CredentialStore
	Bus            *bus.MessageBus
	Listener       StatusListener
	ReconnectDelay time.Duration
}

// Manager creates, supervises and tears down tenant sessions. One
// supervisor goroutine runs per session; the only state shared between
// tenants is the Registry.
type Manager struct {
	ctx      context.Context
	reg      Registry
	dialer   Dialer
	creds    CredentialStore
	bus      *bus.MessageBus
	listener StatusListener
	delay    time.Duration

	// connectMu makes the get-or-create in Connect atomic; without it
	// two concurrent Connect calls would both start supervisors.
	connectMu sync.Mutex
}

func NewManager(ctx context.Context, opts Options) *Manager {
	delay := opts.ReconnectDelay
	if delay <= 0 {
		delay = defaultReconnectDelay
	}
	return &Manager{
		ctx:      ctx,
		reg:      opts.Registry,
		dialer:   opts.Dialer,
		creds:    opts.Credentials,
		bus:      opts.Bus,
		listener: opts.Listener,
		delay:    delay,
	}
}

// Connect ensures a session exists for the tenant and starts its
// supervisor. Calling Connect for a tenant with a live session is a
// no-op returning the current status: the registry entry is only ever
// replaced after the previous session terminated.
func (m *Manager) Connect(tenantID string) (Status, error) {
	if err := ValidateTenantID(tenantID); err != nil {
		return Status{}, err
	}

	m.connectMu.Lock()
	defer m.connectMu.Unlock()

	if existing, ok := m.reg.Get(tenantID); ok {
		return existing.Status(), nil
	}

	sess := newSession(tenantID)
	ctx, cancel := context.WithCancel(m.ctx)
	sess.cancel = cancel

	var once sync.Once
	sess.terminate = func() {
		once.Do(func() {
			sess.transition(StateLoggedOut)
			if err := m.creds.Purge(tenantID); err != nil {
				logger.ErrorCF("session", "Credential purge failed", map[string]any{
					"tenant": tenantID,
					"error":  err.Error(),
				})
			}
			m.reg.Remove(tenantID)
			m.notify(sess)
			cancel()
		})
	}

	m.reg.Put(tenantID, sess)
	go m.supervise(ctx, sess)

	return sess.Status(), nil
}

// Logout explicitly ends a tenant's session: credentials are purged and
// the registry entry removed. A later Connect starts from scratch.
func (m *Manager) Logout(ctx context.Context, tenantID string) error {
	sess, ok := m.reg.Get(tenantID)
	if !ok {
		return fmt.Errorf("%w: %s", ErrUnknownTenant, tenantID)
	}

	if sock := sess.socket(); sock != nil {
		if err := sock.Logout(ctx); err != nil {
			logger.WarnCF("session", "Platform logout failed", map[string]any{
				"tenant": tenantID,
				"error":  err.Error(),
			})
		}
		sock.Disconnect()
	}
	sess.terminate()
	return nil
}

// Status reports the session snapshot for one tenant.
func (m *Manager) Status(tenantID string) (Status, bool) {
	sess, ok := m.reg.Get(tenantID)
	if !ok {
		return Status{}, false
	}
	return sess.Status(), true
}

// List reports snapshots for every registered tenant.
func (m *Manager) List() []Status {
	sessions := m.reg.List()
	out := make([]Status, 0, len(sessions))
	for _, sess := range sessions {
		out = append(out, sess.Status())
	}
	return out
}

// StartPersisted replays every tenant with stored credentials,
// starting their supervisors independently. A failure for one tenant is
// logged and does not stop the others.
func (m *Manager) StartPersisted() {
	tenants, err := m.creds.ListTenants()
	if err != nil {
		logger.ErrorCF("session", "Listing persisted tenants failed", map[string]any{
			"error": err.Error(),
		})
		return
	}

	for _, tenantID := range tenants {
		if _, err := m.Connect(tenantID); err != nil {
			logger.ErrorCF("session", "Startup connect failed", map[string]any{
				"tenant": tenantID,
				"error":  err.Error(),
			})
			continue
		}
		logger.InfoCF("session", "Startup connect initiated", map[string]any{"tenant": tenantID})
	}
}

// ResolveHandle performs a platform directory lookup through the
// tenant's live socket. Satisfies resolver.Directory.
func (m *Manager) ResolveHandle(ctx context.Context, tenantID, remainder string) (string, bool) {
	sess, ok := m.reg.Get(tenantID)
	if !ok {
		return "", false
	}
	sock, ok := sess.Sender()
	if !ok {
		return "", false
	}
	return sock.LookupHandle(ctx, remainder)
}

// Shutdown stops every supervisor loop. Sessions stay registered so a
// process restart can replay them from persisted credentials.
func (m *Manager) Shutdown() {
	for _, sess := range m.reg.List() {
		if sess.cancel != nil {
			sess.cancel()
		}
	}
}

func (m *Manager) notify(sess *Session) {
	if m.listener != nil {
		m.listener.SessionStatusChanged(sess.Status())
	}
}
