// Package wa binds the session manager to WhatsApp via whatsmeow.
// Everything protocol-specific stays behind the session.Socket,
// session.Dialer and session.CredentialStore interfaces so the rest of
// the system never imports whatsmeow directly.
package wa

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"

	"go.mau.fi/whatsmeow/store"
	"go.mau.fi/whatsmeow/store/sqlstore"
	_ "modernc.org/sqlite"

	"github.com/mundoiahelp-code/sistema-gestion-completo-sub002/pkg/logger"
	"github.com/mundoiahelp-code/sistema-gestion-completo-sub002/pkg/session"
)

// CredentialStore keeps one sqlite credential database per tenant under
// a single data directory. Databases are created lazily on first dial
// and survive restarts, which is what makes sessions persistent.
type CredentialStore struct {
	dir string

	mu         sync.Mutex
	containers map[string]*sqlstore.Container
}

func NewCredentialStore(dir string) (*CredentialStore, error) {
	if err := os.MkdirAll(dir, 0o700); err != nil {
		return nil, fmt.Errorf("create data dir: %w", err)
	}
	return &CredentialStore{
		dir:        dir,
		containers: make(map[string]*sqlstore.Container),
	}, nil
}

func (s *CredentialStore) dbPath(tenantID string) string {
	return filepath.Join(s.dir, tenantID+".db")
}

func (s *CredentialStore) container(ctx context.Context, tenantID string) (*sqlstore.Container, error) {
	if err := session.ValidateTenantID(tenantID); err != nil {
		return nil, err
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if c, ok := s.containers[tenantID]; ok {
		return c, nil
	}

	dsn := fmt.Sprintf("file:%s?_pragma=foreign_keys(1)&_pragma=busy_timeout(10000)", s.dbPath(tenantID))
	c, err := sqlstore.New(ctx, "sqlite", dsn, newLogger("wa-store"))
	if err != nil {
		return nil, fmt.Errorf("open credential store for %s: %w", tenantID, err)
	}
	s.containers[tenantID] = c
	return c, nil
}

// device returns the tenant's device record, creating a blank one (which
// will require QR pairing) when the tenant has never authenticated.
func (s *CredentialStore) device(ctx context.Context, tenantID string) (*store.Device, error) {
	c, err := s.container(ctx, tenantID)
	if err != nil {
		return nil, err
	}
	device, err := c.GetFirstDevice(ctx)
	if err != nil {
		return nil, fmt.Errorf("load device for %s: %w", tenantID, err)
	}
	return device, nil
}

// Purge closes and deletes the tenant's credential database. After a
// purge the next connect starts from a fresh QR pairing.
func (s *CredentialStore) Purge(tenantID string) error {
	if err := session.ValidateTenantID(tenantID); err != nil {
		return err
	}

	s.mu.Lock()
	if c, ok := s.containers[tenantID]; ok {
		if err := c.Close(); err != nil {
			logger.WarnCF("wa-store", "Closing credential store failed", map[string]any{
				"tenant": tenantID,
				"error":  err.Error(),
			})
		}
		delete(s.containers, tenantID)
	}
	s.mu.Unlock()

	base := s.dbPath(tenantID)
	for _, path := range []string{base, base + "-wal", base + "-shm"} {
		if err := os.Remove(path); err != nil && !os.IsNotExist(err) {
			return fmt.Errorf("purge credentials for %s: %w", tenantID, err)
		}
	}
	logger.InfoCF("wa-store", "Purged credentials", map[string]any{"tenant": tenantID})
	return nil
}

// ListTenants returns the tenants with a credential database on disk.
func (s *CredentialStore) ListTenants() ([]string, error) {
	matches, err := filepath.Glob(filepath.Join(s.dir, "*.db"))
	if err != nil {
		return nil, fmt.Errorf("scan data dir: %w", err)
	}
	tenants := make([]string, 0, len(matches))
	for _, m := range matches {
		name := strings.TrimSuffix(filepath.Base(m), ".db")
		if session.ValidateTenantID(name) == nil {
			tenants = append(tenants, name)
		}
	}
	return tenants, nil
}

// Close closes every open container. Call on shutdown.
func (s *CredentialStore) Close() {
	s.mu.Lock()
	defer s.mu.Unlock()
	for tenantID, c := range s.containers {
		if err := c.Close(); err != nil {
			logger.WarnCF("wa-store", "Closing credential store failed", map[string]any{
				"tenant": tenantID,
				"error":  err.Error(),
			})
		}
	}
	s.containers = make(map[string]*sqlstore.Container)
}
