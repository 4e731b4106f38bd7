package wa

import (
	"errors"
	"os"
	"path/filepath"
	"testing"

	"github.com/mundoiahelp-code/sistema-gestion-completo-sub002/pkg/session"
)

func TestNewCredentialStore_CreatesDataDir(t *testing.T) {
	dir := filepath.Join(t.TempDir(), "sessions")
	if _, err := NewCredentialStore(dir); err != nil {
		t.Fatalf("new store: %v", err)
	}
	info, err := os.Stat(dir)
	if err != nil || !info.IsDir() {
		t.Fatalf("data dir not created: %v", err)
	}
}

func TestListTenants(t *testing.T) {
	dir := t.TempDir()
	store, err := NewCredentialStore(dir)
	if err != nil {
		t.Fatalf("new store: %v", err)
	}

	tenants, err := store.ListTenants()
	if err != nil {
		t.Fatalf("list: %v", err)
	}
	if len(tenants) != 0 {
		t.Fatalf("expected empty, got %v", tenants)
	}

	for _, name := range []string{"acme.db", "globex.db", "acme.db-wal", "notes.txt"} {
		if err := os.WriteFile(filepath.Join(dir, name), nil, 0o600); err != nil {
			t.Fatal(err)
		}
	}

	tenants, err = store.ListTenants()
	if err != nil {
		t.Fatalf("list: %v", err)
	}
	if len(tenants) != 2 {
		t.Fatalf("expected 2 tenants, got %v", tenants)
	}
}

func TestPurge_RemovesDatabaseFiles(t *testing.T) {
	dir := t.TempDir()
	store, err := NewCredentialStore(dir)
	if err != nil {
		t.Fatalf("new store: %v", err)
	}

	for _, name := range []string{"acme.db", "acme.db-wal", "acme.db-shm"} {
		if err := os.WriteFile(filepath.Join(dir, name), nil, 0o600); err != nil {
			t.Fatal(err)
		}
	}

	if err := store.Purge("acme"); err != nil {
		t.Fatalf("purge: %v", err)
	}
	left, _ := filepath.Glob(filepath.Join(dir, "acme*"))
	if len(left) != 0 {
		t.Errorf("files left after purge: %v", left)
	}
}

func TestPurge_MissingTenantIsNoop(t *testing.T) {
	store, err := NewCredentialStore(t.TempDir())
	if err != nil {
		t.Fatalf("new store: %v", err)
	}
	if err := store.Purge("ghost"); err != nil {
		t.Errorf("purge of missing tenant: %v", err)
	}
}

func TestPurge_RejectsInvalidTenantID(t *testing.T) {
	store, err := NewCredentialStore(t.TempDir())
	if err != nil {
		t.Fatalf("new store: %v", err)
	}
	if err := store.Purge("../escape"); !errors.Is(err, session.ErrInvalidTenantID) {
		t.Errorf("got %v, want ErrInvalidTenantID", err)
	}
}
