package registry

import (
	"fmt"
	"sync"
	"testing"

	"github.com/mundoiahelp-code/sistema-gestion-completo-sub002/pkg/session"
)

func TestRegistry_Empty(t *testing.T) {
	r := New()
	if _, ok := r.Get("t1"); ok {
		t.Error("expected absent session")
	}
	if got := len(r.List()); got != 0 {
		t.Errorf("expected empty list, got %d", got)
	}
}

func TestRegistry_PutGetRemove(t *testing.T) {
	r := New()
	r.Put("t1", &session.Session{TenantID: "t1"})

	if _, ok := r.Get("t1"); !ok {
		t.Fatal("expected session after Put")
	}
	if got := len(r.List()); got != 1 {
		t.Errorf("expected 1 session, got %d", got)
	}

	r.Remove("t1")
	if _, ok := r.Get("t1"); ok {
		t.Error("expected absent session after Remove")
	}
}

func TestRegistry_ConcurrentAccess(t *testing.T) {
	r := New()

	var wg sync.WaitGroup
	for i := 0; i < 50; i++ {
		wg.Add(3)
		id := fmt.Sprintf("tenant-%d", i%10)
		go func() {
			defer wg.Done()
			r.Put(id, &session.Session{TenantID: id})
		}()
		go func() {
			defer wg.Done()
			r.Get(id)
			r.List()
		}()
		go func() {
			defer wg.Done()
			r.Remove(id)
		}()
	}
	wg.Wait()
}
