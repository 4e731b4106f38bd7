package e2e

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/mundoiahelp-code/sistema-gestion-completo-sub002/pkg/backend"
	"github.com/mundoiahelp-code/sistema-gestion-completo-sub002/pkg/bus"
	"github.com/mundoiahelp-code/sistema-gestion-completo-sub002/pkg/gateway"
	"github.com/mundoiahelp-code/sistema-gestion-completo-sub002/pkg/pipeline"
	"github.com/mundoiahelp-code/sistema-gestion-completo-sub002/pkg/registry"
	"github.com/mundoiahelp-code/sistema-gestion-completo-sub002/pkg/resolver"
	"github.com/mundoiahelp-code/sistema-gestion-completo-sub002/pkg/session"
)

// fakeBackend is an in-memory stand-in for the business backend with
// the three endpoints the session manager calls.
type fakeBackend struct {
	mu        sync.Mutex
	records   []backend.Record
	autoReply bool
	reply     string
}

func (f *fakeBackend) handler() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("POST /api/messages", func(w http.ResponseWriter, r *http.Request) {
		var rec backend.Record
		if err := json.NewDecoder(r.Body).Decode(&rec); err != nil {
			w.WriteHeader(http.StatusBadRequest)
			return
		}
		f.mu.Lock()
		f.records = append(f.records, rec)
		f.mu.Unlock()
		w.WriteHeader(http.StatusCreated)
	})
	mux.HandleFunc("GET /api/tenants/{id}/auto-reply", func(w http.ResponseWriter, _ *http.Request) {
		f.mu.Lock()
		enabled := f.autoReply
		f.mu.Unlock()
		json.NewEncoder(w).Encode(map[string]bool{"auto_reply": enabled})
	})
	mux.HandleFunc("POST /api/tenants/{id}/replies", func(w http.ResponseWriter, _ *http.Request) {
		f.mu.Lock()
		reply := f.reply
		f.mu.Unlock()
		json.NewEncoder(w).Encode(map[string]string{"reply": reply})
	})
	return mux
}

func (f *fakeBackend) all() []backend.Record {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]backend.Record(nil), f.records...)
}

type fakeSocket struct {
	events chan session.Event
	mu     sync.Mutex
	sent   []string
}

func (s *fakeSocket) Connect(context.Context) error { return nil }
func (s *fakeSocket) Disconnect()                   {}
func (s *fakeSocket) Logout(context.Context) error  { return nil }

func (s *fakeSocket) Send(_ context.Context, destination, text string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.sent = append(s.sent, destination+"|"+text)
	return nil
}

func (s *fakeSocket) LookupHandle(context.Context, string) (string, bool) { return "", false }
func (s *fakeSocket) Events() <-chan session.Event                        { return s.events }

func (s *fakeSocket) sentMessages() []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]string(nil), s.sent...)
}

type fakeDialer struct {
	sock *fakeSocket
}

func (d *fakeDialer) Dial(context.Context, string) (session.Socket, error) {
	return d.sock, nil
}

type noopCreds struct{}

func (noopCreds) Purge(string) error             { return nil }
func (noopCreds) ListTenants() ([]string, error) { return nil, nil }

// TestInboundMessageRoundTrip drives one inbound customer message
// through the whole wired system: session supervisor, identity
// resolution, persistence, the auto-reply decision, reply generation
// and outbound dispatch, with only the platform socket faked.
func TestInboundMessageRoundTrip(t *testing.T) {
	fb := &fakeBackend{autoReply: true, reply: "Gracias por tu mensaje"}
	ts := httptest.NewServer(fb.handler())
	t.Cleanup(ts.Close)

	client, err := backend.NewClient(backend.Config{BaseURL: ts.URL})
	if err != nil {
		t.Fatalf("backend client: %v", err)
	}

	sock := &fakeSocket{events: make(chan session.Event, 16)}
	reg := registry.New()
	msgBus := bus.NewMessageBus()
	t.Cleanup(msgBus.Close)

	ctx, cancel := context.WithCancel(context.Background())
	t.Cleanup(cancel)

	mgr := session.NewManager(ctx, session.Options{
		Registry:       reg,
		Dialer:         &fakeDialer{sock: sock},
		Credentials:    noopCreds{},
		Bus:            msgBus,
		ReconnectDelay: 10 * time.Millisecond,
	})

	pipe := pipeline.New(pipeline.Options{
		Bus:      msgBus,
		Resolver: resolver.New(mgr),
		Store:    client,
		Policy:   client,
		Replier:  client,
	})
	gw := gateway.New(reg)
	go pipe.Run(ctx)
	go gateway.NewDispatcher(gw, msgBus, client).Run(ctx)

	if _, err := mgr.Connect("acme"); err != nil {
		t.Fatalf("connect: %v", err)
	}
	sock.events <- session.ConnectedEvent{Identity: "5491100000000"}
	sock.events <- session.MessageEvent{
		SenderHandle: "5491112345678@s.whatsapp.net",
		PushName:     "Ana",
		Conversation: "Hola, ¿tienen stock?",
	}

	// One inbound record, one reply record, one platform send.
	deadline := time.Now().Add(3 * time.Second)
	for time.Now().Before(deadline) {
		if len(fb.all()) >= 2 && len(sock.sentMessages()) >= 1 {
			break
		}
		time.Sleep(10 * time.Millisecond)
	}

	recs := fb.all()
	if len(recs) != 2 {
		t.Fatalf("expected 2 records, got %d: %+v", len(recs), recs)
	}

	inbound := recs[0]
	if inbound.TenantID != "acme" || inbound.ContactKey != "5491112345678" {
		t.Errorf("inbound record: %+v", inbound)
	}
	if inbound.Inbound != "Hola, ¿tienen stock?" || inbound.Outbound != "" {
		t.Errorf("inbound record text: %+v", inbound)
	}

	reply := recs[1]
	if reply.Outbound != "Gracias por tu mensaje" || reply.ContactKey != "5491112345678" {
		t.Errorf("reply record: %+v", reply)
	}

	sent := sock.sentMessages()
	if len(sent) != 1 {
		t.Fatalf("expected 1 send, got %d", len(sent))
	}
	if !strings.HasPrefix(sent[0], "5491112345678@s.whatsapp.net|") {
		t.Errorf("reply destination: %s", sent[0])
	}
	if !strings.HasSuffix(sent[0], "Gracias por tu mensaje") {
		t.Errorf("reply text: %s", sent[0])
	}
}

// TestInboundMessageNoReplyWhenPolicyDisabled checks the fail-quiet
// path: the message is still recorded but nothing is sent.
func TestInboundMessageNoReplyWhenPolicyDisabled(t *testing.T) {
	fb := &fakeBackend{autoReply: false, reply: "should never be sent"}
	ts := httptest.NewServer(fb.handler())
	t.Cleanup(ts.Close)

	client, err := backend.NewClient(backend.Config{BaseURL: ts.URL})
	if err != nil {
		t.Fatalf("backend client: %v", err)
	}

	sock := &fakeSocket{events: make(chan session.Event, 16)}
	reg := registry.New()
	msgBus := bus.NewMessageBus()
	t.Cleanup(msgBus.Close)

	ctx, cancel := context.WithCancel(context.Background())
	t.Cleanup(cancel)

	mgr := session.NewManager(ctx, session.Options{
		Registry:       reg,
		Dialer:         &fakeDialer{sock: sock},
		Credentials:    noopCreds{},
		Bus:            msgBus,
		ReconnectDelay: 10 * time.Millisecond,
	})

	pipe := pipeline.New(pipeline.Options{
		Bus:      msgBus,
		Resolver: resolver.New(mgr),
		Store:    client,
		Policy:   client,
		Replier:  client,
	})
	go pipe.Run(ctx)
	go gateway.NewDispatcher(gateway.New(reg), msgBus, client).Run(ctx)

	if _, err := mgr.Connect("acme"); err != nil {
		t.Fatalf("connect: %v", err)
	}
	sock.events <- session.ConnectedEvent{Identity: "5491100000000"}
	sock.events <- session.MessageEvent{
		SenderHandle: "5491112345678@s.whatsapp.net",
		PushName:     "Ana",
		Conversation: "Hola",
	}

	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		if len(fb.all()) >= 1 {
			break
		}
		time.Sleep(10 * time.Millisecond)
	}
	// Give a silent reply a chance to (wrongly) appear.
	time.Sleep(100 * time.Millisecond)

	if got := len(fb.all()); got != 1 {
		t.Fatalf("expected only the inbound record, got %d", got)
	}
	if len(sock.sentMessages()) != 0 {
		t.Errorf("no reply should be sent when the policy is off")
	}
}
