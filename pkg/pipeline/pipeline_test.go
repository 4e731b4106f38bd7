package pipeline

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/mundoiahelp-code/sistema-gestion-completo-sub002/pkg/backend"
	"github.com/mundoiahelp-code/sistema-gestion-completo-sub002/pkg/bus"
	"github.com/mundoiahelp-code/sistema-gestion-completo-sub002/pkg/resolver"
)

type fakeStore struct {
	mu      sync.Mutex
	records []backend.Record
	err     error
}

func (s *fakeStore) RecordMessage(_ context.Context, rec backend.Record) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.records = append(s.records, rec)
	return s.err
}

func (s *fakeStore) all() []backend.Record {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]backend.Record(nil), s.records...)
}

type fakePolicy struct {
	reply bool
	err   error
}

func (p *fakePolicy) ShouldAutoReply(context.Context, string) (bool, error) {
	return p.reply, p.err
}

type fakeReplier struct {
	reply string
	err   error
}

func (r *fakeReplier) GenerateReply(context.Context, string, string) (string, error) {
	return r.reply, r.err
}

type testRig struct {
	bus     *bus.MessageBus
	store   *fakeStore
	policy  *fakePolicy
	replier *fakeReplier
	pipe    *Pipeline
}

func newRig(t *testing.T) *testRig {
	t.Helper()
	rig := &testRig{
		bus:     bus.NewMessageBus(),
		store:   &fakeStore{},
		policy:  &fakePolicy{reply: true},
		replier: &fakeReplier{reply: "auto reply"},
	}
	t.Cleanup(rig.bus.Close)
	rig.pipe = New(Options{
		Bus:      rig.bus,
		Resolver: resolver.New(nil),
		Store:    rig.store,
		Policy:   rig.policy,
		Replier:  rig.replier,
	})
	return rig
}

func (rig *testRig) deliver(t *testing.T, msg bus.InboundMessage) {
	t.Helper()
	ctx, cancel := context.WithCancel(context.Background())
	t.Cleanup(cancel)
	go rig.pipe.Run(ctx)
	if err := rig.bus.PublishInbound(ctx, msg); err != nil {
		t.Fatalf("publish: %v", err)
	}
}

func (rig *testRig) expectOutbound(t *testing.T) bus.OutboundMessage {
	t.Helper()
	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()
	out, ok := rig.bus.ConsumeOutbound(ctx)
	if !ok {
		t.Fatal("expected an outbound message")
	}
	return out
}

func (rig *testRig) expectNoOutbound(t *testing.T) {
	t.Helper()
	ctx, cancel := context.WithTimeout(context.Background(), 100*time.Millisecond)
	defer cancel()
	if out, ok := rig.bus.ConsumeOutbound(ctx); ok {
		t.Fatalf("unexpected outbound message: %+v", out)
	}
}

func waitForRecords(t *testing.T, store *fakeStore, n int) []backend.Record {
	t.Helper()
	deadline := time.Now().Add(time.Second)
	for time.Now().Before(deadline) {
		if recs := store.all(); len(recs) >= n {
			return recs
		}
		time.Sleep(5 * time.Millisecond)
	}
	t.Fatalf("timed out waiting for %d records, have %d", n, len(store.all()))
	return nil
}

func directMsg(text string) bus.InboundMessage {
	return bus.InboundMessage{
		TenantID:     "T1",
		SenderHandle: "5491112345678@s.whatsapp.net",
		PushName:     "Ana",
		Conversation: text,
	}
}

func TestPipeline_DirectMessageFullFlow(t *testing.T) {
	rig := newRig(t)
	rig.deliver(t, directMsg("hola"))

	recs := waitForRecords(t, rig.store, 1)
	if recs[0].ContactKey != "5491112345678" {
		t.Errorf("contact key: got %q", recs[0].ContactKey)
	}
	if recs[0].Inbound != "hola" {
		t.Errorf("inbound text: got %q", recs[0].Inbound)
	}

	out := rig.expectOutbound(t)
	if out.Destination != "5491112345678@s.whatsapp.net" {
		t.Errorf("destination: got %q", out.Destination)
	}
	if out.Text != "auto reply" {
		t.Errorf("reply text: got %q", out.Text)
	}
}

func TestPipeline_PolicyFalseMeansNoSend(t *testing.T) {
	rig := newRig(t)
	rig.policy.reply = false
	rig.deliver(t, directMsg("hola"))

	waitForRecords(t, rig.store, 1) // persisted regardless of policy
	rig.expectNoOutbound(t)
}

func TestPipeline_PolicyErrorFailsSafe(t *testing.T) {
	rig := newRig(t)
	rig.policy.err = errors.New("policy service down")
	rig.deliver(t, directMsg("hola"))

	waitForRecords(t, rig.store, 1)
	rig.expectNoOutbound(t)
}

func TestPipeline_PersistenceFailureStillDecides(t *testing.T) {
	rig := newRig(t)
	rig.store.err = errors.New("db down")
	rig.deliver(t, directMsg("hola"))

	rig.expectOutbound(t)
}

func TestPipeline_EmptyReplyIsSilent(t *testing.T) {
	rig := newRig(t)
	rig.replier.reply = "   "
	rig.deliver(t, directMsg("hola"))

	waitForRecords(t, rig.store, 1)
	rig.expectNoOutbound(t)
}

func TestPipeline_ReplierErrorIsSilent(t *testing.T) {
	rig := newRig(t)
	rig.replier.err = errors.New("llm timeout")
	rig.deliver(t, directMsg("hola"))

	waitForRecords(t, rig.store, 1)
	rig.expectNoOutbound(t)
}

func TestPipeline_DropsSelfAndGroupMessages(t *testing.T) {
	rig := newRig(t)

	self := directMsg("hola")
	self.FromSelf = true
	group := directMsg("hola")
	group.Group = true

	rig.deliver(t, self)
	rig.bus.PublishInbound(context.Background(), group)

	rig.expectNoOutbound(t)
	if len(rig.store.all()) != 0 {
		t.Error("self/group messages must not be persisted")
	}
}

func TestPipeline_DropsMessagesWithoutText(t *testing.T) {
	rig := newRig(t)
	msg := directMsg("")
	rig.deliver(t, msg)

	rig.expectNoOutbound(t)
	if len(rig.store.all()) != 0 {
		t.Error("textless messages must not be persisted")
	}
}

func TestPipeline_ExtendedTextIsExtracted(t *testing.T) {
	rig := newRig(t)
	msg := directMsg("")
	msg.ExtendedText = "mensaje citado"
	rig.deliver(t, msg)

	recs := waitForRecords(t, rig.store, 1)
	if recs[0].Inbound != "mensaje citado" {
		t.Errorf("inbound text: got %q", recs[0].Inbound)
	}
}

func TestPipeline_MaskedWithParticipantRepliesToParticipant(t *testing.T) {
	rig := newRig(t)
	rig.deliver(t, bus.InboundMessage{
		TenantID:          "T1",
		SenderHandle:      "9876543210@lid",
		ParticipantHandle: "5491198765432@s.whatsapp.net",
		Conversation:      "hola",
	})

	recs := waitForRecords(t, rig.store, 1)
	if recs[0].ContactKey != "5491198765432" {
		t.Errorf("contact key: got %q", recs[0].ContactKey)
	}

	out := rig.expectOutbound(t)
	if out.Destination != "5491198765432@s.whatsapp.net" {
		t.Errorf("destination: got %q, want participant handle", out.Destination)
	}
}

func TestPipeline_UnresolvableMaskedIsDroppedEntirely(t *testing.T) {
	rig := newRig(t)
	rig.deliver(t, bus.InboundMessage{
		TenantID:     "T1",
		SenderHandle: "9876543210@lid",
		Conversation: "hola",
	})

	rig.expectNoOutbound(t)
	if len(rig.store.all()) != 0 {
		t.Error("unresolvable masked messages must not be persisted")
	}
}

func TestPipeline_PseudoContactPersistedWithPrivateFlag(t *testing.T) {
	rig := newRig(t)
	rig.deliver(t, bus.InboundMessage{
		TenantID:     "T1",
		SenderHandle: "9876543210@lid",
		PushName:     "Cliente",
		Conversation: "hola",
	})

	recs := waitForRecords(t, rig.store, 1)
	if !recs[0].Private {
		t.Error("expected private pseudo-contact record")
	}
	if recs[0].ContactKey != "9876543210" {
		t.Errorf("contact key: got %q", recs[0].ContactKey)
	}
	if recs[0].DisplayName != "Cliente" {
		t.Errorf("display name: got %q", recs[0].DisplayName)
	}
}

func TestPipeline_SlowCollaboratorDoesNotBlockIntake(t *testing.T) {
	rig := newRig(t)

	release := make(chan struct{})
	rig.pipe.policy = policyFunc(func(ctx context.Context, _ string) (bool, error) {
		select {
		case <-release:
		case <-ctx.Done():
		}
		return false, nil
	})

	rig.deliver(t, directMsg("uno"))
	rig.bus.PublishInbound(context.Background(), directMsg("dos"))

	// Both messages must reach persistence while the first policy call
	// is still hanging.
	waitForRecords(t, rig.store, 2)
	close(release)
}

type policyFunc func(ctx context.Context, tenantID string) (bool, error)

func (f policyFunc) ShouldAutoReply(ctx context.Context, tenantID string) (bool, error) {
	return f(ctx, tenantID)
}
