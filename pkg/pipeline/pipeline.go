// Package pipeline processes inbound messages: filter, extract text,
// resolve identity, persist, decide on an auto-reply and queue it for
// dispatch. Intake is per-tenant in-order; each message's external
// calls run in their own goroutine so a slow collaborator never stalls
// delivery of the next event.
package pipeline

import (
	"context"
	"strings"
	"time"

	"github.com/mundoiahelp-code/sistema-gestion-completo-sub002/pkg/backend"
	"github.com/mundoiahelp-code/sistema-gestion-completo-sub002/pkg/bus"
	"github.com/mundoiahelp-code/sistema-gestion-completo-sub002/pkg/logger"
	"github.com/mundoiahelp-code/sistema-gestion-completo-sub002/pkg/resolver"
)

// Store persists conversation turns. Failures are logged, never
// retried, and never block the reply decision.
type Store interface {
	RecordMessage(ctx context.Context, rec backend.Record) error
}

// Policy decides whether a tenant wants automated replies. Called once
// per inbound message; failures default to "do not reply".
type Policy interface {
	ShouldAutoReply(ctx context.Context, tenantID string) (bool, error)
}

// Replier generates the reply body. An empty reply means stay silent.
type Replier interface {
	GenerateReply(ctx context.Context, tenantID, inboundText string) (string, error)
}

type Options struct {
	Bus      *bus.MessageBus
	Resolver *resolver.Resolver
	Store    Store
	Policy   Policy
	Replier  Replier

	StoreTimeout  time.Duration
	PolicyTimeout time.Duration
	ReplyTimeout  time.Duration
}

type Pipeline struct {
	bus      *bus.MessageBus
	resolver *resolver.Resolver
	store    Store
	policy   Policy
	replier  Replier

	storeTimeout  time.Duration
	policyTimeout time.Duration
	replyTimeout  time.Duration
}

func New(opts Options) *Pipeline {
	p := &Pipeline{
		bus:           opts.Bus,
		resolver:      opts.Resolver,
		store:         opts.Store,
		policy:        opts.Policy,
		replier:       opts.Replier,
		storeTimeout:  opts.StoreTimeout,
		policyTimeout: opts.PolicyTimeout,
		replyTimeout:  opts.ReplyTimeout,
	}
	if p.storeTimeout <= 0 {
		p.storeTimeout = 10 * time.Second
	}
	if p.policyTimeout <= 0 {
		p.policyTimeout = 10 * time.Second
	}
	if p.replyTimeout <= 0 {
		p.replyTimeout = 30 * time.Second
	}
	return p
}

// Run consumes the inbound bus until ctx is done or the bus closes.
func (p *Pipeline) Run(ctx context.Context) {
	for {
		msg, ok := p.bus.ConsumeInbound(ctx)
		if !ok {
			return
		}
		go p.process(ctx, msg)
	}
}

func (p *Pipeline) process(ctx context.Context, msg bus.InboundMessage) {
	// Only direct one-to-one conversations are in scope.
	if msg.FromSelf || msg.Group {
		return
	}

	text := extractText(msg)
	if text == "" {
		return
	}

	contact, ok := p.resolver.Resolve(ctx, msg.TenantID, resolver.Input{
		SenderHandle:      msg.SenderHandle,
		ParticipantHandle: msg.ParticipantHandle,
		DisplayName:       msg.PushName,
	})
	if !ok {
		// Policy-driven drop, not an error.
		logger.DebugCF("pipeline", "Message dropped: unresolvable contact", map[string]any{
			"tenant": msg.TenantID,
		})
		return
	}

	p.record(ctx, backend.Record{
		TenantID:       msg.TenantID,
		ContactKey:     contact.ContactKey,
		DisplayName:    contact.DisplayName,
		Inbound:        text,
		OriginalHandle: contact.SendHandle,
		Private:        contact.IsPrivate,
	})

	if !p.shouldReply(ctx, msg.TenantID) {
		return
	}

	reply := p.generate(ctx, msg.TenantID, text)
	if reply == "" {
		return
	}

	out := bus.OutboundMessage{
		TenantID:    msg.TenantID,
		Destination: contact.SendHandle,
		Text:        reply,
		ContactKey:  contact.ContactKey,
		DisplayName: contact.DisplayName,
	}
	if err := p.bus.PublishOutbound(ctx, out); err != nil {
		logger.ErrorCF("pipeline", "Outbound publish failed", map[string]any{
			"tenant": msg.TenantID,
			"error":  err.Error(),
		})
	}
}

// record attempts persistence and logs the outcome; the pipeline
// continues regardless, by contract.
func (p *Pipeline) record(ctx context.Context, rec backend.Record) {
	callCtx, cancel := context.WithTimeout(ctx, p.storeTimeout)
	defer cancel()
	if err := p.store.RecordMessage(callCtx, rec); err != nil {
		logger.ErrorCF("pipeline", "Message persistence failed", map[string]any{
			"tenant":  rec.TenantID,
			"contact": rec.ContactKey,
			"error":   err.Error(),
		})
	}
}

// shouldReply consults the policy with a fail-safe default of false.
func (p *Pipeline) shouldReply(ctx context.Context, tenantID string) bool {
	callCtx, cancel := context.WithTimeout(ctx, p.policyTimeout)
	defer cancel()
	reply, err := p.policy.ShouldAutoReply(callCtx, tenantID)
	if err != nil {
		logger.WarnCF("pipeline", "Auto-reply policy unavailable, not replying", map[string]any{
			"tenant": tenantID,
			"error":  err.Error(),
		})
		return false
	}
	return reply
}

func (p *Pipeline) generate(ctx context.Context, tenantID, text string) string {
	callCtx, cancel := context.WithTimeout(ctx, p.replyTimeout)
	defer cancel()
	reply, err := p.replier.GenerateReply(callCtx, tenantID, text)
	if err != nil {
		logger.WarnCF("pipeline", "Reply generation failed", map[string]any{
			"tenant": tenantID,
			"error":  err.Error(),
		})
		return ""
	}
	return strings.TrimSpace(reply)
}

// extractText picks whichever wire subtype carries the body.
func extractText(msg bus.InboundMessage) string {
	if msg.Conversation != "" {
		return msg.Conversation
	}
	return msg.ExtendedText
}
