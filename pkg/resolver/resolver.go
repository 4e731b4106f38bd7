// Package resolver turns possibly-masked platform contact handles into
// stable phone-number identities. The platform presents either a
// direct-number handle ("<digits>@s.whatsapp.net") or a privacy-masked
// handle ("<digits>@lid") that has to be resolved through fallbacks.
package resolver

import (
	"context"
	"strings"

	"github.com/mundoiahelp-code/sistema-gestion-completo-sub002/pkg/logger"
)

const (
	directSuffix = "@s.whatsapp.net"
	maskedSuffix = "@lid"
)

// Directory is the platform lookup used as the third fallback: given
// the masked handle's numeric remainder, it may return a direct handle.
type Directory interface {
	ResolveHandle(ctx context.Context, tenantID, remainder string) (string, bool)
}

// Input is the identity material carried by one inbound message.
type Input struct {
	SenderHandle      string
	ParticipantHandle string
	DisplayName       string
}

// Contact is a resolved identity. ContactKey is the digits-only phone
// number, or the masked numeric remainder for pseudo-contacts
// (IsPrivate with a display name): those keys are not dialable and
// downstream systems must not treat them as phone numbers. SendHandle
// is the canonical platform address for replies.
type Contact struct {
	PhoneNumber string
	DisplayName string
	IsPrivate   bool
	ContactKey  string
	SendHandle  string
}

type strategy func(ctx context.Context, tenantID string, in Input) (Contact, bool)

// Resolver applies an ordered list of strategies; the first match wins.
type Resolver struct {
	dir   Directory
	steps []strategy
}

func New(dir Directory) *Resolver {
	r := &Resolver{dir: dir}
	r.steps = []strategy{r.fromDirectHandle, r.fromParticipant, r.fromDirectory}
	return r
}

// Resolve maps the input to a contact. ok=false means the message must
// be dropped: the handle is masked, no fallback produced a number, and
// the platform supplied no display name to fall back on.
func (r *Resolver) Resolve(ctx context.Context, tenantID string, in Input) (Contact, bool) {
	for _, step := range r.steps {
		if c, ok := step(ctx, tenantID, in); ok {
			c.DisplayName = in.DisplayName
			return c, true
		}
	}
	return r.privateFallback(tenantID, in)
}

// fromDirectHandle: the handle already encodes the number.
func (r *Resolver) fromDirectHandle(_ context.Context, _ string, in Input) (Contact, bool) {
	if !IsDirectHandle(in.SenderHandle) {
		return Contact{}, false
	}
	phone := Normalize(in.SenderHandle)
	return Contact{
		PhoneNumber: phone,
		ContactKey:  phone,
		SendHandle:  in.SenderHandle,
	}, true
}

// fromParticipant: a direct-number participant handle supersedes the
// masked handle for all downstream purposes, including replies.
func (r *Resolver) fromParticipant(_ context.Context, _ string, in Input) (Contact, bool) {
	if !IsDirectHandle(in.ParticipantHandle) {
		return Contact{}, false
	}
	phone := Normalize(in.ParticipantHandle)
	return Contact{
		PhoneNumber: phone,
		ContactKey:  phone,
		SendHandle:  in.ParticipantHandle,
	}, true
}

// fromDirectory: ask the platform for the number behind the mask.
func (r *Resolver) fromDirectory(ctx context.Context, tenantID string, in Input) (Contact, bool) {
	if r.dir == nil {
		return Contact{}, false
	}
	remainder := Remainder(in.SenderHandle)
	if remainder == "" {
		return Contact{}, false
	}
	handle, ok := r.dir.ResolveHandle(ctx, tenantID, remainder)
	if !ok || !IsDirectHandle(handle) {
		return Contact{}, false
	}
	phone := Normalize(handle)
	return Contact{
		PhoneNumber: phone,
		ContactKey:  phone,
		SendHandle:  handle,
	}, true
}

// privateFallback handles the terminal step: without a display name the
// message is dropped; with one, the contact proceeds as a non-dialable
// pseudo-contact keyed by the masked remainder.
func (r *Resolver) privateFallback(tenantID string, in Input) (Contact, bool) {
	if strings.TrimSpace(in.DisplayName) == "" {
		logger.DebugCF("resolver", "Dropping unresolvable masked contact", map[string]any{
			"tenant": tenantID,
			"handle": in.SenderHandle,
		})
		return Contact{}, false
	}
	return Contact{
		DisplayName: in.DisplayName,
		IsPrivate:   true,
		ContactKey:  Remainder(in.SenderHandle),
		SendHandle:  in.SenderHandle,
	}, true
}

// IsDirectHandle reports whether the handle's suffix indicates it
// directly encodes a dialable number.
func IsDirectHandle(handle string) bool {
	return strings.HasSuffix(handle, directSuffix)
}

// Normalize strips the platform suffix and every non-digit character,
// yielding the canonical digits-only key.
func Normalize(handle string) string {
	user := handle
	if idx := strings.IndexByte(handle, '@'); idx >= 0 {
		user = handle[:idx]
	}
	var sb strings.Builder
	for _, r := range user {
		if r >= '0' && r <= '9' {
			sb.WriteRune(r)
		}
	}
	return sb.String()
}

// Remainder extracts the numeric remainder of a masked handle.
func Remainder(handle string) string {
	if !strings.HasSuffix(handle, maskedSuffix) {
		return ""
	}
	return Normalize(handle)
}
