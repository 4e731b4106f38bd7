// Package gateway serializes outbound sends against the live socket of
// a tenant. It fails fast when no connected session exists; retry
// policy belongs to callers.
package gateway

import (
	"context"
	"errors"
	"fmt"

	"github.com/mundoiahelp-code/sistema-gestion-completo-sub002/pkg/session"
)

// ErrNotConnected is returned when the tenant has no CONNECTED session.
var ErrNotConnected = errors.New("no connected session for tenant")

type Gateway struct {
	reg session.Registry
}

func New(reg session.Registry) *Gateway {
	return &Gateway{reg: reg}
}

// Send delivers text to a platform handle through the tenant's socket.
// No queueing, no backoff: the call either reaches the platform or
// returns an error immediately.
func (g *Gateway) Send(ctx context.Context, tenantID, destination, text string) error {
	sess, ok := g.reg.Get(tenantID)
	if !ok {
		return fmt.Errorf("%w: %s", ErrNotConnected, tenantID)
	}
	sock, ok := sess.Sender()
	if !ok {
		return fmt.Errorf("%w: %s (state %s)", ErrNotConnected, tenantID, sess.State())
	}
	if err := sock.Send(ctx, destination, text); err != nil {
		return fmt.Errorf("send for tenant %s: %w", tenantID, err)
	}
	return nil
}
