package wa

import (
	"context"

	"go.mau.fi/whatsmeow"

	"github.com/mundoiahelp-code/sistema-gestion-completo-sub002/pkg/session"
)

// Dialer builds a fresh socket per connection attempt. Reconnection
// policy lives in the session supervisor, so the client's own auto
// reconnect stays off.
type Dialer struct {
	store *CredentialStore
}

func NewDialer(store *CredentialStore) *Dialer {
	return &Dialer{store: store}
}

func (d *Dialer) Dial(ctx context.Context, tenantID string) (session.Socket, error) {
	device, err := d.store.device(ctx, tenantID)
	if err != nil {
		return nil, err
	}

	client := whatsmeow.NewClient(device, newLogger("wa"))
	client.EnableAutoReconnect = false
	return newSocket(tenantID, client), nil
}
