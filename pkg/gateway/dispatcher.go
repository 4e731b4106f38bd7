package gateway

import (
	"context"
	"time"

	"github.com/mundoiahelp-code/sistema-gestion-completo-sub002/pkg/backend"
	"github.com/mundoiahelp-code/sistema-gestion-completo-sub002/pkg/bus"
	"github.com/mundoiahelp-code/sistema-gestion-completo-sub002/pkg/logger"
)

const (
	sendTimeout   = 15 * time.Second
	recordTimeout = 10 * time.Second
)

// Recorder persists a sent reply against its contact.
type Recorder interface {
	RecordMessage(ctx context.Context, rec backend.Record) error
}

// Dispatcher drains the outbound bus: send, then record the reply. A
// failed send is logged and the reply is not recorded.
type Dispatcher struct {
	gw       *Gateway
	bus      *bus.MessageBus
	recorder Recorder
}

func NewDispatcher(gw *Gateway, b *bus.MessageBus, recorder Recorder) *Dispatcher {
	return &Dispatcher{gw: gw, bus: b, recorder: recorder}
}

func (d *Dispatcher) Run(ctx context.Context) {
	for {
		msg, ok := d.bus.ConsumeOutbound(ctx)
		if !ok {
			return
		}
		go d.dispatch(ctx, msg)
	}
}

func (d *Dispatcher) dispatch(ctx context.Context, msg bus.OutboundMessage) {
	sendCtx, cancel := context.WithTimeout(ctx, sendTimeout)
	defer cancel()

	if err := d.gw.Send(sendCtx, msg.TenantID, msg.Destination, msg.Text); err != nil {
		logger.ErrorCF("gateway", "Reply send failed", map[string]any{
			"tenant": msg.TenantID,
			"error":  err.Error(),
		})
		return
	}

	rec := backend.Record{
		TenantID:       msg.TenantID,
		ContactKey:     msg.ContactKey,
		DisplayName:    msg.DisplayName,
		Outbound:       msg.Text,
		OriginalHandle: msg.Destination,
	}
	recordCtx, cancelRecord := context.WithTimeout(ctx, recordTimeout)
	defer cancelRecord()
	if err := d.recorder.RecordMessage(recordCtx, rec); err != nil {
		logger.ErrorCF("gateway", "Reply persistence failed", map[string]any{
			"tenant":  msg.TenantID,
			"contact": msg.ContactKey,
			"error":   err.Error(),
		})
	}
}
