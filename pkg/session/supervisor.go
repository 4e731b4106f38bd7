package session

import (
	"context"
	"time"

	"github.com/mundoiahelp-code/sistema-gestion-completo-sub002/pkg/bus"
	"github.com/mundoiahelp-code/sistema-gestion-completo-sub002/pkg/logger"
)

// supervise is the per-tenant control loop: dial, drain events through
// the transition table, and redial after the fixed delay for transient
// failures. Returns only on explicit logout or context cancellation.
func (m *Manager) supervise(ctx context.Context, sess *Session) {
	for {
		sess.markAttempt()

		sock, err := m.dialer.Dial(ctx, sess.TenantID)
		if err == nil {
			sess.setSocket(sock)
			if err = sock.Connect(ctx); err != nil {
				sock.Disconnect()
				sess.setSocket(nil)
			}
		}

		if err != nil {
			logger.WarnCF("session", "Connection attempt failed", map[string]any{
				"tenant": sess.TenantID,
				"error":  err.Error(),
			})
			sess.transition(StateReconnecting)
			m.notify(sess)
		} else if m.drain(ctx, sess, sock) {
			return
		}

		if ctx.Err() != nil {
			return
		}
		select {
		case <-time.After(m.delay):
		case <-ctx.Done():
			return
		}
	}
}

// drain consumes socket events until the connection ends. It reports
// true when the session is finished for good (logout or shutdown) and
// false when the supervisor should redial.
func (m *Manager) drain(ctx context.Context, sess *Session, sock Socket) bool {
	defer sess.setSocket(nil)

	for {
		select {
		case <-ctx.Done():
			sock.Disconnect()
			return true

		case ev, ok := <-sock.Events():
			if !ok {
				// Stream ended without a close event: redial.
				sess.transition(StateReconnecting)
				m.notify(sess)
				return false
			}

			next, effects := Transition(sess.State(), ev)
			sess.transition(next)

			for _, effect := range effects {
				switch effect {
				case EffectStoreQR:
					qr := ev.(QREvent)
					sess.setQR(qr.Code)
					logger.InfoCF("session", "QR challenge issued", map[string]any{
						"tenant": sess.TenantID,
					})
					m.notify(sess)

				case EffectSetIdentity:
					conn := ev.(ConnectedEvent)
					sess.setIdentity(conn.Identity)
					logger.InfoCF("session", "Session connected", map[string]any{
						"tenant":   sess.TenantID,
						"identity": conn.Identity,
					})
					m.notify(sess)

				case EffectForwardMessage:
					m.forward(ctx, sess.TenantID, ev.(MessageEvent))

				case EffectScheduleReconnect:
					closed := ev.(ClosedEvent)
					logger.WarnCF("session", "Socket closed, will reconnect", map[string]any{
						"tenant": sess.TenantID,
						"code":   closed.Code,
					})
					sock.Disconnect()
					m.notify(sess)
					return false

				case EffectTerminate:
					closed := ev.(ClosedEvent)
					logger.InfoCF("session", "Logged out by platform", map[string]any{
						"tenant": sess.TenantID,
						"code":   closed.Code,
					})
					sock.Disconnect()
					sess.terminate()
					return true
				}
			}
		}
	}
}

func (m *Manager) forward(ctx context.Context, tenantID string, ev MessageEvent) {
	msg := bus.InboundMessage{
		TenantID:          tenantID,
		SenderHandle:      ev.SenderHandle,
		ParticipantHandle: ev.ParticipantHandle,
		PushName:          ev.PushName,
		Conversation:      ev.Conversation,
		ExtendedText:      ev.ExtendedText,
		FromSelf:          ev.FromSelf,
		Group:             ev.Group,
	}
	if err := m.bus.PublishInbound(ctx, msg); err != nil {
		logger.ErrorCF("session", "Inbound publish failed", map[string]any{
			"tenant": tenantID,
			"error":  err.Error(),
		})
	}
}
