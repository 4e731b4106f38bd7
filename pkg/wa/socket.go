package wa

import (
	"context"
	"fmt"
	"sync"

	"go.mau.fi/whatsmeow"
	waE2E "go.mau.fi/whatsmeow/proto/waE2E"
	"go.mau.fi/whatsmeow/types"
	"go.mau.fi/whatsmeow/types/events"
	"google.golang.org/protobuf/proto"

	"github.com/mundoiahelp-code/sistema-gestion-completo-sub002/pkg/logger"
	"github.com/mundoiahelp-code/sistema-gestion-completo-sub002/pkg/session"
)

// socket adapts one whatsmeow client to the session.Socket interface.
// It translates the client's event callbacks into the typed event
// channel the supervisor drains, and nothing else.
type socket struct {
	tenantID  string
	client    *whatsmeow.Client
	handlerID uint32

	events chan session.Event

	mu     sync.Mutex
	closed bool
}

func newSocket(tenantID string, client *whatsmeow.Client) *socket {
	s := &socket{
		tenantID: tenantID,
		client:   client,
		events:   make(chan session.Event, 64),
	}
	s.handlerID = client.AddEventHandler(s.handleEvent)
	return s
}

func (s *socket) Connect(ctx context.Context) error {
	// A device without a stored identity needs QR pairing. The QR
	// channel must be requested before Connect.
	if s.client.Store.ID == nil {
		qrChan, err := s.client.GetQRChannel(ctx)
		if err != nil {
			return fmt.Errorf("qr channel for %s: %w", s.tenantID, err)
		}
		go func() {
			for item := range qrChan {
				switch item.Event {
				case "code":
					s.emit(session.QREvent{Code: item.Code})
				case "timeout":
					logger.WarnCF("wa", "QR pairing timed out", map[string]any{"tenant": s.tenantID})
				}
			}
		}()
	}

	if err := s.client.Connect(); err != nil {
		return fmt.Errorf("connect %s: %w", s.tenantID, err)
	}
	return nil
}

func (s *socket) Disconnect() {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return
	}
	s.closed = true
	s.mu.Unlock()

	s.client.RemoveEventHandler(s.handlerID)
	s.client.Disconnect()
	close(s.events)
}

func (s *socket) Logout(ctx context.Context) error {
	if err := s.client.Logout(ctx); err != nil {
		return fmt.Errorf("logout %s: %w", s.tenantID, err)
	}
	return nil
}

func (s *socket) Send(ctx context.Context, destination, text string) error {
	jid, err := types.ParseJID(destination)
	if err != nil {
		return fmt.Errorf("parse destination %q: %w", destination, err)
	}
	_, err = s.client.SendMessage(ctx, jid, &waE2E.Message{
		Conversation: proto.String(text),
	})
	if err != nil {
		return fmt.Errorf("send to %s: %w", destination, err)
	}
	return nil
}

// LookupHandle resolves a masked-handle remainder to the phone-number
// handle via the client's local LID mapping store.
func (s *socket) LookupHandle(ctx context.Context, remainder string) (string, bool) {
	lid := types.NewJID(remainder, types.HiddenUserServer)
	pn, err := s.client.Store.LIDs.GetPNForLID(ctx, lid)
	if err != nil || pn.IsEmpty() {
		return "", false
	}
	return pn.String(), true
}

func (s *socket) Events() <-chan session.Event {
	return s.events
}

func (s *socket) handleEvent(evt any) {
	switch v := evt.(type) {
	case *events.Connected:
		identity := ""
		if id := s.client.Store.ID; id != nil {
			identity = id.User
		}
		s.emit(session.ConnectedEvent{Identity: identity})
	case *events.LoggedOut:
		s.emit(session.ClosedEvent{Code: int(v.Reason)})
	case *events.StreamReplaced:
		// Another client took over the stream; retry like any drop.
		s.emit(session.ClosedEvent{})
	case *events.Disconnected:
		s.emit(session.ClosedEvent{})
	case *events.Message:
		s.emit(messageEvent(v))
	}
}

func messageEvent(v *events.Message) session.MessageEvent {
	ev := session.MessageEvent{
		SenderHandle: v.Info.Sender.String(),
		PushName:     v.Info.PushName,
		FromSelf:     v.Info.IsFromMe,
		Group:        v.Info.IsGroup,
	}
	if !v.Info.SenderAlt.IsEmpty() {
		ev.ParticipantHandle = v.Info.SenderAlt.String()
	}
	if msg := v.Message; msg != nil {
		ev.Conversation = msg.GetConversation()
		if ext := msg.GetExtendedTextMessage(); ext != nil {
			ev.ExtendedText = ext.GetText()
		}
	}
	return ev
}

// emit drops events raised after Disconnect instead of panicking on a
// closed channel. whatsmeow dispatches callbacks from its own
// goroutines, so the race is real.
func (s *socket) emit(ev session.Event) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return
	}
	select {
	case s.events <- ev:
	default:
		logger.WarnCF("wa", "Event buffer full, dropping event", map[string]any{
			"tenant": s.tenantID,
		})
	}
}
