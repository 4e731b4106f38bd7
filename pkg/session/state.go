package session

// State is the lifecycle position of a tenant's platform connection.
type State int

const (
	StateDisconnected State = iota
	StateAwaitingQR
	StateConnected
	StateReconnecting
	StateLoggedOut
)

func (s State) String() string {
	switch s {
	case StateDisconnected:
		return "disconnected"
	case StateAwaitingQR:
		return "awaiting_qr"
	case StateConnected:
		return "connected"
	case StateReconnecting:
		return "reconnecting"
	case StateLoggedOut:
		return "logged_out"
	}
	return "unknown"
}

// Event is a platform occurrence delivered by a Socket.
type Event interface {
	isEvent()
}

// QREvent carries a fresh pairing challenge.
type QREvent struct {
	Code string
}

// ConnectedEvent signals successful authentication.
type ConnectedEvent struct {
	Identity string
}

// ClosedEvent signals the underlying socket closed. Code is the
// platform's reported status code; 0 means no code was reported.
type ClosedEvent struct {
	Code int
}

// MessageEvent is an inbound message in wire-subtype form.
type MessageEvent struct {
	SenderHandle      string
	ParticipantHandle string
	PushName          string
	Conversation      string
	ExtendedText      string
	FromSelf          bool
	Group             bool
}

func (QREvent) isEvent()        {}
func (ConnectedEvent) isEvent() {}
func (ClosedEvent) isEvent()    {}
func (MessageEvent) isEvent()   {}

// Effect is a side effect the supervisor must perform after a
// transition. Keeping the transition function pure makes the table
// testable without sockets.
type Effect int

const (
	EffectStoreQR Effect = iota
	EffectSetIdentity
	EffectForwardMessage
	EffectScheduleReconnect
	EffectTerminate
)

// CloseClass classifies why a connection ended.
type CloseClass int

const (
	CloseTransient CloseClass = iota
	CloseLogout
)

// ClassifyClose maps a platform close code to retry-or-terminate.
// Unknown codes are transient so a tenant is never silently abandoned.
func ClassifyClose(code int) CloseClass {
	switch code {
	case 401, 403: // logged out, account blocked
		return CloseLogout
	}
	return CloseTransient
}

// Transition computes the next state and side effects for an event.
// LoggedOut is terminal: every event is ignored.
func Transition(s State, e Event) (State, []Effect) {
	if s == StateLoggedOut {
		return s, nil
	}

	switch ev := e.(type) {
	case QREvent:
		return StateAwaitingQR, []Effect{EffectStoreQR}
	case ConnectedEvent:
		return StateConnected, []Effect{EffectSetIdentity}
	case MessageEvent:
		return s, []Effect{EffectForwardMessage}
	case ClosedEvent:
		if ClassifyClose(ev.Code) == CloseLogout {
			return StateLoggedOut, []Effect{EffectTerminate}
		}
		return StateReconnecting, []Effect{EffectScheduleReconnect}
	}
	return s, nil
}
