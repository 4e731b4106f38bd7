package bus

// InboundMessage is the normalized view of a platform message event.
// Conversation and ExtendedText carry the two wire subtypes a text can
// arrive in; exactly one is usually populated.
type InboundMessage struct {
	TenantID          string `json:"tenant_id"`
	SenderHandle      string `json:"sender_handle"`
	ParticipantHandle string `json:"participant_handle,omitempty"`
	PushName          string `json:"push_name,omitempty"`
	Conversation      string `json:"conversation,omitempty"`
	ExtendedText      string `json:"extended_text,omitempty"`
	FromSelf          bool   `json:"from_self"`
	Group             bool   `json:"group"`
}

// OutboundMessage is a reply queued for dispatch. Destination is the
// platform handle the send must be addressed to; ContactKey and
// DisplayName travel along so the dispatcher can record the reply
// against the same contact the inbound message was filed under.
type OutboundMessage struct {
	TenantID    string `json:"tenant_id"`
	Destination string `json:"destination"`
	Text        string `json:"text"`
	ContactKey  string `json:"contact_key"`
	DisplayName string `json:"display_name,omitempty"`
}
