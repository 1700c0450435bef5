package domain

import "time"

// SenderType records who wrote a message, independent of sender_id.
type SenderType string

const (
	SenderVisitor  SenderType = "visitor"
	SenderCustomer SenderType = "customer"
	SenderAgent    SenderType = "agent"
	SenderSystem   SenderType = "system"
)

// MessageKind tags how a message entered the thread.
type MessageKind string

const (
	MessageKindChat      MessageKind = "chat"
	MessageKindEmail     MessageKind = "email"
	MessageKindCall      MessageKind = "call"
	MessageKindVoicemail MessageKind = "voicemail"
	MessageKindSMS       MessageKind = "sms"
	MessageKindNote      MessageKind = "note"
)

// Well-known message metadata keys.
const (
	MsgSenderType      = "sender_type"
	MsgMessageType     = "message_type"
	MsgVisitorName     = "visitor_name"
	MsgVisitorEmail    = "visitor_email"
	MsgEmailMessageID  = "email_message_id"
	MsgEmailInReplyTo  = "email_in_reply_to"
	MsgEmailReferences = "email_references"
	MsgEmailFrom       = "email_from"
	MsgEmailSubject    = "email_subject"
	MsgEmailHTML       = "email_html"
	MsgCallSID         = "call_sid"
	MsgCallerNumber    = "caller_number"
	MsgCalledNumber    = "called_number"
	MsgCallStartedAt   = "call_started_at"
	MsgRecordingURL    = "recording_url"
	MsgTranscription   = "transcription"
	MsgMessageSID      = "message_sid"
	MsgFromNumber      = "from_number"
	MsgToNumber        = "to_number"
)

// TicketMessage captures communications in a ticket thread.
type TicketMessage struct {
	ID         string
	TicketID   string
	SenderID   *string
	Content    string
	IsInternal bool
	ChannelID  *string
	Metadata   Metadata
	CreatedAt  time.Time
}

// SenderType returns the recorded sender type, defaulting to customer.
func (m *TicketMessage) SenderType() SenderType {
	if v := m.Metadata.String(MsgSenderType); v != "" {
		return SenderType(v)
	}
	return SenderCustomer
}

// Clone returns a copy with its own metadata map.
func (m *TicketMessage) Clone() *TicketMessage {
	cp := *m
	cp.Metadata = m.Metadata.Clone()
	return &cp
}
