package domain

import (
	"encoding/json"
	"time"
)

// MessageType classifies the modality of a WhatsApp message.
type MessageType string

const (
	TypeText        MessageType = "text"
	TypeAudio       MessageType = "audio"
	TypeInteractive MessageType = "interactive"
)

// IncomingMessage is the provider-independent form of one inbound WhatsApp
// message. Provider adapters build it from their webhook payloads; it is not
// mutated afterwards.
type IncomingMessage struct {
	ID        string
	Type      MessageType
	From      string // sender phone / channel id
	Text      string // text body, when Type == text
	AudioURL  string // audio reference, when Type == audio
	Selection string // interactive reply id, when Type == interactive
	Provider  string // adapter name that produced this message
	Timestamp time.Time

	// Raw keeps the original provider payload so replies can be addressed
	// even when the sender id is nested in provider-specific fields.
	Raw json.RawMessage
}

// Input returns the user-supplied content regardless of modality.
func (m *IncomingMessage) Input() string {
	switch m.Type {
	case TypeAudio:
		return m.AudioURL
	case TypeInteractive:
		return m.Selection
	default:
		return m.Text
	}
}

// Button is one quick-reply option on an interactive message.
type Button struct {
	ID    string `json:"id"`
	Title string `json:"title"`
}

// RenderedMessage is a resolved, caller-owned message body. Template
// resolution always returns an independent copy, so callers may overwrite
// Text or URL before sending.
type RenderedMessage struct {
	Type    MessageType `json:"type"`
	Text    string      `json:"text,omitempty"`
	URL     string      `json:"url,omitempty"`
	Buttons []Button    `json:"buttons,omitempty"`
}

// Clone returns a deep copy of the rendered message.
func (r *RenderedMessage) Clone() *RenderedMessage {
	out := *r
	if len(r.Buttons) > 0 {
		out.Buttons = make([]Button, len(r.Buttons))
		copy(out.Buttons, r.Buttons)
	}
	return &out
}

// OutgoingMessage is the canonical outbound message consumed exactly once by
// a provider Send call.
type OutgoingMessage struct {
	TemplateKey string
	Language    string
	Bot         string // persona id, empty for persona-less messages
	Body        *RenderedMessage
	To          string // destination phone; may be empty when ReplyTo carries it

	// ReplyTo is the inbound message this one answers. Adapters fall back to
	// its raw payload to resolve the destination when To is unset.
	ReplyTo *IncomingMessage
}
