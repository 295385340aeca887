package domain

import "context"

// Provider adapts one WhatsApp Business API to the canonical message model.
// ParseIncoming returns (nil, nil) for payloads that carry no user message
// (delivery receipts, empty batches); those are logged and dropped upstream.
type Provider interface {
	Name() string
	ParseIncoming(payload []byte) (*IncomingMessage, error)
	Send(ctx context.Context, msg *OutgoingMessage) error
}
