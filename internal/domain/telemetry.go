package domain

import "context"

// Telemetry records turn-significant actions. Implementations never block
// the conversation and never return errors; transmission failures are logged
// and swallowed. Sess may be nil before a session exists.
type Telemetry interface {
	SessionStart(ctx context.Context, sess *Session, msg *IncomingMessage)
	LogCall(ctx context.Context, sess *Session, msg *IncomingMessage)
	Interact(ctx context.Context, sess *Session, msg *IncomingMessage)
}
