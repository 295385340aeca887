package domain

import "context"

// QueryInput carries the user's query to a downstream bot service. Exactly
// one of Text / Audio is set, mirroring the inbound modality.
type QueryInput struct {
	Language     string `json:"language"`
	AudienceType string `json:"audienceType,omitempty"`
	Text         string `json:"text,omitempty"`
	Audio        string `json:"audio,omitempty"`
}

// QueryOutput selects the answer modality the bot should produce.
type QueryOutput struct {
	Format string `json:"format"` // "text" | "audio"
}

// QueryRequest is the wire body posted to a bot endpoint.
type QueryRequest struct {
	Input  QueryInput  `json:"input"`
	Output QueryOutput `json:"output"`
}

// QueryResponse is the bot's answer. AudioURL is optional.
type QueryResponse struct {
	Text     string
	AudioURL string
}

// BotDispatcher issues one downstream query per user query turn. Failures
// surface as *UpstreamError.
type BotDispatcher interface {
	Dispatch(ctx context.Context, sess *Session, msg *IncomingMessage) (*QueryResponse, error)
}
