// Package bot issues downstream queries to the persona-specific NLU
// services.
package bot

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"time"

	"sakhibot/internal/config"
	"sakhibot/internal/domain"
)

// Dispatcher implements domain.BotDispatcher against the configured persona
// map. One dispatch per user query turn.
type Dispatcher struct {
	bots   *config.BotMap
	token  string
	client *http.Client
	logger *slog.Logger
}

type DispatcherConfig struct {
	Bots   *config.BotMap
	Token  string // optional bearer token shared by all bot endpoints
	Client *http.Client
	Logger *slog.Logger
}

func NewDispatcher(cfg DispatcherConfig) *Dispatcher {
	if cfg.Client == nil {
		cfg.Client = &http.Client{Timeout: 60 * time.Second}
	}
	if cfg.Logger == nil {
		cfg.Logger = slog.Default()
	}
	return &Dispatcher{
		bots:   cfg.Bots,
		token:  cfg.Token,
		client: cfg.Client,
		logger: cfg.Logger,
	}
}

// botAnswer is the downstream response body.
type botAnswer struct {
	Output struct {
		Text  string `json:"text"`
		Audio string `json:"audio"`
	} `json:"output"`
}

// Dispatch builds and posts the query for the session's persona. The default
// persona answers in audio; every other persona is forced to text and tagged
// with its audience type.
func (d *Dispatcher) Dispatch(ctx context.Context, sess *domain.Session, msg *domain.IncomingMessage) (*domain.QueryResponse, error) {
	profile, ok := d.bots.Profile(sess.Bot)
	if !ok {
		return nil, &domain.UpstreamError{Err: fmt.Errorf("unknown bot %q", sess.Bot)}
	}

	reqBody := domain.QueryRequest{
		Input:  domain.QueryInput{Language: sess.Language},
		Output: domain.QueryOutput{Format: "audio"},
	}
	if !d.bots.IsDefault(sess.Bot) {
		reqBody.Input.AudienceType = profile.AudienceType
		reqBody.Output.Format = "text"
	}

	switch msg.Type {
	case domain.TypeText:
		reqBody.Input.Text = msg.Text
	case domain.TypeAudio:
		reqBody.Input.Audio = msg.AudioURL
	default:
		return nil, &domain.UpstreamError{Endpoint: profile.Endpoint,
			Err: fmt.Errorf("message type %q cannot be queried", msg.Type)}
	}

	data, err := json.Marshal(reqBody)
	if err != nil {
		return nil, &domain.UpstreamError{Endpoint: profile.Endpoint, Err: err}
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, profile.Endpoint, bytes.NewReader(data))
	if err != nil {
		return nil, &domain.UpstreamError{Endpoint: profile.Endpoint, Err: err}
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("X-Source", "whatsapp")
	if d.token != "" {
		req.Header.Set("Authorization", "Bearer "+d.token)
	}

	start := time.Now()
	resp, err := d.client.Do(req)
	if err != nil {
		return nil, &domain.UpstreamError{Endpoint: profile.Endpoint, Err: err}
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
		return nil, &domain.UpstreamError{
			Endpoint: profile.Endpoint,
			Status:   resp.StatusCode,
			Body:     string(body),
		}
	}

	var answer botAnswer
	if err := json.NewDecoder(resp.Body).Decode(&answer); err != nil {
		return nil, &domain.UpstreamError{Endpoint: profile.Endpoint, Err: fmt.Errorf("decode answer: %w", err)}
	}

	d.logger.Info("bot query answered",
		"bot", sess.Bot,
		"language", sess.Language,
		"duration_ms", time.Since(start).Milliseconds(),
		"has_audio", answer.Output.Audio != "",
	)

	return &domain.QueryResponse{
		Text:     answer.Output.Text,
		AudioURL: answer.Output.Audio,
	}, nil
}
