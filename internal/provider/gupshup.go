package provider

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"strings"
	"time"

	"sakhibot/internal/config"
	"sakhibot/internal/domain"
)

// Gupshup implements domain.Provider for the Gupshup WhatsApp send API.
// Outgoing messages travel as a form-urlencoded envelope whose "message"
// field is a JSON-stringified sub-object.
type Gupshup struct {
	cfg    config.GupshupConfig
	client *http.Client
	logger *slog.Logger
}

type GupshupProviderConfig struct {
	Config config.GupshupConfig
	Client *http.Client
	Logger *slog.Logger
}

func NewGupshup(cfg GupshupProviderConfig) *Gupshup {
	if cfg.Client == nil {
		cfg.Client = SharedHTTPClient(30 * time.Second)
	}
	if cfg.Logger == nil {
		cfg.Logger = slog.Default()
	}
	return &Gupshup{
		cfg:    cfg.Config,
		client: cfg.Client,
		logger: cfg.Logger,
	}
}

func (g *Gupshup) Name() string { return "gupshup" }

// --- Incoming webhook payload ---

type gupshupWebhook struct {
	App       string `json:"app"`
	Timestamp int64  `json:"timestamp"`
	Type      string `json:"type"`
	Payload   struct {
		ID      string          `json:"id"`
		Source  string          `json:"source"`
		Type    string          `json:"type"`
		Payload json.RawMessage `json:"payload"`
		Sender  struct {
			Phone string `json:"phone"`
			Name  string `json:"name"`
		} `json:"sender"`
	} `json:"payload"`
}

// ParseIncoming normalizes a Gupshup webhook callback. Non-message callbacks
// (delivery events, user events) yield (nil, nil).
func (g *Gupshup) ParseIncoming(payload []byte) (*domain.IncomingMessage, error) {
	var hook gupshupWebhook
	if err := json.Unmarshal(payload, &hook); err != nil {
		return nil, fmt.Errorf("gupshup webhook decode: %w", err)
	}

	if hook.Type != "message" {
		g.logger.Debug("gupshup non-message callback dropped", "type", hook.Type)
		return nil, nil
	}

	msg := &domain.IncomingMessage{
		ID:        hook.Payload.ID,
		From:      hook.Payload.Sender.Phone,
		Provider:  g.Name(),
		Timestamp: time.Unix(hook.Timestamp/1000, 0),
		Raw:       json.RawMessage(payload),
	}
	if msg.From == "" {
		msg.From = hook.Payload.Source
	}

	switch hook.Payload.Type {
	case "text":
		var body struct {
			Text string `json:"text"`
		}
		if err := json.Unmarshal(hook.Payload.Payload, &body); err != nil {
			return nil, fmt.Errorf("gupshup text payload: %w", err)
		}
		msg.Type = domain.TypeText
		msg.Text = body.Text

	case "audio", "voice":
		var body struct {
			URL string `json:"url"`
		}
		if err := json.Unmarshal(hook.Payload.Payload, &body); err != nil {
			return nil, fmt.Errorf("gupshup audio payload: %w", err)
		}
		msg.Type = domain.TypeAudio
		msg.AudioURL = body.URL

	case "button_reply", "list_reply", "quick_reply":
		var body struct {
			ID    string `json:"id"`
			Title string `json:"title"`
		}
		if err := json.Unmarshal(hook.Payload.Payload, &body); err != nil {
			return nil, fmt.Errorf("gupshup reply payload: %w", err)
		}
		msg.Type = domain.TypeInteractive
		msg.Selection = body.ID
		if msg.Selection == "" {
			msg.Selection = body.Title
		}

	default:
		g.logger.Info("gupshup unsupported message type dropped",
			"type", hook.Payload.Type, "from", msg.From)
		return nil, nil
	}

	return msg, nil
}

// --- Outgoing ---

// gupshup message sub-objects, JSON-stringified into the form envelope.

type gupshupText struct {
	Type string `json:"type"`
	Text string `json:"text"`
}

type gupshupAudio struct {
	Type string `json:"type"`
	URL  string `json:"url"`
}

type gupshupQuickReply struct {
	Type    string               `json:"type"`
	Content gupshupReplyContent  `json:"content"`
	Options []gupshupReplyOption `json:"options"`
}

type gupshupReplyContent struct {
	Type string `json:"type"`
	Text string `json:"text"`
}

type gupshupReplyOption struct {
	Type     string `json:"type"`
	Title    string `json:"title"`
	PostText string `json:"postbackText,omitempty"`
}

func (g *Gupshup) Send(ctx context.Context, msg *domain.OutgoingMessage) error {
	dest := g.destination(msg)
	if dest == "" {
		return &domain.DeliveryError{Provider: g.Name(), Err: fmt.Errorf("no destination for template %s", msg.TemplateKey)}
	}

	sub, err := g.encodeBody(msg.Body)
	if err != nil {
		return &domain.DeliveryError{Provider: g.Name(), Err: err}
	}

	form := url.Values{}
	form.Set("channel", "whatsapp")
	form.Set("source", g.cfg.Source)
	form.Set("src.name", g.cfg.AppName)
	form.Set("destination", dest)
	form.Set("message", string(sub))

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, g.cfg.URL, strings.NewReader(form.Encode()))
	if err != nil {
		return &domain.DeliveryError{Provider: g.Name(), Err: err}
	}
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	req.Header.Set("Cache-Control", "no-cache")
	req.Header.Set("apikey", g.cfg.APIKey)

	resp, err := g.client.Do(req)
	if err != nil {
		return &domain.DeliveryError{Provider: g.Name(), Err: err}
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 2048))
		g.logger.Error("gupshup send failed",
			"status", resp.StatusCode, "to", dest, "template", msg.TemplateKey, "body", string(body))
		return &domain.DeliveryError{Provider: g.Name(), Status: resp.StatusCode}
	}

	g.logger.Debug("gupshup message sent", "to", dest, "template", msg.TemplateKey)
	return nil
}

func (g *Gupshup) encodeBody(body *domain.RenderedMessage) ([]byte, error) {
	switch body.Type {
	case domain.TypeText:
		return json.Marshal(gupshupText{Type: "text", Text: body.Text})
	case domain.TypeAudio:
		return json.Marshal(gupshupAudio{Type: "audio", URL: body.URL})
	case domain.TypeInteractive:
		qr := gupshupQuickReply{
			Type:    "quick_reply",
			Content: gupshupReplyContent{Type: "text", Text: body.Text},
		}
		for _, b := range body.Buttons {
			qr.Options = append(qr.Options, gupshupReplyOption{
				Type:     "text",
				Title:    b.Title,
				PostText: b.ID,
			})
		}
		return json.Marshal(qr)
	default:
		return nil, fmt.Errorf("unsupported message type %q", body.Type)
	}
}

// destination resolves the reply address: explicit destination first, then
// the canonical sender, then the phone nested in the raw webhook payload.
func (g *Gupshup) destination(msg *domain.OutgoingMessage) string {
	if msg.To != "" {
		return msg.To
	}
	if msg.ReplyTo == nil {
		return ""
	}
	if msg.ReplyTo.From != "" {
		return msg.ReplyTo.From
	}
	var hook gupshupWebhook
	if err := json.Unmarshal(msg.ReplyTo.Raw, &hook); err != nil {
		return ""
	}
	return hook.Payload.Sender.Phone
}
