package provider

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strings"
	"time"
	"unicode/utf8"

	"sakhibot/internal/config"
	"sakhibot/internal/domain"
)

// Netcore implements domain.Provider for the Netcore (Pepipost) WhatsApp
// API. Every outgoing message is an interactive-button payload; bodies are
// truncated to the configured character limit before send.
type Netcore struct {
	cfg    config.NetcoreConfig
	client *http.Client
	logger *slog.Logger
}

type NetcoreProviderConfig struct {
	Config config.NetcoreConfig
	Client *http.Client
	Logger *slog.Logger
}

func NewNetcore(cfg NetcoreProviderConfig) *Netcore {
	if cfg.Client == nil {
		cfg.Client = SharedHTTPClient(30 * time.Second)
	}
	if cfg.Logger == nil {
		cfg.Logger = slog.Default()
	}
	if cfg.Config.MaxButtons <= 0 {
		cfg.Config.MaxButtons = 3
	}
	return &Netcore{
		cfg:    cfg.Config,
		client: cfg.Client,
		logger: cfg.Logger,
	}
}

func (n *Netcore) Name() string { return "netcore" }

// --- Incoming webhook payload ---

type netcoreWebhook struct {
	IncomingMessage []netcoreIncoming `json:"incoming_message"`
}

type netcoreIncoming struct {
	MessageID          string `json:"message_id"`
	From               string `json:"from"`
	RecipientWhatsapp  string `json:"recipient_whatsapp"`
	MessageType        string `json:"message_type"`
	Text               struct {
		Body string `json:"body"`
	} `json:"text"`
	Audio struct {
		URL string `json:"url"`
	} `json:"audio"`
	InteractiveType struct {
		ButtonReply struct {
			ID    string `json:"id"`
			Title string `json:"title"`
		} `json:"button_reply"`
	} `json:"interactive_type"`
}

// ParseIncoming reads the first element of the incoming_message array.
// Empty batches yield (nil, nil).
func (n *Netcore) ParseIncoming(payload []byte) (*domain.IncomingMessage, error) {
	var hook netcoreWebhook
	if err := json.Unmarshal(payload, &hook); err != nil {
		return nil, fmt.Errorf("netcore webhook decode: %w", err)
	}
	if len(hook.IncomingMessage) == 0 {
		n.logger.Debug("netcore webhook without incoming_message dropped")
		return nil, nil
	}

	in := hook.IncomingMessage[0]
	msg := &domain.IncomingMessage{
		ID:        in.MessageID,
		From:      in.From,
		Provider:  n.Name(),
		Timestamp: time.Now(),
		Raw:       json.RawMessage(payload),
	}
	if msg.From == "" {
		msg.From = in.RecipientWhatsapp
	}

	switch strings.ToUpper(in.MessageType) {
	case "TEXT":
		msg.Type = domain.TypeText
		msg.Text = in.Text.Body
	case "AUDIO", "VOICE":
		msg.Type = domain.TypeAudio
		msg.AudioURL = in.Audio.URL
	case "INTERACTIVE", "BUTTON":
		msg.Type = domain.TypeInteractive
		msg.Selection = in.InteractiveType.ButtonReply.ID
	default:
		n.logger.Info("netcore unsupported message type dropped",
			"type", in.MessageType, "from", msg.From)
		return nil, nil
	}

	return msg, nil
}

// --- Outgoing ---

type netcoreSendBody struct {
	Message []netcoreMessage `json:"message"`
}

type netcoreMessage struct {
	RecipientWhatsapp string               `json:"recipient_whatsapp"`
	MessageType       string               `json:"message_type"`
	RecipientType     string               `json:"recipient_type"`
	Source            string               `json:"source"`
	APIHeader         string               `json:"x-apiheader"`
	TypeInteractive   []netcoreInteractive `json:"type_interactive"`
}

type netcoreInteractive struct {
	Type   string          `json:"type"`
	Body   string          `json:"body"`
	Action []netcoreAction `json:"action"`
}

type netcoreAction struct {
	Buttons []netcoreButton `json:"buttons"`
}

type netcoreButton struct {
	Type  string       `json:"type"`
	Reply netcoreReply `json:"reply"`
}

type netcoreReply struct {
	ID    string `json:"id"`
	Title string `json:"title"`
}

func (n *Netcore) Send(ctx context.Context, msg *domain.OutgoingMessage) error {
	dest := msg.To
	if dest == "" && msg.ReplyTo != nil {
		dest = msg.ReplyTo.From
	}
	if dest == "" {
		return &domain.DeliveryError{Provider: n.Name(), Err: fmt.Errorf("no destination for template %s", msg.TemplateKey)}
	}

	text := msg.Body.Text
	if msg.Body.Type == domain.TypeAudio {
		// The v2 send surface is interactive-only; audio answers go out as a link.
		text = msg.Body.URL
	}

	body := netcoreSendBody{
		Message: []netcoreMessage{{
			RecipientWhatsapp: dest,
			MessageType:       "interactive",
			RecipientType:     "individual",
			Source:            n.cfg.Source,
			APIHeader:         "custom_data",
			TypeInteractive: []netcoreInteractive{{
				Type:   "button",
				Body:   truncateBody(text, n.cfg.CharLimit),
				Action: []netcoreAction{{Buttons: n.buttons(msg.Body)}},
			}},
		}},
	}

	data, err := json.Marshal(body)
	if err != nil {
		return &domain.DeliveryError{Provider: n.Name(), Err: err}
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, n.cfg.URL, bytes.NewReader(data))
	if err != nil {
		return &domain.DeliveryError{Provider: n.Name(), Err: err}
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", "Bearer "+n.cfg.Token)

	resp, err := n.client.Do(req)
	if err != nil {
		return &domain.DeliveryError{Provider: n.Name(), Err: err}
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		respBody, _ := io.ReadAll(io.LimitReader(resp.Body, 2048))
		n.logger.Error("netcore send failed",
			"status", resp.StatusCode, "to", dest, "template", msg.TemplateKey, "body", string(respBody))
		return &domain.DeliveryError{Provider: n.Name(), Status: resp.StatusCode}
	}

	n.logger.Debug("netcore message sent", "to", dest, "template", msg.TemplateKey)
	return nil
}

// buttons maps template buttons onto the wire shape, capped at the provider
// limit. Messages without buttons carry the restart option so the user can
// always reset the conversation.
func (n *Netcore) buttons(body *domain.RenderedMessage) []netcoreButton {
	src := body.Buttons
	if len(src) == 0 {
		src = []domain.Button{{ID: "end", Title: "Start Again"}}
	}
	if len(src) > n.cfg.MaxButtons {
		src = src[:n.cfg.MaxButtons]
	}
	out := make([]netcoreButton, 0, len(src))
	for _, b := range src {
		out = append(out, netcoreButton{
			Type:  "reply",
			Reply: netcoreReply{ID: b.ID, Title: b.Title},
		})
	}
	return out
}

// truncateBody cuts text to at most limit runes. The cut never splits a
// multi-byte rune, and backs up to the last space when one falls in the
// second half of the window, so words stay whole.
func truncateBody(text string, limit int) string {
	if limit <= 0 || utf8.RuneCountInString(text) <= limit {
		return text
	}

	runes := []rune(text)
	cut := limit
	for i := limit - 1; i > limit/2; i-- {
		if runes[i] == ' ' {
			cut = i
			break
		}
	}
	return strings.TrimRight(string(runes[:cut]), " ")
}
