// Package telemetry builds and ships correlated event records for session
// starts, API-call logs and persona interactions. Transmission is
// fire-and-forget: a failed post is logged and never reaches the
// conversation.
package telemetry

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"log/slog"
	"net/http"
	"time"

	"github.com/google/uuid"

	"sakhibot/internal/config"
	"sakhibot/internal/domain"
)

const (
	envelopeID  = "ekstep.telemetry"
	envelopeVer = "3.0"
)

// Correlator implements domain.Telemetry against a Sunbird-style telemetry
// endpoint.
type Correlator struct {
	cfg         config.TelemetryConfig
	bots        *config.BotMap
	defaultLang string
	client      *http.Client
	logger      *slog.Logger
}

type CorrelatorConfig struct {
	Config          config.TelemetryConfig
	Bots            *config.BotMap
	DefaultLanguage string
	Client          *http.Client
	Logger          *slog.Logger
}

func NewCorrelator(cfg CorrelatorConfig) *Correlator {
	if cfg.Client == nil {
		cfg.Client = &http.Client{Timeout: 10 * time.Second}
	}
	if cfg.Logger == nil {
		cfg.Logger = slog.Default()
	}
	return &Correlator{
		cfg:         cfg.Config,
		bots:        cfg.Bots,
		defaultLang: cfg.DefaultLanguage,
		client:      cfg.Client,
		logger:      cfg.Logger,
	}
}

// --- Event shapes ---

type Event struct {
	Eid     string         `json:"eid"`
	Ets     int64          `json:"ets"`
	Ver     string         `json:"ver"`
	Mid     string         `json:"mid"`
	Actor   Actor          `json:"actor"`
	Context EventContext   `json:"context"`
	Edata   map[string]any `json:"edata"`
}

type Actor struct {
	ID   string `json:"id"`
	Type string `json:"type"`
}

type EventContext struct {
	Env   string  `json:"env"`
	Sid   string  `json:"sid"`
	Did   string  `json:"did"`
	Cdata []CData `json:"cdata"`
	Pdata Pdata   `json:"pdata"`
}

type CData struct {
	ID   string `json:"id"`
	Type string `json:"type"`
}

type Pdata struct {
	ID  string `json:"id"`
	Pid string `json:"pid"`
	Ver string `json:"ver"`
}

type envelope struct {
	ID     string  `json:"id"`
	Ver    string  `json:"ver"`
	Ts     string  `json:"ts"`
	Params params  `json:"params"`
	Events []Event `json:"events"`
}

type params struct {
	RequesterID string `json:"requesterId"`
	Did         string `json:"did"`
	Msgid       string `json:"msgid"`
}

// --- domain.Telemetry ---

func (c *Correlator) SessionStart(ctx context.Context, sess *domain.Session, msg *domain.IncomingMessage) {
	c.dispatch(c.buildEvent("START", sess, msg, map[string]any{
		"type":     "session",
		"mode":     "preview",
		"duration": 1,
	}))
}

func (c *Correlator) LogCall(ctx context.Context, sess *domain.Session, msg *domain.IncomingMessage) {
	c.dispatch(c.buildEvent("LOG", sess, msg, map[string]any{
		"type":    "api_call",
		"level":   "INFO",
		"message": "Success",
		"params": []map[string]any{
			{"mesId": msg.ID},
			{"mesType": string(msg.Type)},
			{"msgInput": msg.Input()},
		},
	}))
}

func (c *Correlator) Interact(ctx context.Context, sess *domain.Session, msg *domain.IncomingMessage) {
	c.dispatch(c.interactEvent(sess, msg))
}

func (c *Correlator) interactEvent(sess *domain.Session, msg *domain.IncomingMessage) Event {
	bot := c.eventBot(sess)
	edata := map[string]any{
		"type":    "TOUCH",
		"subtype": msg.Selection,
		"id":      bot,
	}
	if profile, ok := c.bots.Profile(bot); ok && profile.PageID != "" {
		edata["pageid"] = profile.PageID
	}
	return c.buildEvent("INTERACT", sess, msg, edata)
}

// --- Event construction ---

// buildEvent correlates an event to the current session. Language and bot
// default to the system defaults so pre-selection events stay attributable.
func (c *Correlator) buildEvent(eid string, sess *domain.Session, msg *domain.IncomingMessage, edata map[string]any) Event {
	lang := c.defaultLang
	if sess != nil && sess.Language != "" {
		lang = sess.Language
	}

	return Event{
		Eid: eid,
		Ets: time.Now().UnixMilli(),
		Ver: envelopeVer,
		Mid: uuid.NewString(),
		Actor: Actor{
			ID:   msg.From,
			Type: "User",
		},
		Context: EventContext{
			Env: c.cfg.Env,
			Sid: msg.ID,
			Did: msg.ID,
			Cdata: []CData{
				{ID: lang, Type: "Language"},
				{ID: c.eventBot(sess), Type: "Bot"},
			},
			Pdata: Pdata{
				ID:  c.cfg.Env + "." + c.cfg.AppName + ".whatsapp",
				Pid: "whatsapp-bot",
				Ver: "1.0",
			},
		},
		Edata: edata,
	}
}

func (c *Correlator) eventBot(sess *domain.Session) string {
	if sess != nil && sess.Bot != "" {
		return sess.Bot
	}
	return c.bots.Default
}

// --- Transmission ---

// dispatch ships one event without blocking the caller's turn.
func (c *Correlator) dispatch(ev Event) {
	if !c.cfg.Enabled {
		return
	}
	go func() {
		ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		if err := c.post(ctx, []Event{ev}); err != nil {
			c.logger.Error("telemetry post failed", "eid", ev.Eid, "err", err)
		}
	}()
}

func (c *Correlator) post(ctx context.Context, events []Event) error {
	if len(events) == 0 {
		return nil
	}

	body := envelope{
		ID:  envelopeID,
		Ver: envelopeVer,
		Ts:  time.Now().Format("2006-01-02 15:04:05:000-0700"),
		Params: params{
			RequesterID: events[0].Actor.ID,
			Did:         c.cfg.AppName,
			Msgid:       uuid.NewString(),
		},
		Events: events,
	}

	data, err := json.Marshal(body)
	if err != nil {
		return err
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.cfg.URL, bytes.NewReader(data))
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("X-Source", "whatsapp")
	if c.cfg.AuthToken != "" {
		req.Header.Set("Authorization", "Bearer "+c.cfg.AuthToken)
	}

	resp, err := c.client.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	io.Copy(io.Discard, io.LimitReader(resp.Body, 1024))

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		c.logger.Error("telemetry endpoint rejected batch", "status", resp.StatusCode)
	}
	return nil
}
