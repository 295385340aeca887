// Package dialog sequences one conversational turn per inbound message: load
// the session, decide the next state, resolve templates, query the persona
// bot, and send the replies in order through the originating provider.
package dialog

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"sakhibot/internal/config"
	"sakhibot/internal/domain"
	"sakhibot/internal/metrics"
	"sakhibot/internal/session"
	"sakhibot/internal/template"
)

const (
	resetSelection = "end" // interactive reply id that destroys the session
	resetText      = "*"   // typed main-menu command, same effect
	langChangeText = "#"   // typed command returning to language selection
)

// pendingBotSelect marks a session whose persona prompt is outstanding even
// though a persona is already set (after a language change). The next message
// answers the prompt instead of being queried.
const pendingBotSelect = "bot_select"

// Shared template keys. Per-persona keys live inside each bot's block in the
// language files.
const (
	keyLanguageSelection = "language_selection"
	keyBotSelection      = "bot_selection"
	keyWelcome           = "welcome_message"
	keyLoading           = "loading_message"
	keyFeedback          = "feedback_message"
	keyFooter            = "footer_message"
)

// Orchestrator owns the conversation state machine. One HandleMessage call is
// one turn; turns for the same user are serialized on a keyed mutex, turns
// for different users run in parallel.
type Orchestrator struct {
	sessions  domain.SessionStore
	locks     *session.KeyedMutex
	templates *template.Resolver
	bots      domain.BotDispatcher
	botMap    *config.BotMap
	telemetry domain.Telemetry
	quiet     time.Duration
	sleep     func(time.Duration)
	logger    *slog.Logger
}

type OrchestratorConfig struct {
	Sessions  domain.SessionStore
	Templates *template.Resolver
	Bots      domain.BotDispatcher
	BotMap    *config.BotMap
	Telemetry domain.Telemetry

	// QuietInterval is the pacing delay between the answer and the feedback
	// prompt.
	QuietInterval time.Duration

	// Sleep overrides the pacing delay implementation. Tests inject a no-op.
	Sleep func(time.Duration)

	Logger *slog.Logger
}

func NewOrchestrator(cfg OrchestratorConfig) *Orchestrator {
	if cfg.Sleep == nil {
		cfg.Sleep = time.Sleep
	}
	if cfg.Logger == nil {
		cfg.Logger = slog.Default()
	}
	return &Orchestrator{
		sessions:  cfg.Sessions,
		locks:     session.NewKeyedMutex(),
		templates: cfg.Templates,
		bots:      cfg.Bots,
		botMap:    cfg.BotMap,
		telemetry: cfg.Telemetry,
		quiet:     cfg.QuietInterval,
		sleep:     cfg.Sleep,
		logger:    cfg.Logger,
	}
}

// HandleMessage runs one full turn. It never returns an error to the webhook
// layer: every failure is logged here and the caller has already acknowledged
// the delivery.
func (o *Orchestrator) HandleMessage(ctx context.Context, p domain.Provider, msg *domain.IncomingMessage) {
	unlock := o.locks.Lock(msg.From)
	defer unlock()

	metrics.MessagesTotal.Inc()

	sess, err := o.sessions.Get(ctx, msg.From)
	if err != nil {
		o.logger.Error("session load failed", "user", msg.From, "err", err)
		return
	}

	if isReset(msg) && sess != nil {
		// Destroy only. The language prompt goes out on the user's next
		// message, which starts a fresh conversation. With no session to
		// destroy (a stale restart button), fall through and treat the
		// message as an ordinary first contact.
		if err := o.sessions.Destroy(ctx, msg.From); err != nil {
			o.logger.Error("session destroy failed", "user", msg.From, "err", err)
			return
		}
		o.telemetry.Interact(ctx, sess, msg)
		o.logger.Info("session reset", "user", msg.From, "provider", p.Name())
		return
	}

	if sess == nil {
		sess, err = o.sessions.Create(ctx, msg.From)
		if err != nil {
			o.logger.Error("session create failed", "user", msg.From, "err", err)
			return
		}
		metrics.SessionsStarted.Inc()
		o.telemetry.SessionStart(ctx, sess, msg)
		o.sendLanguagePrompt(ctx, p, sess, msg)
		return
	}

	if msg.Input() == langChangeText {
		// Back to language selection; the persona choice survives.
		sess.Language = ""
		if err := o.sessions.Update(ctx, sess); err != nil {
			o.logger.Error("session update failed", "user", msg.From, "err", err)
			return
		}
		o.sendLanguagePrompt(ctx, p, sess, msg)
		return
	}

	switch {
	case sess.Language == "":
		o.handleLanguageSelect(ctx, p, sess, msg)
	case sess.Bot == "" || sess.Pending == pendingBotSelect:
		o.handleBotSelect(ctx, p, sess, msg)
	default:
		o.handleQuery(ctx, p, sess, msg)
	}
}

func isReset(msg *domain.IncomingMessage) bool {
	if msg.Type == domain.TypeInteractive {
		return msg.Selection == resetSelection
	}
	return msg.Text == resetText
}

// --- State handlers ---

func (o *Orchestrator) handleLanguageSelect(ctx context.Context, p domain.Provider, sess *domain.Session, msg *domain.IncomingMessage) {
	code, ok := o.templates.ResolveLanguage(msg.Input())
	if !ok {
		o.logger.Info("language choice rejected",
			"user", sess.UserID, "input", msg.Input(), "err", domain.ErrUnrecognizedInput)
		o.sendLanguagePrompt(ctx, p, sess, msg)
		return
	}

	sess.Language = code
	if sess.Bot != "" {
		// Persona history survives a language change, but the persona prompt
		// goes out again, so the next message must answer it.
		sess.Pending = pendingBotSelect
	}
	if err := o.sessions.Update(ctx, sess); err != nil {
		o.logger.Error("session update failed", "user", sess.UserID, "err", err)
		return
	}
	o.telemetry.Interact(ctx, sess, msg)
	o.send(ctx, p, sess, msg, "", keyBotSelection)
}

func (o *Orchestrator) handleBotSelect(ctx context.Context, p domain.Provider, sess *domain.Session, msg *domain.IncomingMessage) {
	id, ok := o.botMap.Resolve(msg.Input())
	if !ok {
		o.logger.Info("persona choice rejected",
			"user", sess.UserID, "input", msg.Input(), "err", domain.ErrUnrecognizedInput)
		o.send(ctx, p, sess, msg, "", keyBotSelection)
		return
	}

	sess.Bot = id
	sess.Pending = ""
	if err := o.sessions.Update(ctx, sess); err != nil {
		o.logger.Error("session update failed", "user", sess.UserID, "err", err)
		return
	}
	o.telemetry.Interact(ctx, sess, msg)
	o.send(ctx, p, sess, msg, sess.Bot, keyWelcome)
}

// handleQuery runs the processing step: loading indicator, bot query, answer,
// pacing delay, feedback and footer — each send awaited before the next so
// the user sees them in exactly this order.
func (o *Orchestrator) handleQuery(ctx context.Context, p domain.Provider, sess *domain.Session, msg *domain.IncomingMessage) {
	if msg.Type == domain.TypeInteractive {
		// Feedback or footer button press. Recorded, not answered.
		o.telemetry.Interact(ctx, sess, msg)
		return
	}

	if err := o.send(ctx, p, sess, msg, sess.Bot, keyLoading); err != nil {
		return
	}

	metrics.BotQueriesTotal.Inc()
	start := time.Now()
	resp, err := o.bots.Dispatch(ctx, sess, msg)
	metrics.BotQueryLatency.Observe(time.Since(start).Seconds())
	if err != nil {
		// Session untouched: the user may simply resend the query.
		metrics.BotQueryFailures.Inc()
		o.logger.Error("bot query failed",
			"user", sess.UserID, "bot", sess.Bot, "language", sess.Language, "err", err)
		return
	}

	if resp.Text != "" {
		answer := &domain.RenderedMessage{Type: domain.TypeText, Text: resp.Text}
		if err := o.deliver(ctx, p, sess, msg, outgoing(sess, msg, "bot_answer", answer)); err != nil {
			return
		}
	}
	if resp.AudioURL != "" {
		audio := &domain.RenderedMessage{Type: domain.TypeAudio, URL: resp.AudioURL}
		if err := o.deliver(ctx, p, sess, msg, outgoing(sess, msg, "bot_answer_audio", audio)); err != nil {
			return
		}
	}

	o.sleep(o.quiet)

	if err := o.send(ctx, p, sess, msg, "", keyFeedback); err != nil {
		return
	}
	if err := o.send(ctx, p, sess, msg, "", keyFooter); err != nil {
		return
	}

	sess.LastActivityAt = time.Now()
	if err := o.sessions.Update(ctx, sess); err != nil {
		o.logger.Error("session update failed", "user", sess.UserID, "err", err)
	}
	o.telemetry.LogCall(ctx, sess, msg)
}

// --- Sending ---

// sendLanguagePrompt renders the language menu with one numbered line per
// supported language appended to the template body.
func (o *Orchestrator) sendLanguagePrompt(ctx context.Context, p domain.Provider, sess *domain.Session, msg *domain.IncomingMessage) {
	lang := sess.Language
	if lang == "" {
		lang = o.templates.DefaultLanguage()
	}

	body, err := o.templates.Resolve(lang, "", keyLanguageSelection)
	if err != nil {
		o.logMissing(sess, err)
		return
	}
	for i, l := range o.templates.Languages() {
		body.Text += fmt.Sprintf("\n %d. %s", i+1, l.Name)
	}

	out := &domain.OutgoingMessage{
		TemplateKey: keyLanguageSelection,
		Language:    lang,
		Body:        body,
		To:          msg.From,
		ReplyTo:     msg,
	}
	o.deliver(ctx, p, sess, msg, out)
}

// send resolves a template and delivers it. A missing template skips this
// sub-message and the turn continues; a delivery failure ends the turn.
func (o *Orchestrator) send(ctx context.Context, p domain.Provider, sess *domain.Session, msg *domain.IncomingMessage, bot, key string) error {
	lang := sess.Language
	if lang == "" {
		lang = o.templates.DefaultLanguage()
	}

	body, err := o.templates.Resolve(lang, bot, key)
	if err != nil {
		o.logMissing(sess, err)
		return nil
	}
	return o.deliver(ctx, p, sess, msg, outgoing(sess, msg, key, body))
}

func outgoing(sess *domain.Session, msg *domain.IncomingMessage, key string, body *domain.RenderedMessage) *domain.OutgoingMessage {
	return &domain.OutgoingMessage{
		TemplateKey: key,
		Language:    sess.Language,
		Bot:         sess.Bot,
		Body:        body,
		To:          msg.From,
		ReplyTo:     msg,
	}
}

func (o *Orchestrator) deliver(ctx context.Context, p domain.Provider, sess *domain.Session, msg *domain.IncomingMessage, out *domain.OutgoingMessage) error {
	metrics.ProviderSends.Inc()
	start := time.Now()
	err := p.Send(ctx, out)
	metrics.ProviderSendLatency.Observe(time.Since(start).Seconds())
	if err != nil {
		// At-most-once: no retry, no user-visible error. The channel itself
		// is impaired, so nothing we send would arrive anyway.
		metrics.ProviderSendErrors.Inc()
		o.logger.Error("provider send failed",
			"provider", p.Name(), "user", msg.From, "template", out.TemplateKey, "err", err)
		return err
	}
	return nil
}

func (o *Orchestrator) logMissing(sess *domain.Session, err error) {
	var tm *domain.TemplateMissingError
	if errors.As(err, &tm) {
		o.logger.Warn("template missing, message skipped",
			"user", sess.UserID, "language", tm.Language, "bot", tm.Bot, "key", tm.Key)
		return
	}
	o.logger.Error("template resolution failed", "user", sess.UserID, "err", err)
}
