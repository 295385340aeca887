package telemetry

import (
	"context"
	"encoding/json"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"testing"

	"sakhibot/internal/config"
	"sakhibot/internal/domain"
)

var testLogger = slog.New(slog.DiscardHandler)

func testCorrelator(url string) *Correlator {
	return NewCorrelator(CorrelatorConfig{
		Config: config.TelemetryConfig{
			Enabled:   true,
			URL:       url,
			AuthToken: "tele-token",
			Env:       "dev",
			AppName:   "sakhibot",
		},
		Bots: &config.BotMap{
			Default: "bot_1",
			Bots: map[string]config.BotProfile{
				"bot_1": {Endpoint: "http://x", PageID: "story-sakhi"},
				"bot_2": {Endpoint: "http://y", PageID: "parent-sakhi"},
			},
		},
		DefaultLanguage: "en",
		Logger:          testLogger,
	})
}

func TestBuildEvent_DefaultsBeforeSelection(t *testing.T) {
	c := testCorrelator("http://unused")

	msg := &domain.IncomingMessage{ID: "m1", From: "919876543210", Type: domain.TypeText, Text: "hi"}
	ev := c.buildEvent("START", nil, msg, map[string]any{"type": "session"})

	if ev.Actor.ID != "919876543210" || ev.Actor.Type != "User" {
		t.Fatalf("unexpected actor: %+v", ev.Actor)
	}
	if len(ev.Context.Cdata) != 2 {
		t.Fatalf("expected 2 cdata entries, got %d", len(ev.Context.Cdata))
	}
	if ev.Context.Cdata[0].ID != "en" || ev.Context.Cdata[0].Type != "Language" {
		t.Fatalf("pre-selection language must default: %+v", ev.Context.Cdata[0])
	}
	if ev.Context.Cdata[1].ID != "bot_1" || ev.Context.Cdata[1].Type != "Bot" {
		t.Fatalf("pre-selection bot must default: %+v", ev.Context.Cdata[1])
	}
	if ev.Mid == "" {
		t.Fatal("event must carry a correlation id")
	}
	if ev.Context.Pdata.ID != "dev.sakhibot.whatsapp" {
		t.Fatalf("unexpected pdata id: %q", ev.Context.Pdata.ID)
	}
}

func TestBuildEvent_SessionContext(t *testing.T) {
	c := testCorrelator("http://unused")

	sess := &domain.Session{UserID: "u", Language: "hi", Bot: "bot_2"}
	msg := &domain.IncomingMessage{ID: "m2", From: "u", Type: domain.TypeInteractive, Selection: "2"}
	ev := c.buildEvent("INTERACT", sess, msg, nil)

	if ev.Context.Cdata[0].ID != "hi" || ev.Context.Cdata[1].ID != "bot_2" {
		t.Fatalf("session context not applied: %+v", ev.Context.Cdata)
	}
}

func TestInteractEvent_PageID(t *testing.T) {
	c := testCorrelator("http://unused")

	sess := &domain.Session{Language: "en", Bot: "bot_2"}
	msg := &domain.IncomingMessage{ID: "m3", From: "u", Type: domain.TypeInteractive, Selection: "2"}

	ev := c.interactEvent(sess, msg)
	if ev.Eid != "INTERACT" {
		t.Fatalf("unexpected eid: %q", ev.Eid)
	}
	if ev.Edata["pageid"] != "parent-sakhi" {
		t.Fatalf("interact event must carry the persona page id, got %v", ev.Edata["pageid"])
	}
	if ev.Edata["subtype"] != "2" || ev.Edata["id"] != "bot_2" {
		t.Fatalf("unexpected edata: %+v", ev.Edata)
	}
}

func TestPost_Envelope(t *testing.T) {
	var got envelope
	var gotAuth string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotAuth = r.Header.Get("Authorization")
		if err := json.NewDecoder(r.Body).Decode(&got); err != nil {
			t.Errorf("decode: %v", err)
		}
		w.WriteHeader(http.StatusOK)
	}))
	defer srv.Close()

	c := testCorrelator(srv.URL)
	msg := &domain.IncomingMessage{ID: "m1", From: "919876543210", Type: domain.TypeText, Text: "hi"}
	ev := c.buildEvent("LOG", nil, msg, map[string]any{"type": "api_call"})

	if err := c.post(context.Background(), []Event{ev}); err != nil {
		t.Fatalf("post: %v", err)
	}

	if gotAuth != "Bearer tele-token" {
		t.Fatalf("expected bearer token, got %q", gotAuth)
	}
	if got.ID != "ekstep.telemetry" || got.Ver != "3.0" {
		t.Fatalf("unexpected envelope header: %+v", got)
	}
	if got.Params.Msgid == "" {
		t.Fatal("envelope must carry a msgid")
	}
	if got.Params.RequesterID != "919876543210" {
		t.Fatalf("unexpected requesterId: %q", got.Params.RequesterID)
	}
	if len(got.Events) != 1 || got.Events[0].Eid != "LOG" {
		t.Fatalf("unexpected events: %+v", got.Events)
	}
}

func TestPost_EndpointFailureIsSwallowed(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "nope", http.StatusBadGateway)
	}))
	defer srv.Close()

	c := testCorrelator(srv.URL)
	msg := &domain.IncomingMessage{ID: "m1", From: "u", Type: domain.TypeText}
	ev := c.buildEvent("START", nil, msg, nil)

	// A rejected batch must not surface as an error.
	if err := c.post(context.Background(), []Event{ev}); err != nil {
		t.Fatalf("expected nil error on endpoint rejection, got %v", err)
	}
}

func TestDispatch_DisabledIsNoop(t *testing.T) {
	called := false
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		called = true
	}))
	defer srv.Close()

	c := testCorrelator(srv.URL)
	c.cfg.Enabled = false

	msg := &domain.IncomingMessage{ID: "m1", From: "u", Type: domain.TypeText}
	c.SessionStart(context.Background(), nil, msg)

	if called {
		t.Fatal("disabled telemetry must not post")
	}
}
