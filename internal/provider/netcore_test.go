package provider

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"unicode/utf8"

	"sakhibot/internal/config"
	"sakhibot/internal/domain"
)

func newTestNetcore(url string, charLimit int) *Netcore {
	return NewNetcore(NetcoreProviderConfig{
		Config: config.NetcoreConfig{
			URL:        url,
			Token:      "test-token",
			Source:     "e4aba266d56a3726c36a2053d70c989d",
			CharLimit:  charLimit,
			MaxButtons: 3,
		},
		Logger: testLogger,
	})
}

func TestNetcore_ParseIncoming_FirstElement(t *testing.T) {
	n := newTestNetcore("http://unused", 1024)

	raw := `{"incoming_message": [
		{"message_id": "m1", "from": "919876543210", "message_type": "TEXT", "text": {"body": "hello"}},
		{"message_id": "m2", "from": "919999999999", "message_type": "TEXT", "text": {"body": "ignored"}}
	]}`
	msg, err := n.ParseIncoming([]byte(raw))
	if err != nil {
		t.Fatalf("parse: %v", err)
	}
	if msg.ID != "m1" || msg.Text != "hello" || msg.Type != domain.TypeText {
		t.Fatalf("unexpected message: %+v", msg)
	}
}

func TestNetcore_ParseIncoming_ButtonReply(t *testing.T) {
	n := newTestNetcore("http://unused", 1024)

	raw := `{"incoming_message": [{
		"message_id": "m3",
		"recipient_whatsapp": "919876543210",
		"message_type": "INTERACTIVE",
		"interactive_type": {"button_reply": {"id": "end", "title": "Start Again"}}
	}]}`
	msg, err := n.ParseIncoming([]byte(raw))
	if err != nil {
		t.Fatalf("parse: %v", err)
	}
	if msg.Type != domain.TypeInteractive || msg.Selection != "end" {
		t.Fatalf("unexpected message: %+v", msg)
	}
	if msg.From != "919876543210" {
		t.Fatalf("expected recipient_whatsapp fallback for sender, got %q", msg.From)
	}
}

func TestNetcore_ParseIncoming_EmptyBatchDropped(t *testing.T) {
	n := newTestNetcore("http://unused", 1024)

	msg, err := n.ParseIncoming([]byte(`{"incoming_message": []}`))
	if err != nil {
		t.Fatalf("parse: %v", err)
	}
	if msg != nil {
		t.Fatal("empty batch must be dropped")
	}
}

func TestNetcore_Send_InteractivePayload(t *testing.T) {
	var got netcoreSendBody
	var gotAuth string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotAuth = r.Header.Get("Authorization")
		if err := json.NewDecoder(r.Body).Decode(&got); err != nil {
			t.Errorf("decode: %v", err)
		}
		w.WriteHeader(http.StatusOK)
	}))
	defer srv.Close()

	n := newTestNetcore(srv.URL, 1024)
	err := n.Send(context.Background(), &domain.OutgoingMessage{
		TemplateKey: "bot_selection",
		Language:    "en",
		Body: &domain.RenderedMessage{
			Type: domain.TypeInteractive,
			Text: "Please select an assistant",
			Buttons: []domain.Button{
				{ID: "1", Title: "Stories"},
				{ID: "2", Title: "Parents"},
				{ID: "3", Title: "Teachers"},
			},
		},
		To: "919876543210",
	})
	if err != nil {
		t.Fatalf("send: %v", err)
	}

	if gotAuth != "Bearer test-token" {
		t.Fatalf("expected bearer auth, got %q", gotAuth)
	}
	if len(got.Message) != 1 {
		t.Fatalf("expected 1 message, got %d", len(got.Message))
	}
	m := got.Message[0]
	if m.MessageType != "interactive" || m.RecipientType != "individual" {
		t.Fatalf("unexpected envelope: %+v", m)
	}
	if m.RecipientWhatsapp != "919876543210" {
		t.Fatalf("unexpected recipient: %q", m.RecipientWhatsapp)
	}
	if len(m.TypeInteractive) != 1 || m.TypeInteractive[0].Type != "button" {
		t.Fatalf("unexpected interactive block: %+v", m.TypeInteractive)
	}
	buttons := m.TypeInteractive[0].Action[0].Buttons
	if len(buttons) != 3 || buttons[0].Reply.ID != "1" || buttons[2].Reply.Title != "Teachers" {
		t.Fatalf("unexpected buttons: %+v", buttons)
	}
}

func TestNetcore_Send_DefaultResetButton(t *testing.T) {
	var got netcoreSendBody
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		json.NewDecoder(r.Body).Decode(&got)
		w.WriteHeader(http.StatusOK)
	}))
	defer srv.Close()

	n := newTestNetcore(srv.URL, 1024)
	err := n.Send(context.Background(), &domain.OutgoingMessage{
		TemplateKey: "bot_answer_text",
		Body:        &domain.RenderedMessage{Type: domain.TypeText, Text: "Here is your answer"},
		To:          "919876543210",
	})
	if err != nil {
		t.Fatalf("send: %v", err)
	}

	buttons := got.Message[0].TypeInteractive[0].Action[0].Buttons
	if len(buttons) != 1 || buttons[0].Reply.ID != "end" {
		t.Fatalf("expected the restart button, got %+v", buttons)
	}
}

func TestNetcore_Send_TruncatesBody(t *testing.T) {
	var got netcoreSendBody
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		json.NewDecoder(r.Body).Decode(&got)
		w.WriteHeader(http.StatusOK)
	}))
	defer srv.Close()

	n := newTestNetcore(srv.URL, 20)
	long := strings.Repeat("word ", 20)
	err := n.Send(context.Background(), &domain.OutgoingMessage{
		TemplateKey: "bot_answer_text",
		Body:        &domain.RenderedMessage{Type: domain.TypeText, Text: long},
		To:          "919876543210",
	})
	if err != nil {
		t.Fatalf("send: %v", err)
	}

	body := got.Message[0].TypeInteractive[0].Body
	if utf8.RuneCountInString(body) > 20 {
		t.Fatalf("body not truncated: %q", body)
	}
}

func TestNetcore_Send_Non2xxIsDeliveryError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "unauthorized", http.StatusUnauthorized)
	}))
	defer srv.Close()

	n := newTestNetcore(srv.URL, 1024)
	err := n.Send(context.Background(), &domain.OutgoingMessage{
		TemplateKey: "loading_message",
		Body:        &domain.RenderedMessage{Type: domain.TypeText, Text: "hi"},
		To:          "919876543210",
	})

	var de *domain.DeliveryError
	if !errors.As(err, &de) || de.Status != http.StatusUnauthorized {
		t.Fatalf("expected DeliveryError with status 401, got %v", err)
	}
}

// --- truncateBody ---

func TestTruncateBody(t *testing.T) {
	tests := []struct {
		name  string
		text  string
		limit int
		want  string
	}{
		{"under limit", "short", 10, "short"},
		{"exact limit", "1234567890", 10, "1234567890"},
		{"word boundary", "hello brave new world", 12, "hello brave"},
		{"no space in window", "abcdefghijklmnop", 8, "abcdefgh"},
		{"zero limit disables", "anything", 0, "anything"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := truncateBody(tt.text, tt.limit); got != tt.want {
				t.Fatalf("truncateBody(%q, %d) = %q, want %q", tt.text, tt.limit, got, tt.want)
			}
		})
	}
}

func TestTruncateBody_NeverSplitsRunes(t *testing.T) {
	text := strings.Repeat("नमस्ते ", 10)
	got := truncateBody(text, 15)
	if !utf8.ValidString(got) {
		t.Fatalf("truncation produced invalid UTF-8: %q", got)
	}
	if utf8.RuneCountInString(got) > 15 {
		t.Fatalf("truncation exceeded limit: %d runes", utf8.RuneCountInString(got))
	}
}
