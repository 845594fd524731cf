package notification

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"sync/atomic"
	"testing"
	"time"
)

const testToken = "123:abc"

// telegramServer fakes the two Bot API methods the notifier uses.
type telegramServer struct {
	mu       sync.Mutex
	messages []map[string]string
	fail     bool
}

func (s *telegramServer) handler(t *testing.T) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		if err := r.ParseForm(); err != nil {
			t.Errorf("parse form: %v", err)
		}
		switch {
		case strings.HasSuffix(r.URL.Path, "/bot"+testToken+"/getMe"):
			io.WriteString(w, `{"ok":true,"result":{"id":1,"is_bot":true,"first_name":"signals","username":"signals_bot"}}`)
		case strings.HasSuffix(r.URL.Path, "/bot"+testToken+"/sendMessage"):
			s.mu.Lock()
			defer s.mu.Unlock()
			if s.fail {
				io.WriteString(w, `{"ok":false,"error_code":400,"description":"Bad Request: chat not found"}`)
				return
			}
			s.messages = append(s.messages, map[string]string{
				"chat_id": r.FormValue("chat_id"),
				"text":    r.FormValue("text"),
			})
			io.WriteString(w, `{"ok":true,"result":{"message_id":7,"date":0,"chat":{"id":42,"type":"private"},"text":"ok"}}`)
		default:
			t.Errorf("unexpected path %s", r.URL.Path)
			w.WriteHeader(http.StatusNotFound)
		}
	}
}

func newTelegram(t *testing.T, chatID string) (*TelegramNotifier, *telegramServer) {
	t.Helper()
	fake := &telegramServer{}
	srv := httptest.NewServer(fake.handler(t))
	t.Cleanup(srv.Close)

	n, err := NewTelegramNotifierWithEndpoint(testToken, chatID, srv.URL+"/bot%s/%s", srv.Client())
	if err != nil {
		t.Fatalf("new telegram notifier: %v", err)
	}
	return n, fake
}

func TestTelegram_Send(t *testing.T) {
	n, fake := newTelegram(t, "42")

	msg := "NIFTY 24812.35 → MACD: Bullish | Above VWAP"
	if err := n.Send(context.Background(), Alert{Level: AlertInfo, Title: "NIFTY", Message: msg}); err != nil {
		t.Fatalf("send: %v", err)
	}
	if len(fake.messages) != 1 {
		t.Fatalf("expected 1 message, got %d", len(fake.messages))
	}
	if fake.messages[0]["chat_id"] != "42" {
		t.Errorf("expected chat_id 42, got %q", fake.messages[0]["chat_id"])
	}
	if fake.messages[0]["text"] != msg {
		t.Errorf("expected text %q, got %q", msg, fake.messages[0]["text"])
	}
}

func TestTelegram_ChannelDestination(t *testing.T) {
	n, fake := newTelegram(t, "@nifty_signals")
	if err := n.Send(context.Background(), Alert{Message: "hello"}); err != nil {
		t.Fatalf("send: %v", err)
	}
	if fake.messages[0]["chat_id"] != "@nifty_signals" {
		t.Errorf("expected channel destination, got %q", fake.messages[0]["chat_id"])
	}
}

func TestTelegram_APIErrorIsTransportError(t *testing.T) {
	n, fake := newTelegram(t, "42")
	fake.fail = true
	err := n.Send(context.Background(), Alert{Message: "hello"})
	if !errors.Is(err, ErrTransport) {
		t.Fatalf("expected ErrTransport, got %v", err)
	}
}

func TestTelegram_InvalidChatID(t *testing.T) {
	_, err := NewTelegramNotifierWithEndpoint(testToken, "not-a-number", "http://127.0.0.1:0/bot%s/%s", http.DefaultClient)
	if err == nil {
		t.Fatal("expected error for invalid chat id")
	}
}

func TestTelegram_VerifyReadsBotIdentity(t *testing.T) {
	n, _ := newTelegram(t, "42")
	if err := n.Verify(context.Background()); err != nil {
		t.Fatalf("verify: %v", err)
	}
	if n.Username() != "signals_bot" {
		t.Errorf("expected username signals_bot, got %q", n.Username())
	}
}

func TestTelegram_UnreachableAPIDoesNotFailConstruction(t *testing.T) {
	var calls int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		atomic.AddInt32(&calls, 1)
		w.WriteHeader(http.StatusBadGateway)
		io.WriteString(w, "Bad Gateway")
	}))
	defer srv.Close()

	n, err := NewTelegramNotifierWithEndpoint(testToken, "42", srv.URL+"/bot%s/%s", srv.Client())
	if err != nil {
		t.Fatalf("construction must not depend on the API: %v", err)
	}
	if got := atomic.LoadInt32(&calls); got != 0 {
		t.Errorf("expected no request at construction, got %d", got)
	}
	if err := n.Verify(context.Background()); !errors.Is(err, ErrTransport) {
		t.Errorf("expected ErrTransport from verify, got %v", err)
	}
	if err := n.Send(context.Background(), Alert{Message: "hello"}); !errors.Is(err, ErrTransport) {
		t.Errorf("expected ErrTransport from send, got %v", err)
	}
}

func TestTelegram_MalformedToken(t *testing.T) {
	for _, token := range []string{"", "abc", "123", "123:", "x:abc"} {
		if _, err := NewTelegramNotifierWithEndpoint(token, "42", "http://127.0.0.1:0/bot%s/%s", http.DefaultClient); err == nil {
			t.Errorf("expected error for token %q", token)
		}
	}
}

func TestWebhook_SendsSignalFields(t *testing.T) {
	var got webhookPayload
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if ct := r.Header.Get("Content-Type"); ct != "application/json" {
			t.Errorf("expected json content type, got %q", ct)
		}
		json.NewDecoder(r.Body).Decode(&got)
		w.WriteHeader(http.StatusNoContent)
	}))
	defer srv.Close()

	w := NewWebhookNotifier(srv.URL)
	w.now = func() time.Time { return time.Date(2026, 10, 19, 4, 0, 0, 0, time.UTC) }
	alert := Alert{
		Level:   AlertInfo,
		Title:   "NIFTY",
		Message: "NIFTY 24812.35 → MACD: Bullish | Above VWAP | Supertrend: Buy",
		Signal:  "MACD: Bullish | Above VWAP | Supertrend: Buy",
		Close:   24812.35,
		BarTime: time.Date(2026, 10, 19, 9, 30, 0, 0, time.FixedZone("IST", 19800)),
	}
	if err := w.Send(context.Background(), alert); err != nil {
		t.Fatalf("send: %v", err)
	}
	if got.Instrument != "NIFTY" || got.Level != "INFO" || got.Close != 24812.35 {
		t.Errorf("unexpected payload %+v", got)
	}
	if len(got.Parts) != 3 || got.Parts[2] != "Supertrend: Buy" {
		t.Errorf("unexpected parts %v", got.Parts)
	}
	if got.BarTime != "2026-10-19T09:30:00+05:30" || got.SentAt != "2026-10-19T04:00:00Z" {
		t.Errorf("unexpected times bar=%q sent=%q", got.BarTime, got.SentAt)
	}
}

func TestWebhook_Non2xx(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusBadGateway)
	}))
	defer srv.Close()

	err := NewWebhookNotifier(srv.URL).Send(context.Background(), Alert{})
	if !errors.Is(err, ErrTransport) {
		t.Fatalf("expected ErrTransport, got %v", err)
	}
}

type fakePublisher struct {
	channel string
	payload []byte
	err     error
}

func (f *fakePublisher) Publish(ctx context.Context, channel string, payload []byte) error {
	f.channel, f.payload = channel, payload
	return f.err
}

func TestRedisNotifier(t *testing.T) {
	pub := &fakePublisher{}
	n := NewRedisNotifier(pub, "signals:NIFTY")
	if err := n.Send(context.Background(), Alert{Level: AlertInfo, Title: "NIFTY", Message: "m"}); err != nil {
		t.Fatalf("send: %v", err)
	}
	if pub.channel != "signals:NIFTY" {
		t.Errorf("unexpected channel %q", pub.channel)
	}
	var a Alert
	if err := json.Unmarshal(pub.payload, &a); err != nil || a.Message != "m" {
		t.Errorf("unexpected payload %s (err=%v)", pub.payload, err)
	}

	pub.err = errors.New("circuit breaker is open")
	if err := n.Send(context.Background(), Alert{}); !errors.Is(err, ErrTransport) {
		t.Fatalf("expected ErrTransport, got %v", err)
	}
}

func TestMulti_PrimaryDecides(t *testing.T) {
	primary := &recordingNotifier{}
	secondary := &recordingNotifier{fail: errors.New("down")}
	m := NewMulti(primary, secondary, NewLogNotifier())

	if err := m.Send(context.Background(), Alert{Message: "m"}); err != nil {
		t.Fatalf("secondary failure must not fail the send: %v", err)
	}
	if len(primary.sent) != 1 {
		t.Fatalf("expected primary delivery, got %d", len(primary.sent))
	}

	primary.fail = errors.New("telegram down")
	if err := m.Send(context.Background(), Alert{Message: "m"}); err == nil {
		t.Fatal("expected primary failure to surface")
	}
}
