package notification

import (
	"context"
	"errors"
	"testing"

	"nifty-signal/internal/signal"
)

// recordingNotifier counts deliveries and can be told to fail.
type recordingNotifier struct {
	sent []Alert
	fail error
}

func (r *recordingNotifier) Send(ctx context.Context, alert Alert) error {
	if r.fail != nil {
		return r.fail
	}
	r.sent = append(r.sent, alert)
	return nil
}

func alertFor(text signal.Text) Alert {
	return Alert{Level: AlertInfo, Title: "NIFTY", Message: signal.Format("NIFTY", 24800, text)}
}

func TestState_ZeroValueIsSentinel(t *testing.T) {
	var st State
	if _, emitted := st.Last(); emitted {
		t.Fatal("zero state should report nothing emitted")
	}
	if !st.Changed("") {
		t.Fatal("zero state must accept even an empty text")
	}
}

func TestGate_FirstSignalAlwaysSent(t *testing.T) {
	rec := &recordingNotifier{}
	g := NewGate(rec)

	text := signal.Text("MACD: Bearish | Below VWAP")
	st, sent, err := g.Notify(context.Background(), State{}, text, alertFor(text))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !sent || len(rec.sent) != 1 {
		t.Fatalf("expected one send, got sent=%v count=%d", sent, len(rec.sent))
	}
	if last, ok := st.Last(); !ok || last != text {
		t.Errorf("expected state %q, got %q (emitted=%v)", text, last, ok)
	}
}

func TestGate_Idempotent(t *testing.T) {
	rec := &recordingNotifier{}
	g := NewGate(rec)
	ctx := context.Background()
	text := signal.Text("MACD: Bullish | Above VWAP | Supertrend: Buy")

	st := State{}
	for i := 0; i < 3; i++ {
		var err error
		st, _, err = g.Notify(ctx, st, text, alertFor(text))
		if err != nil {
			t.Fatal(err)
		}
	}
	if len(rec.sent) != 1 {
		t.Fatalf("expected exactly one send for repeated text, got %d", len(rec.sent))
	}
}

func TestGate_SendsOnChange(t *testing.T) {
	rec := &recordingNotifier{}
	g := NewGate(rec)
	ctx := context.Background()

	texts := []signal.Text{
		"MACD: Bullish | Above VWAP",
		"MACD: Bullish | Above VWAP",
		"MACD: Bearish | Above VWAP",
		"MACD: Bullish | Above VWAP",
	}
	st := State{}
	for _, tx := range texts {
		st, _, _ = g.Notify(ctx, st, tx, alertFor(tx))
	}
	if len(rec.sent) != 3 {
		t.Fatalf("expected 3 sends, got %d", len(rec.sent))
	}
}

func TestGate_FailureKeepsStateAndRetries(t *testing.T) {
	rec := &recordingNotifier{fail: errors.New("connection reset")}
	var failed, ok int
	g := NewGate(rec)
	g.OnFailed = func() { failed++ }
	g.OnSent = func() { ok++ }
	ctx := context.Background()

	first := signal.Text("MACD: Bearish | Below VWAP")
	st, _, _ := g.Notify(ctx, State{}, first, alertFor(first))

	next := signal.Text("MACD: Bullish | Above VWAP")
	st2, sent, err := g.Notify(ctx, st, next, alertFor(next))
	if !errors.Is(err, ErrTransport) {
		t.Fatalf("expected ErrTransport, got %v", err)
	}
	if sent {
		t.Fatal("expected sent=false on failure")
	}
	if st2 != st {
		t.Fatalf("state must not change on failure: %+v vs %+v", st2, st)
	}

	// Transport recovers: the same new signal goes out on the next cycle.
	rec.fail = nil
	st3, sent, err := g.Notify(ctx, st2, next, alertFor(next))
	if err != nil || !sent {
		t.Fatalf("expected retry to send, got sent=%v err=%v", sent, err)
	}
	if last, _ := st3.Last(); last != next {
		t.Errorf("expected state %q, got %q", next, last)
	}
	if failed != 2 || ok != 1 {
		t.Errorf("expected 2 failures and 1 success, got %d/%d", failed, ok)
	}
}

func TestGate_DoesNotDoubleWrapTransportErrors(t *testing.T) {
	inner := errors.New("boom")
	rec := &recordingNotifier{fail: errors.Join(ErrTransport, inner)}
	_, _, err := NewGate(rec).Notify(context.Background(), State{}, "x", Alert{})
	if !errors.Is(err, ErrTransport) || !errors.Is(err, inner) {
		t.Fatalf("expected wrapped transport error, got %v", err)
	}
}
