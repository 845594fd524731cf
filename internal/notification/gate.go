package notification

import (
	"context"
	"errors"
	"fmt"

	"nifty-signal/internal/signal"
)

// State is the last emitted signal text. The zero value means nothing has
// been emitted yet, so the first signal of a run is always sent.
// It lives only for the process lifetime.
type State struct {
	last    signal.Text
	emitted bool
}

// Last returns the last emitted text and whether anything was emitted.
func (s State) Last() (signal.Text, bool) {
	return s.last, s.emitted
}

// Changed reports whether t differs from the last emitted text.
func (s State) Changed(t signal.Text) bool {
	return !s.emitted || s.last != t
}

// Gate delivers a signal only when it differs from the last one sent.
//
// The state advances only after a successful send: a failed send leaves it
// untouched, so the same new signal is retried on the next cycle.
type Gate struct {
	notifier Notifier

	// Optional callbacks (metrics).
	OnSent   func()
	OnFailed func()
}

// NewGate creates a change gate in front of n.
func NewGate(n Notifier) *Gate {
	return &Gate{notifier: n}
}

// Notify sends alert when text differs from st. It returns the new state and
// whether a send happened. Transport failures return the unchanged state and
// an error wrapping ErrTransport.
func (g *Gate) Notify(ctx context.Context, st State, text signal.Text, alert Alert) (State, bool, error) {
	if !st.Changed(text) {
		return st, false, nil
	}

	if err := g.notifier.Send(ctx, alert); err != nil {
		if g.OnFailed != nil {
			g.OnFailed()
		}
		if !errors.Is(err, ErrTransport) {
			err = fmt.Errorf("%w: %v", ErrTransport, err)
		}
		return st, false, err
	}

	if g.OnSent != nil {
		g.OnSent()
	}
	return State{last: text, emitted: true}, true, nil
}
