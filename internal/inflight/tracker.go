// Package inflight hands out request tokens so that only the latest request
// for a given key may publish its result.
package inflight

import (
	"context"
	"errors"
	"sync"
)

// ErrSuperseded is returned by callers whose request was replaced by a newer one.
var ErrSuperseded = errors.New("inflight: superseded by a newer request")

type entry struct {
	token  uint64
	cancel context.CancelFunc
}

// Tracker keeps the latest token per key. The zero value is ready to use.
type Tracker struct {
	mu      sync.Mutex
	seq     uint64
	current map[string]entry
}

// Ticket identifies one request started with Begin.
type Ticket struct {
	tracker *Tracker
	key     string
	token   uint64
}

// Begin starts a request for key, cancelling whichever request held it before.
// The returned context is cancelled when the request is superseded or finished.
func (t *Tracker) Begin(ctx context.Context, key string) (context.Context, Ticket) {
	reqCtx, cancel := context.WithCancel(ctx)

	t.mu.Lock()
	defer t.mu.Unlock()
	if t.current == nil {
		t.current = make(map[string]entry)
	}
	if prev, ok := t.current[key]; ok {
		prev.cancel()
	}
	t.seq++
	t.current[key] = entry{token: t.seq, cancel: cancel}
	return reqCtx, Ticket{tracker: t, key: key, token: t.seq}
}

// Current reports whether the ticket still holds its key.
func (tk Ticket) Current() bool {
	if tk.tracker == nil {
		return false
	}
	tk.tracker.mu.Lock()
	defer tk.tracker.mu.Unlock()
	e, ok := tk.tracker.current[tk.key]
	return ok && e.token == tk.token
}

// Done releases the ticket. It is safe to call more than once.
func (tk Ticket) Done() {
	if tk.tracker == nil {
		return
	}
	tk.tracker.mu.Lock()
	defer tk.tracker.mu.Unlock()
	e, ok := tk.tracker.current[tk.key]
	if !ok || e.token != tk.token {
		return
	}
	e.cancel()
	delete(tk.tracker.current, tk.key)
}

// pending reports how many keys have a request in flight.
func (t *Tracker) pending() int {
	t.mu.Lock()
	defer t.mu.Unlock()
	return len(t.current)
}
