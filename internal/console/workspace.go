package console

import (
	"sync"
	"time"

	"github.com/hashicorp/golang-lru/v2/expirable"

	"github.com/tragel/adminconsole/internal/panel"
	"github.com/tragel/adminconsole/internal/subscription"
)

// Workspace is the console state owned by one browser session.
type Workspace struct {
	Board        *panel.Board
	Subscription *subscription.Controller
}

// Factory builds a fresh workspace for a session id.
type Factory func(sessionID string) *Workspace

// SizeReporter receives the registry size after every change.
type SizeReporter interface {
	SetWorkspaces(n int)
}

// Workspaces keeps one workspace per session, dropping idle ones after ttl.
type Workspaces struct {
	mu       sync.Mutex
	cache    *expirable.LRU[string, *Workspace]
	factory  Factory
	reporter SizeReporter
}

// NewWorkspaces builds a registry holding at most size workspaces.
func NewWorkspaces(size int, ttl time.Duration, factory Factory, reporter SizeReporter) *Workspaces {
	if size <= 0 {
		size = 1024
	}
	return &Workspaces{
		cache:    expirable.NewLRU[string, *Workspace](size, nil, ttl),
		factory:  factory,
		reporter: reporter,
	}
}

// For returns the workspace of sessionID, creating it on first use, and
// restarts its idle timer.
func (w *Workspaces) For(sessionID string) *Workspace {
	w.mu.Lock()
	defer w.mu.Unlock()
	ws, ok := w.cache.Get(sessionID)
	if !ok {
		ws = w.factory(sessionID)
	}
	w.cache.Add(sessionID, ws)
	w.report()
	return ws
}

// Drop forgets the workspace of sessionID.
func (w *Workspaces) Drop(sessionID string) {
	w.mu.Lock()
	defer w.mu.Unlock()
	w.cache.Remove(sessionID)
	w.report()
}

// Len reports how many workspaces are held.
func (w *Workspaces) Len() int {
	return w.cache.Len()
}

func (w *Workspaces) report() {
	if w.reporter != nil {
		w.reporter.SetWorkspaces(w.cache.Len())
	}
}
