// Package panel renders the admin resource tables (products, staff) and keeps
// track of which result panel is visible.
package panel

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"sync"

	"github.com/tragel/adminconsole/internal/inflight"
	"github.com/tragel/adminconsole/internal/upstream"
)

// ErrUnknownKind is returned for a resource kind the board does not host.
var ErrUnknownKind = errors.New("panel: unknown resource kind")

// refreshKey is shared by all kinds: opening one panel hides the others.
const refreshKey = "refresh"

type resource interface {
	kind() Kind
	panelID() string
	empty() Table
	load(ctx context.Context, f upstream.Fetcher, rawURL string) (Table, error)
}

type typedResource[T any] struct {
	schema Schema[T]
}

func (r typedResource[T]) kind() Kind      { return r.schema.Kind }
func (r typedResource[T]) panelID() string { return r.schema.PanelID }
func (r typedResource[T]) empty() Table    { return Render(r.schema, nil) }

func (r typedResource[T]) load(ctx context.Context, f upstream.Fetcher, rawURL string) (Table, error) {
	var items []T
	if err := f.GetJSON(ctx, rawURL, nil, &items); err != nil {
		return Table{}, err
	}
	return Render(r.schema, items), nil
}

// PanelView is the snapshot of one panel.
type PanelView struct {
	Kind    Kind
	PanelID string
	Visible bool
	Table   Table
}

// View is the snapshot of every panel on a board, in display order.
type View struct {
	Panels []PanelView
}

// Panel looks up a panel by kind.
func (v View) Panel(kind Kind) (PanelView, bool) {
	for _, p := range v.Panels {
		if p.Kind == kind {
			return p, true
		}
	}
	return PanelView{}, false
}

// AnyVisible reports whether at least one panel is shown.
func (v View) AnyVisible() bool {
	for _, p := range v.Panels {
		if p.Visible {
			return true
		}
	}
	return false
}

// Board owns the panels of one console workspace.
type Board struct {
	fetcher   upstream.Fetcher
	logger    *slog.Logger
	resources []resource
	tracker   inflight.Tracker

	mu      sync.Mutex
	visible map[Kind]bool
	tables  map[Kind]Table
}

// NewBoard builds a board hosting the products and staff panels.
func NewBoard(fetcher upstream.Fetcher, money MoneyFormatter, logger *slog.Logger) *Board {
	if money == nil {
		money = PlainMoney{}
	}
	if logger == nil {
		logger = slog.Default()
	}
	b := &Board{
		fetcher: fetcher,
		logger:  logger.With(slog.String("component", "panel")),
		resources: []resource{
			typedResource[Product]{schema: ProductSchema(money)},
			typedResource[Staff]{schema: StaffSchema()},
		},
		visible: make(map[Kind]bool),
		tables:  make(map[Kind]Table),
	}
	for _, res := range b.resources {
		b.tables[res.kind()] = res.empty()
	}
	return b
}

// ParseKind maps a path segment to a Kind.
func ParseKind(raw string) (Kind, error) {
	switch Kind(strings.ToLower(strings.TrimSpace(raw))) {
	case KindProducts:
		return KindProducts, nil
	case KindStaff:
		return KindStaff, nil
	}
	return "", fmt.Errorf("%w: %q", ErrUnknownKind, raw)
}

// Refresh hides every panel, then loads rawURL into the table of kind and
// reveals its panel. An empty URL only hides. A refresh started later
// supersedes this one; the superseded call returns inflight.ErrSuperseded and
// leaves the board untouched.
func (b *Board) Refresh(ctx context.Context, kind Kind, rawURL string) (View, error) {
	res, err := b.lookup(kind)
	if err != nil {
		return b.View(), err
	}

	reqCtx, ticket := b.tracker.Begin(ctx, refreshKey)
	defer ticket.Done()

	b.mu.Lock()
	for k := range b.visible {
		b.visible[k] = false
	}
	b.mu.Unlock()

	if strings.TrimSpace(rawURL) == "" {
		return b.View(), nil
	}

	table, loadErr := res.load(reqCtx, b.fetcher, rawURL)

	b.mu.Lock()
	defer b.mu.Unlock()
	if !ticket.Current() {
		return b.viewLocked(), inflight.ErrSuperseded
	}
	if loadErr != nil {
		b.logger.Warn("refresh panel", slog.String("kind", string(kind)), slog.Any("error", loadErr))
		return b.viewLocked(), fmt.Errorf("panel: refresh %s: %w", kind, loadErr)
	}
	b.tables[kind] = table
	b.visible[kind] = true
	return b.viewLocked(), nil
}

// Fetch loads rawURL into a table of kind without touching the board.
func (b *Board) Fetch(ctx context.Context, kind Kind, rawURL string) (Table, error) {
	res, err := b.lookup(kind)
	if err != nil {
		return Table{}, err
	}
	if strings.TrimSpace(rawURL) == "" {
		return Table{}, upstream.ErrEmptyURL
	}
	table, err := res.load(ctx, b.fetcher, rawURL)
	if err != nil {
		return Table{}, fmt.Errorf("panel: fetch %s: %w", kind, err)
	}
	return table, nil
}

// Table returns the current table of kind.
func (b *Board) Table(kind Kind) (Table, error) {
	if _, err := b.lookup(kind); err != nil {
		return Table{}, err
	}
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.tables[kind], nil
}

// View snapshots the board.
func (b *Board) View() View {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.viewLocked()
}

func (b *Board) viewLocked() View {
	panels := make([]PanelView, 0, len(b.resources))
	for _, res := range b.resources {
		panels = append(panels, PanelView{
			Kind:    res.kind(),
			PanelID: res.panelID(),
			Visible: b.visible[res.kind()],
			Table:   b.tables[res.kind()],
		})
	}
	return View{Panels: panels}
}

func (b *Board) lookup(kind Kind) (resource, error) {
	for _, res := range b.resources {
		if res.kind() == kind {
			return res, nil
		}
	}
	return nil, fmt.Errorf("%w: %q", ErrUnknownKind, kind)
}
