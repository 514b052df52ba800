package cli

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/tragel/adminconsole/internal/panel"
)

// Exit codes of the table command.
const (
	ExitOK       = 0
	ExitUsage    = 1
	ExitUpstream = 2
)

// TableOptions defines available flags for the table command.
type TableOptions struct {
	Kind   string
	URL    string
	Format string
	Stdout io.Writer
	Stderr io.Writer
}

// TableCLI renders admin resource listings in a terminal.
type TableCLI struct {
	board *panel.Board
}

// NewTableCLI constructs the helper around a board.
func NewTableCLI(board *panel.Board) (*TableCLI, error) {
	if board == nil {
		return nil, errors.New("table cli: board not configured")
	}
	return &TableCLI{board: board}, nil
}

// TableCommand fetches one listing and prints it as text, csv or json.
func (c *TableCLI) TableCommand(ctx context.Context, opts TableOptions) int {
	if opts.Stdout == nil {
		opts.Stdout = os.Stdout
	}
	if opts.Stderr == nil {
		opts.Stderr = os.Stderr
	}
	kind, err := panel.ParseKind(opts.Kind)
	if err != nil {
		_, _ = fmt.Fprintf(opts.Stderr, "table: unknown kind %q (expected products or staff)\n", opts.Kind)
		return ExitUsage
	}
	if strings.TrimSpace(opts.URL) == "" {
		_, _ = fmt.Fprintln(opts.Stderr, "table: a listing url is required")
		return ExitUsage
	}
	format := strings.ToLower(strings.TrimSpace(opts.Format))
	if format == "" {
		format = "text"
	}
	if format != "text" && format != "csv" && format != "json" {
		_, _ = fmt.Fprintf(opts.Stderr, "table: invalid format %q\n", opts.Format)
		return ExitUsage
	}

	if _, err := c.board.Refresh(ctx, kind, opts.URL); err != nil {
		_, _ = fmt.Fprintf(opts.Stderr, "table: %v\n", err)
		return ExitUpstream
	}
	table, err := c.board.Table(kind)
	if err != nil {
		_, _ = fmt.Fprintf(opts.Stderr, "table: %v\n", err)
		return ExitUsage
	}

	switch format {
	case "csv":
		err = panel.WriteCSV(opts.Stdout, table)
	case "json":
		err = writeJSON(opts.Stdout, table)
	default:
		err = panel.WriteText(opts.Stdout, table)
	}
	if err != nil {
		_, _ = fmt.Fprintf(opts.Stderr, "table: write: %v\n", err)
		return ExitUsage
	}
	return ExitOK
}

type tableDocument struct {
	ID     string              `json:"id"`
	Rows   []map[string]string `json:"rows"`
	Header []string            `json:"header"`
}

func writeJSON(w io.Writer, t panel.Table) error {
	doc := tableDocument{ID: t.ID, Header: t.Header, Rows: make([]map[string]string, 0, len(t.Rows))}
	for _, row := range t.Rows {
		entry := make(map[string]string, len(row.Cells))
		for i, cell := range row.Cells {
			if i < len(t.Header) {
				entry[t.Header[i]] = cell
			}
		}
		doc.Rows = append(doc.Rows, entry)
	}
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(doc)
}
