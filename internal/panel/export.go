package panel

import (
	"bufio"
	"encoding/csv"
	"fmt"
	"io"
	"strings"
	"text/tabwriter"
)

// WriteCSV streams the table (header first) as CSV.
func WriteCSV(w io.Writer, t Table) error {
	buf := bufio.NewWriter(w)
	writer := csv.NewWriter(buf)
	writer.UseCRLF = true
	if len(t.Header) > 0 {
		if err := writer.Write(t.Header); err != nil {
			return fmt.Errorf("panel: write csv header: %w", err)
		}
	}
	for _, row := range t.Rows {
		if err := writer.Write(row.Cells); err != nil {
			return fmt.Errorf("panel: write csv row: %w", err)
		}
	}
	writer.Flush()
	if err := writer.Error(); err != nil {
		return err
	}
	return buf.Flush()
}

// WriteText prints the table as aligned columns for terminals.
func WriteText(w io.Writer, t Table) error {
	tw := tabwriter.NewWriter(w, 0, 4, 2, ' ', 0)
	if len(t.Header) > 0 {
		if _, err := fmt.Fprintln(tw, strings.Join(t.Header, "\t")); err != nil {
			return err
		}
	}
	for _, row := range t.Rows {
		if _, err := fmt.Fprintln(tw, strings.Join(row.Cells, "\t")); err != nil {
			return err
		}
	}
	return tw.Flush()
}
