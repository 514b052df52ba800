package panel

// Row is one rendered body row.
type Row struct {
	Cells []string
}

// Table is the render tree of one panel table.
type Table struct {
	ID     string
	Header []string
	Rows   []Row
}

// RowCount counts the header row plus body rows.
func (t Table) RowCount() int {
	if len(t.Header) == 0 {
		return len(t.Rows)
	}
	return len(t.Rows) + 1
}

// Render builds a fresh table from items. Column 0 carries the 1-based sequence.
func Render[T any](schema Schema[T], items []T) Table {
	header := make([]string, 0, len(schema.Columns)+1)
	header = append(header, sequenceLabel)
	for _, col := range schema.Columns {
		header = append(header, col.Label)
	}

	rows := make([]Row, 0, len(items))
	for i, item := range items {
		cells := make([]string, 0, len(schema.Columns)+1)
		cells = append(cells, sequence(i))
		for _, col := range schema.Columns {
			cells = append(cells, col.Format(item))
		}
		rows = append(rows, Row{Cells: cells})
	}
	return Table{ID: schema.TableID, Header: header, Rows: rows}
}
