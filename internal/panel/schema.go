package panel

import (
	"strconv"
)

// Kind names a resource panel.
type Kind string

const (
	KindProducts Kind = "products"
	KindStaff    Kind = "staff"
)

// Status labels rendered for the soft-delete flag.
const (
	LabelDeleted = "Deleted"
	LabelActive  = "Active"
)

// Column describes one table column. The header uses Label, rows use Format.
type Column[T any] struct {
	Name   string
	Label  string
	Format func(T) string
}

// Schema binds a resource kind to its DOM ids and columns.
type Schema[T any] struct {
	Kind    Kind
	TableID string
	PanelID string
	Columns []Column[T]
}

// StatusLabel renders the soft-delete flag.
func StatusLabel(deleted bool) string {
	if deleted {
		return LabelDeleted
	}
	return LabelActive
}

// ProductSchema returns the products table layout. Prices go through money.
func ProductSchema(money MoneyFormatter) Schema[Product] {
	return Schema[Product]{
		Kind:    KindProducts,
		TableID: "product_table",
		PanelID: "product_elem",
		Columns: []Column[Product]{
			{Name: "name", Label: "Name", Format: func(p Product) string { return p.Name }},
			{Name: "price", Label: "Price", Format: func(p Product) string { return money.Format(float64(p.Price)) }},
			{Name: "deleted", Label: "Status", Format: func(p Product) string { return StatusLabel(bool(p.Deleted)) }},
		},
	}
}

// StaffSchema returns the staff table layout.
func StaffSchema() Schema[Staff] {
	return Schema[Staff]{
		Kind:    KindStaff,
		TableID: "staff_table",
		PanelID: "staff_elem",
		Columns: []Column[Staff]{
			{Name: "id", Label: "ID", Format: func(s Staff) string { return string(s.ID) }},
			{Name: "name", Label: "Name", Format: func(s Staff) string { return s.Name }},
			{Name: "email", Label: "Email", Format: func(s Staff) string { return s.Email }},
			{Name: "role_name", Label: "Role", Format: func(s Staff) string { return s.RoleName }},
			{Name: "is_deleted", Label: "Status", Format: func(s Staff) string { return StatusLabel(bool(s.IsDeleted)) }},
		},
	}
}

// sequenceLabel heads column 0.
const sequenceLabel = "#"

func sequence(i int) string {
	return strconv.Itoa(i + 1)
}
