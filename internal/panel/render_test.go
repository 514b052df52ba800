package panel

import (
	"encoding/json"
	"strconv"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRenderSequenceNumbers(t *testing.T) {
	items := make([]Product, 25)
	for i := range items {
		items[i] = Product{Name: "p" + strconv.Itoa(i)}
	}
	table := Render(ProductSchema(PlainMoney{}), items)

	assert.Equal(t, len(items)+1, table.RowCount())
	for i, row := range table.Rows {
		assert.Equal(t, strconv.Itoa(i+1), row.Cells[0])
		assert.Equal(t, items[i].Name, row.Cells[1])
		assert.Len(t, row.Cells, len(table.Header))
	}
}

func TestRenderEmpty(t *testing.T) {
	table := Render(StaffSchema(), nil)
	assert.Equal(t, 1, table.RowCount())
	assert.Equal(t, "staff_table", table.ID)
	assert.Equal(t, []string{"#", "ID", "Name", "Email", "Role", "Status"}, table.Header)
}

func TestStatusLabel(t *testing.T) {
	assert.Equal(t, "Deleted", StatusLabel(true))
	assert.Equal(t, "Active", StatusLabel(false))
}

func TestStaffIDDecoding(t *testing.T) {
	var staff []Staff
	require.NoError(t, json.Unmarshal([]byte(`[{"id":7},{"id":"A-9"},{"id":null}]`), &staff))
	assert.Equal(t, ID("7"), staff[0].ID)
	assert.Equal(t, ID("A-9"), staff[1].ID)
	assert.Equal(t, ID(""), staff[2].ID)

	assert.Error(t, json.Unmarshal([]byte(`[{"id":{}}]`), &staff))
}

func TestCurrencyFormatter(t *testing.T) {
	money, err := NewCurrencyFormatter("USD", "en")
	require.NoError(t, err)
	assert.Contains(t, money.Format(12.5), "12.5")

	_, err = NewCurrencyFormatter("XXXX", "")
	assert.Error(t, err)
}

func TestStatusFlagDecoding(t *testing.T) {
	cases := []struct {
		name string
		raw  string
		want string
	}{
		{name: "literal true", raw: `{"name":"a","deleted":true}`, want: "Deleted"},
		{name: "literal false", raw: `{"name":"a","deleted":false}`, want: "Active"},
		{name: "string true", raw: `{"name":"a","deleted":"true"}`, want: "Active"},
		{name: "number one", raw: `{"name":"a","deleted":1}`, want: "Active"},
		{name: "string yes", raw: `{"name":"a","deleted":"yes"}`, want: "Active"},
		{name: "null", raw: `{"name":"a","deleted":null}`, want: "Active"},
		{name: "missing key", raw: `{"name":"a"}`, want: "Active"},
		{name: "object", raw: `{"name":"a","deleted":{"v":true}}`, want: "Active"},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			var items []Product
			require.NoError(t, json.Unmarshal([]byte("["+tc.raw+"]"), &items))
			table := Render(ProductSchema(PlainMoney{}), items)
			require.Len(t, table.Rows, 1)
			assert.Equal(t, tc.want, table.Rows[0].Cells[3])
		})
	}

	var staff []Staff
	require.NoError(t, json.Unmarshal([]byte(`[{"id":1,"is_deleted":true},{"id":2,"is_deleted":"true"},{"id":3}]`), &staff))
	table := Render(StaffSchema(), staff)
	assert.Equal(t, "Deleted", table.Rows[0].Cells[5])
	assert.Equal(t, "Active", table.Rows[1].Cells[5])
	assert.Equal(t, "Active", table.Rows[2].Cells[5])
}

func TestPriceDecoding(t *testing.T) {
	var items []Product
	require.NoError(t, json.Unmarshal([]byte(`[{"price":2.5},{"price":"3.25"},{"price":"n/a"},{"price":null},{}]`), &items))
	table := Render(ProductSchema(PlainMoney{}), items)
	got := make([]string, 0, len(table.Rows))
	for _, row := range table.Rows {
		got = append(got, row.Cells[2])
	}
	assert.Equal(t, []string{"2.50", "3.25", "0.00", "0.00", "0.00"}, got)
}
