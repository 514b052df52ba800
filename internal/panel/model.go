package panel

import (
	"bytes"
	"encoding/json"
	"fmt"
	"math"
	"strconv"
	"strings"
)

// Product is one row of the products listing returned by the admin API.
type Product struct {
	Name    string `json:"name"`
	Price   Amount `json:"price"`
	Deleted Flag   `json:"deleted"`
}

// Staff is one row of the staff listing returned by the admin API.
type Staff struct {
	ID        ID     `json:"id"`
	Name      string `json:"name"`
	Email     string `json:"email"`
	RoleName  string `json:"role_name"`
	IsDeleted Flag   `json:"is_deleted"`
}

// ID is a company-scoped identifier that may arrive as a JSON number or string.
type ID string

// UnmarshalJSON accepts numbers, strings and null.
func (id *ID) UnmarshalJSON(data []byte) error {
	data = bytes.TrimSpace(data)
	switch {
	case bytes.Equal(data, []byte("null")):
		*id = ""
	case len(data) > 0 && data[0] == '"':
		var s string
		if err := json.Unmarshal(data, &s); err != nil {
			return err
		}
		*id = ID(s)
	default:
		var n json.Number
		if err := json.Unmarshal(data, &n); err != nil {
			return fmt.Errorf("panel: staff id: %w", err)
		}
		*id = ID(n.String())
	}
	return nil
}

// Flag is a soft-delete marker. Only a literal JSON true sets it; any other
// value, including "true", 1 and null, reads as false.
type Flag bool

// UnmarshalJSON never fails so one odd row cannot reject a whole listing.
func (f *Flag) UnmarshalJSON(data []byte) error {
	*f = Flag(bytes.Equal(bytes.TrimSpace(data), []byte("true")))
	return nil
}

// Amount is a price that may arrive as a JSON number or a numeric string.
// Anything else reads as zero.
type Amount float64

// UnmarshalJSON accepts numbers and numeric strings.
func (a *Amount) UnmarshalJSON(data []byte) error {
	data = bytes.TrimSpace(data)
	raw := string(data)
	if len(data) > 0 && data[0] == '"' {
		var s string
		if err := json.Unmarshal(data, &s); err != nil {
			*a = 0
			return nil
		}
		raw = strings.TrimSpace(s)
	}
	v, err := strconv.ParseFloat(raw, 64)
	if err != nil || math.IsNaN(v) || math.IsInf(v, 0) {
		*a = 0
		return nil
	}
	*a = Amount(v)
	return nil
}
