package subscription

import "time"

// DOM ids of the subscription form.
const (
	FieldLastSub = "last_sub"
	FieldKey     = "key_field"
)

// Field is the render state of one input.
type Field struct {
	ID       string `json:"id"`
	Value    string `json:"value"`
	Disabled bool   `json:"disabled"`
	ReadOnly bool   `json:"read_only"`
}

// State is the render state of the whole subscription panel.
type State struct {
	LastSub Field `json:"last_sub"`
	Key     Field `json:"key_field"`
}

// InitialState is the panel as first rendered: the key field waits for a key.
func InitialState() State {
	return State{
		LastSub: Field{ID: FieldLastSub, ReadOnly: true},
		Key:     Field{ID: FieldKey, Disabled: true},
	}
}

// KeyRequest carries the form values sent when a key is requested. Values are
// passed through untouched; the admin API validates them.
type KeyRequest struct {
	CompanyID string
	Start     string
	End       string
}

// LastSubscription is the payload of the last-subscription endpoint.
type LastSubscription struct {
	Last string `json:"last"`
}

// KeyResult is either a key or an error message, never both.
type KeyResult struct {
	Key   string `json:"key" validate:"required_without=Error,excluded_with=Error"`
	Error string `json:"error" validate:"required_without=Key"`
}

// Outcome is what a transition leaves behind.
type Outcome struct {
	State State
	Alert string
}

// Issuance outcomes written to the activity log.
const (
	IssuanceIssued   = "issued"
	IssuanceRejected = "rejected"
	IssuanceFailed   = "failed"
)

// Issuance records one key request.
type Issuance struct {
	SessionID string
	CompanyID string
	Start     string
	End       string
	Outcome   string
	Detail    string
	At        time.Time
}
