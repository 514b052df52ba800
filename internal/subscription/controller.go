// Package subscription drives the subscription panel: the last-subscription
// display and the generated-key field.
package subscription

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/url"
	"sync"
	"time"

	"github.com/go-playground/validator/v10"

	"github.com/tragel/adminconsole/internal/inflight"
	"github.com/tragel/adminconsole/internal/upstream"
)

// ErrMalformedKeyResult is returned when the key endpoint answers with both or
// neither of key and error.
var ErrMalformedKeyResult = errors.New("subscription: malformed key response")

const (
	companyKey = "company"
	keyKey     = "key"
)

// Observer receives every published state, in order.
type Observer interface {
	Publish(State)
}

// ObserverFunc adapts a function to Observer.
type ObserverFunc func(State)

// Publish implements Observer.
func (f ObserverFunc) Publish(s State) { f(s) }

// IssuanceRecorder persists key request outcomes.
type IssuanceRecorder interface {
	RecordIssuance(ctx context.Context, rec Issuance) error
}

// Endpoints locates the admin API calls used by the panel.
type Endpoints struct {
	LastSubscription string
	Key              string
}

// Options configures a Controller.
type Options struct {
	Fetcher   upstream.Fetcher
	Endpoints Endpoints
	Observer  Observer
	Issuances IssuanceRecorder
	SessionID string
	Logger    *slog.Logger
	Now       func() time.Time
}

// Controller owns the state of one subscription panel.
type Controller struct {
	fetcher   upstream.Fetcher
	endpoints Endpoints
	observer  Observer
	issuances IssuanceRecorder
	sessionID string
	logger    *slog.Logger
	now       func() time.Time
	validate  *validator.Validate
	tracker   inflight.Tracker

	mu    sync.Mutex
	state State
}

// NewController returns a controller in the initial state.
func NewController(opts Options) *Controller {
	logger := opts.Logger
	if logger == nil {
		logger = slog.Default()
	}
	now := opts.Now
	if now == nil {
		now = time.Now
	}
	return &Controller{
		fetcher:   opts.Fetcher,
		endpoints: opts.Endpoints,
		observer:  opts.Observer,
		issuances: opts.Issuances,
		sessionID: opts.SessionID,
		logger:    logger.With(slog.String("component", "subscription")),
		now:       now,
		validate:  validator.New(),
		state:     InitialState(),
	}
}

// State snapshots the panel.
func (c *Controller) State() State {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.state
}

// CompanyChanged disables the last-subscription field, loads the company's
// last subscription and shows it.
func (c *Controller) CompanyChanged(ctx context.Context, companyID string) (Outcome, error) {
	reqCtx, ticket := c.tracker.Begin(ctx, companyKey)
	defer ticket.Done()

	c.mutate(func(s *State) {
		s.LastSub.Disabled = true
	})

	var payload LastSubscription
	err := c.fetcher.GetJSON(reqCtx, c.endpoints.LastSubscription, url.Values{"company_id": {companyID}}, &payload)

	c.mu.Lock()
	defer c.mu.Unlock()
	if !ticket.Current() {
		return Outcome{State: c.state}, inflight.ErrSuperseded
	}
	if err != nil {
		c.logger.Warn("load last subscription", slog.String("company_id", companyID), slog.Any("error", err))
		return Outcome{State: c.state, Alert: failureMessage("load the last subscription", err)}, fmt.Errorf("subscription: last subscription: %w", err)
	}
	c.state.LastSub.Value = payload.Last
	c.state.LastSub.Disabled = false
	c.publishLocked()
	return Outcome{State: c.state}, nil
}

// CreateKey clears and disables the key field, then asks the admin API for a
// key. A key fills and enables the field; an error message becomes the alert
// and the field stays disabled.
func (c *Controller) CreateKey(ctx context.Context, req KeyRequest) (Outcome, error) {
	reqCtx, ticket := c.tracker.Begin(ctx, keyKey)
	defer ticket.Done()

	c.mutate(func(s *State) {
		s.Key.Value = ""
		s.Key.Disabled = true
	})

	query := url.Values{
		"company_id": {req.CompanyID},
		"start":      {req.Start},
		"end":        {req.End},
	}
	var result KeyResult
	err := c.fetcher.GetJSON(upstream.Exclusive(reqCtx), c.endpoints.Key, query, &result)
	if err == nil {
		if verr := c.validate.Struct(result); verr != nil {
			err = fmt.Errorf("%w: %v", ErrMalformedKeyResult, verr)
		}
	}

	c.mu.Lock()
	if !ticket.Current() {
		state := c.state
		c.mu.Unlock()
		return Outcome{State: state}, inflight.ErrSuperseded
	}

	rec := Issuance{
		SessionID: c.sessionID,
		CompanyID: req.CompanyID,
		Start:     req.Start,
		End:       req.End,
		At:        c.now(),
	}
	var out Outcome
	var retErr error
	switch {
	case err != nil:
		c.logger.Warn("create key", slog.String("company_id", req.CompanyID), slog.Any("error", err))
		rec.Outcome, rec.Detail = IssuanceFailed, err.Error()
		out = Outcome{State: c.state, Alert: failureMessage("create the key", err)}
		retErr = fmt.Errorf("subscription: create key: %w", err)
	case result.Error != "":
		rec.Outcome, rec.Detail = IssuanceRejected, result.Error
		out = Outcome{State: c.state, Alert: result.Error}
	default:
		c.state.Key.Value = result.Key
		c.state.Key.Disabled = false
		c.publishLocked()
		rec.Outcome = IssuanceIssued
		out = Outcome{State: c.state}
	}
	c.mu.Unlock()

	c.record(ctx, rec)
	return out, retErr
}

func (c *Controller) record(ctx context.Context, rec Issuance) {
	if c.issuances == nil {
		return
	}
	if err := c.issuances.RecordIssuance(ctx, rec); err != nil {
		c.logger.Error("record key issuance", slog.Any("error", err))
	}
}

func (c *Controller) mutate(fn func(*State)) {
	c.mu.Lock()
	defer c.mu.Unlock()
	fn(&c.state)
	c.publishLocked()
}

func (c *Controller) publishLocked() {
	if c.observer != nil {
		c.observer.Publish(c.state)
	}
}

func failureMessage(action string, err error) string {
	var statusErr *upstream.StatusError
	switch {
	case errors.As(err, &statusErr):
		return fmt.Sprintf("Unable to %s (server answered %d).", action, statusErr.Code)
	case errors.Is(err, ErrMalformedKeyResult):
		return fmt.Sprintf("Unable to %s (unexpected server response).", action)
	default:
		return fmt.Sprintf("Unable to %s.", action)
	}
}
