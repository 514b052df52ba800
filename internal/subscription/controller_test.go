package subscription

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/url"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/tragel/adminconsole/internal/inflight"
	"github.com/tragel/adminconsole/internal/upstream"
)

type call struct {
	url   string
	query url.Values
}

type stubFetcher struct {
	mu      sync.Mutex
	calls   []call
	respond func(ctx context.Context, rawURL string, query url.Values) (string, error)
}

func (s *stubFetcher) GetJSON(ctx context.Context, rawURL string, query url.Values, dest any) error {
	s.mu.Lock()
	s.calls = append(s.calls, call{url: rawURL, query: query})
	s.mu.Unlock()
	body, err := s.respond(ctx, rawURL, query)
	if err != nil {
		return err
	}
	return json.Unmarshal([]byte(body), dest)
}

func (s *stubFetcher) callCount() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.calls)
}

type recordingObserver struct {
	mu     sync.Mutex
	states []State
}

func (o *recordingObserver) Publish(s State) {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.states = append(o.states, s)
}

func (o *recordingObserver) snapshot() []State {
	o.mu.Lock()
	defer o.mu.Unlock()
	return append([]State(nil), o.states...)
}

type memIssuances struct {
	mu   sync.Mutex
	recs []Issuance
	err  error
}

func (m *memIssuances) RecordIssuance(_ context.Context, rec Issuance) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.recs = append(m.recs, rec)
	return m.err
}

var endpoints = Endpoints{LastSubscription: "/admin/_get_subscriptions", Key: "/admin/_get_key"}

func fixedResponse(body string) func(context.Context, string, url.Values) (string, error) {
	return func(context.Context, string, url.Values) (string, error) { return body, nil }
}

func TestInitialState(t *testing.T) {
	c := NewController(Options{Fetcher: &stubFetcher{}, Endpoints: endpoints})
	state := c.State()
	assert.True(t, state.Key.Disabled)
	assert.Empty(t, state.Key.Value)
	assert.False(t, state.LastSub.Disabled)
	assert.True(t, state.LastSub.ReadOnly)
	assert.Equal(t, "last_sub", state.LastSub.ID)
	assert.Equal(t, "key_field", state.Key.ID)
}

func TestCompanyChangedDisablesBeforeValueArrives(t *testing.T) {
	observer := &recordingObserver{}
	var c *Controller
	fetcher := &stubFetcher{respond: func(context.Context, string, url.Values) (string, error) {
		assert.True(t, c.State().LastSub.Disabled, "field must be disabled while loading")
		return `{"last":"2024-03-31"}`, nil
	}}
	c = NewController(Options{Fetcher: fetcher, Endpoints: endpoints, Observer: observer})

	out, err := c.CompanyChanged(context.Background(), "4")
	require.NoError(t, err)
	assert.Equal(t, "2024-03-31", out.State.LastSub.Value)
	assert.False(t, out.State.LastSub.Disabled)
	assert.Empty(t, out.Alert)

	states := observer.snapshot()
	require.Len(t, states, 2)
	assert.True(t, states[0].LastSub.Disabled)
	assert.Empty(t, states[0].LastSub.Value)
	assert.False(t, states[1].LastSub.Disabled)

	require.Equal(t, 1, fetcher.callCount())
	assert.Equal(t, "/admin/_get_subscriptions", fetcher.calls[0].url)
	assert.Equal(t, "4", fetcher.calls[0].query.Get("company_id"))
}

func TestCompanyChangedFailureKeepsFieldDisabled(t *testing.T) {
	fetcher := &stubFetcher{respond: func(context.Context, string, url.Values) (string, error) {
		return "", &upstream.StatusError{Code: http.StatusInternalServerError, URL: "/admin/_get_subscriptions"}
	}}
	c := NewController(Options{Fetcher: fetcher, Endpoints: endpoints})

	out, err := c.CompanyChanged(context.Background(), "4")
	require.Error(t, err)
	assert.True(t, out.State.LastSub.Disabled)
	assert.Contains(t, out.Alert, "500")
}

func TestCreateKeySuccess(t *testing.T) {
	issuances := &memIssuances{}
	fetcher := &stubFetcher{respond: fixedResponse(`{"key":"ABC"}`)}
	c := NewController(Options{Fetcher: fetcher, Endpoints: endpoints, Issuances: issuances, SessionID: "s1"})

	out, err := c.CreateKey(context.Background(), KeyRequest{CompanyID: "2", Start: "01/01/2025", End: "12/31/2025"})
	require.NoError(t, err)
	assert.Equal(t, "ABC", out.State.Key.Value)
	assert.False(t, out.State.Key.Disabled)
	assert.Empty(t, out.Alert)

	q := fetcher.calls[0].query
	assert.Equal(t, "2", q.Get("company_id"))
	assert.Equal(t, "01/01/2025", q.Get("start"))
	assert.Equal(t, "12/31/2025", q.Get("end"))

	require.Len(t, issuances.recs, 1)
	assert.Equal(t, IssuanceIssued, issuances.recs[0].Outcome)
	assert.Equal(t, "s1", issuances.recs[0].SessionID)
}

func TestCreateKeyErrorResponse(t *testing.T) {
	issuances := &memIssuances{}
	fetcher := &stubFetcher{respond: fixedResponse(`{"error":"X"}`)}
	c := NewController(Options{Fetcher: fetcher, Endpoints: endpoints, Issuances: issuances})

	out, err := c.CreateKey(context.Background(), KeyRequest{CompanyID: "2"})
	require.NoError(t, err)
	assert.Equal(t, "X", out.Alert)
	assert.True(t, out.State.Key.Disabled)
	assert.Empty(t, out.State.Key.Value)

	require.Len(t, issuances.recs, 1)
	assert.Equal(t, IssuanceRejected, issuances.recs[0].Outcome)
	assert.Equal(t, "X", issuances.recs[0].Detail)
}

func TestCreateKeyClearsPreviousKey(t *testing.T) {
	responses := []string{`{"key":"FIRST"}`, `{"error":"expired"}`}
	observer := &recordingObserver{}
	fetcher := &stubFetcher{}
	fetcher.respond = func(context.Context, string, url.Values) (string, error) {
		return responses[fetcher.callCount()-1], nil
	}
	c := NewController(Options{Fetcher: fetcher, Endpoints: endpoints, Observer: observer})

	_, err := c.CreateKey(context.Background(), KeyRequest{CompanyID: "1"})
	require.NoError(t, err)
	out, err := c.CreateKey(context.Background(), KeyRequest{CompanyID: "1"})
	require.NoError(t, err)
	assert.Empty(t, out.State.Key.Value)
	assert.True(t, out.State.Key.Disabled)

	states := observer.snapshot()
	require.Len(t, states, 3)
	assert.Equal(t, "FIRST", states[1].Key.Value)
	assert.Empty(t, states[2].Key.Value)
	assert.True(t, states[2].Key.Disabled)
}

func TestCreateKeyMalformedResponse(t *testing.T) {
	for name, body := range map[string]string{
		"both":    `{"key":"K","error":"E"}`,
		"neither": `{}`,
	} {
		t.Run(name, func(t *testing.T) {
			issuances := &memIssuances{}
			c := NewController(Options{Fetcher: &stubFetcher{respond: fixedResponse(body)}, Endpoints: endpoints, Issuances: issuances})
			out, err := c.CreateKey(context.Background(), KeyRequest{CompanyID: "1"})
			assert.ErrorIs(t, err, ErrMalformedKeyResult)
			assert.True(t, out.State.Key.Disabled)
			assert.NotEmpty(t, out.Alert)
			require.Len(t, issuances.recs, 1)
			assert.Equal(t, IssuanceFailed, issuances.recs[0].Outcome)
		})
	}
}

func TestCreateKeyRecorderFailureIsNotSurfaced(t *testing.T) {
	issuances := &memIssuances{err: errors.New("db down")}
	c := NewController(Options{Fetcher: &stubFetcher{respond: fixedResponse(`{"key":"K"}`)}, Endpoints: endpoints, Issuances: issuances})
	out, err := c.CreateKey(context.Background(), KeyRequest{CompanyID: "1"})
	require.NoError(t, err)
	assert.Equal(t, "K", out.State.Key.Value)
}

func TestCreateKeySuperseded(t *testing.T) {
	release := make(chan struct{})
	fetcher := &stubFetcher{}
	fetcher.respond = func(ctx context.Context, _ string, q url.Values) (string, error) {
		if q.Get("company_id") == "slow" {
			select {
			case <-release:
			case <-ctx.Done():
				return "", ctx.Err()
			}
			return `{"key":"STALE"}`, nil
		}
		return `{"key":"FRESH"}`, nil
	}
	c := NewController(Options{Fetcher: fetcher, Endpoints: endpoints})

	done := make(chan error, 1)
	go func() {
		_, err := c.CreateKey(context.Background(), KeyRequest{CompanyID: "slow"})
		done <- err
	}()
	require.Eventually(t, func() bool { return fetcher.callCount() == 1 }, time.Second, 5*time.Millisecond)

	out, err := c.CreateKey(context.Background(), KeyRequest{CompanyID: "fast"})
	require.NoError(t, err)
	assert.Equal(t, "FRESH", out.State.Key.Value)
	close(release)

	select {
	case err := <-done:
		assert.ErrorIs(t, err, inflight.ErrSuperseded)
	case <-time.After(time.Second):
		t.Fatal("superseded request did not return")
	}
	assert.Equal(t, "FRESH", c.State().Key.Value)
}

// pendingCall blocks the first fetch for company "old" and remembers its context.
type pendingCall struct {
	mu      sync.Mutex
	ctx     context.Context
	started chan struct{}
}

func (p *pendingCall) respond(fresh string) func(context.Context, string, url.Values) (string, error) {
	return func(ctx context.Context, _ string, q url.Values) (string, error) {
		if q.Get("company_id") != "old" {
			return fresh, nil
		}
		p.mu.Lock()
		p.ctx = ctx
		p.mu.Unlock()
		close(p.started)
		<-ctx.Done()
		return "", ctx.Err()
	}
}

func (p *pendingCall) cancelled() bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.ctx != nil && p.ctx.Err() != nil
}

// cancelCheck records, at the first publish after arm, whether the older
// request had already been cancelled.
type cancelCheck struct {
	armed     atomic.Bool
	checked   atomic.Bool
	cancelled atomic.Bool
	pending   *pendingCall
}

func (c *cancelCheck) Publish(State) {
	if c.armed.Load() && !c.checked.Swap(true) {
		c.cancelled.Store(c.pending.cancelled())
	}
}

func TestCreateKeySupersedesBeforeClearing(t *testing.T) {
	pending := &pendingCall{started: make(chan struct{})}
	check := &cancelCheck{pending: pending}
	fetcher := &stubFetcher{respond: pending.respond(`{"key":"NEW"}`)}
	c := NewController(Options{Fetcher: fetcher, Endpoints: endpoints, Observer: check})

	done := make(chan error, 1)
	go func() {
		_, err := c.CreateKey(context.Background(), KeyRequest{CompanyID: "old"})
		done <- err
	}()
	<-pending.started
	check.armed.Store(true)

	out, err := c.CreateKey(context.Background(), KeyRequest{CompanyID: "new"})
	require.NoError(t, err)
	assert.Equal(t, "NEW", out.State.Key.Value)
	assert.True(t, check.checked.Load())
	assert.True(t, check.cancelled.Load(), "older request must be cancelled before the field is cleared")
	assert.ErrorIs(t, <-done, inflight.ErrSuperseded)
}

func TestCompanyChangedSupersedesBeforeDisabling(t *testing.T) {
	pending := &pendingCall{started: make(chan struct{})}
	check := &cancelCheck{pending: pending}
	fetcher := &stubFetcher{respond: pending.respond(`{"last":"2025-02-01"}`)}
	c := NewController(Options{Fetcher: fetcher, Endpoints: endpoints, Observer: check})

	done := make(chan error, 1)
	go func() {
		_, err := c.CompanyChanged(context.Background(), "old")
		done <- err
	}()
	<-pending.started
	check.armed.Store(true)

	out, err := c.CompanyChanged(context.Background(), "new")
	require.NoError(t, err)
	assert.Equal(t, "2025-02-01", out.State.LastSub.Value)
	assert.True(t, check.cancelled.Load())
	assert.ErrorIs(t, <-done, inflight.ErrSuperseded)
}
