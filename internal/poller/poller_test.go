package poller

import (
	"bytes"
	"context"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"cli-auth/internal/logger"
	"cli-auth/internal/outcome"
)

type reply struct {
	err    error
	status int
	body   string
}

// fakeDoer replays scripted replies; the last one repeats forever.
type fakeDoer struct {
	replies []reply
	calls   int
}

func (f *fakeDoer) Do(req *http.Request) (*http.Response, error) {
	r := f.replies[len(f.replies)-1]
	if f.calls < len(f.replies) {
		r = f.replies[f.calls]
	}
	f.calls++
	if r.err != nil {
		return nil, r.err
	}
	return &http.Response{
		StatusCode: r.status,
		Header:     http.Header{},
		Body:       io.NopCloser(strings.NewReader(r.body)),
		Request:    req,
	}, nil
}

// fakeClock only moves when the poller sleeps.
type fakeClock struct {
	now    time.Time
	sleeps int
}

func (c *fakeClock) Now() time.Time { return c.now }

func (c *fakeClock) Sleep(d time.Duration) {
	c.sleeps++
	c.now = c.now.Add(d)
}

func newOpts(doer *fakeDoer, clock *fakeClock) (Options, *bytes.Buffer, *bytes.Buffer) {
	var out, errOut bytes.Buffer
	return Options{
		Doer:     doer,
		BaseURL:  "https://api.test",
		Interval: 3 * time.Second,
		Timeout:  time.Minute,
		Sleep:    clock.Sleep,
		Now:      clock.Now,
		Log:      logger.New(&out, &errOut, false),
	}, &out, &errOut
}

var (
	pending  = reply{status: 200, body: `{"status":"pending"}`}
	expired  = reply{status: 200, body: `{"status":"expired"}`}
	verified = reply{status: 200, body: `{"status":"verified","token":"T"}`}
	netFail  = reply{err: errors.New("connection reset")}
	badGate  = reply{status: 502, body: "bad gateway"}
)

func TestPoll_PendingThenVerified(t *testing.T) {
	doer := &fakeDoer{replies: []reply{pending, pending, verified}}
	clock := &fakeClock{now: time.Unix(0, 0)}
	opts, out, _ := newOpts(doer, clock)

	token, err := PollForVerification(context.Background(), "S", opts)

	require.NoError(t, err)
	assert.Equal(t, "T", token)
	assert.Equal(t, 3, doer.calls)
	assert.Equal(t, 2, clock.sleeps)
	assert.Equal(t, 2, strings.Count(out.String(), "."), "one progress mark per pending poll")
}

func TestPoll_SessionAlias(t *testing.T) {
	doer := &fakeDoer{replies: []reply{{status: 200, body: `{"status":"verified","session":"sess-token"}`}}}
	clock := &fakeClock{now: time.Unix(0, 0)}
	opts, _, _ := newOpts(doer, clock)

	token, err := PollForVerification(context.Background(), "S", opts)

	require.NoError(t, err)
	assert.Equal(t, "sess-token", token)
	assert.Zero(t, clock.sleeps)
}

func TestPoll_VerifiedWithoutTokenPanics(t *testing.T) {
	doer := &fakeDoer{replies: []reply{{status: 200, body: `{"status":"verified"}`}}}
	clock := &fakeClock{now: time.Unix(0, 0)}
	opts, _, _ := newOpts(doer, clock)

	defer func() {
		r := recover()
		require.NotNil(t, r)
		assert.IsType(t, &outcome.ContractViolation{}, r)
		assert.Equal(t, 1, doer.calls)
	}()
	_, _ = PollForVerification(context.Background(), "S", opts)
	t.Fatal("expected panic")
}

func TestPoll_Expired(t *testing.T) {
	doer := &fakeDoer{replies: []reply{pending, expired}}
	clock := &fakeClock{now: time.Unix(0, 0)}
	opts, _, errOut := newOpts(doer, clock)

	_, err := PollForVerification(context.Background(), "S", opts)

	require.ErrorIs(t, err, ErrSessionExpired)
	assert.Equal(t, 2, doer.calls)
	assert.Contains(t, errOut.String(), "session has expired")
}

func TestPoll_Timeout(t *testing.T) {
	doer := &fakeDoer{replies: []reply{pending}}
	clock := &fakeClock{now: time.Unix(0, 0)}
	opts, _, errOut := newOpts(doer, clock)
	opts.Timeout = 10 * time.Second

	_, err := PollForVerification(context.Background(), "S", opts)

	require.ErrorIs(t, err, ErrPollTimeout)
	// polls at t=0,3,6,9; at t=12 the loop stops
	assert.Equal(t, 4, doer.calls)
	assert.Contains(t, errOut.String(), "Timed out")
}

func TestPoll_UnstableWarningIsOneShot(t *testing.T) {
	tests := []struct {
		name     string
		failure  reply
		wantWarn string
	}{
		{"network", netFail, "network connection looks unstable"},
		{"server", badGate, "server is having trouble"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			doer := &fakeDoer{replies: []reply{tt.failure, tt.failure, tt.failure, tt.failure, pending, verified}}
			clock := &fakeClock{now: time.Unix(0, 0)}
			opts, out, errOut := newOpts(doer, clock)

			token, err := PollForVerification(context.Background(), "S", opts)

			require.NoError(t, err)
			assert.Equal(t, "T", token)
			assert.Equal(t, 1, strings.Count(errOut.String(), tt.wantWarn))
			assert.Equal(t, 1, strings.Count(out.String(), "Connection restored"))
			assert.Equal(t, 6, doer.calls)
		})
	}
}

func TestPoll_NoWarningBelowThreshold(t *testing.T) {
	doer := &fakeDoer{replies: []reply{netFail, netFail, pending, netFail, netFail, verified}}
	clock := &fakeClock{now: time.Unix(0, 0)}
	opts, out, errOut := newOpts(doer, clock)

	_, err := PollForVerification(context.Background(), "S", opts)

	require.NoError(t, err)
	assert.NotContains(t, errOut.String(), "unstable")
	assert.NotContains(t, out.String(), "Connection restored")
}

func TestPoll_WarningCanRepeatAfterRecovery(t *testing.T) {
	doer := &fakeDoer{replies: []reply{
		netFail, netFail, netFail, pending,
		netFail, netFail, netFail, verified,
	}}
	clock := &fakeClock{now: time.Unix(0, 0)}
	opts, out, errOut := newOpts(doer, clock)

	_, err := PollForVerification(context.Background(), "S", opts)

	require.NoError(t, err)
	assert.Equal(t, 2, strings.Count(errOut.String(), "unstable"))
	assert.Equal(t, 2, strings.Count(out.String(), "Connection restored"))
}

func TestPollOnce_Classification(t *testing.T) {
	tests := []struct {
		name string
		r    reply
		want PollResult
	}{
		{"pending", pending, PollResult{Status: StatusPending}},
		{"unknown status is pending", reply{status: 200, body: `{"status":"waiting"}`}, PollResult{Status: StatusPending}},
		{"expired", expired, PollResult{Status: StatusExpired}},
		{"verified", verified, PollResult{Status: StatusVerified, Token: "T"}},
		{"http error", reply{status: 500, body: `{}`}, PollResult{Status: StatusHTTPError, HTTPStatus: 500}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := pollOnce(context.Background(), &fakeDoer{replies: []reply{tt.r}}, "https://api.test/x")
			assert.Equal(t, tt.want, got)
		})
	}

	got := pollOnce(context.Background(), &fakeDoer{replies: []reply{{status: 200, body: "<html>"}}}, "https://api.test/x")
	assert.Equal(t, StatusBoundaryError, got.Status)
	be, ok := outcome.AsBoundary(got.Err)
	require.True(t, ok)
	assert.Equal(t, outcome.KindParse, be.Kind)

	got = pollOnce(context.Background(), &fakeDoer{replies: []reply{netFail}}, "https://api.test/x")
	assert.Equal(t, StatusBoundaryError, got.Status)
	be, ok = outcome.AsBoundary(got.Err)
	require.True(t, ok)
	assert.Equal(t, outcome.KindNetwork, be.Kind)
}

func TestPoll_QueriesSessionStatus(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, StatusPath, r.URL.Path)
		assert.Equal(t, "abc/123", r.URL.Query().Get("session"))
		_, _ = io.WriteString(w, `{"status":"verified","token":"tok"}`)
	}))
	defer srv.Close()

	token, err := PollForVerification(context.Background(), "abc/123", Options{Doer: srv.Client(), BaseURL: srv.URL})

	require.NoError(t, err)
	assert.Equal(t, "tok", token)
}
