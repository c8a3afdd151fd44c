package authflow

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

// reply is one scripted answer of fakeDoer: either a transport error or a response.
type reply struct {
	err    error
	status int
	body   string
}

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

type recordingSleeper struct{ delays []time.Duration }

func (s *recordingSleeper) Sleep(d time.Duration) { s.delays = append(s.delays, d) }

func newOpts(doer *fakeDoer, sleeper *recordingSleeper, maxRetries int) (Options, *bytes.Buffer) {
	var out bytes.Buffer
	return Options{
		Doer:       doer,
		BaseURL:    "https://api.test",
		MaxRetries: maxRetries,
		Sleep:      sleeper.Sleep,
		Log:        logger.New(&out, &out, false),
	}, &out
}

func TestStartAuthFlow_Success(t *testing.T) {
	doer := &fakeDoer{replies: []reply{{status: 200, body: `{"sessionId":"S-1"}`}}}
	sleeper := &recordingSleeper{}
	opts, _ := newOpts(doer, sleeper, 3)

	id, err := StartAuthFlow(context.Background(), "user@example.com", opts)

	require.NoError(t, err)
	assert.Equal(t, "S-1", id)
	assert.Equal(t, 1, doer.calls)
	assert.Empty(t, sleeper.delays)
}

func TestStartAuthFlow_ForbiddenIsNotRetried(t *testing.T) {
	doer := &fakeDoer{replies: []reply{{status: 403, body: `{"error":"not entitled"}`}}}
	sleeper := &recordingSleeper{}
	opts, out := newOpts(doer, sleeper, 3)

	_, err := StartAuthFlow(context.Background(), "user@example.com", opts)

	require.ErrorIs(t, err, ErrForbidden)
	assert.Equal(t, 1, doer.calls)
	assert.Empty(t, sleeper.delays)
	assert.Contains(t, out.String(), "does not have access")
}

func TestStartAuthFlow_RetryableFailuresBackOff(t *testing.T) {
	tests := []struct {
		name       string
		reply      reply
		maxRetries int
		wantDelays []time.Duration
		wantText   string
	}{
		{
			name:       "transport",
			reply:      reply{err: errors.New("connection refused")},
			maxRetries: 3,
			wantDelays: []time.Duration{2 * time.Second, 4 * time.Second},
			wantText:   "Could not reach",
		},
		{
			name:       "server error",
			reply:      reply{status: 500, body: `{"message":"db down"}`},
			maxRetries: 4,
			wantDelays: []time.Duration{2 * time.Second, 4 * time.Second, 8 * time.Second},
			wantText:   "server returned an error",
		},
		{
			name:       "proxy page on non-2xx",
			reply:      reply{status: 502, body: "<html>Bad Gateway</html>"},
			maxRetries: 2,
			wantDelays: []time.Duration{2 * time.Second},
			wantText:   "Could not reach",
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			doer := &fakeDoer{replies: []reply{tt.reply}}
			sleeper := &recordingSleeper{}
			opts, out := newOpts(doer, sleeper, tt.maxRetries)

			_, err := StartAuthFlow(context.Background(), "user@example.com", opts)

			require.ErrorIs(t, err, ErrRetriesExhausted)
			assert.True(t, outcome.IsRetryable(err))
			assert.Equal(t, tt.maxRetries, doer.calls)
			assert.Equal(t, tt.wantDelays, sleeper.delays)
			assert.Contains(t, out.String(), tt.wantText)
		})
	}
}

func TestStartAuthFlow_RecoversAfterRetry(t *testing.T) {
	doer := &fakeDoer{replies: []reply{
		{status: 503, body: `{}`},
		{err: errors.New("reset by peer")},
		{status: 201, body: `{"sessionId":"S-3"}`},
	}}
	sleeper := &recordingSleeper{}
	opts, _ := newOpts(doer, sleeper, 3)

	id, err := StartAuthFlow(context.Background(), "user@example.com", opts)

	require.NoError(t, err)
	assert.Equal(t, "S-3", id)
	assert.Equal(t, 3, doer.calls)
	assert.Equal(t, []time.Duration{2 * time.Second, 4 * time.Second}, sleeper.delays)
}

func TestStartAuthFlow_ProtocolViolationsPanic(t *testing.T) {
	tests := []struct {
		name  string
		reply reply
	}{
		{"non-JSON success", reply{status: 200, body: "OK"}},
		{"missing sessionId", reply{status: 200, body: `{"id":"S"}`}},
		{"wrong sessionId type", reply{status: 200, body: `{"sessionId":42}`}},
		{"schema mismatch on error", reply{status: 500, body: `["not","an","object"]`}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			doer := &fakeDoer{replies: []reply{tt.reply}}
			sleeper := &recordingSleeper{}
			opts, _ := newOpts(doer, sleeper, 3)

			defer func() {
				r := recover()
				require.NotNil(t, r)
				_, ok := r.(*outcome.ContractViolation)
				assert.True(t, ok, "panic value should be a contract violation, got %T", r)
				assert.Equal(t, 1, doer.calls, "violations are never retried")
				assert.Empty(t, sleeper.delays)
			}()
			_, _ = StartAuthFlow(context.Background(), "user@example.com", opts)
			t.Fatal("expected panic")
		})
	}
}

func TestStartAuthFlow_SendsEmailToStartEndpoint(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, http.MethodPost, r.Method)
		assert.Equal(t, StartPath, r.URL.Path)
		b, _ := io.ReadAll(r.Body)
		assert.JSONEq(t, `{"email":"user@example.com"}`, string(b))
		_, _ = io.WriteString(w, `{"sessionId":"from-server"}`)
	}))
	defer srv.Close()

	id, err := StartAuthFlow(context.Background(), "user@example.com", Options{
		Doer:    srv.Client(),
		BaseURL: srv.URL + "/",
		Sleep:   func(time.Duration) { t.Fatal("unexpected sleep") },
	})

	require.NoError(t, err)
	assert.Equal(t, "from-server", id)
}
