package outcome

import (
	"errors"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type domainErr struct{ retry bool }

func (d domainErr) Error() string     { return "domain" }
func (d domainErr) IsRetryable() bool { return d.retry }

func TestResult_ExactlyOneBranch(t *testing.T) {
	ok := Ok(42)
	require.True(t, ok.IsOk())
	v, err := ok.Unwrap()
	assert.Equal(t, 42, v)
	assert.NoError(t, err)

	failed := Fail[int](errors.New("boom"))
	require.False(t, failed.IsOk())
	v, err = failed.Unwrap()
	assert.Zero(t, v)
	assert.EqualError(t, err, "boom")
}

func TestFail_NilErrorPanics(t *testing.T) {
	assert.Panics(t, func() { Fail[string](nil) })
}

func TestIsRetryable(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want bool
	}{
		{"network", NetworkError(errors.New("dial tcp: refused")), true},
		{"parse", ParseError(errors.New("unexpected EOF")), true},
		{"wrapped boundary", fmt.Errorf("poll: %w", NetworkError(errors.New("reset"))), true},
		{"domain retryable", domainErr{retry: true}, true},
		{"domain terminal", domainErr{retry: false}, false},
		{"plain error", errors.New("plain"), false},
		{"nil", nil, false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, IsRetryable(tt.err))
		})
	}
}

func TestCapture(t *testing.T) {
	r := Capture(KindNetwork, func() (string, error) { return "body", nil })
	v, err := r.Unwrap()
	require.NoError(t, err)
	assert.Equal(t, "body", v)

	r = Capture(KindParse, func() (string, error) { return "", errors.New("bad json") })
	be, ok := AsBoundary(r.Err())
	require.True(t, ok)
	assert.Equal(t, KindParse, be.Kind)
	assert.Equal(t, "bad json", be.Message)

	// already-classified errors keep their kind
	inner := NetworkError(errors.New("timeout"))
	r = Capture(KindParse, func() (string, error) { return "", inner })
	be, ok = AsBoundary(r.Err())
	require.True(t, ok)
	assert.Same(t, inner, be)
}

func TestBoundaryError_Message(t *testing.T) {
	err := &BoundaryError{Kind: KindNetwork, Message: "bad gateway", Status: 502}
	assert.Equal(t, "network error (HTTP 502): bad gateway", err.Error())
	assert.Equal(t, "parse error: eof", ParseError(errors.New("eof")).Error())
}

func TestViolation(t *testing.T) {
	v := Violation("missing %s", "token")
	assert.Equal(t, "contract violation: missing token", v.Error())
}
