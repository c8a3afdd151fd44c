// Package httpx performs single request/response cycles against the auth API and
// converts transport failures into boundary errors at one catch point.
package httpx

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/google/uuid"

	"cli-auth/internal/outcome"
)

// Doer is the injectable network call. *http.Client satisfies it.
type Doer interface {
	Do(req *http.Request) (*http.Response, error)
}

// DefaultClient is used when an options struct leaves its Doer unset.
// The per-request timeout bounds a single slow request; the poll loop has its own deadline.
var DefaultClient Doer = &http.Client{Timeout: 30 * time.Second}

// Response is a fully-read HTTP response.
type Response struct {
	Status int
	Header http.Header
	Body   []byte
}

// OK reports whether the status is in the 2xx range.
func (r *Response) OK() bool {
	return r.Status >= 200 && r.Status < 300
}

// Get issues a GET request and reads the whole body.
func Get(ctx context.Context, doer Doer, url string) outcome.Result[*Response] {
	return do(ctx, doer, http.MethodGet, url, nil)
}

// PostJSON marshals payload and POSTs it as application/json.
func PostJSON(ctx context.Context, doer Doer, url string, payload any) outcome.Result[*Response] {
	body, err := json.Marshal(payload)
	if err != nil {
		// our own request type failed to marshal: not a world failure
		panic(outcome.Violation("marshal request body: %v", err))
	}
	return do(ctx, doer, http.MethodPost, url, body)
}

func do(ctx context.Context, doer Doer, method, url string, body []byte) outcome.Result[*Response] {
	if doer == nil {
		doer = DefaultClient
	}
	return outcome.Capture(outcome.KindNetwork, func() (*Response, error) {
		var reader io.Reader
		if body != nil {
			reader = bytes.NewReader(body)
		}
		req, err := http.NewRequestWithContext(ctx, method, url, reader)
		if err != nil {
			return nil, fmt.Errorf("build request %s %s: %w", method, url, err)
		}
		if body != nil {
			req.Header.Set("Content-Type", "application/json")
		}
		req.Header.Set("Accept", "application/json")
		req.Header.Set("X-Request-ID", uuid.NewString())

		resp, err := doer.Do(req)
		if err != nil {
			return nil, err
		}
		defer resp.Body.Close()

		data, err := io.ReadAll(resp.Body)
		if err != nil {
			return nil, fmt.Errorf("read response body: %w", err)
		}
		return &Response{Status: resp.StatusCode, Header: resp.Header, Body: data}, nil
	})
}
