// Package authflow starts an email-based CLI authentication session.
//
// A start request is classified into one of three buckets: success (a session id),
// a terminal refusal (the email is not entitled), or a retryable failure (transport
// trouble or a server error). Retryable failures are retried with exponential backoff.
// Responses that break the API contract panic with *outcome.ContractViolation.
package authflow

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/cenkalti/backoff/v4"

	"cli-auth/internal/httpx"
	"cli-auth/internal/logger"
	"cli-auth/internal/outcome"
)

// StartPath is the auth-start endpoint, relative to the API base URL.
const StartPath = "/resources/cli-auth/start"

// DefaultMaxRetries is the number of start attempts when Options.MaxRetries is unset.
const DefaultMaxRetries = 3

var (
	// ErrForbidden means the server refused the email: the user has no entitlement.
	ErrForbidden = errors.New("authflow: email is not entitled")
	// ErrRetriesExhausted means every attempt failed with a retryable error.
	ErrRetriesExhausted = errors.New("authflow: retries exhausted")
)

// Kind classifies a failed start attempt.
type Kind string

const (
	KindForbidden   Kind = "forbidden"
	KindServerError Kind = "server_error"
	KindTransport   Kind = "transport"
)

// FlowError is an expected failure of a single start attempt.
type FlowError struct {
	Kind    Kind
	Message string
	Status  int
	Err     error
}

func (e *FlowError) Error() string {
	if e.Status != 0 {
		return fmt.Sprintf("%s (HTTP %d): %s", e.Kind, e.Status, e.Message)
	}
	return fmt.Sprintf("%s: %s", e.Kind, e.Message)
}

func (e *FlowError) Unwrap() error { return e.Err }

// IsRetryable is true for transport and server errors; forbidden is final.
func (e *FlowError) IsRetryable() bool {
	return e.Kind == KindTransport || e.Kind == KindServerError
}

// Options carries the collaborators of StartAuthFlow. Zero fields get defaults.
type Options struct {
	Doer       httpx.Doer
	BaseURL    string
	MaxRetries int
	Sleep      func(time.Duration)
	Log        *logger.Logger
}

func (o Options) withDefaults() Options {
	if o.Doer == nil {
		o.Doer = httpx.DefaultClient
	}
	if o.MaxRetries <= 0 {
		o.MaxRetries = DefaultMaxRetries
	}
	if o.Sleep == nil {
		o.Sleep = time.Sleep
	}
	if o.Log == nil {
		o.Log = logger.Discard()
	}
	return o
}

// startResponse covers both the success body and error bodies.
type startResponse struct {
	SessionID string `json:"sessionId"`
	Message   string `json:"message"`
	Error     string `json:"error"`
}

func (r startResponse) reason() string {
	if r.Message != "" {
		return r.Message
	}
	return r.Error
}

// StartAuthFlow asks the server to start a session for email and returns its id.
// It returns ErrForbidden when the email is refused and ErrRetriesExhausted (wrapping
// the last *FlowError) when all attempts failed. User guidance is already printed
// when either is returned.
func StartAuthFlow(ctx context.Context, email string, opts Options) (string, error) {
	opts = opts.withDefaults()
	url := strings.TrimRight(opts.BaseURL, "/") + StartPath
	schedule := newSchedule()

	var last *FlowError
	for attempt := 1; attempt <= opts.MaxRetries; attempt++ {
		opts.Log.Debug("[DEBUG] Auth start attempt %d/%d: POST %s\n", attempt, opts.MaxRetries, url)

		sessionID, err := startOnce(ctx, opts.Doer, url, email).Unwrap()
		if err == nil {
			opts.Log.Debug("[DEBUG] Auth session started\n")
			return sessionID, nil
		}

		var fe *FlowError
		if !errors.As(err, &fe) {
			panic(outcome.Violation("unclassified auth start failure: %v", err))
		}
		if fe.Kind == KindForbidden {
			printForbidden(opts.Log, email)
			return "", ErrForbidden
		}

		last = fe
		if attempt == opts.MaxRetries {
			break
		}
		delay := schedule.NextBackOff()
		opts.Log.Warn("[WARN] Auth start failed (%v). Retrying in %s...\n", fe, delay)
		opts.Sleep(delay)
	}

	printExhausted(opts.Log, last, opts.MaxRetries)
	return "", fmt.Errorf("%w: %w", ErrRetriesExhausted, last)
}

// newSchedule yields 2s, 4s, 8s, ... with no jitter: 2^attempt seconds for 1-indexed attempts.
func newSchedule() *backoff.ExponentialBackOff {
	b := backoff.NewExponentialBackOff()
	b.InitialInterval = 2 * time.Second
	b.Multiplier = 2
	b.RandomizationFactor = 0
	b.MaxInterval = time.Hour
	b.MaxElapsedTime = 0
	b.Reset()
	return b
}

// startOnce performs one request and classifies it.
func startOnce(ctx context.Context, doer httpx.Doer, url, email string) outcome.Result[string] {
	resp, err := httpx.PostJSON(ctx, doer, url, map[string]string{"email": email}).Unwrap()
	if err != nil {
		return outcome.Fail[string](&FlowError{Kind: KindTransport, Message: err.Error(), Err: err})
	}

	if !json.Valid(resp.Body) {
		if resp.OK() {
			panic(outcome.Violation("auth start returned HTTP %d with a non-JSON body", resp.Status))
		}
		// a proxy or load balancer answered instead of the service
		return outcome.Fail[string](&FlowError{
			Kind:    KindTransport,
			Message: "unexpected non-JSON response",
			Status:  resp.Status,
		})
	}

	var body startResponse
	if err := json.Unmarshal(resp.Body, &body); err != nil {
		panic(outcome.Violation("auth start response (HTTP %d) does not match schema: %v", resp.Status, err))
	}

	if !resp.OK() {
		if resp.Status == http.StatusForbidden {
			return outcome.Fail[string](&FlowError{Kind: KindForbidden, Message: body.reason(), Status: resp.Status})
		}
		msg := body.reason()
		if msg == "" {
			msg = http.StatusText(resp.Status)
		}
		return outcome.Fail[string](&FlowError{Kind: KindServerError, Message: msg, Status: resp.Status})
	}

	if body.SessionID == "" {
		panic(outcome.Violation("auth start succeeded (HTTP %d) without a sessionId", resp.Status))
	}
	return outcome.Ok(body.SessionID)
}

func printForbidden(log *logger.Logger, email string) {
	log.Error("\n[ERROR] %s does not have access.\n", email)
	log.Error("  Make sure you are using the email address your invitation was sent to.\n")
	log.Error("  If you believe this is a mistake, contact support.\n")
}

func printExhausted(log *logger.Logger, last *FlowError, attempts int) {
	if last != nil && last.Kind == KindTransport {
		log.Error("\n[ERROR] Could not reach the authentication server after %d attempts.\n", attempts)
		log.Error("  Check your internet connection, proxy or VPN settings, then try again.\n")
	} else {
		log.Error("\n[ERROR] The authentication server returned an error after %d attempts.\n", attempts)
		log.Error("  The service may be temporarily unavailable. Try again in a few minutes.\n")
	}
	if last != nil {
		log.Error("  Last error: %v\n", last)
	}
}
