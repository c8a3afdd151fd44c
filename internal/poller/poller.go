// Package poller waits for a CLI auth session to be verified by the user.
package poller

import (
	"context"
	"encoding/json"
	"errors"
	"net/url"
	"strconv"
	"strings"
	"time"

	"cli-auth/internal/httpx"
	"cli-auth/internal/logger"
	"cli-auth/internal/outcome"
)

// StatusPath is the session status endpoint, relative to the API base URL.
const StatusPath = "/resources/cli-auth/status"

const (
	DefaultInterval = 3 * time.Second
	DefaultTimeout  = 10 * time.Minute

	// unstableAfter consecutive transient failures trigger the one-shot warning.
	unstableAfter = 3
)

var (
	// ErrSessionExpired means the server reports the session as expired.
	ErrSessionExpired = errors.New("poller: session expired")
	// ErrPollTimeout means the session was not verified before the poll timeout.
	ErrPollTimeout = errors.New("poller: timed out waiting for verification")
)

// Status is the classification of a single poll.
type Status string

const (
	StatusVerified      Status = "verified"
	StatusExpired       Status = "expired"
	StatusPending       Status = "pending"
	StatusBoundaryError Status = "boundary_error"
	StatusHTTPError     Status = "http_error"
)

// PollResult is the outcome of one status request. Token is set only for
// StatusVerified, HTTPStatus only for StatusHTTPError, Err only for StatusBoundaryError.
type PollResult struct {
	Status     Status
	Token      string
	HTTPStatus int
	Err        error
}

// Transient reports whether the poll failed in a way that is worth polling through.
func (r PollResult) Transient() bool {
	return r.Status == StatusBoundaryError || r.Status == StatusHTTPError
}

// Options carries the collaborators of PollForVerification. Zero fields get defaults.
type Options struct {
	Doer     httpx.Doer
	BaseURL  string
	Interval time.Duration
	Timeout  time.Duration
	Sleep    func(time.Duration)
	Now      func() time.Time
	Log      *logger.Logger
}

func (o Options) withDefaults() Options {
	if o.Doer == nil {
		o.Doer = httpx.DefaultClient
	}
	if o.Interval <= 0 {
		o.Interval = DefaultInterval
	}
	if o.Timeout <= 0 {
		o.Timeout = DefaultTimeout
	}
	if o.Sleep == nil {
		o.Sleep = time.Sleep
	}
	if o.Now == nil {
		o.Now = time.Now
	}
	if o.Log == nil {
		o.Log = logger.Discard()
	}
	return o
}

type statusResponse struct {
	Status  string `json:"status"`
	Token   string `json:"token"`
	Session string `json:"session"`
}

func (r statusResponse) payload() string {
	if r.Token != "" {
		return r.Token
	}
	return r.Session
}

// PollForVerification polls the session status strictly sequentially until it is
// verified (returning the token), expired (ErrSessionExpired) or the timeout elapses
// (ErrPollTimeout). Remediation is already printed when an error is returned.
func PollForVerification(ctx context.Context, sessionID string, opts Options) (string, error) {
	opts = opts.withDefaults()
	statusURL := strings.TrimRight(opts.BaseURL, "/") + StatusPath + "?session=" + url.QueryEscape(sessionID)
	log := opts.Log

	log.Info("[INFO] Waiting for you to verify your email")
	start := opts.Now()
	consecutive := 0
	warned := false

	for opts.Now().Sub(start) < opts.Timeout {
		res := pollOnce(ctx, opts.Doer, statusURL)

		if res.Transient() {
			consecutive++
			log.Debug("\n[DEBUG] Poll failed (%d in a row): %s\n", consecutive, describe(res))
			if consecutive >= unstableAfter && !warned {
				printUnstable(log, res)
				warned = true
			}
			opts.Sleep(opts.Interval)
			continue
		}

		consecutive = 0
		if warned {
			log.Info("\n[INFO] Connection restored.\n")
			warned = false
		}

		switch res.Status {
		case StatusVerified:
			log.Progress("\n")
			log.Info("[INFO] Email verified\n")
			return res.Token, nil
		case StatusExpired:
			printExpired(log)
			return "", ErrSessionExpired
		default:
			log.Progress(".")
			opts.Sleep(opts.Interval)
		}
	}

	printTimeout(log, opts.Timeout)
	return "", ErrPollTimeout
}

// pollOnce issues a single status request and classifies it.
func pollOnce(ctx context.Context, doer httpx.Doer, statusURL string) PollResult {
	resp, err := httpx.Get(ctx, doer, statusURL).Unwrap()
	if err != nil {
		return PollResult{Status: StatusBoundaryError, Err: err}
	}
	if !resp.OK() {
		return PollResult{Status: StatusHTTPError, HTTPStatus: resp.Status}
	}

	var body statusResponse
	if err := json.Unmarshal(resp.Body, &body); err != nil {
		return PollResult{Status: StatusBoundaryError, Err: outcome.ParseError(err)}
	}

	switch body.Status {
	case string(StatusVerified):
		token := body.payload()
		if token == "" {
			panic(outcome.Violation("session status is verified but carries no token"))
		}
		return PollResult{Status: StatusVerified, Token: token}
	case string(StatusExpired):
		return PollResult{Status: StatusExpired}
	default:
		return PollResult{Status: StatusPending}
	}
}

func describe(res PollResult) string {
	if res.Status == StatusHTTPError {
		return "HTTP " + strconv.Itoa(res.HTTPStatus)
	}
	return res.Err.Error()
}

func printUnstable(log *logger.Logger, last PollResult) {
	if last.Status == StatusHTTPError {
		log.Warn("\n[WARN] The server is having trouble answering (HTTP %d). Still waiting...\n", last.HTTPStatus)
		return
	}
	log.Warn("\n[WARN] Your network connection looks unstable. Still waiting...\n")
}

func printExpired(log *logger.Logger) {
	log.Error("\n[ERROR] Your login session has expired.\n")
	log.Error("  The verification link is only valid for a limited time.\n")
	log.Error("  Run the command again to get a new link, and check your spam folder if it does not arrive.\n")
}

func printTimeout(log *logger.Logger, timeout time.Duration) {
	log.Error("\n[ERROR] Timed out after %s waiting for email verification.\n", timeout)
	log.Error("  Check your inbox (and spam folder) for the verification email, then run the command again.\n")
	log.Error("  If the email never arrives, contact support.\n")
}
