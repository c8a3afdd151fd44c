// Package app sequences a full login: validate the email, start an auth session,
// wait for verification, store the credential, then download and hand off to the
// installer package. Every terminal failure stops the sequence before later steps run.
package app

import (
	"context"
	"errors"
	"fmt"
	"net/mail"
	"strings"
	"time"

	"cli-auth/internal/authflow"
	"cli-auth/internal/config"
	"cli-auth/internal/httpx"
	"cli-auth/internal/installer"
	"cli-auth/internal/logger"
	"cli-auth/internal/npmrc"
	"cli-auth/internal/outcome"
	"cli-auth/internal/poller"
	"cli-auth/internal/preflight"
	"cli-auth/internal/state"
)

// Process exit codes.
const (
	ExitOK      = 0 // Success, skip, or user cancellation
	ExitFailure = 1 // Any terminal or exhausted-retry failure
)

// Preflight checks the machine before any network call.
type Preflight interface {
	Check() error
}

// Runner holds the resolved configuration and the swappable collaborators.
// Zero-valued collaborators get production defaults.
type Runner struct {
	Config    config.Config
	Doer      httpx.Doer
	Sleep     func(time.Duration)
	Now       func() time.Time
	Preflight Preflight
	Handoff   installer.Handoff
	TempDir   string
	Log       *logger.Logger
}

func (r *Runner) defaults() {
	if r.Doer == nil {
		r.Doer = httpx.DefaultClient
	}
	if r.Sleep == nil {
		r.Sleep = time.Sleep
	}
	if r.Now == nil {
		r.Now = time.Now
	}
	if r.Preflight == nil {
		r.Preflight = preflight.Checker{}
	}
	if r.Handoff == nil {
		r.Handoff = installer.NodeHandoff{}
	}
	if r.Log == nil {
		r.Log = logger.Default()
	}
}

// Run performs the login for email and returns the process exit code.
// Contract violations panic and are deliberately not recovered here.
func (r *Runner) Run(ctx context.Context, email string) int {
	r.defaults()
	log := r.Log
	cfg := r.Config

	email = strings.TrimSpace(email)
	if err := ValidateEmail(email); err != nil {
		log.Error("[ERROR] %v\n", err)
		return ExitFailure
	}
	channel, err := installer.ParseChannel(cfg.Channel)
	if err != nil {
		log.Error("[ERROR] %v\n", err)
		return ExitFailure
	}

	if !cfg.SkipInstall {
		if err := r.Preflight.Check(); err != nil {
			printPreflight(log, err)
			return ExitFailure
		}
	}

	log.Info("[INFO] Starting login for %s\n", email)
	sessionID, err := authflow.StartAuthFlow(ctx, email, authflow.Options{
		Doer:       r.Doer,
		BaseURL:    cfg.APIURL,
		MaxRetries: cfg.MaxRetries,
		Sleep:      r.Sleep,
		Log:        log,
	})
	if err != nil {
		log.Debug("[DEBUG] auth start: %v\n", err)
		return ExitFailure
	}
	log.Info("[INFO] Check your inbox: we sent a verification link to %s\n", email)

	token, err := poller.PollForVerification(ctx, sessionID, poller.Options{
		Doer:     r.Doer,
		BaseURL:  cfg.APIURL,
		Interval: cfg.PollInterval,
		Timeout:  cfg.PollTimeout,
		Sleep:    r.Sleep,
		Now:      r.Now,
		Log:      log,
	})
	if err != nil {
		log.Debug("[DEBUG] verification: %v\n", err)
		return ExitFailure
	}

	store := &npmrc.Store{Path: cfg.NpmrcPath}
	if err := store.SetAuthToken(cfg.Registry, token); err != nil {
		log.Error("[ERROR] Could not save your credentials: %v\n", err)
		log.Error("  Check that %s is writable and run the command again.\n", cfg.NpmrcPath)
		return ExitFailure
	}
	log.Info("[INFO] Credentials saved to %s\n", cfg.NpmrcPath)

	if cfg.SkipInstall {
		log.Info("[INFO] Skipping installer download.\n")
		installer.Cleanup("")
		return ExitOK
	}

	return r.install(ctx, sessionID, channel)
}

// install downloads the package, hands off to it and records the result.
func (r *Runner) install(ctx context.Context, sessionID string, channel installer.Channel) int {
	log := r.Log

	log.Info("[INFO] Downloading the installer (%s)...\n", channel)
	res := installer.DownloadInstaller(ctx, sessionID, channel, installer.Options{
		Doer:    r.Doer,
		BaseURL: r.Config.APIURL,
		TempDir: r.TempDir,
		Log:     log,
	})
	if res.Kind != installer.ResultSuccess {
		printDownloadFailure(log, res, channel)
		return ExitFailure
	}
	defer installer.Cleanup(res.Path)

	log.Info("[INFO] Running installer %s\n", res.Version)
	if err := r.Handoff.Install(ctx, res.Path); err != nil {
		log.Error("[ERROR] The installer failed: %v\n", err)
		return ExitFailure
	}

	st := state.LoadState(r.Config.StatePath)
	st.Record(state.InstallRecord{Version: res.Version, Channel: string(channel), InstalledAt: r.Now().UTC()})
	if err := state.SaveState(r.Config.StatePath, st); err != nil {
		log.Warn("[WARN] Installed, but could not record it: %v\n", err)
	}
	log.Info("[INFO] Done.\n")
	return ExitOK
}

// ValidateEmail accepts a bare address such as user@example.com.
func ValidateEmail(email string) error {
	invalid := fmt.Errorf("%q is not a valid email address", email)
	addr, err := mail.ParseAddress(email)
	if err != nil || addr.Name != "" || addr.Address != email {
		return invalid
	}
	_, domain, _ := strings.Cut(addr.Address, "@")
	if !strings.Contains(domain, ".") || strings.HasPrefix(domain, ".") || strings.HasSuffix(domain, ".") {
		return invalid
	}
	return nil
}

func printPreflight(log *logger.Logger, err error) {
	var missing *preflight.MissingError
	if !errors.As(err, &missing) {
		log.Error("[ERROR] Pre-flight check failed: %v\n", err)
		return
	}
	log.Error("[ERROR] Some required tools are missing:\n")
	for _, line := range missing.Guidance() {
		log.Error("  - %s\n", line)
	}
	log.Error("  Install them and run the command again.\n")
}

func printDownloadFailure(log *logger.Logger, res installer.DownloadResult, channel installer.Channel) {
	switch res.Kind {
	case installer.ResultAuthError:
		log.Error("[ERROR] The installer download was refused: %s\n", res.Message)
		log.Error("  Run the command again to start a new session. If it keeps failing, contact support.\n")
	case installer.ResultNotFound:
		log.Error("[ERROR] No installer is available on the %s channel.\n", channel)
		log.Error("  Try the stable channel, or contact support.\n")
	case installer.ResultChecksumMismatch:
		log.Error("[ERROR] The downloaded installer failed its integrity check.\n")
		log.Error("  expected sha256 %s\n  received sha256 %s\n", res.Expected, res.Actual)
		log.Error("  Nothing was installed. Make sure no proxy is altering downloads, then contact support.\n")
	case installer.ResultBoundaryError:
		log.Error("[ERROR] Could not download the installer: %v\n", res.Err)
		log.Error("  Check your internet connection and run the command again.\n")
	default:
		panic(outcome.Violation("unhandled download result %q", res.Kind))
	}
}
