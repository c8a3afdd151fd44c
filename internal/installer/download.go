package installer

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"os"
	"path/filepath"
	"strings"

	"github.com/google/uuid"

	"cli-auth/internal/httpx"
	"cli-auth/internal/logger"
	"cli-auth/internal/outcome"
)

// DownloadPath is the installer endpoint, relative to the API base URL.
const DownloadPath = "/resources/installer/download"

const (
	// ChecksumHeader carries the hex-encoded SHA-256 of the response body.
	ChecksumHeader = "X-Checksum-SHA256"
	// VersionHeader carries the version label of the served package.
	VersionHeader = "X-Package-Version"

	// ScratchPrefix names every scratch directory created by a download.
	// Cleanup refuses to remove anything that does not carry it.
	ScratchPrefix = "cli-auth-installer-"

	archiveName    = "installer.archive"
	unknownVersion = "unknown"
)

// Channel is a named release track.
type Channel string

const (
	ChannelStable    Channel = "stable"
	ChannelPreflight Channel = "preflight"
)

// ParseChannel validates a channel name.
func ParseChannel(s string) (Channel, error) {
	switch c := Channel(strings.ToLower(strings.TrimSpace(s))); c {
	case ChannelStable, ChannelPreflight:
		return c, nil
	default:
		return "", fmt.Errorf("unknown channel %q (want %q or %q)", s, ChannelStable, ChannelPreflight)
	}
}

// ResultKind tags a DownloadResult.
type ResultKind string

const (
	ResultSuccess          ResultKind = "success"
	ResultAuthError        ResultKind = "auth_error"
	ResultNotFound         ResultKind = "not_found"
	ResultChecksumMismatch ResultKind = "checksum_mismatch"
	ResultBoundaryError    ResultKind = "boundary_error"
)

// DownloadResult is the typed outcome of DownloadInstaller. Which fields are set
// depends on Kind:
//
//	success            Path, Version
//	auth_error         Message, Status
//	not_found          Message
//	checksum_mismatch  Expected, Actual
//	boundary_error     Err
type DownloadResult struct {
	Kind     ResultKind
	Path     string
	Version  string
	Message  string
	Status   int
	Expected string
	Actual   string
	Err      *outcome.BoundaryError
}

// Options carries the collaborators of DownloadInstaller. Zero fields get defaults.
type Options struct {
	Doer    httpx.Doer
	BaseURL string
	// TempDir is where scratch directories are created; os.TempDir() when empty.
	TempDir string
	Log     *logger.Logger
}

func (o Options) withDefaults() Options {
	if o.Doer == nil {
		o.Doer = httpx.DefaultClient
	}
	if o.TempDir == "" {
		o.TempDir = os.TempDir()
	}
	if o.Log == nil {
		o.Log = logger.Discard()
	}
	return o
}

type errorBody struct {
	Message string `json:"message"`
	Error   string `json:"error"`
}

// DownloadInstaller fetches the installer for channel, verifies its checksum and
// extracts it into a fresh scratch directory. On success, Path points at the
// package directory inside it; release it with Cleanup.
func DownloadInstaller(ctx context.Context, sessionID string, channel Channel, opts Options) DownloadResult {
	opts = opts.withDefaults()
	log := opts.Log

	q := url.Values{}
	q.Set("session", sessionID)
	q.Set("channel", string(channel))
	downloadURL := strings.TrimRight(opts.BaseURL, "/") + DownloadPath + "?" + q.Encode()
	log.Debug("[DEBUG] Downloading installer (%s channel)\n", channel)

	resp, err := httpx.Get(ctx, opts.Doer, downloadURL).Unwrap()
	if err != nil {
		be, _ := outcome.AsBoundary(err)
		return DownloadResult{Kind: ResultBoundaryError, Err: be}
	}

	if !resp.OK() {
		return classifyFailure(resp)
	}

	expected := strings.TrimSpace(resp.Header.Get(ChecksumHeader))
	if expected == "" {
		return DownloadResult{Kind: ResultBoundaryError, Err: &outcome.BoundaryError{
			Kind:    outcome.KindParse,
			Message: "response is missing the " + ChecksumHeader + " header",
			Status:  resp.Status,
		}}
	}
	version := strings.TrimSpace(resp.Header.Get(VersionHeader))
	if version == "" {
		log.Debug("[DEBUG] %s header missing, recording version as %q\n", VersionHeader, unknownVersion)
		version = unknownVersion
	}

	sum := sha256.Sum256(resp.Body)
	actual := hex.EncodeToString(sum[:])
	if !strings.EqualFold(actual, expected) {
		return DownloadResult{Kind: ResultChecksumMismatch, Expected: expected, Actual: actual}
	}
	log.Debug("[DEBUG] Checksum verified: %s\n", actual)

	path, err := unpack(resp.Body, opts.TempDir)
	if err != nil {
		return DownloadResult{Kind: ResultBoundaryError, Err: outcome.ParseError(err)}
	}
	return DownloadResult{Kind: ResultSuccess, Path: path, Version: version}
}

// classifyFailure maps a non-2xx download response.
func classifyFailure(resp *httpx.Response) DownloadResult {
	switch resp.Status {
	case http.StatusForbidden, http.StatusBadRequest:
		var body errorBody
		msg := ""
		if json.Unmarshal(resp.Body, &body) == nil {
			msg = body.Message
			if msg == "" {
				msg = body.Error
			}
		}
		if msg == "" {
			msg = authMessage(resp.Status)
		}
		return DownloadResult{Kind: ResultAuthError, Message: msg, Status: resp.Status}
	case http.StatusNotFound:
		return DownloadResult{Kind: ResultNotFound, Message: "no installer package is published for this channel"}
	default:
		return DownloadResult{Kind: ResultBoundaryError, Err: &outcome.BoundaryError{
			Kind:    outcome.KindNetwork,
			Message: "unexpected response " + http.StatusText(resp.Status),
			Status:  resp.Status,
		}}
	}
}

func authMessage(status int) string {
	if status == http.StatusForbidden {
		return "download refused (HTTP 403): your session is not allowed to download the installer"
	}
	return fmt.Sprintf("download rejected (HTTP %d): the request was not accepted", status)
}

// unpack persists the verified archive into a new scratch directory and extracts it.
// A failed extraction removes the scratch directory before returning.
func unpack(archive []byte, tempDir string) (string, error) {
	scratch := filepath.Join(tempDir, ScratchPrefix+uuid.NewString())
	if err := os.Mkdir(scratch, 0700); err != nil {
		return "", fmt.Errorf("create scratch directory: %w", err)
	}

	archivePath := filepath.Join(scratch, archiveName)
	if err := os.WriteFile(archivePath, archive, 0600); err != nil {
		removeQuietly(scratch)
		return "", fmt.Errorf("write installer archive: %w", err)
	}

	pkgDir, err := ExtractArchive(archivePath, scratch)
	if err != nil {
		removeQuietly(scratch)
		return "", fmt.Errorf("extract installer archive: %w", err)
	}
	return pkgDir, nil
}
