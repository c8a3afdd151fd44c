// Package npmrc maintains the auth token entry of an .npmrc file.
//
// The file is line-oriented ("key=value", comments with ';' or '#'). Only the scoped
// "//<registry>/:_authToken" key is touched; every other line is kept verbatim.
package npmrc

import (
	"errors"
	"fmt"
	"io/fs"
	"net/url"
	"os"
	"path/filepath"
	"strings"
)

// DefaultRegistry is the public npm registry.
const DefaultRegistry = "https://registry.npmjs.org/"

// Store is an .npmrc file on disk.
type Store struct {
	Path string
	// WriteFile persists the whole file in one operation; AtomicWriteFile when nil.
	WriteFile func(name string, data []byte, perm fs.FileMode) error
}

// DefaultPath returns ~/.npmrc.
func DefaultPath() (string, error) {
	home, err := os.UserHomeDir()
	if err != nil {
		return "", fmt.Errorf("locate home directory: %w", err)
	}
	return filepath.Join(home, ".npmrc"), nil
}

// AuthTokenKey returns the scoped key for registryURL, e.g.
// "https://registry.npmjs.org/" -> "//registry.npmjs.org/:_authToken".
func AuthTokenKey(registryURL string) (string, error) {
	u, err := url.Parse(registryURL)
	if err != nil {
		return "", fmt.Errorf("parse registry url %q: %w", registryURL, err)
	}
	if u.Host == "" {
		return "", fmt.Errorf("registry url %q has no host", registryURL)
	}
	path := u.Path
	if !strings.HasSuffix(path, "/") {
		path += "/"
	}
	return "//" + u.Host + path + ":_authToken", nil
}

// SetAuthToken writes token under the registry's scoped key, replacing an existing
// value and preserving all other entries. It reads the current file (missing = empty)
// and writes the result back with exactly one WriteFile call.
func (s *Store) SetAuthToken(registryURL, token string) error {
	key, err := AuthTokenKey(registryURL)
	if err != nil {
		return err
	}
	if strings.ContainsAny(token, "\r\n") {
		return errors.New("auth token must be a single line")
	}

	existing, err := os.ReadFile(s.Path)
	if err != nil && !errors.Is(err, fs.ErrNotExist) {
		return fmt.Errorf("read %s: %w", s.Path, err)
	}

	updated := upsert(string(existing), key, token)

	write := s.WriteFile
	if write == nil {
		write = AtomicWriteFile
	}
	if err := write(s.Path, []byte(updated), 0600); err != nil {
		return fmt.Errorf("write %s: %w", s.Path, err)
	}
	return nil
}

// upsert replaces the first assignment of key (dropping duplicates) or appends one.
func upsert(content, key, value string) string {
	entry := key + "=" + value
	lines := strings.Split(strings.TrimRight(content, "\n"), "\n")
	if content == "" {
		lines = nil
	}

	out := make([]string, 0, len(lines)+1)
	replaced := false
	for _, line := range lines {
		if lineKey(line) == key {
			if !replaced {
				out = append(out, entry)
				replaced = true
			}
			continue
		}
		out = append(out, line)
	}
	if !replaced {
		out = append(out, entry)
	}
	return strings.Join(out, "\n") + "\n"
}

// lineKey returns the key of a "key=value" line, or "" for comments and blanks.
func lineKey(line string) string {
	trimmed := strings.TrimSpace(strings.TrimSuffix(line, "\r"))
	if trimmed == "" || strings.HasPrefix(trimmed, ";") || strings.HasPrefix(trimmed, "#") {
		return ""
	}
	k, _, ok := strings.Cut(trimmed, "=")
	if !ok {
		return ""
	}
	return strings.TrimSpace(k)
}

// AtomicWriteFile writes data to a temp file next to name and renames it into place.
func AtomicWriteFile(name string, data []byte, perm fs.FileMode) error {
	dir := filepath.Dir(name)
	tmp, err := os.CreateTemp(dir, "."+filepath.Base(name)+".tmp-*")
	if err != nil {
		return err
	}
	tmpName := tmp.Name()
	defer os.Remove(tmpName) // no-op once renamed

	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		return err
	}
	if err := tmp.Chmod(perm); err != nil {
		tmp.Close()
		return err
	}
	if err := tmp.Close(); err != nil {
		return err
	}
	return os.Rename(tmpName, name)
}
