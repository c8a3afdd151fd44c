package state

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"cli-auth/internal/logger"
)

// InstallRecord is the saved outcome of a successful installer handoff.
type InstallRecord struct {
	Version     string    `json:"version"`      // Package version reported by the download endpoint
	Channel     string    `json:"channel"`      // Release track the package came from
	InstalledAt time.Time `json:"installed_at"` // When the installer finished
}

// State holds everything this tool remembers between runs.
// The session itself is never persisted, only what it produced.
type State struct {
	Installs map[string]InstallRecord `json:"installs"` // Keyed by channel
}

// Record stores rec under its channel, replacing an older one.
func (s *State) Record(rec InstallRecord) {
	if s.Installs == nil {
		s.Installs = make(map[string]InstallRecord)
	}
	s.Installs[rec.Channel] = rec
}

// LoadState loads the saved state from a JSON file at the given path.
// A missing or unreadable file yields an empty State; a corrupt file is reported
// in debug output and treated as empty too.
func LoadState(path string) *State {
	file, err := os.ReadFile(path)
	if err != nil {
		return &State{Installs: make(map[string]InstallRecord)}
	}

	var st State
	if err := json.Unmarshal(file, &st); err != nil {
		logger.Debug("[DEBUG] Ignoring unreadable state file %s: %v\n", path, err)
	}
	if st.Installs == nil {
		st.Installs = make(map[string]InstallRecord)
	}
	return &st
}

// SaveState writes the given State to path as indented JSON, creating the parent
// directory if needed.
func SaveState(path string, st *State) error {
	file, err := json.MarshalIndent(st, "", "  ")
	if err != nil {
		return fmt.Errorf("marshal state: %w", err)
	}

	logger.Debug("[DEBUG] Writing state to %s:\n%s\n", path, string(file))

	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return fmt.Errorf("create state directory: %w", err)
	}
	if err := os.WriteFile(path, file, 0644); err != nil {
		return fmt.Errorf("write state file %s: %w", path, err)
	}
	return nil
}
