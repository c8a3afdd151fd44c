package installer

import (
	"os"
	"path/filepath"
	"strings"

	"cli-auth/internal/logger"
)

// Cleanup removes the scratch directory that holds path.
//
// It does nothing for an empty path (the download step was skipped) or for a path
// with no scratch directory among its components, so it can never delete unrelated
// directories. Removal is best-effort: errors are deliberately discarded because a
// leftover temp directory must not turn a successful install into a failure.
func Cleanup(path string) {
	if path == "" {
		return
	}
	dir, ok := scratchRoot(path)
	if !ok {
		logger.Debug("[DEBUG] Not removing %s: not a scratch directory\n", path)
		return
	}
	_ = os.RemoveAll(dir)
}

// scratchRoot walks up from path to the nearest component named with ScratchPrefix.
func scratchRoot(path string) (string, bool) {
	p := filepath.Clean(path)
	for {
		if strings.HasPrefix(filepath.Base(p), ScratchPrefix) {
			return p, true
		}
		parent := filepath.Dir(p)
		if parent == p {
			return "", false
		}
		p = parent
	}
}

// removeQuietly is Cleanup for a directory this package just created.
func removeQuietly(dir string) {
	_ = os.RemoveAll(dir)
}
