package installer

import (
	"context"
	"io"
	"os"
	"os/exec"
	"strings"

	"cli-auth/internal/logger"
)

// Handoff runs the installer contained in an extracted package directory.
type Handoff interface {
	Install(ctx context.Context, pkgDir string) error
}

// nodeEntrypoint loads the package given as the first argument and awaits its install().
const nodeEntrypoint = `Promise.resolve(require(process.argv[1]).install())` +
	`.catch((err) => { console.error(err); process.exit(1); });`

// NodeHandoff invokes the package's install() entry point with Node.js.
type NodeHandoff struct {
	// Node is the node executable; "node" from PATH when empty.
	Node   string
	Stdin  io.Reader
	Stdout io.Writer
	Stderr io.Writer
}

// Install runs install() from pkgDir with the terminal attached. Its error is returned
// as-is: failures inside the installer belong to the installer.
func (h NodeHandoff) Install(ctx context.Context, pkgDir string) error {
	node := h.Node
	if node == "" {
		node = "node"
	}
	cmd := exec.CommandContext(ctx, node, "-e", nodeEntrypoint, pkgDir)
	cmd.Dir = pkgDir
	cmd.Stdin = orDefault(h.Stdin, os.Stdin)
	cmd.Stdout = orDefaultWriter(h.Stdout, os.Stdout)
	cmd.Stderr = orDefaultWriter(h.Stderr, os.Stderr)

	logger.Debug("[DEBUG] Running command: %s\n", strings.Join(cmd.Args[:2], " ")+" <entrypoint> "+pkgDir)
	return cmd.Run()
}

func orDefault(r io.Reader, def io.Reader) io.Reader {
	if r == nil {
		return def
	}
	return r
}

func orDefaultWriter(w io.Writer, def io.Writer) io.Writer {
	if w == nil {
		return def
	}
	return w
}
