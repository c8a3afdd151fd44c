// Package preflight checks that the tools the installer relies on are available.
package preflight

import (
	"fmt"
	"os/exec"
	"strings"
)

// Tool is an external command the installer needs on PATH.
type Tool struct {
	Name     string
	Command  string
	Guidance string
}

// RequiredTools lists what the installed package shells out to.
var RequiredTools = []Tool{
	{Name: "Git", Command: "git", Guidance: "install it from https://git-scm.com/downloads"},
	{Name: "Node.js", Command: "node", Guidance: "install the LTS release from https://nodejs.org"},
	{Name: "Fly CLI", Command: "fly", Guidance: "install it from https://fly.io/docs/flyctl/install/"},
}

// MissingError lists the tools that were not found.
type MissingError struct {
	Missing []Tool
}

func (e *MissingError) Error() string {
	names := make([]string, 0, len(e.Missing))
	for _, t := range e.Missing {
		names = append(names, t.Name)
	}
	return "missing required tools: " + strings.Join(names, ", ")
}

// Guidance renders one line per missing tool.
func (e *MissingError) Guidance() []string {
	lines := make([]string, 0, len(e.Missing))
	for _, t := range e.Missing {
		lines = append(lines, fmt.Sprintf("%s (%s) was not found: %s", t.Name, t.Command, t.Guidance))
	}
	return lines
}

// Checker verifies tool availability. LookPath defaults to exec.LookPath.
type Checker struct {
	Tools    []Tool
	LookPath func(file string) (string, error)
}

// Check returns a *MissingError when any tool is absent.
func (c Checker) Check() error {
	lookPath := c.LookPath
	if lookPath == nil {
		lookPath = exec.LookPath
	}
	tools := c.Tools
	if tools == nil {
		tools = RequiredTools
	}

	var missing []Tool
	for _, t := range tools {
		if _, err := lookPath(t.Command); err != nil {
			missing = append(missing, t)
		}
	}
	if len(missing) > 0 {
		return &MissingError{Missing: missing}
	}
	return nil
}
