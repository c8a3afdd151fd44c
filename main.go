package main

import (
	"cli-auth/cmd" // CLI commands and execution logic
)

// main is the program entry point.
// It delegates to cmd.Execute() which handles command line parsing and execution.
//
// cli-auth logs a user in by email and sets up the CLI package:
//   - Starts a login session, retrying transient failures with exponential backoff
//   - Waits for the user to click the verification link sent by email
//   - Writes the registry token issued by the server to ~/.npmrc
//   - Downloads the installer for the chosen channel, verifies its SHA-256 checksum,
//     extracts it and hands off to it with Node.js
func main() {
	cmd.Execute()
}
