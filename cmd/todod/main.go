// Command todod serves the todo API behind the JWKS-backed bearer token
// authorizer, and exposes the authorizer for one-off checks.
package main

import (
	"os"
)

// Version is set at build time.
var Version = "dev"

func main() {
	if err := newRootCmd().Execute(); err != nil {
		os.Exit(1)
	}
}
