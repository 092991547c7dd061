package simulate

import (
	"fmt"
	"io"
)

// ShowHelp prints usage information for the simulator.
func ShowHelp(w io.Writer) {
	_, _ = fmt.Fprint(w, `Rally Match Simulator
=====================

Submits generated match results to a running rally service and verifies
what it reports back.

Usage:
  go run ./cmd/simulate [options]

Options:
  -url string
        Base URL of the service (default "http://localhost:9080")
  -matches int
        Number of matches to submit (default 100)
  -workers int
        Number of concurrent submitters (default CPU cores * 2)
  -timeout duration
        HTTP request timeout (default 10s)
  -invalid-every int
        Make every Nth match invalid (same winner and loser); 0 disables
  -watch
        Count result messages on the /live feed
  -verbose
        Enable verbose logging
  -help
        Show this help message

Examples:
  # Submit 100 matches to a local service
  go run ./cmd/simulate

  # Submit 5000 matches with 32 workers and watch the live feed
  go run ./cmd/simulate -matches 5000 -workers 32 -watch
`)
}
