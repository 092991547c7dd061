// Package simulate drives a running match tracker over HTTP: it submits
// generated match results concurrently and verifies what the service reports
// back.
package simulate

import (
	"io"
	"time"
)

// Config holds configuration for a simulation run.
type Config struct {
	BaseURL      string        // Base URL of the service
	Matches      int           // Number of matches to submit
	Workers      int           // Number of concurrent submitters
	Timeout      time.Duration // HTTP request timeout
	InvalidEvery int           // Every Nth match is deliberately invalid; 0 disables
	Watch        bool          // Count result messages on the live feed
	Verbose      bool          // Log every submission
	Out          io.Writer     // Where the final report goes; nil discards it
}

// Stats holds run statistics.
type Stats struct {
	MatchesGenerated int
	Submitted        int
	Accepted         int
	Rejected         int
	Failed           int
	LiveResults      int
	LastGameID       string
	Ready            bool
	StartTime        time.Time
	EndTime          time.Time
	Duration         time.Duration
}
