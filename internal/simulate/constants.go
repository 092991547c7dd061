package simulate

import "time"

// Runner configuration constants.
const (
	ContactDomain        = "example.com"
	LiveSettleTimeout    = 5 * time.Second
	livePollInterval     = 20 * time.Millisecond
	PercentageMultiplier = 100
)

// Submission results.
const (
	resultAccepted = "accepted"
	resultRejected = "rejected"
	resultFailed   = "failed"
)
