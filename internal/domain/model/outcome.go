package model

// Status is the terminal state of one dispatch attempt.
type Status string

// Terminal dispatch states. An event is Constructed until it reaches one of these.
const (
	StatusDelivered Status = "delivered"
	StatusSkipped   Status = "skipped"
	StatusFailed    Status = "failed"
)

// Outcome is the result of dispatching a MatchEvent.
//
// Err is nil for delivered events, ErrClientUnavailable for skipped ones and
// wraps ErrDeliveryFailure plus the cause for failed ones.
type Outcome struct {
	Status Status
	Event  MatchEvent
	Err    error
}

// Delivered builds a delivered outcome.
func Delivered(e MatchEvent) Outcome {
	return Outcome{Status: StatusDelivered, Event: e}
}

// Skipped builds an outcome for an event that had no client to go to.
func Skipped(e MatchEvent) Outcome {
	return Outcome{Status: StatusSkipped, Event: e, Err: ErrClientUnavailable}
}

// Failed builds an outcome for an event whose delivery raised cause.
func Failed(e MatchEvent, cause error) Outcome {
	return Outcome{Status: StatusFailed, Event: e, Err: deliveryFailure(cause)}
}

// OK reports whether the event reached the analytics client.
func (o Outcome) OK() bool { return o.Status == StatusDelivered }
