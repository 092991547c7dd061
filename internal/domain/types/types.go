// Package types contains the JSON shapes shared by the HTTP API, the live
// feed and the simulator.
package types

import "github.com/okian/rally/internal/domain/model"

// Connection indicator labels shown next to the form.
const (
	LabelConnected = "🟢 Connected to Hightouch"
	LabelLoading   = "🔴 Hightouch SDK Loading..."
)

// Live feed message types.
const (
	MessageStatus   = "status"
	MessageResult   = "result"
	MessageDelivery = "delivery"
)

// MatchRequest is the body of POST /matches.
type MatchRequest struct {
	SportType string `json:"sport_type"`
	Winner    string `json:"winner"`
	Loser     string `json:"loser"`
}

// MatchResult is a submitted match as shown in the last result panel.
type MatchResult struct {
	GameID      string `json:"game_id"`
	SportType   string `json:"sport_type"`
	WinnerEmail string `json:"winner_email"`
	LoserEmail  string `json:"loser_email"`
	Timestamp   string `json:"timestamp"`
	Summary     string `json:"summary"`
}

// NewMatchResult renders ev for display.
func NewMatchResult(ev model.MatchEvent) MatchResult {
	return MatchResult{
		GameID:      ev.GameID,
		SportType:   string(ev.SportType),
		WinnerEmail: ev.WinnerEmail,
		LoserEmail:  ev.LoserEmail,
		Timestamp:   ev.Timestamp,
		Summary:     ev.Summary(),
	}
}

// Status describes analytics client readiness.
type Status struct {
	Ready bool   `json:"ready"`
	Label string `json:"label"`
}

// NewStatus builds the status for a readiness flag.
func NewStatus(ready bool) Status {
	if ready {
		return Status{Ready: true, Label: LabelConnected}
	}
	return Status{Ready: false, Label: LabelLoading}
}

// Delivery reports how a submitted event's dispatch ended.
type Delivery struct {
	GameID string `json:"game_id"`
	Status string `json:"status"`
	Error  string `json:"error,omitempty"`
}

// NewDelivery renders an outcome.
func NewDelivery(o model.Outcome) Delivery {
	d := Delivery{GameID: o.Event.GameID, Status: string(o.Status)}
	if o.Err != nil {
		d.Error = o.Err.Error()
	}
	return d
}

// LiveMessage is one frame of the /live websocket feed. Exactly one payload is set.
type LiveMessage struct {
	Type     string       `json:"type"`
	Status   *Status      `json:"status,omitempty"`
	Result   *MatchResult `json:"result,omitempty"`
	Delivery *Delivery    `json:"delivery,omitempty"`
}
