package model

import "time"

// EventMatchCompleted is the analytics event name emitted for every submission.
const EventMatchCompleted = "Match Completed"

// TimestampLayout is ISO-8601 in UTC with millisecond precision.
const TimestampLayout = "2006-01-02T15:04:05.000Z"

// Wire property names of a Match Completed event.
const (
	PropGameID      = "game_id"
	PropSportType   = "sport_type"
	PropWinnerEmail = "winner_email"
	PropLoserEmail  = "loser_email"
	PropTimestamp   = "timestamp"
)

// MatchInput is the mutable form state a match result is derived from.
type MatchInput struct {
	SportType     Sport
	WinnerContact string
	LoserContact  string
}

// DefaultInput is the state of an empty form.
func DefaultInput() MatchInput {
	return MatchInput{SportType: DefaultSport}
}

// Reset puts the input back to its defaults.
func (in *MatchInput) Reset() {
	*in = DefaultInput()
}

// MatchEvent is the immutable record of one submitted match.
type MatchEvent struct {
	GameID      string `json:"game_id"`
	SportType   Sport  `json:"sport_type"`
	WinnerEmail string `json:"winner_email"`
	LoserEmail  string `json:"loser_email"`
	Timestamp   string `json:"timestamp"`
}

// NewMatchEvent assembles an event from input plus the generated id and instant.
func NewMatchEvent(gameID string, at time.Time, in MatchInput) MatchEvent {
	return MatchEvent{
		GameID:      gameID,
		SportType:   in.SportType,
		WinnerEmail: in.WinnerContact,
		LoserEmail:  in.LoserContact,
		Timestamp:   FormatTimestamp(at),
	}
}

// FormatTimestamp renders t the way event timestamps are sent.
func FormatTimestamp(t time.Time) string {
	return t.UTC().Format(TimestampLayout)
}

// Properties returns the flat, string-valued property map sent with the event.
// A fresh map is returned on every call.
func (e MatchEvent) Properties() map[string]string {
	return map[string]string{
		PropGameID:      e.GameID,
		PropSportType:   string(e.SportType),
		PropWinnerEmail: e.WinnerEmail,
		PropLoserEmail:  e.LoserEmail,
		PropTimestamp:   e.Timestamp,
	}
}

// Summary is the one-line confirmation shown in the last result panel.
func (e MatchEvent) Summary() string {
	return e.WinnerEmail + " defeated " + e.LoserEmail + " in " + e.SportType.Label()
}

// IsZero reports whether e was never constructed.
func (e MatchEvent) IsZero() bool {
	return e.GameID == ""
}
