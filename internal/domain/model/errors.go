package model

import (
	"errors"
	"fmt"
)

// Sentinel error kinds. Callers match them with errors.Is.
var (
	// ErrClientUnavailable means no analytics client reference was established.
	ErrClientUnavailable = errors.New("analytics client unavailable")
	// ErrDeliveryFailure means the track call raised or was refused.
	ErrDeliveryFailure = errors.New("delivery failure")
	// ErrUnknownSport is returned by ParseSport.
	ErrUnknownSport = errors.New("unknown sport")
)

func deliveryFailure(cause error) error {
	if cause == nil {
		return ErrDeliveryFailure
	}
	if errors.Is(cause, ErrDeliveryFailure) {
		return cause
	}
	return fmt.Errorf("%w: %w", ErrDeliveryFailure, cause)
}
