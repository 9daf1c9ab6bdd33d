package domain

import "errors"

// =============================================================================
// Invalid Usage Errors
// =============================================================================

// These errors signal a broken contract rather than invalid market input.
// Market input problems are reported through validation results instead.
var (
	ErrInvalidCommand    = errors.New("invalid command")
	ErrInvalidPeriod     = errors.New("period start must be before its end")
	ErrNoOpenPeriod      = errors.New("no period covers the stop date")
	ErrInvalidCancelStop = errors.New("cannot cancel charge stop: charge must have exactly one stop period")
	ErrTimelineInvariant = errors.New("charge timeline invariant violated")
	ErrEmptyRejection    = errors.New("rejection must carry at least one error")
)
