// Package services holds the inventory operations, the session registry and
// the tool-call dispatch loop that drives a conversation turn.
// This file centralizes the service-level error values so callers can
// branch on them with errors.Is.
//
// Translation into user-facing messages or HTTP status codes is performed
// at the handler layer.
package services

import "errors"

// Domain errors. These are recovered per line or per tool call and never
// abort a whole batch.
var (
	// ErrValidation marks a batch or sale line with missing or invalid fields.
	ErrValidation = errors.New("invalid input")

	// ErrProductNotFound indicates no catalog entry matched a sale line.
	ErrProductNotFound = errors.New("product not found")

	// ErrBrandMismatch indicates the name matched but the brand did not.
	ErrBrandMismatch = errors.New("brand mismatch")

	// ErrInsufficientStock indicates the matched entry holds fewer units
	// than requested.
	ErrInsufficientStock = errors.New("insufficient stock")

	// ErrInvalidTimeframe is returned for a report unit other than days,
	// weeks or months, or a non-positive count.
	ErrInvalidTimeframe = errors.New("invalid timeframe")

	// ErrMalformedToolArguments is reported when a tool call's arguments
	// cannot be decoded. Only that call fails.
	ErrMalformedToolArguments = errors.New("malformed tool arguments")

	// ErrInvalidUser is returned when an inbound identity is empty.
	ErrInvalidUser = errors.New("invalid user identity")

	// ErrReplyInFlight is returned by ReplyStore.Claim while another request
	// is still running the turn for the same message key.
	ErrReplyInFlight = errors.New("reply in flight")
)

// Protocol errors. These abort the turn.
var (
	// ErrSessionUnavailable is returned when the remote thread for a user
	// can be neither resolved nor created.
	ErrSessionUnavailable = errors.New("session unavailable")

	// ErrRemoteService wraps agent failures that persisted through retries.
	ErrRemoteService = errors.New("remote service error")

	// ErrTurnTimeout is returned when a run does not finish within the
	// configured wait budget.
	ErrTurnTimeout = errors.New("turn timed out")

	// ErrRunFailed is returned when the remote run ends in a failed,
	// cancelled, expired or incomplete state.
	ErrRunFailed = errors.New("run failed")
)
