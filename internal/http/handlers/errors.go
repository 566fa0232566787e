package handlers

// Stable error codes carried in ErrorResponse.Code. Clients branch on these,
// not on the message text.
const (
	ErrCodeBadRequest       = "bad_request"
	ErrCodeNotFound         = "not_found"
	ErrCodeMethodNotAllowed = "method_not_allowed"
	ErrCodeInternal         = "internal_error"

	// Conversation turn failures.
	ErrCodeReplyFailed        = "reply_failed"
	ErrCodeSessionUnavailable = "session_unavailable"
	ErrCodeUpstream           = "upstream_error"
	ErrCodeUpstreamTimeout    = "upstream_timeout"
	ErrCodeInProgress         = "in_progress"

	// Ledger reads.
	ErrCodeInvalidTimeframe = "invalid_timeframe"
	ErrCodeListFailed       = "list_failed"
	ErrCodeReportFailed     = "report_failed"
)
