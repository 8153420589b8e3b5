package domain

import "errors"

// Code is the closed error taxonomy carried in errorCode.
// Values are stable for wire compatibility; add sparingly
type Code string

// Execution error codes
const (
	CodeNone                Code = ""
	CodeNoActiveAccount     Code = "no_active_account"
	CodeNoAvailableSlot     Code = "no_available_slot"
	CodeSlotRateLimited     Code = "slot_rate_limited"
	CodeRemoteTimeout       Code = "remote_timeout"
	CodeRemoteError         Code = "remote_error"
	CodeProxyNotImplemented Code = "proxy_not_implemented"
	CodeUnknownKind         Code = "unknown_kind"
	CodeTaskNotFound        Code = "task_not_found"
	CodeMaxAttemptsExceeded Code = "max_attempts_exceeded"
)

// ErrBadPayload marks a payload map that cannot be rebuilt into its
// typed variant
var ErrBadPayload = errors.New("parserexec: malformed task payload")
