package signalws

import (
	"errors"
	"net/http"
)

// Caller errors. Reported for the single invocation and never retried.
var (
	ErrUnknownRoute        = errors.New("unknown route")
	ErrInvalidMessage      = errors.New("invalid message")
	ErrSenderNotRegistered = errors.New("sender not registered")
	ErrSenderNotInSession  = errors.New("sender not in a game")
	ErrMissingTarget       = errors.New("targetId is required")
	ErrTargetNotFound      = errors.New("target player not found")
)

// Infrastructure errors.
var (
	ErrStoreUnavailable = errors.New("connection store unavailable")
	ErrDeliveryFailed   = errors.New("delivery failed")
	ErrConnectionGone   = errors.New("connection gone")
)

// StatusCode maps a handling result to the status returned to API Gateway.
func StatusCode(err error) int {
	switch {
	case err == nil:
		return http.StatusOK
	case errors.Is(err, ErrUnknownRoute),
		errors.Is(err, ErrInvalidMessage),
		errors.Is(err, ErrSenderNotRegistered),
		errors.Is(err, ErrSenderNotInSession),
		errors.Is(err, ErrMissingTarget):
		return http.StatusBadRequest
	case errors.Is(err, ErrTargetNotFound):
		return http.StatusNotFound
	default:
		return http.StatusInternalServerError
	}
}

// Reason is a short metric-friendly label for err.
func Reason(err error) string {
	switch {
	case err == nil:
		return ""
	case errors.Is(err, ErrUnknownRoute):
		return "unknown_route"
	case errors.Is(err, ErrInvalidMessage):
		return "invalid_message"
	case errors.Is(err, ErrSenderNotRegistered):
		return "sender_not_registered"
	case errors.Is(err, ErrSenderNotInSession):
		return "sender_not_in_session"
	case errors.Is(err, ErrMissingTarget):
		return "missing_target"
	case errors.Is(err, ErrTargetNotFound):
		return "target_not_found"
	case errors.Is(err, ErrStoreUnavailable):
		return "store_unavailable"
	case errors.Is(err, ErrDeliveryFailed):
		return "delivery_failed"
	default:
		return "internal"
	}
}
