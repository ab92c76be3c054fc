package errors

import "errors"

var (
	// ErrMetricsUnavailable indicates that no metrics could be computed and none are cached
	ErrMetricsUnavailable = errors.New("membership metrics unavailable")

	// ErrInvalidEvent indicates that an inbound lifecycle event failed validation
	ErrInvalidEvent = errors.New("invalid lifecycle event")

	// ErrMemberNotFound indicates that no membership snapshot row matched the lookup
	ErrMemberNotFound = errors.New("member not found")
)
