package errors

// Common error codes shared by HTTP and gRPC surfaces.
const (
	ErrInternal        = "INTERNAL"
	ErrNotFound        = "NOT_FOUND"
	ErrInvalidArgument = "INVALID_ARGUMENT"
	ErrUnauthenticated = "UNAUTHENTICATED"
	ErrUnauthorized    = "UNAUTHORIZED"
	ErrConflict        = "CONFLICT"
	ErrTimeout         = "TIMEOUT"
	ErrNotImplemented  = "NOT_IMPLEMENTED"
	// ErrUnavailable marks an upstream dependency (payment processor, database) that could not be reached.
	ErrUnavailable = "UNAVAILABLE"
)
