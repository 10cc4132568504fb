package relay

import (
	"errors"
	"fmt"
)

var (
	// ErrConfigurationMissing is returned before any upstream call when the
	// chat credential is not set.
	ErrConfigurationMissing = errors.New("GROQ_API_KEY not configured")

	// ErrInvalidRequest wraps every request validation failure.
	ErrInvalidRequest = errors.New("invalid request")

	// ErrUpstreamUnreadable is reported when a successful upstream response
	// carries no body.
	ErrUpstreamUnreadable = errors.New("No response body")

	// ErrTransportFailure wraps connection and read failures against the
	// upstream.
	ErrTransportFailure = errors.New("upstream transport failure")

	// ErrMalformedRecord marks a record whose payload could not be decoded.
	// It never reaches the client; the record is skipped.
	ErrMalformedRecord = errors.New("malformed record")
)

// genericUpstreamMessage is sent when a rejecting upstream gives no reason.
const genericUpstreamMessage = "upstream request failed"

// UpstreamError is returned when the upstream answers with a non-success
// status.
type UpstreamError struct {
	Status  int
	Message string
}

func (e *UpstreamError) Error() string {
	return fmt.Sprintf("upstream rejected request (%d): %s", e.Status, e.Message)
}
