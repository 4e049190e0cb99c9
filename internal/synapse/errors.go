// ABOUTME: APIError type for Synapse admin API failures
// ABOUTME: Carries HTTP status and Matrix errcode so callers can classify failures

package synapse

import (
	"errors"
	"fmt"

	"maunium.net/go/mautrix"
)

// APIError is returned for any admin or client API call that the
// homeserver rejected or that failed at the transport level.
type APIError struct {
	// Op is the logical operation that failed, e.g. "get room id"
	Op string

	// StatusCode is the HTTP status, 0 for transport failures
	StatusCode int

	// ErrCode is the Matrix error code (e.g. "M_UNKNOWN_TOKEN"), if any
	ErrCode string

	// Err is the underlying error
	Err error
}

func (e *APIError) Error() string {
	if e.ErrCode != "" {
		return fmt.Sprintf("synapse: %s: %s (HTTP %d): %v", e.Op, e.ErrCode, e.StatusCode, e.Err)
	}
	return fmt.Sprintf("synapse: %s: %v", e.Op, e.Err)
}

func (e *APIError) Unwrap() error {
	return e.Err
}

// wrapError converts any error from the underlying Matrix client into
// an *APIError, extracting the status and errcode when present.
func wrapError(op string, err error) *APIError {
	apiErr := &APIError{Op: op, Err: err}

	var httpErr mautrix.HTTPError
	if errors.As(err, &httpErr) {
		if httpErr.Response != nil {
			apiErr.StatusCode = httpErr.Response.StatusCode
		}
		if httpErr.RespError != nil {
			apiErr.ErrCode = httpErr.RespError.ErrCode
		}
	}

	return apiErr
}
