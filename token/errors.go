package token

import (
	"errors"
	"fmt"
)

// ErrMalformedToken is returned when a compact token cannot be decoded into
// the expected claim set.
var ErrMalformedToken = errors.New("malformed token")

// DshCallError reports a non-200 answer from a DSH token endpoint. The body
// is kept verbatim for diagnostics.
type DshCallError struct {
	URL        string
	StatusCode int
	ErrorBody  string
}

func (e *DshCallError) Error() string {
	return fmt.Sprintf("error calling %s, status code: %d, error body: %s", e.URL, e.StatusCode, e.ErrorBody)
}

// Temporary reports whether the platform answered with a server side error.
func (e *DshCallError) Temporary() bool {
	return e.StatusCode >= 500
}

// InvalidClientIDError is returned before any network call when a client id
// does not satisfy ValidateClientID.
type InvalidClientIDError struct {
	ClientID string
	Reason   string
}

func (e *InvalidClientIDError) Error() string {
	return fmt.Sprintf("invalid client_id %q: %s", e.ClientID, e.Reason)
}

func malformed(format string, args ...any) error {
	return fmt.Errorf("%w: %s", ErrMalformedToken, fmt.Sprintf(format, args...))
}
