package managementapi

import (
	"errors"
	"fmt"
)

var (
	// ErrUnknownClientID is returned by Build when neither a client id nor a
	// tenant name was set.
	ErrUnknownClientID = errors.New("management api: client id or tenant name is required")
	// ErrUnknownClientSecret is returned by Build when no client secret was set.
	ErrUnknownClientSecret = errors.New("management api: client secret is required")
)

// StatusCodeError reports a non-2xx answer of the token endpoint.
type StatusCodeError struct {
	StatusCode int
	ErrorBody  string
}

func (e *StatusCodeError) Error() string {
	return fmt.Sprintf("management api token request failed with status %d: %s", e.StatusCode, e.ErrorBody)
}
