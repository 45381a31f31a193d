package authority

import (
	"errors"
	"fmt"
	"net/http"
)

var (
	// ErrNonNumericEvent is returned when an external event id cannot be
	// sent as the authority's integer event id
	ErrNonNumericEvent = errors.New("authority: external event id is not numeric")
	// ErrNoCredentials means no static token, token file or login is configured
	ErrNoCredentials = errors.New("authority: no credentials configured")
	// ErrEmptyResponse is returned for a 2xx answer without a body
	ErrEmptyResponse = errors.New("authority: empty response body")
)

// StatusError is a non-2xx answer from the authority
type StatusError struct {
	StatusCode int
	Body       string
}

func (e *StatusError) Error() string {
	if e.Body == "" {
		return fmt.Sprintf("authority: unexpected status %d", e.StatusCode)
	}
	return fmt.Sprintf("authority: unexpected status %d: %s", e.StatusCode, e.Body)
}

// IsUnauthorized reports a 401 answer
func (e *StatusError) IsUnauthorized() bool {
	return e.StatusCode == http.StatusUnauthorized
}

// IsUnauthorized reports whether err carries a 401 from the authority
func IsUnauthorized(err error) bool {
	var se *StatusError
	return errors.As(err, &se) && se.IsUnauthorized()
}
