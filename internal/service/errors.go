package service

import (
	"context"
	"errors"
	"fmt"

	"github.com/prohmpiriya/ticket-broker/internal/authority"
	"github.com/prohmpiriya/ticket-broker/pkg/rabbitmq"
)

var (
	// ErrSecondaryDisabled is returned by the no-op sale publisher
	ErrSecondaryDisabled = errors.New("secondary notification channel disabled")
	// ErrAuthorityRejected marks a confirm-sale answer without resultado=true
	ErrAuthorityRejected = errors.New("authority did not confirm the sale")
)

// describeError renders err as "<Kind>: message" for persisted diagnostics
func describeError(err error) string {
	if err == nil {
		return ""
	}
	return fmt.Sprintf("%s: %v", errorKind(err), err)
}

func errorKind(err error) string {
	var se *authority.StatusError
	switch {
	case errors.Is(err, context.DeadlineExceeded):
		return "Timeout"
	case errors.Is(err, context.Canceled):
		return "Canceled"
	case errors.As(err, &se) && se.IsUnauthorized():
		return "Unauthorized"
	case errors.As(err, &se):
		return "AuthorityStatusError"
	case errors.Is(err, authority.ErrEmptyResponse):
		return "EmptyResponse"
	case errors.Is(err, authority.ErrNonNumericEvent):
		return "InvalidEvent"
	case errors.Is(err, ErrAuthorityRejected):
		return "Rejected"
	case errors.Is(err, ErrSecondaryDisabled):
		return "SecondaryDisabled"
	case errors.Is(err, rabbitmq.ErrNacked):
		return "Nacked"
	default:
		return "TransportError"
	}
}
