package controller

import (
	"context"
	"errors"
	"fmt"
	"net/http"
)

// Outcome classifies a successful controller call.
type Outcome int

const (
	// OutcomeCreated means a rule that did not exist was installed.
	OutcomeCreated Outcome = iota
	// OutcomeUpdated means an existing rule was replaced.
	OutcomeUpdated
	// OutcomeRemoved means rules existed and were removed.
	OutcomeRemoved
	// OutcomeNoop means there was nothing to remove.
	OutcomeNoop
)

func (m Outcome) String() string {
	switch m {
	case OutcomeCreated:
		return "created"
	case OutcomeUpdated:
		return "updated"
	case OutcomeRemoved:
		return "removed"
	case OutcomeNoop:
		return "noop"
	default:
		return fmt.Sprintf("Outcome(%d)", int(m))
	}
}

// StatusError is returned when the controller answers with a status the
// operation does not accept.
type StatusError struct {
	Method string
	URL    string
	Code   int
	Body   string
}

func (m *StatusError) Error() string {
	return fmt.Sprintf("%s %s: unexpected status %d: %s", m.Method, m.URL, m.Code, m.Body)
}

// IsRetryable reports whether the failed call may succeed when repeated:
// transport failures, server errors, timeouts and throttling.
func IsRetryable(err error) bool {
	if err == nil || errors.Is(err, context.Canceled) {
		return false
	}

	var statusErr *StatusError
	if !errors.As(err, &statusErr) {
		return true
	}

	switch {
	case statusErr.Code >= http.StatusInternalServerError:
		return true
	case statusErr.Code == http.StatusRequestTimeout:
		return true
	case statusErr.Code == http.StatusTooManyRequests:
		return true
	default:
		return false
	}
}
