package github

import (
	"errors"
	"fmt"
	"time"
)

// QuotaError reports that the active credential's request quota is
// exhausted. ResetAt is the instant the quota window resets, taken from
// the X-RateLimit-Reset header when present.
type QuotaError struct {
	ResetAt time.Time
}

func (e *QuotaError) Error() string {
	if e.ResetAt.IsZero() {
		return "github: rate limit exceeded"
	}
	return fmt.Sprintf("github: rate limit exceeded, resets at %s", e.ResetAt.Format(time.RFC3339))
}

// NotFoundError reports that the requested identity no longer exists
// upstream. Callers should not retry.
type NotFoundError struct {
	Login string
}

func (e *NotFoundError) Error() string {
	return fmt.Sprintf("github: user %q not found", e.Login)
}

// StatusError wraps any other non-2xx response.
type StatusError struct {
	StatusCode int
	Body       string
}

func (e *StatusError) Error() string {
	return fmt.Sprintf("github: unexpected status %d: %s", e.StatusCode, e.Body)
}

// IsQuota reports whether err is a quota-exhaustion signal.
func IsQuota(err error) bool {
	var qe *QuotaError
	return errors.As(err, &qe)
}

// IsPermanent reports whether err should not be retried: the item is gone
// upstream or the request itself is malformed (4xx other than the quota
// statuses).
func IsPermanent(err error) bool {
	var nf *NotFoundError
	if errors.As(err, &nf) {
		return true
	}
	var se *StatusError
	if errors.As(err, &se) {
		return se.StatusCode >= 400 && se.StatusCode < 500 &&
			se.StatusCode != 403 && se.StatusCode != 429
	}
	return false
}
