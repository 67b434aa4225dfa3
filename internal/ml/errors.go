package ml

import (
	"errors"
	"fmt"
	"strings"
)

// StatusError is returned when the ML service answers with a non-2xx status.
type StatusError struct {
	StatusCode int
	Body       string
}

func (e *StatusError) Error() string {
	return fmt.Sprintf("ml service returned status %d: %s", e.StatusCode, truncate(e.Body, 200))
}

// IsRejection reports whether the error is a terminal 4xx rejection that
// must not be retried.
func IsRejection(err error) bool {
	var se *StatusError
	if errors.As(err, &se) {
		return se.StatusCode >= 400 && se.StatusCode < 500
	}
	return false
}

// IsOOM reports whether the error signals the ML service ran out of memory
// on the submitted batch. The service uses 507, older revisions report a
// 5xx with an "out of memory" body.
func IsOOM(err error) bool {
	var se *StatusError
	if !errors.As(err, &se) {
		return false
	}
	if se.StatusCode == 507 {
		return true
	}
	return se.StatusCode >= 500 && strings.Contains(strings.ToLower(se.Body), "out of memory")
}

// IsRetryable reports whether the error is transient: network failures and
// 5xx responses other than OOM.
func IsRetryable(err error) bool {
	if err == nil {
		return false
	}
	if IsOOM(err) || IsRejection(err) {
		return false
	}
	var se *StatusError
	if errors.As(err, &se) {
		return se.StatusCode >= 500
	}
	// Non-status errors are transport failures.
	return true
}

func truncate(s string, max int) string {
	if len(s) <= max {
		return s
	}
	return s[:max] + "..."
}
