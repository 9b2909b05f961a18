package collector

import "fmt"

// CollectorError reports a collector response outside the 2xx range. The
// status code is preserved so callers can distinguish auth failures from
// server-side trouble in logs; delivery handling treats every status the
// same way.
type CollectorError struct {
	StatusCode int
}

func (e *CollectorError) Error() string {
	return fmt.Sprintf("collector returned status %d", e.StatusCode)
}

// NewCollectorError creates a CollectorError for the given status code.
func NewCollectorError(statusCode int) *CollectorError {
	return &CollectorError{StatusCode: statusCode}
}
