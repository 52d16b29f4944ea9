package vector

import (
	"errors"
	"fmt"
	"net/http"
)

// APIError is a non-200 response from the vector index API.
type APIError struct {
	Status int
	Body   string
}

func (e *APIError) Error() string {
	return fmt.Sprintf("vector api status %d: %s", e.Status, e.Body)
}

// Retryable reports whether the failure is worth retrying. Server-side
// errors and throttling are; other client errors are not.
func Retryable(err error) bool {
	var apiErr *APIError
	if errors.As(err, &apiErr) {
		return apiErr.Status >= http.StatusInternalServerError ||
			apiErr.Status == http.StatusTooManyRequests
	}
	return true
}
