package tenants

import (
	"errors"
	"net/http"
)

// Domain errors for tenant operations.
var (
	ErrNotFound  = errors.New("tenant not found")
	ErrDuplicate = errors.New("tenant already exists")
	ErrInvalid   = errors.New("invalid tenant")
)

// MapHTTPStatus maps tenant domain errors to appropriate HTTP status codes.
func MapHTTPStatus(err error) int {
	if errors.Is(err, ErrNotFound) {
		return http.StatusNotFound
	}
	if errors.Is(err, ErrDuplicate) {
		return http.StatusConflict
	}
	if errors.Is(err, ErrInvalid) {
		return http.StatusBadRequest
	}
	return http.StatusInternalServerError
}
