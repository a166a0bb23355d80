package services

import (
	"errors"
	"fmt"
	"net/http"
	"strings"
)

var (
	// ErrUnauthorized is returned when the API rejects the bearer token
	ErrUnauthorized = errors.New("session expired, please sign in again")
	// ErrNotFound is returned for 404 responses
	ErrNotFound = errors.New("resource not found")
	// ErrNoSession is returned when no token is stored locally
	ErrNoSession = errors.New("no active session")
)

// APIError is a non-2xx response from the remote API
type APIError struct {
	StatusCode int
	Code       string
	Message    string
}

func (e *APIError) Error() string {
	if e.Message == "" {
		return fmt.Sprintf("api returned status %d", e.StatusCode)
	}
	return e.Message
}

// Is lets callers match status classes with errors.Is
func (e *APIError) Is(target error) bool {
	switch target {
	case ErrUnauthorized:
		return e.StatusCode == http.StatusUnauthorized
	case ErrNotFound:
		return e.StatusCode == http.StatusNotFound
	}
	return false
}

// ValidationError is raised before any network call is made
type ValidationError struct {
	Code    string
	Message string
	Details []string
}

func (e *ValidationError) Error() string {
	if len(e.Details) == 0 {
		return e.Message
	}
	return e.Message + ": " + strings.Join(e.Details, "; ")
}

// UserMessage picks the text a notice should show for err
func UserMessage(err error) string {
	var apiErr *APIError
	var validationErr *ValidationError
	switch {
	case err == nil:
		return ""
	case errors.As(err, &validationErr):
		return validationErr.Message
	case errors.Is(err, ErrUnauthorized):
		return ErrUnauthorized.Error()
	case errors.As(err, &apiErr) && apiErr.Message != "":
		return apiErr.Message
	default:
		return "Something went wrong. Please check your connection and try again."
	}
}
