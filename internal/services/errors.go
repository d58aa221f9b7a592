package services

import (
	"errors"
	"fmt"

	"github.com/desertthunder/seedmix/internal/shared"
	"github.com/tidwall/gjson"
)

// APIError is returned for any non-success provider response during a data operation.
type APIError struct {
	Method     string
	Path       string
	StatusCode int
	Body       string
}

func (e *APIError) Error() string {
	msg := fmt.Sprintf("spotify API error: %s %s: status %d", e.Method, e.Path, e.StatusCode)
	if m := ProviderMessage(e.Body); m != "" {
		msg += ": " + m
	}
	return msg
}

func (e *APIError) Unwrap() error { return shared.ErrAPIRequest }

// AuthError is returned when a token exchange, refresh, or the follow-up user lookup fails.
// The user has to sign in again.
type AuthError struct {
	Op         string // "exchange", "refresh" or "user lookup"
	StatusCode int    // zero when no response was received
	Body       string
	Err        error
}

func (e *AuthError) Error() string {
	msg := fmt.Sprintf("spotify %s failed", e.Op)
	if e.StatusCode != 0 {
		msg += fmt.Sprintf(": status %d", e.StatusCode)
	}
	if m := ProviderMessage(e.Body); m != "" {
		msg += ": " + m
	} else if e.Err != nil {
		msg += ": " + e.Err.Error()
	}
	return msg
}

func (e *AuthError) Unwrap() []error {
	if e.Err == nil {
		return []error{shared.ErrAuthFailed}
	}
	return []error{shared.ErrAuthFailed, e.Err}
}

// ValidationError reports caller-side misuse caught before any provider request is made.
type ValidationError struct {
	Field  string
	Reason string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("invalid %s: %s", e.Field, e.Reason)
}

func (e *ValidationError) Unwrap() error { return shared.ErrInvalidInput }

// Invalid is shorthand for constructing a [*ValidationError].
func Invalid(field, format string, args ...any) error {
	return &ValidationError{Field: field, Reason: fmt.Sprintf(format, args...)}
}

// ProviderMessage extracts a human readable message from a Spotify error body.
//
// Web API errors look like {"error":{"status":401,"message":"..."}} while the accounts service
// answers {"error":"invalid_grant","error_description":"..."}.
func ProviderMessage(body string) string {
	if body == "" || !gjson.Valid(body) {
		return ""
	}

	res := gjson.GetMany(body, "error.message", "error_description", "error")
	for _, r := range res {
		if r.Type == gjson.String && r.Str != "" {
			return r.Str
		}
	}
	return ""
}

// IsAuthError reports whether err requires the user to sign in again.
func IsAuthError(err error) bool {
	var authErr *AuthError
	return errors.As(err, &authErr)
}
