package core

import (
	"errors"
	"fmt"
)

var (
	// ErrUnauthorized is returned when a request carries no credential.
	ErrUnauthorized = errors.New("missing or invalid credential")

	// ErrRateLimited is returned when the provider signals HTTP 429 or
	// equivalent. The scheduler skips the current chunk on this error.
	ErrRateLimited = errors.New("provider rate limited")

	// ErrProviderTimeout is returned when the provider call does not
	// complete before its deadline. The in-flight call is aborted and its
	// result discarded.
	ErrProviderTimeout = errors.New("provider timed out")
)

// ProviderError is any upstream failure that is neither a timeout nor a
// rate limit. The upstream message is preserved for diagnostics.
type ProviderError struct {
	Provider string
	Err      error
}

func (e *ProviderError) Error() string {
	return fmt.Sprintf("provider %s failed: %v", e.Provider, e.Err)
}

func (e *ProviderError) Unwrap() error {
	return e.Err
}

// ParseError is structurally invalid model output. It carries the raw
// text so callers can report it; callers must not crash on it.
type ParseError struct {
	Raw string
	Err error
}

func (e *ParseError) Error() string {
	return fmt.Sprintf("failed to parse model response: %v", e.Err)
}

func (e *ParseError) Unwrap() error {
	return e.Err
}
