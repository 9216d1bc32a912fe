package nlp

import (
	"context"
	"errors"
)

// Common LLM client errors
var (
	// ErrRateLimit indicates the rate limit has been exceeded
	ErrRateLimit = errors.New("rate limit exceeded. Please try again later")

	// ErrEmptyResponse indicates the LLM returned an empty response
	ErrEmptyResponse = errors.New("the LLM returned an empty response")

	// ErrNoClient indicates no model is configured
	ErrNoClient = errors.New("no language model configured")
)

// RateLimitError represents a rate limit error with optional custom message
type RateLimitError struct {
	Message string
}

func (e *RateLimitError) Error() string {
	if e.Message == "" {
		return "rate limit exceeded. Please try again later"
	}
	return e.Message
}

// Is implements errors.Is support for RateLimitError.
// This allows errors.Is(err, &RateLimitError{}) to work with wrapped errors.
func (e *RateLimitError) Is(target error) bool {
	_, ok := target.(*RateLimitError)
	return ok
}

// NewRateLimitError creates a new rate limit error with optional custom message
func NewRateLimitError(message ...string) *RateLimitError {
	err := &RateLimitError{}
	if len(message) > 0 {
		err.Message = message[0]
	}
	return err
}

// EmptyResponseError represents an empty response error
type EmptyResponseError struct {
	Message string
}

func (e *EmptyResponseError) Error() string {
	return e.Message
}

// Is implements errors.Is support for EmptyResponseError.
func (e *EmptyResponseError) Is(target error) bool {
	_, ok := target.(*EmptyResponseError)
	return ok
}

// NewEmptyResponseError creates a new empty response error (message is required)
func NewEmptyResponseError(message string) *EmptyResponseError {
	return &EmptyResponseError{Message: message}
}

// isCancellation reports whether err comes from the caller giving up.
func isCancellation(err error) bool {
	return errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded)
}
