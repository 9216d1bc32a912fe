package dto

import (
	"errors"
	"strings"
)

// Validation errors
var (
	ErrEmptyQuery    = errors.New("query cannot be empty")
	ErrQueryTooLong  = errors.New("query exceeds maximum length (8KB)")
	ErrNegativeLevel = errors.New("community_level must not be negative")
	ErrTooManyModes  = errors.New("at most three modes may be requested")
)

// Validation limits
const (
	MaxQueryLength    = 8 * 1024
	maxRequestedModes = 3
)

// QueryRequest is the body of POST /query.
// Unset fields fall back to the server's query configuration.
type QueryRequest struct {
	Query                     string   `json:"query"`
	Modes                     []string `json:"modes,omitempty"`
	CommunityLevel            *int     `json:"community_level,omitempty"`
	ResponseType              string   `json:"response_type,omitempty"`
	DynamicCommunitySelection *bool    `json:"dynamic_community_selection,omitempty"`
	Persist                   *bool    `json:"persist,omitempty"`
}

// Validate performs validation on QueryRequest
func (r *QueryRequest) Validate() error {
	if strings.TrimSpace(r.Query) == "" {
		return ErrEmptyQuery
	}
	if len(r.Query) > MaxQueryLength {
		return ErrQueryTooLong
	}
	if r.CommunityLevel != nil && *r.CommunityLevel < 0 {
		return ErrNegativeLevel
	}
	if len(r.Modes) > maxRequestedModes {
		return ErrTooManyModes
	}
	return nil
}

// ModeResult is the outcome of one search mode.
type ModeResult struct {
	Mode       string `json:"mode"`
	Success    bool   `json:"success"`
	Answer     string `json:"answer,omitempty"`
	Folder     string `json:"folder,omitempty"`
	Error      string `json:"error,omitempty"`
	DurationMs int64  `json:"duration_ms"`
}

// QueryResponse is the body returned by POST /query.
type QueryResponse struct {
	Query   string       `json:"query"`
	Results []ModeResult `json:"results"`
	Failed  int          `json:"failed"`
}

// ErrorResponse represents an error response
type ErrorResponse struct {
	Error   string `json:"error"`
	Message string `json:"message,omitempty"`
	Code    int    `json:"code,omitempty"`
}
