package types

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/soundprediction/graphquery/pkg/table"
)

// Validation errors
var (
	ErrEmptyQuery   = errors.New("query cannot be empty")
	ErrUnknownMode  = errors.New("unknown search mode")
	ErrInvalidLevel = errors.New("community level must not be negative")
)

// Mode names a retrieval strategy.
type Mode string

const (
	// ModeBasic answers from the text units closest to the query.
	ModeBasic Mode = "basic"
	// ModeLocal answers from entities near the query and their neighborhood.
	ModeLocal Mode = "local"
	// ModeGlobal answers by map-reduce over community reports.
	ModeGlobal Mode = "global"
)

// DefaultModes returns the modes in the order a run executes them.
func DefaultModes() []Mode {
	return []Mode{ModeBasic, ModeLocal, ModeGlobal}
}

// ParseMode parses a mode name, case-insensitively.
func ParseMode(s string) (Mode, error) {
	switch Mode(strings.ToLower(strings.TrimSpace(s))) {
	case ModeBasic:
		return ModeBasic, nil
	case ModeLocal:
		return ModeLocal, nil
	case ModeGlobal:
		return ModeGlobal, nil
	}
	return "", fmt.Errorf("%w: %q", ErrUnknownMode, s)
}

// ParseModes parses a list of mode names, dropping duplicates while keeping order.
func ParseModes(names []string) ([]Mode, error) {
	seen := make(map[Mode]bool, len(names))
	modes := make([]Mode, 0, len(names))
	for _, n := range names {
		if strings.TrimSpace(n) == "" {
			continue
		}
		m, err := ParseMode(n)
		if err != nil {
			return nil, err
		}
		if !seen[m] {
			seen[m] = true
			modes = append(modes, m)
		}
	}
	return modes, nil
}

func (m Mode) String() string {
	return string(m)
}

// RetrievalResult is the answer a search mode produced plus the evidence it used.
type RetrievalResult struct {
	Answer  string
	Context Context

	// TokensUsed accumulates LLM usage across every call the mode made.
	TokensUsed *TokenUsage
}

// Outcome records how one mode of a run ended.
type Outcome struct {
	Mode     Mode
	Folder   string
	Answer   string
	Err      error
	Duration time.Duration
}

// Succeeded reports whether the mode produced and persisted a result.
func (o Outcome) Succeeded() bool {
	return o.Err == nil
}

// Role is a chat message role.
type Role string

// Message is a single chat message sent to a language model.
type Message struct {
	Role    Role   `json:"role"`
	Content string `json:"content"`
}

// Response is a language model completion.
type Response struct {
	Content      string      `json:"content"`
	FinishReason string      `json:"finish_reason,omitempty"`
	Model        string      `json:"model,omitempty"`
	TokensUsed   *TokenUsage `json:"tokens_used,omitempty"`
	Cached       bool        `json:"cached,omitempty"`
}

// TokenUsage counts tokens spent by a completion.
type TokenUsage struct {
	PromptTokens     int `json:"prompt_tokens"`
	CompletionTokens int `json:"completion_tokens"`
	TotalTokens      int `json:"total_tokens"`
}

// Add accumulates other into u. A nil receiver is left untouched.
func (u *TokenUsage) Add(other *TokenUsage) {
	if u == nil || other == nil {
		return
	}
	u.PromptTokens += other.PromptTokens
	u.CompletionTokens += other.CompletionTokens
	u.TotalTokens += other.TotalTokens
}

type contextKey string

// Context keys carried through a run for logging and telemetry.
const (
	ContextKeyRunID  contextKey = "run_id"
	ContextKeyMode   contextKey = "mode"
	ContextKeyQuery  contextKey = "query"
	ContextKeySource contextKey = "request_source"
)

// Tables bundles the index tables handed to a search.
type Tables struct {
	TextUnits        *table.Table
	Entities         *table.Table
	Relationships    *table.Table
	Communities      *table.Table
	CommunityReports *table.Table
	Covariates       *table.Table
}
