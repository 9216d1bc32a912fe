package dto

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestQueryRequestValidate(t *testing.T) {
	level := func(n int) *int { return &n }

	tests := []struct {
		name string
		req  QueryRequest
		want error
	}{
		{"valid", QueryRequest{Query: "What is H2@home used for?"}, nil},
		{"valid with options", QueryRequest{Query: "q", Modes: []string{"basic"}, CommunityLevel: level(0)}, nil},
		{"empty", QueryRequest{Query: "  "}, ErrEmptyQuery},
		{"too long", QueryRequest{Query: strings.Repeat("a", MaxQueryLength+1)}, ErrQueryTooLong},
		{"negative level", QueryRequest{Query: "q", CommunityLevel: level(-1)}, ErrNegativeLevel},
		{"too many modes", QueryRequest{Query: "q", Modes: []string{"basic", "local", "global", "basic"}}, ErrTooManyModes},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := tt.req.Validate()
			if tt.want == nil {
				assert.NoError(t, err)
				return
			}
			assert.ErrorIs(t, err, tt.want)
		})
	}
}
