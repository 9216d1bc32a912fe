package search

import (
	"encoding/json"
	"fmt"
	"regexp"
	"strings"

	"github.com/kaptinlin/jsonrepair"
)

var (
	thinkTags  = regexp.MustCompile(`(?s)<think>.*?</think>`)
	codeFences = regexp.MustCompile("(?s)^```(?:json)?\\s*(.*?)\\s*```$")
)

// decodeJSON unmarshals a model reply into target, repairing malformed JSON
// (trailing commas, single quotes, truncation) when the first attempt fails.
func decodeJSON(content string, target any) error {
	content = strings.TrimSpace(thinkTags.ReplaceAllString(content, ""))
	if m := codeFences.FindStringSubmatch(content); m != nil {
		content = m[1]
	}

	if err := json.Unmarshal([]byte(content), target); err == nil {
		return nil
	}

	repaired, err := jsonrepair.JSONRepair(content)
	if err != nil {
		return fmt.Errorf("failed to repair JSON response: %w", err)
	}
	if err := json.Unmarshal([]byte(repaired), target); err != nil {
		return fmt.Errorf("failed to decode JSON response: %w", err)
	}
	return nil
}
