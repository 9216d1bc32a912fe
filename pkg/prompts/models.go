// Package prompts builds the chat messages the search engine sends to the
// language model and declares the shapes of the structured replies.
package prompts

// NoDataAnswer is returned when no context could be assembled for a query.
const NoDataAnswer = "I am sorry but I am unable to answer this question given the provided data."

// KeyPoint is one scored statement produced by the global map step.
type KeyPoint struct {
	Description string `json:"description"`
	Score       int    `json:"score"`
}

// MapResponse is the JSON object the global map step asks for.
type MapResponse struct {
	Points []KeyPoint `json:"points"`
}

// CommunityRating is the JSON object the community rating step asks for.
type CommunityRating struct {
	Rating int    `json:"rating"`
	Reason string `json:"reason"`
}
