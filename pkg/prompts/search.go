package prompts

import (
	"fmt"

	"github.com/soundprediction/graphquery/pkg/nlp"
	"github.com/soundprediction/graphquery/pkg/types"
)

// groundingRules tells the model how to cite records; example is a sample reference list.
func groundingRules(example string) string {
	return fmt.Sprintf(`Points supported by data should list their data references as follows:

"This is an example sentence supported by multiple data references [Data: %s]."

Do not list more than 5 record ids in a single reference. Instead, list the top 5 most relevant record ids and add "+more" to indicate that there are more.
Do not include information where the supporting evidence for it is not provided.
If you don't know the answer, just say so. Do not make anything up.`, example)
}

// BasicSearch answers a query from ranked text chunks.
func BasicSearch(query, contextData, responseType string) []types.Message {
	sysPrompt := fmt.Sprintf(`You are a helpful assistant responding to questions about the data in the tables provided.

---Goal---

Generate a response of the target length and format that responds to the user's question, summarizing all relevant information in the input data tables appropriate for the response length and format.

%s

---Target response length and format---

%s

---Data tables---

%s

Add sections and commentary to the response as appropriate for the length and format. Style the response in markdown.`,
		groundingRules("Sources (1, 5, 15)"), responseType, contextData)

	return []types.Message{
		nlp.NewSystemMessage(sysPrompt),
		nlp.NewUserMessage(query),
	}
}

// LocalSearch answers a query from the neighbourhood of the entities it mentions.
func LocalSearch(query, contextData, responseType string) []types.Message {
	sysPrompt := fmt.Sprintf(`You are a helpful assistant responding to questions about data in the tables provided.

---Goal---

Generate a response of the target length and format that responds to the user's question, summarizing all information in the input data tables appropriate for the response length and format, and incorporating any relevant general knowledge.

The tables hold community reports, entities, relationships, claims and source text. Prefer the most specific evidence: source text and relationships over report summaries.

%s

---Target response length and format---

%s

---Data tables---

%s

Add sections and commentary to the response as appropriate for the length and format. Style the response in markdown.`,
		groundingRules("Entities (5, 7); Relationships (23); Sources (2, 7, 34, 46, +more)"), responseType, contextData)

	return []types.Message{
		nlp.NewSystemMessage(sysPrompt),
		nlp.NewUserMessage(query),
	}
}

// GlobalMap asks for scored key points from one batch of community reports.
// The reply is a MapResponse.
func GlobalMap(query, contextData string) []types.Message {
	sysPrompt := fmt.Sprintf(`You are a helpful assistant responding to questions about data in the tables provided.

---Goal---

Generate a response consisting of a list of key points that responds to the user's question, summarizing all relevant information in the input data tables.

Each key point in the response should have the following element:
- description: A comprehensive description of the point.
- score: An integer score between 0-100 that indicates how important the point is in answering the user's question. An 'I don't know' type of response should have a score of 0.

The response should be JSON formatted as follows:
{
    "points": [
        {"description": "Description of point 1 [Data: Reports (report ids)]", "score": score_value},
        {"description": "Description of point 2 [Data: Reports (report ids)]", "score": score_value}
    ]
}

%s

---Data tables---

%s`, groundingRules("Reports (2, 7, 64, 46, 34, +more)"), contextData)

	return []types.Message{
		nlp.NewSystemMessage(sysPrompt),
		nlp.NewUserMessage(query),
	}
}

// GlobalReduce merges the analysts' key points into the final answer.
func GlobalReduce(query, reportData, responseType string) []types.Message {
	sysPrompt := fmt.Sprintf(`You are a helpful assistant responding to questions about a dataset by synthesizing perspectives from multiple analysts.

---Goal---

Generate a response of the target length and format that responds to the user's question, summarizing all the reports from multiple analysts who focused on different parts of the dataset.

The analysts' reports below are ranked in descending order of importance.

Remove all irrelevant information from the analysts' reports and merge the cleaned information into a comprehensive answer that provides explanations of all the key points and implications appropriate for the response length and format.

Preserve the original meaning and use of modal verbs such as "shall", "may" or "will".
Preserve all the data references previously included in the analysts' reports, but do not mention the roles of multiple analysts in the analysis process.

---Target response length and format---

%s

---Analyst Reports---

%s

Add sections and commentary to the response as appropriate for the length and format. Style the response in markdown.`, responseType, reportData)

	return []types.Message{
		nlp.NewSystemMessage(sysPrompt),
		nlp.NewUserMessage(query),
	}
}

// RateCommunity asks how relevant one community report is to the query.
// The reply is a CommunityRating.
func RateCommunity(query, report string) []types.Message {
	sysPrompt := `You are a helpful assistant rating how relevant a community report is to a user's question.

Rate the report on a scale from 0 to 5:
- 0: the report is unrelated to the question.
- 1: the report touches the question only in passing.
- 3: the report contains information that helps answer the question.
- 5: the report answers the question directly.

Respond with JSON formatted as follows:
{"rating": integer_rating, "reason": "one sentence explanation"}`

	userPrompt := fmt.Sprintf("Question: %s\n\nCommunity report:\n%s", query, report)
	return []types.Message{
		nlp.NewSystemMessage(sysPrompt),
		nlp.NewUserMessage(userPrompt),
	}
}
