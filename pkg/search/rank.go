package search

import (
	"fmt"
	"math"
	"sort"
	"strings"
	"unicode"

	tfidf "github.com/rioloc/tfidf-go"

	"github.com/soundprediction/graphquery/pkg/utils"
)

// DefaultRankConstant is the k in 1/(k+rank) used by reciprocal rank fusion.
const DefaultRankConstant = 60

var stopWords = map[string]struct{}{
	"a": {}, "an": {}, "and": {}, "are": {}, "as": {}, "at": {}, "be": {}, "by": {},
	"do": {}, "does": {}, "for": {}, "from": {}, "how": {}, "in": {}, "is": {}, "it": {},
	"of": {}, "on": {}, "or": {}, "that": {}, "the": {}, "this": {}, "to": {}, "was": {},
	"what": {}, "when": {}, "where": {}, "which": {}, "who": {}, "why": {}, "with": {},
}

// tokenize lower-cases text and splits it into terms.
// '@' and '-' stay inside terms so names like "h2@home" survive.
func tokenize(text string) []string {
	fields := strings.FieldsFunc(strings.ToLower(text), func(r rune) bool {
		return !unicode.IsLetter(r) && !unicode.IsDigit(r) && r != '@' && r != '-'
	})
	terms := fields[:0]
	for _, f := range fields {
		f = strings.Trim(f, "-")
		if f == "" {
			continue
		}
		if _, stop := stopWords[f]; stop {
			continue
		}
		terms = append(terms, f)
	}
	return terms
}

// vocabularize builds the vocabulary and per-document terms tfidf expects.
func vocabularize(docs []string) ([]string, [][]string) {
	var vocabulary []string
	seen := make(map[string]bool)
	tokens := make([][]string, len(docs))
	for i, doc := range docs {
		tokens[i] = tokenize(doc)
		for _, term := range tokens[i] {
			if !seen[term] {
				seen[term] = true
				vocabulary = append(vocabulary, term)
			}
		}
	}
	return vocabulary, tokens
}

// RankDocuments scores every document against the query with TF-IDF
// cosine similarity. The query takes part in the corpus statistics.
func RankDocuments(query string, docs []string) ([]float64, error) {
	scores := make([]float64, len(docs))
	if len(docs) == 0 {
		return scores, nil
	}

	corpus := append(append(make([]string, 0, len(docs)+1), docs...), query)
	vocabulary, tokens := vocabularize(corpus)
	if len(vocabulary) == 0 || len(tokens[len(tokens)-1]) == 0 {
		return scores, nil
	}

	tfMatrix := tfidf.Tf(vocabulary, tokens)
	idfVector := tfidf.Idf(vocabulary, tokens, true) // with smoothing

	matrix, err := tfidf.NewTfIdfVectorizer().TfIdf(tfMatrix, idfVector)
	if err != nil {
		return nil, fmt.Errorf("failed to vectorize documents: %w", err)
	}

	queryVector := matrix[len(matrix)-1]
	for i := range docs {
		// empty documents can yield NaN term frequencies
		if score := utils.CosineSimilarity(matrix[i], queryVector); !math.IsNaN(score) {
			scores[i] = score
		}
	}
	return scores, nil
}

// positive returns the indices with a score above zero, best first, at most k.
func positive(scores []float64, k int) []int {
	ranked := utils.TopKIndicesByScore(scores, 0)
	out := make([]int, 0, len(ranked))
	for _, i := range ranked {
		if scores[i] <= 0 {
			break
		}
		out = append(out, i)
		if k > 0 && len(out) == k {
			break
		}
	}
	return out
}

// RRF (Reciprocal Rank Fusion) merges several ranked lists of row indices.
// Rows missing from every list are dropped. Ties keep first-seen order.
func RRF(results [][]int, rankConstant int) ([]int, []float64) {
	if rankConstant <= 0 {
		rankConstant = DefaultRankConstant
	}

	scores := make(map[int]float64)
	var order []int
	for _, result := range results {
		for i, row := range result {
			if _, exists := scores[row]; !exists {
				order = append(order, row)
			}
			scores[row] += 1.0 / float64(i+rankConstant)
		}
	}

	sort.SliceStable(order, func(a, b int) bool {
		return scores[order[a]] > scores[order[b]]
	})

	scoreList := make([]float64, len(order))
	for i, row := range order {
		scoreList[i] = scores[row]
	}
	return order, scoreList
}
