// Package search answers questions over a GraphRAG index held in memory.
//
// Three retrieval modes are provided, each returning the answer together
// with the evidence tables it was grounded on:
//
//   - Basic: rank raw text units against the query and answer from the best chunks.
//   - Local: find the entities the query is about, then gather their
//     relationships, community reports, claims and source text.
//   - Global: map community reports to scored key points in parallel, then
//     reduce the strongest points into one answer. Communities come from a
//     fixed hierarchy level or from an LLM-rated walk down the hierarchy.
//
// Ranking is lexical (TF-IDF with cosine similarity) so an index built
// without embeddings can still be searched.
//
// # Usage
//
//	engine := search.NewEngine(client, search.OptionsFrom(cfg.Search), logger)
//	result, err := engine.LocalSearch(ctx, search.LocalSearchRequest{
//	    Query:            "What is H2@home used for?",
//	    Entities:         tables.Entities,
//	    Communities:      tables.Communities,
//	    CommunityReports: tables.CommunityReports,
//	    TextUnits:        tables.TextUnits,
//	    Relationships:    tables.Relationships,
//	    CommunityLevel:   2,
//	    ResponseType:     "Multiple Paragraphs",
//	})
package search
