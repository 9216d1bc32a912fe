// Package types defines the core data types shared across graphquery.
//
// This package contains:
//   - Mode: the retrieval strategies (basic, local, global)
//   - Tables: the index tables handed to a search
//   - RetrievalResult and Context: an answer plus the evidence behind it
//   - Outcome: how one mode of a run ended
//   - Message, Response, TokenUsage: language model exchange types
//
// # Context values
//
// Evidence is a tagged variant. TableValue holds tabular data and is
// persisted as CSV and JSON records; DocumentValue holds anything else and
// is persisted as a single JSON document:
//
//	var c types.Context
//	c.SetTable("sources", sources)
//	c.SetDocument("stats", map[string]any{"llm_calls": 2})
//
// Context preserves insertion order, so result files are written in the
// order a search produced them.
package types
