// Package utils holds the small concurrency, recovery and scoring helpers
// shared by the search engine and the query runner.
package utils
