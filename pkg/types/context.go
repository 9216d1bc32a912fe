package types

import "github.com/soundprediction/graphquery/pkg/table"

// ContextValue is one piece of supporting evidence returned by a search.
// It is either a TableValue or a DocumentValue.
type ContextValue interface {
	contextValue()
}

// TableValue is tabular evidence, persisted as CSV and as JSON records.
type TableValue struct {
	Table *table.Table
}

// DocumentValue is any other evidence, persisted as a single JSON document.
type DocumentValue struct {
	Value any
}

func (TableValue) contextValue()    {}
func (DocumentValue) contextValue() {}

// ContextEntry is a named context value.
type ContextEntry struct {
	Key   string
	Value ContextValue
}

// Context is an ordered collection of named evidence.
// The zero value is empty and ready to use.
type Context struct {
	entries []ContextEntry
}

// NewContext creates a context from entries, in order.
func NewContext(entries ...ContextEntry) Context {
	var c Context
	for _, e := range entries {
		c.Set(e.Key, e.Value)
	}
	return c
}

// Set stores a value under key. An existing key keeps its position.
func (c *Context) Set(key string, value ContextValue) {
	for i := range c.entries {
		if c.entries[i].Key == key {
			c.entries[i].Value = value
			return
		}
	}
	c.entries = append(c.entries, ContextEntry{Key: key, Value: value})
}

// SetTable stores a table under key.
func (c *Context) SetTable(key string, t *table.Table) {
	c.Set(key, TableValue{Table: t})
}

// SetDocument stores an arbitrary value under key.
func (c *Context) SetDocument(key string, v any) {
	c.Set(key, DocumentValue{Value: v})
}

// Get returns the value stored under key.
func (c Context) Get(key string) (ContextValue, bool) {
	for _, e := range c.entries {
		if e.Key == key {
			return e.Value, true
		}
	}
	return nil, false
}

// Table returns the table stored under key, if the value is tabular.
func (c Context) Table(key string) (*table.Table, bool) {
	v, ok := c.Get(key)
	if !ok {
		return nil, false
	}
	tv, ok := v.(TableValue)
	if !ok {
		return nil, false
	}
	return tv.Table, true
}

// Entries returns the entries in insertion order.
func (c Context) Entries() []ContextEntry {
	out := make([]ContextEntry, len(c.entries))
	copy(out, c.entries)
	return out
}

// Len returns the number of entries.
func (c Context) Len() int {
	return len(c.entries)
}
