// Package kv is a string-keyed store of JSON documents with prefix-scan
// retrieval. It carries no business semantics and no cross-key transactions.
package kv

import (
	"context"
	"encoding/json"
	"strings"
)

// Entry is one stored document.
type Entry struct {
	Key   string
	Value json.RawMessage
}

// Store is implemented by every backend. Each call is atomic for its own key only.
type Store interface {
	// Get returns found=false, not an error, when the key is absent.
	Get(ctx context.Context, key string) (json.RawMessage, bool, error)
	// Set overwrites unconditionally.
	Set(ctx context.Context, key string, value json.RawMessage) error
	// Delete does not fail when the key is absent.
	Delete(ctx context.Context, key string) error
	// GetByPrefix returns every entry whose key starts with prefix, in no particular order.
	GetByPrefix(ctx context.Context, prefix string) ([]Entry, error)
	Ping(ctx context.Context) error
	Close() error
}

// Key joins parts with ':' into a composite key.
func Key(parts ...string) string {
	return strings.Join(parts, ":")
}

func validJSON(key string, value json.RawMessage) error {
	if !json.Valid(value) {
		return &InvalidValueError{Key: key}
	}
	return nil
}

// InvalidValueError is returned by Set when the value is not a JSON document.
type InvalidValueError struct {
	Key string
}

func (e *InvalidValueError) Error() string {
	return "kv: value for " + e.Key + " is not valid JSON"
}
