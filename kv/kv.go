// Package kv provides the on-device key-value stores that persist OAuth
// tokens between runs.
package kv

import "errors"

// ErrNotFound is returned by Get when the key has no value.
var ErrNotFound = errors.New("kv: key not found")

// Store is a minimal string key-value store.
//
// Implementations must treat Delete of a missing key as success.
type Store interface {
	Get(key string) (string, error)
	Set(key, value string) error
	Delete(key string) error
}
