// Package cache provides in-memory caching with concurrent access.
// This package implements:
// - Thread-safe generic cache
// - LRU eviction policy
// - TTL-based expiration
package cache
