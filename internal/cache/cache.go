// Package cache provides the small byte-oriented cache the client registry
// uses for read-through lookups.
//
// Backends:
//   - memory (in-process, dev/tests)
//   - redis (shared, production)
package cache

import "time"

// Cache is a minimal TTL cache. Lookups that miss return ok=false; backends
// never surface transport errors here, a failed backend just behaves like a
// miss.
type Cache interface {
	Get(key string) ([]byte, bool)
	Set(key string, value []byte, ttl time.Duration)
	Delete(key string)
}

// Config selects and parameterizes a backend.
type Config struct {
	Kind       string // "memory" | "redis"
	RedisAddr  string
	RedisDB    int
	DefaultTTL time.Duration
}
