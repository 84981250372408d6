package backend

import (
	"context"

	"cassa/internal/gateway"
)

// Pinger is implemented by gateways that can check their connection.
type Pinger interface {
	Ping(ctx context.Context) error
}

// CleanupFunc represents a cleanup function for resources
type CleanupFunc func() error

// BackendResult contains the gateway instance and its cleanup function
type BackendResult struct {
	Gateway gateway.Gateway
	Cleanup CleanupFunc
}

// Ping reports whether the backing store is reachable. Stores without a
// connection are always ready.
func (r *BackendResult) Ping(ctx context.Context) error {
	if p, ok := r.Gateway.(Pinger); ok {
		return p.Ping(ctx)
	}
	return nil
}

// Factory creates gateways based on configuration
type Factory interface {
	// CreateBackend opens the store named by config and applies its schema.
	CreateBackend(ctx context.Context, config Config) (*BackendResult, error)
}

// Config holds configuration for backend creation
type Config struct {
	Type BackendType

	// SQLite specific
	SQLiteDBPath string

	// PostgreSQL specific
	DatabaseURL string

	// MongoDB specific
	MongoURI string
	MongoDB  string
}

// BackendType represents the type of backend
type BackendType string

const (
	MemoryBackend   BackendType = "memory"
	SQLiteBackend   BackendType = "sqlite"
	PostgresBackend BackendType = "postgres"
	MongoBackend    BackendType = "mongo"
)

// String implements fmt.Stringer
func (bt BackendType) String() string {
	return string(bt)
}

// IsValid returns true if the backend type is valid
func (bt BackendType) IsValid() bool {
	switch bt {
	case MemoryBackend, SQLiteBackend, PostgresBackend, MongoBackend:
		return true
	default:
		return false
	}
}
