package backend

import (
	"context"
	"fmt"

	"cassa/internal/gateway/memory"
	"cassa/internal/gateway/mongo"
	"cassa/internal/gateway/sqlgw"
	"cassa/internal/log"
)

// DefaultFactory implements the Factory interface
type DefaultFactory struct {
	logger *log.Logger
}

// NewFactory creates a new backend factory
func NewFactory(logger *log.Logger) Factory {
	if logger == nil {
		logger = log.Discard()
	}
	return &DefaultFactory{
		logger: logger.WithComponent(log.ComponentBackend),
	}
}

// CreateBackend implements Factory.CreateBackend
func (f *DefaultFactory) CreateBackend(ctx context.Context, config Config) (*BackendResult, error) {
	if err := config.Validate(); err != nil {
		return nil, err
	}

	switch config.Type {
	case MemoryBackend:
		f.logger.WarnContext(ctx, "Using in-memory backend; data is lost on restart", log.FieldBackend, config.Type)
		gw := memory.New()
		return &BackendResult{Gateway: gw, Cleanup: gw.Close}, nil

	case SQLiteBackend:
		gw, err := sqlgw.OpenSQLite(ctx, config.SQLiteDBPath)
		if err != nil {
			return nil, fmt.Errorf("failed to initialize SQLite backend: %w", err)
		}
		f.logger.InfoContext(ctx, "Initialized SQLite backend", log.FieldBackend, config.Type, "db_path", config.SQLiteDBPath)
		return &BackendResult{Gateway: gw, Cleanup: gw.Close}, nil

	case PostgresBackend:
		gw, err := sqlgw.OpenPostgres(ctx, config.DatabaseURL)
		if err != nil {
			return nil, fmt.Errorf("failed to initialize PostgreSQL backend: %w", err)
		}
		f.logger.InfoContext(ctx, "Initialized PostgreSQL backend", log.FieldBackend, config.Type)
		return &BackendResult{Gateway: gw, Cleanup: gw.Close}, nil

	case MongoBackend:
		gw, err := mongo.Open(ctx, config.MongoURI, config.MongoDB)
		if err != nil {
			return nil, fmt.Errorf("failed to initialize MongoDB backend: %w", err)
		}
		f.logger.InfoContext(ctx, "Initialized MongoDB backend", log.FieldBackend, config.Type, "database", config.MongoDB)
		return &BackendResult{Gateway: gw, Cleanup: gw.Close}, nil

	default:
		return nil, fmt.Errorf("unsupported backend type: %s", config.Type)
	}
}
