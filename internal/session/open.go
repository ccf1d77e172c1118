package session

import (
	"context"
	"fmt"

	"github.com/iammorganparry/issuehub/internal/config"
)

// OpenStore creates the store selected by cfg.
func OpenStore(ctx context.Context, cfg config.SessionConfig) (Store, error) {
	switch cfg.Backend {
	case config.BackendFile:
		return NewFileStore(cfg.Path)
	case config.BackendSQLite:
		return OpenSQLite(cfg.Path)
	case config.BackendRedis:
		return OpenRedis(ctx, cfg.RedisURL)
	case config.BackendMemory:
		return NewMemoryStore(), nil
	default:
		return nil, fmt.Errorf("session: unknown backend %q", cfg.Backend)
	}
}
