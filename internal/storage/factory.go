// internal/storage/factory.go
package storage

import (
	"fmt"

	"github.com/rs/zerolog"

	"github.com/attachkit/linkcore/internal/config"
	"github.com/attachkit/linkcore/internal/database"
	"github.com/attachkit/linkcore/internal/storage/gormdb"
	"github.com/attachkit/linkcore/internal/storage/memory"
)

// NewBackend creates a storage backend based on configuration
func NewBackend(cfg config.StorageConfig, log zerolog.Logger) (Backend, error) {
	switch cfg.Type {
	case "postgres", "sqlite":
		return gormdb.New(database.NewManager(log), log), nil
	case "memory":
		return memory.New(), nil
	default:
		return nil, fmt.Errorf("unknown storage type: %s", cfg.Type)
	}
}
