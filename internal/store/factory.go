package store

import (
	"fmt"

	"go.uber.org/zap"

	"github.com/rfranks/ai-chat-ehr/internal/config"
)

// New selects the storage backend from configuration: "database" writes to
// Postgres, "sqlfile" emits reviewable INSERT statements, "none" discards.
func New(cfg config.StorageConfig, logger *zap.Logger) (Storage, error) {
	switch cfg.Mode {
	case "database":
		return NewPostgresStorage(cfg, logger)
	case "sqlfile":
		return NewSQLFileStorage(cfg.SQLPath, logger)
	case "none", "":
		return Discard{}, nil
	}
	return nil, fmt.Errorf("unknown storage mode %q", cfg.Mode)
}
