package checkpoint

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/lvyanru/hitl-chat/internal/config"
	"github.com/lvyanru/hitl-chat/internal/domain"
	"github.com/lvyanru/hitl-chat/pkg/database"
)

// New builds the store selected by cfg.Driver.
func New(ctx context.Context, cfg config.CheckpointConfig, logger *slog.Logger) (domain.CheckpointStore, error) {
	switch cfg.Driver {
	case "", "memory":
		logger.Info("checkpoint store ready", "driver", "memory", "ttl", cfg.TTL)
		return NewMemoryStore(cfg.TTL), nil
	case "bolt":
		store, err := NewBoltStore(cfg.Bolt.Path, cfg.Bolt.Bucket, cfg.Bolt.Timeout)
		if err != nil {
			return nil, err
		}
		logger.Info("checkpoint store ready", "driver", "bolt", "path", cfg.Bolt.Path)
		return store, nil
	case "mysql":
		db, err := database.Open(cfg.MySQL, logger)
		if err != nil {
			return nil, err
		}
		store, err := NewMySQLStore(ctx, db, cfg.MySQL.Table)
		if err != nil {
			_ = database.Close(db, logger)
			return nil, err
		}
		logger.Info("checkpoint store ready", "driver", "mysql", "table", store.table)
		return store, nil
	default:
		return nil, fmt.Errorf("unsupported checkpoint driver: %s", cfg.Driver)
	}
}
