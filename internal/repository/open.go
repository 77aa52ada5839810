package repository

import (
	"fmt"

	"github.com/rs/zerolog"

	"github.com/rongwang/library-server/internal/config"
)

// Open builds the repository selected by cfg.Store.Backend
func Open(cfg *config.Config, logger zerolog.Logger) (Repository, error) {
	switch cfg.Store.Backend {
	case config.BackendMemory:
		logger.Warn().Msg("using in-memory store, data is lost on exit")
		return NewMemoryRepository(), nil
	case config.BackendPostgres:
		db, err := config.SetupDatabase(cfg, logger)
		if err != nil {
			return nil, err
		}
		logger.Info().
			Str("driver", cfg.Database.Driver).
			Str("host", cfg.Database.Host).
			Str("database", cfg.Database.DBName).
			Msg("connected to database")
		return NewPostgresRepository(db), nil
	default:
		return nil, fmt.Errorf("unknown store backend %q", cfg.Store.Backend)
	}
}
