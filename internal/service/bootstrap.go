package service

import (
	"context"
	"fmt"

	"github.com/rs/zerolog"

	"github.com/rongwang/library-server/internal/config"
	"github.com/rongwang/library-server/internal/loader"
)

// Bootstrap replaces the catalog and the users with the configured CSV
// files. Paths left empty are skipped.
func Bootstrap(ctx context.Context, svc Service, cfg config.BootstrapConfig, logger zerolog.Logger) error {
	if cfg.BooksCSV != "" {
		books, err := loader.ReadBooksFile(cfg.BooksCSV)
		if err != nil {
			return fmt.Errorf("error reading books from %s: %w", cfg.BooksCSV, err)
		}
		res, err := svc.ReloadCatalog(ctx, books)
		if err != nil {
			return fmt.Errorf("error loading books: %w", err)
		}
		logger.Info().Str("path", cfg.BooksCSV).Int("inserted", res.Inserted).Msg("Loaded books")
	}

	if cfg.UsersCSV != "" {
		users, err := loader.ReadUsersFile(cfg.UsersCSV)
		if err != nil {
			return fmt.Errorf("error reading users from %s: %w", cfg.UsersCSV, err)
		}
		res, err := svc.ReloadUsers(ctx, users)
		if err != nil {
			return fmt.Errorf("error loading users: %w", err)
		}
		logger.Info().Str("path", cfg.UsersCSV).Int("inserted", res.Inserted).Msg("Loaded users")
	}

	return nil
}
