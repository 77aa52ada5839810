package config

import (
	"fmt"

	_ "github.com/jackc/pgx/v5/stdlib" // PostgreSQL driver registered as "pgx"
	"github.com/jmoiron/sqlx"
	_ "github.com/lib/pq" // PostgreSQL driver
	"github.com/rs/zerolog"
)

// SetupDatabase initializes the database connection
func SetupDatabase(cfg *Config, logger zerolog.Logger) (*sqlx.DB, error) {
	db, err := sqlx.Connect(cfg.Database.Driver, cfg.Database.GetDSN())
	if err != nil {
		return nil, fmt.Errorf("failed to connect to database: %w", err)
	}

	// Test the connection
	if err := db.Ping(); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to ping database: %w", err)
	}

	db.SetMaxOpenConns(cfg.Database.MaxOpenConns)
	db.SetMaxIdleConns(cfg.Database.MaxIdleConns)

	if err := CreateTables(db, logger); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to create tables: %w", err)
	}

	return db, nil
}

// CreateTables creates the necessary tables in the database
func CreateTables(db *sqlx.DB, logger zerolog.Logger) error {
	// book_id is the external id and is not unique: the catalog may list a
	// book more than once
	_, err := db.Exec(`
		CREATE TABLE IF NOT EXISTS books (
			id BIGSERIAL PRIMARY KEY,
			book_id BIGINT NOT NULL,
			isbn VARCHAR(32) NOT NULL,
			authors TEXT NOT NULL,
			publication_year INTEGER NOT NULL,
			title TEXT NOT NULL DEFAULT '',
			language VARCHAR(32) NOT NULL DEFAULT ''
		)
	`)
	if err != nil {
		return err
	}

	_, err = db.Exec(`
		CREATE TABLE IF NOT EXISTS users (
			id BIGSERIAL PRIMARY KEY,
			user_name VARCHAR(255) UNIQUE NOT NULL,
			user_type VARCHAR(16) NOT NULL,
			created_at TIMESTAMPTZ NOT NULL DEFAULT NOW()
		)
	`)
	if err != nil {
		return err
	}

	_, err = db.Exec(`
		CREATE TABLE IF NOT EXISTS wishlist_entries (
			id BIGSERIAL PRIMARY KEY,
			user_id BIGINT NOT NULL REFERENCES users(id) ON DELETE CASCADE,
			book_pk BIGINT NOT NULL REFERENCES books(id) ON DELETE CASCADE,
			created_at TIMESTAMPTZ NOT NULL DEFAULT NOW(),
			UNIQUE (user_id, book_pk)
		)
	`)
	if err != nil {
		return err
	}

	// The unique book_pk keeps the ledger at one active rental per book
	_, err = db.Exec(`
		CREATE TABLE IF NOT EXISTS rentals (
			id BIGSERIAL PRIMARY KEY,
			user_id BIGINT NOT NULL REFERENCES users(id) ON DELETE CASCADE,
			book_pk BIGINT NOT NULL UNIQUE REFERENCES books(id) ON DELETE CASCADE,
			created_at TIMESTAMPTZ NOT NULL DEFAULT NOW()
		)
	`)
	if err != nil {
		return err
	}

	_, err = db.Exec(`
		CREATE TABLE IF NOT EXISTS rental_history (
			id BIGSERIAL PRIMARY KEY,
			user_id BIGINT NOT NULL REFERENCES users(id) ON DELETE CASCADE,
			book_pk BIGINT NOT NULL REFERENCES books(id) ON DELETE CASCADE,
			rented_at TIMESTAMPTZ NOT NULL,
			returned_at TIMESTAMPTZ
		)
	`)
	if err != nil {
		return err
	}

	// Create indexes for better performance
	indexes := []string{
		"CREATE INDEX IF NOT EXISTS idx_books_book_id ON books(book_id)",
		"CREATE INDEX IF NOT EXISTS idx_wishlist_entries_book_pk ON wishlist_entries(book_pk, id)",
		"CREATE INDEX IF NOT EXISTS idx_rental_history_book_pk ON rental_history(book_pk)",
	}

	for _, idx := range indexes {
		_, err = db.Exec(idx)
		if err != nil {
			// indexes are not critical
			logger.Warn().Err(err).Str("statement", idx).Msg("failed to create index")
		}
	}

	return nil
}
