package repository

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/doug-martin/goqu/v9"
	_ "github.com/doug-martin/goqu/v9/dialect/postgres" // dialect registration
	"github.com/doug-martin/goqu/v9/exp"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jmoiron/sqlx"
	"github.com/lib/pq"

	"github.com/rongwang/library-server/internal/models"
)

const (
	dialectPostgres    = "postgres"
	sqlStateUniqueViol = "23505"

	// insertBatchSize keeps multi-row inserts under PostgreSQL's 65535
	// bind-parameter limit (books bind 6 per row)
	insertBatchSize = 1000
)

// PostgresRepository implements the Repository interface using PostgreSQL
type PostgresRepository struct {
	pgStore
	db *sqlx.DB
}

// pgStore runs queries against either the pool or an open transaction
type pgStore struct {
	q sqlx.ExtContext
}

// NewPostgresRepository creates a new PostgreSQL repository
func NewPostgresRepository(db *sqlx.DB) *PostgresRepository {
	return &PostgresRepository{
		pgStore: pgStore{q: db},
		db:      db,
	}
}

// GetDB returns the underlying database connection
func (r *PostgresRepository) GetDB() *sqlx.DB {
	return r.db
}

func (r *PostgresRepository) WithTx(ctx context.Context, fn func(tx Store) error) (err error) {
	tx, err := r.db.BeginTxx(ctx, nil)
	if err != nil {
		return err
	}

	defer func() {
		if err != nil {
			tx.Rollback()
		}
	}()

	if err = fn(&pgStore{q: tx}); err != nil {
		return err
	}

	return tx.Commit()
}

func (r *PostgresRepository) Ping(ctx context.Context) error {
	return r.db.PingContext(ctx)
}

func (r *PostgresRepository) Close() error {
	return r.db.Close()
}

// Book repository methods
func (s *pgStore) GetBookByBookID(ctx context.Context, bookID int64) (*models.Book, error) {
	query := `SELECT * FROM books WHERE book_id = $1 ORDER BY id LIMIT 1`
	return s.getBook(ctx, query, bookID)
}

// LockBookByBookID takes a row lock on the book so that concurrent rental and
// wishlist transactions for it run one after another.
func (s *pgStore) LockBookByBookID(ctx context.Context, bookID int64) (*models.Book, error) {
	query := `SELECT * FROM books WHERE book_id = $1 ORDER BY id LIMIT 1 FOR UPDATE`
	return s.getBook(ctx, query, bookID)
}

func (s *pgStore) getBook(ctx context.Context, query string, args ...interface{}) (*models.Book, error) {
	var book models.Book
	err := sqlx.GetContext(ctx, s.q, &book, query, args...)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, nil // Book not found
		}
		return nil, err
	}

	return &book, nil
}

func (s *pgStore) SearchBooks(ctx context.Context, title, author string) ([]models.BookSearchResult, error) {
	query, args, err := buildSearchQuery(title, author)
	if err != nil {
		return nil, err
	}

	books := []models.BookSearchResult{}
	if err := sqlx.SelectContext(ctx, s.q, &books, query, args...); err != nil {
		return nil, err
	}

	return books, nil
}

// buildSearchQuery matches title and author case-insensitively, OR-ing them
// when both are given, and keeps one row per external book_id.
func buildSearchQuery(title, author string) (string, []interface{}, error) {
	conditions := make([]exp.Expression, 0, 2)
	if title != "" {
		conditions = append(conditions, goqu.I("b.title").ILike("%"+title+"%"))
	}
	if author != "" {
		conditions = append(conditions, goqu.I("b.authors").ILike("%"+author+"%"))
	}

	ds := goqu.Dialect(dialectPostgres).
		From(goqu.T("books").As("b")).
		Select(
			goqu.I("b.id"),
			goqu.I("b.book_id"),
			goqu.I("b.isbn"),
			goqu.I("b.authors"),
			goqu.I("b.publication_year"),
			goqu.I("b.title"),
			goqu.I("b.language"),
			goqu.L("EXISTS (SELECT 1 FROM wishlist_entries w WHERE w.book_pk = b.id)").As("is_wishlisted"),
		).
		Distinct(goqu.I("b.book_id")).
		Order(goqu.I("b.book_id").Asc(), goqu.I("b.id").Asc()).
		Prepared(true)

	if len(conditions) > 0 {
		ds = ds.Where(goqu.Or(conditions...))
	}

	return ds.ToSQL()
}

// ReplaceBooks swaps the whole catalog. TRUNCATE holds an exclusive lock on
// the table and cascades to wishlists and rentals keyed on the old rows.
func (s *pgStore) ReplaceBooks(ctx context.Context, books []models.Book) (int, error) {
	_, err := s.q.ExecContext(ctx, `TRUNCATE TABLE books RESTART IDENTITY CASCADE`)
	if err != nil {
		return 0, err
	}

	if len(books) == 0 {
		return 0, nil
	}

	query := `
		INSERT INTO books (book_id, isbn, authors, publication_year, title, language)
		VALUES (:book_id, :isbn, :authors, :publication_year, :title, :language)
	`
	return namedExecBatches(ctx, s.q, query, books)
}

// namedExecBatches runs a multi-row named insert once per batch of rows and
// returns the total number of rows inserted
func namedExecBatches[T any](ctx context.Context, q sqlx.ExtContext, query string, rows []T) (int, error) {
	total := 0
	for _, batch := range chunk(rows, insertBatchSize) {
		res, err := sqlx.NamedExecContext(ctx, q, query, batch)
		if err != nil {
			return 0, err
		}
		n, err := res.RowsAffected()
		if err != nil {
			return 0, err
		}
		total += int(n)
	}
	return total, nil
}

func chunk[T any](rows []T, size int) [][]T {
	var out [][]T
	for len(rows) > size {
		out = append(out, rows[:size:size])
		rows = rows[size:]
	}
	if len(rows) > 0 {
		out = append(out, rows)
	}
	return out
}

// User repository methods
func (s *pgStore) GetUserByName(ctx context.Context, userName string) (*models.User, error) {
	query := `SELECT * FROM users WHERE user_name = $1`

	var user models.User
	err := sqlx.GetContext(ctx, s.q, &user, query, userName)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, nil // User not found
		}
		return nil, err
	}

	return &user, nil
}

func (s *pgStore) CreateUser(ctx context.Context, user *models.User) error {
	query := `
		INSERT INTO users (user_name, user_type, created_at)
		VALUES ($1, $2, $3)
		RETURNING id
	`

	if user.CreatedAt.IsZero() {
		user.CreatedAt = time.Now().UTC()
	}

	err := s.q.QueryRowxContext(ctx, query, user.UserName, user.UserType, user.CreatedAt).Scan(&user.ID)
	if isUniqueViolation(err) {
		return fmt.Errorf("user %q: %w", user.UserName, ErrDuplicate)
	}

	return err
}

func (s *pgStore) ReplaceUsers(ctx context.Context, users []models.User) (int, error) {
	_, err := s.q.ExecContext(ctx, `TRUNCATE TABLE users RESTART IDENTITY CASCADE`)
	if err != nil {
		return 0, err
	}

	if len(users) == 0 {
		return 0, nil
	}

	now := time.Now().UTC()
	for i := range users {
		if users[i].CreatedAt.IsZero() {
			users[i].CreatedAt = now
		}
	}

	query := `
		INSERT INTO users (user_name, user_type, created_at)
		VALUES (:user_name, :user_type, :created_at)
	`
	n, err := namedExecBatches(ctx, s.q, query, users)
	if isUniqueViolation(err) {
		return 0, fmt.Errorf("users: %w", ErrDuplicate)
	}
	return n, err
}

// Wishlist repository methods
func (s *pgStore) GetWishlistEntry(ctx context.Context, userID, bookPK int64) (*models.WishlistEntry, error) {
	query := `SELECT * FROM wishlist_entries WHERE user_id = $1 AND book_pk = $2`

	var entry models.WishlistEntry
	err := sqlx.GetContext(ctx, s.q, &entry, query, userID, bookPK)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, nil // Not wishlisted
		}
		return nil, err
	}

	return &entry, nil
}

func (s *pgStore) ListWishlistEntriesForBook(ctx context.Context, bookPK int64) ([]models.WishlistEntryWithUser, error) {
	query := `
		SELECT w.*, u.user_name FROM wishlist_entries w
		JOIN users u ON u.id = w.user_id
		WHERE w.book_pk = $1
		ORDER BY w.id ASC
	`

	var entries []models.WishlistEntryWithUser
	err := sqlx.SelectContext(ctx, s.q, &entries, query, bookPK)
	if err != nil {
		return nil, err
	}

	return entries, nil
}

func (s *pgStore) CreateWishlistEntry(ctx context.Context, entry *models.WishlistEntry) error {
	query := `
		INSERT INTO wishlist_entries (user_id, book_pk, created_at)
		VALUES ($1, $2, $3)
		RETURNING id
	`

	if entry.CreatedAt.IsZero() {
		entry.CreatedAt = time.Now().UTC()
	}

	err := s.q.QueryRowxContext(ctx, query, entry.UserID, entry.BookPK, entry.CreatedAt).Scan(&entry.ID)
	if isUniqueViolation(err) {
		return fmt.Errorf("wishlist entry: %w", ErrDuplicate)
	}

	return err
}

func (s *pgStore) DeleteWishlistEntry(ctx context.Context, entryID int64) error {
	_, err := s.q.ExecContext(ctx, `DELETE FROM wishlist_entries WHERE id = $1`, entryID)
	return err
}

// Rental repository methods
func (s *pgStore) GetActiveRental(ctx context.Context, bookPK int64) (*models.Rental, error) {
	query := `SELECT * FROM rentals WHERE book_pk = $1 ORDER BY id LIMIT 1`

	var rental models.Rental
	err := sqlx.GetContext(ctx, s.q, &rental, query, bookPK)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, nil // Book is available
		}
		return nil, err
	}

	return &rental, nil
}

func (s *pgStore) ListRentalsWithBook(ctx context.Context, bookPK int64) ([]models.RentalWithBook, error) {
	query := `
		SELECT r.*, b.book_id, b.title FROM rentals r
		JOIN books b ON b.id = r.book_pk
		WHERE b.id = $1
		ORDER BY r.id ASC
	`

	var rentals []models.RentalWithBook
	err := sqlx.SelectContext(ctx, s.q, &rentals, query, bookPK)
	if err != nil {
		return nil, err
	}

	return rentals, nil
}

func (s *pgStore) CreateRental(ctx context.Context, rental *models.Rental) error {
	if rental.CreatedAt.IsZero() {
		rental.CreatedAt = time.Now().UTC()
	}

	err := s.q.QueryRowxContext(ctx,
		`INSERT INTO rentals (user_id, book_pk, created_at) VALUES ($1, $2, $3) RETURNING id`,
		rental.UserID, rental.BookPK, rental.CreatedAt).Scan(&rental.ID)
	if err != nil {
		if isUniqueViolation(err) {
			return fmt.Errorf("rental for book %d: %w", rental.BookPK, ErrDuplicate)
		}
		return err
	}

	_, err = s.q.ExecContext(ctx,
		`INSERT INTO rental_history (user_id, book_pk, rented_at) VALUES ($1, $2, $3)`,
		rental.UserID, rental.BookPK, rental.CreatedAt)

	return err
}

func (s *pgStore) DeleteRental(ctx context.Context, rental *models.Rental) error {
	_, err := s.q.ExecContext(ctx, `DELETE FROM rentals WHERE id = $1`, rental.ID)
	if err != nil {
		return err
	}

	_, err = s.q.ExecContext(ctx,
		`UPDATE rental_history SET returned_at = $1
		WHERE user_id = $2 AND book_pk = $3 AND returned_at IS NULL`,
		time.Now().UTC(), rental.UserID, rental.BookPK)

	return err
}

// Report repository methods
func (s *pgStore) ListRentedBooks(ctx context.Context) ([]models.RentedBookRow, error) {
	query := `
		SELECT b.book_id, b.title, r.created_at AS rented_at FROM books b
		JOIN rentals r ON r.book_pk = b.id
		ORDER BY r.created_at ASC, b.id ASC
	`

	var rows []models.RentedBookRow
	if err := sqlx.SelectContext(ctx, s.q, &rows, query); err != nil {
		return nil, err
	}

	return rows, nil
}

func (s *pgStore) TopRentals(ctx context.Context) ([]models.TopRental, error) {
	query, args, err := goqu.Dialect(dialectPostgres).
		From(goqu.T("rental_history").As("h")).
		Join(goqu.T("books").As("b"), goqu.On(goqu.I("b.id").Eq(goqu.I("h.book_pk")))).
		Select(
			goqu.I("b.title"),
			goqu.I("b.authors"),
			goqu.COUNT(goqu.I("h.id")).As("rental_count"),
		).
		GroupBy(goqu.I("b.book_id"), goqu.I("b.title"), goqu.I("b.authors")).
		Order(goqu.I("rental_count").Desc(), goqu.I("b.title").Asc()).
		Prepared(true).
		ToSQL()
	if err != nil {
		return nil, err
	}

	rows := []models.TopRental{}
	if err := sqlx.SelectContext(ctx, s.q, &rows, query, args...); err != nil {
		return nil, err
	}

	return rows, nil
}

func (s *pgStore) TopRentalsByUsername(ctx context.Context) ([]models.TopRentalByUser, error) {
	query, args, err := goqu.Dialect(dialectPostgres).
		From(goqu.T("rental_history").As("h")).
		Join(goqu.T("books").As("b"), goqu.On(goqu.I("b.id").Eq(goqu.I("h.book_pk")))).
		Join(goqu.T("users").As("u"), goqu.On(goqu.I("u.id").Eq(goqu.I("h.user_id")))).
		Select(
			goqu.I("b.title"),
			goqu.I("u.user_name"),
			goqu.COUNT(goqu.I("h.id")).As("rental_count"),
		).
		GroupBy(goqu.I("b.title"), goqu.I("u.user_name")).
		Order(goqu.I("rental_count").Desc(), goqu.I("b.title").Asc(), goqu.I("u.user_name").Asc()).
		Prepared(true).
		ToSQL()
	if err != nil {
		return nil, err
	}

	rows := []models.TopRentalByUser{}
	if err := sqlx.SelectContext(ctx, s.q, &rows, query, args...); err != nil {
		return nil, err
	}

	return rows, nil
}

// isUniqueViolation recognises SQLSTATE 23505 from either driver
func isUniqueViolation(err error) bool {
	if err == nil {
		return false
	}

	var pqErr *pq.Error
	if errors.As(err, &pqErr) {
		return string(pqErr.Code) == sqlStateUniqueViol
	}

	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		return pgErr.Code == sqlStateUniqueViol
	}

	return false
}
