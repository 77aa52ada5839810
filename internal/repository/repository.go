package repository

import (
	"context"
	"errors"

	"github.com/rongwang/library-server/internal/models"
)

// ErrDuplicate is returned when an insert collides with a unique constraint
var ErrDuplicate = errors.New("duplicate record")

// Store defines the data operations. Inside Repository.WithTx every call
// runs on the same transaction.
type Store interface {
	// Book operations
	GetBookByBookID(ctx context.Context, bookID int64) (*models.Book, error)
	LockBookByBookID(ctx context.Context, bookID int64) (*models.Book, error)
	SearchBooks(ctx context.Context, title, author string) ([]models.BookSearchResult, error)
	ReplaceBooks(ctx context.Context, books []models.Book) (int, error)

	// User operations
	GetUserByName(ctx context.Context, userName string) (*models.User, error)
	CreateUser(ctx context.Context, user *models.User) error
	ReplaceUsers(ctx context.Context, users []models.User) (int, error)

	// Wishlist operations
	GetWishlistEntry(ctx context.Context, userID, bookPK int64) (*models.WishlistEntry, error)
	ListWishlistEntriesForBook(ctx context.Context, bookPK int64) ([]models.WishlistEntryWithUser, error)
	CreateWishlistEntry(ctx context.Context, entry *models.WishlistEntry) error
	DeleteWishlistEntry(ctx context.Context, entryID int64) error

	// Rental operations. CreateRental also opens a rental_history row and
	// DeleteRental closes it.
	GetActiveRental(ctx context.Context, bookPK int64) (*models.Rental, error)
	ListRentalsWithBook(ctx context.Context, bookPK int64) ([]models.RentalWithBook, error)
	CreateRental(ctx context.Context, rental *models.Rental) error
	DeleteRental(ctx context.Context, rental *models.Rental) error

	// Report operations
	ListRentedBooks(ctx context.Context) ([]models.RentedBookRow, error)
	TopRentals(ctx context.Context) ([]models.TopRental, error)
	TopRentalsByUsername(ctx context.Context) ([]models.TopRentalByUser, error)
}

// Repository is a Store that can also open transactions
type Repository interface {
	Store

	// WithTx runs fn in one transaction. It commits when fn returns nil and
	// rolls back otherwise.
	WithTx(ctx context.Context, fn func(tx Store) error) error
	Ping(ctx context.Context) error
	Close() error
}
