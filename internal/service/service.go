package service

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"github.com/rongwang/library-server/internal/models"
	"github.com/rongwang/library-server/internal/notify"
	"github.com/rongwang/library-server/internal/repository"
)

// Service defines all the business logic operations
type Service interface {
	// Rentals
	ToggleRentalStatus(ctx context.Context, bookID int64) ([]models.BookStatusChange, error)

	// Wishlists
	AddToWishlist(ctx context.Context, userName string, bookID int64) (*models.WishlistResult, error)
	RemoveFromWishlist(ctx context.Context, userName string, bookID int64) error

	// Catalog
	SearchBooks(ctx context.Context, title, author string) ([]models.BookSearchResult, error)

	// Users
	CreateUser(ctx context.Context, userName, userType string) (*models.CreateUserResponse, error)

	// Reports
	AmountReport(ctx context.Context, status string) ([]models.AmountReportRow, error)
	TopRentals(ctx context.Context) ([]models.TopRental, error)
	TopRentalsByUsername(ctx context.Context) ([]models.TopRentalByUser, error)

	// Maintenance
	ReloadCatalog(ctx context.Context, books []models.Book) (*models.LoadResult, error)
	ReloadUsers(ctx context.Context, users []models.User) (*models.LoadResult, error)
	Ping(ctx context.Context) error
}

// DefaultService implements the Service interface
type DefaultService struct {
	repo     repository.Repository
	notifier notify.Notifier
	logger   zerolog.Logger
	now      func() time.Time

	// maintenance is held exclusively by bulk reloads and shared by
	// everything that writes rentals or wishlists.
	maintenance sync.RWMutex
}

// NewDefaultService creates a new DefaultService
func NewDefaultService(repo repository.Repository, notifier notify.Notifier, logger zerolog.Logger) Service {
	return newDefaultService(repo, notifier, logger)
}

func newDefaultService(repo repository.Repository, notifier notify.Notifier, logger zerolog.Logger) *DefaultService {
	if notifier == nil {
		notifier = notify.Nop{}
	}
	return &DefaultService{
		repo:     repo,
		notifier: notifier,
		logger:   logger.With().Str("component", "service").Logger(),
		now:      time.Now,
	}
}

// outbox collects notifications inside a transaction. They are sent only
// after the transaction commits.
type outbox []notify.Notification

func (o *outbox) add(userName, bookTitle string) {
	*o = append(*o, notify.Notification{UserName: userName, BookTitle: bookTitle})
}

// flush runs after commit, so a cancelled request must not stop delivery.
func (s *DefaultService) flush(ctx context.Context, out outbox) {
	ctx = context.WithoutCancel(ctx)
	for _, n := range out {
		if err := s.notifier.Notify(ctx, n.UserName, n.BookTitle); err != nil {
			s.logger.Warn().Err(err).
				Str("user_name", n.UserName).
				Str("book_title", n.BookTitle).
				Msg("error sending notification")
		}
	}
}

// Rental operations

// ToggleRentalStatus returns a borrowed book or grants an available one to
// the first user on its wishlist.
func (s *DefaultService) ToggleRentalStatus(ctx context.Context, bookID int64) ([]models.BookStatusChange, error) {
	s.maintenance.RLock()
	defer s.maintenance.RUnlock()

	var (
		rows   []models.RentalWithBook
		status models.BookStatus
		out    outbox
	)

	err := s.repo.WithTx(ctx, func(tx repository.Store) error {
		rows, out = nil, nil

		book, err := tx.LockBookByBookID(ctx, bookID)
		if err != nil {
			return fmt.Errorf("error getting book: %w", err)
		}
		if book == nil {
			return NotFound("Book not found")
		}

		rental, err := tx.GetActiveRental(ctx, book.ID)
		if err != nil {
			return fmt.Errorf("error getting rental: %w", err)
		}

		if rental != nil {
			status = models.BookStatusAvailable
			return s.returnBook(ctx, tx, book, rental, &out, &rows)
		}
		status = models.BookStatusBorrowed
		return s.grantBook(ctx, tx, book, &out, &rows)
	})
	if err != nil {
		return nil, err
	}

	s.flush(ctx, out)

	if len(rows) == 0 {
		return nil, NotFound("No rentals found")
	}

	changes := make([]models.BookStatusChange, 0, len(rows))
	for _, r := range rows {
		changes = append(changes, models.BookStatusChange{
			BookID:     r.BookID,
			BookTitle:  r.BookTitle,
			BookStatus: status,
		})
	}
	return changes, nil
}

// returnBook ends the active rental and tells every wishlister the book is back
func (s *DefaultService) returnBook(
	ctx context.Context,
	tx repository.Store,
	book *models.Book,
	rental *models.Rental,
	out *outbox,
	rows *[]models.RentalWithBook,
) error {
	if err := tx.DeleteRental(ctx, rental); err != nil {
		return fmt.Errorf("error deleting rental: %w", err)
	}

	entries, err := tx.ListWishlistEntriesForBook(ctx, book.ID)
	if err != nil {
		return fmt.Errorf("error getting wishlists: %w", err)
	}
	for _, e := range entries {
		out.add(e.UserName, book.Title)
	}

	*rows, err = tx.ListRentalsWithBook(ctx, book.ID)
	if err != nil {
		return fmt.Errorf("error getting rentals: %w", err)
	}
	return nil
}

// grantBook rents the book to the head of its wishlist
func (s *DefaultService) grantBook(
	ctx context.Context,
	tx repository.Store,
	book *models.Book,
	out *outbox,
	rows *[]models.RentalWithBook,
) error {
	entries, err := tx.ListWishlistEntriesForBook(ctx, book.ID)
	if err != nil {
		return fmt.Errorf("error getting wishlists: %w", err)
	}
	if len(entries) == 0 {
		return NotFound(fmt.Sprintf("No wishlists found being linked to %s", book.Title))
	}

	head := entries[0]
	rental := &models.Rental{
		UserID:    head.UserID,
		BookPK:    book.ID,
		CreatedAt: s.now().UTC(),
	}
	if err := tx.CreateRental(ctx, rental); err != nil {
		return fmt.Errorf("error creating rental: %w", err)
	}
	if err := tx.DeleteWishlistEntry(ctx, head.ID); err != nil {
		return fmt.Errorf("error deleting wishlist: %w", err)
	}
	out.add(head.UserName, book.Title)

	*rows, err = tx.ListRentalsWithBook(ctx, book.ID)
	if err != nil {
		return fmt.Errorf("error getting rentals: %w", err)
	}
	return nil
}

// Wishlist operations

func (s *DefaultService) AddToWishlist(ctx context.Context, userName string, bookID int64) (*models.WishlistResult, error) {
	s.maintenance.RLock()
	defer s.maintenance.RUnlock()

	var (
		result *models.WishlistResult
		out    outbox
	)

	err := s.repo.WithTx(ctx, func(tx repository.Store) error {
		out = nil

		user, book, err := s.lookup(ctx, tx, userName, bookID)
		if err != nil {
			return err
		}

		existing, err := tx.GetWishlistEntry(ctx, user.ID, book.ID)
		if err != nil {
			return fmt.Errorf("error getting wishlist: %w", err)
		}
		if existing != nil {
			result = &models.WishlistResult{
				Outcome: models.WishlistAlreadyWishlisted,
				Message: fmt.Sprintf("Given user '%s' already has this book in a wishlist", user.UserName),
			}
			return nil
		}

		others, err := tx.ListWishlistEntriesForBook(ctx, book.ID)
		if err != nil {
			return fmt.Errorf("error getting wishlists: %w", err)
		}
		if len(others) > 0 {
			result = &models.WishlistResult{
				Outcome: models.WishlistHeldByOther,
				Message: "Book already in wishlist of other user",
			}
			return nil
		}

		entry := &models.WishlistEntry{UserID: user.ID, BookPK: book.ID, CreatedAt: s.now().UTC()}
		if err := tx.CreateWishlistEntry(ctx, entry); err != nil {
			return fmt.Errorf("error creating wishlist: %w", err)
		}
		out.add(user.UserName, book.Title)

		result = &models.WishlistResult{
			Outcome: models.WishlistCreated,
			Message: fmt.Sprintf("Book '%s' added to user %s's wishlist", book.Title, user.UserName),
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	s.flush(ctx, out)
	return result, nil
}

func (s *DefaultService) RemoveFromWishlist(ctx context.Context, userName string, bookID int64) error {
	s.maintenance.RLock()
	defer s.maintenance.RUnlock()

	var out outbox

	err := s.repo.WithTx(ctx, func(tx repository.Store) error {
		out = nil

		user, book, err := s.lookup(ctx, tx, userName, bookID)
		if err != nil {
			return err
		}

		entry, err := tx.GetWishlistEntry(ctx, user.ID, book.ID)
		if err != nil {
			return fmt.Errorf("error getting wishlist: %w", err)
		}
		if entry == nil {
			return NotFound(fmt.Sprintf("Given user '%s' does not have book %s in a wishlist", user.UserName, book.Title))
		}

		if err := tx.DeleteWishlistEntry(ctx, entry.ID); err != nil {
			return fmt.Errorf("error deleting wishlist: %w", err)
		}
		out.add(user.UserName, book.Title)
		return nil
	})
	if err != nil {
		return err
	}

	s.flush(ctx, out)
	return nil
}

// lookup resolves the user and locks the book for a wishlist transaction
func (s *DefaultService) lookup(
	ctx context.Context,
	tx repository.Store,
	userName string,
	bookID int64,
) (*models.User, *models.Book, error) {
	user, err := tx.GetUserByName(ctx, userName)
	if err != nil {
		return nil, nil, fmt.Errorf("error getting user: %w", err)
	}
	if user == nil {
		return nil, nil, NotFound("User not found")
	}

	book, err := tx.LockBookByBookID(ctx, bookID)
	if err != nil {
		return nil, nil, fmt.Errorf("error getting book: %w", err)
	}
	if book == nil {
		return nil, nil, NotFound("Book not found")
	}
	return user, book, nil
}

// Catalog operations

func (s *DefaultService) SearchBooks(ctx context.Context, title, author string) ([]models.BookSearchResult, error) {
	title = strings.TrimSpace(title)
	author = strings.TrimSpace(author)
	if title == "" && author == "" {
		return nil, InvalidArgument("At least one of 'title' or 'author' query parameters is required")
	}

	results, err := s.repo.SearchBooks(ctx, title, author)
	if err != nil {
		return nil, fmt.Errorf("error searching books: %w", err)
	}
	if results == nil {
		results = []models.BookSearchResult{}
	}
	return results, nil
}

// User operations

func (s *DefaultService) CreateUser(ctx context.Context, userName, userType string) (*models.CreateUserResponse, error) {
	userName = strings.TrimSpace(userName)
	if userName == "" {
		return nil, InvalidArgument("User name is required")
	}

	typ, err := models.ParseUserType(userType)
	if err != nil {
		return nil, InvalidArgument("User type is not supported")
	}

	user := &models.User{UserName: userName, UserType: typ, CreatedAt: s.now().UTC()}
	if err := s.repo.CreateUser(ctx, user); err != nil {
		if errors.Is(err, repository.ErrDuplicate) {
			return nil, Conflict("Username already exists")
		}
		return nil, fmt.Errorf("error creating user: %w", err)
	}

	return &models.CreateUserResponse{
		Message: fmt.Sprintf("User '%s' created successfully", user.UserName),
		UserID:  user.ID,
	}, nil
}

// Report operations

// AmountReport lists every currently borrowed book with the number of whole
// days since it was rented. The status is only validated: any supported
// status yields the borrowed books.
func (s *DefaultService) AmountReport(ctx context.Context, status string) ([]models.AmountReportRow, error) {
	st, err := models.ParseBookStatus(status)
	if err != nil {
		return nil, InvalidArgument(fmt.Sprintf("Book status '%s' is not supported", status))
	}

	books, err := s.repo.ListRentedBooks(ctx)
	if err != nil {
		return nil, fmt.Errorf("error getting rented books: %w", err)
	}
	if len(books) == 0 {
		return nil, NotFound(fmt.Sprintf("No books found with given status of %s", st))
	}

	now := s.now()
	rows := make([]models.AmountReportRow, 0, len(books))
	for _, b := range books {
		days := 0
		if b.RentedAt != nil {
			days = int(now.Sub(*b.RentedAt) / (24 * time.Hour))
			if days < 0 {
				days = 0
			}
		}
		rows = append(rows, models.AmountReportRow{BookID: b.BookID, Title: b.Title, DaysRented: days})
	}
	return rows, nil
}

func (s *DefaultService) TopRentals(ctx context.Context) ([]models.TopRental, error) {
	rows, err := s.repo.TopRentals(ctx)
	if err != nil {
		return nil, fmt.Errorf("error getting top rentals: %w", err)
	}
	if rows == nil {
		rows = []models.TopRental{}
	}
	return rows, nil
}

func (s *DefaultService) TopRentalsByUsername(ctx context.Context) ([]models.TopRentalByUser, error) {
	rows, err := s.repo.TopRentalsByUsername(ctx)
	if err != nil {
		return nil, fmt.Errorf("error getting top rentals by username: %w", err)
	}
	if rows == nil {
		rows = []models.TopRentalByUser{}
	}
	return rows, nil
}

// Maintenance operations

// ReloadCatalog replaces the whole catalog. Wishlists and rentals that
// referenced the old rows are dropped with it.
func (s *DefaultService) ReloadCatalog(ctx context.Context, books []models.Book) (*models.LoadResult, error) {
	s.maintenance.Lock()
	defer s.maintenance.Unlock()

	var inserted int
	err := s.repo.WithTx(ctx, func(tx repository.Store) error {
		n, err := tx.ReplaceBooks(ctx, books)
		inserted = n
		return err
	})
	if err != nil {
		return nil, fmt.Errorf("error reloading catalog: %w", err)
	}

	s.logger.Info().Int("books", inserted).Msg("catalog reloaded")
	return &models.LoadResult{Kind: "books", Inserted: inserted}, nil
}

// ReloadUsers replaces every user. Wishlists and rentals go with them.
func (s *DefaultService) ReloadUsers(ctx context.Context, users []models.User) (*models.LoadResult, error) {
	s.maintenance.Lock()
	defer s.maintenance.Unlock()

	var inserted int
	err := s.repo.WithTx(ctx, func(tx repository.Store) error {
		n, err := tx.ReplaceUsers(ctx, users)
		inserted = n
		return err
	})
	if err != nil {
		if errors.Is(err, repository.ErrDuplicate) {
			return nil, Conflict("User names must be unique")
		}
		return nil, fmt.Errorf("error reloading users: %w", err)
	}

	s.logger.Info().Int("users", inserted).Msg("users reloaded")
	return &models.LoadResult{Kind: "users", Inserted: inserted}, nil
}

func (s *DefaultService) Ping(ctx context.Context) error {
	return s.repo.Ping(ctx)
}
