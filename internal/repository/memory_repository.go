package repository

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/rongwang/library-server/internal/models"
)

// MemoryRepository is an in-process Repository. Transactions run one at a
// time against a copy of the state that replaces the live state on commit.
type MemoryRepository struct {
	memStore
	lock sync.RWMutex
}

type memState struct {
	books    []models.Book
	users    []models.User
	wishlist []models.WishlistEntry
	rentals  []models.Rental
	history  []models.RentalHistory

	nextBookID     int64
	nextUserID     int64
	nextWishlistID int64
	nextRentalID   int64
	nextHistoryID  int64
}

func (st *memState) clone() *memState {
	c := *st
	c.books = append([]models.Book(nil), st.books...)
	c.users = append([]models.User(nil), st.users...)
	c.wishlist = append([]models.WishlistEntry(nil), st.wishlist...)
	c.rentals = append([]models.Rental(nil), st.rentals...)
	c.history = append([]models.RentalHistory(nil), st.history...)
	return &c
}

// memStore operates on a state. mu is nil inside a transaction, where the
// repository lock is already held.
type memStore struct {
	st *memState
	mu *sync.RWMutex
}

// NewMemoryRepository creates an empty in-memory repository
func NewMemoryRepository() *MemoryRepository {
	r := &MemoryRepository{}
	r.memStore = memStore{st: &memState{}, mu: &r.lock}
	return r
}

func (r *MemoryRepository) WithTx(ctx context.Context, fn func(tx Store) error) error {
	r.lock.Lock()
	defer r.lock.Unlock()

	if err := ctx.Err(); err != nil {
		return err
	}

	work := r.st.clone()
	if err := fn(&memStore{st: work}); err != nil {
		return err
	}

	r.st = work
	return nil
}

func (r *MemoryRepository) Ping(ctx context.Context) error {
	return ctx.Err()
}

func (r *MemoryRepository) Close() error {
	return nil
}

func (s *memStore) read() func() {
	if s.mu == nil {
		return func() {}
	}
	s.mu.RLock()
	return s.mu.RUnlock
}

func (s *memStore) write() func() {
	if s.mu == nil {
		return func() {}
	}
	s.mu.Lock()
	return s.mu.Unlock
}

// Book repository methods
func (s *memStore) GetBookByBookID(ctx context.Context, bookID int64) (*models.Book, error) {
	defer s.read()()
	return s.st.findBook(bookID), nil
}

func (s *memStore) LockBookByBookID(ctx context.Context, bookID int64) (*models.Book, error) {
	return s.GetBookByBookID(ctx, bookID)
}

func (st *memState) findBook(bookID int64) *models.Book {
	for _, b := range st.books {
		if b.BookID == bookID {
			book := b
			return &book
		}
	}
	return nil
}

func (st *memState) bookByPK(pk int64) *models.Book {
	for _, b := range st.books {
		if b.ID == pk {
			book := b
			return &book
		}
	}
	return nil
}

func (st *memState) userByID(id int64) *models.User {
	for _, u := range st.users {
		if u.ID == id {
			user := u
			return &user
		}
	}
	return nil
}

func (s *memStore) SearchBooks(ctx context.Context, title, author string) ([]models.BookSearchResult, error) {
	defer s.read()()

	title, author = strings.ToLower(title), strings.ToLower(author)
	seen := make(map[int64]bool)
	results := []models.BookSearchResult{}
	for _, b := range s.st.books {
		matched := (title != "" && strings.Contains(strings.ToLower(b.Title), title)) ||
			(author != "" && strings.Contains(strings.ToLower(b.Authors), author))
		if !matched || seen[b.BookID] {
			continue
		}
		seen[b.BookID] = true
		results = append(results, models.BookSearchResult{
			Book:         b,
			IsWishlisted: s.st.hasWishlist(b.ID),
		})
	}

	sort.SliceStable(results, func(i, j int) bool {
		return results[i].BookID < results[j].BookID
	})
	return results, nil
}

func (st *memState) hasWishlist(bookPK int64) bool {
	for _, w := range st.wishlist {
		if w.BookPK == bookPK {
			return true
		}
	}
	return false
}

func (s *memStore) ReplaceBooks(ctx context.Context, books []models.Book) (int, error) {
	defer s.write()()

	s.st.books = nil
	s.st.wishlist = nil
	s.st.rentals = nil
	s.st.history = nil
	s.st.nextBookID = 0
	for _, b := range books {
		s.st.nextBookID++
		b.ID = s.st.nextBookID
		s.st.books = append(s.st.books, b)
	}
	return len(books), nil
}

// User repository methods
func (s *memStore) GetUserByName(ctx context.Context, userName string) (*models.User, error) {
	defer s.read()()
	for _, u := range s.st.users {
		if u.UserName == userName {
			user := u
			return &user, nil
		}
	}
	return nil, nil
}

func (s *memStore) CreateUser(ctx context.Context, user *models.User) error {
	defer s.write()()
	return s.st.insertUser(user)
}

func (st *memState) insertUser(user *models.User) error {
	for _, u := range st.users {
		if u.UserName == user.UserName {
			return fmt.Errorf("user %q: %w", user.UserName, ErrDuplicate)
		}
	}
	if user.CreatedAt.IsZero() {
		user.CreatedAt = time.Now().UTC()
	}
	st.nextUserID++
	user.ID = st.nextUserID
	st.users = append(st.users, *user)
	return nil
}

func (s *memStore) ReplaceUsers(ctx context.Context, users []models.User) (int, error) {
	defer s.write()()

	s.st.users = nil
	s.st.wishlist = nil
	s.st.rentals = nil
	s.st.history = nil
	s.st.nextUserID = 0
	for i := range users {
		u := users[i]
		if err := s.st.insertUser(&u); err != nil {
			return 0, fmt.Errorf("users: %w", ErrDuplicate)
		}
	}
	return len(users), nil
}

// Wishlist repository methods
func (s *memStore) GetWishlistEntry(ctx context.Context, userID, bookPK int64) (*models.WishlistEntry, error) {
	defer s.read()()
	for _, w := range s.st.wishlist {
		if w.UserID == userID && w.BookPK == bookPK {
			entry := w
			return &entry, nil
		}
	}
	return nil, nil
}

func (s *memStore) ListWishlistEntriesForBook(ctx context.Context, bookPK int64) ([]models.WishlistEntryWithUser, error) {
	defer s.read()()

	var entries []models.WishlistEntryWithUser
	for _, w := range s.st.wishlist {
		if w.BookPK != bookPK {
			continue
		}
		entry := models.WishlistEntryWithUser{WishlistEntry: w}
		if u := s.st.userByID(w.UserID); u != nil {
			entry.UserName = u.UserName
		}
		entries = append(entries, entry)
	}
	return entries, nil
}

func (s *memStore) CreateWishlistEntry(ctx context.Context, entry *models.WishlistEntry) error {
	defer s.write()()

	for _, w := range s.st.wishlist {
		if w.UserID == entry.UserID && w.BookPK == entry.BookPK {
			return fmt.Errorf("wishlist entry: %w", ErrDuplicate)
		}
	}
	if entry.CreatedAt.IsZero() {
		entry.CreatedAt = time.Now().UTC()
	}
	s.st.nextWishlistID++
	entry.ID = s.st.nextWishlistID
	s.st.wishlist = append(s.st.wishlist, *entry)
	return nil
}

func (s *memStore) DeleteWishlistEntry(ctx context.Context, entryID int64) error {
	defer s.write()()

	kept := s.st.wishlist[:0:0]
	for _, w := range s.st.wishlist {
		if w.ID != entryID {
			kept = append(kept, w)
		}
	}
	s.st.wishlist = kept
	return nil
}

// Rental repository methods
func (s *memStore) GetActiveRental(ctx context.Context, bookPK int64) (*models.Rental, error) {
	defer s.read()()
	for _, r := range s.st.rentals {
		if r.BookPK == bookPK {
			rental := r
			return &rental, nil
		}
	}
	return nil, nil
}

func (s *memStore) ListRentalsWithBook(ctx context.Context, bookPK int64) ([]models.RentalWithBook, error) {
	defer s.read()()

	book := s.st.bookByPK(bookPK)
	if book == nil {
		return nil, nil
	}

	var rentals []models.RentalWithBook
	for _, r := range s.st.rentals {
		if r.BookPK == bookPK {
			rentals = append(rentals, models.RentalWithBook{
				Rental:    r,
				BookID:    book.BookID,
				BookTitle: book.Title,
			})
		}
	}
	return rentals, nil
}

func (s *memStore) CreateRental(ctx context.Context, rental *models.Rental) error {
	defer s.write()()

	for _, r := range s.st.rentals {
		if r.BookPK == rental.BookPK {
			return fmt.Errorf("rental for book %d: %w", rental.BookPK, ErrDuplicate)
		}
	}
	if rental.CreatedAt.IsZero() {
		rental.CreatedAt = time.Now().UTC()
	}
	s.st.nextRentalID++
	rental.ID = s.st.nextRentalID
	s.st.rentals = append(s.st.rentals, *rental)

	s.st.nextHistoryID++
	s.st.history = append(s.st.history, models.RentalHistory{
		ID:       s.st.nextHistoryID,
		UserID:   rental.UserID,
		BookPK:   rental.BookPK,
		RentedAt: rental.CreatedAt,
	})
	return nil
}

func (s *memStore) DeleteRental(ctx context.Context, rental *models.Rental) error {
	defer s.write()()

	kept := s.st.rentals[:0:0]
	for _, r := range s.st.rentals {
		if r.ID != rental.ID {
			kept = append(kept, r)
		}
	}
	s.st.rentals = kept

	now := time.Now().UTC()
	for i, h := range s.st.history {
		if h.UserID == rental.UserID && h.BookPK == rental.BookPK && h.ReturnedAt == nil {
			returned := now
			s.st.history[i].ReturnedAt = &returned
		}
	}
	return nil
}

// Report repository methods
func (s *memStore) ListRentedBooks(ctx context.Context) ([]models.RentedBookRow, error) {
	defer s.read()()

	rentals := append([]models.Rental(nil), s.st.rentals...)
	sort.SliceStable(rentals, func(i, j int) bool {
		return rentals[i].CreatedAt.Before(rentals[j].CreatedAt)
	})

	var rows []models.RentedBookRow
	for _, r := range rentals {
		book := s.st.bookByPK(r.BookPK)
		if book == nil {
			continue
		}
		rentedAt := r.CreatedAt
		rows = append(rows, models.RentedBookRow{BookID: book.BookID, Title: book.Title, RentedAt: &rentedAt})
	}
	return rows, nil
}

func (s *memStore) TopRentals(ctx context.Context) ([]models.TopRental, error) {
	defer s.read()()

	type key struct {
		bookID         int64
		title, authors string
	}
	counts := make(map[key]int64)
	for _, h := range s.st.history {
		if book := s.st.bookByPK(h.BookPK); book != nil {
			counts[key{book.BookID, book.Title, book.Authors}]++
		}
	}

	rows := []models.TopRental{}
	for k, n := range counts {
		rows = append(rows, models.TopRental{Title: k.title, Authors: k.authors, RentalCount: n})
	}
	sort.Slice(rows, func(i, j int) bool {
		if rows[i].RentalCount != rows[j].RentalCount {
			return rows[i].RentalCount > rows[j].RentalCount
		}
		if rows[i].Title != rows[j].Title {
			return rows[i].Title < rows[j].Title
		}
		return rows[i].Authors < rows[j].Authors
	})
	return rows, nil
}

func (s *memStore) TopRentalsByUsername(ctx context.Context) ([]models.TopRentalByUser, error) {
	defer s.read()()

	type key struct{ title, userName string }
	counts := make(map[key]int64)
	for _, h := range s.st.history {
		book, user := s.st.bookByPK(h.BookPK), s.st.userByID(h.UserID)
		if book != nil && user != nil {
			counts[key{book.Title, user.UserName}]++
		}
	}

	rows := []models.TopRentalByUser{}
	for k, n := range counts {
		rows = append(rows, models.TopRentalByUser{Title: k.title, UserName: k.userName, RentalCount: n})
	}
	sort.Slice(rows, func(i, j int) bool {
		if rows[i].RentalCount != rows[j].RentalCount {
			return rows[i].RentalCount > rows[j].RentalCount
		}
		if rows[i].Title != rows[j].Title {
			return rows[i].Title < rows[j].Title
		}
		return rows[i].UserName < rows[j].UserName
	})
	return rows, nil
}
