package service

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/rongwang/library-server/internal/models"
	"github.com/rongwang/library-server/internal/notify"
	"github.com/rongwang/library-server/internal/repository"
)

type fixture struct {
	svc  *DefaultService
	repo *repository.MemoryRepository
	rec  *notify.Recorder
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	ctx := context.Background()

	repo := repository.NewMemoryRepository()
	_, err := repo.ReplaceBooks(ctx, []models.Book{
		{BookID: 1, ISBN: "9780132350884", Authors: "Robert C. Martin", PublicationYear: 2008, Title: "Clean Code", Language: "en"},
		{BookID: 2, ISBN: "9780201485677", Authors: "Martin Fowler", PublicationYear: 1999, Title: "Refactoring", Language: "en"},
		{BookID: 3, ISBN: "9780201633610", Authors: "Erich Gamma", PublicationYear: 1994, Title: "Design Patterns", Language: "en"},
	})
	require.NoError(t, err)
	_, err = repo.ReplaceUsers(ctx, []models.User{
		{UserName: "John", UserType: models.UserTypeUser},
		{UserName: "Anna", UserType: models.UserTypeStaff},
		{UserName: "Mark", UserType: models.UserTypeUser},
	})
	require.NoError(t, err)

	rec := &notify.Recorder{}
	return &fixture{
		svc:  newDefaultService(repo, rec, zerolog.Nop()),
		repo: repo,
		rec:  rec,
	}
}

// enqueue writes a wishlist entry directly, bypassing the one-entry-per-book rule
func (f *fixture) enqueue(t *testing.T, userName string, bookID int64) {
	t.Helper()
	ctx := context.Background()
	user, err := f.repo.GetUserByName(ctx, userName)
	require.NoError(t, err)
	book, err := f.repo.GetBookByBookID(ctx, bookID)
	require.NoError(t, err)
	require.NoError(t, f.repo.CreateWishlistEntry(ctx, &models.WishlistEntry{UserID: user.ID, BookPK: book.ID}))
}

func (f *fixture) rentals(t *testing.T, bookID int64) []models.RentalWithBook {
	t.Helper()
	ctx := context.Background()
	book, err := f.repo.GetBookByBookID(ctx, bookID)
	require.NoError(t, err)
	rows, err := f.repo.ListRentalsWithBook(ctx, book.ID)
	require.NoError(t, err)
	return rows
}

func (f *fixture) wishlist(t *testing.T, bookID int64) []models.WishlistEntryWithUser {
	t.Helper()
	ctx := context.Background()
	book, err := f.repo.GetBookByBookID(ctx, bookID)
	require.NoError(t, err)
	entries, err := f.repo.ListWishlistEntriesForBook(ctx, book.ID)
	require.NoError(t, err)
	return entries
}

func requireKind(t *testing.T, err error, kind Kind, msg string) {
	t.Helper()
	require.Error(t, err)
	assert.Equal(t, kind, KindOf(err))
	if msg != "" {
		assert.Equal(t, msg, err.Error())
	}
}

func TestToggleRentalStatusUnknownBook(t *testing.T) {
	f := newFixture(t)

	_, err := f.svc.ToggleRentalStatus(context.Background(), 99)
	requireKind(t, err, KindNotFound, "Book not found")
}

func TestToggleRentalStatusWithoutWishlist(t *testing.T) {
	f := newFixture(t)

	_, err := f.svc.ToggleRentalStatus(context.Background(), 1)
	requireKind(t, err, KindNotFound, "No wishlists found being linked to Clean Code")

	assert.Empty(t, f.rentals(t, 1))
	assert.Empty(t, f.rec.Sent())
}

func TestToggleRentalStatusGrantThenReturn(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	res, err := f.svc.AddToWishlist(ctx, "John", 1)
	require.NoError(t, err)
	assert.Equal(t, models.WishlistCreated, res.Outcome)
	f.rec.Reset()

	changes, err := f.svc.ToggleRentalStatus(ctx, 1)
	require.NoError(t, err)
	assert.Equal(t, []models.BookStatusChange{
		{BookID: 1, BookTitle: "Clean Code", BookStatus: models.BookStatusBorrowed},
	}, changes)
	assert.Empty(t, f.wishlist(t, 1), "the granted entry is consumed")
	assert.Len(t, f.rentals(t, 1), 1)
	assert.Equal(t, []notify.Notification{{UserName: "John", BookTitle: "Clean Code"}}, f.rec.Sent())

	res, err = f.svc.AddToWishlist(ctx, "Anna", 1)
	require.NoError(t, err)
	assert.Equal(t, models.WishlistCreated, res.Outcome)
	f.rec.Reset()

	_, err = f.svc.ToggleRentalStatus(ctx, 1)
	requireKind(t, err, KindNotFound, "No rentals found")

	assert.Empty(t, f.rentals(t, 1), "the return is committed")
	assert.Len(t, f.wishlist(t, 1), 1, "returns do not consume wishlist entries")
	assert.Equal(t, []notify.Notification{{UserName: "Anna", BookTitle: "Clean Code"}}, f.rec.Sent())
}

func TestToggleRentalStatusGrantsHeadOfQueue(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	f.enqueue(t, "Anna", 2)
	f.enqueue(t, "John", 2)

	_, err := f.svc.ToggleRentalStatus(ctx, 2)
	require.NoError(t, err)

	entries := f.wishlist(t, 2)
	require.Len(t, entries, 1)
	assert.Equal(t, "John", entries[0].UserName)

	byUser, err := f.svc.TopRentalsByUsername(ctx)
	require.NoError(t, err)
	require.Len(t, byUser, 1)
	assert.Equal(t, "Anna", byUser[0].UserName)
	assert.Equal(t, []notify.Notification{{UserName: "Anna", BookTitle: "Refactoring"}}, f.rec.Sent())

	f.rec.Reset()
	_, err = f.svc.ToggleRentalStatus(ctx, 2)
	requireKind(t, err, KindNotFound, "No rentals found")
	assert.Equal(t, []notify.Notification{{UserName: "John", BookTitle: "Refactoring"}}, f.rec.Sent())
}

func TestToggleRentalStatusNotificationFailureKeepsCommit(t *testing.T) {
	f := newFixture(t)
	f.rec.Err = errors.New("sink down")
	ctx := context.Background()

	f.enqueue(t, "John", 1)

	changes, err := f.svc.ToggleRentalStatus(ctx, 1)
	require.NoError(t, err)
	require.Len(t, changes, 1)
	assert.Len(t, f.rentals(t, 1), 1)
	assert.Len(t, f.rec.Sent(), 1)
}

// cancellingNotifier cancels the request context on its first call, as a
// client disconnect would, and records each call's context error.
type cancellingNotifier struct {
	cancel context.CancelFunc
	errs   []error
}

func (n *cancellingNotifier) Notify(ctx context.Context, _, _ string) error {
	n.cancel()
	n.errs = append(n.errs, ctx.Err())
	return ctx.Err()
}

func TestToggleRentalStatusNotifiesAfterClientDisconnect(t *testing.T) {
	f := newFixture(t)
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	n := &cancellingNotifier{cancel: cancel}
	f.svc.notifier = n

	f.enqueue(t, "Anna", 2)
	_, err := f.svc.ToggleRentalStatus(ctx, 2)
	require.NoError(t, err)
	require.Error(t, ctx.Err())

	f.enqueue(t, "John", 2)
	f.enqueue(t, "Mark", 2)
	returnCtx, cancelReturn := context.WithCancel(context.Background())
	defer cancelReturn()
	n.cancel = cancelReturn

	_, err = f.svc.ToggleRentalStatus(returnCtx, 2)
	requireKind(t, err, KindNotFound, "No rentals found")
	require.Error(t, returnCtx.Err())

	assert.Equal(t, []error{nil, nil, nil}, n.errs, "every wishlister is notified after the disconnect")
}

func TestToggleRentalStatusConcurrent(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	for _, name := range []string{"John", "Anna", "Mark"} {
		f.enqueue(t, name, 3)
	}

	var wg sync.WaitGroup
	errs := make(chan error, 20)
	for i := 0; i < 20; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			changes, err := f.svc.ToggleRentalStatus(ctx, 3)
			if err != nil {
				if KindOf(err) != KindNotFound {
					errs <- err
				}
				return
			}
			if len(changes) != 1 {
				errs <- errors.New("more than one rental reported")
			}
		}()
	}
	wg.Wait()
	close(errs)

	for err := range errs {
		t.Errorf("unexpected toggle outcome: %v", err)
	}
	assert.LessOrEqual(t, len(f.rentals(t, 3)), 1)

	top, err := f.svc.TopRentals(ctx)
	require.NoError(t, err)
	require.Len(t, top, 1)
	assert.Equal(t, int64(3), top[0].RentalCount, "each queued user is granted exactly once")
}

func TestAddToWishlistIsIdempotent(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	_, err := f.svc.AddToWishlist(ctx, "John", 1)
	require.NoError(t, err)

	res, err := f.svc.AddToWishlist(ctx, "John", 1)
	require.NoError(t, err)
	assert.Equal(t, models.WishlistAlreadyWishlisted, res.Outcome)
	assert.Equal(t, "Given user 'John' already has this book in a wishlist", res.Message)
	assert.Len(t, f.wishlist(t, 1), 1)
	assert.Len(t, f.rec.Sent(), 1, "no-op adds do not notify")
}

func TestAddToWishlistHeldByOtherUser(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	_, err := f.svc.AddToWishlist(ctx, "John", 1)
	require.NoError(t, err)

	res, err := f.svc.AddToWishlist(ctx, "Anna", 1)
	require.NoError(t, err)
	assert.Equal(t, models.WishlistHeldByOther, res.Outcome)

	entries := f.wishlist(t, 1)
	require.Len(t, entries, 1)
	assert.Equal(t, "John", entries[0].UserName)
}

func TestAddToWishlistMissingUserOrBook(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	_, err := f.svc.AddToWishlist(ctx, "Nobody", 1)
	requireKind(t, err, KindNotFound, "User not found")

	_, err = f.svc.AddToWishlist(ctx, "John", 42)
	requireKind(t, err, KindNotFound, "Book not found")
}

func TestRemoveFromWishlist(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	_, err := f.svc.AddToWishlist(ctx, "John", 1)
	require.NoError(t, err)
	f.rec.Reset()

	require.NoError(t, f.svc.RemoveFromWishlist(ctx, "John", 1))
	assert.Empty(t, f.wishlist(t, 1))
	assert.Equal(t, []notify.Notification{{UserName: "John", BookTitle: "Clean Code"}}, f.rec.Sent())

	err = f.svc.RemoveFromWishlist(ctx, "John", 1)
	requireKind(t, err, KindNotFound, "Given user 'John' does not have book Clean Code in a wishlist")
}

func TestSearchBooks(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	_, err := f.svc.SearchBooks(ctx, "  ", "")
	requireKind(t, err, KindInvalidArgument, "")

	_, err = f.svc.AddToWishlist(ctx, "John", 2)
	require.NoError(t, err)

	results, err := f.svc.SearchBooks(ctx, "", " martin ")
	require.NoError(t, err)
	require.Len(t, results, 2)
	assert.Equal(t, int64(1), results[0].BookID)
	assert.False(t, results[0].IsWishlisted)
	assert.Equal(t, int64(2), results[1].BookID)
	assert.True(t, results[1].IsWishlisted)

	results, err = f.svc.SearchBooks(ctx, "nothing matches", "")
	require.NoError(t, err)
	assert.NotNil(t, results)
	assert.Empty(t, results)
}

func TestCreateUser(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	res, err := f.svc.CreateUser(ctx, "Kate", " STAFF ")
	require.NoError(t, err)
	assert.Equal(t, "User 'Kate' created successfully", res.Message)
	assert.NotZero(t, res.UserID)

	user, err := f.repo.GetUserByName(ctx, "Kate")
	require.NoError(t, err)
	assert.Equal(t, models.UserTypeStaff, user.UserType)

	_, err = f.svc.CreateUser(ctx, "Tom", "admin")
	requireKind(t, err, KindInvalidArgument, "User type is not supported")

	_, err = f.svc.CreateUser(ctx, "John", "user")
	requireKind(t, err, KindConflict, "Username already exists")
}

func TestAmountReport(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	start := time.Date(2024, 3, 1, 9, 0, 0, 0, time.UTC)
	f.svc.now = func() time.Time { return start }

	_, err := f.svc.AmountReport(ctx, "borrowed")
	requireKind(t, err, KindNotFound, "No books found with given status of borrowed")

	_, err = f.svc.AmountReport(ctx, "lost")
	requireKind(t, err, KindInvalidArgument, "")

	f.enqueue(t, "John", 1)
	_, err = f.svc.ToggleRentalStatus(ctx, 1)
	require.NoError(t, err)

	f.svc.now = func() time.Time { return start.Add(50 * time.Hour) }

	borrowed, err := f.svc.AmountReport(ctx, " Borrowed ")
	require.NoError(t, err)
	assert.Equal(t, []models.AmountReportRow{{BookID: 1, Title: "Clean Code", DaysRented: 2}}, borrowed)

	available, err := f.svc.AmountReport(ctx, "available")
	require.NoError(t, err)
	assert.Equal(t, borrowed, available, "status is only validated")
}

func TestTopRentalsSortedByCount(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	rent := func(userName string, bookID int64) {
		f.enqueue(t, userName, bookID)
		_, err := f.svc.ToggleRentalStatus(ctx, bookID)
		require.NoError(t, err)
		_, err = f.svc.ToggleRentalStatus(ctx, bookID)
		requireKind(t, err, KindNotFound, "No rentals found")
	}
	rent("John", 2)
	rent("Anna", 2)
	rent("John", 2)
	rent("Mark", 1)

	top, err := f.svc.TopRentals(ctx)
	require.NoError(t, err)
	require.Len(t, top, 2)
	assert.Equal(t, models.TopRental{Title: "Refactoring", Authors: "Martin Fowler", RentalCount: 3}, top[0])
	assert.Equal(t, int64(1), top[1].RentalCount)

	byUser, err := f.svc.TopRentalsByUsername(ctx)
	require.NoError(t, err)
	require.Len(t, byUser, 3)
	assert.Equal(t, models.TopRentalByUser{Title: "Refactoring", UserName: "John", RentalCount: 2}, byUser[0])
	for i := 1; i < len(byUser); i++ {
		assert.GreaterOrEqual(t, byUser[i-1].RentalCount, byUser[i].RentalCount)
	}
}

func TestReloadCatalogDropsWishlists(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	_, err := f.svc.AddToWishlist(ctx, "John", 1)
	require.NoError(t, err)

	res, err := f.svc.ReloadCatalog(ctx, []models.Book{
		{BookID: 1, Title: "Clean Code", Authors: "Robert C. Martin"},
	})
	require.NoError(t, err)
	assert.Equal(t, &models.LoadResult{Kind: "books", Inserted: 1}, res)
	assert.Empty(t, f.wishlist(t, 1))

	_, err = f.svc.ToggleRentalStatus(ctx, 2)
	requireKind(t, err, KindNotFound, "Book not found")
}

func TestReloadUsersRejectsDuplicates(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	_, err := f.svc.ReloadUsers(ctx, []models.User{
		{UserName: "Zoe", UserType: models.UserTypeUser},
		{UserName: "Zoe", UserType: models.UserTypeStaff},
	})
	requireKind(t, err, KindConflict, "")

	user, err := f.repo.GetUserByName(ctx, "John")
	require.NoError(t, err)
	assert.NotNil(t, user, "a failed reload leaves the old users in place")

	res, err := f.svc.ReloadUsers(ctx, []models.User{{UserName: "Zoe", UserType: models.UserTypeUser}})
	require.NoError(t, err)
	assert.Equal(t, 1, res.Inserted)
}

func TestKindOf(t *testing.T) {
	assert.Equal(t, KindNotFound, KindOf(NotFound("x")))
	assert.Equal(t, KindConflict, KindOf(Conflict("x")))
	assert.Equal(t, KindInternal, KindOf(errors.New("x")))
	assert.Equal(t, KindInvalidArgument, KindOf(errors.Join(errors.New("a"), InvalidArgument("b"))))
}
