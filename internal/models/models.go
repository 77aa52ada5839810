package models

import (
	"time"
)

// Book represents one catalog row. BookID is the externally visible identity;
// ID is the internal surrogate key that wishlists and rentals reference.
type Book struct {
	ID              int64  `db:"id" json:"id"`
	BookID          int64  `db:"book_id" json:"book_id"`
	ISBN            string `db:"isbn" json:"isbn"`
	Authors         string `db:"authors" json:"authors"`
	PublicationYear int    `db:"publication_year" json:"publication_year"`
	Title           string `db:"title" json:"title"`
	Language        string `db:"language" json:"language"`
}

// User represents a library user
type User struct {
	ID        int64     `db:"id" json:"id"`
	UserName  string    `db:"user_name" json:"user_name"`
	UserType  UserType  `db:"user_type" json:"user_type"`
	CreatedAt time.Time `db:"created_at" json:"created_at"`
}

// WishlistEntry is a user's standing request to rent a book once it is available.
// Entries for a book are served in ID order.
type WishlistEntry struct {
	ID        int64     `db:"id" json:"id"`
	UserID    int64     `db:"user_id" json:"user_id"`
	BookPK    int64     `db:"book_pk" json:"book_pk"`
	CreatedAt time.Time `db:"created_at" json:"created_at"`
}

// WishlistEntryWithUser is a wishlist entry joined to the requesting user
type WishlistEntryWithUser struct {
	WishlistEntry
	UserName string `db:"user_name" json:"user_name"`
}

// Rental is an active borrowing record. A book has at most one.
type Rental struct {
	ID        int64     `db:"id" json:"id"`
	UserID    int64     `db:"user_id" json:"user_id"`
	BookPK    int64     `db:"book_pk" json:"book_pk"`
	CreatedAt time.Time `db:"created_at" json:"created_at"`
}

// RentalWithBook is a rental joined to the book it references
type RentalWithBook struct {
	Rental
	BookID    int64  `db:"book_id" json:"book_id"`
	BookTitle string `db:"title" json:"title"`
}

// RentalHistory records every grant; ReturnedAt is set once the book comes back.
type RentalHistory struct {
	ID         int64      `db:"id" json:"id"`
	UserID     int64      `db:"user_id" json:"user_id"`
	BookPK     int64      `db:"book_pk" json:"book_pk"`
	RentedAt   time.Time  `db:"rented_at" json:"rented_at"`
	ReturnedAt *time.Time `db:"returned_at" json:"returned_at,omitempty"`
}

// BookSearchResult is a catalog row annotated with its wishlist flag
type BookSearchResult struct {
	Book
	IsWishlisted bool `db:"is_wishlisted" json:"is_wishlisted"`
}

// BookStatusChange describes one book after a rental toggle
type BookStatusChange struct {
	BookID     int64      `json:"book_id"`
	BookTitle  string     `json:"book_title"`
	BookStatus BookStatus `json:"book_status"`
}

// RentedBookRow feeds the amount report
type RentedBookRow struct {
	BookID   int64      `db:"book_id"`
	Title    string     `db:"title"`
	RentedAt *time.Time `db:"rented_at"`
}

// TopRental is one row of the top rentals report
type TopRental struct {
	Title       string `db:"title" json:"title"`
	Authors     string `db:"authors" json:"authors"`
	RentalCount int64  `db:"rental_count" json:"rental_count"`
}

// TopRentalByUser is one row of the top rentals by username report
type TopRentalByUser struct {
	Title       string `db:"title" json:"title"`
	UserName    string `db:"user_name" json:"user_name"`
	RentalCount int64  `db:"rental_count" json:"rental_count"`
}
