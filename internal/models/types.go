package models

import (
	"fmt"
	"strings"
)

// BookStatus is the availability of a book. It is derived from the rental
// ledger and never stored.
type BookStatus string

const (
	BookStatusAvailable BookStatus = "available"
	BookStatusBorrowed  BookStatus = "borrowed"
)

// BookStatuses lists every valid status
var BookStatuses = []BookStatus{BookStatusAvailable, BookStatusBorrowed}

// ParseBookStatus matches raw against the known statuses, ignoring case and
// surrounding whitespace.
func ParseBookStatus(raw string) (BookStatus, error) {
	normalized := strings.ToLower(strings.TrimSpace(raw))
	for _, s := range BookStatuses {
		if string(s) == normalized {
			return s, nil
		}
	}
	return "", fmt.Errorf("invalid book status %q", raw)
}

// IsValidBookStatus reports whether raw names a book status
func IsValidBookStatus(raw string) bool {
	_, err := ParseBookStatus(raw)
	return err == nil
}

// UserType classifies library users
type UserType string

const (
	UserTypeUser  UserType = "user"
	UserTypeStaff UserType = "staff"
)

// UserTypes lists every valid user type
var UserTypes = []UserType{UserTypeUser, UserTypeStaff}

// ParseUserType matches raw against the known user types, ignoring case and
// surrounding whitespace.
func ParseUserType(raw string) (UserType, error) {
	normalized := strings.ToLower(strings.TrimSpace(raw))
	for _, t := range UserTypes {
		if string(t) == normalized {
			return t, nil
		}
	}
	return "", fmt.Errorf("invalid user type %q", raw)
}

// IsValidUserType reports whether raw names a user type
func IsValidUserType(raw string) bool {
	_, err := ParseUserType(raw)
	return err == nil
}
