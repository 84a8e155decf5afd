package services

import (
	"errors"
	"fmt"
	"time"
)

// ─── Sentinel Errors ──────────────────────────────────────────────────────────

var (
	// ErrInvalidInput wraps request values the service refuses to act on.
	ErrInvalidInput = errors.New("invalid input")

	ErrUserNotFound     = errors.New("user not found")
	ErrBookNotFound     = errors.New("book not found")
	ErrCheckoutNotFound = errors.New("checkout not found")

	// ErrBookUnavailable is matched by *BookUnavailableError.
	ErrBookUnavailable = errors.New("book is not available")

	// ErrCheckoutAlreadyReturned is returned when a return is attempted on a
	// checkout that has already been closed.
	ErrCheckoutAlreadyReturned = errors.New("book has already been returned")

	ErrDuplicateUsername  = errors.New("username already exists")
	ErrDuplicateISBN      = errors.New("isbn already belongs to another book")
	ErrInvalidCredentials = errors.New("invalid username or password")

	// ErrUserHasActiveCheckouts blocks deleting a user who still holds books.
	ErrUserHasActiveCheckouts = errors.New("user still has books checked out")
)

// BookUnavailableError reports a checkout attempt on a book somebody else
// holds, with the date it is due back.
type BookUnavailableError struct {
	BookID  uint
	DueDate *time.Time
}

func (e *BookUnavailableError) Error() string {
	if e.DueDate == nil {
		return fmt.Sprintf("book %d is not available", e.BookID)
	}
	return fmt.Sprintf("book %d is not available until %s", e.BookID, e.DueDate.Format(time.RFC3339))
}

func (e *BookUnavailableError) Is(target error) bool {
	return target == ErrBookUnavailable
}

func invalidf(format string, args ...interface{}) error {
	return fmt.Errorf("%w: %s", ErrInvalidInput, fmt.Sprintf(format, args...))
}
