package services

import (
	"context"
	"errors"

	"gorm.io/gorm"

	"librarycatalog/internal/database"
	"librarycatalog/internal/logging"
	"librarycatalog/internal/metrics"
	"librarycatalog/internal/models"
	"librarycatalog/internal/repositories"
)

// ─── Checkout ─────────────────────────────────────────────────────────────────

// CheckoutBook implements the transactional checkout flow.
//
// The book row is locked (SELECT FOR UPDATE) before its availability is
// checked, the flip to checked-out is conditional on is_booked still being
// false, and the one-open-checkout-per-book index backs both. Any of the
// three turning up a competing holder yields a *BookUnavailableError.
func (s *libraryService) CheckoutBook(ctx context.Context, bookID, userID uint) (*models.Checkout, error) {
	log := logging.Ctx(ctx)
	now := s.now()
	due := now.AddDate(0, 0, models.LoanPeriodDays)

	var checkout *models.Checkout
	err := s.scoped(ctx).Transaction(func(tx *gorm.DB) error {
		// 1. Validate user exists.
		if _, err := s.userRepo.GetByID(tx, userID); err != nil {
			if errors.Is(err, gorm.ErrRecordNotFound) {
				return ErrUserNotFound
			}
			return err
		}

		// 2. Lock the book row.
		book, err := s.bookRepo.GetByIDForUpdate(tx, bookID)
		if err != nil {
			if errors.Is(err, gorm.ErrRecordNotFound) {
				return ErrBookNotFound
			}
			return err
		}
		if book.IsBooked {
			return &BookUnavailableError{BookID: bookID, DueDate: book.DueDate}
		}

		// 3. Flip availability.
		ok, err := s.bookRepo.MarkCheckedOut(tx, bookID, userID, due)
		if err != nil {
			return err
		}
		if !ok {
			return s.unavailable(tx, bookID)
		}

		// 4. Append to the ledger.
		c := &models.Checkout{
			BookID:       bookID,
			UserID:       userID,
			CheckoutDate: now,
			DueDate:      due,
		}
		if err := s.checkoutRepo.Create(tx, c); err != nil {
			if database.IsUniqueViolation(err) {
				return &BookUnavailableError{BookID: bookID}
			}
			return err
		}
		checkout = c
		return nil
	})
	if err != nil {
		switch {
		case errors.Is(err, ErrBookUnavailable):
			metrics.RecordCheckout(metrics.OutcomeConflict)
			log.Info().Uint("book_id", bookID).Uint("user_id", userID).Msg("checkout refused: book unavailable")
		case errors.Is(err, ErrUserNotFound), errors.Is(err, ErrBookNotFound):
			metrics.RecordCheckout(metrics.OutcomeNotFound)
		default:
			metrics.RecordCheckout(metrics.OutcomeError)
			log.Error().Err(err).Uint("book_id", bookID).Uint("user_id", userID).Msg("checkout failed")
		}
		return nil, err
	}

	metrics.RecordCheckout(metrics.OutcomeSuccess)
	log.Info().
		Uint("checkout_id", checkout.CheckoutID).
		Uint("book_id", bookID).
		Uint("user_id", userID).
		Time("due_date", due).
		Msg("book checked out")
	return checkout, nil
}

// unavailable re-reads the book after a lost race so the caller still sees
// the winner's due date.
func (s *libraryService) unavailable(tx *gorm.DB, bookID uint) error {
	book, err := s.bookRepo.GetByID(tx, bookID)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return ErrBookNotFound
		}
		return err
	}
	return &BookUnavailableError{BookID: bookID, DueDate: book.DueDate}
}

// ─── Return ───────────────────────────────────────────────────────────────────

// ReturnCheckout closes the checkout and makes its book available again in
// one transaction. A second return fails with ErrCheckoutAlreadyReturned and
// writes nothing.
func (s *libraryService) ReturnCheckout(ctx context.Context, checkoutID uint) (*models.Checkout, error) {
	log := logging.Ctx(ctx)
	now := s.now()

	var checkout *models.Checkout
	err := s.scoped(ctx).Transaction(func(tx *gorm.DB) error {
		c, err := s.checkoutRepo.GetByIDForUpdate(tx, checkoutID)
		if err != nil {
			if errors.Is(err, gorm.ErrRecordNotFound) {
				return ErrCheckoutNotFound
			}
			return err
		}
		if c.IsReturned {
			return ErrCheckoutAlreadyReturned
		}

		// Lock the book before touching the ledger, in the same order checkout does.
		if _, err := s.bookRepo.GetByIDForUpdate(tx, c.BookID); err != nil {
			return err
		}

		ok, err := s.checkoutRepo.MarkReturned(tx, checkoutID, now)
		if err != nil {
			return err
		}
		if !ok {
			return ErrCheckoutAlreadyReturned
		}
		if err := s.bookRepo.MarkAvailable(tx, c.BookID); err != nil {
			return err
		}

		c.IsReturned = true
		c.ReturnDate = &now
		checkout = c
		return nil
	})
	if err != nil {
		switch {
		case errors.Is(err, ErrCheckoutAlreadyReturned):
			metrics.RecordReturn(metrics.OutcomeDuplicate)
		case errors.Is(err, ErrCheckoutNotFound):
			metrics.RecordReturn(metrics.OutcomeNotFound)
		default:
			metrics.RecordReturn(metrics.OutcomeError)
			log.Error().Err(err).Uint("checkout_id", checkoutID).Msg("return failed")
		}
		return nil, err
	}

	metrics.RecordReturn(metrics.OutcomeSuccess)
	log.Info().
		Uint("checkout_id", checkoutID).
		Uint("book_id", checkout.BookID).
		Msg("book returned")
	return checkout, nil
}

// ─── Queries ──────────────────────────────────────────────────────────────────

func (s *libraryService) GetCheckout(ctx context.Context, id uint) (*repositories.CheckoutDetail, error) {
	detail, err := s.checkoutRepo.GetDetail(s.scoped(ctx), id)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrCheckoutNotFound
		}
		return nil, err
	}
	return detail, nil
}

// ListCheckouts returns the ledger newest first, optionally narrowed to one
// user and to open or returned checkouts.
func (s *libraryService) ListCheckouts(ctx context.Context, f repositories.CheckoutFilter) ([]repositories.CheckoutDetail, error) {
	return s.checkoutRepo.List(s.scoped(ctx), f)
}
