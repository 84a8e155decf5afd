package services

import (
	"context"
	"time"

	"gorm.io/gorm"

	"librarycatalog/internal/models"
	"librarycatalog/internal/repositories"
)

// ─── Service Interface ────────────────────────────────────────────────────────

// LibraryService defines the application-level operations of the library system.
type LibraryService interface {
	Register(ctx context.Context, username, password string) (*models.User, error)
	Login(ctx context.Context, username, password string) (*models.User, error)
	GetUser(ctx context.Context, id uint) (*models.User, error)
	UpdateUser(ctx context.Context, id uint, username, password string) (*models.User, error)
	DeleteUser(ctx context.Context, id uint) error

	SearchBooks(ctx context.Context, f repositories.BookFilter) ([]models.Book, int64, error)
	QuickSearch(ctx context.Context, q string, limit int) ([]models.Book, error)
	FilterOptions(ctx context.Context) (*repositories.FilterOptions, error)
	GetBook(ctx context.Context, id uint) (*models.Book, error)
	UpdateBook(ctx context.Context, id uint, patch BookPatch) (*models.Book, error)

	CheckoutBook(ctx context.Context, bookID, userID uint) (*models.Checkout, error)
	ReturnCheckout(ctx context.Context, checkoutID uint) (*models.Checkout, error)
	GetCheckout(ctx context.Context, id uint) (*repositories.CheckoutDetail, error)
	ListCheckouts(ctx context.Context, f repositories.CheckoutFilter) ([]repositories.CheckoutDetail, error)
}

// Option customises a service at construction time.
type Option func(*options)

type options struct {
	now        func() time.Time
	bcryptCost int
}

// WithClock replaces time.Now; the returned instants are converted to UTC.
func WithClock(now func() time.Time) Option {
	return func(o *options) { o.now = now }
}

// WithBcryptCost sets the password hashing cost.
func WithBcryptCost(cost int) Option {
	return func(o *options) { o.bcryptCost = cost }
}

func buildOptions(opts []Option) options {
	o := options{now: time.Now, bcryptCost: defaultBcryptCost}
	for _, opt := range opts {
		opt(&o)
	}
	return o
}

// ─── Implementation ───────────────────────────────────────────────────────────

type libraryService struct {
	db           *gorm.DB
	userRepo     repositories.UserRepository
	bookRepo     repositories.BookRepository
	checkoutRepo repositories.CheckoutRepository
	opts         options
}

// NewLibraryService wires up all dependencies and returns a LibraryService.
func NewLibraryService(
	db *gorm.DB,
	userRepo repositories.UserRepository,
	bookRepo repositories.BookRepository,
	checkoutRepo repositories.CheckoutRepository,
	opts ...Option,
) LibraryService {
	return &libraryService{
		db:           db,
		userRepo:     userRepo,
		bookRepo:     bookRepo,
		checkoutRepo: checkoutRepo,
		opts:         buildOptions(opts),
	}
}

// now is truncated to the microsecond precision both stores keep.
func (s *libraryService) now() time.Time {
	return s.opts.now().UTC().Truncate(time.Microsecond)
}

// scoped binds the shared pool to the request context.
func (s *libraryService) scoped(ctx context.Context) *gorm.DB {
	return s.db.WithContext(ctx)
}
