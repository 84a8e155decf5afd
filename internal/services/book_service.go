package services

import (
	"context"
	"errors"
	"strings"

	"gorm.io/gorm"

	"librarycatalog/internal/database"
	"librarycatalog/internal/logging"
	"librarycatalog/internal/models"
	"librarycatalog/internal/repositories"
)

// AvailabilityFields are the book columns only checkout and return may write.
var AvailabilityFields = []string{"is_booked", "booked_by_user_id", "due_date"}

// BookPatch carries the catalog metadata a PATCH may change. Nil fields are
// left untouched.
type BookPatch struct {
	ISBN          *string `json:"isbn"`
	Title         *string `json:"title"`
	Author        *string `json:"author"`
	YearPublished *int    `json:"year_published"`
	Genre         *string `json:"genre"`
	ImageURL      *string `json:"image_url"`
}

func (s *libraryService) patchFields(p BookPatch) (map[string]interface{}, error) {
	fields := map[string]interface{}{}
	if p.Title != nil {
		t := strings.TrimSpace(*p.Title)
		if t == "" {
			return nil, invalidf("title must not be empty")
		}
		fields["title"] = t
	}
	if p.Author != nil {
		a := strings.TrimSpace(*p.Author)
		if a == "" {
			return nil, invalidf("author must not be empty")
		}
		fields["author"] = a
	}
	if p.YearPublished != nil {
		y := *p.YearPublished
		if y < models.MinPublicationYear || y > s.now().Year() {
			return nil, invalidf("year_published must be between %d and %d", models.MinPublicationYear, s.now().Year())
		}
		fields["year_published"] = y
	}
	if p.ISBN != nil {
		fields["isbn"] = nullIfBlank(*p.ISBN)
	}
	if p.Genre != nil {
		fields["genre"] = nullIfBlank(*p.Genre)
	}
	if p.ImageURL != nil {
		fields["image_url"] = nullIfBlank(*p.ImageURL)
	}
	return fields, nil
}

func nullIfBlank(s string) interface{} {
	if s = strings.TrimSpace(s); s == "" {
		return nil
	}
	return s
}

// ─── Catalog ──────────────────────────────────────────────────────────────────

func (s *libraryService) GetBook(ctx context.Context, id uint) (*models.Book, error) {
	book, err := s.bookRepo.GetByID(s.scoped(ctx), id)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrBookNotFound
		}
		return nil, err
	}
	return book, nil
}

// UpdateBook applies a metadata patch and returns the updated book.
func (s *libraryService) UpdateBook(ctx context.Context, id uint, patch BookPatch) (*models.Book, error) {
	fields, err := s.patchFields(patch)
	if err != nil {
		return nil, err
	}

	var book *models.Book
	err = s.scoped(ctx).Transaction(func(tx *gorm.DB) error {
		if _, err := s.bookRepo.GetByIDForUpdate(tx, id); err != nil {
			if errors.Is(err, gorm.ErrRecordNotFound) {
				return ErrBookNotFound
			}
			return err
		}
		if len(fields) > 0 {
			if err := s.bookRepo.UpdateDetails(tx, id, fields); err != nil {
				if database.IsUniqueViolation(err) {
					return ErrDuplicateISBN
				}
				return err
			}
		}
		b, err := s.bookRepo.GetByID(tx, id)
		if err != nil {
			return err
		}
		book = b
		return nil
	})
	if err != nil {
		return nil, err
	}
	logging.Ctx(ctx).Info().Uint("book_id", id).Int("fields", len(fields)).Msg("book updated")
	return book, nil
}

func (s *libraryService) SearchBooks(ctx context.Context, f repositories.BookFilter) ([]models.Book, int64, error) {
	return s.bookRepo.Search(s.scoped(ctx), f)
}

func (s *libraryService) QuickSearch(ctx context.Context, q string, limit int) ([]models.Book, error) {
	if strings.TrimSpace(q) == "" {
		return nil, invalidf("search query is required")
	}
	return s.bookRepo.QuickSearch(s.scoped(ctx), q, limit)
}

func (s *libraryService) FilterOptions(ctx context.Context) (*repositories.FilterOptions, error) {
	return s.bookRepo.FilterOptions(s.scoped(ctx))
}
