package repositories

import (
	"strings"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"librarycatalog/internal/models"
)

const (
	DefaultPageSize = 20
	MaxPageSize     = 100
)

// sortColumns is the allow-list of sort keys accepted from clients.
var sortColumns = map[string]string{
	"title":          "title",
	"author":         "author",
	"year":           "year_published",
	"year_published": "year_published",
	"id":             "book_id",
	"book_id":        "book_id",
}

// BookFilter describes a catalog listing request. Empty fields do not filter.
type BookFilter struct {
	Search    string
	Author    string
	Genre     string
	Year      *int
	Available *bool
	SortBy    string
	Order     string
	Limit     int
	Offset    int
}

// Normalize clamps pagination and resolves the sort key against the
// allow-list, falling back to title ascending.
func (f BookFilter) Normalize() BookFilter {
	if f.Limit <= 0 {
		f.Limit = DefaultPageSize
	}
	if f.Limit > MaxPageSize {
		f.Limit = MaxPageSize
	}
	if f.Offset < 0 {
		f.Offset = 0
	}
	col, ok := sortColumns[strings.ToLower(f.SortBy)]
	if !ok {
		col = "title"
	}
	f.SortBy = col
	if strings.EqualFold(f.Order, "desc") {
		f.Order = "desc"
	} else {
		f.Order = "asc"
	}
	return f
}

func likePattern(s string) string {
	return "%" + strings.ToLower(s) + "%"
}

// where applies the filter predicate; used for both the page and the count.
func (f BookFilter) where(q *gorm.DB) *gorm.DB {
	if s := strings.TrimSpace(f.Search); s != "" {
		q = q.Where("LOWER(title) LIKE ?", likePattern(s))
	}
	if s := strings.TrimSpace(f.Author); s != "" {
		q = q.Where("LOWER(author) LIKE ?", likePattern(s))
	}
	if s := strings.TrimSpace(f.Genre); s != "" {
		q = q.Where("LOWER(genre) LIKE ?", likePattern(s))
	}
	if f.Year != nil {
		q = q.Where("year_published = ?", *f.Year)
	}
	if f.Available != nil {
		q = q.Where("is_booked = ?", !*f.Available)
	}
	return q
}

// Search returns one page of matching books and the total match count.
func (r *bookRepository) Search(db *gorm.DB, f BookFilter) ([]models.Book, int64, error) {
	if db == nil {
		db = r.db
	}
	f = f.Normalize()

	var total int64
	if err := f.where(db.Model(&models.Book{})).Count(&total).Error; err != nil {
		return nil, 0, err
	}

	books := []models.Book{}
	err := f.where(db.Model(&models.Book{})).
		Order(clause.OrderByColumn{Column: clause.Column{Name: f.SortBy}, Desc: f.Order == "desc"}).
		Order(clause.OrderByColumn{Column: clause.Column{Name: "book_id"}}).
		Offset(f.Offset).
		Limit(f.Limit).
		Find(&books).Error
	if err != nil {
		return nil, 0, err
	}
	return books, total, nil
}

// QuickSearch matches q against title or author.
func (r *bookRepository) QuickSearch(db *gorm.DB, q string, limit int) ([]models.Book, error) {
	if db == nil {
		db = r.db
	}
	if limit <= 0 || limit > MaxPageSize {
		limit = DefaultPageSize
	}
	pattern := likePattern(strings.TrimSpace(q))
	books := []models.Book{}
	err := db.Where("LOWER(title) LIKE ? OR LOWER(author) LIKE ?", pattern, pattern).
		Order("book_id").
		Limit(limit).
		Find(&books).Error
	return books, err
}

// FilterOptions lists the distinct values clients can filter on.
type FilterOptions struct {
	Authors []string `json:"authors"`
	Years   []int    `json:"years"`
	Genres  []string `json:"genres"`
}

func (r *bookRepository) FilterOptions(db *gorm.DB) (*FilterOptions, error) {
	if db == nil {
		db = r.db
	}
	opts := &FilterOptions{Authors: []string{}, Years: []int{}, Genres: []string{}}

	if err := db.Model(&models.Book{}).
		Distinct("author").
		Order("author").
		Limit(100).
		Pluck("author", &opts.Authors).Error; err != nil {
		return nil, err
	}
	if err := db.Model(&models.Book{}).
		Distinct("year_published").
		Where("year_published IS NOT NULL").
		Order("year_published DESC").
		Pluck("year_published", &opts.Years).Error; err != nil {
		return nil, err
	}
	if err := db.Model(&models.Book{}).
		Distinct("genre").
		Where("genre IS NOT NULL").
		Order("genre").
		Pluck("genre", &opts.Genres).Error; err != nil {
		return nil, err
	}
	return opts, nil
}
