// Package importer loads the public book-crossing catalog and generates
// sample users and checkout history for development databases.
package importer

import (
	"context"
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"math/rand"
	"strconv"
	"strings"
	"time"

	"golang.org/x/crypto/bcrypt"
	"golang.org/x/text/encoding/charmap"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"librarycatalog/internal/logging"
	"librarycatalog/internal/models"
	"librarycatalog/internal/repositories"
)

const (
	DefaultBookLimit = 10000
	batchSize        = 1000

	sampleHistoryDays = 30
	returnedShare     = 0.8
)

// Genres is the fixed set assigned at random; the source data has none.
var Genres = []string{
	"Fiction", "Non-Fiction", "Mystery", "Science Fiction",
	"Fantasy", "Romance", "Thriller", "Biography",
	"History", "Self-Help", "Science", "Children",
}

// Column names in Books.csv.
const (
	colISBN   = "ISBN"
	colTitle  = "Book-Title"
	colAuthor = "Book-Author"
	colYear   = "Year-Of-Publication"
	colImageS = "Image-URL-S"
	colImageM = "Image-URL-M"
	colImageL = "Image-URL-L"
)

type Importer struct {
	db         *gorm.DB
	bookRepo   repositories.BookRepository
	rng        *rand.Rand
	now        func() time.Time
	bcryptCost int
}

type Option func(*Importer)

// WithSeed makes genre assignment and sample history reproducible.
func WithSeed(seed int64) Option {
	return func(im *Importer) { im.rng = rand.New(rand.NewSource(seed)) }
}

func WithClock(now func() time.Time) Option {
	return func(im *Importer) { im.now = now }
}

func WithBcryptCost(cost int) Option {
	return func(im *Importer) { im.bcryptCost = cost }
}

func New(db *gorm.DB, opts ...Option) *Importer {
	im := &Importer{
		db:         db,
		bookRepo:   repositories.NewBookRepository(db),
		rng:        rand.New(rand.NewSource(time.Now().UnixNano())),
		now:        time.Now,
		bcryptCost: bcrypt.DefaultCost,
	}
	for _, opt := range opts {
		opt(im)
	}
	return im
}

func (im *Importer) clock() time.Time {
	return im.now().UTC().Truncate(time.Microsecond)
}

// ─── Books ────────────────────────────────────────────────────────────────────

type BookStats struct {
	Read     int // data rows accepted for insert
	Skipped  int // rows without title or author
	Inserted int64
}

// ImportBooks reads a semicolon-separated, Latin-1 encoded Books.csv and
// inserts up to limit books. Rows sharing an ISBN with an existing book are
// ignored.
func (im *Importer) ImportBooks(ctx context.Context, r io.Reader, limit int) (BookStats, error) {
	var stats BookStats
	if limit <= 0 {
		limit = DefaultBookLimit
	}

	cr := csv.NewReader(charmap.ISO8859_1.NewDecoder().Reader(r))
	cr.Comma = ';'
	cr.LazyQuotes = true
	cr.FieldsPerRecord = -1

	header, err := cr.Read()
	if err != nil {
		return stats, fmt.Errorf("read header: %w", err)
	}
	idx := make(map[string]int, len(header))
	for i, h := range header {
		idx[strings.TrimSpace(h)] = i
	}
	for _, required := range []string{colTitle, colAuthor} {
		if _, ok := idx[required]; !ok {
			return stats, fmt.Errorf("missing column %q", required)
		}
	}
	field := func(rec []string, name string) string {
		i, ok := idx[name]
		if !ok || i >= len(rec) {
			return ""
		}
		return strings.TrimSpace(rec[i])
	}

	maxYear := im.clock().Year()
	db := im.db.WithContext(ctx)
	batch := make([]models.Book, 0, batchSize)
	flush := func() error {
		if len(batch) == 0 {
			return nil
		}
		res := db.Clauses(clause.OnConflict{DoNothing: true}).Create(&batch)
		if res.Error != nil {
			return res.Error
		}
		stats.Inserted += res.RowsAffected
		logging.Info().Int("read", stats.Read).Int64("inserted", stats.Inserted).Msg("imported batch")
		batch = batch[:0]
		return nil
	}

	for stats.Read < limit {
		rec, err := cr.Read()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			var perr *csv.ParseError
			if errors.As(err, &perr) {
				stats.Skipped++
				continue
			}
			return stats, err
		}

		title, author := field(rec, colTitle), field(rec, colAuthor)
		if title == "" || author == "" {
			stats.Skipped++
			continue
		}
		genre := Genres[im.rng.Intn(len(Genres))]
		batch = append(batch, models.Book{
			ISBN:          optional(field(rec, colISBN)),
			Title:         title,
			Author:        author,
			YearPublished: parseYear(field(rec, colYear), maxYear),
			Genre:         &genre,
			ImageURL:      optional(firstNonEmpty(field(rec, colImageM), field(rec, colImageL), field(rec, colImageS))),
		})
		stats.Read++

		if len(batch) == batchSize {
			if err := flush(); err != nil {
				return stats, err
			}
		}
	}
	if err := flush(); err != nil {
		return stats, err
	}
	return stats, nil
}

// parseYear returns nil for blank, malformed and implausible years.
func parseYear(s string, maxYear int) *int {
	y, err := strconv.Atoi(s)
	if err != nil || y < models.MinPublicationYear || y > maxYear {
		return nil
	}
	return &y
}

func optional(s string) *string {
	if s == "" {
		return nil
	}
	return &s
}

func firstNonEmpty(vals ...string) string {
	for _, v := range vals {
		if v != "" {
			return v
		}
	}
	return ""
}

// ─── Sample Data ──────────────────────────────────────────────────────────────

// CreateSampleUsers creates user1/pass1 through userN/passN. Existing
// usernames are left alone.
func (im *Importer) CreateSampleUsers(ctx context.Context, n int) (int64, error) {
	if n <= 0 {
		return 0, nil
	}
	now := im.clock()
	users := make([]models.User, 0, n)
	for i := 1; i <= n; i++ {
		hash, err := bcrypt.GenerateFromPassword([]byte(fmt.Sprintf("pass%d", i)), im.bcryptCost)
		if err != nil {
			return 0, err
		}
		users = append(users, models.User{
			Username:  fmt.Sprintf("user%d", i),
			Password:  string(hash),
			CreatedAt: now,
		})
	}
	res := im.db.WithContext(ctx).Clauses(clause.OnConflict{DoNothing: true}).CreateInBatches(&users, batchSize)
	return res.RowsAffected, res.Error
}

// CreateSampleCheckouts replaces the ledger with n random checkouts from the
// last 30 days, about 80% of them returned. A book gets at most one open
// checkout, and books with one are marked checked out to match.
func (im *Importer) CreateSampleCheckouts(ctx context.Context, n int) (int, error) {
	now := im.clock()
	created := 0

	err := im.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := tx.Exec("DELETE FROM checkouts").Error; err != nil {
			return err
		}
		if err := tx.Model(&models.Book{}).Where("is_booked = ?", true).Updates(map[string]interface{}{
			"is_booked":         false,
			"booked_by_user_id": nil,
			"due_date":          nil,
		}).Error; err != nil {
			return err
		}

		var userIDs, bookIDs []uint
		if err := tx.Model(&models.User{}).Order("user_id").Pluck("user_id", &userIDs).Error; err != nil {
			return err
		}
		if err := tx.Model(&models.Book{}).Order("book_id").Pluck("book_id", &bookIDs).Error; err != nil {
			return err
		}
		if len(userIDs) == 0 || len(bookIDs) == 0 {
			return errors.New("need users and books before creating checkouts")
		}

		open := map[uint]bool{}
		checkouts := make([]models.Checkout, 0, n)
		for i := 0; i < n; i++ {
			c := models.Checkout{
				UserID:       userIDs[im.rng.Intn(len(userIDs))],
				BookID:       bookIDs[im.rng.Intn(len(bookIDs))],
				CheckoutDate: now.AddDate(0, 0, -im.rng.Intn(sampleHistoryDays+1)),
			}
			c.DueDate = c.CheckoutDate.AddDate(0, 0, models.LoanPeriodDays)

			if im.rng.Float64() < returnedShare || open[c.BookID] {
				ret := c.CheckoutDate.AddDate(0, 0, 1+im.rng.Intn(models.LoanPeriodDays))
				if ret.After(now) {
					ret = now
				}
				c.IsReturned = true
				c.ReturnDate = &ret
			} else {
				open[c.BookID] = true
			}
			checkouts = append(checkouts, c)
		}

		if len(checkouts) > 0 {
			if err := tx.Omit(clause.Associations).CreateInBatches(&checkouts, batchSize).Error; err != nil {
				return err
			}
		}
		for _, c := range checkouts {
			if c.IsReturned {
				continue
			}
			if _, err := im.bookRepo.MarkCheckedOut(tx, c.BookID, c.UserID, c.DueDate); err != nil {
				return err
			}
		}
		created = len(checkouts)
		return nil
	})
	return created, err
}

// Reset removes all checkouts, books and users.
func (im *Importer) Reset(ctx context.Context) error {
	return im.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		for _, table := range []string{"checkouts", "books", "users"} {
			if err := tx.Exec("DELETE FROM " + table).Error; err != nil {
				return fmt.Errorf("clear %s: %w", table, err)
			}
		}
		return nil
	})
}
