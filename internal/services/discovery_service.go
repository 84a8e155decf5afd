package services

import (
	"context"
	"time"

	"gorm.io/gorm"

	"librarycatalog/internal/metrics"
	"librarycatalog/internal/models"
	"librarycatalog/internal/repositories"
)

const (
	DefaultTrendingWindow = 7 * 24 * time.Hour
	DefaultTrendingTopN   = 5

	seedCheckouts      = 3
	booksPerSeedKey    = 5
	similarUsers       = 5
	booksPerSimilar    = 3
	maxRecommendations = 10
)

// NoHistoryMessage explains an empty recommendation result.
const NoHistoryMessage = "no checkout history yet; check out a book to get recommendations"

// DiscoveryService serves the views derived from the checkout ledger. Every
// call recomputes from the store.
type DiscoveryService interface {
	Trending(ctx context.Context, window time.Duration, topN int) ([]repositories.TrendingBook, error)
	Recommend(ctx context.Context, userID uint) (*Recommendations, error)
}

// Recommendations groups three independent suggestion lists; a book may
// appear in more than one.
type Recommendations struct {
	ByAuthor      []models.Book `json:"by_author"`
	ByYear        []models.Book `json:"by_year"`
	BySimilarUser []models.Book `json:"by_similar_user"`
	// SeedBookIDs are the books the suggestions were derived from.
	SeedBookIDs []uint `json:"seed_checkout_ids"`
	Message     string `json:"message,omitempty"`
}

type discoveryService struct {
	db           *gorm.DB
	bookRepo     repositories.BookRepository
	checkoutRepo repositories.CheckoutRepository
	opts         options
}

func NewDiscoveryService(
	db *gorm.DB,
	bookRepo repositories.BookRepository,
	checkoutRepo repositories.CheckoutRepository,
	opts ...Option,
) DiscoveryService {
	return &discoveryService{
		db:           db,
		bookRepo:     bookRepo,
		checkoutRepo: checkoutRepo,
		opts:         buildOptions(opts),
	}
}

// ─── Trending ─────────────────────────────────────────────────────────────────

// Trending ranks every book by its checkouts inside the trailing window.
// Books without any are included with a zero count; ties go to the lower
// book_id. Non-positive arguments fall back to 7 days and 5 entries.
func (s *discoveryService) Trending(ctx context.Context, window time.Duration, topN int) ([]repositories.TrendingBook, error) {
	defer metrics.ObserveDiscovery("trending", time.Now())

	if window <= 0 {
		window = DefaultTrendingWindow
	}
	if topN <= 0 {
		topN = DefaultTrendingTopN
	}
	since := s.opts.now().UTC().Add(-window)

	rows, err := s.bookRepo.Trending(s.db.WithContext(ctx), since, topN)
	if err != nil {
		return nil, err
	}
	if rows == nil {
		rows = []repositories.TrendingBook{}
	}
	return rows, nil
}

// ─── Recommendations ──────────────────────────────────────────────────────────

// Recommend derives suggestions from the user's three most recent checkouts:
// other books by the same authors, from the same years, and borrowed by
// other readers of the seed books. A user with no history gets empty lists
// and a message, not an error.
func (s *discoveryService) Recommend(ctx context.Context, userID uint) (*Recommendations, error) {
	defer metrics.ObserveDiscovery("recommendations", time.Now())

	db := s.db.WithContext(ctx)
	rec := &Recommendations{
		ByAuthor:      []models.Book{},
		ByYear:        []models.Book{},
		BySimilarUser: []models.Book{},
		SeedBookIDs:   []uint{},
	}

	seeds, err := s.checkoutRepo.RecentByUser(db, userID, seedCheckouts)
	if err != nil {
		return nil, err
	}
	if len(seeds) == 0 {
		rec.Message = NoHistoryMessage
		return rec, nil
	}

	var authors []string
	var years []int
	seenAuthor := map[string]bool{}
	seenYear := map[int]bool{}
	seenSeed := map[uint]bool{}
	for _, sc := range seeds {
		if !seenSeed[sc.BookID] {
			seenSeed[sc.BookID] = true
			rec.SeedBookIDs = append(rec.SeedBookIDs, sc.BookID)
		}
		if sc.Author != "" && !seenAuthor[sc.Author] {
			seenAuthor[sc.Author] = true
			authors = append(authors, sc.Author)
		}
		if sc.YearPublished != nil && !seenYear[*sc.YearPublished] {
			seenYear[*sc.YearPublished] = true
			years = append(years, *sc.YearPublished)
		}
	}
	exclude := rec.SeedBookIDs

	byAuthor := newBookList(maxRecommendations)
	for _, a := range authors {
		books, err := s.bookRepo.ListByAuthorExcluding(db, a, exclude, booksPerSeedKey)
		if err != nil {
			return nil, err
		}
		byAuthor.add(books...)
	}
	rec.ByAuthor = byAuthor.books

	byYear := newBookList(maxRecommendations)
	for _, y := range years {
		books, err := s.bookRepo.ListByYearExcluding(db, y, exclude, booksPerSeedKey)
		if err != nil {
			return nil, err
		}
		byYear.add(books...)
	}
	rec.ByYear = byYear.books

	others, err := s.checkoutRepo.UsersWhoBorrowed(db, exclude, userID, similarUsers)
	if err != nil {
		return nil, err
	}
	bySimilar := newBookList(maxRecommendations)
	for _, other := range others {
		books, err := s.bookRepo.ListCheckedOutByUserExcluding(db, other, exclude, booksPerSimilar)
		if err != nil {
			return nil, err
		}
		bySimilar.add(books...)
	}
	rec.BySimilarUser = bySimilar.books

	return rec, nil
}

// bookList accumulates books in first-seen order without duplicates, up to
// a cap.
type bookList struct {
	books []models.Book
	seen  map[uint]bool
	limit int
}

func newBookList(limit int) *bookList {
	return &bookList{books: []models.Book{}, seen: map[uint]bool{}, limit: limit}
}

func (l *bookList) add(books ...models.Book) {
	for _, b := range books {
		if len(l.books) >= l.limit {
			return
		}
		if l.seen[b.BookID] {
			continue
		}
		l.seen[b.BookID] = true
		l.books = append(l.books, b)
	}
}
