package repositories

import (
	"time"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"librarycatalog/internal/models"
)

type UserRepository interface {
	Create(db *gorm.DB, user *models.User) error
	GetByID(db *gorm.DB, id uint) (*models.User, error)
	GetByUsername(db *gorm.DB, username string) (*models.User, error)
	UpdateCredentials(db *gorm.DB, id uint, username, passwordHash string) error
	Delete(db *gorm.DB, id uint) error
}

type BookRepository interface {
	Create(db *gorm.DB, book *models.Book) error
	GetByID(db *gorm.DB, id uint) (*models.Book, error)
	GetByIDForUpdate(db *gorm.DB, id uint) (*models.Book, error)
	MarkCheckedOut(db *gorm.DB, id, userID uint, due time.Time) (bool, error)
	MarkAvailable(db *gorm.DB, id uint) error
	UpdateDetails(db *gorm.DB, id uint, fields map[string]interface{}) error
	CountHeldBy(db *gorm.DB, userID uint) (int64, error)

	Search(db *gorm.DB, f BookFilter) ([]models.Book, int64, error)
	QuickSearch(db *gorm.DB, q string, limit int) ([]models.Book, error)
	FilterOptions(db *gorm.DB) (*FilterOptions, error)

	Trending(db *gorm.DB, since time.Time, limit int) ([]TrendingBook, error)
	ListByAuthorExcluding(db *gorm.DB, author string, exclude []uint, limit int) ([]models.Book, error)
	ListByYearExcluding(db *gorm.DB, year int, exclude []uint, limit int) ([]models.Book, error)
	ListCheckedOutByUserExcluding(db *gorm.DB, userID uint, exclude []uint, limit int) ([]models.Book, error)
}

type CheckoutRepository interface {
	Create(db *gorm.DB, checkout *models.Checkout) error
	GetByID(db *gorm.DB, id uint) (*models.Checkout, error)
	GetByIDForUpdate(db *gorm.DB, id uint) (*models.Checkout, error)
	MarkReturned(db *gorm.DB, id uint, returnedAt time.Time) (bool, error)
	GetDetail(db *gorm.DB, id uint) (*CheckoutDetail, error)
	List(db *gorm.DB, f CheckoutFilter) ([]CheckoutDetail, error)
	RecentByUser(db *gorm.DB, userID uint, limit int) ([]SeedCheckout, error)
	UsersWhoBorrowed(db *gorm.DB, bookIDs []uint, excludeUser uint, limit int) ([]uint, error)
}

// TrendingBook is a book with its checkout count inside the trending window.
type TrendingBook struct {
	models.Book
	CheckoutCount int64 `json:"checkout_count"`
}

// CheckoutDetail is a ledger row joined with the book fields clients display.
type CheckoutDetail struct {
	models.Checkout
	Title         string  `json:"title"`
	Author        string  `json:"author"`
	YearPublished *int    `json:"year_published,omitempty"`
	Genre         *string `json:"genre,omitempty"`
	ImageURL      *string `gorm:"column:image_url" json:"image_url"`
}

// SeedCheckout is one of a user's recent checkouts with the book attributes
// recommendations are keyed on.
type SeedCheckout struct {
	CheckoutID    uint
	BookID        uint
	Author        string
	YearPublished *int
}

type CheckoutFilter struct {
	UserID *uint
	// Active selects open (true) or returned (false) checkouts; nil means both.
	Active *bool
}

// concrete implementations

type userRepository struct {
	db *gorm.DB
}

func NewUserRepository(db *gorm.DB) UserRepository {
	return &userRepository{db: db}
}

func (r *userRepository) Create(db *gorm.DB, user *models.User) error {
	if db == nil {
		db = r.db
	}
	return db.Create(user).Error
}

func (r *userRepository) GetByID(db *gorm.DB, id uint) (*models.User, error) {
	if db == nil {
		db = r.db
	}
	var user models.User
	if err := db.First(&user, "user_id = ?", id).Error; err != nil {
		return nil, err
	}
	return &user, nil
}

func (r *userRepository) GetByUsername(db *gorm.DB, username string) (*models.User, error) {
	if db == nil {
		db = r.db
	}
	var user models.User
	if err := db.Where("username = ?", username).First(&user).Error; err != nil {
		return nil, err
	}
	return &user, nil
}

func (r *userRepository) UpdateCredentials(db *gorm.DB, id uint, username, passwordHash string) error {
	if db == nil {
		db = r.db
	}
	return db.Model(&models.User{}).
		Where("user_id = ?", id).
		Updates(map[string]interface{}{
			"username": username,
			"password": passwordHash,
		}).Error
}

func (r *userRepository) Delete(db *gorm.DB, id uint) error {
	if db == nil {
		db = r.db
	}
	return db.Delete(&models.User{}, "user_id = ?", id).Error
}

type bookRepository struct {
	db *gorm.DB
}

func NewBookRepository(db *gorm.DB) BookRepository {
	return &bookRepository{db: db}
}

func (r *bookRepository) Create(db *gorm.DB, book *models.Book) error {
	if db == nil {
		db = r.db
	}
	return db.Create(book).Error
}

func (r *bookRepository) GetByID(db *gorm.DB, id uint) (*models.Book, error) {
	if db == nil {
		db = r.db
	}
	var book models.Book
	if err := db.First(&book, "book_id = ?", id).Error; err != nil {
		return nil, err
	}
	return &book, nil
}

// GetByIDForUpdate row-locks the book for the rest of the transaction.
// SQLite has no row locks; its single-writer model gives the same guarantee.
func (r *bookRepository) GetByIDForUpdate(db *gorm.DB, id uint) (*models.Book, error) {
	if db == nil {
		db = r.db
	}
	var book models.Book
	err := db.
		Clauses(clause.Locking{Strength: "UPDATE"}).
		First(&book, "book_id = ?", id).Error
	if err != nil {
		return nil, err
	}
	return &book, nil
}

// MarkCheckedOut flips an available book to checked out. It reports false
// when the book was no longer available.
func (r *bookRepository) MarkCheckedOut(db *gorm.DB, id, userID uint, due time.Time) (bool, error) {
	if db == nil {
		db = r.db
	}
	res := db.Model(&models.Book{}).
		Where("book_id = ? AND is_booked = ?", id, false).
		Updates(map[string]interface{}{
			"is_booked":         true,
			"booked_by_user_id": userID,
			"due_date":          due,
		})
	if res.Error != nil {
		return false, res.Error
	}
	return res.RowsAffected == 1, nil
}

func (r *bookRepository) MarkAvailable(db *gorm.DB, id uint) error {
	if db == nil {
		db = r.db
	}
	return db.Model(&models.Book{}).
		Where("book_id = ?", id).
		Updates(map[string]interface{}{
			"is_booked":         false,
			"booked_by_user_id": nil,
			"due_date":          nil,
		}).Error
}

func (r *bookRepository) UpdateDetails(db *gorm.DB, id uint, fields map[string]interface{}) error {
	if db == nil {
		db = r.db
	}
	return db.Model(&models.Book{}).Where("book_id = ?", id).Updates(fields).Error
}

func (r *bookRepository) CountHeldBy(db *gorm.DB, userID uint) (int64, error) {
	if db == nil {
		db = r.db
	}
	var n int64
	err := db.Model(&models.Book{}).
		Where("booked_by_user_id = ? AND is_booked = ?", userID, true).
		Count(&n).Error
	return n, err
}

// Trending counts checkouts since the given instant for every book. The
// window condition sits in the join so books without recent checkouts are
// kept with a zero count. Equal counts are ordered by book_id.
func (r *bookRepository) Trending(db *gorm.DB, since time.Time, limit int) ([]TrendingBook, error) {
	if db == nil {
		db = r.db
	}
	var rows []TrendingBook
	err := db.Table("books AS b").
		Select("b.*, COUNT(c.checkout_id) AS checkout_count").
		Joins("LEFT JOIN checkouts c ON c.book_id = b.book_id AND c.checkout_date >= ?", since).
		Group("b.book_id").
		Order("checkout_count DESC, b.book_id ASC").
		Limit(limit).
		Scan(&rows).Error
	if err != nil {
		return nil, err
	}
	return rows, nil
}

func (r *bookRepository) ListByAuthorExcluding(db *gorm.DB, author string, exclude []uint, limit int) ([]models.Book, error) {
	if db == nil {
		db = r.db
	}
	var books []models.Book
	err := excluding(db.Where("author = ?", author), exclude).
		Order("book_id").
		Limit(limit).
		Find(&books).Error
	return books, err
}

func (r *bookRepository) ListByYearExcluding(db *gorm.DB, year int, exclude []uint, limit int) ([]models.Book, error) {
	if db == nil {
		db = r.db
	}
	var books []models.Book
	err := excluding(db.Where("year_published = ?", year), exclude).
		Order("book_id").
		Limit(limit).
		Find(&books).Error
	return books, err
}

// ListCheckedOutByUserExcluding returns distinct books the user has ever
// checked out, minus the excluded ones.
func (r *bookRepository) ListCheckedOutByUserExcluding(db *gorm.DB, userID uint, exclude []uint, limit int) ([]models.Book, error) {
	if db == nil {
		db = r.db
	}
	borrowed := excluding(db.Session(&gorm.Session{NewDB: true}).
		Model(&models.Checkout{}).
		Select("book_id").
		Where("user_id = ?", userID), exclude)

	var books []models.Book
	err := db.Where("book_id IN (?)", borrowed).
		Order("book_id").
		Limit(limit).
		Find(&books).Error
	return books, err
}

func excluding(q *gorm.DB, ids []uint) *gorm.DB {
	if len(ids) == 0 {
		return q
	}
	return q.Where("book_id NOT IN ?", ids)
}

type checkoutRepository struct {
	db *gorm.DB
}

func NewCheckoutRepository(db *gorm.DB) CheckoutRepository {
	return &checkoutRepository{db: db}
}

func (r *checkoutRepository) Create(db *gorm.DB, checkout *models.Checkout) error {
	if db == nil {
		db = r.db
	}
	return db.Omit(clause.Associations).Create(checkout).Error
}

func (r *checkoutRepository) GetByID(db *gorm.DB, id uint) (*models.Checkout, error) {
	if db == nil {
		db = r.db
	}
	var checkout models.Checkout
	if err := db.First(&checkout, "checkout_id = ?", id).Error; err != nil {
		return nil, err
	}
	return &checkout, nil
}

func (r *checkoutRepository) GetByIDForUpdate(db *gorm.DB, id uint) (*models.Checkout, error) {
	if db == nil {
		db = r.db
	}
	var checkout models.Checkout
	err := db.
		Clauses(clause.Locking{Strength: "UPDATE"}).
		First(&checkout, "checkout_id = ?", id).Error
	if err != nil {
		return nil, err
	}
	return &checkout, nil
}

// MarkReturned closes an open checkout; false means it was already closed.
func (r *checkoutRepository) MarkReturned(db *gorm.DB, id uint, returnedAt time.Time) (bool, error) {
	if db == nil {
		db = r.db
	}
	res := db.Model(&models.Checkout{}).
		Where("checkout_id = ? AND is_returned = ?", id, false).
		Updates(map[string]interface{}{
			"is_returned": true,
			"return_date": returnedAt,
		})
	if res.Error != nil {
		return false, res.Error
	}
	return res.RowsAffected == 1, nil
}

func detailQuery(db *gorm.DB) *gorm.DB {
	return db.Table("checkouts AS c").
		Select("c.*, b.title, b.author, b.year_published, b.genre, b.image_url").
		Joins("JOIN books b ON b.book_id = c.book_id")
}

func (r *checkoutRepository) GetDetail(db *gorm.DB, id uint) (*CheckoutDetail, error) {
	if db == nil {
		db = r.db
	}
	var rows []CheckoutDetail
	if err := detailQuery(db).Where("c.checkout_id = ?", id).Limit(1).Scan(&rows).Error; err != nil {
		return nil, err
	}
	if len(rows) == 0 {
		return nil, gorm.ErrRecordNotFound
	}
	return &rows[0], nil
}

func (r *checkoutRepository) List(db *gorm.DB, f CheckoutFilter) ([]CheckoutDetail, error) {
	if db == nil {
		db = r.db
	}
	q := detailQuery(db)
	if f.UserID != nil {
		q = q.Where("c.user_id = ?", *f.UserID)
	}
	if f.Active != nil {
		q = q.Where("c.is_returned = ?", !*f.Active)
	}
	rows := []CheckoutDetail{}
	if err := q.Order("c.checkout_date DESC, c.checkout_id DESC").Scan(&rows).Error; err != nil {
		return nil, err
	}
	return rows, nil
}

func (r *checkoutRepository) RecentByUser(db *gorm.DB, userID uint, limit int) ([]SeedCheckout, error) {
	if db == nil {
		db = r.db
	}
	var rows []SeedCheckout
	err := db.Table("checkouts AS c").
		Select("c.checkout_id, c.book_id, b.author, b.year_published").
		Joins("JOIN books b ON b.book_id = c.book_id").
		Where("c.user_id = ?", userID).
		Order("c.checkout_date DESC, c.checkout_id DESC").
		Limit(limit).
		Scan(&rows).Error
	return rows, err
}

// UsersWhoBorrowed lists other users who checked out any of the books, in
// the order of their earliest such checkout.
func (r *checkoutRepository) UsersWhoBorrowed(db *gorm.DB, bookIDs []uint, excludeUser uint, limit int) ([]uint, error) {
	if db == nil {
		db = r.db
	}
	if len(bookIDs) == 0 {
		return nil, nil
	}
	var ids []uint
	err := db.Model(&models.Checkout{}).
		Where("book_id IN ? AND user_id <> ?", bookIDs, excludeUser).
		Group("user_id").
		Order("MIN(checkout_id)").
		Limit(limit).
		Pluck("user_id", &ids).Error
	return ids, err
}
