package models

import (
	"time"

	"gorm.io/gorm"
)

// LoanPeriodDays is the fixed number of days between checkout and due date.
const LoanPeriodDays = 7

// Publication years outside this range are treated as unknown.
const MinPublicationYear = 1800

type User struct {
	UserID    uint           `gorm:"column:user_id;primaryKey" json:"user_id"`
	Username  string         `gorm:"size:255;not null" json:"username"`
	Password  string         `gorm:"size:255;not null" json:"-"`
	CreatedAt time.Time      `json:"created_at"`
	DeletedAt gorm.DeletedAt `gorm:"index" json:"-"`
}

type Book struct {
	BookID         uint       `gorm:"column:book_id;primaryKey" json:"book_id"`
	ISBN           *string    `gorm:"column:isbn;size:32;uniqueIndex" json:"isbn"`
	Title          string     `gorm:"not null" json:"title"`
	Author         string     `gorm:"not null;index:idx_books_author" json:"author"`
	YearPublished  *int       `gorm:"index:idx_books_year" json:"year_published"`
	Genre          *string    `gorm:"size:64;index:idx_books_genre" json:"genre"`
	ImageURL       *string    `gorm:"column:image_url" json:"image_url"`
	IsBooked       bool       `gorm:"not null;default:false" json:"is_booked"`
	BookedByUserID *uint      `json:"booked_by_user_id"`
	BookedBy       *User      `gorm:"foreignKey:BookedByUserID;references:UserID;constraint:OnUpdate:CASCADE,OnDelete:SET NULL;" json:"-"`
	DueDate        *time.Time `json:"due_date"`
}

// Available reports whether nobody holds the book.
func (b *Book) Available() bool {
	return !b.IsBooked
}

type Checkout struct {
	CheckoutID   uint       `gorm:"column:checkout_id;primaryKey" json:"checkout_id"`
	BookID       uint       `gorm:"not null;index:idx_checkouts_book" json:"book_id"`
	Book         Book       `gorm:"constraint:OnUpdate:CASCADE,OnDelete:RESTRICT;" json:"-"`
	UserID       uint       `gorm:"not null;index:idx_checkouts_user" json:"user_id"`
	User         User       `gorm:"constraint:OnUpdate:CASCADE,OnDelete:RESTRICT;" json:"-"`
	CheckoutDate time.Time  `gorm:"not null;index:idx_checkouts_date" json:"checkout_date"`
	ReturnDate   *time.Time `json:"return_date"`
	DueDate      time.Time  `gorm:"not null" json:"due_date"`
	IsReturned   bool       `gorm:"not null;default:false" json:"is_returned"`
}
