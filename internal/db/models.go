package db

import (
	"time"
)

// Book is a catalog entry. Copies is the currently-available count; Available
// is derived from it (copies > 0) and recomputed by every mutation, never set
// independently.
type Book struct {
	ID              uint       `gorm:"primaryKey" json:"id"`
	Title           string     `gorm:"type:varchar(255);not null;index:idx_books_title" json:"title"`
	Author          string     `gorm:"type:varchar(255);not null;index:idx_books_author" json:"author"`
	Category        string     `gorm:"type:varchar(100);not null;index:idx_books_category" json:"category"`
	Publication     *string    `gorm:"type:varchar(255)" json:"publication"`
	PublicationDate *time.Time `gorm:"column:publicationdate" json:"publicationdate"`
	Copies          int        `gorm:"not null" json:"copies"`
	Available       bool       `gorm:"not null" json:"available"`
	CreatedAt       time.Time  `gorm:"not null;index:idx_books_created_at" json:"createdAt"`
}

// TableName specifies the table name for Book model
func (Book) TableName() string {
	return "books"
}

// IssuedBook is one ledger row: a single copy of a book held by a user while
// Returned is false. Rows are created atomically with the copy-count decrement
// and flipped (never deleted) by the return flow. A book's ledger history is
// removed together with the book, inside the delete transaction, so the FK
// below never blocks a permitted delete.
type IssuedBook struct {
	ID         uint       `gorm:"primaryKey" json:"id"`
	UserID     string     `gorm:"type:varchar(64);not null;index:idx_issued_books_user" json:"userId"`
	BookID     uint       `gorm:"not null;index:idx_issued_books_book" json:"bookId"`
	Book       *Book      `gorm:"foreignKey:BookID;constraint:OnDelete:RESTRICT" json:"book,omitempty"`
	IssuedAt   time.Time  `gorm:"not null" json:"issuedAt"`
	Returned   bool       `gorm:"not null" json:"returned"`
	ReturnedAt *time.Time `json:"returnedAt,omitempty"`
}

// TableName specifies the table name for IssuedBook model
func (IssuedBook) TableName() string {
	return "issued_books"
}
