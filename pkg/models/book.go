package models

import (
	"time"

	"github.com/google/uuid"
)

// BookType distinguishes the delivery format of a catalog entry
type BookType string

const (
	BookTypeEbook     BookType = "ebook"
	BookTypeAudiobook BookType = "audiobook"
)

// BookStatus is the lifecycle state of a catalog entry
type BookStatus string

const (
	BookStatusActive  BookStatus = "active"
	BookStatusDeleted BookStatus = "deleted"
)

// Book is a catalog entry whose packaged file is held by the storage backend
type Book struct {
	ID        uuid.UUID  `json:"id" db:"id"`
	Title     string     `json:"title" db:"title"`
	Author    string     `json:"author" db:"author"`
	Type      BookType   `json:"type" db:"type"`
	FilePath  string     `json:"-" db:"file_path"`
	FileSize  int64      `json:"file_size" db:"file_size"`
	Status    BookStatus `json:"status" db:"status"`
	CreatedAt time.Time  `json:"created_at" db:"created_at"`
	UpdatedAt time.Time  `json:"updated_at" db:"updated_at"`
}

// IsActive reports whether the book may be served at all
func (b *Book) IsActive() bool {
	return b != nil && b.Status == BookStatusActive
}

// IsEbook reports whether the book has a packaged EPUB file
func (b *Book) IsEbook() bool {
	return b != nil && b.Type == BookTypeEbook
}

// PaymentStatus is the settlement state of a purchase
type PaymentStatus string

const (
	PaymentStatusPending   PaymentStatus = "pending"
	PaymentStatusCompleted PaymentStatus = "completed"
	PaymentStatusFailed    PaymentStatus = "failed"
	PaymentStatusRefunded  PaymentStatus = "refunded"
)

// Purchase links a user to a book they paid for
type Purchase struct {
	ID            uuid.UUID     `json:"id" db:"id"`
	UserID        string        `json:"user_id" db:"user_id"`
	BookID        uuid.UUID     `json:"book_id" db:"book_id"`
	Amount        float64       `json:"amount" db:"amount"`
	PaymentMethod string        `json:"payment_method" db:"payment_method"`
	PaymentStatus PaymentStatus `json:"payment_status" db:"payment_status"`
	PurchaseMonth string        `json:"purchase_month" db:"purchase_month"`
	CreatedAt     time.Time     `json:"created_at" db:"created_at"`
}

// Grants reports whether the purchase confers full access to bookID for userID
func (p *Purchase) Grants(userID string, bookID uuid.UUID) bool {
	return p != nil &&
		p.UserID == userID &&
		p.BookID == bookID &&
		p.PaymentStatus == PaymentStatusCompleted
}
