package repository

import (
	"context"

	"bookgate/pkg/models"

	"github.com/google/uuid"
)

// Database is the connection lifecycle every backend provides
type Database interface {
	Connect(ctx context.Context, connString string) error
	Close() error
	Ping(ctx context.Context) error
}

// BookRepository looks up catalog entries
type BookRepository interface {
	// GetByID returns the book or models.ErrBookNotFound
	GetByID(ctx context.Context, id uuid.UUID) (*models.Book, error)
}

// PurchaseRepository answers ownership questions
type PurchaseRepository interface {
	// HasCompletedPurchase reports whether userID holds a purchase of bookID
	// whose payment has completed
	HasCompletedPurchase(ctx context.Context, userID string, bookID uuid.UUID) (bool, error)
}

// Repository provides access to all repository interfaces
type Repository struct {
	Books     BookRepository
	Purchases PurchaseRepository
	db        Database
}

// NewRepository creates a new repository with the given database implementation
func NewRepository(db Database) *Repository {
	return &Repository{
		db: db,
	}
}

// Close closes the database connection
func (r *Repository) Close() error {
	if r.db == nil {
		return nil
	}
	return r.db.Close()
}

// Ping checks the database connection
func (r *Repository) Ping(ctx context.Context) error {
	if r.db == nil {
		return nil
	}
	return r.db.Ping(ctx)
}
