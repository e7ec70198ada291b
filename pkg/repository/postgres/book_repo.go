package postgres

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"bookgate/pkg/models"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"
)

// BookRepository implements repository.BookRepository for PostgreSQL
type BookRepository struct {
	db sqlx.ExtContext
}

// NewBookRepository creates a new PostgreSQL book repository
func NewBookRepository(db sqlx.ExtContext) *BookRepository {
	return &BookRepository{db: db}
}

// GetByID retrieves a book by ID. Deleted books are returned as stored; the
// caller decides whether they may be served.
func (r *BookRepository) GetByID(ctx context.Context, id uuid.UUID) (*models.Book, error) {
	query := `
		SELECT id, title, author, type, file_path, file_size, status, created_at, updated_at
		FROM books
		WHERE id = $1
	`
	var book models.Book
	err := sqlx.GetContext(ctx, r.db, &book, query, id)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, models.ErrBookNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("%w: failed to get book: %w", models.ErrDatabaseQuery, err)
	}
	return &book, nil
}
