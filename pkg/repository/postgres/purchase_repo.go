package postgres

import (
	"context"
	"fmt"

	"bookgate/pkg/models"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"
)

// PurchaseRepository implements repository.PurchaseRepository for PostgreSQL
type PurchaseRepository struct {
	db sqlx.ExtContext
}

// NewPurchaseRepository creates a new PostgreSQL purchase repository
func NewPurchaseRepository(db sqlx.ExtContext) *PurchaseRepository {
	return &PurchaseRepository{db: db}
}

// HasCompletedPurchase reports whether the user owns the book
func (r *PurchaseRepository) HasCompletedPurchase(ctx context.Context, userID string, bookID uuid.UUID) (bool, error) {
	query := `
		SELECT EXISTS (
			SELECT 1 FROM purchases
			WHERE user_id = $1 AND book_id = $2 AND payment_status = $3
		)
	`
	var exists bool
	if err := sqlx.GetContext(ctx, r.db, &exists, query, userID, bookID, models.PaymentStatusCompleted); err != nil {
		return false, fmt.Errorf("%w: failed to check purchase: %w", models.ErrDatabaseQuery, err)
	}
	return exists, nil
}
