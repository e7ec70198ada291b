// Package entitlement decides which variant of a book a caller may receive.
package entitlement

import (
	"context"
	"fmt"
	"strings"

	"bookgate/pkg/models"
	"bookgate/pkg/repository"

	"github.com/google/uuid"
)

// Resolver computes access decisions from the catalog and purchase records.
// It holds no state between calls.
type Resolver struct {
	books         repository.BookRepository
	purchases     repository.PurchaseRepository
	trialSections int
}

// NewResolver creates a resolver. trialSections is reported by Summarize.
func NewResolver(books repository.BookRepository, purchases repository.PurchaseRepository, trialSections int) *Resolver {
	return &Resolver{
		books:         books,
		purchases:     purchases,
		trialSections: trialSections,
	}
}

// ParseAccessMode maps the mode query parameter. An empty value means trial.
func ParseAccessMode(s string) (models.AccessMode, error) {
	switch models.AccessMode(strings.ToLower(strings.TrimSpace(s))) {
	case "", models.AccessModeTrial:
		return models.AccessModeTrial, nil
	case models.AccessModeFull:
		return models.AccessModeFull, nil
	default:
		return "", fmt.Errorf("%w: %q", models.ErrInvalidAccessMode, s)
	}
}

// Resolve returns the decision for userID (empty when anonymous) asking for
// bookID in the requested mode, along with the book record. A full request
// without a completed purchase is denied rather than downgraded.
func (r *Resolver) Resolve(ctx context.Context, userID string, bookID uuid.UUID, requested models.AccessMode) (*models.AccessDecision, *models.Book, error) {
	book, err := r.lookup(ctx, bookID)
	if err != nil {
		return nil, nil, err
	}

	decision := &models.AccessDecision{
		BookID:        bookID,
		UserID:        userID,
		RequestedMode: requested,
	}

	switch requested {
	case models.AccessModeFull:
		owned, err := r.owns(ctx, userID, bookID)
		if err != nil {
			return nil, nil, err
		}
		if owned {
			decision.ResolvedMode = models.ResolvedFull
			decision.Reason = models.ReasonPurchased
		} else {
			decision.ResolvedMode = models.ResolvedDenied
			decision.Reason = models.ReasonRequiresPurchase
		}
	case models.AccessModeTrial, "":
		decision.RequestedMode = models.AccessModeTrial
		decision.ResolvedMode = models.ResolvedTrial
		decision.Reason = models.ReasonTrialRequested
	default:
		return nil, nil, fmt.Errorf("%w: %q", models.ErrInvalidAccessMode, requested)
	}

	return decision, book, nil
}

// Summarize reports what the caller could obtain for bookID without
// downloading anything.
func (r *Resolver) Summarize(ctx context.Context, userID string, bookID uuid.UUID) (*models.AccessSummary, error) {
	if _, err := r.lookup(ctx, bookID); err != nil {
		return nil, err
	}

	owned, err := r.owns(ctx, userID, bookID)
	if err != nil {
		return nil, err
	}

	return &models.AccessSummary{
		BookID:        bookID,
		HasPurchased:  owned,
		IsLoggedIn:    userID != "",
		TrialSections: r.trialSections,
	}, nil
}

func (r *Resolver) lookup(ctx context.Context, bookID uuid.UUID) (*models.Book, error) {
	book, err := r.books.GetByID(ctx, bookID)
	if err != nil {
		return nil, err
	}
	if !book.IsActive() {
		return nil, models.ErrBookNotFound
	}
	if !book.IsEbook() {
		return nil, models.ErrUnsupportedType
	}
	return book, nil
}

func (r *Resolver) owns(ctx context.Context, userID string, bookID uuid.UUID) (bool, error) {
	if userID == "" {
		return false, nil
	}
	return r.purchases.HasCompletedPurchase(ctx, userID, bookID)
}
