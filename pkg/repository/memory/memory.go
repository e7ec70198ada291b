// Package memory is an in-process catalog used by tests and the CLI.
package memory

import (
	"context"
	"sync"

	"bookgate/pkg/models"
	"bookgate/pkg/repository"

	"github.com/google/uuid"
	"github.com/samber/lo"
)

// Store holds books and purchases in maps guarded by a RWMutex
type Store struct {
	mu        sync.RWMutex
	books     map[uuid.UUID]*models.Book
	purchases []*models.Purchase
}

// NewStore returns an empty store
func NewStore() *Store {
	return &Store{books: make(map[uuid.UUID]*models.Book)}
}

// NewRepository wraps a store as a repository.Repository
func NewRepository(s *Store) *repository.Repository {
	repo := repository.NewRepository(s)
	repo.Books = s
	repo.Purchases = s
	return repo
}

// PutBook inserts or replaces a book
func (s *Store) PutBook(book *models.Book) {
	s.mu.Lock()
	defer s.mu.Unlock()
	cp := *book
	s.books[book.ID] = &cp
}

// AddPurchase records a purchase
func (s *Store) AddPurchase(p *models.Purchase) {
	s.mu.Lock()
	defer s.mu.Unlock()
	cp := *p
	s.purchases = append(s.purchases, &cp)
}

// GetByID implements repository.BookRepository
func (s *Store) GetByID(ctx context.Context, id uuid.UUID) (*models.Book, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	s.mu.RLock()
	defer s.mu.RUnlock()

	book, ok := s.books[id]
	if !ok {
		return nil, models.ErrBookNotFound
	}
	cp := *book
	return &cp, nil
}

// HasCompletedPurchase implements repository.PurchaseRepository
func (s *Store) HasCompletedPurchase(ctx context.Context, userID string, bookID uuid.UUID) (bool, error) {
	if err := ctx.Err(); err != nil {
		return false, err
	}
	s.mu.RLock()
	defer s.mu.RUnlock()

	return lo.ContainsBy(s.purchases, func(p *models.Purchase) bool {
		return p.Grants(userID, bookID)
	}), nil
}

func (s *Store) Connect(context.Context, string) error { return nil }

func (s *Store) Close() error { return nil }

func (s *Store) Ping(context.Context) error { return nil }
