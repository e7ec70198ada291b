package memory

import (
	"context"
	"testing"

	"bookgate/pkg/models"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestStore_Books(t *testing.T) {
	ctx := context.Background()
	s := NewStore()
	book := &models.Book{ID: uuid.New(), Title: "Dracula", Type: models.BookTypeEbook, Status: models.BookStatusActive}
	s.PutBook(book)

	got, err := s.GetByID(ctx, book.ID)
	require.NoError(t, err)
	assert.Equal(t, "Dracula", got.Title)

	got.Title = "mutated"
	again, err := s.GetByID(ctx, book.ID)
	require.NoError(t, err)
	assert.Equal(t, "Dracula", again.Title, "store must hand out copies")

	_, err = s.GetByID(ctx, uuid.New())
	assert.ErrorIs(t, err, models.ErrBookNotFound)
}

func TestStore_HasCompletedPurchase(t *testing.T) {
	ctx := context.Background()
	s := NewStore()
	owned, pending, refunded := uuid.New(), uuid.New(), uuid.New()

	s.AddPurchase(&models.Purchase{ID: uuid.New(), UserID: "u1", BookID: owned, PaymentStatus: models.PaymentStatusCompleted})
	s.AddPurchase(&models.Purchase{ID: uuid.New(), UserID: "u1", BookID: pending, PaymentStatus: models.PaymentStatusPending})
	s.AddPurchase(&models.Purchase{ID: uuid.New(), UserID: "u1", BookID: refunded, PaymentStatus: models.PaymentStatusRefunded})

	tests := []struct {
		name   string
		user   string
		book   uuid.UUID
		expect bool
	}{
		{"completed", "u1", owned, true},
		{"pending", "u1", pending, false},
		{"refunded", "u1", refunded, false},
		{"other user", "u2", owned, false},
		{"anonymous", "", owned, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := s.HasCompletedPurchase(ctx, tt.user, tt.book)
			require.NoError(t, err)
			assert.Equal(t, tt.expect, got)
		})
	}
}

func TestStore_CancelledContext(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	s := NewStore()
	_, err := s.GetByID(ctx, uuid.New())
	assert.ErrorIs(t, err, context.Canceled)
	_, err = s.HasCompletedPurchase(ctx, "u", uuid.New())
	assert.ErrorIs(t, err, context.Canceled)
}

func TestNewRepository(t *testing.T) {
	repo := NewRepository(NewStore())
	assert.NotNil(t, repo.Books)
	assert.NotNil(t, repo.Purchases)
	assert.NoError(t, repo.Ping(context.Background()))
	assert.NoError(t, repo.Close())
}
