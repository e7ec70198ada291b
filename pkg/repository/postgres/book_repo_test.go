package postgres

import (
	"context"
	"database/sql"
	"testing"
	"time"

	"bookgate/pkg/models"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var bookColumns = []string{"id", "title", "author", "type", "file_path", "file_size", "status", "created_at", "updated_at"}

func setupBookRepoTest(t *testing.T) (*BookRepository, sqlmock.Sqlmock, func()) {
	db, mock, err := sqlmock.New()
	if err != nil {
		t.Fatalf("failed to create sqlmock: %v", err)
	}

	sqlxDB := sqlx.NewDb(db, "sqlmock")
	repo := NewBookRepository(sqlxDB)

	cleanup := func() {
		db.Close()
	}

	return repo, mock, cleanup
}

func TestBookRepository_GetByID(t *testing.T) {
	ctx := context.Background()
	bookID := uuid.New()
	now := time.Now().UTC()

	t.Run("found", func(t *testing.T) {
		repo, mock, cleanup := setupBookRepoTest(t)
		defer cleanup()

		rows := sqlmock.NewRows(bookColumns).
			AddRow(bookID.String(), "Moby-Dick", "Herman Melville", "ebook", "books/moby.epub", int64(812345), "active", now, now)
		mock.ExpectQuery("SELECT (.+) FROM books WHERE id = \\$1").
			WithArgs(bookID).
			WillReturnRows(rows)

		book, err := repo.GetByID(ctx, bookID)
		require.NoError(t, err)
		assert.Equal(t, bookID, book.ID)
		assert.Equal(t, "Moby-Dick", book.Title)
		assert.Equal(t, models.BookTypeEbook, book.Type)
		assert.Equal(t, "books/moby.epub", book.FilePath)
		assert.Equal(t, int64(812345), book.FileSize)
		assert.True(t, book.IsActive())
		assert.NoError(t, mock.ExpectationsWereMet())
	})

	t.Run("deleted book is returned as stored", func(t *testing.T) {
		repo, mock, cleanup := setupBookRepoTest(t)
		defer cleanup()

		rows := sqlmock.NewRows(bookColumns).
			AddRow(bookID.String(), "Gone", "Nobody", "ebook", "books/gone.epub", int64(10), "deleted", now, now)
		mock.ExpectQuery("SELECT (.+) FROM books").WithArgs(bookID).WillReturnRows(rows)

		book, err := repo.GetByID(ctx, bookID)
		require.NoError(t, err)
		assert.False(t, book.IsActive())
	})

	t.Run("not found", func(t *testing.T) {
		repo, mock, cleanup := setupBookRepoTest(t)
		defer cleanup()

		mock.ExpectQuery("SELECT (.+) FROM books").
			WithArgs(bookID).
			WillReturnError(sql.ErrNoRows)

		book, err := repo.GetByID(ctx, bookID)
		assert.Nil(t, book)
		assert.ErrorIs(t, err, models.ErrBookNotFound)
		assert.NoError(t, mock.ExpectationsWereMet())
	})

	t.Run("query error", func(t *testing.T) {
		repo, mock, cleanup := setupBookRepoTest(t)
		defer cleanup()

		mock.ExpectQuery("SELECT (.+) FROM books").
			WithArgs(bookID).
			WillReturnError(sql.ErrConnDone)

		book, err := repo.GetByID(ctx, bookID)
		assert.Nil(t, book)
		assert.ErrorIs(t, err, models.ErrDatabaseQuery)
		assert.ErrorIs(t, err, sql.ErrConnDone)
		assert.NotErrorIs(t, err, models.ErrBookNotFound)
	})
}
