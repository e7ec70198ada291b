package postgres

import (
	"context"
	"database/sql"
	"testing"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/jmoiron/sqlx"
	"github.com/stretchr/testify/assert"
)

func TestNewPostgresDB(t *testing.T) {
	t.Run("defaults", func(t *testing.T) {
		db := NewPostgresDB(PoolConfig{})
		assert.NotNil(t, db)
		assert.Nil(t, db.db)
		assert.Equal(t, 25, db.pool.MaxOpenConns)
		assert.Equal(t, 5, db.pool.MaxIdleConns)
	})

	t.Run("explicit pool", func(t *testing.T) {
		db := NewPostgresDB(PoolConfig{MaxOpenConns: 10, MaxIdleConns: 2})
		assert.Equal(t, 10, db.pool.MaxOpenConns)
		assert.Equal(t, 2, db.pool.MaxIdleConns)
	})
}

func TestPostgresDB_Close(t *testing.T) {
	t.Run("Close with nil db", func(t *testing.T) {
		db := &PostgresDB{db: nil}
		err := db.Close()
		assert.NoError(t, err)
	})

	t.Run("Close with valid db", func(t *testing.T) {
		mockDB, mock, err := sqlmock.New()
		if err != nil {
			t.Fatalf("failed to create sqlmock: %v", err)
		}
		sqlxDB := sqlx.NewDb(mockDB, "sqlmock")

		db := &PostgresDB{db: sqlxDB}

		mock.ExpectClose()
		err = db.Close()
		assert.NoError(t, err)
		assert.NoError(t, mock.ExpectationsWereMet())
	})
}

func TestPostgresDB_Ping(t *testing.T) {
	t.Run("Ping with nil db", func(t *testing.T) {
		db := &PostgresDB{db: nil}
		err := db.Ping(context.Background())
		assert.Error(t, err)
		assert.Contains(t, err.Error(), "database not connected")
	})

	t.Run("Ping with valid db", func(t *testing.T) {
		mockDB, mock, err := sqlmock.New(sqlmock.MonitorPingsOption(true))
		if err != nil {
			t.Fatalf("failed to create sqlmock: %v", err)
		}
		defer mockDB.Close()

		db := &PostgresDB{db: sqlx.NewDb(mockDB, "sqlmock")}

		mock.ExpectPing()

		err = db.Ping(context.Background())
		assert.NoError(t, err)
		assert.NoError(t, mock.ExpectationsWereMet())
	})

	t.Run("Ping with error", func(t *testing.T) {
		mockDB, mock, err := sqlmock.New(sqlmock.MonitorPingsOption(true))
		if err != nil {
			t.Fatalf("failed to create sqlmock: %v", err)
		}
		defer mockDB.Close()

		db := &PostgresDB{db: sqlx.NewDb(mockDB, "sqlmock")}

		mock.ExpectPing().WillReturnError(sql.ErrConnDone)

		err = db.Ping(context.Background())
		assert.ErrorIs(t, err, sql.ErrConnDone)
		assert.NoError(t, mock.ExpectationsWereMet())
	})
}

func TestNewRepository_Wiring(t *testing.T) {
	mockDB, mock, err := sqlmock.New(sqlmock.MonitorPingsOption(true))
	if err != nil {
		t.Fatalf("failed to create sqlmock: %v", err)
	}

	repo := newRepository(&PostgresDB{db: sqlx.NewDb(mockDB, "sqlmock")})
	assert.IsType(t, &BookRepository{}, repo.Books)
	assert.IsType(t, &PurchaseRepository{}, repo.Purchases)

	mock.ExpectPing()
	mock.ExpectClose()
	assert.NoError(t, repo.Ping(context.Background()))
	assert.NoError(t, repo.Close())
	assert.NoError(t, mock.ExpectationsWereMet())
}
