package postgres

import (
	"context"
	"fmt"

	"bookgate/pkg/models"
	"bookgate/pkg/repository"

	"github.com/jmoiron/sqlx"
	_ "github.com/lib/pq"
)

// PoolConfig bounds the connection pool
type PoolConfig struct {
	MaxOpenConns int
	MaxIdleConns int
}

// PostgresDB implements the Database interface for PostgreSQL
type PostgresDB struct {
	db   *sqlx.DB
	pool PoolConfig
}

// NewPostgresDB creates a new PostgreSQL database instance
func NewPostgresDB(pool PoolConfig) *PostgresDB {
	if pool.MaxOpenConns <= 0 {
		pool.MaxOpenConns = 25
	}
	if pool.MaxIdleConns <= 0 {
		pool.MaxIdleConns = 5
	}
	return &PostgresDB{pool: pool}
}

// Connect establishes a connection to the PostgreSQL database
func (p *PostgresDB) Connect(ctx context.Context, connString string) error {
	db, err := sqlx.ConnectContext(ctx, "postgres", connString)
	if err != nil {
		return fmt.Errorf("%w: %w", models.ErrDatabaseConnection, err)
	}

	db.SetMaxOpenConns(p.pool.MaxOpenConns)
	db.SetMaxIdleConns(p.pool.MaxIdleConns)

	p.db = db
	return nil
}

// Close closes the database connection
func (p *PostgresDB) Close() error {
	if p.db != nil {
		return p.db.Close()
	}
	return nil
}

// Ping checks if the database connection is alive
func (p *PostgresDB) Ping(ctx context.Context) error {
	if p.db == nil {
		return fmt.Errorf("database not connected")
	}
	return p.db.PingContext(ctx)
}

// DB returns the underlying sqlx.DB instance
func (p *PostgresDB) DB() *sqlx.DB {
	return p.db
}

// NewRepository connects to PostgreSQL and returns the book and purchase
// repositories bound to the connection
func NewRepository(ctx context.Context, connString string, pool PoolConfig) (*repository.Repository, error) {
	db := NewPostgresDB(pool)

	if err := db.Connect(ctx, connString); err != nil {
		return nil, err
	}

	return newRepository(db), nil
}

func newRepository(db *PostgresDB) *repository.Repository {
	repo := repository.NewRepository(db)
	repo.Books = NewBookRepository(db.DB())
	repo.Purchases = NewPurchaseRepository(db.DB())
	return repo
}
