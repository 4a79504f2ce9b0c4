package database

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
)

const uniqueViolation = "23505"

var (
	ErrRegistrationNotFound   = errors.New("registration not found")
	ErrRegistrationEmailTaken = errors.New("registration email already in use")
	ErrHotelBookingNotFound   = errors.New("hotel booking not found")
	ErrRoomTypeNotFound       = errors.New("room type not found")
	ErrAdminUserNotFound      = errors.New("admin user not found")
	ErrAdminUserEmailTaken    = errors.New("admin user email already in use")
)

type OrderBy int

const (
	OrderByASC OrderBy = iota
	OrderByDESC
)

func (o OrderBy) SQL() string {
	if o == OrderByASC {
		return "ASC"
	}
	return "DESC"
}

type PaymentStatus string

const (
	PaymentStatusPending   PaymentStatus = "pending"
	PaymentStatusPaid      PaymentStatus = "paid"
	PaymentStatusFailed    PaymentStatus = "failed"
	PaymentStatusRefunded  PaymentStatus = "refunded"
	PaymentStatusAbandoned PaymentStatus = "abandoned"
)

type Database struct {
	Pool *pgxpool.Pool
}

func NewDatabase() Database {
	return Database{
		Pool: nil,
	}
}

func (db *Database) Connect(ctx context.Context, connString string) error {
	config, err := pgxpool.ParseConfig(connString)
	if err != nil {
		return fmt.Errorf("database: unable to parse configuration: %w", err)
	}

	db.Pool, err = pgxpool.NewWithConfig(ctx, config)
	if err != nil {
		return fmt.Errorf("database: unable to create pool: %w", err)
	}

	if err := db.Pool.Ping(ctx); err != nil {
		db.Pool.Close()
		return fmt.Errorf("database: unable to reach server: %w", err)
	}

	return nil
}

func (db *Database) Close() {
	if db.Pool != nil {
		db.Pool.Close()
	}
}

func (db *Database) Ping(ctx context.Context) error {
	return db.Pool.Ping(ctx)
}

// withTx runs fn inside a transaction, committing when fn returns nil.
func (db *Database) withTx(ctx context.Context, fn func(tx pgx.Tx) error) error {
	tx, err := db.Pool.Begin(ctx)
	if err != nil {
		return fmt.Errorf("database: failed to begin transaction: %w", err)
	}
	defer tx.Rollback(ctx)

	if err := fn(tx); err != nil {
		return err
	}

	if err := tx.Commit(ctx); err != nil {
		return fmt.Errorf("database: failed to commit transaction: %w", err)
	}
	return nil
}

func isUniqueViolation(err error) bool {
	var pgErr *pgconn.PgError
	return errors.As(err, &pgErr) && pgErr.Code == uniqueViolation
}
