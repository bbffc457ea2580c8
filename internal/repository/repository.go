// Package repository implements all database queries for the registration
// system. It uses pgx directly (no ORM) for transparency and performance.
package repository

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/Shivanand-hulikatti/race-registration/internal/model"
	"github.com/Shivanand-hulikatti/race-registration/internal/ports"
)

// PostgreSQL error codes the store translates into domain errors.
const (
	codeUniqueViolation      = "23505"
	codeCheckViolation       = "23514"
	codeSerializationFailure = "40001"
	codeDeadlockDetected     = "40P01"
	codeLockNotAvailable     = "55P03"
)

// Store is the PostgreSQL-backed registration store.
type Store struct {
	db *pgxpool.Pool
}

var (
	_ ports.Store            = (*Store)(nil)
	_ ports.OutboxRepository = (*Store)(nil)
)

// NewStore constructs a Store.
func NewStore(db *pgxpool.Pool) *Store {
	return &Store{db: db}
}

// WithinTx runs fn inside a READ COMMITTED transaction.
//
// ─────────────────────────────────────────────────────────────────────────────
// WHY READ COMMITTED IS ENOUGH
// ─────────────────────────────────────────────────────────────────────────────
//
// Naive read-then-write approach (BROKEN):
//
//	tx A: SELECT current_participants FROM modalities WHERE id = M  → 9
//	tx B: SELECT current_participants FROM modalities WHERE id = M  → 9
//	tx A: max=10, 9 < 10, OK → UPDATE current_participants = 10
//	tx B: max=10, 9 < 10, OK → UPDATE current_participants = 10
//	Result: 11 registrations for a 10-slot modality. OVERSOLD.
//
// Every counter mutation issued through Tx is a single conditional UPDATE
// ("increment if below ceiling", "decrement if stays >= 0"). Under READ
// COMMITTED, PostgreSQL re-evaluates the WHERE clause against the latest
// committed row after waiting for a concurrent writer, so the loser sees
// the new value and updates zero rows. Zero rows means the reservation
// fails and the whole transaction rolls back: registration row, links,
// answers and any counters already touched.
// ─────────────────────────────────────────────────────────────────────────────
func (s *Store) WithinTx(ctx context.Context, fn func(ctx context.Context, tx ports.Tx) error) (err error) {
	pgTx, err := s.db.BeginTx(ctx, pgx.TxOptions{IsoLevel: pgx.ReadCommitted})
	if err != nil {
		return fmt.Errorf("begin transaction: %w", err)
	}
	defer func() {
		if err != nil {
			_ = pgTx.Rollback(context.WithoutCancel(ctx))
		}
	}()

	if err = fn(ctx, &Tx{tx: pgTx}); err != nil {
		return translate(err)
	}
	if err = pgTx.Commit(ctx); err != nil {
		return translate(fmt.Errorf("commit transaction: %w", err))
	}
	return nil
}

// translate maps concurrency failures reported by PostgreSQL to conflicts,
// so callers can tell "retry later" from an internal error.
func translate(err error) error {
	var pgErr *pgconn.PgError
	if !errors.As(err, &pgErr) {
		return err
	}
	switch pgErr.Code {
	case codeSerializationFailure, codeDeadlockDetected, codeLockNotAvailable:
		return fmt.Errorf("%w: %s", model.ErrContention, pgErr.Message)
	}
	return err
}

func isUniqueViolation(err error, constraint string) bool {
	var pgErr *pgconn.PgError
	return errors.As(err, &pgErr) && pgErr.Code == codeUniqueViolation &&
		(constraint == "" || pgErr.ConstraintName == constraint)
}

func isCheckViolation(err error) bool {
	var pgErr *pgconn.PgError
	return errors.As(err, &pgErr) && pgErr.Code == codeCheckViolation
}
