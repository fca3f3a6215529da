package main

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5/pgconn"

	ledgerservice "consent-ledger/internal/ledger/service"
	ledgerstore "consent-ledger/internal/ledger/store"
	dErrors "consent-ledger/pkg/domain-errors"
)

// pgLockNotAvailable is raised when lock_timeout expires.
const pgLockNotAvailable = "55P03"

// ledgerPostgresTx linearizes mutations of one entity with a transaction
// scoped advisory lock on the entity key.
type ledgerPostgresTx struct {
	db          *sql.DB
	lockTimeout time.Duration
	lockWait    func(time.Duration)
}

func newLedgerPostgresTx(db *sql.DB, lockTimeout time.Duration, lockWait func(time.Duration)) *ledgerPostgresTx {
	return &ledgerPostgresTx{db: db, lockTimeout: lockTimeout, lockWait: lockWait}
}

func (t *ledgerPostgresTx) RunInTx(ctx context.Context, key string, fn func(ctx context.Context, store ledgerservice.Store) error) error {
	if err := ctx.Err(); err != nil {
		return dErrors.Wrap(err, dErrors.CodeTimeout, "transaction aborted: context cancelled")
	}

	tx, err := t.db.BeginTx(ctx, nil)
	if err != nil {
		return dErrors.Wrap(err, dErrors.CodeInternal, "begin transaction")
	}
	defer func() {
		_ = tx.Rollback() //nolint:errcheck // rollback after commit is no-op; error already captured
	}()

	if _, err := tx.ExecContext(ctx, `SELECT set_config('lock_timeout', $1, true)`,
		fmt.Sprintf("%dms", t.lockTimeout.Milliseconds())); err != nil {
		return dErrors.Wrap(err, dErrors.CodeInternal, "set lock timeout")
	}

	lockStart := time.Now()
	if _, err := tx.ExecContext(ctx, `SELECT pg_advisory_xact_lock(hashtextextended($1, 0))`, key); err != nil {
		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) && pgErr.Code == pgLockNotAvailable {
			return dErrors.Wrap(err, dErrors.CodeTimeout, "transaction aborted: lock wait exceeded")
		}
		return dErrors.Wrap(err, dErrors.CodeInternal, "acquire entity lock")
	}
	if t.lockWait != nil {
		t.lockWait(time.Since(lockStart))
	}

	if err := fn(ctx, ledgerstore.NewPostgresTx(tx)); err != nil {
		return err
	}
	if err := tx.Commit(); err != nil {
		return dErrors.Wrap(err, dErrors.CodeInternal, "commit transaction")
	}
	return nil
}
