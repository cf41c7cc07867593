package pgxtx

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"

	txevents "github.com/littlemiaor/lib-txevents"
	"github.com/littlemiaor/lib-txevents/internal/nilcheck"
	"github.com/littlemiaor/lib-txevents/log"
)

var (
	ErrBeginnerRequired = errors.New("transaction beginner is required")
	ErrNotifierRequired = errors.New("transaction notifier is required")
	ErrTxRequired       = errors.New("transaction is required")
	ErrTxOrder          = errors.New("transaction completion out of order")
	ErrAfterCommit      = errors.New("post-commit event flush failed")
)

// Beginner starts a driver transaction. *pgx.Conn and *pgxpool.Pool both
// satisfy it.
type Beginner interface {
	Begin(ctx context.Context) (pgx.Tx, error)
}

var _ Beginner = (*pgx.Conn)(nil)

// Notifier receives the transaction lifecycle notifications driving event
// reconciliation. *txevents.Dispatcher satisfies it.
type Notifier interface {
	NotifyBegin(ctx context.Context) int
	NotifyCommit(ctx context.Context) (txevents.FlushResult, error)
	NotifyRollback(ctx context.Context) int
	CurrentLevel() int
}

var _ Notifier = (*txevents.Dispatcher)(nil)

// Option configures a Tx returned by Begin.
type Option func(*Tx)

// WithLogger sets a structured logger for transaction lifecycle events.
// Nested scopes inherit it.
func WithLogger(logger log.Logger) Option {
	return func(transaction *Tx) {
		if nilcheck.Interface(logger) {
			return
		}

		transaction.logger = logger
	}
}

// Begin starts an outermost transaction on beginner and notifies the
// dispatcher. Open nested scopes with Tx.Begin.
func Begin(ctx context.Context, beginner Beginner, notifier Notifier, opts ...Option) (*Tx, error) {
	if nilcheck.Interface(beginner) {
		return nil, ErrBeginnerRequired
	}

	if nilcheck.Interface(notifier) {
		return nil, ErrNotifierRequired
	}

	if ctx == nil {
		ctx = context.Background()
	}

	tx, err := beginner.Begin(ctx)
	if err != nil {
		return nil, fmt.Errorf("begin transaction: %w", err)
	}

	level := notifier.NotifyBegin(ctx)

	transaction := &Tx{
		tx:       tx,
		notifier: notifier,
		logger:   log.NewNop(),
		level:    level,
	}

	for _, opt := range opts {
		if opt != nil {
			opt(transaction)
		}
	}

	return transaction, nil
}

// Tx is one transaction scope over a pgx.Tx. Scopes must complete
// innermost-first; completing one out of order returns ErrTxOrder without
// touching the driver or the buffered events. Deferring Rollback on every
// scope satisfies the ordering and is a no-op once the scope completed.
type Tx struct {
	tx       pgx.Tx
	notifier Notifier
	logger   log.Logger
	level    int
	done     bool
}

// Level returns the nesting level of this scope (1 = outermost).
func (transaction *Tx) Level() int {
	if transaction == nil {
		return 0
	}

	return transaction.level
}

// Raw returns the underlying pgx.Tx for operations this wrapper does not
// surface. Completing the transaction through it bypasses event
// reconciliation.
func (transaction *Tx) Raw() pgx.Tx {
	if transaction == nil {
		return nil
	}

	return transaction.tx
}

// Begin opens a nested scope backed by a pgx savepoint.
func (transaction *Tx) Begin(ctx context.Context) (*Tx, error) {
	if transaction == nil || transaction.tx == nil {
		return nil, ErrTxRequired
	}

	if transaction.done {
		return nil, pgx.ErrTxClosed
	}

	if ctx == nil {
		ctx = context.Background()
	}

	if err := transaction.checkOrder("begin"); err != nil {
		return nil, err
	}

	nested, err := transaction.tx.Begin(ctx)
	if err != nil {
		return nil, fmt.Errorf("begin nested transaction: %w", err)
	}

	level := transaction.notifier.NotifyBegin(ctx)

	return &Tx{
		tx:       nested,
		notifier: transaction.notifier,
		logger:   transaction.logger,
		level:    level,
	}, nil
}

// Commit completes this scope. The outermost scope commits the driver
// transaction and flushes the buffered events; a nested scope releases its
// savepoint, demoting its events to the parent. When the driver succeeds
// but the flush fails, the error wraps ErrAfterCommit: the database changes
// are durable and only event delivery failed. When the driver fails, the
// scope's buffered events are discarded.
func (transaction *Tx) Commit(ctx context.Context) (txevents.FlushResult, error) {
	if transaction == nil || transaction.tx == nil {
		return txevents.FlushResult{}, ErrTxRequired
	}

	if transaction.done {
		return txevents.FlushResult{}, pgx.ErrTxClosed
	}

	if ctx == nil {
		ctx = context.Background()
	}

	if err := transaction.checkOrder("commit"); err != nil {
		return txevents.FlushResult{}, err
	}

	transaction.done = true

	if err := transaction.tx.Commit(ctx); err != nil {
		discarded := transaction.notifier.NotifyRollback(ctx)

		if transaction.logger.Enabled(log.LevelDebug) {
			transaction.logger.Log(ctx, log.LevelDebug, "commit failed, discarded buffered events",
				log.Int("level", transaction.level),
				log.Int("discarded", discarded),
			)
		}

		return txevents.FlushResult{}, fmt.Errorf("commit transaction: %w", err)
	}

	result, err := transaction.notifier.NotifyCommit(ctx)
	if err != nil {
		return result, fmt.Errorf("%w: %w", ErrAfterCommit, err)
	}

	return result, nil
}

// Rollback abandons this scope. Calling it after the scope completed is a
// no-op, so it is safe to defer alongside Commit. The dispatcher is always
// notified on an active scope, even when the driver reports the
// transaction already closed: events raised in an abandoned scope must
// never be delivered.
func (transaction *Tx) Rollback(ctx context.Context) error {
	if transaction == nil || transaction.tx == nil {
		return ErrTxRequired
	}

	if transaction.done {
		return nil
	}

	if ctx == nil {
		ctx = context.Background()
	}

	if err := transaction.checkOrder("rollback"); err != nil {
		return err
	}

	transaction.done = true

	driverErr := transaction.tx.Rollback(ctx)
	if errors.Is(driverErr, pgx.ErrTxClosed) {
		driverErr = nil
	}

	transaction.notifier.NotifyRollback(ctx)

	if driverErr != nil {
		return fmt.Errorf("rollback transaction: %w", driverErr)
	}

	return nil
}

// Exec runs a statement inside this transaction scope.
func (transaction *Tx) Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error) {
	if transaction == nil || transaction.tx == nil {
		return pgconn.CommandTag{}, ErrTxRequired
	}

	return transaction.tx.Exec(ctx, sql, args...)
}

// Query runs a query inside this transaction scope.
func (transaction *Tx) Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error) {
	if transaction == nil || transaction.tx == nil {
		return nil, ErrTxRequired
	}

	return transaction.tx.Query(ctx, sql, args...)
}

// QueryRow runs a single-row query inside this transaction scope.
func (transaction *Tx) QueryRow(ctx context.Context, sql string, args ...any) pgx.Row {
	if transaction == nil || transaction.tx == nil {
		return nil
	}

	return transaction.tx.QueryRow(ctx, sql, args...)
}

// checkOrder rejects completion of a scope that is not the innermost
// active one.
func (transaction *Tx) checkOrder(operation string) error {
	current := transaction.notifier.CurrentLevel()
	if current == transaction.level {
		return nil
	}

	return fmt.Errorf("%w: %s at level %d while level %d is active",
		ErrTxOrder, operation, transaction.level, current)
}
