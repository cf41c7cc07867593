package sqltx

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	txevents "github.com/littlemiaor/lib-txevents"
	"github.com/littlemiaor/lib-txevents/internal/nilcheck"
	"github.com/littlemiaor/lib-txevents/log"
)

var (
	ErrDBRequired       = errors.New("sql database is required")
	ErrNotifierRequired = errors.New("transaction notifier is required")
	ErrTxRequired       = errors.New("transaction is required")
	ErrTxOrder          = errors.New("transaction completion out of order")
	ErrAfterCommit      = errors.New("post-commit event flush failed")
)

// Notifier receives the transaction lifecycle notifications driving event
// reconciliation. *txevents.Dispatcher satisfies it.
type Notifier interface {
	NotifyBegin(ctx context.Context) int
	NotifyCommit(ctx context.Context) (txevents.FlushResult, error)
	NotifyRollback(ctx context.Context) int
	CurrentLevel() int
}

var _ Notifier = (*txevents.Dispatcher)(nil)

// DB pairs a *sql.DB with a Notifier so every transaction boundary reaches
// the dispatcher. The DB/Notifier pair inherits the dispatcher's
// confinement contract: one transaction stack, one execution context.
type DB struct {
	db       *sql.DB
	notifier Notifier
	logger   log.Logger
}

// Option configures a DB.
type Option func(*DB)

// WithLogger sets a structured logger for transaction lifecycle events.
func WithLogger(logger log.Logger) Option {
	return func(database *DB) {
		if nilcheck.Interface(logger) {
			return
		}

		database.logger = logger
	}
}

// New wraps db so its transactions notify the given notifier.
func New(db *sql.DB, notifier Notifier, opts ...Option) (*DB, error) {
	if db == nil {
		return nil, ErrDBRequired
	}

	if nilcheck.Interface(notifier) {
		return nil, ErrNotifierRequired
	}

	database := &DB{
		db:       db,
		notifier: notifier,
		logger:   log.NewNop(),
	}

	for _, opt := range opts {
		if opt != nil {
			opt(database)
		}
	}

	return database, nil
}

// Raw returns the underlying *sql.DB for operations outside a transaction.
func (database *DB) Raw() *sql.DB {
	if database == nil {
		return nil
	}

	return database.db
}

// BeginTx starts a driver transaction and notifies the dispatcher. The
// returned Tx is the outermost wrapper; open nested scopes with Tx.Begin.
func (database *DB) BeginTx(ctx context.Context, opts *sql.TxOptions) (*Tx, error) {
	if database == nil {
		return nil, ErrDBRequired
	}

	if ctx == nil {
		ctx = context.Background()
	}

	tx, err := database.db.BeginTx(ctx, opts)
	if err != nil {
		return nil, fmt.Errorf("begin transaction: %w", err)
	}

	level := database.notifier.NotifyBegin(ctx)

	return &Tx{
		tx:       tx,
		notifier: database.notifier,
		logger:   database.logger,
		level:    level,
	}, nil
}

// Tx is one transaction scope. The outermost scope owns the driver
// transaction; nested scopes are savepoints on the same driver transaction.
// Scopes must complete innermost-first; completing one out of order returns
// ErrTxOrder without touching the driver or the buffered events.
type Tx struct {
	tx        *sql.Tx
	notifier  Notifier
	logger    log.Logger
	level     int
	savepoint string
	done      bool
}

// Level returns the nesting level of this scope (1 = outermost).
func (transaction *Tx) Level() int {
	if transaction == nil {
		return 0
	}

	return transaction.level
}

// Begin opens a nested scope backed by a savepoint.
func (transaction *Tx) Begin(ctx context.Context) (*Tx, error) {
	if transaction == nil || transaction.tx == nil {
		return nil, ErrTxRequired
	}

	if transaction.done {
		return nil, sql.ErrTxDone
	}

	if ctx == nil {
		ctx = context.Background()
	}

	if err := transaction.checkOrder("begin"); err != nil {
		return nil, err
	}

	level := transaction.level + 1
	savepoint := savepointName(level)

	if _, err := transaction.tx.ExecContext(ctx, "SAVEPOINT "+savepoint); err != nil {
		return nil, fmt.Errorf("create savepoint %s: %w", savepoint, err)
	}

	transaction.notifier.NotifyBegin(ctx)

	return &Tx{
		tx:        transaction.tx,
		notifier:  transaction.notifier,
		logger:    transaction.logger,
		level:     level,
		savepoint: savepoint,
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
		return txevents.FlushResult{}, sql.ErrTxDone
	}

	if ctx == nil {
		ctx = context.Background()
	}

	if err := transaction.checkOrder("commit"); err != nil {
		return txevents.FlushResult{}, err
	}

	transaction.done = true

	if err := transaction.driverCommit(ctx); err != nil {
		discarded := transaction.notifier.NotifyRollback(ctx)

		if transaction.logger.Enabled(log.LevelDebug) {
			transaction.logger.Log(ctx, log.LevelDebug, "commit failed, discarded buffered events",
				log.Int("level", transaction.level),
				log.Int("discarded", discarded),
			)
		}

		return txevents.FlushResult{}, err
	}

	result, err := transaction.notifier.NotifyCommit(ctx)
	if err != nil {
		return result, fmt.Errorf("%w: %w", ErrAfterCommit, err)
	}

	return result, nil
}

// Rollback abandons this scope. The dispatcher is always notified, even
// when the driver rollback fails: events raised in an abandoned scope must
// never be delivered.
func (transaction *Tx) Rollback(ctx context.Context) error {
	if transaction == nil || transaction.tx == nil {
		return ErrTxRequired
	}

	if transaction.done {
		return sql.ErrTxDone
	}

	if ctx == nil {
		ctx = context.Background()
	}

	if err := transaction.checkOrder("rollback"); err != nil {
		return err
	}

	transaction.done = true

	var driverErr error

	if transaction.level == 1 {
		driverErr = transaction.tx.Rollback()
	} else {
		_, driverErr = transaction.tx.ExecContext(ctx, "ROLLBACK TO SAVEPOINT "+transaction.savepoint)
	}

	transaction.notifier.NotifyRollback(ctx)

	if driverErr != nil {
		return fmt.Errorf("rollback transaction: %w", driverErr)
	}

	return nil
}

// ExecContext runs a statement inside this transaction scope.
func (transaction *Tx) ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error) {
	if transaction == nil || transaction.tx == nil {
		return nil, ErrTxRequired
	}

	return transaction.tx.ExecContext(ctx, query, args...)
}

// QueryContext runs a query inside this transaction scope.
func (transaction *Tx) QueryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error) {
	if transaction == nil || transaction.tx == nil {
		return nil, ErrTxRequired
	}

	return transaction.tx.QueryContext(ctx, query, args...)
}

// QueryRowContext runs a single-row query inside this transaction scope.
func (transaction *Tx) QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row {
	if transaction == nil || transaction.tx == nil {
		return nil
	}

	return transaction.tx.QueryRowContext(ctx, query, args...)
}

func (transaction *Tx) driverCommit(ctx context.Context) error {
	if transaction.level == 1 {
		if err := transaction.tx.Commit(); err != nil {
			return fmt.Errorf("commit transaction: %w", err)
		}

		return nil
	}

	if _, err := transaction.tx.ExecContext(ctx, "RELEASE SAVEPOINT "+transaction.savepoint); err != nil {
		return fmt.Errorf("release savepoint %s: %w", transaction.savepoint, err)
	}

	return nil
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

func savepointName(level int) string {
	return fmt.Sprintf("txevents_%d", level)
}
