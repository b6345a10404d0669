package postgres

import (
	"context"
	"errors"
	"fmt"

	domainErrors "github.com/carenet/payments/internal/domain/errors"
	"github.com/carenet/payments/internal/domain/transaction"
	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
)

// TransactionRepository implements transaction.Repository using PostgreSQL.
type TransactionRepository struct {
	pool *pgxpool.Pool
}

// NewTransactionRepository creates a new TransactionRepository.
func NewTransactionRepository(pool *pgxpool.Pool) *TransactionRepository {
	return &TransactionRepository{pool: pool}
}

func (r *TransactionRepository) db(ctx context.Context) DBTX {
	return ConnFromCtx(ctx, r.pool)
}

// scanner is satisfied by both pgx.Row and pgx.Rows.
type scanner interface {
	Scan(dest ...any) error
}

const transactionColumns = `id, provider, transaction_id, order_id, amount, currency,
	        status, customer_phone, escrow_id, created_at, updated_at`

// Create inserts a new provider transaction.
func (r *TransactionRepository) Create(ctx context.Context, t *transaction.ProviderTransaction) error {
	_, err := r.db(ctx).Exec(ctx,
		`INSERT INTO provider_transactions
		 (id, provider, transaction_id, order_id, amount, currency,
		  status, customer_phone, escrow_id, created_at, updated_at)
		 VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11)`,
		t.ID, string(t.Provider), t.TransactionID, t.OrderID,
		poishaToNumericString(t.Amount.Value), t.Amount.Currency,
		string(t.Status), t.CustomerPhone, t.EscrowID, t.CreatedAt, t.UpdatedAt,
	)
	if err != nil {
		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) && pgErr.Code == "23505" {
			return domainErrors.NewDomainError("duplicate_transaction",
				"transaction already recorded for provider", domainErrors.ErrInvalidInput)
		}
		return fmt.Errorf("insert transaction: %w", err)
	}
	return nil
}

// GetByID retrieves a transaction by its internal ID.
func (r *TransactionRepository) GetByID(ctx context.Context, id uuid.UUID) (*transaction.ProviderTransaction, error) {
	return r.scanTransaction(r.db(ctx).QueryRow(ctx,
		`SELECT `+transactionColumns+` FROM provider_transactions WHERE id = $1`, id))
}

// GetByTransactionID retrieves a transaction by provider and gateway ID.
func (r *TransactionRepository) GetByTransactionID(ctx context.Context, provider transaction.Provider, transactionID string) (*transaction.ProviderTransaction, error) {
	return r.scanTransaction(r.db(ctx).QueryRow(ctx,
		`SELECT `+transactionColumns+` FROM provider_transactions
		 WHERE provider = $1 AND transaction_id = $2`,
		string(provider), transactionID))
}

// List lists transactions with optional filters, newest first.
func (r *TransactionRepository) List(ctx context.Context, f transaction.ListFilter) ([]*transaction.ProviderTransaction, error) {
	query := `SELECT ` + transactionColumns + ` FROM provider_transactions WHERE 1=1`
	args := []any{}
	argIdx := 1

	if f.Provider != nil {
		query += fmt.Sprintf(" AND provider = $%d", argIdx)
		args = append(args, string(*f.Provider))
		argIdx++
	}
	if f.Status != nil {
		query += fmt.Sprintf(" AND status = $%d", argIdx)
		args = append(args, string(*f.Status))
		argIdx++
	}

	query += " ORDER BY created_at DESC"

	limit := f.Limit
	if limit <= 0 {
		limit = 20
	}
	query += fmt.Sprintf(" LIMIT $%d OFFSET $%d", argIdx, argIdx+1)
	args = append(args, limit, f.Offset)

	rows, err := r.db(ctx).Query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("list transactions: %w", err)
	}
	defer rows.Close()

	var transactions []*transaction.ProviderTransaction
	for rows.Next() {
		t, err := r.scanTransaction(rows)
		if err != nil {
			return nil, err
		}
		transactions = append(transactions, t)
	}
	return transactions, rows.Err()
}

// TransitionStatus performs a conditional status update guarded on the
// stored status still being from. Zero rows affected means another
// writer already moved the transaction on.
func (r *TransactionRepository) TransitionStatus(ctx context.Context, id uuid.UUID, from, to transaction.Status) error {
	tag, err := r.db(ctx).Exec(ctx,
		`UPDATE provider_transactions SET status = $1, updated_at = NOW()
		 WHERE id = $2 AND status = $3`,
		string(to), id, string(from),
	)
	if err != nil {
		return fmt.Errorf("transition transaction status: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return domainErrors.NewDomainError(
			"invalid_transition",
			fmt.Sprintf("transaction is no longer %s", from),
			domainErrors.ErrInvalidStateTransition,
		)
	}
	return nil
}

// LinkEscrow attaches the escrow created for a completed transaction.
func (r *TransactionRepository) LinkEscrow(ctx context.Context, id, escrowID uuid.UUID) error {
	tag, err := r.db(ctx).Exec(ctx,
		`UPDATE provider_transactions SET escrow_id = $1, updated_at = NOW() WHERE id = $2`,
		escrowID, id,
	)
	if err != nil {
		return fmt.Errorf("link escrow: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return domainErrors.ErrTransactionNotFound
	}
	return nil
}

// AddLogEntry appends to the transaction log.
func (r *TransactionRepository) AddLogEntry(ctx context.Context, entry *transaction.LogEntry) error {
	_, err := r.db(ctx).Exec(ctx,
		`INSERT INTO transaction_log (id, transaction_ref, previous_status, new_status, reason, created_at)
		 VALUES ($1, $2, $3, $4, $5, $6)`,
		entry.ID, entry.TransactionRef, string(entry.PreviousStatus), string(entry.NewStatus),
		entry.Reason, entry.CreatedAt,
	)
	if err != nil {
		return fmt.Errorf("insert transaction log entry: %w", err)
	}
	return nil
}

// GetLogEntries retrieves the log for a transaction, oldest first.
func (r *TransactionRepository) GetLogEntries(ctx context.Context, transactionRef uuid.UUID) ([]*transaction.LogEntry, error) {
	rows, err := r.db(ctx).Query(ctx,
		`SELECT id, transaction_ref, previous_status, new_status, reason, created_at
		 FROM transaction_log WHERE transaction_ref = $1 ORDER BY created_at ASC`, transactionRef,
	)
	if err != nil {
		return nil, fmt.Errorf("list transaction log: %w", err)
	}
	defer rows.Close()

	var entries []*transaction.LogEntry
	for rows.Next() {
		e := &transaction.LogEntry{}
		var prev, next string
		if err := rows.Scan(&e.ID, &e.TransactionRef, &prev, &next, &e.Reason, &e.CreatedAt); err != nil {
			return nil, fmt.Errorf("scan log entry: %w", err)
		}
		e.PreviousStatus = transaction.Status(prev)
		e.NewStatus = transaction.Status(next)
		entries = append(entries, e)
	}
	return entries, rows.Err()
}

// --- scanning helpers ---

func (r *TransactionRepository) scanTransaction(s scanner) (*transaction.ProviderTransaction, error) {
	t := &transaction.ProviderTransaction{}
	var (
		provider  string
		amountStr string
		status    string
	)
	err := s.Scan(
		&t.ID, &provider, &t.TransactionID, &t.OrderID, &amountStr, &t.Amount.Currency,
		&status, &t.CustomerPhone, &t.EscrowID, &t.CreatedAt, &t.UpdatedAt,
	)
	if err != nil {
		if err == pgx.ErrNoRows {
			return nil, domainErrors.ErrTransactionNotFound
		}
		return nil, fmt.Errorf("scan transaction: %w", err)
	}

	poisha, err := numericStringToPoisha(amountStr)
	if err != nil {
		return nil, fmt.Errorf("parse amount: %w", err)
	}
	t.Amount.Value = poisha
	t.Provider = transaction.Provider(provider)
	t.Status = transaction.Status(status)
	return t, nil
}
