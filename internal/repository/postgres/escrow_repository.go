package postgres

import (
	"context"
	"fmt"

	domainErrors "github.com/carenet/payments/internal/domain/errors"
	"github.com/carenet/payments/internal/domain/escrow"
	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

// EscrowRepository implements escrow.Repository using PostgreSQL.
type EscrowRepository struct {
	pool *pgxpool.Pool
}

// NewEscrowRepository creates a new EscrowRepository.
func NewEscrowRepository(pool *pgxpool.Pool) *EscrowRepository {
	return &EscrowRepository{pool: pool}
}

func (r *EscrowRepository) db(ctx context.Context) DBTX {
	return ConnFromCtx(ctx, r.pool)
}

const escrowColumns = `id, reference, amount, currency, fee, status,
	        released_at, refunded_at, created_at, updated_at`

// Create inserts a new escrow record.
func (r *EscrowRepository) Create(ctx context.Context, rec *escrow.Record) error {
	_, err := r.db(ctx).Exec(ctx,
		`INSERT INTO escrows
		 (id, reference, amount, currency, fee, status, released_at, refunded_at, created_at, updated_at)
		 VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10)`,
		rec.ID, rec.Reference, poishaToNumericString(rec.Amount.Value), rec.Amount.Currency,
		poishaToNumericString(rec.Fee), string(rec.Status),
		rec.ReleasedAt, rec.RefundedAt, rec.CreatedAt, rec.UpdatedAt,
	)
	if err != nil {
		return fmt.Errorf("insert escrow: %w", err)
	}
	return nil
}

// GetByID retrieves an escrow record by ID.
func (r *EscrowRepository) GetByID(ctx context.Context, id uuid.UUID) (*escrow.Record, error) {
	return r.scanEscrow(r.db(ctx).QueryRow(ctx,
		`SELECT `+escrowColumns+` FROM escrows WHERE id = $1`, id))
}

// GetByReference retrieves an escrow record by external reference.
func (r *EscrowRepository) GetByReference(ctx context.Context, reference string) (*escrow.Record, error) {
	return r.scanEscrow(r.db(ctx).QueryRow(ctx,
		`SELECT `+escrowColumns+` FROM escrows WHERE reference = $1
		 ORDER BY created_at DESC LIMIT 1`, reference))
}

// List lists escrow records, newest first.
func (r *EscrowRepository) List(ctx context.Context, f escrow.ListFilter) ([]*escrow.Record, error) {
	query := `SELECT ` + escrowColumns + ` FROM escrows WHERE 1=1`
	args := []any{}
	argIdx := 1

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
		return nil, fmt.Errorf("list escrows: %w", err)
	}
	defer rows.Close()

	var records []*escrow.Record
	for rows.Next() {
		rec, err := r.scanEscrow(rows)
		if err != nil {
			return nil, err
		}
		records = append(records, rec)
	}
	return records, rows.Err()
}

// TransitionFromHeld writes the record's new status guarded on the stored
// row still being HELD, so a concurrent release and refund cannot both
// win. The losing caller gets ErrInvalidStateTransition.
func (r *EscrowRepository) TransitionFromHeld(ctx context.Context, rec *escrow.Record) error {
	tag, err := r.db(ctx).Exec(ctx,
		`UPDATE escrows SET status = $1, released_at = $2, refunded_at = $3, updated_at = $4
		 WHERE id = $5 AND status = 'HELD'`,
		string(rec.Status), rec.ReleasedAt, rec.RefundedAt, rec.UpdatedAt, rec.ID,
	)
	if err != nil {
		return fmt.Errorf("transition escrow status: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return domainErrors.NewDomainError(
			"invalid_transition",
			"escrow is no longer held",
			domainErrors.ErrInvalidStateTransition,
		)
	}
	return nil
}

// AddLedgerEntry appends to the escrow ledger.
func (r *EscrowRepository) AddLedgerEntry(ctx context.Context, entry *escrow.LedgerEntry) error {
	_, err := r.db(ctx).Exec(ctx,
		`INSERT INTO escrow_ledger (id, escrow_id, action, amount, note, created_at)
		 VALUES ($1, $2, $3, $4, $5, $6)`,
		entry.ID, entry.EscrowID, string(entry.Action),
		poishaToNumericString(entry.Amount), entry.Note, entry.CreatedAt,
	)
	if err != nil {
		return fmt.Errorf("insert escrow ledger entry: %w", err)
	}
	return nil
}

// GetLedgerEntries retrieves the ledger for an escrow, oldest first.
func (r *EscrowRepository) GetLedgerEntries(ctx context.Context, escrowID uuid.UUID) ([]*escrow.LedgerEntry, error) {
	rows, err := r.db(ctx).Query(ctx,
		`SELECT id, escrow_id, action, amount, note, created_at
		 FROM escrow_ledger WHERE escrow_id = $1 ORDER BY created_at ASC`, escrowID,
	)
	if err != nil {
		return nil, fmt.Errorf("list escrow ledger: %w", err)
	}
	defer rows.Close()

	var entries []*escrow.LedgerEntry
	for rows.Next() {
		e := &escrow.LedgerEntry{}
		var action, amountStr string
		if err := rows.Scan(&e.ID, &e.EscrowID, &action, &amountStr, &e.Note, &e.CreatedAt); err != nil {
			return nil, fmt.Errorf("scan ledger entry: %w", err)
		}
		poisha, err := numericStringToPoisha(amountStr)
		if err != nil {
			return nil, fmt.Errorf("parse ledger amount: %w", err)
		}
		e.Action = escrow.Action(action)
		e.Amount = poisha
		entries = append(entries, e)
	}
	return entries, rows.Err()
}

// --- scanning helpers ---

func (r *EscrowRepository) scanEscrow(s scanner) (*escrow.Record, error) {
	rec := &escrow.Record{}
	var (
		amountStr string
		feeStr    string
		status    string
	)
	err := s.Scan(
		&rec.ID, &rec.Reference, &amountStr, &rec.Amount.Currency, &feeStr, &status,
		&rec.ReleasedAt, &rec.RefundedAt, &rec.CreatedAt, &rec.UpdatedAt,
	)
	if err != nil {
		if err == pgx.ErrNoRows {
			return nil, domainErrors.ErrEscrowNotFound
		}
		return nil, fmt.Errorf("scan escrow: %w", err)
	}

	poisha, err := numericStringToPoisha(amountStr)
	if err != nil {
		return nil, fmt.Errorf("parse amount: %w", err)
	}
	fee, err := numericStringToPoisha(feeStr)
	if err != nil {
		return nil, fmt.Errorf("parse fee: %w", err)
	}
	rec.Amount.Value = poisha
	rec.Fee = fee
	rec.Status = escrow.Status(status)
	return rec, nil
}
