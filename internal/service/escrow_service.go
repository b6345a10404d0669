package service

import (
	"context"
	"fmt"

	"github.com/carenet/payments/internal/domain/escrow"
	"github.com/carenet/payments/internal/domain/money"
	"github.com/google/uuid"
	"github.com/rs/zerolog"
)

// EscrowService owns the escrow ledger: holding funds after a verified
// payment and moving them out exactly once, to the provider or back to
// the payer. Every fund movement pairs a record update with an
// append-only ledger entry inside one database transaction.
type EscrowService struct {
	escrowRepo escrow.Repository
	txManager  TransactionManager
	locker     Locker
	feeRate    float64
	logger     zerolog.Logger
}

// NewEscrowService creates a new EscrowService.
func NewEscrowService(
	escrowRepo escrow.Repository,
	txManager TransactionManager,
	locker Locker,
	feeRate float64,
	logger zerolog.Logger,
) *EscrowService {
	if locker == nil {
		locker = NoopLocker{}
	}
	return &EscrowService{
		escrowRepo: escrowRepo,
		txManager:  txManager,
		locker:     locker,
		feeRate:    feeRate,
		logger:     logger.With().Str("component", "escrow_service").Logger(),
	}
}

// HoldFunds creates an escrow record and its HOLD ledger entry
// atomically. Exactly one HOLD entry ever exists per escrow.
func (s *EscrowService) HoldFunds(ctx context.Context, reference string, amount money.Amount) (*escrow.Record, error) {
	rec, err := escrow.NewRecord(reference, amount, s.feeRate)
	if err != nil {
		return nil, err
	}

	err = s.txManager.WithTransaction(ctx, func(txCtx context.Context) error {
		if err := s.escrowRepo.Create(txCtx, rec); err != nil {
			return err
		}
		return s.escrowRepo.AddLedgerEntry(txCtx,
			escrow.NewLedgerEntry(rec.ID, escrow.ActionHold, amount.Value, "funds held for "+reference))
	})
	if err != nil {
		return nil, err
	}

	s.logger.Info().
		Str("escrow_id", rec.ID.String()).
		Str("reference", reference).
		Str("amount", amount.String()).
		Msg("funds held in escrow")
	return rec, nil
}

// Release moves a held escrow to the provider. The conditional update in
// the repository guarantees a terminal escrow is never released again,
// even when two callers race.
func (s *EscrowService) Release(ctx context.Context, id uuid.UUID, reason string) (*escrow.Record, error) {
	if reason == "" {
		reason = "care job confirmed"
	}

	var rec *escrow.Record
	err := s.locker.WithLock(ctx, lockKey(id), func(lockCtx context.Context) error {
		var err error
		rec, err = s.escrowRepo.GetByID(lockCtx, id)
		if err != nil {
			return err
		}
		if err := rec.Release(); err != nil {
			return err
		}

		return s.txManager.WithTransaction(lockCtx, func(txCtx context.Context) error {
			if err := s.escrowRepo.TransitionFromHeld(txCtx, rec); err != nil {
				return err
			}
			return s.escrowRepo.AddLedgerEntry(txCtx,
				escrow.NewLedgerEntry(rec.ID, escrow.ActionRelease, rec.Amount.Value, reason))
		})
	})
	if err != nil {
		return nil, err
	}

	s.logger.Info().
		Str("escrow_id", rec.ID.String()).
		Str("amount", rec.Amount.String()).
		Msg("escrow released")
	return rec, nil
}

// Refund moves a held escrow back toward the payer. amount <= 0 refunds
// the full held amount; a partial amount must not exceed it. Returns the
// updated record and the amount actually refunded.
func (s *EscrowService) Refund(ctx context.Context, id uuid.UUID, amount int64, reason string) (*escrow.Record, int64, error) {
	var (
		rec      *escrow.Record
		refunded int64
	)
	err := s.locker.WithLock(ctx, lockKey(id), func(lockCtx context.Context) error {
		var err error
		rec, refunded, err = s.refundHeld(lockCtx, id, amount, reason)
		return err
	})
	if err != nil {
		return nil, 0, err
	}

	s.logger.Info().
		Str("escrow_id", rec.ID.String()).
		Int64("refunded_poisha", refunded).
		Msg("escrow refunded")
	return rec, refunded, nil
}

// refundHeld applies the refund without taking the escrow lock. The
// caller holds it already, possibly around an enclosing database
// transaction, so the lock is never acquired on a borrowed connection.
func (s *EscrowService) refundHeld(ctx context.Context, id uuid.UUID, amount int64, reason string) (*escrow.Record, int64, error) {
	if reason == "" {
		reason = "payment refunded"
	}

	rec, err := s.escrowRepo.GetByID(ctx, id)
	if err != nil {
		return nil, 0, err
	}

	refunded := amount
	if refunded <= 0 {
		refunded = rec.Amount.Value
	}
	if err := rec.Refund(refunded); err != nil {
		return nil, 0, err
	}

	err = s.txManager.WithTransaction(ctx, func(txCtx context.Context) error {
		if err := s.escrowRepo.TransitionFromHeld(txCtx, rec); err != nil {
			return err
		}
		return s.escrowRepo.AddLedgerEntry(txCtx,
			escrow.NewLedgerEntry(rec.ID, escrow.ActionRefund, refunded, reason))
	})
	if err != nil {
		return nil, 0, err
	}
	return rec, refunded, nil
}

// GetEscrow returns a record together with its ledger entries.
func (s *EscrowService) GetEscrow(ctx context.Context, id uuid.UUID) (*escrow.Record, []*escrow.LedgerEntry, error) {
	rec, err := s.escrowRepo.GetByID(ctx, id)
	if err != nil {
		return nil, nil, err
	}
	entries, err := s.escrowRepo.GetLedgerEntries(ctx, id)
	if err != nil {
		return nil, nil, err
	}
	return rec, entries, nil
}

// ListEscrows lists escrow records, newest first.
func (s *EscrowService) ListEscrows(ctx context.Context, filter escrow.ListFilter) ([]*escrow.Record, error) {
	return s.escrowRepo.List(ctx, filter)
}

// Reconcile re-reads an escrow and checks its ledger balance against the
// record. A mismatch means a paired write was lost.
func (s *EscrowService) Reconcile(ctx context.Context, id uuid.UUID) error {
	rec, entries, err := s.GetEscrow(ctx, id)
	if err != nil {
		return err
	}
	if err := escrow.Reconcile(rec, entries); err != nil {
		s.logger.Error().
			Str("escrow_id", id.String()).
			Int64("balance_poisha", escrow.Balance(entries)).
			Str("status", string(rec.Status)).
			Msg("escrow ledger mismatch")
		return err
	}
	return nil
}

func lockKey(id uuid.UUID) string {
	return fmt.Sprintf("escrow:%s", id)
}
