package testutil

import (
	"context"
	"sort"
	"sync"

	domainErrors "github.com/carenet/payments/internal/domain/errors"
	"github.com/carenet/payments/internal/domain/escrow"
	"github.com/carenet/payments/internal/domain/payment"
	"github.com/carenet/payments/internal/domain/transaction"
	"github.com/google/uuid"
)

// --- Transaction Repository Mock ---

// MockTransactionRepository is a mock implementation of transaction.Repository.
// It keeps copies of stored records so a caller mutating an entity never
// changes the "database" behind the repository's back, and it enforces
// the conditional-update semantics of TransitionStatus.
type MockTransactionRepository struct {
	mu           sync.Mutex
	transactions map[uuid.UUID]*transaction.ProviderTransaction
	logEntries   map[uuid.UUID][]*transaction.LogEntry

	CreateFunc             func(ctx context.Context, t *transaction.ProviderTransaction) error
	GetByIDFunc            func(ctx context.Context, id uuid.UUID) (*transaction.ProviderTransaction, error)
	GetByTransactionIDFunc func(ctx context.Context, provider transaction.Provider, transactionID string) (*transaction.ProviderTransaction, error)
	ListFunc               func(ctx context.Context, filter transaction.ListFilter) ([]*transaction.ProviderTransaction, error)
	TransitionStatusFunc   func(ctx context.Context, id uuid.UUID, from, to transaction.Status) error
	LinkEscrowFunc         func(ctx context.Context, id, escrowID uuid.UUID) error
	AddLogEntryFunc        func(ctx context.Context, entry *transaction.LogEntry) error
	GetLogEntriesFunc      func(ctx context.Context, transactionRef uuid.UUID) ([]*transaction.LogEntry, error)
}

func NewMockTransactionRepository() *MockTransactionRepository {
	return &MockTransactionRepository{
		transactions: make(map[uuid.UUID]*transaction.ProviderTransaction),
		logEntries:   make(map[uuid.UUID][]*transaction.LogEntry),
	}
}

func (m *MockTransactionRepository) Create(ctx context.Context, t *transaction.ProviderTransaction) error {
	if m.CreateFunc != nil {
		return m.CreateFunc(ctx, t)
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	cp := *t
	m.transactions[t.ID] = &cp
	return nil
}

func (m *MockTransactionRepository) GetByID(ctx context.Context, id uuid.UUID) (*transaction.ProviderTransaction, error) {
	if m.GetByIDFunc != nil {
		return m.GetByIDFunc(ctx, id)
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	t, ok := m.transactions[id]
	if !ok {
		return nil, domainErrors.ErrTransactionNotFound
	}
	cp := *t
	return &cp, nil
}

func (m *MockTransactionRepository) GetByTransactionID(ctx context.Context, provider transaction.Provider, transactionID string) (*transaction.ProviderTransaction, error) {
	if m.GetByTransactionIDFunc != nil {
		return m.GetByTransactionIDFunc(ctx, provider, transactionID)
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, t := range m.transactions {
		if t.Provider == provider && t.TransactionID == transactionID {
			cp := *t
			return &cp, nil
		}
	}
	return nil, domainErrors.ErrTransactionNotFound
}

func (m *MockTransactionRepository) List(ctx context.Context, filter transaction.ListFilter) ([]*transaction.ProviderTransaction, error) {
	if m.ListFunc != nil {
		return m.ListFunc(ctx, filter)
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	var result []*transaction.ProviderTransaction
	for _, t := range m.transactions {
		if filter.Provider != nil && t.Provider != *filter.Provider {
			continue
		}
		if filter.Status != nil && t.Status != *filter.Status {
			continue
		}
		cp := *t
		result = append(result, &cp)
	}
	sort.Slice(result, func(i, j int) bool {
		return result[i].CreatedAt.After(result[j].CreatedAt)
	})
	return result, nil
}

func (m *MockTransactionRepository) TransitionStatus(ctx context.Context, id uuid.UUID, from, to transaction.Status) error {
	if m.TransitionStatusFunc != nil {
		return m.TransitionStatusFunc(ctx, id, from, to)
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	t, ok := m.transactions[id]
	if !ok {
		return domainErrors.ErrTransactionNotFound
	}
	if t.Status != from {
		return domainErrors.NewDomainError("invalid_transition",
			"transaction is no longer "+string(from), domainErrors.ErrInvalidStateTransition)
	}
	t.Status = to
	return nil
}

func (m *MockTransactionRepository) LinkEscrow(ctx context.Context, id, escrowID uuid.UUID) error {
	if m.LinkEscrowFunc != nil {
		return m.LinkEscrowFunc(ctx, id, escrowID)
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	t, ok := m.transactions[id]
	if !ok {
		return domainErrors.ErrTransactionNotFound
	}
	t.EscrowID = &escrowID
	return nil
}

func (m *MockTransactionRepository) AddLogEntry(ctx context.Context, entry *transaction.LogEntry) error {
	if m.AddLogEntryFunc != nil {
		return m.AddLogEntryFunc(ctx, entry)
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	m.logEntries[entry.TransactionRef] = append(m.logEntries[entry.TransactionRef], entry)
	return nil
}

func (m *MockTransactionRepository) GetLogEntries(ctx context.Context, transactionRef uuid.UUID) ([]*transaction.LogEntry, error) {
	if m.GetLogEntriesFunc != nil {
		return m.GetLogEntriesFunc(ctx, transactionRef)
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.logEntries[transactionRef], nil
}

// --- Escrow Repository Mock ---

// MockEscrowRepository is a mock implementation of escrow.Repository.
// TransitionFromHeld mirrors the real conditional update: it only
// succeeds while the stored record is still HELD.
type MockEscrowRepository struct {
	mu      sync.Mutex
	records map[uuid.UUID]*escrow.Record
	ledger  map[uuid.UUID][]*escrow.LedgerEntry

	CreateFunc             func(ctx context.Context, rec *escrow.Record) error
	GetByIDFunc            func(ctx context.Context, id uuid.UUID) (*escrow.Record, error)
	GetByReferenceFunc     func(ctx context.Context, reference string) (*escrow.Record, error)
	ListFunc               func(ctx context.Context, filter escrow.ListFilter) ([]*escrow.Record, error)
	TransitionFromHeldFunc func(ctx context.Context, rec *escrow.Record) error
	AddLedgerEntryFunc     func(ctx context.Context, entry *escrow.LedgerEntry) error
	GetLedgerEntriesFunc   func(ctx context.Context, escrowID uuid.UUID) ([]*escrow.LedgerEntry, error)
}

func NewMockEscrowRepository() *MockEscrowRepository {
	return &MockEscrowRepository{
		records: make(map[uuid.UUID]*escrow.Record),
		ledger:  make(map[uuid.UUID][]*escrow.LedgerEntry),
	}
}

func (m *MockEscrowRepository) Create(ctx context.Context, rec *escrow.Record) error {
	if m.CreateFunc != nil {
		return m.CreateFunc(ctx, rec)
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	cp := *rec
	m.records[rec.ID] = &cp
	return nil
}

func (m *MockEscrowRepository) GetByID(ctx context.Context, id uuid.UUID) (*escrow.Record, error) {
	if m.GetByIDFunc != nil {
		return m.GetByIDFunc(ctx, id)
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	rec, ok := m.records[id]
	if !ok {
		return nil, domainErrors.ErrEscrowNotFound
	}
	cp := *rec
	return &cp, nil
}

func (m *MockEscrowRepository) GetByReference(ctx context.Context, reference string) (*escrow.Record, error) {
	if m.GetByReferenceFunc != nil {
		return m.GetByReferenceFunc(ctx, reference)
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, rec := range m.records {
		if rec.Reference == reference {
			cp := *rec
			return &cp, nil
		}
	}
	return nil, domainErrors.ErrEscrowNotFound
}

func (m *MockEscrowRepository) List(ctx context.Context, filter escrow.ListFilter) ([]*escrow.Record, error) {
	if m.ListFunc != nil {
		return m.ListFunc(ctx, filter)
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	var result []*escrow.Record
	for _, rec := range m.records {
		if filter.Status != nil && rec.Status != *filter.Status {
			continue
		}
		cp := *rec
		result = append(result, &cp)
	}
	sort.Slice(result, func(i, j int) bool {
		return result[i].CreatedAt.After(result[j].CreatedAt)
	})
	return result, nil
}

func (m *MockEscrowRepository) TransitionFromHeld(ctx context.Context, rec *escrow.Record) error {
	if m.TransitionFromHeldFunc != nil {
		return m.TransitionFromHeldFunc(ctx, rec)
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	stored, ok := m.records[rec.ID]
	if !ok {
		return domainErrors.ErrEscrowNotFound
	}
	if stored.Status != escrow.StatusHeld {
		return domainErrors.NewDomainError("invalid_transition",
			"escrow is no longer held", domainErrors.ErrInvalidStateTransition)
	}
	cp := *rec
	m.records[rec.ID] = &cp
	return nil
}

func (m *MockEscrowRepository) AddLedgerEntry(ctx context.Context, entry *escrow.LedgerEntry) error {
	if m.AddLedgerEntryFunc != nil {
		return m.AddLedgerEntryFunc(ctx, entry)
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	m.ledger[entry.EscrowID] = append(m.ledger[entry.EscrowID], entry)
	return nil
}

func (m *MockEscrowRepository) GetLedgerEntries(ctx context.Context, escrowID uuid.UUID) ([]*escrow.LedgerEntry, error) {
	if m.GetLedgerEntriesFunc != nil {
		return m.GetLedgerEntriesFunc(ctx, escrowID)
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.ledger[escrowID], nil
}

// --- Payment Repository Mock ---

// MockPaymentRepository is a mock implementation of payment.Repository.
type MockPaymentRepository struct {
	mu       sync.Mutex
	payments map[uuid.UUID]*payment.Payment

	CreateFunc             func(ctx context.Context, p *payment.Payment) error
	GetByIDFunc            func(ctx context.Context, id uuid.UUID) (*payment.Payment, error)
	GetByTransactionIDFunc func(ctx context.Context, transactionID string) (*payment.Payment, error)
	UpdateStatusFunc       func(ctx context.Context, id uuid.UUID, status payment.Status) error
	ListFunc               func(ctx context.Context, filter payment.ListFilter) ([]*payment.Payment, error)
}

func NewMockPaymentRepository() *MockPaymentRepository {
	return &MockPaymentRepository{
		payments: make(map[uuid.UUID]*payment.Payment),
	}
}

func (m *MockPaymentRepository) Create(ctx context.Context, p *payment.Payment) error {
	if m.CreateFunc != nil {
		return m.CreateFunc(ctx, p)
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	cp := *p
	m.payments[p.ID] = &cp
	return nil
}

func (m *MockPaymentRepository) GetByID(ctx context.Context, id uuid.UUID) (*payment.Payment, error) {
	if m.GetByIDFunc != nil {
		return m.GetByIDFunc(ctx, id)
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	p, ok := m.payments[id]
	if !ok {
		return nil, domainErrors.ErrPaymentNotFound
	}
	cp := *p
	return &cp, nil
}

func (m *MockPaymentRepository) GetByTransactionID(ctx context.Context, transactionID string) (*payment.Payment, error) {
	if m.GetByTransactionIDFunc != nil {
		return m.GetByTransactionIDFunc(ctx, transactionID)
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, p := range m.payments {
		if p.TransactionID == transactionID {
			cp := *p
			return &cp, nil
		}
	}
	return nil, domainErrors.ErrPaymentNotFound
}

func (m *MockPaymentRepository) UpdateStatus(ctx context.Context, id uuid.UUID, status payment.Status) error {
	if m.UpdateStatusFunc != nil {
		return m.UpdateStatusFunc(ctx, id, status)
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	p, ok := m.payments[id]
	if !ok {
		return domainErrors.ErrPaymentNotFound
	}
	p.Status = status
	return nil
}

func (m *MockPaymentRepository) List(ctx context.Context, filter payment.ListFilter) ([]*payment.Payment, error) {
	if m.ListFunc != nil {
		return m.ListFunc(ctx, filter)
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	var result []*payment.Payment
	for _, p := range m.payments {
		if filter.PayerID != nil && p.PayerID != *filter.PayerID {
			continue
		}
		if filter.Status != nil && p.Status != *filter.Status {
			continue
		}
		cp := *p
		result = append(result, &cp)
	}
	sort.Slice(result, func(i, j int) bool {
		return result[i].CreatedAt.After(result[j].CreatedAt)
	})
	return result, nil
}

// --- Transaction Manager Mock ---

// MockTransactionManager is a mock implementation of TransactionManager.
type MockTransactionManager struct {
	WithTransactionFunc func(ctx context.Context, fn func(ctx context.Context) error) error
}

func NewMockTransactionManager() *MockTransactionManager {
	return &MockTransactionManager{}
}

func (m *MockTransactionManager) WithTransaction(ctx context.Context, fn func(ctx context.Context) error) error {
	if m.WithTransactionFunc != nil {
		return m.WithTransactionFunc(ctx, fn)
	}
	return fn(ctx)
}
