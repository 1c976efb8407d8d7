// Package store provides in-memory ledger.Store implementations.
package store

import (
	"context"
	"sync"

	"github.com/vallemart2000/desarrolladora-sql/ledger"
)

// =============================================================================
// MEMORY STORE - In-memory implementation (for testing/dev)
// =============================================================================

// state holds the data and implements ledger.Store without locking.
// Memory guards it; WithTx runs fn against a clone.
type state struct {
	lots        map[ledger.LotID]ledger.Lot
	contacts    map[ledger.ContactID]ledger.Contact
	contracts   map[ledger.ContractID]ledger.Contract
	order       []ledger.ContractID
	payments    map[ledger.PaymentID]ledger.Payment
	commissions []ledger.CommissionPayment
	seq         int64
}

func newState() *state {
	return &state{
		lots:      make(map[ledger.LotID]ledger.Lot),
		contacts:  make(map[ledger.ContactID]ledger.Contact),
		contracts: make(map[ledger.ContractID]ledger.Contract),
		payments:  make(map[ledger.PaymentID]ledger.Payment),
	}
}

func (s *state) clone() *state {
	c := newState()
	for k, v := range s.lots {
		c.lots[k] = v
	}
	for k, v := range s.contacts {
		c.contacts[k] = v
	}
	for k, v := range s.contracts {
		c.contracts[k] = v
	}
	for k, v := range s.payments {
		c.payments[k] = v
	}
	c.order = append([]ledger.ContractID{}, s.order...)
	c.commissions = append([]ledger.CommissionPayment{}, s.commissions...)
	c.seq = s.seq
	return c
}

func (s *state) GetLot(_ context.Context, id ledger.LotID) (ledger.Lot, error) {
	lot, ok := s.lots[id]
	if !ok {
		return ledger.Lot{}, &ledger.NotFoundError{Kind: "lot", ID: string(id)}
	}
	return lot, nil
}

func (s *state) SetLotStatus(_ context.Context, id ledger.LotID, status ledger.LotStatus) error {
	lot, ok := s.lots[id]
	if !ok {
		return &ledger.NotFoundError{Kind: "lot", ID: string(id)}
	}
	lot.Status = status
	s.lots[id] = lot
	return nil
}

func (s *state) GetContact(_ context.Context, id ledger.ContactID) (ledger.Contact, error) {
	c, ok := s.contacts[id]
	if !ok {
		return ledger.Contact{}, &ledger.NotFoundError{Kind: "contact", ID: string(id)}
	}
	return c, nil
}

func (s *state) GetContract(_ context.Context, id ledger.ContractID) (ledger.Contract, error) {
	c, ok := s.contracts[id]
	if !ok {
		return ledger.Contract{}, &ledger.NotFoundError{Kind: "contract", ID: string(id)}
	}
	return c, nil
}

func (s *state) OpenContractForLot(_ context.Context, lotID ledger.LotID) (*ledger.Contract, error) {
	for _, id := range s.order {
		c := s.contracts[id]
		if c.LotID == lotID && c.Status != ledger.ContractCancelled {
			return &c, nil
		}
	}
	return nil, nil
}

func (s *state) ListContracts(_ context.Context) ([]ledger.Contract, error) {
	out := make([]ledger.Contract, 0, len(s.order))
	for _, id := range s.order {
		out = append(out, s.contracts[id])
	}
	return out, nil
}

func (s *state) InsertContract(_ context.Context, c ledger.Contract) error {
	if _, ok := s.contracts[c.ID]; ok {
		return &ledger.ValidationError{Field: "id", Reason: "contract " + string(c.ID) + " already exists"}
	}
	s.contracts[c.ID] = c
	s.order = append(s.order, c.ID)
	return nil
}

func (s *state) UpdateContract(_ context.Context, c ledger.Contract) error {
	if _, ok := s.contracts[c.ID]; !ok {
		return &ledger.NotFoundError{Kind: "contract", ID: string(c.ID)}
	}
	s.contracts[c.ID] = c
	return nil
}

func (s *state) InsertPayment(_ context.Context, p ledger.Payment) (ledger.Payment, error) {
	if _, ok := s.payments[p.ID]; ok {
		return ledger.Payment{}, &ledger.ValidationError{Field: "id", Reason: "payment " + string(p.ID) + " already exists"}
	}
	s.seq++
	p.Seq = s.seq
	s.payments[p.ID] = p
	return p, nil
}

func (s *state) GetPayment(_ context.Context, id ledger.PaymentID) (ledger.Payment, error) {
	p, ok := s.payments[id]
	if !ok {
		return ledger.Payment{}, &ledger.NotFoundError{Kind: "payment", ID: string(id)}
	}
	return p, nil
}

// UpdatePayment keeps the stored Seq and contract.
func (s *state) UpdatePayment(_ context.Context, p ledger.Payment) error {
	old, ok := s.payments[p.ID]
	if !ok {
		return &ledger.NotFoundError{Kind: "payment", ID: string(p.ID)}
	}
	p.Seq = old.Seq
	p.ContractID = old.ContractID
	s.payments[p.ID] = p
	return nil
}

func (s *state) DeletePayment(_ context.Context, id ledger.PaymentID) error {
	if _, ok := s.payments[id]; !ok {
		return &ledger.NotFoundError{Kind: "payment", ID: string(id)}
	}
	delete(s.payments, id)
	return nil
}

func (s *state) Payments(_ context.Context, contractID ledger.ContractID) ([]ledger.Payment, error) {
	var out []ledger.Payment
	for _, p := range s.payments {
		if p.ContractID == contractID {
			out = append(out, p)
		}
	}
	return ledger.SortPayments(out), nil
}

func (s *state) InsertCommissionPayment(_ context.Context, p ledger.CommissionPayment) error {
	s.commissions = append(s.commissions, p)
	return nil
}

func (s *state) CommissionPayments(_ context.Context, salespersonID ledger.ContactID) ([]ledger.CommissionPayment, error) {
	var out []ledger.CommissionPayment
	for _, p := range s.commissions {
		if salespersonID == "" || p.SalespersonID == salespersonID {
			out = append(out, p)
		}
	}
	return out, nil
}

// =============================================================================
// LOCKED STORE
// =============================================================================

type Memory struct {
	mu    sync.RWMutex
	state *state
}

func NewMemory() *Memory {
	return &Memory{state: newState()}
}

// SaveLot seeds or replaces a lot. Lots are owned by the inventory
// collaborator; the ledger only reads them and updates their status.
func (m *Memory) SaveLot(_ context.Context, lot ledger.Lot) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if lot.Status == "" {
		lot.Status = ledger.LotAvailable
	}
	m.state.lots[lot.ID] = lot
	return nil
}

// SaveContact seeds or replaces a contact.
func (m *Memory) SaveContact(_ context.Context, c ledger.Contact) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.state.contacts[c.ID] = c
	return nil
}

func (m *Memory) GetLot(ctx context.Context, id ledger.LotID) (ledger.Lot, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.state.GetLot(ctx, id)
}

func (m *Memory) SetLotStatus(ctx context.Context, id ledger.LotID, status ledger.LotStatus) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.state.SetLotStatus(ctx, id, status)
}

func (m *Memory) GetContact(ctx context.Context, id ledger.ContactID) (ledger.Contact, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.state.GetContact(ctx, id)
}

func (m *Memory) GetContract(ctx context.Context, id ledger.ContractID) (ledger.Contract, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.state.GetContract(ctx, id)
}

func (m *Memory) OpenContractForLot(ctx context.Context, lotID ledger.LotID) (*ledger.Contract, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.state.OpenContractForLot(ctx, lotID)
}

func (m *Memory) ListContracts(ctx context.Context) ([]ledger.Contract, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.state.ListContracts(ctx)
}

func (m *Memory) InsertContract(ctx context.Context, c ledger.Contract) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.state.InsertContract(ctx, c)
}

func (m *Memory) UpdateContract(ctx context.Context, c ledger.Contract) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.state.UpdateContract(ctx, c)
}

func (m *Memory) InsertPayment(ctx context.Context, p ledger.Payment) (ledger.Payment, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.state.InsertPayment(ctx, p)
}

func (m *Memory) GetPayment(ctx context.Context, id ledger.PaymentID) (ledger.Payment, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.state.GetPayment(ctx, id)
}

func (m *Memory) UpdatePayment(ctx context.Context, p ledger.Payment) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.state.UpdatePayment(ctx, p)
}

func (m *Memory) DeletePayment(ctx context.Context, id ledger.PaymentID) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.state.DeletePayment(ctx, id)
}

func (m *Memory) Payments(ctx context.Context, contractID ledger.ContractID) ([]ledger.Payment, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.state.Payments(ctx, contractID)
}

func (m *Memory) InsertCommissionPayment(ctx context.Context, p ledger.CommissionPayment) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.state.InsertCommissionPayment(ctx, p)
}

func (m *Memory) CommissionPayments(ctx context.Context, salespersonID ledger.ContactID) ([]ledger.CommissionPayment, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.state.CommissionPayments(ctx, salespersonID)
}

// =============================================================================
// TRANSACTIONS
// =============================================================================

// WithTx executes fn against a snapshot of the state and swaps it in
// only when fn succeeds. Transactions are serialized.
func (m *Memory) WithTx(_ context.Context, fn func(ledger.Store) error) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	view := m.state.clone()
	if err := fn(view); err != nil {
		return err
	}
	m.state = view
	return nil
}

var _ ledger.TxStore = (*Memory)(nil)
