/*
store.go - Persistence and lookup interfaces

PURPOSE:
  Defines the boundary between the engine and whatever holds the data.
  Lots and contacts belong to the inventory/directory collaborators and
  are only READ here; contracts, payments and commission payments are
  written by the Service.

KEY INTERFACES:
  LotReader / Directory: injected lookups, never joins
  ContractStore:         contracts keyed by id and by lot
  PaymentStore:          payments per contract, with insertion sequence
  CommissionStore:       commission payments per salesperson
  Store:                 all of the above
  TxStore:               Store + atomic WithTx

RECOMPUTE, DON'T PATCH:
  The store never keeps a running "total paid" or "days late". Payments
  may be inserted, edited or removed in any order; every read of an
  account reloads the payments and recomputes.

ATOMICITY:
  Every mutating Service operation runs inside WithTx. If fn returns an
  error nothing it wrote is kept.

IMPLEMENTATIONS:
  - ledger/store/memory.go: in-memory, for tests and dev
  - store/sqlite/sqlite.go: SQLite
*/
package ledger

import "context"

// LotReader resolves lots owned by the inventory collaborator.
type LotReader interface {
	GetLot(ctx context.Context, id LotID) (Lot, error)
}

// LotWriter persists the cached status projection on a lot.
type LotWriter interface {
	SetLotStatus(ctx context.Context, id LotID, status LotStatus) error
}

// Directory resolves contacts owned by the directory collaborator.
type Directory interface {
	GetContact(ctx context.Context, id ContactID) (Contact, error)
}

type ContractStore interface {
	GetContract(ctx context.Context, id ContractID) (Contract, error)

	// OpenContractForLot returns the non-cancelled contract on a lot, or
	// nil when the lot is free.
	OpenContractForLot(ctx context.Context, lotID LotID) (*Contract, error)

	ListContracts(ctx context.Context) ([]Contract, error)
	InsertContract(ctx context.Context, c Contract) error
	UpdateContract(ctx context.Context, c Contract) error
}

type PaymentStore interface {
	// InsertPayment stores p and returns it with Seq assigned.
	InsertPayment(ctx context.Context, p Payment) (Payment, error)
	GetPayment(ctx context.Context, id PaymentID) (Payment, error)
	UpdatePayment(ctx context.Context, p Payment) error
	DeletePayment(ctx context.Context, id PaymentID) error

	// Payments returns the contract's payments ordered by date, then Seq.
	Payments(ctx context.Context, contractID ContractID) ([]Payment, error)
}

type CommissionStore interface {
	InsertCommissionPayment(ctx context.Context, p CommissionPayment) error

	// CommissionPayments returns the salesperson's commission payments in
	// insertion order. An empty id returns every salesperson's.
	CommissionPayments(ctx context.Context, salespersonID ContactID) ([]CommissionPayment, error)
}

type Store interface {
	LotReader
	LotWriter
	Directory
	ContractStore
	PaymentStore
	CommissionStore
}

// TxStore wraps Store with transaction support.
// If fn returns an error, the transaction is rolled back.
type TxStore interface {
	Store
	WithTx(ctx context.Context, fn func(Store) error) error
}

// =============================================================================
// ACCOUNT CACHE - Optional, always invalidated on write
// =============================================================================

// AccountCache stores derived accounts. It is never a source of truth:
// the Service invalidates a contract's entries on every payment or
// contract write, and cache failures only cost a recompute.
type AccountCache interface {
	Get(ctx context.Context, id ContractID, asOf Date) (*Account, error)
	Put(ctx context.Context, acct Account) error
	Invalidate(ctx context.Context, id ContractID) error
}
