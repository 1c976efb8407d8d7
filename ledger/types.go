/*
Package ledger provides the installment-sale accounting engine.

PURPOSE:
  Given a contract (lot price, required down payment, term) and the
  payments recorded against it, the engine answers four questions:
  how much of the down payment is covered, what the amortization
  schedule looks like, how much is past due and for how long, and
  which commercial state the contract (and its lot) is in.

KEY CONCEPTS IN THIS FILE (types.go):
  - Money: A decimal amount of currency, never a float
  - Term: Contract length in months (>= 1)
  - Lot, Contact, Contract, Payment, CommissionPayment: stored records
  - Typed identifiers so a LotID can't be passed where a ContractID goes

DESIGN PRINCIPLES:
  1. Derived values (allocation, schedule, arrears) are pure functions of
     (Contract, Payments, asOf). They are recomputed, never patched.
  2. Precision: decimal.Decimal end to end; rounding only for display.
  3. References, not embedding: a Contract holds ids, lookups are injected.

USAGE:
  price := ledger.MustMoney("300000")
  alloc, err := ledger.Allocate(ledger.MustMoney("50000"), payments)

SEE ALSO:
  - allocation.go: down payment / installment bucket split
  - schedule.go: amortization schedule
  - arrears.go: overdue amount and days late
  - status.go: contract state machine
*/
package ledger

import (
	"github.com/shopspring/decimal"
)

// =============================================================================
// MONEY - Exact decimal currency amount
// =============================================================================

// DisplayPlaces is the number of decimal places used when presenting money.
const DisplayPlaces = 2

type Money struct {
	Value decimal.Decimal
}

// NewMoney parses a decimal string such as "6944.44".
func NewMoney(s string) (Money, error) {
	d, err := decimal.NewFromString(s)
	if err != nil {
		return Money{}, &ValidationError{Field: "amount", Reason: "not a decimal number: " + s}
	}
	return Money{Value: d}, nil
}

// MustMoney is NewMoney for constants and tests. It panics on bad input.
func MustMoney(s string) Money {
	m, err := NewMoney(s)
	if err != nil {
		panic(err)
	}
	return m
}

func MoneyFromInt(v int64) Money { return Money{Value: decimal.NewFromInt(v)} }

func Zero() Money { return Money{Value: decimal.Zero} }

func (m Money) Add(o Money) Money               { return Money{Value: m.Value.Add(o.Value)} }
func (m Money) Sub(o Money) Money               { return Money{Value: m.Value.Sub(o.Value)} }
func (m Money) Mul(s decimal.Decimal) Money     { return Money{Value: m.Value.Mul(s)} }
func (m Money) Neg() Money                      { return Money{Value: m.Value.Neg()} }
func (m Money) IsZero() bool                    { return m.Value.IsZero() }
func (m Money) IsNegative() bool                { return m.Value.IsNegative() }
func (m Money) IsPositive() bool                { return m.Value.IsPositive() }
func (m Money) Equal(o Money) bool              { return m.Value.Equal(o.Value) }
func (m Money) GreaterThan(o Money) bool        { return m.Value.GreaterThan(o.Value) }
func (m Money) GreaterThanOrEqual(o Money) bool { return m.Value.GreaterThanOrEqual(o.Value) }
func (m Money) LessThan(o Money) bool           { return m.Value.LessThan(o.Value) }

func (m Money) Min(o Money) Money {
	if m.LessThan(o) {
		return m
	}
	return o
}

func (m Money) Max(o Money) Money {
	if m.GreaterThan(o) {
		return m
	}
	return o
}

// Display rounds half-up to two places. Use it only at the presentation
// boundary; internal accumulation stays unrounded.
func (m Money) Display() Money {
	return Money{Value: m.Value.Round(DisplayPlaces)}
}

func (m Money) String() string { return m.Value.StringFixed(DisplayPlaces) }

// =============================================================================
// TERM - Contract length in months
// =============================================================================

type Term int

func (t Term) Validate() error {
	if t < 1 {
		return &ValidationError{Field: "term", Reason: "must be at least 1 month"}
	}
	return nil
}

// =============================================================================
// IDENTIFIERS
// =============================================================================

type LotID string
type ContactID string
type ContractID string
type PaymentID string
type CommissionPaymentID string

// =============================================================================
// LOT
// =============================================================================

type LotStatus string

const (
	LotAvailable LotStatus = "available"
	LotReserved  LotStatus = "reserved"
	LotActive    LotStatus = "active"
	LotSold      LotStatus = "sold"
	LotCancelled LotStatus = "cancelled"
)

// Lot is owned by the inventory collaborator. Status is a cached
// projection of the contract referencing the lot, see LotStatusFor.
type Lot struct {
	ID                  LotID
	Stage               string
	Block               int
	Number              int
	ListPrice           Money
	RequiredDownPayment Money
	Status              LotStatus
}

// =============================================================================
// CONTACT
// =============================================================================

type ContactRole string

const (
	RoleClient      ContactRole = "client"
	RoleSalesperson ContactRole = "salesperson"
)

type Contact struct {
	ID    ContactID
	Name  string
	Role  ContactRole
	Phone string
	Email string
}

// =============================================================================
// CONTRACT - The sale
// =============================================================================

type ContractStatus string

const (
	ContractReserved  ContractStatus = "reserved"
	ContractActive    ContractStatus = "active"
	ContractCancelled ContractStatus = "cancelled"
)

// CommissionDecision is the explicit choice made when a contract is
// cancelled. There is no default.
type CommissionDecision string

const (
	CommissionKeep CommissionDecision = "keep"
	CommissionVoid CommissionDecision = "void"
)

func (d CommissionDecision) Validate() error {
	switch d {
	case CommissionKeep, CommissionVoid:
		return nil
	case "":
		return &ValidationError{Field: "commission_decision", Reason: "required (keep or void)"}
	default:
		return &ValidationError{Field: "commission_decision", Reason: "unknown decision " + string(d)}
	}
}

type Contract struct {
	ID            ContractID
	LotID         LotID
	ClientID      ContactID
	SalespersonID ContactID
	CreatedOn     Date
	Term          Term

	Price               Money
	RequiredDownPayment Money
	Commission          Money

	Status ContractStatus

	// StartedOn is fixed exactly once, on Reserved -> Active.
	StartedOn *Date

	// Set only on cancellation.
	CommissionDecision CommissionDecision
	CancelledOn        *Date
}

// Principal is the amount financed through installments.
func (c Contract) Principal() Money {
	return c.Price.Sub(c.RequiredDownPayment)
}

// Validate checks the financial terms. It never fills in defaults.
func (c Contract) Validate() error {
	if err := c.Term.Validate(); err != nil {
		return err
	}
	if !c.Price.IsPositive() {
		return &ValidationError{Field: "price", Reason: "must be greater than zero"}
	}
	if c.RequiredDownPayment.IsNegative() {
		return &ValidationError{Field: "required_down_payment", Reason: "must not be negative"}
	}
	if c.RequiredDownPayment.GreaterThan(c.Price) {
		return &ValidationError{Field: "required_down_payment", Reason: "exceeds price"}
	}
	if c.Commission.IsNegative() {
		return &ValidationError{Field: "commission", Reason: "must not be negative"}
	}
	return nil
}

// CommissionAccrues reports whether this contract's commission counts
// toward the salesperson's accrued total.
func (c Contract) CommissionAccrues() bool {
	if c.Status != ContractCancelled {
		return true
	}
	return c.CommissionDecision == CommissionKeep
}

// =============================================================================
// PAYMENT
// =============================================================================

type Payment struct {
	ID         PaymentID
	ContractID ContractID
	Date       Date
	Amount     Money
	Method     string
	Reference  string
	Notes      string

	// Seq is the insertion order assigned by the store. Breaks date ties.
	Seq int64
}

// ValidateAmount rejects zero and negative payments before they reach
// the allocation engine.
func ValidateAmount(field string, m Money) error {
	if !m.IsPositive() {
		return &ValidationError{Field: field, Reason: "must be greater than zero"}
	}
	return nil
}

// =============================================================================
// COMMISSION PAYMENT
// =============================================================================

type CommissionPayment struct {
	ID            CommissionPaymentID
	SalespersonID ContactID
	Amount        Money
	Date          Date
	Reference     string
	Note          string
}
