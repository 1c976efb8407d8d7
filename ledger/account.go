/*
account.go - The full derived account for one contract

PURPOSE:
  Chains the engine end to end:

    Contract + Payments ──▶ Allocate ──▶ BuildSchedule ──▶ CalculateArrears
                               │
                               └──▶ Evaluate (state machine)

  Only payments dated on or before asOf count.

  BuildAccount is a pure function: same contract, same payments, same
  asOf, same policy => identical Account. Nothing here reads a store or
  the clock.

START DATE:
  For an Active contract the schedule starts on the persisted StartedOn,
  which was fixed when the contract activated. For a Reserved contract
  whose payments already meet the down payment (the transition hasn't
  been persisted yet) the start is the derived activation date, and
  Pending reports the transition for the caller to apply.
*/
package ledger

import "github.com/shopspring/decimal"

type Account struct {
	ContractID ContractID
	LotID      LotID
	Status     ContractStatus
	LotStatus  LotStatus
	AsOf       Date
	StartedOn  *Date

	Price               Money
	DownPaymentRequired Money
	DownPaymentPaid     Money
	InstallmentFunds    Money
	TotalPaid           Money

	Schedule Schedule

	AmountOverdue Money
	DaysLate      int
	Severity      Severity

	// Pending is the transition implied by the payments but not yet
	// persisted on the contract. Nil when nothing changes.
	Pending *Transition
}

// DownPaymentRemaining is what is still missing on the down payment.
func (a Account) DownPaymentRemaining() Money {
	return a.DownPaymentRequired.Sub(a.DownPaymentPaid).Max(Zero())
}

// RemainingBalance is price minus everything paid, floored at zero.
func (a Account) RemainingBalance() Money {
	return a.Price.Sub(a.TotalPaid).Max(Zero())
}

// PercentPaid is TotalPaid / Price as a percentage, truncated to an
// integer like the dashboard shows it.
func (a Account) PercentPaid() int64 {
	if !a.Price.IsPositive() {
		return 0
	}
	return a.TotalPaid.Value.Mul(decimal.NewFromInt(100)).Div(a.Price.Value).IntPart()
}

// receivedBy keeps the payments dated on or before asOf.
func receivedBy(payments []Payment, asOf Date) []Payment {
	out := make([]Payment, 0, len(payments))
	for _, pay := range payments {
		if !pay.Date.After(asOf) {
			out = append(out, pay)
		}
	}
	return out
}

// BuildAccount computes every derived value for a contract. Payments
// dated after asOf have not been received yet and are ignored.
func BuildAccount(c Contract, payments []Payment, asOf Date, p Policy) (Account, error) {
	if err := c.Validate(); err != nil {
		return Account{}, err
	}
	for _, pay := range payments {
		if pay.ContractID != "" && pay.ContractID != c.ID {
			return Account{}, &ValidationError{Field: "payment", Reason: "payment " + string(pay.ID) + " belongs to another contract"}
		}
	}

	alloc, err := Allocate(c.RequiredDownPayment, receivedBy(payments, asOf))
	if err != nil {
		return Account{}, err
	}

	acct := Account{
		ContractID:          c.ID,
		LotID:               c.LotID,
		Status:              c.Status,
		AsOf:                asOf,
		StartedOn:           c.StartedOn,
		Price:               c.Price,
		DownPaymentRequired: c.RequiredDownPayment,
		DownPaymentPaid:     alloc.DownPaymentPaid,
		InstallmentFunds:    alloc.InstallmentFunds,
		TotalPaid:           alloc.Total,
		AmountOverdue:       Zero(),
		Severity:            SeverityOnTime,
	}

	if t := Evaluate(c, alloc); t != nil {
		acct.Pending = t
		started := t.StartedOn
		acct.StartedOn = &started
		acct.Status = t.To
	}

	// A cancelled contract keeps its payment history but has no schedule.
	start := acct.StartedOn
	if c.Status == ContractCancelled {
		start = nil
	}

	sched, err := BuildSchedule(c, start, alloc.InstallmentFunds, asOf)
	if err != nil {
		return Account{}, err
	}
	acct.Schedule = sched

	arrears := CalculateArrears(sched, asOf, p)
	acct.AmountOverdue = arrears.AmountOverdue
	acct.DaysLate = arrears.DaysLate
	acct.Severity = arrears.Severity

	projected := c
	projected.Status = acct.Status
	acct.LotStatus = LotStatusFor(&projected, sched.FullyCovered())
	return acct, nil
}
