/*
schedule.go - Amortization schedule

PURPOSE:
  Turns the contract terms and the installment bucket into an ordered
  list of periods, each with a due date, an expected amount, the amount
  covered so far and a status.

DUE DATES:
  Period i (1..term) is due on start + i months, where start is the date
  the contract became active (down payment fully met). Each due date is
  computed from start directly, so month-end clamping never accumulates.
  While the contract is Reserved there is no start and no schedule.

NO CENT DRIFT:
  The monthly installment (price - down payment) / term is usually not a
  whole number of cents. Instead of adding a rounded installment term
  times, period i expects cum(i) - cum(i-1), with cum(i) the exact share
  of principal owed after i periods. cum(term) is the principal itself,
  so the periods always sum to the principal.

WATERFALL:
  Funds cover the oldest period first. A later period is never covered
  while an earlier one is partial.

  funds 15,000, monthly 6,944.44...
    period 1: Covered  6,944.44...
    period 2: Covered  6,944.44...
    period 3: Partial  1,111.11...
    period 4: Pending  0
*/
package ledger

import "github.com/shopspring/decimal"

// schedulePrecision is the number of decimal places kept for the
// per-period shares of principal. Far below a cent, and the final
// period absorbs the remainder exactly.
const schedulePrecision = 20

type PeriodStatus string

const (
	PeriodCovered PeriodStatus = "covered"
	PeriodPartial PeriodStatus = "partial"
	PeriodPending PeriodStatus = "pending"
)

type Period struct {
	Index          int
	DueOn          Date
	ExpectedAmount Money
	CoveredAmount  Money
	Status         PeriodStatus

	// BalanceAfter is the principal still scheduled once this period is
	// paid. Zero on the last period.
	BalanceAfter Money

	// Due is true when DueOn <= asOf.
	Due bool
}

// Shortfall is what's still owed on this period.
func (p Period) Shortfall() Money {
	return p.ExpectedAmount.Sub(p.CoveredAmount)
}

type Schedule struct {
	// Monthly is the exact (unrounded) installment. Use Monthly.Display()
	// for presentation.
	Monthly Money
	Periods []Period
}

// FullyCovered is true when every period is covered. An empty schedule
// (contract not active yet) is never fully covered.
func (s Schedule) FullyCovered() bool {
	if len(s.Periods) == 0 {
		return false
	}
	for _, p := range s.Periods {
		if p.Status != PeriodCovered {
			return false
		}
	}
	return true
}

// Covered returns the sum of covered amounts across all periods.
func (s Schedule) Covered() Money {
	total := Zero()
	for _, p := range s.Periods {
		total = total.Add(p.CoveredAmount)
	}
	return total
}

// MonthlyInstallment computes (price - down payment) / term exactly.
func MonthlyInstallment(c Contract) (Money, error) {
	if err := c.Validate(); err != nil {
		return Money{}, err
	}
	principal := c.Principal().Value
	return Money{Value: principal.DivRound(decimal.NewFromInt(int64(c.Term)), schedulePrecision)}, nil
}

// BuildSchedule produces the amortization schedule. start is the
// activation date; pass nil for a contract that is still Reserved.
func BuildSchedule(c Contract, start *Date, installmentFunds Money, asOf Date) (Schedule, error) {
	monthly, err := MonthlyInstallment(c)
	if err != nil {
		return Schedule{}, err
	}
	if installmentFunds.IsNegative() {
		return Schedule{}, &ValidationError{Field: "installment_funds", Reason: "must not be negative"}
	}

	sched := Schedule{Monthly: monthly}
	if start == nil {
		return sched, nil
	}

	term := int(c.Term)
	principal := c.Principal().Value
	n := decimal.NewFromInt(int64(term))
	remaining := installmentFunds
	previous := decimal.Zero

	sched.Periods = make([]Period, 0, term)
	for i := 1; i <= term; i++ {
		cum := principal
		if i < term {
			cum = principal.Mul(decimal.NewFromInt(int64(i))).DivRound(n, schedulePrecision)
		}
		expected := Money{Value: cum.Sub(previous)}
		previous = cum

		covered := remaining.Min(expected)
		remaining = remaining.Sub(covered)

		status := PeriodPending
		switch {
		case covered.Equal(expected):
			status = PeriodCovered
		case covered.IsPositive():
			status = PeriodPartial
		}

		due := start.AddMonths(i)
		sched.Periods = append(sched.Periods, Period{
			Index:          i,
			DueOn:          due,
			ExpectedAmount: expected,
			CoveredAmount:  covered,
			Status:         status,
			BalanceAfter:   Money{Value: principal.Sub(cum)},
			Due:            due.BeforeOrEqual(asOf),
		})
	}
	return sched, nil
}
