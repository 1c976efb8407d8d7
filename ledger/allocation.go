/*
allocation.go - Down payment / installment waterfall

PURPOSE:
  Splits the cumulative funds paid against a contract into two buckets:
  the down payment bucket (filled first, capped at the requirement) and
  the installment bucket (everything after).

KEY INSIGHT:
  Bucketing works on CUMULATIVE totals, not on individual payments. A
  caller never tags a payment as "down payment" or "installment"; a
  10,000 payment that crosses the boundary simply fills the remainder of
  the down payment and the rest becomes installment funds.

ORDERING:
  Payments are sorted by date, ties broken by insertion sequence. The
  split itself doesn't depend on order (it's a sum), but the date at
  which the down payment was first met does, and it must be replayable.

INVARIANTS:
  DownPaymentPaid <= required
  DownPaymentPaid + InstallmentFunds == sum(payments)

EXAMPLE:
  required = 50,000; payments = [30,000 (Jan 5), 25,000 (Feb 2)]
  DownPaymentPaid = 50,000, InstallmentFunds = 5,000, met on Feb 2
*/
package ledger

import "sort"

// Allocation is the result of running the waterfall over a payment stream.
type Allocation struct {
	Required         Money
	DownPaymentPaid  Money
	InstallmentFunds Money
	Total            Money

	// DownPaymentMet is true once cumulative funds reach Required.
	// DownPaymentMetOn is the date of the payment that got there; it is
	// zero when Required is zero (met from the start).
	DownPaymentMet   bool
	DownPaymentMetOn Date
}

// DownPaymentRemaining is what's still missing before the contract can
// become active. Zero once met.
func (a Allocation) DownPaymentRemaining() Money {
	return a.Required.Sub(a.DownPaymentPaid).Max(Zero())
}

// SortPayments orders payments by date, then by insertion sequence.
// The input slice is not modified.
func SortPayments(payments []Payment) []Payment {
	sorted := make([]Payment, len(payments))
	copy(sorted, payments)
	sort.SliceStable(sorted, func(i, j int) bool {
		if !sorted[i].Date.Equal(sorted[j].Date) {
			return sorted[i].Date.Before(sorted[j].Date)
		}
		return sorted[i].Seq < sorted[j].Seq
	})
	return sorted
}

// Allocate runs the down payment waterfall.
func Allocate(required Money, payments []Payment) (Allocation, error) {
	if required.IsNegative() {
		return Allocation{}, &ValidationError{Field: "required_down_payment", Reason: "must not be negative"}
	}

	alloc := Allocation{
		Required:       required,
		Total:          Zero(),
		DownPaymentMet: required.IsZero(),
	}

	for _, p := range SortPayments(payments) {
		if err := ValidateAmount("payment amount", p.Amount); err != nil {
			return Allocation{}, err
		}
		alloc.Total = alloc.Total.Add(p.Amount)
		if !alloc.DownPaymentMet && alloc.Total.GreaterThanOrEqual(required) {
			alloc.DownPaymentMet = true
			alloc.DownPaymentMetOn = p.Date
		}
	}

	alloc.DownPaymentPaid = alloc.Total.Min(required)
	alloc.InstallmentFunds = alloc.Total.Sub(alloc.DownPaymentPaid)
	return alloc, nil
}
