/*
arrears.go - Overdue amount, days late and severity

PURPOSE:
  Reads a schedule at a given date and answers "how much is past due,
  and since when?".

RULES:
  AmountOverdue = sum(expected - covered) over periods due on or before asOf
  DaysLate      = asOf - due date of the first period not fully covered
                  (0 when AmountOverdue is under the noise threshold)
  Severity      = OnTime (0) | Delinquent (1..N1) | Critical (> N1)

  Days late is anchored to the OLDEST unpaid or partial period. It is
  never an average and never a sum across periods.

POLICY:
  Both thresholds live in Policy so there is exactly one place to change
  them. See DefaultPolicy for the values and DESIGN.md for why.
*/
package ledger

import "fmt"

// =============================================================================
// POLICY - Delinquency thresholds
// =============================================================================

const (
	// DefaultNoiseThreshold: overdue amounts below this count as zero.
	DefaultNoiseThreshold = "1.00"

	// DefaultCriticalAfterDays is N1: more days late than this is Critical.
	DefaultCriticalAfterDays = 60
)

type Policy struct {
	NoiseThreshold    Money
	CriticalAfterDays int
}

func DefaultPolicy() Policy {
	return Policy{
		NoiseThreshold:    MustMoney(DefaultNoiseThreshold),
		CriticalAfterDays: DefaultCriticalAfterDays,
	}
}

func (p Policy) Validate() error {
	if p.NoiseThreshold.IsNegative() {
		return &ValidationError{Field: "noise_threshold", Reason: "must not be negative"}
	}
	if p.CriticalAfterDays < 1 {
		return &ValidationError{Field: "critical_after_days", Reason: fmt.Sprintf("must be at least 1, got %d", p.CriticalAfterDays)}
	}
	return nil
}

// =============================================================================
// SEVERITY
// =============================================================================

type Severity string

const (
	SeverityOnTime     Severity = "on_time"
	SeverityDelinquent Severity = "delinquent"
	SeverityCritical   Severity = "critical"
)

// Classify maps days late to a severity.
func Classify(daysLate int, p Policy) Severity {
	switch {
	case daysLate <= 0:
		return SeverityOnTime
	case daysLate <= p.CriticalAfterDays:
		return SeverityDelinquent
	default:
		return SeverityCritical
	}
}

// =============================================================================
// ARREARS
// =============================================================================

type Arrears struct {
	AmountOverdue Money
	DaysLate      int
	Severity      Severity

	// OldestUnpaid is the first period not fully covered, if any is due.
	OldestUnpaid *Period
}

// CalculateArrears derives the delinquency summary from a schedule.
func CalculateArrears(s Schedule, asOf Date, p Policy) Arrears {
	overdue := Zero()
	var oldest *Period

	for i := range s.Periods {
		period := s.Periods[i]
		if period.DueOn.After(asOf) {
			break
		}
		overdue = overdue.Add(period.Shortfall())
		if oldest == nil && period.Status != PeriodCovered {
			oldest = &s.Periods[i]
		}
	}

	if oldest == nil || overdue.LessThan(p.NoiseThreshold) || !overdue.IsPositive() {
		return Arrears{AmountOverdue: overdue, Severity: SeverityOnTime, OldestUnpaid: oldest}
	}

	daysLate := DaysBetween(oldest.DueOn, asOf)
	return Arrears{
		AmountOverdue: overdue,
		DaysLate:      daysLate,
		Severity:      Classify(daysLate, p),
		OldestUnpaid:  oldest,
	}
}
