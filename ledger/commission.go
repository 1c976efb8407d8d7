package ledger

// =============================================================================
// COMMISSION - Accrued vs paid per salesperson
// =============================================================================

// CommissionBalance keeps the raw signed balance. Display clamps at zero;
// Overpaid reports the anomaly instead of hiding it.
type CommissionBalance struct {
	SalespersonID ContactID
	Accrued       Money
	Paid          Money
	Balance       Money
	Contracts     int
}

func (b CommissionBalance) Overpaid() bool { return b.Balance.IsNegative() }

func (b CommissionBalance) DisplayBalance() Money { return b.Balance.Max(Zero()) }

// ComputeCommission sums commission accrued on the salesperson's
// contracts and subtracts commission payments made to them. Records for
// other salespeople are ignored.
func ComputeCommission(salesperson ContactID, contracts []Contract, payments []CommissionPayment) (CommissionBalance, error) {
	b := CommissionBalance{SalespersonID: salesperson, Accrued: Zero(), Paid: Zero()}

	for _, c := range contracts {
		if c.SalespersonID != salesperson || !c.CommissionAccrues() {
			continue
		}
		if c.Commission.IsNegative() {
			return CommissionBalance{}, &ValidationError{Field: "commission", Reason: "negative commission on contract " + string(c.ID)}
		}
		b.Accrued = b.Accrued.Add(c.Commission)
		b.Contracts++
	}
	for _, p := range payments {
		if p.SalespersonID != salesperson {
			continue
		}
		if err := ValidateAmount("commission payment amount", p.Amount); err != nil {
			return CommissionBalance{}, err
		}
		b.Paid = b.Paid.Add(p.Amount)
	}

	b.Balance = b.Accrued.Sub(b.Paid)
	return b, nil
}
