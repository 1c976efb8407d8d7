/*
status.go - Contract state machine

STATES:
  ┌──────────┐  down payment met   ┌────────┐  every period covered  ┌──────┐
  │ Reserved │ ──────────────────▶ │ Active │ ─ ─ ─ ─ ─ ─ ─ ─ ─ ─ ─ ▶ │ Sold │
  └──────────┘     (exactly once)   └────────┘   (reporting label)     └──────┘
        │                               │
        └──────────────┬────────────────┘
                       ▼
                 ┌───────────┐
                 │ Cancelled │  requires an explicit commission decision
                 └───────────┘

ACTIVATION:
  Fires the first time DownPaymentPaid >= RequiredDownPayment. It is the
  only place StartedOn gets set. Evaluate on an Active contract is a
  no-op, so re-running it after every payment is safe; calling Activate
  directly on an Active contract is an InvalidTransitionError.

LOT PROJECTION:
  The lot's status is derived from the contract that references it:
    no contract / cancelled -> Available
    Reserved                -> Reserved
    Active                  -> Active, or Sold once the schedule is covered
*/
package ledger

// Transition records a state change so the caller can persist it and
// fire side effects once.
type Transition struct {
	From      ContractStatus
	To        ContractStatus
	StartedOn Date
}

// ActivationDate is the date the contract became (or would become)
// active given an allocation. It is the payment date that met the down
// payment, or the creation date when nothing was required.
func ActivationDate(c Contract, alloc Allocation) (Date, bool) {
	if !alloc.DownPaymentMet {
		return Date{}, false
	}
	if alloc.DownPaymentMetOn.IsZero() || alloc.DownPaymentMetOn.Before(c.CreatedOn) {
		return c.CreatedOn, true
	}
	return alloc.DownPaymentMetOn, true
}

// Evaluate returns the transition implied by the allocation, or nil.
// It doesn't mutate the contract.
func Evaluate(c Contract, alloc Allocation) *Transition {
	if c.Status != ContractReserved {
		return nil
	}
	on, ok := ActivationDate(c, alloc)
	if !ok {
		return nil
	}
	return &Transition{From: ContractReserved, To: ContractActive, StartedOn: on}
}

// Activate applies Reserved -> Active.
func Activate(c *Contract, on Date) error {
	if c.Status != ContractReserved {
		return &InvalidTransitionError{ContractID: c.ID, From: c.Status, Action: "activate"}
	}
	c.Status = ContractActive
	started := on
	c.StartedOn = &started
	return nil
}

// Cancel applies any -> Cancelled. The decision is mandatory.
func Cancel(c *Contract, decision CommissionDecision, on Date) error {
	if c.Status == ContractCancelled {
		return &InvalidTransitionError{ContractID: c.ID, From: c.Status, Action: "cancel", Reason: "already cancelled"}
	}
	if err := decision.Validate(); err != nil {
		return err
	}
	c.Status = ContractCancelled
	c.CommissionDecision = decision
	cancelled := on
	c.CancelledOn = &cancelled
	return nil
}

// LotStatusFor projects a lot's commercial status from its current
// contract (nil when the lot has none) and, for active contracts,
// whether the schedule is fully covered.
func LotStatusFor(c *Contract, fullyCovered bool) LotStatus {
	if c == nil {
		return LotAvailable
	}
	switch c.Status {
	case ContractReserved:
		return LotReserved
	case ContractActive:
		if fullyCovered {
			return LotSold
		}
		return LotActive
	default:
		return LotAvailable
	}
}
