/*
dto.go - Data Transfer Objects for API requests and responses

PURPOSE:
  Defines the JSON structures for API communication, decoupled from the
  ledger types. Money goes out as strings rounded half-up to 2 places;
  the engine keeps full precision internally. Dates are YYYY-MM-DD.

NAMING CONVENTION:
  - *DTO: Response types returned to clients
  - *Request: Request body types from clients

VALIDATION:
  Request types carry go-playground/validator tags. Handlers run
  h.validate.Struct before converting to ledger types; anything the tags
  can't express (price vs down payment, roles, state) is checked by the
  ledger and comes back as a typed error.

SEE ALSO:
  - handlers.go: Uses these types
*/
package api

import (
	"time"

	"github.com/vallemart2000/desarrolladora-sql/ledger"
)

// =============================================================================
// REQUESTS
// =============================================================================

type CreateContractRequest struct {
	LotID               string  `json:"lot_id" validate:"required"`
	ClientID            string  `json:"client_id" validate:"required"`
	SalespersonID       string  `json:"salesperson_id" validate:"required"`
	CreatedOn           string  `json:"created_on" validate:"required,datetime=2006-01-02"`
	TermMonths          int     `json:"term_months" validate:"required,gte=1"`
	Price               *string `json:"price,omitempty" validate:"omitempty,numeric"`
	RequiredDownPayment *string `json:"required_down_payment,omitempty" validate:"omitempty,numeric"`
	Commission          string  `json:"commission" validate:"omitempty,numeric"`
}

type AmendContractRequest struct {
	Price               *string `json:"price,omitempty" validate:"omitempty,numeric"`
	RequiredDownPayment *string `json:"required_down_payment,omitempty" validate:"omitempty,numeric"`
	TermMonths          *int    `json:"term_months,omitempty" validate:"omitempty,gte=1"`
	Commission          *string `json:"commission,omitempty" validate:"omitempty,numeric"`
}

type PaymentRequest struct {
	Date      string `json:"date" validate:"required,datetime=2006-01-02"`
	Amount    string `json:"amount" validate:"required,numeric"`
	Method    string `json:"method,omitempty" validate:"max=64"`
	Reference string `json:"reference,omitempty" validate:"max=128"`
	Notes     string `json:"notes,omitempty" validate:"max=1024"`
}

type EditPaymentRequest struct {
	Date      *string `json:"date,omitempty" validate:"omitempty,datetime=2006-01-02"`
	Amount    *string `json:"amount,omitempty" validate:"omitempty,numeric"`
	Method    *string `json:"method,omitempty" validate:"omitempty,max=64"`
	Reference *string `json:"reference,omitempty" validate:"omitempty,max=128"`
	Notes     *string `json:"notes,omitempty" validate:"omitempty,max=1024"`
}

type CancelRequest struct {
	Decision string `json:"decision" validate:"required,oneof=keep void"`
	Token    string `json:"token" validate:"required"`
}

type CommissionPaymentRequest struct {
	Amount    string `json:"amount" validate:"required,numeric"`
	Date      string `json:"date" validate:"required,datetime=2006-01-02"`
	Reference string `json:"reference,omitempty" validate:"max=128"`
	Note      string `json:"note,omitempty" validate:"max=1024"`
}

// =============================================================================
// RESPONSES
// =============================================================================

type PeriodDTO struct {
	Index        int    `json:"index"`
	DueOn        string `json:"due_on"`
	Expected     string `json:"expected"`
	Covered      string `json:"covered"`
	BalanceAfter string `json:"balance_after"`
	Status       string `json:"status"`
	Due          bool   `json:"due"`
}

type AccountDTO struct {
	ContractID string  `json:"contract_id"`
	LotID      string  `json:"lot_id"`
	Status     string  `json:"status"`
	LotStatus  string  `json:"lot_status"`
	AsOf       string  `json:"as_of"`
	StartedOn  *string `json:"started_on,omitempty"`

	Price                string `json:"price"`
	DownPaymentRequired  string `json:"down_payment_required"`
	DownPaymentPaid      string `json:"down_payment_paid"`
	DownPaymentRemaining string `json:"down_payment_remaining"`
	InstallmentFunds     string `json:"installment_funds"`
	TotalPaid            string `json:"total_paid"`
	RemainingBalance     string `json:"remaining_balance"`
	PercentPaid          int64  `json:"percent_paid"`

	MonthlyInstallment string      `json:"monthly_installment"`
	Periods            []PeriodDTO `json:"periods"`

	AmountOverdue string `json:"amount_overdue"`
	DaysLate      int    `json:"days_late"`
	Severity      string `json:"severity"`

	// Set when the payments imply an activation not yet persisted.
	PendingActivation *string `json:"pending_activation,omitempty"`
}

type ContractDTO struct {
	ID                  string  `json:"id"`
	LotID               string  `json:"lot_id"`
	ClientID            string  `json:"client_id"`
	SalespersonID       string  `json:"salesperson_id"`
	CreatedOn           string  `json:"created_on"`
	TermMonths          int     `json:"term_months"`
	Price               string  `json:"price"`
	RequiredDownPayment string  `json:"required_down_payment"`
	Commission          string  `json:"commission"`
	Status              string  `json:"status"`
	StartedOn           *string `json:"started_on,omitempty"`
	CommissionDecision  string  `json:"commission_decision,omitempty"`
	CancelledOn         *string `json:"cancelled_on,omitempty"`
}

type PaymentDTO struct {
	ID         string `json:"id"`
	ContractID string `json:"contract_id"`
	Date       string `json:"date"`
	Amount     string `json:"amount"`
	Method     string `json:"method,omitempty"`
	Reference  string `json:"reference,omitempty"`
	Notes      string `json:"notes,omitempty"`
	Seq        int64  `json:"seq"`
}

type CancelTokenDTO struct {
	ContractID string    `json:"contract_id"`
	Token      string    `json:"token"`
	ExpiresAt  time.Time `json:"expires_at"`
}

type LotStatusDTO struct {
	LotID  string `json:"lot_id"`
	Status string `json:"status"`
	AsOf   string `json:"as_of,omitempty"`
}

type CommissionDTO struct {
	SalespersonID  string `json:"salesperson_id"`
	Accrued        string `json:"accrued"`
	Paid           string `json:"paid"`
	Balance        string `json:"balance"`
	DisplayBalance string `json:"display_balance"`
	Overpaid       bool   `json:"overpaid"`
	Contracts      int    `json:"contracts"`
}

type CancellationDTO struct {
	Contract   ContractDTO   `json:"contract"`
	Lot        LotStatusDTO  `json:"lot"`
	Commission CommissionDTO `json:"commission"`
}

type PortfolioEntryDTO struct {
	ContractID    string `json:"contract_id"`
	LotID         string `json:"lot_id"`
	ClientID      string `json:"client_id"`
	Status        string `json:"status"`
	TotalPaid     string `json:"total_paid"`
	PercentPaid   int64  `json:"percent_paid"`
	AmountOverdue string `json:"amount_overdue"`
	DaysLate      int    `json:"days_late"`
	Severity      string `json:"severity"`
}

type PortfolioDTO struct {
	AsOf           string              `json:"as_of"`
	Entries        []PortfolioEntryDTO `json:"entries"`
	Collected      string              `json:"collected"`
	PortfolioValue string              `json:"portfolio_value"`
	Overdue        string              `json:"overdue"`
	Clients        int                 `json:"clients"`
	Contracts      int                 `json:"contracts"`
	Skipped        []string            `json:"skipped,omitempty"`
}

// ErrorResponse represents an error response.
type ErrorResponse struct {
	Error   string `json:"error"`
	Details string `json:"details,omitempty"`
}

// =============================================================================
// CONVERSIONS
// =============================================================================

func money(m ledger.Money) string { return m.Display().String() }

func datePtr(d *ledger.Date) *string {
	if d == nil {
		return nil
	}
	s := d.String()
	return &s
}

func toAccountDTO(a ledger.Account) AccountDTO {
	periods := make([]PeriodDTO, len(a.Schedule.Periods))
	for i, p := range a.Schedule.Periods {
		periods[i] = PeriodDTO{
			Index:        p.Index,
			DueOn:        p.DueOn.String(),
			Expected:     money(p.ExpectedAmount),
			Covered:      money(p.CoveredAmount),
			BalanceAfter: money(p.BalanceAfter),
			Status:       string(p.Status),
			Due:          p.Due,
		}
	}
	dto := AccountDTO{
		ContractID:           string(a.ContractID),
		LotID:                string(a.LotID),
		Status:               string(a.Status),
		LotStatus:            string(a.LotStatus),
		AsOf:                 a.AsOf.String(),
		StartedOn:            datePtr(a.StartedOn),
		Price:                money(a.Price),
		DownPaymentRequired:  money(a.DownPaymentRequired),
		DownPaymentPaid:      money(a.DownPaymentPaid),
		DownPaymentRemaining: money(a.DownPaymentRemaining()),
		InstallmentFunds:     money(a.InstallmentFunds),
		TotalPaid:            money(a.TotalPaid),
		RemainingBalance:     money(a.RemainingBalance()),
		PercentPaid:          a.PercentPaid(),
		MonthlyInstallment:   money(a.Schedule.Monthly),
		Periods:              periods,
		AmountOverdue:        money(a.AmountOverdue),
		DaysLate:             a.DaysLate,
		Severity:             string(a.Severity),
	}
	if a.Pending != nil {
		dto.PendingActivation = datePtr(&a.Pending.StartedOn)
	}
	return dto
}

func toContractDTO(c ledger.Contract) ContractDTO {
	return ContractDTO{
		ID:                  string(c.ID),
		LotID:               string(c.LotID),
		ClientID:            string(c.ClientID),
		SalespersonID:       string(c.SalespersonID),
		CreatedOn:           c.CreatedOn.String(),
		TermMonths:          int(c.Term),
		Price:               money(c.Price),
		RequiredDownPayment: money(c.RequiredDownPayment),
		Commission:          money(c.Commission),
		Status:              string(c.Status),
		StartedOn:           datePtr(c.StartedOn),
		CommissionDecision:  string(c.CommissionDecision),
		CancelledOn:         datePtr(c.CancelledOn),
	}
}

func toPaymentDTO(p ledger.Payment) PaymentDTO {
	return PaymentDTO{
		ID:         string(p.ID),
		ContractID: string(p.ContractID),
		Date:       p.Date.String(),
		Amount:     money(p.Amount),
		Method:     p.Method,
		Reference:  p.Reference,
		Notes:      p.Notes,
		Seq:        p.Seq,
	}
}

// Balance keeps its sign so an overpaid salesperson shows negative.
// DisplayBalance is the value screens show, never below zero.
func toCommissionDTO(b ledger.CommissionBalance) CommissionDTO {
	return CommissionDTO{
		SalespersonID:  string(b.SalespersonID),
		Accrued:        money(b.Accrued),
		Paid:           money(b.Paid),
		Balance:        money(b.Balance),
		DisplayBalance: money(b.DisplayBalance()),
		Overpaid:       b.Overpaid(),
		Contracts:      b.Contracts,
	}
}

func toPortfolioDTO(p ledger.Portfolio) PortfolioDTO {
	entries := make([]PortfolioEntryDTO, len(p.Entries))
	for i, e := range p.Entries {
		entries[i] = PortfolioEntryDTO{
			ContractID:    string(e.Contract.ID),
			LotID:         string(e.Contract.LotID),
			ClientID:      string(e.Contract.ClientID),
			Status:        string(e.Account.Status),
			TotalPaid:     money(e.Account.TotalPaid),
			PercentPaid:   e.Account.PercentPaid(),
			AmountOverdue: money(e.Account.AmountOverdue),
			DaysLate:      e.Account.DaysLate,
			Severity:      string(e.Account.Severity),
		}
	}
	var skipped []string
	for _, id := range p.Skipped {
		skipped = append(skipped, string(id))
	}
	return PortfolioDTO{
		AsOf:           p.AsOf.String(),
		Entries:        entries,
		Collected:      money(p.Collected),
		PortfolioValue: money(p.PortfolioValue),
		Overdue:        money(p.Overdue),
		Clients:        p.Clients,
		Contracts:      p.Contracts,
		Skipped:        skipped,
	}
}
