/*
handlers.go - HTTP API handlers for the installment ledger

PURPOSE:
  Exposes ledger.Service via REST. Handles HTTP request/response, JSON
  serialization and input validation, then delegates to the service.

ENDPOINTS:
  Contracts:
    POST   /api/contracts                       Reserve a lot
    GET    /api/contracts/{id}                  Contract record
    POST   /api/contracts/{id}/amend            Change financial terms
    GET    /api/contracts/{id}/account          Derived account (?as_of=)

  Payments:
    POST   /api/contracts/{id}/payments         Apply a payment
    GET    /api/contracts/{id}/payments         Payment history
    PUT    /api/payments/{id}                   Edit a payment
    DELETE /api/payments/{id}                   Delete a payment

  Cancellation (two steps):
    POST   /api/contracts/{id}/cancellation     Issue a confirm token
    POST   /api/contracts/{id}/cancel           Cancel with {decision, token}

  Scenarios:
    GET    /api/scenarios                       List demo scenarios
    POST   /api/scenarios/load                  Seed one (non-production)

  Lots / commissions / dashboard:
    GET    /api/lots/{id}/status                Lot status projection
    GET    /api/salespeople/{id}/commission     Commission balance
    POST   /api/salespeople/{id}/commission-payments
    GET    /api/commissions                     All salespeople
    GET    /api/portfolio                       ?as_of=&delinquent_only=

REQUEST FLOW:
  1. Parse HTTP request
  2. Validate input (validator tags)
  3. Convert to ledger types
  4. Call the service
  5. Serialize response

ERROR HANDLING:
  Errors are returned as JSON with appropriate HTTP status:
  - 400: ledger.ErrValidation, malformed body, failed validator tags
  - 404: ledger.ErrNotFound
  - 409: ledger.ErrInvalidTransition
  - 500: anything else (logged)

SEE ALSO:
  - dto.go: Request/response data structures
  - scenarios.go: Demo scenario loaders
  - server.go: Router setup and middleware
*/
package api

import (
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"
	"github.com/go-playground/validator/v10"
	"github.com/vallemart2000/desarrolladora-sql/ledger"
)

// =============================================================================
// HANDLER CONTEXT
// =============================================================================

// Handler holds all dependencies for HTTP handlers.
type Handler struct {
	Service *ledger.Service
	Logger  *slog.Logger

	// Seeder enables POST /api/scenarios/load. Nil in production.
	Seeder Seeder

	validate *validator.Validate
}

// NewHandler creates a new handler around the service.
func NewHandler(svc *ledger.Service, logger *slog.Logger) *Handler {
	if logger == nil {
		logger = slog.Default()
	}
	return &Handler{
		Service:  svc,
		Logger:   logger,
		validate: validator.New(),
	}
}

// =============================================================================
// CONTRACT HANDLERS
// =============================================================================

// CreateContract reserves a lot for a client.
func (h *Handler) CreateContract(w http.ResponseWriter, r *http.Request) {
	var req CreateContractRequest
	if !h.decode(w, r, &req) {
		return
	}

	createdOn, err := ledger.ParseDate(req.CreatedOn)
	if err != nil {
		writeError(w, http.StatusBadRequest, "Invalid created_on", err)
		return
	}
	nc := ledger.NewContract{
		LotID:         ledger.LotID(req.LotID),
		ClientID:      ledger.ContactID(req.ClientID),
		SalespersonID: ledger.ContactID(req.SalespersonID),
		CreatedOn:     createdOn,
		Term:          ledger.Term(req.TermMonths),
		Commission:    ledger.Zero(),
	}
	if nc.Price, err = optionalMoney(req.Price); err != nil {
		writeError(w, http.StatusBadRequest, "Invalid price", err)
		return
	}
	if nc.RequiredDownPayment, err = optionalMoney(req.RequiredDownPayment); err != nil {
		writeError(w, http.StatusBadRequest, "Invalid required_down_payment", err)
		return
	}
	if req.Commission != "" {
		if nc.Commission, err = ledger.NewMoney(req.Commission); err != nil {
			writeError(w, http.StatusBadRequest, "Invalid commission", err)
			return
		}
	}

	c, err := h.Service.CreateContract(r.Context(), nc)
	if err != nil {
		h.writeServiceError(w, "Failed to create contract", err)
		return
	}
	writeJSON(w, http.StatusCreated, toContractDTO(c))
}

// GetContract returns the stored contract record.
func (h *Handler) GetContract(w http.ResponseWriter, r *http.Request) {
	c, err := h.Service.GetContract(r.Context(), ledger.ContractID(chi.URLParam(r, "id")))
	if err != nil {
		h.writeServiceError(w, "Failed to get contract", err)
		return
	}
	writeJSON(w, http.StatusOK, toContractDTO(c))
}

// AmendContract changes price, down payment, term or commission.
func (h *Handler) AmendContract(w http.ResponseWriter, r *http.Request) {
	var req AmendContractRequest
	if !h.decode(w, r, &req) {
		return
	}

	var (
		a   ledger.Amendment
		err error
	)
	if a.Price, err = optionalMoney(req.Price); err != nil {
		writeError(w, http.StatusBadRequest, "Invalid price", err)
		return
	}
	if a.RequiredDownPayment, err = optionalMoney(req.RequiredDownPayment); err != nil {
		writeError(w, http.StatusBadRequest, "Invalid required_down_payment", err)
		return
	}
	if a.Commission, err = optionalMoney(req.Commission); err != nil {
		writeError(w, http.StatusBadRequest, "Invalid commission", err)
		return
	}
	if req.TermMonths != nil {
		t := ledger.Term(*req.TermMonths)
		a.Term = &t
	}

	acct, err := h.Service.AmendContract(r.Context(), ledger.ContractID(chi.URLParam(r, "id")), a)
	if err != nil {
		h.writeServiceError(w, "Failed to amend contract", err)
		return
	}
	writeJSON(w, http.StatusOK, toAccountDTO(acct))
}

// GetAccount returns the derived account as of ?as_of (default today).
func (h *Handler) GetAccount(w http.ResponseWriter, r *http.Request) {
	asOf, ok := h.asOf(w, r)
	if !ok {
		return
	}
	acct, err := h.Service.ComputeAccount(r.Context(), ledger.ContractID(chi.URLParam(r, "id")), asOf)
	if err != nil {
		h.writeServiceError(w, "Failed to compute account", err)
		return
	}
	writeJSON(w, http.StatusOK, toAccountDTO(acct))
}

// =============================================================================
// PAYMENT HANDLERS
// =============================================================================

// ApplyPayment records a client payment and returns the new account.
func (h *Handler) ApplyPayment(w http.ResponseWriter, r *http.Request) {
	var req PaymentRequest
	if !h.decode(w, r, &req) {
		return
	}
	date, err := ledger.ParseDate(req.Date)
	if err != nil {
		writeError(w, http.StatusBadRequest, "Invalid date", err)
		return
	}
	amount, err := ledger.NewMoney(req.Amount)
	if err != nil {
		writeError(w, http.StatusBadRequest, "Invalid amount", err)
		return
	}

	acct, err := h.Service.ApplyPayment(r.Context(), ledger.ContractID(chi.URLParam(r, "id")), ledger.NewPayment{
		Date:      date,
		Amount:    amount,
		Method:    req.Method,
		Reference: req.Reference,
		Notes:     req.Notes,
	})
	if err != nil {
		h.writeServiceError(w, "Failed to apply payment", err)
		return
	}
	writeJSON(w, http.StatusCreated, toAccountDTO(acct))
}

// ListPayments returns payment history in allocation order.
func (h *Handler) ListPayments(w http.ResponseWriter, r *http.Request) {
	payments, err := h.Service.Payments(r.Context(), ledger.ContractID(chi.URLParam(r, "id")))
	if err != nil {
		h.writeServiceError(w, "Failed to list payments", err)
		return
	}
	dtos := make([]PaymentDTO, len(payments))
	for i, p := range payments {
		dtos[i] = toPaymentDTO(p)
	}
	writeJSON(w, http.StatusOK, dtos)
}

// EditPayment changes a payment and recomputes its contract.
func (h *Handler) EditPayment(w http.ResponseWriter, r *http.Request) {
	var req EditPaymentRequest
	if !h.decode(w, r, &req) {
		return
	}

	edit := ledger.PaymentEdit{Method: req.Method, Reference: req.Reference, Notes: req.Notes}
	if req.Date != nil {
		d, err := ledger.ParseDate(*req.Date)
		if err != nil {
			writeError(w, http.StatusBadRequest, "Invalid date", err)
			return
		}
		edit.Date = &d
	}
	var err error
	if edit.Amount, err = optionalMoney(req.Amount); err != nil {
		writeError(w, http.StatusBadRequest, "Invalid amount", err)
		return
	}

	acct, err := h.Service.EditPayment(r.Context(), ledger.PaymentID(chi.URLParam(r, "id")), edit)
	if err != nil {
		h.writeServiceError(w, "Failed to edit payment", err)
		return
	}
	writeJSON(w, http.StatusOK, toAccountDTO(acct))
}

// DeletePayment removes a payment and recomputes its contract.
func (h *Handler) DeletePayment(w http.ResponseWriter, r *http.Request) {
	acct, err := h.Service.DeletePayment(r.Context(), ledger.PaymentID(chi.URLParam(r, "id")))
	if err != nil {
		h.writeServiceError(w, "Failed to delete payment", err)
		return
	}
	writeJSON(w, http.StatusOK, toAccountDTO(acct))
}

// =============================================================================
// CANCELLATION HANDLERS
// =============================================================================

// RequestCancellation issues the confirm token for a cancellation.
func (h *Handler) RequestCancellation(w http.ResponseWriter, r *http.Request) {
	tok, err := h.Service.RequestCancellation(r.Context(), ledger.ContractID(chi.URLParam(r, "id")))
	if err != nil {
		h.writeServiceError(w, "Failed to request cancellation", err)
		return
	}
	writeJSON(w, http.StatusCreated, CancelTokenDTO{
		ContractID: string(tok.ContractID),
		Token:      tok.Token,
		ExpiresAt:  tok.ExpiresAt,
	})
}

// CancelContract cancels with the explicit commission decision.
func (h *Handler) CancelContract(w http.ResponseWriter, r *http.Request) {
	var req CancelRequest
	if !h.decode(w, r, &req) {
		return
	}

	out, err := h.Service.CancelContract(r.Context(),
		ledger.ContractID(chi.URLParam(r, "id")),
		ledger.CommissionDecision(req.Decision),
		req.Token)
	if err != nil {
		h.writeServiceError(w, "Failed to cancel contract", err)
		return
	}
	writeJSON(w, http.StatusOK, CancellationDTO{
		Contract:   toContractDTO(out.Contract),
		Lot:        LotStatusDTO{LotID: string(out.Lot.ID), Status: string(out.Lot.Status)},
		Commission: toCommissionDTO(out.Commission),
	})
}

// =============================================================================
// LOT, COMMISSION & PORTFOLIO HANDLERS
// =============================================================================

func (h *Handler) GetLotStatus(w http.ResponseWriter, r *http.Request) {
	asOf, ok := h.asOf(w, r)
	if !ok {
		return
	}
	id := ledger.LotID(chi.URLParam(r, "id"))
	status, err := h.Service.LotStatus(r.Context(), id, asOf)
	if err != nil {
		h.writeServiceError(w, "Failed to get lot status", err)
		return
	}
	writeJSON(w, http.StatusOK, LotStatusDTO{LotID: string(id), Status: string(status), AsOf: asOf.String()})
}

func (h *Handler) GetCommission(w http.ResponseWriter, r *http.Request) {
	b, err := h.Service.CommissionBalance(r.Context(), ledger.ContactID(chi.URLParam(r, "id")))
	if err != nil {
		h.writeServiceError(w, "Failed to get commission", err)
		return
	}
	writeJSON(w, http.StatusOK, toCommissionDTO(b))
}

func (h *Handler) RecordCommissionPayment(w http.ResponseWriter, r *http.Request) {
	var req CommissionPaymentRequest
	if !h.decode(w, r, &req) {
		return
	}
	date, err := ledger.ParseDate(req.Date)
	if err != nil {
		writeError(w, http.StatusBadRequest, "Invalid date", err)
		return
	}
	amount, err := ledger.NewMoney(req.Amount)
	if err != nil {
		writeError(w, http.StatusBadRequest, "Invalid amount", err)
		return
	}

	b, err := h.Service.RecordCommissionPayment(r.Context(), ledger.NewCommissionPayment{
		SalespersonID: ledger.ContactID(chi.URLParam(r, "id")),
		Amount:        amount,
		Date:          date,
		Reference:     req.Reference,
		Note:          req.Note,
	})
	if err != nil {
		h.writeServiceError(w, "Failed to record commission payment", err)
		return
	}
	writeJSON(w, http.StatusCreated, toCommissionDTO(b))
}

func (h *Handler) ListCommissions(w http.ResponseWriter, r *http.Request) {
	balances, err := h.Service.CommissionBalances(r.Context())
	if err != nil {
		h.writeServiceError(w, "Failed to list commissions", err)
		return
	}
	dtos := make([]CommissionDTO, len(balances))
	for i, b := range balances {
		dtos[i] = toCommissionDTO(b)
	}
	writeJSON(w, http.StatusOK, dtos)
}

func (h *Handler) GetPortfolio(w http.ResponseWriter, r *http.Request) {
	asOf, ok := h.asOf(w, r)
	if !ok {
		return
	}
	delinquentOnly := false
	if v := r.URL.Query().Get("delinquent_only"); v != "" {
		b, err := strconv.ParseBool(v)
		if err != nil {
			writeError(w, http.StatusBadRequest, "Invalid delinquent_only", err)
			return
		}
		delinquentOnly = b
	}

	pf, err := h.Service.Portfolio(r.Context(), asOf, delinquentOnly)
	if err != nil {
		h.writeServiceError(w, "Failed to build portfolio", err)
		return
	}
	writeJSON(w, http.StatusOK, toPortfolioDTO(pf))
}

// Health reports liveness.
func (h *Handler) Health(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

// =============================================================================
// HELPERS
// =============================================================================

// decode parses and validates the JSON body. It writes the 400 itself and
// returns false on failure.
func (h *Handler) decode(w http.ResponseWriter, r *http.Request, dst any) bool {
	if err := json.NewDecoder(r.Body).Decode(dst); err != nil {
		writeError(w, http.StatusBadRequest, "Invalid request body", err)
		return false
	}
	if err := h.validate.Struct(dst); err != nil {
		writeError(w, http.StatusBadRequest, "Validation failed", err)
		return false
	}
	return true
}

func (h *Handler) asOf(w http.ResponseWriter, r *http.Request) (ledger.Date, bool) {
	v := r.URL.Query().Get("as_of")
	if v == "" {
		return h.Service.Today(), true
	}
	d, err := ledger.ParseDate(v)
	if err != nil {
		writeError(w, http.StatusBadRequest, "Invalid as_of", err)
		return ledger.Date{}, false
	}
	return d, true
}

func optionalMoney(s *string) (*ledger.Money, error) {
	if s == nil {
		return nil, nil
	}
	m, err := ledger.NewMoney(*s)
	if err != nil {
		return nil, err
	}
	return &m, nil
}

func (h *Handler) writeServiceError(w http.ResponseWriter, message string, err error) {
	switch {
	case errors.Is(err, ledger.ErrNotFound):
		writeError(w, http.StatusNotFound, message, err)
	case errors.Is(err, ledger.ErrInvalidTransition):
		writeError(w, http.StatusConflict, message, err)
	case errors.Is(err, ledger.ErrValidation):
		writeError(w, http.StatusBadRequest, message, err)
	default:
		h.Logger.Error(message, slog.Any("error", err))
		writeError(w, http.StatusInternalServerError, message, nil)
	}
}

func writeJSON(w http.ResponseWriter, status int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(data)
}

func writeError(w http.ResponseWriter, status int, message string, err error) {
	resp := ErrorResponse{Error: message}
	if err != nil {
		resp.Details = err.Error()
	}
	writeJSON(w, status, resp)
}
