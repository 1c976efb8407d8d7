/*
service.go - Operations exposed to the presentation layer

PURPOSE:
  Orchestrates read -> compute -> persist around the pure engine. Every
  mutating operation runs in one store transaction, recomputes the
  contract's account from scratch, applies any state transition, and
  invalidates cached accounts for that contract after commit.

OPERATIONS:
  ComputeAccount      derived account for a contract as of a date
  ApplyPayment        record a payment, recompute, maybe activate
  EditPayment         change a payment, recompute
  DeletePayment       remove a payment, recompute
  CreateContract      reserve a lot (defaults price/down payment from lot)
  AmendContract       explicit change of financial terms
  RequestCancellation issue a one-time confirm token
  CancelContract      cancel with an explicit commission decision
  Reconcile           persist a pending activation / stale lot status
  RecordCommissionPayment / CommissionBalance / CommissionBalances
  LotStatus           projected commercial status of a lot
  Portfolio           dashboard summary across open contracts

TWO-STEP CANCELLATION:
  RequestCancellation returns a token scoped to one contract.
  CancelContract must present it before it expires. Tokens are consumed
  on success.

SEE ALSO:
  - account.go: BuildAccount, the pure computation
  - store.go: TxStore and AccountCache
*/
package ledger

import (
	"context"
	"errors"
	"log/slog"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"
	"golang.org/x/sync/singleflight"
)

// DefaultCancelTokenTTL is how long a cancellation confirm token lives.
const DefaultCancelTokenTTL = 10 * time.Minute

type Service struct {
	Store  TxStore
	Cache  AccountCache // optional
	Policy Policy
	Logger *slog.Logger

	// Now is the clock. Tests pin it.
	Now      func() time.Time
	TokenTTL time.Duration

	group singleflight.Group

	// cacheMu orders cache writes against invalidations. generations
	// counts committed writes per contract.
	cacheMu     sync.Mutex
	generations map[ContractID]uint64

	mu     sync.Mutex
	tokens map[ContractID]cancelToken
}

type cancelToken struct {
	value     string
	expiresAt time.Time
}

func NewService(store TxStore, policy Policy, logger *slog.Logger) *Service {
	if logger == nil {
		logger = slog.Default()
	}
	return &Service{
		Store:    store,
		Policy:   policy,
		Logger:   logger,
		Now:      time.Now,
		TokenTTL: DefaultCancelTokenTTL,
		tokens:   make(map[ContractID]cancelToken),

		generations: make(map[ContractID]uint64),
	}
}

// Today is the service clock truncated to a calendar day.
func (s *Service) Today() Date { return DateOf(s.Now()) }

// =============================================================================
// ACCOUNT
// =============================================================================

// ComputeAccount returns the derived account. Read-only: a transition
// implied by the payments is reported in Account.Pending, not persisted.
func (s *Service) ComputeAccount(ctx context.Context, id ContractID, asOf Date) (Account, error) {
	if s.Cache != nil {
		cached, err := s.Cache.Get(ctx, id, asOf)
		if err != nil {
			s.Logger.Warn("account cache read failed", slog.String("contract_id", string(id)), slog.Any("error", err))
		} else if cached != nil {
			return *cached, nil
		}
	}

	key := string(id) + "@" + asOf.String()
	v, err, _ := s.group.Do(key, func() (any, error) {
		gen := s.generation(id)
		c, err := s.Store.GetContract(ctx, id)
		if err != nil {
			return nil, err
		}
		payments, err := s.Store.Payments(ctx, id)
		if err != nil {
			return nil, err
		}
		acct, err := BuildAccount(c, payments, asOf, s.Policy)
		if err != nil {
			return nil, err
		}
		s.cacheAccount(ctx, acct, gen)
		return acct, nil
	})
	if err != nil {
		return Account{}, err
	}
	return v.(Account), nil
}

func (s *Service) generation(id ContractID) uint64 {
	s.cacheMu.Lock()
	defer s.cacheMu.Unlock()
	return s.generations[id]
}

// cacheAccount stores acct unless a write committed after gen was read.
// A write that bumps the generation while the Put is in flight waits
// for it and invalidates afterwards.
func (s *Service) cacheAccount(ctx context.Context, acct Account, gen uint64) {
	if s.Cache == nil {
		return
	}
	s.cacheMu.Lock()
	defer s.cacheMu.Unlock()
	if s.generations[acct.ContractID] != gen {
		s.Logger.Debug("account cache write skipped", slog.String("contract_id", string(acct.ContractID)))
		return
	}
	if err := s.Cache.Put(ctx, acct); err != nil {
		s.Logger.Warn("account cache write failed", slog.String("contract_id", string(acct.ContractID)), slog.Any("error", err))
	}
}

// recompute rebuilds the account inside a transaction and persists the
// Reserved -> Active transition and the lot projection.
func (s *Service) recompute(ctx context.Context, st Store, c Contract, asOf Date) (Account, *Transition, error) {
	payments, err := st.Payments(ctx, c.ID)
	if err != nil {
		return Account{}, nil, err
	}
	acct, err := BuildAccount(c, payments, asOf, s.Policy)
	if err != nil {
		return Account{}, nil, err
	}

	fired := acct.Pending
	if fired != nil {
		if err := Activate(&c, fired.StartedOn); err != nil {
			return Account{}, nil, err
		}
		if err := st.UpdateContract(ctx, c); err != nil {
			return Account{}, nil, err
		}
		acct.Pending = nil
	}
	if c.Status != ContractCancelled {
		if err := st.SetLotStatus(ctx, c.LotID, acct.LotStatus); err != nil {
			return Account{}, nil, err
		}
	}
	return acct, fired, nil
}

func (s *Service) afterWrite(ctx context.Context, id ContractID, fired *Transition) {
	if fired != nil {
		s.Logger.Info("contract activated",
			slog.String("contract_id", string(id)),
			slog.String("started_on", fired.StartedOn.String()))
	}
	if s.Cache == nil {
		return
	}
	s.cacheMu.Lock()
	if s.generations == nil {
		s.generations = make(map[ContractID]uint64)
	}
	s.generations[id]++
	s.cacheMu.Unlock()

	if err := s.Cache.Invalidate(ctx, id); err != nil {
		s.Logger.Error("account cache invalidation failed", slog.String("contract_id", string(id)), slog.Any("error", err))
	}
}

// =============================================================================
// PAYMENTS
// =============================================================================

type NewPayment struct {
	Date      Date
	Amount    Money
	Method    string
	Reference string
	Notes     string
}

func (p NewPayment) validate() error {
	if p.Date.IsZero() {
		return &ValidationError{Field: "date", Reason: "required"}
	}
	return ValidateAmount("amount", p.Amount)
}

// ApplyPayment records a payment and returns the recomputed account as
// of today.
func (s *Service) ApplyPayment(ctx context.Context, id ContractID, np NewPayment) (Account, error) {
	if err := np.validate(); err != nil {
		return Account{}, err
	}

	var (
		acct  Account
		fired *Transition
	)
	err := s.Store.WithTx(ctx, func(st Store) error {
		c, err := st.GetContract(ctx, id)
		if err != nil {
			return err
		}
		if c.Status == ContractCancelled {
			return &InvalidTransitionError{ContractID: id, From: c.Status, Action: "apply payment"}
		}
		if _, err := st.InsertPayment(ctx, Payment{
			ID:         PaymentID(uuid.NewString()),
			ContractID: id,
			Date:       np.Date,
			Amount:     np.Amount,
			Method:     np.Method,
			Reference:  np.Reference,
			Notes:      np.Notes,
		}); err != nil {
			return err
		}
		acct, fired, err = s.recompute(ctx, st, c, s.Today())
		return err
	})
	if err != nil {
		return Account{}, err
	}
	s.afterWrite(ctx, id, fired)
	return acct, nil
}

// PaymentEdit carries the fields to change; nil means unchanged.
type PaymentEdit struct {
	Date      *Date
	Amount    *Money
	Method    *string
	Reference *string
	Notes     *string
}

// EditPayment changes a payment and recomputes its contract from scratch.
func (s *Service) EditPayment(ctx context.Context, id PaymentID, edit PaymentEdit) (Account, error) {
	if edit.Amount != nil {
		if err := ValidateAmount("amount", *edit.Amount); err != nil {
			return Account{}, err
		}
	}
	if edit.Date != nil && edit.Date.IsZero() {
		return Account{}, &ValidationError{Field: "date", Reason: "required"}
	}

	var (
		acct  Account
		fired *Transition
		cid   ContractID
	)
	err := s.Store.WithTx(ctx, func(st Store) error {
		p, err := st.GetPayment(ctx, id)
		if err != nil {
			return err
		}
		cid = p.ContractID
		c, err := s.openContract(ctx, st, cid, "edit payment")
		if err != nil {
			return err
		}
		if edit.Date != nil {
			p.Date = *edit.Date
		}
		if edit.Amount != nil {
			p.Amount = *edit.Amount
		}
		if edit.Method != nil {
			p.Method = *edit.Method
		}
		if edit.Reference != nil {
			p.Reference = *edit.Reference
		}
		if edit.Notes != nil {
			p.Notes = *edit.Notes
		}
		if err := st.UpdatePayment(ctx, p); err != nil {
			return err
		}
		acct, fired, err = s.recompute(ctx, st, c, s.Today())
		return err
	})
	if err != nil {
		return Account{}, err
	}
	s.afterWrite(ctx, cid, fired)
	return acct, nil
}

// DeletePayment removes a payment and recomputes its contract. An Active
// contract stays Active even if the down payment is no longer covered;
// the account then shows the shortfall.
func (s *Service) DeletePayment(ctx context.Context, id PaymentID) (Account, error) {
	var (
		acct Account
		cid  ContractID
	)
	err := s.Store.WithTx(ctx, func(st Store) error {
		p, err := st.GetPayment(ctx, id)
		if err != nil {
			return err
		}
		cid = p.ContractID
		c, err := s.openContract(ctx, st, cid, "delete payment")
		if err != nil {
			return err
		}
		if err := st.DeletePayment(ctx, id); err != nil {
			return err
		}
		acct, _, err = s.recompute(ctx, st, c, s.Today())
		return err
	})
	if err != nil {
		return Account{}, err
	}
	s.afterWrite(ctx, cid, nil)
	return acct, nil
}

// Reconcile recomputes a contract and persists whatever the stored
// record is missing: a pending activation or a stale lot status. It is
// what the background sweep runs for every open contract.
func (s *Service) Reconcile(ctx context.Context, id ContractID) (Account, error) {
	var (
		acct  Account
		fired *Transition
	)
	err := s.Store.WithTx(ctx, func(st Store) error {
		c, err := s.openContract(ctx, st, id, "reconcile")
		if err != nil {
			return err
		}
		acct, fired, err = s.recompute(ctx, st, c, s.Today())
		return err
	})
	if err != nil {
		return Account{}, err
	}
	if fired != nil {
		s.afterWrite(ctx, id, fired)
	}
	return acct, nil
}

// Payments lists a contract's payments in allocation order.
func (s *Service) Payments(ctx context.Context, id ContractID) ([]Payment, error) {
	if _, err := s.Store.GetContract(ctx, id); err != nil {
		return nil, err
	}
	payments, err := s.Store.Payments(ctx, id)
	if err != nil {
		return nil, err
	}
	return SortPayments(payments), nil
}

func (s *Service) openContract(ctx context.Context, st Store, id ContractID, action string) (Contract, error) {
	c, err := st.GetContract(ctx, id)
	if err != nil {
		return Contract{}, err
	}
	if c.Status == ContractCancelled {
		return Contract{}, &InvalidTransitionError{ContractID: id, From: c.Status, Action: action}
	}
	return c, nil
}

// =============================================================================
// CONTRACTS
// =============================================================================

// NewContract describes a reservation. Price and RequiredDownPayment
// default from the lot when nil. Term has no default.
type NewContract struct {
	LotID               LotID
	ClientID            ContactID
	SalespersonID       ContactID
	CreatedOn           Date
	Term                Term
	Price               *Money
	RequiredDownPayment *Money
	Commission          Money
}

// CreateContract reserves a lot. A contract with no down payment
// requirement activates immediately on its creation date.
func (s *Service) CreateContract(ctx context.Context, nc NewContract) (Contract, error) {
	if nc.CreatedOn.IsZero() {
		return Contract{}, &ValidationError{Field: "created_on", Reason: "required"}
	}
	if err := nc.Term.Validate(); err != nil {
		return Contract{}, err
	}

	var c Contract
	err := s.Store.WithTx(ctx, func(st Store) error {
		lot, err := st.GetLot(ctx, nc.LotID)
		if err != nil {
			return err
		}
		open, err := st.OpenContractForLot(ctx, lot.ID)
		if err != nil {
			return err
		}
		if open != nil {
			return &InvalidTransitionError{ContractID: open.ID, From: open.Status, Action: "reserve lot " + string(lot.ID), Reason: "lot is not available"}
		}
		if err := requireRole(ctx, st, nc.ClientID, RoleClient); err != nil {
			return err
		}
		if err := requireRole(ctx, st, nc.SalespersonID, RoleSalesperson); err != nil {
			return err
		}

		c = Contract{
			ID:                  ContractID(uuid.NewString()),
			LotID:               lot.ID,
			ClientID:            nc.ClientID,
			SalespersonID:       nc.SalespersonID,
			CreatedOn:           nc.CreatedOn,
			Term:                nc.Term,
			Price:               lot.ListPrice,
			RequiredDownPayment: lot.RequiredDownPayment,
			Commission:          nc.Commission,
			Status:              ContractReserved,
		}
		if nc.Price != nil {
			c.Price = *nc.Price
		}
		if nc.RequiredDownPayment != nil {
			c.RequiredDownPayment = *nc.RequiredDownPayment
		}
		if err := c.Validate(); err != nil {
			return err
		}
		if c.RequiredDownPayment.IsZero() {
			if err := Activate(&c, c.CreatedOn); err != nil {
				return err
			}
		}
		if err := st.InsertContract(ctx, c); err != nil {
			return err
		}
		return st.SetLotStatus(ctx, lot.ID, LotStatusFor(&c, false))
	})
	if err != nil {
		return Contract{}, err
	}
	s.Logger.Info("contract created",
		slog.String("contract_id", string(c.ID)),
		slog.String("lot_id", string(c.LotID)),
		slog.String("status", string(c.Status)))
	return c, nil
}

func requireRole(ctx context.Context, d Directory, id ContactID, role ContactRole) error {
	contact, err := d.GetContact(ctx, id)
	if err != nil {
		return err
	}
	if contact.Role != role {
		return &ValidationError{Field: string(role), Reason: "contact " + string(id) + " is a " + string(contact.Role)}
	}
	return nil
}

func (s *Service) GetContract(ctx context.Context, id ContractID) (Contract, error) {
	return s.Store.GetContract(ctx, id)
}

// Amendment changes financial terms explicitly; nil fields are unchanged.
type Amendment struct {
	Price               *Money
	RequiredDownPayment *Money
	Term                *Term
	Commission          *Money
}

// AmendContract is the only way to change a contract's financial terms
// after creation. The account is recomputed under the new terms; an
// already-fixed start date is kept.
func (s *Service) AmendContract(ctx context.Context, id ContractID, a Amendment) (Account, error) {
	var (
		acct  Account
		fired *Transition
	)
	err := s.Store.WithTx(ctx, func(st Store) error {
		c, err := s.openContract(ctx, st, id, "amend")
		if err != nil {
			return err
		}
		if a.Price != nil {
			c.Price = *a.Price
		}
		if a.RequiredDownPayment != nil {
			c.RequiredDownPayment = *a.RequiredDownPayment
		}
		if a.Term != nil {
			c.Term = *a.Term
		}
		if a.Commission != nil {
			c.Commission = *a.Commission
		}
		if err := c.Validate(); err != nil {
			return err
		}
		if err := st.UpdateContract(ctx, c); err != nil {
			return err
		}
		acct, fired, err = s.recompute(ctx, st, c, s.Today())
		return err
	})
	if err != nil {
		return Account{}, err
	}
	s.Logger.Info("contract amended", slog.String("contract_id", string(id)))
	s.afterWrite(ctx, id, fired)
	return acct, nil
}

// =============================================================================
// CANCELLATION
// =============================================================================

type CancelToken struct {
	ContractID ContractID
	Token      string
	ExpiresAt  time.Time
}

// RequestCancellation is step one: it checks the contract can be
// cancelled and issues a confirm token for it.
func (s *Service) RequestCancellation(ctx context.Context, id ContractID) (CancelToken, error) {
	if _, err := s.openContract(ctx, s.Store, id, "cancel"); err != nil {
		return CancelToken{}, err
	}
	tok := cancelToken{value: uuid.NewString(), expiresAt: s.Now().Add(s.TokenTTL)}

	s.mu.Lock()
	s.tokens[id] = tok
	s.mu.Unlock()

	return CancelToken{ContractID: id, Token: tok.value, ExpiresAt: tok.expiresAt}, nil
}

func (s *Service) checkToken(id ContractID, token string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	tok, ok := s.tokens[id]
	if !ok || token == "" || tok.value != token {
		return &ValidationError{Field: "confirm_token", Reason: "missing or does not match this contract"}
	}
	if s.Now().After(tok.expiresAt) {
		delete(s.tokens, id)
		return &ValidationError{Field: "confirm_token", Reason: "expired"}
	}
	return nil
}

func (s *Service) consumeToken(id ContractID) {
	s.mu.Lock()
	delete(s.tokens, id)
	s.mu.Unlock()
}

// Cancellation is the result of CancelContract.
type Cancellation struct {
	Contract   Contract
	Lot        Lot
	Commission CommissionBalance
}

// CancelContract is step two: it cancels the contract, releases the lot
// and applies the commission decision. The decision is required.
func (s *Service) CancelContract(ctx context.Context, id ContractID, decision CommissionDecision, token string) (Cancellation, error) {
	if err := decision.Validate(); err != nil {
		return Cancellation{}, err
	}
	if err := s.checkToken(id, token); err != nil {
		return Cancellation{}, err
	}

	var out Cancellation
	err := s.Store.WithTx(ctx, func(st Store) error {
		c, err := st.GetContract(ctx, id)
		if err != nil {
			return err
		}
		if err := Cancel(&c, decision, s.Today()); err != nil {
			return err
		}
		if err := st.UpdateContract(ctx, c); err != nil {
			return err
		}
		if err := st.SetLotStatus(ctx, c.LotID, LotAvailable); err != nil {
			return err
		}
		lot, err := st.GetLot(ctx, c.LotID)
		if err != nil {
			return err
		}
		balance, err := commissionBalance(ctx, st, c.SalespersonID)
		if err != nil {
			return err
		}
		out = Cancellation{Contract: c, Lot: lot, Commission: balance}
		return nil
	})
	if err != nil {
		return Cancellation{}, err
	}
	s.consumeToken(id)
	s.Logger.Info("contract cancelled",
		slog.String("contract_id", string(id)),
		slog.String("lot_id", string(out.Lot.ID)),
		slog.String("commission_decision", string(decision)))
	s.afterWrite(ctx, id, nil)
	return out, nil
}

// =============================================================================
// COMMISSIONS
// =============================================================================

type NewCommissionPayment struct {
	SalespersonID ContactID
	Amount        Money
	Date          Date
	Reference     string
	Note          string
}

// RecordCommissionPayment stores a payment to a salesperson and returns
// the updated balance. Paying past the accrued amount is allowed and
// shows up as Overpaid.
func (s *Service) RecordCommissionPayment(ctx context.Context, ncp NewCommissionPayment) (CommissionBalance, error) {
	if err := ValidateAmount("amount", ncp.Amount); err != nil {
		return CommissionBalance{}, err
	}
	if ncp.Date.IsZero() {
		return CommissionBalance{}, &ValidationError{Field: "date", Reason: "required"}
	}

	var balance CommissionBalance
	err := s.Store.WithTx(ctx, func(st Store) error {
		if err := requireRole(ctx, st, ncp.SalespersonID, RoleSalesperson); err != nil {
			return err
		}
		if err := st.InsertCommissionPayment(ctx, CommissionPayment{
			ID:            CommissionPaymentID(uuid.NewString()),
			SalespersonID: ncp.SalespersonID,
			Amount:        ncp.Amount,
			Date:          ncp.Date,
			Reference:     ncp.Reference,
			Note:          ncp.Note,
		}); err != nil {
			return err
		}
		var err error
		balance, err = commissionBalance(ctx, st, ncp.SalespersonID)
		return err
	})
	if err != nil {
		return CommissionBalance{}, err
	}
	if balance.Overpaid() {
		s.Logger.Warn("salesperson overpaid",
			slog.String("salesperson_id", string(balance.SalespersonID)),
			slog.String("balance", balance.Balance.String()))
	}
	return balance, nil
}

func (s *Service) CommissionBalance(ctx context.Context, salesperson ContactID) (CommissionBalance, error) {
	if err := requireRole(ctx, s.Store, salesperson, RoleSalesperson); err != nil {
		return CommissionBalance{}, err
	}
	return commissionBalance(ctx, s.Store, salesperson)
}

// CommissionBalances returns one balance per salesperson with contracts
// or commission payments, ordered by salesperson id.
func (s *Service) CommissionBalances(ctx context.Context) ([]CommissionBalance, error) {
	contracts, err := s.Store.ListContracts(ctx)
	if err != nil {
		return nil, err
	}
	payments, err := s.Store.CommissionPayments(ctx, "")
	if err != nil {
		return nil, err
	}

	seen := make(map[ContactID]bool)
	var ids []ContactID
	add := func(id ContactID) {
		if !seen[id] {
			seen[id] = true
			ids = append(ids, id)
		}
	}
	for _, c := range contracts {
		add(c.SalespersonID)
	}
	// Paid without any contract is an overpayment and must show up.
	for _, p := range payments {
		add(p.SalespersonID)
	}
	sort.Slice(ids, func(i, j int) bool { return ids[i] < ids[j] })

	out := make([]CommissionBalance, 0, len(ids))
	for _, id := range ids {
		b, err := ComputeCommission(id, contracts, payments)
		if err != nil {
			return nil, err
		}
		out = append(out, b)
	}
	return out, nil
}

func commissionBalance(ctx context.Context, st Store, salesperson ContactID) (CommissionBalance, error) {
	contracts, err := st.ListContracts(ctx)
	if err != nil {
		return CommissionBalance{}, err
	}
	payments, err := st.CommissionPayments(ctx, salesperson)
	if err != nil {
		return CommissionBalance{}, err
	}
	return ComputeCommission(salesperson, contracts, payments)
}

// =============================================================================
// LOTS & PORTFOLIO
// =============================================================================

// LotStatus projects the lot's commercial status as of a date.
func (s *Service) LotStatus(ctx context.Context, id LotID, asOf Date) (LotStatus, error) {
	if _, err := s.Store.GetLot(ctx, id); err != nil {
		return "", err
	}
	open, err := s.Store.OpenContractForLot(ctx, id)
	if err != nil {
		return "", err
	}
	if open == nil {
		return LotAvailable, nil
	}
	acct, err := s.ComputeAccount(ctx, open.ID, asOf)
	if err != nil {
		return "", err
	}
	return acct.LotStatus, nil
}

type PortfolioEntry struct {
	Contract Contract
	Account  Account
}

type Portfolio struct {
	AsOf           Date
	Entries        []PortfolioEntry
	Collected      Money
	PortfolioValue Money
	Overdue        Money
	Clients        int
	Contracts      int

	// Skipped lists open contracts whose stored data failed validation.
	// They are not in Entries or the totals.
	Skipped []ContractID
}

// Portfolio summarizes every open contract, most days late first. With
// delinquentOnly, entries with zero days late are left out of Entries;
// totals cover every open contract except those reported in Skipped.
func (s *Service) Portfolio(ctx context.Context, asOf Date, delinquentOnly bool) (Portfolio, error) {
	contracts, err := s.Store.ListContracts(ctx)
	if err != nil {
		return Portfolio{}, err
	}

	pf := Portfolio{AsOf: asOf, Collected: Zero(), PortfolioValue: Zero(), Overdue: Zero()}
	clients := make(map[ContactID]bool)
	for _, c := range contracts {
		if c.Status == ContractCancelled {
			continue
		}
		acct, err := s.ComputeAccount(ctx, c.ID, asOf)
		if err != nil {
			if errors.Is(err, ErrValidation) {
				s.Logger.Error("contract skipped from portfolio", slog.String("contract_id", string(c.ID)), slog.Any("error", err))
				pf.Skipped = append(pf.Skipped, c.ID)
				continue
			}
			return Portfolio{}, err
		}
		clients[c.ClientID] = true
		pf.Contracts++
		pf.Collected = pf.Collected.Add(acct.TotalPaid)
		pf.PortfolioValue = pf.PortfolioValue.Add(c.Price)
		if acct.DaysLate > 0 {
			pf.Overdue = pf.Overdue.Add(acct.AmountOverdue)
		}
		if delinquentOnly && acct.DaysLate == 0 {
			continue
		}
		pf.Entries = append(pf.Entries, PortfolioEntry{Contract: c, Account: acct})
	}
	pf.Clients = len(clients)

	sort.SliceStable(pf.Entries, func(i, j int) bool {
		a, b := pf.Entries[i].Account, pf.Entries[j].Account
		if a.DaysLate != b.DaysLate {
			return a.DaysLate > b.DaysLate
		}
		return a.ContractID < b.ContractID
	})
	return pf, nil
}
