package ledger_test

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/vallemart2000/desarrolladora-sql/ledger"
	"github.com/vallemart2000/desarrolladora-sql/ledger/store"
)

// =============================================================================
// TEST SETUP
// =============================================================================

var testNow = time.Date(2025, time.April, 15, 12, 0, 0, 0, time.UTC)

func newTestService(t *testing.T) (*ledger.Service, *store.Memory) {
	t.Helper()
	ctx := context.Background()
	mem := store.NewMemory()

	require.NoError(t, mem.SaveLot(ctx, ledger.Lot{ID: "lot-1", ListPrice: m("300000"), RequiredDownPayment: m("50000")}))
	require.NoError(t, mem.SaveLot(ctx, ledger.Lot{ID: "lot-2", ListPrice: m("100000"), RequiredDownPayment: m("5000")}))
	require.NoError(t, mem.SaveLot(ctx, ledger.Lot{ID: "lot-3", ListPrice: m("1200"), RequiredDownPayment: m("0")}))
	require.NoError(t, mem.SaveContact(ctx, ledger.Contact{ID: "client-1", Name: "Luis", Role: ledger.RoleClient}))
	require.NoError(t, mem.SaveContact(ctx, ledger.Contact{ID: "client-2", Name: "Marta", Role: ledger.RoleClient}))
	require.NoError(t, mem.SaveContact(ctx, ledger.Contact{ID: "sp-1", Name: "Ana", Role: ledger.RoleSalesperson}))
	require.NoError(t, mem.SaveContact(ctx, ledger.Contact{ID: "sp-2", Name: "Beto", Role: ledger.RoleSalesperson}))

	svc := ledger.NewService(mem, ledger.DefaultPolicy(), slog.New(slog.NewTextHandler(io.Discard, nil)))
	svc.Now = func() time.Time { return testNow }
	return svc, mem
}

func reserve(t *testing.T, svc *ledger.Service, lot ledger.LotID, client ledger.ContactID, commission string) ledger.Contract {
	t.Helper()
	c, err := svc.CreateContract(context.Background(), ledger.NewContract{
		LotID:         lot,
		ClientID:      client,
		SalespersonID: "sp-1",
		CreatedOn:     d(2025, time.January, 10),
		Term:          36,
		Commission:    m(commission),
	})
	require.NoError(t, err)
	return c
}

func pay(t *testing.T, svc *ledger.Service, id ledger.ContractID, on ledger.Date, amount string) ledger.Account {
	t.Helper()
	acct, err := svc.ApplyPayment(context.Background(), id, ledger.NewPayment{Date: on, Amount: m(amount)})
	require.NoError(t, err)
	return acct
}

// =============================================================================
// CONTRACT CREATION
// =============================================================================

func TestService_CreateContract_DefaultsFromLot(t *testing.T) {
	svc, mem := newTestService(t)
	ctx := context.Background()

	c := reserve(t, svc, "lot-1", "client-1", "15000")

	assert.Equal(t, ledger.ContractReserved, c.Status)
	assert.True(t, c.Price.Equal(m("300000")))
	assert.True(t, c.RequiredDownPayment.Equal(m("50000")))
	assert.Nil(t, c.StartedOn)

	lot, err := mem.GetLot(ctx, "lot-1")
	require.NoError(t, err)
	assert.Equal(t, ledger.LotReserved, lot.Status)
}

func TestService_CreateContract_OverridesLotDefaults(t *testing.T) {
	svc, _ := newTestService(t)
	price, down := m("280000"), m("40000")

	c, err := svc.CreateContract(context.Background(), ledger.NewContract{
		LotID: "lot-1", ClientID: "client-1", SalespersonID: "sp-1",
		CreatedOn: d(2025, time.January, 10), Term: 24,
		Price: &price, RequiredDownPayment: &down, Commission: m("0"),
	})
	require.NoError(t, err)

	assert.True(t, c.Price.Equal(price))
	assert.True(t, c.RequiredDownPayment.Equal(down))
}

func TestService_CreateContract_LotTaken_InvalidTransition(t *testing.T) {
	svc, _ := newTestService(t)
	reserve(t, svc, "lot-1", "client-1", "0")

	_, err := svc.CreateContract(context.Background(), ledger.NewContract{
		LotID: "lot-1", ClientID: "client-2", SalespersonID: "sp-1",
		CreatedOn: d(2025, time.February, 1), Term: 36,
	})

	assert.ErrorIs(t, err, ledger.ErrInvalidTransition)
}

func TestService_CreateContract_Rejections(t *testing.T) {
	svc, _ := newTestService(t)
	base := ledger.NewContract{
		LotID: "lot-1", ClientID: "client-1", SalespersonID: "sp-1",
		CreatedOn: d(2025, time.January, 10), Term: 36,
	}

	tests := []struct {
		name   string
		mutate func(nc *ledger.NewContract)
		want   error
	}{
		{"missing term is not defaulted", func(nc *ledger.NewContract) { nc.Term = 0 }, ledger.ErrValidation},
		{"missing created date", func(nc *ledger.NewContract) { nc.CreatedOn = ledger.Date{} }, ledger.ErrValidation},
		{"unknown lot", func(nc *ledger.NewContract) { nc.LotID = "nope" }, ledger.ErrNotFound},
		{"unknown client", func(nc *ledger.NewContract) { nc.ClientID = "nope" }, ledger.ErrNotFound},
		{"salesperson as client", func(nc *ledger.NewContract) { nc.ClientID = "sp-2" }, ledger.ErrValidation},
		{"client as salesperson", func(nc *ledger.NewContract) { nc.SalespersonID = "client-2" }, ledger.ErrValidation},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			nc := base
			tt.mutate(&nc)
			_, err := svc.CreateContract(context.Background(), nc)
			assert.ErrorIs(t, err, tt.want)
		})
	}
}

func TestService_CreateContract_NoDownPayment_ActiveImmediately(t *testing.T) {
	svc, mem := newTestService(t)

	c := reserve(t, svc, "lot-3", "client-1", "0")

	assert.Equal(t, ledger.ContractActive, c.Status)
	require.NotNil(t, c.StartedOn)
	assert.True(t, c.StartedOn.Equal(d(2025, time.January, 10)))

	lot, err := mem.GetLot(context.Background(), "lot-3")
	require.NoError(t, err)
	assert.Equal(t, ledger.LotActive, lot.Status)
}

// =============================================================================
// STATE MACHINE THROUGH PAYMENTS
// =============================================================================

func TestService_ApplyPayment_ActivatesExactlyOnceAtRequirement(t *testing.T) {
	// GIVEN: A contract requiring 5000 down
	svc, mem := newTestService(t)
	ctx := context.Background()
	c := reserve(t, svc, "lot-2", "client-1", "0")

	// WHEN: 3000 is paid
	acct := pay(t, svc, c.ID, d(2025, time.January, 12), "3000")

	// THEN: Still reserved, 2000 remaining
	assert.Equal(t, ledger.ContractReserved, acct.Status)
	assert.True(t, acct.DownPaymentRemaining().Equal(m("2000")))

	// WHEN: 2000 more is paid
	acct = pay(t, svc, c.ID, d(2025, time.January, 20), "2000")

	// THEN: Active, started on the payment that met the requirement
	assert.Equal(t, ledger.ContractActive, acct.Status)
	assert.Nil(t, acct.Pending, "transition persisted, not pending")
	stored, err := svc.GetContract(ctx, c.ID)
	require.NoError(t, err)
	require.NotNil(t, stored.StartedOn)
	assert.True(t, stored.StartedOn.Equal(d(2025, time.January, 20)))

	lot, err := mem.GetLot(ctx, "lot-2")
	require.NoError(t, err)
	assert.Equal(t, ledger.LotActive, lot.Status)

	// WHEN: Another payment arrives
	pay(t, svc, c.ID, d(2025, time.February, 20), "7916.67")

	// THEN: The start date doesn't move
	stored, err = svc.GetContract(ctx, c.ID)
	require.NoError(t, err)
	assert.True(t, stored.StartedOn.Equal(d(2025, time.January, 20)))
}

func TestService_ApplyPayment_BackdatedAfterActivation_StartFixed(t *testing.T) {
	svc, _ := newTestService(t)
	ctx := context.Background()
	c := reserve(t, svc, "lot-2", "client-1", "0")
	pay(t, svc, c.ID, d(2025, time.February, 1), "5000")

	// WHEN: A payment dated before activation is recorded later
	pay(t, svc, c.ID, d(2025, time.January, 12), "1000")

	stored, err := svc.GetContract(ctx, c.ID)
	require.NoError(t, err)
	assert.True(t, stored.StartedOn.Equal(d(2025, time.February, 1)))
}

func TestService_ApplyPayment_Validation(t *testing.T) {
	svc, _ := newTestService(t)
	c := reserve(t, svc, "lot-2", "client-1", "0")
	ctx := context.Background()

	_, err := svc.ApplyPayment(ctx, c.ID, ledger.NewPayment{Date: d(2025, time.January, 12), Amount: m("0")})
	assert.ErrorIs(t, err, ledger.ErrValidation)

	_, err = svc.ApplyPayment(ctx, c.ID, ledger.NewPayment{Date: d(2025, time.January, 12), Amount: m("-5")})
	assert.ErrorIs(t, err, ledger.ErrValidation)

	_, err = svc.ApplyPayment(ctx, c.ID, ledger.NewPayment{Amount: m("5")})
	assert.ErrorIs(t, err, ledger.ErrValidation)

	_, err = svc.ApplyPayment(ctx, "missing", ledger.NewPayment{Date: d(2025, time.January, 12), Amount: m("5")})
	assert.ErrorIs(t, err, ledger.ErrNotFound)
}

func TestService_ScenarioThreeMissedInstallments(t *testing.T) {
	svc, _ := newTestService(t)
	c := reserve(t, svc, "lot-1", "client-1", "15000")

	acct := pay(t, svc, c.ID, d(2025, time.January, 15), "50000")

	assert.Equal(t, "6944.44", acct.Schedule.Monthly.Display().String())
	assert.Equal(t, "20833.33", acct.AmountOverdue.Display().String())
	assert.Equal(t, 59, acct.DaysLate)
	assert.Equal(t, ledger.SeverityDelinquent, acct.Severity)
}

// =============================================================================
// EDIT / DELETE
// =============================================================================

func TestService_EditPayment_Recomputes(t *testing.T) {
	svc, _ := newTestService(t)
	ctx := context.Background()
	c := reserve(t, svc, "lot-1", "client-1", "0")
	pay(t, svc, c.ID, d(2025, time.January, 15), "50000")
	pay(t, svc, c.ID, d(2025, time.February, 15), "6944.45")

	payments, err := svc.Payments(ctx, c.ID)
	require.NoError(t, err)
	require.Len(t, payments, 2)

	// WHEN: The installment is corrected to cover three months
	amount := m("20833.34")
	acct, err := svc.EditPayment(ctx, payments[1].ID, ledger.PaymentEdit{Amount: &amount})
	require.NoError(t, err)

	// THEN: Nothing is overdue any more
	assert.Equal(t, 0, acct.DaysLate)
	assert.True(t, acct.TotalPaid.Equal(m("70833.34")))
}

func TestService_DeletePayment_ActiveStaysActive(t *testing.T) {
	svc, _ := newTestService(t)
	ctx := context.Background()
	c := reserve(t, svc, "lot-2", "client-1", "0")
	pay(t, svc, c.ID, d(2025, time.January, 20), "5000")

	payments, err := svc.Payments(ctx, c.ID)
	require.NoError(t, err)

	acct, err := svc.DeletePayment(ctx, payments[0].ID)
	require.NoError(t, err)

	assert.Equal(t, ledger.ContractActive, acct.Status)
	assert.True(t, acct.DownPaymentRemaining().Equal(m("5000")))

	_, err = svc.DeletePayment(ctx, payments[0].ID)
	assert.ErrorIs(t, err, ledger.ErrNotFound)
}

// =============================================================================
// AMENDMENT
// =============================================================================

func TestService_AmendContract(t *testing.T) {
	svc, _ := newTestService(t)
	ctx := context.Background()
	c := reserve(t, svc, "lot-1", "client-1", "0")

	term := ledger.Term(24)
	acct, err := svc.AmendContract(ctx, c.ID, ledger.Amendment{Term: &term})
	require.NoError(t, err)
	assert.Equal(t, "10416.67", acct.Schedule.Monthly.Display().String())

	bad := m("400000")
	_, err = svc.AmendContract(ctx, c.ID, ledger.Amendment{RequiredDownPayment: &bad})
	assert.ErrorIs(t, err, ledger.ErrValidation)
}

func TestService_AmendContract_LowerDownPayment_Activates(t *testing.T) {
	svc, _ := newTestService(t)
	ctx := context.Background()
	c := reserve(t, svc, "lot-1", "client-1", "0")
	pay(t, svc, c.ID, d(2025, time.January, 15), "30000")

	down := m("30000")
	acct, err := svc.AmendContract(ctx, c.ID, ledger.Amendment{RequiredDownPayment: &down})
	require.NoError(t, err)

	assert.Equal(t, ledger.ContractActive, acct.Status)
	stored, err := svc.GetContract(ctx, c.ID)
	require.NoError(t, err)
	assert.True(t, stored.StartedOn.Equal(d(2025, time.January, 15)))
}

// =============================================================================
// CANCELLATION
// =============================================================================

func TestService_Cancel_RequiresTokenAndDecision(t *testing.T) {
	svc, _ := newTestService(t)
	ctx := context.Background()
	c := reserve(t, svc, "lot-1", "client-1", "15000")

	// No token issued
	_, err := svc.CancelContract(ctx, c.ID, ledger.CommissionKeep, "made-up")
	assert.ErrorIs(t, err, ledger.ErrValidation)

	tok, err := svc.RequestCancellation(ctx, c.ID)
	require.NoError(t, err)

	// Missing decision: rejected, token survives
	_, err = svc.CancelContract(ctx, c.ID, "", tok.Token)
	assert.ErrorIs(t, err, ledger.ErrValidation)

	out, err := svc.CancelContract(ctx, c.ID, ledger.CommissionKeep, tok.Token)
	require.NoError(t, err)
	assert.Equal(t, ledger.ContractCancelled, out.Contract.Status)
	assert.Equal(t, ledger.LotAvailable, out.Lot.Status)
	assert.True(t, out.Commission.Accrued.Equal(m("15000")), "kept commission still accrues")

	// Cancelled twice
	_, err = svc.RequestCancellation(ctx, c.ID)
	assert.ErrorIs(t, err, ledger.ErrInvalidTransition)
	_, err = svc.CancelContract(ctx, c.ID, ledger.CommissionKeep, tok.Token)
	assert.ErrorIs(t, err, ledger.ErrValidation, "token consumed")
}

func TestService_Cancel_VoidReleasesLotAndCommission(t *testing.T) {
	svc, _ := newTestService(t)
	ctx := context.Background()
	c := reserve(t, svc, "lot-1", "client-1", "15000")
	pay(t, svc, c.ID, d(2025, time.January, 15), "50000")

	tok, err := svc.RequestCancellation(ctx, c.ID)
	require.NoError(t, err)
	out, err := svc.CancelContract(ctx, c.ID, ledger.CommissionVoid, tok.Token)
	require.NoError(t, err)

	assert.True(t, out.Commission.Accrued.IsZero())
	require.NotNil(t, out.Contract.CancelledOn)
	assert.True(t, out.Contract.CancelledOn.Equal(ledger.DateOf(testNow)))

	// Payments stay on record, new ones are refused
	payments, err := svc.Payments(ctx, c.ID)
	require.NoError(t, err)
	assert.Len(t, payments, 1)
	_, err = svc.ApplyPayment(ctx, c.ID, ledger.NewPayment{Date: d(2025, time.April, 1), Amount: m("100")})
	assert.ErrorIs(t, err, ledger.ErrInvalidTransition)

	// The lot can be sold again
	status, err := svc.LotStatus(ctx, "lot-1", ledger.DateOf(testNow))
	require.NoError(t, err)
	assert.Equal(t, ledger.LotAvailable, status)
	reserve(t, svc, "lot-1", "client-2", "0")
}

func TestService_Cancel_TokenExpires(t *testing.T) {
	svc, _ := newTestService(t)
	ctx := context.Background()
	c := reserve(t, svc, "lot-1", "client-1", "0")

	tok, err := svc.RequestCancellation(ctx, c.ID)
	require.NoError(t, err)

	svc.Now = func() time.Time { return testNow.Add(svc.TokenTTL + time.Second) }
	_, err = svc.CancelContract(ctx, c.ID, ledger.CommissionVoid, tok.Token)

	var verr *ledger.ValidationError
	require.ErrorAs(t, err, &verr)
	assert.Equal(t, "confirm_token", verr.Field)
}

func TestService_Cancel_TokenScopedToContract(t *testing.T) {
	svc, _ := newTestService(t)
	ctx := context.Background()
	c1 := reserve(t, svc, "lot-1", "client-1", "0")
	c2 := reserve(t, svc, "lot-2", "client-2", "0")

	tok, err := svc.RequestCancellation(ctx, c1.ID)
	require.NoError(t, err)

	_, err = svc.CancelContract(ctx, c2.ID, ledger.CommissionVoid, tok.Token)
	assert.ErrorIs(t, err, ledger.ErrValidation)
}

// =============================================================================
// ATOMICITY
// =============================================================================

type failingLots struct{ ledger.Store }

func (failingLots) SetLotStatus(context.Context, ledger.LotID, ledger.LotStatus) error {
	return errors.New("disk full")
}

// faultyStore fails every lot status write inside a transaction.
type faultyStore struct{ *store.Memory }

func (f faultyStore) WithTx(ctx context.Context, fn func(ledger.Store) error) error {
	return f.Memory.WithTx(ctx, func(st ledger.Store) error { return fn(failingLots{st}) })
}

func TestService_ApplyPayment_RollsBackOnFailure(t *testing.T) {
	svc, mem := newTestService(t)
	ctx := context.Background()
	c := reserve(t, svc, "lot-2", "client-1", "0")

	svc.Store = faultyStore{mem}
	_, err := svc.ApplyPayment(ctx, c.ID, ledger.NewPayment{Date: d(2025, time.January, 20), Amount: m("5000")})
	require.Error(t, err)

	// THEN: Neither the payment nor the activation was kept
	payments, err := mem.Payments(ctx, c.ID)
	require.NoError(t, err)
	assert.Empty(t, payments)
	stored, err := mem.GetContract(ctx, c.ID)
	require.NoError(t, err)
	assert.Equal(t, ledger.ContractReserved, stored.Status)
}

// =============================================================================
// COMMISSIONS
// =============================================================================

func TestService_CommissionPayments_OverpaidSurfaced(t *testing.T) {
	svc, _ := newTestService(t)
	ctx := context.Background()
	reserve(t, svc, "lot-1", "client-1", "1000")

	b, err := svc.RecordCommissionPayment(ctx, ledger.NewCommissionPayment{SalespersonID: "sp-1", Amount: m("600"), Date: d(2025, time.February, 1)})
	require.NoError(t, err)
	assert.True(t, b.Balance.Equal(m("400")))

	b, err = svc.RecordCommissionPayment(ctx, ledger.NewCommissionPayment{SalespersonID: "sp-1", Amount: m("600"), Date: d(2025, time.March, 1)})
	require.NoError(t, err)
	assert.True(t, b.Overpaid())
	assert.True(t, b.Balance.Equal(m("-200")))

	_, err = svc.RecordCommissionPayment(ctx, ledger.NewCommissionPayment{SalespersonID: "client-1", Amount: m("1"), Date: d(2025, time.March, 1)})
	assert.ErrorIs(t, err, ledger.ErrValidation)
}

func TestService_CommissionBalances_OnePerSalesperson(t *testing.T) {
	svc, _ := newTestService(t)
	ctx := context.Background()
	reserve(t, svc, "lot-1", "client-1", "1000")
	reserve(t, svc, "lot-2", "client-2", "500")

	balances, err := svc.CommissionBalances(ctx)
	require.NoError(t, err)
	require.Len(t, balances, 1)
	assert.Equal(t, ledger.ContactID("sp-1"), balances[0].SalespersonID)
	assert.True(t, balances[0].Accrued.Equal(m("1500")))

	_, err = svc.CommissionBalance(ctx, "nobody")
	assert.ErrorIs(t, err, ledger.ErrNotFound)
}

func TestService_CommissionBalances_IncludesPaidWithoutContracts(t *testing.T) {
	// GIVEN: sp-2 was paid commission but sold nothing
	svc, _ := newTestService(t)
	ctx := context.Background()
	reserve(t, svc, "lot-1", "client-1", "1000")
	_, err := svc.RecordCommissionPayment(ctx, ledger.NewCommissionPayment{SalespersonID: "sp-2", Amount: m("300"), Date: d(2025, time.March, 1)})
	require.NoError(t, err)

	// WHEN: All balances are listed
	balances, err := svc.CommissionBalances(ctx)
	require.NoError(t, err)

	// THEN: The overpaid salesperson is listed next to the one with contracts
	require.Len(t, balances, 2)
	assert.Equal(t, ledger.ContactID("sp-1"), balances[0].SalespersonID)
	assert.True(t, balances[0].Paid.IsZero())
	assert.Equal(t, ledger.ContactID("sp-2"), balances[1].SalespersonID)
	assert.Equal(t, 0, balances[1].Contracts)
	assert.True(t, balances[1].Balance.Equal(m("-300")))
	assert.True(t, balances[1].Overpaid())
}

// =============================================================================
// LOT STATUS & PORTFOLIO
// =============================================================================

func TestService_LotStatus_SoldWhenFullyPaid(t *testing.T) {
	svc, mem := newTestService(t)
	ctx := context.Background()
	c := reserve(t, svc, "lot-3", "client-1", "0")

	acct := pay(t, svc, c.ID, d(2025, time.February, 10), "1200")
	assert.Equal(t, ledger.LotSold, acct.LotStatus)

	status, err := svc.LotStatus(ctx, "lot-3", ledger.DateOf(testNow))
	require.NoError(t, err)
	assert.Equal(t, ledger.LotSold, status)

	lot, err := mem.GetLot(ctx, "lot-3")
	require.NoError(t, err)
	assert.Equal(t, ledger.LotSold, lot.Status)
}

func TestService_Portfolio_SortedByDaysLate(t *testing.T) {
	svc, _ := newTestService(t)
	ctx := context.Background()

	late := reserve(t, svc, "lot-1", "client-1", "0")
	pay(t, svc, late.ID, d(2025, time.January, 15), "50000")

	onTime := reserve(t, svc, "lot-3", "client-2", "0")
	pay(t, svc, onTime.ID, d(2025, time.January, 10), "1200")

	reserved := reserve(t, svc, "lot-2", "client-2", "0")
	pay(t, svc, reserved.ID, d(2025, time.January, 10), "1000")

	pf, err := svc.Portfolio(ctx, ledger.DateOf(testNow), false)
	require.NoError(t, err)

	require.Len(t, pf.Entries, 3)
	assert.Equal(t, late.ID, pf.Entries[0].Contract.ID)
	assert.Equal(t, 59, pf.Entries[0].Account.DaysLate)
	assert.Equal(t, 3, pf.Contracts)
	assert.Equal(t, 2, pf.Clients)
	assert.True(t, pf.Collected.Equal(m("52200")))
	assert.True(t, pf.PortfolioValue.Equal(m("401200")))
	assert.Equal(t, "20833.33", pf.Overdue.Display().String())

	pf, err = svc.Portfolio(ctx, ledger.DateOf(testNow), true)
	require.NoError(t, err)
	require.Len(t, pf.Entries, 1)
	assert.Equal(t, late.ID, pf.Entries[0].Contract.ID)
	assert.Equal(t, 3, pf.Contracts, "totals cover every open contract")
	assert.Empty(t, pf.Skipped)
}

// foreignPayments hands back a payment owned by another contract for one
// contract id, which BuildAccount rejects.
type foreignPayments struct {
	*store.Memory
	broken ledger.ContractID
}

func (f foreignPayments) Payments(ctx context.Context, id ledger.ContractID) ([]ledger.Payment, error) {
	if id != f.broken {
		return f.Memory.Payments(ctx, id)
	}
	return []ledger.Payment{{ID: "stray", ContractID: "elsewhere", Date: d(2025, time.January, 15), Amount: m("10")}}, nil
}

func TestService_Portfolio_ReportsSkippedContracts(t *testing.T) {
	// GIVEN: Two open contracts, one with corrupt payment data
	svc, mem := newTestService(t)
	ctx := context.Background()
	good := reserve(t, svc, "lot-1", "client-1", "0")
	pay(t, svc, good.ID, d(2025, time.January, 15), "50000")
	broken := reserve(t, svc, "lot-2", "client-2", "0")
	svc.Store = foreignPayments{Memory: mem, broken: broken.ID}

	// WHEN: The portfolio is built
	pf, err := svc.Portfolio(ctx, ledger.DateOf(testNow), false)
	require.NoError(t, err)

	// THEN: The broken contract is reported instead of silently dropped
	assert.Equal(t, []ledger.ContractID{broken.ID}, pf.Skipped)
	require.Len(t, pf.Entries, 1)
	assert.Equal(t, good.ID, pf.Entries[0].Contract.ID)
	assert.Equal(t, 1, pf.Contracts)
	assert.True(t, pf.PortfolioValue.Equal(m("300000")))
}

// =============================================================================
// CACHE
// =============================================================================

type mapCache struct {
	mu          sync.Mutex
	entries     map[string]ledger.Account
	invalidated []ledger.ContractID
}

func newMapCache() *mapCache { return &mapCache{entries: make(map[string]ledger.Account)} }

func (c *mapCache) Get(_ context.Context, id ledger.ContractID, asOf ledger.Date) (*ledger.Account, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if a, ok := c.entries[string(id)+asOf.String()]; ok {
		return &a, nil
	}
	return nil, nil
}

func (c *mapCache) Put(_ context.Context, a ledger.Account) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.entries[string(a.ContractID)+a.AsOf.String()] = a
	return nil
}

func (c *mapCache) Invalidate(_ context.Context, id ledger.ContractID) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	for k, a := range c.entries {
		if a.ContractID == id {
			delete(c.entries, k)
		}
	}
	c.invalidated = append(c.invalidated, id)
	return nil
}

func TestService_ComputeAccount_CacheInvalidatedOnWrite(t *testing.T) {
	svc, _ := newTestService(t)
	ctx := context.Background()
	cache := newMapCache()
	svc.Cache = cache

	c := reserve(t, svc, "lot-2", "client-1", "0")
	asOf := ledger.DateOf(testNow)

	first, err := svc.ComputeAccount(ctx, c.ID, asOf)
	require.NoError(t, err)
	assert.True(t, first.TotalPaid.IsZero())
	assert.Len(t, cache.entries, 1)

	pay(t, svc, c.ID, d(2025, time.January, 20), "5000")
	assert.Contains(t, cache.invalidated, c.ID)

	second, err := svc.ComputeAccount(ctx, c.ID, asOf)
	require.NoError(t, err)
	assert.True(t, second.TotalPaid.Equal(m("5000")), "no stale read after a write")
}

// racingPayments commits a write right after the first read of payments
// outside a transaction, before the reader builds its account.
type racingPayments struct {
	*store.Memory
	once   sync.Once
	during func()
}

func (r *racingPayments) Payments(ctx context.Context, id ledger.ContractID) ([]ledger.Payment, error) {
	out, err := r.Memory.Payments(ctx, id)
	if r.during != nil {
		r.once.Do(r.during)
	}
	return out, err
}

func TestService_ComputeAccount_WriteDuringReadIsNotCached(t *testing.T) {
	// GIVEN: An active contract and a cache
	svc, mem := newTestService(t)
	ctx := context.Background()
	c := reserve(t, svc, "lot-1", "client-1", "0")
	pay(t, svc, c.ID, d(2025, time.January, 15), "50000")
	cache := newMapCache()
	svc.Cache = cache
	asOf := ledger.DateOf(testNow)

	// WHEN: A payment commits while a read is between loading and caching
	racing := &racingPayments{Memory: mem}
	racing.during = func() { pay(t, svc, c.ID, d(2025, time.February, 15), "20000") }
	svc.Store = racing

	stale, err := svc.ComputeAccount(ctx, c.ID, asOf)
	require.NoError(t, err)
	assert.True(t, stale.TotalPaid.Equal(m("50000")), "the racing read saw the old payments")

	// THEN: The stale account was not cached and the next read is fresh
	assert.Empty(t, cache.entries)
	fresh, err := svc.ComputeAccount(ctx, c.ID, asOf)
	require.NoError(t, err)
	assert.True(t, fresh.TotalPaid.Equal(m("70000")))
	assert.Len(t, cache.entries, 1)
}

func TestService_ComputeAccount_ConcurrentReadsAgree(t *testing.T) {
	svc, _ := newTestService(t)
	ctx := context.Background()
	c := reserve(t, svc, "lot-1", "client-1", "0")
	pay(t, svc, c.ID, d(2025, time.January, 15), "50000")
	asOf := ledger.DateOf(testNow)

	var wg sync.WaitGroup
	results := make([]ledger.Account, 8)
	for i := range results {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			acct, err := svc.ComputeAccount(ctx, c.ID, asOf)
			assert.NoError(t, err)
			results[i] = acct
		}(i)
	}
	wg.Wait()

	for _, r := range results {
		assert.Equal(t, 59, r.DaysLate)
	}
}

// =============================================================================
// RECONCILE
// =============================================================================

func TestService_Reconcile_PersistsPendingActivation(t *testing.T) {
	// GIVEN: A payment written straight to the store, bypassing the service
	svc, mem := newTestService(t)
	ctx := context.Background()
	c := reserve(t, svc, "lot-2", "client-1", "0")
	_, err := mem.InsertPayment(ctx, ledger.Payment{ID: "imported", ContractID: c.ID, Date: d(2025, time.January, 25), Amount: m("5000")})
	require.NoError(t, err)

	acct, err := svc.ComputeAccount(ctx, c.ID, ledger.DateOf(testNow))
	require.NoError(t, err)
	require.NotNil(t, acct.Pending, "read path reports, doesn't persist")

	// WHEN: Reconciled
	acct, err = svc.Reconcile(ctx, c.ID)
	require.NoError(t, err)

	// THEN: The activation is persisted
	assert.Nil(t, acct.Pending)
	stored, err := mem.GetContract(ctx, c.ID)
	require.NoError(t, err)
	assert.Equal(t, ledger.ContractActive, stored.Status)
	assert.True(t, stored.StartedOn.Equal(d(2025, time.January, 25)))
}
