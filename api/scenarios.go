/*
scenarios.go - Demo scenario loaders for development and demonstrations

PURPOSE:
	Populates an empty store with realistic data. Each scenario seeds lots
	and contacts (which the ledger itself never creates) and then drives
	the normal service operations, so contracts, payments and cancellations
	go through the same validation and state machine as real traffic.

AVAILABLE SCENARIOS:
	on-schedule:  300000 / 50000 / 36 months, installments paid on time
	delinquent:   same terms, down payment only, installments missed
	reserved:     down payment partially paid, still Reserved
	cancelled:    contract cancelled with the commission voided
	demo:         all of the above

USAGE:
	./server -scenario=demo
	POST /api/scenarios/load {"scenario_id": "delinquent"}   (non-production)

NOTE:
	Loading the same scenario twice fails: the lots already carry an open
	contract.

SEE ALSO:
  - handlers.go: ListScenarios, LoadScenario handlers
*/
package api

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"github.com/vallemart2000/desarrolladora-sql/ledger"
)

// Seeder writes the records the ledger only reads. Both the SQLite and
// the in-memory store implement it.
type Seeder interface {
	SaveLot(ctx context.Context, lot ledger.Lot) error
	SaveContact(ctx context.Context, c ledger.Contact) error
}

type ScenarioDTO struct {
	ID          string `json:"id"`
	Name        string `json:"name"`
	Description string `json:"description"`
}

type LoadScenarioRequest struct {
	ScenarioID string `json:"scenario_id" validate:"required"`
}

// =============================================================================
// SCENARIO DEFINITIONS
// =============================================================================

var scenarios = []ScenarioDTO{
	{ID: "on-schedule", Name: "On Schedule", Description: "Down payment met, every installment paid on its due date"},
	{ID: "delinquent", Name: "Delinquent", Description: "Down payment met, no installments paid"},
	{ID: "reserved", Name: "Reserved", Description: "Down payment partially paid, contract not yet active"},
	{ID: "cancelled", Name: "Cancelled", Description: "Contract cancelled, commission voided, lot released"},
	{ID: "demo", Name: "Demo", Description: "All scenarios together"},
}

var loaders = map[string]func(context.Context, Seeder, *ledger.Service) error{
	"on-schedule": loadOnSchedule,
	"delinquent":  loadDelinquent,
	"reserved":    loadReserved,
	"cancelled":   loadCancelled,
	"demo":        loadDemo,
}

func loadDemo(ctx context.Context, s Seeder, svc *ledger.Service) error {
	steps := []struct {
		id   string
		load func(context.Context, Seeder, *ledger.Service) error
	}{
		{"on-schedule", loadOnSchedule},
		{"delinquent", loadDelinquent},
		{"reserved", loadReserved},
		{"cancelled", loadCancelled},
	}
	for _, step := range steps {
		if err := step.load(ctx, s, svc); err != nil {
			return fmt.Errorf("%s: %w", step.id, err)
		}
	}
	return nil
}

// LoadScenario seeds the named scenario.
func LoadScenario(ctx context.Context, seeder Seeder, svc *ledger.Service, id string) error {
	load, ok := loaders[id]
	if !ok {
		return &ledger.NotFoundError{Kind: "scenario", ID: id}
	}
	return load(ctx, seeder, svc)
}

// ListScenarios returns available demo scenarios.
func (h *Handler) ListScenarios(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, scenarios)
}

// LoadScenario seeds a scenario. Only routed when a Seeder is configured.
func (h *Handler) LoadScenario(w http.ResponseWriter, r *http.Request) {
	var req LoadScenarioRequest
	if !h.decode(w, r, &req) {
		return
	}
	if err := LoadScenario(r.Context(), h.Seeder, h.Service, req.ScenarioID); err != nil {
		h.writeServiceError(w, "Failed to load scenario", err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "loaded", "scenario_id": req.ScenarioID})
}

// =============================================================================
// LOADERS
// =============================================================================

var (
	demoSalesperson = ledger.Contact{ID: "sp-ana", Name: "Ana Ruiz", Role: ledger.RoleSalesperson, Phone: "555-0100"}
	demoStart       = ledger.NewDate(2025, time.January, 10)
)

type seedContract struct {
	lot        ledger.Lot
	client     ledger.Contact
	term       ledger.Term
	commission string
}

func seedOne(ctx context.Context, s Seeder, svc *ledger.Service, sc seedContract) (ledger.Contract, error) {
	if err := s.SaveContact(ctx, demoSalesperson); err != nil {
		return ledger.Contract{}, err
	}
	if err := s.SaveContact(ctx, sc.client); err != nil {
		return ledger.Contract{}, err
	}
	if err := s.SaveLot(ctx, sc.lot); err != nil {
		return ledger.Contract{}, err
	}
	return svc.CreateContract(ctx, ledger.NewContract{
		LotID:         sc.lot.ID,
		ClientID:      sc.client.ID,
		SalespersonID: demoSalesperson.ID,
		CreatedOn:     demoStart,
		Term:          sc.term,
		Commission:    ledger.MustMoney(sc.commission),
	})
}

func pay(ctx context.Context, svc *ledger.Service, id ledger.ContractID, on ledger.Date, amount, method string) error {
	_, err := svc.ApplyPayment(ctx, id, ledger.NewPayment{Date: on, Amount: ledger.MustMoney(amount), Method: method})
	return err
}

func loadOnSchedule(ctx context.Context, s Seeder, svc *ledger.Service) error {
	c, err := seedOne(ctx, s, svc, seedContract{
		lot:        ledger.Lot{ID: "A-1-01", Stage: "A", Block: 1, Number: 1, ListPrice: ledger.MustMoney("300000"), RequiredDownPayment: ledger.MustMoney("50000")},
		client:     ledger.Contact{ID: "cl-luis", Name: "Luis Ortega", Role: ledger.RoleClient},
		term:       36,
		commission: "15000",
	})
	if err != nil {
		return err
	}
	start := ledger.NewDate(2025, time.January, 15)
	if err := pay(ctx, svc, c.ID, start, "50000", "transfer"); err != nil {
		return err
	}
	for i := 1; i <= 3; i++ {
		if err := pay(ctx, svc, c.ID, start.AddMonths(i), "6944.45", "cash"); err != nil {
			return err
		}
	}
	return nil
}

func loadDelinquent(ctx context.Context, s Seeder, svc *ledger.Service) error {
	c, err := seedOne(ctx, s, svc, seedContract{
		lot:        ledger.Lot{ID: "A-1-02", Stage: "A", Block: 1, Number: 2, ListPrice: ledger.MustMoney("300000"), RequiredDownPayment: ledger.MustMoney("50000")},
		client:     ledger.Contact{ID: "cl-marta", Name: "Marta Gil", Role: ledger.RoleClient},
		term:       36,
		commission: "15000",
	})
	if err != nil {
		return err
	}
	return pay(ctx, svc, c.ID, ledger.NewDate(2025, time.January, 15), "50000", "transfer")
}

func loadReserved(ctx context.Context, s Seeder, svc *ledger.Service) error {
	c, err := seedOne(ctx, s, svc, seedContract{
		lot:        ledger.Lot{ID: "A-2-01", Stage: "A", Block: 2, Number: 1, ListPrice: ledger.MustMoney("180000"), RequiredDownPayment: ledger.MustMoney("20000")},
		client:     ledger.Contact{ID: "cl-pablo", Name: "Pablo Rey", Role: ledger.RoleClient},
		term:       24,
		commission: "9000",
	})
	if err != nil {
		return err
	}
	return pay(ctx, svc, c.ID, ledger.NewDate(2025, time.January, 20), "5000", "cash")
}

func loadCancelled(ctx context.Context, s Seeder, svc *ledger.Service) error {
	c, err := seedOne(ctx, s, svc, seedContract{
		lot:        ledger.Lot{ID: "B-1-01", Stage: "B", Block: 1, Number: 1, ListPrice: ledger.MustMoney("220000"), RequiredDownPayment: ledger.MustMoney("30000")},
		client:     ledger.Contact{ID: "cl-sara", Name: "Sara Vidal", Role: ledger.RoleClient},
		term:       48,
		commission: "11000",
	})
	if err != nil {
		return err
	}
	if err := pay(ctx, svc, c.ID, ledger.NewDate(2025, time.February, 1), "10000", "cash"); err != nil {
		return err
	}
	tok, err := svc.RequestCancellation(ctx, c.ID)
	if err != nil {
		return err
	}
	_, err = svc.CancelContract(ctx, c.ID, ledger.CommissionVoid, tok.Token)
	return err
}
