/*
scheduler.go - Periodic arrears sweep

PURPOSE:
  Walks every open contract on an interval, reconciles it (persisting a
  pending activation or a stale lot status) and logs the portfolio's
  arrears picture by severity. Days late grow with the calendar, not with
  writes, so this is what surfaces a contract crossing into Critical on a
  day nobody touched it.

DESIGN:
  - Runs a background goroutine with configurable check interval
  - Runs once immediately on Start
  - A failure on one contract is logged and the sweep moves on

USAGE:
  sweep := NewArrearsSweep(svc, logger)
  sweep.CheckInterval = cfg.SweepInterval
  sweep.Start()
  // ... later
  sweep.Stop()

SEE ALSO:
  - ledger/service.go: Reconcile, Portfolio
*/
package api

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/vallemart2000/desarrolladora-sql/ledger"
)

// SweepResult summarizes one run.
type SweepResult struct {
	RanAt      time.Time
	Reconciled int
	Activated  int
	Failed     int
	BySeverity map[ledger.Severity]int
}

// ArrearsSweep handles the periodic reconciliation of open contracts.
type ArrearsSweep struct {
	Service       *ledger.Service
	Logger        *slog.Logger
	CheckInterval time.Duration
	Enabled       bool

	ticker *time.Ticker
	stop   chan struct{}
	wg     sync.WaitGroup
	mu     sync.Mutex

	last SweepResult
}

// NewArrearsSweep creates a new sweep.
func NewArrearsSweep(svc *ledger.Service, logger *slog.Logger) *ArrearsSweep {
	if logger == nil {
		logger = slog.Default()
	}
	return &ArrearsSweep{
		Service:       svc,
		Logger:        logger,
		CheckInterval: 1 * time.Hour,
		Enabled:       true,
		stop:          make(chan struct{}),
	}
}

// Start begins the sweep.
func (as *ArrearsSweep) Start() {
	as.mu.Lock()
	defer as.mu.Unlock()

	if !as.Enabled || as.CheckInterval <= 0 {
		as.Logger.Info("arrears sweep disabled")
		return
	}

	as.ticker = time.NewTicker(as.CheckInterval)
	as.wg.Add(1)

	go as.run()

	as.Logger.Info("arrears sweep started", slog.Duration("interval", as.CheckInterval))
}

// Stop stops the sweep and waits for a running pass to finish.
func (as *ArrearsSweep) Stop() {
	as.mu.Lock()
	ticker := as.ticker
	as.ticker = nil
	as.mu.Unlock()

	if ticker != nil {
		ticker.Stop()
		close(as.stop)
		as.wg.Wait()
		as.Logger.Info("arrears sweep stopped")
	}
}

func (as *ArrearsSweep) run() {
	defer as.wg.Done()

	as.RunNow(context.Background())

	for {
		select {
		case <-as.ticker.C:
			as.RunNow(context.Background())
		case <-as.stop:
			return
		}
	}
}

// RunNow performs one sweep synchronously.
func (as *ArrearsSweep) RunNow(ctx context.Context) SweepResult {
	res := SweepResult{RanAt: as.Service.Now(), BySeverity: make(map[ledger.Severity]int)}

	contracts, err := as.Service.Store.ListContracts(ctx)
	if err != nil {
		as.Logger.Error("arrears sweep: listing contracts", slog.Any("error", err))
		return res
	}

	for _, c := range contracts {
		if c.Status == ledger.ContractCancelled {
			continue
		}
		acct, err := as.Service.Reconcile(ctx, c.ID)
		if err != nil {
			res.Failed++
			as.Logger.Error("arrears sweep: reconcile failed",
				slog.String("contract_id", string(c.ID)), slog.Any("error", err))
			continue
		}
		res.Reconciled++
		if c.Status == ledger.ContractReserved && acct.Status == ledger.ContractActive {
			res.Activated++
		}
		res.BySeverity[acct.Severity]++
		if acct.Severity == ledger.SeverityCritical {
			as.Logger.Warn("contract critically late",
				slog.String("contract_id", string(c.ID)),
				slog.Int("days_late", acct.DaysLate),
				slog.String("amount_overdue", acct.AmountOverdue.Display().String()))
		}
	}

	as.mu.Lock()
	as.last = res
	as.mu.Unlock()

	as.Logger.Info("arrears sweep completed",
		slog.Int("reconciled", res.Reconciled),
		slog.Int("activated", res.Activated),
		slog.Int("failed", res.Failed),
		slog.Int("delinquent", res.BySeverity[ledger.SeverityDelinquent]),
		slog.Int("critical", res.BySeverity[ledger.SeverityCritical]))
	return res
}

// Last returns the result of the most recent sweep.
func (as *ArrearsSweep) Last() SweepResult {
	as.mu.Lock()
	defer as.mu.Unlock()
	return as.last
}
