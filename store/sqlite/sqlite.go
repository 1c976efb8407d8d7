/*
Package sqlite provides a SQLite-backed implementation of ledger.TxStore.

PURPOSE:
  Persists lots, contacts, contracts, payments and commission payments.
  Nothing derived is stored: no running totals, no days late. Accounts are
  recomputed from these rows on every read.

KEY TABLES:
  lots:                inventory records; status is the cached projection
  contacts:            clients and salespeople
  contracts:           one sale per row; at most one open contract per lot
  payments:            client payments; seq is the insertion order
  commission_payments: payments made to salespeople

MONEY AND DATES:
  Money is stored as TEXT. decimal.Decimal is both a driver.Valuer and
  an sql.Scanner, so money columns bind and scan through Money.Value
  directly, never through float64. Dates are TEXT YYYY-MM-DD.

INDEXES:
  - idx_one_open_contract_per_lot: partial unique index, a lot can carry
    only one non-cancelled contract
  - idx_payments_contract_date: payment replay order (hot path)

WAL MODE:
  SQLite is opened with WAL and foreign keys on. The pool is capped at
  one connection so ":memory:" databases are shared across calls and
  writers are serialized.

USAGE:
  store, err := sqlite.New("./data/ledger.db")
  if err != nil {
      log.Fatal(err)
  }
  defer store.Close()

  svc := ledger.NewService(store, policy, logger)

MIGRATION:
  Schema is auto-migrated on New().
*/
package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/mattn/go-sqlite3"
	"github.com/vallemart2000/desarrolladora-sql/ledger"
)

// Store implements ledger.TxStore using SQLite.
type Store struct {
	*queries
	db *sql.DB
}

// New creates a new SQLite store with the given database path.
// Use ":memory:" for an in-memory database.
func New(dbPath string) (*Store, error) {
	db, err := sql.Open("sqlite3", dbPath+"?_foreign_keys=on&_journal_mode=WAL")
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}
	db.SetMaxOpenConns(1)

	store := &Store{queries: &queries{q: db}, db: db}
	if err := store.migrate(); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to migrate database: %w", err)
	}

	return store, nil
}

// Close closes the database connection.
func (s *Store) Close() error {
	return s.db.Close()
}

// Ping reports whether the database is reachable.
func (s *Store) Ping(ctx context.Context) error {
	return s.db.PingContext(ctx)
}

func (s *Store) migrate() error {
	schema := `
	CREATE TABLE IF NOT EXISTS lots (
		id TEXT PRIMARY KEY,
		stage TEXT NOT NULL DEFAULT '',
		block INTEGER NOT NULL DEFAULT 0,
		number INTEGER NOT NULL DEFAULT 0,
		list_price TEXT NOT NULL,
		required_down_payment TEXT NOT NULL,
		status TEXT NOT NULL DEFAULT 'available'
	);

	CREATE TABLE IF NOT EXISTS contacts (
		id TEXT PRIMARY KEY,
		name TEXT NOT NULL,
		role TEXT NOT NULL,
		phone TEXT,
		email TEXT
	);

	CREATE TABLE IF NOT EXISTS contracts (
		id TEXT PRIMARY KEY,
		lot_id TEXT NOT NULL REFERENCES lots(id),
		client_id TEXT NOT NULL REFERENCES contacts(id),
		salesperson_id TEXT NOT NULL REFERENCES contacts(id),
		created_on TEXT NOT NULL,
		term INTEGER NOT NULL CHECK (term >= 1),
		price TEXT NOT NULL,
		required_down_payment TEXT NOT NULL,
		commission TEXT NOT NULL,
		status TEXT NOT NULL,
		started_on TEXT,
		commission_decision TEXT,
		cancelled_on TEXT
	);

	CREATE UNIQUE INDEX IF NOT EXISTS idx_one_open_contract_per_lot
		ON contracts(lot_id) WHERE status <> 'cancelled';
	CREATE INDEX IF NOT EXISTS idx_contracts_salesperson
		ON contracts(salesperson_id);

	CREATE TABLE IF NOT EXISTS payments (
		seq INTEGER PRIMARY KEY AUTOINCREMENT,
		id TEXT NOT NULL UNIQUE,
		contract_id TEXT NOT NULL REFERENCES contracts(id),
		date TEXT NOT NULL,
		amount TEXT NOT NULL,
		method TEXT,
		reference TEXT,
		notes TEXT
	);

	CREATE INDEX IF NOT EXISTS idx_payments_contract_date
		ON payments(contract_id, date, seq);

	CREATE TABLE IF NOT EXISTS commission_payments (
		seq INTEGER PRIMARY KEY AUTOINCREMENT,
		id TEXT NOT NULL UNIQUE,
		salesperson_id TEXT NOT NULL REFERENCES contacts(id),
		amount TEXT NOT NULL,
		date TEXT NOT NULL,
		reference TEXT,
		note TEXT
	);

	CREATE INDEX IF NOT EXISTS idx_commission_payments_salesperson
		ON commission_payments(salesperson_id);
	`

	_, err := s.db.Exec(schema)
	return err
}

// =============================================================================
// TRANSACTIONAL STORE (ledger.TxStore interface)
// =============================================================================

// WithTx executes a function within a database transaction.
func (s *Store) WithTx(ctx context.Context, fn func(store ledger.Store) error) error {
	sqlTx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer sqlTx.Rollback()

	if err := fn(&queries{q: sqlTx}); err != nil {
		return err
	}

	return sqlTx.Commit()
}

// querier is satisfied by both *sql.DB and *sql.Tx.
type querier interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
	QueryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error)
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
}

// queries implements ledger.Store over a querier, so the same SQL runs
// inside and outside transactions.
type queries struct {
	q querier
}

var (
	_ ledger.TxStore = (*Store)(nil)
	_ ledger.Store   = (*queries)(nil)
)

// =============================================================================
// LOTS & CONTACTS
// =============================================================================

// SaveLot inserts or replaces a lot. Lots are owned by the inventory
// collaborator; this is its write path.
func (s *queries) SaveLot(ctx context.Context, lot ledger.Lot) error {
	if lot.Status == "" {
		lot.Status = ledger.LotAvailable
	}
	_, err := s.q.ExecContext(ctx, `
		INSERT INTO lots (id, stage, block, number, list_price, required_down_payment, status)
		VALUES (?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(id) DO UPDATE SET
			stage = excluded.stage,
			block = excluded.block,
			number = excluded.number,
			list_price = excluded.list_price,
			required_down_payment = excluded.required_down_payment,
			status = excluded.status
	`, lot.ID, lot.Stage, lot.Block, lot.Number,
		lot.ListPrice.Value, lot.RequiredDownPayment.Value, lot.Status)
	if err != nil {
		return fmt.Errorf("failed to save lot: %w", err)
	}
	return nil
}

func (s *queries) GetLot(ctx context.Context, id ledger.LotID) (ledger.Lot, error) {
	var lot ledger.Lot
	err := s.q.QueryRowContext(ctx, `
		SELECT id, stage, block, number, list_price, required_down_payment, status
		FROM lots WHERE id = ?
	`, id).Scan(&lot.ID, &lot.Stage, &lot.Block, &lot.Number,
		&lot.ListPrice.Value, &lot.RequiredDownPayment.Value, &lot.Status)
	if errors.Is(err, sql.ErrNoRows) {
		return ledger.Lot{}, &ledger.NotFoundError{Kind: "lot", ID: string(id)}
	}
	if err != nil {
		return ledger.Lot{}, fmt.Errorf("failed to get lot: %w", err)
	}
	return lot, nil
}

func (s *queries) SetLotStatus(ctx context.Context, id ledger.LotID, status ledger.LotStatus) error {
	res, err := s.q.ExecContext(ctx, "UPDATE lots SET status = ? WHERE id = ?", status, id)
	if err != nil {
		return fmt.Errorf("failed to set lot status: %w", err)
	}
	return requireRow(res, "lot", string(id))
}

// SaveContact inserts or replaces a contact.
func (s *queries) SaveContact(ctx context.Context, c ledger.Contact) error {
	_, err := s.q.ExecContext(ctx, `
		INSERT INTO contacts (id, name, role, phone, email)
		VALUES (?, ?, ?, ?, ?)
		ON CONFLICT(id) DO UPDATE SET
			name = excluded.name,
			role = excluded.role,
			phone = excluded.phone,
			email = excluded.email
	`, c.ID, c.Name, c.Role, nullString(c.Phone), nullString(c.Email))
	if err != nil {
		return fmt.Errorf("failed to save contact: %w", err)
	}
	return nil
}

func (s *queries) GetContact(ctx context.Context, id ledger.ContactID) (ledger.Contact, error) {
	var (
		c            ledger.Contact
		phone, email sql.NullString
	)
	err := s.q.QueryRowContext(ctx,
		"SELECT id, name, role, phone, email FROM contacts WHERE id = ?", id,
	).Scan(&c.ID, &c.Name, &c.Role, &phone, &email)
	if errors.Is(err, sql.ErrNoRows) {
		return ledger.Contact{}, &ledger.NotFoundError{Kind: "contact", ID: string(id)}
	}
	if err != nil {
		return ledger.Contact{}, fmt.Errorf("failed to get contact: %w", err)
	}
	c.Phone = phone.String
	c.Email = email.String
	return c, nil
}

// =============================================================================
// CONTRACTS
// =============================================================================

const contractColumns = `id, lot_id, client_id, salesperson_id, created_on, term,
	price, required_down_payment, commission, status,
	started_on, commission_decision, cancelled_on`

func (s *queries) GetContract(ctx context.Context, id ledger.ContractID) (ledger.Contract, error) {
	rows, err := s.q.QueryContext(ctx, "SELECT "+contractColumns+" FROM contracts WHERE id = ?", id)
	if err != nil {
		return ledger.Contract{}, fmt.Errorf("failed to get contract: %w", err)
	}
	contracts, err := scanContracts(rows)
	if err != nil {
		return ledger.Contract{}, err
	}
	if len(contracts) == 0 {
		return ledger.Contract{}, &ledger.NotFoundError{Kind: "contract", ID: string(id)}
	}
	return contracts[0], nil
}

func (s *queries) OpenContractForLot(ctx context.Context, lotID ledger.LotID) (*ledger.Contract, error) {
	rows, err := s.q.QueryContext(ctx,
		"SELECT "+contractColumns+" FROM contracts WHERE lot_id = ? AND status <> ?",
		lotID, ledger.ContractCancelled)
	if err != nil {
		return nil, fmt.Errorf("failed to query contracts: %w", err)
	}
	contracts, err := scanContracts(rows)
	if err != nil || len(contracts) == 0 {
		return nil, err
	}
	return &contracts[0], nil
}

func (s *queries) ListContracts(ctx context.Context) ([]ledger.Contract, error) {
	rows, err := s.q.QueryContext(ctx, "SELECT "+contractColumns+" FROM contracts ORDER BY rowid")
	if err != nil {
		return nil, fmt.Errorf("failed to list contracts: %w", err)
	}
	return scanContracts(rows)
}

func (s *queries) InsertContract(ctx context.Context, c ledger.Contract) error {
	_, err := s.q.ExecContext(ctx, `
		INSERT INTO contracts (`+contractColumns+`)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	`, c.ID, c.LotID, c.ClientID, c.SalespersonID, c.CreatedOn.String(), int(c.Term),
		c.Price.Value, c.RequiredDownPayment.Value, c.Commission.Value, c.Status,
		nullDate(c.StartedOn), nullString(string(c.CommissionDecision)), nullDate(c.CancelledOn))
	if err != nil {
		if isUniqueConstraintError(err) {
			return &ledger.InvalidTransitionError{ContractID: c.ID, From: c.Status, Action: "reserve lot " + string(c.LotID), Reason: "lot already has an open contract"}
		}
		return fmt.Errorf("failed to insert contract: %w", err)
	}
	return nil
}

func (s *queries) UpdateContract(ctx context.Context, c ledger.Contract) error {
	res, err := s.q.ExecContext(ctx, `
		UPDATE contracts SET
			term = ?, price = ?, required_down_payment = ?, commission = ?,
			status = ?, started_on = ?, commission_decision = ?, cancelled_on = ?
		WHERE id = ?
	`, int(c.Term), c.Price.Value, c.RequiredDownPayment.Value, c.Commission.Value,
		c.Status, nullDate(c.StartedOn), nullString(string(c.CommissionDecision)), nullDate(c.CancelledOn),
		c.ID)
	if err != nil {
		return fmt.Errorf("failed to update contract: %w", err)
	}
	return requireRow(res, "contract", string(c.ID))
}

func scanContracts(rows *sql.Rows) ([]ledger.Contract, error) {
	defer rows.Close()

	var contracts []ledger.Contract
	for rows.Next() {
		var (
			c                      ledger.Contract
			createdOn              string
			term                   int
			startedOn, cancelledOn sql.NullString
			decision               sql.NullString
		)
		err := rows.Scan(&c.ID, &c.LotID, &c.ClientID, &c.SalespersonID, &createdOn, &term,
			&c.Price.Value, &c.RequiredDownPayment.Value, &c.Commission.Value, &c.Status,
			&startedOn, &decision, &cancelledOn)
		if err != nil {
			return nil, fmt.Errorf("failed to scan contract: %w", err)
		}
		c.Term = ledger.Term(term)
		c.CommissionDecision = ledger.CommissionDecision(decision.String)
		if c.CreatedOn, err = ledger.ParseDate(createdOn); err != nil {
			return nil, fmt.Errorf("contract %s: %w", c.ID, err)
		}
		if c.StartedOn, err = parseNullDate(startedOn); err != nil {
			return nil, fmt.Errorf("contract %s: %w", c.ID, err)
		}
		if c.CancelledOn, err = parseNullDate(cancelledOn); err != nil {
			return nil, fmt.Errorf("contract %s: %w", c.ID, err)
		}
		contracts = append(contracts, c)
	}
	return contracts, rows.Err()
}

// =============================================================================
// PAYMENTS
// =============================================================================

func (s *queries) InsertPayment(ctx context.Context, p ledger.Payment) (ledger.Payment, error) {
	res, err := s.q.ExecContext(ctx, `
		INSERT INTO payments (id, contract_id, date, amount, method, reference, notes)
		VALUES (?, ?, ?, ?, ?, ?, ?)
	`, p.ID, p.ContractID, p.Date.String(), p.Amount.Value,
		nullString(p.Method), nullString(p.Reference), nullString(p.Notes))
	if err != nil {
		if isUniqueConstraintError(err) {
			return ledger.Payment{}, &ledger.ValidationError{Field: "id", Reason: "payment " + string(p.ID) + " already exists"}
		}
		return ledger.Payment{}, fmt.Errorf("failed to insert payment: %w", err)
	}
	seq, err := res.LastInsertId()
	if err != nil {
		return ledger.Payment{}, fmt.Errorf("failed to read payment seq: %w", err)
	}
	p.Seq = seq
	return p, nil
}

const paymentColumns = "seq, id, contract_id, date, amount, method, reference, notes"

func (s *queries) GetPayment(ctx context.Context, id ledger.PaymentID) (ledger.Payment, error) {
	rows, err := s.q.QueryContext(ctx, "SELECT "+paymentColumns+" FROM payments WHERE id = ?", id)
	if err != nil {
		return ledger.Payment{}, fmt.Errorf("failed to get payment: %w", err)
	}
	payments, err := scanPayments(rows)
	if err != nil {
		return ledger.Payment{}, err
	}
	if len(payments) == 0 {
		return ledger.Payment{}, &ledger.NotFoundError{Kind: "payment", ID: string(id)}
	}
	return payments[0], nil
}

// UpdatePayment rewrites the editable fields. Seq and contract are fixed.
func (s *queries) UpdatePayment(ctx context.Context, p ledger.Payment) error {
	res, err := s.q.ExecContext(ctx, `
		UPDATE payments SET date = ?, amount = ?, method = ?, reference = ?, notes = ?
		WHERE id = ?
	`, p.Date.String(), p.Amount.Value,
		nullString(p.Method), nullString(p.Reference), nullString(p.Notes), p.ID)
	if err != nil {
		return fmt.Errorf("failed to update payment: %w", err)
	}
	return requireRow(res, "payment", string(p.ID))
}

func (s *queries) DeletePayment(ctx context.Context, id ledger.PaymentID) error {
	res, err := s.q.ExecContext(ctx, "DELETE FROM payments WHERE id = ?", id)
	if err != nil {
		return fmt.Errorf("failed to delete payment: %w", err)
	}
	return requireRow(res, "payment", string(id))
}

func (s *queries) Payments(ctx context.Context, contractID ledger.ContractID) ([]ledger.Payment, error) {
	rows, err := s.q.QueryContext(ctx, `
		SELECT `+paymentColumns+`
		FROM payments
		WHERE contract_id = ?
		ORDER BY date ASC, seq ASC
	`, contractID)
	if err != nil {
		return nil, fmt.Errorf("failed to query payments: %w", err)
	}
	return scanPayments(rows)
}

func scanPayments(rows *sql.Rows) ([]ledger.Payment, error) {
	defer rows.Close()

	var payments []ledger.Payment
	for rows.Next() {
		var (
			p                        ledger.Payment
			date                     string
			method, reference, notes sql.NullString
		)
		if err := rows.Scan(&p.Seq, &p.ID, &p.ContractID, &date, &p.Amount.Value, &method, &reference, &notes); err != nil {
			return nil, fmt.Errorf("failed to scan payment: %w", err)
		}
		var err error
		if p.Date, err = ledger.ParseDate(date); err != nil {
			return nil, fmt.Errorf("payment %s: %w", p.ID, err)
		}
		p.Method = method.String
		p.Reference = reference.String
		p.Notes = notes.String
		payments = append(payments, p)
	}
	return payments, rows.Err()
}

// =============================================================================
// COMMISSION PAYMENTS
// =============================================================================

func (s *queries) InsertCommissionPayment(ctx context.Context, p ledger.CommissionPayment) error {
	_, err := s.q.ExecContext(ctx, `
		INSERT INTO commission_payments (id, salesperson_id, amount, date, reference, note)
		VALUES (?, ?, ?, ?, ?, ?)
	`, p.ID, p.SalespersonID, p.Amount.Value, p.Date.String(), nullString(p.Reference), nullString(p.Note))
	if err != nil {
		return fmt.Errorf("failed to insert commission payment: %w", err)
	}
	return nil
}

func (s *queries) CommissionPayments(ctx context.Context, salespersonID ledger.ContactID) ([]ledger.CommissionPayment, error) {
	rows, err := s.q.QueryContext(ctx, `
		SELECT id, salesperson_id, amount, date, reference, note
		FROM commission_payments
		WHERE ? = '' OR salesperson_id = ?
		ORDER BY seq ASC
	`, salespersonID, salespersonID)
	if err != nil {
		return nil, fmt.Errorf("failed to query commission payments: %w", err)
	}
	defer rows.Close()

	var out []ledger.CommissionPayment
	for rows.Next() {
		var (
			p               ledger.CommissionPayment
			date            string
			reference, note sql.NullString
		)
		if err := rows.Scan(&p.ID, &p.SalespersonID, &p.Amount.Value, &date, &reference, &note); err != nil {
			return nil, fmt.Errorf("failed to scan commission payment: %w", err)
		}
		var err error
		if p.Date, err = ledger.ParseDate(date); err != nil {
			return nil, fmt.Errorf("commission payment %s: %w", p.ID, err)
		}
		p.Reference = reference.String
		p.Note = note.String
		out = append(out, p)
	}
	return out, rows.Err()
}

// Helper functions

func nullString(s string) sql.NullString {
	if s == "" {
		return sql.NullString{}
	}
	return sql.NullString{String: s, Valid: true}
}

func nullDate(d *ledger.Date) sql.NullString {
	if d == nil {
		return sql.NullString{}
	}
	return sql.NullString{String: d.String(), Valid: true}
}

func parseNullDate(s sql.NullString) (*ledger.Date, error) {
	if !s.Valid || s.String == "" {
		return nil, nil
	}
	d, err := ledger.ParseDate(s.String)
	if err != nil {
		return nil, err
	}
	return &d, nil
}

func requireRow(res sql.Result, kind, id string) error {
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return &ledger.NotFoundError{Kind: kind, ID: id}
	}
	return nil
}

func isUniqueConstraintError(err error) bool {
	var sqliteErr sqlite3.Error
	if errors.As(err, &sqliteErr) {
		return sqliteErr.ExtendedCode == sqlite3.ErrConstraintUnique ||
			sqliteErr.ExtendedCode == sqlite3.ErrConstraintPrimaryKey
	}
	return false
}
