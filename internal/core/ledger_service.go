package core

import (
	"context"
	"fmt"
	"strings"

	"github.com/shopspring/decimal"
)

// LedgerCandidate carries the attributes used when a ledger has to be
// created during resolution or import.
type LedgerCandidate struct {
	Name            string
	MasterID        string
	TaxRegistration string
	TaxRate         *decimal.Decimal
	OpeningBalance  decimal.Decimal
}

// LedgerImportEntry is one row of a bulk ledger import.
type LedgerImportEntry struct {
	ParentName      string `json:"parent_name"`
	Name            string `json:"name"`
	MasterID        string `json:"master_id,omitempty"`
	TaxRegistration string `json:"tax_registration,omitempty"`
	OpeningBalance  string `json:"opening_balance,omitempty"`
}

// ImportResult summarizes a bulk import run.
type ImportResult struct {
	Created int `json:"created"`
	Existed int `json:"existed"`
}

// ParentGroup is a parent ledger with its children, for directory listings.
type ParentGroup struct {
	Parent  ParentLedger `json:"parent"`
	Ledgers []Ledger     `json:"ledgers"`
}

// LedgerStore reads and writes the two-level ledger hierarchy. It runs
// against whatever Querier it is built with, so services can point it at
// the pool or at an open transaction.
type LedgerStore struct {
	db Querier
}

func NewLedgerStore(db Querier) *LedgerStore {
	return &LedgerStore{db: db}
}

const parentCols = "id::text, tenant_id::text, name, created_at"

// EnsureParent creates the parent ledger if it does not exist and returns
// the row either way. Case-insensitive on name.
func (s *LedgerStore) EnsureParent(ctx context.Context, tenantID, name string) (*ParentLedger, error) {
	name = strings.TrimSpace(name)
	if name == "" {
		return nil, NewValidationError("name", "parent ledger name is required")
	}
	var p ParentLedger
	err := s.db.QueryRow(ctx, `
		INSERT INTO parent_ledgers (tenant_id, name)
		VALUES ($1, $2)
		ON CONFLICT (tenant_id, lower(name))
		DO UPDATE SET name = parent_ledgers.name
		RETURNING `+parentCols,
		tenantID, name).Scan(&p.ID, &p.TenantID, &p.Name, &p.CreatedAt)
	if err != nil {
		return nil, fmt.Errorf("ensure parent ledger %q: %w", name, err)
	}
	return &p, nil
}

// ParentByID fetches one parent ledger. Returns ErrNotFound if the id does
// not belong to the tenant.
func (s *LedgerStore) ParentByID(ctx context.Context, tenantID, id string) (*ParentLedger, error) {
	var p ParentLedger
	err := s.db.QueryRow(ctx, `
		SELECT `+parentCols+` FROM parent_ledgers
		WHERE tenant_id = $1 AND id = $2`,
		tenantID, id).Scan(&p.ID, &p.TenantID, &p.Name, &p.CreatedAt)
	if err != nil {
		if isNoRows(err) {
			return nil, fmt.Errorf("parent ledger %s: %w", id, ErrNotFound)
		}
		return nil, fmt.Errorf("get parent ledger: %w", err)
	}
	return &p, nil
}

// ListParents returns the tenant's parent ledgers ordered by name.
func (s *LedgerStore) ListParents(ctx context.Context, tenantID string) ([]ParentLedger, error) {
	rows, err := s.db.Query(ctx, `
		SELECT `+parentCols+` FROM parent_ledgers
		WHERE tenant_id = $1 ORDER BY lower(name)`, tenantID)
	if err != nil {
		return nil, fmt.Errorf("list parent ledgers: %w", err)
	}
	defer rows.Close()
	var out []ParentLedger
	for rows.Next() {
		var p ParentLedger
		if err := rows.Scan(&p.ID, &p.TenantID, &p.Name, &p.CreatedAt); err != nil {
			return nil, err
		}
		out = append(out, p)
	}
	return out, rows.Err()
}

const ledgerCols = `id::text, tenant_id::text, parent_id::text, name,
	master_id, tax_registration, tax_rate::text, opening_balance, created_at`

func scanLedger(row interface{ Scan(...any) error }) (*Ledger, error) {
	var l Ledger
	var rate *string
	err := row.Scan(&l.ID, &l.TenantID, &l.ParentID, &l.Name,
		&l.MasterID, &l.TaxRegistration, &rate, &l.OpeningBalance, &l.CreatedAt)
	if err != nil {
		return nil, err
	}
	if rate != nil {
		d, err := decimal.NewFromString(*rate)
		if err != nil {
			return nil, fmt.Errorf("ledger %s tax_rate: %w", l.ID, err)
		}
		l.TaxRate = &d
	}
	return &l, nil
}

// ByID fetches one ledger scoped to the tenant.
func (s *LedgerStore) ByID(ctx context.Context, tenantID, id string) (*Ledger, error) {
	l, err := scanLedger(s.db.QueryRow(ctx, `
		SELECT `+ledgerCols+` FROM ledgers
		WHERE tenant_id = $1 AND id = $2`, tenantID, id))
	if err != nil {
		if isNoRows(err) {
			return nil, fmt.Errorf("ledger %s: %w", id, ErrNotFound)
		}
		return nil, fmt.Errorf("get ledger: %w", err)
	}
	return l, nil
}

// FindUnderParents looks name up under the given parents. Exact matches
// (case-insensitive) win; only when there are none does it fall back to
// substring matches. Results keep the parents' order.
func (s *LedgerStore) FindUnderParents(ctx context.Context, tenantID string, parentIDs []string, name string) ([]Ledger, error) {
	if len(parentIDs) == 0 || strings.TrimSpace(name) == "" {
		return nil, nil
	}
	rows, err := s.db.Query(ctx, `
		SELECT `+ledgerCols+`,
		       lower(name) = lower($3) AS exact,
		       array_position($2::uuid[], parent_id) AS rank
		FROM ledgers
		WHERE tenant_id = $1
		  AND parent_id = ANY($2::uuid[])
		  AND position(lower($3) IN lower(name)) > 0
		ORDER BY rank, lower(name)`,
		tenantID, parentIDs, strings.TrimSpace(name))
	if err != nil {
		return nil, fmt.Errorf("find ledgers named %q: %w", name, err)
	}
	defer rows.Close()

	var exact, loose []Ledger
	for rows.Next() {
		var l Ledger
		var rate *string
		var isExact bool
		var rank int
		if err := rows.Scan(&l.ID, &l.TenantID, &l.ParentID, &l.Name,
			&l.MasterID, &l.TaxRegistration, &rate, &l.OpeningBalance, &l.CreatedAt,
			&isExact, &rank); err != nil {
			return nil, err
		}
		if rate != nil {
			d, err := decimal.NewFromString(*rate)
			if err != nil {
				return nil, fmt.Errorf("ledger %s tax_rate: %w", l.ID, err)
			}
			l.TaxRate = &d
		}
		if isExact {
			exact = append(exact, l)
		} else {
			loose = append(loose, l)
		}
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	if len(exact) > 0 {
		return exact, nil
	}
	return loose, nil
}

// CreateIfAbsent inserts the ledger under parentID, or returns the
// existing row when one with the same name (case-insensitive) is already
// there. Safe under concurrent callers. The bool reports whether a new
// row was inserted.
func (s *LedgerStore) CreateIfAbsent(ctx context.Context, tenantID, parentID string, c LedgerCandidate) (*Ledger, bool, error) {
	name := strings.TrimSpace(c.Name)
	if name == "" {
		return nil, false, NewValidationError("name", "ledger name is required")
	}
	var rate any
	if c.TaxRate != nil {
		rate = *c.TaxRate
	}
	var l Ledger
	var rateOut *string
	var inserted bool
	// xmax = 0 distinguishes a fresh insert from the conflict-update path.
	err := s.db.QueryRow(ctx, `
		INSERT INTO ledgers (tenant_id, parent_id, name, master_id, tax_registration, tax_rate, opening_balance)
		VALUES ($1, $2, $3, NULLIF($4, ''), NULLIF($5, ''), $6, $7)
		ON CONFLICT (tenant_id, parent_id, lower(name))
		DO UPDATE SET name = ledgers.name
		RETURNING `+ledgerCols+`, (xmax = 0) AS inserted`,
		tenantID, parentID, name, c.MasterID, c.TaxRegistration, rate, c.OpeningBalance).
		Scan(&l.ID, &l.TenantID, &l.ParentID, &l.Name,
			&l.MasterID, &l.TaxRegistration, &rateOut, &l.OpeningBalance, &l.CreatedAt, &inserted)
	if err != nil {
		return nil, false, fmt.Errorf("create ledger %q: %w", name, err)
	}
	if rateOut != nil {
		d, err := decimal.NewFromString(*rateOut)
		if err != nil {
			return nil, false, fmt.Errorf("ledger %s tax_rate: %w", l.ID, err)
		}
		l.TaxRate = &d
	}
	return &l, inserted, nil
}

// ListGrouped returns every parent ledger with its children, for the
// ledger directory view.
func (s *LedgerStore) ListGrouped(ctx context.Context, tenantID string) ([]ParentGroup, error) {
	parents, err := s.ListParents(ctx, tenantID)
	if err != nil {
		return nil, err
	}
	rows, err := s.db.Query(ctx, `
		SELECT `+ledgerCols+` FROM ledgers
		WHERE tenant_id = $1 ORDER BY lower(name)`, tenantID)
	if err != nil {
		return nil, fmt.Errorf("list ledgers: %w", err)
	}
	defer rows.Close()

	byParent := make(map[string][]Ledger)
	for rows.Next() {
		var l Ledger
		var rate *string
		if err := rows.Scan(&l.ID, &l.TenantID, &l.ParentID, &l.Name,
			&l.MasterID, &l.TaxRegistration, &rate, &l.OpeningBalance, &l.CreatedAt); err != nil {
			return nil, err
		}
		if rate != nil {
			d, err := decimal.NewFromString(*rate)
			if err != nil {
				return nil, fmt.Errorf("ledger %s tax_rate: %w", l.ID, err)
			}
			l.TaxRate = &d
		}
		byParent[l.ParentID] = append(byParent[l.ParentID], l)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	out := make([]ParentGroup, 0, len(parents))
	for _, p := range parents {
		out = append(out, ParentGroup{Parent: p, Ledgers: byParent[p.ID]})
	}
	return out, nil
}

// BulkImport loads ledgers from an external chart, creating parents and
// ledgers that are missing and leaving existing ones untouched. Opening
// balances may carry thousands separators.
func (s *LedgerStore) BulkImport(ctx context.Context, tenantID string, entries []LedgerImportEntry) (*ImportResult, error) {
	res := &ImportResult{}
	parents := make(map[string]string) // lower(parent name) -> id
	for i, e := range entries {
		if strings.TrimSpace(e.Name) == "" {
			return nil, NewValidationError("entries", "entry %d has no ledger name", i)
		}
		if strings.TrimSpace(e.ParentName) == "" {
			return nil, NewValidationError("entries", "entry %d has no parent name", i)
		}
		key := strings.ToLower(strings.TrimSpace(e.ParentName))
		parentID, ok := parents[key]
		if !ok {
			p, err := s.EnsureParent(ctx, tenantID, e.ParentName)
			if err != nil {
				return nil, err
			}
			parentID = p.ID
			parents[key] = parentID
		}
		opening, err := CleanAmount(e.OpeningBalance)
		if err != nil {
			return nil, NewValidationError("entries", "entry %d opening balance %q is not a number", i, e.OpeningBalance)
		}
		_, inserted, err := s.CreateIfAbsent(ctx, tenantID, parentID, LedgerCandidate{
			Name:            e.Name,
			MasterID:        e.MasterID,
			TaxRegistration: e.TaxRegistration,
			OpeningBalance:  opening,
		})
		if err != nil {
			return nil, err
		}
		if inserted {
			res.Created++
		} else {
			res.Existed++
		}
	}
	return res, nil
}
