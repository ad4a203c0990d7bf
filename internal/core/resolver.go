package core

import (
	"context"
	"fmt"
	"regexp"
	"strings"

	"github.com/shopspring/decimal"
)

// ledgerDirectory is the slice of LedgerStore the resolver needs. Kept
// narrow so tests can run the resolution rules against an in-memory fake.
type ledgerDirectory interface {
	EnsureParent(ctx context.Context, tenantID, name string) (*ParentLedger, error)
	FindUnderParents(ctx context.Context, tenantID string, parentIDs []string, name string) ([]Ledger, error)
	CreateIfAbsent(ctx context.Context, tenantID, parentID string, c LedgerCandidate) (*Ledger, bool, error)
	ByID(ctx context.Context, tenantID, id string) (*Ledger, error)
}

var ratePattern = regexp.MustCompile(`@\s*([0-9]+(?:\.[0-9]+)?)\s*%`)

// ParseEmbeddedRate extracts the percentage from tax ledger names written
// in the "IGST @ 18%" convention. Returns nil when the name carries none.
func ParseEmbeddedRate(name string) *decimal.Decimal {
	m := ratePattern.FindStringSubmatch(name)
	if m == nil {
		return nil
	}
	d, err := decimal.NewFromString(m[1])
	if err != nil {
		return nil
	}
	return &d
}

// Resolver maps free-form ledger names onto the tenant's hierarchy,
// creating missing ledgers under the highest-priority configured parent.
// Build one per unit of work: it carries the tenant's configuration as
// loaded at the start of the transaction it runs in.
type Resolver struct {
	tenantID string
	dir      ledgerDirectory
	cfg      *TenantConfig
}

func NewResolver(tenantID string, dir ledgerDirectory, cfg *TenantConfig) *Resolver {
	return &Resolver{tenantID: tenantID, dir: dir, cfg: cfg}
}

// ResolveID fetches a ledger the caller already identified, enforcing
// tenant scope.
func (r *Resolver) ResolveID(ctx context.Context, id string) (*Ledger, error) {
	return r.dir.ByID(ctx, r.tenantID, id)
}

// Resolve finds or creates the ledger for a free-form name under the
// parents configured for role.
//
// Matching is case-insensitive: exact name matches win, substring matches
// are the fallback. For tax roles a rate embedded in the name ("IGST @
// 18%") narrows the candidates to ledgers carrying the same rate. A name
// matching distinct ledgers under more than one configured parent is an
// ambiguity and is returned as such, never guessed. With no match at all
// the ledger is created under the first configured parent; when the role
// has no configured parents its default parent is created on the fly and
// used instead.
func (r *Resolver) Resolve(ctx context.Context, role LedgerRole, cand LedgerCandidate) (*Ledger, error) {
	cand.Name = strings.TrimSpace(cand.Name)
	if cand.Name == "" {
		return nil, NewValidationError(string(role), "ledger name is required")
	}
	parentIDs := r.cfg.ParentsFor(role)
	if len(parentIDs) == 0 {
		p, err := r.dir.EnsureParent(ctx, r.tenantID, role.DefaultParentName())
		if err != nil {
			return nil, fmt.Errorf("resolve %s %q: %w", role, cand.Name, err)
		}
		parentIDs = []string{p.ID}
	}
	if role.IsTaxRole() && cand.TaxRate == nil {
		cand.TaxRate = ParseEmbeddedRate(cand.Name)
	}

	matches, err := r.dir.FindUnderParents(ctx, r.tenantID, parentIDs, cand.Name)
	if err != nil {
		return nil, fmt.Errorf("resolve %s %q: %w", role, cand.Name, err)
	}
	if role.IsTaxRole() && cand.TaxRate != nil {
		matches = filterByRate(matches, *cand.TaxRate)
	}
	if len(matches) > 0 {
		if parents := distinctParents(matches); len(parents) > 1 {
			return nil, &ResolutionAmbiguityError{Role: role, Name: cand.Name, Matches: matches}
		}
		// Matches share one parent; FindUnderParents put exact hits first.
		return &matches[0], nil
	}

	l, _, err := r.dir.CreateIfAbsent(ctx, r.tenantID, parentIDs[0], cand)
	if err != nil {
		return nil, fmt.Errorf("resolve %s %q: %w", role, cand.Name, err)
	}
	return l, nil
}

func filterByRate(matches []Ledger, rate decimal.Decimal) []Ledger {
	out := matches[:0]
	for _, l := range matches {
		embedded := ParseEmbeddedRate(l.Name)
		switch {
		case l.TaxRate != nil && l.TaxRate.Equal(rate):
			out = append(out, l)
		case l.TaxRate == nil && embedded != nil && embedded.Equal(rate):
			out = append(out, l)
		case l.TaxRate == nil && embedded == nil:
			// A ledger with no rate at all stays eligible.
			out = append(out, l)
		}
	}
	return out
}

func distinctParents(matches []Ledger) map[string]bool {
	parents := map[string]bool{}
	for _, l := range matches {
		parents[l.ParentID] = true
	}
	return parents
}
