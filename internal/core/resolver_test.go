package core_test

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"testing"

	"github.com/shopspring/decimal"

	"billflow/internal/core"
)

// fakeDirectory is an in-memory ledger hierarchy implementing the store
// methods the resolver uses.
type fakeDirectory struct {
	nextID  int
	parents map[string]*core.ParentLedger // by id
	ledgers map[string]*core.Ledger       // by id
}

func newFakeDirectory() *fakeDirectory {
	return &fakeDirectory{
		parents: map[string]*core.ParentLedger{},
		ledgers: map[string]*core.Ledger{},
	}
}

func (f *fakeDirectory) id() string {
	f.nextID++
	return fmt.Sprintf("id-%d", f.nextID)
}

func (f *fakeDirectory) addParent(name string) *core.ParentLedger {
	p := &core.ParentLedger{ID: f.id(), TenantID: "t1", Name: name}
	f.parents[p.ID] = p
	return p
}

func (f *fakeDirectory) addLedger(parentID, name string, rate *decimal.Decimal) *core.Ledger {
	l := &core.Ledger{ID: f.id(), TenantID: "t1", ParentID: parentID, Name: name, TaxRate: rate}
	f.ledgers[l.ID] = l
	return l
}

func (f *fakeDirectory) EnsureParent(_ context.Context, _, name string) (*core.ParentLedger, error) {
	for _, p := range f.parents {
		if strings.EqualFold(p.Name, name) {
			return p, nil
		}
	}
	return f.addParent(name), nil
}

func (f *fakeDirectory) FindUnderParents(_ context.Context, _ string, parentIDs []string, name string) ([]core.Ledger, error) {
	allowed := map[string]bool{}
	for _, id := range parentIDs {
		allowed[id] = true
	}
	var exact, loose []core.Ledger
	for _, l := range f.ledgers {
		if !allowed[l.ParentID] {
			continue
		}
		switch {
		case strings.EqualFold(l.Name, name):
			exact = append(exact, *l)
		case strings.Contains(strings.ToLower(l.Name), strings.ToLower(name)):
			loose = append(loose, *l)
		}
	}
	if len(exact) > 0 {
		return exact, nil
	}
	return loose, nil
}

func (f *fakeDirectory) CreateIfAbsent(_ context.Context, _, parentID string, c core.LedgerCandidate) (*core.Ledger, bool, error) {
	for _, l := range f.ledgers {
		if l.ParentID == parentID && strings.EqualFold(l.Name, c.Name) {
			return l, false, nil
		}
	}
	return f.addLedger(parentID, c.Name, c.TaxRate), true, nil
}

func (f *fakeDirectory) ByID(_ context.Context, _, id string) (*core.Ledger, error) {
	l, ok := f.ledgers[id]
	if !ok {
		return nil, core.ErrNotFound
	}
	return l, nil
}

func TestResolver_CreatesVendorUnderDefaultParent(t *testing.T) {
	dir := newFakeDirectory()
	res := core.NewResolver("t1", dir, nil)

	l, err := res.Resolve(context.Background(), core.RoleVendor, core.LedgerCandidate{Name: "New Vendor Ltd"})
	if err != nil {
		t.Fatalf("resolve: %v", err)
	}
	parent := dir.parents[l.ParentID]
	if parent == nil || parent.Name != "Sundry Creditors" {
		t.Errorf("vendor should land under Sundry Creditors, got %+v", parent)
	}

	again, err := res.Resolve(context.Background(), core.RoleVendor, core.LedgerCandidate{Name: "new vendor ltd"})
	if err != nil {
		t.Fatalf("second resolve: %v", err)
	}
	if again.ID != l.ID {
		t.Errorf("same name should resolve to the same ledger, got %s and %s", l.ID, again.ID)
	}
}

func TestResolver_MatchesExistingTaxLedgerByRate(t *testing.T) {
	dir := newFakeDirectory()
	duties := dir.addParent("Duties & Taxes")
	existing := dir.addLedger(duties.ID, "IGST @ 18%", nil)
	dir.addLedger(duties.ID, "IGST @ 28%", nil)
	cfg := &core.TenantConfig{TenantID: "t1", Parents: map[core.LedgerRole][]string{
		core.RoleIGST: {duties.ID},
	}}
	res := core.NewResolver("t1", dir, cfg)

	l, err := res.Resolve(context.Background(), core.RoleIGST, core.LedgerCandidate{Name: "IGST @ 18%"})
	if err != nil {
		t.Fatalf("resolve: %v", err)
	}
	if l.ID != existing.ID {
		t.Errorf("expected the 18%% ledger %s, got %s (%s)", existing.ID, l.ID, l.Name)
	}
	if len(dir.ledgers) != 2 {
		t.Errorf("no ledger should have been created, have %d", len(dir.ledgers))
	}
}

func TestResolver_CreatesMissingTaxRate(t *testing.T) {
	dir := newFakeDirectory()
	duties := dir.addParent("Duties & Taxes")
	dir.addLedger(duties.ID, "IGST @ 28%", nil)
	cfg := &core.TenantConfig{TenantID: "t1", Parents: map[core.LedgerRole][]string{
		core.RoleIGST: {duties.ID},
	}}
	res := core.NewResolver("t1", dir, cfg)

	l, err := res.Resolve(context.Background(), core.RoleIGST, core.LedgerCandidate{Name: "IGST @ 18%"})
	if err != nil {
		t.Fatalf("resolve: %v", err)
	}
	if l.Name != "IGST @ 18%" || l.ParentID != duties.ID {
		t.Errorf("expected a fresh 18%% ledger under Duties & Taxes, got %+v", l)
	}
}

func TestResolver_AmbiguityAcrossParents(t *testing.T) {
	dir := newFakeDirectory()
	p1 := dir.addParent("Sundry Creditors")
	p2 := dir.addParent("Trade Payables")
	dir.addLedger(p1.ID, "Acme Traders", nil)
	dir.addLedger(p2.ID, "Acme Traders", nil)
	cfg := &core.TenantConfig{TenantID: "t1", Parents: map[core.LedgerRole][]string{
		core.RoleVendor: {p1.ID, p2.ID},
	}}
	res := core.NewResolver("t1", dir, cfg)

	_, err := res.Resolve(context.Background(), core.RoleVendor, core.LedgerCandidate{Name: "Acme Traders"})
	var amb *core.ResolutionAmbiguityError
	if !errors.As(err, &amb) {
		t.Fatalf("expected ResolutionAmbiguityError, got %v", err)
	}
	if len(amb.Matches) != 2 {
		t.Errorf("expected 2 matches in the error, got %d", len(amb.Matches))
	}
}

func TestResolver_SubstringFallback(t *testing.T) {
	dir := newFakeDirectory()
	p := dir.addParent("Sundry Creditors")
	full := dir.addLedger(p.ID, "Acme Traders Pvt Ltd", nil)
	cfg := &core.TenantConfig{TenantID: "t1", Parents: map[core.LedgerRole][]string{
		core.RoleVendor: {p.ID},
	}}
	res := core.NewResolver("t1", dir, cfg)

	l, err := res.Resolve(context.Background(), core.RoleVendor, core.LedgerCandidate{Name: "Acme Traders"})
	if err != nil {
		t.Fatalf("resolve: %v", err)
	}
	if l.ID != full.ID {
		t.Errorf("substring should find the existing ledger, got %s", l.Name)
	}
}

func TestResolver_CreatesUnderFirstConfiguredParent(t *testing.T) {
	dir := newFakeDirectory()
	p1 := dir.addParent("Preferred Creditors")
	p2 := dir.addParent("Sundry Creditors")
	cfg := &core.TenantConfig{TenantID: "t1", Parents: map[core.LedgerRole][]string{
		core.RoleVendor: {p1.ID, p2.ID},
	}}
	res := core.NewResolver("t1", dir, cfg)

	l, err := res.Resolve(context.Background(), core.RoleVendor, core.LedgerCandidate{Name: "Fresh Vendor"})
	if err != nil {
		t.Fatalf("resolve: %v", err)
	}
	if l.ParentID != p1.ID {
		t.Errorf("new ledger should go under the first configured parent, got %s", dir.parents[l.ParentID].Name)
	}
}

func TestParseEmbeddedRate(t *testing.T) {
	tests := []struct {
		name string
		want string // empty means nil
	}{
		{"IGST @ 18%", "18"},
		{"CGST @ 9%", "9"},
		{"GST @ 2.5 %", "2.5"},
		{"igst@18%", "18"},
		{"Input Tax", ""},
		{"Discount 10", ""},
	}
	for _, tt := range tests {
		got := core.ParseEmbeddedRate(tt.name)
		if tt.want == "" {
			if got != nil {
				t.Errorf("ParseEmbeddedRate(%q) = %s, want nil", tt.name, got)
			}
			continue
		}
		want, _ := decimal.NewFromString(tt.want)
		if got == nil || !got.Equal(want) {
			t.Errorf("ParseEmbeddedRate(%q) = %v, want %s", tt.name, got, tt.want)
		}
	}
}
