package core_test

import (
	"context"
	"errors"
	"fmt"
	"testing"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"

	"billflow/internal/core"
	"billflow/internal/filestore"
	"billflow/internal/split"
)

func mustDecimal(s string) decimal.Decimal {
	d, err := decimal.NewFromString(s)
	if err != nil {
		panic(err)
	}
	return d
}

type fakeExtractor struct {
	invoice core.ExtractedInvoice
	err     error
	calls   int
}

func (f *fakeExtractor) ExtractInvoice(_ context.Context, _ core.FileUpload, _ int) (*core.ExtractedInvoice, error) {
	f.calls++
	if f.err != nil {
		return nil, f.err
	}
	inv := f.invoice
	return &inv, nil
}

type fakeSyncer struct {
	vouchers []*core.Voucher
	err      error
}

func (f *fakeSyncer) PushVoucher(_ context.Context, v *core.Voucher) error {
	if f.err != nil {
		return f.err
	}
	f.vouchers = append(f.vouchers, v)
	return nil
}

type fixedPages int

func (n fixedPages) PageCount([]byte) (int, error) { return int(n), nil }

func testExtraction() core.ExtractedInvoice {
	return core.ExtractedInvoice{
		InvoiceNumber: "INV-42",
		DateIssued:    "02-01-2025",
		VendorName:    "Acme Traders",
		Items: []core.ExtractedLineItem{
			{ItemName: "Steel rods", Price: 1000, Quantity: 10, Amount: 10000, GSTRate: "18%"},
		},
		IGST:  1800,
		Total: 11800,
	}
}

func newTestBillService(t *testing.T, pool *pgxpool.Pool, ex core.Extractor, sy core.Syncer) *core.BillService {
	t.Helper()
	files, err := filestore.New(t.TempDir())
	if err != nil {
		t.Fatalf("filestore: %v", err)
	}
	return core.NewBillService(pool, files, split.NewWithCounter(0, fixedPages(2)), ex, sy, zerolog.Nop())
}

func testUpload() []core.FileUpload {
	return []core.FileUpload{
		{Filename: "bills.pdf", MimeType: "application/pdf", Data: []byte("%PDF-1.4 fake")},
	}
}

func verifyFromExtraction() core.VerifyPayload {
	return core.VerifyPayload{
		VendorName: "Acme Traders",
		BillNo:     "INV-42",
		BillDate:   "02-01-2025",
		Total:      "11800",
		IGST:       core.TaxLine{Amount: "1800", LedgerName: "IGST @ 18%"},
		Items: []core.ProductPayload{
			{ItemName: "Steel rods", Price: "1000", Quantity: "10", Amount: "10000", LedgerName: "Purchase Accounts"},
		},
	}
}

func TestBillLifecycle(t *testing.T) {
	pool := setupTestDB(t)
	defer pool.Close()
	ctx := context.Background()
	tenant := uuid.NewString()

	extractor := &fakeExtractor{invoice: testExtraction()}
	syncer := &fakeSyncer{}
	svc := newTestBillService(t, pool, extractor, syncer)

	// Upload in multiple mode: one draft per page.
	bills, err := svc.Upload(ctx, tenant, core.KindVendor, testUpload(), core.SplitMultiple)
	if err != nil {
		t.Fatalf("upload: %v", err)
	}
	if len(bills) != 2 {
		t.Fatalf("expected 2 drafts, got %d", len(bills))
	}
	if bills[0].BillName != "BM-TB-1" || bills[1].BillName != "BM-TB-2" {
		t.Errorf("bill names: %s, %s", bills[0].BillName, bills[1].BillName)
	}
	if bills[0].Status != core.StatusDraft || bills[1].Page != 2 {
		t.Errorf("draft state wrong: %+v", bills)
	}
	bill := bills[0]

	// Analyse.
	analyzed, err := svc.Analyze(ctx, tenant, bill.ID)
	if err != nil {
		t.Fatalf("analyze: %v", err)
	}
	if analyzed.BillNo != "INV-42" || !analyzed.Total.Equal(mustDecimal("11800")) {
		t.Errorf("extraction not recorded: %+v", analyzed)
	}
	if analyzed.GSTType != core.GSTTypeIGST {
		t.Errorf("gst type = %s, want IGST", analyzed.GSTType)
	}
	if len(analyzed.Products) != 1 || analyzed.Products[0].ItemName != "Steel rods" {
		t.Errorf("products not recorded: %+v", analyzed.Products)
	}

	// Second analyse attempt conflicts; the bill is no longer Draft.
	if _, err := svc.Analyze(ctx, tenant, bill.ID); !isStateConflict(err) {
		t.Errorf("expected StateConflictError, got %v", err)
	}
	if extractor.calls != 1 {
		t.Errorf("extractor called %d times, want 1", extractor.calls)
	}

	// Sync before verification conflicts.
	if _, err := svc.Sync(ctx, tenant, bill.ID); !isStateConflict(err) {
		t.Errorf("sync from Analysed should conflict, got %v", err)
	}

	// Verify: resolves the vendor and tax ledgers, creating them.
	payload := verifyFromExtraction()
	verified, err := svc.Verify(ctx, tenant, bill.ID, &payload)
	if err != nil {
		t.Fatalf("verify: %v", err)
	}
	if verified.VendorLedgerID == nil || verified.IGSTLedgerID == nil {
		t.Fatalf("verification should resolve ledgers: %+v", verified)
	}
	store := core.NewLedgerStore(pool)
	vendor, err := store.ByID(ctx, tenant, *verified.VendorLedgerID)
	if err != nil {
		t.Fatalf("load vendor ledger: %v", err)
	}
	parent, err := store.ParentByID(ctx, tenant, vendor.ParentID)
	if err != nil {
		t.Fatalf("load vendor parent: %v", err)
	}
	if parent.Name != "Sundry Creditors" {
		t.Errorf("vendor created under %q, want Sundry Creditors", parent.Name)
	}

	// Sync pushes a balanced voucher and marks the bill Synced.
	voucher, err := svc.Sync(ctx, tenant, bill.ID)
	if err != nil {
		t.Fatalf("sync: %v", err)
	}
	if !voucher.Balance().IsZero() {
		t.Errorf("voucher should balance, got %s", voucher.Balance())
	}
	if len(syncer.vouchers) != 1 {
		t.Errorf("syncer received %d vouchers", len(syncer.vouchers))
	}
	b, _, err := svc.Get(ctx, tenant, bill.ID)
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	if b.Status != core.StatusSynced {
		t.Errorf("status = %s, want Synced", b.Status)
	}

	// Double sync conflicts and pushes nothing.
	if _, err := svc.Sync(ctx, tenant, bill.ID); !isStateConflict(err) {
		t.Errorf("double sync should conflict, got %v", err)
	}
	if len(syncer.vouchers) != 1 {
		t.Errorf("second sync must not push, pushed %d", len(syncer.vouchers))
	}
}

func TestAnalyze_ReusesCachedExtraction(t *testing.T) {
	pool := setupTestDB(t)
	defer pool.Close()
	ctx := context.Background()
	tenant := uuid.NewString()

	extractor := &fakeExtractor{invoice: testExtraction()}
	svc := newTestBillService(t, pool, extractor, &fakeSyncer{})

	bills, err := svc.Upload(ctx, tenant, core.KindVendor, testUpload(), core.SplitSingle)
	if err != nil {
		t.Fatalf("upload: %v", err)
	}
	if _, err := svc.Analyze(ctx, tenant, bills[0].ID); err != nil {
		t.Fatalf("analyze: %v", err)
	}

	// Force the bill back to Draft as an operator retry would, keeping the
	// cached extraction in place.
	if _, err := pool.Exec(ctx, `UPDATE bills SET status = 'Draft' WHERE id = $1`, bills[0].ID); err != nil {
		t.Fatalf("reset status: %v", err)
	}
	if _, err := svc.Analyze(ctx, tenant, bills[0].ID); err != nil {
		t.Fatalf("re-analyze: %v", err)
	}
	if extractor.calls != 1 {
		t.Errorf("cached extraction should be reused, extractor called %d times", extractor.calls)
	}
}

func TestVerify_TaxSplitRejected(t *testing.T) {
	pool := setupTestDB(t)
	defer pool.Close()
	ctx := context.Background()
	tenant := uuid.NewString()

	svc := newTestBillService(t, pool, &fakeExtractor{invoice: testExtraction()}, &fakeSyncer{})
	bills, err := svc.Upload(ctx, tenant, core.KindVendor, testUpload(), core.SplitSingle)
	if err != nil {
		t.Fatalf("upload: %v", err)
	}
	if _, err := svc.Analyze(ctx, tenant, bills[0].ID); err != nil {
		t.Fatalf("analyze: %v", err)
	}

	payload := verifyFromExtraction()
	payload.CGST = core.TaxLine{Amount: "900", LedgerName: "CGST @ 9%"}
	payload.SGST = core.TaxLine{Amount: "900", LedgerName: "SGST @ 9%"}
	if _, err := svc.Verify(ctx, tenant, bills[0].ID, &payload); !errors.Is(err, core.ErrInvalidTaxSplit) {
		t.Fatalf("expected ErrInvalidTaxSplit, got %v", err)
	}

	b, _, err := svc.Get(ctx, tenant, bills[0].ID)
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	if b.Status != core.StatusAnalysed {
		t.Errorf("rejected verification must leave the bill Analysed, got %s", b.Status)
	}
}

func TestSync_FailureLeavesBillVerified(t *testing.T) {
	pool := setupTestDB(t)
	defer pool.Close()
	ctx := context.Background()
	tenant := uuid.NewString()

	syncer := &fakeSyncer{err: &core.SyncError{StatusCode: 503, Err: errors.New("unavailable"), Transient: true}}
	svc := newTestBillService(t, pool, &fakeExtractor{invoice: testExtraction()}, syncer)

	bills, err := svc.Upload(ctx, tenant, core.KindVendor, testUpload(), core.SplitSingle)
	if err != nil {
		t.Fatalf("upload: %v", err)
	}
	if _, err := svc.Analyze(ctx, tenant, bills[0].ID); err != nil {
		t.Fatalf("analyze: %v", err)
	}
	payload := verifyFromExtraction()
	if _, err := svc.Verify(ctx, tenant, bills[0].ID, &payload); err != nil {
		t.Fatalf("verify: %v", err)
	}

	_, err = svc.Sync(ctx, tenant, bills[0].ID)
	if !core.IsTransient(err) {
		t.Errorf("expected transient sync error, got %v", err)
	}
	b, _, err := svc.Get(ctx, tenant, bills[0].ID)
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	if b.Status != core.StatusVerified {
		t.Errorf("failed sync must leave bill Verified, got %s", b.Status)
	}

	// The upstream recovers; the retry succeeds.
	syncer.err = nil
	if _, err := svc.Sync(ctx, tenant, bills[0].ID); err != nil {
		t.Errorf("retry after recovery: %v", err)
	}
}

func TestListByStatus(t *testing.T) {
	pool := setupTestDB(t)
	defer pool.Close()
	ctx := context.Background()
	tenant := uuid.NewString()

	svc := newTestBillService(t, pool, &fakeExtractor{invoice: testExtraction()}, &fakeSyncer{})
	bills, err := svc.Upload(ctx, tenant, core.KindExpense, testUpload(), core.SplitMultiple)
	if err != nil {
		t.Fatalf("upload: %v", err)
	}
	if bills[0].BillName != "BM-TE-1" {
		t.Errorf("expense bills use the BM-TE prefix, got %s", bills[0].BillName)
	}
	if _, err := svc.Analyze(ctx, tenant, bills[0].ID); err != nil {
		t.Fatalf("analyze: %v", err)
	}

	drafts, err := svc.ListByStatus(ctx, tenant, "draft")
	if err != nil {
		t.Fatalf("list drafts: %v", err)
	}
	if len(drafts) != 1 {
		t.Errorf("expected 1 draft, got %d", len(drafts))
	}
	analysed, err := svc.ListByStatus(ctx, tenant, "analysed")
	if err != nil {
		t.Fatalf("list analysed: %v", err)
	}
	if len(analysed) != 1 {
		t.Errorf("expected 1 analysed, got %d", len(analysed))
	}
	all, err := svc.ListByStatus(ctx, tenant, "")
	if err != nil {
		t.Fatalf("list all: %v", err)
	}
	if len(all) != 2 {
		t.Errorf("expected 2 bills, got %d", len(all))
	}
	if _, err := svc.ListByStatus(ctx, tenant, "bogus"); err == nil {
		t.Errorf("unknown filter should be rejected")
	}
}

func TestUpload_MultipleFiles(t *testing.T) {
	pool := setupTestDB(t)
	defer pool.Close()
	ctx := context.Background()
	tenant := uuid.NewString()

	svc := newTestBillService(t, pool, &fakeExtractor{invoice: testExtraction()}, &fakeSyncer{})

	// Three files in one call, each splitting to two pages: six drafts
	// with one continuous name sequence.
	ups := []core.FileUpload{
		{Filename: "jan.pdf", MimeType: "application/pdf", Data: []byte("%PDF-1.4 jan")},
		{Filename: "feb.pdf", MimeType: "application/pdf", Data: []byte("%PDF-1.4 feb")},
		{Filename: "mar.pdf", MimeType: "application/pdf", Data: []byte("%PDF-1.4 mar")},
	}
	bills, err := svc.Upload(ctx, tenant, core.KindVendor, ups, core.SplitMultiple)
	if err != nil {
		t.Fatalf("upload: %v", err)
	}
	if len(bills) != 6 {
		t.Fatalf("expected 6 drafts, got %d", len(bills))
	}
	for i, b := range bills {
		want := fmt.Sprintf("BM-TB-%d", i+1)
		if b.BillName != want {
			t.Errorf("bill %d named %s, want %s", i, b.BillName, want)
		}
	}
	if bills[2].FileRef == bills[0].FileRef {
		t.Errorf("bills from different files share file ref %s", bills[0].FileRef)
	}

	// A bad file anywhere in the batch creates nothing.
	ups = append(ups, core.FileUpload{Filename: "notes.docx", Data: []byte("not a bill")})
	if _, err := svc.Upload(ctx, tenant, core.KindVendor, ups, core.SplitMultiple); !errors.Is(err, core.ErrUnsupportedFormat) {
		t.Fatalf("expected ErrUnsupportedFormat, got %v", err)
	}
	all, err := svc.ListByStatus(ctx, tenant, "")
	if err != nil {
		t.Fatalf("list: %v", err)
	}
	if len(all) != 6 {
		t.Errorf("failed batch must create no bills, got %d total", len(all))
	}

	if _, err := svc.Upload(ctx, tenant, core.KindVendor, nil, core.SplitSingle); err == nil {
		t.Errorf("empty batch should be rejected")
	}
}

func TestAnalyzedProductsScopedByTenant(t *testing.T) {
	pool := setupTestDB(t)
	defer pool.Close()
	ctx := context.Background()
	tenantA := uuid.NewString()
	tenantB := uuid.NewString()

	svc := newTestBillService(t, pool, &fakeExtractor{invoice: testExtraction()}, &fakeSyncer{})
	for _, tenant := range []string{tenantA, tenantB} {
		bills, err := svc.Upload(ctx, tenant, core.KindVendor, testUpload(), core.SplitSingle)
		if err != nil {
			t.Fatalf("upload: %v", err)
		}
		if _, err := svc.Analyze(ctx, tenant, bills[0].ID); err != nil {
			t.Fatalf("analyze: %v", err)
		}
	}

	var n int
	if err := pool.QueryRow(ctx,
		`SELECT count(*) FROM analyzed_products WHERE tenant_id = $1`, tenantA).Scan(&n); err != nil {
		t.Fatalf("count products: %v", err)
	}
	if n != len(testExtraction().Items) {
		t.Errorf("tenant A owns %d product rows, want %d", n, len(testExtraction().Items))
	}

	// A bill is invisible outside its tenant, products included.
	bills, err := svc.ListByStatus(ctx, tenantA, "analysed")
	if err != nil {
		t.Fatalf("list: %v", err)
	}
	if _, _, err := svc.Get(ctx, tenantB, bills[0].ID); !errors.Is(err, core.ErrNotFound) {
		t.Errorf("cross-tenant get: expected ErrNotFound, got %v", err)
	}
}

func isStateConflict(err error) bool {
	var sc *core.StateConflictError
	return errors.As(err, &sc)
}
