package core

import (
	"context"
	"encoding/json"
	"fmt"
	"path"
	"strings"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"
)

// BillService drives bills through Draft -> Analysed -> Verified -> Synced.
// Every transition checks the current status under a row lock, so
// concurrent calls against the same bill serialize and the loser gets a
// *StateConflictError.
type BillService struct {
	pool      *pgxpool.Pool
	files     FileStore
	splitter  DocumentSplitter
	extractor Extractor
	syncer    Syncer
	log       zerolog.Logger
}

func NewBillService(pool *pgxpool.Pool, files FileStore, splitter DocumentSplitter, extractor Extractor, syncer Syncer, log zerolog.Logger) *BillService {
	return &BillService{
		pool:      pool,
		files:     files,
		splitter:  splitter,
		extractor: extractor,
		syncer:    syncer,
		log:       log.With().Str("component", "bills").Logger(),
	}
}

func billNamePrefix(kind BillKind) string {
	if kind == KindExpense {
		return "BM-TE"
	}
	return "BM-TB"
}

// nextBillName allocates the next gapless bill number for the tenant and
// kind. Must run inside the transaction that inserts the bill so a
// rollback returns the number.
func nextBillName(ctx context.Context, q Querier, tenantID string, kind BillKind) (string, error) {
	var last int64
	err := q.QueryRow(ctx, `
		INSERT INTO bill_sequences (tenant_id, kind, last_value)
		VALUES ($1, $2, 1)
		ON CONFLICT (tenant_id, kind)
		DO UPDATE SET last_value = bill_sequences.last_value + 1
		RETURNING last_value`, tenantID, string(kind)).Scan(&last)
	if err != nil {
		return "", fmt.Errorf("advance bill sequence: %w", err)
	}
	return fmt.Sprintf("%s-%d", billNamePrefix(kind), last), nil
}

const billCols = `id::text, tenant_id::text, kind, bill_name, file_ref, page,
	split_mode, status, created_at, updated_at`

func scanBill(row interface{ Scan(...any) error }) (*Bill, error) {
	var b Bill
	err := row.Scan(&b.ID, &b.TenantID, &b.Kind, &b.BillName, &b.FileRef,
		&b.Page, &b.SplitMode, &b.Status, &b.CreatedAt, &b.UpdatedAt)
	if err != nil {
		return nil, err
	}
	return &b, nil
}

func loadBill(ctx context.Context, q Querier, tenantID, id string, forUpdate bool) (*Bill, error) {
	query := `SELECT ` + billCols + ` FROM bills WHERE tenant_id = $1 AND id = $2`
	if forUpdate {
		query += ` FOR UPDATE`
	}
	b, err := scanBill(q.QueryRow(ctx, query, tenantID, id))
	if err != nil {
		if isNoRows(err) {
			return nil, fmt.Errorf("bill %s: %w", id, ErrNotFound)
		}
		return nil, fmt.Errorf("load bill: %w", err)
	}
	return b, nil
}

// Upload stores every document, decides how many bills each contains,
// and creates the Draft bills in one transaction. Either all files make
// it in or none do.
func (s *BillService) Upload(ctx context.Context, tenantID string, kind BillKind, ups []FileUpload, mode SplitMode) ([]Bill, error) {
	if kind != KindVendor && kind != KindExpense {
		return nil, NewValidationError("kind", "unknown bill kind %q", kind)
	}
	if mode != SplitSingle && mode != SplitMultiple {
		return nil, NewValidationError("split_mode", "unknown split mode %q", mode)
	}
	if len(ups) == 0 {
		return nil, NewValidationError("files", "at least one file is required")
	}

	type storedFile struct {
		ref   string
		parts []SplitPart
	}
	stored := make([]storedFile, 0, len(ups))
	for _, up := range ups {
		parts, err := s.splitter.Split(ctx, up, mode)
		if err != nil {
			return nil, fmt.Errorf("split %s: %w", up.Filename, err)
		}
		ref, err := s.files.Save(ctx, up.Filename, up.Data)
		if err != nil {
			return nil, fmt.Errorf("store %s: %w", up.Filename, err)
		}
		stored = append(stored, storedFile{ref: ref, parts: parts})
	}

	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return nil, fmt.Errorf("begin transaction: %w", err)
	}
	defer tx.Rollback(ctx)

	var bills []Bill
	for _, sf := range stored {
		for _, part := range sf.parts {
			name, err := nextBillName(ctx, tx, tenantID, kind)
			if err != nil {
				return nil, err
			}
			b, err := scanBill(tx.QueryRow(ctx, `
				INSERT INTO bills (tenant_id, kind, bill_name, file_ref, page, split_mode)
				VALUES ($1, $2, $3, $4, $5, $6)
				RETURNING `+billCols,
				tenantID, string(kind), name, sf.ref, part.Page, string(mode)))
			if err != nil {
				return nil, fmt.Errorf("create bill %s: %w", name, err)
			}
			bills = append(bills, *b)
		}
	}
	if err := tx.Commit(ctx); err != nil {
		return nil, fmt.Errorf("commit transaction: %w", err)
	}
	s.log.Info().Str("tenant", tenantID).Str("kind", string(kind)).
		Int("files", len(stored)).Int("bills", len(bills)).Msg("upload accepted")
	return bills, nil
}

// Get returns the bill and, if it has been analysed, its structured data.
func (s *BillService) Get(ctx context.Context, tenantID, billID string) (*Bill, *AnalyzedBill, error) {
	b, err := loadBill(ctx, s.pool, tenantID, billID, false)
	if err != nil {
		return nil, nil, err
	}
	ab, err := loadAnalyzed(ctx, s.pool, tenantID, billID)
	if err != nil {
		if err == errNoAnalyzed {
			return b, nil, nil
		}
		return nil, nil, err
	}
	return b, ab, nil
}

// ListByStatus returns the tenant's bills filtered by workflow stage.
// The "analysed" filter includes Verified bills: both carry analysed data
// a reviewer can look at. An empty filter returns everything.
func (s *BillService) ListByStatus(ctx context.Context, tenantID, filter string) ([]Bill, error) {
	var statuses []string
	switch strings.ToLower(strings.TrimSpace(filter)) {
	case "":
		statuses = []string{string(StatusDraft), string(StatusAnalysed), string(StatusVerified), string(StatusSynced)}
	case "draft":
		statuses = []string{string(StatusDraft)}
	case "analysed":
		statuses = []string{string(StatusAnalysed), string(StatusVerified)}
	case "verified":
		statuses = []string{string(StatusVerified)}
	case "synced":
		statuses = []string{string(StatusSynced)}
	default:
		return nil, NewValidationError("status", "unknown status filter %q", filter)
	}
	rows, err := s.pool.Query(ctx, `
		SELECT `+billCols+` FROM bills
		WHERE tenant_id = $1 AND status = ANY($2)
		ORDER BY created_at DESC, bill_name DESC`, tenantID, statuses)
	if err != nil {
		return nil, fmt.Errorf("list bills: %w", err)
	}
	defer rows.Close()
	var out []Bill
	for rows.Next() {
		b, err := scanBill(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, *b)
	}
	return out, rows.Err()
}

// Analyze runs extraction on a Draft bill and records the result. On
// any failure the bill stays Draft. The raw extraction is kept on the
// bill row, so re-analysing a bill an operator has reset to Draft (the
// supported correction path after a bad verification) reuses it instead
// of calling the extraction service again.
func (s *BillService) Analyze(ctx context.Context, tenantID, billID string) (*AnalyzedBill, error) {
	bill, err := loadBill(ctx, s.pool, tenantID, billID, false)
	if err != nil {
		return nil, err
	}
	if bill.Status != StatusDraft {
		return nil, &StateConflictError{BillID: billID, Current: bill.Status, Expected: []BillStatus{StatusDraft}}
	}

	inv, raw, err := s.extraction(ctx, bill)
	if err != nil {
		return nil, err
	}

	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return nil, fmt.Errorf("begin transaction: %w", err)
	}
	defer tx.Rollback(ctx)

	locked, err := loadBill(ctx, tx, tenantID, billID, true)
	if err != nil {
		return nil, err
	}
	if locked.Status != StatusDraft {
		return nil, &StateConflictError{BillID: billID, Current: locked.Status, Expected: []BillStatus{StatusDraft}}
	}

	ab := s.analyzedFromExtraction(ctx, tx, bill, inv)
	if err := writeAnalyzed(ctx, tx, ab); err != nil {
		return nil, err
	}
	_, err = tx.Exec(ctx, `
		UPDATE bills SET status = $3, analysed_data = $4, updated_at = now()
		WHERE tenant_id = $1 AND id = $2`,
		tenantID, billID, string(StatusAnalysed), raw)
	if err != nil {
		return nil, fmt.Errorf("mark bill analysed: %w", err)
	}
	if err := tx.Commit(ctx); err != nil {
		return nil, fmt.Errorf("commit transaction: %w", err)
	}

	out, err := loadAnalyzed(ctx, s.pool, tenantID, billID)
	if err != nil {
		return nil, err
	}
	s.log.Info().Str("tenant", tenantID).Str("bill", bill.BillName).
		Str("vendor", inv.VendorName).Msg("bill analysed")
	return out, nil
}

// extraction returns the structured extraction for the bill, reusing the
// cached result from an earlier attempt when one exists.
func (s *BillService) extraction(ctx context.Context, bill *Bill) (*ExtractedInvoice, []byte, error) {
	var cached []byte
	err := s.pool.QueryRow(ctx, `
		SELECT analysed_data FROM bills WHERE tenant_id = $1 AND id = $2`,
		bill.TenantID, bill.ID).Scan(&cached)
	if err != nil {
		return nil, nil, fmt.Errorf("load cached extraction: %w", err)
	}
	if len(cached) > 0 {
		var inv ExtractedInvoice
		if err := json.Unmarshal(cached, &inv); err == nil {
			s.log.Debug().Str("bill", bill.BillName).Msg("reusing cached extraction")
			return &inv, cached, nil
		}
	}

	if s.extractor == nil {
		return nil, nil, &AnalysisError{Op: "extract", Err: ErrNotConfigured, Transient: false}
	}
	data, err := s.files.Open(ctx, bill.FileRef)
	if err != nil {
		return nil, nil, fmt.Errorf("open stored document: %w", err)
	}
	page := 0
	if bill.SplitMode == SplitMultiple {
		page = bill.Page
	}
	inv, err := s.extractor.ExtractInvoice(ctx, FileUpload{
		Filename: path.Base(bill.FileRef),
		MimeType: mimeForFilename(bill.FileRef),
		Data:     data,
	}, page)
	if err != nil {
		return nil, nil, err
	}
	raw, err := json.Marshal(inv)
	if err != nil {
		return nil, nil, fmt.Errorf("encode extraction: %w", err)
	}
	return inv, raw, nil
}

// analyzedFromExtraction maps raw extraction onto the analyzed row. The
// vendor is matched against existing ledgers as a convenience; nothing is
// created here, that happens at verification.
func (s *BillService) analyzedFromExtraction(ctx context.Context, q Querier, bill *Bill, inv *ExtractedInvoice) *AnalyzedBill {
	ab := &AnalyzedBill{
		TenantID:   bill.TenantID,
		BillID:     bill.ID,
		BillNo:     strings.TrimSpace(inv.InvoiceNumber),
		Total:      decimal.NewFromFloat(inv.Total).Round(2),
		IGST:       decimal.NewFromFloat(inv.IGST).Round(2),
		CGST:       decimal.NewFromFloat(inv.CGST).Round(2),
		SGST:       decimal.NewFromFloat(inv.SGST).Round(2),
		VendorSide: Credit,
		IGSTSide:   Debit,
		CGSTSide:   Debit,
		SGSTSide:   Debit,
		Voucher:    "Purchase",
	}
	if t, err := ParseBillDate(inv.DateIssued); err == nil {
		ab.BillDate = &t
	}
	switch {
	case ab.IGST.IsPositive() && !ab.CGST.IsPositive() && !ab.SGST.IsPositive():
		ab.GSTType = GSTTypeIGST
	case !ab.IGST.IsPositive() && (ab.CGST.IsPositive() || ab.SGST.IsPositive()):
		ab.GSTType = GSTTypeCGSTSGST
	default:
		ab.GSTType = GSTTypeUnknown
	}
	if id := s.matchVendor(ctx, q, bill.TenantID, inv.VendorName); id != "" {
		ab.VendorLedgerID = &id
	}
	for i, item := range inv.Items {
		ab.Products = append(ab.Products, AnalyzedProduct{
			ItemName:    strings.TrimSpace(item.ItemName),
			ItemDetails: strings.TrimSpace(item.ItemDetails),
			Price:       decimal.NewFromFloat(item.Price).Round(2),
			Quantity:    decimal.NewFromFloat(item.Quantity),
			Amount:      decimal.NewFromFloat(item.Amount).Round(2),
			GSTRate:     strings.TrimSpace(item.GSTRate),
			Side:        Debit,
			Position:    i,
		})
	}
	return ab
}

// matchVendor looks the extracted vendor name up under the tenant's
// configured vendor parents. Returns empty when there is no unambiguous
// match; extraction never creates ledgers.
func (s *BillService) matchVendor(ctx context.Context, q Querier, tenantID, name string) string {
	name = strings.TrimSpace(name)
	if name == "" {
		return ""
	}
	cfg, err := loadTenantConfig(ctx, q, tenantID)
	if err != nil {
		s.log.Warn().Err(err).Msg("vendor match skipped")
		return ""
	}
	parentIDs := cfg.ParentsFor(RoleVendor)
	if len(parentIDs) == 0 {
		return ""
	}
	store := NewLedgerStore(q)
	matches, err := store.FindUnderParents(ctx, tenantID, parentIDs, name)
	if err != nil {
		s.log.Warn().Err(err).Msg("vendor match skipped")
		return ""
	}
	if len(matches) == 0 || len(distinctParents(matches)) > 1 {
		return ""
	}
	return matches[0].ID
}

// Verify applies the reviewer's corrections to an Analysed bill, resolves
// every referenced ledger, and moves the bill to Verified. The whole
// operation is one transaction: corrections, ledger creation, and the
// status change land together or not at all.
func (s *BillService) Verify(ctx context.Context, tenantID, billID string, p *VerifyPayload) (*AnalyzedBill, error) {
	p.Normalize()

	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return nil, fmt.Errorf("begin transaction: %w", err)
	}
	defer tx.Rollback(ctx)

	bill, err := loadBill(ctx, tx, tenantID, billID, true)
	if err != nil {
		return nil, err
	}
	if bill.Status != StatusAnalysed {
		return nil, &StateConflictError{BillID: billID, Current: bill.Status, Expected: []BillStatus{StatusAnalysed}}
	}
	if err := p.Validate(bill.Kind); err != nil {
		return nil, err
	}

	cfg, err := loadTenantConfig(ctx, tx, tenantID)
	if err != nil {
		return nil, err
	}
	store := NewLedgerStore(tx)
	res := NewResolver(tenantID, store, cfg)

	vendor, err := s.resolveRef(ctx, res, RoleVendor, p.VendorLedgerID, p.VendorName)
	if err != nil {
		return nil, err
	}

	ab := &AnalyzedBill{
		TenantID:       tenantID,
		BillID:         billID,
		VendorLedgerID: &vendor.ID,
		BillNo:         p.BillNo,
		GSTType:        p.GSTType(),
		VendorSide:     DebitCredit(p.VendorSide),
		IGSTSide:       DebitCredit(p.IGST.Side),
		CGSTSide:       DebitCredit(p.CGST.Side),
		SGSTSide:       DebitCredit(p.SGST.Side),
		Voucher:        p.Voucher,
		Note:           p.Note,
	}
	ab.Total, _ = CleanAmount(p.Total)
	ab.IGST, _ = CleanAmount(p.IGST.Amount)
	ab.CGST, _ = CleanAmount(p.CGST.Amount)
	ab.SGST, _ = CleanAmount(p.SGST.Amount)
	if p.BillDate != "" {
		t, err := ParseBillDate(p.BillDate)
		if err != nil {
			return nil, err
		}
		ab.BillDate = &t
	}

	for _, tax := range []struct {
		role   LedgerRole
		amount decimal.Decimal
		line   TaxLine
		dest   **string
	}{
		{RoleIGST, ab.IGST, p.IGST, &ab.IGSTLedgerID},
		{RoleCGST, ab.CGST, p.CGST, &ab.CGSTLedgerID},
		{RoleSGST, ab.SGST, p.SGST, &ab.SGSTLedgerID},
	} {
		if !tax.amount.IsPositive() {
			continue
		}
		l, err := s.resolveRef(ctx, res, tax.role, tax.line.LedgerID, tax.line.LedgerName)
		if err != nil {
			return nil, err
		}
		*tax.dest = &l.ID
	}

	itemRole := RoleAccounts
	if bill.Kind == KindExpense {
		itemRole = RoleExpenseAccount
	}
	for i, item := range p.Items {
		l, err := s.resolveRef(ctx, res, itemRole, item.LedgerID, item.LedgerName)
		if err != nil {
			return nil, err
		}
		price, _ := CleanAmount(item.Price)
		qty, _ := CleanAmount(item.Quantity)
		amount, _ := CleanAmount(item.Amount)
		ab.Products = append(ab.Products, AnalyzedProduct{
			ItemName:    item.ItemName,
			ItemDetails: item.ItemDetails,
			Price:       price,
			Quantity:    qty,
			Amount:      amount,
			GSTRate:     item.GSTRate,
			LedgerID:    &l.ID,
			Side:        DebitCredit(item.Side),
			Position:    i,
		})
	}

	if err := writeAnalyzed(ctx, tx, ab); err != nil {
		return nil, err
	}
	_, err = tx.Exec(ctx, `
		UPDATE bills SET status = $3, updated_at = now()
		WHERE tenant_id = $1 AND id = $2`, tenantID, billID, string(StatusVerified))
	if err != nil {
		return nil, fmt.Errorf("mark bill verified: %w", err)
	}

	out, err := loadAnalyzed(ctx, tx, tenantID, billID)
	if err != nil {
		return nil, err
	}
	if err := tx.Commit(ctx); err != nil {
		return nil, fmt.Errorf("commit transaction: %w", err)
	}
	s.log.Info().Str("tenant", tenantID).Str("bill", bill.BillName).
		Str("vendor", vendor.Name).Msg("bill verified")
	return out, nil
}

// resolveRef resolves either a direct ledger id or a free-form name.
func (s *BillService) resolveRef(ctx context.Context, res *Resolver, role LedgerRole, id, name string) (*Ledger, error) {
	if id != "" {
		return res.ResolveID(ctx, id)
	}
	return res.Resolve(ctx, role, LedgerCandidate{Name: name})
}

// Sync pushes the verified bill's voucher to the external accounting
// system and marks the bill Synced. The push happens outside any database
// transaction; only after the upstream accepts the voucher is the status
// advanced, again under a row lock.
func (s *BillService) Sync(ctx context.Context, tenantID, billID string) (*Voucher, error) {
	if s.syncer == nil {
		return nil, &SyncError{Err: ErrNotConfigured, Transient: false}
	}
	bill, err := loadBill(ctx, s.pool, tenantID, billID, false)
	if err != nil {
		return nil, err
	}
	if bill.Status != StatusVerified {
		return nil, &StateConflictError{BillID: billID, Current: bill.Status, Expected: []BillStatus{StatusVerified}}
	}
	ab, err := loadAnalyzed(ctx, s.pool, tenantID, billID)
	if err != nil {
		if err == errNoAnalyzed {
			return nil, fmt.Errorf("bill %s has no analysed data: %w", billID, ErrNotFound)
		}
		return nil, err
	}

	voucher, err := s.buildVoucher(ctx, bill, ab)
	if err != nil {
		return nil, err
	}
	if err := s.syncer.PushVoucher(ctx, voucher); err != nil {
		return nil, err
	}

	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return nil, fmt.Errorf("begin transaction: %w", err)
	}
	defer tx.Rollback(ctx)
	locked, err := loadBill(ctx, tx, tenantID, billID, true)
	if err != nil {
		return nil, err
	}
	if locked.Status != StatusVerified {
		s.log.Warn().Str("bill", bill.BillName).Str("status", string(locked.Status)).
			Msg("voucher pushed but bill moved before status update")
		return nil, &StateConflictError{BillID: billID, Current: locked.Status, Expected: []BillStatus{StatusVerified}}
	}
	_, err = tx.Exec(ctx, `
		UPDATE bills SET status = $3, updated_at = now()
		WHERE tenant_id = $1 AND id = $2`, tenantID, billID, string(StatusSynced))
	if err != nil {
		return nil, fmt.Errorf("mark bill synced: %w", err)
	}
	if err := tx.Commit(ctx); err != nil {
		return nil, fmt.Errorf("commit transaction: %w", err)
	}
	s.log.Info().Str("tenant", tenantID).Str("bill", bill.BillName).Msg("bill synced")
	return voucher, nil
}

// buildVoucher turns the analysed bill into a balanced posting payload.
func (s *BillService) buildVoucher(ctx context.Context, bill *Bill, ab *AnalyzedBill) (*Voucher, error) {
	store := NewLedgerStore(s.pool)
	names := map[string]string{}
	name := func(id *string) (string, error) {
		if id == nil {
			return "", NewValidationError("lines", "line has no resolved ledger")
		}
		if n, ok := names[*id]; ok {
			return n, nil
		}
		l, err := store.ByID(ctx, bill.TenantID, *id)
		if err != nil {
			return "", err
		}
		names[*id] = l.Name
		return l.Name, nil
	}

	v := &Voucher{
		TenantID:    bill.TenantID,
		BillName:    bill.BillName,
		VoucherType: ab.Voucher,
		BillNo:      ab.BillNo,
		Date:        ab.BillDate,
		Narration:   ab.Note,
	}
	vendorName, err := name(ab.VendorLedgerID)
	if err != nil {
		return nil, err
	}
	v.Lines = append(v.Lines, VoucherLine{
		LedgerID: *ab.VendorLedgerID, LedgerName: vendorName,
		Side: ab.VendorSide, Amount: ab.Total,
	})
	for _, tax := range []struct {
		amount decimal.Decimal
		id     *string
		side   DebitCredit
	}{
		{ab.IGST, ab.IGSTLedgerID, ab.IGSTSide},
		{ab.CGST, ab.CGSTLedgerID, ab.CGSTSide},
		{ab.SGST, ab.SGSTLedgerID, ab.SGSTSide},
	} {
		if !tax.amount.IsPositive() {
			continue
		}
		n, err := name(tax.id)
		if err != nil {
			return nil, err
		}
		v.Lines = append(v.Lines, VoucherLine{
			LedgerID: *tax.id, LedgerName: n, Side: tax.side, Amount: tax.amount,
		})
	}
	for _, item := range ab.Products {
		if !item.Amount.IsPositive() {
			continue
		}
		n, err := name(item.LedgerID)
		if err != nil {
			return nil, err
		}
		v.Lines = append(v.Lines, VoucherLine{
			LedgerID: *item.LedgerID, LedgerName: n, Side: item.Side, Amount: item.Amount,
		})
	}
	if err := v.Validate(); err != nil {
		return nil, err
	}
	return v, nil
}

func mimeForFilename(name string) string {
	switch strings.ToLower(path.Ext(name)) {
	case ".pdf":
		return "application/pdf"
	case ".png":
		return "image/png"
	case ".jpg", ".jpeg":
		return "image/jpeg"
	default:
		return "application/octet-stream"
	}
}

var errNoAnalyzed = fmt.Errorf("no analysed data")

const analyzedCols = `a.id::text, a.tenant_id::text, a.bill_id::text,
	a.vendor_ledger_id::text, a.bill_no, a.bill_date, a.total, a.igst, a.cgst, a.sgst,
	a.igst_ledger_id::text, a.cgst_ledger_id::text, a.sgst_ledger_id::text, a.gst_type,
	a.vendor_debit_or_credit, a.igst_debit_or_credit, a.cgst_debit_or_credit,
	a.sgst_debit_or_credit, a.voucher, a.note, a.created_at, a.updated_at`

func loadAnalyzed(ctx context.Context, q Querier, tenantID, billID string) (*AnalyzedBill, error) {
	var ab AnalyzedBill
	err := q.QueryRow(ctx, `
		SELECT `+analyzedCols+` FROM analyzed_bills a
		WHERE a.tenant_id = $1 AND a.bill_id = $2`, tenantID, billID).Scan(
		&ab.ID, &ab.TenantID, &ab.BillID,
		&ab.VendorLedgerID, &ab.BillNo, &ab.BillDate, &ab.Total, &ab.IGST, &ab.CGST, &ab.SGST,
		&ab.IGSTLedgerID, &ab.CGSTLedgerID, &ab.SGSTLedgerID, &ab.GSTType,
		&ab.VendorSide, &ab.IGSTSide, &ab.CGSTSide, &ab.SGSTSide,
		&ab.Voucher, &ab.Note, &ab.CreatedAt, &ab.UpdatedAt)
	if err != nil {
		if isNoRows(err) {
			return nil, errNoAnalyzed
		}
		return nil, fmt.Errorf("load analysed bill: %w", err)
	}

	rows, err := q.Query(ctx, `
		SELECT id::text, analyzed_bill_id::text, item_name, item_details, price,
		       quantity, amount, gst_rate, ledger_id::text, debit_or_credit, position
		FROM analyzed_products
		WHERE tenant_id = $1 AND analyzed_bill_id = $2
		ORDER BY position`, tenantID, ab.ID)
	if err != nil {
		return nil, fmt.Errorf("load analysed products: %w", err)
	}
	defer rows.Close()
	for rows.Next() {
		var p AnalyzedProduct
		if err := rows.Scan(&p.ID, &p.AnalyzedBillID, &p.ItemName, &p.ItemDetails,
			&p.Price, &p.Quantity, &p.Amount, &p.GSTRate, &p.LedgerID, &p.Side, &p.Position); err != nil {
			return nil, err
		}
		ab.Products = append(ab.Products, p)
	}
	return &ab, rows.Err()
}

// writeAnalyzed upserts the analysed row for the bill and replaces its
// products.
func writeAnalyzed(ctx context.Context, q Querier, ab *AnalyzedBill) error {
	var id string
	err := q.QueryRow(ctx, `
		INSERT INTO analyzed_bills (tenant_id, bill_id, vendor_ledger_id, bill_no, bill_date,
			total, igst, cgst, sgst, igst_ledger_id, cgst_ledger_id, sgst_ledger_id, gst_type,
			vendor_debit_or_credit, igst_debit_or_credit, cgst_debit_or_credit, sgst_debit_or_credit,
			voucher, note)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15, $16, $17, $18, $19)
		ON CONFLICT (bill_id) DO UPDATE SET
			vendor_ledger_id = EXCLUDED.vendor_ledger_id,
			bill_no = EXCLUDED.bill_no,
			bill_date = EXCLUDED.bill_date,
			total = EXCLUDED.total,
			igst = EXCLUDED.igst,
			cgst = EXCLUDED.cgst,
			sgst = EXCLUDED.sgst,
			igst_ledger_id = EXCLUDED.igst_ledger_id,
			cgst_ledger_id = EXCLUDED.cgst_ledger_id,
			sgst_ledger_id = EXCLUDED.sgst_ledger_id,
			gst_type = EXCLUDED.gst_type,
			vendor_debit_or_credit = EXCLUDED.vendor_debit_or_credit,
			igst_debit_or_credit = EXCLUDED.igst_debit_or_credit,
			cgst_debit_or_credit = EXCLUDED.cgst_debit_or_credit,
			sgst_debit_or_credit = EXCLUDED.sgst_debit_or_credit,
			voucher = EXCLUDED.voucher,
			note = EXCLUDED.note,
			updated_at = now()
		RETURNING id::text`,
		ab.TenantID, ab.BillID, ab.VendorLedgerID, ab.BillNo, ab.BillDate,
		ab.Total, ab.IGST, ab.CGST, ab.SGST,
		ab.IGSTLedgerID, ab.CGSTLedgerID, ab.SGSTLedgerID, string(ab.GSTType),
		string(ab.VendorSide), string(ab.IGSTSide), string(ab.CGSTSide), string(ab.SGSTSide),
		ab.Voucher, ab.Note).Scan(&id)
	if err != nil {
		return fmt.Errorf("write analysed bill: %w", err)
	}

	if _, err := q.Exec(ctx, `DELETE FROM analyzed_products WHERE tenant_id = $1 AND analyzed_bill_id = $2`, ab.TenantID, id); err != nil {
		return fmt.Errorf("clear analysed products: %w", err)
	}
	for _, p := range ab.Products {
		_, err := q.Exec(ctx, `
			INSERT INTO analyzed_products (tenant_id, analyzed_bill_id, item_name, item_details, price,
				quantity, amount, gst_rate, ledger_id, debit_or_credit, position)
			VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11)`,
			ab.TenantID, id, p.ItemName, p.ItemDetails, p.Price, p.Quantity, p.Amount, p.GSTRate,
			p.LedgerID, string(p.Side), p.Position)
		if err != nil {
			return fmt.Errorf("write analysed product %q: %w", p.ItemName, err)
		}
	}
	return nil
}
