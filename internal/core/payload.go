package core

import (
	"strings"
	"time"

	"github.com/shopspring/decimal"
)

// AmountTolerance absorbs rounding drift between printed line amounts and
// printed totals. Two amounts within a paisa of each other are equal.
var AmountTolerance = decimal.NewFromFloat(0.01)

// Accepted bill date layouts, tried in order.
var dateLayouts = []string{
	"02-01-2006",
	"02/01/2006",
	"2006-01-02",
	"2 Jan 2006",
	"2 January 2006",
	"Jan 2, 2006",
}

// ParseBillDate parses a bill date in any accepted layout.
func ParseBillDate(s string) (time.Time, error) {
	s = strings.TrimSpace(s)
	for _, layout := range dateLayouts {
		if t, err := time.Parse(layout, s); err == nil {
			return t, nil
		}
	}
	return time.Time{}, NewValidationError("bill_date", "unrecognized date %q", s)
}

// CleanAmount strips thousands separators and surrounding whitespace and
// parses the remainder as a decimal. An empty string is zero.
func CleanAmount(s string) (decimal.Decimal, error) {
	s = strings.TrimSpace(strings.ReplaceAll(s, ",", ""))
	if s == "" {
		return decimal.Zero, nil
	}
	return decimal.NewFromString(s)
}

// TaxLine is one tax amount in a verification payload, with the ledger the
// reviewer picked or named for it.
type TaxLine struct {
	Amount     string `json:"amount"`
	LedgerID   string `json:"ledger_id,omitempty"`
	LedgerName string `json:"ledger_name,omitempty"`
	Side       string `json:"debit_or_credit,omitempty"`
}

// ProductPayload is one corrected line item in a verification payload.
type ProductPayload struct {
	ItemName    string `json:"item_name"`
	ItemDetails string `json:"item_details,omitempty"`
	Price       string `json:"price,omitempty"`
	Quantity    string `json:"quantity,omitempty"`
	Amount      string `json:"amount"`
	GSTRate     string `json:"gst_rate,omitempty"`
	LedgerID    string `json:"ledger_id,omitempty"`
	LedgerName  string `json:"ledger_name,omitempty"`
	Side        string `json:"debit_or_credit,omitempty"`
}

// VerifyPayload carries the human-reviewed correction of an analysed bill.
// Amounts arrive as strings to keep them exact; Normalize then Validate
// before use.
type VerifyPayload struct {
	VendorLedgerID string           `json:"vendor_ledger_id,omitempty"`
	VendorName     string           `json:"vendor_name,omitempty"`
	VendorSide     string           `json:"vendor_debit_or_credit,omitempty"`
	Voucher        string           `json:"voucher,omitempty"`
	BillNo         string           `json:"bill_no"`
	BillDate       string           `json:"bill_date,omitempty"`
	Total          string           `json:"total"`
	IGST           TaxLine          `json:"igst"`
	CGST           TaxLine          `json:"cgst"`
	SGST           TaxLine          `json:"sgst"`
	Note           string           `json:"note,omitempty"`
	Items          []ProductPayload `json:"items"`
}

// Normalize trims whitespace, fills empty amounts with "0", and applies the
// default posting sides: vendor on credit, taxes and items on debit.
func (p *VerifyPayload) Normalize() {
	p.VendorLedgerID = strings.TrimSpace(p.VendorLedgerID)
	p.VendorName = strings.TrimSpace(p.VendorName)
	p.VendorSide = normalizeSide(p.VendorSide, Credit)
	p.Voucher = strings.TrimSpace(p.Voucher)
	if p.Voucher == "" {
		p.Voucher = "Purchase"
	}
	p.BillNo = strings.TrimSpace(p.BillNo)
	p.BillDate = strings.TrimSpace(p.BillDate)
	p.Total = normalizeAmount(p.Total)
	p.Note = strings.TrimSpace(p.Note)
	for _, t := range []*TaxLine{&p.IGST, &p.CGST, &p.SGST} {
		t.Amount = normalizeAmount(t.Amount)
		t.LedgerID = strings.TrimSpace(t.LedgerID)
		t.LedgerName = strings.TrimSpace(t.LedgerName)
		t.Side = normalizeSide(t.Side, Debit)
	}
	for i := range p.Items {
		it := &p.Items[i]
		it.ItemName = strings.TrimSpace(it.ItemName)
		it.ItemDetails = strings.TrimSpace(it.ItemDetails)
		it.Price = normalizeAmount(it.Price)
		it.Quantity = normalizeAmount(it.Quantity)
		it.Amount = normalizeAmount(it.Amount)
		it.GSTRate = strings.TrimSpace(it.GSTRate)
		it.LedgerID = strings.TrimSpace(it.LedgerID)
		it.LedgerName = strings.TrimSpace(it.LedgerName)
		it.Side = normalizeSide(it.Side, Debit)
	}
}

// Validate checks the payload against the rules for the given bill kind.
// It returns a *ValidationError for field problems and ErrInvalidTaxSplit
// when IGST appears alongside CGST/SGST.
func (p *VerifyPayload) Validate(kind BillKind) error {
	if p.VendorLedgerID == "" && p.VendorName == "" {
		return NewValidationError("vendor", "vendor ledger id or vendor name is required")
	}
	if p.BillNo == "" {
		return NewValidationError("bill_no", "bill number is required")
	}
	if p.BillDate != "" {
		if _, err := ParseBillDate(p.BillDate); err != nil {
			return err
		}
	}
	total, err := requireAmount("total", p.Total)
	if err != nil {
		return err
	}
	igst, err := requireAmount("igst.amount", p.IGST.Amount)
	if err != nil {
		return err
	}
	cgst, err := requireAmount("cgst.amount", p.CGST.Amount)
	if err != nil {
		return err
	}
	sgst, err := requireAmount("sgst.amount", p.SGST.Amount)
	if err != nil {
		return err
	}
	if igst.IsPositive() && (cgst.IsPositive() || sgst.IsPositive()) {
		return ErrInvalidTaxSplit
	}
	if cgst.IsPositive() != sgst.IsPositive() {
		return NewValidationError("cgst", "CGST and SGST must appear together")
	}
	for _, t := range []struct {
		field string
		line  TaxLine
		amt   decimal.Decimal
	}{
		{"igst", p.IGST, igst},
		{"cgst", p.CGST, cgst},
		{"sgst", p.SGST, sgst},
	} {
		if t.amt.IsPositive() && t.line.LedgerID == "" && t.line.LedgerName == "" {
			return NewValidationError(t.field, "tax amount %s has no ledger", t.amt)
		}
	}
	if len(p.Items) == 0 {
		return NewValidationError("items", "at least one line item is required")
	}
	itemSum := decimal.Zero
	for i, it := range p.Items {
		if it.ItemName == "" {
			return NewValidationError("items", "item %d has no name", i)
		}
		price, err := requireAmount("items.price", it.Price)
		if err != nil {
			return err
		}
		qty, err := requireAmount("items.quantity", it.Quantity)
		if err != nil {
			return err
		}
		amount, err := requireAmount("items.amount", it.Amount)
		if err != nil {
			return err
		}
		if price.IsPositive() && qty.IsPositive() {
			if price.Mul(qty).Sub(amount).Abs().GreaterThan(AmountTolerance) {
				return NewValidationError("items", "item %d amount %s does not match price %s x quantity %s", i, amount, price, qty)
			}
		}
		if it.LedgerID == "" && it.LedgerName == "" {
			return NewValidationError("items", "item %d has no account ledger", i)
		}
		itemSum = itemSum.Add(amount)
	}
	if kind == KindVendor {
		expected := itemSum.Add(igst).Add(cgst).Add(sgst)
		if expected.Sub(total).Abs().GreaterThan(AmountTolerance) {
			return NewValidationError("total", "items %s plus taxes %s do not add up to total %s",
				itemSum, igst.Add(cgst).Add(sgst), total)
		}
		return nil
	}
	// Expense bills balance as a voucher: the vendor line carries the total
	// on its side, and every other line posts on the side the reviewer set.
	balance := sideValue(DebitCredit(p.VendorSide), total)
	balance = balance.Add(sideValue(DebitCredit(p.IGST.Side), igst))
	balance = balance.Add(sideValue(DebitCredit(p.CGST.Side), cgst))
	balance = balance.Add(sideValue(DebitCredit(p.SGST.Side), sgst))
	for _, it := range p.Items {
		amount, _ := CleanAmount(it.Amount)
		balance = balance.Add(sideValue(DebitCredit(it.Side), amount))
	}
	if balance.Abs().GreaterThan(AmountTolerance) {
		return NewValidationError("items", "debits and credits differ by %s", balance)
	}
	return nil
}

// GSTType classifies the payload's tax amounts. Call after Validate.
func (p *VerifyPayload) GSTType() GSTType {
	igst, _ := CleanAmount(p.IGST.Amount)
	cgst, _ := CleanAmount(p.CGST.Amount)
	sgst, _ := CleanAmount(p.SGST.Amount)
	switch {
	case igst.IsPositive():
		return GSTTypeIGST
	case cgst.IsPositive() || sgst.IsPositive():
		return GSTTypeCGSTSGST
	default:
		return GSTTypeUnknown
	}
}

func normalizeAmount(s string) string {
	s = strings.TrimSpace(s)
	if s == "" {
		return "0"
	}
	return s
}

func normalizeSide(s string, def DebitCredit) string {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "debit":
		return string(Debit)
	case "credit":
		return string(Credit)
	default:
		return string(def)
	}
}

func requireAmount(field, s string) (decimal.Decimal, error) {
	d, err := CleanAmount(s)
	if err != nil {
		return decimal.Zero, NewValidationError(field, "invalid amount %q", s)
	}
	if d.IsNegative() {
		return decimal.Zero, NewValidationError(field, "amount must not be negative, got %s", d)
	}
	return d, nil
}

func sideValue(side DebitCredit, amount decimal.Decimal) decimal.Decimal {
	if side == Credit {
		return amount.Neg()
	}
	return amount
}
