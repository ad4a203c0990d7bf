package core

import (
	"time"

	"github.com/shopspring/decimal"
)

// VoucherLine is one debit or credit posting in an outbound voucher.
// Every line references a resolved ledger; free-form names never leave
// the engine.
type VoucherLine struct {
	LedgerID   string          `json:"ledger_id"`
	LedgerName string          `json:"ledger_name"`
	Side       DebitCredit     `json:"debit_or_credit"`
	Amount     decimal.Decimal `json:"amount"`
}

// Voucher is the posting payload pushed to the external accounting system
// when a verified bill is synced.
type Voucher struct {
	TenantID    string        `json:"tenant_id"`
	BillName    string        `json:"bill_name"`
	VoucherType string        `json:"voucher_type"`
	BillNo      string        `json:"bill_no"`
	Date        *time.Time    `json:"date,omitempty"`
	Narration   string        `json:"narration,omitempty"`
	Lines       []VoucherLine `json:"lines"`
}

// Balance returns total debits minus total credits.
func (v *Voucher) Balance() decimal.Decimal {
	sum := decimal.Zero
	for _, l := range v.Lines {
		if l.Side == Debit {
			sum = sum.Add(l.Amount)
		} else {
			sum = sum.Sub(l.Amount)
		}
	}
	return sum
}

// Validate checks the voucher is postable: at least two lines, every line
// carries a resolved ledger and a positive amount, and debits balance
// credits within the rounding tolerance.
func (v *Voucher) Validate() error {
	if len(v.Lines) < 2 {
		return NewValidationError("lines", "voucher needs at least two lines, got %d", len(v.Lines))
	}
	for i, l := range v.Lines {
		if l.LedgerID == "" {
			return NewValidationError("lines", "line %d has no resolved ledger", i)
		}
		if l.Side != Debit && l.Side != Credit {
			return NewValidationError("lines", "line %d has invalid side %q", i, l.Side)
		}
		if !l.Amount.IsPositive() {
			return NewValidationError("lines", "line %d amount must be positive, got %s", i, l.Amount)
		}
	}
	if bal := v.Balance(); bal.Abs().GreaterThan(AmountTolerance) {
		return NewValidationError("lines", "voucher does not balance: debits minus credits = %s", bal)
	}
	return nil
}
