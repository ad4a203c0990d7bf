package core

import (
	"time"

	"github.com/shopspring/decimal"
)

type BillStatus string

const (
	StatusDraft    BillStatus = "Draft"
	StatusAnalysed BillStatus = "Analysed"
	StatusVerified BillStatus = "Verified"
	StatusSynced   BillStatus = "Synced"
)

type BillKind string

const (
	KindVendor  BillKind = "vendor"
	KindExpense BillKind = "expense"
)

type SplitMode string

const (
	SplitSingle   SplitMode = "single"
	SplitMultiple SplitMode = "multiple"
)

type GSTType string

const (
	GSTTypeIGST     GSTType = "IGST"
	GSTTypeCGSTSGST GSTType = "CGST_SGST"
	GSTTypeUnknown  GSTType = "Unknown"
)

type DebitCredit string

const (
	Debit  DebitCredit = "debit"
	Credit DebitCredit = "credit"
)

// LedgerRole identifies which slot of the tenant configuration a ledger
// lookup goes through. Each role carries its own ordered list of parent
// ledgers and its own fallback parent name.
type LedgerRole string

const (
	RoleVendor         LedgerRole = "vendor"
	RoleIGST           LedgerRole = "igst"
	RoleCGST           LedgerRole = "cgst"
	RoleSGST           LedgerRole = "sgst"
	RoleAccounts       LedgerRole = "chart_of_accounts"
	RoleExpenseAccount LedgerRole = "chart_of_accounts_expense"
)

// DefaultParentName returns the parent ledger created on the fly when a
// tenant has no configured parents for the role.
func (r LedgerRole) DefaultParentName() string {
	switch r {
	case RoleVendor:
		return "Sundry Creditors"
	case RoleIGST, RoleCGST, RoleSGST:
		return "Duties & Taxes"
	default:
		return "Indirect Expenses"
	}
}

// IsTaxRole reports whether the role is one of the three GST slots.
func (r LedgerRole) IsTaxRole() bool {
	return r == RoleIGST || r == RoleCGST || r == RoleSGST
}

type ParentLedger struct {
	ID        string    `json:"id"`
	TenantID  string    `json:"tenant_id"`
	Name      string    `json:"name"`
	CreatedAt time.Time `json:"created_at"`
}

type Ledger struct {
	ID              string           `json:"id"`
	TenantID        string           `json:"tenant_id"`
	ParentID        string           `json:"parent_id"`
	Name            string           `json:"name"`
	MasterID        *string          `json:"master_id,omitempty"`
	TaxRegistration *string          `json:"tax_registration,omitempty"`
	TaxRate         *decimal.Decimal `json:"tax_rate,omitempty"`
	OpeningBalance  decimal.Decimal  `json:"opening_balance"`
	CreatedAt       time.Time        `json:"created_at"`
}

// TenantConfig maps each ledger role to an ordered list of parent ledger IDs.
// Roles absent from the map fall back to their default parent at resolution
// time.
type TenantConfig struct {
	TenantID string                  `json:"tenant_id"`
	Parents  map[LedgerRole][]string `json:"parents"`
}

// ParentsFor returns the configured parent IDs for role, in priority order.
func (c *TenantConfig) ParentsFor(role LedgerRole) []string {
	if c == nil {
		return nil
	}
	return c.Parents[role]
}

type Bill struct {
	ID        string     `json:"id"`
	TenantID  string     `json:"tenant_id"`
	Kind      BillKind   `json:"kind"`
	BillName  string     `json:"bill_name"`
	FileRef   string     `json:"file_ref"`
	Page      int        `json:"page"`
	SplitMode SplitMode  `json:"split_mode"`
	Status    BillStatus `json:"status"`
	CreatedAt time.Time  `json:"created_at"`
	UpdatedAt time.Time  `json:"updated_at"`
}

// AnalyzedBill is the structured, correctable view of a bill produced by
// analysis and finalized at verification. Ledger references stay nil until
// verification resolves them.
type AnalyzedBill struct {
	ID             string            `json:"id"`
	TenantID       string            `json:"tenant_id"`
	BillID         string            `json:"bill_id"`
	VendorLedgerID *string           `json:"vendor_ledger_id,omitempty"`
	BillNo         string            `json:"bill_no"`
	BillDate       *time.Time        `json:"bill_date,omitempty"`
	Total          decimal.Decimal   `json:"total"`
	IGST           decimal.Decimal   `json:"igst"`
	CGST           decimal.Decimal   `json:"cgst"`
	SGST           decimal.Decimal   `json:"sgst"`
	IGSTLedgerID   *string           `json:"igst_ledger_id,omitempty"`
	CGSTLedgerID   *string           `json:"cgst_ledger_id,omitempty"`
	SGSTLedgerID   *string           `json:"sgst_ledger_id,omitempty"`
	GSTType        GSTType           `json:"gst_type"`
	VendorSide     DebitCredit       `json:"vendor_debit_or_credit"`
	IGSTSide       DebitCredit       `json:"igst_debit_or_credit"`
	CGSTSide       DebitCredit       `json:"cgst_debit_or_credit"`
	SGSTSide       DebitCredit       `json:"sgst_debit_or_credit"`
	Voucher        string            `json:"voucher"`
	Note           string            `json:"note"`
	Products       []AnalyzedProduct `json:"products"`
	CreatedAt      time.Time         `json:"created_at"`
	UpdatedAt      time.Time         `json:"updated_at"`
}

type AnalyzedProduct struct {
	ID             string          `json:"id"`
	AnalyzedBillID string          `json:"analyzed_bill_id"`
	ItemName       string          `json:"item_name"`
	ItemDetails    string          `json:"item_details"`
	Price          decimal.Decimal `json:"price"`
	Quantity       decimal.Decimal `json:"quantity"`
	Amount         decimal.Decimal `json:"amount"`
	GSTRate        string          `json:"gst_rate"`
	LedgerID       *string         `json:"ledger_id,omitempty"`
	Side           DebitCredit     `json:"debit_or_credit"`
	Position       int             `json:"position"`
}

// ExtractedLineItem is one line item as read off the document by the
// extraction model.
type ExtractedLineItem struct {
	ItemName    string  `json:"item_name" jsonschema_description:"Name of the product or service exactly as printed on the bill"`
	ItemDetails string  `json:"item_details" jsonschema_description:"Additional description printed for the line item, or empty string"`
	Price       float64 `json:"price" jsonschema_description:"Unit price of the item. 0 if not printed."`
	Quantity    float64 `json:"quantity" jsonschema_description:"Quantity of the item. 0 if not printed."`
	Amount      float64 `json:"amount" jsonschema_description:"Total amount for this line before tax, unless the bill prints it tax-inclusive"`
	GSTRate     string  `json:"gst_rate" jsonschema_description:"GST rate printed for this line, e.g. '18%', or empty string"`
}

// ExtractedInvoice is the structured output schema the extraction model
// fills for every bill. Amounts are plain numbers in the bill currency.
type ExtractedInvoice struct {
	InvoiceNumber         string              `json:"invoice_number" jsonschema_description:"The invoice or bill number exactly as printed"`
	DateIssued            string              `json:"date_issued" jsonschema_description:"The bill date exactly as printed, e.g. '02-01-2025' or '2 Jan 2025'"`
	VendorName            string              `json:"vendor_name" jsonschema_description:"The legal name of the vendor who issued the bill"`
	VendorAddress         string              `json:"vendor_address" jsonschema_description:"The vendor's address, or empty string"`
	VendorTaxRegistration string              `json:"vendor_tax_registration" jsonschema_description:"The vendor's GSTIN or tax registration number, or empty string"`
	Items                 []ExtractedLineItem `json:"items" jsonschema_description:"Every line item on the bill, in printed order"`
	IGST                  float64             `json:"igst" jsonschema_description:"Total IGST amount on the bill, 0 if none"`
	CGST                  float64             `json:"cgst" jsonschema_description:"Total CGST amount on the bill, 0 if none"`
	SGST                  float64             `json:"sgst" jsonschema_description:"Total SGST amount on the bill, 0 if none"`
	Total                 float64             `json:"total" jsonschema_description:"Grand total of the bill including all taxes"`
}
