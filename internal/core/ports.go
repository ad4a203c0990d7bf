package core

import (
	"context"
	"errors"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
)

func isNoRows(err error) bool { return errors.Is(err, pgx.ErrNoRows) }

// Querier is the slice of pgx shared by *pgxpool.Pool and pgx.Tx. Stores
// take a Querier so the same code runs against the pool or inside a
// caller-owned transaction.
type Querier interface {
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
}

// FileUpload is one uploaded document, held in memory until stored.
type FileUpload struct {
	Filename string
	MimeType string
	Data     []byte
}

// SplitPart references one bill inside an uploaded document.
type SplitPart struct {
	Page int
}

// DocumentSplitter decides how many draft bills an upload becomes and
// which page each one starts on.
type DocumentSplitter interface {
	Split(ctx context.Context, up FileUpload, mode SplitMode) ([]SplitPart, error)
}

// FileStore persists uploaded documents and serves them back by reference.
type FileStore interface {
	Save(ctx context.Context, filename string, data []byte) (ref string, err error)
	Open(ctx context.Context, ref string) ([]byte, error)
}

// Extractor turns a bill document into structured invoice data. A
// positive page restricts extraction to that page of a multi-bill
// document. Failures are reported as *AnalysisError so callers can
// distinguish transient from permanent ones.
type Extractor interface {
	ExtractInvoice(ctx context.Context, up FileUpload, page int) (*ExtractedInvoice, error)
}

// Syncer pushes a finished voucher to the external accounting system.
// Failures are reported as *SyncError.
type Syncer interface {
	PushVoucher(ctx context.Context, v *Voucher) error
}
