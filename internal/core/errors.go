package core

import (
	"errors"
	"fmt"
	"strings"
)

// Sentinel errors shared across services. Handlers map these onto HTTP
// statuses; callers test them with errors.Is.
var (
	ErrNotFound          = errors.New("not found")
	ErrUnsupportedFormat = errors.New("unsupported file format")
	ErrSizeExceeded      = errors.New("file exceeds maximum size")
	ErrInvalidTaxSplit   = errors.New("bill carries both IGST and CGST/SGST amounts")
	ErrNotConfigured     = errors.New("service not configured")
)

// ValidationError reports a rejected field in a request or payload.
type ValidationError struct {
	Field   string
	Message string
}

func (e *ValidationError) Error() string {
	if e.Field == "" {
		return e.Message
	}
	return fmt.Sprintf("%s: %s", e.Field, e.Message)
}

// NewValidationError builds a ValidationError for field.
func NewValidationError(field, format string, args ...any) *ValidationError {
	return &ValidationError{Field: field, Message: fmt.Sprintf(format, args...)}
}

// StateConflictError is returned when an operation is attempted on a bill
// whose status does not admit it. The bill is left untouched.
type StateConflictError struct {
	BillID   string
	Current  BillStatus
	Expected []BillStatus
}

func (e *StateConflictError) Error() string {
	names := make([]string, len(e.Expected))
	for i, s := range e.Expected {
		names[i] = string(s)
	}
	return fmt.Sprintf("bill %s status is %s (must be %s)", e.BillID, e.Current, strings.Join(names, " or "))
}

// ResolutionAmbiguityError is returned when a ledger name matches distinct
// ledgers under more than one configured parent and the engine refuses to
// pick one.
type ResolutionAmbiguityError struct {
	Role    LedgerRole
	Name    string
	Matches []Ledger
}

func (e *ResolutionAmbiguityError) Error() string {
	return fmt.Sprintf("ledger name %q matches %d ledgers under different parents for role %s", e.Name, len(e.Matches), e.Role)
}

// AnalysisError wraps a failure of the extraction service. Transient
// failures (timeouts, rate limits, upstream 5xx) may be retried without
// any state change; permanent ones need operator attention.
type AnalysisError struct {
	Op        string
	Err       error
	Transient bool
}

func (e *AnalysisError) Error() string {
	return fmt.Sprintf("analysis %s: %v", e.Op, e.Err)
}

func (e *AnalysisError) Unwrap() error { return e.Err }

// SyncError wraps a failure to push a voucher to the external accounting
// system. The bill stays Verified either way.
type SyncError struct {
	StatusCode int
	Err        error
	Transient  bool
}

func (e *SyncError) Error() string {
	if e.StatusCode != 0 {
		return fmt.Sprintf("sync: upstream returned %d: %v", e.StatusCode, e.Err)
	}
	return fmt.Sprintf("sync: %v", e.Err)
}

func (e *SyncError) Unwrap() error { return e.Err }

// IsTransient reports whether err is a retryable analysis or sync failure.
func IsTransient(err error) bool {
	var ae *AnalysisError
	if errors.As(err, &ae) {
		return ae.Transient
	}
	var se *SyncError
	if errors.As(err, &se) {
		return se.Transient
	}
	return false
}
