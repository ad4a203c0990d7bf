package accounting_test

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"

	"billflow/internal/accounting"
	"billflow/internal/core"
)

func testVoucher() *core.Voucher {
	return &core.Voucher{
		TenantID:    "t1",
		BillName:    "BM-TB-1",
		VoucherType: "Purchase",
		BillNo:      "INV-42",
		Lines: []core.VoucherLine{
			{LedgerID: "l1", LedgerName: "Acme Traders", Side: core.Credit, Amount: decimal.NewFromInt(118)},
			{LedgerID: "l2", LedgerName: "Purchases", Side: core.Debit, Amount: decimal.NewFromInt(118)},
		},
	}
}

func TestPushVoucher_Success(t *testing.T) {
	var got core.Voucher
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/vouchers" || r.Method != http.MethodPost {
			t.Errorf("unexpected request %s %s", r.Method, r.URL.Path)
		}
		if auth := r.Header.Get("Authorization"); auth != "Bearer secret" {
			t.Errorf("missing bearer token, got %q", auth)
		}
		if err := json.NewDecoder(r.Body).Decode(&got); err != nil {
			t.Errorf("decode body: %v", err)
		}
		w.WriteHeader(http.StatusCreated)
	}))
	defer srv.Close()

	c := accounting.NewClient(srv.URL, "secret", time.Second, zerolog.Nop())
	if err := c.PushVoucher(context.Background(), testVoucher()); err != nil {
		t.Fatalf("push: %v", err)
	}
	if got.BillName != "BM-TB-1" || len(got.Lines) != 2 {
		t.Errorf("upstream received %+v", got)
	}
}

func TestPushVoucher_ConflictIsSuccess(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusConflict)
	}))
	defer srv.Close()

	c := accounting.NewClient(srv.URL, "", time.Second, zerolog.Nop())
	if err := c.PushVoucher(context.Background(), testVoucher()); err != nil {
		t.Errorf("409 should count as already synced, got %v", err)
	}
}

func TestPushVoucher_ErrorClassification(t *testing.T) {
	tests := []struct {
		status    int
		transient bool
	}{
		{http.StatusInternalServerError, true},
		{http.StatusBadGateway, true},
		{http.StatusTooManyRequests, true},
		{http.StatusBadRequest, false},
		{http.StatusUnauthorized, false},
		{http.StatusUnprocessableEntity, false},
	}
	for _, tt := range tests {
		srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			http.Error(w, "nope", tt.status)
		}))
		c := accounting.NewClient(srv.URL, "", time.Second, zerolog.Nop())
		err := c.PushVoucher(context.Background(), testVoucher())
		srv.Close()

		var se *core.SyncError
		if !errors.As(err, &se) {
			t.Fatalf("status %d: expected SyncError, got %v", tt.status, err)
		}
		if se.Transient != tt.transient {
			t.Errorf("status %d: transient = %v, want %v", tt.status, se.Transient, tt.transient)
		}
		if se.StatusCode != tt.status {
			t.Errorf("status %d: recorded %d", tt.status, se.StatusCode)
		}
	}
}

func TestPushVoucher_ConnectionFailureIsTransient(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {}))
	srv.Close() // nothing listening anymore

	c := accounting.NewClient(srv.URL, "", time.Second, zerolog.Nop())
	err := c.PushVoucher(context.Background(), testVoucher())
	var se *core.SyncError
	if !errors.As(err, &se) {
		t.Fatalf("expected SyncError, got %v", err)
	}
	if !se.Transient {
		t.Errorf("connection failure should be transient")
	}
}
