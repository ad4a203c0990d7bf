package filestore_test

import (
	"bytes"
	"context"
	"testing"

	"billflow/internal/filestore"
)

func TestSaveAndOpen(t *testing.T) {
	s, err := filestore.New(t.TempDir())
	if err != nil {
		t.Fatalf("new: %v", err)
	}
	ctx := context.Background()

	data := []byte("%PDF-1.4 test")
	ref, err := s.Save(ctx, "invoice.PDF", data)
	if err != nil {
		t.Fatalf("save: %v", err)
	}
	if ref == "" {
		t.Fatal("empty ref")
	}

	got, err := s.Open(ctx, ref)
	if err != nil {
		t.Fatalf("open: %v", err)
	}
	if !bytes.Equal(got, data) {
		t.Errorf("round trip mismatch: got %q", got)
	}
}

func TestOpen_RejectsTraversal(t *testing.T) {
	s, err := filestore.New(t.TempDir())
	if err != nil {
		t.Fatalf("new: %v", err)
	}
	for _, ref := range []string{"../etc/passwd", "/etc/passwd", "ab/../../x"} {
		if _, err := s.Open(context.Background(), ref); err == nil {
			t.Errorf("ref %q should be rejected", ref)
		}
	}
}

func TestOpen_MissingRef(t *testing.T) {
	s, err := filestore.New(t.TempDir())
	if err != nil {
		t.Fatalf("new: %v", err)
	}
	if _, err := s.Open(context.Background(), "ab/absent.pdf"); err == nil {
		t.Errorf("missing ref should error")
	}
}
