// Package split decides how many bills an uploaded document contains.
// In multiple mode each PDF page is treated as one bill; images always
// hold exactly one.
package split

import (
	"bytes"
	"context"
	"fmt"
	"path/filepath"
	"strings"

	"github.com/pdfcpu/pdfcpu/pkg/api"

	"billflow/internal/core"
)

// PageCounter reports how many pages a PDF has.
type PageCounter interface {
	PageCount(data []byte) (int, error)
}

type pdfcpuCounter struct{}

func (pdfcpuCounter) PageCount(data []byte) (int, error) {
	return api.PageCount(bytes.NewReader(data), nil)
}

var supportedExts = map[string]bool{
	".pdf":  true,
	".png":  true,
	".jpg":  true,
	".jpeg": true,
}

// Splitter validates uploads and maps them to bill parts.
type Splitter struct {
	maxBytes int64
	pages    PageCounter
}

// New builds a Splitter enforcing maxBytes per upload.
func New(maxBytes int64) *Splitter {
	return &Splitter{maxBytes: maxBytes, pages: pdfcpuCounter{}}
}

// NewWithCounter is New with a caller-supplied page counter.
func NewWithCounter(maxBytes int64, pages PageCounter) *Splitter {
	return &Splitter{maxBytes: maxBytes, pages: pages}
}

// Split returns one part per bill in the upload. Single mode always
// yields one part regardless of page count.
func (s *Splitter) Split(_ context.Context, up core.FileUpload, mode core.SplitMode) ([]core.SplitPart, error) {
	if len(up.Data) == 0 {
		return nil, core.NewValidationError("file", "uploaded file is empty")
	}
	if s.maxBytes > 0 && int64(len(up.Data)) > s.maxBytes {
		return nil, fmt.Errorf("%q is %d bytes (limit %d): %w", up.Filename, len(up.Data), s.maxBytes, core.ErrSizeExceeded)
	}
	ext := strings.ToLower(filepath.Ext(up.Filename))
	if !supportedExts[ext] {
		return nil, fmt.Errorf("%q: %w", up.Filename, core.ErrUnsupportedFormat)
	}

	if mode == core.SplitSingle || ext != ".pdf" {
		return []core.SplitPart{{Page: 1}}, nil
	}

	n, err := s.pages.PageCount(up.Data)
	if err != nil {
		return nil, fmt.Errorf("%q: count pages: %w", up.Filename, err)
	}
	if n < 1 {
		return nil, core.NewValidationError("file", "%q has no pages", up.Filename)
	}
	parts := make([]core.SplitPart, n)
	for i := range parts {
		parts[i] = core.SplitPart{Page: i + 1}
	}
	return parts, nil
}
