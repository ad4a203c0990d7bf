// Package accounting pushes finished vouchers to the external accounting
// system over its HTTP ingest endpoint.
package accounting

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/rs/zerolog"

	"billflow/internal/core"
)

// Client posts vouchers as JSON. Satisfies core.Syncer.
type Client struct {
	baseURL string
	apiKey  string
	http    *http.Client
	log     zerolog.Logger
}

// NewClient builds a Client for the ingest endpoint at baseURL. timeout
// bounds each push end to end.
func NewClient(baseURL, apiKey string, timeout time.Duration, log zerolog.Logger) *Client {
	if timeout <= 0 {
		timeout = 30 * time.Second
	}
	return &Client{
		baseURL: baseURL,
		apiKey:  apiKey,
		http:    &http.Client{Timeout: timeout},
		log:     log.With().Str("component", "accounting").Logger(),
	}
}

// PushVoucher posts the voucher. A 2xx answer is success; 409 from the
// upstream means the voucher is already there and also counts as success.
func (c *Client) PushVoucher(ctx context.Context, v *core.Voucher) error {
	body, err := json.Marshal(v)
	if err != nil {
		return &core.SyncError{Err: fmt.Errorf("encode voucher: %w", err), Transient: false}
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/vouchers", bytes.NewReader(body))
	if err != nil {
		return &core.SyncError{Err: err, Transient: false}
	}
	req.Header.Set("Content-Type", "application/json")
	if c.apiKey != "" {
		req.Header.Set("Authorization", "Bearer "+c.apiKey)
	}

	resp, err := c.http.Do(req)
	if err != nil {
		// Timeouts and connection failures are retryable unless the caller
		// cancelled.
		transient := !errors.Is(err, context.Canceled)
		return &core.SyncError{Err: err, Transient: transient}
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 200 && resp.StatusCode < 300 {
		c.log.Info().Str("bill", v.BillName).Int("lines", len(v.Lines)).Msg("voucher pushed")
		return nil
	}
	if resp.StatusCode == http.StatusConflict {
		c.log.Info().Str("bill", v.BillName).Msg("voucher already present upstream")
		return nil
	}

	detail, _ := io.ReadAll(io.LimitReader(resp.Body, 4<<10))
	err = fmt.Errorf("%s", bytes.TrimSpace(detail))
	return &core.SyncError{
		StatusCode: resp.StatusCode,
		Err:        err,
		Transient:  resp.StatusCode == http.StatusTooManyRequests || resp.StatusCode >= 500,
	}
}
