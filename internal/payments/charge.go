package payments

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"showtix/internal/shared/apperr"

	"github.com/google/uuid"
)

// ChargeResult carries the external processor's reference for a
// successful charge.
type ChargeResult struct {
	Ref string `json:"charge_ref"`
}

// ChargeClient talks to the external payment processor.
type ChargeClient interface {
	Charge(ctx context.Context, paymentID uuid.UUID, amount float64) (*ChargeResult, error)
	Refund(ctx context.Context, chargeRef string) error
}

type HTTPChargeClient struct {
	baseURL string
	client  *http.Client
}

func NewHTTPChargeClient(baseURL string, timeout time.Duration) *HTTPChargeClient {
	return &HTTPChargeClient{
		baseURL: baseURL,
		client:  &http.Client{Timeout: timeout},
	}
}

func (c *HTTPChargeClient) Charge(ctx context.Context, paymentID uuid.UUID, amount float64) (*ChargeResult, error) {
	body, err := json.Marshal(map[string]interface{}{
		"payment_id": paymentID.String(),
		"amount":     amount,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to marshal charge request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/charges", bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("failed to build charge request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.client.Do(req)
	if err != nil {
		return nil, apperr.Timeout("charge call failed", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return nil, fmt.Errorf("charge rejected with status %d", resp.StatusCode)
	}

	var result ChargeResult
	if err := json.NewDecoder(resp.Body).Decode(&result); err != nil {
		return nil, fmt.Errorf("failed to decode charge response: %w", err)
	}
	return &result, nil
}

func (c *HTTPChargeClient) Refund(ctx context.Context, chargeRef string) error {
	body, err := json.Marshal(map[string]interface{}{
		"charge_ref": chargeRef,
	})
	if err != nil {
		return fmt.Errorf("failed to marshal refund request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/refunds", bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("failed to build refund request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.client.Do(req)
	if err != nil {
		return apperr.Timeout("refund call failed", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return fmt.Errorf("refund rejected with status %d", resp.StatusCode)
	}
	return nil
}

// chargeWithRetry wraps the charge call with bounded exponential
// backoff. The last error wins once attempts are exhausted.
func chargeWithRetry(ctx context.Context, client ChargeClient, paymentID uuid.UUID, amount float64, maxAttempts int, backoff time.Duration) (*ChargeResult, error) {
	var lastErr error
	for attempt := 0; attempt < maxAttempts; attempt++ {
		if attempt > 0 {
			delay := backoff * time.Duration(1<<(attempt-1))
			select {
			case <-time.After(delay):
			case <-ctx.Done():
				return nil, ctx.Err()
			}
		}

		result, err := client.Charge(ctx, paymentID, amount)
		if err == nil {
			return result, nil
		}
		lastErr = err
	}
	return nil, lastErr
}
