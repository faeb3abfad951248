package sweep

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"time"

	"github.com/parcelops/backend/pkg/enums"
)

const checkerTimeout = 10 * time.Second

// HTTPChecker asks a tracking endpoint for a shipment's current status. The
// endpoint answers GET <base>?tracking_number=... with {"status": "<status>"}.
type HTTPChecker struct {
	base   string
	client *http.Client
}

// NewHTTPChecker builds a checker against the given base URL.
func NewHTTPChecker(base string) *HTTPChecker {
	return &HTTPChecker{
		base:   base,
		client: &http.Client{Timeout: checkerTimeout},
	}
}

func (c *HTTPChecker) Check(ctx context.Context, trackingNumber string) (enums.OrderStatus, error) {
	endpoint := c.base + "?tracking_number=" + url.QueryEscape(trackingNumber)
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
	if err != nil {
		return "", fmt.Errorf("build tracking request: %w", err)
	}

	resp, err := c.client.Do(req)
	if err != nil {
		return "", fmt.Errorf("tracking request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return "", fmt.Errorf("tracking endpoint returned %d", resp.StatusCode)
	}

	var payload struct {
		Status string `json:"status"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&payload); err != nil {
		return "", fmt.Errorf("decode tracking response: %w", err)
	}
	return enums.ParseOrderStatus(payload.Status)
}
