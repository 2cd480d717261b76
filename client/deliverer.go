package client

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/RezaEskandarii/quirrel/internal/metrics"
	"github.com/RezaEskandarii/quirrel/types"
	"github.com/rs/zerolog"
)

const maxErrorBody = 4 << 10

// Deliverer performs the HTTP call of a due job.
type Deliverer interface {
	Deliver(ctx context.Context, action types.HTTPAction) error
}

// DeliveryError is returned when the receiving endpoint answers with a non 2xx status.
type DeliveryError struct {
	URL        string
	StatusCode int
	Body       string
}

func (e *DeliveryError) Error() string {
	return fmt.Sprintf("delivery to %s failed with status %d: %s", e.URL, e.StatusCode, e.Body)
}

type HTTPDeliverer struct {
	client *http.Client
	logger zerolog.Logger
}

func NewHTTPDeliverer(client *http.Client, logger zerolog.Logger) *HTTPDeliverer {
	if client == nil {
		client = &http.Client{Timeout: 30 * time.Second}
	}
	return &HTTPDeliverer{client: client, logger: logger}
}

func (d *HTTPDeliverer) Deliver(ctx context.Context, action types.HTTPAction) error {
	method := action.Method
	if method == "" {
		method = http.MethodPost
	}

	req, err := http.NewRequestWithContext(ctx, method, action.URL, strings.NewReader(action.Body))
	if err != nil {
		return fmt.Errorf("failed to build delivery request: %w", err)
	}
	for key, value := range action.AllHeaders() {
		req.Header.Set(key, value)
	}

	metrics.DeliveriesInFlight.Inc()
	start := time.Now()
	resp, err := d.client.Do(req)
	metrics.DeliveriesInFlight.Dec()
	metrics.DeliveryDuration.Observe(time.Since(start).Seconds())
	if err != nil {
		metrics.Deliveries.WithLabelValues("failure").Inc()
		return fmt.Errorf("delivery to %s: %w", action.URL, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, maxErrorBody))
		metrics.Deliveries.WithLabelValues("failure").Inc()
		return &DeliveryError{URL: action.URL, StatusCode: resp.StatusCode, Body: string(body)}
	}

	_, _ = io.Copy(io.Discard, resp.Body)
	metrics.Deliveries.WithLabelValues("success").Inc()
	d.logger.Debug().Str("url", action.URL).Int("status", resp.StatusCode).Dur("took", time.Since(start)).Msg("job delivered")
	return nil
}
