package provider

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"time"

	"triage_server/core/port/out"
	"triage_server/pkg/apperr"
	"triage_server/pkg/httputil"
	"triage_server/pkg/logger"

	"github.com/goccy/go-json"
	"github.com/sony/gobreaker"
)

// CommerceConfig holds e-commerce platform API configuration.
type CommerceConfig struct {
	BaseURL string
	APIKey  string
	Timeout time.Duration
}

// CommerceAdapter implements out.CommercePort against the platform's
// REST API. Lookups hang off the verification path, so the breaker
// keeps a stuck platform from stalling triage cycles.
type CommerceAdapter struct {
	cfg    *CommerceConfig
	client *http.Client
	cb     *gobreaker.CircuitBreaker
}

func NewCommerceAdapter(cfg *CommerceConfig) *CommerceAdapter {
	cbSettings := gobreaker.Settings{
		Name:        "commerce-api",
		MaxRequests: 3,
		Interval:    60 * time.Second,
		Timeout:     30 * time.Second,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			failureRatio := float64(counts.TotalFailures) / float64(counts.Requests)
			return counts.ConsecutiveFailures > 5 ||
				(counts.Requests >= 10 && failureRatio >= 0.6)
		},
		OnStateChange: func(name string, from, to gobreaker.State) {
			logger.Warn("circuit breaker %s: %s -> %s", name, from.String(), to.String())
		},
	}

	return &CommerceAdapter{
		cfg:    cfg,
		client: httputil.NewOptimizedClient(httputil.CommerceClientConfig(cfg.Timeout)),
		cb:     gobreaker.NewCircuitBreaker(cbSettings),
	}
}

func (a *CommerceAdapter) LookupCustomerByEmail(ctx context.Context, email string) (*out.CommerceCustomer, error) {
	endpoint := "/customers?email=" + url.QueryEscape(email)

	var customers []*out.CommerceCustomer
	if err := a.get(ctx, endpoint, &customers); err != nil {
		return nil, err
	}
	if len(customers) == 0 {
		return nil, nil
	}
	return customers[0], nil
}

func (a *CommerceAdapter) LookupOrder(ctx context.Context, orderNumber string) (*out.CommerceOrder, error) {
	var order out.CommerceOrder
	found, err := a.getOptional(ctx, "/orders/"+url.PathEscape(orderNumber), &order)
	if err != nil {
		return nil, err
	}
	if !found {
		return nil, nil
	}
	return &order, nil
}

func (a *CommerceAdapter) ListOrdersByEmail(ctx context.Context, email string, limit int) ([]*out.CommerceOrder, error) {
	if limit <= 0 {
		limit = 10
	}
	endpoint := fmt.Sprintf("/orders?email=%s&limit=%d", url.QueryEscape(email), limit)

	var orders []*out.CommerceOrder
	if err := a.get(ctx, endpoint, &orders); err != nil {
		return nil, err
	}
	return orders, nil
}

func (a *CommerceAdapter) UpdateTracking(ctx context.Context, orderNumber, carrier, trackingCode string) error {
	body := map[string]string{
		"carrier":       carrier,
		"tracking_code": trackingCode,
	}
	return a.do(ctx, http.MethodPut, "/orders/"+url.PathEscape(orderNumber)+"/tracking", body, nil)
}

func (a *CommerceAdapter) get(ctx context.Context, endpoint string, result any) error {
	return a.do(ctx, http.MethodGet, endpoint, nil, result)
}

// getOptional is get with 404 reported as absence instead of an error.
func (a *CommerceAdapter) getOptional(ctx context.Context, endpoint string, result any) (bool, error) {
	err := a.do(ctx, http.MethodGet, endpoint, nil, result)
	if err != nil {
		if apperr.AsAppError(err).Code == apperr.CodeNotFound {
			return false, nil
		}
		return false, err
	}
	return true, nil
}

func (a *CommerceAdapter) do(ctx context.Context, method, endpoint string, body, result any) error {
	var reqBody io.Reader
	if body != nil {
		data, err := json.Marshal(body)
		if err != nil {
			return fmt.Errorf("failed to marshal request: %w", err)
		}
		reqBody = bytes.NewReader(data)
	}

	req, err := http.NewRequestWithContext(ctx, method, a.cfg.BaseURL+endpoint, reqBody)
	if err != nil {
		return fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("Authorization", "Bearer "+a.cfg.APIKey)
	req.Header.Set("Accept", "application/json")
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	respBody, err := a.execute(req)
	if err != nil {
		return err
	}
	if result == nil || len(respBody) == 0 {
		return nil
	}
	if err := json.Unmarshal(respBody, result); err != nil {
		return apperr.ExternalError("commerce", fmt.Errorf("failed to decode response: %w", err))
	}
	return nil
}

func (a *CommerceAdapter) execute(req *http.Request) ([]byte, error) {
	result, err := a.cb.Execute(func() (interface{}, error) {
		resp, err := a.client.Do(req)
		if err != nil {
			return nil, err
		}
		defer resp.Body.Close()

		data, err := io.ReadAll(io.LimitReader(resp.Body, 4<<20))
		if err != nil {
			return nil, err
		}

		switch {
		case resp.StatusCode >= 200 && resp.StatusCode < 300:
			return data, nil
		case resp.StatusCode == http.StatusNotFound:
			// Absence must not trip the breaker.
			return nil, &nonCircuitError{err: apperr.NotFound("commerce resource")}
		case resp.StatusCode >= 400 && resp.StatusCode < 500:
			return nil, &nonCircuitError{
				err: apperr.ExternalError("commerce", fmt.Errorf("status %d: %s", resp.StatusCode, data)),
			}
		default:
			return nil, fmt.Errorf("status %d: %s", resp.StatusCode, data)
		}
	})

	if err != nil {
		if nce, ok := err.(*nonCircuitError); ok {
			return nil, nce.err
		}
		return nil, apperr.ExternalError("commerce", err)
	}
	return result.([]byte), nil
}

var _ out.CommercePort = (*CommerceAdapter)(nil)
