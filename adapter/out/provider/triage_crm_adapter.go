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

	"github.com/goccy/go-json"
)

// CRMConfig holds CRM API configuration.
type CRMConfig struct {
	BaseURL string
	APIKey  string
	Timeout time.Duration
}

// CRMAdapter implements out.CRMPort. Callers treat CRM sync as
// fire-and-forget, so there is no breaker here: a failed call is
// logged upstream and dropped.
type CRMAdapter struct {
	cfg    *CRMConfig
	client *http.Client
}

func NewCRMAdapter(cfg *CRMConfig) *CRMAdapter {
	return &CRMAdapter{
		cfg:    cfg,
		client: httputil.NewOptimizedClient(httputil.CRMClientConfig(cfg.Timeout)),
	}
}

func (a *CRMAdapter) UpsertContact(ctx context.Context, email, name string) (*out.CRMContact, error) {
	body := map[string]string{"email": email}
	if name != "" {
		body["name"] = name
	}

	var contact out.CRMContact
	if err := a.do(ctx, http.MethodPost, "/contacts/upsert", body, &contact); err != nil {
		return nil, err
	}
	return &contact, nil
}

func (a *CRMAdapter) CreateTicket(ctx context.Context, contactID, subject, description string) (*out.CRMTicket, error) {
	body := map[string]string{
		"contact_id":  contactID,
		"subject":     subject,
		"description": description,
	}

	var ticket out.CRMTicket
	if err := a.do(ctx, http.MethodPost, "/tickets", body, &ticket); err != nil {
		return nil, err
	}
	return &ticket, nil
}

func (a *CRMAdapter) LogActivity(ctx context.Context, ticketID, note string) error {
	body := map[string]string{"note": note}
	endpoint := "/tickets/" + url.PathEscape(ticketID) + "/activities"
	return a.do(ctx, http.MethodPost, endpoint, body, nil)
}

func (a *CRMAdapter) do(ctx context.Context, method, endpoint string, body, result any) error {
	data, err := json.Marshal(body)
	if err != nil {
		return fmt.Errorf("failed to marshal request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, method, a.cfg.BaseURL+endpoint, bytes.NewReader(data))
	if err != nil {
		return fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("Authorization", "Bearer "+a.cfg.APIKey)
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Accept", "application/json")

	resp, err := a.client.Do(req)
	if err != nil {
		return apperr.ExternalError("crm", err)
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if err != nil {
		return apperr.ExternalError("crm", err)
	}

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return apperr.ExternalError("crm", fmt.Errorf("status %d: %s", resp.StatusCode, respBody))
	}

	if result == nil || len(respBody) == 0 {
		return nil
	}
	if err := json.Unmarshal(respBody, result); err != nil {
		return apperr.ExternalError("crm", fmt.Errorf("failed to decode response: %w", err))
	}
	return nil
}

var _ out.CRMPort = (*CRMAdapter)(nil)
