package out

import (
	"context"
)

// CRMContact is the CRM's contact shape.
type CRMContact struct {
	ID    string `json:"id"`
	Email string `json:"email"`
	Name  string `json:"name,omitempty"`
}

// CRMTicket is the CRM's ticket shape.
type CRMTicket struct {
	ID        string `json:"id"`
	ContactID string `json:"contact_id"`
	Subject   string `json:"subject"`
	Status    string `json:"status"`
}

// CRMPort is the CRM collaborator boundary. Calls are fire-and-forget
// from the pipeline's perspective: failures are logged, never retried
// inline, and never block triage.
type CRMPort interface {
	UpsertContact(ctx context.Context, email, name string) (*CRMContact, error)
	CreateTicket(ctx context.Context, contactID, subject, description string) (*CRMTicket, error)
	LogActivity(ctx context.Context, ticketID, note string) error
}
