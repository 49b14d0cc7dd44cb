package out

import (
	"context"
	"time"
)

// CommerceCustomer is the platform's customer record shape.
type CommerceCustomer struct {
	ID    string `json:"id"`
	Email string `json:"email"`
	Name  string `json:"name"`
}

// CommerceOrder is the platform's order record shape.
type CommerceOrder struct {
	Number        string     `json:"number"`
	CustomerID    string     `json:"customer_id"`
	CustomerEmail string     `json:"customer_email"`
	Status        string     `json:"status"`
	TrackingCode  string     `json:"tracking_code,omitempty"`
	PlacedAt      *time.Time `json:"placed_at,omitempty"`
}

// CommercePort is the e-commerce collaborator boundary.
type CommercePort interface {
	LookupCustomerByEmail(ctx context.Context, email string) (*CommerceCustomer, error)
	LookupOrder(ctx context.Context, orderNumber string) (*CommerceOrder, error)
	ListOrdersByEmail(ctx context.Context, email string, limit int) ([]*CommerceOrder, error)
	// UpdateTracking writes tracking info; the order status may only be
	// advanced after this succeeds.
	UpdateTracking(ctx context.Context, orderNumber, carrier, trackingCode string) error
}
