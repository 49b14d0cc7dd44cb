package out

import (
	"context"

	"triage_server/core/domain"
)

// VendorRequestRepository persists outstanding vendor requests.
type VendorRequestRepository interface {
	Create(ctx context.Context, req *domain.VendorRequest) error
	GetByID(ctx context.Context, id int64) (*domain.VendorRequest, error)
	// ListPendingByOrder returns matchable requests for an order.
	ListPendingByOrder(ctx context.Context, orderNumber string) ([]*domain.VendorRequest, error)
	List(ctx context.Context, status *domain.VendorRequestStatus, limit, offset int) ([]*domain.VendorRequest, int, error)
	// AttachResponse records the matched reply and advances status in
	// one statement.
	AttachResponse(ctx context.Context, id int64, data *domain.VendorResponseData, next domain.VendorRequestStatus) error
	UpdateStatus(ctx context.Context, id int64, status domain.VendorRequestStatus) error
}
