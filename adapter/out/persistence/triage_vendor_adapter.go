package persistence

import (
	"context"
	"database/sql"
	"time"

	"triage_server/core/domain"
	"triage_server/core/port/out"

	"github.com/jmoiron/sqlx"
)

type VendorRequestAdapter struct {
	db *sqlx.DB
}

func NewVendorRequestAdapter(db *sqlx.DB) *VendorRequestAdapter {
	return &VendorRequestAdapter{db: db}
}

type vendorRequestEntity struct {
	ID            int64     `db:"id"`
	OrderNumber   string    `db:"order_number"`
	CustomerEmail string    `db:"customer_email"`
	Vendor        string    `db:"vendor"`
	RequestType   string    `db:"request_type"`
	Status        string    `db:"status"`
	ResponseData  []byte    `db:"response_data"`
	CreatedAt     time.Time `db:"created_at"`
	UpdatedAt     time.Time `db:"updated_at"`
}

func (e *vendorRequestEntity) toDomain() (*domain.VendorRequest, error) {
	r := &domain.VendorRequest{
		ID:            e.ID,
		OrderNumber:   e.OrderNumber,
		CustomerEmail: e.CustomerEmail,
		Vendor:        e.Vendor,
		RequestType:   domain.VendorRequestType(e.RequestType),
		Status:        domain.VendorRequestStatus(e.Status),
		CreatedAt:     e.CreatedAt,
		UpdatedAt:     e.UpdatedAt,
	}
	if err := fromJSON(e.ResponseData, &r.ResponseData); err != nil {
		return nil, err
	}
	return r, nil
}

func (a *VendorRequestAdapter) Create(ctx context.Context, req *domain.VendorRequest) error {
	query := `
		INSERT INTO vendor_requests (order_number, customer_email, vendor, request_type, status)
		VALUES ($1, $2, $3, $4, $5)
		RETURNING id, created_at, updated_at
	`
	return a.db.QueryRowContext(ctx, query,
		req.OrderNumber,
		req.CustomerEmail,
		req.Vendor,
		string(req.RequestType),
		string(req.Status),
	).Scan(&req.ID, &req.CreatedAt, &req.UpdatedAt)
}

func (a *VendorRequestAdapter) GetByID(ctx context.Context, id int64) (*domain.VendorRequest, error) {
	var entity vendorRequestEntity
	if err := a.db.GetContext(ctx, &entity, `SELECT * FROM vendor_requests WHERE id = $1`, id); err != nil {
		if err == sql.ErrNoRows {
			return nil, nil
		}
		return nil, err
	}
	return entity.toDomain()
}

func (a *VendorRequestAdapter) ListPendingByOrder(ctx context.Context, orderNumber string) ([]*domain.VendorRequest, error) {
	var entities []vendorRequestEntity
	query := `
		SELECT * FROM vendor_requests
		WHERE order_number = $1 AND status = 'pending'
		ORDER BY created_at ASC
	`
	if err := a.db.SelectContext(ctx, &entities, query, orderNumber); err != nil {
		return nil, err
	}
	return vendorRequestsToDomain(entities)
}

func (a *VendorRequestAdapter) List(ctx context.Context, status *domain.VendorRequestStatus, limit, offset int) ([]*domain.VendorRequest, int, error) {
	where := ""
	args := []interface{}{}
	if status != nil {
		where = " WHERE status = $1"
		args = append(args, string(*status))
	}

	var total int
	if err := a.db.GetContext(ctx, &total, "SELECT COUNT(*) FROM vendor_requests"+where, args...); err != nil {
		return nil, 0, err
	}

	args = append(args, limit, offset)
	query := "SELECT * FROM vendor_requests" + where +
		" ORDER BY id DESC LIMIT $" + itoa(len(args)-1) + " OFFSET $" + itoa(len(args))

	var entities []vendorRequestEntity
	if err := a.db.SelectContext(ctx, &entities, query, args...); err != nil {
		return nil, 0, err
	}

	requests, err := vendorRequestsToDomain(entities)
	if err != nil {
		return nil, 0, err
	}
	return requests, total, nil
}

func (a *VendorRequestAdapter) AttachResponse(ctx context.Context, id int64, data *domain.VendorResponseData, next domain.VendorRequestStatus) error {
	response, err := toJSON(data)
	if err != nil {
		return err
	}
	query := `
		UPDATE vendor_requests SET
			response_data = $1,
			status = $2,
			updated_at = NOW()
		WHERE id = $3 AND status = 'pending'
	`
	_, err = a.db.ExecContext(ctx, query, response, string(next), id)
	return err
}

func (a *VendorRequestAdapter) UpdateStatus(ctx context.Context, id int64, status domain.VendorRequestStatus) error {
	query := `UPDATE vendor_requests SET status = $1, updated_at = NOW() WHERE id = $2`
	_, err := a.db.ExecContext(ctx, query, string(status), id)
	return err
}

func vendorRequestsToDomain(entities []vendorRequestEntity) ([]*domain.VendorRequest, error) {
	requests := make([]*domain.VendorRequest, len(entities))
	for i := range entities {
		r, err := entities[i].toDomain()
		if err != nil {
			return nil, err
		}
		requests[i] = r
	}
	return requests, nil
}

var _ out.VendorRequestRepository = (*VendorRequestAdapter)(nil)
