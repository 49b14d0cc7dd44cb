package verify

import (
	"context"
	"errors"
	"testing"
	"time"

	"triage_server/core/domain"
	"triage_server/core/port/out"
)

type fakeCommerce struct {
	customers map[string]*out.CommerceCustomer
	orders    map[string]*out.CommerceOrder
	recent    map[string][]*out.CommerceOrder
	fail      bool
}

func (f *fakeCommerce) LookupCustomerByEmail(_ context.Context, email string) (*out.CommerceCustomer, error) {
	if f.fail {
		return nil, errors.New("commerce unavailable")
	}
	return f.customers[email], nil
}

func (f *fakeCommerce) LookupOrder(_ context.Context, number string) (*out.CommerceOrder, error) {
	if f.fail {
		return nil, errors.New("commerce unavailable")
	}
	return f.orders[number], nil
}

func (f *fakeCommerce) ListOrdersByEmail(_ context.Context, email string, limit int) ([]*out.CommerceOrder, error) {
	if f.fail {
		return nil, errors.New("commerce unavailable")
	}
	orders := f.recent[email]
	if len(orders) > limit {
		orders = orders[:limit]
	}
	return orders, nil
}

func (f *fakeCommerce) UpdateTracking(context.Context, string, string, string) error {
	return nil
}

type fakeThreads struct {
	out.ThreadRepository
	status      domain.VerificationStatus
	customerID  *string
	orderNumber *string
}

func (f *fakeThreads) UpdateVerification(_ context.Context, _ int64, status domain.VerificationStatus, customerID, orderNumber *string) error {
	f.status = status
	f.customerID = customerID
	f.orderNumber = orderNumber
	return nil
}

func testThread() *domain.Thread {
	return &domain.Thread{ID: 7, CustomerEmail: "kim@example.com"}
}

func TestVerifyMatchesCustomerAndOrder(t *testing.T) {
	placed := time.Now().Add(-72 * time.Hour)
	commerce := &fakeCommerce{
		customers: map[string]*out.CommerceCustomer{
			"kim@example.com": {ID: "cust-1", Email: "kim@example.com", Name: "Kim"},
		},
		orders: map[string]*out.CommerceOrder{
			"4093": {Number: "4093", CustomerID: "cust-1", Status: "shipped", TrackingCode: "TRK99", PlacedAt: &placed},
		},
	}
	threads := &fakeThreads{}
	v := NewVerifier(commerce, threads)

	thread := testThread()
	ctx, err := v.Verify(context.Background(), thread, "Where is order #4093", "still waiting")
	if err != nil {
		t.Fatalf("Verify: %v", err)
	}
	if !ctx.Verified {
		t.Fatal("expected verified context")
	}
	if ctx.OrderNumber != "4093" || ctx.TrackingCode != "TRK99" {
		t.Fatalf("unexpected order linkage: %+v", ctx)
	}
	if threads.status != domain.VerificationVerified {
		t.Fatalf("persisted status = %s", threads.status)
	}
	if threads.orderNumber == nil || *threads.orderNumber != "4093" {
		t.Fatal("order number not persisted")
	}
	if thread.Verification != domain.VerificationVerified {
		t.Fatal("thread not updated in place")
	}
}

func TestVerifyRejectsOrderOwnedByAnotherCustomer(t *testing.T) {
	commerce := &fakeCommerce{
		customers: map[string]*out.CommerceCustomer{
			"kim@example.com": {ID: "cust-1", Email: "kim@example.com"},
		},
		orders: map[string]*out.CommerceOrder{
			"4093": {Number: "4093", CustomerID: "cust-2", Status: "shipped"},
		},
	}
	threads := &fakeThreads{}
	v := NewVerifier(commerce, threads)

	ctx, err := v.Verify(context.Background(), testThread(), "order #4093", "")
	if err != nil {
		t.Fatalf("Verify: %v", err)
	}
	if !ctx.Verified {
		t.Fatal("customer match should still verify identity")
	}
	if ctx.OrderNumber != "" {
		t.Fatalf("order owned by another customer must not link, got %s", ctx.OrderNumber)
	}
}

func TestVerifyWithoutCommercePlatform(t *testing.T) {
	threads := &fakeThreads{}
	v := NewVerifier(nil, threads)

	result, err := v.Verify(context.Background(), testThread(), "Where is order #4093", "any update?")
	if err != nil {
		t.Fatalf("Verify: %v", err)
	}
	if result.Verified {
		t.Fatal("no commerce platform must never verify")
	}
	if threads.status != domain.VerificationUnverified {
		t.Fatalf("persisted status = %s", threads.status)
	}
}

func TestVerifyUnknownCustomer(t *testing.T) {
	commerce := &fakeCommerce{customers: map[string]*out.CommerceCustomer{}}
	threads := &fakeThreads{}
	v := NewVerifier(commerce, threads)

	ctx, err := v.Verify(context.Background(), testThread(), "hello", "no order here")
	if err != nil {
		t.Fatalf("Verify: %v", err)
	}
	if ctx.Verified {
		t.Fatal("unknown sender must stay unverified")
	}
	if threads.status != domain.VerificationUnverified {
		t.Fatalf("persisted status = %s", threads.status)
	}
}

func TestVerifyDegradesOnCommerceFailure(t *testing.T) {
	commerce := &fakeCommerce{fail: true}
	threads := &fakeThreads{}
	v := NewVerifier(commerce, threads)

	ctx, err := v.Verify(context.Background(), testThread(), "order #4093", "")
	if err != nil {
		t.Fatalf("lookup failure must not error the pipeline: %v", err)
	}
	if ctx.Verified {
		t.Fatal("failed lookup must not verify")
	}
	if threads.status != domain.VerificationFailed {
		t.Fatalf("persisted status = %s", threads.status)
	}
}

func TestVerifyFallsBackToRecentOrder(t *testing.T) {
	commerce := &fakeCommerce{
		customers: map[string]*out.CommerceCustomer{
			"kim@example.com": {ID: "cust-1", Email: "kim@example.com"},
		},
		recent: map[string][]*out.CommerceOrder{
			"kim@example.com": {{Number: "5511", CustomerID: "cust-1", Status: "processing"}},
		},
	}
	threads := &fakeThreads{}
	v := NewVerifier(commerce, threads)

	ctx, err := v.Verify(context.Background(), testThread(), "where is my stuff", "no number mentioned")
	if err != nil {
		t.Fatalf("Verify: %v", err)
	}
	if ctx.OrderNumber != "5511" {
		t.Fatalf("expected recent order fallback, got %q", ctx.OrderNumber)
	}
}
