// Package verify grounds a conversation in the commerce platform's
// customer and order records.
package verify

import (
	"context"

	"triage_server/core/domain"
	"triage_server/core/port/out"
	"triage_server/pkg/logger"
)

// Verifier looks up customer identity and order linkage. Lookup
// failures degrade to unverified; the pipeline never blocks on the
// commerce platform.
type Verifier struct {
	commerce out.CommercePort
	threads  out.ThreadRepository
	log      *logger.Logger
}

func NewVerifier(commerce out.CommercePort, threads out.ThreadRepository) *Verifier {
	return &Verifier{
		commerce: commerce,
		threads:  threads,
		log:      logger.Default().WithField("component", "verifier"),
	}
}

// Verify matches the sender against the commerce platform and, when an
// order token is present in the message, checks the order belongs to
// that customer. The result shape is the only contract: a verified
// flag, the customer id and order linkage.
func (v *Verifier) Verify(ctx context.Context, thread *domain.Thread, subject, body string) (*domain.CustomerContext, error) {
	result := &domain.CustomerContext{}

	// No commerce platform configured: everything stays unverified and
	// the gate keeps verification-required intents off autosend.
	if v.commerce == nil {
		v.persist(ctx, thread, domain.VerificationUnverified, result)
		return result, nil
	}

	customer, err := v.commerce.LookupCustomerByEmail(ctx, thread.CustomerEmail)
	if err != nil {
		v.log.WithThread(thread.ID).WithError(err).Warn("customer lookup failed, treating as unverified")
		v.persist(ctx, thread, domain.VerificationFailed, result)
		return result, nil
	}
	if customer == nil {
		v.persist(ctx, thread, domain.VerificationUnverified, result)
		return result, nil
	}

	result.Verified = true
	result.CustomerID = customer.ID
	result.CustomerName = customer.Name

	tokens := domain.ExtractOrderTokens(subject, body)
	for _, token := range tokens {
		order, err := v.commerce.LookupOrder(ctx, token)
		if err != nil {
			v.log.WithThread(thread.ID).WithError(err).Warn("order lookup failed for %s", token)
			continue
		}
		if order == nil || order.CustomerID != customer.ID {
			continue
		}
		result.OrderNumber = order.Number
		result.OrderStatus = order.Status
		result.TrackingCode = order.TrackingCode
		result.OrderedAt = order.PlacedAt
		break
	}

	// No token in the message: fall back to the customer's most recent
	// order so ORDER_STATUS drafts have something to ground on.
	if result.OrderNumber == "" && len(tokens) == 0 {
		orders, err := v.commerce.ListOrdersByEmail(ctx, thread.CustomerEmail, 1)
		if err != nil {
			v.log.WithThread(thread.ID).WithError(err).Warn("recent order lookup failed")
		} else if len(orders) > 0 {
			result.OrderNumber = orders[0].Number
			result.OrderStatus = orders[0].Status
			result.TrackingCode = orders[0].TrackingCode
			result.OrderedAt = orders[0].PlacedAt
		}
	}

	v.persist(ctx, thread, domain.VerificationVerified, result)
	return result, nil
}

func (v *Verifier) persist(ctx context.Context, thread *domain.Thread, status domain.VerificationStatus, result *domain.CustomerContext) {
	var customerID, orderNumber *string
	if result.CustomerID != "" {
		customerID = &result.CustomerID
	}
	if result.OrderNumber != "" {
		orderNumber = &result.OrderNumber
	}
	if err := v.threads.UpdateVerification(ctx, thread.ID, status, customerID, orderNumber); err != nil {
		v.log.WithThread(thread.ID).WithError(err).Error("failed to persist verification")
		return
	}
	thread.Verification = status
	thread.CustomerID = customerID
	thread.OrderNumber = orderNumber
}
