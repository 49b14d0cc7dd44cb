package worker

import (
	"context"
	"fmt"

	"triage_server/core/port/out"
	"triage_server/pkg/logger"
)

// CRMSyncProcessor mirrors a stable triage outcome into the CRM.
// Delivery is best effort: failures are logged and the job is treated
// as done, never retried against the triage flow.
type CRMSyncProcessor struct {
	crm     out.CRMPort
	threads out.ThreadRepository
	log     *logger.Logger
}

func NewCRMSyncProcessor(crm out.CRMPort, threads out.ThreadRepository) *CRMSyncProcessor {
	return &CRMSyncProcessor{
		crm:     crm,
		threads: threads,
		log:     logger.Default().WithField("component", "crm_processor"),
	}
}

func (p *CRMSyncProcessor) ProcessSync(ctx context.Context, msg *Message) error {
	if p.crm == nil {
		return nil
	}

	payload, err := ParsePayload[CRMSyncPayload](msg)
	if err != nil {
		return err
	}

	thread, err := p.threads.GetByID(ctx, payload.ThreadID)
	if err != nil || thread == nil {
		p.log.WithThread(payload.ThreadID).WithError(err).Warn("crm sync: thread unavailable")
		return nil
	}

	contact, err := p.crm.UpsertContact(ctx, thread.CustomerEmail, "")
	if err != nil {
		p.log.WithThread(thread.ID).WithError(err).Warn("crm sync: contact upsert failed")
		return nil
	}

	description := fmt.Sprintf("triage outcome: %s (state %s)", payload.Outcome, thread.State)
	ticket, err := p.crm.CreateTicket(ctx, contact.ID, thread.Subject, description)
	if err != nil {
		p.log.WithThread(thread.ID).WithError(err).Warn("crm sync: ticket create failed")
		return nil
	}

	if err := p.crm.LogActivity(ctx, ticket.ID, description); err != nil {
		p.log.WithThread(thread.ID).WithError(err).Warn("crm sync: activity log failed")
	}
	return nil
}
