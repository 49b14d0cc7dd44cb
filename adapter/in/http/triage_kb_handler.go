package http

import (
	"triage_server/core/domain"
	"triage_server/core/port/in"
	"triage_server/pkg/apperr"
	"triage_server/pkg/response"

	"github.com/gofiber/fiber/v2"
)

// KBHandler exposes the knowledge-base lifecycle and the learning
// review queue.
type KBHandler struct {
	kb in.KBService
}

func NewKBHandler(kb in.KBService) *KBHandler {
	return &KBHandler{kb: kb}
}

func (h *KBHandler) Register(router fiber.Router) {
	docs := router.Group("/kb/docs")
	docs.Get("/", h.ListDocs)
	docs.Post("/", h.CreateDoc)
	docs.Get("/:id", h.GetDoc)
	docs.Put("/:id", h.UpdateDoc)
	docs.Patch("/:id/status", h.UpdateDocStatus)

	imports := router.Group("/kb/import")
	imports.Get("/", h.ListImportQueue)
	imports.Post("/score", h.ScoreImportQueue)

	proposals := router.Group("/kb/proposals")
	proposals.Get("/", h.ListProposals)
	proposals.Post("/:id/review", h.ReviewProposal)
	proposals.Post("/:id/materialize", h.MaterializeProposal)
}

type docRequest struct {
	Title       string   `json:"title"`
	Body        string   `json:"body"`
	Source      string   `json:"source"`
	IntentTags  []string `json:"intent_tags"`
	ProductTags []string `json:"product_tags"`
	VehicleTags []string `json:"vehicle_tags"`
}

type docStatusRequest struct {
	Status string `json:"status"`
}

type reviewProposalRequest struct {
	Approve bool `json:"approve"`
}

type scoreImportRequest struct {
	Limit int `json:"limit"`
}

func (h *KBHandler) ListDocs(c *fiber.Ctx) error {
	limit, offset := limitOffset(c, 50)
	var status *domain.DocStatus
	if s := c.Query("status"); s != "" {
		parsed, err := parseDocStatus(s)
		if err != nil {
			return err
		}
		status = &parsed
	}
	docs, total, err := h.kb.ListDocs(c.Context(), status, limit, offset)
	if err != nil {
		return err
	}
	return response.OKWithMeta(c, docs, &response.Meta{
		Total:   total,
		HasMore: offset+len(docs) < total,
	})
}

func (h *KBHandler) CreateDoc(c *fiber.Ctx) error {
	var req docRequest
	if err := c.BodyParser(&req); err != nil {
		return err
	}
	if req.Title == "" {
		return apperr.MissingField("title")
	}
	if req.Body == "" {
		return apperr.MissingField("body")
	}
	source := domain.DocSourceManual
	if req.Source != "" {
		source = domain.DocSource(req.Source)
	}
	doc, err := h.kb.CreateDoc(c.Context(), &domain.KBDoc{
		Title:       req.Title,
		Body:        req.Body,
		Source:      source,
		IntentTags:  req.IntentTags,
		ProductTags: req.ProductTags,
		VehicleTags: req.VehicleTags,
	})
	if err != nil {
		return err
	}
	return response.Created(c, doc)
}

func (h *KBHandler) GetDoc(c *fiber.Ctx) error {
	id, err := pathID(c, "id")
	if err != nil {
		return err
	}
	doc, err := h.kb.GetDoc(c.Context(), id)
	if err != nil {
		return err
	}
	return response.OK(c, doc)
}

func (h *KBHandler) UpdateDoc(c *fiber.Ctx) error {
	id, err := pathID(c, "id")
	if err != nil {
		return err
	}
	var req docRequest
	if err := c.BodyParser(&req); err != nil {
		return err
	}
	doc, err := h.kb.UpdateDoc(c.Context(), &domain.KBDoc{
		ID:          id,
		Title:       req.Title,
		Body:        req.Body,
		IntentTags:  req.IntentTags,
		ProductTags: req.ProductTags,
		VehicleTags: req.VehicleTags,
	})
	if err != nil {
		return err
	}
	return response.OK(c, doc)
}

func (h *KBHandler) UpdateDocStatus(c *fiber.Ctx) error {
	id, err := pathID(c, "id")
	if err != nil {
		return err
	}
	var req docStatusRequest
	if err := c.BodyParser(&req); err != nil {
		return err
	}
	status, err := parseDocStatus(req.Status)
	if err != nil {
		return err
	}
	if err := h.kb.UpdateDocStatus(c.Context(), id, status); err != nil {
		return err
	}
	return response.NoContent(c)
}

func (h *KBHandler) ListImportQueue(c *fiber.Ctx) error {
	limit, offset := limitOffset(c, 50)
	docs, total, err := h.kb.ListImportQueue(c.Context(), limit, offset)
	if err != nil {
		return err
	}
	return response.OKWithMeta(c, docs, &response.Meta{
		Total:   total,
		HasMore: offset+len(docs) < total,
	})
}

func (h *KBHandler) ScoreImportQueue(c *fiber.Ctx) error {
	var req scoreImportRequest
	if err := c.BodyParser(&req); err != nil && len(c.Body()) > 0 {
		return err
	}
	if req.Limit <= 0 {
		req.Limit = 100
	}
	scored, err := h.kb.ScoreImportQueue(c.Context(), req.Limit)
	if err != nil {
		return err
	}
	return response.OK(c, fiber.Map{"scored": scored})
}

func (h *KBHandler) ListProposals(c *fiber.Ctx) error {
	limit, offset := limitOffset(c, 50)
	var status *domain.ProposalStatus
	if s := c.Query("status"); s != "" {
		parsed := domain.ProposalStatus(s)
		switch parsed {
		case domain.ProposalPending, domain.ProposalApproved,
			domain.ProposalRejected, domain.ProposalPublished:
		default:
			return apperr.InvalidInput("status", "unknown proposal status")
		}
		status = &parsed
	}
	proposals, total, err := h.kb.ListProposals(c.Context(), status, limit, offset)
	if err != nil {
		return err
	}
	return response.OKWithMeta(c, proposals, &response.Meta{
		Total:   total,
		HasMore: offset+len(proposals) < total,
	})
}

func (h *KBHandler) ReviewProposal(c *fiber.Ctx) error {
	id, err := pathID(c, "id")
	if err != nil {
		return err
	}
	var req reviewProposalRequest
	if err := c.BodyParser(&req); err != nil {
		return err
	}
	if err := h.kb.ReviewProposal(c.Context(), id, req.Approve, agentIdentity(c)); err != nil {
		return err
	}
	return response.NoContent(c)
}

func (h *KBHandler) MaterializeProposal(c *fiber.Ctx) error {
	id, err := pathID(c, "id")
	if err != nil {
		return err
	}
	doc, err := h.kb.MaterializeProposal(c.Context(), id, agentIdentity(c))
	if err != nil {
		return err
	}
	return response.Created(c, doc)
}

func parseDocStatus(s string) (domain.DocStatus, error) {
	switch status := domain.DocStatus(s); status {
	case domain.DocStatusProposed, domain.DocStatusApproved,
		domain.DocStatusPublished, domain.DocStatusRejected:
		return status, nil
	default:
		return "", apperr.InvalidInput("status", "unknown document status")
	}
}
