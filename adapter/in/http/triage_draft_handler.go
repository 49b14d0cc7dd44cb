package http

import (
	"triage_server/core/port/in"
	"triage_server/pkg/response"

	"github.com/gofiber/fiber/v2"
)

// DraftHandler exposes the review queue over generated drafts.
type DraftHandler struct {
	drafts in.DraftService
}

func NewDraftHandler(drafts in.DraftService) *DraftHandler {
	return &DraftHandler{drafts: drafts}
}

func (h *DraftHandler) Register(router fiber.Router) {
	router.Get("/threads/:id/drafts", h.ListByThread)

	drafts := router.Group("/drafts")
	drafts.Get("/:id", h.Get)
	drafts.Post("/:id/send", h.Send)
}

type sendDraftRequest struct {
	// FinalText overrides the generated text when the operator edited
	// the draft before sending. Empty sends the draft as generated.
	FinalText string `json:"final_text"`
}

func (h *DraftHandler) ListByThread(c *fiber.Ctx) error {
	id, err := pathID(c, "id")
	if err != nil {
		return err
	}
	limit, _ := limitOffset(c, 20)
	drafts, err := h.drafts.ListByThread(c.Context(), id, limit)
	if err != nil {
		return err
	}
	return response.OK(c, drafts)
}

func (h *DraftHandler) Get(c *fiber.Ctx) error {
	id, err := pathID(c, "id")
	if err != nil {
		return err
	}
	draft, err := h.drafts.Get(c.Context(), id)
	if err != nil {
		return err
	}
	return response.OK(c, draft)
}

func (h *DraftHandler) Send(c *fiber.Ctx) error {
	id, err := pathID(c, "id")
	if err != nil {
		return err
	}
	var req sendDraftRequest
	if err := c.BodyParser(&req); err != nil && len(c.Body()) > 0 {
		return err
	}
	draft, err := h.drafts.Send(c.Context(), id, req.FinalText, agentIdentity(c))
	if err != nil {
		return err
	}
	return response.OK(c, draft)
}
