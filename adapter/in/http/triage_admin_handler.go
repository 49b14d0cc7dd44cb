package http

import (
	"triage_server/core/domain"
	"triage_server/core/port/in"
	"triage_server/pkg/apperr"
	"triage_server/pkg/response"

	"github.com/gofiber/fiber/v2"
)

// AdminHandler exposes pipeline settings and mailbox sync controls.
// The whole group is mounted behind the admin role check.
type AdminHandler struct {
	settings in.SettingsService
	sync     in.SyncService
}

func NewAdminHandler(settings in.SettingsService, sync in.SyncService) *AdminHandler {
	return &AdminHandler{settings: settings, sync: sync}
}

func (h *AdminHandler) Register(router fiber.Router) {
	router.Get("/settings", h.GetSettings)
	router.Put("/settings", h.UpdateSettings)
	router.Get("/mailboxes", h.ListMailboxes)
	router.Post("/mailboxes/reset", h.ResetMailbox)
}

type updateSettingsRequest struct {
	AutosendEnabled     bool                      `json:"autosend_enabled"`
	ConfidenceThreshold float64                   `json:"confidence_threshold"`
	RequireVerification bool                      `json:"require_verification"`
	RetrievalTopN       int                       `json:"retrieval_top_n"`
	MinSimilarity       float64                   `json:"min_similarity"`
	HistoryWindow       int                       `json:"history_window"`
	ForbiddenPhrases    []string                  `json:"forbidden_phrases"`
	RequiredDisclosures map[domain.Intent]string  `json:"required_disclosures"`
}

type resetMailboxRequest struct {
	Mailbox string `json:"mailbox"`
}

func (h *AdminHandler) GetSettings(c *fiber.Ctx) error {
	settings, err := h.settings.Get(c.Context())
	if err != nil {
		return err
	}
	return response.OK(c, settings)
}

func (h *AdminHandler) UpdateSettings(c *fiber.Ctx) error {
	var req updateSettingsRequest
	if err := c.BodyParser(&req); err != nil {
		return err
	}
	updated, err := h.settings.Update(c.Context(), &domain.PipelineSettings{
		AutosendEnabled:     req.AutosendEnabled,
		ConfidenceThreshold: req.ConfidenceThreshold,
		RequireVerification: req.RequireVerification,
		RetrievalTopN:       req.RetrievalTopN,
		MinSimilarity:       req.MinSimilarity,
		HistoryWindow:       req.HistoryWindow,
		ForbiddenPhrases:    req.ForbiddenPhrases,
		RequiredDisclosures: req.RequiredDisclosures,
	}, agentIdentity(c))
	if err != nil {
		return err
	}
	return response.OK(c, updated)
}

func (h *AdminHandler) ListMailboxes(c *fiber.Ctx) error {
	states, err := h.sync.ListMailboxes(c.Context())
	if err != nil {
		return err
	}
	return response.OK(c, states)
}

func (h *AdminHandler) ResetMailbox(c *fiber.Ctx) error {
	var req resetMailboxRequest
	if err := c.BodyParser(&req); err != nil {
		return err
	}
	if req.Mailbox == "" {
		return apperr.MissingField("mailbox")
	}
	if err := h.sync.ResetMailbox(c.Context(), req.Mailbox); err != nil {
		return err
	}
	return response.NoContent(c)
}
