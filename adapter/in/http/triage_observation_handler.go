package http

import (
	"triage_server/core/domain"
	"triage_server/core/port/in"
	"triage_server/pkg/apperr"
	"triage_server/pkg/response"

	"github.com/gofiber/fiber/v2"
)

// ObservationHandler exposes human takeover of threads.
type ObservationHandler struct {
	observations in.ObservationService
}

func NewObservationHandler(observations in.ObservationService) *ObservationHandler {
	return &ObservationHandler{observations: observations}
}

func (h *ObservationHandler) Register(router fiber.Router) {
	router.Get("/threads/:id/observations", h.ListByThread)
	router.Post("/threads/:id/observations", h.Enter)
	router.Post("/threads/:id/observations/exit", h.Exit)
}

type exitObservationRequest struct {
	Resolution string                     `json:"resolution"`
	Summary    *domain.ObservationSummary `json:"summary,omitempty"`
}

func (h *ObservationHandler) ListByThread(c *fiber.Ctx) error {
	id, err := pathID(c, "id")
	if err != nil {
		return err
	}
	observations, err := h.observations.ListByThread(c.Context(), id)
	if err != nil {
		return err
	}
	return response.OK(c, observations)
}

func (h *ObservationHandler) Enter(c *fiber.Ctx) error {
	id, err := pathID(c, "id")
	if err != nil {
		return err
	}
	observation, err := h.observations.Enter(c.Context(), id, agentIdentity(c))
	if err != nil {
		return err
	}
	return response.Created(c, observation)
}

func (h *ObservationHandler) Exit(c *fiber.Ctx) error {
	id, err := pathID(c, "id")
	if err != nil {
		return err
	}
	var req exitObservationRequest
	if err := c.BodyParser(&req); err != nil {
		return err
	}
	resolution, err := parseResolution(req.Resolution)
	if err != nil {
		return err
	}
	observation, err := h.observations.Exit(c.Context(), id, resolution, req.Summary)
	if err != nil {
		return err
	}
	return response.OK(c, observation)
}

func parseResolution(s string) (domain.ResolutionClass, error) {
	switch r := domain.ResolutionClass(s); r {
	case domain.ResolutionResolved,
		domain.ResolutionNeedsRule,
		domain.ResolutionManualUnblock,
		domain.ResolutionEscalatedOut,
		domain.ResolutionAbandoned:
		return r, nil
	default:
		return "", apperr.InvalidInput("resolution", "unknown resolution class")
	}
}
