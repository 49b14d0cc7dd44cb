package http

import (
	"time"

	"triage_server/core/domain"
	"triage_server/core/port/in"
	"triage_server/pkg/apperr"
	"triage_server/pkg/response"

	"github.com/gofiber/fiber/v2"
)

// ThreadHandler exposes thread inspection and manual lifecycle actions.
type ThreadHandler struct {
	threads in.ThreadService
}

func NewThreadHandler(threads in.ThreadService) *ThreadHandler {
	return &ThreadHandler{threads: threads}
}

func (h *ThreadHandler) Register(router fiber.Router) {
	threads := router.Group("/threads")
	threads.Get("/", h.List)
	threads.Get("/:id", h.Get)
	threads.Get("/:id/events", h.Events)
	threads.Post("/:id/escalate", h.Escalate)
	threads.Post("/:id/resolve", h.Resolve)
}

// RegisterAdmin attaches the destructive routes, mounted behind the
// admin role check.
func (h *ThreadHandler) RegisterAdmin(router fiber.Router) {
	router.Delete("/threads/:id/events", h.PurgeEvents)
}

type lifecycleActionRequest struct {
	Reason string `json:"reason"`
}

func (h *ThreadHandler) List(c *fiber.Ctx) error {
	filter := &domain.ThreadFilter{}
	filter.Limit, filter.Offset = limitOffset(c, 50)

	if s := c.Query("state"); s != "" {
		state := domain.ThreadState(s)
		filter.State = &state
	}
	if s := c.Query("intent"); s != "" {
		intent := domain.ParseIntent(s)
		filter.Intent = &intent
	}
	if s := c.Query("customer_email"); s != "" {
		filter.CustomerEmail = &s
	}
	if s := c.Query("order_number"); s != "" {
		filter.OrderNumber = &s
	}
	if s := c.Query("updated_after"); s != "" {
		t, err := time.Parse(time.RFC3339, s)
		if err != nil {
			return apperr.InvalidInput("updated_after", "must be RFC3339")
		}
		filter.UpdatedAfter = &t
	}

	threads, total, err := h.threads.List(c.Context(), filter)
	if err != nil {
		return err
	}
	return response.OKWithMeta(c, threads, &response.Meta{
		Total:   total,
		HasMore: filter.Offset+len(threads) < total,
	})
}

func (h *ThreadHandler) Get(c *fiber.Ctx) error {
	id, err := pathID(c, "id")
	if err != nil {
		return err
	}
	detail, err := h.threads.Get(c.Context(), id)
	if err != nil {
		return err
	}
	return response.OK(c, detail)
}

func (h *ThreadHandler) Events(c *fiber.Ctx) error {
	id, err := pathID(c, "id")
	if err != nil {
		return err
	}
	limit, _ := limitOffset(c, 100)
	events, err := h.threads.Events(c.Context(), id, limit)
	if err != nil {
		return err
	}
	return response.OK(c, events)
}

func (h *ThreadHandler) Escalate(c *fiber.Ctx) error {
	id, err := pathID(c, "id")
	if err != nil {
		return err
	}
	var req lifecycleActionRequest
	if err := c.BodyParser(&req); err != nil && len(c.Body()) > 0 {
		return err
	}
	thread, err := h.threads.Escalate(c.Context(), id, req.Reason)
	if err != nil {
		return err
	}
	return response.OK(c, thread)
}

func (h *ThreadHandler) Resolve(c *fiber.Ctx) error {
	id, err := pathID(c, "id")
	if err != nil {
		return err
	}
	var req lifecycleActionRequest
	if err := c.BodyParser(&req); err != nil && len(c.Body()) > 0 {
		return err
	}
	thread, err := h.threads.Resolve(c.Context(), id, req.Reason)
	if err != nil {
		return err
	}
	return response.OK(c, thread)
}

func (h *ThreadHandler) PurgeEvents(c *fiber.Ctx) error {
	id, err := pathID(c, "id")
	if err != nil {
		return err
	}
	deleted, err := h.threads.PurgeEvents(c.Context(), id)
	if err != nil {
		return err
	}
	return response.OK(c, fiber.Map{"deleted": deleted})
}
