// Package http contains the Fiber handlers for the operator API.
package http

import (
	"strconv"

	"triage_server/pkg/apperr"

	"github.com/gofiber/fiber/v2"
)

// pathID parses a numeric path parameter.
func pathID(c *fiber.Ctx, name string) (int64, error) {
	id, err := strconv.ParseInt(c.Params(name), 10, 64)
	if err != nil || id <= 0 {
		return 0, apperr.InvalidInput(name, "must be a positive integer")
	}
	return id, nil
}

// agentIdentity returns the acting operator from the JWT locals. The
// email is preferred since audit fields store addresses.
func agentIdentity(c *fiber.Ctx) string {
	if email, ok := c.Locals("agent_email").(string); ok && email != "" {
		return email
	}
	if id, ok := c.Locals("agent_id").(string); ok {
		return id
	}
	return ""
}

func limitOffset(c *fiber.Ctx, defaultLimit int) (int, int) {
	limit := c.QueryInt("limit", defaultLimit)
	if limit <= 0 || limit > 200 {
		limit = defaultLimit
	}
	offset := c.QueryInt("offset", 0)
	if offset < 0 {
		offset = 0
	}
	return limit, offset
}
