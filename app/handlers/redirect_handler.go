package handlers

import (
	"log"
	"time"

	businessflow "github.com/amirphl/orochi-attribution/business_flow"
	"github.com/gofiber/fiber/v3"
)

// RedirectHandlerInterface defines the public tracked-link endpoint
type RedirectHandlerInterface interface {
	Redirect(c fiber.Ctx) error
}

type RedirectHandler struct {
	flow businessflow.ClickRedirectFlow
}

func NewRedirectHandler(flow businessflow.ClickRedirectFlow) RedirectHandlerInterface {
	return &RedirectHandler{flow: flow}
}

// Redirect records the first click on a tracked link and forwards the user
// @Summary Follow Tracked Link
// @Tags Tracking
// @Param clickId path string true "Click ID"
// @Success 302 {string} string "Redirect"
// @Router /r/{clickId} [get]
func (h *RedirectHandler) Redirect(c fiber.Ctx) error {
	clickID := c.Params("clickId")

	ctx, cancel := createRequestContext(c, "/r/"+clickID, 5*time.Second)
	defer cancel()

	out := h.flow.Resolve(ctx, clickID, clientMetadata(c))
	if out.Result == businessflow.RedirectError {
		log.Printf("redirect %s resolved with error, sending to %s", clickID, out.URL)
	}

	c.Set("Cache-Control", "no-store")
	return c.Redirect().Status(fiber.StatusFound).To(out.URL)
}
