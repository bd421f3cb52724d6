package handlers

import (
	"io"
	"net/http"

	"github.com/labstack/echo/v4"

	"emi_billing_app/internal/services"
)

// WebhookHandler receives asynchronous gateway deliveries
type WebhookHandler struct {
	payments *services.PaymentService
}

func NewWebhookHandler(payments *services.PaymentService) *WebhookHandler {
	return &WebhookHandler{payments: payments}
}

// HandleWebhook verifies the delivery signature against the raw body and
// dispatches the event. The gateway retries on non-2xx, so anything that
// is verified gets acknowledged even if it could not be applied.
func (h *WebhookHandler) HandleWebhook(c echo.Context) error {
	body, err := io.ReadAll(c.Request().Body)
	if err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "failed to read request body")
	}

	signature := c.Request().Header.Get("X-Razorpay-Signature")

	result, err := h.payments.HandleWebhook(c.Request().Context(), body, signature)
	if err != nil {
		return err
	}

	return c.JSON(http.StatusOK, map[string]interface{}{
		"success": true,
		"data":    result,
	})
}
