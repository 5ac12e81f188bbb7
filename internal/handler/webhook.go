package handler

import (
	"io"
	"net/http"

	"storefront/internal/dto"
	"storefront/internal/gateway"
	"storefront/internal/model"
	"storefront/internal/service"

	"github.com/labstack/echo/v4"
)

// webhook bodies are small; anything larger is not from a provider
const maxWebhookBody = 1 << 20

type WebhookHandler struct {
	reconciliationService service.ReconciliationService
}

func NewWebhookHandler(reconciliationService service.ReconciliationService) *WebhookHandler {
	return &WebhookHandler{
		reconciliationService: reconciliationService,
	}
}

func (h *WebhookHandler) Midtrans(c echo.Context) error {
	return h.handle(c, model.ProviderMidtrans)
}

func (h *WebhookHandler) Paypal(c echo.Context) error {
	return h.handle(c, model.ProviderPaypal)
}

func (h *WebhookHandler) Braintree(c echo.Context) error {
	return h.handle(c, model.ProviderBraintree)
}

// handle passes the raw body on untouched; signatures are computed over it.
func (h *WebhookHandler) handle(c echo.Context, provider model.PaymentProvider) error {
	ctx := c.Request().Context()

	body, err := io.ReadAll(io.LimitReader(c.Request().Body, maxWebhookBody))
	if err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "unreadable body")
	}

	outcome, err := h.reconciliationService.HandleNotification(ctx, provider, &gateway.InboundNotification{
		Headers: c.Request().Header.Clone(),
		Body:    body,
	})
	if err != nil {
		return err
	}

	return c.JSON(http.StatusOK, dto.WebhookAck{Message: outcome.Message})
}
