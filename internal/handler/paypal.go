package handler

import (
	"fmt"
	"net/http"

	"storefront/internal/gateway"
	"storefront/internal/service"

	"github.com/labstack/echo/v4"
)

type PaypalHandler struct {
	orderService service.OrderService
}

func NewPaypalHandler(orderService service.OrderService) *PaypalHandler {
	return &PaypalHandler{
		orderService: orderService,
	}
}

// paymentApprovedHTML takes the order reference. The PAID status itself is set
// when PayPal's capture webhook arrives.
const paymentApprovedHTML = `<!DOCTYPE html>
<html lang="en">
<head>
<meta charset="utf-8">
<meta http-equiv="refresh" content="8;url=/">
<title>Payment approved</title>
<style>body{font-family:sans-serif;max-width:32rem;margin:5rem auto;text-align:center}</style>
</head>
<body>
<h2>Payment approved</h2>
<p>Order <strong>%s</strong> is waiting for PayPal to confirm the capture.</p>
<p>You will be sent back to the shop shortly.</p>
</body>
</html>
`

// HandleSuccess is the PayPal return URL. The buyer lands here with the
// approved PayPal order id in ?token=.
func (h *PaypalHandler) HandleSuccess(c echo.Context) error {
	ctx := c.Request().Context()

	paypalOrderID := c.QueryParam("token")
	if paypalOrderID == "" {
		return c.String(http.StatusBadRequest, "missing order token")
	}

	order, err := h.orderService.CapturePaypalOrder(ctx, paypalOrderID)
	if err != nil {
		return err
	}

	return c.HTML(http.StatusOK, fmt.Sprintf(paymentApprovedHTML, gateway.FormatOrderRef(order.ID)))
}
