package handler

import (
	"net/http"

	"storefront/internal/dto"
	"storefront/internal/service"

	"github.com/labstack/echo/v4"
)

type AdminHandler struct {
	discountService service.DiscountService
	orderService    service.OrderService
}

func NewAdminHandler(discountService service.DiscountService, orderService service.OrderService) *AdminHandler {
	return &AdminHandler{
		discountService: discountService,
		orderService:    orderService,
	}
}

func (h *AdminHandler) CreateDiscount(c echo.Context) error {
	ctx := c.Request().Context()

	var req dto.DiscountRequest
	if err := c.Bind(&req); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid req body")
	}

	discount, err := h.discountService.CreateDiscount(ctx, &req)
	if err != nil {
		return err
	}

	return c.JSON(http.StatusCreated, discount)
}

func (h *AdminHandler) UpdateDiscount(c echo.Context) error {
	ctx := c.Request().Context()

	discountID, err := idParam(c, "id")
	if err != nil {
		return err
	}

	var req dto.DiscountRequest
	if err := c.Bind(&req); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid req body")
	}

	discount, err := h.discountService.UpdateDiscount(ctx, discountID, &req)
	if err != nil {
		return err
	}

	return c.JSON(http.StatusOK, discount)
}

func (h *AdminHandler) UpdateOrderStatus(c echo.Context) error {
	ctx := c.Request().Context()

	orderID, err := idParam(c, "id")
	if err != nil {
		return err
	}

	var req dto.UpdateOrderStatusRequest
	if err := c.Bind(&req); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid req body")
	}

	order, err := h.orderService.UpdateOrderStatus(ctx, orderID, req.Status)
	if err != nil {
		return err
	}

	return c.JSON(http.StatusOK, order)
}
