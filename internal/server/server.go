package server

import (
	"context"
	"log/slog"
	"net/http"

	"storefront/internal/config"
	"storefront/internal/handler"
	appmw "storefront/internal/middleware"
	"storefront/internal/model"
	"storefront/internal/service"

	"github.com/labstack/echo/v4"
	"github.com/labstack/echo/v4/middleware"
	"golang.org/x/time/rate"
)

type Server struct {
	echo           *echo.Echo
	cfg            config.Config
	orderHandler   *handler.OrderHandler
	adminHandler   *handler.AdminHandler
	webhookHandler *handler.WebhookHandler
	paypalHandler  *handler.PaypalHandler
}

func NewServer(
	cfg config.Config,
	logger *slog.Logger,
	orderService service.OrderService,
	discountService service.DiscountService,
	reconciliationService service.ReconciliationService,
) *Server {
	e := echo.New()
	e.HideBanner = true
	e.HTTPErrorHandler = handler.HTTPErrorHandler(logger)

	e.Use(middleware.RequestLoggerWithConfig(middleware.RequestLoggerConfig{
		LogStatus:   true,
		LogURI:      true,
		LogMethod:   true,
		LogLatency:  true,
		LogError:    true,
		HandleError: true,
		LogValuesFunc: func(c echo.Context, v middleware.RequestLoggerValues) error {
			attrs := []any{
				"method", v.Method,
				"uri", v.URI,
				"status", v.Status,
				"latency", v.Latency,
			}
			if v.Error != nil {
				logger.Warn("request", append(attrs, "error", v.Error)...)
				return nil
			}
			logger.Info("request", attrs...)
			return nil
		},
	}))
	e.Use(middleware.Recover())
	e.Use(middleware.CORS())

	s := &Server{
		echo:           e,
		cfg:            cfg,
		orderHandler:   handler.NewOrderHandler(orderService, discountService),
		adminHandler:   handler.NewAdminHandler(discountService, orderService),
		webhookHandler: handler.NewWebhookHandler(reconciliationService),
		paypalHandler:  handler.NewPaypalHandler(orderService),
	}

	s.setupRoutes()
	return s
}

func (s *Server) setupRoutes() {
	api := s.echo.Group("/api")

	api.GET("/health", func(c echo.Context) error {
		return c.JSON(http.StatusOK, map[string]string{"status": "ok"})
	})

	auth := appmw.AuthRequired(s.cfg.Auth.JWTSecret)
	api.POST("/orders", s.orderHandler.CreateOrder, auth)
	api.GET("/orders/:id", s.orderHandler.GetOrder, auth)
	api.POST("/vouchers/validate", s.orderHandler.ValidateVoucher, auth)

	// -------- admin --------
	admin := api.Group("/admin", auth, appmw.RoleRequired(model.RoleOwner, model.RoleAdmin))
	admin.POST("/discounts", s.adminHandler.CreateDiscount)
	admin.PUT("/discounts/:id", s.adminHandler.UpdateDiscount)
	admin.PATCH("/orders/:id/status", s.adminHandler.UpdateOrderStatus)

	// -------- provider webhooks / callbacks --------
	limit := rate.Limit(s.cfg.HTTP.WebhookRateLimit)
	webhooks := api.Group("/webhooks", middleware.RateLimiter(middleware.NewRateLimiterMemoryStore(limit)))
	webhooks.POST("/midtrans", s.webhookHandler.Midtrans)
	webhooks.POST("/paypal", s.webhookHandler.Paypal)
	webhooks.POST("/braintree", s.webhookHandler.Braintree)

	api.GET("/paypal/success", s.paypalHandler.HandleSuccess)
}

// Handler exposes the router for tests.
func (s *Server) Handler() http.Handler {
	return s.echo
}

func (s *Server) Start(address string) error {
	return s.echo.Start(address)
}

func (s *Server) Shutdown(ctx context.Context) error {
	return s.echo.Shutdown(ctx)
}
