package main

import (
	"errors"
	"io"
	"net/http"
	"strconv"
	"time"

	"github.com/labstack/echo/v4"
	"go.uber.org/zap"

	"github.com/sohail-eng/online-cinema/internal/apperrors"
	"github.com/sohail-eng/online-cinema/internal/middleware"
	"github.com/sohail-eng/online-cinema/internal/model"
	"github.com/sohail-eng/online-cinema/internal/services"
)

func registerPaymentRoutes(g *echo.Group, jwtSecret []byte, ps *services.PaymentService, log *zap.Logger) {

	// Webhook must stay public: the processor signs, we verify.
	g.POST("/stripe/webhook/", func(c echo.Context) error {
		payload, err := io.ReadAll(c.Request().Body)
		if err != nil {
			return c.JSON(http.StatusBadRequest, map[string]string{"error": "unreadable payload"})
		}
		sig := c.Request().Header.Get("Stripe-Signature")

		err = ps.HandleWebhook(c.Request().Context(), payload, sig)
		switch {
		case err == nil:
			return c.JSON(http.StatusOK, map[string]string{"status": "ok"})
		case errors.Is(err, apperrors.ErrInvalidSignature), errors.Is(err, apperrors.ErrInvalidPayload):
			return c.JSON(http.StatusBadRequest, map[string]string{"error": err.Error()})
		case errors.Is(err, apperrors.ErrOrderNotFound):
			// A retry cannot conjure the order into existence; acknowledge
			// so the processor stops redelivering, and leave the trail here.
			log.Error("webhook references unknown order", zap.Error(err))
			return c.JSON(http.StatusOK, map[string]string{"status": "ignored"})
		default:
			// Transient failure: a non-2xx makes the processor redeliver.
			log.Error("webhook processing failed", zap.Error(err))
			return c.JSON(http.StatusInternalServerError, map[string]string{"error": "something went wrong"})
		}
	})

	auth := g.Group("", middleware.JWT(jwtSecret))

	auth.POST("/stripe/create_checkout_session/:order_id/", func(c echo.Context) error {
		orderID, err := strconv.ParseInt(c.Param("order_id"), 10, 64)
		if err != nil || orderID <= 0 {
			return c.JSON(http.StatusBadRequest, map[string]string{"error": "invalid order id"})
		}
		url, err := ps.CreateCheckoutSession(c.Request().Context(), actorFromContext(c), orderID)
		if err != nil {
			return httpError(c, err)
		}
		return c.JSON(http.StatusOK, map[string]string{"stripe_payment_url": url})
	})

	auth.GET("/payments/", func(c echo.Context) error {
		offset, _ := strconv.Atoi(c.QueryParam("offset"))
		limit, _ := strconv.Atoi(c.QueryParam("limit"))
		payments, total, err := ps.List(c.Request().Context(), actorFromContext(c), offset, limit)
		if err != nil {
			return httpError(c, err)
		}
		if payments == nil {
			payments = []model.Payment{}
		}
		return c.JSON(http.StatusOK, map[string]interface{}{"payments": payments, "total_items": total})
	})

	auth.GET("/payments/:payment_id/", func(c echo.Context) error {
		paymentID, err := strconv.ParseInt(c.Param("payment_id"), 10, 64)
		if err != nil || paymentID <= 0 {
			return c.JSON(http.StatusBadRequest, map[string]string{"error": "invalid payment id"})
		}
		p, err := ps.Detail(c.Request().Context(), actorFromContext(c), paymentID)
		if err != nil {
			return httpError(c, err)
		}
		return c.JSON(http.StatusOK, p)
	})

	admin := g.Group("/admin", middleware.JWT(jwtSecret), middleware.RequireRole(model.RoleModerator))

	admin.GET("/payments/", func(c echo.Context) error {
		f := model.AdminPaymentFilter{
			UserEmail: c.QueryParam("user_email"),
			Status:    model.PaymentStatus(c.QueryParam("status")),
		}
		f.Offset, _ = strconv.Atoi(c.QueryParam("offset"))
		f.Limit, _ = strconv.Atoi(c.QueryParam("limit"))
		if raw := c.QueryParam("date"); raw != "" {
			t, err := time.Parse(time.RFC3339, raw)
			if err != nil {
				return c.JSON(http.StatusBadRequest, map[string]string{"error": "invalid date, want RFC3339"})
			}
			f.CreatedAfter = &t
		}
		payments, total, err := ps.AdminList(c.Request().Context(), actorFromContext(c), f)
		if err != nil {
			return httpError(c, err)
		}
		if payments == nil {
			payments = []model.Payment{}
		}
		return c.JSON(http.StatusOK, map[string]interface{}{"payments": payments, "total_items": total})
	})

	admin.GET("/payments/:payment_id/", func(c echo.Context) error {
		paymentID, err := strconv.ParseInt(c.Param("payment_id"), 10, 64)
		if err != nil || paymentID <= 0 {
			return c.JSON(http.StatusBadRequest, map[string]string{"error": "invalid payment id"})
		}
		p, err := ps.Detail(c.Request().Context(), actorFromContext(c), paymentID)
		if err != nil {
			return httpError(c, err)
		}
		return c.JSON(http.StatusOK, p)
	})

	admin.POST("/payments/repair/", func(c echo.Context) error {
		repaired, err := ps.RepairPaymentItems(c.Request().Context())
		if err != nil {
			return httpError(c, err)
		}
		return c.JSON(http.StatusOK, map[string]interface{}{"repaired_payments": repaired})
	})
}
