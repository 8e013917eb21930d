package main

import (
	"fmt"
	"net/http"
	"strconv"
	"time"

	"github.com/labstack/echo/v4"

	"github.com/sohail-eng/online-cinema/internal/middleware"
	"github.com/sohail-eng/online-cinema/internal/model"
	"github.com/sohail-eng/online-cinema/internal/services"
)

func registerOrderRoutes(g *echo.Group, jwtSecret []byte, os *services.OrderService, ps *services.PaymentService) {
	p := g.Group("", middleware.JWT(jwtSecret))

	p.POST("/order/create/", func(c echo.Context) error {
		order, err := os.Create(c.Request().Context(), actorFromContext(c))
		if err != nil {
			return httpError(c, err)
		}
		return c.Redirect(http.StatusSeeOther, fmt.Sprintf("/orders/%d/", order.OrderID))
	})

	p.GET("/orders/list/", func(c echo.Context) error {
		offset, _ := strconv.Atoi(c.QueryParam("offset"))
		limit, _ := strconv.Atoi(c.QueryParam("limit"))
		orders, total, err := os.List(c.Request().Context(), actorFromContext(c), offset, limit)
		if err != nil {
			return httpError(c, err)
		}
		if orders == nil {
			orders = []model.Order{}
		}
		return c.JSON(http.StatusOK, map[string]interface{}{"orders": orders, "total_items": total})
	})

	p.GET("/orders/:order_id/", func(c echo.Context) error {
		orderID, err := strconv.ParseInt(c.Param("order_id"), 10, 64)
		if err != nil || orderID <= 0 {
			return c.JSON(http.StatusBadRequest, map[string]string{"error": "invalid order id"})
		}
		order, err := os.Detail(c.Request().Context(), actorFromContext(c), orderID)
		if err != nil {
			return httpError(c, err)
		}
		return c.JSON(http.StatusOK, order)
	})

	// Confirm is the checkout entry: it creates the processor session for
	// the order and hands back the redirect URL.
	p.POST("/orders/:order_id/confirm/", func(c echo.Context) error {
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

	p.DELETE("/orders/:order_id/refuse/", func(c echo.Context) error {
		orderID, err := strconv.ParseInt(c.Param("order_id"), 10, 64)
		if err != nil || orderID <= 0 {
			return c.JSON(http.StatusBadRequest, map[string]string{"error": "invalid order id"})
		}
		if err := os.Refuse(c.Request().Context(), actorFromContext(c), orderID); err != nil {
			return httpError(c, err)
		}
		return c.JSON(http.StatusOK, map[string]string{"detail": "order was refused"})
	})

	admin := g.Group("/admin", middleware.JWT(jwtSecret), middleware.RequireRole(model.RoleModerator))

	admin.GET("/orders/", func(c echo.Context) error {
		f := model.AdminOrderFilter{
			UserEmail: c.QueryParam("user_email"),
			Status:    model.OrderStatus(c.QueryParam("status")),
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
		orders, total, err := os.AdminList(c.Request().Context(), actorFromContext(c), f)
		if err != nil {
			return httpError(c, err)
		}
		if orders == nil {
			orders = []model.Order{}
		}
		return c.JSON(http.StatusOK, map[string]interface{}{"orders": orders, "total_items": total})
	})
}
