package main

import (
	"net/http"
	"strconv"

	"github.com/labstack/echo/v4"

	"github.com/sohail-eng/online-cinema/internal/middleware"
	"github.com/sohail-eng/online-cinema/internal/services"
)

func actorFromContext(c echo.Context) services.Actor {
	cl := middleware.GetClaims(c)
	return services.Actor{ProfileID: cl.ProfileID, Role: cl.Role}
}

// targetCartID reads the optional user_cart_id query parameter used by the
// moderator/admin cart variants.
func targetCartID(c echo.Context) (*int64, error) {
	raw := c.QueryParam("user_cart_id")
	if raw == "" {
		return nil, nil
	}
	id, err := strconv.ParseInt(raw, 10, 64)
	if err != nil || id <= 0 {
		return nil, echo.NewHTTPError(http.StatusBadRequest, "invalid user_cart_id")
	}
	return &id, nil
}

func registerCartRoutes(g *echo.Group, jwtSecret []byte, cs *services.CartService) {
	p := g.Group("/cart")
	p.Use(middleware.JWT(jwtSecret))

	p.POST("/add_item/:movie_id/", func(c echo.Context) error {
		movieID, err := strconv.ParseInt(c.Param("movie_id"), 10, 64)
		if err != nil || movieID <= 0 {
			return c.JSON(http.StatusBadRequest, map[string]string{"error": "invalid movie id"})
		}
		cartID, err := targetCartID(c)
		if err != nil {
			return err
		}
		if err := cs.Add(c.Request().Context(), actorFromContext(c), movieID, cartID); err != nil {
			return httpError(c, err)
		}
		return c.JSON(http.StatusCreated, map[string]string{"detail": "item was successfully added"})
	})

	p.DELETE("/remove_item/:movie_id", func(c echo.Context) error {
		movieID, err := strconv.ParseInt(c.Param("movie_id"), 10, 64)
		if err != nil || movieID <= 0 {
			return c.JSON(http.StatusBadRequest, map[string]string{"error": "invalid movie id"})
		}
		cartID, err := targetCartID(c)
		if err != nil {
			return err
		}
		if err := cs.Remove(c.Request().Context(), actorFromContext(c), movieID, cartID); err != nil {
			return httpError(c, err)
		}
		return c.JSON(http.StatusOK, map[string]string{"detail": "item was removed from the cart"})
	})

	p.GET("/items/", func(c echo.Context) error {
		cartID, err := targetCartID(c)
		if err != nil {
			return err
		}
		resp, err := cs.Items(c.Request().Context(), actorFromContext(c), cartID, c.QueryParam("search"))
		if err != nil {
			return httpError(c, err)
		}
		return c.JSON(http.StatusOK, resp)
	})

	p.GET("/purchased_items/", func(c echo.Context) error {
		cartID, err := targetCartID(c)
		if err != nil {
			return err
		}
		items, err := cs.PurchasedItems(c.Request().Context(), actorFromContext(c), cartID, c.QueryParam("search"))
		if err != nil {
			return httpError(c, err)
		}
		return c.JSON(http.StatusOK, map[string]interface{}{"items": items})
	})
}
