package main

import (
	"net/http"
	"strconv"

	"github.com/labstack/echo/v4"

	"github.com/sohail-eng/online-cinema/internal/model"
	"github.com/sohail-eng/online-cinema/internal/services"
)

func registerMovieRoutes(g *echo.Group, ms *services.MovieService) {
	p := g.Group("/movies")

	p.GET("/", func(c echo.Context) error {
		offset, _ := strconv.Atoi(c.QueryParam("offset"))
		limit, _ := strconv.Atoi(c.QueryParam("limit"))
		movies, total, err := ms.List(c.Request().Context(), c.QueryParam("search"), offset, limit)
		if err != nil {
			return httpError(c, err)
		}
		if movies == nil {
			movies = []model.Movie{}
		}
		return c.JSON(http.StatusOK, map[string]interface{}{"movies": movies, "total_items": total})
	})

	p.GET("/:movie_id/", func(c echo.Context) error {
		movieID, err := strconv.ParseInt(c.Param("movie_id"), 10, 64)
		if err != nil || movieID <= 0 {
			return c.JSON(http.StatusBadRequest, map[string]string{"error": "invalid movie id"})
		}
		movie, err := ms.Detail(c.Request().Context(), movieID)
		if err != nil {
			return httpError(c, err)
		}
		return c.JSON(http.StatusOK, movie)
	})
}
