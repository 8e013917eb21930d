package main

import (
	"errors"
	"net/http"

	"github.com/labstack/echo/v4"

	"github.com/sohail-eng/online-cinema/internal/apperrors"
)

// httpError is the single place service failures become HTTP responses.
// Anything outside the taxonomy is a real unexpected error: logged, and
// answered with a generic message that leaks nothing.
func httpError(c echo.Context, err error) error {
	var status int
	switch {
	case errors.Is(err, apperrors.ErrMovieNotFound),
		errors.Is(err, apperrors.ErrCartNotFound),
		errors.Is(err, apperrors.ErrCartItemNotFound),
		errors.Is(err, apperrors.ErrOrderNotFound),
		errors.Is(err, apperrors.ErrPaymentNotFound):
		status = http.StatusNotFound
	case errors.Is(err, apperrors.ErrPermissionDenied):
		status = http.StatusForbidden
	case errors.Is(err, apperrors.ErrAlreadyOwnedOrStaged),
		errors.Is(err, apperrors.ErrEmptyOrder),
		errors.Is(err, apperrors.ErrInvalidOrderState),
		errors.Is(err, apperrors.ErrInvalidSignature),
		errors.Is(err, apperrors.ErrInvalidPayload),
		errors.Is(err, apperrors.ErrCheckoutCreation):
		status = http.StatusBadRequest
	default:
		c.Logger().Error(err)
		return c.JSON(http.StatusInternalServerError, map[string]string{"error": "something went wrong"})
	}
	return c.JSON(status, map[string]string{"error": err.Error()})
}
