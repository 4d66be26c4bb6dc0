package main

import (
	"net/http"

	"github.com/google/uuid"
	"github.com/labstack/echo/v4"
)

type itemRequest struct {
	ItemID   string `json:"itemId"`
	Quantity int    `json:"quantity"`
}

// Validate checks only shape of the request, quantity rules belong to basket.
func (r *itemRequest) Validate() error {
	if r.ItemID == "" {
		return echo.NewHTTPError(http.StatusBadRequest, "itemId is required")
	}
	return nil
}

func validBasketID(next echo.HandlerFunc) echo.HandlerFunc {
	return func(c echo.Context) error {
		if _, err := uuid.Parse(c.Param("basketId")); err != nil {
			return echo.NewHTTPError(http.StatusBadRequest, "basketId must be a UUID")
		}
		return next(c)
	}
}
