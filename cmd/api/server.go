package main

import (
	"context"
	"net/http"

	"github.com/labstack/echo/v4"
	"go.uber.org/zap"

	"github.com/delicb/toy-basket/basket"
)

// basketReader is read side of a basket repository.
type basketReader interface {
	Load(ctx context.Context, id string) (*basket.Basket, bool, error)
}

type server struct {
	baskets basket.Client
	reader  basketReader
	logger  *zap.Logger
}

// BasketModel represents what clients of this API see from basket.
type BasketModel struct {
	ID      string        `json:"id"`
	Version int           `json:"version"`
	Items   []basket.Line `json:"items"`
}

func (s *server) getBasket(c echo.Context) error {
	id := c.Param("basketId")
	b, found, err := s.reader.Load(c.Request().Context(), id)
	if err != nil {
		return err
	}
	if !found {
		return echo.NewHTTPError(http.StatusNotFound, basket.ErrorReply{
			Code:    basket.CodeAggregateNotFound,
			Message: "Aggregate not found with Id: " + id,
		})
	}
	return c.JSON(http.StatusOK, &BasketModel{ID: b.GetID(), Version: b.GetVersion(), Items: b.Items()})
}

func (s *server) addItem(c echo.Context) error {
	request := &itemRequest{}
	if err := (&echo.DefaultBinder{}).BindBody(c, request); err != nil {
		s.logger.Debug("failed to bind body to the request", zap.Error(err))
		return echo.NewHTTPError(http.StatusBadRequest, "malformed request body")
	}
	if err := request.Validate(); err != nil {
		return err
	}

	receipt, err := s.baskets.AddItem(c.Request().Context(), c.Param("basketId"), request.ItemID, request.Quantity)
	if err != nil {
		return err
	}
	return c.JSON(http.StatusOK, receipt)
}

func (s *server) changeQuantity(c echo.Context) error {
	request := &itemRequest{}
	if err := (&echo.DefaultBinder{}).BindBody(c, request); err != nil {
		s.logger.Debug("failed to bind body to the request", zap.Error(err))
		return echo.NewHTTPError(http.StatusBadRequest, "malformed request body")
	}
	if err := request.Validate(); err != nil {
		return err
	}

	receipt, err := s.baskets.ChangeQuantity(c.Request().Context(), c.Param("basketId"), request.ItemID, request.Quantity)
	if err != nil {
		return err
	}
	return c.JSON(http.StatusOK, receipt)
}

func (s *server) clearBasket(c echo.Context) error {
	receipt, err := s.baskets.Clear(c.Request().Context(), c.Param("basketId"))
	if err != nil {
		return err
	}
	return c.JSON(http.StatusOK, receipt)
}

// errorHandler renders domain errors with status matching their code and
// everything else the way echo does.
func errorHandler(log *zap.Logger) echo.HTTPErrorHandler {
	return func(err error, c echo.Context) {
		if c.Response().Committed {
			return
		}
		he, ok := err.(*echo.HTTPError)
		if !ok {
			he = toHTTPError(err)
			if he.Code == http.StatusInternalServerError {
				log.Error("request failed", zap.String("uri", c.Request().RequestURI), zap.Error(err))
			}
		}

		body := he.Message
		if msg, ok := body.(string); ok {
			body = map[string]string{"message": msg}
		}
		var werr error
		if c.Request().Method == http.MethodHead {
			werr = c.NoContent(he.Code)
		} else {
			werr = c.JSON(he.Code, body)
		}
		if werr != nil {
			log.Error("failed to write error response", zap.Error(werr))
		}
	}
}

func toHTTPError(err error) *echo.HTTPError {
	reply := basket.NewErrorReply(err)
	status := http.StatusInternalServerError
	switch reply.Code {
	case basket.CodeAggregateNotFound, basket.CodeItemNotFound:
		status = http.StatusNotFound
	case basket.CodeInvalidQuantity, basket.CodeInvalidCommand:
		status = http.StatusBadRequest
	case basket.CodeConcurrencyConflict:
		status = http.StatusConflict
	default:
		reply.Message = http.StatusText(http.StatusInternalServerError)
	}
	return echo.NewHTTPError(status, reply)
}
