package main

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/delicb/toy-basket/basket"
	"github.com/delicb/toy-basket/config"
	"github.com/delicb/toy-basket/cqrs"
)

func newTestApp(t *testing.T) http.Handler {
	app, _ := newTestAppWithEvents(t)
	return app
}

func newTestAppWithEvents(t *testing.T) (http.Handler, *cqrs.Dispatcher) {
	t.Helper()
	repo := basket.NewInMemoryRepository()
	events := newLocalEvents(zap.NewNop())
	handler := basket.NewCommandHandler(repo, events, cqrs.ExecutorOptions{})
	s := &server{baskets: newLocalClient(handler), reader: repo, logger: zap.NewNop()}
	return newApp(s, &config.ServerConfig{}, zap.NewNop()), events
}

func do(t *testing.T, app http.Handler, method, path, body string) *httptest.ResponseRecorder {
	t.Helper()
	req := httptest.NewRequest(method, path, strings.NewReader(body))
	if body != "" {
		req.Header.Set("Content-Type", "application/json")
	}
	rec := httptest.NewRecorder()
	app.ServeHTTP(rec, req)
	return rec
}

func TestBasketLifecycle(t *testing.T) {
	app := newTestApp(t)
	path := "/api/basket/" + uuid.NewString()

	rec := do(t, app, http.MethodGet, path, "")
	require.Equal(t, http.StatusNotFound, rec.Code)

	rec = do(t, app, http.MethodPut, path, `{"itemId": "apple", "quantity": 2}`)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	receipt := &basket.Receipt{}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), receipt))
	require.Equal(t, 1, receipt.Version)
	require.Equal(t, 2, receipt.Events)

	rec = do(t, app, http.MethodPut, path+"/items", `{"itemId": "apple", "quantity": 5}`)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())

	rec = do(t, app, http.MethodGet, path, "")
	require.Equal(t, http.StatusOK, rec.Code)
	model := &BasketModel{}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), model))
	require.Equal(t, 2, model.Version)
	require.Equal(t, []basket.Line{{ItemID: "apple", Quantity: 5}}, model.Items)

	rec = do(t, app, http.MethodDelete, path+"/clear", "")
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())

	rec = do(t, app, http.MethodGet, path, "")
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), model))
	require.Empty(t, model.Items)
}

func TestErrorStatuses(t *testing.T) {
	app := newTestApp(t)
	path := "/api/basket/" + uuid.NewString()

	for _, tc := range []struct {
		name   string
		method string
		path   string
		body   string
		status int
		code   basket.ErrorCode
	}{
		{"malformed basket id", http.MethodGet, "/api/basket/not-a-uuid", "", http.StatusBadRequest, ""},
		{"missing item id", http.MethodPut, path, `{"quantity": 1}`, http.StatusBadRequest, ""},
		{"zero quantity", http.MethodPut, path, `{"itemId": "apple", "quantity": 0}`, http.StatusBadRequest, basket.CodeInvalidQuantity},
		{"change in missing basket", http.MethodPut, path + "/items", `{"itemId": "apple", "quantity": 1}`, http.StatusNotFound, basket.CodeAggregateNotFound},
		{"clear missing basket", http.MethodDelete, path + "/clear", "", http.StatusNotFound, basket.CodeAggregateNotFound},
	} {
		t.Run(tc.name, func(t *testing.T) {
			rec := do(t, app, tc.method, tc.path, tc.body)
			require.Equal(t, tc.status, rec.Code, rec.Body.String())
			if tc.code != "" {
				reply := basket.ErrorReply{}
				require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &reply))
				require.Equal(t, tc.code, reply.Code)
			}
		})
	}
}

func TestItemNotFound(t *testing.T) {
	app := newTestApp(t)
	path := "/api/basket/" + uuid.NewString()

	rec := do(t, app, http.MethodPut, path, `{"itemId": "apple", "quantity": 1}`)
	require.Equal(t, http.StatusOK, rec.Code)

	rec = do(t, app, http.MethodPut, path+"/items", `{"itemId": "pear", "quantity": 1}`)
	require.Equal(t, http.StatusNotFound, rec.Code)
	reply := basket.ErrorReply{}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &reply))
	require.Equal(t, basket.CodeItemNotFound, reply.Code)
	require.Equal(t, "Item not found with Id: pear", reply.Message)
}

func TestToHTTPError(t *testing.T) {
	he := toHTTPError(cqrs.ConcurrencyConflictErr("B1", 3))
	require.Equal(t, http.StatusConflict, he.Code)

	he = toHTTPError(cqrs.StorageErr("save", http.ErrHandlerTimeout))
	require.Equal(t, http.StatusInternalServerError, he.Code)
	require.Equal(t, http.StatusText(http.StatusInternalServerError), he.Message.(basket.ErrorReply).Message)
}

func TestLocalModePublishesEvents(t *testing.T) {
	app, events := newTestAppWithEvents(t)
	var got []cqrs.EventID
	events.SubscribeAll(func(_ context.Context, ev *cqrs.Event) error {
		got = append(got, ev.EventID)
		return nil
	})
	path := "/api/basket/" + uuid.NewString()

	rec := do(t, app, http.MethodPut, path, `{"itemId": "apple", "quantity": 2}`)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	rec = do(t, app, http.MethodDelete, path+"/clear", "")
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())

	require.Equal(t, []cqrs.EventID{"basket.created", "basket.item.added", "basket.cleared"}, got)
}
