package httpx

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/go-chi/chi/v5"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/require"

	"github.com/odyssey-erp/backoffice/internal/shared"
)

func TestStatusFor(t *testing.T) {
	cases := map[error]int{
		shared.Validationf("bad"):                     http.StatusBadRequest,
		&shared.InsufficientStockError{Item: "Flour"}: http.StatusConflict,
		fmt.Errorf("x: %w", shared.ErrNotFound):       http.StatusNotFound,
		shared.Conflictf("twice"):                     http.StatusConflict,
		shared.ErrAuthorization:                       http.StatusForbidden,
		shared.ErrUnauthenticated:                     http.StatusUnauthorized,
		errors.New("connection reset"):                http.StatusInternalServerError,
	}
	for err, want := range cases {
		require.Equal(t, want, StatusFor(err), err.Error())
	}
}

func TestRespondErrorShortage(t *testing.T) {
	rec := httptest.NewRecorder()
	RespondError(rec, &shared.InsufficientStockError{
		ItemID:    4,
		Item:      "Flour",
		Requested: decimal.RequireFromString("10"),
		Available: decimal.RequireFromString("2.5"),
	})
	require.Equal(t, http.StatusConflict, rec.Code)

	var problem ProblemDetail
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &problem))
	require.Equal(t, "insufficient-stock", problem.Type)
	require.NotNil(t, problem.Shortage)
	require.Equal(t, "7.5", problem.Shortage.Shortfall)
	require.Equal(t, int64(4), problem.Shortage.ItemID)
}

func TestRespondErrorHidesInternalDetail(t *testing.T) {
	rec := httptest.NewRecorder()
	RespondError(rec, errors.New("pq: password authentication failed"))
	require.Equal(t, http.StatusInternalServerError, rec.Code)
	require.NotContains(t, rec.Body.String(), "password")
}

func TestDecodeJSONRejectsUnknownFields(t *testing.T) {
	var body struct {
		Name string `json:"name"`
	}
	req := httptest.NewRequest(http.MethodPost, "/", strings.NewReader(`{"name":"x","extra":1}`))
	err := DecodeJSON(req, &body)
	require.ErrorIs(t, err, shared.ErrValidation)
}

func TestIDParam(t *testing.T) {
	r := chi.NewRouter()
	var got int64
	var gotErr error
	r.Get("/items/{id}", func(w http.ResponseWriter, req *http.Request) {
		got, gotErr = IDParam(req, "id")
	})

	r.ServeHTTP(httptest.NewRecorder(), httptest.NewRequest(http.MethodGet, "/items/42", nil))
	require.NoError(t, gotErr)
	require.Equal(t, int64(42), got)

	r.ServeHTTP(httptest.NewRecorder(), httptest.NewRequest(http.MethodGet, "/items/-3", nil))
	require.ErrorIs(t, gotErr, shared.ErrValidation)
}

type lineRequest struct {
	Name      string          `json:"item_name" validate:"required"`
	Quantity  decimal.Decimal `json:"quantity" validate:"dgt0,dplaces=3"`
	UnitPrice decimal.Decimal `json:"unit_price" validate:"dgte0,dplaces=2"`
}

func TestValidatorDecimalTags(t *testing.T) {
	v := NewValidator()

	require.Nil(t, v.Struct(lineRequest{Name: "Oil", Quantity: decimal.RequireFromString("0.5")}))

	fields := v.Struct(lineRequest{Quantity: decimal.Zero, UnitPrice: decimal.RequireFromString("-1")})
	require.Equal(t, map[string]string{
		"item_name":  "is required",
		"quantity":   "must be greater than zero",
		"unit_price": "must not be negative",
	}, fields)
}

func TestValidatorDecimalPlaces(t *testing.T) {
	v := NewValidator()

	require.Nil(t, v.Struct(lineRequest{Name: "Oil", Quantity: decimal.RequireFromString("0.125"), UnitPrice: decimal.RequireFromString("1.500")}))

	fields := v.Struct(lineRequest{Name: "Oil", Quantity: decimal.RequireFromString("0.0004"), UnitPrice: decimal.RequireFromString("0.335")})
	require.Equal(t, map[string]string{
		"quantity":   "must have at most 3 decimal places",
		"unit_price": "must have at most 2 decimal places",
	}, fields)
}
