package controllers

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/glowbook/glowbook-backend/api/middleware"
	"github.com/glowbook/glowbook-backend/internal/checkout"
	"github.com/glowbook/glowbook-backend/internal/validation"
	"github.com/glowbook/glowbook-backend/pkg/db/models"
	"github.com/glowbook/glowbook-backend/pkg/enums"
	pkgerrors "github.com/glowbook/glowbook-backend/pkg/errors"
)

type stubCheckout struct {
	result  *checkout.Result
	err     error
	draft   validation.BookingDraft
	funding validation.FundingDraft
	booking uuid.UUID
	user    uuid.UUID
	calls   int
}

func (s *stubCheckout) CreateBooking(_ context.Context, draft validation.BookingDraft, userID uuid.UUID) (*checkout.Result, error) {
	s.calls++
	s.draft = draft
	s.user = userID
	return s.result, s.err
}

func (s *stubCheckout) RetrySettlement(_ context.Context, bookingID, userID uuid.UUID, draft validation.FundingDraft) (*checkout.Result, error) {
	s.calls++
	s.booking = bookingID
	s.funding = draft
	s.user = userID
	return s.result, s.err
}

func validDraftBody(providerID uuid.UUID) string {
	return `{
		"provider_id": "` + providerID.String() + `",
		"services": [{"offering_id": "` + uuid.NewString() + `", "staff_id": "` + uuid.NewString() + `"}],
		"scheduled_start_at": "2026-11-02T15:00:00Z",
		"location_type": "business_location",
		"payment_method": "card"
	}`
}

func postBooking(t *testing.T, svc checkout.Service, userID string, body string) *httptest.ResponseRecorder {
	t.Helper()
	req := httptest.NewRequest(http.MethodPost, "/api/v1/bookings", strings.NewReader(body))
	if userID != "" {
		req = req.WithContext(middleware.WithUserID(req.Context(), userID))
	}
	resp := httptest.NewRecorder()
	CreateBooking(svc, nil).ServeHTTP(resp, req)
	return resp
}

func TestCreateBookingReturnsCreated(t *testing.T) {
	url := "https://checkout.stripe.test/cs_1"
	booking := &models.Booking{ID: uuid.New(), BookingNumber: "BK-TEST0001", Status: enums.BookingStatusPending}
	svc := &stubCheckout{result: &checkout.Result{Booking: booking, PaymentURL: &url}}
	userID := uuid.New()
	providerID := uuid.New()

	resp := postBooking(t, svc, userID.String(), validDraftBody(providerID))
	require.Equal(t, http.StatusCreated, resp.Code, resp.Body.String())

	var payload struct {
		Data struct {
			Booking    map[string]any `json:"booking"`
			PaymentURL *string        `json:"payment_url"`
		} `json:"data"`
	}
	require.NoError(t, json.Unmarshal(resp.Body.Bytes(), &payload))
	require.NotNil(t, payload.Data.PaymentURL)
	assert.Equal(t, url, *payload.Data.PaymentURL)
	assert.NotEmpty(t, payload.Data.Booking)
	assert.Equal(t, userID, svc.user)
	assert.Equal(t, providerID, svc.draft.ProviderID)
	assert.Len(t, svc.draft.Services, 1)
}

func TestCreateBookingRequiresUser(t *testing.T) {
	svc := &stubCheckout{}
	resp := postBooking(t, svc, "", validDraftBody(uuid.New()))
	assert.Equal(t, http.StatusUnauthorized, resp.Code)
	assert.Zero(t, svc.calls)
}

func TestCreateBookingRejectsInvalidBody(t *testing.T) {
	svc := &stubCheckout{}

	resp := postBooking(t, svc, uuid.NewString(), `{"provider_id": "`+uuid.NewString()+`", "services": []}`)
	assert.Equal(t, http.StatusBadRequest, resp.Code)

	resp = postBooking(t, svc, uuid.NewString(), `{"unknown_field": true}`)
	assert.Equal(t, http.StatusBadRequest, resp.Code)
	assert.Zero(t, svc.calls)
}

func TestCreateBookingMapsErrorKinds(t *testing.T) {
	cases := []struct {
		code   pkgerrors.Code
		status int
	}{
		{pkgerrors.CodeValidation, http.StatusBadRequest},
		{pkgerrors.CodeSlotConflict, http.StatusConflict},
		{pkgerrors.CodeGiftCardInvalid, http.StatusBadRequest},
		{pkgerrors.CodeWalletError, http.StatusBadRequest},
		{pkgerrors.CodePaymentFailed, http.StatusBadRequest},
		{pkgerrors.CodeCreateError, http.StatusInternalServerError},
	}
	for _, tc := range cases {
		svc := &stubCheckout{err: pkgerrors.New(tc.code, "boom")}
		resp := postBooking(t, svc, uuid.NewString(), validDraftBody(uuid.New()))
		require.Equal(t, tc.status, resp.Code, "code %s", tc.code)

		var payload struct {
			Error struct {
				Code string `json:"code"`
			} `json:"error"`
		}
		require.NoError(t, json.Unmarshal(resp.Body.Bytes(), &payload))
		assert.Equal(t, string(tc.code), payload.Error.Code)
	}
}

func postSettle(t *testing.T, svc checkout.Service, userID, bookingID, body string) *httptest.ResponseRecorder {
	t.Helper()
	router := chi.NewRouter()
	router.Post("/api/v1/bookings/{id}/settle", RetrySettlement(svc, nil))
	req := httptest.NewRequest(http.MethodPost, "/api/v1/bookings/"+bookingID+"/settle", strings.NewReader(body))
	if userID != "" {
		req = req.WithContext(middleware.WithUserID(req.Context(), userID))
	}
	resp := httptest.NewRecorder()
	router.ServeHTTP(resp, req)
	return resp
}

func TestRetrySettlementReturnsOK(t *testing.T) {
	booking := &models.Booking{ID: uuid.New(), BookingNumber: "BK-TEST0002", Status: enums.BookingStatusConfirmed}
	svc := &stubCheckout{result: &checkout.Result{Booking: booking}}
	userID := uuid.New()

	resp := postSettle(t, svc, userID.String(), booking.ID.String(), `{"payment_method": "wallet", "use_wallet": true}`)
	require.Equal(t, http.StatusOK, resp.Code, resp.Body.String())
	assert.Equal(t, booking.ID, svc.booking)
	assert.Equal(t, userID, svc.user)
	assert.Equal(t, enums.PaymentMethodWallet, svc.funding.PaymentMethod)
	assert.True(t, svc.funding.UseWallet)
}

func TestRetrySettlementRejectsBadRequests(t *testing.T) {
	svc := &stubCheckout{}

	resp := postSettle(t, svc, "", uuid.NewString(), `{"payment_method": "cash"}`)
	assert.Equal(t, http.StatusUnauthorized, resp.Code)

	resp = postSettle(t, svc, uuid.NewString(), "not-a-uuid", `{"payment_method": "cash"}`)
	assert.Equal(t, http.StatusBadRequest, resp.Code)

	resp = postSettle(t, svc, uuid.NewString(), uuid.NewString(), `{}`)
	assert.Equal(t, http.StatusBadRequest, resp.Code)
	assert.Zero(t, svc.calls)
}

func TestRetrySettlementMapsStateConflict(t *testing.T) {
	svc := &stubCheckout{err: pkgerrors.New(pkgerrors.CodeStateConflict, "booking is not awaiting payment")}
	resp := postSettle(t, svc, uuid.NewString(), uuid.NewString(), `{"payment_method": "cash"}`)
	assert.Equal(t, http.StatusUnprocessableEntity, resp.Code)
}
