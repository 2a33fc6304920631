package webhooks

import (
	"bytes"
	"context"
	"net/http"
	"net/http/httptest"
	"testing"

	squarewebhook "github.com/glowbook/glowbook-backend/internal/webhooks/square"
)

const squarePayload = `{"event_id":"sq-evt-1","type":"payment.updated","data":{"type":"payment","id":"pay_1","object":{"payment":{"id":"pay_1","status":"COMPLETED","reference_id":"BK-1-00000000"}}}}`

func TestSquareWebhook_SuccessAndIdempotent(t *testing.T) {
	service := &fakeSquareWebhookService{}
	handler := SquareWebhook(service, fakeSquareVerifier{ok: true}, newGuard(t), nil)

	for i := 0; i < 2; i++ {
		rec := serveSquare(handler, "sig")
		if rec.Code != http.StatusOK {
			t.Fatalf("delivery %d: expected 200, got %d (%s)", i, rec.Code, rec.Body.String())
		}
	}
	if service.calls != 1 {
		t.Fatalf("duplicate should not reach the service, got %d calls", service.calls)
	}
	if service.last == nil || service.last.Data.Object.Payment == nil || service.last.Data.Object.Payment.ReferenceID != "BK-1-00000000" {
		t.Fatalf("event not decoded: %+v", service.last)
	}
}

func TestSquareWebhook_InvalidSignature(t *testing.T) {
	service := &fakeSquareWebhookService{}
	handler := SquareWebhook(service, fakeSquareVerifier{ok: false}, newGuard(t), nil)

	rec := serveSquare(handler, "bad")
	if rec.Code != http.StatusBadRequest {
		t.Fatalf("expected 400 for invalid signature, got %d", rec.Code)
	}
	if service.calls != 0 {
		t.Fatalf("service should not be invoked on invalid signature")
	}
}

func TestSquareWebhook_MissingSignature(t *testing.T) {
	handler := SquareWebhook(&fakeSquareWebhookService{}, fakeSquareVerifier{ok: true}, newGuard(t), nil)
	if rec := serveSquare(handler, ""); rec.Code != http.StatusBadRequest {
		t.Fatalf("expected 400 without signature, got %d", rec.Code)
	}
}

func serveSquare(handler http.HandlerFunc, signature string) *httptest.ResponseRecorder {
	req := httptest.NewRequest(http.MethodPost, "/api/v1/webhooks/square", bytes.NewReader([]byte(squarePayload)))
	if signature != "" {
		req.Header.Set("X-Square-Hmacsha256-Signature", signature)
	}
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, req)
	return rec
}

type fakeSquareWebhookService struct {
	calls int
	last  *squarewebhook.SquareWebhookEvent
}

func (f *fakeSquareWebhookService) HandleEvent(_ context.Context, event *squarewebhook.SquareWebhookEvent) error {
	f.calls++
	f.last = event
	return nil
}

type fakeSquareVerifier struct {
	ok bool
}

func (f fakeSquareVerifier) VerifyWebhookSignature([]byte, string) bool {
	return f.ok
}
