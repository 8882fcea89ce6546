package idempotency

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"go.uber.org/zap"

	"github.com/mobilia/backoffice/internal/platform/requestctx"
)

var fixedTime = time.Date(2025, time.March, 3, 9, 0, 0, 0, time.UTC)

func newHandler(store Store, calls *int, status int) http.Handler {
	mw := Middleware(store, WithClock(func() time.Time { return fixedTime }))
	return mw(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		*calls++
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(status)
		_, _ = w.Write([]byte(`{"id":"sp-1"}`))
	}))
}

func post(handler http.Handler, key, body, actor string) *httptest.ResponseRecorder {
	req := httptest.NewRequest(http.MethodPost, "/special-products", strings.NewReader(body))
	if key != "" {
		req.Header.Set("Idempotency-Key", key)
	}
	if actor != "" {
		req = req.WithContext(requestctx.WithActor(req.Context(), actor))
	}
	rr := httptest.NewRecorder()
	handler.ServeHTTP(rr, req)
	return rr
}

func TestMiddlewarePassesThroughWithoutKey(t *testing.T) {
	var calls int
	handler := newHandler(NewMemoryStore(), &calls, http.StatusCreated)

	post(handler, "", `{}`, "staff-1")
	post(handler, "", `{}`, "staff-1")

	if calls != 2 {
		t.Fatalf("expected both requests to run, got %d", calls)
	}
}

func TestMiddlewareReplaysStoredResponse(t *testing.T) {
	var calls int
	handler := newHandler(NewMemoryStore(), &calls, http.StatusCreated)

	first := post(handler, "k-1", `{"name":"Desk"}`, "staff-1")
	second := post(handler, "k-1", `{"name":"Desk"}`, "staff-1")

	if calls != 1 {
		t.Fatalf("expected handler once, got %d", calls)
	}
	if first.Code != http.StatusCreated || second.Code != http.StatusCreated {
		t.Fatalf("unexpected statuses %d / %d", first.Code, second.Code)
	}
	if second.Header().Get(replayHeaderName) != "true" {
		t.Fatalf("expected replay header")
	}
	if second.Body.String() != first.Body.String() {
		t.Fatalf("expected identical body, got %q vs %q", second.Body.String(), first.Body.String())
	}
}

func TestMiddlewareScopesKeysByActor(t *testing.T) {
	var calls int
	handler := newHandler(NewMemoryStore(), &calls, http.StatusCreated)

	post(handler, "k-1", `{}`, "staff-1")
	post(handler, "k-1", `{}`, "staff-2")

	if calls != 2 {
		t.Fatalf("expected separate actors to run separately, got %d", calls)
	}
}

func TestMiddlewareRejectsReusedKeyWithDifferentBody(t *testing.T) {
	var calls int
	handler := newHandler(NewMemoryStore(), &calls, http.StatusCreated)

	post(handler, "k-1", `{"name":"Desk"}`, "staff-1")
	rr := post(handler, "k-1", `{"name":"Chair"}`, "staff-1")

	if rr.Code != http.StatusUnprocessableEntity {
		t.Fatalf("expected 422, got %d", rr.Code)
	}
	var body map[string]any
	if err := json.Unmarshal(rr.Body.Bytes(), &body); err != nil {
		t.Fatalf("decode body: %v", err)
	}
	if body["error"] != "idempotency_key_conflict" {
		t.Fatalf("unexpected error code %v", body["error"])
	}
}

func TestMiddlewareDoesNotStoreServerErrors(t *testing.T) {
	var calls int
	handler := newHandler(NewMemoryStore(), &calls, http.StatusServiceUnavailable)

	post(handler, "k-1", `{}`, "staff-1")
	post(handler, "k-1", `{}`, "staff-1")

	if calls != 2 {
		t.Fatalf("expected retry after server error, got %d", calls)
	}
}

func TestMiddlewareInFlightConflict(t *testing.T) {
	store := NewMemoryStore()
	if _, err := store.Reserve(context.Background(), scopedKey("k-1", "staff-1"), "other", fixedTime, time.Hour); err != nil {
		t.Fatalf("reserve: %v", err)
	}
	var calls int
	handler := newHandler(store, &calls, http.StatusCreated)

	// A different fingerprint conflicts even while in flight.
	if rr := post(handler, "k-1", `{}`, "staff-1"); rr.Code != http.StatusUnprocessableEntity {
		t.Fatalf("expected 422 for mismatched in-flight key, got %d", rr.Code)
	}

	req := httptest.NewRequest(http.MethodPost, "/special-products", strings.NewReader(`{}`))
	fingerprint := requestFingerprint(req, []byte(`{}`))
	if _, err := store.Reserve(context.Background(), scopedKey("k-2", "staff-1"), fingerprint, fixedTime, time.Hour); err != nil {
		t.Fatalf("reserve: %v", err)
	}
	if rr := post(handler, "k-2", `{}`, "staff-1"); rr.Code != http.StatusConflict {
		t.Fatalf("expected 409 for in-flight key, got %d", rr.Code)
	}
	if calls != 0 {
		t.Fatalf("handler should not run, got %d calls", calls)
	}
}

func TestJanitorPurgesExpiredRecords(t *testing.T) {
	store := NewMemoryStore()
	ctx := context.Background()
	_ = store.Complete(ctx, "old", "f", Response{Status: 201}, fixedTime.Add(-2*time.Hour), time.Hour)
	_ = store.Complete(ctx, "fresh", "f", Response{Status: 201}, fixedTime, time.Hour)

	janitor := NewJanitor(store, time.Minute, 10, zap.NewNop())
	janitor.clock = func() time.Time { return fixedTime }
	janitor.sweep(ctx)

	if _, ok := store.records[documentID("old")]; ok {
		t.Fatal("expected expired record to be purged")
	}
	if _, ok := store.records[documentID("fresh")]; !ok {
		t.Fatal("expected fresh record to remain")
	}
}
