package observability

import (
	"context"
	"encoding/json"
	"errors"
	"net/http/httptest"
	"testing"
)

func TestHealthCheckerAggregates(t *testing.T) {
	hc := NewHealthChecker("test")
	hc.RegisterCheck("good", func(ctx context.Context) ComponentHealth {
		return ComponentHealth{Status: HealthStatusOK}
	})

	resp := hc.Check(context.Background())
	if resp.Status != HealthStatusOK {
		t.Errorf("status = %s, want ok", resp.Status)
	}

	hc.RegisterCheck("bad", func(ctx context.Context) ComponentHealth {
		return ComponentHealth{Status: HealthStatusUnhealthy, Message: "down"}
	})
	resp = hc.Check(context.Background())
	if resp.Status != HealthStatusUnhealthy {
		t.Errorf("status = %s, want unhealthy", resp.Status)
	}
	if resp.Checks["bad"].Message != "down" {
		t.Errorf("check message = %q", resp.Checks["bad"].Message)
	}
}

func TestHealthHandlerStatusCodes(t *testing.T) {
	hc := NewHealthChecker("test")
	hc.RegisterCheck("store", UserStoreCheck(func(username string) error { return nil }))

	rec := httptest.NewRecorder()
	hc.Handler()(rec, httptest.NewRequest("GET", "/healthz", nil))
	if rec.Code != 200 {
		t.Fatalf("healthy status code = %d", rec.Code)
	}
	var resp HealthCheckResponse
	if err := json.Unmarshal(rec.Body.Bytes(), &resp); err != nil {
		t.Fatalf("body is not JSON: %v", err)
	}

	hc.RegisterCheck("broken", UserStoreCheck(func(username string) error {
		return errors.New("closed")
	}))
	rec = httptest.NewRecorder()
	hc.Handler()(rec, httptest.NewRequest("GET", "/healthz", nil))
	if rec.Code != 503 {
		t.Errorf("unhealthy status code = %d, want 503", rec.Code)
	}
}

func TestBlobDirCheck(t *testing.T) {
	ok := BlobDirCheck(t.TempDir())(context.Background())
	if ok.Status != HealthStatusOK {
		t.Errorf("existing dir status = %s", ok.Status)
	}
	missing := BlobDirCheck("/does/not/exist")(context.Background())
	if missing.Status != HealthStatusUnhealthy {
		t.Errorf("missing dir status = %s", missing.Status)
	}
}
