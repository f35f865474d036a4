package api

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/fleetops/hardpoint/internal/engine"
	"github.com/fleetops/hardpoint/pkg/core"
)

func TestNewClient(t *testing.T) {
	c := NewClient("http://localhost:8080")

	if c == nil {
		t.Fatal("NewClient returned nil")
	}
	if c.baseURL != "http://localhost:8080" {
		t.Errorf("expected baseURL=http://localhost:8080, got %s", c.baseURL)
	}
	if c.httpClient == nil {
		t.Error("httpClient is nil")
	}
}

func TestNewClient_TrimsTrailingSlash(t *testing.T) {
	c := NewClient("http://localhost:8080/")
	if c.baseURL != "http://localhost:8080" {
		t.Errorf("expected trailing slash trimmed, got %s", c.baseURL)
	}
}

func TestHealthcheck_Success(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/health" {
			t.Errorf("expected path /health, got %s", r.URL.Path)
		}
		w.WriteHeader(http.StatusOK)
	}))
	defer server.Close()

	c := NewClient(server.URL)
	if err := c.Healthcheck(context.Background()); err != nil {
		t.Errorf("Healthcheck failed: %v", err)
	}
}

func TestHealthcheck_ServerDown(t *testing.T) {
	server := httptest.NewServer(http.NotFoundHandler())
	url := server.URL
	server.Close()

	c := NewClient(url)
	if err := c.Healthcheck(context.Background()); err == nil {
		t.Error("expected error for unreachable server")
	}
}

func TestHealthcheck_ServerError(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusInternalServerError)
	}))
	defer server.Close()

	c := NewClient(server.URL)
	if err := c.Healthcheck(context.Background()); err == nil {
		t.Error("expected error for 500 response")
	}
}

func TestClient_RoundTrip(t *testing.T) {
	server := httptest.NewServer(newTestHandler(t))
	defer server.Close()

	ctx := context.Background()
	c := NewClient(server.URL)

	m, err := c.CreateMission(ctx, engine.MissionInput{Aircraft: "AC-01", FlightNumber: 42, Date: "2024-01-10"})
	if err != nil {
		t.Fatalf("CreateMission failed: %v", err)
	}

	if _, err := c.Assign(ctx, m.ID, core.P1, AssignBody{LauncherPN: "LX-100", MissilePN: "MX-200"}); err != nil {
		t.Fatalf("Assign failed: %v", err)
	}
	tr, err := c.Fire(ctx, m.ID, core.P1)
	if err != nil {
		t.Fatalf("Fire failed: %v", err)
	}
	if tr.Status != core.StatusFired {
		t.Errorf("expected FIRED, got %s", tr.Status)
	}

	positions, err := c.Loadout(ctx, m.ID)
	if err != nil {
		t.Fatalf("Loadout failed: %v", err)
	}
	if len(positions) != core.PositionCount {
		t.Errorf("expected %d positions, got %d", core.PositionCount, len(positions))
	}

	st, err := c.LauncherStatus(ctx, "LX-100")
	if err != nil {
		t.Fatalf("LauncherStatus failed: %v", err)
	}
	if st.FiringCount != 1 {
		t.Errorf("expected 1 firing, got %d", st.FiringCount)
	}

	tr, err = c.Correct(ctx, m.ID, core.P1, CorrectionBody{Status: core.StatusOnboard, Reason: "declared in error"})
	if err != nil {
		t.Fatalf("Correct failed: %v", err)
	}
	if tr.Status != core.StatusOnboard {
		t.Errorf("expected ONBOARD after correction, got %s", tr.Status)
	}

	fleet, err := c.FleetStatus(ctx)
	if err != nil {
		t.Fatalf("FleetStatus failed: %v", err)
	}
	if len(fleet) != 2 {
		t.Errorf("expected 2 launchers in fleet view, got %d", len(fleet))
	}
}

func TestClient_TypedErrors(t *testing.T) {
	server := httptest.NewServer(newTestHandler(t))
	defer server.Close()

	ctx := context.Background()
	c := NewClient(server.URL)

	_, err := c.CreateMission(ctx, engine.MissionInput{Aircraft: "AC-01", FlightNumber: 1, Date: "2024-01-10"})
	if err != nil {
		t.Fatalf("CreateMission failed: %v", err)
	}

	_, err = c.CreateMission(ctx, engine.MissionInput{Aircraft: "AC-01", FlightNumber: 1, Date: "2024-01-11"})
	if !core.IsKind(err, core.KindConflict) {
		t.Errorf("expected conflict, got %v", err)
	}

	_, err = c.Assign(ctx, 1, core.P13, AssignBody{MissilePN: "MX-200"})
	if !core.IsKind(err, core.KindValidation) {
		t.Errorf("expected validation error, got %v", err)
	}
	var e *core.Error
	if ce, ok := err.(*core.Error); ok {
		e = ce
	}
	if e == nil || e.MissionID != 1 || e.Position != core.P13 {
		t.Errorf("expected mission/position context, got %+v", e)
	}

	_, err = c.LauncherStatus(ctx, "LX-404")
	if !core.IsKind(err, core.KindNotFound) {
		t.Errorf("expected not found, got %v", err)
	}
}

func TestClient_Unreachable(t *testing.T) {
	server := httptest.NewServer(http.NotFoundHandler())
	url := server.URL
	server.Close()

	_, err := NewClient(url).Loadout(context.Background(), 1)
	if !core.IsKind(err, core.KindStore) {
		t.Errorf("expected store error, got %v", err)
	}
}

func TestKindFor(t *testing.T) {
	tests := map[int]core.Kind{
		http.StatusBadRequest:          core.KindValidation,
		http.StatusNotFound:            core.KindNotFound,
		http.StatusConflict:            core.KindConflict,
		http.StatusUnprocessableEntity: core.KindDataIntegrity,
		http.StatusServiceUnavailable:  core.KindStore,
		http.StatusTeapot:              core.KindUnknown,
	}
	for status, want := range tests {
		if got := kindFor(status); got != want {
			t.Errorf("kindFor(%d) = %v, want %v", status, got, want)
		}
	}
}
