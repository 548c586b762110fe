package http

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"

	"go.uber.org/zap"

	"mobbi-manager/internal/audit"
	stationsapp "mobbi-manager/internal/stations/application"
	stations "mobbi-manager/internal/stations/domain"
	"mobbi-manager/internal/stations/infrastructure/memory"
)

type recordingAudit struct {
	mu      sync.Mutex
	entries []audit.Entry
}

func (a *recordingAudit) Log(ctx context.Context, entry audit.Entry) error {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.entries = append(a.entries, entry)
	return nil
}

func (a *recordingAudit) actions() []string {
	a.mu.Lock()
	defer a.mu.Unlock()
	out := make([]string, 0, len(a.entries))
	for _, entry := range a.entries {
		out = append(out, entry.Action)
	}
	return out
}

type fakeReleaser struct {
	fail map[string]bool
}

func (f *fakeReleaser) ReleaseDevices(ctx context.Context, serials []string) (stations.ReleaseReport, error) {
	report := stations.ReleaseReport{BatchID: "batch-http"}
	for _, serial := range serials {
		ok := !f.fail[serial]
		outcome := stations.ReleaseOutcome{SerialNumber: serial, VenueMoved: ok, MerchantReset: ok}
		if !ok {
			outcome.Errors = []string{"merchant: 502"}
		}
		report.Outcomes = append(report.Outcomes, outcome)
	}
	return report, nil
}

type testServer struct {
	store    *memory.Store
	audit    *recordingAudit
	releaser *fakeReleaser
	mux      *http.ServeMux
}

func newTestServer(t *testing.T, token string) *testServer {
	t.Helper()
	store := memory.NewStore()
	store.PutModel(stations.StationModel{ID: "m1", Name: "Tower", Active: true})
	store.PutColor(stations.StationColor{ID: "c1", Name: "Black"})
	if err := store.Areas().Save(context.Background(), &stations.Area{ID: "area-1", Name: "Torino", Region: "Piemonte", StationBudget: 5}); err != nil {
		t.Fatalf("save area: %v", err)
	}

	logger := zap.NewNop()
	reconciler, err := stationsapp.NewReconciler(store.Areas(), store.Partners(), store.Catalog())
	if err != nil {
		t.Fatalf("new reconciler: %v", err)
	}
	releaser := &fakeReleaser{fail: map[string]bool{}}
	sequencer, err := stationsapp.NewSequencer(store.Partners(), store.Contacts(), releaser, stationsapp.SequencerConfig{APIToken: token})
	if err != nil {
		t.Fatalf("new sequencer: %v", err)
	}
	partners, err := stationsapp.NewPartnerService(store.Areas(), store.Partners(), store.Contacts(), store.Catalog(), logger)
	if err != nil {
		t.Fatalf("new partner service: %v", err)
	}
	areas, err := stationsapp.NewAreaService(store.Areas(), store.Partners(), logger)
	if err != nil {
		t.Fatalf("new area service: %v", err)
	}

	recorder := &recordingAudit{}
	partnerHandler, err := NewPartnerHandler(reconciler, sequencer, partners, recorder, logger)
	if err != nil {
		t.Fatalf("new partner handler: %v", err)
	}
	areaHandler, err := NewAreaHandler(areas, partners, reconciler, recorder, logger)
	if err != nil {
		t.Fatalf("new area handler: %v", err)
	}
	mux := http.NewServeMux()
	mux.Handle("/api/v1/partners", partnerHandler)
	mux.Handle("/api/v1/partners/", partnerHandler)
	mux.Handle("/api/v1/areas", areaHandler)
	mux.Handle("/api/v1/areas/", areaHandler)
	return &testServer{store: store, audit: recorder, releaser: releaser, mux: mux}
}

func (s *testServer) do(t *testing.T, method, path string, body any) *httptest.ResponseRecorder {
	t.Helper()
	var reader *bytes.Reader
	if body != nil {
		payload, err := json.Marshal(body)
		if err != nil {
			t.Fatalf("marshal: %v", err)
		}
		reader = bytes.NewReader(payload)
	} else {
		reader = bytes.NewReader(nil)
	}
	req := httptest.NewRequest(method, path, reader)
	rec := httptest.NewRecorder()
	s.mux.ServeHTTP(rec, req)
	return rec
}

func (s *testServer) createPartner(t *testing.T, id string) {
	t.Helper()
	rec := s.do(t, http.MethodPost, "/api/v1/partners", map[string]any{"id": id, "name": "Bar " + id, "area_id": "area-1"})
	if rec.Code != http.StatusCreated {
		t.Fatalf("create partner %s: %d %s", id, rec.Code, rec.Body.String())
	}
}

func decodeError(t *testing.T, rec *httptest.ResponseRecorder) errorBody {
	t.Helper()
	var body errorBody
	if err := json.NewDecoder(rec.Body).Decode(&body); err != nil {
		t.Fatalf("decode error body: %v", err)
	}
	return body
}

func TestPartnerHandler_CreateAndGet(t *testing.T) {
	s := newTestServer(t, "token")
	s.createPartner(t, "P1")

	rec := s.do(t, http.MethodGet, "/api/v1/partners/P1", nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rec.Code)
	}
	var view partnerView
	if err := json.NewDecoder(rec.Body).Decode(&view); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if view.ID != "P1" || view.AreaID != "area-1" || view.AllocatedStations == nil {
		t.Fatalf("unexpected view: %+v", view)
	}

	rec = s.do(t, http.MethodPost, "/api/v1/partners", map[string]any{"id": "P1", "name": "dup", "area_id": "area-1"})
	if rec.Code != http.StatusConflict {
		t.Fatalf("expected 409 for duplicate, got %d", rec.Code)
	}
}

func TestPartnerHandler_NotFound(t *testing.T) {
	s := newTestServer(t, "token")
	rec := s.do(t, http.MethodGet, "/api/v1/partners/missing", nil)
	if rec.Code != http.StatusNotFound {
		t.Fatalf("expected 404, got %d", rec.Code)
	}
	if body := decodeError(t, rec); body.Code != "partner_not_found" {
		t.Fatalf("unexpected code %q", body.Code)
	}
}

func TestPartnerHandler_AllocateAndBudgetExceeded(t *testing.T) {
	s := newTestServer(t, "token")
	s.createPartner(t, "P1")
	s.createPartner(t, "P2")

	rec := s.do(t, http.MethodPost, "/api/v1/partners/P1/allocation", map[string]any{
		"grants": []map[string]any{{"model_id": "m1", "color_id": "c1", "quantity": 4}},
	})
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d %s", rec.Code, rec.Body.String())
	}
	var result stationsapp.AllocationResult
	if err := json.NewDecoder(rec.Body).Decode(&result); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if result.AvailableBefore != 5 || result.AvailableAfter != 1 || result.Status != stations.StatusAllocated {
		t.Fatalf("unexpected result: %+v", result)
	}

	rec = s.do(t, http.MethodPost, "/api/v1/partners/P2/allocation", map[string]any{
		"grants": []map[string]any{{"model_id": "m1", "color_id": "c1", "quantity": 2}},
	})
	if rec.Code != http.StatusConflict {
		t.Fatalf("expected 409, got %d", rec.Code)
	}
	body := decodeError(t, rec)
	if body.Code != "budget_exceeded" {
		t.Fatalf("unexpected code %q", body.Code)
	}
	if body.Details["requested"] != float64(2) || body.Details["available"] != float64(1) {
		t.Fatalf("unexpected details: %+v", body.Details)
	}

	rec = s.do(t, http.MethodPost, "/api/v1/partners/P1/allocation", map[string]any{
		"grants": []map[string]any{{"model_id": "m1", "color_id": "c1", "quantity": 1}},
	})
	if body := decodeError(t, rec); rec.Code != http.StatusConflict || body.Code != "already_allocated" {
		t.Fatalf("expected already_allocated, got %d %q", rec.Code, body.Code)
	}

	actions := strings.Join(s.audit.actions(), ",")
	if actions != "partner.create,partner.create,partner.allocate" {
		t.Fatalf("unexpected audit trail: %s", actions)
	}
}

func TestPartnerHandler_AllocateInvalidGrant(t *testing.T) {
	s := newTestServer(t, "token")
	s.createPartner(t, "P1")

	rec := s.do(t, http.MethodPost, "/api/v1/partners/P1/allocation", map[string]any{
		"grants": []map[string]any{{"model_id": "m1", "color_id": "c1", "quantity": 0}},
	})
	if rec.Code != http.StatusBadRequest {
		t.Fatalf("expected 400, got %d", rec.Code)
	}
	if body := decodeError(t, rec); body.Code != "invalid_grant" {
		t.Fatalf("unexpected code %q", body.Code)
	}
}

func allocateWithSerials(t *testing.T, s *testServer, partnerID string, serials ...string) {
	t.Helper()
	rec := s.do(t, http.MethodPost, "/api/v1/partners/"+partnerID+"/allocation", map[string]any{
		"grants": []map[string]any{{"model_id": "m1", "color_id": "c1", "quantity": len(serials), "serial_numbers": serials}},
	})
	if rec.Code != http.StatusOK {
		t.Fatalf("allocate %s: %d %s", partnerID, rec.Code, rec.Body.String())
	}
}

func TestPartnerHandler_DeleteReleasesDevices(t *testing.T) {
	s := newTestServer(t, "token")
	s.createPartner(t, "P1")
	allocateWithSerials(t, s, "P1", "S1", "S2")

	rec := s.do(t, http.MethodDelete, "/api/v1/partners/P1", nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d %s", rec.Code, rec.Body.String())
	}
	rec = s.do(t, http.MethodGet, "/api/v1/partners/P1", nil)
	if rec.Code != http.StatusNotFound {
		t.Fatalf("expected partner gone, got %d", rec.Code)
	}
}

func TestPartnerHandler_DeletePartialReleaseFailure(t *testing.T) {
	s := newTestServer(t, "token")
	s.createPartner(t, "P1")
	allocateWithSerials(t, s, "P1", "S1", "S2")
	s.releaser.fail["S2"] = true

	rec := s.do(t, http.MethodDelete, "/api/v1/partners/P1", nil)
	if rec.Code != http.StatusBadGateway {
		t.Fatalf("expected 502, got %d", rec.Code)
	}
	body := decodeError(t, rec)
	if body.Code != "device_release_failed" {
		t.Fatalf("unexpected code %q", body.Code)
	}
	failed, _ := body.Details["failed_serials"].([]any)
	if len(failed) != 1 || failed[0] != "S2" {
		t.Fatalf("unexpected failed serials: %+v", body.Details)
	}
	if rec := s.do(t, http.MethodGet, "/api/v1/partners/P1", nil); rec.Code != http.StatusOK {
		t.Fatalf("expected partner kept, got %d", rec.Code)
	}
}

func TestPartnerHandler_DeleteWithoutCredentials(t *testing.T) {
	s := newTestServer(t, "")
	s.createPartner(t, "P1")
	allocateWithSerials(t, s, "P1", "S1")

	rec := s.do(t, http.MethodDelete, "/api/v1/partners/P1", nil)
	if rec.Code != http.StatusServiceUnavailable {
		t.Fatalf("expected 503, got %d", rec.Code)
	}
	if body := decodeError(t, rec); body.Code != "device_api_not_configured" {
		t.Fatalf("unexpected code %q", body.Code)
	}
}

func TestAreaHandler_CreateUpdateAndBudget(t *testing.T) {
	s := newTestServer(t, "token")

	rec := s.do(t, http.MethodPost, "/api/v1/areas", map[string]any{"id": "area-2", "name": "Roma", "region": "Lazio", "station_budget": 3})
	if rec.Code != http.StatusCreated {
		t.Fatalf("expected 201, got %d %s", rec.Code, rec.Body.String())
	}

	s.createPartner(t, "P1")
	allocateWithSerials(t, s, "P1", "S1", "S2", "S3")

	rec = s.do(t, http.MethodGet, "/api/v1/areas/area-1/budget", nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rec.Code)
	}
	var summary stations.BudgetSummary
	if err := json.NewDecoder(rec.Body).Decode(&summary); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if summary.Total != 5 || summary.Committed != 3 || summary.Available != 2 {
		t.Fatalf("unexpected summary: %+v", summary)
	}

	rec = s.do(t, http.MethodPatch, "/api/v1/areas/area-1", map[string]any{"station_budget": 2})
	if rec.Code != http.StatusConflict {
		t.Fatalf("expected 409 below committed, got %d", rec.Code)
	}
	if body := decodeError(t, rec); body.Code != "budget_below_committed" {
		t.Fatalf("unexpected code %q", body.Code)
	}

	rec = s.do(t, http.MethodPatch, "/api/v1/areas/area-1", map[string]any{"station_budget": 8})
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d %s", rec.Code, rec.Body.String())
	}

	rec = s.do(t, http.MethodGet, "/api/v1/areas/area-1/partners", nil)
	var views []partnerView
	if err := json.NewDecoder(rec.Body).Decode(&views); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if len(views) != 1 || views[0].ID != "P1" {
		t.Fatalf("unexpected partners: %+v", views)
	}

	if rec := s.do(t, http.MethodGet, "/api/v1/areas/nowhere", nil); rec.Code != http.StatusNotFound {
		t.Fatalf("expected 404, got %d", rec.Code)
	}
}

func TestAreaHandler_Reports(t *testing.T) {
	s := newTestServer(t, "token")
	s.createPartner(t, "P1")
	allocateWithSerials(t, s, "P1", "S1")

	rec := s.do(t, http.MethodGet, "/api/v1/areas/area-1/report.xlsx", nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rec.Code)
	}
	if !bytes.HasPrefix(rec.Body.Bytes(), []byte("PK")) {
		t.Fatalf("expected xlsx zip payload")
	}

	rec = s.do(t, http.MethodGet, "/api/v1/areas/area-1/report.pdf", nil)
	if rec.Code != http.StatusOK || rec.Header().Get("Content-Type") != "application/pdf" {
		t.Fatalf("unexpected pdf response: %d %s", rec.Code, rec.Header().Get("Content-Type"))
	}
	if !bytes.HasPrefix(rec.Body.Bytes(), []byte("%PDF")) {
		t.Fatalf("expected pdf payload")
	}
}
