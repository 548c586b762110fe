package devicemgmt

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
)

type fakeDeviceServer struct {
	mu          sync.Mutex
	devices     map[string]InventoryDevice
	failVenue   map[string]bool
	failReset   map[string]bool
	resets      []string
	tokens      []string
	lastPatches map[string]venuePatch
}

func newFakeDeviceServer() *fakeDeviceServer {
	return &fakeDeviceServer{
		devices:     make(map[string]InventoryDevice),
		failVenue:   make(map[string]bool),
		failReset:   make(map[string]bool),
		lastPatches: make(map[string]venuePatch),
	}
}

func (f *fakeDeviceServer) add(serial string, tags ...string) {
	f.devices[serial] = InventoryDevice{ID: "dev-" + serial, SerialNumber: serial, VenueID: "venue-partner", Tags: tags}
}

func (f *fakeDeviceServer) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.tokens = append(f.tokens, r.Header.Get("Authorization"))

	switch {
	case r.Method == http.MethodGet && r.URL.Path == "/api/v1/devices":
		serial := r.URL.Query().Get("serial_number")
		resp := deviceListResponse{Data: []InventoryDevice{}}
		if device, ok := f.devices[serial]; ok {
			resp.Data = append(resp.Data, device)
		}
		_ = json.NewEncoder(w).Encode(resp)
	case r.Method == http.MethodPatch && strings.HasPrefix(r.URL.Path, "/api/v1/devices/"):
		id := strings.TrimPrefix(r.URL.Path, "/api/v1/devices/")
		serial := strings.TrimPrefix(id, "dev-")
		if f.failVenue[serial] {
			http.Error(w, "venue locked", http.StatusConflict)
			return
		}
		var patch venuePatch
		_ = json.NewDecoder(r.Body).Decode(&patch)
		f.lastPatches[serial] = patch
		w.WriteHeader(http.StatusNoContent)
	case r.Method == http.MethodPost && strings.HasPrefix(r.URL.Path, "/api/v1/terminals/"):
		serial := strings.TrimSuffix(strings.TrimPrefix(r.URL.Path, "/api/v1/terminals/"), "/reset")
		if _, ok := f.devices[serial]; !ok {
			http.NotFound(w, r)
			return
		}
		if f.failReset[serial] {
			http.Error(w, "upstream timeout", http.StatusBadGateway)
			return
		}
		f.resets = append(f.resets, serial)
		w.WriteHeader(http.StatusOK)
	default:
		http.NotFound(w, r)
	}
}

func newTestReleaser(t *testing.T, fake *fakeDeviceServer) *Releaser {
	t.Helper()
	server := httptest.NewServer(fake)
	t.Cleanup(server.Close)
	releaser, err := New(Config{
		InventoryBaseURL: server.URL,
		MerchantBaseURL:  server.URL + "/",
		WarehouseVenueID: "warehouse-main",
		ClearTags:        []string{"partner:"},
		APIToken:         "secret",
	}, nil)
	if err != nil {
		t.Fatalf("new releaser: %v", err)
	}
	return releaser
}

func TestReleaseDevices_AllReleased(t *testing.T) {
	fake := newFakeDeviceServer()
	fake.add("S1", "partner:bar-roma", "model:tower")
	fake.add("S2")
	releaser := newTestReleaser(t, fake)

	report, err := releaser.ReleaseDevices(context.Background(), []string{"S1", "S2"})
	if err != nil {
		t.Fatalf("release: %v", err)
	}
	if !strings.HasPrefix(report.BatchID, "release-") {
		t.Fatalf("unexpected batch id %q", report.BatchID)
	}
	if failed := report.Failures([]string{"S1", "S2"}); len(failed) != 0 {
		t.Fatalf("expected no failures, got %+v", failed)
	}
	patch := fake.lastPatches["S1"]
	if patch.VenueID != "warehouse-main" || len(patch.Tags) != 1 || patch.Tags[0] != "model:tower" {
		t.Fatalf("unexpected venue patch: %+v", patch)
	}
	if strings.Join(fake.resets, ",") != "S1,S2" {
		t.Fatalf("unexpected resets: %v", fake.resets)
	}
	for _, token := range fake.tokens {
		if token != "Bearer secret" {
			t.Fatalf("unexpected auth header %q", token)
		}
	}
}

func TestReleaseDevices_StepFailuresReported(t *testing.T) {
	fake := newFakeDeviceServer()
	fake.add("S1")
	fake.add("S2")
	fake.add("S3")
	fake.failVenue["S1"] = true
	fake.failReset["S2"] = true
	releaser := newTestReleaser(t, fake)

	serials := []string{"S1", "S2", "S3", "S4"}
	report, err := releaser.ReleaseDevices(context.Background(), serials)
	if err != nil {
		t.Fatalf("release: %v", err)
	}
	if len(report.Outcomes) != 4 {
		t.Fatalf("expected an outcome per serial, got %d", len(report.Outcomes))
	}

	s1 := report.Outcomes[0]
	if s1.VenueMoved || !s1.MerchantReset {
		t.Fatalf("expected S1 merchant reset attempted despite venue failure: %+v", s1)
	}
	s2 := report.Outcomes[1]
	if !s2.VenueMoved || s2.MerchantReset {
		t.Fatalf("unexpected S2 outcome: %+v", s2)
	}
	s4 := report.Outcomes[3]
	if s4.VenueMoved || s4.MerchantReset || len(s4.Errors) != 2 {
		t.Fatalf("expected unknown S4 to fail both steps: %+v", s4)
	}

	var failed []string
	for _, outcome := range report.Failures(serials) {
		failed = append(failed, outcome.SerialNumber)
	}
	if strings.Join(failed, ",") != "S1,S2,S4" {
		t.Fatalf("expected failures S1,S2,S4, got %v", failed)
	}
}

func TestReleaseDevices_CanceledContext(t *testing.T) {
	fake := newFakeDeviceServer()
	fake.add("S1")
	releaser := newTestReleaser(t, fake)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	report, err := releaser.ReleaseDevices(ctx, []string{"S1", "S2"})
	if !errors.Is(err, context.Canceled) {
		t.Fatalf("expected context.Canceled, got %v", err)
	}
	if len(report.Failures([]string{"S1", "S2"})) != 2 {
		t.Fatalf("expected both serials failed, got %+v", report.Outcomes)
	}
	if len(fake.resets) != 0 {
		t.Fatalf("expected no external calls after cancellation")
	}
}

func TestInventoryClient_NotFound(t *testing.T) {
	fake := newFakeDeviceServer()
	server := httptest.NewServer(fake)
	defer server.Close()
	client, err := NewClient(server.URL, "secret", 0)
	if err != nil {
		t.Fatalf("client: %v", err)
	}
	inventory, _ := NewInventoryClient(client)
	if err := inventory.MoveToVenue(context.Background(), "missing", "warehouse", nil); !errors.Is(err, ErrDeviceNotFound) {
		t.Fatalf("expected ErrDeviceNotFound, got %v", err)
	}
	merchant, _ := NewMerchantClient(client)
	if err := merchant.ResetMerchant(context.Background(), "missing"); !errors.Is(err, ErrDeviceNotFound) {
		t.Fatalf("expected ErrDeviceNotFound, got %v", err)
	}
}

func TestMerchantClient_HTTPError(t *testing.T) {
	fake := newFakeDeviceServer()
	fake.add("S9")
	fake.failReset["S9"] = true
	server := httptest.NewServer(fake)
	defer server.Close()
	client, _ := NewClient(server.URL, "secret", 0)
	merchant, _ := NewMerchantClient(client)

	err := merchant.ResetMerchant(context.Background(), "S9")
	var httpErr *HTTPError
	if !errors.As(err, &httpErr) {
		t.Fatalf("expected HTTPError, got %v", err)
	}
	if httpErr.StatusCode != http.StatusBadGateway || !strings.Contains(httpErr.Body, "upstream timeout") {
		t.Fatalf("unexpected http error: %+v", httpErr)
	}
}

func TestNewClient_RequiresToken(t *testing.T) {
	if _, err := NewClient("http://example.invalid", "", 0); err == nil {
		t.Fatalf("expected error without token")
	}
}
