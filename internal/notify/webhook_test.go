package notify

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	stationsapp "mobbi-manager/internal/stations/application"
)

func TestWebhookAlerter_PostsText(t *testing.T) {
	var got webhookPayload
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodPost {
			t.Errorf("unexpected method %s", r.Method)
		}
		if err := json.NewDecoder(r.Body).Decode(&got); err != nil {
			t.Errorf("decode: %v", err)
		}
		w.WriteHeader(http.StatusOK)
	}))
	defer server.Close()

	alerter := NewWebhookAlerter(server.URL, "production")
	err := alerter.AlertLocalDeletion(context.Background(), stationsapp.LocalDeletionAlert{
		PartnerID:       "partner-7",
		PartnerName:     "Bar Sport",
		AreaID:          "area-1",
		Step:            stationsapp.StepDeletePartner,
		ReleasedSerials: []string{"S1", "S2"},
		ContactsDeleted: 2,
		Error:           "deadlock detected",
	})
	if err != nil {
		t.Fatalf("alert: %v", err)
	}
	if got.MsgType != "text" {
		t.Fatalf("unexpected msgtype %q", got.MsgType)
	}
	for _, want := range []string{"partner-7 (Bar Sport)", "Failed step: delete_partner", "S1, S2", "Environment: production", "re-run the partner deletion"} {
		if !strings.Contains(got.Text.Content, want) {
			t.Fatalf("expected %q in %q", want, got.Text.Content)
		}
	}
	if strings.Contains(got.Text.Content, "do not re-run") {
		t.Fatalf("alert must not discourage re-running the deletion: %q", got.Text.Content)
	}
}

func TestWebhookAlerter_Non2xx(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusInternalServerError)
	}))
	defer server.Close()

	if err := NewWebhookAlerter(server.URL, "").AlertLocalDeletion(context.Background(), stationsapp.LocalDeletionAlert{PartnerID: "p"}); err == nil {
		t.Fatalf("expected error for non-2xx")
	}
}

func TestNewWebhookAlerter_EmptyURL(t *testing.T) {
	if NewWebhookAlerter("", "dev") != nil {
		t.Fatalf("expected nil alerter without url")
	}
}
