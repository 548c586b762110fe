package application

import (
	"context"
	"errors"
	"strings"
	"testing"

	stations "mobbi-manager/internal/stations/domain"
)

func TestAreaService_CreateAndUpdate(t *testing.T) {
	f := newFixture(t, 10)
	svc, err := NewAreaService(f.store.Areas(), f.store.Partners(), nil)
	if err != nil {
		t.Fatalf("new area service: %v", err)
	}
	ctx := context.Background()

	area, err := svc.CreateArea(ctx, AreaInput{Name: " Bologna ", Region: "Emilia-Romagna", StationBudget: 4})
	if err != nil {
		t.Fatalf("create area: %v", err)
	}
	if !strings.HasPrefix(area.ID, "area-") || area.Name != "Bologna" {
		t.Fatalf("unexpected area: %+v", area)
	}
	if _, err := svc.CreateArea(ctx, AreaInput{ID: area.ID, Name: "Dup"}); !errors.Is(err, stations.ErrAreaExists) {
		t.Fatalf("expected ErrAreaExists, got %v", err)
	}
	if _, err := svc.CreateArea(ctx, AreaInput{Name: "Negative", StationBudget: -1}); !errors.Is(err, stations.ErrValidation) {
		t.Fatalf("expected ErrValidation, got %v", err)
	}

	budget := 8
	updated, err := svc.UpdateArea(ctx, area.ID, AreaUpdate{StationBudget: &budget})
	if err != nil {
		t.Fatalf("update area: %v", err)
	}
	if updated.StationBudget != 8 {
		t.Fatalf("expected budget 8, got %d", updated.StationBudget)
	}

	areas, err := svc.ListAreas(ctx)
	if err != nil || len(areas) != 2 {
		t.Fatalf("expected 2 areas, got %d (%v)", len(areas), err)
	}
	if _, err := svc.GetArea(ctx, "missing"); !errors.Is(err, stations.ErrAreaNotFound) {
		t.Fatalf("expected ErrAreaNotFound, got %v", err)
	}
}

func TestAreaService_BudgetBelowCommittedRejected(t *testing.T) {
	f := newFixture(t, 10)
	f.addPartner(t, "A")
	f.allocate(t, "A", 6)
	svc, err := NewAreaService(f.store.Areas(), f.store.Partners(), nil)
	if err != nil {
		t.Fatalf("new area service: %v", err)
	}

	low := 5
	if _, err := svc.UpdateArea(context.Background(), "area-1", AreaUpdate{StationBudget: &low}); !errors.Is(err, stations.ErrBudgetBelowCommitted) {
		t.Fatalf("expected ErrBudgetBelowCommitted, got %v", err)
	}
	exact := 6
	if _, err := svc.UpdateArea(context.Background(), "area-1", AreaUpdate{StationBudget: &exact}); err != nil {
		t.Fatalf("expected budget equal to committed accepted: %v", err)
	}
	summary, err := f.reconciler.AvailableBudget(context.Background(), "area-1")
	if err != nil || summary.Available != 0 {
		t.Fatalf("expected nothing available, got %+v (%v)", summary, err)
	}
}

func newPartnerService(t *testing.T, f *fixture) *PartnerService {
	t.Helper()
	svc, err := NewPartnerService(f.store.Areas(), f.store.Partners(), f.store.Contacts(), f.store.Catalog(), nil)
	if err != nil {
		t.Fatalf("new partner service: %v", err)
	}
	return svc
}

func TestPartnerService_CreateAndRequest(t *testing.T) {
	f := newFixture(t, 10)
	svc := newPartnerService(t, f)
	ctx := context.Background()

	partner, err := svc.CreatePartner(ctx, PartnerInput{
		Name:      "Caffè Roma",
		AreaID:    "area-1",
		Requested: []stations.StationRequest{{ModelID: "m1", ColorID: "c1", Quantity: 2}},
	})
	if err != nil {
		t.Fatalf("create partner: %v", err)
	}
	if partner.Status != stations.StatusContact || partner.Requested[0].ModelName != "Tower" {
		t.Fatalf("unexpected partner: %+v", partner)
	}
	if _, err := svc.CreatePartner(ctx, PartnerInput{ID: partner.ID, Name: "Again"}); !errors.Is(err, stations.ErrPartnerExists) {
		t.Fatalf("expected ErrPartnerExists, got %v", err)
	}
	if _, err := svc.CreatePartner(ctx, PartnerInput{Name: "Nowhere", AreaID: "area-x"}); !errors.Is(err, stations.ErrAreaNotFound) {
		t.Fatalf("expected ErrAreaNotFound, got %v", err)
	}

	updated, err := svc.SetRequestedStations(ctx, partner.ID, []stations.StationRequest{{ModelID: "m2", ColorID: "c2", Quantity: 3}})
	if err != nil {
		t.Fatalf("set requested: %v", err)
	}
	if updated.RequestedQuantity() != 3 {
		t.Fatalf("expected 3 requested, got %d", updated.RequestedQuantity())
	}
	if _, err := svc.SetRequestedStations(ctx, partner.ID, []stations.StationRequest{{ModelID: "m1", ColorID: "c2", Quantity: 1}}); !errors.Is(err, stations.ErrValidation) {
		t.Fatalf("expected ErrValidation for mismatched color, got %v", err)
	}

	if _, err := f.reconciler.Allocate(ctx, partner.ID, []GrantInput{{ModelID: "m2", ColorID: "c2", Quantity: 3}}); err != nil {
		t.Fatalf("allocate: %v", err)
	}
	if _, err := svc.SetRequestedStations(ctx, partner.ID, nil); !errors.Is(err, stations.ErrAlreadyAllocated) {
		t.Fatalf("expected ErrAlreadyAllocated, got %v", err)
	}
	stored, err := svc.GetPartner(ctx, partner.ID)
	if err != nil {
		t.Fatalf("get partner: %v", err)
	}
	if stored.AllocatedQuantity() != 3 || stored.Status != stations.StatusAllocated {
		t.Fatalf("expected allocation intact after partner edits, got %+v", stored)
	}
}

func TestPartnerService_TransitionStatus(t *testing.T) {
	f := newFixture(t, 10)
	svc := newPartnerService(t, f)
	ctx := context.Background()
	f.addPartner(t, "A")

	if _, err := svc.TransitionStatus(ctx, "A", stations.StatusAllocated); !errors.Is(err, stations.ErrInvalidTransition) {
		t.Fatalf("expected ALLOCATO rejected outside allocation, got %v", err)
	}
	if _, err := svc.TransitionStatus(ctx, "A", stations.StatusContracted); !errors.Is(err, stations.ErrInvalidTransition) {
		t.Fatalf("expected SELEZIONATO -> CONTRATTUALIZZATO rejected, got %v", err)
	}
	f.allocate(t, "A", 1)
	for _, next := range []stations.PartnerStatus{stations.StatusContracted, stations.StatusActive} {
		partner, err := svc.TransitionStatus(ctx, "A", next)
		if err != nil {
			t.Fatalf("transition to %s: %v", next, err)
		}
		if partner.Status != next {
			t.Fatalf("expected %s, got %s", next, partner.Status)
		}
	}
	if _, err := svc.TransitionStatus(ctx, "A", stations.StatusLost); !errors.Is(err, stations.ErrInvalidTransition) {
		t.Fatalf("expected ATTIVO to be terminal, got %v", err)
	}
}

func TestPartnerService_UnreadableRequestsSurviveSave(t *testing.T) {
	f := newFixture(t, 10)
	svc := newPartnerService(t, f)
	ctx := context.Background()

	partner, err := svc.CreatePartner(ctx, PartnerInput{Name: "Bar Sport", AreaID: "area-1"})
	if err != nil {
		t.Fatalf("create partner: %v", err)
	}
	legacy := []byte(`"legacy {not-json"`)
	if err := f.store.SetRawRequests(partner.ID, legacy); err != nil {
		t.Fatalf("set raw requests: %v", err)
	}

	moved, err := svc.TransitionStatus(ctx, partner.ID, stations.StatusApproved)
	if err != nil {
		t.Fatalf("transition: %v", err)
	}
	if moved.RequestsErr == nil {
		t.Fatalf("expected requests decode error surfaced")
	}
	if got := string(f.store.RawRequests(partner.ID)); got != string(legacy) {
		t.Fatalf("expected stored requests kept, got %s", got)
	}

	updated, err := svc.SetRequestedStations(ctx, partner.ID, []stations.StationRequest{{ModelID: "m1", ColorID: "c1", Quantity: 2}})
	if err != nil {
		t.Fatalf("set requested: %v", err)
	}
	if updated.RequestsErr != nil || updated.RequestedQuantity() != 2 {
		t.Fatalf("unexpected partner after new requests: %+v", updated)
	}
	stored, err := svc.GetPartner(ctx, partner.ID)
	if err != nil {
		t.Fatalf("get partner: %v", err)
	}
	if stored.RequestsErr != nil || stored.RequestedQuantity() != 2 {
		t.Fatalf("expected new requests stored, got %+v", stored)
	}
}

func TestPartnerService_Contacts(t *testing.T) {
	f := newFixture(t, 10)
	svc := newPartnerService(t, f)
	ctx := context.Background()
	f.addPartner(t, "A")

	contact, err := svc.AddContact(ctx, "A", ContactInput{Name: "Marco", Email: "marco@example.com", Role: "owner"})
	if err != nil {
		t.Fatalf("add contact: %v", err)
	}
	if !strings.HasPrefix(contact.ID, "contact-") {
		t.Fatalf("unexpected contact id %s", contact.ID)
	}
	if _, err := svc.AddContact(ctx, "A", ContactInput{}); !errors.Is(err, stations.ErrValidation) {
		t.Fatalf("expected ErrValidation for empty contact, got %v", err)
	}
	if _, err := svc.AddContact(ctx, "ghost", ContactInput{Name: "X"}); !errors.Is(err, stations.ErrPartnerNotFound) {
		t.Fatalf("expected ErrPartnerNotFound, got %v", err)
	}
	contacts, err := svc.ListContacts(ctx, "A")
	if err != nil || len(contacts) != 1 {
		t.Fatalf("expected one contact, got %d (%v)", len(contacts), err)
	}
}
