package http

import (
	"encoding/json"
	"errors"
	"net/http"
	"strings"

	"go.uber.org/zap"

	"mobbi-manager/internal/audit"
	"mobbi-manager/internal/auth"
	stationsapp "mobbi-manager/internal/stations/application"
	stations "mobbi-manager/internal/stations/domain"
)

const partnersPrefix = "/api/v1/partners"

// PartnerHandler serves partner endpoints.
type PartnerHandler struct {
	reconciler  *stationsapp.Reconciler
	sequencer   *stationsapp.Sequencer
	partners    *stationsapp.PartnerService
	auditLogger audit.Logger
	logger      *zap.Logger
}

// NewPartnerHandler constructs a handler.
func NewPartnerHandler(reconciler *stationsapp.Reconciler, sequencer *stationsapp.Sequencer, partners *stationsapp.PartnerService, auditLogger audit.Logger, logger *zap.Logger) (*PartnerHandler, error) {
	if reconciler == nil {
		return nil, errors.New("partner handler: nil reconciler")
	}
	if sequencer == nil {
		return nil, errors.New("partner handler: nil sequencer")
	}
	if partners == nil {
		return nil, errors.New("partner handler: nil partner service")
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &PartnerHandler{
		reconciler:  reconciler,
		sequencer:   sequencer,
		partners:    partners,
		auditLogger: auditLogger,
		logger:      logger,
	}, nil
}

// ServeHTTP routes partner requests.
func (h *PartnerHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	path := strings.Trim(strings.TrimPrefix(r.URL.Path, partnersPrefix), "/")
	if path == "" {
		if r.Method == http.MethodPost {
			h.handleCreate(w, r)
			return
		}
		w.WriteHeader(http.StatusMethodNotAllowed)
		return
	}
	parts := strings.Split(path, "/")
	partnerID := parts[0]

	switch {
	case len(parts) == 1 && r.Method == http.MethodGet:
		h.handleGet(w, r, partnerID)
	case len(parts) == 1 && r.Method == http.MethodDelete:
		h.handleDelete(w, r, partnerID)
	case len(parts) == 2 && parts[1] == "allocation" && r.Method == http.MethodPost:
		h.handleAllocate(w, r, partnerID)
	case len(parts) == 2 && parts[1] == "requests" && r.Method == http.MethodPut:
		h.handleRequests(w, r, partnerID)
	case len(parts) == 2 && parts[1] == "status" && r.Method == http.MethodPost:
		h.handleStatus(w, r, partnerID)
	case len(parts) == 2 && parts[1] == "contacts" && r.Method == http.MethodGet:
		h.handleListContacts(w, r, partnerID)
	case len(parts) == 2 && parts[1] == "contacts" && r.Method == http.MethodPost:
		h.handleAddContact(w, r, partnerID)
	default:
		w.WriteHeader(http.StatusNotFound)
	}
}

func (h *PartnerHandler) handleCreate(w http.ResponseWriter, r *http.Request) {
	var req stationsapp.PartnerInput
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "invalid json", http.StatusBadRequest)
		return
	}
	partner, err := h.partners.CreatePartner(r.Context(), req)
	if err != nil {
		respondError(h.logger, w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, newPartnerView(*partner))
	h.logAudit(r, partner.ID, partner.AreaID, "partner.create", map[string]any{"name": partner.Name})
}

func (h *PartnerHandler) handleGet(w http.ResponseWriter, r *http.Request, partnerID string) {
	partner, err := h.partners.GetPartner(r.Context(), partnerID)
	if err != nil {
		respondError(h.logger, w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, newPartnerView(*partner))
}

func (h *PartnerHandler) handleAllocate(w http.ResponseWriter, r *http.Request, partnerID string) {
	var req struct {
		Grants []stationsapp.GrantInput `json:"grants"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "invalid json", http.StatusBadRequest)
		return
	}
	result, err := h.reconciler.Allocate(r.Context(), partnerID, req.Grants)
	if err != nil {
		respondError(h.logger, w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, result)
	h.logAudit(r, partnerID, result.AreaID, "partner.allocate", map[string]any{
		"requested":        result.Requested,
		"available_before": result.AvailableBefore,
		"grants":           result.Grants,
	})
}

func (h *PartnerHandler) handleDelete(w http.ResponseWriter, r *http.Request, partnerID string) {
	result, err := h.sequencer.DeactivateAndDelete(r.Context(), partnerID)
	if err != nil {
		var localErr *stations.LocalDeletionError
		if errors.As(err, &localErr) {
			h.logAudit(r, partnerID, "", "partner.delete.incomplete", map[string]any{"step": localErr.Step})
		}
		respondError(h.logger, w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, result)
	h.logAudit(r, partnerID, result.AreaID, "partner.delete", map[string]any{
		"serial_numbers":   result.SerialNumbers,
		"contacts_deleted": result.ContactsDeleted,
	})
}

func (h *PartnerHandler) handleRequests(w http.ResponseWriter, r *http.Request, partnerID string) {
	var req struct {
		RequestedStations []stations.StationRequest `json:"requested_stations"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "invalid json", http.StatusBadRequest)
		return
	}
	partner, err := h.partners.SetRequestedStations(r.Context(), partnerID, req.RequestedStations)
	if err != nil {
		respondError(h.logger, w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, newPartnerView(*partner))
	h.logAudit(r, partnerID, partner.AreaID, "partner.requests.set", map[string]any{"requested": partner.RequestedQuantity()})
}

func (h *PartnerHandler) handleStatus(w http.ResponseWriter, r *http.Request, partnerID string) {
	var req struct {
		Status string `json:"status"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "invalid json", http.StatusBadRequest)
		return
	}
	status, ok := stations.ParseStatus(strings.ToUpper(strings.TrimSpace(req.Status)))
	if !ok {
		http.Error(w, "unknown status", http.StatusBadRequest)
		return
	}
	partner, err := h.partners.TransitionStatus(r.Context(), partnerID, status)
	if err != nil {
		respondError(h.logger, w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, newPartnerView(*partner))
	h.logAudit(r, partnerID, partner.AreaID, "partner.status.set", map[string]any{"status": status})
}

func (h *PartnerHandler) handleListContacts(w http.ResponseWriter, r *http.Request, partnerID string) {
	if _, err := h.partners.GetPartner(r.Context(), partnerID); err != nil {
		respondError(h.logger, w, r, err)
		return
	}
	contacts, err := h.partners.ListContacts(r.Context(), partnerID)
	if err != nil {
		respondError(h.logger, w, r, err)
		return
	}
	views := make([]contactView, 0, len(contacts))
	for _, contact := range contacts {
		views = append(views, newContactView(contact))
	}
	writeJSON(w, http.StatusOK, views)
}

func (h *PartnerHandler) handleAddContact(w http.ResponseWriter, r *http.Request, partnerID string) {
	var req stationsapp.ContactInput
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "invalid json", http.StatusBadRequest)
		return
	}
	contact, err := h.partners.AddContact(r.Context(), partnerID, req)
	if err != nil {
		respondError(h.logger, w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, newContactView(*contact))
	h.logAudit(r, partnerID, "", "partner.contact.add", map[string]any{"contact_id": contact.ID})
}

func (h *PartnerHandler) logAudit(r *http.Request, partnerID, areaID, action string, meta map[string]any) {
	if h.auditLogger == nil {
		return
	}
	payload, _ := json.Marshal(meta)
	_ = h.auditLogger.Log(r.Context(), audit.Entry{
		Actor:        auth.SubjectFromContext(r.Context()),
		Role:         string(auth.RoleFromContext(r.Context())),
		Action:       action,
		ResourceType: "partner",
		ResourceID:   partnerID,
		AreaID:       areaID,
		Metadata:     payload,
		IP:           audit.ClientIP(r),
		UserAgent:    r.UserAgent(),
	})
}
