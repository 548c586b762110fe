package http

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	"go.uber.org/zap"

	"mobbi-manager/internal/audit"
	"mobbi-manager/internal/auth"
	stationsapp "mobbi-manager/internal/stations/application"
	"mobbi-manager/internal/stations/interfaces"
)

const areasPrefix = "/api/v1/areas"

// AreaHandler serves area endpoints.
type AreaHandler struct {
	areas       *stationsapp.AreaService
	partners    *stationsapp.PartnerService
	reconciler  *stationsapp.Reconciler
	auditLogger audit.Logger
	logger      *zap.Logger
	now         func() time.Time
}

// NewAreaHandler constructs a handler.
func NewAreaHandler(areas *stationsapp.AreaService, partners *stationsapp.PartnerService, reconciler *stationsapp.Reconciler, auditLogger audit.Logger, logger *zap.Logger) (*AreaHandler, error) {
	if areas == nil {
		return nil, errors.New("area handler: nil area service")
	}
	if partners == nil {
		return nil, errors.New("area handler: nil partner service")
	}
	if reconciler == nil {
		return nil, errors.New("area handler: nil reconciler")
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &AreaHandler{
		areas:       areas,
		partners:    partners,
		reconciler:  reconciler,
		auditLogger: auditLogger,
		logger:      logger,
		now:         func() time.Time { return time.Now().UTC() },
	}, nil
}

// ServeHTTP routes area requests.
func (h *AreaHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	path := strings.Trim(strings.TrimPrefix(r.URL.Path, areasPrefix), "/")
	if path == "" {
		switch r.Method {
		case http.MethodGet:
			h.handleList(w, r)
		case http.MethodPost:
			h.handleCreate(w, r)
		default:
			w.WriteHeader(http.StatusMethodNotAllowed)
		}
		return
	}
	parts := strings.Split(path, "/")
	areaID := parts[0]

	switch {
	case len(parts) == 1 && r.Method == http.MethodGet:
		h.handleGet(w, r, areaID)
	case len(parts) == 1 && r.Method == http.MethodPatch:
		h.handleUpdate(w, r, areaID)
	case len(parts) == 2 && parts[1] == "budget" && r.Method == http.MethodGet:
		h.handleBudget(w, r, areaID)
	case len(parts) == 2 && parts[1] == "partners" && r.Method == http.MethodGet:
		h.handlePartners(w, r, areaID)
	case len(parts) == 2 && parts[1] == "report.xlsx" && r.Method == http.MethodGet:
		h.handleReport(w, r, areaID, "xlsx")
	case len(parts) == 2 && parts[1] == "report.pdf" && r.Method == http.MethodGet:
		h.handleReport(w, r, areaID, "pdf")
	default:
		w.WriteHeader(http.StatusNotFound)
	}
}

func (h *AreaHandler) handleList(w http.ResponseWriter, r *http.Request) {
	areas, err := h.areas.ListAreas(r.Context())
	if err != nil {
		respondError(h.logger, w, r, err)
		return
	}
	views := make([]areaView, 0, len(areas))
	for _, area := range areas {
		views = append(views, newAreaView(area))
	}
	writeJSON(w, http.StatusOK, views)
}

func (h *AreaHandler) handleCreate(w http.ResponseWriter, r *http.Request) {
	var req stationsapp.AreaInput
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "invalid json", http.StatusBadRequest)
		return
	}
	area, err := h.areas.CreateArea(r.Context(), req)
	if err != nil {
		respondError(h.logger, w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, newAreaView(*area))
	h.logAudit(r, area.ID, "area.create", map[string]any{"station_budget": area.StationBudget})
}

func (h *AreaHandler) handleGet(w http.ResponseWriter, r *http.Request, areaID string) {
	area, err := h.areas.GetArea(r.Context(), areaID)
	if err != nil {
		respondError(h.logger, w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, newAreaView(*area))
}

func (h *AreaHandler) handleUpdate(w http.ResponseWriter, r *http.Request, areaID string) {
	var req stationsapp.AreaUpdate
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "invalid json", http.StatusBadRequest)
		return
	}
	area, err := h.areas.UpdateArea(r.Context(), areaID, req)
	if err != nil {
		respondError(h.logger, w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, newAreaView(*area))
	h.logAudit(r, area.ID, "area.update", map[string]any{"station_budget": area.StationBudget, "name": area.Name})
}

func (h *AreaHandler) handleBudget(w http.ResponseWriter, r *http.Request, areaID string) {
	summary, err := h.reconciler.AvailableBudget(r.Context(), areaID)
	if err != nil {
		respondError(h.logger, w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, summary)
}

func (h *AreaHandler) handlePartners(w http.ResponseWriter, r *http.Request, areaID string) {
	if _, err := h.areas.GetArea(r.Context(), areaID); err != nil {
		respondError(h.logger, w, r, err)
		return
	}
	partners, err := h.partners.ListPartnersByArea(r.Context(), areaID)
	if err != nil {
		respondError(h.logger, w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, newPartnerViews(partners))
}

func (h *AreaHandler) handleReport(w http.ResponseWriter, r *http.Request, areaID, format string) {
	area, err := h.areas.GetArea(r.Context(), areaID)
	if err != nil {
		respondError(h.logger, w, r, err)
		return
	}
	summary, err := h.reconciler.AvailableBudget(r.Context(), areaID)
	if err != nil {
		respondError(h.logger, w, r, err)
		return
	}
	partners, err := h.partners.ListPartnersByArea(r.Context(), areaID)
	if err != nil {
		respondError(h.logger, w, r, err)
		return
	}
	report := interfaces.AreaReport{Area: *area, Budget: summary, Partners: partners, GeneratedAt: h.now()}

	var (
		data        []byte
		contentType string
	)
	switch format {
	case "pdf":
		data, err = interfaces.BuildAreaReportPDF(report)
		contentType = "application/pdf"
	default:
		data, err = interfaces.BuildAreaReportXLSX(report)
		contentType = "application/vnd.openxmlformats-officedocument.spreadsheetml.sheet"
	}
	if err != nil {
		respondError(h.logger, w, r, err)
		return
	}
	w.Header().Set("Content-Type", contentType)
	w.Header().Set("Content-Disposition", fmt.Sprintf("attachment; filename=%q", "allocation-"+areaID+"."+format))
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write(data)
	h.logAudit(r, areaID, "area.report.export", map[string]any{"format": format})
}

func (h *AreaHandler) logAudit(r *http.Request, areaID, action string, meta map[string]any) {
	if h.auditLogger == nil {
		return
	}
	payload, _ := json.Marshal(meta)
	_ = h.auditLogger.Log(r.Context(), audit.Entry{
		Actor:        auth.SubjectFromContext(r.Context()),
		Role:         string(auth.RoleFromContext(r.Context())),
		Action:       action,
		ResourceType: "area",
		ResourceID:   areaID,
		AreaID:       areaID,
		Metadata:     payload,
		IP:           audit.ClientIP(r),
		UserAgent:    r.UserAgent(),
	})
}
