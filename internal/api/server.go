package api

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strings"

	"github.com/sirupsen/logrus"

	"garagestock/internal/household"
	"garagestock/internal/models"
	"garagestock/internal/repository"
	"garagestock/internal/service"
)

// Server provides the HTTP API used by companion clients on the local
// network. Every mutation goes through the offline-first repositories, so
// a request succeeds even when the remote backend is unreachable.
type Server struct {
	svc    *service.Service
	logger *logrus.Logger
	mux    *http.ServeMux
}

// NewServer creates a Server, registers all routes, and returns it.
func NewServer(svc *service.Service, logger *logrus.Logger) *Server {
	s := &Server{svc: svc, logger: logger, mux: http.NewServeMux()}
	s.routes()
	return s
}

// Handler returns the http.Handler that can be passed to http.Server.
func (s *Server) Handler() http.Handler {
	return s.mux
}

// ---------------------------------------------------------------------------
// Routes
// ---------------------------------------------------------------------------

func (s *Server) routes() {
	// API – Inventory items
	s.mux.HandleFunc("GET /api/items", s.handleGetItems)
	s.mux.HandleFunc("POST /api/items", s.handleCreateItem)
	s.mux.HandleFunc("GET /api/items/low-stock", s.handleGetLowStock)
	s.mux.HandleFunc("GET /api/items/{id}", s.handleGetItem)
	s.mux.HandleFunc("PUT /api/items/{id}", s.handleUpdateItem)
	s.mux.HandleFunc("PUT /api/items/{id}/quantity", s.handleUpdateQuantity)
	s.mux.HandleFunc("DELETE /api/items/{id}", s.handleDeleteItem)
	s.mux.HandleFunc("GET /api/categories", s.handleGetCategories)
	s.mux.HandleFunc("POST /api/restock-reminder", s.handleRestockReminder)

	// API – Storage locations
	s.mux.HandleFunc("GET /api/locations", s.handleGetLocations)
	s.mux.HandleFunc("POST /api/locations", s.handleCreateLocation)
	s.mux.HandleFunc("GET /api/locations/qr/{code}", s.handleGetLocationByQR)
	s.mux.HandleFunc("GET /api/locations/{id}", s.handleGetLocation)
	s.mux.HandleFunc("PUT /api/locations/{id}", s.handleUpdateLocation)
	s.mux.HandleFunc("DELETE /api/locations/{id}", s.handleDeleteLocation)
	s.mux.HandleFunc("GET /api/locations/{id}/items", s.handleGetLocationItems)

	// API – Household
	s.mux.HandleFunc("GET /api/household", s.handleGetHousehold)
	s.mux.HandleFunc("POST /api/household", s.handleCreateHousehold)
	s.mux.HandleFunc("POST /api/household/join", s.handleJoinHousehold)
	s.mux.HandleFunc("POST /api/household/leave", s.handleLeaveHousehold)
	s.mux.HandleFunc("GET /api/household/members", s.handleGetMembers)

	s.mux.HandleFunc("GET /healthz", s.handleHealth)
}

// ---------------------------------------------------------------------------
// JSON helpers
// ---------------------------------------------------------------------------

func (s *Server) respondJSON(w http.ResponseWriter, status int, data any) {
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.WriteHeader(status)
	if data != nil {
		if err := json.NewEncoder(w).Encode(data); err != nil {
			s.logger.WithError(err).Error("failed to encode JSON response")
		}
	}
}

func (s *Server) respondError(w http.ResponseWriter, status int, message string) {
	s.respondJSON(w, status, map[string]string{"error": message})
}

// decodeJSON reads the request body into dst and returns an error message on
// failure.  The caller should return immediately when ok == false.
func (s *Server) decodeJSON(r *http.Request, dst any) (ok bool, errMsg string) {
	if r.Body == nil {
		return false, "request body is empty"
	}
	if err := json.NewDecoder(r.Body).Decode(dst); err != nil {
		return false, fmt.Sprintf("invalid JSON: %v", err)
	}
	return true, ""
}

func (s *Server) handleHealth(w http.ResponseWriter, _ *http.Request) {
	s.respondJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

// ---------------------------------------------------------------------------
// Inventory items
// ---------------------------------------------------------------------------

type createItemRequest struct {
	Name          string                `json:"name"`
	Category      string                `json:"category"`
	Description   string                `json:"description"`
	Quantity      float64               `json:"quantity"`
	MaxQuantity   float64               `json:"maxQuantity"`
	Threshold     float64               `json:"threshold"`
	Unit          string                `json:"unit"`
	ImageURI      string                `json:"imageUri"`
	Images        []string              `json:"images"`
	Barcode       string                `json:"barcode"`
	Details       models.ItemDetails    `json:"details"`
	PurchaseLinks *models.PurchaseLinks `json:"purchaseLinks"`
}

type updateQuantityRequest struct {
	Quantity float64 `json:"quantity"`
}

func (s *Server) handleGetItems(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	if query := q.Get("q"); query != "" {
		s.respondJSON(w, http.StatusOK, s.svc.Items.Search(query))
		return
	}
	s.respondJSON(w, http.StatusOK, s.svc.Items.List())
}

func (s *Server) handleCreateItem(w http.ResponseWriter, r *http.Request) {
	var req createItemRequest
	if ok, msg := s.decodeJSON(r, &req); !ok {
		s.respondError(w, http.StatusBadRequest, msg)
		return
	}

	item := &models.InventoryItem{
		Name:          strings.TrimSpace(req.Name),
		Category:      strings.TrimSpace(req.Category),
		Description:   strings.TrimSpace(req.Description),
		Quantity:      req.Quantity,
		MaxQuantity:   req.MaxQuantity,
		Threshold:     req.Threshold,
		Unit:          strings.TrimSpace(req.Unit),
		ImageURI:      req.ImageURI,
		Images:        req.Images,
		Barcode:       req.Barcode,
		Details:       req.Details,
		PurchaseLinks: req.PurchaseLinks,
	}

	created, err := s.svc.Items.Add(item, s.svc.ActiveHouseholdID())
	if err != nil {
		if errors.Is(err, repository.ErrNameRequired) {
			s.respondError(w, http.StatusBadRequest, "name is required")
			return
		}
		s.logger.WithError(err).Error("failed to create item")
		s.respondError(w, http.StatusInternalServerError, "failed to create item")
		return
	}

	s.respondJSON(w, http.StatusCreated, created)
}

func (s *Server) handleGetItem(w http.ResponseWriter, r *http.Request) {
	item := s.svc.Items.GetByID(r.PathValue("id"))
	if item == nil {
		s.respondError(w, http.StatusNotFound, "item not found")
		return
	}
	s.respondJSON(w, http.StatusOK, item)
}

func (s *Server) handleUpdateItem(w http.ResponseWriter, r *http.Request) {
	id := r.PathValue("id")
	if s.svc.Items.GetByID(id) == nil {
		s.respondError(w, http.StatusNotFound, "item not found")
		return
	}

	var patch models.ItemPatch
	if ok, msg := s.decodeJSON(r, &patch); !ok {
		s.respondError(w, http.StatusBadRequest, msg)
		return
	}

	if err := s.svc.Items.Update(id, &patch); err != nil {
		s.logger.WithError(err).Error("failed to update item")
		s.respondError(w, http.StatusInternalServerError, "failed to update item")
		return
	}

	s.respondJSON(w, http.StatusOK, s.svc.Items.GetByID(id))
}

func (s *Server) handleUpdateQuantity(w http.ResponseWriter, r *http.Request) {
	id := r.PathValue("id")
	if s.svc.Items.GetByID(id) == nil {
		s.respondError(w, http.StatusNotFound, "item not found")
		return
	}

	var req updateQuantityRequest
	if ok, msg := s.decodeJSON(r, &req); !ok {
		s.respondError(w, http.StatusBadRequest, msg)
		return
	}

	if err := s.svc.Items.UpdateQuantity(id, req.Quantity); err != nil {
		s.logger.WithError(err).Error("failed to update quantity")
		s.respondError(w, http.StatusInternalServerError, "failed to update quantity")
		return
	}

	s.respondJSON(w, http.StatusOK, s.svc.Items.GetByID(id))
}

func (s *Server) handleDeleteItem(w http.ResponseWriter, r *http.Request) {
	if err := s.svc.Items.Delete(r.PathValue("id")); err != nil {
		s.logger.WithError(err).Error("failed to delete item")
		s.respondError(w, http.StatusInternalServerError, "failed to delete item")
		return
	}
	s.respondJSON(w, http.StatusNoContent, nil)
}

func (s *Server) handleGetLowStock(w http.ResponseWriter, _ *http.Request) {
	s.respondJSON(w, http.StatusOK, s.svc.Items.GetLowStock())
}

func (s *Server) handleGetCategories(w http.ResponseWriter, _ *http.Request) {
	s.respondJSON(w, http.StatusOK, s.svc.Items.Categories())
}

func (s *Server) handleRestockReminder(w http.ResponseWriter, r *http.Request) {
	if err := s.svc.SendRestockReminder(r.Context()); err != nil {
		s.logger.WithError(err).Error("failed to send restock reminder")
		s.respondError(w, http.StatusInternalServerError, "failed to send restock reminder")
		return
	}
	s.respondJSON(w, http.StatusOK, map[string]int{"lowStock": len(s.svc.Items.GetLowStock())})
}

// ---------------------------------------------------------------------------
// Storage locations
// ---------------------------------------------------------------------------

type createLocationRequest struct {
	Name        string `json:"name"`
	Type        string `json:"type"`
	Description string `json:"description"`
	Color       string `json:"color"`
}

func (s *Server) handleGetLocations(w http.ResponseWriter, r *http.Request) {
	if t := r.URL.Query().Get("type"); t != "" {
		s.respondJSON(w, http.StatusOK, s.svc.Locations.GetByType(models.StorageType(t)))
		return
	}
	s.respondJSON(w, http.StatusOK, s.svc.Locations.List())
}

func (s *Server) handleCreateLocation(w http.ResponseWriter, r *http.Request) {
	var req createLocationRequest
	if ok, msg := s.decodeJSON(r, &req); !ok {
		s.respondError(w, http.StatusBadRequest, msg)
		return
	}

	loc := &models.StorageLocation{
		Name:        strings.TrimSpace(req.Name),
		Type:        models.StorageType(req.Type),
		Description: strings.TrimSpace(req.Description),
		Color:       req.Color,
	}

	created, err := s.svc.Locations.Add(loc, s.svc.ActiveHouseholdID())
	if err != nil {
		if errors.Is(err, repository.ErrNameRequired) {
			s.respondError(w, http.StatusBadRequest, "name is required")
			return
		}
		s.logger.WithError(err).Error("failed to create location")
		s.respondError(w, http.StatusInternalServerError, "failed to create location")
		return
	}

	s.respondJSON(w, http.StatusCreated, created)
}

func (s *Server) handleGetLocation(w http.ResponseWriter, r *http.Request) {
	loc := s.svc.Locations.GetByID(r.PathValue("id"))
	if loc == nil {
		s.respondError(w, http.StatusNotFound, "location not found")
		return
	}
	s.respondJSON(w, http.StatusOK, loc)
}

func (s *Server) handleGetLocationByQR(w http.ResponseWriter, r *http.Request) {
	loc := s.svc.Locations.GetByQRCode(r.PathValue("code"))
	if loc == nil {
		s.respondError(w, http.StatusNotFound, "location not found")
		return
	}
	s.respondJSON(w, http.StatusOK, loc)
}

func (s *Server) handleUpdateLocation(w http.ResponseWriter, r *http.Request) {
	id := r.PathValue("id")
	if s.svc.Locations.GetByID(id) == nil {
		s.respondError(w, http.StatusNotFound, "location not found")
		return
	}

	var patch models.LocationPatch
	if ok, msg := s.decodeJSON(r, &patch); !ok {
		s.respondError(w, http.StatusBadRequest, msg)
		return
	}

	if err := s.svc.Locations.Update(id, &patch); err != nil {
		s.logger.WithError(err).Error("failed to update location")
		s.respondError(w, http.StatusInternalServerError, "failed to update location")
		return
	}

	s.respondJSON(w, http.StatusOK, s.svc.Locations.GetByID(id))
}

func (s *Server) handleDeleteLocation(w http.ResponseWriter, r *http.Request) {
	if err := s.svc.Locations.Delete(r.PathValue("id")); err != nil {
		if errors.Is(err, repository.ErrLocationInUse) {
			s.respondError(w, http.StatusConflict, err.Error())
			return
		}
		s.logger.WithError(err).Error("failed to delete location")
		s.respondError(w, http.StatusInternalServerError, "failed to delete location")
		return
	}
	s.respondJSON(w, http.StatusNoContent, nil)
}

func (s *Server) handleGetLocationItems(w http.ResponseWriter, r *http.Request) {
	id := r.PathValue("id")
	if s.svc.Locations.GetByID(id) == nil {
		s.respondError(w, http.StatusNotFound, "location not found")
		return
	}
	s.respondJSON(w, http.StatusOK, s.svc.Items.GetByLocation(id))
}

// ---------------------------------------------------------------------------
// Household
// ---------------------------------------------------------------------------

type createHouseholdRequest struct {
	Name string `json:"name"`
}

type joinHouseholdRequest struct {
	InviteCode string `json:"inviteCode"`
}

type householdResponse struct {
	State     household.State   `json:"state"`
	Household *models.Household `json:"household,omitempty"`
	DeviceID  string            `json:"deviceId"`
}

func (s *Server) handleGetHousehold(w http.ResponseWriter, _ *http.Request) {
	s.respondJSON(w, http.StatusOK, householdResponse{
		State:     s.svc.Household.State(),
		Household: s.svc.Household.Household(),
		DeviceID:  s.svc.Household.DeviceID(),
	})
}

func (s *Server) handleCreateHousehold(w http.ResponseWriter, r *http.Request) {
	var req createHouseholdRequest
	if ok, msg := s.decodeJSON(r, &req); !ok {
		s.respondError(w, http.StatusBadRequest, msg)
		return
	}

	hh, err := s.svc.Household.Create(r.Context(), req.Name)
	if err != nil {
		switch {
		case errors.Is(err, repository.ErrNameRequired):
			s.respondError(w, http.StatusBadRequest, "name is required")
		case errors.Is(err, household.ErrAlreadyBound):
			s.respondError(w, http.StatusConflict, "device already belongs to a household")
		default:
			s.logger.WithError(err).Error("failed to create household")
			s.respondError(w, http.StatusInternalServerError, "failed to create household")
		}
		return
	}

	s.respondJSON(w, http.StatusCreated, hh)
}

func (s *Server) handleJoinHousehold(w http.ResponseWriter, r *http.Request) {
	var req joinHouseholdRequest
	if ok, msg := s.decodeJSON(r, &req); !ok {
		s.respondError(w, http.StatusBadRequest, msg)
		return
	}

	hh, err := s.svc.Household.Join(r.Context(), req.InviteCode)
	if err != nil {
		switch {
		case errors.Is(err, household.ErrUnknownInviteCode):
			s.respondError(w, http.StatusNotFound, "unknown invite code")
		case errors.Is(err, household.ErrAlreadyBound):
			s.respondError(w, http.StatusConflict, "device already belongs to a household")
		default:
			s.logger.WithError(err).Error("failed to join household")
			s.respondError(w, http.StatusInternalServerError, "failed to join household")
		}
		return
	}

	s.respondJSON(w, http.StatusOK, hh)
}

func (s *Server) handleLeaveHousehold(w http.ResponseWriter, r *http.Request) {
	if err := s.svc.Household.Leave(r.Context()); err != nil {
		s.logger.WithError(err).Error("failed to leave household")
		s.respondError(w, http.StatusInternalServerError, "failed to leave household")
		return
	}
	s.respondJSON(w, http.StatusNoContent, nil)
}

func (s *Server) handleGetMembers(w http.ResponseWriter, r *http.Request) {
	members, err := s.svc.Household.Members(r.Context())
	if err != nil {
		s.logger.WithError(err).Error("failed to get members")
		s.respondError(w, http.StatusInternalServerError, "failed to get members")
		return
	}
	if members == nil {
		members = []*models.HouseholdMember{}
	}
	s.respondJSON(w, http.StatusOK, members)
}
