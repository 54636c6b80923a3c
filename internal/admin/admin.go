package admin

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"strconv"

	"github.com/gorilla/mux"
	"go.uber.org/zap"

	"github.com/HanTheDev/tool-gateway/internal/auth"
	"github.com/HanTheDev/tool-gateway/internal/db"
	"github.com/HanTheDev/tool-gateway/internal/models"
)

const (
	defaultLogLimit = 100
	maxLogLimit     = 1000
)

type Store interface {
	CreateTenant(ctx context.Context, tenant *models.Tenant) error
	GetTenantByID(ctx context.Context, id string) (*models.Tenant, error)
	ListTenants(ctx context.Context) ([]*models.Tenant, error)
	UpdateTenantStatus(ctx context.Context, id string, status models.Status) error
	UpdateTenantPlan(ctx context.Context, id string, plan models.Plan) error
	RotateAPIKey(ctx context.Context, id, apiKey string) error
	ListUsage(ctx context.Context, tenantID string, limit int) ([]models.UsageLog, error)
	ListIncidents(ctx context.Context, limit int) ([]models.ThreatIncident, error)
	ToolCounts(ctx context.Context, tenantID string) ([]models.ToolCount, error)
	GetStats(ctx context.Context) (*models.Stats, error)
}

// Disconnector drops a tenant's delegated credential.
type Disconnector interface {
	Disconnect(ctx context.Context, tenantID string) error
}

type AdminHandler struct {
	db         Store
	delegation Disconnector
	secret     string
	logger     *zap.Logger
}

func NewAdminHandler(store Store, delegation Disconnector, secret string, logger *zap.Logger) *AdminHandler {
	return &AdminHandler{db: store, delegation: delegation, secret: secret, logger: logger}
}

// RegisterRoutes mounts the admin API under /admin behind the shared secret.
func (h *AdminHandler) RegisterRoutes(router *mux.Router) {
	admin := router.PathPrefix("/admin").Subrouter()
	admin.Use(auth.RequireAdmin(h.secret))

	// Tenant management
	admin.HandleFunc("/tenants", h.ListTenants).Methods("GET")
	admin.HandleFunc("/tenants", h.CreateTenant).Methods("POST")
	admin.HandleFunc("/tenants/{id}", h.GetTenant).Methods("GET")
	admin.HandleFunc("/tenants/{id}", h.UpdateTenant).Methods("PUT", "PATCH")
	admin.HandleFunc("/tenants/{id}/rotate-key", h.RotateAPIKey).Methods("POST")
	admin.HandleFunc("/tenants/{id}/github", h.DisconnectGitHub).Methods("DELETE")

	// Analytics
	admin.HandleFunc("/tenants/{id}/analytics", h.GetAnalytics).Methods("GET")
	admin.HandleFunc("/stats", h.GetStats).Methods("GET")
	admin.HandleFunc("/logs", h.ListLogs).Methods("GET")
	admin.HandleFunc("/incidents", h.ListIncidents).Methods("GET")
}

type createdTenant struct {
	*models.Tenant
	APIKey string `json:"api_key"`
}

func (h *AdminHandler) CreateTenant(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Name           string      `json:"name"`
		Email          string      `json:"email"`
		Plan           models.Plan `json:"plan"`
		ExternalUserID *string     `json:"external_user_id"`
	}

	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}

	// Validate inputs
	if req.Name == "" || req.Email == "" {
		writeError(w, http.StatusBadRequest, "name and email are required")
		return
	}
	if req.Plan != "" && !req.Plan.Valid() {
		writeError(w, http.StatusBadRequest, "plan must be free, pro or enterprise")
		return
	}

	email, err := auth.NormalizeEmail(req.Email)
	if err != nil {
		writeError(w, http.StatusBadRequest, "email must be a bare address")
		return
	}

	tenant, err := auth.NewTenant(req.Name, email, req.ExternalUserID)
	if err != nil {
		h.logger.Error("generate tenant", zap.Error(err))
		writeError(w, http.StatusInternalServerError, "failed to generate credentials")
		return
	}
	if req.Plan != "" {
		tenant.Plan = req.Plan
	}

	if err := h.db.CreateTenant(r.Context(), tenant); err != nil {
		if errors.Is(err, db.ErrDuplicate) {
			writeError(w, http.StatusConflict, "a tenant with this email already exists")
			return
		}
		h.logger.Error("create tenant", zap.Error(err))
		writeError(w, http.StatusInternalServerError, "failed to create tenant")
		return
	}

	h.logger.Info("tenant created by admin", zap.String("tenant_id", tenant.ID), zap.String("plan", string(tenant.Plan)))
	writeJSON(w, http.StatusCreated, createdTenant{Tenant: tenant, APIKey: tenant.APIKey})
}

func (h *AdminHandler) ListTenants(w http.ResponseWriter, r *http.Request) {
	tenants, err := h.db.ListTenants(r.Context())
	if err != nil {
		h.logger.Error("list tenants", zap.Error(err))
		writeError(w, http.StatusInternalServerError, "failed to list tenants")
		return
	}
	if tenants == nil {
		tenants = []*models.Tenant{}
	}
	writeJSON(w, http.StatusOK, tenants)
}

func (h *AdminHandler) GetTenant(w http.ResponseWriter, r *http.Request) {
	tenant, ok := h.loadTenant(w, r)
	if !ok {
		return
	}
	writeJSON(w, http.StatusOK, tenant)
}

// UpdateTenant changes status and/or plan. Tenants are never deleted;
// cancelling is the end of their lifecycle.
func (h *AdminHandler) UpdateTenant(w http.ResponseWriter, r *http.Request) {
	tenant, ok := h.loadTenant(w, r)
	if !ok {
		return
	}

	var updates struct {
		Status *models.Status `json:"status"`
		Plan   *models.Plan   `json:"plan"`
	}
	if err := json.NewDecoder(r.Body).Decode(&updates); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	if updates.Status == nil && updates.Plan == nil {
		writeError(w, http.StatusBadRequest, "nothing to update: send status and/or plan")
		return
	}
	if updates.Status != nil && !updates.Status.Valid() {
		writeError(w, http.StatusBadRequest, "status must be active, suspended or cancelled")
		return
	}
	if updates.Plan != nil && !updates.Plan.Valid() {
		writeError(w, http.StatusBadRequest, "plan must be free, pro or enterprise")
		return
	}

	if updates.Status != nil {
		if err := h.db.UpdateTenantStatus(r.Context(), tenant.ID, *updates.Status); err != nil {
			h.logger.Error("update tenant status", zap.String("tenant_id", tenant.ID), zap.Error(err))
			writeError(w, http.StatusInternalServerError, "failed to update tenant")
			return
		}
	}
	if updates.Plan != nil {
		if err := h.db.UpdateTenantPlan(r.Context(), tenant.ID, *updates.Plan); err != nil {
			h.logger.Error("update tenant plan", zap.String("tenant_id", tenant.ID), zap.Error(err))
			writeError(w, http.StatusInternalServerError, "failed to update tenant")
			return
		}
	}

	updated, err := h.db.GetTenantByID(r.Context(), tenant.ID)
	if err != nil {
		writeError(w, http.StatusInternalServerError, "failed to reload tenant")
		return
	}
	writeJSON(w, http.StatusOK, updated)
}

func (h *AdminHandler) RotateAPIKey(w http.ResponseWriter, r *http.Request) {
	tenant, ok := h.loadTenant(w, r)
	if !ok {
		return
	}

	newAPIKey, err := auth.GenerateAPIKey()
	if err != nil {
		writeError(w, http.StatusInternalServerError, "failed to generate API key")
		return
	}

	if err := h.db.RotateAPIKey(r.Context(), tenant.ID, newAPIKey); err != nil {
		h.logger.Error("rotate api key", zap.String("tenant_id", tenant.ID), zap.Error(err))
		writeError(w, http.StatusInternalServerError, "failed to rotate API key")
		return
	}

	h.logger.Info("api key rotated", zap.String("tenant_id", tenant.ID))
	writeJSON(w, http.StatusOK, map[string]string{
		"tenant_id": tenant.ID,
		"api_key":   newAPIKey,
		"status":    "rotated",
	})
}

func (h *AdminHandler) DisconnectGitHub(w http.ResponseWriter, r *http.Request) {
	tenant, ok := h.loadTenant(w, r)
	if !ok {
		return
	}
	if err := h.delegation.Disconnect(r.Context(), tenant.ID); err != nil {
		h.logger.Error("disconnect github", zap.String("tenant_id", tenant.ID), zap.Error(err))
		writeError(w, http.StatusInternalServerError, "failed to disconnect")
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (h *AdminHandler) GetAnalytics(w http.ResponseWriter, r *http.Request) {
	tenant, ok := h.loadTenant(w, r)
	if !ok {
		return
	}

	counts, err := h.db.ToolCounts(r.Context(), tenant.ID)
	if err != nil {
		h.logger.Error("tool counts", zap.String("tenant_id", tenant.ID), zap.Error(err))
		writeError(w, http.StatusInternalServerError, "failed to get analytics")
		return
	}
	recent, err := h.db.ListUsage(r.Context(), tenant.ID, limitParam(r))
	if err != nil {
		h.logger.Error("list usage", zap.String("tenant_id", tenant.ID), zap.Error(err))
		writeError(w, http.StatusInternalServerError, "failed to get analytics")
		return
	}

	writeJSON(w, http.StatusOK, map[string]any{
		"tenant_id": tenant.ID,
		"by_tool":   nonNil(counts),
		"recent":    nonNil(recent),
	})
}

func (h *AdminHandler) GetStats(w http.ResponseWriter, r *http.Request) {
	stats, err := h.db.GetStats(r.Context())
	if err != nil {
		h.logger.Error("get stats", zap.Error(err))
		writeError(w, http.StatusInternalServerError, "failed to get stats")
		return
	}
	writeJSON(w, http.StatusOK, stats)
}

func (h *AdminHandler) ListLogs(w http.ResponseWriter, r *http.Request) {
	logs, err := h.db.ListUsage(r.Context(), r.URL.Query().Get("tenant_id"), limitParam(r))
	if err != nil {
		h.logger.Error("list usage", zap.Error(err))
		writeError(w, http.StatusInternalServerError, "failed to list logs")
		return
	}
	writeJSON(w, http.StatusOK, nonNil(logs))
}

func (h *AdminHandler) ListIncidents(w http.ResponseWriter, r *http.Request) {
	incidents, err := h.db.ListIncidents(r.Context(), limitParam(r))
	if err != nil {
		h.logger.Error("list incidents", zap.Error(err))
		writeError(w, http.StatusInternalServerError, "failed to list incidents")
		return
	}
	writeJSON(w, http.StatusOK, nonNil(incidents))
}

func (h *AdminHandler) loadTenant(w http.ResponseWriter, r *http.Request) (*models.Tenant, bool) {
	id := mux.Vars(r)["id"]
	tenant, err := h.db.GetTenantByID(r.Context(), id)
	if errors.Is(err, db.ErrNotFound) {
		writeError(w, http.StatusNotFound, "tenant not found")
		return nil, false
	}
	if err != nil {
		h.logger.Error("load tenant", zap.String("tenant_id", id), zap.Error(err))
		writeError(w, http.StatusInternalServerError, "failed to load tenant")
		return nil, false
	}
	return tenant, true
}

func limitParam(r *http.Request) int {
	limit, err := strconv.Atoi(r.URL.Query().Get("limit"))
	if err != nil || limit <= 0 {
		return defaultLogLimit
	}
	if limit > maxLogLimit {
		return maxLogLimit
	}
	return limit
}

func nonNil[T any](items []T) []T {
	if items == nil {
		return []T{}
	}
	return items
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, message string) {
	writeJSON(w, status, map[string]string{"error": message})
}
