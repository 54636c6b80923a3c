package gateway

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/mark3labs/mcp-go/mcp"
	"go.uber.org/zap"

	"github.com/HanTheDev/tool-gateway/internal/auth"
	"github.com/HanTheDev/tool-gateway/internal/db"
	"github.com/HanTheDev/tool-gateway/internal/rpc"
)

const pingTimeout = 2 * time.Second

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), pingTimeout)
	defer cancel()

	status := http.StatusOK
	body := map[string]string{
		"status":  "ok",
		"version": s.opts.Version,
		"db":      "ok",
		"cache":   "ok",
	}
	if err := s.opts.Database.Ping(ctx); err != nil {
		s.logger.Warn("health: database unreachable", zap.Error(err))
		body["status"], body["db"] = "degraded", "error"
		status = http.StatusServiceUnavailable
	}
	if s.opts.Cache == nil {
		body["cache"] = "postgres"
	} else if err := s.opts.Cache.Ping(ctx); err != nil {
		s.logger.Warn("health: cache unreachable", zap.Error(err))
		body["status"], body["cache"] = "degraded", "error"
		status = http.StatusServiceUnavailable
	}
	writeJSON(w, status, body)
}

// handleRPC always answers with a well-formed JSON-RPC body, except for
// notifications which get 202 and no body.
func (s *Server) handleRPC(w http.ResponseWriter, r *http.Request) {
	body, err := io.ReadAll(http.MaxBytesReader(w, r.Body, s.opts.MaxBodyBytes))
	if err != nil {
		writeJSON(w, http.StatusOK, rpc.ErrorResponse(nil, rpc.NewError(mcp.PARSE_ERROR, "parse error: request body unreadable or too large")))
		return
	}

	req, rpcErr := rpc.Decode(body)
	if rpcErr != nil {
		var id json.RawMessage
		if req != nil {
			id = req.ID
		}
		writeJSON(w, http.StatusOK, rpc.ErrorResponse(id, rpcErr))
		return
	}

	caller := auth.CallerFromContext(r.Context())
	resp := s.opts.Dispatcher.Dispatch(r.Context(), caller, req)
	if resp == nil {
		w.WriteHeader(http.StatusAccepted)
		return
	}
	writeJSON(w, http.StatusOK, resp)
}

type pushRequest struct {
	TenantID string          `json:"tenant_id"`
	ClientID string          `json:"client_id"`
	Source   string          `json:"source"`
	Data     json.RawMessage `json:"data"`
}

// handlePush is the ingestion endpoint for producer agents.
func (s *Server) handlePush(w http.ResponseWriter, r *http.Request) {
	tenant, _ := auth.CallerFromContext(r.Context()).Tenant()

	var req pushRequest
	if err := json.NewDecoder(http.MaxBytesReader(w, r.Body, s.opts.MaxBodyBytes)).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid_request", "body must be a JSON object")
		return
	}
	for _, claimed := range []string{req.TenantID, req.ClientID} {
		if claimed != "" && claimed != tenant.ID {
			writeError(w, http.StatusForbidden, rpc.CodeTenantMismatch, "tenant_id does not match the API key")
			return
		}
	}
	req.Source = strings.TrimSpace(req.Source)
	if req.Source == "" {
		writeError(w, http.StatusBadRequest, "invalid_request", "source is required")
		return
	}
	if len(req.Data) == 0 || string(req.Data) == "null" || !json.Valid(req.Data) {
		writeError(w, http.StatusBadRequest, "invalid_request", "data is required")
		return
	}

	record, err := s.opts.Contexts.PushContext(r.Context(), tenant.ID, req.Source, req.Data)
	if err != nil {
		s.logger.Error("push context", zap.String("tenant_id", tenant.ID), zap.String("source", req.Source), zap.Error(err))
		writeError(w, http.StatusInternalServerError, "internal_error", "failed to store context")
		return
	}

	writeJSON(w, http.StatusOK, map[string]any{
		"ok":         true,
		"tenant_id":  tenant.ID,
		"source":     record.Source,
		"updated_at": record.UpdatedAt,
	})
}

type registerRequest struct {
	Name           string  `json:"name"`
	Email          string  `json:"email"`
	ExternalUserID *string `json:"external_user_id"`
}

func (s *Server) handleRegister(w http.ResponseWriter, r *http.Request) {
	var req registerRequest
	if err := json.NewDecoder(http.MaxBytesReader(w, r.Body, s.opts.MaxBodyBytes)).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid_request", "body must be a JSON object")
		return
	}
	if strings.TrimSpace(req.Name) == "" {
		writeError(w, http.StatusBadRequest, "invalid_request", "name is required")
		return
	}
	email, err := auth.NormalizeEmail(req.Email)
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid_request", "email must be a bare address such as ana@example.org")
		return
	}

	tenant, err := auth.NewTenant(req.Name, email, req.ExternalUserID)
	if err != nil {
		s.logger.Error("generate tenant", zap.Error(err))
		writeError(w, http.StatusInternalServerError, "internal_error", "failed to generate credentials")
		return
	}
	if err := s.opts.Tenants.CreateTenant(r.Context(), tenant); err != nil {
		if errors.Is(err, db.ErrDuplicate) {
			writeError(w, http.StatusConflict, "duplicate", "a tenant with this email already exists")
			return
		}
		s.logger.Error("register tenant", zap.Error(err))
		writeError(w, http.StatusInternalServerError, "internal_error", "failed to register")
		return
	}

	s.logger.Info("tenant registered", zap.String("tenant_id", tenant.ID))
	writeJSON(w, http.StatusCreated, map[string]string{
		"tenant_id": tenant.ID,
		"api_key":   tenant.APIKey,
	})
}
