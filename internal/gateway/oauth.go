package gateway

import (
	"encoding/json"
	"errors"
	"mime"
	"net/http"

	"go.uber.org/zap"

	"github.com/HanTheDev/tool-gateway/internal/auth"
	"github.com/HanTheDev/tool-gateway/internal/oauth"
)

// oauthError follows RFC 6749 section 5.2.
func oauthError(w http.ResponseWriter, status int, code, description string) {
	w.Header().Set("Cache-Control", "no-store")
	writeJSON(w, status, map[string]string{"error": code, "error_description": description})
}

func (s *Server) handleMetadata(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, s.opts.Issuer.Metadata())
}

func (s *Server) handleAuthorize(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	redirect, err := s.opts.Issuer.Authorize(r.Context(), oauth.AuthorizeRequest{
		ResponseType:        q.Get("response_type"),
		ClientID:            q.Get("client_id"),
		RedirectURI:         q.Get("redirect_uri"),
		State:               q.Get("state"),
		CodeChallenge:       q.Get("code_challenge"),
		CodeChallengeMethod: q.Get("code_challenge_method"),
	})
	if err != nil {
		if errors.Is(err, oauth.ErrInvalidRequest) {
			oauthError(w, http.StatusBadRequest, "invalid_request", err.Error())
			return
		}
		s.logger.Error("oauth authorize", zap.Error(err))
		oauthError(w, http.StatusInternalServerError, "server_error", "authorization failed")
		return
	}
	http.Redirect(w, r, redirect, http.StatusFound)
}

// handleToken accepts the form encoding RFC 6749 mandates and JSON, which
// several MCP clients send instead.
func (s *Server) handleToken(w http.ResponseWriter, r *http.Request) {
	var req oauth.TokenRequest
	r.Body = http.MaxBytesReader(w, r.Body, s.opts.MaxBodyBytes)

	mediaType, _, _ := mime.ParseMediaType(r.Header.Get("Content-Type"))
	if mediaType == "application/json" {
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			oauthError(w, http.StatusBadRequest, "invalid_request", "malformed JSON body")
			return
		}
	} else {
		if err := r.ParseForm(); err != nil {
			oauthError(w, http.StatusBadRequest, "invalid_request", "malformed form body")
			return
		}
		req = oauth.TokenRequest{
			GrantType:    r.PostForm.Get("grant_type"),
			Code:         r.PostForm.Get("code"),
			CodeVerifier: r.PostForm.Get("code_verifier"),
			RedirectURI:  r.PostForm.Get("redirect_uri"),
		}
	}

	resp, err := s.opts.Issuer.Exchange(r.Context(), req)
	switch {
	case err == nil:
		w.Header().Set("Cache-Control", "no-store")
		writeJSON(w, http.StatusOK, resp)
	case errors.Is(err, oauth.ErrUnsupportedGrantType):
		oauthError(w, http.StatusBadRequest, "unsupported_grant_type", "only authorization_code is supported")
	case errors.Is(err, oauth.ErrInvalidRequest):
		oauthError(w, http.StatusBadRequest, "invalid_request", err.Error())
	case errors.Is(err, oauth.ErrInvalidGrant):
		oauthError(w, http.StatusBadRequest, "invalid_grant", err.Error())
	default:
		s.logger.Error("oauth token exchange", zap.Error(err))
		oauthError(w, http.StatusInternalServerError, "server_error", "token exchange failed")
	}
}

// handleGitHubAuthorize starts a delegation for the authenticated tenant.
func (s *Server) handleGitHubAuthorize(w http.ResponseWriter, r *http.Request) {
	tenant, _ := auth.CallerFromContext(r.Context()).Tenant()

	url, err := s.opts.Delegation.AuthorizeURL(r.Context(), tenant.ID)
	if err != nil {
		if errors.Is(err, oauth.ErrNotConfigured) {
			writeError(w, http.StatusServiceUnavailable, "not_configured", "GitHub OAuth is not configured on this gateway")
			return
		}
		s.logger.Error("github authorize", zap.String("tenant_id", tenant.ID), zap.Error(err))
		writeError(w, http.StatusInternalServerError, "internal_error", "failed to start authorization")
		return
	}

	if r.URL.Query().Get("redirect") == "false" {
		writeJSON(w, http.StatusOK, map[string]string{"authorize_url": url})
		return
	}
	http.Redirect(w, r, url, http.StatusFound)
}

func (s *Server) handleGitHubCallback(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	if providerErr := q.Get("error"); providerErr != "" {
		writeError(w, http.StatusBadRequest, providerErr, q.Get("error_description"))
		return
	}

	tenant, err := s.opts.Delegation.Callback(r.Context(), q.Get("code"), q.Get("state"))
	switch {
	case err == nil:
		username := ""
		if tenant.DelegatedUsername != nil {
			username = *tenant.DelegatedUsername
		}
		writeJSON(w, http.StatusOK, map[string]any{
			"connected": true,
			"tenant_id": tenant.ID,
			"username":  username,
		})
	case errors.Is(err, auth.ErrInvalidState):
		writeError(w, http.StatusBadRequest, "invalid_state", "authorization state is invalid, expired or already used")
	case errors.Is(err, oauth.ErrNotConfigured):
		writeError(w, http.StatusServiceUnavailable, "not_configured", "GitHub OAuth is not configured on this gateway")
	case errors.Is(err, oauth.ErrExchange):
		s.logger.Warn("github code exchange failed", zap.Error(err))
		writeError(w, http.StatusBadGateway, "exchange_failed", "GitHub rejected the authorization code")
	default:
		s.logger.Error("github callback", zap.Error(err))
		writeError(w, http.StatusInternalServerError, "internal_error", "failed to complete authorization")
	}
}
