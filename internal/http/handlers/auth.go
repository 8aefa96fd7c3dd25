package handlers

import (
	"encoding/json"
	"net/http"
	"strings"

	"github.com/lockblip/server/internal/auth"
)

// AuthHandler exposes the dev-only token endpoint. Real tokens come from the
// main LockBlip auth service; this exists for local development and tests.
type AuthHandler struct {
	jwtService *auth.JWTService
	devMode    bool
}

// NewAuthHandler creates a new auth handler
func NewAuthHandler(jwtService *auth.JWTService, devMode bool) *AuthHandler {
	return &AuthHandler{jwtService: jwtService, devMode: devMode}
}

// devLoginRequest is the request body for POST /auth/dev_login
type devLoginRequest struct {
	Username string `json:"username"`
}

// devLoginResponse is the JSON response for dev_login
type devLoginResponse struct {
	AccessToken string `json:"access_token"`
	TokenType   string `json:"token_type"`
}

// HandleDevLogin handles POST /auth/dev_login. Only available in DEV_MODE.
func (h *AuthHandler) HandleDevLogin(w http.ResponseWriter, r *http.Request) {
	if !h.devMode {
		respondWithError(w, http.StatusNotFound, "not found")
		return
	}

	var req devLoginRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		respondWithError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	req.Username = strings.TrimSpace(req.Username)
	if req.Username == "" {
		respondWithError(w, http.StatusBadRequest, "username is required")
		return
	}

	token, err := h.jwtService.SignToken(req.Username)
	if err != nil {
		respondWithError(w, http.StatusInternalServerError, "failed to sign token")
		return
	}

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusOK)
	_ = json.NewEncoder(w).Encode(devLoginResponse{AccessToken: token, TokenType: "bearer"})
}
