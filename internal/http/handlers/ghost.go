package handlers

import (
	"encoding/json"
	"log"
	"net/http"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
	"github.com/lockblip/server/internal/ghost"
	"github.com/lockblip/server/internal/middleware"
	"github.com/lockblip/server/pkg/apperr"
)

// GhostHandler handles all Ghost Mode endpoints
type GhostHandler struct {
	svc           *ghost.Service
	unlockLimiter *middleware.RateLimiter
	joinLimiter   *middleware.RateLimiter
}

// NewGhostHandler creates a new ghost handler. Unlock and join/reauth carry
// per-IP limiters to bound credential guessing.
func NewGhostHandler(svc *ghost.Service) *GhostHandler {
	return &GhostHandler{
		svc:           svc,
		unlockLimiter: middleware.NewRateLimiter(10*time.Minute, 10),
		joinLimiter:   middleware.NewRateLimiter(10*time.Minute, 20),
	}
}

// HandleSetup handles POST /ghost/setup
func (h *GhostHandler) HandleSetup(w http.ResponseWriter, r *http.Request) {
	username, ok := middleware.GetUsername(r.Context())
	if !ok {
		respondWithError(w, http.StatusUnauthorized, "unauthorized")
		return
	}

	var req struct {
		Pin string `json:"pin"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		respondWithError(w, http.StatusBadRequest, "invalid request body")
		return
	}

	if err := h.svc.Credentials().Setup(r.Context(), username, strings.TrimSpace(req.Pin)); err != nil {
		respondAppError(w, err)
		return
	}
	respondJSON(w, http.StatusOK, map[string]bool{"success": true})
}

// HandleUnlock handles POST /ghost/unlock
func (h *GhostHandler) HandleUnlock(w http.ResponseWriter, r *http.Request) {
	username, ok := middleware.GetUsername(r.Context())
	if !ok {
		respondWithError(w, http.StatusUnauthorized, "unauthorized")
		return
	}
	if !h.unlockLimiter.Allow(middleware.GetIPKey(r)) {
		respondWithError(w, http.StatusTooManyRequests, "rate limit exceeded")
		return
	}

	var req struct {
		Pin            string `json:"pin"`
		BiometricToken string `json:"biometricToken"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		respondWithError(w, http.StatusBadRequest, "invalid request body")
		return
	}

	result, err := h.svc.Credentials().Unlock(r.Context(), username,
		strings.TrimSpace(req.Pin), strings.TrimSpace(req.BiometricToken))
	if err != nil {
		respondAppError(w, err)
		return
	}
	respondJSON(w, http.StatusOK, map[string]any{
		"sessionToken":    result.Token,
		"expiresAt":       result.ExpiresAt,
		"autoLockTimeout": result.AutoLockTimeout,
	})
}

// HandleHeartbeat handles POST /ghost/heartbeat
func (h *GhostHandler) HandleHeartbeat(w http.ResponseWriter, r *http.Request) {
	username, ok := middleware.GetUsername(r.Context())
	if !ok {
		respondWithError(w, http.StatusUnauthorized, "unauthorized")
		return
	}

	var req struct {
		SessionToken string `json:"sessionToken"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		respondWithError(w, http.StatusBadRequest, "invalid request body")
		return
	}

	expiresAt, err := h.svc.Credentials().Heartbeat(r.Context(), username, strings.TrimSpace(req.SessionToken))
	if err != nil {
		respondAppError(w, err)
		return
	}
	respondJSON(w, http.StatusOK, map[string]any{"expiresAt": expiresAt})
}

// HandleLock handles POST /ghost/lock
func (h *GhostHandler) HandleLock(w http.ResponseWriter, r *http.Request) {
	username, ok := middleware.GetUsername(r.Context())
	if !ok {
		respondWithError(w, http.StatusUnauthorized, "unauthorized")
		return
	}
	if err := h.svc.Credentials().Lock(r.Context(), username); err != nil {
		respondAppError(w, err)
		return
	}
	respondJSON(w, http.StatusOK, map[string]bool{"success": true})
}

// HandleEnableBiometric handles POST /ghost/biometric. Requires a currently
// valid unlock token.
func (h *GhostHandler) HandleEnableBiometric(w http.ResponseWriter, r *http.Request) {
	username, ok := middleware.GetUsername(r.Context())
	if !ok {
		respondWithError(w, http.StatusUnauthorized, "unauthorized")
		return
	}
	if !h.svc.Credentials().Verify(r.Context(), username, middleware.GhostToken(r)) {
		respondAppError(w, apperr.ErrGhostLocked)
		return
	}

	var req struct {
		BiometricToken string `json:"biometricToken"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		respondWithError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	if err := h.svc.Credentials().EnableBiometric(r.Context(), username, strings.TrimSpace(req.BiometricToken)); err != nil {
		respondAppError(w, err)
		return
	}
	respondJSON(w, http.StatusOK, map[string]bool{"success": true})
}

// HandleActivate handles POST /ghost/activate
func (h *GhostHandler) HandleActivate(w http.ResponseWriter, r *http.Request) {
	username, ok := middleware.GetUsername(r.Context())
	if !ok {
		respondWithError(w, http.StatusUnauthorized, "unauthorized")
		return
	}

	var req struct {
		PartnerID        string `json:"partnerId"`
		DeviceType       string `json:"deviceType"`
		DisclaimerAgreed bool   `json:"disclaimerAgreed"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		respondWithError(w, http.StatusBadRequest, "invalid request body")
		return
	}

	result, err := h.svc.Activate(r.Context(), username, middleware.GhostToken(r),
		strings.TrimSpace(req.PartnerID), req.DeviceType, req.DisclaimerAgreed, requestMeta(r, req.DeviceType))
	if err != nil {
		respondAppError(w, err)
		return
	}
	respondJSON(w, http.StatusOK, map[string]any{
		"sessionId": result.SessionID,
		"pin":       result.Pin,
		"partnerId": result.PartnerID,
		"expireAt":  result.ExpireAt,
	})
}

// HandleJoin handles POST /ghost/join
func (h *GhostHandler) HandleJoin(w http.ResponseWriter, r *http.Request) {
	username, ok := middleware.GetUsername(r.Context())
	if !ok {
		respondWithError(w, http.StatusUnauthorized, "unauthorized")
		return
	}
	if !h.joinLimiter.Allow(middleware.GetIPKey(r)) {
		respondWithError(w, http.StatusTooManyRequests, "rate limit exceeded")
		return
	}

	var req struct {
		Pin        string `json:"pin"`
		DeviceType string `json:"deviceType"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		respondWithError(w, http.StatusBadRequest, "invalid request body")
		return
	}

	result, err := h.svc.Join(r.Context(), username, strings.TrimSpace(req.Pin),
		req.DeviceType, requestMeta(r, req.DeviceType))
	if err != nil {
		respondAppError(w, err)
		return
	}
	respondJSON(w, http.StatusOK, map[string]any{
		"sessionId":    result.SessionID,
		"sessionKey":   result.SessionKey,
		"partnerId":    result.PartnerID,
		"participants": result.Participants,
		"expireAt":     result.ExpireAt,
	})
}

// HandleValidateAccess handles POST /ghost/sessions/{sessionID}/validate
func (h *GhostHandler) HandleValidateAccess(w http.ResponseWriter, r *http.Request) {
	username, ok := middleware.GetUsername(r.Context())
	if !ok {
		respondWithError(w, http.StatusUnauthorized, "unauthorized")
		return
	}
	sessionID := chi.URLParam(r, "sessionID")

	result, err := h.svc.ValidateAccess(r.Context(), sessionID, username, requestMeta(r, ""))
	if err != nil {
		respondAppError(w, err)
		return
	}
	if !result.Valid {
		respondJSON(w, http.StatusOK, map[string]any{"valid": false})
		return
	}
	respondJSON(w, http.StatusOK, map[string]any{
		"valid":        true,
		"sessionKey":   result.SessionKey,
		"partnerId":    result.PartnerID,
		"participants": result.Participants,
	})
}

// HandleReauth handles POST /ghost/sessions/{sessionID}/reauth
func (h *GhostHandler) HandleReauth(w http.ResponseWriter, r *http.Request) {
	username, ok := middleware.GetUsername(r.Context())
	if !ok {
		respondWithError(w, http.StatusUnauthorized, "unauthorized")
		return
	}
	if !h.joinLimiter.Allow(middleware.GetIPKey(r)) {
		respondWithError(w, http.StatusTooManyRequests, "rate limit exceeded")
		return
	}
	sessionID := chi.URLParam(r, "sessionID")

	var req struct {
		Pin        string `json:"pin"`
		DeviceType string `json:"deviceType"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		respondWithError(w, http.StatusBadRequest, "invalid request body")
		return
	}

	expireAt, err := h.svc.Reauthenticate(r.Context(), sessionID, username,
		strings.TrimSpace(req.Pin), req.DeviceType, requestMeta(r, req.DeviceType))
	if err != nil {
		respondAppError(w, err)
		return
	}
	respondJSON(w, http.StatusOK, map[string]any{"success": true, "expireAt": expireAt})
}

// HandleSendMessage handles POST /ghost/sessions/{sessionID}/messages
func (h *GhostHandler) HandleSendMessage(w http.ResponseWriter, r *http.Request) {
	username, ok := middleware.GetUsername(r.Context())
	if !ok {
		respondWithError(w, http.StatusUnauthorized, "unauthorized")
		return
	}
	sessionID := chi.URLParam(r, "sessionID")

	var req struct {
		Message         string  `json:"message"`
		MessageType     string  `json:"messageType"`
		MediaURL        *string `json:"mediaUrl"`
		AutoDeleteTimer int     `json:"autoDeleteTimer"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		respondWithError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	if req.Message == "" && req.MediaURL == nil {
		respondWithError(w, http.StatusBadRequest, "message or mediaUrl is required")
		return
	}

	m, err := h.svc.SendMessage(r.Context(), sessionID, username, req.Message, req.MessageType, req.MediaURL, req.AutoDeleteTimer)
	if err != nil {
		respondAppError(w, err)
		return
	}
	respondJSON(w, http.StatusCreated, map[string]any{
		"id":              m.ID.String(),
		"senderId":        m.SenderID,
		"receiverId":      m.ReceiverID,
		"messageType":     m.MessageType,
		"timestamp":       m.CreatedAt,
		"autoDeleteTimer": m.AutoDeleteTimer,
	})
}

// messageResponse is one decrypted message in GET /messages responses
type messageResponse struct {
	ID              string     `json:"id"`
	SenderID        string     `json:"senderId"`
	ReceiverID      string     `json:"receiverId"`
	Message         string     `json:"message"`
	MediaURL        *string    `json:"mediaUrl,omitempty"`
	MessageType     string     `json:"messageType"`
	Viewed          bool       `json:"viewed"`
	ViewTimestamp   *time.Time `json:"viewTimestamp,omitempty"`
	AutoDeleteTimer int        `json:"autoDeleteTimer"`
	DeleteAt        *time.Time `json:"deleteAt,omitempty"`
	Timestamp       time.Time  `json:"timestamp"`
}

// HandleListMessages handles GET /ghost/sessions/{sessionID}/messages
func (h *GhostHandler) HandleListMessages(w http.ResponseWriter, r *http.Request) {
	username, ok := middleware.GetUsername(r.Context())
	if !ok {
		respondWithError(w, http.StatusUnauthorized, "unauthorized")
		return
	}
	sessionID := chi.URLParam(r, "sessionID")

	views, err := h.svc.ListMessages(r.Context(), sessionID, username)
	if err != nil {
		respondAppError(w, err)
		return
	}

	messages := make([]messageResponse, 0, len(views))
	for _, v := range views {
		messages = append(messages, messageResponse{
			ID:              v.ID.String(),
			SenderID:        v.SenderID,
			ReceiverID:      v.ReceiverID,
			Message:         v.Message,
			MediaURL:        v.MediaURL,
			MessageType:     v.MessageType,
			Viewed:          v.Viewed,
			ViewTimestamp:   v.ViewTimestamp,
			AutoDeleteTimer: v.AutoDeleteTimer,
			DeleteAt:        v.DeleteAt,
			Timestamp:       v.Timestamp,
		})
	}
	respondJSON(w, http.StatusOK, map[string]any{"messages": messages})
}

// HandleViewMessage handles POST /ghost/messages/{messageID}/view
func (h *GhostHandler) HandleViewMessage(w http.ResponseWriter, r *http.Request) {
	username, ok := middleware.GetUsername(r.Context())
	if !ok {
		respondWithError(w, http.StatusUnauthorized, "unauthorized")
		return
	}
	messageID, err := uuid.Parse(chi.URLParam(r, "messageID"))
	if err != nil {
		respondWithError(w, http.StatusBadRequest, "invalid message id")
		return
	}

	receipt, err := h.svc.ViewMessage(r.Context(), messageID, username)
	if err != nil {
		respondAppError(w, err)
		return
	}
	respondJSON(w, http.StatusOK, map[string]any{
		"viewTimestamp":   receipt.ViewTimestamp,
		"deleteAt":        receipt.DeleteAt,
		"autoDeleteTimer": receipt.AutoDeleteTimer,
	})
}

// HandleLogEvent handles POST /ghost/sessions/{sessionID}/events. Always
// reports success: audit logging must never fail chat functionality.
func (h *GhostHandler) HandleLogEvent(w http.ResponseWriter, r *http.Request) {
	username, ok := middleware.GetUsername(r.Context())
	if !ok {
		respondWithError(w, http.StatusUnauthorized, "unauthorized")
		return
	}
	sessionID := chi.URLParam(r, "sessionID")

	var req struct {
		EventType  string            `json:"eventType"`
		DeviceType string            `json:"deviceType"`
		Metadata   map[string]string `json:"metadata"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		respondWithError(w, http.StatusBadRequest, "invalid request body")
		return
	}

	h.svc.LogClientEvent(r.Context(), sessionID, username,
		ghost.EventType(req.EventType), requestMeta(r, req.DeviceType), req.Metadata)
	respondJSON(w, http.StatusOK, map[string]bool{"success": true})
}

// auditEntryResponse is one entry in GET /logs responses
type auditEntryResponse struct {
	EventType  string            `json:"eventType"`
	UserID     string            `json:"userId"`
	DeviceType string            `json:"deviceType,omitempty"`
	Metadata   map[string]string `json:"metadata,omitempty"`
	Timestamp  time.Time         `json:"timestamp"`
}

// HandleAccessLogs handles GET /ghost/sessions/{sessionID}/logs
func (h *GhostHandler) HandleAccessLogs(w http.ResponseWriter, r *http.Request) {
	username, ok := middleware.GetUsername(r.Context())
	if !ok {
		respondWithError(w, http.StatusUnauthorized, "unauthorized")
		return
	}
	sessionID := chi.URLParam(r, "sessionID")

	entries, err := h.svc.AccessLogs(r.Context(), sessionID, username)
	if err != nil {
		respondAppError(w, err)
		return
	}

	logs := make([]auditEntryResponse, 0, len(entries))
	for _, e := range entries {
		logs = append(logs, auditEntryResponse{
			EventType:  e.EventType,
			UserID:     e.UserID,
			DeviceType: e.DeviceType,
			Metadata:   e.Metadata,
			Timestamp:  e.CreatedAt,
		})
	}
	respondJSON(w, http.StatusOK, map[string]any{"logs": logs})
}

// HandleTerminate handles POST /ghost/sessions/{sessionID}/terminate
func (h *GhostHandler) HandleTerminate(w http.ResponseWriter, r *http.Request) {
	username, ok := middleware.GetUsername(r.Context())
	if !ok {
		respondWithError(w, http.StatusUnauthorized, "unauthorized")
		return
	}
	sessionID := chi.URLParam(r, "sessionID")

	var req struct {
		DeviceType string `json:"deviceType"`
	}
	// Body is optional for terminate.
	_ = json.NewDecoder(r.Body).Decode(&req)

	if err := h.svc.Terminate(r.Context(), sessionID, username, req.DeviceType, requestMeta(r, req.DeviceType)); err != nil {
		respondAppError(w, err)
		return
	}
	respondJSON(w, http.StatusOK, map[string]bool{"success": true})
}

// respondAppError maps domain error codes to HTTP statuses.
func respondAppError(w http.ResponseWriter, err error) {
	status := http.StatusInternalServerError
	switch apperr.CodeOf(err) {
	case apperr.CodeInvalidArgument:
		status = http.StatusBadRequest
	case apperr.CodeUnauthenticated:
		status = http.StatusUnauthorized
	case apperr.CodePermissionDenied:
		status = http.StatusForbidden
	case apperr.CodeNotFound:
		status = http.StatusNotFound
	case apperr.CodeAlreadyExists:
		status = http.StatusConflict
	case apperr.CodeFailedPrecondition:
		status = http.StatusPreconditionFailed
	}
	if status == http.StatusInternalServerError {
		log.Printf("internal error: %v", err)
	}
	respondWithError(w, status, apperr.MessageOf(err))
}

// respondJSON writes a JSON response with the given status
func respondJSON(w http.ResponseWriter, statusCode int, body any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(statusCode)
	if err := json.NewEncoder(w).Encode(body); err != nil {
		log.Printf("failed to encode response: %v", err)
	}
}

// respondWithError sends a JSON error response
func respondWithError(w http.ResponseWriter, statusCode int, message string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(statusCode)
	response := map[string]string{"error": message}
	_ = json.NewEncoder(w).Encode(response)
}

// requestMeta collects the request attributes recorded with audit entries.
func requestMeta(r *http.Request, deviceType string) ghost.RequestMeta {
	return ghost.RequestMeta{
		DeviceType: deviceType,
		IPAddress:  getClientIP(r),
		UserAgent:  r.UserAgent(),
	}
}

// getClientIP extracts the client IP from the request
func getClientIP(r *http.Request) string {
	forwarded := r.Header.Get("X-Forwarded-For")
	if forwarded != "" {
		// Take first IP if multiple
		ips := strings.Split(forwarded, ",")
		return strings.TrimSpace(ips[0])
	}
	return r.RemoteAddr
}
