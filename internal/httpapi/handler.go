package httpapi

import (
	"encoding/json"
	"errors"
	"net/http"
	"strings"
	"time"

	"pontiapp/attention-service/internal/models"
	"pontiapp/attention-service/internal/store"

	"github.com/google/uuid"
)

type Handler struct {
	store      store.TicketStore
	sessionTTL time.Duration
}

type Options struct {
	SessionTTL time.Duration
}

func NewHandler(store store.TicketStore, options Options) *Handler {
	ttl := options.SessionTTL
	if ttl <= 0 {
		ttl = 8 * time.Hour
	}
	return &Handler{store: store, sessionTTL: ttl}
}

func (h *Handler) Routes() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("/healthz", h.handleHealth)
	mux.HandleFunc("/api/login", h.handleLogin)
	mux.HandleFunc("/api/tickets", h.handleRegisterTicket)
	mux.HandleFunc("/api/tickets/snapshot", h.handleSnapshot)
	mux.HandleFunc("/api/tickets/active", h.handleActiveTicket)
	mux.HandleFunc("/api/tickets/", h.handleTicketActions)
	mux.HandleFunc("/api/positions", h.handlePositions)
	mux.HandleFunc("/api/positions/", h.handlePositionActions)
	return mux
}

type loginRequest struct {
	Email    string `json:"email"`
	Password string `json:"password"`
}

type registerTicketRequest struct {
	RequestID   string `json:"request_id"`
	DisplayName string `json:"display_name"`
	DocumentID  string `json:"document_id"`
	Career      string `json:"career"`
	Period      string `json:"period"`
	Gender      string `json:"gender"`
	Email       string `json:"email"`
	ServiceName string `json:"service_name"`
	PositionID  string `json:"position_id"`
}

type ticketActionRequest struct {
	PositionID string `json:"position_id"`
}

type transferTicketRequest struct {
	PositionID       string `json:"position_id"`
	TargetPositionID string `json:"target_position_id"`
	Reason           string `json:"reason"`
}

type finishTicketRequest struct {
	PositionID  string `json:"position_id"`
	Description string `json:"description"`
}

type availabilityRequest struct {
	Available bool `json:"available"`
}

type errorResponse struct {
	RequestID string        `json:"request_id"`
	Error     responseError `json:"error"`
}

type responseError struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}

func (h *Handler) handleHealth(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		w.WriteHeader(http.StatusMethodNotAllowed)
		return
	}
	w.WriteHeader(http.StatusOK)
}

func (h *Handler) handleLogin(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		w.WriteHeader(http.StatusMethodNotAllowed)
		return
	}

	var req loginRequest
	decoder := json.NewDecoder(r.Body)
	decoder.DisallowUnknownFields()
	if err := decoder.Decode(&req); err != nil {
		writeError(w, "", http.StatusBadRequest, "invalid_json", "invalid JSON payload")
		return
	}
	req.Email = strings.TrimSpace(req.Email)
	if req.Email == "" || req.Password == "" {
		writeError(w, "", http.StatusBadRequest, "invalid_request", "email and password are required")
		return
	}

	session, err := h.store.Login(r.Context(), req.Email, req.Password, time.Now().UTC().Add(h.sessionTTL))
	if err != nil {
		if errors.Is(err, store.ErrBadCredentials) {
			writeError(w, "", http.StatusUnauthorized, "bad_credentials", "invalid email or password")
			return
		}
		status, code, msg := mapError(err)
		writeError(w, "", status, code, msg)
		return
	}

	positions, err := h.store.GetAccess(r.Context(), session.UserID)
	if err != nil {
		status, code, msg := mapError(err)
		writeError(w, "", status, code, msg)
		return
	}

	writeJSON(w, http.StatusOK, map[string]interface{}{
		"session_id": session.SessionID,
		"user_id":    session.UserID,
		"email":      session.Email,
		"expires_at": session.ExpiresAt,
		"positions":  positions,
	})
}

func (h *Handler) handleRegisterTicket(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		w.WriteHeader(http.StatusMethodNotAllowed)
		return
	}

	var req registerTicketRequest
	decoder := json.NewDecoder(r.Body)
	decoder.DisallowUnknownFields()
	if err := decoder.Decode(&req); err != nil {
		writeError(w, req.RequestID, http.StatusBadRequest, "invalid_json", "invalid JSON payload")
		return
	}

	req.RequestID = strings.TrimSpace(req.RequestID)
	req.DisplayName = strings.TrimSpace(req.DisplayName)
	req.DocumentID = strings.TrimSpace(req.DocumentID)
	req.ServiceName = strings.TrimSpace(req.ServiceName)
	req.PositionID = strings.TrimSpace(req.PositionID)

	if req.RequestID == "" || req.DisplayName == "" || req.DocumentID == "" || req.ServiceName == "" || req.PositionID == "" {
		writeError(w, req.RequestID, http.StatusBadRequest, "invalid_request", "request_id, display_name, document_id, service_name, and position_id are required")
		return
	}
	if !isValidUUID(req.RequestID) || !isValidUUID(req.PositionID) {
		writeError(w, req.RequestID, http.StatusBadRequest, "invalid_request", "request_id and position_id must be UUIDs")
		return
	}

	ticket, _, err := h.store.RegisterTicket(r.Context(), store.RegisterTicketInput{
		RequestID:   req.RequestID,
		DisplayName: req.DisplayName,
		DocumentID:  req.DocumentID,
		Career:      strings.TrimSpace(req.Career),
		Period:      strings.TrimSpace(req.Period),
		Gender:      strings.TrimSpace(req.Gender),
		Email:       strings.TrimSpace(req.Email),
		ServiceName: req.ServiceName,
		PositionID:  req.PositionID,
		CreatedAt:   time.Now().UTC(),
	})
	if err != nil {
		status, code, msg := mapError(err)
		writeError(w, req.RequestID, status, code, msg)
		return
	}

	writeJSON(w, http.StatusOK, ticket)
}

func (h *Handler) handleSnapshot(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		w.WriteHeader(http.StatusMethodNotAllowed)
		return
	}

	positionID := strings.TrimSpace(r.URL.Query().Get("position_id"))
	if positionID == "" {
		writeError(w, "", http.StatusBadRequest, "invalid_request", "position_id is required")
		return
	}
	if !isValidUUID(positionID) {
		writeError(w, "", http.StatusBadRequest, "invalid_request", "position_id must be a UUID")
		return
	}
	if !requirePositionAccess(w, r, positionID) {
		return
	}

	date := strings.TrimSpace(r.URL.Query().Get("date"))
	if date == "" {
		date = models.DateBucket(time.Now().UTC())
	} else if _, err := time.Parse(models.DateBucketLayout, date); err != nil {
		writeError(w, "", http.StatusBadRequest, "invalid_request", "date must be MM/DD/YYYY")
		return
	}

	includeState := strings.TrimSpace(r.URL.Query().Get("state"))
	if includeState == "" {
		includeState = models.StatePending
	}
	if includeState != models.StatePending && includeState != models.StateCompleted {
		writeError(w, "", http.StatusBadRequest, "invalid_request", "state must be pending or completed")
		return
	}

	tickets, err := h.store.SnapshotTickets(r.Context(), store.SnapshotFilter{
		PositionID:   positionID,
		Date:         date,
		IncludeState: includeState,
	})
	if err != nil {
		status, code, msg := mapError(err)
		writeError(w, "", status, code, msg)
		return
	}
	if tickets == nil {
		tickets = []models.Ticket{}
	}

	writeJSON(w, http.StatusOK, tickets)
}

func (h *Handler) handleActiveTicket(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		w.WriteHeader(http.StatusMethodNotAllowed)
		return
	}

	positionID := strings.TrimSpace(r.URL.Query().Get("position_id"))
	if positionID == "" {
		writeError(w, "", http.StatusBadRequest, "invalid_request", "position_id is required")
		return
	}
	if !isValidUUID(positionID) {
		writeError(w, "", http.StatusBadRequest, "invalid_request", "position_id must be a UUID")
		return
	}
	if !requirePositionAccess(w, r, positionID) {
		return
	}

	ticket, found, err := h.store.GetActiveTicket(r.Context(), positionID)
	if err != nil {
		status, code, msg := mapError(err)
		writeError(w, "", status, code, msg)
		return
	}
	if !found {
		w.WriteHeader(http.StatusNoContent)
		return
	}

	writeJSON(w, http.StatusOK, ticket)
}

func (h *Handler) handlePositions(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		w.WriteHeader(http.StatusMethodNotAllowed)
		return
	}

	positions, err := h.store.ListPositions(r.Context(), strings.TrimSpace(r.URL.Query().Get("business_unit")))
	if err != nil {
		status, code, msg := mapError(err)
		writeError(w, "", status, code, msg)
		return
	}
	if positions == nil {
		positions = []models.AttentionPosition{}
	}

	writeJSON(w, http.StatusOK, positions)
}

func (h *Handler) handlePositionActions(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		w.WriteHeader(http.StatusMethodNotAllowed)
		return
	}

	path := strings.TrimPrefix(r.URL.Path, "/api/positions/")
	parts := strings.Split(strings.Trim(path, "/"), "/")
	if len(parts) != 2 || parts[1] != "availability" {
		w.WriteHeader(http.StatusNotFound)
		return
	}
	positionID := parts[0]
	if !isValidUUID(positionID) {
		writeError(w, "", http.StatusBadRequest, "invalid_request", "position_id must be a UUID")
		return
	}
	if !requirePositionAccess(w, r, positionID) {
		return
	}

	var req availabilityRequest
	decoder := json.NewDecoder(r.Body)
	decoder.DisallowUnknownFields()
	if err := decoder.Decode(&req); err != nil {
		writeError(w, "", http.StatusBadRequest, "invalid_json", "invalid JSON payload")
		return
	}

	if err := h.store.UpdatePositionAvailability(r.Context(), positionID, req.Available); err != nil {
		status, code, msg := mapError(err)
		writeError(w, "", status, code, msg)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (h *Handler) handleTicketActions(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		w.WriteHeader(http.StatusMethodNotAllowed)
		return
	}

	path := strings.TrimPrefix(r.URL.Path, "/api/tickets/")
	parts := strings.Split(strings.Trim(path, "/"), "/")
	if len(parts) != 2 {
		w.WriteHeader(http.StatusNotFound)
		return
	}

	ticketID := parts[0]
	action := parts[1]
	if !isValidUUID(ticketID) {
		writeError(w, "", http.StatusBadRequest, "invalid_request", "ticket_id must be a UUID")
		return
	}

	switch action {
	case "call":
		h.handleCallTicket(w, r, ticketID)
	case "attend":
		h.handleAttendTicket(w, r, ticketID)
	case "cancel":
		h.handleCancelTicket(w, r, ticketID)
	case "transfer":
		h.handleTransferTicket(w, r, ticketID)
	case "finish":
		h.handleFinishTicket(w, r, ticketID)
	default:
		w.WriteHeader(http.StatusNotFound)
	}
}

func (h *Handler) handleCallTicket(w http.ResponseWriter, r *http.Request, ticketID string) {
	input, ok := h.decodeAction(w, r, ticketID)
	if !ok {
		return
	}
	ticket, err := h.store.CallTicket(r.Context(), input)
	if err != nil {
		status, code, msg := mapError(err)
		writeError(w, "", status, code, msg)
		return
	}
	writeJSON(w, http.StatusOK, ticket)
}

func (h *Handler) handleAttendTicket(w http.ResponseWriter, r *http.Request, ticketID string) {
	input, ok := h.decodeAction(w, r, ticketID)
	if !ok {
		return
	}
	ticket, err := h.store.AttendTicket(r.Context(), input)
	if err != nil {
		status, code, msg := mapError(err)
		writeError(w, "", status, code, msg)
		return
	}
	writeJSON(w, http.StatusOK, ticket)
}

func (h *Handler) handleCancelTicket(w http.ResponseWriter, r *http.Request, ticketID string) {
	input, ok := h.decodeAction(w, r, ticketID)
	if !ok {
		return
	}
	ticket, err := h.store.CancelTicket(r.Context(), input)
	if err != nil {
		status, code, msg := mapError(err)
		writeError(w, "", status, code, msg)
		return
	}
	writeJSON(w, http.StatusOK, ticket)
}

func (h *Handler) handleTransferTicket(w http.ResponseWriter, r *http.Request, ticketID string) {
	var req transferTicketRequest
	decoder := json.NewDecoder(r.Body)
	decoder.DisallowUnknownFields()
	if err := decoder.Decode(&req); err != nil {
		writeError(w, "", http.StatusBadRequest, "invalid_json", "invalid JSON payload")
		return
	}
	req.PositionID = strings.TrimSpace(req.PositionID)
	req.TargetPositionID = strings.TrimSpace(req.TargetPositionID)
	req.Reason = strings.TrimSpace(req.Reason)
	if req.PositionID == "" || req.TargetPositionID == "" {
		writeError(w, "", http.StatusBadRequest, "invalid_request", "position_id and target_position_id are required")
		return
	}
	if !isValidUUID(req.PositionID) || !isValidUUID(req.TargetPositionID) {
		writeError(w, "", http.StatusBadRequest, "invalid_request", "position_id and target_position_id must be UUIDs")
		return
	}
	if req.TargetPositionID == req.PositionID {
		writeError(w, "", http.StatusBadRequest, "invalid_request", "target_position_id must differ from position_id")
		return
	}
	if !requirePositionAccess(w, r, req.PositionID) {
		return
	}

	ticket, err := h.store.TransferTicket(r.Context(), store.TicketActionInput{
		TicketID:         ticketID,
		PositionID:       req.PositionID,
		TargetPositionID: req.TargetPositionID,
		Reason:           req.Reason,
		OccurredAt:       time.Now().UTC(),
	})
	if err != nil {
		status, code, msg := mapError(err)
		writeError(w, "", status, code, msg)
		return
	}
	writeJSON(w, http.StatusOK, ticket)
}

func (h *Handler) handleFinishTicket(w http.ResponseWriter, r *http.Request, ticketID string) {
	var req finishTicketRequest
	decoder := json.NewDecoder(r.Body)
	decoder.DisallowUnknownFields()
	if err := decoder.Decode(&req); err != nil {
		writeError(w, "", http.StatusBadRequest, "invalid_json", "invalid JSON payload")
		return
	}
	req.PositionID = strings.TrimSpace(req.PositionID)
	if req.PositionID == "" {
		writeError(w, "", http.StatusBadRequest, "invalid_request", "position_id is required")
		return
	}
	if !isValidUUID(req.PositionID) {
		writeError(w, "", http.StatusBadRequest, "invalid_request", "position_id must be a UUID")
		return
	}
	if !requirePositionAccess(w, r, req.PositionID) {
		return
	}

	ticket, err := h.store.FinishTicket(r.Context(), store.TicketActionInput{
		TicketID:    ticketID,
		PositionID:  req.PositionID,
		Description: strings.TrimSpace(req.Description),
		OccurredAt:  time.Now().UTC(),
	})
	if err != nil {
		status, code, msg := mapError(err)
		writeError(w, "", status, code, msg)
		return
	}
	writeJSON(w, http.StatusOK, ticket)
}

func (h *Handler) decodeAction(w http.ResponseWriter, r *http.Request, ticketID string) (store.TicketActionInput, bool) {
	var req ticketActionRequest
	decoder := json.NewDecoder(r.Body)
	decoder.DisallowUnknownFields()
	if err := decoder.Decode(&req); err != nil {
		writeError(w, "", http.StatusBadRequest, "invalid_json", "invalid JSON payload")
		return store.TicketActionInput{}, false
	}
	req.PositionID = strings.TrimSpace(req.PositionID)
	if req.PositionID == "" {
		writeError(w, "", http.StatusBadRequest, "invalid_request", "position_id is required")
		return store.TicketActionInput{}, false
	}
	if !isValidUUID(req.PositionID) {
		writeError(w, "", http.StatusBadRequest, "invalid_request", "position_id must be a UUID")
		return store.TicketActionInput{}, false
	}
	if !requirePositionAccess(w, r, req.PositionID) {
		return store.TicketActionInput{}, false
	}
	return store.TicketActionInput{
		TicketID:   ticketID,
		PositionID: req.PositionID,
		OccurredAt: time.Now().UTC(),
	}, true
}

func isValidUUID(value string) bool {
	_, err := uuid.Parse(value)
	return err == nil
}

func mapError(err error) (int, string, string) {
	switch {
	case errors.Is(err, store.ErrTicketNotFound):
		return http.StatusNotFound, "ticket_not_found", "ticket not found"
	case errors.Is(err, store.ErrPositionNotFound):
		return http.StatusNotFound, "position_not_found", "position not found"
	case errors.Is(err, store.ErrInvalidState):
		return http.StatusConflict, "invalid_state", "ticket state does not allow this action"
	case errors.Is(err, store.ErrPositionMismatch):
		return http.StatusConflict, "position_mismatch", "ticket assigned to different position"
	case errors.Is(err, store.ErrPositionBusy):
		return http.StatusConflict, "position_busy", "position already attending a ticket"
	case errors.Is(err, store.ErrPositionUnavailable):
		return http.StatusConflict, "position_unavailable", "position unavailable"
	case errors.Is(err, store.ErrAccessDenied):
		return http.StatusForbidden, "access_denied", "access denied"
	default:
		return http.StatusInternalServerError, "internal_error", "internal server error"
	}
}

func writeError(w http.ResponseWriter, requestID string, status int, code, message string) {
	writeJSON(w, status, errorResponse{
		RequestID: requestID,
		Error: responseError{
			Code:    code,
			Message: message,
		},
	})
}

func writeJSON(w http.ResponseWriter, status int, payload interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if payload == nil {
		return
	}
	_ = json.NewEncoder(w).Encode(payload)
}
