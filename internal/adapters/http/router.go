package http

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/samedev2/losungquebrasv32-sub001/internal/application"
	"github.com/samedev2/losungquebrasv32-sub001/internal/domain"
)

const sessionCookieName = "qb_session"

type contextKey string

const identityKey contextKey = "identity"

type Handler struct {
	service    *application.TrackerService
	sessionTTL time.Duration
}

func NewRouter(service *application.TrackerService, sessionTTL time.Duration) http.Handler {
	if sessionTTL <= 0 {
		sessionTTL = 12 * time.Hour
	}
	h := &Handler{service: service, sessionTTL: sessionTTL}
	r := chi.NewRouter()

	r.Route("/api", func(api chi.Router) {
		api.Post("/auth/login", h.handleLogin)
		api.With(h.requireAuth).Get("/auth/whoami", h.handleWhoAmI)
		api.With(h.requireAuth).Post("/auth/logout", h.handleLogout)

		api.With(h.requireAuth).Get("/records", h.handleListRecords)
		api.With(h.requireAuth).Post("/records", h.handleCreateRecord)
		api.With(h.requireAuth).Post("/records/bulk-delete", h.handleBulkDeleteRecords)
		api.With(h.requireAuth).Get("/records/{id}", h.handleGetRecord)
		api.With(h.requireAuth).Delete("/records/{id}", h.handleDeleteRecord)
		api.With(h.requireAuth).Get("/records/{id}/transitions", h.handleListTransitions)
		api.With(h.requireAuth).Post("/records/{id}/transitions", h.handleRecordTransition)
		api.With(h.requireAuth).Get("/records/{id}/timeline", h.handleTimeline)
		api.With(h.requireAuth).Get("/records/{id}/analysis", h.handleAnalysis)
		api.With(h.requireAuth).Get("/records/{id}/occurrences", h.handleListOccurrences)
		api.With(h.requireAuth).Post("/records/{id}/occurrences", h.handleAddOccurrence)

		api.With(h.requireAuth).Get("/reports/managerial", h.handleManagerialReport)

		api.With(h.requireAuth).Get("/access/users", h.handleListUsers)
		api.With(h.requireAuth).Post("/access/users", h.handleCreateUser)
		api.With(h.requireAuth).Get("/access/roles", h.handleListRoles)
		api.With(h.requireAuth).Post("/access/assign-role", h.handleAssignRole)
		api.With(h.requireAuth).Get("/audit/logs", h.handleListAuditLogs)

		api.Get("/statuses", h.handleListStatuses)
	})

	return r
}

func (h *Handler) requireAuth(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		identity, ok := h.authenticateRequest(r)
		if !ok {
			writeJSON(w, http.StatusUnauthorized, map[string]any{"error": "unauthorized"})
			return
		}
		next.ServeHTTP(w, r.WithContext(context.WithValue(r.Context(), identityKey, identity)))
	})
}

func (h *Handler) authenticateRequest(r *http.Request) (domain.Identity, bool) {
	authHeader := r.Header.Get("Authorization")
	if strings.HasPrefix(strings.ToLower(authHeader), "bearer ") {
		token := strings.TrimSpace(authHeader[7:])
		identity, err := h.service.AuthenticateBearerToken(r.Context(), token)
		if err == nil {
			return identity, true
		}
	}

	c, err := r.Cookie(sessionCookieName)
	if err == nil && strings.TrimSpace(c.Value) != "" {
		identity, authErr := h.service.AuthenticateSession(r.Context(), c.Value)
		if authErr == nil {
			return identity, true
		}
	}

	return domain.Identity{}, false
}

func identityFromContext(ctx context.Context) (domain.Identity, bool) {
	value := ctx.Value(identityKey)
	if value == nil {
		return domain.Identity{}, false
	}
	identity, ok := value.(domain.Identity)
	return identity, ok
}

type loginRequest struct {
	Email     string `json:"email"`
	Password  string `json:"password"`
	Mode      string `json:"mode"`
	TokenName string `json:"token_name"`
}

func (h *Handler) handleLogin(w http.ResponseWriter, r *http.Request) {
	var req loginRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]any{"error": "invalid payload"})
		return
	}
	mode := strings.ToLower(strings.TrimSpace(req.Mode))
	if mode == "" {
		mode = "token"
	}

	if mode == "session" {
		u, token, err := h.service.LoginWithSession(r.Context(), req.Email, req.Password, h.sessionTTL)
		if err != nil {
			writeJSON(w, http.StatusUnauthorized, map[string]any{"error": "invalid credentials"})
			return
		}
		h.setSessionCookie(w, token)
		writeJSON(w, http.StatusOK, map[string]any{"user_id": u.ID, "email": u.Email, "mode": "session"})
		return
	}

	u, token, err := h.service.LoginWithAPIToken(r.Context(), req.Email, req.Password, req.TokenName, nil)
	if err != nil {
		writeJSON(w, http.StatusUnauthorized, map[string]any{"error": "invalid credentials"})
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"user_id": u.ID, "email": u.Email, "token": token, "mode": "token"})
}

func (h *Handler) handleWhoAmI(w http.ResponseWriter, r *http.Request) {
	identity, ok := identityFromContext(r.Context())
	if !ok {
		writeJSON(w, http.StatusUnauthorized, map[string]any{"error": "unauthorized"})
		return
	}
	perms := make([]string, 0, len(identity.Permissions))
	for p := range identity.Permissions {
		perms = append(perms, p)
	}
	writeJSON(w, http.StatusOK, map[string]any{"id": identity.User.ID, "email": identity.User.Email, "permissions": perms})
}

func (h *Handler) handleLogout(w http.ResponseWriter, r *http.Request) {
	authHeader := r.Header.Get("Authorization")
	if strings.HasPrefix(strings.ToLower(authHeader), "bearer ") {
		writeJSON(w, http.StatusOK, map[string]any{"ok": true})
		return
	}
	c, err := r.Cookie(sessionCookieName)
	if err == nil && c.Value != "" {
		_ = h.service.LogoutSession(r.Context(), c.Value)
		h.clearSessionCookie(w)
	}
	writeJSON(w, http.StatusOK, map[string]any{"ok": true})
}

func (h *Handler) handleListStatuses(w http.ResponseWriter, r *http.Request) {
	type statusInfo struct {
		Status             domain.Status   `json:"status"`
		Label              string          `json:"label"`
		Icon               string          `json:"icon"`
		Color              string          `json:"color"`
		Terminal           bool            `json:"terminal"`
		AllowedTransitions []domain.Status `json:"allowed_transitions"`
	}
	out := make([]statusInfo, 0)
	for _, status := range domain.AllStatuses() {
		cfg, ok := status.Config()
		if !ok {
			continue
		}
		out = append(out, statusInfo{
			Status:             status,
			Label:              cfg.Label,
			Icon:               cfg.Icon,
			Color:              cfg.Color,
			Terminal:           status.IsTerminal(),
			AllowedTransitions: cfg.AllowedTransitions,
		})
	}
	writeJSON(w, http.StatusOK, out)
}

type createRecordRequest struct {
	VehiclePlate string `json:"vehicle_plate"`
	DriverName   string `json:"driver_name"`
	Description  string `json:"description"`
}

func (h *Handler) handleCreateRecord(w http.ResponseWriter, r *http.Request) {
	identity, _ := identityFromContext(r.Context())
	var req createRecordRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]any{"error": "invalid payload"})
		return
	}
	record, err := h.service.CreateRecord(r.Context(), identity, req.VehiclePlate, req.DriverName, req.Description)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, record)
}

func (h *Handler) handleListRecords(w http.ResponseWriter, r *http.Request) {
	identity, _ := identityFromContext(r.Context())

	filter := domain.RecordFilter{Query: r.URL.Query().Get("q")}
	if raw := strings.TrimSpace(r.URL.Query().Get("status")); raw != "" {
		status := domain.Status(raw)
		filter.Status = &status
	}
	if raw := strings.TrimSpace(r.URL.Query().Get("limit")); raw != "" {
		parsed, err := strconv.Atoi(raw)
		if err != nil {
			writeJSON(w, http.StatusBadRequest, map[string]any{"error": "invalid limit"})
			return
		}
		filter.Limit = parsed
	}

	records, err := h.service.ListRecords(r.Context(), identity, filter)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, records)
}

func (h *Handler) handleGetRecord(w http.ResponseWriter, r *http.Request) {
	identity, _ := identityFromContext(r.Context())
	id, err := recordIDParam(r)
	if err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]any{"error": err.Error()})
		return
	}
	record, err := h.service.GetRecord(r.Context(), identity, id)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, record)
}

func (h *Handler) handleDeleteRecord(w http.ResponseWriter, r *http.Request) {
	identity, _ := identityFromContext(r.Context())
	id, err := recordIDParam(r)
	if err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]any{"error": err.Error()})
		return
	}
	if err := h.service.DeleteRecord(r.Context(), identity, id); err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"ok": true})
}

type bulkDeleteRequest struct {
	IDs []uint `json:"ids"`
}

func (h *Handler) handleBulkDeleteRecords(w http.ResponseWriter, r *http.Request) {
	identity, _ := identityFromContext(r.Context())
	var req bulkDeleteRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]any{"error": "invalid payload"})
		return
	}
	if err := h.service.DeleteRecords(r.Context(), identity, req.IDs); err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"ok": true, "deleted": len(req.IDs)})
}

type recordTransitionRequest struct {
	NewStatus    string `json:"new_status"`
	OperatorName string `json:"operator_name"`
	Notes        string `json:"notes"`
}

func (h *Handler) handleRecordTransition(w http.ResponseWriter, r *http.Request) {
	identity, _ := identityFromContext(r.Context())
	id, err := recordIDParam(r)
	if err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]any{"error": err.Error()})
		return
	}
	var req recordTransitionRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]any{"error": "invalid payload"})
		return
	}
	tr, err := h.service.RecordTransition(r.Context(), identity, id, domain.Status(req.NewStatus), req.OperatorName, req.Notes)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, tr)
}

func (h *Handler) handleListTransitions(w http.ResponseWriter, r *http.Request) {
	identity, _ := identityFromContext(r.Context())
	id, err := recordIDParam(r)
	if err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]any{"error": err.Error()})
		return
	}
	transitions, err := h.service.ListTransitions(r.Context(), identity, id)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, transitions)
}

func (h *Handler) handleTimeline(w http.ResponseWriter, r *http.Request) {
	identity, _ := identityFromContext(r.Context())
	id, err := recordIDParam(r)
	if err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]any{"error": err.Error()})
		return
	}
	entries, err := h.service.Timeline(r.Context(), identity, id)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, entries)
}

func (h *Handler) handleAnalysis(w http.ResponseWriter, r *http.Request) {
	identity, _ := identityFromContext(r.Context())
	id, err := recordIDParam(r)
	if err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]any{"error": err.Error()})
		return
	}
	analysis, err := h.service.AnalyzeTimeline(r.Context(), identity, id)
	if err != nil {
		writeError(w, err)
		return
	}
	if analysis == nil {
		writeJSON(w, http.StatusOK, map[string]any{"record_id": id, "message": "no transition data"})
		return
	}
	writeJSON(w, http.StatusOK, analysis)
}

type addOccurrenceRequest struct {
	OperatorName string `json:"operator_name"`
	Description  string `json:"description"`
}

func (h *Handler) handleAddOccurrence(w http.ResponseWriter, r *http.Request) {
	identity, _ := identityFromContext(r.Context())
	id, err := recordIDParam(r)
	if err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]any{"error": err.Error()})
		return
	}
	var req addOccurrenceRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]any{"error": "invalid payload"})
		return
	}
	occ, err := h.service.AddOccurrence(r.Context(), identity, id, req.OperatorName, req.Description)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, occ)
}

func (h *Handler) handleListOccurrences(w http.ResponseWriter, r *http.Request) {
	identity, _ := identityFromContext(r.Context())
	id, err := recordIDParam(r)
	if err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]any{"error": err.Error()})
		return
	}
	occurrences, err := h.service.ListOccurrences(r.Context(), identity, id)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, occurrences)
}

func (h *Handler) handleManagerialReport(w http.ResponseWriter, r *http.Request) {
	identity, _ := identityFromContext(r.Context())

	start, err := parseTimeParam(r.URL.Query().Get("start"))
	if err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]any{"error": "invalid start, expected RFC3339 or YYYY-MM-DD"})
		return
	}
	end, err := parseTimeParam(r.URL.Query().Get("end"))
	if err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]any{"error": "invalid end, expected RFC3339 or YYYY-MM-DD"})
		return
	}

	report, err := h.service.GenerateReport(r.Context(), identity, start, end)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, report)
}

func (h *Handler) handleListUsers(w http.ResponseWriter, r *http.Request) {
	identity, _ := identityFromContext(r.Context())
	users, err := h.service.ListUsers(r.Context(), identity, r.URL.Query().Get("q"), 500)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, users)
}

type createUserRequest struct {
	Email    string `json:"email"`
	Password string `json:"password"`
	RoleID   uint   `json:"role_id"`
}

func (h *Handler) handleCreateUser(w http.ResponseWriter, r *http.Request) {
	identity, _ := identityFromContext(r.Context())
	var req createUserRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]any{"error": "invalid payload"})
		return
	}
	u, err := h.service.CreateUser(r.Context(), identity, req.Email, req.Password, req.RoleID)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, u)
}

func (h *Handler) handleListRoles(w http.ResponseWriter, r *http.Request) {
	identity, _ := identityFromContext(r.Context())
	roles, err := h.service.ListRoles(r.Context(), identity)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, roles)
}

type assignRoleRequest struct {
	UserID uint `json:"user_id"`
	RoleID uint `json:"role_id"`
}

func (h *Handler) handleAssignRole(w http.ResponseWriter, r *http.Request) {
	identity, _ := identityFromContext(r.Context())
	var req assignRoleRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]any{"error": "invalid payload"})
		return
	}
	if err := h.service.AssignRole(r.Context(), identity, req.UserID, req.RoleID); err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"ok": true})
}

func (h *Handler) handleListAuditLogs(w http.ResponseWriter, r *http.Request) {
	identity, _ := identityFromContext(r.Context())
	logs, err := h.service.ListAuditLogs(r.Context(), identity, 500)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, logs)
}

func recordIDParam(r *http.Request) (uint, error) {
	raw := chi.URLParam(r, "id")
	parsed, err := strconv.ParseUint(raw, 10, 64)
	if err != nil || parsed == 0 {
		return 0, errors.New("id must be a positive integer")
	}
	return uint(parsed), nil
}

func parseTimeParam(raw string) (time.Time, error) {
	raw = strings.TrimSpace(raw)
	if t, err := time.Parse(time.RFC3339, raw); err == nil {
		return t, nil
	}
	return time.Parse("2006-01-02", raw)
}

func (h *Handler) setSessionCookie(w http.ResponseWriter, token string) {
	http.SetCookie(w, &http.Cookie{
		Name:     sessionCookieName,
		Value:    token,
		Path:     "/",
		HttpOnly: true,
		SameSite: http.SameSiteLaxMode,
		Secure:   false,
	})
}

func (h *Handler) clearSessionCookie(w http.ResponseWriter) {
	http.SetCookie(w, &http.Cookie{
		Name:     sessionCookieName,
		Value:    "",
		Path:     "/",
		HttpOnly: true,
		Expires:  time.Unix(0, 0),
		MaxAge:   -1,
	})
}

// statusForError maps the domain error taxonomy onto HTTP statuses.
func statusForError(err error) int {
	switch {
	case errors.Is(err, domain.ErrValidation):
		return http.StatusBadRequest
	case errors.Is(err, domain.ErrStateTransition):
		return http.StatusConflict
	case errors.Is(err, domain.ErrPermissionDenied):
		return http.StatusForbidden
	case errors.Is(err, domain.ErrNotFound):
		return http.StatusNotFound
	default:
		return http.StatusInternalServerError
	}
}

func writeError(w http.ResponseWriter, err error) {
	writeJSON(w, statusForError(err), map[string]any{"error": err.Error()})
}

func writeJSON(w http.ResponseWriter, status int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(payload)
}
