// Package httpapi provides the REST HTTP adapter served by the mock backend.
package httpapi

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strconv"
	"strings"
	"time"

	charmLog "github.com/charmbracelet/log"
	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus"

	"github.com/hylla/kanri/internal/api"
	"github.com/hylla/kanri/internal/backend"
	"github.com/hylla/kanri/internal/domain"
)

// maxRequestBodyBytes limits decoded JSON payload size for fail-closed request handling.
const maxRequestBodyBytes int64 = 1 << 20

// errInvalidBody reports a request body that failed strict decoding.
var errInvalidBody = errors.New("invalid request body")

// Backend is the business surface the REST routes delegate to. *backend.Service implements it.
type Backend interface {
	Login(ctx context.Context, username, credential string) (string, domain.User, error)
	Authenticate(ctx context.Context, token string) (domain.User, error)
	ChangePassword(ctx context.Context, user domain.User, current, next string) error
	UserSettings(ctx context.Context, user domain.User) (domain.UserSettings, error)
	UpdateUserSettings(ctx context.Context, user domain.User, settings domain.UserSettings) (domain.UserSettings, error)

	ListProjects(ctx context.Context, viewer domain.User, page, size int) (domain.ProjectPage, error)
	CreateProject(ctx context.Context, viewer domain.User, draft domain.ProjectDraft) (domain.Project, error)
	DuplicateProject(ctx context.Context, viewer domain.User, sourceID int64, draft domain.ProjectDraft) (domain.Project, error)
	Modules(ctx context.Context, projectID int64) ([]domain.ProjectModule, error)
	SetModules(ctx context.Context, projectID int64, modules []domain.ProjectModule) ([]domain.ProjectModule, error)

	Statuses(ctx context.Context, projectID int64) ([]domain.Column, error)
	Cards(ctx context.Context, projectID int64, kind domain.CardKind) ([]domain.Card, error)
	MoveCard(ctx context.Context, key domain.CardKey, statusID int64, order int) (domain.Card, error)
	CreateStory(ctx context.Context, draft domain.StoryDraft) (domain.Card, error)
	CreateTask(ctx context.Context, draft domain.TaskDraft) (domain.Card, error)
	SprintProgress(ctx context.Context, sprintID int64) (domain.SprintProgress, error)
}

var _ Backend = (*backend.Service)(nil)

// Logger is satisfied by *charmLog.Logger.
type Logger interface {
	Info(msg any, keyvals ...any)
	Error(msg any, keyvals ...any)
}

// Config holds route prefixes and optional observability hooks.
type Config struct {
	V1Prefix  string
	APIPrefix string
	Logger    Logger
	// Registerer receives the request counter. Nil disables metrics.
	Registerer prometheus.Registerer
}

// APIError represents one structured API failure response.
type APIError = api.ErrorBody

// ErrorEnvelope wraps one structured API error.
type ErrorEnvelope = api.ErrorEnvelope

// Handler serves the v1 and api route families.
type Handler struct {
	backend  Backend
	logger   Logger
	requests *prometheus.CounterVec
	router   chi.Router
}

type userKey struct{}

// NewHandler constructs one REST adapter over backend.
func NewHandler(b Backend, cfg Config) (*Handler, error) {
	if b == nil {
		return nil, fmt.Errorf("backend is required")
	}
	v1 := normalizePrefix(cfg.V1Prefix, "/v1")
	apiPrefix := normalizePrefix(cfg.APIPrefix, "/api")
	if v1 == apiPrefix {
		return nil, fmt.Errorf("v1 and api prefixes must differ")
	}
	h := &Handler{backend: b, logger: cfg.Logger}
	if h.logger == nil {
		h.logger = charmLog.New(io.Discard)
	}
	if cfg.Registerer != nil {
		h.requests = prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "kanri_http_requests_total",
			Help: "REST requests served by the mock backend.",
		}, []string{"method", "route", "status"})
		if err := cfg.Registerer.Register(h.requests); err != nil {
			return nil, fmt.Errorf("register request counter: %w", err)
		}
	}

	r := chi.NewRouter()
	r.Use(middleware.RequestID, middleware.Recoverer, h.observe)
	r.NotFound(func(w http.ResponseWriter, _ *http.Request) {
		writeJSONError(w, http.StatusNotFound, APIError{Code: "not_found", Message: "endpoint not found"})
	})
	r.MethodNotAllowed(func(w http.ResponseWriter, _ *http.Request) {
		writeMethodNotAllowed(w)
	})

	r.Route(v1, func(r chi.Router) {
		r.Post("/auth/login", h.handleLogin)
		r.Group(func(r chi.Router) {
			r.Use(h.requireUser)
			r.Get("/projects", h.handleListProjects)
			r.Post("/projects", h.handleCreateProject)
			r.Post("/projects/{projectID}/duplicate", h.handleDuplicateProject)
			r.Get("/projects/{projectID}/modules", h.handleGetModules)
			r.Put("/projects/{projectID}/modules", h.handleSetModules)
			r.Get("/user-settings", h.handleGetSettings)
			r.Put("/user-settings", h.handleUpdateSettings)
			r.Post("/user-settings/change-password", h.handleChangePassword)
		})
	})
	r.Route(apiPrefix, func(r chi.Router) {
		r.Use(h.requireUser)
		r.Get("/project-settings/{projectID}/statuses", h.handleStatuses)
		r.Get("/projects/{projectID}/user-stories", h.handleCards(domain.CardKindStory))
		r.Get("/projects/{projectID}/tasks", h.handleCards(domain.CardKindTask))
		r.Put("/user-story/{cardID}/status/{statusID}", h.handleMove(domain.CardKindStory))
		r.Put("/tasks/{cardID}/status/{statusID}", h.handleMove(domain.CardKindTask))
		r.Post("/user-story", h.handleCreateStory)
		r.Post("/tasks", h.handleCreateTask)
		r.Get("/kanban/board/sprint/{sprintID}/progress", h.handleSprintProgress)
	})
	h.router = r
	return h, nil
}

// ServeHTTP routes one REST request.
func (h *Handler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	h.router.ServeHTTP(w, r)
}

// observe logs every request and feeds the request counter.
func (h *Handler) observe(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		started := time.Now()
		ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
		next.ServeHTTP(ww, r)

		route := "unmatched"
		if rctx := chi.RouteContext(r.Context()); rctx != nil && rctx.RoutePattern() != "" {
			route = rctx.RoutePattern()
		}
		status := ww.Status()
		if status == 0 {
			status = http.StatusOK
		}
		if h.requests != nil {
			h.requests.WithLabelValues(r.Method, route, strconv.Itoa(status)).Inc()
		}
		h.logger.Info("request",
			"method", r.Method,
			"route", route,
			"status", status,
			"request_id", middleware.GetReqID(r.Context()),
			"elapsed", time.Since(started),
		)
	})
}

// requireUser resolves the bearer token and stores the user on the request context.
func (h *Handler) requireUser(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		token, ok := strings.CutPrefix(r.Header.Get("Authorization"), "Bearer ")
		if !ok {
			writeJSONError(w, http.StatusUnauthorized, APIError{
				Code:    "unauthorized",
				Message: "bearer token is required",
				Hint:    "Log in again.",
			})
			return
		}
		user, err := h.backend.Authenticate(r.Context(), token)
		if err != nil {
			writeErrorFrom(w, err)
			return
		}
		next.ServeHTTP(w, r.WithContext(context.WithValue(r.Context(), userKey{}, user)))
	})
}

func currentUser(r *http.Request) domain.User {
	user, _ := r.Context().Value(userKey{}).(domain.User)
	return user
}

// handleLogin serves POST `/auth/login`.
func (h *Handler) handleLogin(w http.ResponseWriter, r *http.Request) {
	var req api.LoginRequest
	if err := decodeJSONBody(r.Context(), w, r, &req); err != nil {
		writeErrorFrom(w, err)
		return
	}
	token, user, err := h.backend.Login(r.Context(), req.Username, req.Password)
	if err != nil {
		writeErrorFrom(w, err)
		return
	}
	wireUser := api.UserFromDomain(user)
	writeJSON(w, http.StatusOK, api.LoginResponse{Token: &token, User: &wireUser})
}

// handleListProjects serves GET `/projects?page&size`.
func (h *Handler) handleListProjects(w http.ResponseWriter, r *http.Request) {
	page, err := queryInt(r, "page", 0)
	if err != nil {
		writeErrorFrom(w, err)
		return
	}
	size, err := queryInt(r, "size", 20)
	if err != nil {
		writeErrorFrom(w, err)
		return
	}
	result, err := h.backend.ListProjects(r.Context(), currentUser(r), page, size)
	if err != nil {
		writeErrorFrom(w, err)
		return
	}
	content := make([]api.Project, 0, len(result.Content))
	for _, p := range result.Content {
		content = append(content, api.ProjectFromDomain(p))
	}
	writeJSON(w, http.StatusOK, api.ProjectPage{
		Content:    &content,
		TotalPages: &result.TotalPages,
		Page:       result.Page,
	})
}

// handleCreateProject serves POST `/projects`.
func (h *Handler) handleCreateProject(w http.ResponseWriter, r *http.Request) {
	var req api.ProjectRequest
	if err := decodeJSONBody(r.Context(), w, r, &req); err != nil {
		writeErrorFrom(w, err)
		return
	}
	project, err := h.backend.CreateProject(r.Context(), currentUser(r), domain.ProjectDraft{
		Name:        req.Name,
		Description: req.Description,
		IsPrivate:   req.IsPrivate,
	})
	if err != nil {
		writeErrorFrom(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, api.ProjectFromDomain(project))
}

// handleDuplicateProject serves POST `/projects/{id}/duplicate`.
func (h *Handler) handleDuplicateProject(w http.ResponseWriter, r *http.Request) {
	sourceID, err := pathID(r, "projectID")
	if err != nil {
		writeErrorFrom(w, err)
		return
	}
	var req api.ProjectRequest
	if err := decodeJSONBody(r.Context(), w, r, &req); err != nil {
		writeErrorFrom(w, err)
		return
	}
	project, err := h.backend.DuplicateProject(r.Context(), currentUser(r), sourceID, domain.ProjectDraft{
		Name:        req.Name,
		Description: req.Description,
		IsPrivate:   req.IsPrivate,
		OwnerID:     req.OwnerID,
	})
	if err != nil {
		writeErrorFrom(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, api.ProjectFromDomain(project))
}

// handleGetModules serves GET `/projects/{id}/modules`.
func (h *Handler) handleGetModules(w http.ResponseWriter, r *http.Request) {
	projectID, err := pathID(r, "projectID")
	if err != nil {
		writeErrorFrom(w, err)
		return
	}
	modules, err := h.backend.Modules(r.Context(), projectID)
	if err != nil {
		writeErrorFrom(w, err)
		return
	}
	writeJSON(w, http.StatusOK, api.ModulesFromDomain(modules))
}

// handleSetModules serves PUT `/projects/{id}/modules`.
func (h *Handler) handleSetModules(w http.ResponseWriter, r *http.Request) {
	projectID, err := pathID(r, "projectID")
	if err != nil {
		writeErrorFrom(w, err)
		return
	}
	var req []api.Module
	if err := decodeJSONBody(r.Context(), w, r, &req); err != nil {
		writeErrorFrom(w, err)
		return
	}
	modules, err := h.backend.SetModules(r.Context(), projectID, api.ModulesToDomain(req))
	if err != nil {
		writeErrorFrom(w, err)
		return
	}
	writeJSON(w, http.StatusOK, api.ModulesFromDomain(modules))
}

// handleGetSettings serves GET `/user-settings`.
func (h *Handler) handleGetSettings(w http.ResponseWriter, r *http.Request) {
	settings, err := h.backend.UserSettings(r.Context(), currentUser(r))
	if err != nil {
		writeErrorFrom(w, err)
		return
	}
	writeJSON(w, http.StatusOK, api.UserSettingsFromDomain(settings))
}

// handleUpdateSettings serves PUT `/user-settings`.
func (h *Handler) handleUpdateSettings(w http.ResponseWriter, r *http.Request) {
	user := currentUser(r)
	var req api.UserSettings
	if err := decodeJSONBody(r.Context(), w, r, &req); err != nil {
		writeErrorFrom(w, err)
		return
	}
	if req.UserID == nil {
		req.UserID = &user.ID
	}
	settings, err := req.ToDomain()
	if err != nil {
		writeErrorFrom(w, errors.Join(backend.ErrInvalidRequest, err))
		return
	}
	saved, err := h.backend.UpdateUserSettings(r.Context(), user, settings)
	if err != nil {
		writeErrorFrom(w, err)
		return
	}
	writeJSON(w, http.StatusOK, api.UserSettingsFromDomain(saved))
}

// handleChangePassword serves POST `/user-settings/change-password`.
func (h *Handler) handleChangePassword(w http.ResponseWriter, r *http.Request) {
	var req api.ChangePasswordRequest
	if err := decodeJSONBody(r.Context(), w, r, &req); err != nil {
		writeErrorFrom(w, err)
		return
	}
	if err := h.backend.ChangePassword(r.Context(), currentUser(r), req.CurrentPassword, req.NewPassword); err != nil {
		writeErrorFrom(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// handleStatuses serves GET `/project-settings/{id}/statuses`.
func (h *Handler) handleStatuses(w http.ResponseWriter, r *http.Request) {
	projectID, err := pathID(r, "projectID")
	if err != nil {
		writeErrorFrom(w, err)
		return
	}
	columns, err := h.backend.Statuses(r.Context(), projectID)
	if err != nil {
		writeErrorFrom(w, err)
		return
	}
	writeJSON(w, http.StatusOK, api.StatusesFromColumns(columns))
}

// handleCards serves the story and task list routes.
func (h *Handler) handleCards(kind domain.CardKind) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		projectID, err := pathID(r, "projectID")
		if err != nil {
			writeErrorFrom(w, err)
			return
		}
		cards, err := h.backend.Cards(r.Context(), projectID, kind)
		if err != nil {
			writeErrorFrom(w, err)
			return
		}
		writeJSON(w, http.StatusOK, encodeCards(kind, cards))
	}
}

// handleMove serves PUT `/user-story/{id}/status/{statusId}` and its task twin.
func (h *Handler) handleMove(kind domain.CardKind) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		cardID, err := pathID(r, "cardID")
		if err != nil {
			writeErrorFrom(w, err)
			return
		}
		statusID, err := pathID(r, "statusID")
		if err != nil {
			writeErrorFrom(w, err)
			return
		}
		var req api.MoveRequest
		if err := decodeJSONBody(r.Context(), w, r, &req); err != nil {
			writeErrorFrom(w, err)
			return
		}
		card, err := h.backend.MoveCard(r.Context(), domain.CardKey{Kind: kind, ID: cardID}, statusID, req.Order)
		if err != nil {
			writeErrorFrom(w, err)
			return
		}
		writeJSON(w, http.StatusOK, encodeCard(card))
	}
}

// handleCreateStory serves POST `/user-story`.
func (h *Handler) handleCreateStory(w http.ResponseWriter, r *http.Request) {
	var req api.StoryRequest
	if err := decodeJSONBody(r.Context(), w, r, &req); err != nil {
		writeErrorFrom(w, err)
		return
	}
	draft, err := req.ToDraft()
	if err != nil {
		writeErrorFrom(w, errors.Join(backend.ErrInvalidRequest, err))
		return
	}
	card, err := h.backend.CreateStory(r.Context(), draft)
	if err != nil {
		writeErrorFrom(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, api.StoryFromDomain(card))
}

// handleCreateTask serves POST `/tasks`.
func (h *Handler) handleCreateTask(w http.ResponseWriter, r *http.Request) {
	var req api.TaskRequest
	if err := decodeJSONBody(r.Context(), w, r, &req); err != nil {
		writeErrorFrom(w, err)
		return
	}
	if req.AssigneeIDs == nil {
		writeJSONError(w, http.StatusBadRequest, APIError{
			Code:    "invalid_request",
			Message: "assigneeIds is required",
			Hint:    "Send an empty list when the task has no assignees.",
		})
		return
	}
	card, err := h.backend.CreateTask(r.Context(), req.ToDraft())
	if err != nil {
		writeErrorFrom(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, api.TaskFromDomain(card))
}

// handleSprintProgress serves GET `/kanban/board/sprint/{id}/progress`.
func (h *Handler) handleSprintProgress(w http.ResponseWriter, r *http.Request) {
	sprintID, err := pathID(r, "sprintID")
	if err != nil {
		writeErrorFrom(w, err)
		return
	}
	progress, err := h.backend.SprintProgress(r.Context(), sprintID)
	if err != nil {
		writeErrorFrom(w, err)
		return
	}
	writeJSON(w, http.StatusOK, api.SprintProgressFromDomain(progress))
}

func encodeCard(card domain.Card) any {
	if card.Key.Kind == domain.CardKindTask {
		return api.TaskFromDomain(card)
	}
	return api.StoryFromDomain(card)
}

func encodeCards(kind domain.CardKind, cards []domain.Card) any {
	if kind == domain.CardKindTask {
		out := make([]api.Task, 0, len(cards))
		for _, c := range cards {
			out = append(out, api.TaskFromDomain(c))
		}
		return out
	}
	out := make([]api.Story, 0, len(cards))
	for _, c := range cards {
		out = append(out, api.StoryFromDomain(c))
	}
	return out
}

// pathID parses one positive integer URL parameter.
func pathID(r *http.Request, name string) (int64, error) {
	raw := chi.URLParam(r, name)
	id, err := strconv.ParseInt(raw, 10, 64)
	if err != nil || id <= 0 {
		return 0, fmt.Errorf("%s %q: %w", name, raw, backend.ErrInvalidRequest)
	}
	return id, nil
}

// queryInt parses one optional non-negative integer query parameter.
func queryInt(r *http.Request, name string, fallback int) (int, error) {
	raw := strings.TrimSpace(r.URL.Query().Get(name))
	if raw == "" {
		return fallback, nil
	}
	v, err := strconv.Atoi(raw)
	if err != nil || v < 0 {
		return 0, fmt.Errorf("%s %q: %w", name, raw, backend.ErrInvalidRequest)
	}
	return v, nil
}

// normalizePrefix canonicalizes one route prefix and applies fallback defaults.
func normalizePrefix(prefix, fallback string) string {
	prefix = "/" + strings.Trim(strings.TrimSpace(prefix), "/")
	if prefix == "/" {
		return fallback
	}
	return prefix
}

// writeErrorFrom maps backend errors into structured HTTP responses.
func writeErrorFrom(w http.ResponseWriter, err error) {
	switch {
	case err == nil:
		writeJSONError(w, http.StatusInternalServerError, APIError{
			Code:    "internal_error",
			Message: "unknown error",
		})
	case errors.Is(err, backend.ErrUnauthorized):
		writeJSONError(w, http.StatusUnauthorized, APIError{
			Code:    "unauthorized",
			Message: err.Error(),
			Hint:    "Log in again.",
		})
	case errors.Is(err, backend.ErrInvalidCredentials):
		// 400 keeps a wrong current password from ending the session.
		writeJSONError(w, http.StatusBadRequest, APIError{
			Code:    "invalid_credentials",
			Message: err.Error(),
		})
	case errors.Is(err, backend.ErrNotFound):
		writeJSONError(w, http.StatusNotFound, APIError{
			Code:    "not_found",
			Message: err.Error(),
		})
	case errors.Is(err, backend.ErrConflict):
		writeJSONError(w, http.StatusConflict, APIError{
			Code:    "conflict",
			Message: err.Error(),
		})
	case errors.Is(err, backend.ErrInvalidRequest), errors.Is(err, errInvalidBody):
		writeJSONError(w, http.StatusBadRequest, APIError{
			Code:    "invalid_request",
			Message: err.Error(),
		})
	default:
		writeJSONError(w, http.StatusInternalServerError, APIError{
			Code:    "internal_error",
			Message: err.Error(),
		})
	}
}

// writeMethodNotAllowed writes a structured 405 response.
func writeMethodNotAllowed(w http.ResponseWriter, methods ...string) {
	if len(methods) > 0 {
		w.Header().Set("Allow", strings.Join(methods, ", "))
	}
	writeJSONError(w, http.StatusMethodNotAllowed, APIError{
		Code:    "method_not_allowed",
		Message: "method not allowed",
	})
}

// writeJSONError writes one structured error envelope.
func writeJSONError(w http.ResponseWriter, statusCode int, apiErr APIError) {
	writeJSON(w, statusCode, ErrorEnvelope{Error: apiErr})
}

// writeJSON writes one JSON response envelope.
func writeJSON(w http.ResponseWriter, statusCode int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(statusCode)
	if err := json.NewEncoder(w).Encode(payload); err != nil {
		http.Error(w, fmt.Sprintf(`{"error":{"code":"encode_error","message":"%s"}}`, err.Error()), http.StatusInternalServerError)
	}
}

// decodeJSONBody decodes one required JSON request body with strict shape checks.
func decodeJSONBody(ctx context.Context, w http.ResponseWriter, r *http.Request, out any) error {
	reader := http.MaxBytesReader(w, r.Body, maxRequestBodyBytes)
	defer reader.Close()

	decoder := json.NewDecoder(reader)
	decoder.DisallowUnknownFields()
	if err := decoder.Decode(out); err != nil {
		return fmt.Errorf("decode request body: %w", errors.Join(errInvalidBody, err))
	}
	if err := decoder.Decode(&struct{}{}); !errors.Is(err, io.EOF) {
		return fmt.Errorf("decode request body: trailing content: %w", errInvalidBody)
	}
	select {
	case <-ctx.Done():
		return fmt.Errorf("request canceled: %w", ctx.Err())
	default:
		return nil
	}
}
