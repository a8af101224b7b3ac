package http

import (
	"context"
	"net/http"
	"strconv"
	"strings"

	"github.com/gorilla/mux"

	"github.com/fixora/pim/internal/domain"
	"github.com/fixora/pim/internal/logger"
	"github.com/fixora/pim/internal/usecase"
)

// UserService is the user management behavior the handler depends on
type UserService interface {
	CreateUser(ctx context.Context, actor domain.Actor, req usecase.CreateUserRequest) (*domain.User, error)
	GetUser(ctx context.Context, actor domain.Actor, userID string) (*domain.User, error)
	ListUsers(ctx context.Context, actor domain.Actor, filter domain.UserFilter) ([]*domain.User, int, error)
	ChangeRole(ctx context.Context, actor domain.Actor, userID string, role domain.UserRole) (*domain.User, error)
	DeleteUser(ctx context.Context, actor domain.Actor, userID string) error
	Login(ctx context.Context, req usecase.LoginRequest) (*usecase.LoginResponse, error)
}

// UserHandler handles user management and login
type UserHandler struct {
	users  UserService
	logger logger.Logger
}

// NewUserHandler creates a new user handler
func NewUserHandler(users UserService, log logger.Logger) *UserHandler {
	if log == nil {
		log = logger.NewNopLogger()
	}
	return &UserHandler{users: users, logger: log}
}

// ListUsersResponse is one page of users
type ListUsersResponse struct {
	Users   []*domain.User `json:"users"`
	Total   int            `json:"total"`
	Page    int            `json:"page"`
	PerPage int            `json:"perPage"`
}

type changeRoleRequest struct {
	Role domain.UserRole `json:"role"`
}

// RegisterRoutes registers user routes. guard wraps the login route.
func (h *UserHandler) RegisterRoutes(router *mux.Router, guard func(http.Handler) http.Handler) {
	router.Handle("/api/v1/auth/login", guard(http.HandlerFunc(h.Login))).Methods("POST")
	router.HandleFunc("/api/v1/users", h.CreateUser).Methods("POST")
	router.HandleFunc("/api/v1/users", h.ListUsers).Methods("GET")
	router.HandleFunc("/api/v1/users/{id}", h.GetUser).Methods("GET")
	router.HandleFunc("/api/v1/users/{id}", h.DeleteUser).Methods("DELETE")
	router.HandleFunc("/api/v1/users/{id}/role", h.ChangeRole).Methods("PUT")
}

// Login exchanges credentials for a bearer token
func (h *UserHandler) Login(w http.ResponseWriter, r *http.Request) {
	var req usecase.LoginRequest
	if err := decodeJSON(r, &req); err != nil {
		writeFailure(w, http.StatusBadRequest, "Invalid request body")
		return
	}
	if req.TenantID == "" {
		req.TenantID = ActorFromContext(r.Context()).TenantID
	}

	resp, err := h.users.Login(r.Context(), req)
	if err != nil {
		logger.LogAuthEvent(r.Context(), h.logger, "login_rejected", "", clientIP(r), false, nil)
		writeError(w, err)
		return
	}
	writeSuccess(w, http.StatusOK, "Login successful", resp)
}

// CreateUser handles user creation
func (h *UserHandler) CreateUser(w http.ResponseWriter, r *http.Request) {
	var req usecase.CreateUserRequest
	if err := decodeJSON(r, &req); err != nil {
		writeFailure(w, http.StatusBadRequest, "Invalid request body")
		return
	}
	req.Role = domain.UserRole(strings.ToUpper(string(req.Role)))

	user, err := h.users.CreateUser(r.Context(), ActorFromContext(r.Context()), req)
	if err != nil {
		writeError(w, err)
		return
	}
	writeSuccess(w, http.StatusCreated, "User created successfully", user)
}

// GetUser handles retrieving one user
func (h *UserHandler) GetUser(w http.ResponseWriter, r *http.Request) {
	user, err := h.users.GetUser(r.Context(), ActorFromContext(r.Context()), mux.Vars(r)["id"])
	if err != nil {
		writeError(w, err)
		return
	}
	writeSuccess(w, http.StatusOK, "User retrieved successfully", user)
}

// ListUsers handles listing users of the caller's tenant
func (h *UserHandler) ListUsers(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	page, perPage := parsePagination(r)
	filter := domain.UserFilter{Limit: perPage, Offset: (page - 1) * perPage}

	if v := q.Get("role"); v != "" {
		role := domain.UserRole(strings.ToUpper(v))
		if !role.IsValid() {
			writeFailure(w, http.StatusBadRequest, "Invalid role")
			return
		}
		filter.Role = &role
	}
	if v := q.Get("active"); v != "" {
		active, err := strconv.ParseBool(v)
		if err != nil {
			writeFailure(w, http.StatusBadRequest, "active must be a boolean")
			return
		}
		filter.Active = &active
	}

	users, total, err := h.users.ListUsers(r.Context(), ActorFromContext(r.Context()), filter)
	if err != nil {
		writeError(w, err)
		return
	}
	writeSuccess(w, http.StatusOK, "Users retrieved successfully", ListUsersResponse{
		Users:   users,
		Total:   total,
		Page:    page,
		PerPage: perPage,
	})
}

// ChangeRole handles role changes
func (h *UserHandler) ChangeRole(w http.ResponseWriter, r *http.Request) {
	var req changeRoleRequest
	if err := decodeJSON(r, &req); err != nil || req.Role == "" {
		writeFailure(w, http.StatusBadRequest, "role is required")
		return
	}

	user, err := h.users.ChangeRole(r.Context(), ActorFromContext(r.Context()), mux.Vars(r)["id"], domain.UserRole(strings.ToUpper(string(req.Role))))
	if err != nil {
		writeError(w, err)
		return
	}
	writeSuccess(w, http.StatusOK, "Role changed successfully", user)
}

// DeleteUser deactivates a user
func (h *UserHandler) DeleteUser(w http.ResponseWriter, r *http.Request) {
	if err := h.users.DeleteUser(r.Context(), ActorFromContext(r.Context()), mux.Vars(r)["id"]); err != nil {
		writeError(w, err)
		return
	}
	writeSuccess(w, http.StatusOK, "User deactivated successfully", nil)
}
