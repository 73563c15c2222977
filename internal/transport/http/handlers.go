// Copyright 2026 The Keyfold Authors
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//     http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

package http

import (
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/keyfold/keyfold/internal/auth"
	"github.com/keyfold/keyfold/internal/authz"
	"github.com/keyfold/keyfold/internal/identity"
	"github.com/keyfold/keyfold/internal/observability/logger"
	"github.com/keyfold/keyfold/internal/observability/metrics"
	"github.com/keyfold/keyfold/internal/tenant"
	"github.com/keyfold/keyfold/internal/token"
	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"
)

// Handler holds HTTP handlers and dependencies
type Handler struct {
	authService     *auth.Service
	identityService *identity.Service
	tenantService   *tenant.Service
	authzService    *authz.Service
	issuer          *token.Issuer
	authMetrics     *metrics.AuthMetrics
}

// NewHandler creates a new HTTP handler
func NewHandler(
	authService *auth.Service,
	identityService *identity.Service,
	tenantService *tenant.Service,
	authzService *authz.Service,
	issuer *token.Issuer,
	authMetrics *metrics.AuthMetrics,
) *Handler {
	return &Handler{
		authService:     authService,
		identityService: identityService,
		tenantService:   tenantService,
		authzService:    authzService,
		issuer:          issuer,
		authMetrics:     authMetrics,
	}
}

// NewRouter creates a new HTTP router
func NewRouter(h *Handler, rateLimiter *RateLimiter) *chi.Mux {
	r := chi.NewRouter()

	r.Use(middleware.RequestID)
	r.Use(RateLimitMiddleware(rateLimiter))
	r.Use(func(handler http.Handler) http.Handler {
		return otelhttp.NewHandler(handler, "http_request",
			otelhttp.WithSpanNameFormatter(func(operation string, r *http.Request) string {
				return r.Method + " " + r.URL.Path
			}),
		)
	})
	r.Use(LoggingMiddleware())
	r.Use(middleware.Recoverer)
	r.Use(middleware.Timeout(60 * time.Second))

	r.Get("/health", h.HealthCheck)

	r.Route("/api/v1", func(r chi.Router) {
		// Public authentication endpoints
		r.Post("/auth/signin", h.SignIn)
		r.Post("/auth/signup", h.SignUp)
		r.Post("/auth/signout", h.SignOut)
		r.Post("/auth/refresh/{tenantID}", h.Refresh)

		// Protected routes
		r.Group(func(r chi.Router) {
			r.Use(h.AuthMiddleware)

			r.Post("/auth/switch-tenant", h.SwitchTenant)
			r.Get("/auth/me", h.Me)
			r.Get("/auth/me/permissions", h.MyPermissions)
			r.Get("/auth/user-tenants", h.UserTenants)

			r.Get("/tenants", h.ListTenants)

			// Role administration
			r.Group(func(r chi.Router) {
				r.Use(h.RequireRole(authz.RoleAdmin))

				r.Get("/roles", h.ListRoles)
				r.Get("/permissions", h.ListPermissions)
				r.Put("/roles/{name}/permissions", h.SetRolePermissions)
				r.Post("/users/{userID}/roles", h.AssignRoles)
				r.Delete("/users/{userID}/roles", h.RemoveUserRoles)
				r.Get("/tenant-users", h.TenantUsers)
			})

			// Tenant lifecycle
			r.Group(func(r chi.Router) {
				r.Use(h.RequireRole(authz.RoleSuperAdmin))

				r.Post("/tenants/{tenantID}/deactivate", h.DeactivateTenant)
				r.Post("/tenants/{tenantID}/reactivate", h.ReactivateTenant)
			})
		})
	})

	return r
}

// HealthCheck returns service health
func (h *Handler) HealthCheck(w http.ResponseWriter, r *http.Request) {
	respondJSON(w, http.StatusOK, map[string]string{
		"status": "ok",
	})
}

// SignIn authenticates a user within a tenant
func (h *Handler) SignIn(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Username string `json:"username"`
		Password string `json:"password"`
		TenantID string `json:"tenant_id"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		respondError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	if req.Username == "" || req.Password == "" || req.TenantID == "" {
		respondError(w, http.StatusBadRequest, "username, password and tenant_id are required")
		return
	}

	session, err := h.authService.SignIn(r.Context(), req.Username, req.Password, req.TenantID)
	if err != nil {
		if h.authMetrics != nil {
			h.authMetrics.SignInFailures.Add(r.Context(), 1)
		}
		respondError(w, http.StatusUnauthorized, "invalid credentials")
		return
	}

	if h.authMetrics != nil {
		h.authMetrics.SignIns.Add(r.Context(), 1)
		h.authMetrics.TokensIssued.Add(r.Context(), 1)
	}
	respondJSON(w, http.StatusOK, session)
}

// SignUp bootstraps a tenant with its founding user
func (h *Handler) SignUp(w http.ResponseWriter, r *http.Request) {
	var req struct {
		TenantName string `json:"tenant_name"`
		Username   string `json:"username"`
		FirstName  string `json:"first_name"`
		LastName   string `json:"last_name"`
		Email      string `json:"email"`
		Password   string `json:"password"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		respondError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	if req.TenantName == "" || req.Username == "" || req.Email == "" || req.Password == "" {
		respondError(w, http.StatusBadRequest, "tenant_name, username, email and password are required")
		return
	}

	session, err := h.authService.SignUp(r.Context(), auth.SignUpRequest{
		TenantName: req.TenantName,
		Username:   req.Username,
		FirstName:  req.FirstName,
		LastName:   req.LastName,
		Email:      req.Email,
		Password:   req.Password,
	})
	if err != nil {
		switch {
		case errors.Is(err, tenant.ErrTenantAlreadyExists):
			respondError(w, http.StatusConflict, "tenant already exists")
		case errors.Is(err, identity.ErrUserAlreadyExists):
			respondError(w, http.StatusConflict, "user already exists")
		case errors.Is(err, tenant.ErrInvalidTenantName):
			respondError(w, http.StatusBadRequest, "invalid tenant name")
		case errors.Is(err, identity.ErrInvalidEmail):
			respondError(w, http.StatusBadRequest, "invalid email address")
		case errors.Is(err, identity.ErrWeakPassword):
			respondError(w, http.StatusBadRequest, "password does not meet security requirements")
		default:
			slog.ErrorContext(r.Context(), "signup failed", logger.Error(err))
			respondError(w, http.StatusInternalServerError, "failed to sign up")
		}
		return
	}

	respondJSON(w, http.StatusCreated, session)
}

// SignOut revokes the caller's refresh tokens and blacklists the presented
// access token
func (h *Handler) SignOut(w http.ResponseWriter, r *http.Request) {
	tokenString := bearerToken(r)
	if tokenString == "" {
		respondError(w, http.StatusUnauthorized, "not authenticated")
		return
	}

	if err := h.authService.SignOut(r.Context(), tokenString); err != nil {
		if errors.Is(err, auth.ErrAuthenticationFailed) {
			respondError(w, http.StatusUnauthorized, "invalid or expired token")
			return
		}
		slog.ErrorContext(r.Context(), "signout failed", logger.Error(err))
		respondError(w, http.StatusInternalServerError, "failed to sign out")
		return
	}

	if h.authMetrics != nil {
		h.authMetrics.TokensRevoked.Add(r.Context(), 1)
	}
	respondJSON(w, http.StatusOK, map[string]string{
		"message": "signed out",
	})
}

// Refresh exchanges a refresh token for a new token pair
func (h *Handler) Refresh(w http.ResponseWriter, r *http.Request) {
	tenantID := chi.URLParam(r, "tenantID")

	var req struct {
		RefreshToken string `json:"refresh_token"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		respondError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	if req.RefreshToken == "" {
		respondError(w, http.StatusBadRequest, "refresh_token is required")
		return
	}

	session, err := h.authService.Refresh(r.Context(), req.RefreshToken, tenantID)
	if err != nil {
		respondError(w, http.StatusUnauthorized, "invalid refresh token")
		return
	}

	if h.authMetrics != nil {
		h.authMetrics.TokensIssued.Add(r.Context(), 1)
	}
	respondJSON(w, http.StatusOK, session)
}

// SwitchTenant issues a fresh token pair scoped to another tenant the
// caller belongs to
func (h *Handler) SwitchTenant(w http.ResponseWriter, r *http.Request) {
	var req struct {
		TenantID string `json:"tenant_id"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		respondError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	if req.TenantID == "" {
		respondError(w, http.StatusBadRequest, "tenant_id is required")
		return
	}

	session, err := h.authService.SwitchTenant(r.Context(), GetUsername(r.Context()), req.TenantID)
	if err != nil {
		respondError(w, http.StatusUnauthorized, "not a member of the requested tenant")
		return
	}

	respondJSON(w, http.StatusOK, session)
}

// Me returns the caller's profile in the current tenant
func (h *Handler) Me(w http.ResponseWriter, r *http.Request) {
	user, err := h.identityService.Get(r.Context(), GetUserID(r.Context()))
	if err != nil {
		respondError(w, http.StatusNotFound, "user not found")
		return
	}

	respondJSON(w, http.StatusOK, map[string]any{
		"id":         user.ID,
		"username":   user.Username,
		"first_name": user.FirstName,
		"last_name":  user.LastName,
		"email":      user.Email,
		"tenant_id":  GetTenantID(r.Context()),
		"active":     user.Active,
	})
}

// MyPermissions returns the caller's effective permissions in the current
// tenant
func (h *Handler) MyPermissions(w http.ResponseWriter, r *http.Request) {
	permissions, err := h.authService.Permissions(r.Context(), GetUserID(r.Context()), GetTenantID(r.Context()))
	if err != nil {
		slog.ErrorContext(r.Context(), "failed to resolve permissions", logger.Error(err))
		respondError(w, http.StatusInternalServerError, "failed to resolve permissions")
		return
	}

	respondJSON(w, http.StatusOK, map[string]any{
		"tenant_id":   GetTenantID(r.Context()),
		"permissions": permissions,
	})
}

// UserTenants lists the tenants the caller holds an identity in
func (h *Handler) UserTenants(w http.ResponseWriter, r *http.Request) {
	tenants, err := h.authService.TenantsForUser(r.Context(), GetUsername(r.Context()))
	if err != nil {
		slog.ErrorContext(r.Context(), "failed to list user tenants", logger.Error(err))
		respondError(w, http.StatusInternalServerError, "failed to list tenants")
		return
	}

	respondJSON(w, http.StatusOK, map[string]any{
		"tenants": tenants,
	})
}

// ListTenants lists all active tenants
func (h *Handler) ListTenants(w http.ResponseWriter, r *http.Request) {
	tenants, err := h.tenantService.ListActive(r.Context())
	if err != nil {
		respondError(w, http.StatusInternalServerError, "failed to list tenants")
		return
	}

	respondJSON(w, http.StatusOK, map[string]any{
		"tenants": tenants,
	})
}

// ListRoles lists all active roles with their permissions
func (h *Handler) ListRoles(w http.ResponseWriter, r *http.Request) {
	roles, err := h.authzService.ListRoles(r.Context())
	if err != nil {
		respondError(w, http.StatusInternalServerError, "failed to list roles")
		return
	}

	respondJSON(w, http.StatusOK, map[string]any{
		"roles": roles,
	})
}

// ListPermissions lists the permission catalog
func (h *Handler) ListPermissions(w http.ResponseWriter, r *http.Request) {
	permissions, err := h.authzService.ListPermissions(r.Context())
	if err != nil {
		respondError(w, http.StatusInternalServerError, "failed to list permissions")
		return
	}

	respondJSON(w, http.StatusOK, map[string]any{
		"permissions": permissions,
	})
}

// SetRolePermissions replaces a role's permission set
func (h *Handler) SetRolePermissions(w http.ResponseWriter, r *http.Request) {
	name := chi.URLParam(r, "name")

	var req struct {
		Permissions []string `json:"permissions"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		respondError(w, http.StatusBadRequest, "invalid request body")
		return
	}

	role, err := h.authzService.SetPermissions(r.Context(), name, req.Permissions)
	if err != nil {
		if errors.Is(err, authz.ErrRoleNotFound) {
			respondError(w, http.StatusNotFound, "role not found")
			return
		}
		slog.ErrorContext(r.Context(), "failed to set role permissions", logger.Error(err))
		respondError(w, http.StatusInternalServerError, "failed to set permissions")
		return
	}

	respondJSON(w, http.StatusOK, role)
}

// AssignRoles replaces a user's role set in the caller's tenant
func (h *Handler) AssignRoles(w http.ResponseWriter, r *http.Request) {
	userID := chi.URLParam(r, "userID")

	var req struct {
		Roles []string `json:"roles"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		respondError(w, http.StatusBadRequest, "invalid request body")
		return
	}

	binding, err := h.authzService.AssignRolesToUser(r.Context(), userID, GetTenantID(r.Context()), req.Roles)
	if err != nil {
		if errors.Is(err, authz.ErrRoleNotFound) {
			respondError(w, http.StatusBadRequest, "unknown role name")
			return
		}
		slog.ErrorContext(r.Context(), "failed to assign roles", logger.Error(err))
		respondError(w, http.StatusInternalServerError, "failed to assign roles")
		return
	}

	respondJSON(w, http.StatusOK, binding)
}

// RemoveUserRoles removes a user's role binding in the caller's tenant
func (h *Handler) RemoveUserRoles(w http.ResponseWriter, r *http.Request) {
	userID := chi.URLParam(r, "userID")

	if err := h.authzService.RemoveUserFromTenant(r.Context(), userID, GetTenantID(r.Context())); err != nil {
		slog.ErrorContext(r.Context(), "failed to remove user roles", logger.Error(err))
		respondError(w, http.StatusInternalServerError, "failed to remove roles")
		return
	}

	respondJSON(w, http.StatusOK, map[string]string{
		"message": "roles removed",
	})
}

// TenantUsers lists the role bindings within the caller's tenant
func (h *Handler) TenantUsers(w http.ResponseWriter, r *http.Request) {
	bindings, err := h.authzService.GetTenantUsers(r.Context(), GetTenantID(r.Context()))
	if err != nil {
		respondError(w, http.StatusInternalServerError, "failed to list tenant users")
		return
	}

	respondJSON(w, http.StatusOK, map[string]any{
		"users": bindings,
	})
}

// DeactivateTenant soft-deactivates a tenant by internal ID
func (h *Handler) DeactivateTenant(w http.ResponseWriter, r *http.Request) {
	h.setTenantActive(w, r, false)
}

// ReactivateTenant re-enables a tenant by internal ID
func (h *Handler) ReactivateTenant(w http.ResponseWriter, r *http.Request) {
	h.setTenantActive(w, r, true)
}

func (h *Handler) setTenantActive(w http.ResponseWriter, r *http.Request, active bool) {
	tenantID := chi.URLParam(r, "tenantID")

	var (
		t   *tenant.Tenant
		err error
	)
	if active {
		t, err = h.tenantService.Reactivate(r.Context(), tenantID)
	} else {
		t, err = h.tenantService.Deactivate(r.Context(), tenantID)
	}
	if err != nil {
		if errors.Is(err, tenant.ErrTenantNotFound) {
			respondError(w, http.StatusNotFound, "tenant not found")
			return
		}
		slog.ErrorContext(r.Context(), "failed to update tenant", logger.Error(err))
		respondError(w, http.StatusInternalServerError, "failed to update tenant")
		return
	}

	respondJSON(w, http.StatusOK, t)
}

func respondJSON(w http.ResponseWriter, status int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(data)
}

func respondError(w http.ResponseWriter, status int, message string) {
	respondJSON(w, status, map[string]string{
		"error": message,
	})
}
