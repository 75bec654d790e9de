package handlers

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"strings"

	"github.com/go-chi/chi/v5"
	"github.com/userhub/apiserver/internal/auth"
	"github.com/userhub/apiserver/internal/identity"
	"github.com/userhub/apiserver/internal/services"
	"github.com/userhub/apiserver/internal/store"
	"github.com/userhub/apiserver/types"
)

// AuthHandler provides registration, login and Google OAuth endpoints.
type AuthHandler struct {
	userService *services.UserService
	tokens      *auth.TokenService
	google      *identity.Provider
}

// NewAuthHandler constructs an AuthHandler with the provided dependencies.
func NewAuthHandler(userService *services.UserService, tokens *auth.TokenService, google *identity.Provider) *AuthHandler {
	return &AuthHandler{
		userService: userService,
		tokens:      tokens,
		google:      google,
	}
}

// AuthRouter registers the unauthenticated auth routes.
func AuthRouter(r chi.Router, userService *services.UserService, tokens *auth.TokenService, google *identity.Provider) {
	handler := NewAuthHandler(userService, tokens, google)

	r.Post("/register", handler.Register)
	r.Post("/login", handler.Login)
	r.Get("/auth/google", handler.GoogleRedirect)
	r.Get("/auth/google/callback", handler.GoogleCallback)
}

// RequireAuth gates a route behind bearer-token authentication. The
// token is the second whitespace-separated segment of the Authorization
// header; the scheme word itself is not checked. Verified claims are
// attached to the request context.
func RequireAuth(tokens *auth.TokenService) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			header := r.Header.Get("Authorization")
			if strings.TrimSpace(header) == "" {
				writeMessage(w, http.StatusUnauthorized, "Token required")
				return
			}

			parts := strings.Fields(header)
			if len(parts) < 2 {
				writeMessage(w, http.StatusUnauthorized, "Unauthorized")
				return
			}

			claims, err := tokens.Verify(parts[1])
			if err != nil {
				// Expired and malformed tokens are deliberately
				// indistinguishable at the HTTP boundary.
				writeMessage(w, http.StatusUnauthorized, "Unauthorized")
				return
			}

			ctx := context.WithValue(r.Context(), contextClaimsKey, claims)
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}

// Register creates a password-backed user account.
func (h *AuthHandler) Register(w http.ResponseWriter, r *http.Request) {
	var req RegisterRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "Invalid request body")
		return
	}

	req.Name = strings.TrimSpace(req.Name)
	req.Email = strings.TrimSpace(req.Email)
	if req.Name == "" || req.Email == "" || req.Password == "" {
		writeError(w, http.StatusBadRequest, "Name, email, and password are required fields")
		return
	}

	hashed, err := auth.HashPassword(req.Password)
	if err != nil {
		writeError(w, http.StatusInternalServerError, "Internal server error")
		return
	}

	user, err := h.userService.Create(r.Context(), types.User{
		Name:         req.Name,
		Email:        req.Email,
		PasswordHash: hashed,
	})
	if err != nil {
		if errors.Is(err, store.ErrEmailTaken) {
			writeError(w, http.StatusConflict, "Email already registered")
			return
		}
		writeError(w, http.StatusInternalServerError, "Internal server error")
		return
	}

	writeJSON(w, http.StatusOK, RegisterResponse{
		Message: "User created successfully",
		User:    user.Public(),
	})
}

// Login verifies email/password credentials and returns a session token.
func (h *AuthHandler) Login(w http.ResponseWriter, r *http.Request) {
	var req LoginRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "Invalid request body")
		return
	}

	req.Email = strings.TrimSpace(req.Email)
	if req.Email == "" {
		writeMessage(w, http.StatusBadRequest, "Email is required")
		return
	}

	user, err := h.userService.GetByEmail(r.Context(), req.Email)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			writeMessage(w, http.StatusNotFound, "User not found")
			return
		}
		writeMessage(w, http.StatusInternalServerError, "Internal server error")
		return
	}

	if !user.HasPassword() {
		writeMessage(w, http.StatusNotFound, "Password not set")
		return
	}

	if !auth.CheckPassword(req.Password, user.PasswordHash) {
		writeMessage(w, http.StatusForbidden, "Wrong password")
		return
	}

	token, err := h.tokens.Issue(user)
	if err != nil {
		writeMessage(w, http.StatusInternalServerError, "Internal server error")
		return
	}

	writeJSON(w, http.StatusOK, DataResponse{Data: LoginData{
		ID:    user.ID,
		Name:  user.Name,
		Email: user.Email,
		Token: token,
	}})
}

// GoogleRedirect sends the caller to the Google consent screen.
func (h *AuthHandler) GoogleRedirect(w http.ResponseWriter, r *http.Request) {
	if !h.google.Enabled() {
		writeError(w, http.StatusServiceUnavailable, "Google login is not configured")
		return
	}
	http.Redirect(w, r, h.google.AuthorizationURL(), http.StatusFound)
}

// GoogleCallback exchanges the authorization code, finds or creates the
// user by email, and returns a session token.
func (h *AuthHandler) GoogleCallback(w http.ResponseWriter, r *http.Request) {
	if !h.google.Enabled() {
		writeError(w, http.StatusServiceUnavailable, "Google login is not configured")
		return
	}

	code := r.URL.Query().Get("code")
	if code == "" {
		writeError(w, http.StatusBadRequest, "Missing authorization code")
		return
	}

	id, err := h.google.Exchange(r.Context(), code)
	if err != nil {
		writeError(w, http.StatusInternalServerError, "Failed to authenticate with Google")
		return
	}

	user, err := h.userService.FindOrCreateByEmail(r.Context(), id.Name, id.Email)
	if err != nil {
		writeError(w, http.StatusInternalServerError, "Internal server error")
		return
	}

	token, err := h.tokens.Issue(user)
	if err != nil {
		writeError(w, http.StatusInternalServerError, "Internal server error")
		return
	}

	writeJSON(w, http.StatusOK, DataResponse{Data: GoogleLoginData{
		ID:    user.ID,
		Name:  user.Name,
		Token: token,
	}})
}

type RegisterRequest struct {
	Name     string `json:"name"`
	Email    string `json:"email"`
	Password string `json:"password"`
}

type RegisterResponse struct {
	Message string           `json:"message"`
	User    types.PublicUser `json:"user"`
}

type LoginRequest struct {
	Email    string `json:"email"`
	Password string `json:"password"`
}

type LoginData struct {
	ID    int    `json:"id"`
	Name  string `json:"name"`
	Email string `json:"email"`
	Token string `json:"token"`
}

type GoogleLoginData struct {
	ID    int    `json:"id"`
	Name  string `json:"name"`
	Token string `json:"token"`
}
