package handlers

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/golang-jwt/jwt/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/userhub/apiserver/internal/auth"
	"github.com/userhub/apiserver/internal/identity"
	"github.com/userhub/apiserver/internal/services"
	"github.com/userhub/apiserver/types"
	"golang.org/x/oauth2"
)

func doJSON(t *testing.T, handler http.Handler, method, path, body, token string) *httptest.ResponseRecorder {
	t.Helper()
	var reader *strings.Reader
	if body == "" {
		reader = strings.NewReader("{}")
	} else {
		reader = strings.NewReader(body)
	}
	req := httptest.NewRequest(method, path, reader)
	req.Header.Set("Content-Type", "application/json")
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, req)
	return rec
}

func decodeBody(t *testing.T, rec *httptest.ResponseRecorder) map[string]any {
	t.Helper()
	var body map[string]any
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	return body
}

func TestRegister(t *testing.T) {
	router, repo, _ := newTestRouter()

	rec := doJSON(t, router, http.MethodPost, "/register",
		`{"name":"A","email":"a@x.com","password":"pw"}`, "")
	require.Equal(t, http.StatusOK, rec.Code)

	body := decodeBody(t, rec)
	assert.Equal(t, "User created successfully", body["message"])

	user, ok := body["user"].(map[string]any)
	require.True(t, ok)
	assert.Equal(t, float64(1), user["id"])
	assert.Equal(t, "A", user["name"])
	assert.Equal(t, "a@x.com", user["email"])

	// Credential material must never appear in the response.
	_, exposed := user["password"]
	assert.False(t, exposed)
	assert.NotContains(t, rec.Body.String(), "$2a$")

	// The stored hash verifies against the plaintext and is not the plaintext.
	stored, err := repo.GetByID(context.Background(), 1)
	require.NoError(t, err)
	assert.NotEqual(t, "pw", stored.PasswordHash)
	assert.True(t, auth.CheckPassword("pw", stored.PasswordHash))
}

func TestRegister_MissingFields(t *testing.T) {
	router, _, _ := newTestRouter()

	rec := doJSON(t, router, http.MethodPost, "/register", `{"name":"A","email":"a@x.com"}`, "")
	require.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Equal(t, "Name, email, and password are required fields", decodeBody(t, rec)["error"])
}

func TestRegister_DuplicateEmail(t *testing.T) {
	router, _, _ := newTestRouter()

	first := doJSON(t, router, http.MethodPost, "/register",
		`{"name":"A","email":"a@x.com","password":"pw"}`, "")
	require.Equal(t, http.StatusOK, first.Code)

	second := doJSON(t, router, http.MethodPost, "/register",
		`{"name":"B","email":"a@x.com","password":"pw2"}`, "")
	require.Equal(t, http.StatusConflict, second.Code)
	assert.Equal(t, "Email already registered", decodeBody(t, second)["error"])
}

func TestLogin(t *testing.T) {
	router, _, tokens := newTestRouter()

	doJSON(t, router, http.MethodPost, "/register",
		`{"name":"A","email":"a@x.com","password":"pw"}`, "")

	rec := doJSON(t, router, http.MethodPost, "/login", `{"email":"a@x.com","password":"pw"}`, "")
	require.Equal(t, http.StatusOK, rec.Code)

	data, ok := decodeBody(t, rec)["data"].(map[string]any)
	require.True(t, ok)
	assert.Equal(t, float64(1), data["id"])
	assert.Equal(t, "A", data["name"])
	assert.Equal(t, "a@x.com", data["email"])

	token, ok := data["token"].(string)
	require.True(t, ok)
	require.NotEmpty(t, token)

	claims, err := tokens.Verify(token)
	require.NoError(t, err)
	assert.Equal(t, 1, claims.UserID)
	assert.Equal(t, "A", claims.Name)
	assert.Equal(t, "a@x.com", claims.Email)
}

func TestLogin_WrongPassword(t *testing.T) {
	router, _, _ := newTestRouter()

	doJSON(t, router, http.MethodPost, "/register",
		`{"name":"A","email":"a@x.com","password":"pw"}`, "")

	rec := doJSON(t, router, http.MethodPost, "/login", `{"email":"a@x.com","password":"wrong"}`, "")
	require.Equal(t, http.StatusForbidden, rec.Code)
	body := decodeBody(t, rec)
	assert.Equal(t, "Wrong password", body["message"])
	assert.NotContains(t, body, "token")
}

func TestLogin_UnknownUser(t *testing.T) {
	router, _, _ := newTestRouter()

	rec := doJSON(t, router, http.MethodPost, "/login", `{"email":"none@x.com","password":"pw"}`, "")
	require.Equal(t, http.StatusNotFound, rec.Code)
	assert.Equal(t, "User not found", decodeBody(t, rec)["message"])
}

func TestLogin_PasswordNotSet(t *testing.T) {
	router, repo, _ := newTestRouter()

	_, err := repo.Create(context.Background(), types.User{Name: "OAuth Only", Email: "o@x.com"})
	require.NoError(t, err)

	rec := doJSON(t, router, http.MethodPost, "/login", `{"email":"o@x.com","password":"pw"}`, "")
	require.Equal(t, http.StatusNotFound, rec.Code)
	assert.Equal(t, "Password not set", decodeBody(t, rec)["message"])
}

func TestLogin_MissingEmail(t *testing.T) {
	router, _, _ := newTestRouter()

	rec := doJSON(t, router, http.MethodPost, "/login", `{"password":"pw"}`, "")
	require.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Equal(t, "Email is required", decodeBody(t, rec)["message"])
}

func TestRequireAuth_MissingHeader(t *testing.T) {
	router, repo, _ := newTestRouter()
	seedUser(t, repo)

	rec := doJSON(t, router, http.MethodPatch, "/users/1", `{"name":"B","email":"b@x.com"}`, "")
	require.Equal(t, http.StatusUnauthorized, rec.Code)
	assert.Equal(t, "Token required", decodeBody(t, rec)["message"])
}

func TestRequireAuth_InvalidToken(t *testing.T) {
	router, repo, _ := newTestRouter()
	seedUser(t, repo)

	rec := doJSON(t, router, http.MethodPatch, "/users/1", `{"name":"B","email":"b@x.com"}`, "garbage")
	require.Equal(t, http.StatusUnauthorized, rec.Code)
	assert.Equal(t, "Unauthorized", decodeBody(t, rec)["message"])
}

func TestRequireAuth_ExpiredToken(t *testing.T) {
	router, repo, _ := newTestRouter()
	seedUser(t, repo)

	// Correctly signed but past expiry: must be rejected identically
	// to a malformed token.
	claims := auth.Claims{
		RegisteredClaims: jwt.RegisteredClaims{
			IssuedAt:  jwt.NewNumericDate(time.Now().Add(-2 * time.Hour)),
			ExpiresAt: jwt.NewNumericDate(time.Now().Add(-time.Hour)),
		},
		UserID: 1,
		Name:   "A",
	}
	expired, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString([]byte(testSecret))
	require.NoError(t, err)

	rec := doJSON(t, router, http.MethodPatch, "/users/1", `{"name":"B","email":"b@x.com"}`, expired)
	require.Equal(t, http.StatusUnauthorized, rec.Code)
	assert.Equal(t, "Unauthorized", decodeBody(t, rec)["message"])
}

func TestRequireAuth_SchemeWordUnchecked(t *testing.T) {
	router, repo, tokens := newTestRouter()
	user := seedUser(t, repo)

	token, err := tokens.Issue(user)
	require.NoError(t, err)

	req := httptest.NewRequest(http.MethodPatch, "/users/1", strings.NewReader(`{"name":"B","email":"b@x.com"}`))
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", "Token "+token)
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)

	require.Equal(t, http.StatusOK, rec.Code)
}

func TestRequireAuth_AttachesClaims(t *testing.T) {
	tokens, err := auth.NewTokenService(testSecret)
	require.NoError(t, err)

	token, err := tokens.Issue(types.User{ID: 9, Name: "A", Email: "a@x.com"})
	require.NoError(t, err)

	var got auth.Claims
	next := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		claims, err := claimsFromContext(r.Context())
		require.NoError(t, err)
		got = claims
	})

	req := httptest.NewRequest(http.MethodGet, "/", nil)
	req.Header.Set("Authorization", "Bearer "+token)
	rec := httptest.NewRecorder()
	RequireAuth(tokens)(next).ServeHTTP(rec, req)

	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, 9, got.UserID)
	assert.Equal(t, "A", got.Name)
	assert.Equal(t, "a@x.com", got.Email)
}

func TestGoogleRedirect(t *testing.T) {
	router, _, _ := newTestRouter()

	// Provider without credentials: both Google routes are disabled.
	rec := doJSON(t, router, http.MethodGet, "/auth/google", "", "")
	require.Equal(t, http.StatusServiceUnavailable, rec.Code)

	rec = doJSON(t, router, http.MethodGet, "/auth/google/callback?code=abc", "", "")
	require.Equal(t, http.StatusServiceUnavailable, rec.Code)
}

func TestGoogleRedirect_Configured(t *testing.T) {
	google := identity.NewGoogle(identity.Config{
		ClientID:     "client-id",
		ClientSecret: "client-secret",
		RedirectURL:  "http://localhost:5000/auth/google/callback",
	})

	handler := NewAuthHandler(nil, nil, google)
	req := httptest.NewRequest(http.MethodGet, "/auth/google", nil)
	rec := httptest.NewRecorder()
	handler.GoogleRedirect(rec, req)

	require.Equal(t, http.StatusFound, rec.Code)
	location := rec.Header().Get("Location")
	assert.Contains(t, location, "client_id=client-id")
	assert.Contains(t, location, "access_type=offline")
}

func TestGoogleCallback_MissingCode(t *testing.T) {
	google := identity.NewGoogle(identity.Config{
		ClientID:     "client-id",
		ClientSecret: "client-secret",
	})

	handler := NewAuthHandler(nil, nil, google)
	req := httptest.NewRequest(http.MethodGet, "/auth/google/callback", nil)
	rec := httptest.NewRecorder()
	handler.GoogleCallback(rec, req)

	require.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Equal(t, "Missing authorization code", decodeBody(t, rec)["error"])
}

func TestGoogleCallback_FindOrCreate(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		if r.URL.Path == "/token" {
			_, _ = w.Write([]byte(`{"access_token":"stub","token_type":"Bearer","expires_in":3600}`))
			return
		}
		_, _ = w.Write([]byte(`{"email":"g@x.com","name":"Google User"}`))
	}))
	defer srv.Close()

	google := identity.NewGoogle(identity.Config{
		ClientID:     "client-id",
		ClientSecret: "client-secret",
		RedirectURL:  "http://localhost:5000/auth/google/callback",
		Endpoint: oauth2.Endpoint{
			AuthURL:  srv.URL + "/auth",
			TokenURL: srv.URL + "/token",
		},
		UserinfoEndpoint: srv.URL,
	})

	repo := newMemRepo()
	userService := services.NewUserService(repo)
	tokens, err := auth.NewTokenService(testSecret)
	require.NoError(t, err)

	router := chi.NewRouter()
	AuthRouter(router, userService, tokens, google)

	rec := doJSON(t, router, http.MethodGet, "/auth/google/callback?code=auth-code", "", "")
	require.Equal(t, http.StatusOK, rec.Code)

	data, ok := decodeBody(t, rec)["data"].(map[string]any)
	require.True(t, ok)
	assert.Equal(t, float64(1), data["id"])
	assert.Equal(t, "Google User", data["name"])

	token, ok := data["token"].(string)
	require.True(t, ok)
	claims, err := tokens.Verify(token)
	require.NoError(t, err)
	assert.Equal(t, 1, claims.UserID)

	// A second login with the same email reuses the account.
	rec = doJSON(t, router, http.MethodGet, "/auth/google/callback?code=auth-code", "", "")
	require.Equal(t, http.StatusOK, rec.Code)
	data, ok = decodeBody(t, rec)["data"].(map[string]any)
	require.True(t, ok)
	assert.Equal(t, float64(1), data["id"])

	created, err := repo.GetByEmail(context.Background(), "g@x.com")
	require.NoError(t, err)
	assert.False(t, created.HasPassword())
}

func seedUser(t *testing.T, repo *memRepo) types.User {
	t.Helper()
	hash, err := auth.HashPassword("pw")
	require.NoError(t, err)
	user, err := repo.Create(context.Background(), types.User{
		Name:         "A",
		Email:        "a@x.com",
		PasswordHash: hash,
	})
	require.NoError(t, err)
	return user
}
