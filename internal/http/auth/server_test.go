package auth_test

import (
	"bytes"
	"encoding/json"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	authhttp "filevault/internal/http/auth"
	authservice "filevault/internal/services/auth"
	"filevault/internal/storage/memory"

	"github.com/brianvoe/gofakeit/v6"
	"github.com/go-chi/chi/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const testSecret = "test-secret"

func newServer(t *testing.T) http.Handler {
	t.Helper()

	store := memory.New()
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	svc := authservice.New(logger, store, store, store, testSecret, 10*time.Minute, 30*24*time.Hour)

	r := chi.NewRouter()
	r.Route("/auth", authhttp.New(svc, false).Register)
	return r
}

func doJSON(t *testing.T, handler http.Handler, method, path string, body any, cookies ...*http.Cookie) *httptest.ResponseRecorder {
	t.Helper()

	var reader io.Reader
	if body != nil {
		raw, err := json.Marshal(body)
		require.NoError(t, err)
		reader = bytes.NewReader(raw)
	}

	req := httptest.NewRequest(method, path, reader)
	req.Header.Set("Content-Type", "application/json")
	for _, c := range cookies {
		req.AddCookie(c)
	}

	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, req)
	return rec
}

func decodeBody(t *testing.T, rec *httptest.ResponseRecorder) map[string]string {
	t.Helper()

	var body map[string]string
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	return body
}

func cookieByName(rec *httptest.ResponseRecorder, name string) *http.Cookie {
	for _, c := range rec.Result().Cookies() {
		if c.Name == name {
			return c
		}
	}
	return nil
}

func signUp(t *testing.T, handler http.Handler, loginID, password string) *httptest.ResponseRecorder {
	t.Helper()
	return doJSON(t, handler, http.MethodPost, "/auth/signup",
		map[string]string{"id": loginID, "password": password})
}

func TestSignUp(t *testing.T) {
	handler := newServer(t)

	rec := signUp(t, handler, "user1", "Abc123!pass")
	require.Equal(t, http.StatusOK, rec.Code)

	body := decodeBody(t, rec)
	assert.Equal(t, "User has been created", body["message"])
	assert.NotEmpty(t, body["accessToken"])
	assert.NotEmpty(t, body["refreshToken"])

	access := cookieByName(rec, "accessToken")
	require.NotNil(t, access)
	assert.True(t, access.HttpOnly)
	assert.Equal(t, http.SameSiteStrictMode, access.SameSite)
	assert.Equal(t, "/", access.Path)
	assert.Equal(t, int((10 * time.Minute).Seconds()), access.MaxAge)

	refresh := cookieByName(rec, "refreshToken")
	require.NotNil(t, refresh)
	assert.True(t, refresh.HttpOnly)
	assert.Equal(t, int((30 * 24 * time.Hour).Seconds()), refresh.MaxAge)
}

func TestSignUp_Duplicate(t *testing.T) {
	handler := newServer(t)

	rec := signUp(t, handler, "user1", "Abc123!pass")
	require.Equal(t, http.StatusOK, rec.Code)

	rec = signUp(t, handler, "user1", "Abc123!pass")
	require.Equal(t, http.StatusConflict, rec.Code)
	assert.Equal(t, "User already exists", decodeBody(t, rec)["message"])
}

func TestSignUp_Validation(t *testing.T) {
	handler := newServer(t)

	tests := []struct {
		name     string
		id       string
		password string
	}{
		{name: "missing id", id: "", password: "Abc123!pass"},
		{name: "missing password", id: "user1", password: ""},
		{name: "short id", id: "ab", password: "Abc123!pass"},
		{name: "short password", id: "user1", password: "Ab1"},
		{name: "no uppercase", id: "user1", password: "abc123pass"},
		{name: "no digit", id: "user1", password: "Abcdefpass"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rec := signUp(t, handler, tt.id, tt.password)
			assert.Equal(t, http.StatusBadRequest, rec.Code)
		})
	}
}

func TestSignIn(t *testing.T) {
	handler := newServer(t)
	require.Equal(t, http.StatusOK, signUp(t, handler, "user1", "Abc123!pass").Code)

	rec := doJSON(t, handler, http.MethodPost, "/auth/signin",
		map[string]string{"id": "user1", "password": "Abc123!pass"})
	require.Equal(t, http.StatusOK, rec.Code)

	body := decodeBody(t, rec)
	assert.Equal(t, "Sign in successful", body["message"])
	assert.NotEmpty(t, body["accessToken"])
	assert.NotEmpty(t, body["refreshToken"])
}

func TestSignIn_WrongPassword(t *testing.T) {
	handler := newServer(t)
	require.Equal(t, http.StatusOK, signUp(t, handler, "user1", "Abc123!pass").Code)

	rec := doJSON(t, handler, http.MethodPost, "/auth/signin",
		map[string]string{"id": "user1", "password": "Wrong123pass"})
	require.Equal(t, http.StatusUnauthorized, rec.Code)

	body := decodeBody(t, rec)
	assert.Equal(t, "Invalid login or password", body["message"])
	assert.Empty(t, body["accessToken"])
	assert.Empty(t, body["refreshToken"])
}

func TestRefresh(t *testing.T) {
	handler := newServer(t)

	signedUp := signUp(t, handler, "user1", "Abc123!pass")
	require.Equal(t, http.StatusOK, signedUp.Code)
	oldRefresh := cookieByName(signedUp, "refreshToken")
	require.NotNil(t, oldRefresh)

	rec := doJSON(t, handler, http.MethodPost, "/auth/signin/new_token", nil, oldRefresh)
	require.Equal(t, http.StatusOK, rec.Code)

	body := decodeBody(t, rec)
	assert.Equal(t, "Token refreshed successfully", body["message"])
	assert.NotEmpty(t, body["refreshToken"])
	assert.NotEqual(t, oldRefresh.Value, body["refreshToken"])

	// presenting the rotated token again fails for good
	rec = doJSON(t, handler, http.MethodPost, "/auth/signin/new_token", nil, oldRefresh)
	require.Equal(t, http.StatusUnauthorized, rec.Code)
	assert.Equal(t, "Invalid refresh token", decodeBody(t, rec)["message"])
}

func TestRefresh_BodyFallback(t *testing.T) {
	handler := newServer(t)

	signedUp := signUp(t, handler, "user1", "Abc123!pass")
	token := decodeBody(t, signedUp)["refreshToken"]

	rec := doJSON(t, handler, http.MethodPost, "/auth/signin/new_token",
		map[string]string{"refreshToken": token})
	require.Equal(t, http.StatusOK, rec.Code)
}

func TestRefresh_Garbage(t *testing.T) {
	handler := newServer(t)

	rec := doJSON(t, handler, http.MethodPost, "/auth/signin/new_token", nil,
		&http.Cookie{Name: "refreshToken", Value: "garbage"})
	require.Equal(t, http.StatusUnauthorized, rec.Code)
	assert.Equal(t, "Invalid refresh token", decodeBody(t, rec)["message"])

	rec = doJSON(t, handler, http.MethodPost, "/auth/signin/new_token", nil)
	require.Equal(t, http.StatusUnauthorized, rec.Code)
}

func TestInfo(t *testing.T) {
	handler := newServer(t)

	loginID := gofakeit.Email()
	signedUp := signUp(t, handler, loginID, "Abc123!pass")
	access := cookieByName(signedUp, "accessToken")
	require.NotNil(t, access)

	rec := doJSON(t, handler, http.MethodGet, "/auth/info", nil, access)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, loginID, decodeBody(t, rec)["id"])
}

func TestInfo_NoToken(t *testing.T) {
	handler := newServer(t)

	rec := doJSON(t, handler, http.MethodGet, "/auth/info", nil)
	require.Equal(t, http.StatusUnauthorized, rec.Code)
	assert.Equal(t, "Access token not found", decodeBody(t, rec)["message"])
}

func TestLogout(t *testing.T) {
	handler := newServer(t)

	signedUp := signUp(t, handler, "user1", "Abc123!pass")
	access := cookieByName(signedUp, "accessToken")
	refresh := cookieByName(signedUp, "refreshToken")
	require.NotNil(t, refresh)

	rec := doJSON(t, handler, http.MethodGet, "/auth/logout", nil, refresh)
	require.Equal(t, http.StatusOK, rec.Code)

	// both cookies are expired on the way out
	clearedAccess := cookieByName(rec, "accessToken")
	require.NotNil(t, clearedAccess)
	assert.Less(t, clearedAccess.MaxAge, 0)
	clearedRefresh := cookieByName(rec, "refreshToken")
	require.NotNil(t, clearedRefresh)
	assert.Less(t, clearedRefresh.MaxAge, 0)

	// the access token is revoked even though its signature is still valid
	rec = doJSON(t, handler, http.MethodGet, "/auth/info", nil, access)
	require.Equal(t, http.StatusUnauthorized, rec.Code)
	assert.Equal(t, "Session has expired", decodeBody(t, rec)["message"])

	// second logout: the session is already gone, cookies still cleared
	rec = doJSON(t, handler, http.MethodGet, "/auth/logout", nil, refresh)
	require.Equal(t, http.StatusUnauthorized, rec.Code)
	require.NotNil(t, cookieByName(rec, "accessToken"))
}
