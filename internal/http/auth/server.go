package auth

import (
	"context"
	"errors"
	"net/http"
	"time"

	"filevault/internal/domain/models"
	"filevault/internal/lib/api"
	authservice "filevault/internal/services/auth"

	"github.com/go-chi/chi/v5"
)

const (
	accessTokenCookie  = "accessToken"
	refreshTokenCookie = "refreshToken"
)

type ctxKey int

const userIDKey ctxKey = 0

// Auth is the service surface the HTTP layer needs.
type Auth interface {
	SignUp(ctx context.Context, loginID, password string) (*models.TokenPair, error)
	SignIn(ctx context.Context, loginID, password string) (*models.TokenPair, error)
	Refresh(ctx context.Context, refreshToken string) (*models.TokenPair, error)
	Logout(ctx context.Context, refreshToken string) error
	ValidateAccessToken(ctx context.Context, accessToken string) (int64, error)
	UserInfo(ctx context.Context, userID int64) (*models.User, error)
	AccessTokenTTL() time.Duration
	RefreshTokenTTL() time.Duration
}

type Server struct {
	auth          Auth
	secureCookies bool
}

// New returns an auth HTTP server. secureCookies should be true outside
// local environments.
func New(auth Auth, secureCookies bool) *Server {
	return &Server{auth: auth, secureCookies: secureCookies}
}

// Register mounts the auth routes.
func (s *Server) Register(r chi.Router) {
	r.Post("/signup", s.signUp)
	r.Post("/signin", s.signIn)
	r.Post("/signin/new_token", s.refresh)
	r.Get("/info", s.info)
	r.Get("/logout", s.logout)
}

type credentialsRequest struct {
	ID       string `json:"id"`
	Password string `json:"password"`
}

type tokenPairResponse struct {
	Message      string `json:"message"`
	AccessToken  string `json:"accessToken"`
	RefreshToken string `json:"refreshToken"`
}

func (s *Server) signUp(w http.ResponseWriter, r *http.Request) {
	var req credentialsRequest
	if err := api.DecodeJSON(r, &req); err != nil {
		api.RespondMessage(w, http.StatusBadRequest, "No credentials")
		return
	}
	if msg := validateCredentials(req.ID, req.Password); msg != "" {
		api.RespondMessage(w, http.StatusBadRequest, msg)
		return
	}

	pair, err := s.auth.SignUp(r.Context(), req.ID, req.Password)
	if err != nil {
		s.respondAuthError(w, err)
		return
	}

	s.setTokenCookies(w, pair)
	api.RespondJSON(w, http.StatusOK, tokenPairResponse{
		Message:      "User has been created",
		AccessToken:  pair.AccessToken,
		RefreshToken: pair.RefreshToken,
	})
}

func (s *Server) signIn(w http.ResponseWriter, r *http.Request) {
	var req credentialsRequest
	if err := api.DecodeJSON(r, &req); err != nil {
		api.RespondMessage(w, http.StatusBadRequest, "No credentials")
		return
	}
	if req.ID == "" || req.Password == "" {
		api.RespondMessage(w, http.StatusBadRequest, "No credentials")
		return
	}

	pair, err := s.auth.SignIn(r.Context(), req.ID, req.Password)
	if err != nil {
		s.respondAuthError(w, err)
		return
	}

	s.setTokenCookies(w, pair)
	api.RespondJSON(w, http.StatusOK, tokenPairResponse{
		Message:      "Sign in successful",
		AccessToken:  pair.AccessToken,
		RefreshToken: pair.RefreshToken,
	})
}

type refreshRequest struct {
	RefreshToken string `json:"refreshToken"`
}

func (s *Server) refresh(w http.ResponseWriter, r *http.Request) {
	token := s.refreshTokenFrom(r)
	if token == "" {
		api.RespondMessage(w, http.StatusUnauthorized, "Invalid refresh token")
		return
	}

	pair, err := s.auth.Refresh(r.Context(), token)
	if err != nil {
		s.respondAuthError(w, err)
		return
	}

	s.setTokenCookies(w, pair)
	api.RespondJSON(w, http.StatusOK, tokenPairResponse{
		Message:      "Token refreshed successfully",
		AccessToken:  pair.AccessToken,
		RefreshToken: pair.RefreshToken,
	})
}

func (s *Server) info(w http.ResponseWriter, r *http.Request) {
	userID, ok := s.authorize(w, r)
	if !ok {
		return
	}

	user, err := s.auth.UserInfo(r.Context(), userID)
	if err != nil {
		s.respondAuthError(w, err)
		return
	}

	api.RespondJSON(w, http.StatusOK, map[string]string{"id": user.LoginID})
}

func (s *Server) logout(w http.ResponseWriter, r *http.Request) {
	token := s.refreshTokenFrom(r)

	// stale client-side cookies go away no matter what the store says
	s.clearTokenCookies(w)

	if token == "" {
		api.RespondMessage(w, http.StatusUnauthorized, "Invalid refresh token")
		return
	}

	if err := s.auth.Logout(r.Context(), token); err != nil {
		s.respondAuthError(w, err)
		return
	}

	api.RespondMessage(w, http.StatusOK, "Logged out successfully")
}

// Authenticate wraps handlers that need the caller's identity. It reads the
// access token cookie, validates it (signature, expiry, then the session
// revocation check), and puts the user id on the request context.
func (s *Server) Authenticate(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		userID, ok := s.authorize(w, r)
		if !ok {
			return
		}
		next.ServeHTTP(w, r.WithContext(context.WithValue(r.Context(), userIDKey, userID)))
	})
}

// UserIDFromContext returns the authenticated user id set by Authenticate.
func UserIDFromContext(ctx context.Context) (int64, bool) {
	userID, ok := ctx.Value(userIDKey).(int64)
	return userID, ok
}

func (s *Server) authorize(w http.ResponseWriter, r *http.Request) (int64, bool) {
	cookie, err := r.Cookie(accessTokenCookie)
	if err != nil || cookie.Value == "" {
		api.RespondMessage(w, http.StatusUnauthorized, "Access token not found")
		return 0, false
	}

	userID, err := s.auth.ValidateAccessToken(r.Context(), cookie.Value)
	if err != nil {
		s.respondAuthError(w, err)
		return 0, false
	}

	return userID, true
}

func (s *Server) refreshTokenFrom(r *http.Request) string {
	if cookie, err := r.Cookie(refreshTokenCookie); err == nil && cookie.Value != "" {
		return cookie.Value
	}
	var req refreshRequest
	if err := api.DecodeJSON(r, &req); err == nil {
		return req.RefreshToken
	}
	return ""
}

func (s *Server) setTokenCookies(w http.ResponseWriter, pair *models.TokenPair) {
	http.SetCookie(w, s.tokenCookie(accessTokenCookie, pair.AccessToken, s.auth.AccessTokenTTL()))
	http.SetCookie(w, s.tokenCookie(refreshTokenCookie, pair.RefreshToken, s.auth.RefreshTokenTTL()))
}

func (s *Server) clearTokenCookies(w http.ResponseWriter) {
	http.SetCookie(w, s.tokenCookie(accessTokenCookie, "", -time.Second))
	http.SetCookie(w, s.tokenCookie(refreshTokenCookie, "", -time.Second))
}

func (s *Server) tokenCookie(name, value string, ttl time.Duration) *http.Cookie {
	return &http.Cookie{
		Name:     name,
		Value:    value,
		Path:     "/",
		MaxAge:   int(ttl / time.Second),
		HttpOnly: true,
		Secure:   s.secureCookies,
		SameSite: http.SameSiteStrictMode,
	}
}

func (s *Server) respondAuthError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, authservice.ErrNoCredentials):
		api.RespondMessage(w, http.StatusBadRequest, "No credentials")
	case errors.Is(err, authservice.ErrUserAlreadyExists):
		api.RespondMessage(w, http.StatusConflict, "User already exists")
	case errors.Is(err, authservice.ErrInvalidCredentials):
		api.RespondMessage(w, http.StatusUnauthorized, "Invalid login or password")
	case errors.Is(err, authservice.ErrInvalidRefreshToken):
		api.RespondMessage(w, http.StatusUnauthorized, "Invalid refresh token")
	case errors.Is(err, authservice.ErrRefreshTokenExpired):
		api.RespondMessage(w, http.StatusUnauthorized, "Refresh token expired")
	case errors.Is(err, authservice.ErrAccessTokenExpired):
		api.RespondMessage(w, http.StatusUnauthorized, "Token expired")
	case errors.Is(err, authservice.ErrAccessTokenInvalid):
		api.RespondMessage(w, http.StatusForbidden, "Invalid access token")
	case errors.Is(err, authservice.ErrSessionExpired):
		api.RespondMessage(w, http.StatusUnauthorized, "Session has expired")
	case errors.Is(err, authservice.ErrUserNotFound):
		api.RespondMessage(w, http.StatusNotFound, "User not found")
	default:
		api.RespondMessage(w, http.StatusInternalServerError, "Internal server error")
	}
}

// validateCredentials enforces the sign-up schema: id 3..255 characters,
// password 6..255 with at least one lowercase letter, one uppercase letter,
// and one digit. Returns an empty string when valid.
func validateCredentials(id, password string) string {
	if id == "" || password == "" {
		return "No credentials"
	}
	if len(id) < 3 || len(id) > 255 {
		return "ID must have between 3 and 255 characters"
	}
	if len(password) < 6 || len(password) > 255 {
		return "Password must have between 6 and 255 characters"
	}

	var lower, upper, digit bool
	for _, c := range password {
		switch {
		case c >= 'a' && c <= 'z':
			lower = true
		case c >= 'A' && c <= 'Z':
			upper = true
		case c >= '0' && c <= '9':
			digit = true
		}
	}
	if !lower || !upper || !digit {
		return "Password must contain at least one uppercase letter, one lowercase letter, and one number"
	}

	return ""
}
