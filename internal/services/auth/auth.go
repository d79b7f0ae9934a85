package auth

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"filevault/internal/domain/models"
	jwtlib "filevault/internal/lib/jwt"
	"filevault/internal/lib/sl"
	"filevault/internal/storage"

	"github.com/google/uuid"
	"golang.org/x/crypto/bcrypt"
)

// Auth coordinates the credential store, the session store, and the token
// codec. It owns no persistent state of its own; every mutation goes through
// the session store, so a second instance sharing the same store is safe.
type Auth struct {
	logger          *slog.Logger
	userSaver       UserSaver
	userProvider    UserProvider
	sessionStore    SessionStore
	secret          string
	accessTokenTTL  time.Duration
	refreshTokenTTL time.Duration
}

type UserSaver interface {
	SaveUser(
		ctx context.Context,
		loginID string,
		passHash []byte,
	) (uid int64, err error)
}

type UserProvider interface {
	User(
		ctx context.Context,
		loginID string,
	) (user *models.User, err error)
	UserByID(
		ctx context.Context,
		userID int64,
	) (user *models.User, err error)
}

type SessionStore interface {
	SaveSession(ctx context.Context, id, refreshToken string, userID int64) (*models.Session, error)
	SessionByToken(ctx context.Context, refreshToken string) (*models.Session, error)
	SessionByID(ctx context.Context, id string) (*models.Session, error)
	// DeleteSessionByToken must be atomic and report how many rows it
	// removed; concurrent refreshes racing on the same token are decided
	// by exactly one caller observing a non-zero count.
	DeleteSessionByToken(ctx context.Context, refreshToken string) (int64, error)
}

var (
	ErrNoCredentials       = errors.New("no credentials")
	ErrInvalidCredentials  = errors.New("invalid login or password")
	ErrUserAlreadyExists   = errors.New("user already exists")
	ErrUserNotFound        = errors.New("user not found")
	ErrInvalidRefreshToken = errors.New("invalid refresh token")
	ErrRefreshTokenExpired = errors.New("refresh token expired")
	ErrAccessTokenExpired  = errors.New("access token expired")
	ErrAccessTokenInvalid  = errors.New("access token invalid")
	ErrSessionExpired      = errors.New("session has expired")
)

// New returns a new instance of the Auth service.
func New(
	logger *slog.Logger,
	userSaver UserSaver,
	userProvider UserProvider,
	sessionStore SessionStore,
	secret string,
	accessTokenTTL time.Duration,
	refreshTokenTTL time.Duration,
) *Auth {
	return &Auth{
		logger:          logger,
		userSaver:       userSaver,
		userProvider:    userProvider,
		sessionStore:    sessionStore,
		secret:          secret,
		accessTokenTTL:  accessTokenTTL,
		refreshTokenTTL: refreshTokenTTL,
	}
}

// AccessTokenTTL reports the access token lifetime, used by the transport
// layer for cookie max-age.
func (a *Auth) AccessTokenTTL() time.Duration { return a.accessTokenTTL }

// RefreshTokenTTL reports the refresh token absolute lifetime.
func (a *Auth) RefreshTokenTTL() time.Duration { return a.refreshTokenTTL }

// SignUp creates a new user and an initial session for it. If the session
// step fails after the user row was written, the user row stays; the next
// sign-in recovers without any compensating rollback.
func (a *Auth) SignUp(
	ctx context.Context,
	loginID string,
	password string,
) (*models.TokenPair, error) {
	const op = "auth.SignUp"
	log := a.logger.With(
		slog.String("op", op),
		slog.String("loginID", loginID),
	)

	if loginID == "" || password == "" {
		return nil, fmt.Errorf("%s: %w", op, ErrNoCredentials)
	}

	log.Info("sign up request")

	_, err := a.userProvider.User(ctx, loginID)
	if err == nil {
		log.Warn("user already exists")
		return nil, fmt.Errorf("%s: %w", op, ErrUserAlreadyExists)
	}
	if !errors.Is(err, storage.ErrUserNotFound) {
		log.Error("failed to get user", sl.Err(err))
		return nil, fmt.Errorf("%s: %w", op, err)
	}

	passHash, err := bcrypt.GenerateFromPassword([]byte(password), bcrypt.DefaultCost)
	if err != nil {
		log.Error("failed to generate password hash", sl.Err(err))
		return nil, fmt.Errorf("%s: %w", op, err)
	}

	userID, err := a.userSaver.SaveUser(ctx, loginID, passHash)
	if err != nil {
		if errors.Is(err, storage.ErrUserAlreadyExists) {
			log.Warn("user already exists", sl.Err(err))
			return nil, fmt.Errorf("%s: %w", op, ErrUserAlreadyExists)
		}
		log.Error("failed to save user", sl.Err(err))
		return nil, fmt.Errorf("%s: %w", op, err)
	}

	pair, err := a.createSession(ctx, userID)
	if err != nil {
		log.Error("failed to create session", sl.Err(err))
		return nil, fmt.Errorf("%s: %w", op, err)
	}

	log.Info("user registered", slog.Int64("userID", userID))

	return pair, nil
}

// SignIn authenticates the user and issues a fresh session. Other live
// sessions of the same user are left untouched.
func (a *Auth) SignIn(
	ctx context.Context,
	loginID string,
	password string,
) (*models.TokenPair, error) {
	const op = "auth.SignIn"
	log := a.logger.With(slog.String("op", op))

	if loginID == "" || password == "" {
		return nil, fmt.Errorf("%s: %w", op, ErrNoCredentials)
	}

	log.Info("sign in request", slog.String("loginID", loginID))

	user, err := a.userProvider.User(ctx, loginID)
	if err != nil {
		if errors.Is(err, storage.ErrUserNotFound) {
			// same failure as a wrong password, do not leak which part was wrong
			log.Warn("user not found", sl.Err(err))
			return nil, fmt.Errorf("%s: %w", op, ErrInvalidCredentials)
		}
		log.Error("failed to get user", sl.Err(err))
		return nil, fmt.Errorf("%s: %w", op, err)
	}

	if err := bcrypt.CompareHashAndPassword(user.PassHash, []byte(password)); err != nil {
		log.Warn("invalid password")
		return nil, fmt.Errorf("%s: %w", op, ErrInvalidCredentials)
	}

	pair, err := a.createSession(ctx, user.ID)
	if err != nil {
		log.Error("failed to create session", sl.Err(err))
		return nil, fmt.Errorf("%s: %w", op, err)
	}

	log.Info("user signed in", slog.Int64("userID", user.ID))

	return pair, nil
}

// Refresh rotates a refresh token: the presented token's session is deleted
// and a new one is issued for the same user. A token is single-use; once
// rotated, presenting it again behaves as if it never existed.
func (a *Auth) Refresh(
	ctx context.Context,
	refreshToken string,
) (*models.TokenPair, error) {
	const op = "auth.Refresh"
	log := a.logger.With(slog.String("op", op))

	if refreshToken == "" {
		return nil, fmt.Errorf("%s: %w", op, ErrInvalidRefreshToken)
	}

	log.Info("refresh request")

	sess, err := a.sessionStore.SessionByToken(ctx, refreshToken)
	if err != nil {
		if errors.Is(err, storage.ErrSessionNotFound) {
			log.Warn("refresh token not found")
			return nil, fmt.Errorf("%s: %w", op, ErrInvalidRefreshToken)
		}
		log.Error("failed to get session", sl.Err(err))
		return nil, fmt.Errorf("%s: %w", op, err)
	}

	if time.Since(sess.CreatedAt) > a.refreshTokenTTL {
		if _, err := a.sessionStore.DeleteSessionByToken(ctx, refreshToken); err != nil {
			log.Error("failed to delete expired session", sl.Err(err))
		}
		log.Warn("refresh token expired", slog.String("sessionID", sess.ID))
		return nil, fmt.Errorf("%s: %w", op, ErrRefreshTokenExpired)
	}

	removed, err := a.sessionStore.DeleteSessionByToken(ctx, refreshToken)
	if err != nil {
		log.Error("failed to delete session", sl.Err(err))
		return nil, fmt.Errorf("%s: %w", op, err)
	}
	if removed == 0 {
		// lost the race against a concurrent refresh of the same token;
		// treat as already rotated
		log.Warn("refresh token already rotated", slog.String("sessionID", sess.ID))
		return nil, fmt.Errorf("%s: %w", op, ErrInvalidRefreshToken)
	}

	pair, err := a.createSession(ctx, sess.UserID)
	if err != nil {
		log.Error("failed to create session", sl.Err(err))
		return nil, fmt.Errorf("%s: %w", op, err)
	}

	log.Info("tokens refreshed", slog.Int64("userID", sess.UserID))

	return pair, nil
}

// Logout revokes the session named by the refresh token. Any access token
// carrying that session's id stops validating immediately.
func (a *Auth) Logout(ctx context.Context, refreshToken string) error {
	const op = "auth.Logout"
	log := a.logger.With(slog.String("op", op))

	if refreshToken == "" {
		return fmt.Errorf("%s: %w", op, ErrInvalidRefreshToken)
	}

	log.Info("logout request")

	removed, err := a.sessionStore.DeleteSessionByToken(ctx, refreshToken)
	if err != nil {
		log.Error("failed to delete session", sl.Err(err))
		return fmt.Errorf("%s: %w", op, err)
	}
	if removed == 0 {
		log.Warn("session already gone")
		return fmt.Errorf("%s: %w", op, ErrInvalidRefreshToken)
	}

	log.Info("user logged out")

	return nil
}

// ValidateAccessToken verifies an access token and returns the owning user
// id. Signature and expiry come from the codec alone; the session lookup is
// the revocation check that makes logout effective before the token's
// natural expiry.
func (a *Auth) ValidateAccessToken(
	ctx context.Context,
	accessToken string,
) (int64, error) {
	const op = "auth.ValidateAccessToken"
	log := a.logger.With(slog.String("op", op))

	claims, err := jwtlib.ParseAccessToken(accessToken, a.secret)
	if err != nil {
		if errors.Is(err, jwtlib.ErrTokenExpired) {
			return 0, fmt.Errorf("%s: %w", op, ErrAccessTokenExpired)
		}
		return 0, fmt.Errorf("%s: %w", op, ErrAccessTokenInvalid)
	}

	sess, err := a.sessionStore.SessionByID(ctx, claims.SessionID)
	if err != nil {
		if errors.Is(err, storage.ErrSessionNotFound) {
			log.Warn("session revoked or gone", slog.String("sessionID", claims.SessionID))
			return 0, fmt.Errorf("%s: %w", op, ErrSessionExpired)
		}
		log.Error("failed to get session", sl.Err(err))
		return 0, fmt.Errorf("%s: %w", op, err)
	}

	if sess.UserID != claims.UserID {
		log.Warn("session user mismatch", slog.String("sessionID", claims.SessionID))
		return 0, fmt.Errorf("%s: %w", op, ErrSessionExpired)
	}

	return claims.UserID, nil
}

// UserInfo returns the account behind an authenticated user id.
func (a *Auth) UserInfo(ctx context.Context, userID int64) (*models.User, error) {
	const op = "auth.UserInfo"
	log := a.logger.With(slog.String("op", op), slog.Int64("userID", userID))

	user, err := a.userProvider.UserByID(ctx, userID)
	if err != nil {
		if errors.Is(err, storage.ErrUserNotFound) {
			log.Warn("user not found")
			return nil, fmt.Errorf("%s: %w", op, ErrUserNotFound)
		}
		log.Error("failed to get user", sl.Err(err))
		return nil, fmt.Errorf("%s: %w", op, err)
	}

	return user, nil
}

// createSession issues a refresh token, persists the session, and mints the
// access token embedding the new session's id.
func (a *Auth) createSession(ctx context.Context, userID int64) (*models.TokenPair, error) {
	refreshToken, err := jwtlib.NewRefreshToken()
	if err != nil {
		return nil, err
	}

	sess, err := a.sessionStore.SaveSession(ctx, uuid.New().String(), refreshToken, userID)
	if err != nil {
		return nil, err
	}

	accessToken, err := jwtlib.NewAccessToken(userID, sess.ID, a.secret, a.accessTokenTTL)
	if err != nil {
		return nil, err
	}

	return &models.TokenPair{
		AccessToken:  accessToken,
		RefreshToken: refreshToken,
	}, nil
}
