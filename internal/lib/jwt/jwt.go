package jwt

import (
	"crypto/rand"
	"encoding/hex"
	"errors"
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

var (
	// ErrTokenExpired means the signature checked out but the token is past its exp claim.
	ErrTokenExpired = errors.New("token expired")
	// ErrTokenInvalid covers malformed tokens, wrong signing methods, and bad signatures.
	ErrTokenInvalid = errors.New("token invalid")
)

// AccessTokenClaims is the decoded claim set of an access token.
type AccessTokenClaims struct {
	UserID    int64
	SessionID string
	ExpiresAt time.Time
}

// NewAccessToken creates a signed access JWT binding the user to a session.
func NewAccessToken(
	userID int64,
	sessionID string,
	secret string,
	ttl time.Duration,
) (string, error) {
	token := jwt.NewWithClaims(
		jwt.SigningMethodHS256,
		jwt.MapClaims{
			"uid": userID,
			"sid": sessionID,
			"exp": time.Now().Add(ttl).Unix(),
		})
	return token.SignedString([]byte(secret))
}

// ParseAccessToken verifies the signature and expiry of an access token and
// returns its claims. It never touches storage; session revocation is the
// caller's concern.
func ParseAccessToken(tokenString string, secret string) (*AccessTokenClaims, error) {
	token, err := jwt.Parse(tokenString, func(token *jwt.Token) (interface{}, error) {
		if _, ok := token.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, fmt.Errorf("unexpected signing method: %v", token.Header["alg"])
		}
		return []byte(secret), nil
	})
	if err != nil {
		if errors.Is(err, jwt.ErrTokenExpired) {
			return nil, ErrTokenExpired
		}
		return nil, ErrTokenInvalid
	}

	claims, ok := token.Claims.(jwt.MapClaims)
	if !ok || !token.Valid {
		return nil, ErrTokenInvalid
	}

	uid, ok := claims["uid"].(float64)
	if !ok {
		return nil, ErrTokenInvalid
	}
	sid, ok := claims["sid"].(string)
	if !ok || sid == "" {
		return nil, ErrTokenInvalid
	}
	exp, ok := claims["exp"].(float64)
	if !ok {
		return nil, ErrTokenInvalid
	}

	return &AccessTokenClaims{
		UserID:    int64(uid),
		SessionID: sid,
		ExpiresAt: time.Unix(int64(exp), 0),
	}, nil
}

// NewRefreshToken generates an opaque random token. It carries no claims;
// its only meaning is as a lookup key in the session store.
func NewRefreshToken() (string, error) {
	bytes := make([]byte, 40)
	if _, err := rand.Read(bytes); err != nil {
		return "", err
	}
	return hex.EncodeToString(bytes), nil
}
