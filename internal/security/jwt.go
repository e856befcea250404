package security

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

// Token types carried in the token_type claim.
const (
	TokenTypeAccess  = "access"
	TokenTypeRefresh = "refresh"
)

// ErrInvalidToken is returned for malformed, expired, or mistyped tokens.
var ErrInvalidToken = errors.New("invalid token")

// UserClaims are the JWT claims issued to players.
type UserClaims struct {
	UserID    uint64 `json:"user_id"`
	TokenType string `json:"token_type"`
	// OTPVerified marks access tokens issued after a TOTP check.
	OTPVerified bool `json:"otp_verified,omitempty"`
	jwt.RegisteredClaims
}

// TokenPair is an access and refresh token issued together.
type TokenPair struct {
	Access  string `json:"access"`
	Refresh string `json:"refresh"`
}

// IssueUserToken signs a token of the given type for userID.
func IssueUserToken(secret string, userID uint64, tokenType string, ttl time.Duration, now time.Time) (string, error) {
	return issueToken(secret, userID, tokenType, false, ttl, now)
}

// IssueOTPAccessToken signs an access token that records a passed TOTP check.
func IssueOTPAccessToken(secret string, userID uint64, ttl time.Duration, now time.Time) (string, error) {
	return issueToken(secret, userID, TokenTypeAccess, true, ttl, now)
}

func issueToken(secret string, userID uint64, tokenType string, otpVerified bool, ttl time.Duration, now time.Time) (string, error) {
	if strings.TrimSpace(secret) == "" {
		return "", fmt.Errorf("jwt: empty secret")
	}
	jti, errJTI := GenerateRandomString(12)
	if errJTI != nil {
		return "", errJTI
	}
	claims := UserClaims{
		UserID:      userID,
		TokenType:   tokenType,
		OTPVerified: otpVerified,
		RegisteredClaims: jwt.RegisteredClaims{
			ID:        jti,
			Subject:   fmt.Sprintf("%d", userID),
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(ttl)),
		},
	}
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	signed, errSign := token.SignedString([]byte(secret))
	if errSign != nil {
		return "", fmt.Errorf("jwt: sign: %w", errSign)
	}
	return signed, nil
}

// IssueTokenPair signs an access and a refresh token for userID.
func IssueTokenPair(secret string, userID uint64, accessTTL, refreshTTL time.Duration, now time.Time) (TokenPair, error) {
	access, errAccess := IssueUserToken(secret, userID, TokenTypeAccess, accessTTL, now)
	if errAccess != nil {
		return TokenPair{}, errAccess
	}
	refresh, errRefresh := IssueUserToken(secret, userID, TokenTypeRefresh, refreshTTL, now)
	if errRefresh != nil {
		return TokenPair{}, errRefresh
	}
	return TokenPair{Access: access, Refresh: refresh}, nil
}

// ParseUserToken validates tokenString and checks it has the expected type.
func ParseUserToken(secret, tokenString, wantType string) (*UserClaims, error) {
	if strings.TrimSpace(secret) == "" {
		return nil, fmt.Errorf("jwt: empty secret")
	}
	claims := &UserClaims{}
	token, err := jwt.ParseWithClaims(tokenString, claims, func(t *jwt.Token) (any, error) {
		return []byte(secret), nil
	}, jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}), jwt.WithExpirationRequired())
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidToken, err)
	}
	if !token.Valid || claims.UserID == 0 {
		return nil, ErrInvalidToken
	}
	if wantType != "" && claims.TokenType != wantType {
		return nil, fmt.Errorf("%w: expected %s token", ErrInvalidToken, wantType)
	}
	return claims, nil
}
