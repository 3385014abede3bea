package auth

import (
	"errors"
	"fmt"
	"strconv"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
)

const (
	TokenTypeAccess  = "access"
	TokenTypeRefresh = "refresh"
)

var ErrInvalidToken = errors.New("invalid or expired token")

// Claims JWT 载荷
type Claims struct {
	UserID  uint   `json:"user_id"`
	Email   string `json:"email"`
	IsStaff bool   `json:"is_staff,omitempty"`
	Type    string `json:"token_type"`
	jwt.RegisteredClaims
}

// TokenPair is what login, register and refresh return.
type TokenPair struct {
	Access        string    `json:"access"`
	Refresh       string    `json:"refresh"`
	AccessExpires time.Time `json:"access_expires"`
}

// TokenIssuer signs and verifies HS256 tokens.
type TokenIssuer struct {
	secret     []byte
	accessTTL  time.Duration
	refreshTTL time.Duration
	now        func() time.Time
}

func NewTokenIssuer(secret string, accessTTL, refreshTTL time.Duration) *TokenIssuer {
	return &TokenIssuer{
		secret:     []byte(secret),
		accessTTL:  accessTTL,
		refreshTTL: refreshTTL,
		now:        time.Now,
	}
}

// Issue returns a fresh access/refresh pair for the user.
func (ti *TokenIssuer) Issue(userID uint, email string, isStaff bool) (*TokenPair, error) {
	now := ti.now()
	access, err := ti.sign(userID, email, isStaff, TokenTypeAccess, now, ti.accessTTL)
	if err != nil {
		return nil, err
	}
	refresh, err := ti.sign(userID, email, isStaff, TokenTypeRefresh, now, ti.refreshTTL)
	if err != nil {
		return nil, err
	}
	return &TokenPair{Access: access, Refresh: refresh, AccessExpires: now.Add(ti.accessTTL)}, nil
}

func (ti *TokenIssuer) sign(userID uint, email string, isStaff bool, typ string, now time.Time, ttl time.Duration) (string, error) {
	claims := Claims{
		UserID:  userID,
		Email:   email,
		IsStaff: isStaff,
		Type:    typ,
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   strconv.FormatUint(uint64(userID), 10),
			ID:        uuid.NewString(),
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(ttl)),
		},
	}
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	signed, err := token.SignedString(ti.secret)
	if err != nil {
		return "", fmt.Errorf("sign %s token: %w", typ, err)
	}
	return signed, nil
}

// Refresh trades a valid refresh token for a new access token.
func (ti *TokenIssuer) Refresh(refreshToken string) (string, time.Time, error) {
	claims, err := ti.Parse(refreshToken, TokenTypeRefresh)
	if err != nil {
		return "", time.Time{}, err
	}
	now := ti.now()
	access, err := ti.sign(claims.UserID, claims.Email, claims.IsStaff, TokenTypeAccess, now, ti.accessTTL)
	if err != nil {
		return "", time.Time{}, err
	}
	return access, now.Add(ti.accessTTL), nil
}

// Parse verifies tokenString and checks it is of the wanted type.
func (ti *TokenIssuer) Parse(tokenString, wantType string) (*Claims, error) {
	claims := &Claims{}
	parser := jwt.NewParser(
		jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
		jwt.WithTimeFunc(ti.now),
	)
	tok, err := parser.ParseWithClaims(tokenString, claims, func(*jwt.Token) (interface{}, error) {
		return ti.secret, nil
	})
	if err != nil || !tok.Valid {
		return nil, fmt.Errorf("%w: %v", ErrInvalidToken, err)
	}
	if claims.Type != wantType {
		return nil, fmt.Errorf("%w: %s token used as %s", ErrInvalidToken, claims.Type, wantType)
	}
	return claims, nil
}
