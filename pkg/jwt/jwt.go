package jwtutil

import (
	"crypto/rsa"
	"errors"
	"strings"
	"time"

	jwt "github.com/golang-jwt/jwt/v5"
)

const (
	RoleCustomer = "customer"
	RoleStaff    = "staff"
	RoleAdmin    = "admin"
)

// Claims are issued by the external identity service. StoreID is set for
// staff accounts and scopes them to one store.
type Claims struct {
	UserID  string `json:"uid"`
	Role    string `json:"role"`
	StoreID string `json:"store_id,omitempty"`
	// Older tokens carry the subject in user_id.
	LegacyUserID string `json:"user_id,omitempty"`
	jwt.RegisteredClaims
}

func NewClaims(userID, role, storeID string, expiry time.Duration) *Claims {
	now := time.Now().UTC()
	return &Claims{
		UserID:  userID,
		Role:    role,
		StoreID: storeID,
		RegisteredClaims: jwt.RegisteredClaims{
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(expiry)),
			NotBefore: jwt.NewNumericDate(now),
		},
	}
}

func (c *Claims) IsStaffOf(storeID string) bool {
	if c == nil {
		return false
	}
	if strings.EqualFold(c.Role, RoleAdmin) {
		return true
	}
	return strings.EqualFold(c.Role, RoleStaff) &&
		c.StoreID != "" &&
		strings.EqualFold(c.StoreID, strings.TrimSpace(storeID))
}

// GenerateAccessToken is used by tooling and tests; production tokens come
// from the identity service.
func GenerateAccessToken(claims *Claims, privateKey *rsa.PrivateKey) (string, error) {
	token := jwt.NewWithClaims(jwt.SigningMethodRS256, claims)
	return token.SignedString(privateKey)
}

func ParseAccessToken(tokenStr string, publicKey *rsa.PublicKey) (*Claims, error) {
	if publicKey == nil {
		return nil, errors.New("jwt public key not configured")
	}

	claims := &Claims{}
	token, err := jwt.ParseWithClaims(tokenStr, claims, func(token *jwt.Token) (interface{}, error) {
		return publicKey, nil
	}, jwt.WithValidMethods([]string{jwt.SigningMethodRS256.Alg()}))
	if err != nil {
		return nil, err
	}
	if !token.Valid {
		return nil, jwt.ErrTokenSignatureInvalid
	}
	if claims.UserID == "" {
		claims.UserID = claims.LegacyUserID
	}
	return claims, nil
}

func ParsePublicKey(pem string) (*rsa.PublicKey, error) {
	trimmed := strings.TrimSpace(pem)
	if trimmed == "" {
		return nil, errors.New("jwt public key not configured")
	}
	return jwt.ParseRSAPublicKeyFromPEM([]byte(trimmed))
}
