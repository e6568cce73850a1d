package middleware

import (
	"crypto/hmac"
	"crypto/sha256"
	"encoding/base64"
	"errors"
	"fmt"
	"net/http"
	"strconv"
	"strings"
	"time"
)

const defaultTokenTTL = 12 * time.Hour

// Role is the access level carried by a bearer token.
type Role string

const (
	RoleEmployee Role = "employee"
	RoleAdmin    Role = "admin"
)

var (
	// ErrInvalidToken is returned for malformed or badly signed tokens.
	ErrInvalidToken = errors.New("invalid token")
	// ErrTokenExpired is returned for tokens past their expiry.
	ErrTokenExpired = errors.New("token expired")
	// ErrMissingSecret is returned when no signing secret is configured.
	ErrMissingSecret = errors.New("token secret is required")
)

// Claims identify the caller of a request.
type Claims struct {
	Subject   string    `json:"subject"`
	Role      Role      `json:"role"`
	ExpiresAt time.Time `json:"expires_at"`
}

// IsAdmin reports whether the caller has the admin role.
func (c *Claims) IsAdmin() bool {
	return c != nil && c.Role == RoleAdmin
}

// TokenManager issues and verifies HMAC-signed bearer tokens of the form
// subject.role.expiry.signature. The secret is shared with the identity
// service that issues tokens to employees.
type TokenManager struct {
	secret []byte
	now    func() time.Time
}

// NewTokenManager creates a token manager. Tokens carry the caller's role, so
// there is no fallback secret.
func NewTokenManager(secret string) (*TokenManager, error) {
	if strings.TrimSpace(secret) == "" {
		return nil, ErrMissingSecret
	}
	return &TokenManager{secret: []byte(secret), now: time.Now}, nil
}

// Issue creates a token for subject valid for ttl.
func (tm *TokenManager) Issue(subject string, role Role, ttl time.Duration) (string, error) {
	if subject == "" || strings.Contains(subject, ".") {
		return "", fmt.Errorf("%w: subject must be non-empty and must not contain '.'", ErrInvalidToken)
	}
	if role != RoleEmployee && role != RoleAdmin {
		return "", fmt.Errorf("%w: unknown role %q", ErrInvalidToken, role)
	}
	if ttl <= 0 {
		ttl = defaultTokenTTL
	}
	payload := fmt.Sprintf("%s.%s.%d", subject, role, tm.now().Add(ttl).Unix())
	return payload + "." + tm.signData(payload), nil
}

// Parse verifies a token and returns its claims.
func (tm *TokenManager) Parse(token string) (*Claims, error) {
	parts := strings.Split(token, ".")
	if len(parts) != 4 {
		return nil, ErrInvalidToken
	}
	payload := strings.Join(parts[:3], ".")
	if !tm.verifySignature(payload, parts[3]) {
		return nil, ErrInvalidToken
	}

	role := Role(parts[1])
	if role != RoleEmployee && role != RoleAdmin {
		return nil, ErrInvalidToken
	}
	expiry, err := strconv.ParseInt(parts[2], 10, 64)
	if err != nil {
		return nil, ErrInvalidToken
	}
	claims := &Claims{Subject: parts[0], Role: role, ExpiresAt: time.Unix(expiry, 0).UTC()}
	if tm.now().After(claims.ExpiresAt) {
		return nil, ErrTokenExpired
	}
	return claims, nil
}

// ClaimsFromRequest extracts and verifies the bearer token of a request.
func (tm *TokenManager) ClaimsFromRequest(r *http.Request) (*Claims, error) {
	authHeader := r.Header.Get("Authorization")
	if !strings.HasPrefix(authHeader, "Bearer ") {
		return nil, ErrInvalidToken
	}
	return tm.Parse(strings.TrimPrefix(authHeader, "Bearer "))
}

// signData creates an HMAC signature for data
func (tm *TokenManager) signData(data string) string {
	h := hmac.New(sha256.New, tm.secret)
	h.Write([]byte(data))
	return base64.RawURLEncoding.EncodeToString(h.Sum(nil))
}

// verifySignature verifies an HMAC signature
func (tm *TokenManager) verifySignature(data, signature string) bool {
	expected := tm.signData(data)
	return hmac.Equal([]byte(signature), []byte(expected))
}
