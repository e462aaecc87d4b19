package auth

import (
	"errors"
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
)

// Capabilities carried by context tokens.
const (
	CapWorkerExecute = "worker:execute"
	CapWorkerRead    = "worker:read"
	CapBrainRead     = "brain:read"
	CapBrainWrite    = "brain:write"
	CapMemoryRead    = "memory:read"
	CapMemoryWrite   = "memory:write"
	CapTraceWrite    = "trace:write"
)

// Typed authorization errors. These are the only errors that propagate
// out of the executor; everything else becomes a structured result.
var (
	ErrTokenExpired     = errors.New("context token has expired")
	ErrPermissionDenied = errors.New("context token lacks required capability")
	ErrTenantDenied     = errors.New("context token does not grant access to tenant")
	ErrScopeDenied      = errors.New("context token cannot satisfy security scopes")
	ErrTokenRequired    = errors.New("security enforced but no context token provided")
)

// IsAuthorizationError reports whether err belongs to the authorization
// taxonomy (propagated, never converted into a failed result).
func IsAuthorizationError(err error) bool {
	return errors.Is(err, ErrTokenExpired) ||
		errors.Is(err, ErrPermissionDenied) ||
		errors.Is(err, ErrTenantDenied) ||
		errors.Is(err, ErrScopeDenied) ||
		errors.Is(err, ErrTokenRequired)
}

// SecurityScopes declares the read/write scopes a request wants to touch.
type SecurityScopes struct {
	Read  []string `json:"read,omitempty"`
	Write []string `json:"write,omitempty"`
}

// Empty reports whether no scopes are declared.
func (s SecurityScopes) Empty() bool {
	return len(s.Read) == 0 && len(s.Write) == 0
}

// Token is a validated context token: the caller's identity plus the
// capabilities and tenants it is allowed to act on.
type Token struct {
	Subject      string
	Capabilities []string
	Tenants      []string // empty means all tenants
	ExpiresAt    time.Time
}

// Expired reports whether the token is past its expiry.
func (t *Token) Expired() bool {
	return !t.ExpiresAt.IsZero() && time.Now().After(t.ExpiresAt)
}

// HasCapability reports whether the token grants the given capability.
func (t *Token) HasCapability(cap string) bool {
	for _, c := range t.Capabilities {
		if c == cap {
			return true
		}
	}
	return false
}

// AllowsTenant reports whether the token may act on the given tenant.
// An empty tenant list grants access to all tenants (service tokens).
func (t *Token) AllowsTenant(tenantID string) bool {
	if len(t.Tenants) == 0 {
		return true
	}
	for _, id := range t.Tenants {
		if id == tenantID {
			return true
		}
	}
	return false
}

// CanSatisfy checks that every declared scope is covered by a capability.
// Scopes map 1:1 onto capabilities; execution counts as a write.
func (t *Token) CanSatisfy(scopes SecurityScopes) bool {
	for _, s := range scopes.Read {
		if !t.HasCapability(s) {
			return false
		}
	}
	for _, s := range scopes.Write {
		if !t.HasCapability(s) {
			return false
		}
	}
	return true
}

// tokenClaims is the JWT claim set for context tokens.
type tokenClaims struct {
	jwt.RegisteredClaims
	Capabilities []string `json:"capabilities"`
	Tenants      []string `json:"tenants,omitempty"`
}

// Manager mints and validates context tokens.
type Manager struct {
	signingKey []byte
	tokenTTL   time.Duration
	issuer     string
}

// NewManager creates a token manager with the given HMAC signing key.
func NewManager(signingKey string, tokenTTL time.Duration) *Manager {
	if tokenTTL <= 0 {
		tokenTTL = time.Hour
	}
	return &Manager{
		signingKey: []byte(signingKey),
		tokenTTL:   tokenTTL,
		issuer:     "contextworker",
	}
}

// MintServiceToken returns a signed token for service-to-service calls
// (e.g. worker → Brain). Service tokens are not tenant-scoped.
func (m *Manager) MintServiceToken(subject string, capabilities ...string) (string, error) {
	now := time.Now()
	claims := tokenClaims{
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   subject,
			Issuer:    m.issuer,
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(m.tokenTTL)),
			ID:        uuid.New().String(),
		},
		Capabilities: capabilities,
	}
	return jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(m.signingKey)
}

// Validate parses and validates a signed token string.
func (m *Manager) Validate(tokenString string) (*Token, error) {
	parsed, err := jwt.ParseWithClaims(tokenString, &tokenClaims{}, func(t *jwt.Token) (interface{}, error) {
		if _, ok := t.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, fmt.Errorf("unexpected signing method: %v", t.Header["alg"])
		}
		return m.signingKey, nil
	})
	if err != nil {
		if errors.Is(err, jwt.ErrTokenExpired) {
			return nil, ErrTokenExpired
		}
		return nil, fmt.Errorf("parse token: %w", err)
	}
	claims, ok := parsed.Claims.(*tokenClaims)
	if !ok || !parsed.Valid {
		return nil, fmt.Errorf("invalid token claims")
	}
	if claims.Issuer != m.issuer {
		return nil, fmt.Errorf("invalid token issuer")
	}

	tok := &Token{
		Subject:      claims.Subject,
		Capabilities: claims.Capabilities,
		Tenants:      claims.Tenants,
	}
	if claims.ExpiresAt != nil {
		tok.ExpiresAt = claims.ExpiresAt.Time
	}
	return tok, nil
}

// BrainServiceToken mints the token every worker-owned Brain client uses.
// Grants only what the worker needs: episodic read/write, fact upsert,
// and step-trace recording.
func (m *Manager) BrainServiceToken() (string, error) {
	return m.MintServiceToken("worker-brain-service",
		CapBrainRead, CapBrainWrite, CapMemoryRead, CapMemoryWrite, CapTraceWrite)
}
