// Package auth issues and verifies HS256 access tokens and maps roles to the
// actions they may propose.
package auth

import (
	"crypto/subtle"
	"errors"
	"fmt"
	"slices"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

var (
	// ErrInvalidToken is returned for any token that fails verification.
	ErrInvalidToken = errors.New("invalid token")
	// ErrUnknownRole is returned when issuing a token for an unknown role.
	ErrUnknownRole = errors.New("unknown role")
)

const tokenTypeAccess = "access"

// Roles.
const (
	RoleAdmin     = "admin"
	RoleDeveloper = "developer"
	RoleViewer    = "viewer"
)

// Wildcard grants every action.
const Wildcard = "*"

var rolePermissions = map[string][]string{
	RoleAdmin:     {Wildcard},
	RoleDeveloper: {"get_agent_status", "fetch_history", "system_ping", "echo_payload"},
	RoleViewer:    {"fetch_history", "system_ping"},
}

// CheckPermission reports whether role may propose action.
func CheckPermission(role, action string) bool {
	allowed := false
	for _, perm := range rolePermissions[role] {
		if subtle.ConstantTimeCompare([]byte(perm), []byte(Wildcard)) == 1 ||
			subtle.ConstantTimeCompare([]byte(perm), []byte(action)) == 1 {
			allowed = true
		}
	}
	return allowed
}

// RolePermissions returns a copy of the permissions granted to role.
func RolePermissions(role string) []string {
	return slices.Clone(rolePermissions[role])
}

// Roles lists the known roles, sorted.
func Roles() []string {
	out := make([]string, 0, len(rolePermissions))
	for r := range rolePermissions {
		out = append(out, r)
	}
	slices.Sort(out)
	return out
}

// Claims are the access token claims. Subject carries the agent id.
type Claims struct {
	jwt.RegisteredClaims
	Username string `json:"username,omitempty"`
	Role     string `json:"role"`
	Type     string `json:"type"`
}

// AgentID returns the subject of the token.
func (c *Claims) AgentID() string { return c.Subject }

// Options configures a Manager.
type Options struct {
	Issuer string
	TTL    time.Duration
	Now    func() time.Time
}

// Manager signs and verifies access tokens with a shared secret.
type Manager struct {
	secret []byte
	opts   Options
}

// NewManager creates a token manager.
func NewManager(secret string, optFns ...func(o *Options)) *Manager {
	opts := Options{
		Issuer: "decisionmesh",
		TTL:    30 * time.Minute,
		Now:    time.Now,
	}

	for _, fn := range optFns {
		fn(&opts)
	}

	return &Manager{secret: []byte(secret), opts: opts}
}

// Issue signs an access token for agentID with role.
func (m *Manager) Issue(agentID, username, role string) (string, error) {
	if _, ok := rolePermissions[role]; !ok {
		return "", fmt.Errorf("%w: %s", ErrUnknownRole, role)
	}

	now := m.opts.Now()
	claims := Claims{
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   agentID,
			Issuer:    m.opts.Issuer,
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(m.opts.TTL)),
		},
		Username: username,
		Role:     role,
		Type:     tokenTypeAccess,
	}

	return jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(m.secret)
}

// Verify parses tokenString and returns its claims.
func (m *Manager) Verify(tokenString string) (*Claims, error) {
	parser := jwt.NewParser(
		jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
		jwt.WithIssuer(m.opts.Issuer),
		jwt.WithExpirationRequired(),
		jwt.WithTimeFunc(m.opts.Now),
	)

	claims := &Claims{}
	tok, err := parser.ParseWithClaims(tokenString, claims, func(*jwt.Token) (any, error) {
		return m.secret, nil
	})
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidToken, err)
	}
	if !tok.Valid {
		return nil, ErrInvalidToken
	}
	if claims.Type != tokenTypeAccess {
		return nil, fmt.Errorf("%w: unexpected token type %q", ErrInvalidToken, claims.Type)
	}
	if _, ok := rolePermissions[claims.Role]; !ok {
		return nil, fmt.Errorf("%w: unknown role %q", ErrInvalidToken, claims.Role)
	}

	return claims, nil
}
