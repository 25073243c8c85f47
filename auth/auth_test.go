package auth

import (
	"strings"
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var secret = strings.Repeat("k", 32)

func TestCheckPermission(t *testing.T) {
	assert.True(t, CheckPermission(RoleAdmin, "emergency_shutdown"))
	assert.True(t, CheckPermission(RoleAdmin, "anything"))
	assert.True(t, CheckPermission(RoleDeveloper, "echo_payload"))
	assert.False(t, CheckPermission(RoleDeveloper, "emergency_shutdown"))
	assert.True(t, CheckPermission(RoleViewer, "fetch_history"))
	assert.False(t, CheckPermission(RoleViewer, "get_agent_status"))
	assert.False(t, CheckPermission("intruder", "system_ping"))
}

func TestRolePermissionsIsCopy(t *testing.T) {
	p := RolePermissions(RoleViewer)
	p[0] = "*"
	assert.False(t, CheckPermission(RoleViewer, "emergency_shutdown"))
	assert.Equal(t, []string{RoleAdmin, RoleDeveloper, RoleViewer}, Roles())
}

func TestManager_IssueVerify(t *testing.T) {
	m := NewManager(secret)

	tok, err := m.Issue("agent-1", "alice", RoleDeveloper)
	require.NoError(t, err)

	claims, err := m.Verify(tok)
	require.NoError(t, err)
	assert.Equal(t, "agent-1", claims.AgentID())
	assert.Equal(t, RoleDeveloper, claims.Role)
	assert.Equal(t, "alice", claims.Username)
}

func TestManager_IssueUnknownRole(t *testing.T) {
	_, err := NewManager(secret).Issue("a", "u", "root")
	assert.ErrorIs(t, err, ErrUnknownRole)
}

func TestManager_VerifyRejects(t *testing.T) {
	m := NewManager(secret)

	t.Run("wrong secret", func(t *testing.T) {
		tok, err := NewManager(strings.Repeat("x", 32)).Issue("a", "u", RoleViewer)
		require.NoError(t, err)
		_, err = m.Verify(tok)
		assert.ErrorIs(t, err, ErrInvalidToken)
	})

	t.Run("expired", func(t *testing.T) {
		past := NewManager(secret, func(o *Options) {
			o.Now = func() time.Time { return time.Now().Add(-time.Hour) }
		})
		tok, err := past.Issue("a", "u", RoleViewer)
		require.NoError(t, err)
		_, err = m.Verify(tok)
		assert.ErrorIs(t, err, ErrInvalidToken)
	})

	t.Run("wrong issuer", func(t *testing.T) {
		other := NewManager(secret, func(o *Options) { o.Issuer = "elsewhere" })
		tok, err := other.Issue("a", "u", RoleViewer)
		require.NoError(t, err)
		_, err = m.Verify(tok)
		assert.ErrorIs(t, err, ErrInvalidToken)
	})

	t.Run("wrong type", func(t *testing.T) {
		claims := Claims{
			RegisteredClaims: jwt.RegisteredClaims{
				Subject:   "a",
				Issuer:    "decisionmesh",
				ExpiresAt: jwt.NewNumericDate(time.Now().Add(time.Minute)),
			},
			Role: RoleViewer,
			Type: "refresh",
		}
		tok, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString([]byte(secret))
		require.NoError(t, err)
		_, err = m.Verify(tok)
		assert.ErrorIs(t, err, ErrInvalidToken)
	})

	t.Run("garbage", func(t *testing.T) {
		_, err := m.Verify("not.a.token")
		assert.ErrorIs(t, err, ErrInvalidToken)
	})
}
