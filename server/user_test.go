package server

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestPermissionFor(t *testing.T) {
	t.Parallel()
	user := &User{
		Permissions: []Permission{
			{Path: "/", Readable: true, Writable: false},
			{Path: "/pub", Readable: true, Writable: true},
			{Path: "/pub/secret", Readable: false, Writable: false},
		},
	}
	require.NoError(t, user.normalize())

	tests := []struct {
		virtual  string
		readable bool
		writable bool
	}{
		{"/", true, false},
		{"/file.txt", true, false},
		{"/pub", true, true},
		{"/pub/a/b/c", true, true},
		{"/pub/secret", false, false},
		{"/pub/secret/deep/file", false, false},
	}
	for _, tt := range tests {
		perm := user.PermissionFor(tt.virtual)
		assert.Equal(t, tt.readable, perm.Readable, "readable for %s", tt.virtual)
		assert.Equal(t, tt.writable, perm.Writable, "writable for %s", tt.virtual)
	}
}

func TestPermissionForDefault(t *testing.T) {
	t.Parallel()
	user := &User{Permissions: []Permission{{Path: "/pub", Readable: true}}}

	// Nothing covers /other, so the default full-access permission
	// applies.
	perm := user.PermissionFor("/other")
	assert.True(t, perm.Readable)
	assert.True(t, perm.Writable)
}

func TestPermissionForTieBreaksByDeclarationOrder(t *testing.T) {
	t.Parallel()
	user := &User{
		Permissions: []Permission{
			{Path: "/pub", Readable: true, Writable: false},
			{Path: "/pub", Readable: false, Writable: true},
		},
	}
	perm := user.PermissionFor("/pub/x")
	assert.True(t, perm.Readable)
	assert.False(t, perm.Writable)
}

func TestUserNormalizeRejectsRelativeHome(t *testing.T) {
	t.Parallel()
	user := &User{Login: "u", HomePath: "home"}
	err := user.normalize()
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrPathIsNotAbsolute)
}

func TestUserNormalizeDefaults(t *testing.T) {
	t.Parallel()
	user := &User{}
	require.NoError(t, user.normalize())
	assert.Equal(t, ".", user.BasePath)
	assert.Equal(t, "/", user.HomePath)
	assert.Equal(t, DefaultMaximumConnectionsPerUser, user.MaximumConnections)
	require.Len(t, user.Permissions, 1)
	assert.True(t, user.Permissions[0].Readable)
	assert.True(t, user.Permissions[0].Writable)
}

func TestAvailableConnections(t *testing.T) {
	t.Parallel()
	a := NewAvailableConnections(2)

	assert.False(t, a.Locked())
	require.NoError(t, a.Acquire())
	require.NoError(t, a.Acquire())
	assert.True(t, a.Locked())

	err := a.Acquire()
	assert.Error(t, err)

	// Recover from the failed acquire, then drain normally.
	require.NoError(t, a.Release())
	require.NoError(t, a.Release())
	require.NoError(t, a.Release())
	assert.Error(t, a.Release())
}

func TestMemoryUserManagerSelection(t *testing.T) {
	t.Parallel()
	ctx := context.Background()

	anon := &User{}
	alice := &User{Login: "alice", Password: "secret"}
	nopass := &User{Login: "bob"}
	m, err := NewMemoryUserManager([]*User{anon, alice, nopass})
	require.NoError(t, err)

	state, user, info := m.GetUser(ctx, "alice")
	assert.Equal(t, GetUserPasswordRequired, state)
	assert.Same(t, alice, user)
	assert.Equal(t, "password required", info)
	m.NotifyLogout(alice)

	state, user, info = m.GetUser(ctx, "bob")
	assert.Equal(t, GetUserOK, state)
	assert.Same(t, nopass, user)
	assert.Equal(t, "login without password", info)
	m.NotifyLogout(nopass)

	state, user, info = m.GetUser(ctx, "whoever")
	assert.Equal(t, GetUserOK, state)
	assert.Same(t, anon, user)
	assert.Equal(t, "anonymous login", info)
	m.NotifyLogout(anon)
}

func TestMemoryUserManagerNoSuchUser(t *testing.T) {
	t.Parallel()
	alice := &User{Login: "alice", Password: "secret"}
	m, err := NewMemoryUserManager([]*User{alice})
	require.NoError(t, err)

	state, user, info := m.GetUser(context.Background(), "nobody")
	assert.Equal(t, GetUserError, state)
	assert.Nil(t, user)
	assert.Equal(t, "no such username", info)
}

func TestMemoryUserManagerQuota(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	alice := &User{Login: "alice", Password: "secret", MaximumConnections: 1}
	m, err := NewMemoryUserManager([]*User{alice})
	require.NoError(t, err)

	state, _, _ := m.GetUser(ctx, "alice")
	require.Equal(t, GetUserPasswordRequired, state)

	// The slot was taken pre-auth; a second session is refused.
	state, user, info := m.GetUser(ctx, "alice")
	assert.Equal(t, GetUserError, state)
	assert.Nil(t, user)
	assert.Equal(t, `too much connections for "alice"`, info)

	// Logout frees the slot again.
	m.NotifyLogout(alice)
	state, _, _ = m.GetUser(ctx, "alice")
	assert.Equal(t, GetUserPasswordRequired, state)
}

func TestMemoryUserManagerAuthenticate(t *testing.T) {
	t.Parallel()
	alice := &User{Login: "alice", Password: "secret"}
	m, err := NewMemoryUserManager([]*User{alice})
	require.NoError(t, err)

	ctx := context.Background()
	assert.True(t, m.Authenticate(ctx, alice, "secret"))
	assert.False(t, m.Authenticate(ctx, alice, "wrong"))
}

func TestMemoryUserManagerRejectsBadUser(t *testing.T) {
	t.Parallel()
	_, err := NewMemoryUserManager([]*User{{Login: "u", HomePath: "relative"}})
	require.Error(t, err)
	assert.True(t, errors.Is(err, ErrPathIsNotAbsolute))
}
