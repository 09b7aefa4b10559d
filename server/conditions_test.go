package server

import (
	"context"
	"net"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ftpkit/ftpkit/internal/throttle"
	"github.com/ftpkit/ftpkit/pathio"
)

func loginWiredSession(t *testing.T, user *User) *session {
	t.Helper()
	s, _ := newWiredSession(t)
	require.NoError(t, user.normalize())
	s.user = user
	s.logged = true
	s.pathIO = pathio.NewOS(0)
	return s
}

func drainOne(t *testing.T, q *responseQueue) response {
	t.Helper()
	r, ok := q.Get()
	require.True(t, ok, "expected a queued response")
	q.TaskDone()
	return r
}

// TestGuardsAllPermissionsRequired: when a command declares several
// permission flags, every one of them must hold (fail closed), not just
// the first.
func TestGuardsAllPermissionsRequired(t *testing.T) {
	t.Parallel()
	s := loginWiredSession(t, &User{
		BasePath: t.TempDir(),
		Permissions: []Permission{
			{Path: "/", Readable: true, Writable: false},
		},
	})

	ok := s.checkPathGuards(context.Background(), "f",
		nil, []pathPermission{permReadable, permWritable})
	assert.False(t, ok, "writable=false must deny despite readable=true")

	r := drainOne(t, s.respQ)
	assert.Equal(t, "550", r.code)
	assert.Equal(t, []string{"permission denied"}, r.lines)
}

func TestGuardsPermissionOrderIrrelevant(t *testing.T) {
	t.Parallel()
	s := loginWiredSession(t, &User{
		BasePath: t.TempDir(),
		Permissions: []Permission{
			{Path: "/", Readable: false, Writable: true},
		},
	})

	ok := s.checkPathGuards(context.Background(), "f",
		nil, []pathPermission{permWritable, permReadable})
	assert.False(t, ok)
	r := drainOne(t, s.respQ)
	assert.Equal(t, "550", r.code)
}

func TestGuardsPathConditionBeforePermission(t *testing.T) {
	t.Parallel()
	// The path condition fails first, so its message (not "permission
	// denied") reaches the client.
	s := loginWiredSession(t, &User{
		BasePath:    t.TempDir(),
		Permissions: []Permission{{Path: "/", Readable: false, Writable: false}},
	})

	ok := s.checkPathGuards(context.Background(), "missing",
		[]pathCondition{pathMustExist}, []pathPermission{permReadable})
	assert.False(t, ok)

	r := drainOne(t, s.respQ)
	assert.Equal(t, "550", r.code)
	assert.Equal(t, []string{"path does not exists"}, r.lines)
}

func TestGuardsConnConditionDefaults(t *testing.T) {
	t.Parallel()
	s, _ := newWiredSession(t)

	ok := s.checkConnConditions(s.ctx, []connCondition{condLoginRequired}, guardOptions{})
	assert.False(t, ok)

	r := drainOne(t, s.respQ)
	assert.Equal(t, "503", r.code)
	assert.Equal(t, []string{"not logged in"}, r.lines)
}

func TestGuardsCustomFailure(t *testing.T) {
	t.Parallel()
	s, _ := newWiredSession(t)

	ok := s.checkConnConditions(s.ctx, []connCondition{condDataConnectionMade}, guardOptions{
		failCode: "425",
		failInfo: "Can't open data connection",
	})
	assert.False(t, ok)

	r := drainOne(t, s.respQ)
	assert.Equal(t, "425", r.code)
	assert.Equal(t, []string{"Can't open data connection"}, r.lines)
}

func TestGuardsWaitForDataConnection(t *testing.T) {
	t.Parallel()
	s, _ := newWiredSession(t)
	s.server.waitFutureTimeout = time.Second

	// The data connection appears while the guard is polling.
	a, b := net.Pipe()
	t.Cleanup(func() {
		a.Close()
		b.Close()
	})
	go func() {
		time.Sleep(100 * time.Millisecond)
		s.setDataConn(throttle.NewStream(a, nil, 0, 0))
	}()

	start := time.Now()
	ok := s.checkConnConditions(s.ctx, []connCondition{condDataConnectionMade}, dataGuard)
	assert.True(t, ok)
	assert.Less(t, time.Since(start), time.Second)
}

func TestGuardsWaitTimesOut(t *testing.T) {
	t.Parallel()
	s, _ := newWiredSession(t)
	s.server.waitFutureTimeout = 100 * time.Millisecond

	ok := s.checkConnConditions(s.ctx, []connCondition{condDataConnectionMade}, dataGuard)
	assert.False(t, ok)

	r := drainOne(t, s.respQ)
	assert.Equal(t, "425", r.code)
}
