package server

import "context"

// Handlers do not check their own preconditions: each command declares
// an ordered list of guards that run before the handler body. A failed
// guard enqueues its response and the body never runs. The three guard
// kinds are evaluated in order: connection state, then path state, then
// path permissions.

// connCondition names a session field that must be set.
type connCondition int

const (
	condUserRequired connCondition = iota
	condLoginRequired
	condPassiveServerStarted
	condDataConnectionMade
	condRenameFromRequired
)

func (c connCondition) message() string {
	switch c {
	case condUserRequired:
		return "no user (use USER firstly)"
	case condLoginRequired:
		return "not logged in"
	case condPassiveServerStarted:
		return "no listen socket created (use PASV firstly)"
	case condDataConnectionMade:
		return "no data connection made"
	case condRenameFromRequired:
		return "no filename (use RNFR firstly)"
	}
	return "precondition failed"
}

func (c connCondition) satisfied(s *session) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	switch c {
	case condUserRequired:
		return s.user != nil
	case condLoginRequired:
		return s.logged
	case condPassiveServerStarted:
		return s.passiveServer != nil
	case condDataConnectionMade:
		return s.dataConn != nil
	case condRenameFromRequired:
		return s.renameFrom != ""
	}
	return false
}

// guardOptions tune a connection-condition check. wait polls for the
// field to appear (bounded by the session's wait-future timeout) and is
// only meaningful for the data connection. failCode defaults to "503",
// failInfo to the condition's own message.
type guardOptions struct {
	wait     bool
	failCode string
	failInfo string
}

// checkConnConditions evaluates the conditions in order and, on the
// first failure, enqueues the failure response and returns false. ctx
// bounds the optional wait; a failure caused by its cancellation stays
// silent, the caller reports the abort.
func (s *session) checkConnConditions(ctx context.Context, conds []connCondition, opts guardOptions) bool {
	code := opts.failCode
	if code == "" {
		code = "503"
	}
	for _, c := range conds {
		ok := c.satisfied(s)
		if !ok && opts.wait && c == condDataConnectionMade {
			ok = s.waitDataConn(ctx, s.server.waitFutureTimeout)
		}
		if !ok {
			if ctx.Err() != nil {
				return false
			}
			info := opts.failInfo
			if info == "" {
				info = c.message()
			}
			s.respond(code, info)
			return false
		}
	}
	return true
}

// pathCondition is a requirement on the resolved real path.
type pathCondition int

const (
	pathMustExist pathCondition = iota
	pathMustNotExist
	pathMustBeDir
	pathMustBeFile
)

func (c pathCondition) message() string {
	switch c {
	case pathMustExist:
		return "path does not exists"
	case pathMustNotExist:
		return "path already exists"
	case pathMustBeDir:
		return "path is not a directory"
	case pathMustBeFile:
		return "path is not a file"
	}
	return "path condition failed"
}

func (c pathCondition) holds(ctx context.Context, s *session, realPath string) bool {
	switch c {
	case pathMustExist:
		return s.pathIO.Exists(ctx, realPath)
	case pathMustNotExist:
		return !s.pathIO.Exists(ctx, realPath)
	case pathMustBeDir:
		return s.pathIO.IsDir(ctx, realPath)
	case pathMustBeFile:
		return s.pathIO.IsFile(ctx, realPath)
	}
	return false
}

// pathPermission is a required flag of the applicable Permission for
// the virtual path. Every declared flag must hold; a single missing
// flag denies the command.
type pathPermission int

const (
	permReadable pathPermission = iota
	permWritable
)

func (p pathPermission) granted(perm Permission) bool {
	if p == permReadable {
		return perm.Readable
	}
	return perm.Writable
}

// checkPathGuards resolves the argument once and evaluates path
// conditions, then permissions. On failure the 550 response is enqueued
// and false is returned.
func (s *session) checkPathGuards(ctx context.Context, rest string, conds []pathCondition, perms []pathPermission) bool {
	realPath, virtualPath := s.paths(rest)
	for _, c := range conds {
		if !c.holds(ctx, s, realPath) {
			s.respond("550", c.message())
			return false
		}
	}
	if len(perms) > 0 {
		perm := s.currentUser().PermissionFor(virtualPath)
		for _, p := range perms {
			if !p.granted(perm) {
				s.respond("550", "permission denied")
				return false
			}
		}
	}
	return true
}
