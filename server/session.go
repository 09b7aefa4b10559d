package server

import (
	"context"
	"errors"
	"net"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/ftpkit/ftpkit/internal/throttle"
	"github.com/ftpkit/ftpkit/pathio"
)

// session is the per-connection state record plus the machinery that
// animates it: a command-reader goroutine, a response-writer goroutine
// draining the FIFO reply queue, and any number of transfer workers
// racing against subsequent commands.
type session struct {
	server *Server
	id     string
	stream *throttle.Stream // command channel
	pathIO pathio.PathIO
	respQ  *responseQueue

	clientHost string
	clientPort int
	serverHost string
	serverPort int

	// ctx is cancelled at teardown; worker contexts derive from it.
	ctx    context.Context
	cancel context.CancelFunc

	mu               sync.Mutex
	user             *User
	logged           bool
	currentDirectory string // virtual
	transferType     string // "I" or "A"
	renameFrom       string // real path, "" = unset
	restartOffset    int64
	acquired         bool // holds a server-wide slot

	passiveServer   net.Listener
	passivePort     int
	passivePriority int

	dataConn   *throttle.Stream
	dataNotify chan struct{}

	workers       sync.WaitGroup
	workerCancels map[int]context.CancelFunc
	workerSeq     int
}

func newSession(server *Server, conn net.Conn) *session {
	clientHost, clientPort := splitHostPort(conn.RemoteAddr())
	serverHost, serverPort := splitHostPort(conn.LocalAddr())

	throttles := throttle.NewSet()
	throttles.Attach("server_global", server.throttle)
	throttles.Attach("server_per_connection", server.throttlePerConnection.Clone())

	ctx, cancel := context.WithCancel(context.Background())
	s := &session{
		server:           server,
		id:               uuid.NewString(),
		stream:           throttle.NewStream(conn, throttles, server.idleTimeout, server.socketTimeout),
		pathIO:           server.pathIOFactory(server.pathTimeout),
		respQ:            newResponseQueue(),
		clientHost:       clientHost,
		clientPort:       clientPort,
		serverHost:       serverHost,
		serverPort:       serverPort,
		ctx:              ctx,
		cancel:           cancel,
		transferType:     "I",
		currentDirectory: "/",
		dataNotify:       make(chan struct{}, 1),
		workerCancels:    make(map[int]context.CancelFunc),
	}
	return s
}

func splitHostPort(addr net.Addr) (string, int) {
	host, portStr, err := net.SplitHostPort(addr.String())
	if err != nil {
		return addr.String(), 0
	}
	port, _ := strconv.Atoi(portStr)
	return host, port
}

func (s *session) currentUser() *User {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.user
}

// paths resolves a client path against the session's user and current
// directory.
func (s *session) paths(rest string) (realPath, virtualPath string) {
	s.mu.Lock()
	user, cwd := s.user, s.currentDirectory
	s.mu.Unlock()
	return resolvePaths(user, cwd, rest)
}

// parsedCommand is one line read off the command channel.
type parsedCommand struct {
	cmd  string
	rest string
	err  error
}

// serve runs the session until QUIT, a broken command channel or server
// shutdown. It is the Go shape of the cooperative dispatcher: greeting,
// then a loop over parsed commands; replies always travel through the
// response queue so their order matches enqueue order even while
// transfer workers run concurrently.
func (s *session) serve() {
	defer s.teardown()

	go s.responseWriter()

	s.server.logger.Info("session_started",
		"session_id", s.id,
		"remote", net.JoinHostPort(s.clientHost, strconv.Itoa(s.clientPort)),
	)

	if !s.greeting() {
		s.respQ.Join()
		return
	}

	cmds := s.startCommandReader()
	for c := range cmds {
		if c.err != nil {
			return
		}
		if !s.dispatch(c.cmd, c.rest) {
			s.respQ.Join()
			return
		}
	}
}

// greeting refuses the session with 421 when the server-wide cap is
// reached, otherwise acquires a slot and welcomes the client.
func (s *session) greeting() bool {
	if err := s.server.available.Acquire(); err != nil {
		// Undo the underflow so the counter stays conserved.
		_ = s.server.available.Release()
		s.respond("421", "Too many connections")
		if s.server.metricsCollector != nil {
			s.server.metricsCollector.RecordConnection(false, "global_limit_reached")
		}
		return false
	}
	s.mu.Lock()
	s.acquired = true
	s.mu.Unlock()
	if s.server.metricsCollector != nil {
		s.server.metricsCollector.RecordConnection(true, "accepted")
	}
	s.respond("220", s.server.welcomeMessage)
	return true
}

// startCommandReader reads, decodes and splits command lines in its own
// goroutine so that parsing the next command overlaps with handling the
// current one (this is what lets ABOR reach a busy session).
func (s *session) startCommandReader() <-chan parsedCommand {
	ch := make(chan parsedCommand)
	go func() {
		defer close(ch)
		for {
			line, err := s.stream.ReadLine(s.ctx)
			if err != nil && len(line) == 0 {
				select {
				case ch <- parsedCommand{err: err}:
				case <-s.ctx.Done():
				}
				return
			}
			text, decErr := s.server.decode(line)
			if decErr != nil {
				text = string(line)
			}
			text = strings.TrimRight(text, "\r\n")
			cmd, rest, _ := strings.Cut(text, " ")
			cmd = strings.ToLower(cmd)

			logRest := rest
			if cmd == "pass" {
				logRest = strings.Repeat("*", len(rest))
			}
			s.server.logger.Debug("command received",
				"session_id", s.id,
				"cmd", cmd,
				"arg", logRest,
			)

			select {
			case ch <- parsedCommand{cmd: cmd, rest: rest}:
			case <-s.ctx.Done():
				return
			}
			if err != nil {
				select {
				case ch <- parsedCommand{err: err}:
				case <-s.ctx.Done():
				}
				return
			}
		}
	}()
	return ch
}

// dispatch routes one command through its guards and handler. It
// returns false when the session should end.
func (s *session) dispatch(cmd, rest string) bool {
	entry, ok := commandsMapping[cmd]
	if !ok {
		s.respond("502", "'"+cmd+"' not implemented")
		return true
	}

	// A restart offset survives only until the next command; the
	// transfer commands consume it themselves.
	if cmd != "retr" && cmd != "stor" && cmd != "appe" {
		s.mu.Lock()
		s.restartOffset = 0
		s.mu.Unlock()
	}

	start := time.Now()
	keep, err := s.runCommand(entry, rest)
	if err != nil {
		var perr *pathio.Error
		if errors.As(err, &perr) {
			s.respond("451", "file system error")
		} else {
			s.server.logger.Error("command handling error",
				"session_id", s.id,
				"cmd", cmd,
				"error", err,
			)
		}
	}
	if s.server.metricsCollector != nil {
		s.server.metricsCollector.RecordCommand(cmd, err == nil, time.Since(start))
	}
	return keep
}

func (s *session) runCommand(entry command, rest string) (bool, error) {
	if !s.checkConnConditions(s.ctx, entry.conds, guardOptions{}) {
		return true, nil
	}
	if len(entry.pathConds) > 0 || len(entry.perms) > 0 {
		if !s.checkPathGuards(s.ctx, rest, entry.pathConds, entry.perms) {
			return true, nil
		}
	}
	return entry.fn(s, rest)
}

// setDataConn binds the single data connection of the session. An
// inbound connection that arrives while one is still bound is closed
// and the bound one is left untouched.
func (s *session) setDataConn(st *throttle.Stream) {
	s.mu.Lock()
	if s.dataConn != nil {
		s.mu.Unlock()
		st.Close()
		return
	}
	s.dataConn = st
	s.mu.Unlock()
	select {
	case s.dataNotify <- struct{}{}:
	default:
	}
}

// waitDataConn polls for the data connection to be bound, up to wait or
// until ctx is cancelled.
func (s *session) waitDataConn(ctx context.Context, wait time.Duration) bool {
	deadline := time.NewTimer(wait)
	defer deadline.Stop()
	for {
		s.mu.Lock()
		bound := s.dataConn != nil
		s.mu.Unlock()
		if bound {
			return true
		}
		select {
		case <-s.dataNotify:
		case <-deadline.C:
			return false
		case <-ctx.Done():
			return false
		}
	}
}

// takeDataConn moves the data connection out of the session so that
// later commands cannot reuse it.
func (s *session) takeDataConn() *throttle.Stream {
	s.mu.Lock()
	defer s.mu.Unlock()
	st := s.dataConn
	s.dataConn = nil
	return st
}

// closeDataConn drops a stale, unclaimed data connection.
func (s *session) closeDataConn() {
	if st := s.takeDataConn(); st != nil {
		st.Close()
	}
}

// spawnWorker runs fn as an extra worker concurrently with command
// dispatch. Cancellation (ABOR or teardown) is absorbed and answered
// with the 426/226 pair; pathio failures become 451.
func (s *session) spawnWorker(name string, fn func(ctx context.Context) error) {
	ctx, cancel := context.WithCancel(s.ctx)
	s.mu.Lock()
	id := s.workerSeq
	s.workerSeq++
	s.workerCancels[id] = cancel
	s.mu.Unlock()

	s.workers.Add(1)
	go func() {
		defer s.workers.Done()
		defer func() {
			s.mu.Lock()
			delete(s.workerCancels, id)
			s.mu.Unlock()
			cancel()
		}()
		err := fn(ctx)
		if err == nil {
			return
		}
		// A failure while the worker's context is cancelled is the
		// abort unwinding (closed data stream, context error from a
		// throttle wait or path operation), not a real transfer error.
		// A worker that returned cleanly before the cancel landed has
		// already reported success and must stay silent.
		if ctx.Err() != nil {
			s.respond("426", "transfer aborted")
			s.respond("226", "abort successful")
			return
		}
		var perr *pathio.Error
		if errors.As(err, &perr) {
			s.respond("451", "file system error")
			return
		}
		s.server.logger.Error("worker failed",
			"session_id", s.id,
			"worker", name,
			"error", err,
		)
	}()
}

// cancelWorkers aborts every running extra worker. It reports whether
// there was anything to cancel.
func (s *session) cancelWorkers() bool {
	s.mu.Lock()
	cancels := make([]context.CancelFunc, 0, len(s.workerCancels))
	for _, c := range s.workerCancels {
		cancels = append(cancels, c)
	}
	s.mu.Unlock()
	for _, c := range cancels {
		c()
	}
	return len(cancels) > 0
}

// teardown releases everything the session holds, in the reverse order
// it was acquired.
func (s *session) teardown() {
	s.cancelWorkers()
	s.cancel()

	s.mu.Lock()
	ln := s.passiveServer
	s.passiveServer = nil
	port, priority := s.passivePort, s.passivePriority
	s.mu.Unlock()
	if ln != nil {
		ln.Close()
		s.server.releaseDataPort(port, priority+1)
	}

	s.closeDataConn()
	s.stream.Close()
	s.workers.Wait()
	s.respQ.Close()

	s.mu.Lock()
	acquired, user := s.acquired, s.user
	s.acquired, s.user = false, nil
	s.mu.Unlock()
	if acquired {
		_ = s.server.available.Release()
	}
	if user != nil {
		s.server.userManager.NotifyLogout(user)
	}
	s.server.removeSession(s)

	s.server.logger.Info("session_closed",
		"session_id", s.id,
		"remote", net.JoinHostPort(s.clientHost, strconv.Itoa(s.clientPort)),
	)
}
