package server

import (
	"context"
	"crypto/tls"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"sync"
	"sync/atomic"
	"time"

	"golang.org/x/text/encoding"
	"golang.org/x/text/encoding/ianaindex"

	"github.com/ftpkit/ftpkit/internal/throttle"
	"github.com/ftpkit/ftpkit/pathio"
)

// Defaults mirrored in the option documentation.
const (
	DefaultBlockSize          = 8192
	DefaultMaximumConnections = 512
	DefaultWaitFutureTimeout  = time.Second
	DefaultEncoding           = "utf-8"
)

// ErrServerClosed is returned by Serve and ListenAndServe after a call
// to Shutdown or Close.
var ErrServerClosed = errors.New("ftp: Server closed")

// Server is the FTP server.
//
// Each accepted connection becomes a session running its own
// dispatcher; sessions share the server-wide connection counter, the
// server-wide throttle pair and (when configured) the passive data-port
// pool.
type Server struct {
	addr string

	logger      *slog.Logger
	tlsConfig   *tls.Config
	userManager UserManager

	pathIOFactory pathio.Factory
	blockSize     int

	socketTimeout     time.Duration
	idleTimeout       time.Duration
	waitFutureTimeout time.Duration
	pathTimeout       time.Duration

	welcomeMessage string

	encodingName string
	codec        encoding.Encoding // nil means plain UTF-8

	available *AvailableConnections

	// throttle is shared by every session; throttlePerConnection is a
	// template cloned per session.
	throttle              *throttle.StreamThrottle
	throttlePerConnection *throttle.StreamThrottle

	userThrottleMu sync.Mutex
	userThrottles  map[*User]*throttle.StreamThrottle

	pasvForcedAddress string
	dataPorts         *portPool

	metricsCollector MetricsCollector

	mu         sync.Mutex
	listener   net.Listener
	sessions   map[*session]struct{}
	inShutdown atomic.Bool
}

// NewServer creates an FTP server listening on addr once served.
// Without options it serves a single anonymous full-access user rooted
// at the working directory.
func NewServer(addr string, options ...Option) (*Server, error) {
	s := &Server{
		addr:                  addr,
		logger:                slog.Default(),
		pathIOFactory:         pathio.OSFactory,
		blockSize:             DefaultBlockSize,
		waitFutureTimeout:     DefaultWaitFutureTimeout,
		welcomeMessage:        "welcome",
		encodingName:          DefaultEncoding,
		available:             NewAvailableConnections(DefaultMaximumConnections),
		throttle:              throttle.FromLimits(0, 0),
		throttlePerConnection: throttle.FromLimits(0, 0),
		userThrottles:         make(map[*User]*throttle.StreamThrottle),
		sessions:              make(map[*session]struct{}),
	}
	for _, opt := range options {
		if err := opt(s); err != nil {
			return nil, err
		}
	}
	if s.userManager == nil {
		um, err := NewMemoryUserManager(nil)
		if err != nil {
			return nil, err
		}
		s.userManager = um
	}
	if err := s.resolveEncoding(); err != nil {
		return nil, err
	}
	return s, nil
}

func (s *Server) resolveEncoding() error {
	switch s.encodingName {
	case "", "utf-8", "utf8", "UTF-8":
		s.codec = nil
		return nil
	}
	enc, err := ianaindex.IANA.Encoding(s.encodingName)
	if err != nil || enc == nil {
		return fmt.Errorf("unknown encoding %q", s.encodingName)
	}
	s.codec = enc
	return nil
}

// encode converts a response line to wire bytes in the configured
// encoding.
func (s *Server) encode(text string) ([]byte, error) {
	if s.codec == nil {
		return []byte(text), nil
	}
	out, err := s.codec.NewEncoder().String(text)
	if err != nil {
		return nil, err
	}
	return []byte(out), nil
}

// decode converts wire bytes to a command line string.
func (s *Server) decode(line []byte) (string, error) {
	if s.codec == nil {
		return string(line), nil
	}
	return s.codec.NewDecoder().String(string(line))
}

// userThrottle returns the throttle pair shared by every session of one
// user, creating it on first login.
func (s *Server) userThrottle(user *User) *throttle.StreamThrottle {
	s.userThrottleMu.Lock()
	defer s.userThrottleMu.Unlock()
	st, ok := s.userThrottles[user]
	if !ok {
		st = throttle.FromLimits(user.ReadSpeedLimit, user.WriteSpeedLimit)
		s.userThrottles[user] = st
	}
	return st
}

// ListenAndServe starts the server on the configured address and blocks
// until it stops.
func (s *Server) ListenAndServe() error {
	ln, err := net.Listen("tcp", s.addr)
	if err != nil {
		return fmt.Errorf("failed to listen on %s: %w", s.addr, err)
	}
	if s.tlsConfig != nil {
		ln = tls.NewListener(ln, s.tlsConfig)
	}
	s.logger.Info("FTP server listening", "addr", ln.Addr().String())
	return s.Serve(ln)
}

// Addr returns the listening address, or nil before Serve.
func (s *Server) Addr() net.Addr {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.listener == nil {
		return nil
	}
	return s.listener.Addr()
}

// Serve accepts connections on l until the listener closes or Shutdown
// is called. Each connection is dispatched in its own goroutine.
func (s *Server) Serve(l net.Listener) error {
	s.mu.Lock()
	if s.inShutdown.Load() {
		s.mu.Unlock()
		l.Close()
		return ErrServerClosed
	}
	s.listener = l
	s.mu.Unlock()

	defer func() {
		s.mu.Lock()
		if s.listener == l {
			s.listener = nil
		}
		s.mu.Unlock()
		l.Close()
	}()

	for {
		conn, err := l.Accept()
		if err != nil {
			if s.inShutdown.Load() {
				return ErrServerClosed
			}
			if errors.Is(err, net.ErrClosed) {
				return ErrServerClosed
			}
			s.logger.Error("accept error", "error", err)
			continue
		}
		sess := newSession(s, conn)
		s.addSession(sess)
		go sess.serve()
	}
}

func (s *Server) addSession(sess *session) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.sessions[sess] = struct{}{}
}

func (s *Server) removeSession(sess *session) {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.sessions, sess)
}

func (s *Server) sessionCount() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.sessions)
}

// Shutdown stops accepting new connections, then cancels every live
// session and waits for them to finish or for ctx to expire.
func (s *Server) Shutdown(ctx context.Context) error {
	s.inShutdown.Store(true)

	s.mu.Lock()
	ln := s.listener
	s.listener = nil
	sessions := make([]*session, 0, len(s.sessions))
	for sess := range s.sessions {
		sessions = append(sessions, sess)
	}
	s.mu.Unlock()

	var err error
	if ln != nil {
		err = ln.Close()
	}
	for _, sess := range sessions {
		sess.cancel()
		sess.stream.Close()
	}

	done := make(chan struct{})
	go func() {
		defer close(done)
		for s.sessionCount() > 0 {
			time.Sleep(50 * time.Millisecond)
		}
	}()

	select {
	case <-done:
		return err
	case <-ctx.Done():
		if err != nil {
			return err
		}
		return ctx.Err()
	}
}

// Close shuts the server down without waiting for sessions.
func (s *Server) Close() error {
	ctx, cancel := context.WithTimeout(context.Background(), time.Millisecond)
	defer cancel()
	err := s.Shutdown(ctx)
	if errors.Is(err, context.DeadlineExceeded) {
		return nil
	}
	return err
}
