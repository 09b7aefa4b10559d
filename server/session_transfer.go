package server

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"time"

	"github.com/ftpkit/ftpkit/internal/throttle"
)

// dataGuard is the inner guard of every transfer worker: it polls for
// the passive accept to finish, bounded by the wait-future timeout, and
// answers 425 when no data connection appears.
var dataGuard = guardOptions{
	wait:     true,
	failCode: "425",
	failInfo: "Can't open data connection",
}

// claimDataStream waits for and moves the data connection out of the
// session, and arranges for it to be slammed shut when ctx is
// cancelled so that blocked transfer I/O unwinds promptly.
//
// A guard failure caused by cancellation comes back as the context
// error, so the worker wrapper answers with the abort pair rather than
// a 425.
func (s *session) claimDataStream(ctx context.Context) (*throttle.Stream, func(), error) {
	if !s.checkConnConditions(ctx, []connCondition{condDataConnectionMade}, dataGuard) {
		return nil, nil, ctx.Err()
	}
	stream := s.takeDataConn()
	if stream == nil {
		if err := ctx.Err(); err != nil {
			return nil, nil, err
		}
		s.respond("425", "Can't open data connection")
		return nil, nil, nil
	}
	stop := context.AfterFunc(ctx, func() { stream.Close() })
	return stream, func() {
		stop()
		stream.Close()
	}, nil
}

// takeRestartOffset consumes the REST offset; it applies to exactly one
// transfer.
func (s *session) takeRestartOffset() int64 {
	s.mu.Lock()
	defer s.mu.Unlock()
	offset := s.restartOffset
	s.restartOffset = 0
	return offset
}

func (s *session) ftpRetr(rest string) (bool, error) {
	realPath, _ := s.paths(rest)
	offset := s.takeRestartOffset()

	s.respond("150", "data transfer started")
	s.spawnWorker("retr", func(ctx context.Context) error {
		stream, release, err := s.claimDataStream(ctx)
		if err != nil || stream == nil {
			return err
		}
		defer release()

		file, err := s.pathIO.Open(ctx, realPath, os.O_RDONLY)
		if err != nil {
			return err
		}
		defer file.Close()
		if offset > 0 {
			if _, err := file.Seek(offset, io.SeekStart); err != nil {
				return err
			}
		}

		start := time.Now()
		var sent int64
		buf := make([]byte, s.server.blockSize)
		for {
			n, rerr := file.Read(buf)
			if n > 0 {
				if werr := stream.Write(ctx, buf[:n]); werr != nil {
					return werr
				}
				sent += int64(n)
			}
			if rerr == io.EOF {
				break
			}
			if rerr != nil {
				return rerr
			}
		}

		s.logTransfer("RETR", realPath, sent, time.Since(start))
		s.respond("226", "data transfer done")
		return nil
	})
	return true, nil
}

func (s *session) ftpStor(rest string) (bool, error) {
	return s.store(rest, false)
}

func (s *session) ftpAppe(rest string) (bool, error) {
	return s.store(rest, true)
}

func (s *session) store(rest string, appendMode bool) (bool, error) {
	realPath, _ := s.paths(rest)

	if !s.pathIO.IsDir(s.ctx, filepath.Dir(realPath)) {
		s.respond("550", "path unreachable")
		return true, nil
	}

	offset := s.takeRestartOffset()

	verb := "STOR"
	if appendMode {
		verb = "APPE"
	}

	s.respond("150", "data transfer started")
	s.spawnWorker(verb, func(ctx context.Context) error {
		stream, release, err := s.claimDataStream(ctx)
		if err != nil || stream == nil {
			return err
		}
		defer release()

		flag := os.O_WRONLY | os.O_CREATE | os.O_TRUNC
		switch {
		case appendMode:
			flag = os.O_WRONLY | os.O_CREATE | os.O_APPEND
		case offset > 0:
			// Restarted uploads patch the file in place.
			flag = os.O_RDWR
		}
		file, err := s.pathIO.Open(ctx, realPath, flag)
		if err != nil {
			return err
		}
		defer file.Close()
		if offset > 0 && !appendMode {
			if _, err := file.Seek(offset, io.SeekStart); err != nil {
				return err
			}
		}

		start := time.Now()
		var received int64
		buf := make([]byte, s.server.blockSize)
		for {
			n, rerr := stream.Read(ctx, buf)
			if n > 0 {
				if _, werr := file.Write(buf[:n]); werr != nil {
					return werr
				}
				received += int64(n)
			}
			if rerr == io.EOF {
				break
			}
			if rerr != nil {
				return rerr
			}
		}

		s.logTransfer(verb, realPath, received, time.Since(start))
		s.respond("226", "data transfer done")
		return nil
	})
	return true, nil
}

func (s *session) ftpList(rest string) (bool, error) {
	realPath, _ := s.paths(rest)

	s.respond("150", "list transfer started")
	s.spawnWorker("list", func(ctx context.Context) error {
		stream, release, err := s.claimDataStream(ctx)
		if err != nil || stream == nil {
			return err
		}
		defer release()

		entries, err := s.pathIO.List(ctx, realPath)
		if err != nil {
			return err
		}
		now := time.Now()
		for _, entry := range entries {
			info, serr := s.pathIO.Stat(ctx, entry)
			if serr != nil {
				// Listed a moment ago, already gone.
				s.server.logger.Warn("list entry vanished",
					"session_id", s.id,
					"path", entry,
				)
				continue
			}
			b, eerr := s.server.encode(buildListLine(info, now) + endOfLine)
			if eerr != nil {
				return eerr
			}
			if werr := stream.Write(ctx, b); werr != nil {
				return werr
			}
		}

		s.respond("226", "list transfer done")
		return nil
	})
	return true, nil
}

func (s *session) ftpMlsd(rest string) (bool, error) {
	realPath, _ := s.paths(rest)

	s.respond("150", "mlsd transfer started")
	s.spawnWorker("mlsd", func(ctx context.Context) error {
		stream, release, err := s.claimDataStream(ctx)
		if err != nil || stream == nil {
			return err
		}
		defer release()

		entries, err := s.pathIO.List(ctx, realPath)
		if err != nil {
			return err
		}
		for _, entry := range entries {
			b, eerr := s.server.encode(s.buildMLSxLine(ctx, entry) + endOfLine)
			if eerr != nil {
				return eerr
			}
			if werr := stream.Write(ctx, b); werr != nil {
				return werr
			}
		}

		s.respond("226", "mlsd transfer done")
		return nil
	})
	return true, nil
}

func (s *session) ftpAbor(string) (bool, error) {
	if !s.cancelWorkers() {
		s.respond("226", "nothing to abort")
	}
	return true, nil
}

func (s *session) ftpPasv(string) (bool, error) {
	info, err := s.ensurePassiveServer()
	if err != nil {
		if errors.Is(err, ErrNoAvailablePort) {
			s.respond("421", "no free ports")
			return true, nil
		}
		return true, err
	}

	ip, port := s.passiveAddr()
	ip4 := ip.To4()
	if ip4 == nil {
		s.respond("503", "this server started in ipv6 mode")
		return true, nil
	}

	s.closeDataConn()
	s.respond("227", fmt.Sprintf("%s (%d,%d,%d,%d,%d,%d)",
		info, ip4[0], ip4[1], ip4[2], ip4[3], port>>8, port&0xFF))
	return true, nil
}

func (s *session) ftpEpsv(rest string) (bool, error) {
	if rest != "" {
		s.respond("522", "custom protocols support not implemented")
		return true, nil
	}

	info, err := s.ensurePassiveServer()
	if err != nil {
		if errors.Is(err, ErrNoAvailablePort) {
			s.respond("421", "no free ports")
			return true, nil
		}
		return true, err
	}

	_, port := s.passiveAddr()
	s.closeDataConn()
	s.respond("229", fmt.Sprintf("%s (|||%d|)", info, port))
	return true, nil
}

// ensurePassiveServer starts the passive listener if the session does
// not already have one.
func (s *session) ensurePassiveServer() (string, error) {
	s.mu.Lock()
	exists := s.passiveServer != nil
	s.mu.Unlock()
	if exists {
		return "listen socket already exists", nil
	}
	if err := s.startPassiveServer(); err != nil {
		return "", err
	}
	return "listen socket created", nil
}

// logTransfer emits the structured completion record for a transfer.
func (s *session) logTransfer(op, realPath string, bytes int64, duration time.Duration) {
	s.server.logger.Info("transfer_complete",
		"session_id", s.id,
		"operation", op,
		"path", realPath,
		"bytes", bytes,
		"duration_ms", duration.Milliseconds(),
	)
	if s.server.metricsCollector != nil {
		s.server.metricsCollector.RecordTransfer(op, bytes, duration)
	}
}
