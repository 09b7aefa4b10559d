package server

import (
	"crypto/tls"
	"fmt"
	"log/slog"
	"time"

	"github.com/ftpkit/ftpkit/internal/throttle"
	"github.com/ftpkit/ftpkit/pathio"
)

// Option is a functional option for configuring an FTP server.
type Option func(*Server) error

// WithUsers serves the given accounts through the in-memory user
// manager. User records are validated here; a relative home path fails
// server construction.
func WithUsers(users ...*User) Option {
	return func(s *Server) error {
		um, err := NewMemoryUserManager(users)
		if err != nil {
			return err
		}
		s.userManager = um
		return nil
	}
}

// WithUserManager plugs in a custom user manager.
func WithUserManager(um UserManager) Option {
	return func(s *Server) error {
		if um == nil {
			return fmt.Errorf("user manager must not be nil")
		}
		s.userManager = um
		return nil
	}
}

// WithLogger sets a custom logger. Defaults to slog.Default().
func WithLogger(logger *slog.Logger) Option {
	return func(s *Server) error {
		s.logger = logger
		return nil
	}
}

// WithTLS enables implicit TLS on the command channel and on every
// passive data connection.
func WithTLS(config *tls.Config) Option {
	return func(s *Server) error {
		s.tlsConfig = config
		return nil
	}
}

// WithBlockSize sets the read/write chunk size for transfers.
// Defaults to 8192 bytes.
func WithBlockSize(n int) Option {
	return func(s *Server) error {
		if n <= 0 {
			return fmt.Errorf("block size must be positive")
		}
		s.blockSize = n
		return nil
	}
}

// WithSocketTimeout bounds individual read/write operations on data
// channels and writes on the command channel. 0 disables it.
func WithSocketTimeout(d time.Duration) Option {
	return func(s *Server) error {
		s.socketTimeout = d
		return nil
	}
}

// WithIdleTimeout bounds how long a client may stay silent between
// commands. Expiry ends the session. 0 disables it.
func WithIdleTimeout(d time.Duration) Option {
	return func(s *Server) error {
		s.idleTimeout = d
		return nil
	}
}

// WithWaitFutureTimeout bounds how long a transfer worker waits for the
// passive data connection to be established. Defaults to one second.
func WithWaitFutureTimeout(d time.Duration) Option {
	return func(s *Server) error {
		s.waitFutureTimeout = d
		return nil
	}
}

// WithPathTimeout bounds every path I/O operation. 0 disables it.
func WithPathTimeout(d time.Duration) Option {
	return func(s *Server) error {
		s.pathTimeout = d
		return nil
	}
}

// WithPathIOFactory replaces the filesystem backend. Defaults to the
// host filesystem.
func WithPathIOFactory(factory pathio.Factory) Option {
	return func(s *Server) error {
		if factory == nil {
			return fmt.Errorf("path io factory must not be nil")
		}
		s.pathIOFactory = factory
		return nil
	}
}

// WithMaximumConnections caps simultaneous command connections server
// wide. Excess clients are greeted with 421. Defaults to 512.
func WithMaximumConnections(n int) Option {
	return func(s *Server) error {
		if n <= 0 {
			return fmt.Errorf("maximum connections must be positive")
		}
		s.available = NewAvailableConnections(n)
		return nil
	}
}

// WithSpeedLimits sets the server-wide read and write limits in bytes
// per second, shared by all sessions. 0 disables a direction.
func WithSpeedLimits(read, write int64) Option {
	return func(s *Server) error {
		s.throttle = throttle.FromLimits(read, write)
		return nil
	}
}

// WithSpeedLimitsPerConnection sets per-session read and write limits
// in bytes per second. 0 disables a direction.
func WithSpeedLimitsPerConnection(read, write int64) Option {
	return func(s *Server) error {
		s.throttlePerConnection = throttle.FromLimits(read, write)
		return nil
	}
}

// WithPassiveForcedAddress overrides the IPv4 address advertised in
// PASV responses. Required behind NAT.
func WithPassiveForcedAddress(ip string) Option {
	return func(s *Server) error {
		s.pasvForcedAddress = ip
		return nil
	}
}

// WithDataPorts restricts passive data connections to the given ports.
// Without this option the OS assigns ephemeral ports.
func WithDataPorts(ports []int) Option {
	return func(s *Server) error {
		s.dataPorts = newPortPool(ports)
		return nil
	}
}

// WithEncoding sets the control-channel encoding by IANA name.
// Defaults to UTF-8.
func WithEncoding(name string) Option {
	return func(s *Server) error {
		s.encodingName = name
		return nil
	}
}

// WithWelcomeMessage customizes the greeting text sent with code 220.
func WithWelcomeMessage(message string) Option {
	return func(s *Server) error {
		s.welcomeMessage = message
		return nil
	}
}

// WithMetricsCollector sets an optional metrics collector.
func WithMetricsCollector(collector MetricsCollector) Option {
	return func(s *Server) error {
		s.metricsCollector = collector
		return nil
	}
}
