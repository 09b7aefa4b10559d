package server

import "github.com/ftpkit/ftpkit/internal/throttle"

func (s *session) ftpUser(rest string) (bool, error) {
	s.mu.Lock()
	prev := s.user
	s.user = nil
	s.logged = false
	s.mu.Unlock()
	if prev != nil {
		s.server.userManager.NotifyLogout(prev)
	}

	state, user, info := s.server.userManager.GetUser(s.ctx, rest)

	var code string
	switch state {
	case GetUserOK:
		code = "230"
	case GetUserPasswordRequired:
		code = "331"
	default:
		code = "530"
	}

	if user != nil {
		s.mu.Lock()
		s.user = user
		s.logged = state == GetUserOK
		s.currentDirectory = user.HomePath
		s.mu.Unlock()

		// The user's shared limits and the per-connection limits join
		// the command channel's throttle set; data channels inherit
		// them because the set is shared.
		s.stream.Throttles().Attach("user_global", s.server.userThrottle(user))
		s.stream.Throttles().Attach("user_per_connection",
			throttle.FromLimits(user.ReadSpeedLimitPerConnection, user.WriteSpeedLimitPerConnection))
	}

	if state == GetUserError {
		s.server.logger.Warn("user_refused",
			"session_id", s.id,
			"user", rest,
			"reason", info,
		)
	}
	s.respond(code, info)
	return true, nil
}

func (s *session) ftpPass(rest string) (bool, error) {
	s.mu.Lock()
	logged := s.logged
	user := s.user
	s.mu.Unlock()

	switch {
	case logged:
		s.respond("503", "already logged in")
	case s.server.userManager.Authenticate(s.ctx, user, rest):
		s.mu.Lock()
		s.logged = true
		s.mu.Unlock()
		s.server.logger.Info("authentication_success",
			"session_id", s.id,
			"user", user.Login,
		)
		if s.server.metricsCollector != nil {
			s.server.metricsCollector.RecordAuthentication(true, user.Login)
		}
		s.respond("230", "normal login")
	default:
		s.server.logger.Warn("authentication_failed",
			"session_id", s.id,
			"user", user.Login,
		)
		if s.server.metricsCollector != nil {
			s.server.metricsCollector.RecordAuthentication(false, user.Login)
		}
		s.respond("530", "wrong password")
	}
	return true, nil
}

func (s *session) ftpQuit(string) (bool, error) {
	s.respond("221", "bye")
	return false, nil
}
