package server

import "path"

func (s *session) ftpCwd(rest string) (bool, error) {
	_, virtualPath := s.paths(rest)
	s.mu.Lock()
	s.currentDirectory = virtualPath
	s.mu.Unlock()
	s.respond("250", "")
	return true, nil
}

// ftpCdup re-enters the CWD pipeline (guards included) with the parent
// of the current directory.
func (s *session) ftpCdup(string) (bool, error) {
	s.mu.Lock()
	parent := path.Dir(s.currentDirectory)
	s.mu.Unlock()
	return s.runCommand(commandsMapping["cwd"], parent)
}

func (s *session) ftpMkd(rest string) (bool, error) {
	realPath, _ := s.paths(rest)
	if err := s.pathIO.Mkdir(s.ctx, realPath, true); err != nil {
		return true, err
	}
	s.server.logger.Info("directory_created",
		"session_id", s.id,
		"path", realPath,
	)
	s.respond("257", "")
	return true, nil
}

func (s *session) ftpRmd(rest string) (bool, error) {
	realPath, _ := s.paths(rest)
	if err := s.pathIO.Rmdir(s.ctx, realPath); err != nil {
		return true, err
	}
	s.server.logger.Info("directory_removed",
		"session_id", s.id,
		"path", realPath,
	)
	s.respond("250", "")
	return true, nil
}

func (s *session) ftpDele(rest string) (bool, error) {
	realPath, _ := s.paths(rest)
	if err := s.pathIO.Unlink(s.ctx, realPath); err != nil {
		return true, err
	}
	s.server.logger.Info("file_deleted",
		"session_id", s.id,
		"path", realPath,
	)
	s.respond("250", "")
	return true, nil
}

func (s *session) ftpRnfr(rest string) (bool, error) {
	realPath, _ := s.paths(rest)
	s.mu.Lock()
	s.renameFrom = realPath
	s.mu.Unlock()
	s.respond("350", "rename from accepted")
	return true, nil
}

func (s *session) ftpRnto(rest string) (bool, error) {
	realPath, _ := s.paths(rest)
	s.mu.Lock()
	from := s.renameFrom
	s.renameFrom = ""
	s.mu.Unlock()
	if err := s.pathIO.Rename(s.ctx, from, realPath); err != nil {
		return true, err
	}
	s.respond("250", "")
	return true, nil
}
