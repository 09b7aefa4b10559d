package server

import (
	"fmt"
	"strconv"
)

func (s *session) ftpPwd(string) (bool, error) {
	s.mu.Lock()
	cwd := s.currentDirectory
	s.mu.Unlock()
	s.respond("257", fmt.Sprintf("%q", cwd))
	return true, nil
}

func (s *session) ftpSyst(string) (bool, error) {
	s.respond("215", "UNIX Type: L8")
	return true, nil
}

func (s *session) ftpNoop(string) (bool, error) {
	s.respond("200", "I successfully did nothing")
	return true, nil
}

func (s *session) ftpSize(rest string) (bool, error) {
	s.mu.Lock()
	transferType := s.transferType
	s.mu.Unlock()
	// Sizes are only well defined for binary transfers.
	if transferType == "A" {
		s.respond("550", "SIZE not allowed in ASCII mode")
		return true, nil
	}
	realPath, _ := s.paths(rest)
	size, err := s.pathIO.Size(s.ctx, realPath)
	if err != nil {
		return true, err
	}
	s.respond("213", strconv.FormatInt(size, 10))
	return true, nil
}

func (s *session) ftpMlst(rest string) (bool, error) {
	realPath, _ := s.paths(rest)
	line := s.buildMLSxLine(s.ctx, realPath)
	s.respondList("250", []string{"start", line, "end"})
	return true, nil
}

func (s *session) ftpType(rest string) (bool, error) {
	if rest == "I" || rest == "A" {
		s.mu.Lock()
		s.transferType = rest
		s.mu.Unlock()
		s.respond("200", "")
	} else {
		s.respond("502", fmt.Sprintf("type %q not implemented", rest))
	}
	return true, nil
}

func (s *session) ftpRest(rest string) (bool, error) {
	offset, err := strconv.ParseInt(rest, 10, 64)
	if err != nil || offset < 0 {
		s.mu.Lock()
		s.restartOffset = 0
		s.mu.Unlock()
		s.respond("501", fmt.Sprintf("syntax error, can't restart at %q", rest))
		return true, nil
	}
	s.mu.Lock()
	s.restartOffset = offset
	s.mu.Unlock()
	s.respond("350", "restarting at "+rest)
	return true, nil
}

func (s *session) ftpPbsz(string) (bool, error) {
	s.respond("200", "")
	return true, nil
}

func (s *session) ftpProt(rest string) (bool, error) {
	if rest == "P" {
		s.respond("200", "")
	} else {
		s.respond("502", "")
	}
	return true, nil
}
