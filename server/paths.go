package server

import (
	"path/filepath"
	"strings"
)

// resolvePaths maps a client-supplied path onto the pair of paths the
// server works with: the real host path handed to path I/O and the
// normalized virtual path shown to the client.
//
// Relative input is taken from the session's current directory. ".."
// segments pop one level; a ".." that would pop past the virtual root
// makes the whole input resolve to (basePath, "/"), ignoring any
// segments after it. No symlink resolution happens here. The result is
// jailed: if composing the real path somehow leaves the user's base
// path, the pair silently clamps to (basePath, "/").
func resolvePaths(user *User, currentDirectory, rest string) (real, virtual string) {
	input := rest
	if !strings.HasPrefix(input, "/") {
		input = currentDirectory + "/" + input
	}

	var parts []string
	for _, part := range strings.Split(input, "/") {
		switch part {
		case "", ".":
		case "..":
			if len(parts) == 0 {
				// Popping past the virtual root is an escape attempt;
				// the whole path clamps to the jail root.
				return filepath.Clean(user.BasePath), "/"
			}
			parts = parts[:len(parts)-1]
		default:
			parts = append(parts, part)
		}
	}
	virtual = "/" + strings.Join(parts, "/")

	base := filepath.Clean(user.BasePath)
	real = filepath.Join(base, filepath.FromSlash(strings.TrimPrefix(virtual, "/")))
	if real != base && !strings.HasPrefix(real, base+string(filepath.Separator)) {
		return base, "/"
	}
	return real, virtual
}
