package pathio

import (
	"context"
	"io/fs"
	"os"
	"path/filepath"
	"sort"
	"time"
)

// OSPathIO implements PathIO on the host filesystem.
type OSPathIO struct {
	timeout time.Duration
}

// NewOS returns a host-filesystem PathIO with the given per-operation
// timeout (0 disables it).
func NewOS(timeout time.Duration) *OSPathIO {
	return &OSPathIO{timeout: timeout}
}

// OSFactory is the default Factory used by the server.
func OSFactory(timeout time.Duration) PathIO {
	return NewOS(timeout)
}

// run executes op bounded by the path timeout and the context. Blocking
// filesystem calls cannot be interrupted on POSIX, so on expiry the
// call is abandoned to finish in the background and a timeout Error is
// reported instead.
func (p *OSPathIO) run(ctx context.Context, op, path string, fn func() error) error {
	if p.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, p.timeout)
		defer cancel()
	}
	done := make(chan error, 1)
	go func() { done <- fn() }()
	select {
	case err := <-done:
		if err != nil {
			return &Error{Op: op, Path: path, Err: err}
		}
		return nil
	case <-ctx.Done():
		return &Error{Op: op, Path: path, Err: ErrTimeout}
	}
}

func (p *OSPathIO) Stat(ctx context.Context, path string) (fs.FileInfo, error) {
	var info fs.FileInfo
	err := p.run(ctx, "stat", path, func() error {
		var err error
		info, err = os.Stat(path)
		return err
	})
	return info, err
}

func (p *OSPathIO) Exists(ctx context.Context, path string) bool {
	info, err := p.Stat(ctx, path)
	return err == nil && info != nil
}

func (p *OSPathIO) IsFile(ctx context.Context, path string) bool {
	info, err := p.Stat(ctx, path)
	return err == nil && info.Mode().IsRegular()
}

func (p *OSPathIO) IsDir(ctx context.Context, path string) bool {
	info, err := p.Stat(ctx, path)
	return err == nil && info.IsDir()
}

func (p *OSPathIO) Size(ctx context.Context, path string) (int64, error) {
	info, err := p.Stat(ctx, path)
	if err != nil {
		return 0, err
	}
	return info.Size(), nil
}

func (p *OSPathIO) List(ctx context.Context, path string) ([]string, error) {
	var names []string
	err := p.run(ctx, "list", path, func() error {
		entries, err := os.ReadDir(path)
		if err != nil {
			return err
		}
		for _, entry := range entries {
			names = append(names, filepath.Join(path, entry.Name()))
		}
		sort.Strings(names)
		return nil
	})
	if err != nil {
		return nil, err
	}
	return names, nil
}

func (p *OSPathIO) Open(ctx context.Context, path string, flag int) (File, error) {
	var f *os.File
	err := p.run(ctx, "open", path, func() error {
		var err error
		f, err = os.OpenFile(path, flag, 0o644)
		return err
	})
	if err != nil {
		return nil, err
	}
	return f, nil
}

func (p *OSPathIO) Mkdir(ctx context.Context, path string, parents bool) error {
	return p.run(ctx, "mkdir", path, func() error {
		if parents {
			return os.MkdirAll(path, 0o755)
		}
		return os.Mkdir(path, 0o755)
	})
}

func (p *OSPathIO) Rmdir(ctx context.Context, path string) error {
	return p.run(ctx, "rmdir", path, func() error {
		return os.Remove(path)
	})
}

func (p *OSPathIO) Unlink(ctx context.Context, path string) error {
	return p.run(ctx, "unlink", path, func() error {
		return os.Remove(path)
	})
}

func (p *OSPathIO) Rename(ctx context.Context, src, dst string) error {
	return p.run(ctx, "rename", src, func() error {
		return os.Rename(src, dst)
	})
}
