package pathio

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"testing"
	"time"
)

func newTestIO(t *testing.T) (*OSPathIO, string) {
	t.Helper()
	return NewOS(0), t.TempDir()
}

func TestStatAndPredicates(t *testing.T) {
	t.Parallel()
	p, root := newTestIO(t)
	ctx := context.Background()

	file := filepath.Join(root, "f.txt")
	if err := os.WriteFile(file, []byte("hello"), 0o644); err != nil {
		t.Fatal(err)
	}

	info, err := p.Stat(ctx, file)
	if err != nil {
		t.Fatalf("Stat failed: %v", err)
	}
	if info.Size() != 5 {
		t.Errorf("size = %d, want 5", info.Size())
	}

	if !p.Exists(ctx, file) || !p.IsFile(ctx, file) || p.IsDir(ctx, file) {
		t.Error("file predicates wrong")
	}
	if !p.IsDir(ctx, root) || p.IsFile(ctx, root) {
		t.Error("dir predicates wrong")
	}
	if p.Exists(ctx, filepath.Join(root, "missing")) {
		t.Error("missing path reported as existing")
	}
}

func TestStatMissingIsPathError(t *testing.T) {
	t.Parallel()
	p, root := newTestIO(t)

	_, err := p.Stat(context.Background(), filepath.Join(root, "missing"))
	var perr *Error
	if !errors.As(err, &perr) {
		t.Fatalf("err = %T, want *pathio.Error", err)
	}
	if perr.Op != "stat" {
		t.Errorf("op = %q, want stat", perr.Op)
	}
}

func TestSize(t *testing.T) {
	t.Parallel()
	p, root := newTestIO(t)
	ctx := context.Background()

	file := filepath.Join(root, "f")
	if err := os.WriteFile(file, make([]byte, 1234), 0o644); err != nil {
		t.Fatal(err)
	}
	n, err := p.Size(ctx, file)
	if err != nil {
		t.Fatal(err)
	}
	if n != 1234 {
		t.Errorf("size = %d, want 1234", n)
	}
}

func TestListSortedFullPaths(t *testing.T) {
	t.Parallel()
	p, root := newTestIO(t)
	ctx := context.Background()

	for _, name := range []string{"b", "a", "c"} {
		if err := os.WriteFile(filepath.Join(root, name), nil, 0o644); err != nil {
			t.Fatal(err)
		}
	}

	entries, err := p.List(ctx, root)
	if err != nil {
		t.Fatal(err)
	}
	want := []string{
		filepath.Join(root, "a"),
		filepath.Join(root, "b"),
		filepath.Join(root, "c"),
	}
	if len(entries) != len(want) {
		t.Fatalf("entries = %v", entries)
	}
	for i := range want {
		if entries[i] != want[i] {
			t.Errorf("entries[%d] = %q, want %q", i, entries[i], want[i])
		}
	}
}

func TestOpenReadWriteSeek(t *testing.T) {
	t.Parallel()
	p, root := newTestIO(t)
	ctx := context.Background()
	file := filepath.Join(root, "f")

	w, err := p.Open(ctx, file, os.O_WRONLY|os.O_CREATE|os.O_TRUNC)
	if err != nil {
		t.Fatal(err)
	}
	if _, err := w.Write([]byte("abcde")); err != nil {
		t.Fatal(err)
	}
	w.Close()

	// Patch in place, the way a restarted upload does.
	rw, err := p.Open(ctx, file, os.O_RDWR)
	if err != nil {
		t.Fatal(err)
	}
	if _, err := rw.Seek(3, 0); err != nil {
		t.Fatal(err)
	}
	if _, err := rw.Write([]byte("XY")); err != nil {
		t.Fatal(err)
	}
	rw.Close()

	got, err := os.ReadFile(file)
	if err != nil {
		t.Fatal(err)
	}
	if string(got) != "abcXY" {
		t.Errorf("content = %q, want abcXY", got)
	}
}

func TestMkdirRmdirUnlinkRename(t *testing.T) {
	t.Parallel()
	p, root := newTestIO(t)
	ctx := context.Background()

	nested := filepath.Join(root, "a", "b", "c")
	if err := p.Mkdir(ctx, nested, true); err != nil {
		t.Fatalf("Mkdir parents failed: %v", err)
	}
	if !p.IsDir(ctx, nested) {
		t.Fatal("nested dir missing")
	}

	if err := p.Rmdir(ctx, nested); err != nil {
		t.Fatalf("Rmdir failed: %v", err)
	}
	if p.Exists(ctx, nested) {
		t.Error("dir still exists after Rmdir")
	}

	src := filepath.Join(root, "src")
	dst := filepath.Join(root, "dst")
	if err := os.WriteFile(src, []byte("x"), 0o644); err != nil {
		t.Fatal(err)
	}
	if err := p.Rename(ctx, src, dst); err != nil {
		t.Fatalf("Rename failed: %v", err)
	}
	if p.Exists(ctx, src) || !p.Exists(ctx, dst) {
		t.Error("rename did not move the file")
	}

	if err := p.Unlink(ctx, dst); err != nil {
		t.Fatalf("Unlink failed: %v", err)
	}
	if p.Exists(ctx, dst) {
		t.Error("file still exists after Unlink")
	}
}

func TestContextCancellation(t *testing.T) {
	t.Parallel()
	p, root := newTestIO(t)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	// A cancelled context either wins the race against the fast stat or
	// loses it; both outcomes are acceptable, but a timeout Error must
	// carry the right kind when it happens.
	_, err := p.Stat(ctx, root)
	if err != nil {
		var perr *Error
		if !errors.As(err, &perr) {
			t.Fatalf("err = %T, want *pathio.Error", err)
		}
	}
}

func TestOperationTimeout(t *testing.T) {
	t.Parallel()
	p := &OSPathIO{timeout: time.Nanosecond}
	// With a nanosecond budget the deadline expires long before the
	// 50ms probe finishes, so the call must fail with the timeout error
	// kind.
	err := p.run(context.Background(), "probe", "x", func() error {
		time.Sleep(50 * time.Millisecond)
		return nil
	})
	if err == nil {
		t.Fatal("expected timeout")
	}
	if !errors.Is(err, ErrTimeout) {
		t.Errorf("err = %v, want ErrTimeout", err)
	}
}
