package server

import (
	"context"
	"fmt"
	"io/fs"
	"path/filepath"
	"strings"
	"time"
)

// halfOfYear separates "recent" entries (shown with a clock time) from
// older ones (shown with a year) in directory listings.
const halfOfYear = 15778476 * time.Second

// buildListMtime renders a modification time the way ls does: month,
// day and clock time for the last half year, month, day and year
// otherwise. Month abbreviations are always the POSIX-C English ones —
// Go's time formatting is locale independent.
func buildListMtime(mtime, now time.Time) string {
	if now.Sub(mtime) < halfOfYear && !mtime.After(now) {
		return mtime.Format("Jan _2 15:04")
	}
	return mtime.Format("Jan _2  2006")
}

// buildListLine renders one LIST entry:
//
//	<mode> <nlink> none none <size> <mtime> <name>
func buildListLine(info fs.FileInfo, now time.Time) string {
	fields := []string{
		info.Mode().String(),
		"1",
		"none",
		"none",
		fmt.Sprintf("%d", info.Size()),
		buildListMtime(info.ModTime(), now),
		info.Name(),
	}
	return strings.Join(fields, " ")
}

// mlsxTime renders facts timestamps as UTC YYYYMMDDHHMMSS.
func mlsxTime(t time.Time) string {
	return t.UTC().Format("20060102150405")
}

// buildMLSxLine renders the facts of one MLSD/MLST entry. An entry that
// vanished between listing and stat keeps an empty facts set and is
// typed unknown.
func (s *session) buildMLSxLine(ctx context.Context, realPath string) string {
	var b strings.Builder
	if info, err := s.pathIO.Stat(ctx, realPath); err == nil {
		// Creation time is not portably available; the modification
		// time stands in for both facts.
		fmt.Fprintf(&b, "Size=%d;Create=%s;Modify=%s;",
			info.Size(), mlsxTime(info.ModTime()), mlsxTime(info.ModTime()))
	}
	switch {
	case s.pathIO.IsFile(ctx, realPath):
		b.WriteString("Type=file;")
	case s.pathIO.IsDir(ctx, realPath):
		b.WriteString("Type=dir;")
	default:
		b.WriteString("Type=unknown;")
	}
	b.WriteString(" " + filepath.Base(realPath))
	return b.String()
}
