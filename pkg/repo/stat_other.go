//go:build !linux && !darwin

package repo

import (
	"fmt"
	"os"
)

// fillStat fills the portable subset of stat data. dev, ino, uid and gid
// stay zero and ctime mirrors mtime.
func fillStat(e *IndexEntry, path string) error {
	info, err := os.Lstat(path)
	if err != nil {
		return fmt.Errorf("lstat %s: %w", path, err)
	}
	mtime := info.ModTime()
	e.MTime = uint32(mtime.Unix())
	e.MTimeNsec = uint32(mtime.Nanosecond())
	e.CTime, e.CTimeNsec = e.MTime, e.MTimeNsec
	e.Size = uint32(info.Size())
	return nil
}
