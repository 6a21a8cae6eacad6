//go:build linux || darwin

package repo

import (
	"fmt"

	"golang.org/x/sys/unix"
)

// fillStat copies lstat(2) data for path into e. Fields are truncated to
// 32 bits the way git stores them.
func fillStat(e *IndexEntry, path string) error {
	var st unix.Stat_t
	if err := unix.Lstat(path, &st); err != nil {
		return fmt.Errorf("lstat %s: %w", path, err)
	}
	e.CTime = uint32(st.Ctim.Sec)
	e.CTimeNsec = uint32(st.Ctim.Nsec)
	e.MTime = uint32(st.Mtim.Sec)
	e.MTimeNsec = uint32(st.Mtim.Nsec)
	e.Dev = uint32(st.Dev)
	e.Ino = uint32(st.Ino)
	e.UID = uint32(st.Uid)
	e.GID = uint32(st.Gid)
	e.Size = uint32(st.Size)
	return nil
}
