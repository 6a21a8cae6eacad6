package repo

import (
	"os"
	"strings"

	"github.com/odvcencio/gitkit/pkg/object"
)

// filePermFromMode maps a tree entry mode to the permission bits used when
// the blob is written to disk.
func filePermFromMode(mode uint32) os.FileMode {
	if mode&0o111 != 0 {
		return 0o755
	}
	return 0o644
}

// indexModeFor returns the mode recorded in the index for a checked-out
// entry: symlinks keep 120000, everything else is a regular file with or
// without the executable bit.
func indexModeFor(mode uint32) uint32 {
	switch {
	case mode&0o170000 == object.ModeSymlink:
		return object.ModeSymlink
	case mode&0o111 != 0:
		return object.ModeExecutable
	default:
		return object.ModeFile
	}
}

// validTreeName reports whether a tree entry name is safe to create inside
// a working tree.
func validTreeName(name string) bool {
	switch {
	case name == "", name == ".", name == "..":
		return false
	case strings.ContainsAny(name, "/\x00"):
		return false
	case strings.EqualFold(name, ".git"):
		return false
	}
	return true
}
