package object

import (
	"fmt"
	"time"
)

// ObjectType identifies the kind of object stored.
type ObjectType string

const (
	TypeCommit ObjectType = "commit"
	TypeTree   ObjectType = "tree"
	TypeBlob   ObjectType = "blob"
	TypeTag    ObjectType = "tag"
)

// ParseObjectType validates the type name found in an object header.
func ParseObjectType(s string) (ObjectType, error) {
	switch t := ObjectType(s); t {
	case TypeCommit, TypeTree, TypeBlob, TypeTag:
		return t, nil
	default:
		return "", fmt.Errorf("%w: unknown object type %q", ErrMalformedObject, s)
	}
}

// Tree entry modes as they appear (in octal) on the wire.
const (
	ModeDir        uint32 = 0o040000
	ModeFile       uint32 = 0o100644
	ModeExecutable uint32 = 0o100755
	ModeSymlink    uint32 = 0o120000
	ModeGitlink    uint32 = 0o160000

	modeTypeMask uint32 = 0o170000
)

// Signature is the identity and timestamp of an author, committer or tagger.
type Signature struct {
	Name  string
	Email string
	// When is the timestamp in seconds since the Unix epoch.
	When int64
	// Offset is the recorded UTC offset in minutes.
	Offset int
	// Raw is the header value exactly as stored.
	Raw string
}

// Valid reports whether the header value matched the
// "name <email> epoch ±HHMM" layout.
func (s Signature) Valid() bool {
	return s.Email != "" || s.Name != ""
}

// Time returns the timestamp in the zone the signature was recorded in.
func (s Signature) Time() time.Time {
	zone := time.FixedZone("", s.Offset*60)
	return time.Unix(s.When, 0).In(zone)
}

// String returns "Name <email>", or the raw value if it did not parse.
func (s Signature) String() string {
	if !s.Valid() {
		return s.Raw
	}
	return fmt.Sprintf("%s <%s>", s.Name, s.Email)
}

// Commit is a decoded commit object.
type Commit struct {
	Tree      ID
	Parents   []ID
	Author    Signature
	Committer Signature
	Message   string
}

// Summary returns the first line of the message.
func (c *Commit) Summary() string {
	for i := 0; i < len(c.Message); i++ {
		if c.Message[i] == '\n' {
			return c.Message[:i]
		}
	}
	return c.Message
}

// TreeEntry is one entry in a tree object. IsDir is derived from the 040000
// mode bit, which gitlinks share with subtrees; check IsGitlink first.
type TreeEntry struct {
	Mode  uint32
	Name  string
	ID    ID
	IsDir bool
}

// IsSymlink reports whether the entry is a symbolic link.
func (e TreeEntry) IsSymlink() bool {
	return e.Mode&modeTypeMask == ModeSymlink
}

// IsGitlink reports whether the entry is a submodule commit reference.
func (e TreeEntry) IsGitlink() bool {
	return e.Mode&modeTypeMask == ModeGitlink
}

// Tag is a decoded annotated tag object.
type Tag struct {
	Object  ID
	Type    ObjectType
	Name    string
	Tagger  Signature
	Message string
}
