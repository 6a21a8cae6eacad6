package object

import (
	"bytes"
	"fmt"
	"sort"
	"strconv"
	"time"
)

// Header formats the signature as it appears in a commit or tag header:
// "Name <email> epoch ±HHMM". Unparsed signatures are written back as Raw.
func (s Signature) Header() string {
	if !s.Valid() {
		return s.Raw
	}
	sign := byte('+')
	offset := s.Offset
	if offset < 0 {
		sign = '-'
		offset = -offset
	}
	return fmt.Sprintf("%s <%s> %d %c%02d%02d", s.Name, s.Email, s.When, sign, offset/60, offset%60)
}

// MarshalCommit serializes a commit body:
//
//	tree H
//	parent H     (zero or more)
//	author A
//	committer C
//
//	message
func MarshalCommit(c *Commit) []byte {
	var buf bytes.Buffer
	fmt.Fprintf(&buf, "tree %s\n", c.Tree)
	for _, p := range c.Parents {
		fmt.Fprintf(&buf, "parent %s\n", p)
	}
	fmt.Fprintf(&buf, "author %s\n", c.Author.Header())
	fmt.Fprintf(&buf, "committer %s\n", c.Committer.Header())
	buf.WriteByte('\n')
	buf.WriteString(c.Message)
	return buf.Bytes()
}

// MarshalTag serializes an annotated tag body.
func MarshalTag(t *Tag) []byte {
	var buf bytes.Buffer
	fmt.Fprintf(&buf, "object %s\n", t.Object)
	fmt.Fprintf(&buf, "type %s\n", t.Type)
	fmt.Fprintf(&buf, "tag %s\n", t.Name)
	if t.Tagger.Valid() || t.Tagger.Raw != "" {
		fmt.Fprintf(&buf, "tagger %s\n", t.Tagger.Header())
	}
	buf.WriteByte('\n')
	buf.WriteString(t.Message)
	return buf.Bytes()
}

// MarshalTree serializes tree entries as "mode name\0<20-byte id>" records.
// Entries are sorted the way Git sorts them: by name, with subtree names
// compared as if they ended in '/'.
func MarshalTree(entries []TreeEntry) []byte {
	sorted := make([]TreeEntry, len(entries))
	copy(sorted, entries)
	sort.Slice(sorted, func(i, j int) bool {
		return treeSortKey(sorted[i]) < treeSortKey(sorted[j])
	})

	var buf bytes.Buffer
	for _, e := range sorted {
		buf.WriteString(strconv.FormatUint(uint64(e.Mode), 8))
		buf.WriteByte(' ')
		buf.WriteString(e.Name)
		buf.WriteByte(0)
		buf.Write(e.ID[:])
	}
	return buf.Bytes()
}

func treeSortKey(e TreeEntry) string {
	if e.Mode&modeTypeMask == ModeDir {
		return e.Name + "/"
	}
	return e.Name
}

// NewSignature builds a signature for name and email at t, recording t's
// zone offset.
func NewSignature(name, email string, t time.Time) Signature {
	_, offset := t.Zone()
	sig := Signature{Name: name, Email: email, When: t.Unix(), Offset: offset / 60}
	sig.Raw = sig.Header()
	return sig
}
