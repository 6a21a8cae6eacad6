package object

import (
	"bytes"
	"fmt"
	"regexp"
	"strconv"
	"strings"
)

// header is one "key value" line of a commit or tag header.
type header struct {
	key   string
	value string
}

// splitHeaders splits a commit or tag into its header lines and the message
// that follows the first blank line. Continuation lines (starting with a
// space) are appended to the preceding header value.
func splitHeaders(data []byte) ([]header, string) {
	var (
		headers []header
		message string
	)
	rest := data
	for len(rest) > 0 {
		var line []byte
		if i := bytes.IndexByte(rest, '\n'); i >= 0 {
			line, rest = rest[:i], rest[i+1:]
		} else {
			line, rest = rest, nil
		}
		if len(line) == 0 {
			message = string(rest)
			break
		}
		if line[0] == ' ' && len(headers) > 0 {
			last := &headers[len(headers)-1]
			last.value += "\n" + string(line[1:])
			continue
		}
		key, value, _ := strings.Cut(string(line), " ")
		headers = append(headers, header{key: key, value: value})
	}
	return headers, trimBlankLines(message)
}

// trimBlankLines removes whitespace-only lines from both ends of s.
func trimBlankLines(s string) string {
	lines := strings.Split(s, "\n")
	start, end := 0, len(lines)
	for start < end && strings.TrimSpace(lines[start]) == "" {
		start++
	}
	for end > start && strings.TrimSpace(lines[end-1]) == "" {
		end--
	}
	return strings.Join(lines[start:end], "\n")
}

// ParseCommit decodes the body of a commit object.
func ParseCommit(data []byte) (*Commit, error) {
	headers, message := splitHeaders(data)
	c := &Commit{Message: message}
	hasTree := false
	for _, h := range headers {
		switch h.key {
		case "tree":
			id, err := ParseID(h.value)
			if err != nil {
				return nil, fmt.Errorf("%w: commit tree: %v", ErrMalformedObject, err)
			}
			c.Tree = id
			hasTree = true
		case "parent":
			id, err := ParseID(h.value)
			if err != nil {
				return nil, fmt.Errorf("%w: commit parent %d: %v", ErrMalformedObject, len(c.Parents), err)
			}
			c.Parents = append(c.Parents, id)
		case "author":
			c.Author = ParseSignature(h.value)
		case "committer":
			c.Committer = ParseSignature(h.value)
		}
	}
	if !hasTree {
		return nil, fmt.Errorf("%w: commit has no tree header", ErrMalformedObject)
	}
	return c, nil
}

// ParseTag decodes the body of an annotated tag object.
func ParseTag(data []byte) (*Tag, error) {
	headers, message := splitHeaders(data)
	t := &Tag{Message: message}
	hasObject := false
	for _, h := range headers {
		switch h.key {
		case "object":
			id, err := ParseID(h.value)
			if err != nil {
				return nil, fmt.Errorf("%w: tag object: %v", ErrMalformedObject, err)
			}
			t.Object = id
			hasObject = true
		case "type":
			objType, err := ParseObjectType(h.value)
			if err != nil {
				return nil, fmt.Errorf("tag type: %w", err)
			}
			t.Type = objType
		case "tag":
			t.Name = h.value
		case "tagger":
			t.Tagger = ParseSignature(h.value)
		}
	}
	if !hasObject {
		return nil, fmt.Errorf("%w: tag has no object header", ErrMalformedObject)
	}
	return t, nil
}

var signaturePattern = regexp.MustCompile(`^(.*?) ?<([^<>]*)> +(-?[0-9]+) +([+-])([0-9]{2})([0-9]{2})$`)

// ParseSignature decodes "name <email> epoch ±HHMM". A value that does not
// match keeps only Raw.
func ParseSignature(value string) Signature {
	sig := Signature{Raw: value}
	m := signaturePattern.FindStringSubmatch(value)
	if m == nil {
		return sig
	}
	when, err := strconv.ParseInt(m[3], 10, 64)
	if err != nil {
		return sig
	}
	hours, _ := strconv.Atoi(m[5])
	minutes, _ := strconv.Atoi(m[6])
	offset := hours*60 + minutes
	if m[4] == "-" {
		offset = -offset
	}
	sig.Name = m[1]
	sig.Email = m[2]
	sig.When = when
	sig.Offset = offset
	return sig
}

// ParseTree decodes a tree object into its entries in stored order.
func ParseTree(data []byte) ([]TreeEntry, error) {
	var entries []TreeEntry
	for pos := 0; pos < len(data); {
		nul := bytes.IndexByte(data[pos:], 0)
		if nul < 0 {
			return nil, fmt.Errorf("%w: entry at %d has no NUL terminator", ErrTruncatedTree, pos)
		}
		modeName := data[pos : pos+nul]
		pos += nul + 1
		if len(data)-pos < IDSize {
			return nil, fmt.Errorf("%w: entry %q is missing its id", ErrTruncatedTree, modeName)
		}

		sp := bytes.IndexByte(modeName, ' ')
		if sp <= 0 {
			return nil, fmt.Errorf("%w: tree entry %q has no mode", ErrMalformedObject, modeName)
		}
		mode, err := strconv.ParseUint(string(modeName[:sp]), 8, 32)
		if err != nil {
			return nil, fmt.Errorf("%w: tree entry mode %q", ErrMalformedObject, modeName[:sp])
		}

		var e TreeEntry
		e.Mode = uint32(mode)
		e.Name = string(modeName[sp+1:])
		e.IsDir = e.Mode&ModeDir != 0
		copy(e.ID[:], data[pos:pos+IDSize])
		pos += IDSize
		entries = append(entries, e)
	}
	return entries, nil
}
