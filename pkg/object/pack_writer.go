package object

import (
	"bytes"
	"crypto/sha1"
	"fmt"
	"hash"
	"hash/crc32"
	"io"

	"github.com/klauspost/compress/zlib"
)

type packCountedWriter struct {
	w io.Writer
	n uint64
}

func (cw *packCountedWriter) Write(p []byte) (int, error) {
	n, err := cw.w.Write(p)
	cw.n += uint64(n)
	return n, err
}

func (cw *packCountedWriter) Count() uint64 {
	return cw.n
}

func compressPackPayload(raw []byte) ([]byte, error) {
	var buf bytes.Buffer
	zw := zlib.NewWriter(&buf)
	if _, err := zw.Write(raw); err != nil {
		_ = zw.Close()
		return nil, err
	}
	if err := zw.Close(); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

// PackWriter writes version 2 pack streams with zlib-compressed entries.
// The trailer is the SHA-1 over all bytes preceding it. Each write returns the
// index row for the entry, so callers can feed WritePackIndex directly.
type PackWriter struct {
	out      io.Writer
	hasher   hash.Hash
	hashedW  io.Writer
	counter  *packCountedWriter
	expected uint32
	written  uint32
	finished bool
}

// NewPackWriter initializes a new writer and writes the fixed pack header.
func NewPackWriter(out io.Writer, numObjects uint32) (*PackWriter, error) {
	hasher := sha1.New()
	counter := &packCountedWriter{w: out}
	pw := &PackWriter{
		out:      out,
		hasher:   hasher,
		hashedW:  io.MultiWriter(counter, hasher),
		counter:  counter,
		expected: numObjects,
	}

	header := PackHeader{
		Version:    supportedPackVersion,
		NumObjects: numObjects,
	}
	if _, err := pw.hashedW.Write(header.Marshal()); err != nil {
		return nil, fmt.Errorf("write pack header: %w", err)
	}
	return pw, nil
}

// CurrentOffset returns the current byte offset in the pack stream, excluding
// the trailing checksum written by Finish.
func (p *PackWriter) CurrentOffset() uint64 {
	return p.counter.Count()
}

// WriteObject appends a whole (non-delta) object.
func (p *PackWriter) WriteObject(objType ObjectType, data []byte) (PackIndexEntry, error) {
	packType, err := packTypeFor(objType)
	if err != nil {
		return PackIndexEntry{}, err
	}
	header := encodePackEntryHeader(packType, uint64(len(data)))
	return p.writeEntry(HashObject(objType, data), header, data)
}

// WriteOfsDelta appends target as an OFS_DELTA against the entry written at
// base.Offset, whose content is baseData.
func (p *PackWriter) WriteOfsDelta(objType ObjectType, base PackIndexEntry, baseData, target []byte) (PackIndexEntry, error) {
	current := p.CurrentOffset()
	if base.Offset >= current {
		return PackIndexEntry{}, fmt.Errorf("base offset %d must be before current offset %d", base.Offset, current)
	}
	delta := buildPrefixDelta(baseData, target)
	header := encodePackEntryHeader(PackOfsDelta, uint64(len(delta)))
	header = append(header, encodeOffsetVarint(current-base.Offset)...)
	return p.writeEntry(HashObject(objType, target), header, delta)
}

// WriteRefDelta appends target as a REF_DELTA against baseID. The base may
// live outside this pack.
func (p *PackWriter) WriteRefDelta(objType ObjectType, baseID ID, baseData, target []byte) (PackIndexEntry, error) {
	delta := buildPrefixDelta(baseData, target)
	header := encodePackEntryHeader(PackRefDelta, uint64(len(delta)))
	header = append(header, baseID[:]...)
	return p.writeEntry(HashObject(objType, target), header, delta)
}

func (p *PackWriter) writeEntry(id ID, header, payload []byte) (PackIndexEntry, error) {
	if p.finished {
		return PackIndexEntry{}, fmt.Errorf("pack writer already finished")
	}
	if p.written >= p.expected {
		return PackIndexEntry{}, fmt.Errorf("pack object count exceeded: expected %d", p.expected)
	}

	compressed, err := compressPackPayload(payload)
	if err != nil {
		return PackIndexEntry{}, fmt.Errorf("compress pack entry: %w", err)
	}

	entry := PackIndexEntry{ID: id, Offset: p.CurrentOffset()}
	crc := crc32.NewIEEE()
	crc.Write(header)
	crc.Write(compressed)
	entry.CRC32 = crc.Sum32()

	if _, err := p.hashedW.Write(header); err != nil {
		return PackIndexEntry{}, fmt.Errorf("write pack entry header: %w", err)
	}
	if _, err := p.hashedW.Write(compressed); err != nil {
		return PackIndexEntry{}, fmt.Errorf("write compressed pack entry: %w", err)
	}

	p.written++
	return entry, nil
}

// Finish validates the object count, writes the trailing pack checksum and
// returns it.
func (p *PackWriter) Finish() (ID, error) {
	if p.finished {
		return ZeroID, fmt.Errorf("pack writer already finished")
	}
	if p.written != p.expected {
		return ZeroID, fmt.Errorf("pack object count mismatch: wrote %d, expected %d", p.written, p.expected)
	}

	var sum ID
	p.hasher.Sum(sum[:0])
	if _, err := p.out.Write(sum[:]); err != nil {
		return ZeroID, fmt.Errorf("write pack trailer checksum: %w", err)
	}
	p.finished = true
	return sum, nil
}
