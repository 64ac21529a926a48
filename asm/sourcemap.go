package asm

import (
	"bufio"
	"bytes"
	"encoding/binary"
	"errors"
	"io"
	"sort"
)

// EncodedSourceMap is the serialized form of a BinaryImage's source
// map: a variable-length delta encoding of SourceMapEntry, adapted
// from the teacher's 6502 source map encoder to carry a segment and
// per-segment word index alongside each entry's address.
const (
	sourceMapSignature = "MSM1"
	sourceMapVersion    = byte(1)
)

// Encoding flags, identical bit layout to the teacher's scheme.
const (
	continued        byte = 1 << 7
	negative         byte = 1 << 6
	fileIndexChanged byte = 1 << 5
)

// EncodeSourceMap serializes entries (assumed already sorted by
// Address, which Emit produces in emission order) to w.
func EncodeSourceMap(w io.Writer, files []string, entries []SourceMapEntry) (n int64, err error) {
	ww := bufio.NewWriter(w)

	var hdr [11]byte
	copy(hdr[:], sourceMapSignature)
	hdr[4] = sourceMapVersion
	binary.LittleEndian.PutUint16(hdr[5:7], uint16(len(files)))
	binary.LittleEndian.PutUint32(hdr[7:11], uint32(len(entries)))
	nn, err := ww.Write(hdr[:])
	n += int64(nn)
	if err != nil {
		return n, err
	}

	for _, f := range files {
		nn, err = ww.WriteString(f)
		n += int64(nn)
		if err != nil {
			return n, err
		}
		if err = ww.WriteByte(0); err != nil {
			return n, err
		}
		n++
	}

	fileIndexOf := make(map[string]int, len(files))
	for i, f := range files {
		fileIndexOf[f] = i
	}

	var prev SourceMapEntry
	prevFileIdx := 0
	for _, e := range entries {
		fi := fileIndexOf[e.File]
		nn, err := encodeSourceMapEntry(ww, prev, prevFileIdx, e, fi)
		n += int64(nn)
		if err != nil {
			return n, err
		}
		prev = e
		prevFileIdx = fi
	}

	return n, ww.Flush()
}

// DecodeSourceMap reads a stream written by EncodeSourceMap.
func DecodeSourceMap(r io.Reader) (files []string, entries []SourceMapEntry, err error) {
	rr := bufio.NewReader(r)

	hdr := make([]byte, 11)
	if _, err = io.ReadFull(rr, hdr); err != nil {
		return nil, nil, err
	}
	if !bytes.Equal(hdr[0:4], []byte(sourceMapSignature)) {
		return nil, nil, errors.New("asm: invalid source map signature")
	}
	if hdr[4] != sourceMapVersion {
		return nil, nil, errors.New("asm: unsupported source map version")
	}
	fileCount := int(binary.LittleEndian.Uint16(hdr[5:7]))
	lineCount := int(binary.LittleEndian.Uint32(hdr[7:11]))

	files = make([]string, fileCount)
	for i := 0; i < fileCount; i++ {
		s, err := rr.ReadString(0)
		if err != nil {
			return nil, nil, err
		}
		files[i] = s[:len(s)-1]
	}

	entries = make([]SourceMapEntry, 0, lineCount)
	var prev SourceMapEntry
	prevFileIdx := 0
	for i := 0; i < lineCount; i++ {
		e, fi, _, err := decodeSourceMapEntry(rr, prev, prevFileIdx)
		if err != nil {
			return nil, nil, err
		}
		if fi >= 0 && fi < len(files) {
			e.File = files[fi]
		}
		entries = append(entries, e)
		prev = e
		prevFileIdx = fi
	}

	return files, entries, nil
}

// FindSourceLine binary-searches entries (sorted by Address) for the
// entry matching addr.
func FindSourceLine(entries []SourceMapEntry, addr int64) (SourceMapEntry, bool) {
	i := sort.Search(len(entries), func(i int) bool { return entries[i].Address >= addr })
	if i < len(entries) && entries[i].Address == addr {
		return entries[i], true
	}
	return SourceMapEntry{}, false
}

func encodeSourceMapEntry(w *bufio.Writer, prev SourceMapEntry, prevFileIdx int, e SourceMapEntry, fileIdx int) (n int, err error) {
	da := int(e.Address - prev.Address)
	df := fileIdx - prevFileIdx
	dl := e.Line - prev.Line

	nn, err := encode67(w, da)
	n += nn
	if err != nil {
		return n, err
	}

	nn, err = encode57(w, dl, df != 0)
	n += nn
	if err != nil {
		return n, err
	}
	if df != 0 {
		nn, err = encode67(w, df)
		n += nn
		if err != nil {
			return n, err
		}
	}

	if err = w.WriteByte(byte(e.Segment)); err != nil {
		return n, err
	}
	n++

	nn, err = encode67(w, e.SegmentIndex-prev.SegmentIndex)
	n += nn
	return n, err
}

func decodeSourceMapEntry(r *bufio.Reader, prev SourceMapEntry, prevFileIdx int) (e SourceMapEntry, fileIdx int, n int, err error) {
	da, nn, err := decode67(r)
	n += nn
	if err != nil {
		return e, 0, n, err
	}

	dl, f, nn, err := decode57(r)
	n += nn
	if err != nil {
		return e, 0, n, err
	}

	df := 0
	if f {
		df, nn, err = decode67(r)
		n += nn
		if err != nil {
			return e, 0, n, err
		}
	}

	segByte, err := r.ReadByte()
	if err != nil {
		return e, 0, n, err
	}
	n++

	dIdx, nn, err := decode67(r)
	n += nn
	if err != nil {
		return e, 0, n, err
	}

	e.Address = prev.Address + int64(da)
	e.Line = prev.Line + dl
	e.Segment = Segment(segByte)
	e.SegmentIndex = prev.SegmentIndex + dIdx
	return e, prevFileIdx + df, n, nil
}

// decode7/decode57/decode67/encode7/encode57/encode67 implement the
// same variable-length signed integer packing as the teacher's
// sourcemap codec: a leading field holding the low 5 or 6 bits plus
// sign/continuation flags, followed by 7-bit continuation groups for
// the remaining magnitude.
func decode7(r *bufio.Reader) (value int, n int, err error) {
	var shift uint
	for {
		var b byte
		b, err = r.ReadByte()
		if err != nil {
			return 0, n, err
		}
		n++

		value |= int(b&0x7f) << shift
		shift += 7

		if b&continued == 0 {
			break
		}
	}
	return value, n, nil
}

func decode57(r *bufio.Reader) (value int, f bool, n int, err error) {
	var b byte
	b, err = r.ReadByte()
	if err != nil {
		return 0, f, n, err
	}
	n++

	value = int(b & 0x1f)
	f = b&fileIndexChanged != 0
	neg := b&negative != 0

	if b&continued != 0 {
		var vl, nn int
		vl, nn, err = decode7(r)
		n += nn
		if err != nil {
			return 0, f, n, err
		}
		value |= vl << 5
	}

	if neg {
		value = -value
	}
	return value, f, n, nil
}

func decode67(r *bufio.Reader) (value int, n int, err error) {
	var b byte
	b, err = r.ReadByte()
	if err != nil {
		return 0, n, err
	}
	n++

	value = int(b & 0x3f)
	neg := b&negative != 0

	if b&continued != 0 {
		var vl, nn int
		vl, nn, err = decode7(r)
		n += nn
		if err != nil {
			return 0, n, err
		}
		value |= vl << 6
	}

	if neg {
		value = -value
	}
	return value, n, nil
}

func encode7(w *bufio.Writer, v int) (n int, err error) {
	for v != 0 {
		var b byte
		if v >= 0x80 {
			b |= continued
		}
		b |= byte(v) & 0x7f

		if err = w.WriteByte(b); err != nil {
			return n, err
		}
		n++
		v >>= 7
	}
	return n, nil
}

func encode57(w *bufio.Writer, v int, f bool) (n int, err error) {
	var b byte
	if f {
		b |= fileIndexChanged
	}
	if v < 0 {
		b |= negative
		v = -v
	}
	if v >= 0x20 {
		b |= continued
	}
	b |= byte(v) & 0x1f

	if err = w.WriteByte(b); err != nil {
		return 0, err
	}
	n++
	v >>= 5

	nn, err := encode7(w, v)
	n += nn
	return n, err
}

func encode67(w *bufio.Writer, v int) (n int, err error) {
	var b byte
	if v < 0 {
		b |= negative
		v = -v
	}
	if v >= 0x40 {
		b |= continued
	}
	b |= byte(v) & 0x3f

	if err = w.WriteByte(b); err != nil {
		return 0, err
	}
	n++
	v >>= 6

	nn, err := encode7(w, v)
	n += nn
	return n, err
}
