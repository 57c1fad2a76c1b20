// Package binread provides little-endian primitive reads and UTF-16LE
// string extraction over raw artifact buffers.
//
// Prefetch files are read from possibly tampered disk images, so every
// multi-byte read is bounds-checked. The integer helpers return zero when
// the requested window falls outside the buffer; callers validate table
// bounds before walking records, so a zero here never silently corrupts a
// parse that would otherwise succeed.
package binread

import (
	"encoding/binary"
	"errors"

	"golang.org/x/text/encoding/unicode"
)

// ErrStringOutOfBounds indicates a UTF-16 string window that extends past
// the end of the enclosing buffer.
var ErrStringOutOfBounds = errors.New("utf16 string position is greater than the buffer length")

var utf16le = unicode.UTF16(unicode.LittleEndian, unicode.IgnoreBOM)

// Uint16 reads a little-endian uint16 at pos, or 0 if out of bounds.
func Uint16(buf []byte, pos int) uint16 {
	if pos < 0 || pos+2 > len(buf) {
		return 0
	}
	return binary.LittleEndian.Uint16(buf[pos : pos+2])
}

// Uint32 reads a little-endian uint32 at pos, or 0 if out of bounds.
func Uint32(buf []byte, pos int) uint32 {
	if pos < 0 || pos+4 > len(buf) {
		return 0
	}
	return binary.LittleEndian.Uint32(buf[pos : pos+4])
}

// Uint64 reads a little-endian uint64 at pos, or 0 if out of bounds.
func Uint64(buf []byte, pos int) uint64 {
	if pos < 0 || pos+8 > len(buf) {
		return 0
	}
	return binary.LittleEndian.Uint64(buf[pos : pos+8])
}

// UTF16At decodes the UTF-16LE string stored in buf[offset:offset+size].
// Decoding stops at the first NUL code unit. Invalid code units are
// replaced rather than failing, matching how Windows tools render
// damaged artifact strings.
func UTF16At(buf []byte, offset, size int) (string, error) {
	if offset < 0 || size < 0 || offset+size > len(buf) {
		return "", ErrStringOutOfBounds
	}
	return DecodeUTF16(buf[offset : offset+size]), nil
}

// DecodeUTF16 decodes a UTF-16LE byte sequence up to its NUL terminator.
// A trailing odd byte is ignored.
func DecodeUTF16(b []byte) string {
	end := len(b) &^ 1
	for i := 0; i+2 <= end; i += 2 {
		if b[i] == 0 && b[i+1] == 0 {
			end = i
			break
		}
	}
	decoded, err := utf16le.NewDecoder().Bytes(b[:end])
	if err != nil {
		// The decoder substitutes invalid units instead of erroring; a
		// failure here means allocation problems, not bad input.
		return ""
	}
	return string(decoded)
}
