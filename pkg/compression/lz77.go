package compression

import (
	"encoding/binary"
	"fmt"
)

// decompressLZ77 expands a plain LZXPRESS stream: a bit-flag-directed copy
// engine where each flag bit selects a literal byte (0) or a
// (length, offset) back-reference (1).
//
// Match lengths use a shared-nibble extension protocol: the first extended
// match consumes the low nibble of an extension byte and remembers its
// position; the next extended match consumes the high nibble of that same
// byte. The nibble position therefore has to survive across match tokens
// between its set and consume events.
func decompressLZ77(in []byte, uncompressedSize int) ([]byte, error) {
	out := make([]byte, 0, uncompressedSize)

	var (
		flags     uint32
		flagCount uint
		pos       int
		// Position of the half-consumed length-extension byte. Zero means
		// "none": position 0 can never hold an extension byte because the
		// stream opens with a 4-byte flag word.
		lastLengthNibblePos int
	)

	for len(out) < uncompressedSize {
		if flagCount == 0 {
			if pos+4 > len(in) {
				return nil, fmt.Errorf("%w: truncated flag word", ErrBadFormat)
			}
			flags = binary.LittleEndian.Uint32(in[pos : pos+4])
			pos += 4
			flagCount = 32
		}
		flagCount--

		if flags&(1<<flagCount) == 0 {
			if pos >= len(in) {
				return nil, fmt.Errorf("%w: truncated literal", ErrBadFormat)
			}
			out = append(out, in[pos])
			pos++
			continue
		}

		// A match flag with no remaining input is the stream terminator.
		if pos == len(in) {
			return out, nil
		}
		if pos+2 > len(in) {
			return nil, fmt.Errorf("%w: truncated match token", ErrBadFormat)
		}
		token := uint32(binary.LittleEndian.Uint16(in[pos : pos+2]))
		pos += 2

		length := token % 8
		offset := int(token/8) + 1

		if length == 7 {
			if lastLengthNibblePos == 0 {
				if pos >= len(in) {
					return nil, fmt.Errorf("%w: truncated length nibble", ErrBadFormat)
				}
				length = uint32(in[pos]) % 16
				lastLengthNibblePos = pos
				pos++
			} else {
				length = uint32(in[lastLengthNibblePos]) / 16
				lastLengthNibblePos = 0
			}
			if length == 15 {
				if pos >= len(in) {
					return nil, fmt.Errorf("%w: truncated length byte", ErrBadFormat)
				}
				length = uint32(in[pos])
				pos++
				if length == 255 {
					if pos+2 > len(in) {
						return nil, fmt.Errorf("%w: truncated 16-bit length", ErrBadFormat)
					}
					length = uint32(binary.LittleEndian.Uint16(in[pos : pos+2]))
					pos += 2
					if length == 0 {
						if pos+4 > len(in) {
							return nil, fmt.Errorf("%w: truncated 32-bit length", ErrBadFormat)
						}
						length = binary.LittleEndian.Uint32(in[pos : pos+4])
						pos += 4
					}
					if length < 22 {
						return nil, fmt.Errorf("%w: match length %d below escape baseline 22", ErrBadFormat, length)
					}
					length -= 22
				}
				length += 15
			}
			length += 7
		}
		length += 3

		if offset > len(out) {
			return nil, fmt.Errorf("%w: match offset %d before start of output", ErrBadFormat, offset)
		}
		// Byte-by-byte on purpose: offset < length overlaps the copy with
		// itself, which the format uses for RLE runs. The declared size is
		// a hard cap, a match never writes past it.
		for i := uint32(0); i < length && len(out) < uncompressedSize; i++ {
			out = append(out, out[len(out)-offset])
		}
	}
	return out, nil
}
