// Package compression implements the MS-XCA decompression algorithms used
// by the Windows prefetch MAM container: plain LZXPRESS (LZ77 with the
// shared-nibble length extension) and XPRESS-Huffman.
//
// Both decoders are streaming copy engines over attacker-influenced input,
// so every read is bounds-checked and malformed back-references fail with
// ErrBadFormat instead of reading outside the output window.
package compression

import (
	"errors"
	"fmt"
)

// Algorithm identifies a MAM container compression format.
// The values match the algorithm nibble of the container signature.
type Algorithm uint32

const (
	// FormatNone marks an uncompressed payload.
	FormatNone Algorithm = 0
	// FormatDefault is reserved by Windows and never valid for prefetch.
	FormatDefault Algorithm = 1
	// FormatLZNT1 selects the plain LZXPRESS decoder.
	FormatLZNT1 Algorithm = 2
	// FormatXpress also selects the plain LZXPRESS decoder. MS-XCA defines
	// code 3 as the non-Huffman XPRESS format; Windows emits only code 4
	// for prefetch files.
	FormatXpress Algorithm = 3
	// FormatXpressHuff selects the XPRESS-Huffman decoder.
	FormatXpressHuff Algorithm = 4
)

func (a Algorithm) String() string {
	switch a {
	case FormatNone:
		return "none"
	case FormatDefault:
		return "default"
	case FormatLZNT1:
		return "lznt1"
	case FormatXpress:
		return "xpress"
	case FormatXpressHuff:
		return "xpress-huffman"
	default:
		return fmt.Sprintf("unknown(%d)", uint32(a))
	}
}

var (
	// ErrBadFormat indicates a compressed stream that violates the format:
	// truncated input, invalid length extension, or a back-reference
	// pointing before the start of the output.
	ErrBadFormat = errors.New("invalid compressed data")

	// ErrUnsupportedAlgorithm indicates an algorithm code the decoder does
	// not handle (the reserved "default" format).
	ErrUnsupportedAlgorithm = errors.New("unsupported compression algorithm")
)

// Decompress expands in using the given algorithm. uncompressedSize is
// the size declared by the container header and is a hard cap on the
// output: neither decoder ever writes past it, so a crafted length escape
// cannot grow the output beyond what the header announced.
func Decompress(algorithm Algorithm, in []byte, uncompressedSize int) ([]byte, error) {
	if uncompressedSize < 0 {
		return nil, fmt.Errorf("%w: negative uncompressed size", ErrBadFormat)
	}
	switch algorithm {
	case FormatNone:
		if len(in) != uncompressedSize {
			return nil, fmt.Errorf("%w: stored payload is %d bytes, header declares %d", ErrBadFormat, len(in), uncompressedSize)
		}
		out := make([]byte, len(in))
		copy(out, in)
		return out, nil
	case FormatDefault:
		return nil, fmt.Errorf("%w: %s", ErrUnsupportedAlgorithm, algorithm)
	case FormatLZNT1, FormatXpress:
		return decompressLZ77(in, uncompressedSize)
	case FormatXpressHuff:
		return decompressHuffman(in, uncompressedSize)
	default:
		return nil, fmt.Errorf("%w: code %d", ErrUnsupportedAlgorithm, uint32(algorithm))
	}
}
