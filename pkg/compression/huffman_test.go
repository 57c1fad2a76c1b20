package compression

import (
	"bytes"
	"encoding/binary"
	"errors"
	"strings"
	"testing"
)

// huffBitWriter is the encoding mirror of huffBitReader, used to build
// XPRESS-Huffman fixtures. The encoder reserves 16-bit word slots two
// ahead of the write position and appends raw bytes (length extensions)
// at the current end, which reproduces the interleaving the decoder's
// word prefetch expects.
type huffBitWriter struct {
	out          []byte
	slot0, slot1 int
	acc          uint32
	nbits        uint
}

func newHuffBitWriter() *huffBitWriter {
	w := &huffBitWriter{}
	w.slot0 = 0
	w.slot1 = 2
	w.out = append(w.out, 0, 0, 0, 0)
	return w
}

func (w *huffBitWriter) writeBits(code uint32, bits uint) {
	w.acc = w.acc<<bits | code
	w.nbits += bits
	if w.nbits >= 16 {
		word := uint16(w.acc >> (w.nbits - 16))
		binary.LittleEndian.PutUint16(w.out[w.slot0:], word)
		w.slot0 = w.slot1
		w.slot1 = len(w.out)
		w.out = append(w.out, 0, 0)
		w.nbits -= 16
	}
}

func (w *huffBitWriter) writeRaw(b byte) {
	w.out = append(w.out, b)
}

// flush pads the pending bits into the next reserved slot and drops
// trailing reserved slots that were never needed, leaving the stream
// exactly where the decoder's word-aligned rebase expects the next block.
func (w *huffBitWriter) flush() []byte {
	if w.nbits > 0 {
		word := uint16(w.acc << (16 - w.nbits))
		binary.LittleEndian.PutUint16(w.out[w.slot0:], word)
		w.nbits = 0
		if w.slot1 == len(w.out)-2 {
			w.out = w.out[:w.slot1]
		}
		return w.out
	}
	if w.slot1 == len(w.out)-2 && w.slot0 == w.slot1-2 {
		return w.out[:w.slot0]
	}
	if w.slot1 == len(w.out)-2 {
		return w.out[:w.slot1]
	}
	return w.out
}

// flatTable builds the degenerate code-length table assigning a 9-bit code
// to every one of the 512 symbols. Canonical assignment then maps symbol n
// to code n, which keeps fixtures readable.
func flatTable() []byte {
	table := make([]byte, huffTableBytes)
	for i := range table {
		table[i] = 0x99
	}
	return table
}

func TestHuffmanLiterals(t *testing.T) {
	payload := "SCCA"

	w := newHuffBitWriter()
	for _, c := range []byte(payload) {
		w.writeBits(uint32(c), 9)
	}
	w.writeBits(endOfBlockSymbol, 9)

	encoded := append(flatTable(), w.flush()...)
	got, err := Decompress(FormatXpressHuff, encoded, len(payload))
	if err != nil {
		t.Fatalf("Decompress() error = %v", err)
	}
	if string(got) != payload {
		t.Errorf("Decompress() = %q, want %q", got, payload)
	}
}

func TestHuffmanMatch(t *testing.T) {
	// "abc" then a match at offset 3, length 6 -> "abcabcabc".
	// length index 3, offset high nibble 1 (offset = (1<<1) + 1 = 3),
	// symbol = 256 + 0x13 = 275, followed by 1 offset bit (value 1).
	w := newHuffBitWriter()
	for _, c := range []byte("abc") {
		w.writeBits(uint32(c), 9)
	}
	w.writeBits(275, 9)
	w.writeBits(1, 1)
	w.writeBits(endOfBlockSymbol, 9)

	encoded := append(flatTable(), w.flush()...)
	got, err := Decompress(FormatXpressHuff, encoded, 9)
	if err != nil {
		t.Fatalf("Decompress() error = %v", err)
	}
	if string(got) != "abcabcabc" {
		t.Errorf("Decompress() = %q, want %q", got, "abcabcabc")
	}
}

func TestHuffmanLengthExtension(t *testing.T) {
	// A match with length nibble 15 reads its real length from the raw
	// byte stream: one literal, then a 20-byte run of it.
	// length index 15, offset high nibble 0 (offset 1),
	// symbol = 256 + 0x0F = 271, extension byte 20-15-3 = 2.
	w := newHuffBitWriter()
	w.writeBits('x', 9)
	w.writeBits(271, 9)
	w.writeRaw(2)
	w.writeBits(endOfBlockSymbol, 9)

	encoded := append(flatTable(), w.flush()...)
	got, err := Decompress(FormatXpressHuff, encoded, 21)
	if err != nil {
		t.Fatalf("Decompress() error = %v", err)
	}
	if want := strings.Repeat("x", 21); string(got) != want {
		t.Errorf("Decompress() = %q, want 21 x's", got)
	}
}

func TestHuffmanMultiBlock(t *testing.T) {
	// More than one 64 KiB block: the second block must start with its own
	// code-length table at the rebased byte position.
	size := huffBlockSize + 4464

	var encoded []byte
	encoded = append(encoded, flatTable()...)
	w := newHuffBitWriter()
	for i := 0; i < huffBlockSize; i++ {
		w.writeBits('A', 9)
	}
	encoded = append(encoded, w.flush()...)

	encoded = append(encoded, flatTable()...)
	w2 := newHuffBitWriter()
	for i := huffBlockSize; i < size; i++ {
		w2.writeBits('A', 9)
	}
	w2.writeBits(endOfBlockSymbol, 9)
	encoded = append(encoded, w2.flush()...)

	got, err := Decompress(FormatXpressHuff, encoded, size)
	if err != nil {
		t.Fatalf("Decompress() error = %v", err)
	}
	if len(got) != size {
		t.Fatalf("Decompress() produced %d bytes, want %d", len(got), size)
	}
	if !bytes.Equal(got, bytes.Repeat([]byte{'A'}, size)) {
		t.Errorf("Decompress() content mismatch")
	}
}

func TestHuffmanBadInput(t *testing.T) {
	t.Run("TruncatedTable", func(t *testing.T) {
		_, err := Decompress(FormatXpressHuff, make([]byte, 100), 10)
		if !errors.Is(err, ErrBadFormat) {
			t.Errorf("Decompress() error = %v, want ErrBadFormat", err)
		}
	})

	t.Run("EmptyTable", func(t *testing.T) {
		// All code lengths zero: no symbol can ever decode.
		encoded := make([]byte, huffTableBytes+8)
		_, err := Decompress(FormatXpressHuff, encoded, 10)
		if !errors.Is(err, ErrBadFormat) {
			t.Errorf("Decompress() error = %v, want ErrBadFormat", err)
		}
	})

	t.Run("MatchBeforeOutputStart", func(t *testing.T) {
		// First token is a match: no output to copy from yet.
		w := newHuffBitWriter()
		w.writeBits(275, 9)
		w.writeBits(1, 1)
		encoded := append(flatTable(), w.flush()...)

		_, err := Decompress(FormatXpressHuff, encoded, 9)
		if !errors.Is(err, ErrBadFormat) {
			t.Errorf("Decompress() error = %v, want ErrBadFormat", err)
		}
	})

	t.Run("OverfullTable", func(t *testing.T) {
		// Every symbol claims a 1-bit code.
		encoded := make([]byte, huffTableBytes+8)
		for i := 0; i < huffTableBytes; i++ {
			encoded[i] = 0x11
		}
		_, err := Decompress(FormatXpressHuff, encoded, 10)
		if !errors.Is(err, ErrBadFormat) {
			t.Errorf("Decompress() error = %v, want ErrBadFormat", err)
		}
	})
}

func TestHuffmanDeclaredSizeIsHardCap(t *testing.T) {
	// A match longer than the remaining declared size must not write past
	// the cap.
	w := newHuffBitWriter()
	w.writeBits('y', 9)
	w.writeBits(271, 9)
	w.writeRaw(100) // length 100+15+3 = 118

	got, err := Decompress(FormatXpressHuff, append(flatTable(), w.flush()...), 8)
	if err != nil {
		t.Fatalf("Decompress() error = %v", err)
	}
	if want := strings.Repeat("y", 8); string(got) != want {
		t.Errorf("Decompress() = %q, want %q", got, want)
	}
}
