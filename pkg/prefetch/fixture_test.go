package prefetch

import (
	"encoding/binary"
	"hash/crc32"
	"unicode/utf16"
)

// Test fixtures: synthetic prefetch bodies assembled field by field, the
// same way the header tests build SMB frames. The builder lays tables out
// as [header][file information][metrics][trace chain][string table]
// [volume information] and back-patches the offsets.

type testMetric struct {
	file   string
	flags  uint32
	traces []Trace
}

type testVolume struct {
	devicePath string
	creation   uint64
	serial     uint32
	refs       []uint64
	dirs       []string
}

type testPrefetch struct {
	version  uint32
	v30v1    bool
	name     string
	hash     uint32
	runCount uint32
	runTimes []uint64
	metrics  []testMetric
	volumes  []testVolume
}

func utf16Bytes(s string) []byte {
	units := utf16.Encode([]rune(s))
	out := make([]byte, 0, 2*len(units))
	for _, u := range units {
		out = binary.LittleEndian.AppendUint16(out, u)
	}
	return out
}

func putU16(b []byte, pos int, v uint16) { binary.LittleEndian.PutUint16(b[pos:], v) }
func putU32(b []byte, pos int, v uint32) { binary.LittleEndian.PutUint32(b[pos:], v) }
func putU64(b []byte, pos int, v uint64) { binary.LittleEndian.PutUint64(b[pos:], v) }

func (tp testPrefetch) build() []byte {
	infoSize := 228
	if tp.v30v1 {
		// The v1 layout of version 30 is recognized by its metrics array
		// starting at file offset 304.
		infoSize = 220
	}

	metricWidth := metricRecordWidth(tp.version)
	traceWidth := traceRecordWidth(tp.version)

	// Trace chain: every metric's traces concatenated in order.
	var traceChain []byte
	traceCount := 0
	traceIndexes := make([]int, len(tp.metrics))
	for i, m := range tp.metrics {
		traceIndexes[i] = traceCount
		for _, tr := range m.traces {
			rec := make([]byte, traceWidth)
			if traceWidth == 8 {
				putU32(rec, 0, tr.BlockOffset)
				rec[4] = uint8(tr.Flags)
				rec[6] = tr.UsedBitfield
				rec[7] = tr.PrefetchedBitfield
			} else {
				putU32(rec, 4, tr.BlockOffset)
				rec[8] = uint8(tr.Flags)
				rec[10] = tr.UsedBitfield
				rec[11] = tr.PrefetchedBitfield
			}
			traceChain = append(traceChain, rec...)
			traceCount++
		}
	}

	// String table and metrics array.
	var stringTable []byte
	var metricsArray []byte
	for i, m := range tp.metrics {
		nameBytes := utf16Bytes(m.file)
		nameOffset := len(stringTable)
		stringTable = append(stringTable, nameBytes...)
		stringTable = append(stringTable, 0, 0)

		rec := make([]byte, metricWidth)
		putU32(rec, 0, uint32(traceIndexes[i]))
		putU32(rec, 4, uint32(len(m.traces)))
		if metricWidth == 20 {
			putU32(rec, 8, uint32(nameOffset))
			putU32(rec, 12, uint32(len(nameBytes)))
			putU32(rec, 16, m.flags)
		} else {
			putU32(rec, 8, uint32(len(m.traces))) // blocks to prefetch
			putU32(rec, 12, uint32(nameOffset))
			putU32(rec, 16, uint32(len(nameBytes)))
			putU32(rec, 20, m.flags)
		}
		metricsArray = append(metricsArray, rec...)
	}

	// Volume information block: fixed records first, nested data after.
	volWidth := volumeRecordWidth(tp.version)
	refHeader := fileRefHeaderSize(tp.version)
	volumeBlock := make([]byte, volWidth*len(tp.volumes))
	for i, v := range tp.volumes {
		pos := i * volWidth

		pathBytes := utf16Bytes(v.devicePath)
		pathOffset := len(volumeBlock)
		volumeBlock = append(volumeBlock, pathBytes...)
		volumeBlock = append(volumeBlock, 0, 0)
		putU32(volumeBlock, pos, uint32(pathOffset))
		putU32(volumeBlock, pos+4, uint32(len(pathBytes)/2))

		putU64(volumeBlock, pos+8, v.creation)
		putU32(volumeBlock, pos+16, v.serial)

		refsOffset := len(volumeBlock)
		refsBlock := make([]byte, refHeader)
		putU32(refsBlock, 4, uint32(len(v.refs)))
		for _, ref := range v.refs {
			refsBlock = binary.LittleEndian.AppendUint64(refsBlock, ref)
		}
		volumeBlock = append(volumeBlock, refsBlock...)
		putU32(volumeBlock, pos+20, uint32(refsOffset))
		putU32(volumeBlock, pos+24, uint32(len(refsBlock)))

		dirOffset := len(volumeBlock)
		for _, dir := range v.dirs {
			dirBytes := utf16Bytes(dir)
			var rec []byte
			rec = binary.LittleEndian.AppendUint16(rec, uint16(len(dirBytes)/2))
			rec = append(rec, dirBytes...)
			rec = append(rec, 0, 0)
			volumeBlock = append(volumeBlock, rec...)
		}
		putU32(volumeBlock, pos+28, uint32(dirOffset))
		putU32(volumeBlock, pos+32, uint32(len(v.dirs)))
	}
	// Directory-string parsing rejects exactly-filled buffers; keep a
	// little slack at the end of the block.
	volumeBlock = append(volumeBlock, 0, 0, 0, 0)

	// Assemble and back-patch the file information offsets.
	metricsOffset := 84 + infoSize
	traceOffset := metricsOffset + len(metricsArray)
	stringOffset := traceOffset + len(traceChain)
	volumeOffset := stringOffset + len(stringTable)

	buf := make([]byte, 84+infoSize)
	putU32(buf, 0, tp.version)
	copy(buf[4:8], "SCCA")
	copy(buf[16:76], utf16Bytes(tp.name))
	putU32(buf, 76, tp.hash)

	info := buf[84:]
	putU32(info, 0, uint32(metricsOffset))
	putU32(info, 4, uint32(len(tp.metrics)))
	putU32(info, 8, uint32(traceOffset))
	putU32(info, 12, uint32(traceCount))
	putU32(info, 16, uint32(stringOffset))
	putU32(info, 20, uint32(len(stringTable)))
	putU32(info, 24, uint32(volumeOffset))
	putU32(info, 28, uint32(len(tp.volumes)))
	putU32(info, 32, uint32(len(volumeBlock)))

	switch tp.version {
	case 17:
		if len(tp.runTimes) > 0 {
			putU64(info, 36, tp.runTimes[0])
		}
		putU32(info, 60, tp.runCount)
	case 23:
		if len(tp.runTimes) > 0 {
			putU64(info, 44, tp.runTimes[0])
		}
		putU32(info, 68, tp.runCount)
	case 26:
		for i, rt := range tp.runTimes {
			putU64(info, 44+8*i, rt)
		}
		putU32(info, 124, tp.runCount)
	case 30:
		for i, rt := range tp.runTimes {
			putU64(info, 44+8*i, rt)
		}
		if tp.v30v1 {
			putU32(info, 124, tp.runCount)
		} else {
			putU32(info, 116, tp.runCount)
		}
	}

	buf = append(buf, metricsArray...)
	buf = append(buf, traceChain...)
	buf = append(buf, stringTable...)
	buf = append(buf, volumeBlock...)
	return buf
}

// wrapMAM wraps a plaintext body in the 8-byte compression envelope.
func wrapMAM(algorithm byte, withCRC bool, payload []byte, uncompressedSize int) []byte {
	signature := uint32('M') | uint32('A')<<8 | uint32('M')<<16 | uint32(algorithm)<<24
	if withCRC {
		signature |= 1 << 28
	}
	out := make([]byte, 8)
	putU32(out, 0, signature)
	putU32(out, 4, uint32(uncompressedSize))
	if withCRC {
		h := crc32.NewIEEE()
		h.Write(out)
		h.Write([]byte{0, 0, 0, 0})
		h.Write(payload)
		out = binary.LittleEndian.AppendUint32(out, h.Sum32())
	}
	return append(out, payload...)
}

// lz77Literals encodes data as an all-literal LZXPRESS stream terminated
// by a match flag at the end of input.
func lz77Literals(data []byte) []byte {
	var out []byte
	for len(data) > 0 {
		group := len(data)
		if group > 32 {
			group = 32
		}
		var flags uint32
		if group < 32 {
			flags = 1<<(32-uint(group)) - 1
		}
		out = binary.LittleEndian.AppendUint32(out, flags)
		out = append(out, data[:group]...)
		data = data[group:]
	}
	// Terminator: a match flag with the input exhausted.
	out = binary.LittleEndian.AppendUint32(out, 0xFFFFFFFF)
	return out
}

// defaultVolume returns a plausible system volume for fixtures.
func defaultVolume() testVolume {
	return testVolume{
		devicePath: `\VOLUME{01d962d37536cd21-a2691d2c}`,
		creation:   131052708180000000,
		serial:     0xA2691D2C,
		refs:       []uint64{0x0001000000004521, 0, 0x00030000000A77B2},
		dirs: []string{
			`\VOLUME{01d962d37536cd21-a2691d2c}\WINDOWS`,
			`\VOLUME{01d962d37536cd21-a2691d2c}\WINDOWS\SYSTEM32`,
		},
	}
}

// defaultMetrics returns a minimal dependency set for an executable.
func defaultMetrics(executable string) []testMetric {
	return []testMetric{
		{
			file:  `\VOLUME{01d962d37536cd21-a2691d2c}\WINDOWS\SYSTEM32\NTDLL.DLL`,
			flags: FlagProgramBlockExecutable,
			traces: []Trace{
				{Flags: BlockFlags(FlagBlockExecutable), BlockOffset: 0, UsedBitfield: 0xFF, PrefetchedBitfield: 0x0F},
				{Flags: BlockFlags(FlagBlockResource), BlockOffset: 8, UsedBitfield: 0x01, PrefetchedBitfield: 0x01},
			},
		},
		{
			file:  `\VOLUME{01d962d37536cd21-a2691d2c}\WINDOWS\SYSTEM32\` + executable,
			flags: FlagProgramBlockExecutable,
			traces: []Trace{
				{Flags: BlockFlags(FlagBlockExecutable | FlagBlockForcePrefetch), BlockOffset: 16, UsedBitfield: 0x03, PrefetchedBitfield: 0x02},
			},
		},
	}
}
