package prefetch

import (
	"fmt"

	"github.com/ForensicRS/frnsc-prefetch/internal/binread"
)

// traceRecordWidth returns the trace-chain record size for a layout
// version: 12 bytes through v26, 8 bytes for v30.
func traceRecordWidth(version uint32) int {
	if version >= 30 {
		return 8
	}
	return 12
}

// traceTable is a validated view of the file-level trace-chain table.
// Metrics address it by (index, size) sub-ranges; the whole table is also
// walkable for the record's TraceChain field.
type traceTable struct {
	data  []byte
	count int
	width int
}

// newTraceTable slices the trace-chain table out of the file buffer,
// verifying offset + count*width against the buffer length.
func newTraceTable(buf []byte, info *fileInformation, version uint32) (traceTable, error) {
	width := traceRecordWidth(version)
	offset := int64(info.traceChainOffset)
	end := offset + int64(info.traceChainCount)*int64(width)
	if end > int64(len(buf)) {
		return traceTable{}, fmt.Errorf("%w: trace chain table extends past the file buffer", ErrBadFormat)
	}
	return traceTable{
		data:  buf[offset:end],
		count: int(info.traceChainCount),
		width: width,
	}, nil
}

// All decodes the whole table in on-disk order.
func (t traceTable) All() []Trace {
	traces := make([]Trace, 0, t.count)
	for i := 0; i < t.count; i++ {
		traces = append(traces, t.decode(i))
	}
	return traces
}

// Slice decodes the sub-range [index, index+size) referenced by one
// metric.
func (t traceTable) Slice(index, size int) ([]Trace, error) {
	if index < 0 || size < 0 || (int64(index)+int64(size))*int64(t.width) > int64(len(t.data)) {
		return nil, fmt.Errorf("%w: metric trace range [%d, %d) extends past the trace chain", ErrBadFormat, index, index+size)
	}
	traces := make([]Trace, 0, size)
	for i := 0; i < size; i++ {
		traces = append(traces, t.decode(index+i))
	}
	return traces, nil
}

func (t traceTable) decode(i int) Trace {
	entry := t.data[i*t.width:]
	if t.width == 8 {
		return Trace{
			Flags:              BlockFlags(entry[4]),
			BlockOffset:        binread.Uint32(entry, 0),
			UsedBitfield:       entry[6],
			PrefetchedBitfield: entry[7],
		}
	}
	return Trace{
		Flags:              BlockFlags(entry[8]),
		BlockOffset:        binread.Uint32(entry, 4),
		UsedBitfield:       entry[10],
		PrefetchedBitfield: entry[11],
	}
}
