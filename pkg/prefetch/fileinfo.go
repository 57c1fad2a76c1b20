package prefetch

import (
	"fmt"

	"github.com/ForensicRS/frnsc-prefetch/internal/binread"
)

// fileInformation is the version-dependent struct that follows the common
// 84-byte header. The nine table offsets/sizes sit at the same positions
// in every version; run times and run count move around.
type fileInformation struct {
	metricsOffset        uint32
	metricsCount         uint32
	traceChainOffset     uint32
	traceChainCount      uint32
	filenameStringOffset uint32
	filenameStringSize   uint32
	volumeInfoOffset     uint32
	volumeCount          uint32
	volumeInfoSize       uint32
	lastRunTimes         []Filetime
	runCount             uint32
}

// v30MetricsOffsetV1 discriminates the two sub-layouts of version 30:
// a metrics offset of 304 means the v1 layout. This heuristic is the only
// known discriminator.
const v30MetricsOffsetV1 = 304

// readFileInformation parses the file-information struct. buf starts at
// file offset 84.
func readFileInformation(version uint32, buf []byte) (fileInformation, error) {
	info := fileInformation{
		metricsOffset:        binread.Uint32(buf, 0),
		metricsCount:         binread.Uint32(buf, 4),
		traceChainOffset:     binread.Uint32(buf, 8),
		traceChainCount:      binread.Uint32(buf, 12),
		filenameStringOffset: binread.Uint32(buf, 16),
		filenameStringSize:   binread.Uint32(buf, 20),
		volumeInfoOffset:     binread.Uint32(buf, 24),
		volumeCount:          binread.Uint32(buf, 28),
		volumeInfoSize:       binread.Uint32(buf, 32),
	}

	switch version {
	case 17:
		info.lastRunTimes = runTimes(buf, 36, 1)
		info.runCount = binread.Uint32(buf, 60)
	case 23:
		info.lastRunTimes = runTimes(buf, 44, 1)
		info.runCount = binread.Uint32(buf, 68)
	case 26:
		info.lastRunTimes = runTimes(buf, 44, 8)
		info.runCount = binread.Uint32(buf, 124)
	case 30:
		info.lastRunTimes = runTimes(buf, 44, 8)
		if info.metricsOffset == v30MetricsOffsetV1 {
			info.runCount = binread.Uint32(buf, 124)
		} else {
			info.runCount = binread.Uint32(buf, 116)
		}
	default:
		return info, fmt.Errorf("%w: %d", ErrUnknownVersion, version)
	}
	return info, nil
}

// runTimes reads up to count FILETIME slots starting at pos, dropping
// zero entries. The stored order (most recent first) is preserved.
func runTimes(buf []byte, pos, count int) []Filetime {
	times := make([]Filetime, 0, count)
	for i := 0; i < count; i++ {
		t := binread.Uint64(buf, pos+i*8)
		if t == 0 {
			continue
		}
		times = append(times, Filetime(t))
	}
	return times
}
