package prefetch

import (
	"fmt"
	"strings"

	"github.com/ForensicRS/frnsc-prefetch/internal/binread"
	"github.com/ForensicRS/frnsc-prefetch/pkg/notify"
)

// metricRecordWidth returns the metrics-array record size for a layout
// version: 20 bytes for v17, 32 bytes afterwards.
func metricRecordWidth(version uint32) int {
	if version == 17 {
		return 20
	}
	return 32
}

// walkMetrics parses the metrics array, resolving each dependency
// filename from the string table and linking its trace sub-range.
func (p *Parser) walkMetrics(artifact string, buf []byte, info *fileInformation, version uint32, traces traceTable) ([]Metric, error) {
	width := metricRecordWidth(version)

	stringsEnd := int64(info.filenameStringOffset) + int64(info.filenameStringSize)
	if stringsEnd > int64(len(buf)) {
		return nil, fmt.Errorf("%w: filename string table extends past the file buffer", ErrBadFormat)
	}
	metricsEnd := int64(info.metricsOffset) + int64(info.metricsCount)*int64(width)
	if metricsEnd > int64(len(buf)) {
		return nil, fmt.Errorf("%w: metrics array extends past the file buffer", ErrBadFormat)
	}

	stringTable := buf[info.filenameStringOffset:stringsEnd]
	metricData := buf[info.metricsOffset:metricsEnd]

	metrics := make([]Metric, 0, info.metricsCount)
	for i := 0; i < int(info.metricsCount); i++ {
		entry := metricData[i*width : (i+1)*width]

		traceIndex := binread.Uint32(entry, 0)
		traceSize := binread.Uint32(entry, 4)

		var blocksToPrefetch, filenameOffset, filenameLength, flags uint32
		if width == 20 {
			// v17 has no dedicated blocks field; the trace size doubles
			// as the number of blocks to prefetch.
			blocksToPrefetch = traceSize
			filenameOffset = binread.Uint32(entry, 8)
			filenameLength = binread.Uint32(entry, 12)
			flags = binread.Uint32(entry, 16)
		} else {
			blocksToPrefetch = binread.Uint32(entry, 8)
			filenameOffset = binread.Uint32(entry, 12)
			filenameLength = binread.Uint32(entry, 16)
			flags = binread.Uint32(entry, 20)
		}

		file, err := binread.UTF16At(stringTable, int(filenameOffset), int(filenameLength))
		if err != nil {
			return nil, fmt.Errorf("%w: metric %d filename: %v", ErrBadFormat, i, err)
		}
		metricTraces, err := traces.Slice(int(traceIndex), int(traceSize))
		if err != nil {
			return nil, err
		}

		metric := Metric{
			File:             file,
			Flags:            MetricFlags(flags),
			BlocksToPrefetch: blocksToPrefetch,
			Traces:           metricTraces,
		}
		p.checkMetricAnomaly(artifact, &metric)
		metrics = append(metrics, metric)
	}
	return metrics, nil
}

// checkMetricAnomaly flags resource files that carry executable memory
// blocks: an .NLS or .RES dependency has no business being mapped
// executable.
func (p *Parser) checkMetricAnomaly(artifact string, m *Metric) {
	if !isResourceFile(m.File) {
		return
	}
	if m.HasExecutableBlock() {
		notify.Emit(p.notifier, notify.Notification{
			Type:     notify.SuspiciousArtifact,
			Artifact: artifact,
			Message:  fmt.Sprintf("the loaded file %s should not have executable blocks", m.File),
		})
	}
}

func isResourceFile(file string) bool {
	return strings.HasSuffix(file, ".NLS") || strings.HasSuffix(file, ".RES")
}
