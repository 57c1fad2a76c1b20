// Package prefetch parses Windows Prefetch (.pf) files into structured
// forensic records.
//
// A prefetch file records the dependencies, memory-block trace chains,
// volume references, and execution times of one program. Four on-disk
// layouts exist: version 17 (Windows XP-7), 23 (Windows 8), 26
// (Windows 8.1), and 30 (Windows 10+, usually inside a compressed MAM
// container). The parser materializes a Record in one pass over the file
// bytes; records are immutable afterwards.
package prefetch

import (
	"strings"
	"time"
)

// Program-block flags: the default treatment of a dependency's blocks.
const (
	// FlagProgramBlockExecutable marks blocks loaded into executable
	// memory sections.
	FlagProgramBlockExecutable uint32 = 0x0200
	// FlagProgramBlockResource marks blocks loaded as resources.
	FlagProgramBlockResource uint32 = 0x0002
	// FlagProgramBlockDontPrefetch marks blocks pulled from disk instead
	// of prefetched.
	FlagProgramBlockDontPrefetch uint32 = 0x0001
)

// Block flags: per memory-block treatment inside a trace chain.
const (
	// FlagBlockExecutable marks a block loaded into an executable section.
	FlagBlockExecutable uint8 = 0x02
	// FlagBlockResource marks a block loaded as a resource.
	FlagBlockResource uint8 = 0x04
	// FlagBlockForcePrefetch marks a block always prefetched.
	FlagBlockForcePrefetch uint8 = 0x08
	// FlagBlockDontPrefetch marks a block pulled from disk.
	FlagBlockDontPrefetch uint8 = 0x01
)

// Filetime is a Windows FILETIME: 100-nanosecond ticks since
// 1601-01-01 UTC.
type Filetime uint64

// filetimeEpochDelta is the seconds between 1601-01-01 and 1970-01-01.
const filetimeEpochDelta = 11644473600

// Time converts the tick count to a time.Time in UTC. The zero Filetime
// converts to the zero time.
func (ft Filetime) Time() time.Time {
	if ft == 0 {
		return time.Time{}
	}
	secs := int64(ft/10_000_000) - filetimeEpochDelta
	nanos := int64(ft%10_000_000) * 100
	return time.Unix(secs, nanos).UTC()
}

// Record is one parsed prefetch file.
type Record struct {
	// Version is the on-disk layout version: 17, 23, 26 or 30.
	Version uint32
	// ExecutableName is the short name stored in the header (at most 29
	// characters).
	ExecutableName string
	// Hash is the executable-path hash stored in the header. It normally
	// matches the hex segment of the artifact filename.
	Hash uint32
	// RunCount is the number of recorded executions.
	RunCount uint32
	// LastRunTimes holds up to eight execution times, most recent first.
	// Zero slots are elided.
	LastRunTimes []Filetime
	// Metrics lists the dependencies the executable loaded, in on-disk
	// order.
	Metrics []Metric
	// TraceChain is the file-level memory-block trace table. Each metric
	// references a contiguous sub-range of it.
	TraceChain []Trace
	// Volumes describes the volumes the dependencies live on.
	Volumes []VolumeInformation
}

// Metric is one dependency load record.
type Metric struct {
	// File is the NT-style path of the dependency, for example
	// \VOLUME{01d962d37536cd21-a2691d2c}\WINDOWS\SYSTEM32\NTDLL.DLL.
	File string
	// Flags is the default block treatment for this dependency.
	Flags MetricFlags
	// BlocksToPrefetch is the number of blocks to prefetch.
	BlocksToPrefetch uint32
	// Traces is this dependency's sub-range of the trace chain.
	Traces []Trace
}

// HasExecutableBlock reports whether any trace of the metric carries the
// executable block flag.
func (m *Metric) HasExecutableBlock() bool {
	for _, t := range m.Traces {
		if t.Flags.IsExecutable() {
			return true
		}
	}
	return false
}

// Trace is one memory-block descriptor.
type Trace struct {
	Flags       BlockFlags
	BlockOffset uint32
	// UsedBitfield records whether the block was used in each of the last
	// eight runs, one bit per run.
	UsedBitfield uint8
	// PrefetchedBitfield records whether the block was prefetched in each
	// of the last eight runs.
	PrefetchedBitfield uint8
}

// MetricFlags is the program-block flag set of a dependency.
type MetricFlags uint32

// IsExecutable reports the executable-section default.
func (f MetricFlags) IsExecutable() bool { return uint32(f)&FlagProgramBlockExecutable != 0 }

// IsResource reports the resource default.
func (f MetricFlags) IsResource() bool { return uint32(f)&FlagProgramBlockResource != 0 }

// IsNotPrefetched reports the pull-from-disk default.
func (f MetricFlags) IsNotPrefetched() bool { return uint32(f)&FlagProgramBlockDontPrefetch != 0 }

// String renders the flags compactly: X (executable), R (resource),
// D (don't prefetch), or - when none are set.
func (f MetricFlags) String() string {
	var b strings.Builder
	if f.IsExecutable() {
		b.WriteByte('X')
	}
	if f.IsResource() {
		b.WriteByte('R')
	}
	if f.IsNotPrefetched() {
		b.WriteByte('D')
	}
	if b.Len() == 0 {
		return "-"
	}
	return b.String()
}

// BlockFlags is the block-scope flag set of a trace record.
type BlockFlags uint8

// IsExecutable reports the executable-section flag.
func (f BlockFlags) IsExecutable() bool { return uint8(f)&FlagBlockExecutable != 0 }

// IsResource reports the resource flag.
func (f BlockFlags) IsResource() bool { return uint8(f)&FlagBlockResource != 0 }

// IsForcePrefetch reports the forced-prefetch flag.
func (f BlockFlags) IsForcePrefetch() bool { return uint8(f)&FlagBlockForcePrefetch != 0 }

// IsNotPrefetched reports the pull-from-disk flag.
func (f BlockFlags) IsNotPrefetched() bool { return uint8(f)&FlagBlockDontPrefetch != 0 }

// String renders the flags compactly: X, R, F, D, or - when none are set.
func (f BlockFlags) String() string {
	var b strings.Builder
	if f.IsExecutable() {
		b.WriteByte('X')
	}
	if f.IsResource() {
		b.WriteByte('R')
	}
	if f.IsForcePrefetch() {
		b.WriteByte('F')
	}
	if f.IsNotPrefetched() {
		b.WriteByte('D')
	}
	if b.Len() == 0 {
		return "-"
	}
	return b.String()
}

// VolumeInformation describes one volume referenced by the prefetch.
type VolumeInformation struct {
	DevicePath   string
	CreationTime Filetime
	SerialNumber uint32
	// FileReferences are the NTFS file references recorded for the
	// volume. Entries with a zero MFT entry are dropped during parsing.
	FileReferences []NtfsFileRef
	// DirectoryStrings are the NT-style directory paths recorded for the
	// volume.
	DirectoryStrings []string
}

// NtfsFileRef identifies a file on an NTFS volume.
type NtfsFileRef struct {
	// MFTEntry is the 48-bit master file table entry number.
	MFTEntry uint64
	// SequenceNumber is the 16-bit reuse counter of the entry.
	SequenceNumber uint16
}

// ExecutablePath returns the full path of the executable: the first
// metric whose basename equals the executable name. Falls back to the
// bare executable name when no metric matches.
func (r *Record) ExecutablePath() string {
	for i := range r.Metrics {
		file := r.Metrics[i].File
		if basename(file) == r.ExecutableName {
			return file
		}
	}
	return r.ExecutableName
}

// User infers which user ran the program by scanning the volume directory
// strings for a profile path of the form \<drive>\USERS\<user>\APPDATA.
// Matching is case-sensitive, as the strings are stored upper-case on
// disk. Returns "" when no profile path is present. The inference is a
// heuristic, not an authoritative attribution.
func (r *Record) User() string {
	for i := range r.Volumes {
		for _, dir := range r.Volumes[i].DirectoryStrings {
			if !strings.HasPrefix(dir, `\`) {
				continue
			}
			parts := strings.Split(dir[1:], `\`)
			if len(parts) < 4 {
				continue
			}
			if parts[1] != "USERS" || parts[3] != "APPDATA" {
				continue
			}
			return parts[2]
		}
	}
	return ""
}

func basename(path string) string {
	if i := strings.LastIndexByte(path, '\\'); i >= 0 {
		return path[i+1:]
	}
	return path
}
