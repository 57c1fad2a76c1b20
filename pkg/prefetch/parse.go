package prefetch

import (
	"bytes"
	"errors"
	"fmt"
	"hash/crc32"
	"io"
	"strconv"
	"strings"

	"github.com/ForensicRS/frnsc-prefetch/internal/binread"
	"github.com/ForensicRS/frnsc-prefetch/internal/logger"
	"github.com/ForensicRS/frnsc-prefetch/pkg/compression"
	"github.com/ForensicRS/frnsc-prefetch/pkg/notify"
	"github.com/ForensicRS/frnsc-prefetch/pkg/prefetch/vfs"
)

// SizeLimit is the maximum accepted on-disk size of a prefetch file.
// Real prefetch files stay well below this; anything larger is treated as
// tampered.
const SizeLimit = 1_000_000

// Dir is the prefetch directory of a Windows installation.
const Dir = `C:\Windows\Prefetch`

// compressedSignature is the MAM container magic in the low 24 bits of
// the first word.
const compressedSignature = uint32('M') | uint32('A')<<8 | uint32('M')<<16

var sccaSignature = []byte("SCCA")

var (
	// ErrBadFormat indicates data that violates the prefetch format:
	// signature mismatch, out-of-bounds table, CRC failure, broken
	// compression envelope.
	ErrBadFormat = errors.New("invalid prefetch data")

	// ErrSizeLimit indicates a file above SizeLimit. It wraps
	// ErrBadFormat: an oversized prefetch is malformed by definition.
	ErrSizeLimit = fmt.Errorf("%w: file size is abnormally large", ErrBadFormat)

	// ErrUnknownVersion indicates a layout version other than 17, 23, 26
	// or 30.
	ErrUnknownVersion = errors.New("unknown prefetch version")
)

// ParseMetrics counts parse outcomes. Satisfied by metrics.Recorder;
// a nil value disables counting.
type ParseMetrics interface {
	ObserveParsed()
	ObserveFailed()
}

// Parser parses prefetch artifacts. The zero value is not usable; call
// New. Parsers are stateless and safe for concurrent use.
type Parser struct {
	notifier notify.Sink
	metrics  ParseMetrics
}

// Option configures a Parser.
type Option func(*Parser)

// WithNotifier routes advisory notifications to sink instead of the
// default log-backed sink. A nil sink drops them.
func WithNotifier(sink notify.Sink) Option {
	return func(p *Parser) { p.notifier = sink }
}

// WithMetrics counts parse outcomes on m.
func WithMetrics(m ParseMetrics) Option {
	return func(p *Parser) { p.metrics = m }
}

// New returns a Parser. Without options, notifications go to the
// structured logger and no metrics are recorded.
func New(opts ...Option) *Parser {
	p := &Parser{notifier: notify.LogSink{}}
	for _, opt := range opts {
		opt(p)
	}
	return p
}

// Parse parses a prefetch file from its raw bytes, autodetecting the
// compressed MAM container by its signature. The artifact name (the .pf
// filename) is used to cross-check the stored executable name and hash;
// disagreement is reported through the notification sink, not as an
// error.
func Parse(artifactName string, data []byte) (*Record, error) {
	return New().Parse(artifactName, data)
}

// Parse parses a prefetch file from its raw bytes, autodetecting
// compression.
func (p *Parser) Parse(artifactName string, data []byte) (*Record, error) {
	if isCompressed(data) {
		return p.ParseCompressed(artifactName, data)
	}
	return p.ParseUncompressed(artifactName, data)
}

func isCompressed(data []byte) bool {
	return len(data) >= 3 && data[0] == 'M' && data[1] == 'A' && data[2] == 'M'
}

// ParseCompressed parses a MAM-wrapped prefetch file: it validates the
// 8-byte envelope, verifies the optional CRC32, decompresses the payload
// and parses the plaintext.
func (p *Parser) ParseCompressed(artifactName string, data []byte) (*Record, error) {
	if len(data) > SizeLimit {
		p.notifyOversized(artifactName)
		return nil, ErrSizeLimit
	}
	if len(data) < 8 {
		return nil, fmt.Errorf("%w: truncated compression header", ErrBadFormat)
	}

	signature := binread.Uint32(data, 0)
	uncompressedSize := binread.Uint32(data, 4)
	payload := data[8:]

	if signature&0x00FFFFFF != compressedSignature {
		return nil, fmt.Errorf("%w: invalid compression signature %#x", ErrBadFormat, signature)
	}
	algorithm := compression.Algorithm((signature >> 24) & 0x0F)

	if crcFlag := (signature >> 28) & 0x0F; crcFlag > 0 {
		if len(payload) < 4 {
			return nil, fmt.Errorf("%w: truncated CRC", ErrBadFormat)
		}
		stored := binread.Uint32(payload, 0)
		h := crc32.NewIEEE()
		h.Write(data[0:8])
		h.Write([]byte{0, 0, 0, 0})
		h.Write(payload[4:])
		if computed := h.Sum32(); computed != stored {
			notify.Emit(p.notifier, notify.Notification{
				Type:     notify.AntiForensicsDetected,
				Artifact: artifactName,
				Message:  fmt.Sprintf("invalid CRC for prefetch: expected=%d obtained=%d", stored, computed),
			})
			return nil, fmt.Errorf("%w: CRC mismatch", ErrBadFormat)
		}
		payload = payload[4:]
	}

	plaintext, err := compression.Decompress(algorithm, payload, int(uncompressedSize))
	if err != nil {
		return nil, fmt.Errorf("%w: decompress %s: %v", ErrBadFormat, algorithm, err)
	}
	return p.parseBody(artifactName, plaintext)
}

// ParseUncompressed parses a plaintext (never-compressed or already
// unwrapped) prefetch file.
func (p *Parser) ParseUncompressed(artifactName string, data []byte) (*Record, error) {
	if len(data) > SizeLimit {
		p.notifyOversized(artifactName)
		return nil, ErrSizeLimit
	}
	return p.parseBody(artifactName, data)
}

func (p *Parser) notifyOversized(artifactName string) {
	notify.Emit(p.notifier, notify.Notification{
		Type:     notify.AntiForensicsDetected,
		Artifact: artifactName,
		Message:  "prefetch file size is abnormally large",
	})
}

// parseBody parses the plaintext layout: common header, version-specific
// file information, then the metrics, trace-chain and volume tables.
func (p *Parser) parseBody(artifactName string, buf []byte) (*Record, error) {
	if len(buf) < 84 {
		return nil, fmt.Errorf("%w: file too short for the prefetch header", ErrBadFormat)
	}
	version := binread.Uint32(buf, 0)
	if !bytes.Equal(buf[4:8], sccaSignature) {
		return nil, fmt.Errorf("%w: missing SCCA signature", ErrBadFormat)
	}

	executableName := binread.DecodeUTF16(buf[16:76])
	hash := binread.Uint32(buf, 76)
	p.checkArtifactName(artifactName, executableName, hash)

	info, err := readFileInformation(version, buf[84:])
	if err != nil {
		if errors.Is(err, ErrUnknownVersion) {
			notify.Emit(p.notifier, notify.Notification{
				Type:     notify.Informational,
				Artifact: artifactName,
				Message:  fmt.Sprintf("the prefetch version is unknown: %d", version),
			})
		}
		return nil, err
	}

	traces, err := newTraceTable(buf, &info, version)
	if err != nil {
		return nil, err
	}
	metrics, err := p.walkMetrics(artifactName, buf, &info, version, traces)
	if err != nil {
		return nil, err
	}
	volumes, err := walkVolumes(buf, &info, version)
	if err != nil {
		return nil, err
	}

	return &Record{
		Version:        version,
		ExecutableName: executableName,
		Hash:           hash,
		RunCount:       info.runCount,
		LastRunTimes:   info.lastRunTimes,
		Metrics:        metrics,
		TraceChain:     traces.All(),
		Volumes:        volumes,
	}, nil
}

// checkArtifactName cross-checks the .pf filename against the stored
// executable name and hash. A prefetch is named NAME-XXXXXXXX.pf where
// XXXXXXXX is the hex path hash; either disagreeing with the body is a
// tamper indicator, but never a parse error.
func (p *Parser) checkArtifactName(artifactName, executableName string, hash uint32) {
	if !strings.HasSuffix(artifactName, ".pf") {
		return
	}
	expectedName, expectedHash, err := splitArtifactName(artifactName)
	if err != nil {
		logger.Info("unparseable prefetch artifact name", "artifact", artifactName, "error", err)
		return
	}
	if expectedName != executableName {
		notify.Emit(p.notifier, notify.Notification{
			Type:     notify.AntiForensicsDetected,
			Artifact: artifactName,
			Message:  fmt.Sprintf("invalid prefetch executable name expected=%s found=%s", expectedName, executableName),
		})
	}
	if expectedHash != hash {
		notify.Emit(p.notifier, notify.Notification{
			Type:     notify.AntiForensicsDetected,
			Artifact: artifactName,
			Message:  fmt.Sprintf("invalid prefetch hash expected=%08X found=%08X", expectedHash, hash),
		})
	}
}

// splitArtifactName splits NAME-XXXXXXXX.pf into the executable name and
// the hash. The last dash separates them: executable names may contain
// dashes of their own.
func splitArtifactName(name string) (string, uint32, error) {
	name = strings.TrimSuffix(name, ".pf")
	i := strings.LastIndexByte(name, '-')
	if i < 0 {
		return "", 0, fmt.Errorf("%w: artifact name has no hash segment", ErrBadFormat)
	}
	hash, err := strconv.ParseUint(name[i+1:], 16, 32)
	if err != nil {
		return "", 0, fmt.Errorf("%w: artifact hash segment: %v", ErrBadFormat, err)
	}
	return name[:i], uint32(hash), nil
}

// ReadFile reads and parses one artifact from an open handle. The size is
// checked against SizeLimit before anything is read.
func (p *Parser) ReadFile(artifactName string, f vfs.File) (*Record, error) {
	rec, err := p.readFile(artifactName, f)
	if p.metrics != nil {
		if err != nil {
			p.metrics.ObserveFailed()
		} else {
			p.metrics.ObserveParsed()
		}
	}
	return rec, err
}

func (p *Parser) readFile(artifactName string, f vfs.File) (*Record, error) {
	size, err := f.Size()
	if err != nil {
		return nil, fmt.Errorf("stat prefetch %s: %w", artifactName, err)
	}
	if size > SizeLimit {
		p.notifyOversized(artifactName)
		return nil, ErrSizeLimit
	}
	if _, err := f.Seek(0, io.SeekStart); err != nil {
		return nil, fmt.Errorf("seek prefetch %s: %w", artifactName, err)
	}
	data, err := io.ReadAll(f)
	if err != nil {
		return nil, fmt.Errorf("read prefetch %s: %w", artifactName, err)
	}
	return p.Parse(artifactName, data)
}

// ReadDirectory parses every .pf file in the Windows prefetch directory
// of fs. One file failing to parse is logged and skipped; a missing
// prefetch directory aborts with an anti-forensics notification, since
// normal systems always have one.
func (p *Parser) ReadDirectory(fs vfs.FileSystem) ([]*Record, error) {
	entries, err := fs.ReadDir(Dir)
	if err != nil {
		notify.Emit(p.notifier, notify.Notification{
			Type:    notify.AntiForensicsDetected,
			Message: "no prefetch found",
		})
		return nil, err
	}

	records := make([]*Record, 0, len(entries))
	for _, entry := range entries {
		if entry.IsDir || !strings.HasSuffix(entry.Name, ".pf") {
			continue
		}
		rec, err := p.readDirEntry(fs, entry.Name)
		if err != nil {
			logger.Info("error processing prefetch", "artifact", entry.Name, "error", err)
			continue
		}
		records = append(records, rec)
	}
	return records, nil
}

func (p *Parser) readDirEntry(fs vfs.FileSystem, name string) (*Record, error) {
	f, err := fs.Open(vfs.Join(Dir, name))
	if err != nil {
		if p.metrics != nil {
			p.metrics.ObserveFailed()
		}
		return nil, fmt.Errorf("open prefetch %s: %w", name, err)
	}
	defer f.Close()
	return p.ReadFile(name, f)
}
