package vfs

import (
	"os"
	"path/filepath"
)

// OS is a FileSystem over the host filesystem. Paths are passed to the os
// package as given, so it only resolves Windows-style paths on Windows.
type OS struct{}

// NewOS returns a host-filesystem FileSystem.
func NewOS() OS { return OS{} }

// ReadDir implements FileSystem.
func (OS) ReadDir(path string) ([]DirEntry, error) {
	entries, err := os.ReadDir(path)
	if err != nil {
		return nil, err
	}
	out := make([]DirEntry, 0, len(entries))
	for _, e := range entries {
		out = append(out, DirEntry{Name: e.Name(), IsDir: e.IsDir()})
	}
	return out, nil
}

// Open implements FileSystem.
func (OS) Open(path string) (File, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	return osFile{f}, nil
}

type osFile struct {
	*os.File
}

func (f osFile) Size() (int64, error) {
	info, err := f.Stat()
	if err != nil {
		return 0, err
	}
	return info.Size(), nil
}

// Chroot maps Windows-style paths onto a directory of the host
// filesystem, the layout an extracted disk image uses: `C:\Windows` under
// root becomes `<root>/C/Windows`.
type Chroot struct {
	root string
}

// NewChroot returns a FileSystem rooted at the given host directory.
func NewChroot(root string) Chroot {
	return Chroot{root: root}
}

func (c Chroot) translate(path string) string {
	parts := splitWindowsPath(path)
	return filepath.Join(append([]string{c.root}, parts...)...)
}

// ReadDir implements FileSystem.
func (c Chroot) ReadDir(path string) ([]DirEntry, error) {
	return OS{}.ReadDir(c.translate(path))
}

// Open implements FileSystem.
func (c Chroot) Open(path string) (File, error) {
	return OS{}.Open(c.translate(path))
}
