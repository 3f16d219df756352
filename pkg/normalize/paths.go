package normalize

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/spf13/afero"

	"github.com/anirudhbiyani/utcm-export/pkg/snapshot"
)

// PathAllocator hands out unique output paths for one run.
// A path is taken once claimed in this run and, unless existing files are
// being replaced, also when it already exists on disk. Paths are compared
// case-insensitively so names differing only in case never share a file
// on case-insensitive file systems.
type PathAllocator struct {
	fs              afero.Fs
	claimed         map[string]bool
	onDisk          map[string]map[string]bool
	respectExisting bool
}

// NewPathAllocator creates an allocator. With respectExisting set, files
// already on disk are never chosen.
func NewPathAllocator(fs afero.Fs, respectExisting bool) *PathAllocator {
	return &PathAllocator{
		fs:              fs,
		claimed:         make(map[string]bool),
		onDisk:          make(map[string]map[string]bool),
		respectExisting: respectExisting,
	}
}

// Claim returns path, or the first free "<stem>_<n><ext>" variant for n >= 2.
func (a *PathAllocator) Claim(path string) (string, error) {
	ext := filepath.Ext(path)
	stem := strings.TrimSuffix(path, ext)

	candidate := path
	for n := 2; ; n++ {
		taken, err := a.taken(candidate)
		if err != nil {
			return "", err
		}
		if !taken {
			a.claimed[pathKey(candidate)] = true
			return candidate, nil
		}
		candidate = fmt.Sprintf("%s_%d%s", stem, n, ext)
	}
}

func (a *PathAllocator) taken(path string) (bool, error) {
	if a.claimed[pathKey(path)] {
		return true, nil
	}
	if !a.respectExisting {
		return false, nil
	}
	names, err := a.existingNames(filepath.Dir(path))
	if err != nil {
		return false, err
	}
	return names[strings.ToLower(filepath.Base(path))], nil
}

// existingNames returns the lower-cased entry names of dir, read once.
func (a *PathAllocator) existingNames(dir string) (map[string]bool, error) {
	if names, ok := a.onDisk[dir]; ok {
		return names, nil
	}
	names := make(map[string]bool)
	infos, err := afero.ReadDir(a.fs, dir)
	if err != nil && !os.IsNotExist(err) {
		return nil, snapshot.ErrFilesystem("failed to check output path").
			WithCause(err).
			WithDetail("path", dir)
	}
	for _, info := range infos {
		names[strings.ToLower(info.Name())] = true
	}
	a.onDisk[dir] = names
	return names, nil
}

// pathKey is the comparison key for output paths.
func pathKey(path string) string {
	return strings.ToLower(filepath.Clean(path))
}

// DedupePath returns path if it does not exist, otherwise the first
// "<stem>_<n><ext>" that does not exist, starting at n = 2.
func DedupePath(fs afero.Fs, path string) (string, error) {
	return NewPathAllocator(fs, true).Claim(path)
}
