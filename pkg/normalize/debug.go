package normalize

import (
	"bytes"
	"encoding/json"
	"os"
	"path/filepath"
	"time"

	"github.com/spf13/afero"

	"github.com/anirudhbiyani/utcm-export/pkg/snapshot"
)

// DebugDirName is the output subdirectory for raw snapshot dumps.
// Pruning never touches it.
const DebugDirName = "_debug"

// DebugDumpPath returns the default dump path under root.
func DebugDumpPath(root string, now time.Time) string {
	return filepath.Join(root, DebugDirName, "snapshot_"+now.UTC().Format("20060102T150405Z")+".json")
}

// WriteDebugDump writes the raw snapshot as indented JSON with sorted keys.
func WriteDebugDump(fs afero.Fs, path string, raw []byte) error {
	dec := json.NewDecoder(bytes.NewReader(raw))
	dec.UseNumber()
	var doc interface{}
	if err := dec.Decode(&doc); err != nil {
		return snapshot.ErrMalformed("snapshot payload is not valid JSON").
			WithOperation("debug_dump").
			WithCause(err)
	}

	// encoding/json sorts map keys.
	data, err := json.MarshalIndent(doc, "", "  ")
	if err != nil {
		return snapshot.ErrMalformed("failed to encode debug dump").WithOperation("debug_dump").WithCause(err)
	}
	data = append(data, '\n')

	if err := fs.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return snapshot.ErrFilesystem("failed to create debug directory").
			WithOperation("debug_dump").
			WithCause(err).
			WithDetail("path", path)
	}
	if err := afero.WriteFile(fs, path, data, os.FileMode(0o644)); err != nil {
		return snapshot.ErrFilesystem("failed to write debug dump").
			WithOperation("debug_dump").
			WithCause(err).
			WithDetail("path", path)
	}
	return nil
}
