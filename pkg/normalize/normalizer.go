package normalize

import (
	"os"
	"path/filepath"
	"sort"
	"strings"

	"github.com/keboola/go-utils/pkg/orderedmap"
	"github.com/spf13/afero"
	"go.uber.org/zap"

	"github.com/anirudhbiyani/utcm-export/pkg/sanitize"
	"github.com/anirudhbiyani/utcm-export/pkg/snapshot"
)

// DefaultOutputDir is the default output root.
const DefaultOutputDir = "tenant_state"

// Normalizer writes snapshot payloads as YAML trees.
type Normalizer struct {
	fs     afero.Fs
	logger *zap.Logger
	prune  bool
}

// Option configures the Normalizer.
type Option func(*Normalizer)

// WithLogger sets the logger.
func WithLogger(l *zap.Logger) Option {
	return func(n *Normalizer) {
		n.logger = l
	}
}

// WithPrune enables removal of YAML files not produced by the current run.
// Existing files are then replaced in place instead of being deduplicated.
func WithPrune(prune bool) Option {
	return func(n *Normalizer) {
		n.prune = prune
	}
}

// New creates a Normalizer on fs.
func New(fs afero.Fs, opts ...Option) *Normalizer {
	n := &Normalizer{
		fs:     fs,
		logger: zap.NewNop(),
	}
	for _, opt := range opts {
		opt(n)
	}
	return n
}

// Result summarizes a run.
type Result struct {
	// Written lists output files in write order.
	Written []string

	// Pruned lists stale files removed before writing.
	Pruned []string

	// SkippedEntries counts resource entries that were not objects.
	SkippedEntries int

	// SkippedBlocks counts blocks that yielded no instance.
	SkippedBlocks int
}

// plannedFile is one output file decided during planning.
type plannedFile struct {
	path    string
	content *orderedmap.OrderedMap
}

type runPlan struct {
	dirs  []string
	files []plannedFile
}

// Normalize writes one YAML file per instance under root.
//
// Paths are allocated for the whole payload before anything is written,
// so a run never overwrites one of its own files.
func (n *Normalizer) Normalize(payload *Payload, root string) (*Result, error) {
	root = filepath.Clean(root)
	result := &Result{SkippedEntries: len(payload.Invalid)}
	for _, idx := range payload.Invalid {
		n.logger.Warn("skipping non-object resource entry", zap.Int("index", idx))
	}
	if len(payload.Blocks) == 0 && len(payload.Invalid) == 0 {
		n.logger.Warn("snapshot payload contains no resources")
	}

	var existing map[string]bool
	if n.prune {
		var err error
		if existing, err = n.collectOutputs(root); err != nil {
			return nil, err
		}
	}

	p, err := n.plan(payload, root, result)
	if err != nil {
		return nil, err
	}

	// Stale files go first so a file that differs from a planned path only
	// in case is never removed after the planned file replaced it.
	if n.prune {
		if err := n.pruneStale(root, existing, p, result); err != nil {
			return result, err
		}
	}
	if err := n.write(p, result); err != nil {
		return result, err
	}

	n.logger.Info("wrote YAML resource files",
		zap.Int("written", len(result.Written)),
		zap.Int("pruned", len(result.Pruned)),
		zap.String("root", root))
	return result, nil
}

func (n *Normalizer) plan(payload *Payload, root string, result *Result) (*runPlan, error) {
	alloc := NewPathAllocator(n.fs, !n.prune)
	p := &runPlan{}
	seenDirs := make(map[string]bool)

	for _, block := range payload.Blocks {
		workload, folder := FolderNames(block.ResourceType)
		dir := filepath.Join(root, workload, folder)
		if !seenDirs[dir] {
			seenDirs[dir] = true
			p.dirs = append(p.dirs, dir)
		}

		instances, strategy := ExtractInstances(block)
		if len(instances) == 0 {
			n.logger.Warn("no parseable instances",
				zap.String("resourceType", block.ResourceType),
				zap.Int("index", block.Index))
			result.SkippedBlocks++
			continue
		}
		n.logger.Debug("extracted instances",
			zap.String("resourceType", block.ResourceType),
			zap.String("strategy", strategy),
			zap.Int("count", len(instances)))

		for i, inst := range instances {
			name := sanitize.Filename(ResolveName(inst.Content, inst.SuggestedName, i+1))
			path, err := alloc.Claim(filepath.Join(dir, name+".yaml"))
			if err != nil {
				return nil, err
			}
			p.files = append(p.files, plannedFile{path: path, content: inst.Content})
		}
	}
	return p, nil
}

func (n *Normalizer) write(p *runPlan, result *Result) error {
	for _, dir := range p.dirs {
		if err := n.fs.MkdirAll(dir, 0o755); err != nil {
			return snapshot.ErrFilesystem("failed to create output directory").
				WithOperation("normalize").
				WithCause(err).
				WithDetail("path", dir)
		}
	}

	for _, f := range p.files {
		data, err := EncodeYAML(f.content)
		if err != nil {
			return snapshot.ErrMalformed("failed to encode instance as YAML").
				WithOperation("normalize").
				WithCause(err).
				WithDetail("path", f.path)
		}
		if err := afero.WriteFile(n.fs, f.path, data, os.FileMode(0o644)); err != nil {
			return snapshot.ErrFilesystem("failed to write output file").
				WithOperation("normalize").
				WithCause(err).
				WithDetail("path", f.path)
		}
		result.Written = append(result.Written, f.path)
	}
	return nil
}

// collectOutputs lists YAML files under root, outside the debug directory.
func (n *Normalizer) collectOutputs(root string) (map[string]bool, error) {
	files := make(map[string]bool)
	exists, err := afero.DirExists(n.fs, root)
	if err != nil {
		return nil, snapshot.ErrFilesystem("failed to stat output directory").
			WithOperation("normalize").
			WithCause(err).
			WithDetail("path", root)
	}
	if !exists {
		return files, nil
	}

	debugDir := filepath.Join(root, DebugDirName)
	err = afero.Walk(n.fs, root, func(path string, info os.FileInfo, err error) error {
		if err != nil {
			return err
		}
		if info.IsDir() {
			if path == debugDir {
				return filepath.SkipDir
			}
			return nil
		}
		if strings.EqualFold(filepath.Ext(path), ".yaml") {
			files[path] = true
		}
		return nil
	})
	if err != nil {
		return nil, snapshot.ErrFilesystem("failed to scan output directory").
			WithOperation("normalize").
			WithCause(err).
			WithDetail("path", root)
	}
	return files, nil
}

// pruneStale removes pre-existing YAML files whose exact path is not
// planned for this run and then any directory left empty, except root,
// the debug directory and directories of this run's blocks.
func (n *Normalizer) pruneStale(root string, existing map[string]bool, p *runPlan, result *Result) error {
	planned := make(map[string]bool, len(p.files))
	for _, f := range p.files {
		planned[f.path] = true
	}

	stale := make([]string, 0)
	for path := range existing {
		if !planned[path] {
			stale = append(stale, path)
		}
	}
	sort.Strings(stale)

	for _, path := range stale {
		if err := n.fs.Remove(path); err != nil {
			return snapshot.ErrFilesystem("failed to remove stale file").
				WithOperation("prune").
				WithCause(err).
				WithDetail("path", path)
		}
		n.logger.Debug("removed stale file", zap.String("path", path))
		result.Pruned = append(result.Pruned, path)
	}

	keep := map[string]bool{root: true, filepath.Join(root, DebugDirName): true}
	for _, dir := range p.dirs {
		keep[dir] = true
	}
	return n.removeEmptyDirs(root, keep)
}

func (n *Normalizer) removeEmptyDirs(root string, keep map[string]bool) error {
	exists, err := afero.DirExists(n.fs, root)
	if err != nil || !exists {
		return nil
	}

	var dirs []string
	debugDir := filepath.Join(root, DebugDirName)
	err = afero.Walk(n.fs, root, func(path string, info os.FileInfo, err error) error {
		if err != nil {
			return err
		}
		if info.IsDir() {
			if path == debugDir {
				return filepath.SkipDir
			}
			dirs = append(dirs, path)
		}
		return nil
	})
	if err != nil {
		return snapshot.ErrFilesystem("failed to scan output directory").
			WithOperation("prune").
			WithCause(err).
			WithDetail("path", root)
	}

	// Deepest first so parents can empty out.
	sort.Slice(dirs, func(i, j int) bool {
		return strings.Count(dirs[i], string(filepath.Separator)) > strings.Count(dirs[j], string(filepath.Separator))
	})
	for _, dir := range dirs {
		if keep[dir] {
			continue
		}
		empty, err := afero.IsEmpty(n.fs, dir)
		if err != nil || !empty {
			continue
		}
		if err := n.fs.Remove(dir); err != nil {
			return snapshot.ErrFilesystem("failed to remove empty directory").
				WithOperation("prune").
				WithCause(err).
				WithDetail("path", dir)
		}
		n.logger.Debug("removed empty directory", zap.String("path", dir))
	}
	return nil
}
