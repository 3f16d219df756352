package snapshot

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"sync"
	"time"
)

// JobRecord is a locally remembered snapshot job.
type JobRecord struct {
	ID          string    `json:"id"`
	DisplayName string    `json:"display_name"`
	Resources   []string  `json:"resources,omitempty"`
	CreatedAt   time.Time `json:"created_at"`

	// Owned is true when this tool created the job and false when an
	// already active job was adopted after a creation conflict.
	Owned bool `json:"owned"`
}

// JobLedger remembers which jobs this tool created or adopted.
// Cleanup uses it to avoid deleting jobs started by someone else.
type JobLedger interface {
	// Save stores a job record.
	Save(ctx context.Context, rec JobRecord) error

	// Get retrieves a job record by ID.
	Get(ctx context.Context, id string) (*JobRecord, error)

	// List returns all records ordered by creation time.
	List(ctx context.Context) ([]JobRecord, error)

	// Delete removes a record. Deleting a missing record is not an error.
	Delete(ctx context.Context, id string) error

	// Exists checks if a record exists.
	Exists(ctx context.Context, id string) (bool, error)
}

// LedgerVersion is the current schema version for the ledger file.
const LedgerVersion = 1

// LedgerData is the serializable ledger format.
type LedgerData struct {
	Version   int                  `json:"version"`
	Jobs      map[string]JobRecord `json:"jobs"`
	UpdatedAt time.Time            `json:"updated_at"`
}

func newLedgerData() LedgerData {
	return LedgerData{
		Version:   LedgerVersion,
		Jobs:      make(map[string]JobRecord),
		UpdatedAt: time.Now(),
	}
}

func sortedRecords(jobs map[string]JobRecord) []JobRecord {
	recs := make([]JobRecord, 0, len(jobs))
	for _, rec := range jobs {
		recs = append(recs, rec)
	}
	sort.Slice(recs, func(i, j int) bool {
		if recs[i].CreatedAt.Equal(recs[j].CreatedAt) {
			return recs[i].ID < recs[j].ID
		}
		return recs[i].CreatedAt.Before(recs[j].CreatedAt)
	})
	return recs
}

// MemoryJobLedger is an in-memory JobLedger.
type MemoryJobLedger struct {
	mu    sync.RWMutex
	state LedgerData
}

// NewMemoryJobLedger creates a new in-memory ledger.
func NewMemoryJobLedger() *MemoryJobLedger {
	return &MemoryJobLedger{state: newLedgerData()}
}

// Save implements JobLedger.
func (l *MemoryJobLedger) Save(ctx context.Context, rec JobRecord) error {
	l.mu.Lock()
	defer l.mu.Unlock()

	l.state.Jobs[rec.ID] = rec
	l.state.UpdatedAt = time.Now()
	return nil
}

// Get implements JobLedger.
func (l *MemoryJobLedger) Get(ctx context.Context, id string) (*JobRecord, error) {
	l.mu.RLock()
	defer l.mu.RUnlock()

	rec, exists := l.state.Jobs[id]
	if !exists {
		return nil, ErrNotFound("job record", id)
	}
	return &rec, nil
}

// List implements JobLedger.
func (l *MemoryJobLedger) List(ctx context.Context) ([]JobRecord, error) {
	l.mu.RLock()
	defer l.mu.RUnlock()

	return sortedRecords(l.state.Jobs), nil
}

// Delete implements JobLedger.
func (l *MemoryJobLedger) Delete(ctx context.Context, id string) error {
	l.mu.Lock()
	defer l.mu.Unlock()

	delete(l.state.Jobs, id)
	l.state.UpdatedAt = time.Now()
	return nil
}

// Exists implements JobLedger.
func (l *MemoryJobLedger) Exists(ctx context.Context, id string) (bool, error) {
	l.mu.RLock()
	defer l.mu.RUnlock()

	_, exists := l.state.Jobs[id]
	return exists, nil
}

// FileJobLedger is a JSON file backed JobLedger.
type FileJobLedger struct {
	mu       sync.RWMutex
	filePath string
	state    LedgerData
}

// NewFileJobLedger creates a file-based ledger, loading the file if it exists.
func NewFileJobLedger(filePath string) (*FileJobLedger, error) {
	l := &FileJobLedger{
		filePath: filePath,
		state:    newLedgerData(),
	}

	if err := l.load(); err != nil && !os.IsNotExist(err) {
		return nil, ErrConfig("failed to load job ledger").
			WithCause(err).
			WithDetail("path", filePath)
	}

	return l, nil
}

func (l *FileJobLedger) load() error {
	data, err := os.ReadFile(l.filePath)
	if err != nil {
		return err
	}

	var state LedgerData
	if err := json.Unmarshal(data, &state); err != nil {
		return fmt.Errorf("invalid ledger file format: %w", err)
	}
	if state.Version > LedgerVersion {
		return fmt.Errorf("ledger version %d is newer than supported version %d", state.Version, LedgerVersion)
	}
	state.Version = LedgerVersion
	if state.Jobs == nil {
		state.Jobs = make(map[string]JobRecord)
	}

	l.state = state
	return nil
}

// save writes the ledger atomically.
func (l *FileJobLedger) save() error {
	l.state.UpdatedAt = time.Now()

	data, err := json.MarshalIndent(l.state, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to marshal job ledger: %w", err)
	}

	if err := os.MkdirAll(filepath.Dir(l.filePath), 0o700); err != nil {
		return ErrFilesystem("failed to create job ledger directory").WithCause(err)
	}

	tmpFile := l.filePath + ".tmp"
	if err := os.WriteFile(tmpFile, data, 0o600); err != nil {
		return ErrFilesystem("failed to write temp job ledger").WithCause(err)
	}
	if err := os.Rename(tmpFile, l.filePath); err != nil {
		_ = os.Remove(tmpFile)
		return ErrFilesystem("failed to rename job ledger").WithCause(err)
	}
	return nil
}

// Save implements JobLedger.
func (l *FileJobLedger) Save(ctx context.Context, rec JobRecord) error {
	l.mu.Lock()
	defer l.mu.Unlock()

	l.state.Jobs[rec.ID] = rec
	return l.save()
}

// Get implements JobLedger.
func (l *FileJobLedger) Get(ctx context.Context, id string) (*JobRecord, error) {
	l.mu.RLock()
	defer l.mu.RUnlock()

	rec, exists := l.state.Jobs[id]
	if !exists {
		return nil, ErrNotFound("job record", id)
	}
	return &rec, nil
}

// List implements JobLedger.
func (l *FileJobLedger) List(ctx context.Context) ([]JobRecord, error) {
	l.mu.RLock()
	defer l.mu.RUnlock()

	return sortedRecords(l.state.Jobs), nil
}

// Delete implements JobLedger.
func (l *FileJobLedger) Delete(ctx context.Context, id string) error {
	l.mu.Lock()
	defer l.mu.Unlock()

	if _, exists := l.state.Jobs[id]; !exists {
		return nil
	}
	delete(l.state.Jobs, id)
	return l.save()
}

// Exists implements JobLedger.
func (l *FileJobLedger) Exists(ctx context.Context, id string) (bool, error) {
	l.mu.RLock()
	defer l.mu.RUnlock()

	_, exists := l.state.Jobs[id]
	return exists, nil
}

// DefaultLedgerPath returns the default path for the job ledger file.
func DefaultLedgerPath() string {
	home, err := os.UserHomeDir()
	if err != nil {
		home = "."
	}
	return filepath.Join(home, ".utcm-export", "jobs.json")
}
