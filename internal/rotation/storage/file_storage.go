package storage

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"
	"time"
)

const recordTimeFormat = "20060102-150405"

// FileStorage implements Storage with one JSON file per run, grouped by
// firewall host.
type FileStorage struct {
	baseDir string
	mu      sync.RWMutex
}

// NewFileStorage creates a new file-based storage
func NewFileStorage(baseDir string) *FileStorage {
	return &FileStorage{
		baseDir: baseDir,
	}
}

// DefaultStorageDir returns the default history directory
func DefaultStorageDir() string {
	if dir := os.Getenv("PACERT_HISTORY_DIR"); dir != "" {
		return dir
	}

	if xdgData := os.Getenv("XDG_DATA_HOME"); xdgData != "" {
		return filepath.Join(xdgData, "pacert", "history")
	}

	if home, err := os.UserHomeDir(); err == nil {
		return filepath.Join(home, ".local", "share", "pacert", "history")
	}

	return filepath.Join(os.TempDir(), "pacert", "history")
}

// SaveRun writes the record to <base>/<host>/<timestamp>-<id>.json
func (fs *FileStorage) SaveRun(_ context.Context, record *RunRecord) error {
	if record == nil {
		return fmt.Errorf("run record is nil")
	}
	if record.ID == "" {
		return fmt.Errorf("run record has no id")
	}

	fs.mu.Lock()
	defer fs.mu.Unlock()

	hostDir := filepath.Join(fs.baseDir, sanitizeFilename(hostKey(record.Host)))
	if err := os.MkdirAll(hostDir, 0700); err != nil {
		return fmt.Errorf("failed to create history directory: %w", err)
	}

	filename := filepath.Join(hostDir, recordFilename(record))
	data, err := json.MarshalIndent(record, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to marshal run record: %w", err)
	}

	if err := os.WriteFile(filename, data, 0600); err != nil {
		return fmt.Errorf("failed to write history file: %w", err)
	}

	return nil
}

// ListRuns reads records newest first
func (fs *FileStorage) ListRuns(_ context.Context, host string, limit int) ([]RunRecord, error) {
	fs.mu.RLock()
	defer fs.mu.RUnlock()

	var dirs []string
	if host != "" {
		dirs = []string{filepath.Join(fs.baseDir, sanitizeFilename(host))}
	} else {
		entries, err := os.ReadDir(fs.baseDir)
		if os.IsNotExist(err) {
			return []RunRecord{}, nil
		}
		if err != nil {
			return nil, fmt.Errorf("failed to read history directory: %w", err)
		}
		for _, e := range entries {
			if e.IsDir() {
				dirs = append(dirs, filepath.Join(fs.baseDir, e.Name()))
			}
		}
	}

	records := []RunRecord{}
	for _, dir := range dirs {
		recs, err := readRecords(dir)
		if err != nil {
			return nil, err
		}
		records = append(records, recs...)
	}

	sort.SliceStable(records, func(i, j int) bool {
		return records[i].StartedAt.After(records[j].StartedAt)
	})

	if limit > 0 && len(records) > limit {
		records = records[:limit]
	}
	return records, nil
}

// CleanupOldEntries removes records whose file timestamp is older than the
// cutoff
func (fs *FileStorage) CleanupOldEntries(_ context.Context, olderThan time.Duration) (int, error) {
	fs.mu.Lock()
	defer fs.mu.Unlock()

	cutoff := time.Now().UTC().Add(-olderThan)
	removed := 0

	if _, err := os.Stat(fs.baseDir); os.IsNotExist(err) {
		return 0, nil
	}

	err := filepath.WalkDir(fs.baseDir, func(path string, d os.DirEntry, err error) error {
		if err != nil {
			return nil
		}
		if d.IsDir() || filepath.Ext(path) != ".json" {
			return nil
		}
		name := filepath.Base(path)
		if len(name) < len(recordTimeFormat) {
			return nil
		}
		ts, perr := time.Parse(recordTimeFormat, name[:len(recordTimeFormat)])
		if perr != nil || !ts.Before(cutoff) {
			return nil
		}
		if rerr := os.Remove(path); rerr != nil {
			return fmt.Errorf("failed to remove %s: %w", path, rerr)
		}
		removed++
		return nil
	})

	return removed, err
}

// Close is a no-op for file storage.
func (fs *FileStorage) Close() error {
	return nil
}

func readRecords(dir string) ([]RunRecord, error) {
	files, err := os.ReadDir(dir)
	if os.IsNotExist(err) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to read history directory: %w", err)
	}

	var records []RunRecord
	for _, file := range files {
		if file.IsDir() || filepath.Ext(file.Name()) != ".json" {
			continue
		}
		data, err := os.ReadFile(filepath.Join(dir, file.Name()))
		if err != nil {
			continue // Skip files that can't be read
		}
		var record RunRecord
		if err := json.Unmarshal(data, &record); err != nil {
			continue // Skip invalid JSON files
		}
		records = append(records, record)
	}
	return records, nil
}

func recordFilename(record *RunRecord) string {
	id := record.ID
	if len(id) > 8 {
		id = id[:8]
	}
	return fmt.Sprintf("%s-%s.json", record.StartedAt.UTC().Format(recordTimeFormat), sanitizeFilename(id))
}

func hostKey(host string) string {
	if host == "" {
		return "unknown"
	}
	return host
}

// sanitizeFilename replaces characters that might be problematic in filenames
func sanitizeFilename(name string) string {
	replacer := strings.NewReplacer(
		"/", "-",
		"\\", "-",
		":", "-",
		"*", "-",
		"?", "-",
		"\"", "-",
		"<", "-",
		">", "-",
		"|", "-",
		" ", "_",
	)
	return replacer.Replace(name)
}
