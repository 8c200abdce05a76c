package storage

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func sampleRecord(id, host string, started time.Time) *RunRecord {
	return &RunRecord{
		ID:                  id,
		Host:                host,
		StartedAt:           started,
		Duration:            42 * time.Second,
		State:               "done",
		Success:             true,
		ReplacedCertificate: "OldCert",
		NewCertificate:      "NewCert-2026",
		ConfigBackup:        "/backups/fw-config-20261019_101500.xml",
		References:          map[string]int{"ssl-tls-profile": 2, "portal": 1},
		Phases: []PhaseRecord{
			{Name: "upload", Succeeded: []string{"NewCert-2026"}},
			{Name: "ssl-tls-profiles", Succeeded: []string{"wan-profile", "lan-profile"}},
		},
	}
}

func TestNewFileStorage(t *testing.T) {
	t.Parallel()

	tmpDir := t.TempDir()
	storage := NewFileStorage(tmpDir)

	require.NotNil(t, storage)
	assert.Equal(t, tmpDir, storage.baseDir)
	assert.NoError(t, storage.Close())
}

func TestDefaultStorageDir(t *testing.T) {
	// Cannot use t.Parallel() with t.Setenv

	t.Run("with PACERT_HISTORY_DIR env var", func(t *testing.T) {
		t.Setenv("PACERT_HISTORY_DIR", "/custom/dir")
		assert.Equal(t, "/custom/dir", DefaultStorageDir())
	})

	t.Run("with XDG_DATA_HOME", func(t *testing.T) {
		t.Setenv("PACERT_HISTORY_DIR", "")
		t.Setenv("XDG_DATA_HOME", "/home/user/.local/share")
		assert.Equal(t, "/home/user/.local/share/pacert/history", DefaultStorageDir())
	})

	t.Run("fallback to user home", func(t *testing.T) {
		t.Setenv("PACERT_HISTORY_DIR", "")
		t.Setenv("XDG_DATA_HOME", "")
		dir := DefaultStorageDir()
		assert.Contains(t, dir, "pacert")
		assert.Contains(t, dir, "history")
	})
}

func TestFileStorage_SaveAndListRuns(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	storage := NewFileStorage(t.TempDir())
	base := time.Date(2026, 10, 19, 10, 15, 0, 0, time.UTC)

	require.NoError(t, storage.SaveRun(ctx, sampleRecord("aaaaaaaa-1", "fw1.example.com", base)))
	require.NoError(t, storage.SaveRun(ctx, sampleRecord("bbbbbbbb-2", "fw1.example.com", base.Add(time.Hour))))
	require.NoError(t, storage.SaveRun(ctx, sampleRecord("cccccccc-3", "fw2.example.com", base.Add(2*time.Hour))))

	t.Run("single host newest first", func(t *testing.T) {
		runs, err := storage.ListRuns(ctx, "fw1.example.com", 0)
		require.NoError(t, err)
		require.Len(t, runs, 2)
		assert.Equal(t, "bbbbbbbb-2", runs[0].ID)
		assert.Equal(t, "aaaaaaaa-1", runs[1].ID)
	})

	t.Run("all hosts with limit", func(t *testing.T) {
		runs, err := storage.ListRuns(ctx, "", 2)
		require.NoError(t, err)
		require.Len(t, runs, 2)
		assert.Equal(t, "cccccccc-3", runs[0].ID)
		assert.Equal(t, "bbbbbbbb-2", runs[1].ID)
	})

	t.Run("round trip keeps details", func(t *testing.T) {
		runs, err := storage.ListRuns(ctx, "fw2.example.com", 1)
		require.NoError(t, err)
		require.Len(t, runs, 1)
		assert.Equal(t, 2, runs[0].References["ssl-tls-profile"])
		assert.Equal(t, 2, runs[0].Phases[1].Attempted())
		assert.Equal(t, 42*time.Second, runs[0].Duration)
	})

	t.Run("unknown host", func(t *testing.T) {
		runs, err := storage.ListRuns(ctx, "fw9.example.com", 0)
		require.NoError(t, err)
		assert.Empty(t, runs)
	})
}

func TestFileStorage_FilePermissions(t *testing.T) {
	t.Parallel()

	tmpDir := t.TempDir()
	storage := NewFileStorage(tmpDir)
	rec := sampleRecord("dddddddd-4", "10.0.0.1:8443", time.Date(2026, 1, 2, 3, 4, 5, 0, time.UTC))
	require.NoError(t, storage.SaveRun(context.Background(), rec))

	file := filepath.Join(tmpDir, "10.0.0.1-8443", "20260102-030405-dddddddd.json")
	info, err := os.Stat(file)
	require.NoError(t, err)
	assert.Equal(t, os.FileMode(0600), info.Mode().Perm())
}

func TestFileStorage_SaveRunRejectsInvalid(t *testing.T) {
	t.Parallel()

	storage := NewFileStorage(t.TempDir())
	assert.Error(t, storage.SaveRun(context.Background(), nil))
	assert.Error(t, storage.SaveRun(context.Background(), &RunRecord{}))
}

func TestFileStorage_ListRunsMissingDir(t *testing.T) {
	t.Parallel()

	storage := NewFileStorage(filepath.Join(t.TempDir(), "missing"))
	runs, err := storage.ListRuns(context.Background(), "", 10)
	require.NoError(t, err)
	assert.Empty(t, runs)
}

func TestFileStorage_SkipsCorruptFiles(t *testing.T) {
	t.Parallel()

	tmpDir := t.TempDir()
	storage := NewFileStorage(tmpDir)
	require.NoError(t, storage.SaveRun(context.Background(), sampleRecord("eeeeeeee", "fw", time.Now())))
	require.NoError(t, os.WriteFile(filepath.Join(tmpDir, "fw", "bad.json"), []byte("{not json"), 0600))

	runs, err := storage.ListRuns(context.Background(), "fw", 0)
	require.NoError(t, err)
	assert.Len(t, runs, 1)
}

func TestFileStorage_CleanupOldEntries(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	storage := NewFileStorage(t.TempDir())

	require.NoError(t, storage.SaveRun(ctx, sampleRecord("old00000", "fw", time.Now().Add(-72*time.Hour))))
	require.NoError(t, storage.SaveRun(ctx, sampleRecord("new00000", "fw", time.Now())))

	removed, err := storage.CleanupOldEntries(ctx, 24*time.Hour)
	require.NoError(t, err)
	assert.Equal(t, 1, removed)

	runs, err := storage.ListRuns(ctx, "fw", 0)
	require.NoError(t, err)
	require.Len(t, runs, 1)
	assert.Equal(t, "new00000", runs[0].ID)
}

func TestRunRecord_Status(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name   string
		record RunRecord
		want   string
	}{
		{"success", RunRecord{State: "done", Success: true}, "success"},
		{"dry run", RunRecord{State: "done", Success: true, DryRun: true}, "dry-run"},
		{"partial", RunRecord{State: "failed", Phases: []PhaseRecord{{Name: "portals"}}}, "partial"},
		{"fatal", RunRecord{State: "failed", Error: "connectivity"}, "failed"},
		{"cancelled", RunRecord{State: "cancelled"}, "cancelled"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, tt.record.Status())
		})
	}
}

func TestSanitizeFilename(t *testing.T) {
	t.Parallel()

	assert.Equal(t, "fw-01.example.com", sanitizeFilename("fw/01.example.com"))
	assert.Equal(t, "10.0.0.1-443", sanitizeFilename("10.0.0.1:443"))
	assert.Equal(t, "a_b", sanitizeFilename("a b"))
}
