package reliability

import (
	"archive/tar"
	"compress/gzip"
	"context"
	"errors"
	"io"
	"os"
	"path/filepath"
	"sort"
	"testing"
	"time"

	"github.com/aristath/autoinvest/internal/database"
	testingpkg "github.com/aristath/autoinvest/internal/testing"
	"github.com/aws/aws-sdk-go-v2/feature/s3/manager"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func archiveNames(t *testing.T, path string) []string {
	t.Helper()
	f, err := os.Open(path)
	require.NoError(t, err)
	defer f.Close()

	gz, err := gzip.NewReader(f)
	require.NoError(t, err)
	tr := tar.NewReader(gz)

	var names []string
	for {
		h, err := tr.Next()
		if err == io.EOF {
			break
		}
		require.NoError(t, err)
		names = append(names, h.Name)
	}
	sort.Strings(names)
	return names
}

func newBackupService(t *testing.T, keep int) (*BackupService, string) {
	t.Helper()
	ledgerDB, cleanup := testingpkg.NewTestDB(t, database.NameLedger)
	t.Cleanup(cleanup)

	dir := t.TempDir()
	stateFile := filepath.Join(dir, "state.yaml")
	require.NoError(t, os.WriteFile(stateFile, []byte("alice:executor:\n  balance: \"1000\"\n"), 0o644))

	backupDir := filepath.Join(dir, "backups")
	return NewBackupService(backupDir, stateFile, []*database.DB{ledgerDB}, keep, zerolog.Nop()), backupDir
}

func TestBackupService_Create(t *testing.T) {
	svc, backupDir := newBackupService(t, 7)

	path, err := svc.Create(context.Background())
	require.NoError(t, err)

	assert.Equal(t, backupDir, filepath.Dir(path))
	assert.Equal(t, []string{metadataFile, "ledger.db", "state.yaml"}, archiveNames(t, path))

	entries, err := os.ReadDir(backupDir)
	require.NoError(t, err)
	assert.Len(t, entries, 1, "staging directory is removed")
}

func TestBackupService_PrunesOldArchives(t *testing.T) {
	svc, _ := newBackupService(t, 2)
	now := time.Date(2026, 1, 1, 3, 0, 0, 0, time.UTC)
	svc.now = func() time.Time {
		now = now.Add(time.Hour)
		return now
	}

	for i := 0; i < 4; i++ {
		_, err := svc.Create(context.Background())
		require.NoError(t, err)
	}

	backups, err := svc.List()
	require.NoError(t, err)
	require.Len(t, backups, 2)
	assert.Equal(t, "autoinvest-2026-01-01-070000.tar.gz", backups[0].Filename)
	assert.Equal(t, "autoinvest-2026-01-01-060000.tar.gz", backups[1].Filename)
}

func TestBackupService_MissingStateFileSkipped(t *testing.T) {
	svc, _ := newBackupService(t, 0)
	require.NoError(t, os.Remove(svc.stateFile))

	path, err := svc.Create(context.Background())
	require.NoError(t, err)
	assert.Equal(t, []string{metadataFile, "ledger.db"}, archiveNames(t, path))
}

type fakePutter struct {
	keys []string
	err  error
}

func (f *fakePutter) Upload(_ context.Context, input *s3.PutObjectInput, _ ...func(*manager.Uploader)) (*manager.UploadOutput, error) {
	if f.err != nil {
		return nil, f.err
	}
	if _, err := io.Copy(io.Discard, input.Body); err != nil {
		return nil, err
	}
	f.keys = append(f.keys, *input.Key)
	return &manager.UploadOutput{}, nil
}

func TestBackupTask_Uploads(t *testing.T) {
	svc, _ := newBackupService(t, 7)
	putter := &fakePutter{}
	task := NewBackupTask(svc, NewS3UploaderWith("bucket", "daemon/", putter, zerolog.Nop()), zerolog.Nop())

	require.NoError(t, task.Run(context.Background()))

	require.Len(t, putter.keys, 1)
	assert.Regexp(t, `^daemon/autoinvest-\d{4}-\d{2}-\d{2}-\d{6}\.tar\.gz$`, putter.keys[0])
}

func TestBackupTask_UploadFailure(t *testing.T) {
	svc, _ := newBackupService(t, 7)
	putter := &fakePutter{err: errors.New("access denied")}
	task := NewBackupTask(svc, NewS3UploaderWith("bucket", "", putter, zerolog.Nop()), zerolog.Nop())

	assert.Error(t, task.Run(context.Background()))

	backups, err := svc.List()
	require.NoError(t, err)
	assert.Len(t, backups, 1, "local archive is kept")
}

func TestMaintenanceTask_ReportsUnreadableDataDir(t *testing.T) {
	db, cleanup := testingpkg.NewTestDB(t, database.NameClientData)
	defer cleanup()

	task := NewMaintenanceTask([]*database.DB{db}, filepath.Join(t.TempDir(), "missing"), zerolog.Nop())
	err := task.Run(context.Background())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "failed to stat filesystem")
}
