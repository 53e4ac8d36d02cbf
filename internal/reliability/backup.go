// Package reliability keeps local archives of the daemon's persistent data
// and the sqlite databases healthy.
package reliability

import (
	"archive/tar"
	"compress/gzip"
	"context"
	"crypto/sha256"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"

	"github.com/aristath/autoinvest/internal/database"
	"github.com/rs/zerolog"
)

const (
	archivePrefix   = "autoinvest-"
	archiveSuffix   = ".tar.gz"
	timestampFormat = "2006-01-02-150405"
	metadataFile    = "backup-metadata.json"
)

// BackupMetadata is stored inside every archive.
type BackupMetadata struct {
	Timestamp time.Time      `json:"timestamp"`
	Files     []FileMetadata `json:"files"`
}

// FileMetadata describes one archived file.
type FileMetadata struct {
	Name      string `json:"name"`
	SizeBytes int64  `json:"size_bytes"`
	Checksum  string `json:"checksum"`
}

// BackupInfo describes an archive on disk.
type BackupInfo struct {
	Path      string    `json:"path"`
	Filename  string    `json:"filename"`
	Timestamp time.Time `json:"timestamp"`
	SizeBytes int64     `json:"size_bytes"`
}

// BackupService writes tar.gz archives of the state file and the databases.
type BackupService struct {
	backupDir string
	stateFile string
	databases []*database.DB
	keep      int
	now       func() time.Time
	log       zerolog.Logger
}

// NewBackupService creates the service. keep <= 0 keeps every archive.
func NewBackupService(backupDir, stateFile string, databases []*database.DB, keep int, log zerolog.Logger) *BackupService {
	return &BackupService{
		backupDir: backupDir,
		stateFile: stateFile,
		databases: databases,
		keep:      keep,
		now:       time.Now,
		log:       log.With().Str("service", "backup").Logger(),
	}
}

// Create writes a new archive and prunes old ones. It returns the archive path.
func (s *BackupService) Create(ctx context.Context) (string, error) {
	s.log.Info().Msg("Starting backup")
	startTime := time.Now()

	if err := os.MkdirAll(s.backupDir, 0755); err != nil {
		return "", fmt.Errorf("failed to create backup directory: %w", err)
	}
	stagingDir, err := os.MkdirTemp(s.backupDir, "staging-")
	if err != nil {
		return "", fmt.Errorf("failed to create staging directory: %w", err)
	}
	defer os.RemoveAll(stagingDir)

	var names []string
	for _, db := range s.databases {
		name := db.Name() + ".db"
		if err := snapshotDatabase(ctx, db, filepath.Join(stagingDir, name)); err != nil {
			return "", fmt.Errorf("failed to back up %s: %w", db.Name(), err)
		}
		names = append(names, name)
	}

	if s.stateFile != "" {
		name := filepath.Base(s.stateFile)
		err := copyFile(s.stateFile, filepath.Join(stagingDir, name))
		switch {
		case err == nil:
			names = append(names, name)
		case os.IsNotExist(err):
			s.log.Debug().Str("path", s.stateFile).Msg("No state file yet, skipping")
		default:
			return "", fmt.Errorf("failed to copy state file: %w", err)
		}
	}

	now := s.now().UTC()
	metadata := BackupMetadata{Timestamp: now}
	for _, name := range names {
		fm, err := describeFile(filepath.Join(stagingDir, name))
		if err != nil {
			return "", err
		}
		metadata.Files = append(metadata.Files, fm)
	}
	if err := writeMetadata(filepath.Join(stagingDir, metadataFile), metadata); err != nil {
		return "", fmt.Errorf("failed to write metadata: %w", err)
	}
	names = append(names, metadataFile)

	archivePath := filepath.Join(s.backupDir, archivePrefix+now.Format(timestampFormat)+archiveSuffix)
	if err := createArchive(archivePath, stagingDir, names); err != nil {
		_ = os.Remove(archivePath)
		return "", fmt.Errorf("failed to create archive: %w", err)
	}

	if err := s.prune(); err != nil {
		s.log.Warn().Err(err).Msg("Failed to prune old backups")
	}

	s.log.Info().
		Str("archive", filepath.Base(archivePath)).
		Int("files", len(names)).
		Dur("duration", time.Since(startTime)).
		Msg("Backup completed")
	return archivePath, nil
}

// List returns local archives, newest first.
func (s *BackupService) List() ([]BackupInfo, error) {
	entries, err := os.ReadDir(s.backupDir)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, err
	}

	var backups []BackupInfo
	for _, e := range entries {
		name := e.Name()
		if e.IsDir() || !strings.HasPrefix(name, archivePrefix) || !strings.HasSuffix(name, archiveSuffix) {
			continue
		}
		ts, err := time.Parse(timestampFormat, strings.TrimSuffix(strings.TrimPrefix(name, archivePrefix), archiveSuffix))
		if err != nil {
			s.log.Warn().Str("filename", name).Msg("Failed to parse timestamp from filename")
			continue
		}
		info, err := e.Info()
		if err != nil {
			continue
		}
		backups = append(backups, BackupInfo{
			Path:      filepath.Join(s.backupDir, name),
			Filename:  name,
			Timestamp: ts,
			SizeBytes: info.Size(),
		})
	}

	sort.Slice(backups, func(i, j int) bool {
		return backups[i].Timestamp.After(backups[j].Timestamp)
	})
	return backups, nil
}

func (s *BackupService) prune() error {
	if s.keep <= 0 {
		return nil
	}
	backups, err := s.List()
	if err != nil {
		return err
	}
	for _, b := range backups[min(s.keep, len(backups)):] {
		if err := os.Remove(b.Path); err != nil {
			s.log.Error().Err(err).Str("filename", b.Filename).Msg("Failed to delete old backup")
			continue
		}
		s.log.Info().Str("filename", b.Filename).Msg("Deleted old backup")
	}
	return nil
}

// snapshotDatabase writes a consistent copy of db to dest.
func snapshotDatabase(ctx context.Context, db *database.DB, dest string) error {
	_, err := db.Conn().ExecContext(ctx, "VACUUM INTO ?", dest)
	return err
}

func copyFile(src, dest string) error {
	in, err := os.Open(src)
	if err != nil {
		return err
	}
	defer in.Close()

	out, err := os.Create(dest)
	if err != nil {
		return err
	}
	if _, err := io.Copy(out, in); err != nil {
		out.Close()
		return err
	}
	return out.Close()
}

func describeFile(path string) (FileMetadata, error) {
	file, err := os.Open(path)
	if err != nil {
		return FileMetadata{}, err
	}
	defer file.Close()

	hash := sha256.New()
	n, err := io.Copy(hash, file)
	if err != nil {
		return FileMetadata{}, err
	}
	return FileMetadata{
		Name:      filepath.Base(path),
		SizeBytes: n,
		Checksum:  fmt.Sprintf("sha256:%x", hash.Sum(nil)),
	}, nil
}

func writeMetadata(path string, metadata BackupMetadata) error {
	file, err := os.Create(path)
	if err != nil {
		return err
	}
	defer file.Close()

	encoder := json.NewEncoder(file)
	encoder.SetIndent("", "  ")
	return encoder.Encode(metadata)
}

func createArchive(archivePath, sourceDir string, names []string) error {
	archiveFile, err := os.Create(archivePath)
	if err != nil {
		return fmt.Errorf("failed to create archive file: %w", err)
	}
	defer archiveFile.Close()

	gzipWriter := gzip.NewWriter(archiveFile)
	tarWriter := tar.NewWriter(gzipWriter)

	for _, name := range names {
		if err := addFileToArchive(tarWriter, filepath.Join(sourceDir, name), name); err != nil {
			return fmt.Errorf("failed to add %s to archive: %w", name, err)
		}
	}

	if err := tarWriter.Close(); err != nil {
		return err
	}
	if err := gzipWriter.Close(); err != nil {
		return err
	}
	return archiveFile.Sync()
}

func addFileToArchive(tarWriter *tar.Writer, filePath, nameInArchive string) error {
	file, err := os.Open(filePath)
	if err != nil {
		return err
	}
	defer file.Close()

	info, err := file.Stat()
	if err != nil {
		return err
	}

	header := &tar.Header{
		Name:    nameInArchive,
		Size:    info.Size(),
		Mode:    int64(info.Mode()),
		ModTime: info.ModTime(),
	}
	if err := tarWriter.WriteHeader(header); err != nil {
		return err
	}
	_, err = io.Copy(tarWriter, file)
	return err
}
