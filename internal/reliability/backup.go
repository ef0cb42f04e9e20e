// Package reliability backs up the instrument database to S3-compatible
// object storage. A backup is a tar.gz archive holding a consistent
// snapshot of the SQLite file plus a metadata document with its checksum;
// rotation keeps a minimum number of archives regardless of age.
package reliability

import (
	"archive/tar"
	"compress/gzip"
	"context"
	"crypto/sha256"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"

	"github.com/goccy/go-json"
	"github.com/rs/zerolog"

	"github.com/tradetools/ttconnect/internal/database"
	"github.com/tradetools/ttconnect/internal/objstore"
)

const (
	archivePrefix = "ttconnect-backup-"
	archiveSuffix = ".tar.gz"
	timestampFmt  = "2006-01-02-150405"

	// Rotation never deletes below this count, whatever the retention.
	minBackupsToKeep = 3
)

// Metadata describes one backup archive.
type Metadata struct {
	Timestamp time.Time `json:"timestamp"`
	BrokerID  string    `json:"broker_id"`
	Database  string    `json:"database"`
	SizeBytes int64     `json:"size_bytes"`
	Checksum  string    `json:"checksum"`
}

// BackupInfo summarizes one stored archive.
type BackupInfo struct {
	Key       string    `json:"key"`
	Timestamp time.Time `json:"timestamp"`
	SizeBytes int64     `json:"size_bytes"`
	AgeHours  int64     `json:"age_hours"`
}

// Backups archives one broker's instrument database to object storage.
type Backups struct {
	db       *database.DB
	obj      *objstore.Client
	brokerID string
	log      zerolog.Logger
}

// NewBackups wires the backup service to a database and a bucket.
func NewBackups(db *database.DB, obj *objstore.Client, brokerID string, log zerolog.Logger) *Backups {
	return &Backups{
		db:       db,
		obj:      obj,
		brokerID: brokerID,
		log:      log.With().Str("component", "backups").Str("broker", brokerID).Logger(),
	}
}

// Backup snapshots the database, archives it, and uploads the archive.
func (b *Backups) Backup(ctx context.Context) error {
	b.log.Info().Msg("Starting backup")
	startTime := time.Now()

	stagingDir, err := os.MkdirTemp("", "ttconnect-backup-*")
	if err != nil {
		return fmt.Errorf("failed to create staging directory: %w", err)
	}
	defer os.RemoveAll(stagingDir)

	// VACUUM INTO writes a consistent snapshot without closing the live
	// connection; the single-connection handle serializes it against any
	// concurrent refresh.
	snapshotPath := filepath.Join(stagingDir, b.brokerID+"_instruments.db")
	if _, err := b.db.ExecContext(ctx, "VACUUM INTO ?", snapshotPath); err != nil {
		return fmt.Errorf("failed to snapshot database: %w", err)
	}

	info, err := os.Stat(snapshotPath)
	if err != nil {
		return fmt.Errorf("failed to stat snapshot: %w", err)
	}
	checksum, err := fileChecksum(snapshotPath)
	if err != nil {
		return fmt.Errorf("failed to checksum snapshot: %w", err)
	}

	metadataPath := filepath.Join(stagingDir, "backup-metadata.json")
	metadata := Metadata{
		Timestamp: time.Now().UTC(),
		BrokerID:  b.brokerID,
		Database:  filepath.Base(snapshotPath),
		SizeBytes: info.Size(),
		Checksum:  checksum,
	}
	if err := writeMetadata(metadataPath, metadata); err != nil {
		return fmt.Errorf("failed to write metadata: %w", err)
	}

	archiveName := fmt.Sprintf("%s%s-%s%s",
		archivePrefix, b.brokerID, time.Now().Format(timestampFmt), archiveSuffix)
	archivePath := filepath.Join(stagingDir, archiveName)
	if err := createArchive(archivePath, snapshotPath, metadataPath); err != nil {
		return fmt.Errorf("failed to create archive: %w", err)
	}

	archiveInfo, err := os.Stat(archivePath)
	if err != nil {
		return fmt.Errorf("failed to stat archive: %w", err)
	}
	archiveFile, err := os.Open(archivePath)
	if err != nil {
		return fmt.Errorf("failed to open archive: %w", err)
	}
	defer archiveFile.Close()

	if err := b.obj.Upload(ctx, archiveName, archiveFile, archiveInfo.Size()); err != nil {
		return fmt.Errorf("failed to upload backup: %w", err)
	}

	b.log.Info().
		Dur("duration_ms", time.Since(startTime)).
		Str("archive", archiveName).
		Int64("size_bytes", archiveInfo.Size()).
		Msg("Backup completed")
	return nil
}

// List returns this broker's stored backups, newest first.
func (b *Backups) List(ctx context.Context) ([]BackupInfo, error) {
	prefix := archivePrefix + b.brokerID + "-"
	objects, err := b.obj.List(ctx, prefix)
	if err != nil {
		return nil, fmt.Errorf("failed to list backups: %w", err)
	}

	now := time.Now()
	backups := make([]BackupInfo, 0, len(objects))
	for _, obj := range objects {
		if obj.Key == nil {
			continue
		}
		key := *obj.Key
		if !strings.HasSuffix(key, archiveSuffix) {
			continue
		}

		stamp := strings.TrimSuffix(strings.TrimPrefix(key, prefix), archiveSuffix)
		timestamp, err := time.Parse(timestampFmt, stamp)
		if err != nil {
			b.log.Warn().Str("key", key).Msg("Unparseable backup key, skipping")
			continue
		}

		var size int64
		if obj.Size != nil {
			size = *obj.Size
		}
		backups = append(backups, BackupInfo{
			Key:       key,
			Timestamp: timestamp,
			SizeBytes: size,
			AgeHours:  int64(now.Sub(timestamp).Hours()),
		})
	}

	sort.Slice(backups, func(i, j int) bool {
		return backups[i].Timestamp.After(backups[j].Timestamp)
	})
	return backups, nil
}

// Rotate deletes backups older than retentionDays, always keeping the
// newest minBackupsToKeep. retentionDays 0 keeps everything.
func (b *Backups) Rotate(ctx context.Context, retentionDays int) error {
	backups, err := b.List(ctx)
	if err != nil {
		return err
	}
	if len(backups) <= minBackupsToKeep || retentionDays <= 0 {
		return nil
	}

	cutoff := time.Now().AddDate(0, 0, -retentionDays)
	deleted := 0
	for i, backup := range backups {
		if i < minBackupsToKeep || !backup.Timestamp.Before(cutoff) {
			continue
		}
		if err := b.obj.Delete(ctx, backup.Key); err != nil {
			b.log.Error().Err(err).Str("key", backup.Key).Msg("Failed to delete old backup")
			continue
		}
		b.log.Info().Str("key", backup.Key).Time("timestamp", backup.Timestamp).Msg("Deleted old backup")
		deleted++
	}

	b.log.Info().
		Int("deleted", deleted).
		Int("remaining", len(backups)-deleted).
		Msg("Backup rotation completed")
	return nil
}

func fileChecksum(path string) (string, error) {
	file, err := os.Open(path)
	if err != nil {
		return "", err
	}
	defer file.Close()

	hash := sha256.New()
	if _, err := io.Copy(hash, file); err != nil {
		return "", err
	}
	return fmt.Sprintf("sha256:%x", hash.Sum(nil)), nil
}

func writeMetadata(path string, metadata Metadata) error {
	encoded, err := json.MarshalIndent(metadata, "", "  ")
	if err != nil {
		return err
	}
	return os.WriteFile(path, encoded, 0o644)
}

func createArchive(archivePath string, files ...string) error {
	archiveFile, err := os.Create(archivePath)
	if err != nil {
		return fmt.Errorf("failed to create archive file: %w", err)
	}
	defer archiveFile.Close()

	gzipWriter := gzip.NewWriter(archiveFile)
	defer gzipWriter.Close()

	tarWriter := tar.NewWriter(gzipWriter)
	defer tarWriter.Close()

	for _, path := range files {
		if err := addFileToArchive(tarWriter, path); err != nil {
			return fmt.Errorf("failed to add %s to archive: %w", filepath.Base(path), err)
		}
	}
	return nil
}

func addFileToArchive(tarWriter *tar.Writer, path string) error {
	file, err := os.Open(path)
	if err != nil {
		return err
	}
	defer file.Close()

	info, err := file.Stat()
	if err != nil {
		return err
	}

	header := &tar.Header{
		Name:    filepath.Base(path),
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
