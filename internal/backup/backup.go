// Package backup provides database and content-store backup for
// mcp-agent-mail: the `<db>.backup-<µepoch>` snapshot the Store migration
// step must write before rewriting legacy textual timestamps (spec §4.1),
// and a periodic full backup of the single database file plus the content
// store root invoked by `am migrate`.
package backup

import (
	"archive/tar"
	"compress/gzip"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sort"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/dicklesworthstone/agentmail/internal/logger"
)

// Manager handles periodic and on-demand backups of the database file and
// content store.
type Manager struct {
	dbPath      string
	storageRoot string
	backupDir   string
	retention   int
	interval    time.Duration
	cancel      context.CancelFunc
	wg          sync.WaitGroup
}

// Config holds backup configuration.
type Config struct {
	DBPath      string
	StorageRoot string
	BackupDir   string
	Retention   int           // number of snapshots to keep
	Interval    time.Duration // how often to run automatic backups (0 = disabled)
}

// Snapshot describes one backup archive.
type Snapshot struct {
	Timestamp time.Time `json:"timestamp"`
	Filename  string    `json:"filename"`
	SizeBytes int64     `json:"size_bytes"`
}

// New creates a new backup Manager, creating the backup directory if absent.
func New(cfg Config) (*Manager, error) {
	if err := os.MkdirAll(cfg.BackupDir, 0o755); err != nil {
		return nil, fmt.Errorf("failed to create backup directory: %w", err)
	}
	return &Manager{
		dbPath:      cfg.DBPath,
		storageRoot: cfg.StorageRoot,
		backupDir:   cfg.BackupDir,
		retention:   cfg.Retention,
		interval:    cfg.Interval,
	}, nil
}

// Start begins periodic backup if interval > 0.
func (m *Manager) Start() {
	if m.interval <= 0 {
		return
	}
	ctx, cancel := context.WithCancel(context.Background())
	m.cancel = cancel
	m.wg.Add(1)

	go func() {
		defer m.wg.Done()
		ticker := time.NewTicker(m.interval)
		defer ticker.Stop()

		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				if _, err := m.BackupNow(); err != nil {
					logger.Printf("backup failed: %v", err)
				}
			}
		}
	}()

	logger.Printf("backup automation started (interval=%v, retention=%d)", m.interval, m.retention)
}

// Stop halts periodic backup.
func (m *Manager) Stop() {
	if m.cancel != nil {
		m.cancel()
		m.wg.Wait()
		logger.Println("backup automation stopped")
	}
}

// BackupNow creates a tar.gz snapshot containing the database file (plus
// any WAL/SHM sidecar files) and the content store root, then enforces
// retention.
func (m *Manager) BackupNow() (*Snapshot, error) {
	timestamp := time.Now()
	filename := fmt.Sprintf("agentmail_%s.tar.gz", timestamp.Format("20060102_150405"))
	backupPath := filepath.Join(m.backupDir, filename)

	file, err := os.Create(backupPath)
	if err != nil {
		return nil, fmt.Errorf("failed to create backup file: %w", err)
	}
	defer func() { _ = file.Close() }()

	gw := gzip.NewWriter(file)
	defer func() { _ = gw.Close() }()

	tw := tar.NewWriter(gw)
	defer func() { _ = tw.Close() }()

	if m.dbPath != "" {
		for _, suffix := range []string{"", "-wal", "-shm"} {
			path := m.dbPath + suffix
			if err := addFileToTar(tw, path, filepath.Base(path)); err != nil && !os.IsNotExist(err) {
				_ = os.Remove(backupPath)
				return nil, fmt.Errorf("failed to archive %s: %w", path, err)
			}
		}
	}

	if m.storageRoot != "" {
		if err := addDirToTar(tw, m.storageRoot, "content"); err != nil && !os.IsNotExist(err) {
			_ = os.Remove(backupPath)
			return nil, fmt.Errorf("failed to archive content store: %w", err)
		}
	}

	stat, _ := os.Stat(backupPath)
	snap := &Snapshot{Timestamp: timestamp, Filename: filename, SizeBytes: stat.Size()}
	logger.Printf("created backup: %s (%d bytes)", filename, stat.Size())

	m.enforceRetention()
	return snap, nil
}

func addFileToTar(tw *tar.Writer, path, archiveName string) error {
	info, err := os.Stat(path)
	if err != nil {
		return err
	}
	header, err := tar.FileInfoHeader(info, "")
	if err != nil {
		return err
	}
	header.Name = archiveName
	if err := tw.WriteHeader(header); err != nil {
		return err
	}
	f, err := os.Open(path)
	if err != nil {
		return err
	}
	defer func() { _ = f.Close() }()
	_, err = io.Copy(tw, f)
	return err
}

func addDirToTar(tw *tar.Writer, root, archivePrefix string) error {
	return filepath.Walk(root, func(path string, info os.FileInfo, err error) error {
		if err != nil {
			if os.IsNotExist(err) {
				return nil
			}
			return err
		}
		rel, err := filepath.Rel(root, path)
		if err != nil {
			return err
		}
		header, err := tar.FileInfoHeader(info, "")
		if err != nil {
			return err
		}
		header.Name = filepath.Join(archivePrefix, rel)
		if err := tw.WriteHeader(header); err != nil {
			return err
		}
		if info.IsDir() {
			return nil
		}
		f, err := os.Open(path)
		if err != nil {
			return err
		}
		defer func() { _ = f.Close() }()
		_, err = io.Copy(tw, f)
		return err
	})
}

// ListSnapshots returns all backup archives, newest first.
func (m *Manager) ListSnapshots() ([]Snapshot, error) {
	entries, err := os.ReadDir(m.backupDir)
	if err != nil {
		return nil, fmt.Errorf("failed to read backup directory: %w", err)
	}

	var snapshots []Snapshot
	for _, entry := range entries {
		if entry.IsDir() || !strings.HasSuffix(entry.Name(), ".tar.gz") {
			continue
		}
		name := strings.TrimSuffix(strings.TrimPrefix(entry.Name(), "agentmail_"), ".tar.gz")
		timestamp, err := time.Parse("20060102_150405", name)
		if err != nil {
			continue
		}
		info, err := entry.Info()
		if err != nil {
			continue
		}
		snapshots = append(snapshots, Snapshot{Timestamp: timestamp, Filename: entry.Name(), SizeBytes: info.Size()})
	}

	sort.Slice(snapshots, func(i, j int) bool { return snapshots[i].Timestamp.After(snapshots[j].Timestamp) })
	return snapshots, nil
}

func (m *Manager) enforceRetention() {
	if m.retention <= 0 {
		return
	}
	snapshots, err := m.ListSnapshots()
	if err != nil || len(snapshots) <= m.retention {
		return
	}
	for i := m.retention; i < len(snapshots); i++ {
		path := filepath.Join(m.backupDir, snapshots[i].Filename)
		if err := os.Remove(path); err == nil {
			logger.Printf("removed old backup: %s", snapshots[i].Filename)
		}
	}
}

// ExportManifest returns a JSON manifest of all snapshots.
func (m *Manager) ExportManifest() ([]byte, error) {
	snapshots, err := m.ListSnapshots()
	if err != nil {
		return nil, err
	}
	manifest := struct {
		ExportedAt time.Time  `json:"exported_at"`
		BackupDir  string     `json:"backup_dir"`
		Snapshots  []Snapshot `json:"snapshots"`
	}{ExportedAt: time.Now(), BackupDir: m.backupDir, Snapshots: snapshots}
	return json.MarshalIndent(manifest, "", "  ")
}

// SnapshotFile copies a single file (the database, before a legacy-timestamp
// rewrite) to "<path>.backup-<epochMicros>", per spec §4.1. It is a plain
// byte copy rather than a tar archive since the migration path needs a
// fast, uncompressed snapshot it can restore from directly if the rewrite
// transaction fails.
func SnapshotFile(path string, epochMicros int64) (string, error) {
	dst := path + ".backup-" + strconv.FormatInt(epochMicros, 10)
	src, err := os.Open(path)
	if err != nil {
		return "", err
	}
	defer func() { _ = src.Close() }()

	out, err := os.Create(dst)
	if err != nil {
		return "", err
	}
	defer func() { _ = out.Close() }()

	if _, err := io.Copy(out, src); err != nil {
		_ = os.Remove(dst)
		return "", err
	}
	logger.Printf("pre-migration backup written: %s", dst)
	return dst, nil
}
