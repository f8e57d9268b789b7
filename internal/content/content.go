// Package content is the append-only, content-addressed blob store backing
// message attachments (spec §3 ContentBlob: "sha256 -> bytes... out of
// core scope beyond the interface"). Ground: internal/backup/backup.go's
// write-then-rename durability pattern (a backup is never observed
// half-written; neither is a blob), sharded two-level directory layout
// grounded on the same package's tar path-prefixing, content_blobs
// metadata rows grounded on internal/store/schema.go.
package content

import (
	"context"
	"crypto/sha256"
	"database/sql"
	"encoding/hex"
	"fmt"
	"io"
	"os"
	"path/filepath"

	"github.com/google/uuid"

	"github.com/dicklesworthstone/agentmail/internal/store"
)

// Store is a filesystem-backed, content-addressed blob store rooted at a
// single directory. Blobs are immutable once written: the same sha256
// always names the same bytes, so a Put of already-present content is a
// cheap no-op rather than a rewrite.
type Store struct {
	root string
	db   *store.DB
}

// New returns a Store rooted at root, creating the directory if absent.
func New(db *store.DB, root string) (*Store, error) {
	if err := os.MkdirAll(root, 0o755); err != nil {
		return nil, fmt.Errorf("content: creating store root: %w", err)
	}
	return &Store{root: root, db: db}, nil
}

// Put writes data to the store and returns its hex-encoded sha256 digest,
// the key used to reference it from a message's attachments list. Writing
// is staged to a uniquely-named temp file under the store root and
// completed with an atomic rename, so a crash mid-write never leaves a
// corrupt blob visible under its final name.
func (s *Store) Put(ctx context.Context, data []byte) (string, error) {
	sum := sha256.Sum256(data)
	digest := hex.EncodeToString(sum[:])
	dst := s.pathFor(digest)

	if _, err := os.Stat(dst); err == nil {
		if insErr := s.recordMetadata(ctx, digest, int64(len(data))); insErr != nil {
			return "", insErr
		}
		return digest, nil
	}

	if err := os.MkdirAll(filepath.Dir(dst), 0o755); err != nil {
		return "", fmt.Errorf("content: creating shard directory: %w", err)
	}

	staging := filepath.Join(s.root, ".staging-"+uuid.NewString())
	f, err := os.OpenFile(staging, os.O_CREATE|os.O_WRONLY|os.O_EXCL, 0o644)
	if err != nil {
		return "", fmt.Errorf("content: creating staging file: %w", err)
	}
	if _, err := f.Write(data); err != nil {
		_ = f.Close()
		_ = os.Remove(staging)
		return "", fmt.Errorf("content: writing staging file: %w", err)
	}
	if err := f.Close(); err != nil {
		_ = os.Remove(staging)
		return "", fmt.Errorf("content: closing staging file: %w", err)
	}
	if err := os.Rename(staging, dst); err != nil {
		_ = os.Remove(staging)
		return "", fmt.Errorf("content: finalizing blob: %w", err)
	}

	if err := s.recordMetadata(ctx, digest, int64(len(data))); err != nil {
		return "", err
	}
	return digest, nil
}

// Get reads back the bytes for a previously-Put digest.
func (s *Store) Get(digest string) ([]byte, error) {
	data, err := os.ReadFile(s.pathFor(digest))
	if err != nil {
		if os.IsNotExist(err) {
			return nil, store.ErrNotFound
		}
		return nil, err
	}
	return data, nil
}

// Reader opens a streaming reader for a digest's bytes, for serving large
// attachments without buffering them fully in memory.
func (s *Store) Reader(digest string) (io.ReadCloser, error) {
	f, err := os.Open(s.pathFor(digest))
	if err != nil {
		if os.IsNotExist(err) {
			return nil, store.ErrNotFound
		}
		return nil, err
	}
	return f, nil
}

// Has reports whether a digest is already stored.
func (s *Store) Has(digest string) bool {
	_, err := os.Stat(s.pathFor(digest))
	return err == nil
}

func (s *Store) pathFor(digest string) string {
	if len(digest) < 4 {
		return filepath.Join(s.root, digest)
	}
	return filepath.Join(s.root, digest[:2], digest[2:4], digest)
}

func (s *Store) recordMetadata(ctx context.Context, digest string, sizeBytes int64) error {
	return s.db.Write(ctx, func(tx *sql.Tx) error {
		_, err := tx.Exec(`INSERT INTO content_blobs(sha256, size_bytes, created_ts) VALUES (?, ?, ?)
			ON CONFLICT(sha256) DO NOTHING`, digest, sizeBytes, int64(store.Now()))
		return err
	})
}

// Stat returns the recorded size in bytes for a digest, looked up from the
// content_blobs metadata row rather than re-stat'ing the file.
func (s *Store) Stat(ctx context.Context, digest string) (int64, error) {
	var size int64
	row := s.db.ReadConn().QueryRowContext(ctx, `SELECT size_bytes FROM content_blobs WHERE sha256 = ?`, digest)
	if err := row.Scan(&size); err != nil {
		if err == sql.ErrNoRows {
			return 0, store.ErrNotFound
		}
		return 0, err
	}
	return size, nil
}
