package content

import (
	"bytes"
	"io"
	"path/filepath"
	"strings"
	"testing"

	"github.com/dicklesworthstone/agentmail/internal/store"
)

func openTestStore(t *testing.T) *Store {
	t.Helper()
	dbPath := filepath.Join(t.TempDir(), "test.db")
	db, err := store.Open(dbPath)
	if err != nil {
		t.Fatalf("opening test database: %v", err)
	}
	t.Cleanup(func() { _ = db.Close() })

	s, err := New(db, filepath.Join(t.TempDir(), "blobs"))
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	return s
}

func TestPutGet_RoundTrips(t *testing.T) {
	s := openTestStore(t)
	ctx := t.Context()
	data := []byte("agent coordination payload")

	digest, err := s.Put(ctx, data)
	if err != nil {
		t.Fatalf("Put: %v", err)
	}
	if len(digest) != 64 {
		t.Fatalf("digest len = %d, want 64 (hex sha256)", len(digest))
	}

	got, err := s.Get(digest)
	if err != nil {
		t.Fatalf("Get: %v", err)
	}
	if !bytes.Equal(got, data) {
		t.Errorf("Get returned %q, want %q", got, data)
	}
}

func TestPut_DuplicateContentIsIdempotent(t *testing.T) {
	s := openTestStore(t)
	ctx := t.Context()
	data := []byte("duplicate payload")

	d1, err := s.Put(ctx, data)
	if err != nil {
		t.Fatalf("first Put: %v", err)
	}
	d2, err := s.Put(ctx, data)
	if err != nil {
		t.Fatalf("second Put: %v", err)
	}
	if d1 != d2 {
		t.Errorf("digests differ across duplicate Put calls: %s vs %s", d1, d2)
	}
}

func TestGet_UnknownDigestReturnsNotFound(t *testing.T) {
	s := openTestStore(t)
	_, err := s.Get(strings.Repeat("0", 64))
	if err != store.ErrNotFound {
		t.Fatalf("Get = %v, want store.ErrNotFound", err)
	}
}

func TestReader_StreamsBlobBytes(t *testing.T) {
	s := openTestStore(t)
	ctx := t.Context()
	data := []byte("streamed bytes")

	digest, err := s.Put(ctx, data)
	if err != nil {
		t.Fatalf("Put: %v", err)
	}

	r, err := s.Reader(digest)
	if err != nil {
		t.Fatalf("Reader: %v", err)
	}
	defer func() { _ = r.Close() }()

	got, err := io.ReadAll(r)
	if err != nil {
		t.Fatalf("ReadAll: %v", err)
	}
	if !bytes.Equal(got, data) {
		t.Errorf("Reader returned %q, want %q", got, data)
	}
}

func TestStat_ReturnsRecordedSize(t *testing.T) {
	s := openTestStore(t)
	ctx := t.Context()
	data := []byte("twelve bytes")

	digest, err := s.Put(ctx, data)
	if err != nil {
		t.Fatalf("Put: %v", err)
	}
	size, err := s.Stat(ctx, digest)
	if err != nil {
		t.Fatalf("Stat: %v", err)
	}
	if size != int64(len(data)) {
		t.Errorf("Stat size = %d, want %d", size, len(data))
	}
}

func TestHas(t *testing.T) {
	s := openTestStore(t)
	ctx := t.Context()
	if s.Has("deadbeef") {
		t.Fatal("Has reported true for unwritten digest")
	}
	digest, err := s.Put(ctx, []byte("x"))
	if err != nil {
		t.Fatalf("Put: %v", err)
	}
	if !s.Has(digest) {
		t.Fatal("Has reported false after Put")
	}
}
