package storage

import (
	"bytes"
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/calltrail/calltrail/internal/errs"
)

func TestFSBackendReadBytes(t *testing.T) {
	dir := t.TempDir()
	if err := os.MkdirAll(filepath.Join(dir, "calls"), 0750); err != nil {
		t.Fatal(err)
	}
	want := []byte("RIFFwav")
	if err := os.WriteFile(filepath.Join(dir, "calls", "rec-1.wav"), want, 0640); err != nil {
		t.Fatal(err)
	}

	b, err := NewFSBackend(dir)
	if err != nil {
		t.Fatalf("NewFSBackend() error: %v", err)
	}

	got, err := b.ReadBytes(context.Background(), "calls/rec-1.wav")
	if err != nil {
		t.Fatalf("ReadBytes() error: %v", err)
	}
	if !bytes.Equal(got, want) {
		t.Errorf("ReadBytes() = %q, want %q", got, want)
	}
}

func TestFSBackendMissingKey(t *testing.T) {
	b, err := NewFSBackend(t.TempDir())
	if err != nil {
		t.Fatalf("NewFSBackend() error: %v", err)
	}

	_, err = b.ReadBytes(context.Background(), "calls/nope.wav")
	if !errs.IsNotFound(err) {
		t.Fatalf("ReadBytes() error = %v, want not found", err)
	}
}

func TestFSBackendRejectsTraversal(t *testing.T) {
	root := t.TempDir()
	secret := filepath.Join(root, "secret.txt")
	if err := os.WriteFile(secret, []byte("keep out"), 0640); err != nil {
		t.Fatal(err)
	}

	b, err := NewFSBackend(filepath.Join(root, "store"))
	if err != nil {
		t.Fatalf("NewFSBackend() error: %v", err)
	}

	for _, key := range []string{
		"../secret.txt",
		"calls/../../secret.txt",
		"/../secret.txt",
	} {
		if _, err := b.ReadBytes(context.Background(), key); !errs.IsNotFound(err) {
			t.Errorf("ReadBytes(%q) error = %v, want not found", key, err)
		}
	}
}
