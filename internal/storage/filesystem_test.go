package storage

import (
	"bytes"
	"context"
	"errors"
	"os"
	"path/filepath"
	"testing"
	"time"
)

func TestExportKey(t *testing.T) {
	at := time.Date(2025, 3, 9, 23, 30, 0, 0, time.FixedZone("X", -2*3600))
	got := ExportKey(at, "abc", "Order1_Map.jpg")
	if got != "exports/2025/03/abc/Order1_Map.jpg" {
		t.Fatalf("ExportKey = %q", got)
	}
}

func TestWriteRead(t *testing.T) {
	dir := t.TempDir()
	store, err := NewFileStore(dir)
	if err != nil {
		t.Fatalf("NewFileStore: %v", err)
	}
	ctx := context.Background()
	key, err := store.Write(ctx, "./exports/2025/03/abc/Order1_Map.jpg", []byte("jpeg"))
	if err != nil {
		t.Fatalf("Write: %v", err)
	}
	if key != "exports/2025/03/abc/Order1_Map.jpg" {
		t.Fatalf("key = %q", key)
	}
	if _, err := os.Stat(filepath.Join(dir, "exports", "2025", "03", "abc", "Order1_Map.jpg.partial")); !errors.Is(err, os.ErrNotExist) {
		t.Fatalf("temporary file left behind: %v", err)
	}
	data, err := store.Read(ctx, key)
	if err != nil {
		t.Fatalf("Read: %v", err)
	}
	if !bytes.Equal(data, []byte("jpeg")) {
		t.Fatalf("data = %q", data)
	}
	if _, err := store.Read(ctx, "exports/missing.jpg"); !errors.Is(err, ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}
}

func TestWriteRejectsTraversal(t *testing.T) {
	store, err := NewFileStore(t.TempDir())
	if err != nil {
		t.Fatalf("NewFileStore: %v", err)
	}
	for _, key := range []string{"../escape.jpg", "a/../../escape.jpg", " ", ".."} {
		if _, err := store.Write(context.Background(), key, []byte("x")); err == nil {
			t.Fatalf("expected error for key %q", key)
		}
	}
}
