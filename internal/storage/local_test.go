package storage

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"strings"
	"testing"
	"time"

	"github.com/google/uuid"
)

func newTestLocalStorage(t *testing.T) *LocalStorage {
	t.Helper()
	store, err := NewLocalStorage(LocalConfig{
		BasePath: t.TempDir(),
		BaseURL:  "http://localhost:8080/files",
	}, slog.New(slog.NewTextHandler(io.Discard, nil)))
	if err != nil {
		t.Fatalf("NewLocalStorage: %v", err)
	}
	return store
}

func TestLocalStorageRoundTrip(t *testing.T) {
	store := newTestLocalStorage(t)
	ctx := context.Background()
	key := ResumeKey(uuid.New(), "resume.pdf")

	err := store.Put(ctx, key, strings.NewReader("%PDF-1.4 fake"), PutOptions{
		ContentType: "application/pdf",
	})
	if err != nil {
		t.Fatalf("Put: %v", err)
	}

	exists, err := store.Exists(ctx, key)
	if err != nil {
		t.Fatalf("Exists: %v", err)
	}
	if !exists {
		t.Fatal("stored document reported as missing")
	}

	body, info, err := store.Get(ctx, key)
	if err != nil {
		t.Fatalf("Get: %v", err)
	}
	defer body.Close()

	data, err := io.ReadAll(body)
	if err != nil {
		t.Fatalf("read body: %v", err)
	}
	if string(data) != "%PDF-1.4 fake" {
		t.Errorf("unexpected document content %q", data)
	}
	if info.Size != int64(len("%PDF-1.4 fake")) {
		t.Errorf("expected size %d, got %d", len("%PDF-1.4 fake"), info.Size)
	}
	if info.ContentType != "application/pdf" {
		t.Errorf("expected application/pdf, got %q", info.ContentType)
	}
}

func TestLocalStorageGetMissing(t *testing.T) {
	store := newTestLocalStorage(t)

	_, _, err := store.Get(context.Background(), "resumes/nobody/missing.pdf")
	if !errors.Is(err, ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}
}

func TestLocalStoragePutNoOverwrite(t *testing.T) {
	store := newTestLocalStorage(t)
	ctx := context.Background()
	key := ResumeKey(uuid.New(), "resume.pdf")

	if err := store.Put(ctx, key, strings.NewReader("first"), PutOptions{}); err != nil {
		t.Fatalf("Put: %v", err)
	}

	err := store.Put(ctx, key, strings.NewReader("second"), PutOptions{})
	if !errors.Is(err, ErrKeyExists) {
		t.Fatalf("expected ErrKeyExists, got %v", err)
	}

	if err := store.Put(ctx, key, strings.NewReader("second"), PutOptions{Overwrite: true}); err != nil {
		t.Fatalf("Put with overwrite: %v", err)
	}

	body, _, err := store.Get(ctx, key)
	if err != nil {
		t.Fatalf("Get: %v", err)
	}
	defer body.Close()
	data, _ := io.ReadAll(body)
	if string(data) != "second" {
		t.Errorf("expected overwritten content, got %q", data)
	}
}

func TestLocalStoragePutSizeCap(t *testing.T) {
	store := newTestLocalStorage(t)
	ctx := context.Background()
	key := ResumeKey(uuid.New(), "resume.pdf")

	err := store.Put(ctx, key, strings.NewReader("twelve bytes"), PutOptions{MaxSize: 5})
	if !errors.Is(err, ErrTooLarge) {
		t.Fatalf("expected ErrTooLarge, got %v", err)
	}

	// A failed upload leaves nothing behind.
	exists, err := store.Exists(ctx, key)
	if err != nil {
		t.Fatalf("Exists: %v", err)
	}
	if exists {
		t.Error("oversized upload should not leave a partial file")
	}
}

func TestLocalStorageDeleteIdempotent(t *testing.T) {
	store := newTestLocalStorage(t)
	ctx := context.Background()
	key := ResumeKey(uuid.New(), "resume.pdf")

	if err := store.Put(ctx, key, strings.NewReader("doc"), PutOptions{}); err != nil {
		t.Fatalf("Put: %v", err)
	}
	if err := store.Delete(ctx, key); err != nil {
		t.Fatalf("Delete: %v", err)
	}
	if err := store.Delete(ctx, key); err != nil {
		t.Fatalf("second Delete: %v", err)
	}

	exists, err := store.Exists(ctx, key)
	if err != nil {
		t.Fatalf("Exists: %v", err)
	}
	if exists {
		t.Error("deleted document still reported as present")
	}
}

func TestLocalStorageURL(t *testing.T) {
	store := newTestLocalStorage(t)

	url, err := store.URL(context.Background(), "resumes/u1/doc.pdf", time.Hour)
	if err != nil {
		t.Fatalf("URL: %v", err)
	}
	if url != "http://localhost:8080/files/resumes/u1/doc.pdf" {
		t.Errorf("unexpected URL %q", url)
	}
}

func TestLocalStorageRejectsTraversal(t *testing.T) {
	store := newTestLocalStorage(t)
	ctx := context.Background()

	for _, key := range []string{"", "../etc/passwd", "resumes/../../secret", "/etc/passwd"} {
		if err := store.Put(ctx, key, strings.NewReader("x"), PutOptions{}); !errors.Is(err, ErrInvalidKey) {
			t.Errorf("Put(%q): expected ErrInvalidKey, got %v", key, err)
		}
		if _, _, err := store.Get(ctx, key); !errors.Is(err, ErrInvalidKey) {
			t.Errorf("Get(%q): expected ErrInvalidKey, got %v", key, err)
		}
	}
}
