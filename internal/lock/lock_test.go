package lock

import (
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"
)

func TestAcquireWritesHolderPID(t *testing.T) {
	dir := t.TempDir()

	l, err := Acquire(dir)
	if err != nil {
		t.Fatalf("Acquire() error = %v", err)
	}
	defer func() { _ = l.Release() }()

	data, err := os.ReadFile(filepath.Join(dir, "LOCK"))
	if err != nil {
		t.Fatalf("read lock file: %v", err)
	}
	if !strings.Contains(string(data), "pid=") {
		t.Errorf("lock file missing pid line: %q", data)
	}
	if got := parsePID(string(data)); got != os.Getpid() {
		t.Errorf("lock file pid = %d, want %d", got, os.Getpid())
	}
}

func TestSecondAcquireReportsHolder(t *testing.T) {
	dir := t.TempDir()

	l1, err := Acquire(dir)
	if err != nil {
		t.Fatalf("first Acquire() error = %v", err)
	}
	defer func() { _ = l1.Release() }()

	_, err = Acquire(dir)
	if err == nil {
		t.Fatal("second Acquire() should fail while the first is held")
	}

	var held *LockHeldError
	if !errors.As(err, &held) {
		t.Fatalf("expected LockHeldError, got %T: %v", err, err)
	}
	if held.PID != os.Getpid() {
		t.Errorf("LockHeldError.PID = %d, want %d", held.PID, os.Getpid())
	}
	if held.Path != filepath.Join(dir, "LOCK") {
		t.Errorf("LockHeldError.Path = %q, want %q", held.Path, filepath.Join(dir, "LOCK"))
	}
}

func TestReacquireAfterRelease(t *testing.T) {
	dir := t.TempDir()

	l1, err := Acquire(dir)
	if err != nil {
		t.Fatalf("Acquire() error = %v", err)
	}
	if err := l1.Release(); err != nil {
		t.Fatalf("Release() error = %v", err)
	}

	l2, err := Acquire(dir)
	if err != nil {
		t.Fatalf("Acquire() after Release() error = %v", err)
	}
	_ = l2.Release()
}

func TestReleaseRemovesLockFile(t *testing.T) {
	dir := t.TempDir()

	l, err := Acquire(dir)
	if err != nil {
		t.Fatalf("Acquire() error = %v", err)
	}
	if err := l.Release(); err != nil {
		t.Errorf("Release() error = %v", err)
	}
	if _, err := os.Stat(filepath.Join(dir, "LOCK")); !os.IsNotExist(err) {
		t.Errorf("lock file should be removed after Release, stat err = %v", err)
	}
}

func TestReleaseNilAndIdempotent(t *testing.T) {
	var nilLock *Lock
	if err := nilLock.Release(); err != nil {
		t.Errorf("nil Release() error = %v", err)
	}

	dir := t.TempDir()
	l, err := Acquire(dir)
	if err != nil {
		t.Fatalf("Acquire() error = %v", err)
	}
	if err := l.Release(); err != nil {
		t.Errorf("first Release() error = %v", err)
	}
	if err := l.Release(); err != nil {
		t.Errorf("second Release() error = %v", err)
	}
}

func TestParsePID(t *testing.T) {
	cases := []struct {
		content string
		want    int
	}{
		{"pid=1234\ntime=2026-01-01T00:00:00Z\n", 1234},
		{"time=2026-01-01T00:00:00Z\npid=99\n", 99},
		{"", 0},
		{"garbage\n", 0},
		{"pid=notanumber\n", 0},
	}
	for _, tc := range cases {
		if got := parsePID(tc.content); got != tc.want {
			t.Errorf("parsePID(%q) = %d, want %d", tc.content, got, tc.want)
		}
	}
}
