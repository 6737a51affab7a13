package lock

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"testing"
)

const testWarehouse = "arn:aws:s3tables:us-east-1:123456789012:bucket/analytics"

func TestPathFor(t *testing.T) {
	p := PathFor("/tmp/locks", testWarehouse)
	if filepath.Dir(p) != "/tmp/locks" {
		t.Errorf("unexpected dir %s", p)
	}
	base := filepath.Base(p)
	if strings.ContainsAny(base, ":/") {
		t.Errorf("lock name not sanitized: %s", base)
	}
	if PathFor("/tmp/locks", "a") == PathFor("/tmp/locks", "b") {
		t.Error("different warehouses must use different locks")
	}
}

func TestAcquireRelease(t *testing.T) {
	path := PathFor(filepath.Join(t.TempDir(), "locks"), testWarehouse)

	if err := Acquire(path, testWarehouse); err != nil {
		t.Fatalf("Acquire: %v", err)
	}
	holder, held, err := IsHeld(path)
	if err != nil || !held {
		t.Fatalf("expected lock held, got %v %v", held, err)
	}
	if holder.PID != os.Getpid() || holder.Warehouse != testWarehouse || holder.Since.IsZero() {
		t.Errorf("unexpected holder %+v", holder)
	}

	if err := Release(path); err != nil {
		t.Fatalf("Release: %v", err)
	}
	if _, held, _ := IsHeld(path); held {
		t.Error("lock should be released")
	}
	if err := Release(path); err != nil {
		t.Errorf("releasing twice should be a no-op: %v", err)
	}
}

func TestAcquire_HeldByOtherProcess(t *testing.T) {
	path := filepath.Join(t.TempDir(), "wh.lock")
	// The parent of the test binary is alive for the duration of the test.
	content := fmt.Sprintf("pid: %d\nwarehouse: %s\nsince: 2026-01-02T03:04:05Z\n", os.Getppid(), testWarehouse)
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatal(err)
	}

	err := Acquire(path, testWarehouse)
	if !errors.Is(err, ErrHeld) {
		t.Fatalf("expected ErrHeld, got %v", err)
	}
	var held *HeldError
	if !errors.As(err, &held) || held.Holder.PID != os.Getppid() {
		t.Errorf("expected holder PID %d in %v", os.Getppid(), err)
	}
}

func TestAcquire_StaleLock(t *testing.T) {
	path := filepath.Join(t.TempDir(), "wh.lock")
	if err := os.WriteFile(path, []byte("not a lock file"), 0o644); err != nil {
		t.Fatal(err)
	}
	if err := Acquire(path, testWarehouse); err != nil {
		t.Fatalf("expected stale lock to be taken over: %v", err)
	}
	holder, _, _ := IsHeld(path)
	if holder == nil || holder.PID != os.Getpid() {
		t.Errorf("expected lock to be ours, got %+v", holder)
	}
}

func TestAcquire_OwnLockReacquired(t *testing.T) {
	path := filepath.Join(t.TempDir(), "wh.lock")
	if err := Acquire(path, testWarehouse); err != nil {
		t.Fatal(err)
	}
	if err := Acquire(path, testWarehouse); err != nil {
		t.Errorf("re-acquiring our own lock should succeed: %v", err)
	}
}
