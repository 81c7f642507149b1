package ingest

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/papapumpkin/tptmodel/internal/project"
)

func TestWatcherReimports(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "reqs.toml")
	if err := os.WriteFile(path, []byte(brakesDoc), 0o644); err != nil {
		t.Fatal(err)
	}

	p, err := project.New(project.Options{})
	if err != nil {
		t.Fatal(err)
	}
	defer p.Close()

	w, err := NewWatcher(path, p, WithDebounce(50*time.Millisecond))
	if err != nil {
		t.Fatalf("NewWatcher: %v", err)
	}
	if err := w.Start(context.Background()); err != nil {
		t.Fatalf("Start: %v", err)
	}
	defer w.Stop()

	if err := os.WriteFile(path, []byte(brakesDoc), 0o644); err != nil {
		t.Fatal(err)
	}

	select {
	case res := <-w.Results:
		if res.Err != nil {
			t.Fatalf("re-import: %v", res.Err)
		}
		if len(res.Report.Created) != 2 {
			t.Errorf("Created = %v, want 2 ids", res.Report.Created)
		}
	case <-time.After(3 * time.Second):
		t.Fatal("timed out waiting for re-import")
	}
}

func TestWatcherIgnoresOtherFiles(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "reqs.toml")

	p, err := project.New(project.Options{})
	if err != nil {
		t.Fatal(err)
	}
	defer p.Close()

	w, err := NewWatcher(path, p, WithDebounce(50*time.Millisecond))
	if err != nil {
		t.Fatalf("NewWatcher: %v", err)
	}
	if err := w.Start(context.Background()); err != nil {
		t.Fatalf("Start: %v", err)
	}
	defer w.Stop()

	if err := os.WriteFile(filepath.Join(dir, "notes.toml"), []byte(brakesDoc), 0o644); err != nil {
		t.Fatal(err)
	}

	select {
	case res := <-w.Results:
		t.Errorf("unexpected re-import: %+v", res)
	case <-time.After(300 * time.Millisecond):
	}
}

func TestWatcherReportsBadDocument(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "reqs.toml")

	p, err := project.New(project.Options{})
	if err != nil {
		t.Fatal(err)
	}
	defer p.Close()

	w, err := NewWatcher(path, p, WithDebounce(50*time.Millisecond))
	if err != nil {
		t.Fatalf("NewWatcher: %v", err)
	}
	if err := w.Start(context.Background()); err != nil {
		t.Fatalf("Start: %v", err)
	}
	defer w.Stop()

	if err := os.WriteFile(path, []byte("[[requirement]]\ntext = \"no id\""), 0o644); err != nil {
		t.Fatal(err)
	}

	select {
	case res := <-w.Results:
		if res.Err == nil {
			t.Error("expected an error for a document without ids")
		}
	case <-time.After(3 * time.Second):
		t.Fatal("timed out waiting for re-import")
	}
}

// stopWithin fails the test if Stop does not return in time.
func stopWithin(t *testing.T, w *Watcher, d time.Duration) {
	t.Helper()
	stopped := make(chan struct{})
	go func() {
		w.Stop()
		close(stopped)
	}()
	select {
	case <-stopped:
	case <-time.After(d):
		t.Fatal("Stop did not return")
	}
}

func TestWatcherStop(t *testing.T) {
	dir := t.TempDir()

	p, err := project.New(project.Options{})
	if err != nil {
		t.Fatal(err)
	}
	defer p.Close()

	t.Run("without start", func(t *testing.T) {
		w, err := NewWatcher(filepath.Join(dir, "reqs.toml"), p)
		if err != nil {
			t.Fatalf("NewWatcher: %v", err)
		}
		stopWithin(t, w, time.Second)
		stopWithin(t, w, time.Second)
		if _, ok := <-w.Results; ok {
			t.Error("Results still open after Stop")
		}
	})

	t.Run("after failed start", func(t *testing.T) {
		w, err := NewWatcher(filepath.Join(dir, "missing", "reqs.toml"), p)
		if err != nil {
			t.Fatalf("NewWatcher: %v", err)
		}
		if err := w.Start(context.Background()); err == nil {
			t.Fatal("Start on a missing directory succeeded")
		}
		stopWithin(t, w, time.Second)
	})

	t.Run("twice after start", func(t *testing.T) {
		w, err := NewWatcher(filepath.Join(dir, "reqs.toml"), p)
		if err != nil {
			t.Fatalf("NewWatcher: %v", err)
		}
		if err := w.Start(context.Background()); err != nil {
			t.Fatalf("Start: %v", err)
		}
		stopWithin(t, w, time.Second)
		stopWithin(t, w, time.Second)
	})
}

func TestWatcherTinyDebounce(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "reqs.toml")

	p, err := project.New(project.Options{})
	if err != nil {
		t.Fatal(err)
	}
	defer p.Close()

	w, err := NewWatcher(path, p, WithDebounce(time.Nanosecond))
	if err != nil {
		t.Fatalf("NewWatcher: %v", err)
	}
	if err := w.Start(context.Background()); err != nil {
		t.Fatalf("Start: %v", err)
	}
	defer w.Stop()

	if err := os.WriteFile(path, []byte(brakesDoc), 0o644); err != nil {
		t.Fatal(err)
	}
	// A tick can land between truncate and write, so early results may
	// see a partial file.
	timeout := time.After(3 * time.Second)
	for {
		select {
		case res := <-w.Results:
			if res.Err == nil && len(p.ExternalIDs()) == 2 {
				return
			}
		case <-timeout:
			t.Fatal("timed out waiting for re-import")
		}
	}
}
