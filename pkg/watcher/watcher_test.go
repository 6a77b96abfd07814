package watcher

import (
	"context"
	"os"
	"path/filepath"
	"slices"
	"testing"
	"time"
)

func TestDebouncerMergesBurst(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	input := make(chan ChangeEvent, 10)
	d := NewDebouncer(input, 20*time.Millisecond, time.Second)
	d.Start(ctx)

	input <- ChangeEvent{Type: ChangeTypeSource, Paths: []string{"b.ts"}}
	input <- ChangeEvent{Type: ChangeTypeSource, Paths: []string{"a.ts"}}
	input <- ChangeEvent{Type: ChangeTypeManifest, Paths: []string{"emitproject.yaml"}}
	input <- ChangeEvent{Type: ChangeTypeSource, Paths: []string{"a.ts"}}

	select {
	case batch := <-d.Output():
		if len(batch) != 2 {
			t.Fatalf("expected 2 events, got %d: %+v", len(batch), batch)
		}
		if batch[0].Type != ChangeTypeManifest {
			t.Errorf("first event = %v, want manifest", batch[0].Type)
		}
		if !slices.Equal(batch[1].Paths, []string{"a.ts", "b.ts"}) {
			t.Errorf("source paths = %v", batch[1].Paths)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("no batch released")
	}
}

func TestDebouncerMaxWait(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	input := make(chan ChangeEvent)
	d := NewDebouncer(input, 200*time.Millisecond, 50*time.Millisecond)
	d.Start(ctx)

	// Keep the quiet period from ever expiring.
	stop := make(chan struct{})
	go func() {
		ticker := time.NewTicker(10 * time.Millisecond)
		defer ticker.Stop()
		for {
			select {
			case <-stop:
				return
			case <-ticker.C:
				select {
				case input <- ChangeEvent{Type: ChangeTypeSource, Paths: []string{"a.ts"}}:
				case <-stop:
					return
				}
			}
		}
	}()
	defer close(stop)

	select {
	case batch := <-d.Output():
		if len(batch) != 1 || batch[0].Type != ChangeTypeSource {
			t.Errorf("batch = %+v", batch)
		}
	case <-time.After(time.Second):
		t.Fatal("max wait did not force a flush")
	}
}

func TestDebouncerFlushesOnClose(t *testing.T) {
	input := make(chan ChangeEvent, 1)
	d := NewDebouncer(input, time.Hour, time.Hour)
	d.Start(context.Background())

	input <- ChangeEvent{Type: ChangeTypeDirectory, Paths: []string{"src/new"}}
	close(input)

	batch, ok := <-d.Output()
	if !ok || len(batch) != 1 || batch[0].Type != ChangeTypeDirectory {
		t.Errorf("batch = %+v, ok = %v", batch, ok)
	}
	if _, ok := <-d.Output(); ok {
		t.Error("output not closed")
	}
}

func TestPlanChanges(t *testing.T) {
	plan := PlanChanges([]ChangeEvent{
		{Type: ChangeTypeManifest, Paths: []string{"emitproject.yaml"}},
		{Type: ChangeTypeDirectory, Paths: []string{"src/lib"}},
		{Type: ChangeTypeSource, Paths: []string{"src/a.ts", "src/b.ts"}},
	})
	if !plan.Manifest || !plan.Rescan {
		t.Errorf("plan = %+v", plan)
	}
	if !slices.Equal(plan.Files, []string{"src/a.ts", "src/b.ts"}) {
		t.Errorf("Files = %v", plan.Files)
	}

	if plan := PlanChanges(nil); !plan.Empty() {
		t.Errorf("empty batch planned %+v", plan)
	}
}

func TestFileWatcherClassifies(t *testing.T) {
	root := t.TempDir()
	manifest := filepath.Join(root, "emitproject.yaml")
	if err := os.MkdirAll(filepath.Join(root, "out"), 0o755); err != nil {
		t.Fatal(err)
	}

	fw, err := NewFileWatcher(root, manifest, "out")
	if err != nil {
		t.Fatalf("NewFileWatcher() error = %v", err)
	}
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	if err := fw.Start(ctx); err != nil {
		t.Fatalf("Start() error = %v", err)
	}

	// Ignored: not a source file, and a file in a skipped directory.
	writeFile(t, filepath.Join(root, "notes.md"))
	writeFile(t, filepath.Join(root, "out", "main.js"))
	writeFile(t, filepath.Join(root, "main.ts"))
	expect(t, fw, ChangeTypeSource, filepath.Join(root, "main.ts"))

	writeFile(t, manifest)
	expect(t, fw, ChangeTypeManifest, manifest)
}

func writeFile(t *testing.T, path string) {
	t.Helper()
	if err := os.WriteFile(path, []byte("x"), 0o644); err != nil {
		t.Fatal(err)
	}
}

// expect waits for an event of the given type and path, skipping repeats
// that a single write can produce.
func expect(t *testing.T, fw *FileWatcher, kind ChangeType, path string) {
	t.Helper()
	deadline := time.After(2 * time.Second)
	for {
		select {
		case event := <-fw.Events():
			if event.Type == kind && event.Paths[0] == path {
				return
			}
			if event.Type != ChangeTypeSource || event.Paths[0] != filepath.Join(filepath.Dir(path), "main.ts") {
				t.Fatalf("unexpected event %v %v", event.Type, event.Paths)
			}
		case <-deadline:
			t.Fatalf("no %v event for %s", kind, path)
		}
	}
}
