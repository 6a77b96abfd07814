package main

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/ritzau/emit-scheduler/pkg/config"
	"github.com/ritzau/emit-scheduler/pkg/pubsub"
	"github.com/ritzau/emit-scheduler/pkg/session"
	"github.com/ritzau/emit-scheduler/pkg/workspace"
)

// TestWatchAlongsideRequests runs the watch loop while other callers use
// the session, as serve does. Run with -race to check that the loop only
// reaches the workspace through the session.
func TestWatchAlongsideRequests(t *testing.T) {
	root := t.TempDir()
	if err := os.WriteFile(filepath.Join(root, "a.ts"), []byte("export const a = 1;\n"), 0o644); err != nil {
		t.Fatal(err)
	}
	ws, err := workspace.Load(context.Background(), root, workspace.Options{})
	if err != nil {
		t.Fatal(err)
	}
	hub := pubsub.NewHub()
	defer hub.Close()
	s := session.New(ws, session.Options{Publisher: hub})

	sub, err := hub.Subscribe(context.Background(), pubsub.TopicEmits)
	if err != nil {
		t.Fatal(err)
	}

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	cfg := &config.Config{QuietPeriodMs: 20, MaxWaitMs: 100}
	paths := watchPaths{root: ws.Root(), manifest: ws.ManifestPath()}
	go func() { done <- watch(ctx, cfg, s, paths) }()

	// Give the watcher time to register its directories.
	time.Sleep(100 * time.Millisecond)
	go func() {
		for i := 0; i < 20; i++ {
			if _, err := s.Refresh(ctx); err != nil {
				return
			}
			s.Status()
		}
	}()
	if err := os.WriteFile(filepath.Join(root, "b.ts"), []byte("export const b = 2;\n"), 0o644); err != nil {
		t.Fatal(err)
	}

	select {
	case <-sub.Events():
	case <-time.After(3 * time.Second):
		t.Fatal("no batch applied for the new file")
	}

	cancel()
	select {
	case err := <-done:
		if err != nil {
			t.Errorf("watch() error = %v", err)
		}
	case <-time.After(3 * time.Second):
		t.Fatal("watch did not stop")
	}
}
