package session

import (
	"context"
	"encoding/json"
	"errors"
	"os"
	"path/filepath"
	"slices"
	"strings"
	"testing"
	"time"

	"github.com/ritzau/emit-scheduler/pkg/model"
	"github.com/ritzau/emit-scheduler/pkg/pubsub"
	"github.com/ritzau/emit-scheduler/pkg/workspace"
)

const (
	cOriginal  = "export function c(): string {\n  return \"c\"\n}\n"
	cCommented = "// comment only\nexport function c(): string {\n  return \"c\"\n}\n"
	cReshaped  = "export function c(n: number): string {\n  return \"c\" + n\n}\n"
)

func write(t *testing.T, root, name, text string) {
	t.Helper()
	path := filepath.Join(root, filepath.FromSlash(name))
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		t.Fatal(err)
	}
	if err := os.WriteFile(path, []byte(text), 0o644); err != nil {
		t.Fatal(err)
	}
}

// project lays out a.ts -> b.ts -> c.ts, where b re-exports c so that c's
// shape flows into b's, plus an unrelated d.ts.
func project(t *testing.T) string {
	t.Helper()
	root := t.TempDir()
	write(t, root, workspace.ManifestName, "compilerOptions:\n  module: commonjs\n  outDir: out\n")
	write(t, root, "src/a.ts", "import { b } from \"./b\";\nexport const a = 1;\n")
	write(t, root, "src/b.ts", "export * from \"./c\";\nexport const b = 2;\n")
	write(t, root, "src/c.ts", cOriginal)
	write(t, root, "src/d.ts", "export const d = 4;\n")
	return root
}

func open(t *testing.T, root string, opts Options) *Session {
	t.Helper()
	ws, err := workspace.Load(context.Background(), root, workspace.Options{})
	if err != nil {
		t.Fatalf("workspace.Load() error = %v", err)
	}
	opts.DebugChecks = true
	return New(ws, opts)
}

func apply(t *testing.T, s *Session, plan Plan) *model.BatchReport {
	t.Helper()
	batch, err := s.ApplyChanges(context.Background(), plan)
	if err != nil {
		t.Fatalf("ApplyChanges() error = %v", err)
	}
	return batch
}

func onlyReport(t *testing.T, batch *model.BatchReport) *model.EmitReport {
	t.Helper()
	if len(batch.Reports) != 1 {
		t.Fatalf("expected 1 report, got %d", len(batch.Reports))
	}
	return batch.Reports[0]
}

func TestEditPropagatesShapeChange(t *testing.T) {
	root := project(t)
	s := open(t, root, Options{Write: true})

	write(t, root, "src/c.ts", cReshaped)
	report := onlyReport(t, apply(t, s, Plan{Files: []string{"src/c.ts"}}))

	want := []string{"src/a.ts", "src/b.ts", "src/c.ts"}
	if !slices.Equal(report.Affected, want) {
		t.Errorf("Affected = %v, want %v", report.Affected, want)
	}
	if report.Kind != model.ChangeEdited || report.Trigger != "src/c.ts" {
		t.Errorf("report = %+v", report)
	}
	if len(report.Emitted) != 3 {
		t.Errorf("emitted %d files, want 3", len(report.Emitted))
	}

	data, err := os.ReadFile(filepath.Join(root, "out", "src", "c.js"))
	if err != nil {
		t.Fatalf("output not written: %v", err)
	}
	js := string(data)
	if !strings.Contains(js, `return "c" + n`) || strings.Contains(js, ": number") {
		t.Errorf("c.js = %q", js)
	}
}

func TestCommentOnlyEditAffectsOnlyTheFile(t *testing.T) {
	root := project(t)
	s := open(t, root, Options{})

	write(t, root, "src/c.ts", cCommented)
	report := onlyReport(t, apply(t, s, Plan{Files: []string{filepath.Join(root, "src", "c.ts")}}))

	if !slices.Equal(report.Affected, []string{"src/c.ts"}) {
		t.Errorf("Affected = %v, want only src/c.ts", report.Affected)
	}
	if _, err := os.Stat(filepath.Join(root, "out")); !os.IsNotExist(err) {
		t.Error("outputs written although Write is off")
	}
}

func TestAffectedIsIdempotent(t *testing.T) {
	root := project(t)
	s := open(t, root, Options{})

	write(t, root, "src/c.ts", cReshaped)
	if _, err := s.Workspace().Touch("src/c.ts"); err != nil {
		t.Fatal(err)
	}

	first, err := s.Affected("src/c.ts")
	if err != nil {
		t.Fatalf("Affected() error = %v", err)
	}
	if len(first) != 3 {
		t.Errorf("first Affected() = %v", first)
	}
	second, _ := s.Affected("src/c.ts")
	if !slices.Equal(second, []string{"src/c.ts"}) {
		t.Errorf("second Affected() = %v, want only src/c.ts", second)
	}
}

func TestAffectedUnknownFile(t *testing.T) {
	s := open(t, project(t), Options{})
	if _, err := s.Affected("src/zzz.ts"); !errors.Is(err, workspace.ErrNotInProject) {
		t.Errorf("Affected() error = %v, want ErrNotInProject", err)
	}
}

func TestDependentsUnknownFile(t *testing.T) {
	s := open(t, project(t), Options{})
	if _, err := s.Dependents("src/zzz.ts"); !errors.Is(err, workspace.ErrNotInProject) {
		t.Errorf("Dependents() error = %v, want ErrNotInProject", err)
	}
}

func TestEmitRequest(t *testing.T) {
	root := project(t)
	s := open(t, root, Options{Write: true})

	report, err := s.Emit(context.Background(), "src/d.ts")
	if err != nil {
		t.Fatalf("Emit() error = %v", err)
	}
	if report.Kind != model.ChangeRequest || len(report.Emitted) != 1 {
		t.Fatalf("report = %+v", report)
	}
	if got, want := report.Emitted[0].Path, filepath.Join(root, "out", "src", "d.js"); got != want {
		t.Errorf("emitted path = %q, want %q", got, want)
	}
	if _, err := os.Stat(report.Emitted[0].Path); err != nil {
		t.Errorf("output not written: %v", err)
	}
}

func TestAddedFileIsLinked(t *testing.T) {
	root := project(t)
	s := open(t, root, Options{})

	write(t, root, "src/e.ts", "import { c } from \"./c\";\nexport const e = 5;\n")
	batch := apply(t, s, Plan{Files: []string{"src/e.ts"}})
	report := onlyReport(t, batch)

	if !batch.Refreshed || report.Kind != model.ChangeAdded {
		t.Errorf("batch = %+v, report = %+v", batch, report)
	}
	if !slices.Equal(report.Affected, []string{"src/e.ts"}) {
		t.Errorf("Affected = %v", report.Affected)
	}

	deps, err := s.Dependents("src/c.ts")
	if err != nil {
		t.Fatalf("Dependents() error = %v", err)
	}
	if !slices.Equal(deps, []string{"src/b.ts", "src/e.ts"}) {
		t.Errorf("Dependents(c) = %v", deps)
	}
}

func TestRemovedFileIsUnlinked(t *testing.T) {
	root := project(t)
	s := open(t, root, Options{})

	if err := os.Remove(filepath.Join(root, "src", "b.ts")); err != nil {
		t.Fatal(err)
	}
	report := onlyReport(t, apply(t, s, Plan{Files: []string{"src/b.ts"}}))
	if report.Kind != model.ChangeRemoved || len(report.Emitted) != 0 {
		t.Errorf("report = %+v", report)
	}

	g := s.Graph()
	if _, ok := g.Nodes["src/b.ts"]; ok {
		t.Error("removed file still in graph")
	}
	for _, e := range g.Edges {
		if e.Source == "src/b.ts" || e.Target == "src/b.ts" {
			t.Errorf("dangling edge %s -> %s", e.Source, e.Target)
		}
	}
}

func TestManifestChangeRebuildsScheduler(t *testing.T) {
	root := project(t)
	s := open(t, root, Options{})

	write(t, root, workspace.ManifestName, "compilerOptions:\n  module: none\n")
	batch := apply(t, s, Plan{Manifest: true})
	report := onlyReport(t, batch)
	if !batch.Refreshed || report.Kind != model.ChangeManifest {
		t.Errorf("batch = %+v", batch)
	}
	if len(report.Affected) != 4 {
		t.Errorf("manifest change affected %v, want every file", report.Affected)
	}

	// Without modules a shape change reaches the whole project, d.ts included.
	write(t, root, "src/c.ts", cReshaped)
	report = onlyReport(t, apply(t, s, Plan{Files: []string{"src/c.ts"}}))
	if len(report.Affected) != 4 {
		t.Errorf("flat scheduler Affected = %v, want all 4 files", report.Affected)
	}
}

func TestUnchangedManifestIsNoop(t *testing.T) {
	s := open(t, project(t), Options{})
	batch := apply(t, s, Plan{Manifest: true, Rescan: true})
	if len(batch.Reports) != 0 || batch.Refreshed {
		t.Errorf("batch = %+v", batch)
	}
}

func TestResetForgetsShapes(t *testing.T) {
	root := project(t)
	s := open(t, root, Options{})
	s.Reset()

	// With no recorded shapes, even a comment edit counts as a change.
	write(t, root, "src/c.ts", cCommented)
	report := onlyReport(t, apply(t, s, Plan{Files: []string{"src/c.ts"}}))
	if len(report.Affected) != 3 {
		t.Errorf("Affected after Reset = %v", report.Affected)
	}
}

func TestCycles(t *testing.T) {
	root := project(t)
	write(t, root, "src/c.ts", "import { a } from \"./a\";\n"+cOriginal)
	s := open(t, root, Options{})

	cycles := s.Cycles()
	if len(cycles) != 1 {
		t.Fatalf("Cycles() = %v", cycles)
	}
	if !slices.Equal(cycles[0].Files, []string{"src/a.ts", "src/b.ts", "src/c.ts"}) {
		t.Errorf("cycle = %v", cycles[0].Files)
	}
}

func TestBatchIsPublished(t *testing.T) {
	root := project(t)
	hub := pubsub.NewHub()
	defer hub.Close()

	sub, err := hub.Subscribe(context.Background(), pubsub.TopicEmits)
	if err != nil {
		t.Fatal(err)
	}
	s := open(t, root, Options{Publisher: hub})

	write(t, root, "src/d.ts", "export const d = \"four\";\n")
	batch := apply(t, s, Plan{Files: []string{"src/d.ts"}})

	select {
	case event := <-sub.Events():
		var got model.BatchReport
		if err := json.Unmarshal(event.Data, &got); err != nil {
			t.Fatalf("bad payload: %v", err)
		}
		if got.BatchID != batch.BatchID || len(got.Reports) != 1 {
			t.Errorf("published batch = %+v", got)
		}
	case <-time.After(time.Second):
		t.Fatal("no batch published")
	}
}
