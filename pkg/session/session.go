// Package session drives one workspace and its emit scheduler. Every
// operation takes the session lock, which provides the per-project
// serialization the scheduler requires.
package session

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"slices"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/ritzau/emit-scheduler/pkg/cycles"
	"github.com/ritzau/emit-scheduler/pkg/graph"
	"github.com/ritzau/emit-scheduler/pkg/logging"
	"github.com/ritzau/emit-scheduler/pkg/model"
	"github.com/ritzau/emit-scheduler/pkg/project"
	"github.com/ritzau/emit-scheduler/pkg/pubsub"
	"github.com/ritzau/emit-scheduler/pkg/scheduler"
	"github.com/ritzau/emit-scheduler/pkg/workspace"
)

const byteOrderMark = "\uFEFF"

// Options configures a Session.
type Options struct {
	// Write persists emitted files. When false, emits are only reported.
	Write bool
	// DebugChecks verifies graph invariants after every refresh.
	DebugChecks bool
	// Publisher receives batch reports and status updates. May be nil.
	Publisher pubsub.Publisher
}

// Plan is a batch of changes observed on disk.
type Plan struct {
	// Files changed, were created, or were removed. Absolute or root-relative.
	Files []string
	// Rescan rediscovers the whole file set.
	Rescan bool
	// Manifest changed.
	Manifest bool
}

// Empty reports whether the plan holds no work.
func (p Plan) Empty() bool {
	return len(p.Files) == 0 && !p.Rescan && !p.Manifest
}

// Session owns a workspace and the scheduler built for it.
type Session struct {
	mu    sync.Mutex
	ws    *workspace.Workspace
	sched scheduler.Scheduler
	opts  Options

	logger *logging.Logger
}

// New builds the scheduler the workspace's configuration calls for.
func New(ws *workspace.Workspace, opts Options) *Session {
	s := &Session{
		ws:     ws,
		opts:   opts,
		logger: logging.New("session"),
	}
	s.sched = s.newScheduler()
	s.publishStatus("ready", "workspace loaded")
	return s
}

// newScheduler builds a scheduler and records the current shape of every
// file, so that the first real change is measured against it instead of
// counting as a first sighting.
func (s *Session) newScheduler() scheduler.Scheduler {
	sched := scheduler.New(s.ws, scheduler.WithInvariantChecks(s.opts.DebugChecks))
	for _, p := range s.ws.CurrentFiles() {
		sched.FilesAffectedBy(p)
	}
	return sched
}

// Workspace returns the session's workspace. Callers must not use it
// concurrently with session operations.
func (s *Session) Workspace() *workspace.Workspace {
	return s.ws
}

// Affected returns the sorted names of the files a change to name requires
// re-emitting. It consumes the shape change: asking again without an edit
// yields at most name itself.
func (s *Session) Affected(name string) ([]string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	p, err := s.ws.Resolve(name)
	if err != nil {
		return nil, err
	}
	affected := s.sched.FilesAffectedBy(p)
	slices.Sort(affected)
	return affected, nil
}

// Emit emits one file unconditionally.
func (s *Session) Emit(ctx context.Context, name string) (*model.EmitReport, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	p, err := s.ws.Resolve(name)
	if err != nil {
		return nil, err
	}
	info, _ := s.ws.ScriptInfo(p)

	start := time.Now()
	report := &model.EmitReport{
		Trigger:  info.FileName,
		Kind:     model.ChangeRequest,
		Affected: []string{info.FileName},
		Emitted:  []model.EmittedFile{},
	}
	if err := s.emitAll(ctx, report, map[string]bool{}); err != nil {
		return nil, err
	}
	report.DurationMs = time.Since(start).Milliseconds()
	return report, nil
}

// ApplyChanges folds a plan into the workspace, then emits everything each
// change affects. A manifest change rebuilds the scheduler and re-emits the
// whole project.
func (s *Session) ApplyChanges(ctx context.Context, plan Plan) (*model.BatchReport, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	batch := &model.BatchReport{
		BatchID: uuid.New().String(),
		Started: time.Now(),
		Reports: []*model.EmitReport{},
	}
	ctx = logging.WithBatchID(ctx, batch.BatchID)

	changes, err := s.collect(ctx, plan)
	if err != nil {
		s.publishStatus("error", err.Error())
		return nil, err
	}

	emitted := map[string]bool{}
	if changes.Manifest {
		batch.Refreshed = true
		s.sched.Clear()
		s.sched = s.newScheduler()
		s.logger.InfoContext(ctx, "project configuration changed, scheduler rebuilt",
			"module", s.ws.CompilerOptions().Module, "output", s.ws.CompilerOptions().OutputMode())

		report := &model.EmitReport{
			Trigger:  filepath.Base(s.ws.ManifestPath()),
			Kind:     model.ChangeManifest,
			Affected: s.ws.AllEmittableFiles(),
			Emitted:  []model.EmittedFile{},
		}
		start := time.Now()
		if err := s.emitAll(ctx, report, emitted); err != nil {
			return nil, err
		}
		report.DurationMs = time.Since(start).Milliseconds()
		batch.Reports = append(batch.Reports, report)

		// Everything was re-emitted; per-file changes add nothing.
		s.finish(ctx, batch)
		return batch, nil
	}

	if len(changes.Added) > 0 || len(changes.Removed) > 0 {
		batch.Refreshed = true
		s.sched.OnProjectGraphRefresh()
	}

	for _, p := range changes.Removed {
		batch.Reports = append(batch.Reports, &model.EmitReport{
			Trigger:  string(p),
			Kind:     model.ChangeRemoved,
			Affected: []string{},
			Emitted:  []model.EmittedFile{},
		})
	}
	for _, c := range []struct {
		kind  model.ChangeKind
		paths []project.Path
	}{
		{model.ChangeAdded, changes.Added},
		{model.ChangeEdited, changes.Edited},
	} {
		for _, p := range c.paths {
			report, err := s.process(ctx, p, c.kind, emitted)
			if err != nil {
				return nil, err
			}
			batch.Reports = append(batch.Reports, report)
		}
	}

	s.finish(ctx, batch)
	return batch, nil
}

func (s *Session) finish(ctx context.Context, batch *model.BatchReport) {
	if len(batch.Reports) == 0 {
		s.logger.DebugContext(ctx, "batch had no effect")
		return
	}
	s.logger.InfoContext(ctx, "batch applied",
		"changes", len(batch.Reports), "emitted", batch.EmittedCount(), "refreshed", batch.Refreshed)
	s.publish(pubsub.TopicEmits, "batch", batch)
}

// collect applies plan to the workspace. Manifest changes are handled
// first: they may change which files exist at all.
func (s *Session) collect(ctx context.Context, plan Plan) (workspace.Changes, error) {
	var all workspace.Changes
	merge := func(c workspace.Changes) {
		all.Edited = append(all.Edited, c.Edited...)
		all.Added = append(all.Added, c.Added...)
		all.Removed = append(all.Removed, c.Removed...)
		all.Manifest = all.Manifest || c.Manifest
	}

	if plan.Manifest {
		c, err := s.ws.ReloadManifest(ctx)
		if err != nil {
			return all, fmt.Errorf("failed to reload manifest: %w", err)
		}
		merge(c)
	}
	if plan.Rescan && !all.Manifest {
		c, err := s.ws.Refresh(ctx)
		if err != nil {
			return all, fmt.Errorf("failed to rescan workspace: %w", err)
		}
		merge(c)
	}
	for _, name := range plan.Files {
		c, err := s.ws.Touch(name)
		if errors.Is(err, workspace.ErrNotInProject) {
			s.logger.DebugContext(ctx, "ignoring change outside the project", "file", name)
			continue
		}
		if err != nil {
			return all, err
		}
		merge(c)
	}

	all.Edited = dedupe(all.Edited)
	all.Added = dedupe(all.Added)
	all.Removed = dedupe(all.Removed)
	return all, nil
}

func dedupe(paths []project.Path) []project.Path {
	slices.Sort(paths)
	return slices.Compact(paths)
}

// process runs the scheduler for one changed file and emits the result.
// Files already emitted in this batch are not emitted twice.
func (s *Session) process(ctx context.Context, p project.Path, kind model.ChangeKind, emitted map[string]bool) (*model.EmitReport, error) {
	start := time.Now()

	trigger := string(p)
	if info, ok := s.ws.ScriptInfo(p); ok {
		trigger = info.FileName
	}
	affected := s.sched.FilesAffectedBy(p)
	slices.Sort(affected)

	report := &model.EmitReport{
		Trigger:  trigger,
		Kind:     kind,
		Affected: affected,
		Emitted:  []model.EmittedFile{},
	}
	if err := s.emitAll(ctx, report, emitted); err != nil {
		return nil, err
	}
	report.DurationMs = time.Since(start).Milliseconds()

	s.logger.DebugContext(ctx, "change processed", "file", trigger, "kind", kind, "affected", len(affected), "emitted", len(report.Emitted))
	return report, nil
}

func (s *Session) emitAll(ctx context.Context, report *model.EmitReport, emitted map[string]bool) error {
	for _, name := range report.Affected {
		if emitted[name] {
			continue
		}
		emitted[name] = true

		p, err := s.ws.Resolve(name)
		if err != nil {
			report.Skipped = append(report.Skipped, name)
			continue
		}

		var writeErr error
		ok := s.sched.EmitOne(p, func(path, text string, bom bool) {
			report.Emitted = append(report.Emitted, model.EmittedFile{Source: name, Path: path, Bytes: len(text), BOM: bom})
			if s.opts.Write && writeErr == nil {
				writeErr = writeOutput(path, text, bom)
			}
		})
		if writeErr != nil {
			s.logger.ErrorContext(ctx, "failed to write output", "file", name, "error", writeErr)
			return writeErr
		}
		if !ok {
			report.Skipped = append(report.Skipped, name)
		}
	}
	return nil
}

func writeOutput(path, text string, bom bool) error {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return fmt.Errorf("failed to create output directory: %w", err)
	}
	if bom {
		text = byteOrderMark + text
	}
	if err := os.WriteFile(path, []byte(text), 0o644); err != nil {
		return fmt.Errorf("failed to write %s: %w", path, err)
	}
	return nil
}

// Refresh rereads the manifest and rescans the workspace.
func (s *Session) Refresh(ctx context.Context) (*model.BatchReport, error) {
	return s.ApplyChanges(ctx, Plan{Rescan: true, Manifest: true})
}

// Reset drops all scheduler state. The next change to any file is treated
// as a first sighting.
func (s *Session) Reset() {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.sched.Clear()
	s.logger.Info("scheduler state cleared")
}

// dependencyGraph returns the live graph of a dependency-graph scheduler,
// or a freshly built one for a flat scheduler.
func (s *Session) dependencyGraph() *graph.Graph {
	if gs, ok := s.sched.(*scheduler.GraphScheduler); ok {
		return gs.Snapshot()
	}
	m := graph.NewMaintainer(s.ws, graph.WithInvariantChecks(s.opts.DebugChecks))
	m.EnsureUpToDate()
	return m.Graph()
}

// Graph renders the current dependency graph.
func (s *Session) Graph() *model.Graph {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.dependencyGraph().ToModel()
}

// Dependents returns the files that reference name directly, sorted.
func (s *Session) Dependents(name string) ([]string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	p, err := s.ws.Resolve(name)
	if err != nil {
		return nil, err
	}
	return s.dependencyGraph().ToModel().Dependents(string(p)), nil
}

// Cycles reports import cycles in the current dependency graph.
func (s *Session) Cycles() []model.Cycle {
	s.mu.Lock()
	defer s.mu.Unlock()
	return cycles.Find(s.dependencyGraph())
}

// Status describes the session for status subscribers.
func (s *Session) Status() pubsub.Status {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.status("ready", "")
}

func (s *Session) status(state, message string) pubsub.Status {
	return pubsub.Status{
		State:          state,
		Message:        message,
		Files:          len(s.ws.CurrentFiles()),
		ProjectVersion: s.ws.ProjectVersion(),
	}
}

func (s *Session) publishStatus(state, message string) {
	s.publish(pubsub.TopicStatus, state, s.status(state, message))
}

func (s *Session) publish(topic, eventType string, data any) {
	if s.opts.Publisher == nil {
		return
	}
	if err := s.opts.Publisher.Publish(topic, eventType, data); err != nil && !errors.Is(err, pubsub.ErrClosed) {
		s.logger.Warn("failed to publish event", "topic", topic, "error", err)
	}
}
