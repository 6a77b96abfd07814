package scheduler

import (
	"github.com/ritzau/emit-scheduler/pkg/logging"
	"github.com/ritzau/emit-scheduler/pkg/project"
)

// FlatScheduler keeps no graph. A shape change means either a re-bundle
// (handled by emitting the one changed file) or a full re-emit.
type FlatScheduler struct {
	host     project.Host
	trackers *trackerCache
	logger   *logging.Logger
}

// NewFlatScheduler creates a scheduler with an empty tracker cache.
func NewFlatScheduler(host project.Host) *FlatScheduler {
	return &FlatScheduler{
		host:     host,
		trackers: newTrackerCache(host),
		logger:   logging.New("scheduler.flat"),
	}
}

// FilesAffectedBy implements Scheduler.
func (s *FlatScheduler) FilesAffectedBy(path project.Path) []string {
	single := singleResult(s.host, path)
	if _, ok := s.host.ScriptInfo(path); !ok {
		return single
	}
	t := s.trackers.get(path)

	if !t.UpdateShapeSignature() {
		s.logger.Trace("shape unchanged", "file", path)
		return single
	}

	if mode := s.host.CompilerOptions().OutputMode(); mode != project.OutputModeNone {
		s.logger.Trace("shape changed, output not per file", "file", path, "output", mode)
		return single
	}

	all := s.host.AllEmittableFiles()
	s.logger.Debug("shape changed, emitting whole project", "file", path, "files", len(all))
	return all
}

// OnProjectGraphRefresh drops trackers of files that left the project.
func (s *FlatScheduler) OnProjectGraphRefresh() {
	s.trackers.prune()
}

// EmitOne implements Scheduler.
func (s *FlatScheduler) EmitOne(path project.Path, write project.WriteFunc) bool {
	if _, ok := s.host.ScriptInfo(path); !ok {
		return false
	}
	s.trackers.get(path)
	return emitOne(s.host, path, write)
}

// Clear implements Scheduler.
func (s *FlatScheduler) Clear() {
	s.trackers.clear()
}

// Tracked returns the number of cached trackers.
func (s *FlatScheduler) Tracked() int {
	return s.trackers.len()
}
