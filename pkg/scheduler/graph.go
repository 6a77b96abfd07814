package scheduler

import (
	"github.com/ritzau/emit-scheduler/pkg/graph"
	"github.com/ritzau/emit-scheduler/pkg/logging"
	"github.com/ritzau/emit-scheduler/pkg/project"
)

// GraphScheduler tracks which files' shapes feed which others and re-emits
// only the files a shape change can reach.
type GraphScheduler struct {
	host       project.Host
	maintainer *graph.Maintainer
	logger     *logging.Logger
}

// NewGraphScheduler creates a scheduler whose graph is built lazily on the
// first request.
func NewGraphScheduler(host project.Host, invariantChecks bool) *GraphScheduler {
	return &GraphScheduler{
		host:       host,
		maintainer: graph.NewMaintainer(host, graph.WithInvariantChecks(invariantChecks)),
		logger:     logging.New("scheduler.graph"),
	}
}

// Graph exposes the maintained dependency graph for inspection.
func (s *GraphScheduler) Graph() *graph.Graph {
	return s.maintainer.Graph()
}

// Snapshot brings the graph up to date with the project and returns it.
func (s *GraphScheduler) Snapshot() *graph.Graph {
	s.maintainer.EnsureUpToDate()
	return s.maintainer.Graph()
}

// FilesAffectedBy implements Scheduler.
func (s *GraphScheduler) FilesAffectedBy(path project.Path) []string {
	s.maintainer.EnsureUpToDate()
	g := s.maintainer.Graph()

	single := singleResult(s.host, path)
	n, ok := g.GetNode(path)
	if !ok || !n.UpdateShapeSignature() {
		s.logger.Trace("shape unchanged", "file", path, "known", ok)
		return single
	}

	if !n.IsExternalModuleOrAmbientOnly() {
		all := s.host.AllEmittableFiles()
		s.logger.Debug("global script shape changed, emitting whole project", "file", path, "files", len(all))
		return all
	}

	if mode := s.host.CompilerOptions().OutputMode(); mode != project.OutputModeNone {
		s.logger.Trace("shape changed, output not per file", "file", path, "output", mode)
		return single
	}

	return s.propagate(n)
}

// propagate walks reverse edges from a node whose shape changed. Every
// dependent reached is re-emitted; the walk continues past a dependent only
// if its own shape changed too. Each node is queued at most once.
func (s *GraphScheduler) propagate(root *graph.Node) []string {
	g := s.maintainer.Graph()

	seen := map[int64]bool{root.ID(): true}
	visited := []*graph.Node{root}

	// ReferencedBy returns a copy, so the live edge set may change under us.
	queue := g.ReferencedBy(root)
	for _, n := range queue {
		seen[n.ID()] = true
	}

	for len(queue) > 0 {
		n := queue[len(queue)-1]
		queue = queue[:len(queue)-1]

		if n.UpdateShapeSignature() {
			for _, dep := range g.ReferencedBy(n) {
				if !seen[dep.ID()] {
					seen[dep.ID()] = true
					queue = append(queue, dep)
				}
			}
		}
		visited = append(visited, n)
	}

	result := make([]string, 0, len(visited))
	for _, n := range visited {
		if info, ok := n.ScriptInfo(); ok && info.Emittable() {
			result = append(result, info.FileName)
		}
	}

	s.logger.Debug("shape change propagated", "file", root.Path(), "visited", len(visited), "affected", len(result))
	return result
}

// OnProjectGraphRefresh refreshes the graph if one has been built.
func (s *GraphScheduler) OnProjectGraphRefresh() {
	if s.maintainer.Graph().Len() == 0 {
		return
	}
	s.maintainer.EnsureUpToDate()
}

// EmitOne implements Scheduler.
func (s *GraphScheduler) EmitOne(path project.Path, write project.WriteFunc) bool {
	if _, ok := s.host.ScriptInfo(path); !ok {
		return false
	}
	if s.host.ContainsFile(path) {
		s.maintainer.Graph().GetOrCreateNode(path)
	}
	return emitOne(s.host, path, write)
}

// Clear implements Scheduler.
func (s *GraphScheduler) Clear() {
	s.maintainer.Clear()
}
