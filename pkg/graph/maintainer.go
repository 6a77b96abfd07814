package graph

import (
	"github.com/ritzau/emit-scheduler/pkg/logging"
	"github.com/ritzau/emit-scheduler/pkg/project"
	"github.com/ritzau/emit-scheduler/pkg/sortedset"
)

// Maintainer keeps a Graph consistent with the project's file set and each
// file's reference list. Whole-graph work is gated on the project version;
// per-file work is gated on the file's content version.
type Maintainer struct {
	host  project.Host
	graph *Graph

	projectVersion    string
	hasProjectVersion bool

	checkInvariants bool
	logger          *logging.Logger
}

// MaintainerOption configures a Maintainer.
type MaintainerOption func(*Maintainer)

// WithInvariantChecks makes every refresh verify the mutual-edge invariant
// and log any violation.
func WithInvariantChecks(enabled bool) MaintainerOption {
	return func(m *Maintainer) {
		m.checkInvariants = enabled
	}
}

// NewMaintainer creates a maintainer with an empty graph.
func NewMaintainer(host project.Host, opts ...MaintainerOption) *Maintainer {
	m := &Maintainer{
		host:   host,
		graph:  New(host),
		logger: logging.New("graph"),
	}
	for _, opt := range opts {
		opt(m)
	}
	return m
}

// Graph returns the maintained graph. Callers must not mutate it.
func (m *Maintainer) Graph() *Graph {
	return m.graph
}

// EnsureUpToDate rebuilds edges for every project file and drops nodes of
// files that left the project. It does nothing if the project version is
// unchanged since the last call.
func (m *Maintainer) EnsureUpToDate() {
	version := m.host.ProjectVersion()
	if m.hasProjectVersion && m.projectVersion == version {
		return
	}

	// A file whose imports could not all be resolved gets another look now
	// that the file set may have changed.
	for _, n := range m.graph.nodes {
		if n.unresolved {
			n.hasVersion = false
		}
	}

	files := m.host.CurrentFiles()
	for _, path := range files {
		m.UpdateFileReferences(m.graph.GetOrCreateNode(path))
	}

	var removed int
	for _, n := range m.graph.Nodes() {
		if !m.host.ContainsFile(n.Path()) {
			for _, dep := range m.graph.ReferencedBy(n) {
				dep.unresolved = true
			}
			m.graph.RemoveNode(n.Path())
			removed++
		}
	}

	m.projectVersion = version
	m.hasProjectVersion = true

	m.logger.Debug("dependency graph refreshed",
		"projectVersion", version,
		"files", len(files),
		"nodes", m.graph.Len(),
		"removed", removed)

	if m.checkInvariants {
		if err := m.graph.CheckInvariants(); err != nil {
			m.logger.Error("dependency graph invariant violated", "error", err)
		}
	}
}

// UpdateFileReferences recomputes the outgoing edges of n unless its content
// version is the one they were computed from.
func (m *Maintainer) UpdateFileReferences(n *Node) {
	var version string
	if info, ok := m.host.ScriptInfo(n.Path()); ok {
		version = info.Version
	}
	if n.hasVersion && n.version == version {
		return
	}

	var refs []int64
	n.unresolved = false
	if n.IsExternalModuleOrAmbientOnly() {
		for _, path := range m.host.ReferencedFiles(n.Path()) {
			if path == n.Path() {
				continue
			}
			if !m.host.ContainsFile(path) {
				n.unresolved = true
				continue
			}
			refs = append(refs, m.graph.GetOrCreateNode(path).id)
		}
		refs = sortedset.From(refs, m.graph.compare)
	}

	m.graph.setReferences(n, refs)
	n.version = version
	n.hasVersion = true

	m.logger.Trace("references updated", "file", n.Path(), "version", version, "references", len(refs))
}

// Clear drops every node and the remembered project version.
func (m *Maintainer) Clear() {
	m.graph = New(m.host)
	m.projectVersion = ""
	m.hasProjectVersion = false
}
