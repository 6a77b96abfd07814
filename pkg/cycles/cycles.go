package cycles

import (
	"slices"

	"github.com/ritzau/emit-scheduler/pkg/graph"
	"github.com/ritzau/emit-scheduler/pkg/model"
	"gonum.org/v1/gonum/graph/topo"
)

// Find returns every group of files that reference each other, directly or
// through other files. Each cycle's files are sorted, and cycles are ordered
// by their first file.
func Find(g *graph.Graph) []model.Cycle {
	sccs := topo.TarjanSCC(g.Directed())

	cycles := make([]model.Cycle, 0)
	for _, scc := range sccs {
		if len(scc) < 2 {
			continue
		}

		files := make([]string, 0, len(scc))
		for _, node := range scc {
			if path, ok := g.PathOf(node.ID()); ok {
				files = append(files, string(path))
			}
		}
		slices.Sort(files)
		cycles = append(cycles, model.Cycle{Files: files})
	}

	slices.SortFunc(cycles, func(a, b model.Cycle) int {
		return slices.Compare(a.Files, b.Files)
	})
	return cycles
}
