// Package scheduler decides which files must be re-emitted after one file
// changed, and emits single files on request.
//
// Two strategies share one contract. FlatScheduler treats the project as
// dependency free and is used when the project does not compile to modules.
// GraphScheduler maintains a file dependency graph and propagates shape
// changes along reverse edges. New picks one from the project configuration.
//
// A Scheduler is not safe for concurrent use. Hosts serving concurrent
// requests must serialize access per project.
package scheduler

import (
	"path/filepath"

	"github.com/ritzau/emit-scheduler/pkg/logging"
	"github.com/ritzau/emit-scheduler/pkg/project"
)

// Scheduler is the contract both strategies expose.
type Scheduler interface {
	// FilesAffectedBy returns the file names to re-emit after path changed.
	// The result is unordered.
	FilesAffectedBy(path project.Path) []string

	// OnProjectGraphRefresh hints that the project file set or configuration
	// may have changed.
	OnProjectGraphRefresh()

	// EmitOne emits path unconditionally through write. It reports false when
	// the backend skipped the emit or produced nothing.
	EmitOne(path project.Path, write project.WriteFunc) bool

	// Clear drops all cached state.
	Clear()
}

// Option configures a scheduler built by New.
type Option func(*options)

type options struct {
	invariantChecks bool
}

// WithInvariantChecks verifies the dependency graph after every refresh.
// It only affects GraphScheduler.
func WithInvariantChecks(enabled bool) Option {
	return func(o *options) {
		o.invariantChecks = enabled
	}
}

// New selects the strategy from the project's module kind.
func New(host project.Host, opts ...Option) Scheduler {
	var o options
	for _, opt := range opts {
		opt(&o)
	}

	co := host.CompilerOptions()
	if !co.UsesModules() {
		logging.Debug("using flat emit scheduler", "module", co.Module, "output", co.OutputMode())
		return NewFlatScheduler(host)
	}
	logging.Debug("using dependency graph emit scheduler", "module", co.Module, "output", co.OutputMode())
	return NewGraphScheduler(host, o.invariantChecks)
}

// singleResult is the answer when only the changed file itself is affected.
func singleResult(host project.Host, path project.Path) []string {
	info, ok := host.ScriptInfo(path)
	if !ok || !info.Emittable() {
		return []string{}
	}
	return []string{info.FileName}
}

// emitOne runs a full emit for path and hands every artifact to write,
// resolved against the output root or the source's directory.
func emitOne(host project.Host, path project.Path, write project.WriteFunc) bool {
	info, ok := host.ScriptInfo(path)
	if !ok {
		return false
	}

	out := host.EmitOutput(path, false)
	if out.Skipped {
		return false
	}

	base := host.OutputRoot()
	if base == "" {
		base = filepath.Dir(info.FileName)
	}
	for _, f := range out.Files {
		write(absolutePath(f.Name, base), f.Text, f.WriteByteOrderMark)
	}
	return len(out.Files) > 0
}

func absolutePath(name, base string) string {
	if filepath.IsAbs(name) {
		return filepath.Clean(name)
	}
	abs, err := filepath.Abs(filepath.Join(base, name))
	if err != nil {
		return filepath.Join(base, name)
	}
	return abs
}
