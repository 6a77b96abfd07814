package workspace

import (
	"fmt"
	"strings"

	"github.com/evanw/esbuild/pkg/api"

	"github.com/ritzau/emit-scheduler/pkg/project"
)

// outputFormat maps the manifest's module kind to an esbuild output format.
// Files compiled without a module system keep their statements as written.
func outputFormat(kind project.ModuleKind) api.Format {
	switch kind {
	case project.ModuleCommonJS:
		return api.FormatCommonJS
	case project.ModuleES2015:
		return api.FormatESModule
	default:
		return api.FormatDefault
	}
}

// transpile strips types from a TypeScript file and converts its module
// syntax. Outputs are cached per file version; the cache is purged when the
// manifest, and with it the output format, changes.
func (w *Workspace) transpile(e *entry) (string, error) {
	key := cacheKey{path: e.path, version: e.version}
	if js, ok := w.emits.Get(key); ok {
		return js, nil
	}

	result := api.Transform(e.text, api.TransformOptions{
		Loader:     api.LoaderTS,
		Format:     outputFormat(w.manifest.CompilerOptions.Module),
		Sourcefile: e.name,
		Target:     api.ES2020,
		Charset:    api.CharsetUTF8,
	})
	if len(result.Errors) > 0 {
		msgs := make([]string, 0, len(result.Errors))
		for _, m := range result.Errors {
			if m.Location != nil {
				msgs = append(msgs, fmt.Sprintf("%s:%d:%d: %s", m.Location.File, m.Location.Line, m.Location.Column, m.Text))
			} else {
				msgs = append(msgs, m.Text)
			}
		}
		return "", fmt.Errorf("failed to transpile %s: %s", e.name, strings.Join(msgs, "; "))
	}

	js := string(result.Code)
	w.emits.Add(key, js)
	return js, nil
}
