// Package workspace is the filesystem-backed project. It discovers source
// files under a root directory, keeps their text and versions, resolves
// references between them, and produces emit output. It implements
// project.Host.
//
// A Workspace is not safe for concurrent use; callers serialize access.
package workspace

import (
	"context"
	"crypto/sha256"
	"errors"
	"fmt"
	"os"
	"path"
	"path/filepath"
	"slices"
	"strconv"
	"strings"

	lru "github.com/hashicorp/golang-lru/v2"
	"golang.org/x/sync/errgroup"

	"github.com/ritzau/emit-scheduler/pkg/finder"
	"github.com/ritzau/emit-scheduler/pkg/logging"
	"github.com/ritzau/emit-scheduler/pkg/project"
	"github.com/ritzau/emit-scheduler/pkg/source"
)

// DefaultCacheSize bounds the declaration and emit caches when no size is
// configured.
const DefaultCacheSize = 512

const readWorkers = 8

type entry struct {
	name    string
	path    project.Path
	text    string
	scan    *source.File
	version int
	mirror  bool
}

type cacheKey struct {
	path    project.Path
	version int
}

// Options configures Load.
type Options struct {
	// Manifest is the manifest file, relative to the root unless absolute.
	// Empty means ManifestName.
	Manifest  string
	CacheSize int
}

// Workspace is a project rooted at a directory.
type Workspace struct {
	root         string
	manifestPath string
	manifest     *Manifest

	files   map[project.Path]*entry
	version int
	// stamp numbers file versions so that none repeats, even across a
	// manifest reload that rebuilds the file table.
	stamp int

	declarations *lru.Cache[cacheKey, string]
	emits        *lru.Cache[cacheKey, string]
	logger       *logging.Logger
}

// Changes summarizes what a refresh found.
type Changes struct {
	Edited  []project.Path
	Added   []project.Path
	Removed []project.Path
	// Manifest is set when the manifest changed.
	Manifest bool
}

// Empty reports whether nothing changed.
func (c Changes) Empty() bool {
	return len(c.Edited) == 0 && len(c.Added) == 0 && len(c.Removed) == 0 && !c.Manifest
}

// Load reads the manifest and every project file under root.
func Load(ctx context.Context, root string, opts Options) (*Workspace, error) {
	abs, err := filepath.Abs(root)
	if err != nil {
		return nil, fmt.Errorf("failed to resolve workspace root: %w", err)
	}

	manifestPath := opts.Manifest
	if manifestPath == "" {
		manifestPath = ManifestName
	}
	if !filepath.IsAbs(manifestPath) {
		manifestPath = filepath.Join(abs, manifestPath)
	}

	size := opts.CacheSize
	if size <= 0 {
		size = DefaultCacheSize
	}
	cache, err := lru.New[cacheKey, string](size)
	if err != nil {
		return nil, fmt.Errorf("failed to create declaration cache: %w", err)
	}
	emits, err := lru.New[cacheKey, string](size)
	if err != nil {
		return nil, fmt.Errorf("failed to create emit cache: %w", err)
	}

	w := &Workspace{
		root:         abs,
		manifestPath: manifestPath,
		files:        make(map[project.Path]*entry),
		declarations: cache,
		emits:        emits,
		logger:       logging.New("workspace"),
	}

	if w.manifest, err = LoadManifest(manifestPath); err != nil {
		return nil, err
	}
	if _, err := w.Refresh(ctx); err != nil {
		return nil, err
	}
	w.version = 1

	w.logger.Info("workspace loaded", "root", abs, "files", len(w.files), "module", w.manifest.CompilerOptions.Module)
	return w, nil
}

// Root returns the absolute workspace root.
func (w *Workspace) Root() string { return w.root }

// ManifestPath returns the absolute manifest path.
func (w *Workspace) ManifestPath() string { return w.manifestPath }

// Manifest returns the current manifest.
func (w *Workspace) Manifest() *Manifest { return w.manifest }

// Resolve maps a file name (absolute, or relative to the root) to a Path.
func (w *Workspace) Resolve(name string) (project.Path, error) {
	rel, err := w.relName(name)
	if err != nil {
		return "", err
	}
	p := w.toPath(rel)
	if _, ok := w.files[p]; !ok {
		return "", fmt.Errorf("%w: %s", ErrNotInProject, name)
	}
	return p, nil
}

// relName turns a file name into a clean slash-separated root-relative name.
func (w *Workspace) relName(name string) (string, error) {
	rel := name
	if filepath.IsAbs(name) {
		r, err := filepath.Rel(w.root, name)
		if err != nil || r == ".." || strings.HasPrefix(r, ".."+string(filepath.Separator)) {
			return "", fmt.Errorf("%w: %s", ErrNotInProject, name)
		}
		rel = r
	}
	return path.Clean(filepath.ToSlash(rel)), nil
}

func (w *Workspace) toPath(name string) project.Path {
	return project.ToPath(name, w.manifest.CompilerOptions.IsCaseSensitive())
}

func (w *Workspace) listFiles() ([]string, error) {
	var names []string
	if len(w.manifest.Files) > 0 {
		for _, name := range w.manifest.Files {
			name = path.Clean(filepath.ToSlash(name))
			if _, err := os.Stat(filepath.Join(w.root, filepath.FromSlash(name))); err == nil {
				names = append(names, name)
			}
		}
	} else {
		opts := w.manifest.CompilerOptions
		found, err := finder.FindSourceFiles(w.root, opts.OutDir)
		if err != nil {
			return nil, fmt.Errorf("failed to discover source files: %w", err)
		}
		names = found
	}

	names = slices.DeleteFunc(names, w.manifest.excluded)
	return names, nil
}

// Refresh rescans the root and rereads every file. Text changes bump the
// file's version; any change at all bumps the project version, which is what
// lets the dependency graph notice edited imports.
func (w *Workspace) Refresh(ctx context.Context) (Changes, error) {
	names, err := w.listFiles()
	if err != nil {
		return Changes{}, err
	}

	texts := make([]string, len(names))
	g, ctx := errgroup.WithContext(ctx)
	g.SetLimit(readWorkers)
	for i, name := range names {
		g.Go(func() error {
			if err := ctx.Err(); err != nil {
				return err
			}
			data, err := os.ReadFile(filepath.Join(w.root, filepath.FromSlash(name)))
			if err != nil {
				return fmt.Errorf("failed to read %s: %w", name, err)
			}
			texts[i] = string(data)
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return Changes{}, err
	}

	var changes Changes
	seen := make(map[project.Path]bool, len(names))
	for i, name := range names {
		p := w.toPath(name)
		seen[p] = true
		switch w.setText(name, texts[i]) {
		case textAdded:
			changes.Added = append(changes.Added, p)
		case textEdited:
			changes.Edited = append(changes.Edited, p)
		}
	}
	for p := range w.files {
		if !seen[p] {
			delete(w.files, p)
			changes.Removed = append(changes.Removed, p)
		}
	}
	slices.Sort(changes.Removed)

	if !changes.Empty() {
		w.version++
	}
	return changes, nil
}

type textChange int

const (
	textUnchanged textChange = iota
	textAdded
	textEdited
)

func (w *Workspace) setText(name, text string) textChange {
	p := w.toPath(name)
	if e, ok := w.files[p]; ok {
		if e.text == text {
			return textUnchanged
		}
		e.text = text
		e.scan = source.Parse(e.name, text)
		w.stamp++
		e.version = w.stamp
		return textEdited
	}
	w.stamp++
	w.files[p] = &entry{
		name:    name,
		path:    p,
		text:    text,
		scan:    source.Parse(name, text),
		version: w.stamp,
		mirror:  slices.Contains(w.manifest.Mirrored, name),
	}
	return textAdded
}

// Touch rereads one file from disk. It reports what happened to it:
// added, edited, removed, or nothing. Files outside the project are ignored.
func (w *Workspace) Touch(name string) (Changes, error) {
	rel, err := w.relName(name)
	if err != nil {
		return Changes{}, err
	}
	p := w.toPath(rel)

	var changes Changes
	if _, tracked := w.files[p]; !tracked && !w.belongs(rel) {
		return changes, nil
	}
	data, err := os.ReadFile(filepath.Join(w.root, filepath.FromSlash(rel)))
	switch {
	case errors.Is(err, os.ErrNotExist):
		if _, ok := w.files[p]; ok {
			delete(w.files, p)
			w.version++
			changes.Removed = append(changes.Removed, p)
		}
		return changes, nil
	case err != nil:
		return Changes{}, fmt.Errorf("failed to read %s: %w", rel, err)
	}

	switch w.setText(rel, string(data)) {
	case textAdded:
		w.version++
		changes.Added = append(changes.Added, p)
	case textEdited:
		w.version++
		changes.Edited = append(changes.Edited, p)
	}
	return changes, nil
}

func (w *Workspace) belongs(rel string) bool {
	if !finder.IsSourceFile(rel) || w.manifest.excluded(rel) {
		return false
	}
	if len(w.manifest.Files) > 0 {
		return slices.Contains(w.manifest.Files, rel)
	}
	if out := w.manifest.CompilerOptions.OutDir; out != "" {
		out = path.Clean(filepath.ToSlash(out))
		if rel == out || strings.HasPrefix(rel, out+"/") {
			return false
		}
	}
	return true
}

// ReloadManifest rereads the manifest. When it changed, the file set is
// rescanned and the project version bumped.
func (w *Workspace) ReloadManifest(ctx context.Context) (Changes, error) {
	m, err := LoadManifest(w.manifestPath)
	if err != nil {
		return Changes{}, err
	}
	if m.Equal(w.manifest) {
		return Changes{}, nil
	}

	// Case sensitivity or mirroring may have changed: start over.
	w.manifest = m
	w.files = make(map[project.Path]*entry)
	w.declarations.Purge()
	w.emits.Purge()

	changes, err := w.Refresh(ctx)
	if err != nil {
		return Changes{}, err
	}
	changes.Manifest = true
	w.version++
	w.logger.Info("manifest reloaded", "module", m.CompilerOptions.Module, "output", m.CompilerOptions.OutputMode(), "files", len(w.files))
	return changes, nil
}

// ScriptInfo implements project.Host.
func (w *Workspace) ScriptInfo(p project.Path) (*project.ScriptInfo, bool) {
	e, ok := w.files[p]
	if !ok {
		return nil, false
	}
	return &project.ScriptInfo{
		Path:         p,
		FileName:     e.name,
		Version:      strconv.Itoa(e.version),
		MixedContent: e.mirror,
	}, true
}

// SourceFile implements project.Host.
func (w *Workspace) SourceFile(p project.Path) (*project.SourceFile, bool) {
	e, ok := w.files[p]
	if !ok {
		return nil, false
	}
	return e.scan.ToSourceFile(), true
}

// ReferencedFiles implements project.Host. Relative specifiers resolve
// against the importing file; bare specifiers resolve to the file declaring
// an ambient module of that name. An unresolvable relative specifier still
// yields the path it would have had, which is not in the project.
func (w *Workspace) ReferencedFiles(p project.Path) []project.Path {
	e, ok := w.files[p]
	if !ok {
		return nil
	}

	var refs []project.Path
	dir := path.Dir(e.name)
	for _, spec := range e.scan.ModuleSpecifiers() {
		if ref, ok := w.resolveSpecifier(dir, spec); ok {
			refs = append(refs, ref)
		}
	}
	for _, ref := range e.scan.References {
		refs = append(refs, w.toPath(path.Join(dir, ref)))
	}
	return refs
}

func (w *Workspace) resolveSpecifier(dir, spec string) (project.Path, bool) {
	if !strings.HasPrefix(spec, "./") && !strings.HasPrefix(spec, "../") {
		for _, e := range w.sortedEntries() {
			for _, st := range e.scan.Statements {
				if st.Kind == source.KindAmbientModule && st.Specifier == spec {
					return e.path, true
				}
			}
		}
		return "", false
	}

	base := path.Join(dir, spec)
	candidates := []string{base, base + ".ts", base + ".d.ts", base + "/index.ts"}
	for _, c := range candidates {
		if p := w.toPath(c); w.files[p] != nil {
			return p, true
		}
	}
	return w.toPath(base + ".ts"), true
}

func (w *Workspace) sortedEntries() []*entry {
	entries := make([]*entry, 0, len(w.files))
	for _, e := range w.files {
		entries = append(entries, e)
	}
	slices.SortFunc(entries, func(a, b *entry) int { return strings.Compare(string(a.path), string(b.path)) })
	return entries
}

// EmitOutput implements project.Host.
func (w *Workspace) EmitOutput(p project.Path, declarationsOnly bool) project.EmitOutput {
	e, ok := w.files[p]
	if !ok {
		return project.EmitOutput{Skipped: true}
	}
	if declarationsOnly {
		return w.declarationOutput(e)
	}
	if e.scan.Declaration {
		return project.EmitOutput{Skipped: true}
	}

	opts := w.manifest.CompilerOptions
	if opts.OutFile != "" {
		text, err := w.bundle()
		if err != nil {
			w.logger.Warn("bundle emit failed", "file", e.name, "error", err)
			return project.EmitOutput{Skipped: true}
		}
		return project.EmitOutput{Files: []project.OutputFile{{Name: opts.OutFile, Text: text}}}
	}

	js, err := w.transpile(e)
	if err != nil {
		w.logger.Warn("emit failed", "file", e.name, "error", err)
		return project.EmitOutput{Skipped: true}
	}
	return project.EmitOutput{Files: []project.OutputFile{{Name: w.outputName(e.name, ".js"), Text: js}}}
}

func (w *Workspace) declarationOutput(e *entry) project.EmitOutput {
	if e.scan.Declaration {
		return project.EmitOutput{Files: []project.OutputFile{{Name: e.name, Text: e.text}}}
	}
	text := w.declaration(e, map[project.Path]bool{})
	if text == "" {
		return project.EmitOutput{}
	}
	return project.EmitOutput{Files: []project.OutputFile{{Name: w.outputName(e.name, ".d.ts"), Text: text}}}
}

// declaration is a file's own declaration text followed by that of every
// module it re-exports.
func (w *Workspace) declaration(e *entry, seen map[project.Path]bool) string {
	if seen[e.path] {
		return ""
	}
	seen[e.path] = true

	key := cacheKey{path: e.path, version: e.version}
	text, ok := w.declarations.Get(key)
	if !ok {
		text = e.scan.DeclarationText()
		w.declarations.Add(key, text)
	}

	dir := path.Dir(e.name)
	for _, spec := range e.scan.ReExportSpecifiers() {
		ref, ok := w.resolveSpecifier(dir, spec)
		if !ok {
			continue
		}
		if target, ok := w.files[ref]; ok {
			if d := w.declaration(target, seen); d != "" {
				text += "\n" + d
			}
		}
	}
	return text
}

// bundle concatenates the transpiled text of every emittable file in path
// order. One file that fails to transpile fails the whole bundle.
func (w *Workspace) bundle() (string, error) {
	var parts []string
	for _, e := range w.sortedEntries() {
		if e.mirror || e.scan.Declaration {
			continue
		}
		js, err := w.transpile(e)
		if err != nil {
			return "", err
		}
		parts = append(parts, js)
	}
	return strings.Join(parts, "\n"), nil
}

// outputName maps a source name to its output name, relative to OutputRoot.
func (w *Workspace) outputName(name, ext string) string {
	if rootDir := w.manifest.CompilerOptions.RootDir; rootDir != "" {
		if rel, err := filepath.Rel(filepath.FromSlash(rootDir), filepath.FromSlash(name)); err == nil && !strings.HasPrefix(rel, "..") {
			name = filepath.ToSlash(rel)
		}
	}
	return strings.TrimSuffix(name, ".ts") + ext
}

// AllEmittableFiles implements project.Host.
func (w *Workspace) AllEmittableFiles() []string {
	var names []string
	for _, e := range w.files {
		if !e.mirror {
			names = append(names, e.name)
		}
	}
	slices.Sort(names)
	return names
}

// CurrentFiles implements project.Host.
func (w *Workspace) CurrentFiles() []project.Path {
	paths := make([]project.Path, 0, len(w.files))
	for p := range w.files {
		paths = append(paths, p)
	}
	slices.Sort(paths)
	return paths
}

// ContainsFile implements project.Host.
func (w *Workspace) ContainsFile(p project.Path) bool {
	_, ok := w.files[p]
	return ok
}

// ProjectVersion implements project.Host.
func (w *Workspace) ProjectVersion() string {
	return strconv.Itoa(w.version)
}

// CompilerOptions implements project.Host.
func (w *Workspace) CompilerOptions() project.CompilerOptions {
	return w.manifest.CompilerOptions
}

// OutputRoot implements project.Host. Bundled output and per-file output
// without an outDir land relative to the root.
func (w *Workspace) OutputRoot() string {
	opts := w.manifest.CompilerOptions
	if opts.OutFile != "" || opts.OutDir == "" {
		return w.root
	}
	return filepath.Join(w.root, filepath.FromSlash(opts.OutDir))
}

// Hash implements project.Host.
func (w *Workspace) Hash(text string) string {
	return fmt.Sprintf("%x", sha256.Sum256([]byte(text)))
}

var _ project.Host = (*Workspace)(nil)
