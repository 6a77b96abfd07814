// Package projecttest provides an in-memory project.Host for tests.
package projecttest

import (
	"crypto/sha256"
	"fmt"
	"path"
	"slices"
	"strconv"
	"strings"

	"github.com/ritzau/emit-scheduler/pkg/project"
)

// File describes one file of a FakeHost project.
type File struct {
	Name string
	Text string

	// Decl is the declaration emit. Empty means the emit produces nothing.
	Decl string
	// ReExports appends the declaration emit of every import to Decl,
	// the way `export * from` carries another module's shape.
	ReExports bool

	Declaration bool     // a .d.ts file; its text is its shape
	Module      bool     // a module by the language's own rules
	Global      bool     // has ordinary top-level statements
	Ambient     []string // names of `declare module "x"` statements
	Imports     []string // names of referenced files

	Mixed    bool
	Dynamic  bool
	Missing  bool // no representation available
	SkipEmit bool

	version int
}

// FakeHost is a mutable in-memory project. Adding or removing files and
// changing options bump the project version; editing a file bumps its own.
type FakeHost struct {
	Options project.CompilerOptions
	Root    string

	files   map[project.Path]*File
	version int

	SourceFileCalls      int
	ReferencedFilesCalls int
}

// NewFakeHost creates a project compiling to commonjs modules.
func NewFakeHost(files ...File) *FakeHost {
	h := &FakeHost{
		Options: project.CompilerOptions{Module: project.ModuleCommonJS},
		files:   make(map[project.Path]*File),
	}
	for _, f := range files {
		h.Add(f)
	}
	return h
}

func toPath(name string) project.Path {
	return project.ToPath(name, true)
}

// Add puts f into the project.
func (h *FakeHost) Add(f File) {
	f.version = 1
	h.files[toPath(f.Name)] = &f
	h.version++
}

// Remove takes the named file out of the project.
func (h *FakeHost) Remove(name string) {
	delete(h.files, toPath(name))
	h.version++
}

// Edit mutates the named file and bumps its version.
func (h *FakeHost) Edit(name string, fn func(f *File)) {
	f, ok := h.files[toPath(name)]
	if !ok {
		panic("projecttest: edit of unknown file " + name)
	}
	fn(f)
	f.version++
}

// SetOptions replaces the compiler options and bumps the project version.
func (h *FakeHost) SetOptions(o project.CompilerOptions) {
	h.Options = o
	h.version++
}

func (h *FakeHost) ScriptInfo(p project.Path) (*project.ScriptInfo, bool) {
	f, ok := h.files[p]
	if !ok {
		return nil, false
	}
	return &project.ScriptInfo{
		Path:         p,
		FileName:     f.Name,
		Version:      strconv.Itoa(f.version),
		MixedContent: f.Mixed,
		Dynamic:      f.Dynamic,
	}, true
}

func (h *FakeHost) SourceFile(p project.Path) (*project.SourceFile, bool) {
	h.SourceFileCalls++
	f, ok := h.files[p]
	if !ok || f.Missing {
		return nil, false
	}

	sf := &project.SourceFile{
		FileName:          f.Name,
		Text:              f.Text,
		IsDeclarationFile: f.Declaration,
		ExternalModule:    f.Module,
	}
	for _, name := range f.Ambient {
		sf.Statements = append(sf.Statements, project.Statement{Kind: project.StatementAmbientModule, Name: name})
	}
	if f.Global {
		sf.Statements = append(sf.Statements, project.Statement{Kind: project.StatementOther})
	}
	return sf, true
}

func (h *FakeHost) declaration(p project.Path, seen map[project.Path]bool) string {
	f, ok := h.files[p]
	if !ok || seen[p] {
		return ""
	}
	seen[p] = true

	decl := f.Decl
	if f.ReExports {
		for _, imp := range f.Imports {
			if d := h.declaration(toPath(imp), seen); d != "" {
				decl += "\n" + d
			}
		}
	}
	return decl
}

func (h *FakeHost) EmitOutput(p project.Path, declarationsOnly bool) project.EmitOutput {
	f, ok := h.files[p]
	if !ok {
		return project.EmitOutput{Skipped: true}
	}
	base := strings.TrimSuffix(f.Name, path.Ext(f.Name))

	if declarationsOnly {
		decl := h.declaration(p, map[project.Path]bool{})
		if decl == "" {
			return project.EmitOutput{}
		}
		return project.EmitOutput{Files: []project.OutputFile{{Name: base + ".d.ts", Text: decl}}}
	}

	if f.SkipEmit {
		return project.EmitOutput{Skipped: true}
	}
	return project.EmitOutput{Files: []project.OutputFile{{Name: base + ".js", Text: f.Text}}}
}

func (h *FakeHost) ReferencedFiles(p project.Path) []project.Path {
	h.ReferencedFilesCalls++
	f, ok := h.files[p]
	if !ok {
		return nil
	}
	refs := make([]project.Path, 0, len(f.Imports))
	for _, imp := range f.Imports {
		refs = append(refs, toPath(imp))
	}
	return refs
}

func (h *FakeHost) AllEmittableFiles() []string {
	var names []string
	for _, f := range h.files {
		if !f.Mixed && !f.Dynamic {
			names = append(names, f.Name)
		}
	}
	slices.Sort(names)
	return names
}

func (h *FakeHost) CurrentFiles() []project.Path {
	paths := make([]project.Path, 0, len(h.files))
	for p := range h.files {
		paths = append(paths, p)
	}
	slices.Sort(paths)
	return paths
}

func (h *FakeHost) ContainsFile(p project.Path) bool {
	_, ok := h.files[p]
	return ok
}

func (h *FakeHost) ProjectVersion() string {
	return strconv.Itoa(h.version)
}

func (h *FakeHost) CompilerOptions() project.CompilerOptions {
	return h.Options
}

func (h *FakeHost) OutputRoot() string {
	return h.Root
}

func (h *FakeHost) Hash(text string) string {
	return fmt.Sprintf("%x", sha256.Sum256([]byte(text)))
}

var _ project.Host = (*FakeHost)(nil)
