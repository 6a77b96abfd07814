package project

import "strings"

// Path identifies a file within a project. It is the file name normalized for
// the project's case sensitivity, so two spellings of the same file compare equal.
type Path string

// ToPath normalizes a file name into a Path.
func ToPath(fileName string, caseSensitive bool) Path {
	name := strings.ReplaceAll(fileName, "\\", "/")
	if !caseSensitive {
		name = strings.ToLower(name)
	}
	return Path(name)
}

// ModuleKind is the module system the project compiles to.
type ModuleKind string

const (
	ModuleNone     ModuleKind = "none"
	ModuleCommonJS ModuleKind = "commonjs"
	ModuleES2015   ModuleKind = "es2015"
)

// OutputMode describes how emitted files relate to each other.
type OutputMode int

const (
	OutputModeNone     OutputMode = iota // one output per source, dependency-aware
	OutputModeBundled                    // every source concatenated into one output
	OutputModeIsolated                   // every source compiled in isolation
)

func (m OutputMode) String() string {
	switch m {
	case OutputModeBundled:
		return "bundled"
	case OutputModeIsolated:
		return "isolated"
	default:
		return "none"
	}
}

// CompilerOptions is the subset of compiler configuration the emit scheduler reads.
type CompilerOptions struct {
	Module          ModuleKind `yaml:"module" json:"module"`
	OutFile         string     `yaml:"outFile" json:"outFile,omitempty"`
	IsolatedModules bool       `yaml:"isolatedModules" json:"isolatedModules,omitempty"`
	OutDir          string     `yaml:"outDir" json:"outDir,omitempty"`
	RootDir         string     `yaml:"rootDir" json:"rootDir,omitempty"`
	CaseSensitive   *bool      `yaml:"caseSensitive" json:"caseSensitive,omitempty"`
}

// OutputMode derives the output mode. A bundled output wins over isolated modules.
func (o CompilerOptions) OutputMode() OutputMode {
	if o.OutFile != "" {
		return OutputModeBundled
	}
	if o.IsolatedModules {
		return OutputModeIsolated
	}
	return OutputModeNone
}

// UsesModules reports whether file-level dependency tracking is meaningful.
func (o CompilerOptions) UsesModules() bool {
	return o.Module != "" && o.Module != ModuleNone
}

// IsCaseSensitive defaults to true when unset.
func (o CompilerOptions) IsCaseSensitive() bool {
	return o.CaseSensitive == nil || *o.CaseSensitive
}

// ScriptInfo is the project's record of one file.
type ScriptInfo struct {
	Path     Path
	FileName string
	Version  string

	// MixedContent marks a file whose text mirrors content embedded in another source.
	MixedContent bool
	// Dynamic marks a synthetic buffer with no file on disk.
	Dynamic bool
}

// Emittable reports whether the file produces real output.
func (si *ScriptInfo) Emittable() bool {
	return !si.MixedContent && !si.Dynamic
}

// StatementKind classifies a top-level statement.
type StatementKind int

const (
	StatementOther StatementKind = iota
	// StatementAmbientModule is `declare module "name" { ... }`.
	StatementAmbientModule
)

// Statement is a top-level statement of a parsed file.
type Statement struct {
	Kind StatementKind
	Name string
	Text string
}

// SourceFile is the structural representation produced by the type checker.
type SourceFile struct {
	FileName          string
	Text              string
	IsDeclarationFile bool
	// ExternalModule is true when the file is a module by the language's own rules.
	ExternalModule bool
	Statements     []Statement
}

// OutputFile is one artifact of an emit.
type OutputFile struct {
	Name               string
	Text               string
	WriteByteOrderMark bool
}

// EmitOutput is the result of asking the backend to emit one file.
type EmitOutput struct {
	Skipped bool
	Files   []OutputFile
}

// Host is everything the emit scheduler consumes from the surrounding
// project and compiler.
type Host interface {
	ScriptInfo(path Path) (*ScriptInfo, bool)
	SourceFile(path Path) (*SourceFile, bool)
	EmitOutput(path Path, declarationsOnly bool) EmitOutput
	ReferencedFiles(path Path) []Path
	AllEmittableFiles() []string
	CurrentFiles() []Path
	ContainsFile(path Path) bool
	ProjectVersion() string
	CompilerOptions() CompilerOptions
	// OutputRoot is the directory emitted names are resolved against, or "" when unset.
	OutputRoot() string
	Hash(text string) string
}

// WriteFunc persists one emitted artifact.
type WriteFunc func(path, text string, writeByteOrderMark bool)
