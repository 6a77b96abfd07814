// Package source is a lightweight reader for TypeScript-like source text. It
// splits a file into top-level statements and extracts what the workspace
// host needs: import specifiers, reference directives, ambient module names,
// a declaration view of the file's public surface, and an emit view.
//
// It is not a parser. Statement boundaries are found by tracking bracket
// depth outside of strings and comments, which is enough for the files the
// emit scheduler is pointed at.
package source

import (
	"regexp"
	"strings"

	"github.com/ritzau/emit-scheduler/pkg/project"
)

// Kind classifies a top-level statement.
type Kind int

const (
	KindOther Kind = iota
	KindImport
	KindTypeImport
	KindExport
	KindReExport
	KindAmbientModule // declare module "name" { ... }
	KindDeclare       // any other declare statement
	KindType          // interface or type alias
)

// Statement is one top-level statement.
type Statement struct {
	Kind Kind
	// Specifier is the module named by an import or re-export, or the name
	// of an ambient module.
	Specifier string
	// Raw is the source text including leading comments.
	Raw string
	// Code is the text without comments, whitespace collapsed.
	Code string
}

// File is a scanned source file.
type File struct {
	Name           string
	Text           string
	Declaration    bool
	ExternalModule bool
	Statements     []Statement
	// References holds triple-slash reference paths in source order.
	References []string
}

var (
	referenceRE = regexp.MustCompile(`^\s*///\s*<reference\s+path\s*=\s*["']([^"']+)["']`)
	literalRE   = regexp.MustCompile(`["']([^"']*)["']`)
	typeAliasRE = regexp.MustCompile(`^(export )?(declare )?type [A-Za-z_$][\w$]*(<.*>)? ?=`)
)

// IsDeclarationName reports whether name is a declaration-only file.
func IsDeclarationName(name string) bool {
	return strings.HasSuffix(name, ".d.ts")
}

// Parse scans text.
func Parse(name, text string) *File {
	f := &File{
		Name:        name,
		Text:        text,
		Declaration: IsDeclarationName(name),
	}

	for _, line := range strings.Split(text, "\n") {
		if m := referenceRE.FindStringSubmatch(line); m != nil {
			f.References = append(f.References, m[1])
		}
	}

	for _, st := range split(text) {
		st.Kind, st.Specifier = classify(st.Code)
		switch st.Kind {
		case KindImport, KindTypeImport, KindExport, KindReExport:
			f.ExternalModule = true
		}
		f.Statements = append(f.Statements, st)
	}
	return f
}

// ModuleSpecifiers returns the specifiers of imports and re-exports.
func (f *File) ModuleSpecifiers() []string {
	var specs []string
	for _, st := range f.Statements {
		switch st.Kind {
		case KindImport, KindTypeImport, KindReExport:
			if st.Specifier != "" {
				specs = append(specs, st.Specifier)
			}
		}
	}
	return specs
}

// ReExportSpecifiers returns the specifiers of `export ... from` statements.
func (f *File) ReExportSpecifiers() []string {
	var specs []string
	for _, st := range f.Statements {
		if st.Kind == KindReExport {
			specs = append(specs, st.Specifier)
		}
	}
	return specs
}

// ToSourceFile converts the scan into the representation the scheduler consumes.
func (f *File) ToSourceFile() *project.SourceFile {
	sf := &project.SourceFile{
		FileName:          f.Name,
		Text:              f.Text,
		IsDeclarationFile: f.Declaration,
		ExternalModule:    f.ExternalModule,
	}
	for _, st := range f.Statements {
		kind := project.StatementOther
		if st.Kind == KindAmbientModule {
			kind = project.StatementAmbientModule
		}
		sf.Statements = append(sf.Statements, project.Statement{Kind: kind, Name: st.Specifier, Text: st.Code})
	}
	return sf
}

// DeclarationText is the file's public surface: signatures of what it
// exports (or, for a script, of everything at top level), its imports, and
// its ambient declarations. Comments and formatting do not affect it.
func (f *File) DeclarationText() string {
	var lines []string
	for _, st := range f.Statements {
		switch st.Kind {
		case KindImport, KindTypeImport, KindReExport, KindAmbientModule, KindDeclare:
			lines = append(lines, st.Code)
		case KindExport:
			lines = append(lines, "export "+signature(strings.TrimPrefix(st.Code, "export ")))
		case KindType, KindOther:
			if !f.ExternalModule {
				lines = append(lines, signature(st.Code))
			}
		}
	}
	return strings.Join(lines, "\n")
}

func classify(code string) (Kind, string) {
	switch {
	case strings.HasPrefix(code, "import type "):
		return KindTypeImport, lastLiteral(code)
	case hasKeyword(code, "import"):
		return KindImport, lastLiteral(code)
	case strings.HasPrefix(code, "export ") && strings.Contains(code, " from "):
		return KindReExport, lastLiteral(code)
	case strings.HasPrefix(code, "export ") && typeAliasRE.MatchString(code):
		return KindExport, ""
	case strings.HasPrefix(code, "export ") || strings.HasPrefix(code, "export="):
		return KindExport, ""
	case strings.HasPrefix(code, "declare module \"") || strings.HasPrefix(code, "declare module '"):
		return KindAmbientModule, firstLiteral(code)
	case strings.HasPrefix(code, "declare "):
		return KindDeclare, ""
	case strings.HasPrefix(code, "interface ") || typeAliasRE.MatchString(code):
		return KindType, ""
	}
	return KindOther, ""
}

func hasKeyword(code, kw string) bool {
	if !strings.HasPrefix(code, kw) || len(code) == len(kw) {
		return false
	}
	switch code[len(kw)] {
	case ' ', '{', '"', '\'', '*':
		return true
	}
	return false
}

func firstLiteral(code string) string {
	if m := literalRE.FindStringSubmatch(code); m != nil {
		return m[1]
	}
	return ""
}

func lastLiteral(code string) string {
	all := literalRE.FindAllStringSubmatch(code, -1)
	if len(all) == 0 {
		return ""
	}
	return all[len(all)-1][1]
}

// signature drops what does not affect a declaration's type: function
// bodies and initializers of annotated variables.
func signature(code string) string {
	decl := strings.TrimPrefix(code, "default ")
	decl = strings.TrimPrefix(decl, "async ")

	switch {
	case strings.HasPrefix(decl, "function ") || strings.HasPrefix(decl, "function*"):
		if i := bodyStart(code); i > 0 {
			return strings.TrimSpace(code[:i]) + ";"
		}
	case strings.HasPrefix(decl, "const ") || strings.HasPrefix(decl, "let ") || strings.HasPrefix(decl, "var "):
		colon, eq := topLevelIndex(code, ':'), topLevelIndex(code, '=')
		if colon >= 0 && eq > colon {
			return strings.TrimSpace(code[:eq]) + ";"
		}
	}
	return code
}

// bodyStart finds the `{` opening a function body: the first brace at depth
// zero after the parameter list closes.
func bodyStart(code string) int {
	open := strings.IndexByte(code, '(')
	if open < 0 {
		return -1
	}
	depth := 0
	for i := open; i < len(code); i++ {
		switch code[i] {
		case '(':
			depth++
		case ')':
			depth--
			if depth == 0 {
				return indexAtDepthZero(code, i+1, '{')
			}
		}
	}
	return -1
}

func indexAtDepthZero(code string, from int, target byte) int {
	depth := 0
	for i := from; i < len(code); i++ {
		c := code[i]
		if c == target && depth == 0 {
			return i
		}
		switch c {
		case '(', '[', '<':
			depth++
		case ')', ']', '>':
			if depth > 0 {
				depth--
			}
		}
	}
	return -1
}

func topLevelIndex(code string, target byte) int {
	depth := 0
	for i := 0; i < len(code); i++ {
		c := code[i]
		switch c {
		case '(', '[', '{', '<':
			depth++
			continue
		case ')', ']', '}', '>':
			if depth > 0 {
				depth--
			}
			continue
		}
		if c == target && depth == 0 {
			// `=>` and `==` are not assignments
			if target == '=' && i+1 < len(code) && (code[i+1] == '>' || code[i+1] == '=') {
				i++
				continue
			}
			return i
		}
	}
	return -1
}
