package shape

import (
	"testing"

	"github.com/ritzau/emit-scheduler/pkg/project"
	"github.com/ritzau/emit-scheduler/pkg/project/projecttest"
)

func TestUpdateShapeSignature(t *testing.T) {
	host := projecttest.NewFakeHost(projecttest.File{
		Name:   "src/a.ts",
		Text:   "export const a = 1 // one",
		Decl:   "export declare const a = 1;",
		Module: true,
	})
	tr := NewTracker(host, "src/a.ts")

	if _, ok := tr.Signature(); ok {
		t.Fatal("new tracker should have no signature")
	}
	if !tr.UpdateShapeSignature() {
		t.Error("first update should report a change")
	}
	if tr.UpdateShapeSignature() {
		t.Error("second update with no edit should report no change")
	}

	// A comment-only edit leaves the declaration emit alone.
	host.Edit("src/a.ts", func(f *projecttest.File) { f.Text = "export const a = 1 // uno" })
	if tr.UpdateShapeSignature() {
		t.Error("comment-only edit should not change the shape")
	}

	host.Edit("src/a.ts", func(f *projecttest.File) { f.Decl = "export declare const a: number;" })
	if !tr.UpdateShapeSignature() {
		t.Error("declaration change should change the shape")
	}
}

func TestUpdateShapeSignatureDeclarationFileHashesText(t *testing.T) {
	host := projecttest.NewFakeHost(projecttest.File{
		Name:        "types/env.d.ts",
		Text:        "declare const ENV: string;",
		Declaration: true,
	})
	tr := NewTracker(host, "types/env.d.ts")
	tr.UpdateShapeSignature()

	sig, ok := tr.Signature()
	if !ok || sig != host.Hash("declare const ENV: string;") {
		t.Errorf("declaration file signature = %q, want hash of its text", sig)
	}

	host.Edit("types/env.d.ts", func(f *projecttest.File) { f.Text += " // note" })
	if !tr.UpdateShapeSignature() {
		t.Error("any text edit of a declaration file changes its shape")
	}
}

func TestUpdateShapeSignatureMissingRepresentation(t *testing.T) {
	host := projecttest.NewFakeHost(projecttest.File{Name: "a.ts", Missing: true})
	tr := NewTracker(host, "a.ts")

	for i := 0; i < 2; i++ {
		if !tr.UpdateShapeSignature() {
			t.Errorf("call %d: missing representation must count as changed", i+1)
		}
	}
}

func TestUpdateShapeSignatureEmptyEmitKeepsSignature(t *testing.T) {
	host := projecttest.NewFakeHost(projecttest.File{Name: "a.ts", Decl: "export {};", Module: true})
	tr := NewTracker(host, "a.ts")
	tr.UpdateShapeSignature()
	before, _ := tr.Signature()

	host.Edit("a.ts", func(f *projecttest.File) { f.Decl = "" })
	if tr.UpdateShapeSignature() {
		t.Error("an empty declaration emit should not register as a change")
	}
	if after, _ := tr.Signature(); after != before {
		t.Errorf("signature changed from %q to %q on empty emit", before, after)
	}
}

func TestIsExternalModuleOrAmbientOnly(t *testing.T) {
	tests := []struct {
		name     string
		file     *project.SourceFile
		expected bool
	}{
		{"nil", nil, false},
		{"module", &project.SourceFile{ExternalModule: true, Statements: []project.Statement{{Kind: project.StatementOther}}}, true},
		{"empty script", &project.SourceFile{}, true},
		{"ambient only", &project.SourceFile{Statements: []project.Statement{
			{Kind: project.StatementAmbientModule, Name: "fs"},
			{Kind: project.StatementAmbientModule, Name: "path"},
		}}, true},
		{"ambient plus global", &project.SourceFile{Statements: []project.Statement{
			{Kind: project.StatementAmbientModule, Name: "fs"},
			{Kind: project.StatementOther},
		}}, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := IsExternalModuleOrAmbientOnly(tt.file); got != tt.expected {
				t.Errorf("IsExternalModuleOrAmbientOnly() = %v, want %v", got, tt.expected)
			}
		})
	}
}

func TestTrackerIsExternalModuleOrAmbientOnlyWithoutRepresentation(t *testing.T) {
	host := projecttest.NewFakeHost(projecttest.File{Name: "a.ts", Missing: true})
	if NewTracker(host, "a.ts").IsExternalModuleOrAmbientOnly() {
		t.Error("a file without representation is not a module")
	}
}
