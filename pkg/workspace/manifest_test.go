package workspace

import (
	"errors"
	"path/filepath"
	"testing"

	"github.com/ritzau/emit-scheduler/pkg/project"
)

func TestParseManifest(t *testing.T) {
	m, err := ParseManifest([]byte(`
compilerOptions:
  module: es2015
  isolatedModules: true
  outDir: dist
files:
  - src/main.ts
exclude:
  - "**.spec.ts"
  - generated
mirrored:
  - src/embedded.ts
`))
	if err != nil {
		t.Fatalf("ParseManifest() error = %v", err)
	}

	opts := m.CompilerOptions
	if opts.Module != project.ModuleES2015 || !opts.IsolatedModules || opts.OutDir != "dist" {
		t.Errorf("CompilerOptions = %+v", opts)
	}
	if opts.OutputMode() != project.OutputModeIsolated {
		t.Errorf("OutputMode() = %v", opts.OutputMode())
	}
	if len(m.Files) != 1 || len(m.Mirrored) != 1 {
		t.Errorf("Files = %v, Mirrored = %v", m.Files, m.Mirrored)
	}
}

func TestParseManifestErrors(t *testing.T) {
	tests := []struct {
		name string
		yaml string
	}{
		{"unknown key", "compilerOption:\n  module: none\n"},
		{"unknown module", "compilerOptions:\n  module: amd\n"},
		{"bad pattern", "exclude:\n  - \"[\"\n"},
		{"not yaml", "compilerOptions: [\n"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if _, err := ParseManifest([]byte(tt.yaml)); !errors.Is(err, ErrManifest) {
				t.Errorf("ParseManifest() error = %v, want ErrManifest", err)
			}
		})
	}
}

func TestLoadManifestMissingFile(t *testing.T) {
	m, err := LoadManifest(filepath.Join(t.TempDir(), ManifestName))
	if err != nil {
		t.Fatalf("LoadManifest() error = %v", err)
	}
	if !m.Equal(DefaultManifest()) {
		t.Errorf("missing manifest = %+v, want defaults", m)
	}
}

func TestExcluded(t *testing.T) {
	m := &Manifest{Exclude: []string{"generated", "*.spec.ts", "src/legacy/*"}}
	tests := []struct {
		name string
		want bool
	}{
		{"generated/api.ts", true},
		{"generated/deep/api.ts", true},
		{"main.spec.ts", true},
		{"src/legacy/old.ts", true},
		{"src/main.ts", false},
		{"src/main.spec.ts", false},
	}
	for _, tt := range tests {
		if got := m.excluded(tt.name); got != tt.want {
			t.Errorf("excluded(%q) = %v, want %v", tt.name, got, tt.want)
		}
	}
}
