package workspace

import (
	"bytes"
	"errors"
	"fmt"
	"os"
	"path"
	"reflect"

	"gopkg.in/yaml.v3"

	"github.com/ritzau/emit-scheduler/pkg/project"
)

// ManifestName is the default manifest file name, relative to the workspace root.
const ManifestName = "emitproject.yaml"

var (
	// ErrManifest wraps every manifest read or decode failure.
	ErrManifest = errors.New("invalid project manifest")
	// ErrNotInProject is returned for files the workspace does not track.
	ErrNotInProject = errors.New("file is not part of the project")
)

// Manifest describes a project: compiler options and which files belong to it.
type Manifest struct {
	CompilerOptions project.CompilerOptions `yaml:"compilerOptions"`
	// Files lists project files explicitly. When empty, every source file
	// under the root is included.
	Files []string `yaml:"files"`
	// Exclude holds glob patterns matched against root-relative names.
	Exclude []string `yaml:"exclude"`
	// Mirrored names files whose content is embedded in another source.
	// They are tracked but never emitted.
	Mirrored []string `yaml:"mirrored"`
}

// DefaultManifest is used when no manifest file exists.
func DefaultManifest() *Manifest {
	return &Manifest{
		CompilerOptions: project.CompilerOptions{Module: project.ModuleCommonJS},
	}
}

// LoadManifest reads a manifest. A missing file yields DefaultManifest.
func LoadManifest(name string) (*Manifest, error) {
	data, err := os.ReadFile(name)
	if errors.Is(err, os.ErrNotExist) {
		return DefaultManifest(), nil
	}
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrManifest, err)
	}
	return ParseManifest(data)
}

// ParseManifest decodes manifest YAML. Unknown keys are rejected.
func ParseManifest(data []byte) (*Manifest, error) {
	m := DefaultManifest()
	if len(bytes.TrimSpace(data)) == 0 {
		return m, nil
	}

	dec := yaml.NewDecoder(bytes.NewReader(data))
	dec.KnownFields(true)
	if err := dec.Decode(m); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrManifest, err)
	}

	switch m.CompilerOptions.Module {
	case "", project.ModuleNone, project.ModuleCommonJS, project.ModuleES2015:
	default:
		return nil, fmt.Errorf("%w: unknown module kind %q", ErrManifest, m.CompilerOptions.Module)
	}
	for _, pattern := range m.Exclude {
		if _, err := path.Match(pattern, ""); err != nil {
			return nil, fmt.Errorf("%w: bad exclude pattern %q", ErrManifest, pattern)
		}
	}
	return m, nil
}

// Equal reports whether two manifests describe the same project.
func (m *Manifest) Equal(other *Manifest) bool {
	return reflect.DeepEqual(m, other)
}

func (m *Manifest) excluded(name string) bool {
	for _, pattern := range m.Exclude {
		if ok, _ := path.Match(pattern, name); ok {
			return true
		}
		// A pattern naming a directory excludes everything below it.
		for dir := path.Dir(name); dir != "."; dir = path.Dir(dir) {
			if ok, _ := path.Match(pattern, dir); ok {
				return true
			}
		}
	}
	return false
}
