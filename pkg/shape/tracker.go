package shape

import (
	"github.com/ritzau/emit-scheduler/pkg/project"
)

// Tracker holds the last known shape signature of one file. The signature
// summarizes the file's externally visible surface: its declaration emit, or
// the full text for a declaration file.
type Tracker struct {
	path      project.Path
	host      project.Host
	signature string
	hasSig    bool
}

// NewTracker creates a tracker with no signature yet.
func NewTracker(host project.Host, path project.Path) *Tracker {
	return &Tracker{path: path, host: host}
}

// Path returns the tracked file.
func (t *Tracker) Path() project.Path {
	return t.path
}

// Signature returns the stored signature, if one has been computed.
func (t *Tracker) Signature() (string, bool) {
	return t.signature, t.hasSig
}

// ScriptInfo returns the project's record for the tracked file.
func (t *Tracker) ScriptInfo() (*project.ScriptInfo, bool) {
	return t.host.ScriptInfo(t.path)
}

// UpdateShapeSignature recomputes the signature and reports whether it
// changed. A file with no representation counts as changed. The stored value
// is overwritten on every call that produces one, so a second call with
// nothing new returns false.
func (t *Tracker) UpdateShapeSignature() bool {
	sf, ok := t.host.SourceFile(t.path)
	if !ok {
		return true
	}

	prev, hadPrev := t.signature, t.hasSig
	if sf.IsDeclarationFile {
		t.signature, t.hasSig = t.host.Hash(sf.Text), true
	} else if out := t.host.EmitOutput(t.path, true); len(out.Files) > 0 {
		t.signature, t.hasSig = t.host.Hash(out.Files[0].Text), true
	}

	// An empty declaration emit keeps whatever signature was there before.
	return !hadPrev || prev != t.signature
}

// IsExternalModuleOrAmbientOnly reports whether the file is a module, or
// consists only of string-named ambient module declarations. Files of either
// kind cannot be pulled in by ordinary scripts.
func (t *Tracker) IsExternalModuleOrAmbientOnly() bool {
	sf, ok := t.host.SourceFile(t.path)
	if !ok {
		return false
	}
	return IsExternalModuleOrAmbientOnly(sf)
}

// IsExternalModuleOrAmbientOnly is the representation-level check behind
// Tracker.IsExternalModuleOrAmbientOnly.
func IsExternalModuleOrAmbientOnly(sf *project.SourceFile) bool {
	if sf == nil {
		return false
	}
	if sf.ExternalModule {
		return true
	}
	for _, st := range sf.Statements {
		if st.Kind != project.StatementAmbientModule {
			return false
		}
	}
	return true
}
