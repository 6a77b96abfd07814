package model

import "time"

// ChangeKind says why a file was handed to the scheduler.
type ChangeKind string

const (
	ChangeEdited   ChangeKind = "edited"   // text changed in place
	ChangeAdded    ChangeKind = "added"    // joined the project
	ChangeRemoved  ChangeKind = "removed"  // left the project
	ChangeManifest ChangeKind = "manifest" // project configuration changed
	ChangeRequest  ChangeKind = "request"  // explicit emit request
)

// EmittedFile is one artifact written (or that would have been written).
type EmittedFile struct {
	Source string `json:"source"` // file that produced it
	Path   string `json:"path"`   // absolute output path
	Bytes  int    `json:"bytes"`
	BOM    bool   `json:"bom,omitempty"`
}

// EmitReport summarizes one scheduler round for one trigger file.
type EmitReport struct {
	Trigger    string        `json:"trigger"`
	Kind       ChangeKind    `json:"kind"`
	Affected   []string      `json:"affected"`
	Emitted    []EmittedFile `json:"emitted"`
	Skipped    []string      `json:"skipped,omitempty"` // affected files whose emit was skipped
	DurationMs int64         `json:"durationMs"`
}

// BatchReport groups the reports produced by one batch of changes.
type BatchReport struct {
	BatchID   string        `json:"batchId"`
	Started   time.Time     `json:"started"`
	Reports   []*EmitReport `json:"reports"`
	Refreshed bool          `json:"refreshed"` // project file set or configuration was reloaded
}

// EmittedCount returns the number of artifacts across all reports.
func (b *BatchReport) EmittedCount() int {
	n := 0
	for _, r := range b.Reports {
		n += len(r.Emitted)
	}
	return n
}

// Cycle is a set of files that reference each other.
type Cycle struct {
	Files []string `json:"files"`
}
