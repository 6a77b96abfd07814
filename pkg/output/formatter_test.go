package output

import (
	"bytes"
	"strings"
	"testing"

	"github.com/fatih/color"

	"github.com/ritzau/emit-scheduler/pkg/model"
)

func init() {
	color.NoColor = true
}

func TestPrintAffected(t *testing.T) {
	var buf bytes.Buffer
	PrintAffected(&buf, "src/c.ts", []string{"src/c.ts", "src/b.ts"})

	got := buf.String()
	for _, want := range []string{"Affected by src/c.ts", "  * src/c.ts", "    src/b.ts", "2 files"} {
		if !strings.Contains(got, want) {
			t.Errorf("output missing %q:\n%s", want, got)
		}
	}
}

func TestPrintDependents(t *testing.T) {
	var buf bytes.Buffer
	PrintDependents(&buf, "src/c.ts", []string{"src/b.ts"})
	if !strings.Contains(buf.String(), "Dependents of src/c.ts\n    src/b.ts\n") {
		t.Errorf("got %q", buf.String())
	}

	buf.Reset()
	PrintDependents(&buf, "src/a.ts", nil)
	if !strings.Contains(buf.String(), "none") {
		t.Errorf("got %q", buf.String())
	}
}

func TestPrintBatch(t *testing.T) {
	var buf bytes.Buffer
	PrintBatch(&buf, &model.BatchReport{
		BatchID:   "0123456789abcdef",
		Refreshed: true,
		Reports: []*model.EmitReport{
			{
				Trigger:  "src/c.ts",
				Kind:     model.ChangeEdited,
				Affected: []string{"src/c.ts"},
				Emitted:  []model.EmittedFile{{Source: "src/c.ts", Path: "/out/c.js", Bytes: 12, BOM: true}},
			},
			{Trigger: "src/d.ts", Kind: model.ChangeRemoved},
		},
	})

	got := buf.String()
	for _, want := range []string{
		"[edited] src/c.ts (1 affected",
		"-> /out/c.js (12 bytes, bom)",
		"[removed] src/d.ts",
		"Batch 01234567: 2 change(s), 1 file(s) emitted, project refreshed",
	} {
		if !strings.Contains(got, want) {
			t.Errorf("output missing %q:\n%s", want, got)
		}
	}

	buf.Reset()
	PrintBatch(&buf, &model.BatchReport{})
	if buf.Len() != 0 {
		t.Errorf("empty batch printed %q", buf.String())
	}
}

func TestPrintCycles(t *testing.T) {
	var buf bytes.Buffer
	PrintCycles(&buf, nil)
	if !strings.Contains(buf.String(), "No reference cycles") {
		t.Errorf("got %q", buf.String())
	}

	buf.Reset()
	PrintCycles(&buf, []model.Cycle{{Files: []string{"a.ts", "b.ts"}}})
	if !strings.Contains(buf.String(), "Cycle 1 (2 files)") || !strings.Contains(buf.String(), "    b.ts") {
		t.Errorf("got %q", buf.String())
	}
}
