package watcher

import "github.com/ritzau/emit-scheduler/pkg/session"

// PlanChanges turns a debounced batch into the work the session must do.
// Directory changes rescan the file set; source paths are rechecked one by
// one, whether they were written, created, or removed.
func PlanChanges(batch []ChangeEvent) session.Plan {
	var plan session.Plan
	for _, event := range batch {
		switch event.Type {
		case ChangeTypeManifest:
			plan.Manifest = true
		case ChangeTypeDirectory:
			plan.Rescan = true
		case ChangeTypeSource:
			plan.Files = append(plan.Files, event.Paths...)
		}
	}
	return plan
}
