package scheduler

import (
	"github.com/ritzau/emit-scheduler/pkg/project"
	"github.com/ritzau/emit-scheduler/pkg/shape"
)

// trackerCache maps files to their shape trackers, creating them on first
// access. It is owned by one scheduler and dropped wholesale by clear.
type trackerCache struct {
	host     project.Host
	trackers map[project.Path]*shape.Tracker
}

func newTrackerCache(host project.Host) *trackerCache {
	return &trackerCache{host: host}
}

func (c *trackerCache) get(path project.Path) *shape.Tracker {
	if c.trackers == nil {
		c.trackers = make(map[project.Path]*shape.Tracker)
	}
	t, ok := c.trackers[path]
	if !ok {
		t = shape.NewTracker(c.host, path)
		c.trackers[path] = t
	}
	return t
}

// prune drops the trackers of files that left the project.
func (c *trackerCache) prune() {
	for path := range c.trackers {
		if !c.host.ContainsFile(path) {
			delete(c.trackers, path)
		}
	}
}

func (c *trackerCache) clear() {
	c.trackers = nil
}

func (c *trackerCache) len() int {
	return len(c.trackers)
}
