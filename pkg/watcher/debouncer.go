package watcher

import (
	"context"
	"slices"
	"time"

	"github.com/ritzau/emit-scheduler/pkg/logging"
)

// Debouncer batches rapid file system events. A batch is released once no
// event arrived for the quiet period, or once maxWait passed since the
// batch's first event, whichever comes first.
type Debouncer struct {
	input       <-chan ChangeEvent
	output      chan []ChangeEvent
	quietPeriod time.Duration
	maxWait     time.Duration
	logger      *logging.Logger
}

// NewDebouncer creates a new event debouncer
func NewDebouncer(input <-chan ChangeEvent, quietPeriod, maxWait time.Duration) *Debouncer {
	return &Debouncer{
		input:       input,
		output:      make(chan []ChangeEvent, 10),
		quietPeriod: quietPeriod,
		maxWait:     maxWait,
		logger:      logging.New("debouncer"),
	}
}

// Start begins processing events with debouncing
func (d *Debouncer) Start(ctx context.Context) {
	go d.run(ctx)
}

func (d *Debouncer) run(ctx context.Context) {
	defer close(d.output)

	var (
		quiet    <-chan time.Time
		deadline <-chan time.Time
		pending  = make(map[ChangeType][]string)
		count    int
	)

	flush := func() {
		quiet, deadline = nil, nil
		if count == 0 {
			return
		}
		d.logger.Debug("flushing accumulated events", "count", count)

		// Manifest first: it can change what every other path means.
		var batch []ChangeEvent
		for _, kind := range []ChangeType{ChangeTypeManifest, ChangeTypeDirectory, ChangeTypeSource} {
			if paths := pending[kind]; len(paths) > 0 {
				slices.Sort(paths)
				batch = append(batch, ChangeEvent{Type: kind, Paths: slices.Compact(paths), Timestamp: time.Now()})
			}
		}
		pending = make(map[ChangeType][]string)
		count = 0

		select {
		case d.output <- batch:
		case <-ctx.Done():
		}
	}

	for {
		select {
		case <-ctx.Done():
			return

		case event, ok := <-d.input:
			if !ok {
				flush()
				return
			}
			pending[event.Type] = append(pending[event.Type], event.Paths...)
			count++

			quiet = time.After(d.quietPeriod)
			if deadline == nil {
				deadline = time.After(d.maxWait)
			}

		case <-quiet:
			flush()

		case <-deadline:
			flush()
		}
	}
}

// Output returns the channel of debounced batches
func (d *Debouncer) Output() <-chan []ChangeEvent {
	return d.output
}
