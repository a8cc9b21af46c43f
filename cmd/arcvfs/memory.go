package main

import (
	"context"
	"log/slog"
	"runtime"
	"sync"
	"time"

	"github.com/dustin/go-humanize"
)

const (
	heapSampleInterval = 100 * time.Millisecond
)

// memoryObserver samples the heap while a command runs. Temporary buffers
// keep up to the spool threshold in memory before they spill into the
// temporary directory, so the peak is reported next to that threshold.
type memoryObserver struct {
	sync.RWMutex
	threshold int64
	peak      uint64
	samples   int
	stop      chan struct{}
	done      chan struct{}
}

// newMemoryObserver returns a pointer to a new [memoryObserver] which samples
// until [memoryObserver.Stop] is called or ctx is done.
func newMemoryObserver(ctx context.Context, threshold int64) *memoryObserver {
	obs := &memoryObserver{
		threshold: threshold,
		stop:      make(chan struct{}),
		done:      make(chan struct{}),
	}
	obs.sample()

	go obs.monitor(ctx)

	return obs
}

// Peak returns the highest sampled heap allocation and the number of samples.
func (o *memoryObserver) Peak() (uint64, int) {
	o.RLock()
	defer o.RUnlock()

	return o.peak, o.samples
}

func (o *memoryObserver) Stop() {
	close(o.stop)
	<-o.done

	peak, samples := o.Peak()
	slog.Debug("Heap usage peaked.",
		"peak", humanize.IBytes(peak),
		"spoolThreshold", humanize.IBytes(uint64(max(o.threshold, 0))), //nolint:gosec
		"samples", samples,
	)
}

func (o *memoryObserver) sample() {
	var m runtime.MemStats
	runtime.ReadMemStats(&m)

	o.Lock()
	o.peak = max(o.peak, m.HeapAlloc)
	o.samples++
	o.Unlock()
}

func (o *memoryObserver) monitor(ctx context.Context) {
	defer close(o.done)

	ticker := time.NewTicker(heapSampleInterval)
	defer ticker.Stop()

	for {
		select {
		case <-o.stop:
			return
		case <-ctx.Done():
			return
		case <-ticker.C:
			o.sample()
		}
	}
}
