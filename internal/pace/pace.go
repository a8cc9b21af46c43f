// Package pace bounds the number of touched federated file systems by
// evicting the least recently used ones. Evicting a file system synchronizes
// it together with the file systems nested in it.
package pace

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"slices"
	"sync"
	"time"

	"github.com/desertwitch/arcvfs/internal/controller"
	"github.com/desertwitch/arcvfs/internal/fserr"
	"github.com/desertwitch/arcvfs/internal/manager"
	"github.com/desertwitch/arcvfs/internal/mount"
	"github.com/desertwitch/arcvfs/internal/options"
	"github.com/samber/lo"
)

// MinMounts is the smallest accepted bound.
const MinMounts = 2

// Stats are the counters of a [Manager] and its underlying manager.
type Stats struct {
	manager.Stats
	Recent    int
	Overflow  int
	Evictions int
}

// Manager decorates a [manager.Manager] with pacing. Its registry is guarded
// by its own mutex, which is never held while a controller is called.
type Manager struct {
	manager *manager.Manager
	max     int
	timeout time.Duration

	mu        sync.Mutex
	mru       []*mount.Point // eldest first
	lru       []*mount.Point
	evictions int
}

// New returns a pointer to a new [Manager] keeping at most maxMounts touched
// file systems. Bounds below [MinMounts] are raised to it. A timeout greater
// than zero bounds the wait for open streams during an eviction.
func New(m *manager.Manager, maxMounts int, timeout time.Duration) *Manager {
	return &Manager{
		manager: m,
		max:     max(maxMounts, MinMounts),
		timeout: timeout,
	}
}

// Manager returns the decorated manager.
func (p *Manager) Manager() *manager.Manager {
	return p.manager
}

// Controller returns the paced controller of the file system at point. The
// root file system is never paced.
func (p *Manager) Controller(point *mount.Point) (controller.Controller, error) {
	c, err := p.manager.Controller(point)
	if err != nil {
		return nil, fmt.Errorf("(pace-controller) %w", err)
	}

	if point.IsRoot() {
		return c, nil
	}

	return &Controller{Controller: c, pace: p, point: point}, nil
}

// Sync synchronizes all file systems. Afterwards only file systems which are
// still touched remain registered, queued ones keep their place in the queue.
func (p *Manager) Sync(ctx context.Context, opts options.Sync) error {
	if err := opts.ValidateManager(); err != nil {
		return fmt.Errorf("(pace-sync) %w", err)
	}

	p.mu.Lock()
	queued := p.lru
	p.lru = nil
	p.mu.Unlock()

	err := p.manager.Sync(ctx, opts)

	p.mu.Lock()
	p.mru = lo.Filter(p.mru, func(q *mount.Point, _ int) bool {
		return p.manager.Touched(q)
	})
	p.mu.Unlock()

	p.requeue(queued)

	return err //nolint:wrapcheck
}

// Stats returns the current counters.
func (p *Manager) Stats() Stats {
	s := Stats{Stats: p.manager.Stats()}

	p.mu.Lock()
	defer p.mu.Unlock()

	s.Recent = len(p.mru)
	s.Overflow = len(p.lru)
	s.Evictions = p.evictions

	return s
}

// accessed registers point as most recently used if it is touched. The
// eldest registered points beyond the bound move to the overflow queue.
func (p *Manager) accessed(point *mount.Point) {
	if !p.manager.Touched(point) {
		return
	}

	p.mu.Lock()
	defer p.mu.Unlock()

	p.mru = slices.DeleteFunc(p.mru, point.Equal)
	p.lru = slices.DeleteFunc(p.lru, point.Equal)
	p.mru = append(p.mru, point)

	for len(p.mru) > p.max {
		eldest := p.mru[0]
		p.mru = p.mru[1:]
		p.lru = append(p.lru, eldest)

		slog.Debug("Demoted file system.", "mount", eldest.String(), "accessed", point.String())
	}
}

// syncLru evicts every queued file system which is unrelated to the accessed
// one and has not been used again since it was queued. A file system whose
// eviction fails stays queued for a later attempt while it is still touched,
// e.g. because of streams still open.
func (p *Manager) syncLru(ctx context.Context, accessed *mount.Point) error {
	var (
		b     fserr.Builder
		retry []*mount.Point
	)

	for {
		candidate := p.nextCandidate(accessed)
		if candidate == nil {
			break
		}

		err := p.evict(ctx, candidate)

		switch {
		case err == nil || fserr.IsWarning(err):
			p.evicted(candidate)
			slog.Debug("Evicted file system.", "mount", candidate.String(), "accessed", accessed.String(), "err", err)
		case errors.Is(err, fserr.ErrBusy):
			retry = append(retry, candidate)
			slog.Debug("Postponed eviction of busy file system.", "mount", candidate.String(), "err", err)
		default:
			retry = append(retry, candidate)
			b.Add(err)
			slog.Error("Failed to evict file system.", "mount", candidate.String(), "err", err)
		}
	}

	p.requeue(retry)

	return b.Err()
}

// requeue puts the points which are still touched back into the overflow
// queue, ahead of the points queued in the meantime. Points registered again
// in the meantime are skipped.
func (p *Manager) requeue(points []*mount.Point) {
	if len(points) == 0 {
		return
	}

	p.mu.Lock()
	defer p.mu.Unlock()

	registered := func(q *mount.Point) bool {
		return slices.ContainsFunc(p.mru, q.Equal) || slices.ContainsFunc(p.lru, q.Equal)
	}

	pending := lo.Filter(points, func(q *mount.Point, _ int) bool {
		return p.manager.Touched(q) && !registered(q)
	})

	p.lru = append(pending, p.lru...)
}

// nextCandidate removes and returns the first queued point which may be
// evicted, nil if there is none.
func (p *Manager) nextCandidate(accessed *mount.Point) *mount.Point {
	p.mu.Lock()
	defer p.mu.Unlock()

	i := slices.IndexFunc(p.lru, func(q *mount.Point) bool {
		return !q.Related(accessed) && !slices.ContainsFunc(p.mru, q.Equal)
	})
	if i < 0 {
		return nil
	}

	candidate := p.lru[i]
	p.lru = slices.Delete(p.lru, i, i+1)

	return candidate
}

func (p *Manager) evict(ctx context.Context, point *mount.Point) error {
	if p.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, p.timeout)
		defer cancel()
	}

	return p.manager.SyncSubtree(ctx, point, options.Default) //nolint:wrapcheck
}

func (p *Manager) evicted(point *mount.Point) {
	p.forget(point)

	p.mu.Lock()
	p.evictions++
	p.mu.Unlock()
}

// forget removes point and the synchronized points nested in it.
func (p *Manager) forget(point *mount.Point) {
	p.mu.Lock()
	defer p.mu.Unlock()

	synced := func(q *mount.Point) bool {
		return (point.Equal(q) || point.IsAncestorOf(q)) && !p.manager.Touched(q)
	}

	p.mru = slices.DeleteFunc(p.mru, synced)
	p.lru = slices.DeleteFunc(p.lru, synced)
}
