// Package manager owns the controllers of all federated file systems. It
// resolves mount points to controller chains, creating them on first access,
// and synchronizes them child before parent.
package manager

import (
	"cmp"
	"context"
	"fmt"
	"log/slog"
	"slices"
	"sync"
	"time"

	"github.com/desertwitch/arcvfs/internal/archive"
	"github.com/desertwitch/arcvfs/internal/controller"
	"github.com/desertwitch/arcvfs/internal/driver"
	"github.com/desertwitch/arcvfs/internal/fserr"
	"github.com/desertwitch/arcvfs/internal/model"
	"github.com/desertwitch/arcvfs/internal/mount"
	"github.com/desertwitch/arcvfs/internal/options"
	"github.com/desertwitch/arcvfs/internal/pool"
	"github.com/samber/lo"
)

// Config configures a [Manager].
type Config struct {
	// SyncTimeout bounds the wait for open streams of other owners when an
	// operation needs to synchronize a file system. Zero waits until the
	// context of the operation is done.
	SyncTimeout time.Duration
}

// Stats are the management counters of a [Manager].
type Stats struct {
	Total           int
	Mounted         int
	TopLevelTotal   int
	TopLevelMounted int
	Touched         int
}

// Manager maps mount points to controller chains.
type Manager struct {
	sync.Mutex
	registry    *driver.Registry
	pool        *pool.Pool
	root        controller.Controller
	config      Config
	controllers map[string]*managed

	// decorate wraps every new chain, tests use it to instrument them.
	decorate func(controller.Controller) controller.Controller
}

// managed is a registered controller chain.
type managed struct {
	point      *mount.Point
	model      *model.Model
	chain      controller.Controller
	accounting *controller.AccountingController
	cache      *controller.CacheController
}

// New returns a pointer to a new [Manager]. root controls the physical root
// file system all archives are ultimately stored in.
func New(registry *driver.Registry, p *pool.Pool, root controller.Controller, config Config) *Manager {
	return &Manager{
		registry:    registry,
		pool:        p,
		root:        root,
		config:      config,
		controllers: make(map[string]*managed),
	}
}

// Root returns the controller of the root file system.
func (m *Manager) Root() controller.Controller {
	return m.root
}

// Registry returns the driver registry.
func (m *Manager) Registry() *driver.Registry {
	return m.registry
}

// Controller returns the controller chain of the file system at point,
// creating it and the chains of all its parents on first access.
func (m *Manager) Controller(point *mount.Point) (controller.Controller, error) {
	m.Lock()
	defer m.Unlock()

	mc, err := m.resolve(point)
	if err != nil {
		return nil, err
	}
	if mc == nil {
		return m.root, nil
	}

	return mc.chain, nil
}

// resolve returns the registered chain of point, nil for the root.
func (m *Manager) resolve(point *mount.Point) (*managed, error) {
	if point.IsRoot() {
		if !point.Equal(m.root.Model().Point()) {
			return nil, fmt.Errorf("(manager-resolve) %w: %s", ErrRootMount, point)
		}

		return nil, nil //nolint:nilnil
	}

	if mc, ok := m.controllers[point.String()]; ok {
		return mc, nil
	}

	parent, err := m.resolve(point.Parent())
	if err != nil {
		return nil, err
	}

	parentChain := m.root
	if parent != nil {
		parentChain = parent.chain
	}

	d, err := m.registry.Scheme(point.Scheme())
	if err != nil {
		return nil, fmt.Errorf("(manager-resolve) %w", err)
	}

	mdl, err := model.New(point, parentChain.Model())
	if err != nil {
		return nil, fmt.Errorf("(manager-resolve) %w", err)
	}

	mc := &managed{point: point, model: mdl}

	var c controller.Controller = archive.New(mdl, d, parentChain, m.pool)
	if m.decorate != nil {
		c = m.decorate(c)
	}
	mc.accounting = controller.NewAccountingController(c)
	mc.cache = controller.NewCacheController(mc.accounting, m.pool)
	mc.chain = controller.NewLockController(controller.NewSyncController(mc.cache, m.config.SyncTimeout))

	m.controllers[point.String()] = mc

	slog.Debug("Registered file system.", "mount", point.String(), "scheme", point.Scheme())

	return mc, nil
}

// Sync synchronizes all file systems, children before their parents. Errors
// are collected rather than aborting the walk and returned as one aggregate.
// Discarding changes is illegal here and fails before any I/O.
func (m *Manager) Sync(ctx context.Context, opts options.Sync) error {
	if err := opts.ValidateManager(); err != nil {
		return fmt.Errorf("(manager-sync) %w", err)
	}

	return m.sync(ctx, opts, func(*mount.Point) bool { return true })
}

// SyncSubtree synchronizes the file system at point and all file systems
// nested in it, children before their parents.
func (m *Manager) SyncSubtree(ctx context.Context, point *mount.Point, opts options.Sync) error {
	return m.sync(ctx, opts, func(p *mount.Point) bool {
		return p.Equal(point) || point.IsAncestorOf(p)
	})
}

func (m *Manager) sync(ctx context.Context, opts options.Sync, filter func(*mount.Point) bool) error {
	selected := m.ordered(filter)

	var b fserr.Builder
	for _, mc := range selected {
		b.Add(mc.chain.Sync(ctx, opts))
	}

	if opts.Has(options.ClearCache) {
		m.purge(selected)
	}

	if err := b.Err(); err != nil {
		if fserr.IsWarning(err) {
			slog.Warn("Synchronized with warnings.", "filesystems", len(selected), "err", err)
		} else {
			slog.Error("Failed to synchronize.", "filesystems", len(selected), "err", err)
		}

		return err
	}

	slog.Debug("Synchronized.", "filesystems", len(selected), "opts", opts.String())

	return nil
}

// ordered returns the selected chains, deepest first.
func (m *Manager) ordered(filter func(*mount.Point) bool) []*managed {
	m.Lock()
	defer m.Unlock()

	selected := lo.Filter(lo.Values(m.controllers), func(mc *managed, _ int) bool {
		return filter(mc.point)
	})

	slices.SortFunc(selected, func(a, b *managed) int {
		if c := cmp.Compare(b.point.Depth(), a.point.Depth()); c != 0 {
			return c
		}

		return cmp.Compare(a.point.String(), b.point.String())
	})

	return selected
}

// purge forgets the synchronized chains which hold no state any more.
// Chains with nested chains are kept. Callers must not use a chain obtained
// before a purging synchronization afterwards.
func (m *Manager) purge(synced []*managed) {
	m.Lock()
	defer m.Unlock()

	for _, mc := range synced {
		if mc.model.Touched() || mc.model.Mounted() || mc.cache.Cached() > 0 || mc.accounting.Open() > 0 {
			continue
		}

		if lo.SomeBy(lo.Values(m.controllers), func(o *managed) bool { return mc.point.IsAncestorOf(o.point) }) {
			continue
		}

		delete(m.controllers, mc.point.String())
	}
}

// Stats returns the current management counters.
func (m *Manager) Stats() Stats {
	m.Lock()
	defer m.Unlock()

	var s Stats
	for _, mc := range m.controllers {
		s.Total++

		mounted := mc.model.Mounted()
		if mounted {
			s.Mounted++
		}
		if mc.point.TopLevel() {
			s.TopLevelTotal++
			if mounted {
				s.TopLevelMounted++
			}
		}
		if mc.model.Touched() {
			s.Touched++
		}
	}

	return s
}

// Touched reports whether the file system at point is registered and has
// pending changes.
func (m *Manager) Touched(point *mount.Point) bool {
	m.Lock()
	defer m.Unlock()

	mc, ok := m.controllers[point.String()]

	return ok && mc.model.Touched()
}
