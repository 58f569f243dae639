package assistant

import (
	"context"
	"sync"
	"time"

	"github.com/wolfman30/club-portal-assistant/internal/observability/metrics"
	"github.com/wolfman30/club-portal-assistant/pkg/logging"
)

const defaultLinger = 30 * time.Second

// RegistryOptions are applied to every manager the registry mounts.
type RegistryOptions struct {
	Provider  ReplyProvider
	Store     Store
	Delay     DelayPolicy
	SentDelay time.Duration
	// Linger bounds how long ReleaseAfterTurn keeps an idle-less session mounted.
	Linger  time.Duration
	Logger  *logging.Logger
	Metrics *metrics.AssistantMetrics
}

// Registry shares one Manager per owner across concurrent widget mounts.
// The manager is unmounted when the last lease is released.
type Registry struct {
	opts RegistryOptions

	mu      sync.Mutex
	entries map[string]*registryEntry
}

type registryEntry struct {
	manager *Manager
	refs    int
	// ready is closed once the mount finished; err is set when it failed.
	ready chan struct{}
	err   error
}

// Lease is one holder's reference to a mounted manager.
type Lease struct {
	*Manager
	registry *Registry
	once     sync.Once
}

// NewRegistry creates an empty registry.
func NewRegistry(opts RegistryOptions) *Registry {
	if opts.Logger == nil {
		opts.Logger = logging.Default()
	}
	if opts.Store == nil {
		opts.Store = NewMemoryStore()
	}
	if opts.Linger <= 0 {
		opts.Linger = defaultLinger
	}
	return &Registry{opts: opts, entries: make(map[string]*registryEntry)}
}

// Acquire returns a lease on owner's manager, mounting it on first use.
// The store load runs outside the registry lock; concurrent callers for the
// same owner wait for the one mount in flight.
func (r *Registry) Acquire(ctx context.Context, owner string) (*Lease, error) {
	if owner == "" {
		owner = AnonymousIdentity
	}
	r.mu.Lock()
	if entry, ok := r.entries[owner]; ok {
		entry.refs++
		r.mu.Unlock()
		return r.await(ctx, owner, entry)
	}
	entry := &registryEntry{refs: 1, ready: make(chan struct{})}
	r.entries[owner] = entry
	r.mu.Unlock()

	m, err := Mount(ctx, ManagerOptions{
		Owner:     owner,
		Provider:  r.opts.Provider,
		Store:     r.opts.Store,
		Delay:     r.opts.Delay,
		SentDelay: r.opts.SentDelay,
		Logger:    r.opts.Logger,
		Metrics:   r.opts.Metrics,
	})

	r.mu.Lock()
	current := r.entries[owner] == entry
	switch {
	case err != nil:
		entry.err = err
		if current {
			delete(r.entries, owner)
		}
	case !current:
		// Close ran while mounting.
		entry.err = ErrSessionClosed
	default:
		entry.manager = m
	}
	close(entry.ready)
	r.mu.Unlock()

	if entry.err != nil {
		if m != nil {
			m.Unmount()
		}
		return nil, entry.err
	}
	r.opts.Metrics.SessionMounted()
	return &Lease{Manager: m, registry: r}, nil
}

func (r *Registry) await(ctx context.Context, owner string, entry *registryEntry) (*Lease, error) {
	select {
	case <-entry.ready:
	case <-ctx.Done():
		r.drop(owner, entry)
		return nil, ctx.Err()
	}
	if entry.err != nil {
		return nil, entry.err
	}
	return &Lease{Manager: entry.manager, registry: r}, nil
}

// Mounted reports how many owners currently have a live manager.
func (r *Registry) Mounted() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	n := 0
	for _, entry := range r.entries {
		if entry.manager != nil {
			n++
		}
	}
	return n
}

// Close unmounts every manager regardless of outstanding leases.
func (r *Registry) Close() {
	r.mu.Lock()
	entries := r.entries
	r.entries = make(map[string]*registryEntry)
	r.mu.Unlock()
	for _, entry := range entries {
		if entry.manager == nil {
			continue
		}
		entry.manager.Unmount()
		r.opts.Metrics.SessionUnmounted()
	}
}

func (r *Registry) release(m *Manager) {
	r.mu.Lock()
	entry, ok := r.entries[m.Owner()]
	r.mu.Unlock()
	if !ok || entry.manager != m {
		return
	}
	r.drop(m.Owner(), entry)
}

// drop releases one reference and unmounts the manager on the last one.
func (r *Registry) drop(owner string, entry *registryEntry) {
	r.mu.Lock()
	if r.entries[owner] != entry {
		r.mu.Unlock()
		return
	}
	entry.refs--
	if entry.refs > 0 || entry.manager == nil {
		r.mu.Unlock()
		return
	}
	delete(r.entries, owner)
	r.mu.Unlock()

	entry.manager.Unmount()
	r.opts.Metrics.SessionUnmounted()
}

// Release drops the lease. The last release unmounts the manager and
// cancels any reply still being composed.
func (l *Lease) Release() {
	l.once.Do(func() { l.registry.release(l.Manager) })
}

// ReleaseAfterTurn drops the lease once the outstanding turn settles, so a
// request-scoped caller does not cancel the reply it just triggered.
func (l *Lease) ReleaseAfterTurn() {
	if !l.Busy() {
		l.Release()
		return
	}
	go func() {
		ctx, cancel := context.WithTimeout(context.Background(), l.registry.opts.Linger)
		defer cancel()
		_ = l.WaitIdle(ctx)
		l.Release()
	}()
}
