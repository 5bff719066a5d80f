package index

import (
	"context"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"manualqa/types"
)

// Source supplies the vectors a rebuild indexes. The store satisfies it.
type Source interface {
	ListEmbedded(ctx context.Context) ([]types.EmbeddedChunk, error)
}

// Stats describes the serving snapshot for the admin surface.
type Stats struct {
	Chunks          int          `json:"chunks"`
	Lists           int          `json:"lists"`
	Probes          int          `json:"probes"`
	Metric          types.Metric `json:"metric"`
	BuiltAt         *time.Time   `json:"built_at"`
	BuildMillis     int64        `json:"build_ms"`
	RefreshInterval string       `json:"refresh_interval"`
}

// Manager owns the serving snapshot. Reads go through an atomic pointer,
// so a search observes either the pre-rebuild or the post-rebuild index,
// never a half-built one. Chunks embedded after a rebuild become
// searchable at the next refresh tick; that staleness window is the
// documented cost of batch rebuilds.
type Manager struct {
	source   Source
	opts     Options
	interval time.Duration
	log      *slog.Logger

	current   atomic.Pointer[IVF]
	stats     atomic.Pointer[Stats]
	rebuildMu sync.Mutex
}

func NewManager(source Source, opts Options, interval time.Duration, log *slog.Logger) *Manager {
	if interval <= 0 {
		interval = time.Minute
	}
	if log == nil {
		log = slog.Default()
	}
	m := &Manager{
		source:   source,
		opts:     opts,
		interval: interval,
		log:      log.With("component", "index"),
	}
	m.stats.Store(&Stats{
		Probes:          opts.Probes,
		Metric:          opts.Metric,
		RefreshInterval: interval.String(),
	})
	return m
}

// Search queries the current snapshot. Before the first rebuild the index
// behaves as an empty corpus.
func (m *Manager) Search(ctx context.Context, query []float32, k int) ([]Hit, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	ivf := m.current.Load()
	if ivf == nil {
		if len(query) != m.opts.Dim {
			return nil, &types.DimensionMismatchError{Want: m.opts.Dim, Got: len(query)}
		}
		return []Hit{}, nil
	}
	return ivf.Search(query, k)
}

// Rebuild loads every embedded chunk and swaps in a fresh snapshot.
// Concurrent rebuilds are serialized; readers are never blocked.
func (m *Manager) Rebuild(ctx context.Context) error {
	m.rebuildMu.Lock()
	defer m.rebuildMu.Unlock()

	start := time.Now()
	items, err := m.source.ListEmbedded(ctx)
	if err != nil {
		return err
	}

	ivf, err := Build(items, m.opts)
	if err != nil {
		return err
	}

	m.current.Store(ivf)
	builtAt := time.Now().UTC()
	m.stats.Store(&Stats{
		Chunks:          ivf.Size(),
		Lists:           ivf.Lists(),
		Probes:          m.opts.Probes,
		Metric:          m.opts.Metric,
		BuiltAt:         &builtAt,
		BuildMillis:     time.Since(start).Milliseconds(),
		RefreshInterval: m.interval.String(),
	})
	m.log.Info("index rebuilt",
		"chunks", ivf.Size(),
		"lists", ivf.Lists(),
		"took", time.Since(start).Round(time.Millisecond).String(),
	)
	return nil
}

// Run rebuilds immediately and then on every refresh tick until ctx is
// canceled. Meant to be started as a goroutine at boot.
func (m *Manager) Run(ctx context.Context) {
	if err := m.Rebuild(ctx); err != nil {
		m.log.Error("initial index build failed", "error", err)
	}

	ticker := time.NewTicker(m.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if err := m.Rebuild(ctx); err != nil {
				m.log.Error("index rebuild failed", "error", err)
			}
		}
	}
}

// Stats reports the serving snapshot's shape.
func (m *Manager) Stats() Stats {
	return *m.stats.Load()
}
