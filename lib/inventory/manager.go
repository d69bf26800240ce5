package inventory

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/samber/lo"

	"github.com/deploykit/winprov/lib/logger"
)

// DefaultTTL is how long a snapshot is trusted before the next query
// re-enumerates the disks.
const DefaultTTL = 30 * time.Second

// Manager caches disk snapshots with a TTL. A mutating step invalidates its
// own disk index only, so concurrent workflows on other disks keep their
// cached rows.
type Manager interface {
	// List returns the current snapshot, refreshing it when the TTL has
	// expired or stale rows are pending.
	List(ctx context.Context) (*Snapshot, error)
	// Get returns the record for one disk, refreshing that disk's row if it
	// was invalidated.
	Get(ctx context.Context, index int) (DiskRecord, error)
	// Invalidate marks one disk's cached row stale.
	Invalidate(index int)
	// InvalidateAll discards the whole snapshot.
	InvalidateAll()
}

type manager struct {
	querier SystemQuerier
	ttl     time.Duration
	now     func() time.Time

	mu       sync.Mutex
	snapshot *Snapshot
	stale    map[int]struct{}
}

// NewManager creates a snapshot cache over the given querier. A ttl of 0
// uses DefaultTTL.
func NewManager(querier SystemQuerier, ttl time.Duration) Manager {
	if ttl <= 0 {
		ttl = DefaultTTL
	}
	return &manager{
		querier: querier,
		ttl:     ttl,
		now:     time.Now,
		stale:   make(map[int]struct{}),
	}
}

func (m *manager) List(ctx context.Context) (*Snapshot, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if err := m.ensureFreshLocked(ctx); err != nil {
		return nil, err
	}
	return m.snapshot, nil
}

func (m *manager) Get(ctx context.Context, index int) (DiskRecord, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if err := m.ensureFreshLocked(ctx); err != nil {
		return DiskRecord{}, err
	}
	rec, ok := m.snapshot.Get(index)
	if !ok {
		return DiskRecord{}, fmt.Errorf("%w: index %d", ErrNotFound, index)
	}
	return rec, nil
}

func (m *manager) Invalidate(index int) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.stale[index] = struct{}{}
}

func (m *manager) InvalidateAll() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.snapshot = nil
	m.stale = make(map[int]struct{})
}

func (m *manager) ensureFreshLocked(ctx context.Context) error {
	expired := m.snapshot == nil || m.now().Sub(m.snapshot.CapturedAt) >= m.ttl
	if expired {
		return m.refreshAllLocked(ctx)
	}
	if len(m.stale) > 0 {
		return m.refreshStaleLocked(ctx)
	}
	return nil
}

func (m *manager) refreshAllLocked(ctx context.Context) error {
	disks, err := m.querier.PhysicalDisks(ctx)
	if err != nil {
		return err
	}
	letters, err := m.querier.DriveLetterMap(ctx)
	if err != nil {
		// Letter resolution failing for the whole host is rare; degrade
		// rather than losing the enumeration.
		logger.FromContext(ctx).Warn("drive letter resolution failed", "error", err)
		letters = map[int][]string{}
	}

	records := make(map[int]DiskRecord, len(disks))
	for _, d := range disks {
		records[d.Index] = DiskRecord{
			Index:          d.Index,
			Name:           d.Name,
			CapacityBytes:  d.CapacityBytes,
			DriveLetters:   normalizeLetters(letters[d.Index]),
			PartitionStyle: m.querier.ProbeStyle(ctx, d.Index),
		}
	}

	m.snapshot = &Snapshot{Disks: records, CapturedAt: m.now()}
	m.stale = make(map[int]struct{})
	return nil
}

// refreshStaleLocked re-resolves only the invalidated disk indexes, carrying
// the remaining rows over into a replacement snapshot.
func (m *manager) refreshStaleLocked(ctx context.Context) error {
	disks, err := m.querier.PhysicalDisks(ctx)
	if err != nil {
		return err
	}
	letters, err := m.querier.DriveLetterMap(ctx)
	if err != nil {
		logger.FromContext(ctx).Warn("drive letter resolution failed", "error", err)
		letters = map[int][]string{}
	}
	byIndex := lo.KeyBy(disks, func(d PhysicalDisk) int { return d.Index })

	records := make(map[int]DiskRecord, len(m.snapshot.Disks))
	for idx, rec := range m.snapshot.Disks {
		if _, ok := m.stale[idx]; !ok {
			records[idx] = rec
		}
	}
	for idx := range m.stale {
		d, ok := byIndex[idx]
		if !ok {
			continue // disk disappeared; drop the row
		}
		records[idx] = DiskRecord{
			Index:          d.Index,
			Name:           d.Name,
			CapacityBytes:  d.CapacityBytes,
			DriveLetters:   normalizeLetters(letters[idx]),
			PartitionStyle: m.querier.ProbeStyle(ctx, idx),
		}
	}

	m.snapshot = &Snapshot{Disks: records, CapturedAt: m.snapshot.CapturedAt}
	m.stale = make(map[int]struct{})
	return nil
}

func normalizeLetters(letters []string) []string {
	out := lo.Uniq(letters)
	sort.Strings(out)
	return out
}
