package inventory

import (
	"context"
	"testing"
	"time"

	"github.com/c2h5oh/datasize"
	"github.com/stretchr/testify/require"
)

// fakeQuerier implements SystemQuerier with canned data and call counters.
type fakeQuerier struct {
	disks      []PhysicalDisk
	letters    map[int][]string
	styles     map[int]PartitionStyle
	enumErr    error
	enumCalls  int
	probeCalls int
}

func (f *fakeQuerier) PhysicalDisks(ctx context.Context) ([]PhysicalDisk, error) {
	f.enumCalls++
	if f.enumErr != nil {
		return nil, f.enumErr
	}
	return f.disks, nil
}

func (f *fakeQuerier) DriveLetterMap(ctx context.Context) (map[int][]string, error) {
	return f.letters, nil
}

func (f *fakeQuerier) ProbeStyle(ctx context.Context, index int) PartitionStyle {
	f.probeCalls++
	if s, ok := f.styles[index]; ok {
		return s
	}
	return StyleUnknown
}

func newFakeQuerier() *fakeQuerier {
	return &fakeQuerier{
		disks: []PhysicalDisk{
			{Index: 0, Name: "Samsung SSD 980", CapacityBytes: 500 * datasize.GB},
			{Index: 3, Name: "WDC WD40EZRZ", CapacityBytes: 4 * datasize.TB},
		},
		letters: map[int][]string{0: {"C", "D"}, 3: {"N", "M"}},
		styles:  map[int]PartitionStyle{0: StyleGPT, 3: StyleMBR},
	}
}

func TestListCachesWithinTTL(t *testing.T) {
	q := newFakeQuerier()
	mgr := NewManager(q, DefaultTTL).(*manager)

	now := time.Now()
	mgr.now = func() time.Time { return now }

	ctx := context.Background()
	first, err := mgr.List(ctx)
	require.NoError(t, err)
	require.Equal(t, 1, q.enumCalls)

	// Second call inside the TTL must not re-query.
	now = now.Add(10 * time.Second)
	second, err := mgr.List(ctx)
	require.NoError(t, err)
	require.Equal(t, 1, q.enumCalls)
	require.Equal(t, first.Disks, second.Disks)
}

func TestListRefreshesAfterTTL(t *testing.T) {
	q := newFakeQuerier()
	mgr := NewManager(q, DefaultTTL).(*manager)

	now := time.Now()
	mgr.now = func() time.Time { return now }

	ctx := context.Background()
	_, err := mgr.List(ctx)
	require.NoError(t, err)

	now = now.Add(DefaultTTL)
	_, err = mgr.List(ctx)
	require.NoError(t, err)
	require.Equal(t, 2, q.enumCalls)
}

func TestInvalidateRefreshesOnlyThatDisk(t *testing.T) {
	q := newFakeQuerier()
	mgr := NewManager(q, DefaultTTL).(*manager)

	now := time.Now()
	mgr.now = func() time.Time { return now }

	ctx := context.Background()
	_, err := mgr.List(ctx)
	require.NoError(t, err)
	probesAfterFull := q.probeCalls
	require.Equal(t, 2, probesAfterFull)

	// Simulate a mutating step on disk 3 converting it to GPT.
	q.styles[3] = StyleGPT
	q.letters[3] = []string{"M", "N", "O"}
	mgr.Invalidate(3)

	rec, err := mgr.Get(ctx, 3)
	require.NoError(t, err)
	require.Equal(t, StyleGPT, rec.PartitionStyle)
	require.Equal(t, []string{"M", "N", "O"}, rec.DriveLetters)

	// Only the stale row was re-probed.
	require.Equal(t, probesAfterFull+1, q.probeCalls)

	// Disk 0's cached row is untouched.
	other, err := mgr.Get(ctx, 0)
	require.NoError(t, err)
	require.Equal(t, StyleGPT, other.PartitionStyle)
	require.Equal(t, []string{"C", "D"}, other.DriveLetters)
}

func TestInvalidateAllForcesRequery(t *testing.T) {
	q := newFakeQuerier()
	mgr := NewManager(q, DefaultTTL).(*manager)

	ctx := context.Background()
	_, err := mgr.List(ctx)
	require.NoError(t, err)

	mgr.InvalidateAll()
	_, err = mgr.List(ctx)
	require.NoError(t, err)
	require.Equal(t, 2, q.enumCalls)
}

func TestGetUnknownDisk(t *testing.T) {
	q := newFakeQuerier()
	mgr := NewManager(q, DefaultTTL)

	_, err := mgr.Get(context.Background(), 9)
	require.ErrorIs(t, err, ErrNotFound)
}

func TestListUnavailable(t *testing.T) {
	q := newFakeQuerier()
	q.enumErr = ErrUnavailable
	mgr := NewManager(q, DefaultTTL)

	_, err := mgr.List(context.Background())
	require.ErrorIs(t, err, ErrUnavailable)
}

func TestProbeDegradesToUnknown(t *testing.T) {
	q := newFakeQuerier()
	delete(q.styles, 3)
	mgr := NewManager(q, DefaultTTL)

	rec, err := mgr.Get(context.Background(), 3)
	require.NoError(t, err)
	require.Equal(t, StyleUnknown, rec.PartitionStyle)
}

func TestCapacityMB(t *testing.T) {
	rec := DiskRecord{CapacityBytes: 500 * datasize.GB}
	require.Equal(t, uint64(512000), rec.CapacityMB())
}
