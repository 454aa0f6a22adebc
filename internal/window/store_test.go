package window

import (
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"
	"github.com/jonboulle/clockwork"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/couchcryptid/storm-lightning-service/internal/domain"
)

var testNow = time.Date(2025, time.August, 11, 16, 0, 0, 0, time.UTC)

func strikeAt(id string, age time.Duration) domain.Strike {
	return domain.Strike{
		ID:              id,
		TimestampMillis: testNow.Add(-age).UnixMilli(),
		Longitude:       10,
		Latitude:        50,
		Amplitude:       12,
	}
}

func batchOf(strikes ...domain.Strike) domain.Batch {
	return domain.Batch{Method: domain.MethodStrikes, Strikes: strikes}
}

func ids(strikes []domain.Strike) []string {
	out := make([]string, 0, len(strikes))
	for _, s := range strikes {
		out = append(out, s.ID)
	}
	return out
}

func newTestStore(maxStrikes int) (*Store, *clockwork.FakeClock) {
	clock := clockwork.NewFakeClockAt(testNow)
	return New(clock, maxStrikes), clock
}

func TestStore_ApplyInitialReplaces(t *testing.T) {
	store, _ := newTestStore(0)

	_, err := store.ApplyInitial(batchOf(strikeAt("a", time.Minute), strikeAt("b", time.Minute)))
	require.NoError(t, err)

	res, err := store.ApplyInitial(batchOf(strikeAt("b", time.Minute), strikeAt("c", time.Minute)))
	require.NoError(t, err)

	assert.Equal(t, []string{"b", "c"}, ids(store.Snapshot().Strikes))
	assert.Equal(t, []string{"c"}, ids(res.Added), "b was already shown")
	assert.Equal(t, 1, res.Evicted)
	assert.Equal(t, 2, res.Size)
}

func TestStore_EvictsOutsideRetention(t *testing.T) {
	store, clock := newTestStore(0)

	_, err := store.ApplyInitial(batchOf(strikeAt("old", 50*time.Minute), strikeAt("young", 49*time.Minute)))
	require.NoError(t, err)

	clock.Advance(11 * time.Minute) // old is now 61m, young 60m exactly

	res, err := store.ApplyIncremental(batchOf(strikeAt("new", 0)))
	require.NoError(t, err)

	assert.Equal(t, []string{"young", "new"}, ids(store.Snapshot().Strikes))
	assert.Equal(t, 1, res.Evicted)
}

func TestStore_RetentionBoundary(t *testing.T) {
	tests := []struct {
		name string
		age  time.Duration
		kept bool
	}{
		{"59 minutes", 59 * time.Minute, true},
		{"exactly 60 minutes", 60 * time.Minute, true},
		{"61 minutes", 61 * time.Minute, false},
	}

	for _, tt := range tests {
		t.Run(tt.name+" incremental", func(t *testing.T) {
			store, _ := newTestStore(0)
			_, err := store.ApplyIncremental(batchOf(strikeAt("s", tt.age)))
			require.NoError(t, err)
			assert.Equal(t, tt.kept, store.Len() == 1)
		})
		t.Run(tt.name+" initial", func(t *testing.T) {
			store, _ := newTestStore(0)
			_, err := store.ApplyInitial(batchOf(strikeAt("s", tt.age)))
			require.NoError(t, err)
			assert.Equal(t, tt.kept, store.Len() == 1)
		})
	}
}

func TestStore_IncrementalDeduplicates(t *testing.T) {
	store, _ := newTestStore(0)

	batch := batchOf(strikeAt("a", time.Minute), strikeAt("b", 2*time.Minute))
	batch.Next, batch.HasNext = 10, true

	first, err := store.ApplyIncremental(batch)
	require.NoError(t, err)
	second, err := store.ApplyIncremental(batch)
	require.NoError(t, err)

	assert.Len(t, first.Added, 2)
	assert.Empty(t, second.Added)
	assert.Equal(t, []string{"a", "b"}, ids(store.Snapshot().Strikes))
}

func TestStore_CursorUpdates(t *testing.T) {
	store, _ := newTestStore(0)
	assert.False(t, store.Cursor().Valid())

	withNext := batchOf()
	withNext.Next, withNext.HasNext = 42, true
	_, err := store.ApplyInitial(withNext)
	require.NoError(t, err)
	assert.Equal(t, domain.Cursor(42), store.Cursor())

	// A batch without a numeric next leaves the cursor alone.
	_, err = store.ApplyIncremental(batchOf(strikeAt("x", 0)))
	require.NoError(t, err)
	assert.Equal(t, domain.Cursor(42), store.Cursor())

	zero := batchOf()
	zero.Next, zero.HasNext = 0, true
	_, err = store.ApplyIncremental(zero)
	require.NoError(t, err)
	assert.False(t, store.Cursor().Valid())
}

func TestStore_MaxStrikesKeepsNewest(t *testing.T) {
	store, _ := newTestStore(3)

	_, err := store.ApplyInitial(batchOf(strikeAt("a", 5*time.Minute), strikeAt("b", 4*time.Minute)))
	require.NoError(t, err)

	res, err := store.ApplyIncremental(batchOf(strikeAt("c", 3*time.Minute), strikeAt("d", 2*time.Minute)))
	require.NoError(t, err)

	assert.Equal(t, []string{"b", "c", "d"}, ids(store.Snapshot().Strikes))
	assert.Equal(t, 1, res.Evicted)
	assert.Equal(t, []string{"c", "d"}, ids(res.Added))

	// An evicted ID may come back.
	res, err = store.ApplyIncremental(batchOf(strikeAt("a", 5*time.Minute)))
	require.NoError(t, err)
	assert.Equal(t, []string{"a"}, ids(res.Added))
}

func TestStore_SnapshotIsCopy(t *testing.T) {
	store, clock := newTestStore(0)
	_, err := store.ApplyInitial(batchOf(strikeAt("a", 0)))
	require.NoError(t, err)

	snap := store.Snapshot()
	snap.Strikes[0].ID = "mutated"

	want := Snapshot{
		Strikes:     []domain.Strike{strikeAt("a", 0)},
		LastUpdated: clock.Now(),
	}
	if diff := cmp.Diff(want, store.Snapshot()); diff != "" {
		t.Fatalf("snapshot mismatch (-want +got):\n%s", diff)
	}
}

func TestStore_RecordError(t *testing.T) {
	store, _ := newTestStore(0)
	_, err := store.ApplyInitial(batchOf(strikeAt("a", 0)))
	require.NoError(t, err)

	store.RecordError(fmt.Errorf("rpc get_strikes failed: status 502"))
	snap := store.Snapshot()
	assert.Equal(t, "rpc get_strikes failed: status 502", snap.Error)
	assert.Len(t, snap.Strikes, 1, "a failed tick keeps rendered data")

	_, err = store.ApplyIncremental(batchOf())
	require.NoError(t, err)
	assert.Empty(t, store.Snapshot().Error, "successful apply clears the error")
}

func TestStore_ClosedRejectsApply(t *testing.T) {
	store, _ := newTestStore(0)
	store.Close()
	store.Close()

	_, err := store.ApplyInitial(batchOf(strikeAt("a", 0)))
	require.ErrorIs(t, err, ErrClosed)
	_, err = store.ApplyIncremental(batchOf(strikeAt("a", 0)))
	require.ErrorIs(t, err, ErrClosed)
	assert.Zero(t, store.Len())
}

func TestStore_ConcurrentReaders(t *testing.T) {
	store, _ := newTestStore(100)

	var wg sync.WaitGroup
	for r := 0; r < 4; r++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for i := 0; i < 200; i++ {
				_ = store.Snapshot()
			}
		}()
	}
	for i := 0; i < 200; i++ {
		_, err := store.ApplyIncremental(batchOf(strikeAt(fmt.Sprintf("s-%d", i), 0)))
		require.NoError(t, err)
	}
	wg.Wait()

	assert.Equal(t, 100, store.Len())
}
