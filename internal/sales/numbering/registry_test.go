package numbering

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/odyssey-erp/odyssey-quotes/internal/shared"
)

type countingStore struct {
	*MemoryStore
	existsCalls atomic.Int32
	release     chan struct{}
	failExists  error
}

func (s *countingStore) Exists(ctx context.Context, number string) (bool, error) {
	s.existsCalls.Add(1)
	if s.release != nil {
		<-s.release
	}
	if s.failExists != nil {
		return false, s.failExists
	}
	return s.MemoryStore.Exists(ctx, number)
}

type conflictCounter struct{ n atomic.Int32 }

func (c *conflictCounter) NumberConflict() { c.n.Add(1) }

func TestReserveConcurrentExactlyOneWins(t *testing.T) {
	for round := 0; round < 20; round++ {
		counter := &conflictCounter{}
		reg := NewRegistry(NewMemoryStore(), WithObserver(counter))

		var wg sync.WaitGroup
		var wins, conflicts atomic.Int32
		start := make(chan struct{})
		for i := 0; i < 2; i++ {
			wg.Add(1)
			go func() {
				defer wg.Done()
				<-start
				_, err := reg.Reserve(context.Background(), "QT-001", "sales@example.com")
				switch {
				case err == nil:
					wins.Add(1)
				case errors.Is(err, ErrConflict):
					conflicts.Add(1)
				}
			}()
		}
		close(start)
		wg.Wait()

		assert.Equal(t, int32(1), wins.Load())
		assert.Equal(t, int32(1), conflicts.Load())
		assert.Equal(t, int32(1), counter.n.Load())
	}
}

func TestReserveNormalizes(t *testing.T) {
	reg := NewRegistry(NewMemoryStore())
	number, err := reg.Reserve(context.Background(), "  qt/25-26/0001 ", "alice")
	require.NoError(t, err)
	assert.Equal(t, "QT/25-26/0001", number)

	_, err = reg.Reserve(context.Background(), "QT/25-26/0001", "bob")
	assert.ErrorIs(t, err, ErrConflict)
}

func TestNormalizeRejects(t *testing.T) {
	for _, candidate := range []string{"", "   ", "QT 001", "#QT", string(make([]byte, MaxLength+1))} {
		_, err := Normalize(candidate)
		assert.ErrorIs(t, err, shared.ErrValidation, "candidate %q", candidate)
	}
}

func TestCheckAvailabilityWithCache(t *testing.T) {
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = client.Close() })

	store := &countingStore{MemoryStore: NewMemoryStore()}
	reg := NewRegistry(store, WithCache(client, time.Minute))
	ctx := context.Background()

	ok, err := reg.CheckAvailability(ctx, "QT-100")
	require.NoError(t, err)
	assert.True(t, ok)
	assert.Equal(t, int32(1), store.existsCalls.Load())

	_, err = reg.Reserve(ctx, "QT-100", "alice")
	require.NoError(t, err)
	assert.True(t, mr.Exists(cacheKeyPrefix+"QT-100"))

	ok, err = reg.CheckAvailability(ctx, "qt-100")
	require.NoError(t, err)
	assert.False(t, ok)
	assert.Equal(t, int32(1), store.existsCalls.Load(), "taken marker answers without store")

	// the marker expires; the store is authoritative again
	store.Delete("QT-100")
	mr.FastForward(2 * time.Minute)
	ok, err = reg.CheckAvailability(ctx, "QT-100")
	require.NoError(t, err)
	assert.True(t, ok)
}

func TestCheckAvailabilityCoalescesConcurrentChecks(t *testing.T) {
	store := &countingStore{MemoryStore: NewMemoryStore(), release: make(chan struct{})}
	reg := NewRegistry(store)

	var wg sync.WaitGroup
	results := make([]bool, 5)
	for i := range results {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			ok, err := reg.CheckAvailability(context.Background(), "QT-7")
			assert.NoError(t, err)
			results[i] = ok
		}(i)
	}
	// let the goroutines pile onto the in-flight lookup
	require.Eventually(t, func() bool { return store.existsCalls.Load() == 1 }, time.Second, time.Millisecond)
	time.Sleep(20 * time.Millisecond)
	assert.Equal(t, int32(1), store.existsCalls.Load(), "one lookup in flight")
	close(store.release)
	wg.Wait()

	for _, ok := range results {
		assert.True(t, ok)
	}
	assert.LessOrEqual(t, store.existsCalls.Load(), int32(5))
}

func TestCheckAvailabilityHonoursContext(t *testing.T) {
	store := &countingStore{MemoryStore: NewMemoryStore(), release: make(chan struct{})}
	reg := NewRegistry(store)
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Millisecond)
	defer cancel()

	_, err := reg.CheckAvailability(ctx, "QT-9")
	assert.ErrorIs(t, err, context.DeadlineExceeded)
	close(store.release)
}

func TestCheckAvailabilityPropagatesStoreFailure(t *testing.T) {
	boom := errors.New("connection refused")
	reg := NewRegistry(&countingStore{MemoryStore: NewMemoryStore(), failExists: boom})
	_, err := reg.CheckAvailability(context.Background(), "QT-1")
	assert.ErrorIs(t, err, boom)
}

func TestGenerate(t *testing.T) {
	store := NewMemoryStore()
	now := time.Date(2026, time.January, 15, 10, 0, 0, 0, time.UTC)
	reg := NewRegistry(store, WithClock(func() time.Time { return now }))
	ctx := context.Background()

	first, err := reg.Generate(ctx, now, "alice")
	require.NoError(t, err)
	assert.Equal(t, "QT/25-26/0001", first)

	// a manual number squatting on the next sequence is skipped
	_, err = reg.Reserve(ctx, "QT/25-26/0003", "bob")
	require.NoError(t, err)

	second, err := reg.Generate(ctx, now, "alice")
	require.NoError(t, err)
	assert.Equal(t, "QT/25-26/0004", second)
}

func TestSuggestDoesNotReserve(t *testing.T) {
	store := NewMemoryStore()
	reg := NewRegistry(store)
	ctx := context.Background()
	date := time.Date(2025, time.June, 1, 0, 0, 0, 0, time.UTC)

	_, err := reg.Reserve(ctx, "QT/25-26/0002", "bob")
	require.NoError(t, err)

	// one existing number makes 0002 the first candidate, which is taken
	next, err := reg.Suggest(ctx, date)
	require.NoError(t, err)
	assert.Equal(t, "QT/25-26/0003", next)

	again, err := reg.Suggest(ctx, date)
	require.NoError(t, err)
	assert.Equal(t, next, again)
}

type takenStore struct{ *MemoryStore }

func (s *takenStore) Insert(context.Context, Reservation) error { return ErrConflict }

func TestGenerateExhausted(t *testing.T) {
	counter := &conflictCounter{}
	reg := NewRegistry(&takenStore{MemoryStore: NewMemoryStore()}, WithPrefix("eq"), WithObserver(counter))
	date := time.Date(2025, time.May, 1, 0, 0, 0, 0, time.UTC)

	_, err := reg.Generate(context.Background(), date, "alice")
	assert.ErrorIs(t, err, ErrExhausted)
	assert.Contains(t, err.Error(), "EQ/25-26/")
	assert.Equal(t, int32(defaultMaxAttempts), counter.n.Load())
}

func TestFiscalYear(t *testing.T) {
	assert.Equal(t, "25-26", FiscalYear(time.Date(2026, time.January, 31, 0, 0, 0, 0, time.UTC)))
	assert.Equal(t, "26-27", FiscalYear(time.Date(2026, time.April, 1, 0, 0, 0, 0, time.UTC)))
	assert.Equal(t, "99-00", FiscalYear(time.Date(2099, time.December, 1, 0, 0, 0, 0, time.UTC)))
}
