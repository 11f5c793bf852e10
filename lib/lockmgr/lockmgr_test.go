package lockmgr

import (
	"context"
	"encoding/json"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// memCmpxchg is an in-memory store.ICompareExchange
type memCmpxchg struct {
	mu     sync.Mutex
	values map[string]json.RawMessage
	index  map[string]uint64
	next   uint64
	err    error
}

func newMemCmpxchg() *memCmpxchg {
	return &memCmpxchg{values: map[string]json.RawMessage{}, index: map[string]uint64{}}
}

func (m *memCmpxchg) GetCompareExchange(_ context.Context, key string) (json.RawMessage, uint64, bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.err != nil {
		return nil, 0, false, m.err
	}
	v, ok := m.values[key]
	return v, m.index[key], ok, nil
}

func (m *memCmpxchg) PutCompareExchange(_ context.Context, key string, value json.RawMessage, index uint64) (bool, uint64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.err != nil {
		return false, 0, m.err
	}
	if m.index[key] != index {
		return false, m.index[key], nil
	}
	m.next++
	m.values[key] = value
	m.index[key] = m.next
	return true, m.next, nil
}

func (m *memCmpxchg) DeleteCompareExchange(_ context.Context, key string, index uint64) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.err != nil {
		return false, m.err
	}
	if _, ok := m.values[key]; !ok || m.index[key] != index {
		return false, nil
	}
	delete(m.values, key)
	delete(m.index, key)
	return true, nil
}

func TestAcquireRelease(t *testing.T) {
	ctx := context.Background()
	lm := NewLockManager(newMemCmpxchg())

	ok, owner, err := lm.AcquireLock(ctx, "a", 0)
	require.NoError(t, err)
	require.True(t, ok)
	assert.NotEmpty(t, owner)

	ok, _, err = lm.AcquireLock(ctx, "a", 0)
	require.NoError(t, err)
	assert.False(t, ok, "lock is held")

	ok, err = lm.ReleaseLock(ctx, "a", "someone-else")
	require.NoError(t, err)
	assert.False(t, ok, "only the owner may release")

	ok, err = lm.ReleaseLock(ctx, "a", owner)
	require.NoError(t, err)
	assert.True(t, ok)

	ok, err = lm.ReleaseLock(ctx, "a", owner)
	require.NoError(t, err)
	assert.True(t, ok, "releasing a missing lock succeeds")

	ok, _, err = lm.AcquireLock(ctx, "a", 0)
	require.NoError(t, err)
	assert.True(t, ok)
}

func TestExpiredLockIsTakenOver(t *testing.T) {
	ctx := context.Background()
	now := time.Unix(1000, 0)
	lm := &lockMgrImpl{store: newMemCmpxchg(), now: func() time.Time { return now }}

	ok, first, err := lm.AcquireLock(ctx, "a", time.Minute)
	require.NoError(t, err)
	require.True(t, ok)

	now = now.Add(30 * time.Second)
	ok, _, err = lm.AcquireLock(ctx, "a", time.Minute)
	require.NoError(t, err)
	assert.False(t, ok)

	now = now.Add(31 * time.Second)
	ok, second, err := lm.AcquireLock(ctx, "a", time.Minute)
	require.NoError(t, err)
	require.True(t, ok)
	assert.NotEqual(t, first, second)

	// the previous owner lost the lock
	ok, err = lm.ReleaseLock(ctx, "a", first)
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestConcurrentAcquireHasOneWinner(t *testing.T) {
	ctx := context.Background()
	lm := NewLockManager(newMemCmpxchg())

	var wg sync.WaitGroup
	var mu sync.Mutex
	winners := 0
	for i := 0; i < 20; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			ok, _, err := lm.AcquireLock(ctx, "a", 0)
			assert.NoError(t, err)
			if ok {
				mu.Lock()
				winners++
				mu.Unlock()
			}
		}()
	}
	wg.Wait()
	assert.Equal(t, 1, winners)
}

func TestStoreErrorsArePropagated(t *testing.T) {
	m := newMemCmpxchg()
	m.err = errors.New("unavailable")
	lm := NewLockManager(m)

	_, _, err := lm.AcquireLock(context.Background(), "a", 0)
	assert.ErrorIs(t, err, m.err)
	_, err = lm.ReleaseLock(context.Background(), "a", "owner")
	assert.ErrorIs(t, err, m.err)
}

func TestInvalidLockValue(t *testing.T) {
	m := newMemCmpxchg()
	_, _, _ = m.PutCompareExchange(context.Background(), "a", json.RawMessage(`"not a lock"`), 0)
	lm := NewLockManager(m)

	_, _, err := lm.AcquireLock(context.Background(), "a", 0)
	assert.Error(t, err)
}
