package tipping

import (
	"context"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLocalLockerExcludesSameKey(t *testing.T) {
	l := NewLocalLocker()
	var inside, maxInside int32

	var wg sync.WaitGroup
	for i := 0; i < 20; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			unlock, err := l.Lock(context.Background(), "account:a")
			if !assert.NoError(t, err) {
				return
			}
			n := atomic.AddInt32(&inside, 1)
			for {
				m := atomic.LoadInt32(&maxInside)
				if n <= m || atomic.CompareAndSwapInt32(&maxInside, m, n) {
					break
				}
			}
			time.Sleep(time.Millisecond)
			atomic.AddInt32(&inside, -1)
			unlock()
		}()
	}
	wg.Wait()

	assert.Equal(t, int32(1), maxInside)
	assert.Zero(t, l.size())
}

func TestLocalLockerIndependentKeys(t *testing.T) {
	l := NewLocalLocker()
	unlockA, err := l.Lock(context.Background(), "a")
	require.NoError(t, err)
	defer unlockA()

	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()
	unlockB, err := l.Lock(ctx, "b")
	require.NoError(t, err)
	unlockB()
}

func TestLocalLockerHonoursContext(t *testing.T) {
	l := NewLocalLocker()
	unlock, err := l.Lock(context.Background(), "a")
	require.NoError(t, err)

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()
	_, err = l.Lock(ctx, "a")
	require.ErrorIs(t, err, context.DeadlineExceeded)

	unlock()
	unlock()
	assert.Zero(t, l.size())
}

type recordingLocker struct {
	name string
	log  *[]string
	err  error
}

func (r recordingLocker) Lock(context.Context, string) (func(), error) {
	if r.err != nil {
		return nil, r.err
	}
	*r.log = append(*r.log, "lock "+r.name)
	return func() { *r.log = append(*r.log, "unlock "+r.name) }, nil
}

func TestChainLockers(t *testing.T) {
	var log []string
	chained := ChainLockers(recordingLocker{name: "local", log: &log}, recordingLocker{name: "redis", log: &log})

	unlock, err := chained.Lock(context.Background(), "k")
	require.NoError(t, err)
	unlock()
	assert.Equal(t, []string{"lock local", "lock redis", "unlock redis", "unlock local"}, log)

	log = nil
	chained = ChainLockers(recordingLocker{name: "local", log: &log}, recordingLocker{name: "redis", log: &log, err: assert.AnError})
	_, err = chained.Lock(context.Background(), "k")
	require.ErrorIs(t, err, assert.AnError)
	assert.Equal(t, []string{"lock local", "unlock local"}, log)
}

func TestGetOrCreateCollapsesConcurrentCreation(t *testing.T) {
	store := newFakeStore()
	ledger := newFakeLedger()
	dir := NewAccountDirectory(store, ledger, "W", time.Second, discardLogger())

	var wg sync.WaitGroup
	addresses := make([]string, 10)
	for i := range addresses {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			a, _, err := dir.GetOrCreate(context.Background(), "u1", "user")
			if assert.NoError(t, err) {
				addresses[i] = a.Address
			}
		}(i)
	}
	wg.Wait()

	assert.Equal(t, 1, ledger.created)
	for _, addr := range addresses {
		assert.Equal(t, "ban_created1", addr)
	}

	_, ok, err := dir.Lookup(context.Background(), "missing")
	require.NoError(t, err)
	assert.False(t, ok)
}
