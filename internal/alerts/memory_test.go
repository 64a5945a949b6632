package alerts

import (
	"context"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMemoryStoreCreateIfNoRecent(t *testing.T) {
	ctx := context.Background()
	s := NewMemoryStore()

	first := newOpenAlert("brute_force_login", "1.2.3.4", t0)
	require.NoError(t, s.CreateIfNoRecent(ctx, first, t0.Add(-2*time.Minute)))
	assert.Equal(t, int64(1), first.ID)

	dup := newOpenAlert("brute_force_login", "1.2.3.4", t0.Add(10*time.Second))
	err := s.CreateIfNoRecent(ctx, dup, t0.Add(10*time.Second-2*time.Minute))
	assert.ErrorIs(t, err, ErrRaceSuppressed)
	assert.Zero(t, dup.ID)

	otherRule := newOpenAlert("invalid_token_burst", "1.2.3.4", t0.Add(10*time.Second))
	require.NoError(t, s.CreateIfNoRecent(ctx, otherRule, t0.Add(10*time.Second-2*time.Minute)))

	later := newOpenAlert("brute_force_login", "1.2.3.4", t0.Add(130*time.Second))
	require.NoError(t, s.CreateIfNoRecent(ctx, later, t0.Add(10*time.Second)))
	assert.Equal(t, int64(3), later.ID)
}

func TestMemoryStoreFindRecent(t *testing.T) {
	ctx := context.Background()
	s := NewMemoryStore()
	require.NoError(t, s.CreateIfNoRecent(ctx, newOpenAlert("r", "1.1.1.1", t0), t0))
	require.NoError(t, s.CreateIfNoRecent(ctx, newOpenAlert("r", "1.1.1.1", t0.Add(5*time.Minute)), t0.Add(4*time.Minute)))

	got, err := s.FindRecent(ctx, "r", "1.1.1.1", t0)
	require.NoError(t, err)
	assert.True(t, got.CreatedAt.Equal(t0.Add(5*time.Minute)), "most recent first")

	got, err = s.FindRecent(ctx, "r", "1.1.1.1", t0.Add(5*time.Minute))
	require.NoError(t, err, "cutoff is inclusive")
	assert.Equal(t, int64(2), got.ID)

	_, err = s.FindRecent(ctx, "r", "1.1.1.1", t0.Add(6*time.Minute))
	assert.ErrorIs(t, err, ErrNotFound)
	_, err = s.FindRecent(ctx, "r", "2.2.2.2", t0)
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestMemoryStoreListNewestFirstAndCapped(t *testing.T) {
	ctx := context.Background()
	s := NewMemoryStore()
	for i := 0; i < DefaultListLimit+5; i++ {
		at := t0.Add(time.Duration(i) * time.Hour)
		require.NoError(t, s.CreateIfNoRecent(ctx, newOpenAlert("r", "1.1.1.1", at), at.Add(-time.Minute)))
	}

	list, err := s.List(ctx, DefaultListLimit)
	require.NoError(t, err)
	require.Len(t, list, DefaultListLimit)
	assert.Equal(t, int64(DefaultListLimit+5), list[0].ID)
	for i := 1; i < len(list); i++ {
		assert.Greater(t, list[i-1].ID, list[i].ID)
	}

	list[0].Metadata["note"] = "mutated"
	again, err := s.List(ctx, 1)
	require.NoError(t, err)
	assert.NotEqual(t, "mutated", again[0].Metadata["note"])
}

func TestMemoryStoreUpdateIsAtomic(t *testing.T) {
	ctx := context.Background()
	s := NewMemoryStore()
	a := seedAlert(t, s)

	_, err := s.Update(ctx, a.ID, func(a *Alert) error {
		a.Status = StatusClosed
		return ErrInvalidAction
	})
	assert.ErrorIs(t, err, ErrInvalidAction)

	got, err := s.Get(ctx, a.ID)
	require.NoError(t, err)
	assert.Equal(t, StatusOpen, got.Status)
}

func TestMemoryStoreConcurrentCreateSingleWinner(t *testing.T) {
	ctx := context.Background()
	s := NewMemoryStore()

	var created, suppressed int32
	var wg sync.WaitGroup
	for i := 0; i < 20; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			err := s.CreateIfNoRecent(ctx, newOpenAlert("r", "9.9.9.9", t0), t0.Add(-2*time.Minute))
			if err == nil {
				atomic.AddInt32(&created, 1)
			} else if assert.ErrorIs(t, err, ErrRaceSuppressed) {
				atomic.AddInt32(&suppressed, 1)
			}
		}()
	}
	wg.Wait()
	assert.Equal(t, int32(1), created)
	assert.Equal(t, int32(19), suppressed)
}
