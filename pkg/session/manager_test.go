package session_test

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/Veolinan/triage/pkg/adapters/memory"
	"github.com/Veolinan/triage/pkg/adapters/redis"
	"github.com/Veolinan/triage/pkg/domain"
	"github.com/Veolinan/triage/pkg/session"
	"github.com/alicebob/miniredis/v2"
	backend "github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// SlowStore simulates latency to provoke race conditions if locking is missing.
type SlowStore struct {
	*memory.Store
}

func (s SlowStore) Save(ctx context.Context, sess *domain.Session) error {
	time.Sleep(5 * time.Millisecond)
	return s.Store.Save(ctx, sess)
}

func (s SlowStore) Load(ctx context.Context, id string) (*domain.Session, error) {
	time.Sleep(5 * time.Millisecond)
	return s.Store.Load(ctx, id)
}

func TestManager_UpdateSerializesWriters(t *testing.T) {
	manager := session.NewManager(SlowStore{memory.NewStore()})
	ctx := context.Background()
	id := "race-test"
	require.NoError(t, manager.Create(ctx, domain.NewSession(id, "")))

	var wg sync.WaitGroup
	const writers = 10
	for i := 0; i < writers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, err := manager.Update(ctx, id, func(s *domain.Session) (*domain.Session, error) {
				next := s.Snapshot()
				next.Generation++
				return next, nil
			})
			assert.NoError(t, err)
		}()
	}
	wg.Wait()

	s, err := manager.Load(ctx, id)
	require.NoError(t, err)
	assert.Equal(t, writers, s.Generation, "no lost updates")
}

func TestManager_CreateRejectsDuplicates(t *testing.T) {
	manager := session.NewManager(memory.NewStore())
	ctx := context.Background()

	require.NoError(t, manager.Create(ctx, domain.NewSession("dup", "")))
	assert.Error(t, manager.Create(ctx, domain.NewSession("dup", "")))
}

func TestManager_UpdatePersistsErrorPhase(t *testing.T) {
	manager := session.NewManager(memory.NewStore())
	ctx := context.Background()
	require.NoError(t, manager.Create(ctx, domain.NewSession("s", "")))
	boom := errors.New("boom")

	out, err := manager.Update(ctx, "s", func(s *domain.Session) (*domain.Session, error) {
		next := s.Snapshot()
		next.Phase = domain.PhaseError
		return next, boom
	})
	assert.ErrorIs(t, err, boom)
	assert.Equal(t, domain.PhaseError, out.Phase)

	stored, err := manager.Load(ctx, "s")
	require.NoError(t, err)
	assert.Equal(t, domain.PhaseError, stored.Phase)

	// Returning the input unchanged with an error writes nothing.
	_, err = manager.Update(ctx, "s", func(s *domain.Session) (*domain.Session, error) {
		s.Phase = domain.PhaseAnswering
		return s, boom
	})
	assert.ErrorIs(t, err, boom)
	stored, _ = manager.Load(ctx, "s")
	assert.Equal(t, domain.PhaseError, stored.Phase)
}

func TestManager_UpdateMissingSession(t *testing.T) {
	manager := session.NewManager(memory.NewStore())
	_, err := manager.Update(context.Background(), "ghost", func(s *domain.Session) (*domain.Session, error) {
		return s, nil
	})
	assert.ErrorIs(t, err, domain.ErrSessionNotFound)
}

func TestManager_FetchDiscardsStaleResult(t *testing.T) {
	manager := session.NewManager(memory.NewStore())
	ctx := context.Background()

	s := domain.NewSession("s", "")
	s.Phase = domain.PhaseLoading
	s.Partition = domain.Partition{StageType: domain.StagePregnant, StageRange: "1–3 months"}
	s.Generation = 1
	require.NoError(t, manager.Create(ctx, s))

	out, err := manager.Fetch(ctx, "s", func(ctx context.Context, snap *domain.Session) (*domain.Session, error) {
		// A newer selection lands while the fetch is in flight.
		_, err := manager.Update(ctx, "s", func(cur *domain.Session) (*domain.Session, error) {
			next := cur.Snapshot()
			next.Generation++
			next.Partition.StageRange = "4–6 months"
			return next, nil
		})
		require.NoError(t, err)

		loaded := snap.Snapshot()
		loaded.Phase = domain.PhaseAnswering
		loaded.CurrentNodeID = "q1"
		return loaded, nil
	})
	require.ErrorIs(t, err, domain.ErrStaleLoad)
	assert.Equal(t, "4–6 months", out.Partition.StageRange)

	stored, err := manager.Load(ctx, "s")
	require.NoError(t, err)
	assert.Equal(t, domain.PhaseLoading, stored.Phase, "stale result must not overwrite the newer selection")
	assert.Equal(t, 2, stored.Generation)
}

func TestManager_FetchCommitsCurrentResult(t *testing.T) {
	manager := session.NewManager(memory.NewStore())
	ctx := context.Background()
	s := domain.NewSession("s", "")
	s.Phase = domain.PhaseLoading
	require.NoError(t, manager.Create(ctx, s))

	out, err := manager.Fetch(ctx, "s", func(_ context.Context, snap *domain.Session) (*domain.Session, error) {
		next := snap.Snapshot()
		next.Phase = domain.PhaseAnswering
		return next, nil
	})
	require.NoError(t, err)
	assert.Equal(t, domain.PhaseAnswering, out.Phase)

	stored, _ := manager.Load(ctx, "s")
	assert.Equal(t, domain.PhaseAnswering, stored.Phase)
}

func TestManager_DistributedLock(t *testing.T) {
	mr, err := miniredis.Run()
	require.NoError(t, err)
	defer mr.Close()

	client := backend.NewClient(&backend.Options{Addr: mr.Addr()})
	store := redis.NewFromClient(client)
	manager := session.NewManager(store, session.WithLocker(redis.NewLocker(client, "triage:")))
	ctx := context.Background()

	require.NoError(t, manager.Create(ctx, domain.NewSession("dist", "")))

	err = manager.WithLock(ctx, "dist", func(ctx context.Context) error {
		assert.True(t, mr.Exists("triage:lock:session:dist"), "distributed lock held during fn")
		return nil
	})
	require.NoError(t, err)
	assert.False(t, mr.Exists("triage:lock:session:dist"))
}
