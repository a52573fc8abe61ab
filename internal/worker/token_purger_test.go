package worker

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"finboard/internal/log"
	"finboard/internal/storage"
	"finboard/internal/tokenstore"
)

type recordingPurger struct {
	mu      sync.Mutex
	cutoffs []time.Time
	err     error
}

func (r *recordingPurger) PurgeOlderThan(_ context.Context, cutoff time.Time) (int64, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.cutoffs = append(r.cutoffs, cutoff)
	return 1, r.err
}

func (r *recordingPurger) calls() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.cutoffs)
}

func TestTokenPurgerCutoff(t *testing.T) {
	store := &recordingPurger{}
	p := NewTokenPurger(store, 48*time.Hour, time.Hour, log.Discard())
	now := time.Date(2025, 5, 10, 12, 0, 0, 0, time.UTC)
	p.now = func() time.Time { return now }

	n, err := p.PurgeOnce(context.Background())

	require.NoError(t, err)
	assert.Equal(t, int64(1), n)
	assert.Equal(t, []time.Time{now.Add(-48 * time.Hour)}, store.cutoffs)
}

func TestTokenPurgerRunsUntilCancelled(t *testing.T) {
	store := &recordingPurger{err: errors.New("disk full")}
	p := NewTokenPurger(store, time.Hour, 5*time.Millisecond, log.Discard())

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		p.Run(ctx)
		close(done)
	}()

	assert.Eventually(t, func() bool { return store.calls() >= 3 }, time.Second, 5*time.Millisecond,
		"failures do not stop the loop")
	cancel()
	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("Run did not return after cancel")
	}
}

func TestTokenPurgerWithSQLite(t *testing.T) {
	ctx := context.Background()
	repo, err := storage.NewSQLiteRepository(t.TempDir()+"/tokens.db", log.Discard())
	require.NoError(t, err)
	defer repo.Close()
	require.NoError(t, repo.Put(ctx, "browser-1", string(tokenstore.Refresh), "sealed"))

	p := NewTokenPurger(repo, time.Hour, time.Hour, log.Discard())

	n, err := p.PurgeOnce(ctx)
	require.NoError(t, err)
	assert.Zero(t, n, "fresh tokens stay")

	p.now = func() time.Time { return time.Now().Add(2 * time.Hour) }
	n, err = p.PurgeOnce(ctx)
	require.NoError(t, err)
	assert.Equal(t, int64(1), n)

	_, ok, err := repo.Get(ctx, "browser-1", string(tokenstore.Refresh))
	require.NoError(t, err)
	assert.False(t, ok)
}
