package services

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/tbourn/go-inventory-bot/internal/agent"
	"github.com/tbourn/go-inventory-bot/internal/repo"
)

func TestSessionRegistry_CreateThenResolve(t *testing.T) {
	db := newServiceDB(t)
	u := seedUser(t, db, "+5215500000010")
	fa := &fakeAgent{}
	reg := &SessionRegistry{DB: db, Agent: fa}
	ctx := context.Background()

	h, err := reg.GetOrCreate(ctx, u.ID)
	require.NoError(t, err)
	assert.True(t, h.Created)
	assert.Equal(t, "th_1", h.ThreadID)

	h2, err := reg.GetOrCreate(ctx, u.ID)
	require.NoError(t, err)
	assert.False(t, h2.Created)
	assert.Equal(t, "th_1", h2.ThreadID)
	assert.Equal(t, 1, fa.threadSeq)
}

func TestSessionRegistry_CreateFailureLeavesNoRow(t *testing.T) {
	db := newServiceDB(t)
	u := seedUser(t, db, "+5215500000011")
	reg := &SessionRegistry{
		DB:    db,
		Agent: &fakeAgent{createErr: fmt.Errorf("create thread: %w", agent.ErrUnavailable)},
		Retry: RetryPolicy{MaxRetries: 1, Backoff: time.Millisecond},
	}

	h, err := reg.GetOrCreate(context.Background(), u.ID)
	assert.Nil(t, h)
	assert.True(t, errors.Is(err, ErrSessionUnavailable))
	assert.True(t, errors.Is(err, agent.ErrUnavailable))

	_, err = repo.GetSessionByUser(context.Background(), db, u.ID)
	assert.True(t, errors.Is(err, repo.ErrNotFound))
}

func TestSessionRegistry_ResolveFailureIsUnavailable(t *testing.T) {
	db := newServiceDB(t)
	u := seedUser(t, db, "+5215500000012")
	_, err := repo.CreateSession(context.Background(), db, u.ID, "th_gone")
	require.NoError(t, err)

	reg := &SessionRegistry{DB: db, Agent: &fakeAgent{retrieveErr: fmt.Errorf("retrieve: %w", agent.ErrNotFound)}}
	_, err = reg.GetOrCreate(context.Background(), u.ID)
	assert.True(t, errors.Is(err, ErrSessionUnavailable))
}

func TestSessionRegistry_ConcurrentFirstContact(t *testing.T) {
	db := newServiceDB(t)
	u := seedUser(t, db, "+5215500000013")
	reg := &SessionRegistry{DB: db, Agent: &fakeAgent{}}

	const n = 8
	var (
		wg  sync.WaitGroup
		mu  sync.Mutex
		ids = map[string]int{}
	)
	for i := 0; i < n; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			h, err := reg.GetOrCreate(context.Background(), u.ID)
			if err != nil {
				t.Errorf("GetOrCreate: %v", err)
				return
			}
			mu.Lock()
			ids[h.ThreadID]++
			mu.Unlock()
		}()
	}
	wg.Wait()

	require.Len(t, ids, 1, "all callers must see the same thread: %v", ids)
	var count int64
	require.NoError(t, db.Table("sessions").Where("user_id = ?", u.ID).Count(&count).Error)
	assert.EqualValues(t, 1, count)
}
