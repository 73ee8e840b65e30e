package dedupe

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	pgxmock "github.com/pashagolub/pgxmock/v4"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMemoryStore_MarksOnce(t *testing.T) {
	store := NewMemoryStore(10, time.Minute)
	ctx := context.Background()

	first, err := store.MarkSeen(ctx, "wamid.1")
	require.NoError(t, err)
	assert.True(t, first)

	again, err := store.MarkSeen(ctx, "wamid.1")
	require.NoError(t, err)
	assert.False(t, again)

	_, err = store.MarkSeen(ctx, "")
	assert.ErrorIs(t, err, ErrEmptyID)

	require.NoError(t, store.Forget(ctx, "wamid.1"))
	again, err = store.MarkSeen(ctx, "wamid.1")
	require.NoError(t, err)
	assert.True(t, again, "a forgotten id is accepted again")
}

func TestMemoryStore_EvictsOldest(t *testing.T) {
	store := NewMemoryStore(2, time.Minute)
	ctx := context.Background()

	for _, id := range []string{"a", "b", "c"} {
		ok, err := store.MarkSeen(ctx, id)
		require.NoError(t, err)
		require.True(t, ok)
	}
	assert.Equal(t, 2, store.Len())

	// "a" was evicted so it is accepted again.
	ok, err := store.MarkSeen(ctx, "a")
	require.NoError(t, err)
	assert.True(t, ok)
}

func TestMemoryStore_ConcurrentDeliveriesAcceptOne(t *testing.T) {
	store := NewMemoryStore(100, time.Minute)
	var accepted atomic.Int32
	var wg sync.WaitGroup
	for i := 0; i < 20; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if ok, _ := store.MarkSeen(context.Background(), "dup"); ok {
				accepted.Add(1)
			}
		}()
	}
	wg.Wait()
	assert.Equal(t, int32(1), accepted.Load())
}

func TestRedisStore_MarkSeen(t *testing.T) {
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	store := NewRedisStore(client, time.Minute, nil)
	ctx := context.Background()

	ok, err := store.MarkSeen(ctx, "wamid.9")
	require.NoError(t, err)
	assert.True(t, ok)

	ok, err = store.MarkSeen(ctx, "wamid.9")
	require.NoError(t, err)
	assert.False(t, ok)

	assert.True(t, mr.Exists("dedupe:msg:wamid.9"))
	mr.FastForward(2 * time.Minute)

	ok, err = store.MarkSeen(ctx, "wamid.9")
	require.NoError(t, err)
	assert.True(t, ok, "expired id should be accepted again")

	require.NoError(t, store.Forget(ctx, "wamid.9"))
	assert.False(t, mr.Exists("dedupe:msg:wamid.9"))
	assert.ErrorIs(t, store.Forget(ctx, ""), ErrEmptyID)
}

func TestRedisStore_ConnectionError(t *testing.T) {
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	store := NewRedisStore(client, time.Minute, nil)
	mr.Close()

	_, err := store.MarkSeen(context.Background(), "x")
	require.Error(t, err)
}

func TestPostgresStore(t *testing.T) {
	mock, err := pgxmock.NewPool()
	require.NoError(t, err)
	defer mock.Close()

	store := newPostgresStoreWithExec(mock, "")

	mock.ExpectExec("INSERT INTO processed_messages").WithArgs("whatsapp", "m1").WillReturnResult(pgxmock.NewResult("INSERT", 1))
	ok, err := store.MarkSeen(context.Background(), "m1")
	require.NoError(t, err)
	assert.True(t, ok)

	mock.ExpectExec("INSERT INTO processed_messages").WithArgs("whatsapp", "m1").WillReturnResult(pgxmock.NewResult("INSERT", 0))
	ok, err = store.MarkSeen(context.Background(), "m1")
	require.NoError(t, err)
	assert.False(t, ok)

	mock.ExpectExec("INSERT INTO processed_messages").WithArgs("whatsapp", "m2").WillReturnError(errors.New("conn reset"))
	_, err = store.MarkSeen(context.Background(), "m2")
	require.Error(t, err)

	mock.ExpectExec("DELETE FROM processed_messages WHERE provider = \\$1 AND message_id").WithArgs("whatsapp", "m1").WillReturnResult(pgxmock.NewResult("DELETE", 1))
	require.NoError(t, store.Forget(context.Background(), "m1"))

	mock.ExpectExec("DELETE FROM processed_messages").WithArgs("whatsapp", "7 days").WillReturnResult(pgxmock.NewResult("DELETE", 4))
	n, err := store.Prune(context.Background(), "7 days")
	require.NoError(t, err)
	assert.Equal(t, int64(4), n)

	require.NoError(t, mock.ExpectationsWereMet())
}

func ExampleMemoryStore() {
	store := NewMemoryStore(100, time.Minute)
	first, _ := store.MarkSeen(context.Background(), "wamid.42")
	second, _ := store.MarkSeen(context.Background(), "wamid.42")
	fmt.Println(first, second)
	// Output: true false
}
