package conversation

import (
	"context"
	"testing"
	"time"

	miniredis "github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMemoryStateStore(t *testing.T) {
	store := NewMemoryStateStore()
	ctx := context.Background()

	_, err := store.Load(ctx, "+5511999990000")
	require.ErrorIs(t, err, ErrStateNotFound)

	slot := time.Date(2025, 3, 11, 9, 0, 0, 0, time.UTC)
	st := NewState("+5511999990000")
	st.Stage = StageAwaitingSlotChoice
	st.OfferedSlots = []time.Time{slot}
	require.NoError(t, store.Save(ctx, st))

	// the store keeps its own copy
	st.OfferedSlots[0] = slot.Add(time.Hour)
	got, err := store.Load(ctx, "+5511999990000")
	require.NoError(t, err)
	assert.Equal(t, StageAwaitingSlotChoice, got.Stage)
	assert.True(t, got.OfferedSlots[0].Equal(slot))

	assert.Error(t, store.Save(ctx, &State{}))
}

func TestRedisStateStore_RoundTrip(t *testing.T) {
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	store := NewRedisStateStore(client, nil)
	ctx := context.Background()

	_, err := store.Load(ctx, "+5511999990000")
	require.ErrorIs(t, err, ErrStateNotFound)

	slot := time.Date(2025, 3, 11, 9, 0, 0, 0, time.FixedZone("BRT", -3*3600))
	st := &State{
		Phone:                   "+5511999990000",
		Stage:                   StageQualified,
		ExchangesSinceQualified: 1,
		WebsiteResearched:       true,
		WebsiteSummary:          "Clínica Sorriso | Odontologia",
		OfferedSlots:            []time.Time{slot},
		UpdatedAt:               time.Date(2025, 3, 10, 12, 0, 0, 0, time.UTC),
	}
	require.NoError(t, store.Save(ctx, st))
	assert.True(t, mr.Exists("conversation_state:+5511999990000"))
	assert.Zero(t, mr.TTL("conversation_state:+5511999990000"), "state never expires")

	got, err := store.Load(ctx, "+5511999990000")
	require.NoError(t, err)
	assert.Equal(t, StageQualified, got.Stage)
	assert.Equal(t, 1, got.ExchangesSinceQualified)
	assert.True(t, got.WebsiteResearched)
	assert.Equal(t, "Clínica Sorriso | Odontologia", got.WebsiteSummary)
	require.Len(t, got.OfferedSlots, 1)
	assert.True(t, got.OfferedSlots[0].Equal(slot))
}

func TestRedisStateStore_BadData(t *testing.T) {
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	store := NewRedisStateStore(client, nil)
	ctx := context.Background()

	require.NoError(t, mr.Set("conversation_state:+1", "{not json"))
	_, err := store.Load(ctx, "+1")
	assert.ErrorContains(t, err, "decode state")

	require.NoError(t, mr.Set("conversation_state:+2", `{"phone":"+2","stage":"ARCHIVED"}`))
	_, err = store.Load(ctx, "+2")
	assert.ErrorIs(t, err, ErrInvalidStage)

	mr.Close()
	_, err = store.Load(ctx, "+3")
	assert.Error(t, err)
	assert.NotErrorIs(t, err, ErrStateNotFound)
}

func TestNewRedisStateStore_RequiresClient(t *testing.T) {
	assert.Panics(t, func() { NewRedisStateStore(nil, nil) })
}
