package xtracking

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/mock/gomock"
)

func TestNewService_NilDependencies(t *testing.T) {
	_, err := NewService(nil, newMemStore())
	assert.ErrorIs(t, err, ErrNilCache)

	cache, _ := newTestCache(t)
	_, err = NewService(cache, nil)
	assert.ErrorIs(t, err, ErrNilStore)
}

func TestService_AllocateInvalidatesDerivedCaches(t *testing.T) {
	env := newTestEnv(t, WithClock(stepClock(seedBase.Add(time.Hour))))
	seedRecords(t, env.store, 2, seedBase)
	ctx := context.Background()

	before, err := env.svc.Search(ctx, Criteria{Origin: "MY"})
	require.NoError(t, err)
	require.Equal(t, 2, before.TotalFound)
	_, err = env.svc.List(ctx, 0, 10)
	require.NoError(t, err)

	rec, err := env.svc.Allocate(ctx, sampleInput())
	require.NoError(t, err)
	assert.False(t, env.mr.Exists(SnapshotKey))

	after, err := env.svc.Search(ctx, Criteria{Origin: "MY"})
	require.NoError(t, err)
	assert.Equal(t, SourceStore, after.Source)
	require.Equal(t, 3, after.TotalFound)
	assert.Equal(t, rec.TrackingNumber, after.Results[0].TrackingNumber)

	p, err := env.svc.List(ctx, 0, 10)
	require.NoError(t, err)
	assert.True(t, p.FromCache)
	assert.EqualValues(t, 3, p.TotalElements)
	assert.Equal(t, rec.TrackingNumber, p.Data[0].TrackingNumber)
}

func TestService_AllocateSucceedsWhenInvalidateFails(t *testing.T) {
	ctrl := gomock.NewController(t)
	cache := NewMockCache(ctrl)
	store := newMemStore()
	logger, logs := logBuffer(t)
	svc, err := NewService(cache, store, testOptions(t, WithLogger(logger))...)
	require.NoError(t, err)

	cache.EXPECT().Exists(gomock.Any(), gomock.Any()).Return(false, nil)
	cache.EXPECT().SetIfAbsent(gomock.Any(), gomock.Any(), string(StateReserved), gomock.Any()).Return(true, nil)
	cache.EXPECT().Set(gomock.Any(), gomock.Any(), string(StatePermanent), gomock.Any()).Return(nil)
	cache.EXPECT().KeysMatching(gomock.Any(), gomock.Any()).Return(nil, nil)
	cache.EXPECT().Delete(gomock.Any(), SnapshotKey).Return(errors.New("down"))

	rec, err := svc.Allocate(context.Background(), sampleInput())
	require.NoError(t, err)
	ok, err := store.Exists(context.Background(), rec.TrackingNumber)
	require.NoError(t, err)
	assert.True(t, ok)
	assert.Contains(t, logs.String(), "invalidate derived caches after allocate failed")
}

func TestService_AllocateExhausted(t *testing.T) {
	env := newTestEnv(t, WithEntropy(zeroReader{}), WithClock(fixedClock(seedBase)))
	ctx := context.Background()

	_, err := env.svc.Allocate(ctx, sampleInput())
	require.NoError(t, err)

	_, err = env.svc.Allocate(ctx, sampleInput())
	assert.ErrorIs(t, err, ErrGenerationExhausted)
	assert.NotErrorIs(t, err, ErrCollision)
}

func TestService_Lookup(t *testing.T) {
	obs := &recordingObserver{}
	env := newTestEnv(t, WithObserver(obs))
	ctx := context.Background()

	rec, err := env.svc.Allocate(ctx, sampleInput())
	require.NoError(t, err)

	info, err := env.svc.Lookup(ctx, rec.TrackingNumber)
	require.NoError(t, err)
	assert.Equal(t, rec.TrackingNumber, info.TrackingNumber)
	assert.Equal(t, rec.CustomerID, info.CustomerID)

	// 第二次命中搜索缓存
	again, err := env.svc.Lookup(ctx, "  "+rec.TrackingNumber+" ")
	require.NoError(t, err)
	assert.Equal(t, info.TrackingNumber, again.TrackingNumber)

	_, err = env.svc.Lookup(ctx, "MISSING")
	assert.ErrorIs(t, err, ErrNotFound)

	_, err = env.svc.Lookup(ctx, "   ")
	assert.ErrorIs(t, err, ErrNotFound)

	for _, s := range obs.byOperation(MetricsOpLookup) {
		assert.NoError(t, s.result.Err)
	}
}

func TestService_LookupConfirmsStaleEmptyCache(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()

	rs, err := env.svc.Search(ctx, Criteria{TrackingNumber: "LATE0001"})
	require.NoError(t, err)
	require.Zero(t, rs.TotalFound)

	// 绕过服务直接写入，搜索缓存仍是空结果
	require.NoError(t, env.store.Put(ctx, &Record{
		ID:             "late",
		TrackingNumber: "LATE0001",
		CreatedAt:      seedBase,
		Origin:         "SG",
		Destination:    "TH",
		CustomerID:     uuid.New(),
		CustomerName:   "Late Co",
		CustomerSlug:   "late-co",
	}))

	info, err := env.svc.Lookup(ctx, "LATE0001")
	require.NoError(t, err)
	assert.Equal(t, "SG", info.OriginCountryID)
}

func TestService_LookupStoreFailure(t *testing.T) {
	ctrl := gomock.NewController(t)
	cache, _ := newTestCache(t)
	store := NewMockStore(ctrl)
	svc, err := NewService(cache, store, testOptions(t)...)
	require.NoError(t, err)

	store.EXPECT().Query(gomock.Any(), Criteria{TrackingNumber: "X1"}, int64(0)).Return(nil, nil)
	_, err = svc.Lookup(context.Background(), "X1")
	require.ErrorIs(t, err, ErrNotFound)

	store.EXPECT().Get(gomock.Any(), "X1").Return(nil, errors.New("mongo down"))
	_, err = svc.Lookup(context.Background(), "X1")
	require.Error(t, err)
	assert.True(t, IsInfrastructure(err))
}

func TestService_RoundTripThroughSearchAndList(t *testing.T) {
	env := newTestEnv(t, WithClock(stepClock(seedBase)))
	ctx := context.Background()

	in := sampleInput()
	var allocated []string
	for range 3 {
		rec, err := env.svc.Allocate(ctx, in)
		require.NoError(t, err)
		allocated = append(allocated, rec.TrackingNumber)
	}

	rs, err := env.svc.Search(ctx, Criteria{CustomerSlug: "REDBOX"})
	require.NoError(t, err)
	assert.Equal(t, 3, rs.TotalFound)

	p, err := env.svc.List(ctx, 0, 2)
	require.NoError(t, err)
	assert.EqualValues(t, 2, p.TotalPages)
	assert.Equal(t, allocated[2], p.Data[0].TrackingNumber)
	assert.Equal(t, allocated[1], p.Data[1].TrackingNumber)

	for _, tn := range allocated {
		v, err := env.mr.Get(trackingKey(tn))
		require.NoError(t, err)
		assert.Equal(t, string(StatePermanent), v)
	}
}
