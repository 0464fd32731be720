package redis

import (
	"context"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/goleak"

	"loadboard/models"
)

func TestNewLoadLocker(t *testing.T) {
	locker, err := NewLoadLocker(nil, "")
	assert.Error(t, err)
	assert.Nil(t, locker)
}

func TestLoadLocker_LockAndRelease(t *testing.T) {
	defer goleak.VerifyNone(t)
	client, mr, cleanup := setupMiniredis(t)
	defer cleanup()

	locker, err := NewLoadLocker(client, "test:")
	require.NoError(t, err)

	loadID := uuid.New()
	lockCtx, release, err := locker.Lock(context.Background(), loadID)
	require.NoError(t, err)
	require.NotNil(t, lockCtx)
	assert.True(t, mr.Exists("test:load:"+loadID.String()+":accept"))

	release()
	release() // 重複釋放為空操作

	assert.False(t, mr.Exists("test:load:"+loadID.String()+":accept"))
	select {
	case <-lockCtx.Done():
	case <-time.After(100 * time.Millisecond):
		t.Error("lock context was not cancelled after release")
	}
}

func TestLoadLocker_WaitTimeout(t *testing.T) {
	defer goleak.VerifyNone(t)
	client, _, cleanup := setupMiniredis(t)
	defer cleanup()

	locker, err := NewLoadLocker(client, "test:",
		WithLoadLockWait(200*time.Millisecond),
		WithLoadLockRetryDelay(20*time.Millisecond))
	require.NoError(t, err)

	loadID := uuid.New()
	_, release, err := locker.Lock(context.Background(), loadID)
	require.NoError(t, err)
	defer release()

	start := time.Now()
	lockCtx, _, err := locker.Lock(context.Background(), loadID)
	assert.ErrorIs(t, err, models.ErrTimeout)
	assert.Nil(t, lockCtx)
	assert.GreaterOrEqual(t, time.Since(start), 200*time.Millisecond)

	// 不同貨運互不影響
	_, releaseOther, err := locker.Lock(context.Background(), uuid.New())
	require.NoError(t, err)
	releaseOther()
}

func TestLoadLocker_CallerCancellation(t *testing.T) {
	defer goleak.VerifyNone(t)
	client, _, cleanup := setupMiniredis(t)
	defer cleanup()

	locker, err := NewLoadLocker(client, "test:")
	require.NoError(t, err)

	loadID := uuid.New()
	_, release, err := locker.Lock(context.Background(), loadID)
	require.NoError(t, err)
	defer release()

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, _, err = locker.Lock(ctx, loadID)
	assert.ErrorIs(t, err, context.Canceled)
	assert.NotErrorIs(t, err, models.ErrTimeout)
}

func TestLoadLocker_MutualExclusion(t *testing.T) {
	defer goleak.VerifyNone(t)
	client, _, cleanup := setupMiniredis(t)
	defer cleanup()

	locker, err := NewLoadLocker(client, "test:",
		WithLoadLockWait(5*time.Second),
		WithLoadLockRetryDelay(5*time.Millisecond))
	require.NoError(t, err)

	loadID := uuid.New()
	var holders, maxHolders int32
	var wg sync.WaitGroup
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, release, err := locker.Lock(context.Background(), loadID)
			if !assert.NoError(t, err) {
				return
			}
			n := atomic.AddInt32(&holders, 1)
			for {
				m := atomic.LoadInt32(&maxHolders)
				if n <= m || atomic.CompareAndSwapInt32(&maxHolders, m, n) {
					break
				}
			}
			time.Sleep(10 * time.Millisecond)
			atomic.AddInt32(&holders, -1)
			release()
		}()
	}
	wg.Wait()

	assert.Equal(t, int32(1), maxHolders)
}

func TestLoadLocker_AutoRenew(t *testing.T) {
	defer goleak.VerifyNone(t)
	client, mr, cleanup := setupMiniredis(t)
	defer cleanup()

	locker, err := NewLoadLocker(client, "test:",
		WithLoadLockExpiry(300*time.Millisecond),
		WithLoadLockRenewInterval(50*time.Millisecond))
	require.NoError(t, err)

	loadID := uuid.New()
	key := "test:load:" + loadID.String() + ":accept"
	lockCtx, release, err := locker.Lock(context.Background(), loadID)
	require.NoError(t, err)

	// miniredis 不會隨真實時間倒數，手動縮短後觀察是否被續期
	mr.SetTTL(key, 10*time.Millisecond)
	time.Sleep(150 * time.Millisecond)
	assert.Greater(t, mr.TTL(key), 200*time.Millisecond)
	assert.NoError(t, lockCtx.Err())

	release()
}
