package bidding_test

import (
	"context"
	"io"
	"log"
	"sync"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/google/uuid"
	goredis "github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"

	"loadboard/adapters/database/databasetest"
	"loadboard/adapters/redis"
	"loadboard/bidding"
	"loadboard/events"
	"loadboard/models"
	"loadboard/policy"
)

func init() {
	// 將日誌輸出重定向到io.Discard
	log.SetOutput(io.Discard)
}

type recorder struct {
	mu     sync.Mutex
	events []events.Event
}

func (r *recorder) Dispatch(evs ...events.Event) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.events = append(r.events, evs...)
}

func (r *recorder) kinds() []events.Kind {
	r.mu.Lock()
	defer r.mu.Unlock()
	result := make([]events.Kind, 0, len(r.events))
	for _, e := range r.events {
		result = append(result, e.Kind())
	}
	return result
}

func (r *recorder) all() []events.Event {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]events.Event(nil), r.events...)
}

// stubLocker 讓測試控制等鎖的結果
type stubLocker struct {
	onLock func(ctx context.Context, loadID uuid.UUID) error
}

func (s stubLocker) Lock(ctx context.Context, loadID uuid.UUID) (context.Context, func(), error) {
	if s.onLock != nil {
		if err := s.onLock(ctx, loadID); err != nil {
			return nil, nil, err
		}
	}
	return ctx, func() {}, nil
}

type env struct {
	db       *gorm.DB
	fx       *databasetest.Fixtures
	engine   *bidding.Engine
	recorder *recorder
}

func setupWithLocker(t *testing.T, locker bidding.LoadLocker) *env {
	t.Helper()
	db := databasetest.New(t)
	rec := &recorder{}
	engine, err := bidding.NewEngine(db, locker, rec)
	require.NoError(t, err)
	return &env{db: db, fx: databasetest.NewFixtures(t, db), engine: engine, recorder: rec}
}

// setup 使用 miniredis 上真正的分散式鎖
func setup(t *testing.T) *env {
	t.Helper()
	mr := miniredis.RunT(t)
	client := goredis.NewClient(&goredis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { client.Close() })

	locker, err := redis.NewLoadLocker(client, "test:",
		redis.WithLoadLockWait(10*time.Second),
		redis.WithLoadLockRetryDelay(5*time.Millisecond))
	require.NoError(t, err)
	return setupWithLocker(t, locker)
}

func principal(u *models.User) policy.Principal {
	return policy.Principal{UserID: u.ID, Role: u.Role}
}

func (e *env) reloadBid(t *testing.T, id uuid.UUID) models.Bid {
	t.Helper()
	var bid models.Bid
	require.NoError(t, e.db.First(&bid, "id = ?", id).Error)
	return bid
}

func (e *env) reloadLoad(t *testing.T, id uuid.UUID) models.Load {
	t.Helper()
	var load models.Load
	require.NoError(t, e.db.First(&load, "id = ?", id).Error)
	return load
}
