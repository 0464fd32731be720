package redis

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/go-redsync/redsync/v4"
	"github.com/go-redsync/redsync/v4/redis/goredis/v9"
	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"

	"loadboard/models"
)

type loadLockOptions struct {
	logger        *slog.Logger
	wait          time.Duration
	expiry        time.Duration
	renewInterval time.Duration
	retryDelay    time.Duration
}

type LoadLockOption func(*loadLockOptions)

// WithLoadLockLogger 設置日誌記錄器
func WithLoadLockLogger(logger *slog.Logger) LoadLockOption {
	return func(o *loadLockOptions) {
		o.logger = logger
	}
}

// WithLoadLockWait 設置取得鎖的最長等待時間
func WithLoadLockWait(d time.Duration) LoadLockOption {
	return func(o *loadLockOptions) {
		o.wait = d
	}
}

// WithLoadLockExpiry 設置鎖過期時間
func WithLoadLockExpiry(d time.Duration) LoadLockOption {
	return func(o *loadLockOptions) {
		o.expiry = d
	}
}

// WithLoadLockRenewInterval 設置自動續期間隔
func WithLoadLockRenewInterval(d time.Duration) LoadLockOption {
	return func(o *loadLockOptions) {
		o.renewInterval = d
	}
}

// WithLoadLockRetryDelay 設置重試延遲
func WithLoadLockRetryDelay(d time.Duration) LoadLockOption {
	return func(o *loadLockOptions) {
		o.retryDelay = d
	}
}

// LoadLocker 以貨運為單位提供分散式互斥鎖，確保同一貨運的接受報價依序執行
type LoadLocker struct {
	rs      *redsync.Redsync
	prefix  string
	logger  *slog.Logger
	options loadLockOptions
}

func NewLoadLocker(client *redis.Client, prefix string, opts ...LoadLockOption) (*LoadLocker, error) {
	if client == nil {
		return nil, errors.New("redis client cannot be nil")
	}

	// 默認選項
	options := loadLockOptions{
		logger:     slog.Default(),
		wait:       3 * time.Second,
		expiry:     8 * time.Second,
		retryDelay: 50 * time.Millisecond,
	}

	// 應用自定義選項
	for _, opt := range opts {
		opt(&options)
	}

	// 如果未設置續期間隔，使用過期時間的1/3
	if options.renewInterval <= 0 {
		options.renewInterval = options.expiry / 3
	}

	return &LoadLocker{
		rs:      redsync.New(goredis.NewPool(client)),
		prefix:  prefix,
		logger:  options.logger.With(slog.String("caller", "LoadLocker")),
		options: options,
	}, nil
}

func (l *LoadLocker) key(loadID uuid.UUID) string {
	return fmt.Sprintf("%sload:%s:accept", l.prefix, loadID)
}

// Lock 在等待時間內取得鎖並開始自動續期
// 等待逾時回傳 models.ErrTimeout，release 可重複呼叫
func (l *LoadLocker) Lock(ctx context.Context, loadID uuid.UUID) (context.Context, func(), error) {
	const op = "LoadLocker.Lock"

	m := &autoRenewMutex{
		Mutex: l.rs.NewMutex(
			l.key(loadID),
			redsync.WithExpiry(l.options.expiry),
			redsync.WithTries(1),
		),
		renewInterval: l.options.renewInterval,
	}

	waitCtx, cancelWait := context.WithTimeout(ctx, l.options.wait)
	defer cancelWait()

	if err := m.acquire(waitCtx, l.options.retryDelay); err != nil {
		if errors.Is(err, context.DeadlineExceeded) && ctx.Err() == nil {
			return nil, nil, fmt.Errorf("[%s] Fail to acquire lock for load %s within %s, err=%w", op, loadID, l.options.wait, models.ErrTimeout)
		}
		return nil, nil, fmt.Errorf("[%s] Fail to acquire lock for load %s, err=%w", op, loadID, err)
	}

	lockCtx, cancel := context.WithCancel(ctx)
	m.startAutoRenew(lockCtx, cancel)

	var once sync.Once
	release := func() {
		once.Do(func() {
			if ok, err := m.release(); err != nil || !ok {
				l.logger.Warn("fail to release load lock",
					slog.String("loadID", loadID.String()),
					slog.Any("error", err))
			}
		})
	}
	return lockCtx, release, nil
}

// autoRenewMutex 在持有期間定期延長 redsync 鎖的過期時間
type autoRenewMutex struct {
	*redsync.Mutex
	renewInterval time.Duration

	mu       sync.Mutex
	wg       sync.WaitGroup
	cancel   context.CancelFunc
	renewing bool
}

// acquire 重試直到取得鎖或 ctx 結束，Redis 通訊錯誤會直接回傳
func (m *autoRenewMutex) acquire(ctx context.Context, retryDelay time.Duration) error {
	timer := time.NewTimer(0)
	defer timer.Stop()

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-timer.C:
			if err := ctx.Err(); err != nil {
				return err
			}
			err := m.Mutex.LockContext(ctx)
			if err == nil {
				return nil
			}
			var commErr *redsync.RedisError
			if errors.As(err, &commErr) {
				return fmt.Errorf("failed to acquire lock: %w", err)
			}
			timer.Reset(retryDelay)
		}
	}
}

func (m *autoRenewMutex) startAutoRenew(ctx context.Context, cancel context.CancelFunc) {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.cancel = cancel
	m.renewing = true
	m.wg.Add(1)
	go func() {
		defer m.wg.Done()
		ticker := time.NewTicker(m.renewInterval)
		defer ticker.Stop()

		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				ok, err := m.Mutex.ExtendContext(ctx)
				if err != nil || !ok {
					// 失去鎖時取消 lockCtx，讓持有者中止交易
					m.stopAutoRenew()
					return
				}
			}
		}
	}()
}

func (m *autoRenewMutex) stopAutoRenew() {
	m.mu.Lock()
	defer m.mu.Unlock()

	if !m.renewing {
		return
	}
	m.renewing = false
	m.cancel()
}

func (m *autoRenewMutex) release() (bool, error) {
	m.stopAutoRenew()
	m.wg.Wait()
	return m.Mutex.Unlock()
}
