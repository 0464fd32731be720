// Package api 組裝所有元件，提供 websocket 指令與 HTTP 介面
package api

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"sync"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/redis/go-redis/v9"
	"golang.org/x/sync/semaphore"
	"gorm.io/gorm"

	"loadboard/accounts"
	"loadboard/adapters/auth"
	"loadboard/adapters/database"
	"loadboard/adapters/hub"
	redisAdapter "loadboard/adapters/redis"
	"loadboard/adapters/ws"
	"loadboard/bidding"
	"loadboard/messaging"
	"loadboard/notify"
)

// Dependencies 是伺服器需要的外部資源，測試時可直接注入
type Dependencies struct {
	DB            *gorm.DB
	Redis         *redis.Client
	Authenticator auth.Authenticator
}

type Server struct {
	db            *gorm.DB
	redisClient   *redis.Client
	authenticator auth.Authenticator
	registry      *hub.Registry
	router        *notify.Router
	producer      redisAdapter.IRelayProducer
	consumer      redisAdapter.IRelayConsumer
	engine        *bidding.Engine
	messages      *messaging.Service
	accounts      *accounts.Service
	wsHandler     *ws.Handler
	workers       *semaphore.Weighted
	validate      *validator.Validate

	ownsInfra  bool
	wg         sync.WaitGroup
	cancelFunc context.CancelFunc
	closeOnce  sync.Once
	logger     *slog.Logger

	config ServerConfig
}

// NewServer 依設定連線資料庫與 Redis，並建立驗證器
func NewServer(config ServerConfig) (*Server, error) {
	const op = "NewServer"

	// 初始化資料庫連線
	db, err := database.Connect(config.DB.toDatabaseConfig())
	if err != nil {
		return nil, fmt.Errorf("[%s] %w", op, err)
	}
	if config.DB.AutoMigrate {
		if err := database.Migrate(db); err != nil {
			_ = database.Close(db)
			return nil, fmt.Errorf("[%s] %w", op, err)
		}
	}

	// 初始化Redis連線
	redisClient := redis.NewClient(&redis.Options{
		Addr:     config.Redis.Addr,
		Password: config.Redis.Password,
		DB:       config.Redis.DB,
	})
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := redisClient.Ping(ctx).Err(); err != nil {
		_ = redisClient.Close()
		_ = database.Close(db)
		return nil, fmt.Errorf("[%s] Fail to ping redis, err=%w", op, err)
	}

	// 初始化驗證器
	authenticator, err := newAuthenticator(ctx, db, config.Auth)
	if err != nil {
		_ = redisClient.Close()
		_ = database.Close(db)
		return nil, fmt.Errorf("[%s] %w", op, err)
	}

	server, err := NewServerWithDependencies(config, Dependencies{
		DB:            db,
		Redis:         redisClient,
		Authenticator: authenticator,
	})
	if err != nil {
		_ = redisClient.Close()
		_ = database.Close(db)
		return nil, fmt.Errorf("[%s] %w", op, err)
	}
	server.ownsInfra = true
	return server, nil
}

func newAuthenticator(ctx context.Context, db *gorm.DB, config AuthConfig) (auth.Authenticator, error) {
	const op = "newAuthenticator"
	var chain auth.Chain

	if config.JWTPublicKeyFile != "" {
		pemBytes, err := os.ReadFile(config.JWTPublicKeyFile)
		if err != nil {
			return nil, fmt.Errorf("[%s] Fail to read public key, err=%w", op, err)
		}
		key, err := auth.LoadEd25519PublicKey(pemBytes)
		if err != nil {
			return nil, fmt.Errorf("[%s] %w", op, err)
		}
		jwtAuth, err := auth.NewJWTAuthenticator(db, key,
			auth.WithJWTIssuer(config.JWTIssuer),
			auth.WithJWTAudience(config.JWTAudience))
		if err != nil {
			return nil, fmt.Errorf("[%s] Fail to create jwt authenticator, err=%w", op, err)
		}
		chain = append(chain, jwtAuth)
	}

	if config.OIDCIssuerURL != "" {
		verifier, err := auth.DiscoverVerifier(ctx, config.OIDCIssuerURL, config.OIDCClientID)
		if err != nil {
			return nil, fmt.Errorf("[%s] %w", op, err)
		}
		oidcAuth, err := auth.NewOIDCAuthenticator(db, verifier)
		if err != nil {
			return nil, fmt.Errorf("[%s] Fail to create oidc authenticator, err=%w", op, err)
		}
		chain = append(chain, oidcAuth)
	}

	if len(chain) == 0 {
		return nil, fmt.Errorf("[%s] no authenticator configured", op)
	}
	return chain, nil
}

// NewServerWithDependencies 以現成的資源組裝伺服器，資源的生命週期由呼叫端負責
func NewServerWithDependencies(config ServerConfig, deps Dependencies) (server *Server, err error) {
	const op = "NewServerWithDependencies"

	if deps.DB == nil || deps.Redis == nil || deps.Authenticator == nil {
		return nil, fmt.Errorf("[%s] db, redis and authenticator are required", op)
	}
	runtime := config.Runtime
	if runtime.CommandWorkers <= 0 {
		return nil, fmt.Errorf("[%s] command workers must be positive", op)
	}

	s := &Server{
		db:            deps.DB,
		redisClient:   deps.Redis,
		authenticator: deps.Authenticator,
		workers:       semaphore.NewWeighted(int64(runtime.CommandWorkers)),
		validate:      newValidator(),
		logger:        slog.Default().With(slog.String("caller", "Server")),
		config:        config,
	}

	// 初始化連線註冊表
	s.registry = hub.NewRegistry(hub.WithRegistryLogger(slog.Default()))
	defer func() {
		if err != nil {
			s.registry.Close()
		}
	}()

	// 初始化跨節點轉送
	routerOpts := []notify.RouterOption{notify.WithRouterLogger(slog.Default())}
	if stream := config.Redis.StreamKeys.Events; stream != "" {
		producer, err := redisAdapter.NewRelayProducer(deps.Redis, stream,
			redisAdapter.WithProducerLogger(slog.Default()))
		if err != nil {
			return nil, fmt.Errorf("[%s] Fail to create relay producer, err=%w", op, err)
		}
		consumer, err := redisAdapter.NewRelayConsumer(deps.Redis, stream,
			redisAdapter.WithConsumerLogger(slog.Default()))
		if err != nil {
			return nil, fmt.Errorf("[%s] Fail to create relay consumer, err=%w", op, err)
		}
		s.producer = producer
		s.consumer = consumer
		routerOpts = append(routerOpts, notify.WithRouterRelay(producer))
	}
	s.router, err = notify.NewRouter(s.registry, routerOpts...)
	if err != nil {
		return nil, fmt.Errorf("[%s] Fail to create router, err=%w", op, err)
	}

	// 初始化報價引擎
	lockOpts := []redisAdapter.LoadLockOption{redisAdapter.WithLoadLockLogger(slog.Default())}
	if runtime.LockWait > 0 {
		lockOpts = append(lockOpts, redisAdapter.WithLoadLockWait(runtime.LockWait))
	}
	locker, err := redisAdapter.NewLoadLocker(deps.Redis, config.Redis.KeyPrefix, lockOpts...)
	if err != nil {
		return nil, fmt.Errorf("[%s] Fail to create load locker, err=%w", op, err)
	}
	s.engine, err = bidding.NewEngine(deps.DB, locker, s.router, bidding.WithEngineLogger(slog.Default()))
	if err != nil {
		return nil, fmt.Errorf("[%s] Fail to create bid engine, err=%w", op, err)
	}

	// 初始化訊息與帳號服務
	s.messages, err = messaging.NewService(deps.DB, s.router, messaging.WithServiceLogger(slog.Default()))
	if err != nil {
		return nil, fmt.Errorf("[%s] Fail to create message service, err=%w", op, err)
	}
	s.accounts, err = accounts.NewService(deps.DB, s.router, accounts.WithServiceLogger(slog.Default()))
	if err != nil {
		return nil, fmt.Errorf("[%s] Fail to create account service, err=%w", op, err)
	}

	// 初始化websocket
	wsOpts := []ws.HandlerOption{ws.WithHandlerLogger(slog.Default())}
	if runtime.ConnectionBuffer > 0 {
		wsOpts = append(wsOpts, ws.WithConnectionBuffer(runtime.ConnectionBuffer))
	}
	if runtime.HeartbeatInterval > 0 {
		wsOpts = append(wsOpts, ws.WithHeartbeat(runtime.HeartbeatInterval))
	}
	if len(runtime.AllowedOrigins) > 0 {
		wsOpts = append(wsOpts, ws.WithAllowedOrigins(runtime.AllowedOrigins...))
	}
	s.wsHandler, err = ws.NewHandler(deps.Authenticator, s.registry, s, wsOpts...)
	if err != nil {
		return nil, fmt.Errorf("[%s] Fail to create websocket handler, err=%w", op, err)
	}

	return s, nil
}

// Start 啟動跨節點轉送
func (s *Server) Start() {
	if s.producer == nil || s.consumer == nil {
		return
	}
	s.producer.Start()
	s.consumer.Start()

	ctx, cancel := context.WithCancel(context.Background())
	s.cancelFunc = cancel
	s.logger.Info("Start relay delivery worker")
	s.wg.Add(1)
	go func() {
		defer s.wg.Done()
		defer s.logger.Info("Relay delivery worker stopped")
		s.router.Run(ctx, s.consumer.Subscribe())
	}()
}

// Close 先踢除所有連線，再依序停止轉送與註冊表
// 呼叫前應先停止 HTTP 伺服器，避免新的連線進來
func (s *Server) Close() {
	s.closeOnce.Do(func() {
		// 關閉所有連線
		if n := s.registry.DisconnectAll(); n > 0 {
			s.logger.Info("Closed connections", slog.Int("connections", n))
		}
		s.wsHandler.Wait()
		// 關閉worker
		if s.cancelFunc != nil {
			s.cancelFunc()
		}
		// 關閉consumer
		if s.consumer != nil {
			s.consumer.Close()
		}
		s.wg.Wait()
		// 關閉producer
		if s.producer != nil {
			s.producer.Close()
		}
		s.registry.Close()

		if s.ownsInfra {
			if err := s.redisClient.Close(); err != nil {
				s.logger.Warn("Fail to close redis client", slog.Any("error", err))
			}
			if err := database.Close(s.db); err != nil {
				s.logger.Warn("Fail to close database", slog.Any("error", err))
			}
		}
	})
}

// runCommand 透過全域的 worker 數量上限執行一個指令
func (s *Server) runCommand(ctx context.Context, fn func(ctx context.Context) (any, error)) (any, error) {
	if err := s.workers.Acquire(ctx, 1); err != nil {
		return nil, errors.Join(errBusy, err)
	}
	defer s.workers.Release(1)
	return fn(ctx)
}
