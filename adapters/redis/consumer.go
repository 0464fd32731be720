package redis

import (
	"context"
	"errors"
	"log/slog"
	"sync"
	"time"

	"github.com/redis/go-redis/v9"

	"loadboard/notify"
)

type consumerOptions struct {
	logger       *slog.Logger
	bufferSize   int
	blockTimeout time.Duration
	errorBackoff time.Duration
}

type ConsumerOption func(*consumerOptions)

// WithConsumerLogger 設置日誌記錄器
func WithConsumerLogger(logger *slog.Logger) ConsumerOption {
	return func(o *consumerOptions) {
		o.logger = logger
	}
}

// WithConsumerBufferSize 設置下游channel的緩衝大小
func WithConsumerBufferSize(size int) ConsumerOption {
	return func(o *consumerOptions) {
		o.bufferSize = size
	}
}

// WithConsumerBlockTimeout 設置阻塞讀取超時時間
func WithConsumerBlockTimeout(d time.Duration) ConsumerOption {
	return func(o *consumerOptions) {
		o.blockTimeout = d
	}
}

// WithConsumerErrorBackoff 設置讀取失敗後的等待時間
func WithConsumerErrorBackoff(d time.Duration) ConsumerOption {
	return func(o *consumerOptions) {
		o.errorBackoff = d
	}
}

// RelayConsumer 從共用 stream 讀取其他節點（含自己）發出的訊框
// 啟動時定位到 stream 目前最後一筆，只讀取之後的新訊息，不補送歷史資料
type RelayConsumer struct {
	client     *redis.Client
	stream     string
	lastID     string
	downStream chan notify.Envelope
	cancelFunc context.CancelFunc
	wg         sync.WaitGroup
	closed     bool
	logger     *slog.Logger
	options    consumerOptions
}

func NewRelayConsumer(client *redis.Client, stream string, opts ...ConsumerOption) (*RelayConsumer, error) {
	if client == nil {
		return nil, errors.New("redis client cannot be nil")
	}
	if stream == "" {
		return nil, errors.New("stream cannot be empty")
	}

	// 默認選項
	options := consumerOptions{
		logger:       slog.Default(),
		bufferSize:   100,
		blockTimeout: time.Second,
		errorBackoff: 100 * time.Millisecond,
	}

	// 應用自定義選項
	for _, opt := range opts {
		opt(&options)
	}

	return &RelayConsumer{
		client:  client,
		stream:  stream,
		lastID:  "$",
		closed:  true,
		logger:  options.logger.With(slog.String("caller", "RelayConsumer"), slog.String("stream", stream)),
		options: options,
	}, nil
}

func (s *RelayConsumer) Start() {
	if !s.closed {
		return
	}
	ctx, cancel := context.WithCancel(context.Background())
	s.downStream = make(chan notify.Envelope, s.options.bufferSize)
	s.closed = false
	s.cancelFunc = cancel
	s.logger.Info("starting relay consumer")

	s.wg.Add(1)
	go func() {
		defer s.wg.Done()
		defer s.logger.Info("consumer goroutine stopped")
		defer close(s.downStream)

		s.lastID = s.resolveStartID(ctx)

		for {
			select {
			case <-ctx.Done():
				return
			default:
			}

			messages, err := s.fetch(ctx)
			if err != nil {
				if errors.Is(err, redis.Nil) {
					continue
				}
				if errors.Is(err, context.Canceled) {
					return
				}
				s.logger.Error("fetch envelope error", slog.Any("error", err))
				select {
				case <-ctx.Done():
					return
				case <-time.After(s.options.errorBackoff):
				}
				continue
			}

			for _, message := range messages {
				env, err := DecodeEnvelope(message.Values)
				if err != nil {
					s.logger.Error("failed to parse envelope",
						slog.String("messageId", message.ID),
						slog.Any("error", err))
					continue
				}

				select {
				case <-ctx.Done():
					return
				case s.downStream <- env:
					s.logger.Debug("envelope sent to downstream",
						slog.String("messageId", message.ID))
				}
			}
		}
	}()
}

// resolveStartID 取得目前最後一筆的 ID，避免連續以 "$" 讀取時在兩次讀取之間漏掉訊息
func (s *RelayConsumer) resolveStartID(ctx context.Context) string {
	messages, err := s.client.XRevRangeN(ctx, s.stream, "+", "-", 1).Result()
	if err != nil {
		s.logger.Warn("fail to resolve stream tail, reading from now on", slog.Any("error", err))
		return "$"
	}
	if len(messages) == 0 {
		return "0-0"
	}
	return messages[0].ID
}

func (s *RelayConsumer) fetch(ctx context.Context) ([]redis.XMessage, error) {
	streams, err := s.client.XRead(ctx, &redis.XReadArgs{
		Streams: []string{s.stream, s.lastID},
		Count:   10,
		Block:   s.options.blockTimeout,
	}).Result()
	if err != nil {
		return nil, err
	}

	if len(streams) == 0 || len(streams[0].Messages) == 0 {
		return nil, redis.Nil
	}
	messages := streams[0].Messages
	s.lastID = messages[len(messages)-1].ID
	return messages, nil
}

// Subscribe 訂閱轉送來的訊框，Close 之後通道會被關閉
func (s *RelayConsumer) Subscribe() <-chan notify.Envelope {
	return s.downStream
}

func (s *RelayConsumer) Close() {
	if s.closed {
		return
	}
	s.logger.Info("closing relay consumer")
	s.closed = true
	s.cancelFunc()
	s.wg.Wait()
	s.logger.Info("relay consumer closed")
}
