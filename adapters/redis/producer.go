package redis

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"

	"github.com/redis/go-redis/v9"
	"github.com/smallnest/chanx"

	"loadboard/notify"
)

var ErrRelayClosed = errors.New("relay is closed")

type producerOptions struct {
	logger     *slog.Logger
	bufferSize int
	maxLen     int64
}

type ProducerOption func(*producerOptions)

// WithProducerLogger 設置日誌記錄器
func WithProducerLogger(logger *slog.Logger) ProducerOption {
	return func(o *producerOptions) {
		o.logger = logger
	}
}

// WithProducerBufferSize 設置緩衝大小
func WithProducerBufferSize(size int) ProducerOption {
	return func(o *producerOptions) {
		o.bufferSize = size
	}
}

// WithProducerMaxLen 設置 stream 保留的大約長度，訊框只需即時送達，不需長期保存
func WithProducerMaxLen(n int64) ProducerOption {
	return func(o *producerOptions) {
		o.maxLen = n
	}
}

// RelayProducer 將訊框寫入共用的 Redis Stream，讓每個節點都能投遞給自己的連線
// 實作 notify.Relay
type RelayProducer struct {
	client     *redis.Client
	stream     string
	upstream   *chanx.UnboundedChan[map[string]any]
	cancelFunc context.CancelFunc
	wg         sync.WaitGroup
	mu         sync.RWMutex
	closed     bool
	logger     *slog.Logger
	options    producerOptions
}

func NewRelayProducer(client *redis.Client, stream string, opts ...ProducerOption) (*RelayProducer, error) {
	if client == nil {
		return nil, errors.New("redis client cannot be nil")
	}
	if stream == "" {
		return nil, errors.New("stream cannot be empty")
	}

	// 默認選項
	options := producerOptions{
		logger:     slog.Default(),
		bufferSize: 100,
		maxLen:     1000,
	}

	// 應用自定義選項
	for _, opt := range opts {
		opt(&options)
	}

	return &RelayProducer{
		client:  client,
		stream:  stream,
		closed:  true,
		logger:  options.logger.With(slog.String("caller", "RelayProducer"), slog.String("stream", stream)),
		options: options,
	}, nil
}

func (p *RelayProducer) Start() {
	p.mu.Lock()
	defer p.mu.Unlock()
	if !p.closed {
		return
	}
	ctx, cancel := context.WithCancel(context.Background())
	p.upstream = chanx.NewUnboundedChan[map[string]any](ctx, p.options.bufferSize)
	p.cancelFunc = cancel
	p.closed = false
	p.logger.Info("starting relay producer")

	p.wg.Add(1)
	go func() {
		defer p.wg.Done()
		defer p.logger.Info("producer goroutine stopped")

		for {
			select {
			case <-ctx.Done():
				return
			case values := <-p.upstream.Out:
				id, err := p.client.XAdd(ctx, &redis.XAddArgs{
					Stream: p.stream,
					MaxLen: p.options.maxLen,
					Approx: true,
					Values: values,
				}).Result()

				if err != nil {
					if errors.Is(err, context.Canceled) {
						return
					}
					p.logger.Error("publish envelope error", slog.Any("error", err))
					continue
				}

				p.logger.Debug("envelope published", slog.String("messageId", id))
			}
		}
	}()
}

// Publish 非阻塞地將訊框排入發送佇列
func (p *RelayProducer) Publish(env notify.Envelope) error {
	p.mu.RLock()
	defer p.mu.RUnlock()
	if p.closed {
		return ErrRelayClosed
	}

	values, err := EncodeEnvelope(env)
	if err != nil {
		return fmt.Errorf("parse envelope error: %w", err)
	}

	p.upstream.In <- values
	return nil
}

func (p *RelayProducer) Close() {
	p.mu.Lock()
	if p.closed {
		p.mu.Unlock()
		return
	}
	p.logger.Info("closing relay producer")
	p.closed = true
	p.cancelFunc()
	p.mu.Unlock()

	p.wg.Wait()
	p.logger.Info("relay producer closed")
}
