package notify

import (
	"context"
	"errors"
	"log/slog"

	"github.com/google/uuid"
	"github.com/samber/lo"

	"loadboard/adapters/hub"
	"loadboard/events"
	"loadboard/models"
)

// Registry 是路由器需要的註冊表操作
type Registry interface {
	Resolve(dest events.Destination) []hub.Conn
	Unregister(conn hub.Conn)
	DisconnectUser(userID uuid.UUID) int
}

// Relay 將訊框轉送給所有節點，包含自己
type Relay interface {
	Publish(env Envelope) error
}

type routerOptions struct {
	logger *slog.Logger
	relay  Relay
}

type RouterOption func(*routerOptions)

// WithRouterLogger 設置日誌記錄器
func WithRouterLogger(logger *slog.Logger) RouterOption {
	return func(o *routerOptions) {
		o.logger = logger
	}
}

// WithRouterRelay 設置跨節點轉送，未設置時只投遞給本機連線
func WithRouterRelay(relay Relay) RouterOption {
	return func(o *routerOptions) {
		o.relay = relay
	}
}

// Router 依靜態路由表把事件投遞到目前在線的連線
// 投遞失敗只會移除該連線，不會回報給呼叫端
type Router struct {
	registry Registry
	relay    Relay
	logger   *slog.Logger
}

func NewRouter(registry Registry, opts ...RouterOption) (*Router, error) {
	if registry == nil {
		return nil, errors.New("registry cannot be nil")
	}
	options := routerOptions{
		logger: slog.Default(),
	}
	for _, opt := range opts {
		opt(&options)
	}
	return &Router{
		registry: registry,
		relay:    options.relay,
		logger:   options.logger.With(slog.String("caller", "Router")),
	}, nil
}

// Dispatch 依參數順序投遞事件
func (r *Router) Dispatch(evs ...events.Event) {
	for _, e := range evs {
		if e == nil {
			continue
		}
		dests := Destinations(e)
		if len(dests) == 0 {
			r.logger.Warn("event has no route", slog.String("event", string(e.Kind())))
			continue
		}
		frame, err := Encode(e)
		if err != nil {
			r.logger.Error("fail to encode event", slog.Any("error", err))
			continue
		}
		env := Envelope{Destinations: dests, Frame: frame, Disconnect: disconnects(e)}

		if r.relay != nil {
			err := r.relay.Publish(env)
			if err == nil {
				continue
			}
			r.logger.Warn("relay publish failed, delivering locally",
				slog.String("event", string(e.Kind())),
				slog.Any("error", err))
		}
		r.Deliver(env)
	}
}

// Deliver 將訊框投遞給本機符合目的地的連線，每條連線最多收到一次
// 之後才關閉 Disconnect 列出的使用者連線，已排入佇列的訊框仍會送出
func (r *Router) Deliver(env Envelope) int {
	var conns []hub.Conn
	for _, dest := range env.Destinations {
		conns = append(conns, r.registry.Resolve(dest)...)
	}
	conns = lo.UniqBy(conns, func(c hub.Conn) string { return c.ID() })

	delivered := 0
	for _, conn := range conns {
		if err := conn.Send(env.Frame); err != nil {
			r.drop(conn, err)
			continue
		}
		delivered++
	}
	r.logger.Debug("frame delivered",
		slog.Int("destinations", len(env.Destinations)),
		slog.Int("connections", delivered))

	for _, key := range env.Disconnect {
		userID, err := uuid.Parse(key)
		if err != nil {
			r.logger.Warn("invalid disconnect target", slog.String("userID", key))
			continue
		}
		n := r.registry.DisconnectUser(userID)
		r.logger.Debug("inactive user disconnected",
			slog.String("userID", key),
			slog.Int("connections", n))
	}
	return delivered
}

// Run 持續投遞從其他節點轉送來的訊框，直到通道關閉或 ctx 結束
func (r *Router) Run(ctx context.Context, incoming <-chan Envelope) {
	for {
		select {
		case <-ctx.Done():
			return
		case env, ok := <-incoming:
			if !ok {
				return
			}
			r.Deliver(env)
		}
	}
}

func (r *Router) drop(conn hub.Conn, err error) {
	if !errors.Is(err, models.ErrConnectionGone) {
		err = errors.Join(models.ErrConnectionGone, err)
	}
	r.logger.Info("dropping connection",
		slog.String("connID", conn.ID()),
		slog.String("userID", conn.Principal().UserID.String()),
		slog.Any("error", err))
	r.registry.Unregister(conn)
	_ = conn.Close()
}
