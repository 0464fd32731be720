package ws

import (
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"
	"golang.org/x/net/websocket"

	"loadboard/models"
	"loadboard/policy"
)

// Peer 是一條已驗證的 websocket 連線
// 所有寫入都經過有界佇列，由單一 writer goroutine 送出
type Peer struct {
	id        string
	principal policy.Principal
	conn      *websocket.Conn
	outbound  chan []byte
	closing   chan struct{}
	done      chan struct{}
	drainOnce sync.Once
	closeOnce sync.Once
	logger    *slog.Logger
}

func newPeer(conn *websocket.Conn, principal policy.Principal, buffer int, logger *slog.Logger) *Peer {
	id := uuid.NewString()
	return &Peer{
		id:        id,
		principal: principal,
		conn:      conn,
		outbound:  make(chan []byte, buffer),
		closing:   make(chan struct{}),
		done:      make(chan struct{}),
		logger: logger.With(
			slog.String("connID", id),
			slog.String("userID", principal.UserID.String())),
	}
}

func (p *Peer) ID() string {
	return p.id
}

func (p *Peer) Principal() policy.Principal {
	return p.principal
}

// Send 將訊框排入佇列，佇列已滿、連線正在關閉或已關閉時回傳 models.ErrConnectionGone
func (p *Peer) Send(frame []byte) error {
	select {
	case <-p.done:
		return models.ErrConnectionGone
	case <-p.closing:
		return models.ErrConnectionGone
	default:
	}
	select {
	case p.outbound <- frame:
		return nil
	default:
		return models.ErrConnectionGone
	}
}

func (p *Peer) Close() error {
	var err error
	p.closeOnce.Do(func() {
		close(p.done)
		err = p.conn.Close()
	})
	return err
}

// Drain 不再接受新訊框，writer 送完佇列中剩餘的訊框後關閉連線
func (p *Peer) Drain() error {
	p.drainOnce.Do(func() {
		close(p.closing)
	})
	return nil
}

// Done 在連線關閉後被關閉
func (p *Peer) Done() <-chan struct{} {
	return p.done
}

// writeLoop 依序送出佇列中的訊框並定期送出心跳，寫入失敗時呼叫 onGone
func (p *Peer) writeLoop(heartbeat, writeTimeout time.Duration, onGone func()) {
	ticker := time.NewTicker(heartbeat)
	defer ticker.Stop()

	for {
		var frame []byte
		select {
		case <-p.done:
			return
		case <-p.closing:
			p.flush(writeTimeout)
			onGone()
			return
		case frame = <-p.outbound:
		case <-ticker.C:
			frame = pingFrame
		}

		if err := p.conn.SetWriteDeadline(time.Now().Add(writeTimeout)); err == nil {
			err = websocket.Message.Send(p.conn, string(frame))
			if err == nil {
				continue
			}
			p.logger.Debug("write failed", slog.Any("error", err))
		}
		onGone()
		return
	}
}

// flush 在 writeTimeout 內送出佇列中剩餘的訊框
func (p *Peer) flush(writeTimeout time.Duration) {
	if err := p.conn.SetWriteDeadline(time.Now().Add(writeTimeout)); err != nil {
		return
	}
	for {
		select {
		case frame := <-p.outbound:
			if err := websocket.Message.Send(p.conn, string(frame)); err != nil {
				p.logger.Debug("flush failed", slog.Any("error", err))
				return
			}
		default:
			return
		}
	}
}
