package hub_test

import (
	"io"
	"log"
	"sync"

	"github.com/google/uuid"

	"loadboard/models"
	"loadboard/policy"
)

func init() {
	// 將日誌輸出重定向到io.Discard
	log.SetOutput(io.Discard)
}

// fakeConn 記錄收到的訊框，用來觀察註冊表的行為
type fakeConn struct {
	id        string
	principal policy.Principal

	mu      sync.Mutex
	frames  [][]byte
	closed  bool
	drained bool
}

func newFakeConn(role models.Role) *fakeConn {
	return &fakeConn{
		id:        uuid.NewString(),
		principal: policy.Principal{UserID: uuid.New(), Role: role},
	}
}

func newFakeConnFor(p policy.Principal) *fakeConn {
	return &fakeConn{id: uuid.NewString(), principal: p}
}

func (c *fakeConn) ID() string                  { return c.id }
func (c *fakeConn) Principal() policy.Principal { return c.principal }

func (c *fakeConn) Send(frame []byte) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed {
		return models.ErrConnectionGone
	}
	c.frames = append(c.frames, frame)
	return nil
}

func (c *fakeConn) Close() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.closed = true
	return nil
}

func (c *fakeConn) Drain() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.drained = true
	c.closed = true
	return nil
}

func (c *fakeConn) isDrained() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.drained
}

func (c *fakeConn) isClosed() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.closed
}
