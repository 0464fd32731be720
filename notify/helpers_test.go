package notify_test

import (
	"encoding/json"
	"errors"
	"io"
	"log"
	"sync"

	"github.com/google/uuid"

	"loadboard/models"
	"loadboard/notify"
	"loadboard/policy"
)

func init() {
	// 將日誌輸出重定向到io.Discard
	log.SetOutput(io.Discard)
}

type fakeConn struct {
	id        string
	principal policy.Principal
	failSend  bool

	mu      sync.Mutex
	frames  []notify.Frame
	raw     [][]byte
	closed  bool
	drained bool
}

func newConn(role models.Role) *fakeConn {
	return &fakeConn{id: uuid.NewString(), principal: policy.Principal{UserID: uuid.New(), Role: role}}
}

func (c *fakeConn) ID() string                  { return c.id }
func (c *fakeConn) Principal() policy.Principal { return c.principal }

func (c *fakeConn) Send(frame []byte) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed || c.failSend {
		return errors.New("broken pipe")
	}
	var f struct {
		Type  string          `json:"type"`
		Event string          `json:"event"`
		Data  json.RawMessage `json:"data"`
	}
	if err := json.Unmarshal(frame, &f); err != nil {
		return err
	}
	c.frames = append(c.frames, notify.Frame{Type: f.Type, Event: eventsKind(f.Event)})
	c.raw = append(c.raw, frame)
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

func (c *fakeConn) kinds() []string {
	c.mu.Lock()
	defer c.mu.Unlock()
	result := make([]string, 0, len(c.frames))
	for _, f := range c.frames {
		result = append(result, string(f.Event))
	}
	return result
}

func (c *fakeConn) isClosed() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.closed
}

type fakeRelay struct {
	mu        sync.Mutex
	envelopes []notify.Envelope
	err       error
}

func (r *fakeRelay) Publish(env notify.Envelope) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.err != nil {
		return r.err
	}
	r.envelopes = append(r.envelopes, env)
	return nil
}
