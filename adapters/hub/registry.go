package hub

import (
	"cmp"
	"log/slog"
	"slices"
	"sync"

	"github.com/google/uuid"
	"github.com/samber/lo"

	"loadboard/events"
	"loadboard/models"
	"loadboard/policy"
)

type registryOptions struct {
	logger *slog.Logger
}

type RegistryOption func(*registryOptions)

// WithRegistryLogger 設置日誌記錄器
func WithRegistryLogger(logger *slog.Logger) RegistryOption {
	return func(o *registryOptions) {
		o.logger = logger
	}
}

type entry struct {
	conn      Conn
	principal policy.Principal
	seq       uint64
	rooms     map[string]struct{}
}

// index 只由 listen goroutine 存取
type index struct {
	seq   uint64
	conns map[string]*entry
	users map[uuid.UUID]map[string]struct{}
	roles map[models.Role]map[string]struct{}
	rooms map[string]map[string]struct{}
}

type request struct {
	fn   func(*index)
	done chan struct{}
}

// Registry 維護使用者、角色與房間三個索引
// 所有狀態由單一 goroutine 持有，其他 goroutine 透過 requests 通道操作
type Registry struct {
	requests  chan request
	stopped   chan struct{}
	closeOnce sync.Once
	wg        sync.WaitGroup
	logger    *slog.Logger
}

var _ IRegistry = (*Registry)(nil)

// NewRegistry 建立註冊表並啟動處理 goroutine
func NewRegistry(opts ...RegistryOption) *Registry {
	options := registryOptions{
		logger: slog.Default(),
	}
	for _, opt := range opts {
		opt(&options)
	}

	r := &Registry{
		requests: make(chan request),
		stopped:  make(chan struct{}),
		logger:   options.logger.With(slog.String("caller", "Registry")),
	}

	r.wg.Add(1)
	go r.listen()
	return r
}

func (r *Registry) listen() {
	defer r.wg.Done()
	defer r.logger.Info("registry goroutine stopped")

	idx := &index{
		conns: make(map[string]*entry),
		users: make(map[uuid.UUID]map[string]struct{}),
		roles: make(map[models.Role]map[string]struct{}),
		rooms: make(map[string]map[string]struct{}),
	}

	for {
		select {
		case <-r.stopped:
			return
		case req := <-r.requests:
			req.fn(idx)
			close(req.done)
		}
	}
}

// do 將操作交給 listen goroutine 執行並等待完成，註冊表關閉後回傳 false
func (r *Registry) do(fn func(*index)) bool {
	req := request{fn: fn, done: make(chan struct{})}
	select {
	case <-r.stopped:
		return false
	case r.requests <- req:
	}
	<-req.done
	return true
}

func (r *Registry) Register(conn Conn) {
	if conn == nil {
		return
	}
	principal := conn.Principal()
	r.do(func(idx *index) {
		if _, ok := idx.conns[conn.ID()]; ok {
			return
		}
		idx.seq++
		idx.conns[conn.ID()] = &entry{
			conn:      conn,
			principal: principal,
			seq:       idx.seq,
			rooms:     make(map[string]struct{}),
		}
		addTo(idx.users, principal.UserID, conn.ID())
		addTo(idx.roles, principal.Role, conn.ID())
		r.logger.Debug("connection registered",
			slog.String("connID", conn.ID()),
			slog.String("userID", principal.UserID.String()),
			slog.Int("total", len(idx.conns)))
	})
}

func (r *Registry) Unregister(conn Conn) {
	if conn == nil {
		return
	}
	r.do(func(idx *index) {
		if idx.remove(conn.ID()) != nil {
			r.logger.Debug("connection unregistered",
				slog.String("connID", conn.ID()),
				slog.Int("total", len(idx.conns)))
		}
	})
}

func (r *Registry) JoinRoom(conn Conn, roomID string) {
	if conn == nil || roomID == "" {
		return
	}
	r.do(func(idx *index) {
		e, ok := idx.conns[conn.ID()]
		if !ok {
			return
		}
		e.rooms[roomID] = struct{}{}
		addTo(idx.rooms, roomID, conn.ID())
	})
}

func (r *Registry) LeaveRoom(conn Conn, roomID string) {
	if conn == nil {
		return
	}
	r.do(func(idx *index) {
		e, ok := idx.conns[conn.ID()]
		if !ok {
			return
		}
		delete(e.rooms, roomID)
		removeFrom(idx.rooms, roomID, conn.ID())
	})
}

func (r *Registry) Resolve(dest events.Destination) []Conn {
	var result []Conn
	r.do(func(idx *index) {
		var ids map[string]struct{}
		switch dest.Scope {
		case events.ScopeUser:
			userID, err := uuid.Parse(dest.Key)
			if err != nil {
				return
			}
			ids = idx.users[userID]
		case events.ScopeRole:
			ids = idx.roles[models.Role(dest.Key)]
		case events.ScopeRoom:
			ids = idx.rooms[dest.Key]
		}

		entries := make([]*entry, 0, len(ids))
		for id := range ids {
			e, ok := idx.conns[id]
			if !ok || !e.matches(dest) {
				continue
			}
			entries = append(entries, e)
		}
		slices.SortFunc(entries, func(a, b *entry) int {
			return cmp.Compare(a.seq, b.seq)
		})
		result = lo.Map(entries, func(e *entry, _ int) Conn { return e.conn })
	})
	return result
}

// DisconnectUser 先在索引中移除，再於 listen goroutine 之外讓連線送完剩餘訊框後關閉
func (r *Registry) DisconnectUser(userID uuid.UUID) int {
	var removed []Conn
	r.do(func(idx *index) {
		for id := range idx.users[userID] {
			if e := idx.remove(id); e != nil {
				removed = append(removed, e.conn)
			}
		}
	})
	for _, conn := range removed {
		if err := conn.Drain(); err != nil {
			r.logger.Warn("fail to close connection",
				slog.String("connID", conn.ID()),
				slog.Any("error", err))
		}
	}
	if len(removed) > 0 {
		r.logger.Info("user disconnected",
			slog.String("userID", userID.String()),
			slog.Int("connections", len(removed)))
	}
	return len(removed)
}

// DisconnectAll 在關閉服務前踢除所有連線
func (r *Registry) DisconnectAll() int {
	var removed []Conn
	r.do(func(idx *index) {
		for id := range idx.conns {
			if e := idx.remove(id); e != nil {
				removed = append(removed, e.conn)
			}
		}
	})
	for _, conn := range removed {
		_ = conn.Close()
	}
	return len(removed)
}

func (r *Registry) Rooms(conn Conn) []string {
	var rooms []string
	if conn == nil {
		return rooms
	}
	r.do(func(idx *index) {
		if e, ok := idx.conns[conn.ID()]; ok {
			rooms = lo.Keys(e.rooms)
		}
	})
	slices.Sort(rooms)
	return rooms
}

func (r *Registry) Count() int {
	var n int
	r.do(func(idx *index) {
		n = len(idx.conns)
	})
	return n
}

func (r *Registry) Close() {
	r.closeOnce.Do(func() {
		r.logger.Info("closing registry")
		close(r.stopped)
		r.wg.Wait()
	})
}

// matches 再次確認索引鍵與連線身份一致，避免殘留索引洩漏給其他身份
func (e *entry) matches(dest events.Destination) bool {
	switch dest.Scope {
	case events.ScopeUser:
		return e.principal.UserID.String() == dest.Key
	case events.ScopeRole:
		return string(e.principal.Role) == dest.Key
	case events.ScopeRoom:
		_, ok := e.rooms[dest.Key]
		return ok
	}
	return false
}

func (idx *index) remove(connID string) *entry {
	e, ok := idx.conns[connID]
	if !ok {
		return nil
	}
	delete(idx.conns, connID)
	removeFrom(idx.users, e.principal.UserID, connID)
	removeFrom(idx.roles, e.principal.Role, connID)
	for room := range e.rooms {
		removeFrom(idx.rooms, room, connID)
	}
	return e
}

func addTo[K comparable](m map[K]map[string]struct{}, key K, connID string) {
	set, ok := m[key]
	if !ok {
		set = make(map[string]struct{})
		m[key] = set
	}
	set[connID] = struct{}{}
}

// removeFrom 移除後若集合為空則刪除整個鍵
func removeFrom[K comparable](m map[K]map[string]struct{}, key K, connID string) {
	set, ok := m[key]
	if !ok {
		return
	}
	delete(set, connID)
	if len(set) == 0 {
		delete(m, key)
	}
}
