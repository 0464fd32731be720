//go:generate mockgen -package=hub -destination=mock.go -source=interfaces.go

package hub

import (
	"github.com/google/uuid"

	"loadboard/events"
	"loadboard/policy"
)

// Conn 代表一條已通過驗證的長連線
type Conn interface {
	// ID 回傳連線的唯一識別碼
	ID() string
	// Principal 回傳握手時驗證過的身份
	Principal() policy.Principal
	// Send 將一個已序列化的訊框排入送出佇列，不可阻塞
	// 佇列已滿或連線已關閉時回傳 models.ErrConnectionGone
	Send(frame []byte) error
	// Drain 送出已排入佇列的訊框後關閉連線，不可阻塞，可重複呼叫
	Drain() error
	// Close 立即關閉連線，可重複呼叫
	Close() error
}

// IRegistry 定義了連線註冊表的操作介面
type IRegistry interface {
	// Register 以連線的身份建立使用者與角色索引
	Register(conn Conn)
	// Unregister 從所有索引移除連線，未知的連線直接忽略
	Unregister(conn Conn)
	// JoinRoom 將連線加入房間，呼叫端需先完成權限檢查
	JoinRoom(conn Conn, roomID string)
	// LeaveRoom 將連線移出房間
	LeaveRoom(conn Conn, roomID string)
	// Resolve 回傳目的地目前所有存活的連線，依註冊順序排列
	Resolve(dest events.Destination) []Conn
	// DisconnectUser 移除指定使用者的所有連線，已排入佇列的訊框送出後才關閉
	DisconnectUser(userID uuid.UUID) int
	// DisconnectAll 關閉並移除所有連線
	DisconnectAll() int
	// Rooms 回傳連線目前加入的房間
	Rooms(conn Conn) []string
	// Count 回傳目前註冊的連線數
	Count() int
	// Close 停止註冊表，之後所有操作皆為空操作
	Close()
}
