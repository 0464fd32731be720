// Package events 定義系統發出的領域事件與事件的投遞目的地
package events

import (
	"time"

	"github.com/google/uuid"

	"loadboard/models"
)

type Kind string

const (
	KindBidReceived          Kind = "bid_received"
	KindBidWon               Kind = "bid_won"
	KindBidLost              Kind = "bid_lost"
	KindBidWithdrawn         Kind = "bid_withdrawn"
	KindBidRejected          Kind = "bid_rejected"
	KindLoadAssigned         Kind = "load_assigned"
	KindLoadStatusChanged    Kind = "load_status_changed"
	KindMessageReceived      Kind = "message_received"
	KindDocumentVerified     Kind = "document_verified"
	KindAccountStatusChanged Kind = "account_status_changed"
	KindUserRegistered       Kind = "user_registered"
)

// Event 是所有領域事件的共同介面
type Event interface {
	Kind() Kind
	OccurredAt() time.Time
}

// Meta 紀錄事件發生時間，嵌入每個具體事件
type Meta struct {
	At time.Time `json:"-"`
}

func (m Meta) OccurredAt() time.Time { return m.At }

// Stamp 回傳目前時間，統一使用 UTC
func Stamp() Meta {
	return Meta{At: time.Now().UTC()}
}

type BidReceived struct {
	Meta
	BidID         uuid.UUID `json:"bid_id"`
	LoadID        uuid.UUID `json:"load_id"`
	LoadTitle     string    `json:"load_title"`
	LoadOwnerID   uuid.UUID `json:"load_owner_id"`
	TransporterID uuid.UUID `json:"transporter_id"`
	Amount        float64   `json:"amount"`
}

func (BidReceived) Kind() Kind { return KindBidReceived }

type BidWon struct {
	Meta
	BidID         uuid.UUID `json:"bid_id"`
	LoadID        uuid.UUID `json:"load_id"`
	LoadTitle     string    `json:"load_title"`
	TransporterID uuid.UUID `json:"transporter_id"`
	Amount        float64   `json:"amount"`
}

func (BidWon) Kind() Kind { return KindBidWon }

type BidLost struct {
	Meta
	BidID         uuid.UUID `json:"bid_id"`
	LoadID        uuid.UUID `json:"load_id"`
	LoadTitle     string    `json:"load_title"`
	TransporterID uuid.UUID `json:"transporter_id"`
	Amount        float64   `json:"amount"`
}

func (BidLost) Kind() Kind { return KindBidLost }

// BidWithdrawn 只回傳給撤回報價的運輸業者本人
type BidWithdrawn struct {
	Meta
	BidID         uuid.UUID `json:"bid_id"`
	LoadID        uuid.UUID `json:"load_id"`
	TransporterID uuid.UUID `json:"transporter_id"`
}

func (BidWithdrawn) Kind() Kind { return KindBidWithdrawn }

type BidRejected struct {
	Meta
	BidID         uuid.UUID `json:"bid_id"`
	LoadID        uuid.UUID `json:"load_id"`
	LoadTitle     string    `json:"load_title"`
	TransporterID uuid.UUID `json:"transporter_id"`
	Amount        float64   `json:"amount"`
}

func (BidRejected) Kind() Kind { return KindBidRejected }

type LoadAssigned struct {
	Meta
	LoadID        uuid.UUID `json:"load_id"`
	LoadTitle     string    `json:"load_title"`
	BidID         uuid.UUID `json:"bid_id"`
	TransporterID uuid.UUID `json:"transporter_id"`
	Amount        float64   `json:"amount"`
}

func (LoadAssigned) Kind() Kind { return KindLoadAssigned }

type LoadStatusChanged struct {
	Meta
	LoadID                uuid.UUID         `json:"load_id"`
	LoadTitle             string            `json:"load_title"`
	OwnerID               uuid.UUID         `json:"owner_id"`
	AssignedTransporterID *uuid.UUID        `json:"assigned_transporter_id,omitempty"`
	From                  models.LoadStatus `json:"from"`
	To                    models.LoadStatus `json:"to"`
	ChangedBy             uuid.UUID         `json:"changed_by"`
}

func (LoadStatusChanged) Kind() Kind { return KindLoadStatusChanged }

type MessageReceived struct {
	Meta
	MessageID  uuid.UUID          `json:"message_id"`
	SenderID   uuid.UUID          `json:"sender_id"`
	SenderName string             `json:"sender_name"`
	ReceiverID uuid.UUID          `json:"receiver_id"`
	LoadID     *uuid.UUID         `json:"load_id,omitempty"`
	Type       models.MessageType `json:"message_type"`
	Body       string             `json:"body"`
}

func (MessageReceived) Kind() Kind { return KindMessageReceived }

type DocumentVerified struct {
	Meta
	DocumentID uuid.UUID `json:"document_id"`
	OwnerID    uuid.UUID `json:"owner_id"`
	Status     string    `json:"status"`
	Reason     string    `json:"reason,omitempty"`
}

func (DocumentVerified) Kind() Kind { return KindDocumentVerified }

type AccountStatusChanged struct {
	Meta
	UserID uuid.UUID         `json:"user_id"`
	Status models.UserStatus `json:"status"`
}

func (AccountStatusChanged) Kind() Kind { return KindAccountStatusChanged }

// UserRegistered 廣播給所有在線的管理員，提醒有待審核的帳號
type UserRegistered struct {
	Meta
	UserID      uuid.UUID   `json:"user_id"`
	Username    string      `json:"username"`
	CompanyName string      `json:"company_name"`
	Role        models.Role `json:"role"`
}

func (UserRegistered) Kind() Kind { return KindUserRegistered }

// Dispatcher 接收已提交的事件並負責投遞，實作不得阻塞或回報投遞失敗
type Dispatcher interface {
	Dispatch(evs ...Event)
}
