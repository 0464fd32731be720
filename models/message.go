package models

import (
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"
)

type MessageType string

const (
	MessageTypeGeneral         MessageType = "GENERAL"
	MessageTypeBidNotification MessageType = "BID_NOTIFICATION"
	MessageTypeStatusUpdate    MessageType = "STATUS_UPDATE"
	MessageTypeSystem          MessageType = "SYSTEM"
)

func (t MessageType) Valid() bool {
	switch t {
	case MessageTypeGeneral, MessageTypeBidNotification, MessageTypeStatusUpdate, MessageTypeSystem:
		return true
	}
	return false
}

// Message 代表使用者之間的站內訊息，可選擇關聯到某筆貨運
type Message struct {
	ID         uuid.UUID   `gorm:"type:uuid;primaryKey;<-:create"`
	SenderID   uuid.UUID   `gorm:"type:uuid;index;not null;<-:create"`
	ReceiverID uuid.UUID   `gorm:"type:uuid;index;not null;<-:create"`
	LoadID     *uuid.UUID  `gorm:"type:uuid;index;<-:create"`
	Body       string      `gorm:"type:text;not null;<-:create"`
	Type       MessageType `gorm:"type:varchar(32);not null;default:'GENERAL';<-:create"`
	Read       bool        `gorm:"not null;default:false"`
	CreatedAt  time.Time
	UpdatedAt  time.Time

	Sender   *User `gorm:"foreignKey:SenderID"`
	Receiver *User `gorm:"foreignKey:ReceiverID"`
}

func (m *Message) BeforeCreate(tx *gorm.DB) error {
	return assignID(&m.ID)
}
