package models

import (
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"
)

type LoadStatus string

const (
	LoadStatusActive    LoadStatus = "ACTIVE"
	LoadStatusAssigned  LoadStatus = "ASSIGNED"
	LoadStatusCompleted LoadStatus = "COMPLETED"
	LoadStatusCancelled LoadStatus = "CANCELLED"
)

var LoadStatuses = []LoadStatus{LoadStatusActive, LoadStatusAssigned, LoadStatusCompleted, LoadStatusCancelled}

func (s LoadStatus) Valid() bool {
	switch s {
	case LoadStatusActive, LoadStatusAssigned, LoadStatusCompleted, LoadStatusCancelled:
		return true
	}
	return false
}

// Load 代表貨主發布的貨運需求
// 只有在 ASSIGNED 與 COMPLETED 狀態下會帶有得標的運輸業者
type Load struct {
	ID                    uuid.UUID  `gorm:"type:uuid;primaryKey;<-:create"`
	ClientID              uuid.UUID  `gorm:"type:uuid;index;not null;<-:create"`
	Title                 string     `gorm:"type:varchar(255);not null"`
	Origin                string     `gorm:"type:varchar(255);not null"`
	Destination           string     `gorm:"type:varchar(255);not null"`
	CargoType             string     `gorm:"type:varchar(128);not null;default:''"`
	WeightKg              float64    `gorm:"not null;default:0"`
	Budget                float64    `gorm:"not null;default:0"`
	PickupDate            time.Time  `gorm:"not null"`
	DeliveryDate          time.Time  `gorm:"not null"`
	Status                LoadStatus `gorm:"type:varchar(32);index;not null;default:'ACTIVE'"`
	AssignedTransporterID *uuid.UUID `gorm:"type:uuid;index"`
	CreatedAt             time.Time
	UpdatedAt             time.Time

	// 外鍵關聯
	Client              *User `gorm:"foreignKey:ClientID"`
	AssignedTransporter *User `gorm:"foreignKey:AssignedTransporterID"`
}

func (l *Load) BeforeCreate(tx *gorm.DB) error {
	return assignID(&l.ID)
}

// AssignedTo 判斷貨運是否指派給指定的運輸業者
func (l *Load) AssignedTo(userID uuid.UUID) bool {
	return l.AssignedTransporterID != nil && *l.AssignedTransporterID == userID
}
