package models

import (
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"
)

type BidStatus string

const (
	BidStatusActive    BidStatus = "ACTIVE"
	BidStatusWon       BidStatus = "WON"
	BidStatusLost      BidStatus = "LOST"
	BidStatusWithdrawn BidStatus = "WITHDRAWN"
)

var BidStatuses = []BidStatus{BidStatusActive, BidStatusWon, BidStatusLost, BidStatusWithdrawn}

// Bid 代表運輸業者對貨運的報價
// 同一貨運最多一筆 WON，同一業者對同一貨運最多一筆 ACTIVE，兩者皆由部分唯一索引保證
type Bid struct {
	ID                   uuid.UUID `gorm:"type:uuid;primaryKey;<-:create"`
	LoadID               uuid.UUID `gorm:"type:uuid;not null;index;uniqueIndex:idx_bid_load_won,where:status = 'WON';uniqueIndex:idx_bid_load_transporter_active,where:status = 'ACTIVE';<-:create"`
	TransporterID        uuid.UUID `gorm:"type:uuid;not null;index;uniqueIndex:idx_bid_load_transporter_active,where:status = 'ACTIVE';<-:create"`
	Amount               float64   `gorm:"not null"`
	ProposedPickupDate   time.Time `gorm:"not null;<-:create"`
	ProposedDeliveryDate time.Time `gorm:"not null;<-:create"`
	Note                 string    `gorm:"type:text;not null;default:''"`
	Status               BidStatus `gorm:"type:varchar(32);not null;default:'ACTIVE'"`
	CreatedAt            time.Time
	UpdatedAt            time.Time

	// 外鍵關聯
	Load        *Load `gorm:"foreignKey:LoadID"`
	Transporter *User `gorm:"foreignKey:TransporterID"`
}

func (b *Bid) BeforeCreate(tx *gorm.DB) error {
	return assignID(&b.ID)
}
