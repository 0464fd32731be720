package models

import (
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"
)

// UserIdentity 代表使用者在外部 OIDC 提供者的身份
// 以 issuer 與 subject 唯一對應到平台上的使用者
type UserIdentity struct {
	ID        uuid.UUID `gorm:"type:uuid;primaryKey;<-:create"`
	Issuer    string    `gorm:"type:text;uniqueIndex:idx_user_identity_issuer_subject;not null;<-:create"`
	Subject   string    `gorm:"type:text;uniqueIndex:idx_user_identity_issuer_subject;not null;<-:create"`
	UserID    uuid.UUID `gorm:"type:uuid;index;not null;<-:create"`
	CreatedAt time.Time

	User *User `gorm:"foreignKey:UserID"`
}

func (i *UserIdentity) BeforeCreate(tx *gorm.DB) error {
	return assignID(&i.ID)
}
