package models

import (
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"
)

type Role string

const (
	RoleAdmin       Role = "ADMIN"
	RoleClient      Role = "CLIENT"
	RoleTransporter Role = "TRANSPORTER"
)

// Roles 列出所有角色，用於驗證與窮舉測試
var Roles = []Role{RoleAdmin, RoleClient, RoleTransporter}

func (r Role) Valid() bool {
	switch r {
	case RoleAdmin, RoleClient, RoleTransporter:
		return true
	}
	return false
}

type UserStatus string

const (
	UserStatusActive    UserStatus = "ACTIVE"
	UserStatusPending   UserStatus = "PENDING"
	UserStatusRejected  UserStatus = "REJECTED"
	UserStatusSuspended UserStatus = "SUSPENDED"
)

var UserStatuses = []UserStatus{UserStatusActive, UserStatusPending, UserStatusRejected, UserStatusSuspended}

func (s UserStatus) Valid() bool {
	switch s {
	case UserStatusActive, UserStatusPending, UserStatusRejected, UserStatusSuspended:
		return true
	}
	return false
}

// Suspended 代表帳號已被停權或審核不通過，不能再收發訊息
func (s UserStatus) Suspended() bool {
	return s == UserStatusSuspended || s == UserStatusRejected
}

// User 代表平台上的使用者
// 角色決定可執行的操作，狀態決定能否登入與收發訊息
type User struct {
	ID          uuid.UUID  `gorm:"type:uuid;primaryKey;<-:create"`
	Username    string     `gorm:"type:varchar(255);not null;uniqueIndex;<-:create"`
	CompanyName string     `gorm:"type:varchar(255);not null;default:''"`
	Role        Role       `gorm:"type:varchar(32);not null;<-:create"`
	Status      UserStatus `gorm:"type:varchar(32);not null;default:'PENDING'"`
	CreatedAt   time.Time
	UpdatedAt   time.Time
}

func (u *User) BeforeCreate(tx *gorm.DB) error {
	return assignID(&u.ID)
}

// assignID 在應用端產生 UUIDv7，讓 Postgres 與 SQLite 行為一致
func assignID(id *uuid.UUID) error {
	if *id != uuid.Nil {
		return nil
	}
	v, err := uuid.NewV7()
	if err != nil {
		return err
	}
	*id = v
	return nil
}
