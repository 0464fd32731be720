// Package databasetest 提供以 SQLite 記憶體資料庫執行的測試用 gorm 連線
package databasetest

import (
	"fmt"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/require"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"

	"loadboard/adapters/database"
	"loadboard/models"
)

// New 建立一個獨立的記憶體資料庫並完成遷移，測試結束時自動關閉
// 只開一條連線，讓 SQLite 的寫入自然序列化
func New(t testing.TB) *gorm.DB {
	t.Helper()

	dsn := fmt.Sprintf("file:%s?mode=memory&cache=shared&_busy_timeout=5000", uuid.NewString())
	db, err := gorm.Open(sqlite.Open(dsn), database.GormConfig(""))
	require.NoError(t, err)

	sqlDB, err := db.DB()
	require.NoError(t, err)
	sqlDB.SetMaxOpenConns(1)

	require.NoError(t, database.Migrate(db))
	t.Cleanup(func() {
		_ = sqlDB.Close()
	})
	return db
}

// Fixtures 提供建立測試資料的輔助方法
type Fixtures struct {
	t  testing.TB
	db *gorm.DB
}

func NewFixtures(t testing.TB, db *gorm.DB) *Fixtures {
	return &Fixtures{t: t, db: db}
}

func (f *Fixtures) User(role models.Role, name string) *models.User {
	f.t.Helper()
	user := &models.User{
		Username:    name,
		CompanyName: name + " Ltd",
		Role:        role,
		Status:      models.UserStatusActive,
	}
	require.NoError(f.t, f.db.Create(user).Error)
	return user
}

func (f *Fixtures) Load(owner *models.User, title string) *models.Load {
	f.t.Helper()
	now := time.Now().UTC()
	load := &models.Load{
		ClientID:     owner.ID,
		Title:        title,
		Origin:       "Manchester",
		Destination:  "Leeds",
		CargoType:    "pallets",
		WeightKg:     1200,
		Budget:       700,
		PickupDate:   now.Add(24 * time.Hour),
		DeliveryDate: now.Add(48 * time.Hour),
		Status:       models.LoadStatusActive,
	}
	require.NoError(f.t, f.db.Create(load).Error)
	return load
}

func (f *Fixtures) Bid(load *models.Load, transporter *models.User, amount float64) *models.Bid {
	f.t.Helper()
	bid := &models.Bid{
		LoadID:               load.ID,
		TransporterID:        transporter.ID,
		Amount:               amount,
		ProposedPickupDate:   load.PickupDate,
		ProposedDeliveryDate: load.DeliveryDate,
		Status:               models.BidStatusActive,
	}
	require.NoError(f.t, f.db.Create(bid).Error)
	return bid
}

// SetLoadStatus 直接改寫貨運狀態，用來建立特定前置條件
func (f *Fixtures) SetLoadStatus(load *models.Load, status models.LoadStatus) {
	f.t.Helper()
	require.NoError(f.t, f.db.Model(&models.Load{}).Where("id = ?", load.ID).Update("status", status).Error)
	load.Status = status
}

func (f *Fixtures) SetUserStatus(user *models.User, status models.UserStatus) {
	f.t.Helper()
	require.NoError(f.t, f.db.Model(&models.User{}).Where("id = ?", user.ID).Update("status", status).Error)
	user.Status = status
}
