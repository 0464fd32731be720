// Package database 負責建立 gorm 連線與資料表遷移
package database

import (
	"context"
	"fmt"
	"time"

	"gorm.io/driver/postgres"
	"gorm.io/gorm"
	"gorm.io/gorm/schema"

	"loadboard/models"
)

type Config struct {
	User     string
	Password string
	Host     string
	Port     int
	Database string
	Schema   string

	MaxOpenConns int
	PingTimeout  time.Duration
}

func (c Config) DSN() string {
	dsn := fmt.Sprintf("postgres://%s:%s@%s:%d/%s?sslmode=disable", c.User, c.Password, c.Host, c.Port, c.Database)
	if c.Schema != "" {
		dsn += "&search_path=" + c.Schema
	}
	return dsn
}

// GormConfig 回傳共用的 gorm 設定，開啟錯誤轉換以便判斷唯一鍵衝突
func GormConfig(tablePrefix string) *gorm.Config {
	return &gorm.Config{
		TranslateError: true,
		NamingStrategy: schema.NamingStrategy{
			TablePrefix: tablePrefix,
		},
	}
}

// Connect 連線到 Postgres 並確認可用
func Connect(cfg Config) (*gorm.DB, error) {
	const op = "Connect"

	prefix := ""
	if cfg.Schema != "" {
		prefix = cfg.Schema + "."
	}
	db, err := gorm.Open(postgres.Open(cfg.DSN()), GormConfig(prefix))
	if err != nil {
		return nil, fmt.Errorf("[%s] Fail to connect to database, err=%w", op, err)
	}

	sqlDB, err := db.DB()
	if err != nil {
		return nil, fmt.Errorf("[%s] Fail to resolve sql db handle, err=%w", op, err)
	}
	if cfg.MaxOpenConns > 0 {
		sqlDB.SetMaxOpenConns(cfg.MaxOpenConns)
	}

	timeout := cfg.PingTimeout
	if timeout <= 0 {
		timeout = 5 * time.Second
	}
	ctx, cancel := context.WithTimeout(context.Background(), timeout)
	defer cancel()
	if err := sqlDB.PingContext(ctx); err != nil {
		_ = sqlDB.Close()
		return nil, fmt.Errorf("[%s] Fail to ping database, err=%w", op, err)
	}
	return db, nil
}

// Migrate 建立或更新所有資料表與索引
func Migrate(db *gorm.DB) error {
	const op = "Migrate"
	if err := db.AutoMigrate(models.All()...); err != nil {
		return fmt.Errorf("[%s] Fail to migrate models, err=%w", op, err)
	}
	return nil
}

// Close 關閉底層連線池
func Close(db *gorm.DB) error {
	if db == nil {
		return nil
	}
	sqlDB, err := db.DB()
	if err != nil {
		return err
	}
	return sqlDB.Close()
}
