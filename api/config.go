package api

import (
	"time"

	"loadboard/adapters/database"
)

type ServerConfig struct {
	DB      DBConfig
	Redis   RedisConfig
	Auth    AuthConfig
	Runtime RuntimeConfig
}

type DBConfig struct {
	User     string
	Password string
	Host     string
	Port     int
	Database string
	Schema   string

	MaxOpenConns int
	// AutoMigrate 啟動時以 gorm 建立資料表，正式環境建議改用 atlas 產生的 DDL
	AutoMigrate bool
}

func (c DBConfig) toDatabaseConfig() database.Config {
	return database.Config{
		User:         c.User,
		Password:     c.Password,
		Host:         c.Host,
		Port:         c.Port,
		Database:     c.Database,
		Schema:       c.Schema,
		MaxOpenConns: c.MaxOpenConns,
	}
}

type RedisConfig struct {
	Addr     string
	Password string
	DB       int

	// KeyPrefix 所有分散式鎖的鍵前綴
	KeyPrefix  string
	StreamKeys RedisStreamKeys
}

type RedisStreamKeys struct {
	// Events 跨節點轉送事件的 stream，空字串代表只在本機投遞
	Events string
}

type AuthConfig struct {
	JWTPublicKeyFile string
	JWTIssuer        string
	JWTAudience      string

	OIDCIssuerURL string
	OIDCClientID  string

	// InternalToken 供註冊服務呼叫內部端點，空字串代表不開放
	InternalToken string
}

type RuntimeConfig struct {
	LockWait          time.Duration
	CommandWorkers    int
	ConnectionBuffer  int
	HeartbeatInterval time.Duration
	AllowedOrigins    []string
}

// DefaultRuntimeConfig 回傳預設的執行參數
func DefaultRuntimeConfig() RuntimeConfig {
	return RuntimeConfig{
		LockWait:          3 * time.Second,
		CommandWorkers:    64,
		ConnectionBuffer:  64,
		HeartbeatInterval: 25 * time.Second,
	}
}
