// Package bidding 實作報價生命週期的狀態機
// 所有會改變報價或貨運狀態的操作都在這裡完成，並在提交後依序發出事件
package bidding

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/google/uuid"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"loadboard/events"
	"loadboard/models"
)

// LoadLocker 以貨運為單位的互斥鎖，等待逾時需回傳 models.ErrTimeout
type LoadLocker interface {
	Lock(ctx context.Context, loadID uuid.UUID) (context.Context, func(), error)
}

type engineOptions struct {
	logger *slog.Logger
}

type EngineOption func(*engineOptions)

// WithEngineLogger 設置日誌記錄器
func WithEngineLogger(logger *slog.Logger) EngineOption {
	return func(o *engineOptions) {
		o.logger = logger
	}
}

type Engine struct {
	db         *gorm.DB
	locker     LoadLocker
	dispatcher events.Dispatcher
	logger     *slog.Logger
}

func NewEngine(db *gorm.DB, locker LoadLocker, dispatcher events.Dispatcher, opts ...EngineOption) (*Engine, error) {
	if db == nil {
		return nil, errors.New("db cannot be nil")
	}
	if locker == nil {
		return nil, errors.New("locker cannot be nil")
	}
	if dispatcher == nil {
		return nil, errors.New("dispatcher cannot be nil")
	}

	options := engineOptions{
		logger: slog.Default(),
	}
	for _, opt := range opts {
		opt(&options)
	}

	return &Engine{
		db:         db,
		locker:     locker,
		dispatcher: dispatcher,
		logger:     options.logger.With(slog.String("caller", "BidEngine")),
	}, nil
}

// forUpdate 在 Postgres 上鎖定讀取的資料列，SQLite 會忽略此子句
func forUpdate(tx *gorm.DB) *gorm.DB {
	return tx.Clauses(clause.Locking{Strength: "UPDATE"})
}

func findLoad(ctx context.Context, db *gorm.DB, loadID uuid.UUID) (*models.Load, error) {
	var load models.Load
	if err := db.WithContext(ctx).First(&load, "id = ?", loadID).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, fmt.Errorf("load %s: %w", loadID, models.ErrNotFound)
		}
		return nil, err
	}
	return &load, nil
}

func findBid(ctx context.Context, db *gorm.DB, bidID uuid.UUID) (*models.Bid, error) {
	var bid models.Bid
	if err := db.WithContext(ctx).First(&bid, "id = ?", bidID).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, fmt.Errorf("bid %s: %w", bidID, models.ErrNotFound)
		}
		return nil, err
	}
	return &bid, nil
}

// findBidWithLoad 讀取報價與所屬貨運，兩者任一不存在都視為 NotFound
func findBidWithLoad(ctx context.Context, db *gorm.DB, bidID uuid.UUID) (*models.Bid, *models.Load, error) {
	bid, err := findBid(ctx, db, bidID)
	if err != nil {
		return nil, nil, err
	}
	load, err := findLoad(ctx, db, bid.LoadID)
	if err != nil {
		return nil, nil, err
	}
	return bid, load, nil
}

// translate 將唯一鍵衝突轉為狀態錯誤，其他錯誤保持原樣
func translate(err error) error {
	if errors.Is(err, gorm.ErrDuplicatedKey) {
		return fmt.Errorf("constraint violated: %w", models.ErrInvalidState)
	}
	return err
}
