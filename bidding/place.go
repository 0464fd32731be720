package bidding

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"loadboard/events"
	"loadboard/models"
	"loadboard/policy"
)

type PlaceBidInput struct {
	LoadID               uuid.UUID
	Amount               float64
	ProposedPickupDate   time.Time
	ProposedDeliveryDate time.Time
	Note                 string
}

func (in PlaceBidInput) validate() error {
	if in.Amount <= 0 {
		return fmt.Errorf("amount must be positive: %w", models.ErrInvalidArgument)
	}
	if in.ProposedPickupDate.IsZero() || in.ProposedDeliveryDate.IsZero() {
		return fmt.Errorf("proposed dates are required: %w", models.ErrInvalidArgument)
	}
	if in.ProposedDeliveryDate.Before(in.ProposedPickupDate) {
		return fmt.Errorf("delivery date before pickup date: %w", models.ErrInvalidArgument)
	}
	return nil
}

// PlaceBid 由運輸業者對開放中的貨運報價，每位業者對同一貨運最多一筆 ACTIVE 報價
func (e *Engine) PlaceBid(ctx context.Context, p policy.Principal, in PlaceBidInput) (*models.Bid, error) {
	const op = "PlaceBid"

	if err := in.validate(); err != nil {
		return nil, fmt.Errorf("[%s] %w", op, err)
	}
	load, err := findLoad(ctx, e.db, in.LoadID)
	if err != nil {
		return nil, fmt.Errorf("[%s] Fail to find load, err=%w", op, err)
	}
	if p.Role != models.RoleTransporter {
		return nil, fmt.Errorf("[%s] role %s cannot bid, err=%w", op, p.Role, models.ErrForbidden)
	}
	if !policy.CanPlaceBid(p, load) {
		return nil, fmt.Errorf("[%s] load %s is %s, err=%w", op, load.ID, load.Status, models.ErrInvalidState)
	}

	bid := &models.Bid{
		LoadID:               load.ID,
		TransporterID:        p.UserID,
		Amount:               in.Amount,
		ProposedPickupDate:   in.ProposedPickupDate.UTC(),
		ProposedDeliveryDate: in.ProposedDeliveryDate.UTC(),
		Note:                 in.Note,
		Status:               models.BidStatusActive,
	}
	err = e.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		// 共享鎖讓接受報價等待本交易完成，新報價才會被一併標記為 LOST
		var current models.Load
		if err := tx.Clauses(clause.Locking{Strength: "SHARE"}).First(&current, "id = ?", load.ID).Error; err != nil {
			return err
		}
		if current.Status != models.LoadStatusActive {
			return fmt.Errorf("load %s is %s: %w", current.ID, current.Status, models.ErrInvalidState)
		}

		var existing int64
		if err := tx.Model(&models.Bid{}).
			Where("load_id = ? AND transporter_id = ? AND status = ?", load.ID, p.UserID, models.BidStatusActive).
			Count(&existing).Error; err != nil {
			return err
		}
		if existing > 0 {
			return fmt.Errorf("transporter already has an active bid on load %s: %w", load.ID, models.ErrInvalidState)
		}
		return tx.Create(bid).Error
	})
	if err != nil {
		return nil, fmt.Errorf("[%s] Fail to create bid, err=%w", op, translate(err))
	}

	e.logger.Info("bid placed",
		slog.String("bidID", bid.ID.String()),
		slog.String("loadID", load.ID.String()),
		slog.Float64("amount", bid.Amount))

	e.dispatcher.Dispatch(events.BidReceived{
		Meta:          events.Stamp(),
		BidID:         bid.ID,
		LoadID:        load.ID,
		LoadTitle:     load.Title,
		LoadOwnerID:   load.ClientID,
		TransporterID: bid.TransporterID,
		Amount:        bid.Amount,
	})
	return bid, nil
}
