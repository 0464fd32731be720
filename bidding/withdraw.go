package bidding

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/google/uuid"

	"loadboard/events"
	"loadboard/models"
	"loadboard/policy"
)

// WithdrawBid 由報價者（或管理員）撤回一筆 ACTIVE 報價
// 只發出給報價者本人的確認事件
func (e *Engine) WithdrawBid(ctx context.Context, p policy.Principal, bidID uuid.UUID) (*models.Bid, error) {
	const op = "WithdrawBid"

	bid, err := findBid(ctx, e.db, bidID)
	if err != nil {
		return nil, fmt.Errorf("[%s] Fail to find bid, err=%w", op, err)
	}
	if !policy.CanWithdrawBid(p, bid) {
		return nil, fmt.Errorf("[%s] principal %s cannot withdraw bid %s, err=%w", op, p.UserID, bidID, models.ErrForbidden)
	}
	if err := e.transition(ctx, bid, models.BidStatusWithdrawn); err != nil {
		return nil, fmt.Errorf("[%s] %w", op, err)
	}

	e.logger.Info("bid withdrawn",
		slog.String("bidID", bid.ID.String()),
		slog.String("withdrawnBy", p.UserID.String()))

	e.dispatcher.Dispatch(events.BidWithdrawn{
		Meta:          events.Stamp(),
		BidID:         bid.ID,
		LoadID:        bid.LoadID,
		TransporterID: bid.TransporterID,
	})
	return bid, nil
}

// RejectBid 由貨主（或管理員）拒絕一筆 ACTIVE 報價，報價轉為 LOST
func (e *Engine) RejectBid(ctx context.Context, p policy.Principal, bidID uuid.UUID) (*models.Bid, error) {
	const op = "RejectBid"

	bid, load, err := findBidWithLoad(ctx, e.db, bidID)
	if err != nil {
		return nil, fmt.Errorf("[%s] Fail to find bid, err=%w", op, err)
	}
	if !policy.CanRejectBid(p, load) {
		return nil, fmt.Errorf("[%s] principal %s cannot reject bid %s, err=%w", op, p.UserID, bidID, models.ErrForbidden)
	}
	if err := e.transition(ctx, bid, models.BidStatusLost); err != nil {
		return nil, fmt.Errorf("[%s] %w", op, err)
	}

	e.logger.Info("bid rejected",
		slog.String("bidID", bid.ID.String()),
		slog.String("rejectedBy", p.UserID.String()))

	e.dispatcher.Dispatch(events.BidRejected{
		Meta:          events.Stamp(),
		BidID:         bid.ID,
		LoadID:        load.ID,
		LoadTitle:     load.Title,
		TransporterID: bid.TransporterID,
		Amount:        bid.Amount,
	})
	return bid, nil
}

// transition 以比較後寫入的方式將 ACTIVE 報價轉為終止狀態
func (e *Engine) transition(ctx context.Context, bid *models.Bid, to models.BidStatus) error {
	if bid.Status != models.BidStatusActive {
		return fmt.Errorf("bid %s is %s: %w", bid.ID, bid.Status, models.ErrInvalidState)
	}
	res := e.db.WithContext(ctx).Model(&models.Bid{}).
		Where("id = ? AND status = ?", bid.ID, models.BidStatusActive).
		Update("status", to)
	if res.Error != nil {
		return fmt.Errorf("Fail to update bid, err=%w", res.Error)
	}
	if res.RowsAffected != 1 {
		return fmt.Errorf("bid %s changed concurrently: %w", bid.ID, models.ErrInvalidState)
	}
	bid.Status = to
	return nil
}
