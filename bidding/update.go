package bidding

import (
	"context"
	"fmt"
	"log/slog"
	"strings"

	"github.com/google/uuid"

	"loadboard/models"
	"loadboard/policy"
)

// UpdateBidInput 中為 nil 的欄位保持不變
type UpdateBidInput struct {
	Amount *float64
	Note   *string
}

func (in UpdateBidInput) validate() error {
	if in.Amount == nil && in.Note == nil {
		return fmt.Errorf("nothing to update: %w", models.ErrInvalidArgument)
	}
	if in.Amount != nil && *in.Amount <= 0 {
		return fmt.Errorf("amount must be positive: %w", models.ErrInvalidArgument)
	}
	return nil
}

// UpdateBid 由報價者（或管理員）修改 ACTIVE 報價的金額或備註
func (e *Engine) UpdateBid(ctx context.Context, p policy.Principal, bidID uuid.UUID, in UpdateBidInput) (*models.Bid, error) {
	const op = "UpdateBid"

	bid, err := findBid(ctx, e.db, bidID)
	if err != nil {
		return nil, fmt.Errorf("[%s] Fail to find bid, err=%w", op, err)
	}
	if !policy.CanWithdrawBid(p, bid) {
		return nil, fmt.Errorf("[%s] principal %s cannot update bid %s, err=%w", op, p.UserID, bidID, models.ErrForbidden)
	}
	if err := in.validate(); err != nil {
		return nil, fmt.Errorf("[%s] %w", op, err)
	}
	if bid.Status != models.BidStatusActive {
		return nil, fmt.Errorf("[%s] bid %s is %s, err=%w", op, bid.ID, bid.Status, models.ErrInvalidState)
	}

	changes := map[string]any{}
	if in.Amount != nil {
		changes["amount"] = *in.Amount
	}
	if in.Note != nil {
		changes["note"] = strings.TrimSpace(*in.Note)
	}
	// 接受報價持有列鎖時本更新會等待，之後條件不再成立
	res := e.db.WithContext(ctx).Model(&models.Bid{}).
		Where("id = ? AND status = ?", bid.ID, models.BidStatusActive).
		Updates(changes)
	if res.Error != nil {
		return nil, fmt.Errorf("[%s] Fail to update bid, err=%w", op, res.Error)
	}
	if res.RowsAffected != 1 {
		return nil, fmt.Errorf("[%s] bid %s changed concurrently, err=%w", op, bid.ID, models.ErrInvalidState)
	}

	bid, err = findBid(ctx, e.db, bidID)
	if err != nil {
		return nil, fmt.Errorf("[%s] Fail to reload bid, err=%w", op, err)
	}
	e.logger.Info("bid updated",
		slog.String("bidID", bid.ID.String()),
		slog.String("updatedBy", p.UserID.String()),
		slog.Float64("amount", bid.Amount))
	return bid, nil
}
