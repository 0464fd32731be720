package bidding

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/google/uuid"
	"github.com/samber/lo"
	"gorm.io/gorm"

	"loadboard/events"
	"loadboard/models"
	"loadboard/policy"
)

// AcceptedBid 是接受報價成功後的提交結果
type AcceptedBid struct {
	Bid  models.Bid
	Load models.Load
	Lost []models.Bid
}

// AcceptBid 接受一筆報價，在同一交易內將其標記為 WON、
// 將同一貨運的其他 ACTIVE 報價標記為 LOST，並將貨運指派給報價者
//
// 前置條件依序檢查：報價存在、操作者有權限、報價與貨運皆為 ACTIVE
// 成功後依序發出 BidWon、每筆 BidLost、LoadAssigned
func (e *Engine) AcceptBid(ctx context.Context, p policy.Principal, bidID uuid.UUID) (*AcceptedBid, error) {
	const op = "AcceptBid"

	bid, load, err := findBidWithLoad(ctx, e.db, bidID)
	if err != nil {
		return nil, fmt.Errorf("[%s] Fail to find bid, err=%w", op, err)
	}
	if !policy.CanAcceptBid(p, load) {
		return nil, fmt.Errorf("[%s] principal %s cannot accept bid %s, err=%w", op, p.UserID, bidID, models.ErrForbidden)
	}
	if err := acceptable(bid, load); err != nil {
		return nil, fmt.Errorf("[%s] %w", op, err)
	}

	lockCtx, release, err := e.locker.Lock(ctx, load.ID)
	if err != nil {
		if errors.Is(err, models.ErrTimeout) {
			return nil, e.afterLockTimeout(ctx, op, load.ID, err)
		}
		return nil, fmt.Errorf("[%s] Fail to lock load, err=%w", op, err)
	}
	defer release()

	var result AcceptedBid
	err = e.db.WithContext(lockCtx).Transaction(func(tx *gorm.DB) error {
		var current models.Load
		if err := forUpdate(tx).First(&current, "id = ?", load.ID).Error; err != nil {
			return err
		}
		var winner models.Bid
		if err := forUpdate(tx).First(&winner, "id = ?", bidID).Error; err != nil {
			return err
		}
		if err := acceptable(&winner, &current); err != nil {
			return err
		}

		res := tx.Model(&models.Bid{}).
			Where("id = ? AND status = ?", winner.ID, models.BidStatusActive).
			Update("status", models.BidStatusWon)
		if res.Error != nil {
			return res.Error
		}
		if res.RowsAffected != 1 {
			return fmt.Errorf("bid %s changed concurrently: %w", winner.ID, models.ErrInvalidState)
		}

		var losers []models.Bid
		if err := forUpdate(tx).
			Where("load_id = ? AND id <> ? AND status = ?", current.ID, winner.ID, models.BidStatusActive).
			Order("created_at").
			Find(&losers).Error; err != nil {
			return err
		}
		if len(losers) > 0 {
			loserIDs := lo.Map(losers, func(b models.Bid, _ int) uuid.UUID { return b.ID })
			if err := tx.Model(&models.Bid{}).
				Where("id IN ? AND status = ?", loserIDs, models.BidStatusActive).
				Update("status", models.BidStatusLost).Error; err != nil {
				return err
			}
		}

		res = tx.Model(&models.Load{}).
			Where("id = ? AND status = ?", current.ID, models.LoadStatusActive).
			Updates(map[string]any{
				"status":                  models.LoadStatusAssigned,
				"assigned_transporter_id": winner.TransporterID,
			})
		if res.Error != nil {
			return res.Error
		}
		if res.RowsAffected != 1 {
			return fmt.Errorf("load %s changed concurrently: %w", current.ID, models.ErrInvalidState)
		}

		winner.Status = models.BidStatusWon
		current.Status = models.LoadStatusAssigned
		current.AssignedTransporterID = lo.ToPtr(winner.TransporterID)
		for i := range losers {
			losers[i].Status = models.BidStatusLost
		}
		result = AcceptedBid{Bid: winner, Load: current, Lost: losers}
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("[%s] Fail to commit acceptance, err=%w", op, translate(err))
	}

	e.logger.Info("bid accepted",
		slog.String("bidID", result.Bid.ID.String()),
		slog.String("loadID", result.Load.ID.String()),
		slog.String("acceptedBy", p.UserID.String()),
		slog.Int("lost", len(result.Lost)))

	e.dispatcher.Dispatch(acceptanceEvents(&result)...)
	return &result, nil
}

func acceptable(bid *models.Bid, load *models.Load) error {
	if bid.Status != models.BidStatusActive {
		return fmt.Errorf("bid %s is %s: %w", bid.ID, bid.Status, models.ErrInvalidState)
	}
	if load.Status != models.LoadStatusActive {
		return fmt.Errorf("load %s is %s: %w", load.ID, load.Status, models.ErrInvalidState)
	}
	return nil
}

// afterLockTimeout 等鎖逾時後重新讀取貨運，若已被其他人接受則回報狀態錯誤
func (e *Engine) afterLockTimeout(ctx context.Context, op string, loadID uuid.UUID, lockErr error) error {
	load, err := findLoad(ctx, e.db, loadID)
	if err != nil {
		return fmt.Errorf("[%s] Fail to re-check load after lock timeout, err=%w", op, errors.Join(lockErr, err))
	}
	if load.Status != models.LoadStatusActive {
		return fmt.Errorf("[%s] load %s became %s while waiting, err=%w", op, loadID, load.Status, models.ErrInvalidState)
	}
	e.logger.Warn("accept lock wait exceeded", slog.String("loadID", loadID.String()))
	return fmt.Errorf("[%s] %w", op, lockErr)
}

func acceptanceEvents(r *AcceptedBid) []events.Event {
	meta := events.Stamp()
	evs := make([]events.Event, 0, len(r.Lost)+2)
	evs = append(evs, events.BidWon{
		Meta:          meta,
		BidID:         r.Bid.ID,
		LoadID:        r.Load.ID,
		LoadTitle:     r.Load.Title,
		TransporterID: r.Bid.TransporterID,
		Amount:        r.Bid.Amount,
	})
	for _, lost := range r.Lost {
		evs = append(evs, events.BidLost{
			Meta:          meta,
			BidID:         lost.ID,
			LoadID:        r.Load.ID,
			LoadTitle:     r.Load.Title,
			TransporterID: lost.TransporterID,
			Amount:        lost.Amount,
		})
	}
	return append(evs, events.LoadAssigned{
		Meta:          meta,
		LoadID:        r.Load.ID,
		LoadTitle:     r.Load.Title,
		BidID:         r.Bid.ID,
		TransporterID: r.Bid.TransporterID,
		Amount:        r.Bid.Amount,
	})
}
