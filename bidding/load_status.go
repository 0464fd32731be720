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

// ChangeLoadStatus 變更貨運狀態，只允許 ACTIVE→CANCELLED 與 ASSIGNED→COMPLETED
// 非相關人員回報 Forbidden，不合法的轉換回報 InvalidState
func (e *Engine) ChangeLoadStatus(ctx context.Context, p policy.Principal, loadID uuid.UUID, to models.LoadStatus) (*models.Load, error) {
	const op = "ChangeLoadStatus"

	if !to.Valid() {
		return nil, fmt.Errorf("[%s] unknown status %q, err=%w", op, to, models.ErrInvalidArgument)
	}
	load, err := findLoad(ctx, e.db, loadID)
	if err != nil {
		return nil, fmt.Errorf("[%s] Fail to find load, err=%w", op, err)
	}
	party := p.IsAdmin() || load.ClientID == p.UserID || load.AssignedTo(p.UserID)
	if !party {
		return nil, fmt.Errorf("[%s] principal %s is not a party of load %s, err=%w", op, p.UserID, loadID, models.ErrForbidden)
	}
	if !policy.LoadTransitionAllowed(load.Status, to) {
		return nil, fmt.Errorf("[%s] load %s cannot move from %s to %s, err=%w", op, loadID, load.Status, to, models.ErrInvalidState)
	}
	if !policy.CanChangeLoadStatus(p, load, to) {
		return nil, fmt.Errorf("[%s] principal %s cannot move load %s to %s, err=%w", op, p.UserID, loadID, to, models.ErrForbidden)
	}

	from := load.Status
	res := e.db.WithContext(ctx).Model(&models.Load{}).
		Where("id = ? AND status = ?", load.ID, from).
		Update("status", to)
	if res.Error != nil {
		return nil, fmt.Errorf("[%s] Fail to update load, err=%w", op, res.Error)
	}
	if res.RowsAffected != 1 {
		return nil, fmt.Errorf("[%s] load %s changed concurrently, err=%w", op, loadID, models.ErrInvalidState)
	}
	load.Status = to

	e.logger.Info("load status changed",
		slog.String("loadID", load.ID.String()),
		slog.String("from", string(from)),
		slog.String("to", string(to)))

	e.dispatcher.Dispatch(events.LoadStatusChanged{
		Meta:                  events.Stamp(),
		LoadID:                load.ID,
		LoadTitle:             load.Title,
		OwnerID:               load.ClientID,
		AssignedTransporterID: load.AssignedTransporterID,
		From:                  from,
		To:                    to,
		ChangedBy:             p.UserID,
	})
	return load, nil
}
