package bidding_test

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"loadboard/bidding"
	"loadboard/events"
	"loadboard/models"
)

func TestNewEngine(t *testing.T) {
	_, err := bidding.NewEngine(nil, stubLocker{}, &recorder{})
	assert.Error(t, err)
}

func TestAcceptBid_AdminAcceptsLowerBid(t *testing.T) {
	e := setup(t)

	client := e.fx.User(models.RoleClient, "client")
	admin := e.fx.User(models.RoleAdmin, "admin")
	t1 := e.fx.User(models.RoleTransporter, "t1")
	t2 := e.fx.User(models.RoleTransporter, "t2")
	load := e.fx.Load(client, "Steel coils")
	bid1 := e.fx.Bid(load, t1, 500)
	bid2 := e.fx.Bid(load, t2, 600)

	result, err := e.engine.AcceptBid(context.Background(), principal(admin), bid1.ID)
	require.NoError(t, err)

	assert.Equal(t, models.BidStatusWon, result.Bid.Status)
	assert.Equal(t, models.LoadStatusAssigned, result.Load.Status)
	require.Len(t, result.Lost, 1)
	assert.Equal(t, bid2.ID, result.Lost[0].ID)

	assert.Equal(t, models.BidStatusWon, e.reloadBid(t, bid1.ID).Status)
	assert.Equal(t, models.BidStatusLost, e.reloadBid(t, bid2.ID).Status)
	stored := e.reloadLoad(t, load.ID)
	assert.Equal(t, models.LoadStatusAssigned, stored.Status)
	require.NotNil(t, stored.AssignedTransporterID)
	assert.Equal(t, t1.ID, *stored.AssignedTransporterID)

	evs := e.recorder.all()
	require.Len(t, evs, 3)
	won, ok := evs[0].(events.BidWon)
	require.True(t, ok)
	assert.Equal(t, t1.ID, won.TransporterID)
	assert.Equal(t, float64(500), won.Amount)
	assert.Equal(t, "Steel coils", won.LoadTitle)

	lost, ok := evs[1].(events.BidLost)
	require.True(t, ok)
	assert.Equal(t, t2.ID, lost.TransporterID)

	assigned, ok := evs[2].(events.LoadAssigned)
	require.True(t, ok)
	assert.Equal(t, load.ID, assigned.LoadID)
	assert.Equal(t, bid1.ID, assigned.BidID)
}

func TestAcceptBid_OwnerAccepts(t *testing.T) {
	e := setup(t)

	client := e.fx.User(models.RoleClient, "client")
	t1 := e.fx.User(models.RoleTransporter, "t1")
	load := e.fx.Load(client, "Grain")
	bid := e.fx.Bid(load, t1, 300)

	result, err := e.engine.AcceptBid(context.Background(), principal(client), bid.ID)
	require.NoError(t, err)
	assert.Empty(t, result.Lost)
	assert.Equal(t, []events.Kind{events.KindBidWon, events.KindLoadAssigned}, e.recorder.kinds())
}

func TestAcceptBid_CancelledLoad(t *testing.T) {
	e := setup(t)

	client := e.fx.User(models.RoleClient, "client")
	t1 := e.fx.User(models.RoleTransporter, "t1")
	load := e.fx.Load(client, "Timber")
	bid := e.fx.Bid(load, t1, 400)
	e.fx.SetLoadStatus(load, models.LoadStatusCancelled)

	result, err := e.engine.AcceptBid(context.Background(), principal(client), bid.ID)
	assert.ErrorIs(t, err, models.ErrInvalidState)
	assert.Nil(t, result)

	assert.Equal(t, models.BidStatusActive, e.reloadBid(t, bid.ID).Status)
	assert.Equal(t, models.LoadStatusCancelled, e.reloadLoad(t, load.ID).Status)
	assert.Empty(t, e.recorder.all())
}

func TestAcceptBid_PreconditionOrder(t *testing.T) {
	e := setup(t)

	client := e.fx.User(models.RoleClient, "client")
	otherClient := e.fx.User(models.RoleClient, "other")
	t1 := e.fx.User(models.RoleTransporter, "t1")
	load := e.fx.Load(client, "Furniture")
	bid := e.fx.Bid(load, t1, 250)
	e.fx.SetLoadStatus(load, models.LoadStatusCancelled)

	tests := []struct {
		name    string
		actor   *models.User
		bidID   uuid.UUID
		wantErr error
	}{
		{name: "missing bid is not found", actor: client, bidID: uuid.New(), wantErr: models.ErrNotFound},
		// 權限檢查先於狀態檢查
		{name: "transporter is forbidden", actor: t1, bidID: bid.ID, wantErr: models.ErrForbidden},
		{name: "non-owner client is forbidden", actor: otherClient, bidID: bid.ID, wantErr: models.ErrForbidden},
		{name: "owner hits invalid state", actor: client, bidID: bid.ID, wantErr: models.ErrInvalidState},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := e.engine.AcceptBid(context.Background(), principal(tt.actor), tt.bidID)
			assert.ErrorIs(t, err, tt.wantErr)
		})
	}
	assert.Empty(t, e.recorder.all())
}

func TestAcceptBid_SecondAcceptIsInvalidState(t *testing.T) {
	e := setup(t)

	client := e.fx.User(models.RoleClient, "client")
	t1 := e.fx.User(models.RoleTransporter, "t1")
	t2 := e.fx.User(models.RoleTransporter, "t2")
	load := e.fx.Load(client, "Cement")
	bid1 := e.fx.Bid(load, t1, 100)
	bid2 := e.fx.Bid(load, t2, 120)

	_, err := e.engine.AcceptBid(context.Background(), principal(client), bid1.ID)
	require.NoError(t, err)

	_, err = e.engine.AcceptBid(context.Background(), principal(client), bid2.ID)
	assert.ErrorIs(t, err, models.ErrInvalidState)
	_, err = e.engine.AcceptBid(context.Background(), principal(client), bid1.ID)
	assert.ErrorIs(t, err, models.ErrInvalidState)
}

func TestAcceptBid_ConcurrentAcceptsHaveOneWinner(t *testing.T) {
	const n = 10
	e := setup(t)

	admin := e.fx.User(models.RoleAdmin, "admin")
	client := e.fx.User(models.RoleClient, "client")
	load := e.fx.Load(client, "Containers")
	bids := make([]*models.Bid, 0, n)
	for i := 0; i < n; i++ {
		transporter := e.fx.User(models.RoleTransporter, fmt.Sprintf("t%d", i))
		bids = append(bids, e.fx.Bid(load, transporter, float64(100+i)))
	}

	var (
		wg        sync.WaitGroup
		mu        sync.Mutex
		successes []uuid.UUID
		failures  []error
	)
	start := make(chan struct{})
	for i, bid := range bids {
		actor := principal(client)
		if i%2 == 0 {
			actor = principal(admin)
		}
		wg.Add(1)
		go func() {
			defer wg.Done()
			<-start
			_, err := e.engine.AcceptBid(context.Background(), actor, bid.ID)
			mu.Lock()
			defer mu.Unlock()
			if err != nil {
				failures = append(failures, err)
				return
			}
			successes = append(successes, bid.ID)
		}()
	}
	close(start)
	wg.Wait()

	require.Len(t, successes, 1)
	require.Len(t, failures, n-1)
	for _, err := range failures {
		assert.ErrorIs(t, err, models.ErrInvalidState)
	}

	var won []models.Bid
	require.NoError(t, e.db.Where("load_id = ? AND status = ?", load.ID, models.BidStatusWon).Find(&won).Error)
	require.Len(t, won, 1)
	assert.Equal(t, successes[0], won[0].ID)

	var lost int64
	require.NoError(t, e.db.Model(&models.Bid{}).Where("load_id = ? AND status = ?", load.ID, models.BidStatusLost).Count(&lost).Error)
	assert.Equal(t, int64(n-1), lost)

	stored := e.reloadLoad(t, load.ID)
	assert.Equal(t, models.LoadStatusAssigned, stored.Status)
	assert.Equal(t, won[0].TransporterID, *stored.AssignedTransporterID)

	wonEvents := 0
	for _, kind := range e.recorder.kinds() {
		if kind == events.KindBidWon {
			wonEvents++
		}
	}
	assert.Equal(t, 1, wonEvents)
}

func TestAcceptBid_ConcurrentAcceptsOfSameBid(t *testing.T) {
	const n = 6
	e := setup(t)

	client := e.fx.User(models.RoleClient, "client")
	t1 := e.fx.User(models.RoleTransporter, "t1")
	load := e.fx.Load(client, "Glass")
	bid := e.fx.Bid(load, t1, 800)

	var wg sync.WaitGroup
	errs := make([]error, n)
	for i := 0; i < n; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, errs[i] = e.engine.AcceptBid(context.Background(), principal(client), bid.ID)
		}()
	}
	wg.Wait()

	ok := 0
	for _, err := range errs {
		if err == nil {
			ok++
			continue
		}
		assert.ErrorIs(t, err, models.ErrInvalidState)
	}
	assert.Equal(t, 1, ok)
}

func TestAcceptBid_LockTimeout(t *testing.T) {
	t.Run("still active load reports timeout", func(t *testing.T) {
		e := setupWithLocker(t, stubLocker{onLock: func(context.Context, uuid.UUID) error {
			return fmt.Errorf("lock busy: %w", models.ErrTimeout)
		}})

		client := e.fx.User(models.RoleClient, "client")
		t1 := e.fx.User(models.RoleTransporter, "t1")
		load := e.fx.Load(client, "Paper")
		bid := e.fx.Bid(load, t1, 90)

		_, err := e.engine.AcceptBid(context.Background(), principal(client), bid.ID)
		assert.ErrorIs(t, err, models.ErrTimeout)
		assert.Equal(t, models.LoadStatusActive, e.reloadLoad(t, load.ID).Status)
		assert.Empty(t, e.recorder.all())
	})

	t.Run("load taken while waiting reports invalid state", func(t *testing.T) {
		var e *env
		e = setupWithLocker(t, stubLocker{onLock: func(_ context.Context, loadID uuid.UUID) error {
			// 模擬等待期間另一個節點已完成接受
			require.NoError(t, e.db.Model(&models.Load{}).Where("id = ?", loadID).Update("status", models.LoadStatusAssigned).Error)
			return fmt.Errorf("lock busy: %w", models.ErrTimeout)
		}})

		client := e.fx.User(models.RoleClient, "client")
		t1 := e.fx.User(models.RoleTransporter, "t1")
		load := e.fx.Load(client, "Paper")
		bid := e.fx.Bid(load, t1, 90)

		_, err := e.engine.AcceptBid(context.Background(), principal(client), bid.ID)
		assert.ErrorIs(t, err, models.ErrInvalidState)
		assert.NotErrorIs(t, err, models.ErrTimeout)
	})

	t.Run("infrastructure failure is not a domain error", func(t *testing.T) {
		boom := errors.New("redis unreachable")
		e := setupWithLocker(t, stubLocker{onLock: func(context.Context, uuid.UUID) error { return boom }})

		client := e.fx.User(models.RoleClient, "client")
		t1 := e.fx.User(models.RoleTransporter, "t1")
		load := e.fx.Load(client, "Paper")
		bid := e.fx.Bid(load, t1, 90)

		_, err := e.engine.AcceptBid(context.Background(), principal(client), bid.ID)
		assert.ErrorIs(t, err, boom)
		assert.NotErrorIs(t, err, models.ErrInvalidState)
	})
}
