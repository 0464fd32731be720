package bidding_test

import (
	"context"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"loadboard/events"
	"loadboard/models"
)

func TestChangeLoadStatus(t *testing.T) {
	e := setup(t)

	client := e.fx.User(models.RoleClient, "client")
	stranger := e.fx.User(models.RoleTransporter, "stranger")
	t1 := e.fx.User(models.RoleTransporter, "t1")

	t.Run("owner cancels an active load", func(t *testing.T) {
		load := e.fx.Load(client, "Cancel me")
		updated, err := e.engine.ChangeLoadStatus(context.Background(), principal(client), load.ID, models.LoadStatusCancelled)
		require.NoError(t, err)
		assert.Equal(t, models.LoadStatusCancelled, updated.Status)

		evs := e.recorder.all()
		require.NotEmpty(t, evs)
		changed, ok := evs[len(evs)-1].(events.LoadStatusChanged)
		require.True(t, ok)
		assert.Equal(t, models.LoadStatusActive, changed.From)
		assert.Equal(t, models.LoadStatusCancelled, changed.To)
		assert.Nil(t, changed.AssignedTransporterID)
	})

	t.Run("assignee completes an assigned load", func(t *testing.T) {
		load := e.fx.Load(client, "Deliver me")
		bid := e.fx.Bid(load, t1, 100)
		_, err := e.engine.AcceptBid(context.Background(), principal(client), bid.ID)
		require.NoError(t, err)

		updated, err := e.engine.ChangeLoadStatus(context.Background(), principal(t1), load.ID, models.LoadStatusCompleted)
		require.NoError(t, err)
		assert.Equal(t, models.LoadStatusCompleted, updated.Status)
		require.NotNil(t, updated.AssignedTransporterID)
		assert.Equal(t, t1.ID, *updated.AssignedTransporterID)

		evs := e.recorder.all()
		changed, ok := evs[len(evs)-1].(events.LoadStatusChanged)
		require.True(t, ok)
		require.NotNil(t, changed.AssignedTransporterID)
		assert.Equal(t, t1.ID, *changed.AssignedTransporterID)
	})

	t.Run("rules", func(t *testing.T) {
		active := e.fx.Load(client, "Active")
		assigned := e.fx.Load(client, "Assigned")
		bid := e.fx.Bid(assigned, t1, 100)
		_, err := e.engine.AcceptBid(context.Background(), principal(client), bid.ID)
		require.NoError(t, err)

		tests := []struct {
			name    string
			actor   *models.User
			loadID  uuid.UUID
			to      models.LoadStatus
			wantErr error
		}{
			{name: "missing load", actor: client, loadID: uuid.New(), to: models.LoadStatusCancelled, wantErr: models.ErrNotFound},
			{name: "unknown status", actor: client, loadID: active.ID, to: "LOST", wantErr: models.ErrInvalidArgument},
			{name: "stranger", actor: stranger, loadID: active.ID, to: models.LoadStatusCancelled, wantErr: models.ErrForbidden},
			{name: "active cannot complete", actor: client, loadID: active.ID, to: models.LoadStatusCompleted, wantErr: models.ErrInvalidState},
			{name: "assigned cannot cancel", actor: client, loadID: assigned.ID, to: models.LoadStatusCancelled, wantErr: models.ErrInvalidState},
			{name: "active cannot be assigned directly", actor: client, loadID: active.ID, to: models.LoadStatusAssigned, wantErr: models.ErrInvalidState},
		}
		for _, tt := range tests {
			t.Run(tt.name, func(t *testing.T) {
				_, err := e.engine.ChangeLoadStatus(context.Background(), principal(tt.actor), tt.loadID, tt.to)
				assert.ErrorIs(t, err, tt.wantErr)
			})
		}
	})
}
