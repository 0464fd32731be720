package api

import (
	"time"

	"github.com/google/uuid"
	"github.com/samber/lo"

	"loadboard/bidding"
	"loadboard/models"
)

type bidView struct {
	ID            uuid.UUID        `json:"id"`
	LoadID        uuid.UUID        `json:"load_id"`
	TransporterID uuid.UUID        `json:"transporter_id"`
	Amount        float64          `json:"amount"`
	Note          string           `json:"note,omitempty"`
	Status        models.BidStatus `json:"status"`
}

func newBidView(b *models.Bid) bidView {
	return bidView{
		ID:            b.ID,
		LoadID:        b.LoadID,
		TransporterID: b.TransporterID,
		Amount:        b.Amount,
		Note:          b.Note,
		Status:        b.Status,
	}
}

type loadView struct {
	ID                    uuid.UUID         `json:"id"`
	Title                 string            `json:"title"`
	Status                models.LoadStatus `json:"status"`
	AssignedTransporterID *uuid.UUID        `json:"assigned_transporter_id,omitempty"`
}

func newLoadView(l *models.Load) loadView {
	return loadView{
		ID:                    l.ID,
		Title:                 l.Title,
		Status:                l.Status,
		AssignedTransporterID: l.AssignedTransporterID,
	}
}

type acceptedView struct {
	Bid  bidView     `json:"bid"`
	Load loadView    `json:"load"`
	Lost []uuid.UUID `json:"lost_bid_ids"`
}

func newAcceptedView(r *bidding.AcceptedBid) acceptedView {
	return acceptedView{
		Bid:  newBidView(&r.Bid),
		Load: newLoadView(&r.Load),
		Lost: lo.Map(r.Lost, func(b models.Bid, _ int) uuid.UUID { return b.ID }),
	}
}

type messageView struct {
	ID         uuid.UUID          `json:"id"`
	SenderID   uuid.UUID          `json:"sender_id"`
	ReceiverID uuid.UUID          `json:"receiver_id"`
	LoadID     *uuid.UUID         `json:"load_id,omitempty"`
	Body       string             `json:"body"`
	Type       models.MessageType `json:"message_type"`
	Read       bool               `json:"read"`
	CreatedAt  time.Time          `json:"created_at"`
}

func newMessageView(m *models.Message) messageView {
	return messageView{
		ID:         m.ID,
		SenderID:   m.SenderID,
		ReceiverID: m.ReceiverID,
		LoadID:     m.LoadID,
		Body:       m.Body,
		Type:       m.Type,
		Read:       m.Read,
		CreatedAt:  m.CreatedAt,
	}
}

type userView struct {
	ID     uuid.UUID         `json:"id"`
	Role   models.Role       `json:"role"`
	Status models.UserStatus `json:"status"`
}

type roomView struct {
	LoadID uuid.UUID `json:"load_id"`
	Rooms  []string  `json:"rooms"`
}
