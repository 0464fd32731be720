package api

import (
	"encoding/json"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/google/uuid"

	"loadboard/models"
)

// newValidator 與 gin 使用相同的 binding 標籤，讓 websocket 與 HTTP 共用請求結構
func newValidator() *validator.Validate {
	v := validator.New(validator.WithRequiredStructEnabled())
	v.SetTagName("binding")
	return v
}

// decodePayload 解析並驗證 websocket 指令的內容
func (s *Server) decodePayload(raw json.RawMessage, dst any) error {
	if len(raw) == 0 {
		raw = json.RawMessage("{}")
	}
	if err := json.Unmarshal(raw, dst); err != nil {
		return invalidArgument(err)
	}
	if err := s.validate.Struct(dst); err != nil {
		return invalidArgument(err)
	}
	return nil
}

type loadRequest struct {
	LoadID string `json:"load_id" binding:"required,uuid"`
}

type bidRequest struct {
	BidID string `json:"bid_id" binding:"required,uuid"`
}

type sendMessageRequest struct {
	ReceiverID  string  `json:"receiver_id" binding:"required,uuid"`
	Body        string  `json:"body" binding:"required,max=4000"`
	LoadID      *string `json:"load_id" binding:"omitempty,uuid"`
	MessageType string  `json:"message_type" binding:"omitempty,oneof=GENERAL BID_NOTIFICATION STATUS_UPDATE SYSTEM"`
}

func (r sendMessageRequest) receiverID() uuid.UUID {
	return uuid.MustParse(r.ReceiverID)
}

func (r sendMessageRequest) loadID() *uuid.UUID {
	if r.LoadID == nil {
		return nil
	}
	id := uuid.MustParse(*r.LoadID)
	return &id
}

type placeBidRequest struct {
	Amount               float64   `json:"amount" binding:"required,gt=0"`
	ProposedPickupDate   time.Time `json:"proposed_pickup_date" binding:"required"`
	ProposedDeliveryDate time.Time `json:"proposed_delivery_date" binding:"required"`
	Note                 string    `json:"note" binding:"max=1000"`
}

type updateBidRequest struct {
	Amount *float64 `json:"amount" binding:"omitempty,gt=0"`
	Note   *string  `json:"note" binding:"omitempty,max=1000"`
}

type loadStatusRequest struct {
	Status models.LoadStatus `json:"status" binding:"required"`
}

type userStatusRequest struct {
	Status models.UserStatus `json:"status" binding:"required"`
}

type documentVerificationRequest struct {
	OwnerID string `json:"owner_id" binding:"required,uuid"`
	Status  string `json:"status" binding:"required,oneof=VERIFIED REJECTED"`
	Reason  string `json:"reason" binding:"max=1000"`
}
