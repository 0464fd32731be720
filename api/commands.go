package api

import (
	"context"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"loadboard/adapters/ws"
	"loadboard/events"
	"loadboard/messaging"
	"loadboard/models"
	"loadboard/policy"
)

// websocket 指令類型
const (
	CommandJoinLoad    = "join-load"
	CommandLeaveLoad   = "leave-load"
	CommandAcceptBid   = "accept-bid"
	CommandWithdrawBid = "withdraw-bid"
	CommandSendMessage = "send-message"
)

// HandleCommand 實作 ws.CommandHandler，同一條連線的指令依序執行
func (s *Server) HandleCommand(ctx context.Context, peer *ws.Peer, cmd ws.Command) (any, error) {
	p := peer.Principal()
	switch cmd.Type {
	case CommandJoinLoad:
		var req loadRequest
		if err := s.decodePayload(cmd.Payload, &req); err != nil {
			return nil, err
		}
		return s.runCommand(ctx, func(ctx context.Context) (any, error) {
			return s.joinLoad(ctx, peer, uuid.MustParse(req.LoadID))
		})
	case CommandLeaveLoad:
		var req loadRequest
		if err := s.decodePayload(cmd.Payload, &req); err != nil {
			return nil, err
		}
		loadID := uuid.MustParse(req.LoadID)
		s.registry.LeaveRoom(peer, events.Room(loadID).Key)
		return roomView{LoadID: loadID, Rooms: s.registry.Rooms(peer)}, nil
	case CommandAcceptBid:
		var req bidRequest
		if err := s.decodePayload(cmd.Payload, &req); err != nil {
			return nil, err
		}
		return s.runCommand(ctx, func(ctx context.Context) (any, error) {
			result, err := s.engine.AcceptBid(ctx, p, uuid.MustParse(req.BidID))
			if err != nil {
				return nil, err
			}
			return newAcceptedView(result), nil
		})
	case CommandWithdrawBid:
		var req bidRequest
		if err := s.decodePayload(cmd.Payload, &req); err != nil {
			return nil, err
		}
		return s.runCommand(ctx, func(ctx context.Context) (any, error) {
			bid, err := s.engine.WithdrawBid(ctx, p, uuid.MustParse(req.BidID))
			if err != nil {
				return nil, err
			}
			return newBidView(bid), nil
		})
	case CommandSendMessage:
		var req sendMessageRequest
		if err := s.decodePayload(cmd.Payload, &req); err != nil {
			return nil, err
		}
		return s.runCommand(ctx, func(ctx context.Context) (any, error) {
			return s.sendMessage(ctx, p, req)
		})
	}
	return nil, fmt.Errorf("%q: %w", cmd.Type, ws.ErrUnknownCommand)
}

// joinLoad 檢查權限後將連線加入貨運房間，重複加入不會出錯
func (s *Server) joinLoad(ctx context.Context, peer *ws.Peer, loadID uuid.UUID) (any, error) {
	const op = "JoinLoad"

	var load models.Load
	if err := s.db.WithContext(ctx).First(&load, "id = ?", loadID).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, fmt.Errorf("[%s] load %s, err=%w", op, loadID, models.ErrNotFound)
		}
		return nil, fmt.Errorf("[%s] Fail to find load, err=%w", op, err)
	}
	if !policy.CanJoinLoadRoom(peer.Principal(), &load) {
		return nil, fmt.Errorf("[%s] principal %s cannot join load %s, err=%w", op, peer.Principal().UserID, loadID, models.ErrForbidden)
	}
	s.registry.JoinRoom(peer, events.Room(loadID).Key)
	return roomView{LoadID: loadID, Rooms: s.registry.Rooms(peer)}, nil
}

func (s *Server) sendMessage(ctx context.Context, p policy.Principal, req sendMessageRequest) (any, error) {
	msg, err := s.messages.Send(ctx, p, messaging.SendInput{
		ReceiverID: req.receiverID(),
		Body:       req.Body,
		LoadID:     req.loadID(),
		Type:       models.MessageType(req.MessageType),
	})
	if err != nil {
		return nil, err
	}
	return newMessageView(msg), nil
}
