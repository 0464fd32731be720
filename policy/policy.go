// Package policy 集中所有存取控制判斷
// 每個函式都是純函式，不做任何 I/O，呼叫端需先載入相關實體
package policy

import (
	"github.com/google/uuid"

	"loadboard/models"
)

// Principal 代表經過驗證的操作者
// 角色一律來自資料庫，不信任客戶端聲明
type Principal struct {
	UserID uuid.UUID
	Role   models.Role
}

func (p Principal) IsAdmin() bool {
	return p.Role == models.RoleAdmin
}

// CanViewLoad 管理員可看全部，貨主只能看自己的貨運，
// 運輸業者可看開放中的貨運或指派給自己的貨運
func CanViewLoad(p Principal, load *models.Load) bool {
	if load == nil {
		return false
	}
	switch p.Role {
	case models.RoleAdmin:
		return true
	case models.RoleClient:
		return load.ClientID == p.UserID
	case models.RoleTransporter:
		return load.Status == models.LoadStatusActive || load.AssignedTo(p.UserID)
	}
	return false
}

// CanJoinLoadRoom 加入貨運房間與查看貨運使用相同規則
func CanJoinLoadRoom(p Principal, load *models.Load) bool {
	return CanViewLoad(p, load)
}

// CanAcceptBid 只有管理員或該貨運的貨主可以接受報價
func CanAcceptBid(p Principal, load *models.Load) bool {
	if load == nil {
		return false
	}
	switch p.Role {
	case models.RoleAdmin:
		return true
	case models.RoleClient:
		return load.ClientID == p.UserID
	}
	return false
}

// CanRejectBid 與接受報價的權限相同
func CanRejectBid(p Principal, load *models.Load) bool {
	return CanAcceptBid(p, load)
}

// CanWithdrawBid 只有管理員或報價者本人可以撤回
func CanWithdrawBid(p Principal, bid *models.Bid) bool {
	if bid == nil {
		return false
	}
	switch p.Role {
	case models.RoleAdmin:
		return true
	case models.RoleTransporter:
		return bid.TransporterID == p.UserID
	}
	return false
}

// CanPlaceBid 只有運輸業者能對開放中的貨運報價
func CanPlaceBid(p Principal, load *models.Load) bool {
	return load != nil && p.Role == models.RoleTransporter && load.Status == models.LoadStatusActive
}

// LoadTransitionAllowed 回傳貨運狀態是否允許從 from 轉換到 to
// ACTIVE 到 ASSIGNED 只能經由接受報價完成，不在此列
func LoadTransitionAllowed(from, to models.LoadStatus) bool {
	switch {
	case from == models.LoadStatusActive && to == models.LoadStatusCancelled:
		return true
	case from == models.LoadStatusAssigned && to == models.LoadStatusCompleted:
		return true
	}
	return false
}

// CanChangeLoadStatus 管理員與貨主可執行任何合法轉換，
// 指派的運輸業者只能將貨運標記為完成
func CanChangeLoadStatus(p Principal, load *models.Load, to models.LoadStatus) bool {
	if load == nil || !LoadTransitionAllowed(load.Status, to) {
		return false
	}
	switch p.Role {
	case models.RoleAdmin:
		return true
	case models.RoleClient:
		return load.ClientID == p.UserID
	case models.RoleTransporter:
		return to == models.LoadStatusCompleted && load.AssignedTo(p.UserID)
	}
	return false
}

func participant(p Principal, msg *models.Message) bool {
	return p.IsAdmin() || msg.SenderID == p.UserID || msg.ReceiverID == p.UserID
}

// CanSendMessage 操作者必須是寄件者（或管理員），且收件者未被停權
func CanSendMessage(p Principal, msg *models.Message, receiver *models.User) bool {
	if msg == nil || receiver == nil || receiver.ID != msg.ReceiverID {
		return false
	}
	if !p.IsAdmin() && msg.SenderID != p.UserID {
		return false
	}
	return !receiver.Status.Suspended()
}

// CanReceiveMessage 操作者必須是訊息的參與者（或管理員），且收件者未被停權
func CanReceiveMessage(p Principal, msg *models.Message, receiver *models.User) bool {
	if msg == nil || receiver == nil || receiver.ID != msg.ReceiverID {
		return false
	}
	return participant(p, msg) && !receiver.Status.Suspended()
}

// CanMarkMessageRead 已讀狀態只能由收件者本人變更
func CanMarkMessageRead(p Principal, msg *models.Message) bool {
	return msg != nil && msg.ReceiverID == p.UserID
}

// CanPublishAdminEvent 文件審核與帳號狀態變更只能由管理員發出
func CanPublishAdminEvent(p Principal) bool {
	return p.IsAdmin()
}
