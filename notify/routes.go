package notify

import (
	"loadboard/events"
	"loadboard/models"
)

type routeFunc func(events.Event) []events.Destination

// routes 是事件種類到目的地的靜態路由表
var routes = map[events.Kind]routeFunc{
	events.KindBidReceived: func(e events.Event) []events.Destination {
		ev := e.(events.BidReceived)
		return []events.Destination{events.User(ev.LoadOwnerID), events.Room(ev.LoadID)}
	},
	events.KindBidWon: func(e events.Event) []events.Destination {
		return []events.Destination{events.User(e.(events.BidWon).TransporterID)}
	},
	events.KindBidLost: func(e events.Event) []events.Destination {
		return []events.Destination{events.User(e.(events.BidLost).TransporterID)}
	},
	events.KindBidWithdrawn: func(e events.Event) []events.Destination {
		return []events.Destination{events.User(e.(events.BidWithdrawn).TransporterID)}
	},
	events.KindBidRejected: func(e events.Event) []events.Destination {
		return []events.Destination{events.User(e.(events.BidRejected).TransporterID)}
	},
	events.KindLoadAssigned: func(e events.Event) []events.Destination {
		return []events.Destination{events.Room(e.(events.LoadAssigned).LoadID)}
	},
	events.KindLoadStatusChanged: func(e events.Event) []events.Destination {
		ev := e.(events.LoadStatusChanged)
		dests := []events.Destination{events.User(ev.OwnerID)}
		if ev.AssignedTransporterID != nil {
			dests = append(dests, events.User(*ev.AssignedTransporterID))
		}
		return append(dests, events.Room(ev.LoadID))
	},
	events.KindMessageReceived: func(e events.Event) []events.Destination {
		return []events.Destination{events.User(e.(events.MessageReceived).ReceiverID)}
	},
	events.KindDocumentVerified: func(e events.Event) []events.Destination {
		return []events.Destination{events.User(e.(events.DocumentVerified).OwnerID)}
	},
	events.KindAccountStatusChanged: func(e events.Event) []events.Destination {
		return []events.Destination{events.User(e.(events.AccountStatusChanged).UserID)}
	},
	events.KindUserRegistered: func(events.Event) []events.Destination {
		return []events.Destination{events.Role(models.RoleAdmin)}
	},
}

// Destinations 依路由表回傳事件的目的地，未知事件回傳 nil
func Destinations(e events.Event) []events.Destination {
	route, ok := routes[e.Kind()]
	if !ok {
		return nil
	}
	return route(e)
}

// disconnects 回傳事件送出後需要踢除連線的使用者
// 帳號離開 ACTIVE 時，通知必須先於斷線送達
func disconnects(e events.Event) []string {
	ev, ok := e.(events.AccountStatusChanged)
	if !ok || ev.Status == models.UserStatusActive {
		return nil
	}
	return []string{ev.UserID.String()}
}
