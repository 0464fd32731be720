package events

import (
	"fmt"

	"github.com/google/uuid"

	"loadboard/models"
)

type Scope string

const (
	ScopeUser Scope = "user"
	ScopeRole Scope = "role"
	ScopeRoom Scope = "room"
)

// Destination 代表一個投遞目的地：使用者頻道、角色頻道或貨運房間
type Destination struct {
	Scope Scope  `msgpack:"scope"`
	Key   string `msgpack:"key"`
}

func (d Destination) String() string {
	return fmt.Sprintf("%s:%s", d.Scope, d.Key)
}

func User(id uuid.UUID) Destination {
	return Destination{Scope: ScopeUser, Key: id.String()}
}

func Role(role models.Role) Destination {
	return Destination{Scope: ScopeRole, Key: string(role)}
}

// Room 貨運房間以貨運 ID 作為房間 ID
func Room(loadID uuid.UUID) Destination {
	return Destination{Scope: ScopeRoom, Key: loadID.String()}
}
