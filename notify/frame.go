package notify

import (
	"encoding/json"
	"fmt"
	"time"

	"loadboard/events"
)

// Frame 是送往客戶端的事件訊框
type Frame struct {
	Type  string       `json:"type"`
	Event events.Kind  `json:"event"`
	At    time.Time    `json:"at"`
	Data  events.Event `json:"data"`
}

// Encode 將事件序列化為 JSON 訊框
func Encode(e events.Event) ([]byte, error) {
	const op = "Encode"
	b, err := json.Marshal(Frame{
		Type:  "event",
		Event: e.Kind(),
		At:    e.OccurredAt(),
		Data:  e,
	})
	if err != nil {
		return nil, fmt.Errorf("[%s] Fail to marshal event %s, err=%w", op, e.Kind(), err)
	}
	return b, nil
}

// Envelope 是跨節點轉送的單位，目的地在發送端就已決定
// Disconnect 列出投遞後要關閉連線的使用者，每個節點各自處理自己的連線
type Envelope struct {
	Destinations []events.Destination `msgpack:"destinations"`
	Frame        []byte               `msgpack:"frame"`
	Disconnect   []string             `msgpack:"disconnect,omitempty"`
}
