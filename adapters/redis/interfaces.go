//go:generate mockgen -package=redis -destination=mock.go -source=interfaces.go

package redis

import (
	"context"

	"github.com/google/uuid"

	"loadboard/notify"
)

// IRelayProducer 定義了跨節點轉送發送端的操作介面
type IRelayProducer interface {
	Start()
	Publish(env notify.Envelope) error
	Close()
}

// IRelayConsumer 定義了跨節點轉送接收端的操作介面
type IRelayConsumer interface {
	Start()
	Subscribe() <-chan notify.Envelope
	Close()
}

// ILoadLocker 定義了貨運鎖的操作介面
type ILoadLocker interface {
	// Lock 在等待時間內取得鎖，回傳的 context 會在失去鎖時取消
	Lock(ctx context.Context, loadID uuid.UUID) (context.Context, func(), error)
}
