package redis

import (
	"io"
	"log"
	"testing"

	"github.com/alicebob/miniredis/v2"
	"github.com/go-redis/redismock/v9"
	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"

	"loadboard/events"
	"loadboard/notify"
)

func init() {
	// 將日誌輸出重定向到io.Discard
	log.SetOutput(io.Discard)
}

func setupTest(t *testing.T) (*redis.Client, redismock.ClientMock, func()) {
	db, mock := redismock.NewClientMock()
	return db, mock, func() {
		assert.NoError(t, mock.ExpectationsWereMet())
		db.Close()
	}
}

func setupMiniredis(t *testing.T) (*redis.Client, *miniredis.Miniredis, func()) {
	mr, err := miniredis.Run()
	if err != nil {
		t.Fatalf("fail to start miniredis: %v", err)
	}
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	return client, mr, func() {
		client.Close()
		mr.Close()
	}
}

func testEnvelope() notify.Envelope {
	return notify.Envelope{
		Destinations: []events.Destination{events.User(uuid.New()), events.Room(uuid.New())},
		Frame:        []byte(`{"type":"event","event":"bid_received"}`),
	}
}
