package ws_test

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/require"
	"golang.org/x/net/websocket"

	"loadboard/adapters/auth"
	"loadboard/adapters/hub"
	"loadboard/adapters/ws"
	"loadboard/models"
	"loadboard/policy"
)

func init() {
	// 將日誌輸出重定向到io.Discard
	log.SetOutput(io.Discard)
}

type stubAuthenticator map[string]policy.Principal

func (s stubAuthenticator) Authenticate(ctx context.Context, token string) (policy.Principal, error) {
	p, ok := s[token]
	if !ok {
		return policy.Principal{}, fmt.Errorf("unknown token: %w", auth.ErrUnauthenticated)
	}
	return p, nil
}

type stubCommands struct{}

func (stubCommands) HandleCommand(ctx context.Context, peer *ws.Peer, cmd ws.Command) (any, error) {
	switch cmd.Type {
	case "echo":
		return cmd.Payload, nil
	case "whoami":
		return map[string]string{"user_id": peer.Principal().UserID.String()}, nil
	case "forbidden":
		return nil, fmt.Errorf("not yours: %w", models.ErrForbidden)
	case "boom":
		return nil, errors.New("db down")
	}
	return nil, ws.ErrUnknownCommand
}

type testServer struct {
	url      string
	registry *hub.Registry
	tokens   stubAuthenticator
}

// setupServer 回傳的 cleanup 需以 defer 呼叫，讓 goleak 在所有 goroutine 結束後才檢查
// 測試中的客戶端連線必須在 cleanup 之前關閉
func setupServer(t *testing.T, opts ...ws.HandlerOption) (*testServer, func()) {
	t.Helper()
	registry := hub.NewRegistry()
	tokens := stubAuthenticator{
		"client-token":      {UserID: uuid.New(), Role: models.RoleClient},
		"transporter-token": {UserID: uuid.New(), Role: models.RoleTransporter},
	}
	handler, err := ws.NewHandler(tokens, registry, stubCommands{}, opts...)
	require.NoError(t, err)

	srv := httptest.NewServer(handler)
	ts := &testServer{url: srv.URL, registry: registry, tokens: tokens}
	return ts, func() {
		srv.Close()
		handler.Wait()
		registry.Close()
	}
}

func (s *testServer) dial(t *testing.T, token string) (*websocket.Conn, error) {
	t.Helper()
	wsURL := "ws" + strings.TrimPrefix(s.url, "http") + "/ws"
	cfg, err := websocket.NewConfig(wsURL, s.url)
	if err != nil {
		return nil, err
	}
	cfg.Header = make(http.Header)
	if token != "" {
		cfg.Header.Set("Authorization", "Bearer "+token)
	}
	return websocket.DialConfig(cfg)
}

func writeFrame(t *testing.T, conn *websocket.Conn, frame any) {
	t.Helper()
	data, err := json.Marshal(frame)
	require.NoError(t, err)
	require.NoError(t, websocket.Message.Send(conn, string(data)))
}

func readFrame(t *testing.T, conn *websocket.Conn) ws.Frame {
	t.Helper()
	require.NoError(t, conn.SetReadDeadline(time.Now().Add(2*time.Second)))
	var raw []byte
	require.NoError(t, websocket.Message.Receive(conn, &raw))
	var frame ws.Frame
	require.NoError(t, json.Unmarshal(raw, &frame))
	return frame
}

func readError(t *testing.T, conn *websocket.Conn) ws.ErrorPayload {
	t.Helper()
	frame := readFrame(t, conn)
	require.Equal(t, ws.TypeError, frame.Type)
	var payload ws.ErrorPayload
	require.NoError(t, json.Unmarshal(frame.Payload, &payload))
	return payload
}
