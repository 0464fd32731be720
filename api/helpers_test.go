package api_test

import (
	"bytes"
	"crypto/ed25519"
	"crypto/rand"
	"encoding/json"
	"io"
	"log"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/gin-gonic/gin"
	"github.com/golang-jwt/jwt/v5"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/require"
	"golang.org/x/net/websocket"
	"gorm.io/gorm"

	"loadboard/adapters/auth"
	"loadboard/adapters/database/databasetest"
	"loadboard/adapters/ws"
	"loadboard/api"
	"loadboard/events"
	"loadboard/models"
)

const (
	testIssuer        = "loadboard"
	testAudience      = "loadboard-api"
	testInternalToken = "internal-secret"
)

func init() {
	// 將日誌輸出重定向到io.Discard
	log.SetOutput(io.Discard)
	gin.SetMode(gin.TestMode)
}

type testEnv struct {
	server  *api.Server
	engine  *gin.Engine
	httpSrv *httptest.Server
	db      *gorm.DB
	fx      *databasetest.Fixtures
	key     ed25519.PrivateKey
}

// setupTest 以 SQLite 與 miniredis 組裝完整伺服器，回傳的 cleanup 需以 defer 呼叫
func setupTest(t *testing.T, mutate ...func(*api.ServerConfig)) (*testEnv, func()) {
	t.Helper()

	db := databasetest.New(t)
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})

	pub, priv, err := ed25519.GenerateKey(rand.Reader)
	require.NoError(t, err)
	authenticator, err := auth.NewJWTAuthenticator(db, pub,
		auth.WithJWTIssuer(testIssuer),
		auth.WithJWTAudience(testAudience))
	require.NoError(t, err)

	config := api.ServerConfig{
		Redis:   api.RedisConfig{KeyPrefix: "loadboard-test"},
		Auth:    api.AuthConfig{InternalToken: testInternalToken},
		Runtime: api.DefaultRuntimeConfig(),
	}
	for _, fn := range mutate {
		fn(&config)
	}

	server, err := api.NewServerWithDependencies(config, api.Dependencies{
		DB:            db,
		Redis:         client,
		Authenticator: authenticator,
	})
	require.NoError(t, err)
	server.Start()

	engine := gin.New()
	server.RegisterHandlers(engine)
	httpSrv := httptest.NewServer(engine)

	env := &testEnv{
		server:  server,
		engine:  engine,
		httpSrv: httpSrv,
		db:      db,
		fx:      databasetest.NewFixtures(t, db),
		key:     priv,
	}
	return env, func() {
		httpSrv.Close()
		server.Close()
		_ = client.Close()
	}
}

func withRelay(config *api.ServerConfig) {
	config.Redis.StreamKeys.Events = "loadboard:events"
}

func (e *testEnv) token(t *testing.T, user *models.User) string {
	t.Helper()
	now := time.Now()
	token, err := jwt.NewWithClaims(jwt.SigningMethodEdDSA, auth.Claims{
		Username: user.Username,
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   user.ID.String(),
			Issuer:    testIssuer,
			Audience:  jwt.ClaimStrings{testAudience},
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(time.Hour)),
		},
	}).SignedString(e.key)
	require.NoError(t, err)
	return token
}

// request 直接呼叫 gin 引擎，token 為空時不帶 Authorization 標頭
func (e *testEnv) request(t *testing.T, method, path, token string, body any) *httptest.ResponseRecorder {
	t.Helper()
	var reader io.Reader
	if body != nil {
		data, err := json.Marshal(body)
		require.NoError(t, err)
		reader = bytes.NewReader(data)
	}
	req := httptest.NewRequest(method, path, reader)
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	rec := httptest.NewRecorder()
	e.engine.ServeHTTP(rec, req)
	return rec
}

func decode[T any](t *testing.T, rec *httptest.ResponseRecorder) T {
	t.Helper()
	var v T
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &v), rec.Body.String())
	return v
}

type errorBody struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}

func (e *testEnv) dial(t *testing.T, token string) *websocket.Conn {
	t.Helper()
	wsURL := "ws" + strings.TrimPrefix(e.httpSrv.URL, "http") + "/ws"
	cfg, err := websocket.NewConfig(wsURL, e.httpSrv.URL)
	require.NoError(t, err)
	cfg.Header = http.Header{"Authorization": []string{"Bearer " + token}}
	conn, err := websocket.DialConfig(cfg)
	require.NoError(t, err)
	return conn
}

// waitConnections 等待註冊表內的連線數量達到 n
func (e *testEnv) waitConnections(t *testing.T, n int) {
	t.Helper()
	require.Eventually(t, func() bool {
		req := httptest.NewRequest(http.MethodGet, "/healthz", nil)
		rec := httptest.NewRecorder()
		e.engine.ServeHTTP(rec, req)
		var body struct {
			Connections int `json:"connections"`
		}
		return json.Unmarshal(rec.Body.Bytes(), &body) == nil && body.Connections == n
	}, 2*time.Second, 10*time.Millisecond)
}

func command(t *testing.T, conn *websocket.Conn, requestID, cmdType string, payload any) {
	t.Helper()
	raw, err := json.Marshal(payload)
	require.NoError(t, err)
	data, err := json.Marshal(ws.Frame{Type: cmdType, RequestID: requestID, Payload: raw})
	require.NoError(t, err)
	require.NoError(t, websocket.Message.Send(conn, string(data)))
}

func readFrame(t *testing.T, conn *websocket.Conn) ws.Frame {
	t.Helper()
	require.NoError(t, conn.SetReadDeadline(time.Now().Add(5*time.Second)))
	var raw []byte
	require.NoError(t, websocket.Message.Receive(conn, &raw))
	var frame ws.Frame
	require.NoError(t, json.Unmarshal(raw, &frame))
	return frame
}

type eventFrame struct {
	Type  string          `json:"type"`
	Event events.Kind     `json:"event"`
	Data  json.RawMessage `json:"data"`
}

// readEvent 讀取下一個事件訊框
func readEvent(t *testing.T, conn *websocket.Conn) eventFrame {
	t.Helper()
	require.NoError(t, conn.SetReadDeadline(time.Now().Add(5*time.Second)))
	var raw []byte
	require.NoError(t, websocket.Message.Receive(conn, &raw))
	var frame eventFrame
	require.NoError(t, json.Unmarshal(raw, &frame))
	require.Equal(t, "event", frame.Type, string(raw))
	return frame
}

// expectSilence 確認連線在短時間內沒有收到任何訊框
func expectSilence(t *testing.T, conn *websocket.Conn) {
	t.Helper()
	require.NoError(t, conn.SetReadDeadline(time.Now().Add(200*time.Millisecond)))
	var raw []byte
	err := websocket.Message.Receive(conn, &raw)
	require.Error(t, err, "unexpected frame: %s", string(raw))
}
