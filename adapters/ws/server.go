// Package ws 提供 websocket 長連線的傳輸層
// 負責握手驗證、連線註冊與指令的讀取和回覆，指令內容交由 CommandHandler 處理
package ws

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"strings"
	"sync"
	"time"

	"golang.org/x/net/websocket"

	"loadboard/adapters/auth"
	"loadboard/adapters/hub"
	"loadboard/policy"
)

const (
	maxFramePayloadBytes   = 16 * 1024
	maxDecodeErrorsPerConn = 3
)

// Command 是客戶端送來的一個指令
type Command struct {
	Type      string
	RequestID string
	Payload   json.RawMessage
}

// CommandHandler 執行一個指令並回傳要放在 ack 中的結果
type CommandHandler interface {
	HandleCommand(ctx context.Context, peer *Peer, cmd Command) (any, error)
}

// Registry 是傳輸層需要的註冊表操作
type Registry interface {
	Register(conn hub.Conn)
	Unregister(conn hub.Conn)
}

type handlerOptions struct {
	logger         *slog.Logger
	buffer         int
	heartbeat      time.Duration
	writeTimeout   time.Duration
	allowedOrigins []string
}

type HandlerOption func(*handlerOptions)

// WithHandlerLogger 設置日誌記錄器
func WithHandlerLogger(logger *slog.Logger) HandlerOption {
	return func(o *handlerOptions) {
		o.logger = logger
	}
}

// WithConnectionBuffer 設置每條連線的送出佇列長度
func WithConnectionBuffer(size int) HandlerOption {
	return func(o *handlerOptions) {
		o.buffer = size
	}
}

// WithHeartbeat 設置心跳間隔
func WithHeartbeat(interval time.Duration) HandlerOption {
	return func(o *handlerOptions) {
		o.heartbeat = interval
	}
}

// WithWriteTimeout 設置單次寫入的逾時
func WithWriteTimeout(timeout time.Duration) HandlerOption {
	return func(o *handlerOptions) {
		o.writeTimeout = timeout
	}
}

// WithAllowedOrigins 限制握手的 Origin，未設置時不檢查
func WithAllowedOrigins(origins ...string) HandlerOption {
	return func(o *handlerOptions) {
		o.allowedOrigins = origins
	}
}

type Handler struct {
	authenticator auth.Authenticator
	registry      Registry
	commands      CommandHandler
	options       handlerOptions
	logger        *slog.Logger
	wg            sync.WaitGroup
}

func NewHandler(authenticator auth.Authenticator, registry Registry, commands CommandHandler, opts ...HandlerOption) (*Handler, error) {
	if authenticator == nil {
		return nil, errors.New("authenticator cannot be nil")
	}
	if registry == nil {
		return nil, errors.New("registry cannot be nil")
	}
	if commands == nil {
		return nil, errors.New("command handler cannot be nil")
	}

	// 默認選項
	options := handlerOptions{
		logger:       slog.Default(),
		buffer:       64,
		heartbeat:    25 * time.Second,
		writeTimeout: 10 * time.Second,
	}
	// 應用自定義選項
	for _, opt := range opts {
		opt(&options)
	}
	if options.buffer <= 0 {
		return nil, errors.New("connection buffer must be positive")
	}
	if options.heartbeat <= 0 || options.writeTimeout <= 0 {
		return nil, errors.New("heartbeat and write timeout must be positive")
	}

	return &Handler{
		authenticator: authenticator,
		registry:      registry,
		commands:      commands,
		options:       options,
		logger:        options.logger.With(slog.String("caller", "WebsocketHandler")),
	}, nil
}

type principalKey struct{}

func (h *Handler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		w.Header().Set("Allow", http.MethodGet)
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}

	token := TokenFromRequest(r)
	principal, err := h.authenticator.Authenticate(r.Context(), token)
	if err != nil {
		if errors.Is(err, auth.ErrUnauthenticated) {
			h.logger.Info("websocket unauthorized",
				slog.String("remote", r.RemoteAddr),
				slog.Any("error", err))
			http.Error(w, "authentication required", http.StatusUnauthorized)
			return
		}
		h.logger.Error("fail to authenticate websocket", slog.Any("error", err))
		http.Error(w, "internal error", http.StatusInternalServerError)
		return
	}

	h.wg.Add(1)
	defer h.wg.Done()

	server := websocket.Server{
		Handshake: h.checkOrigin,
		Handler: func(conn *websocket.Conn) {
			h.serveConn(conn)
		},
	}
	server.ServeHTTP(w, r.WithContext(context.WithValue(r.Context(), principalKey{}, principal)))
}

// Wait 等待所有連線處理結束
func (h *Handler) Wait() {
	h.wg.Wait()
}

func (h *Handler) checkOrigin(config *websocket.Config, r *http.Request) error {
	if len(h.options.allowedOrigins) == 0 {
		return nil
	}
	origin := r.Header.Get("Origin")
	for _, allowed := range h.options.allowedOrigins {
		if origin == allowed {
			return nil
		}
	}
	return errors.New("origin not allowed")
}

// TokenFromRequest 優先讀取 Authorization 標頭，瀏覽器則可使用 access_token 參數
func TokenFromRequest(r *http.Request) string {
	if header := r.Header.Get("Authorization"); header != "" {
		scheme, token, ok := strings.Cut(header, " ")
		if ok && strings.EqualFold(scheme, "Bearer") {
			return strings.TrimSpace(token)
		}
		return ""
	}
	return strings.TrimSpace(r.URL.Query().Get("access_token"))
}

func (h *Handler) serveConn(conn *websocket.Conn) {
	principal, _ := conn.Request().Context().Value(principalKey{}).(policy.Principal)
	conn.MaxPayloadBytes = maxFramePayloadBytes

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	peer := newPeer(conn, principal, h.options.buffer, h.logger)
	gone := func() {
		h.registry.Unregister(peer)
		_ = peer.Close()
	}

	h.registry.Register(peer)
	peer.logger.Info("connection opened", slog.String("role", string(principal.Role)))

	var writer sync.WaitGroup
	writer.Add(1)
	go func() {
		defer writer.Done()
		peer.writeLoop(h.options.heartbeat, h.options.writeTimeout, gone)
	}()

	h.readLoop(ctx, peer)
	gone()
	writer.Wait()
	peer.logger.Info("connection closed")
}

func (h *Handler) readLoop(ctx context.Context, peer *Peer) {
	decodeErrors := 0
	for {
		var raw []byte
		if err := websocket.Message.Receive(peer.conn, &raw); err != nil {
			if errors.Is(err, websocket.ErrFrameTooLarge) {
				h.reply(peer, errorFrame("", CodeInvalidArgument, "payload too large"))
				continue
			}
			return
		}

		var frame Frame
		if err := json.Unmarshal(raw, &frame); err != nil || frame.Type == "" {
			decodeErrors++
			h.reply(peer, errorFrame("", CodeInvalidArgument, "invalid frame payload"))
			if decodeErrors >= maxDecodeErrorsPerConn {
				return
			}
			continue
		}
		decodeErrors = 0

		if frame.Type == "pong" {
			continue
		}

		cmd := Command{Type: frame.Type, RequestID: frame.RequestID, Payload: frame.Payload}
		result, err := h.commands.HandleCommand(ctx, peer, cmd)
		if err != nil {
			code := ErrorCode(err)
			if code == CodeInternal {
				peer.logger.Error("command failed",
					slog.String("type", cmd.Type),
					slog.Any("error", err))
			} else {
				peer.logger.Debug("command rejected",
					slog.String("type", cmd.Type),
					slog.String("code", code),
					slog.Any("error", err))
			}
			h.reply(peer, errorFrame(cmd.RequestID, code, ErrorMessage(err)))
			continue
		}
		ack, err := ackFrame(cmd.RequestID, result)
		if err != nil {
			h.reply(peer, errorFrame(cmd.RequestID, CodeInternal, "internal error"))
			continue
		}
		h.reply(peer, ack)
	}
}

// reply 佇列已滿代表客戶端跟不上，直接斷線
func (h *Handler) reply(peer *Peer, frame []byte) {
	if err := peer.Send(frame); err != nil {
		h.registry.Unregister(peer)
		_ = peer.Close()
	}
}
