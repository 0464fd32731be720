// Package messaging 處理使用者之間的站內訊息
package messaging

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"unicode/utf8"

	"github.com/google/uuid"
	"github.com/microcosm-cc/bluemonday"
	"gorm.io/gorm"

	"loadboard/events"
	"loadboard/models"
	"loadboard/policy"
)

const MaxBodyLength = 4000

type SendInput struct {
	ReceiverID uuid.UUID
	Body       string
	LoadID     *uuid.UUID
	Type       models.MessageType
}

type serviceOptions struct {
	logger     *slog.Logger
	htmlPolicy *bluemonday.Policy
}

type ServiceOption func(*serviceOptions)

// WithServiceLogger 設置日誌記錄器
func WithServiceLogger(logger *slog.Logger) ServiceOption {
	return func(o *serviceOptions) {
		o.logger = logger
	}
}

// WithHTMLPolicy 替換訊息內容的 HTML 過濾規則
func WithHTMLPolicy(p *bluemonday.Policy) ServiceOption {
	return func(o *serviceOptions) {
		o.htmlPolicy = p
	}
}

type Service struct {
	db         *gorm.DB
	dispatcher events.Dispatcher
	htmlPolicy *bluemonday.Policy
	logger     *slog.Logger
}

func NewService(db *gorm.DB, dispatcher events.Dispatcher, opts ...ServiceOption) (*Service, error) {
	if db == nil {
		return nil, errors.New("db cannot be nil")
	}
	if dispatcher == nil {
		return nil, errors.New("dispatcher cannot be nil")
	}

	// 默認選項
	options := serviceOptions{
		logger:     slog.Default(),
		htmlPolicy: bluemonday.UGCPolicy(),
	}
	// 應用自定義選項
	for _, opt := range opts {
		opt(&options)
	}

	return &Service{
		db:         db,
		dispatcher: dispatcher,
		htmlPolicy: options.htmlPolicy,
		logger:     options.logger.With(slog.String("caller", "MessageService")),
	}, nil
}

// Send 儲存一則訊息並通知收件者
func (s *Service) Send(ctx context.Context, p policy.Principal, in SendInput) (*models.Message, error) {
	const op = "SendMessage"

	body := strings.TrimSpace(s.htmlPolicy.Sanitize(in.Body))
	if body == "" {
		return nil, fmt.Errorf("[%s] message body is required, err=%w", op, models.ErrInvalidArgument)
	}
	if utf8.RuneCountInString(body) > MaxBodyLength {
		return nil, fmt.Errorf("[%s] message body exceeds %d characters, err=%w", op, MaxBodyLength, models.ErrInvalidArgument)
	}
	msgType := in.Type
	if msgType == "" {
		msgType = models.MessageTypeGeneral
	}
	if !msgType.Valid() {
		return nil, fmt.Errorf("[%s] unknown message type %q, err=%w", op, msgType, models.ErrInvalidArgument)
	}

	receiver, err := findUser(ctx, s.db, in.ReceiverID)
	if err != nil {
		return nil, fmt.Errorf("[%s] Fail to find receiver, err=%w", op, err)
	}
	sender, err := findUser(ctx, s.db, p.UserID)
	if err != nil {
		return nil, fmt.Errorf("[%s] Fail to find sender, err=%w", op, err)
	}

	msg := &models.Message{
		SenderID:   p.UserID,
		ReceiverID: receiver.ID,
		LoadID:     in.LoadID,
		Body:       body,
		Type:       msgType,
	}
	if !policy.CanSendMessage(p, msg, receiver) {
		return nil, fmt.Errorf("[%s] principal %s cannot message %s, err=%w", op, p.UserID, receiver.ID, models.ErrForbidden)
	}
	if in.LoadID != nil {
		var load models.Load
		if err := s.db.WithContext(ctx).First(&load, "id = ?", *in.LoadID).Error; err != nil {
			if errors.Is(err, gorm.ErrRecordNotFound) {
				err = fmt.Errorf("load %s: %w", *in.LoadID, models.ErrNotFound)
			}
			return nil, fmt.Errorf("[%s] Fail to find load, err=%w", op, err)
		}
		if !policy.CanViewLoad(p, &load) {
			return nil, fmt.Errorf("[%s] principal %s cannot reference load %s, err=%w", op, p.UserID, load.ID, models.ErrForbidden)
		}
	}

	if err := s.db.WithContext(ctx).Create(msg).Error; err != nil {
		return nil, fmt.Errorf("[%s] Fail to create message, err=%w", op, err)
	}

	s.logger.Debug("message stored",
		slog.String("messageID", msg.ID.String()),
		slog.String("receiverID", receiver.ID.String()))

	// 寫入期間收件者可能已被停權，推播前以最新狀態確認收件者仍可接收
	receiver, err = findUser(ctx, s.db, receiver.ID)
	if err != nil {
		return nil, fmt.Errorf("[%s] Fail to reload receiver, err=%w", op, err)
	}
	if !policy.CanReceiveMessage(policy.Principal{UserID: receiver.ID, Role: receiver.Role}, msg, receiver) {
		s.logger.Info("message stored without notification",
			slog.String("messageID", msg.ID.String()),
			slog.String("receiverID", receiver.ID.String()),
			slog.String("receiverStatus", string(receiver.Status)))
		return msg, nil
	}

	s.dispatcher.Dispatch(events.MessageReceived{
		Meta:       events.Stamp(),
		MessageID:  msg.ID,
		SenderID:   sender.ID,
		SenderName: sender.Username,
		ReceiverID: receiver.ID,
		LoadID:     msg.LoadID,
		Type:       msg.Type,
		Body:       msg.Body,
	})
	return msg, nil
}

// MarkRead 將訊息標記為已讀，只有收件者可以操作，重複標記不會出錯
func (s *Service) MarkRead(ctx context.Context, p policy.Principal, messageID uuid.UUID) (*models.Message, error) {
	const op = "MarkRead"

	var msg models.Message
	if err := s.db.WithContext(ctx).First(&msg, "id = ?", messageID).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			err = fmt.Errorf("message %s: %w", messageID, models.ErrNotFound)
		}
		return nil, fmt.Errorf("[%s] Fail to find message, err=%w", op, err)
	}
	if !policy.CanMarkMessageRead(p, &msg) {
		return nil, fmt.Errorf("[%s] principal %s cannot mark message %s, err=%w", op, p.UserID, messageID, models.ErrForbidden)
	}
	if msg.Read {
		return &msg, nil
	}
	if err := s.db.WithContext(ctx).Model(&msg).Update("read", true).Error; err != nil {
		return nil, fmt.Errorf("[%s] Fail to update message, err=%w", op, err)
	}
	msg.Read = true
	return &msg, nil
}

func findUser(ctx context.Context, db *gorm.DB, userID uuid.UUID) (*models.User, error) {
	var user models.User
	if err := db.WithContext(ctx).First(&user, "id = ?", userID).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, fmt.Errorf("user %s: %w", userID, models.ErrNotFound)
		}
		return nil, err
	}
	return &user, nil
}
