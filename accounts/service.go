// Package accounts 發出帳號審核與文件審核相關的管理事件
// 文件本身的儲存不在此模組內，這裡只負責審核結果的通知
package accounts

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"loadboard/events"
	"loadboard/models"
	"loadboard/policy"
)

type DocumentStatus string

const (
	DocumentVerified DocumentStatus = "VERIFIED"
	DocumentRejected DocumentStatus = "REJECTED"
)

type VerifyDocumentInput struct {
	DocumentID uuid.UUID
	OwnerID    uuid.UUID
	Status     DocumentStatus
	Reason     string
}

type serviceOptions struct {
	logger *slog.Logger
}

type ServiceOption func(*serviceOptions)

// WithServiceLogger 設置日誌記錄器
func WithServiceLogger(logger *slog.Logger) ServiceOption {
	return func(o *serviceOptions) {
		o.logger = logger
	}
}

type Service struct {
	db         *gorm.DB
	dispatcher events.Dispatcher
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
		logger: slog.Default(),
	}
	// 應用自定義選項
	for _, opt := range opts {
		opt(&options)
	}

	return &Service{
		db:         db,
		dispatcher: dispatcher,
		logger:     options.logger.With(slog.String("caller", "AccountService")),
	}, nil
}

// ChangeStatus 由管理員變更帳號狀態
// 帳號離開 ACTIVE 時，路由器送出通知後會關閉該使用者在每個節點上的連線
func (s *Service) ChangeStatus(ctx context.Context, p policy.Principal, userID uuid.UUID, status models.UserStatus) (*models.User, error) {
	const op = "ChangeStatus"

	if !policy.CanPublishAdminEvent(p) {
		return nil, fmt.Errorf("[%s] principal %s is not an admin, err=%w", op, p.UserID, models.ErrForbidden)
	}
	if !status.Valid() {
		return nil, fmt.Errorf("[%s] unknown status %q, err=%w", op, status, models.ErrInvalidArgument)
	}
	user, err := findUser(ctx, s.db, userID)
	if err != nil {
		return nil, fmt.Errorf("[%s] Fail to find user, err=%w", op, err)
	}
	if user.ID == p.UserID {
		return nil, fmt.Errorf("[%s] admin cannot change own status, err=%w", op, models.ErrInvalidState)
	}

	if user.Status != status {
		if err := s.db.WithContext(ctx).Model(user).Update("status", status).Error; err != nil {
			return nil, fmt.Errorf("[%s] Fail to update user, err=%w", op, err)
		}
		user.Status = status
	}

	s.logger.Info("account status changed",
		slog.String("userID", user.ID.String()),
		slog.String("status", string(status)),
		slog.String("changedBy", p.UserID.String()))

	s.dispatcher.Dispatch(events.AccountStatusChanged{
		Meta:   events.Stamp(),
		UserID: user.ID,
		Status: status,
	})
	return user, nil
}

// VerifyDocument 將文件審核結果通知文件擁有者
func (s *Service) VerifyDocument(ctx context.Context, p policy.Principal, in VerifyDocumentInput) error {
	const op = "VerifyDocument"

	if !policy.CanPublishAdminEvent(p) {
		return fmt.Errorf("[%s] principal %s is not an admin, err=%w", op, p.UserID, models.ErrForbidden)
	}
	reason := strings.TrimSpace(in.Reason)
	switch in.Status {
	case DocumentVerified:
	case DocumentRejected:
		if reason == "" {
			return fmt.Errorf("[%s] rejection requires a reason, err=%w", op, models.ErrInvalidArgument)
		}
	default:
		return fmt.Errorf("[%s] unknown document status %q, err=%w", op, in.Status, models.ErrInvalidArgument)
	}
	owner, err := findUser(ctx, s.db, in.OwnerID)
	if err != nil {
		return fmt.Errorf("[%s] Fail to find document owner, err=%w", op, err)
	}

	s.logger.Info("document verified",
		slog.String("documentID", in.DocumentID.String()),
		slog.String("status", string(in.Status)))

	s.dispatcher.Dispatch(events.DocumentVerified{
		Meta:       events.Stamp(),
		DocumentID: in.DocumentID,
		OwnerID:    owner.ID,
		Status:     string(in.Status),
		Reason:     reason,
	})
	return nil
}

// AnnounceRegistration 通知所有在線的管理員有新帳號等待審核
func (s *Service) AnnounceRegistration(ctx context.Context, userID uuid.UUID) error {
	const op = "AnnounceRegistration"

	user, err := findUser(ctx, s.db, userID)
	if err != nil {
		return fmt.Errorf("[%s] Fail to find user, err=%w", op, err)
	}
	s.dispatcher.Dispatch(events.UserRegistered{
		Meta:        events.Stamp(),
		UserID:      user.ID,
		Username:    user.Username,
		CompanyName: user.CompanyName,
		Role:        user.Role,
	})
	return nil
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
