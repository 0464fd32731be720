// Package auth 驗證長連線與 HTTP 請求所帶的存取令牌
// 令牌只用來確認使用者身份，角色與帳號狀態一律從資料庫讀取
package auth

import (
	"context"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"loadboard/models"
	"loadboard/policy"
)

var ErrUnauthenticated = errors.New("unauthenticated")

// Authenticator 將原始令牌轉換為已驗證的操作者
type Authenticator interface {
	Authenticate(ctx context.Context, token string) (policy.Principal, error)
}

// principalOf 讀取使用者並確認帳號為 ACTIVE
func principalOf(ctx context.Context, db *gorm.DB, userID uuid.UUID) (policy.Principal, error) {
	var user models.User
	if err := db.WithContext(ctx).First(&user, "id = ?", userID).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return policy.Principal{}, fmt.Errorf("unknown user %s: %w", userID, ErrUnauthenticated)
		}
		return policy.Principal{}, err
	}
	if user.Status != models.UserStatusActive {
		return policy.Principal{}, fmt.Errorf("user %s is %s: %w", userID, user.Status, ErrUnauthenticated)
	}
	if !user.Role.Valid() {
		return policy.Principal{}, fmt.Errorf("user %s has unknown role %q: %w", userID, user.Role, ErrUnauthenticated)
	}
	return policy.Principal{UserID: user.ID, Role: user.Role}, nil
}

// Chain 依序嘗試每個驗證器，第一個成功者勝出
// 基礎設施錯誤會立即回傳，不再嘗試後續驗證器
type Chain []Authenticator

func (c Chain) Authenticate(ctx context.Context, token string) (policy.Principal, error) {
	const op = "Authenticate"
	if token == "" {
		return policy.Principal{}, fmt.Errorf("[%s] missing token, err=%w", op, ErrUnauthenticated)
	}
	var errs []error
	for _, a := range c {
		p, err := a.Authenticate(ctx, token)
		if err == nil {
			return p, nil
		}
		if !errors.Is(err, ErrUnauthenticated) {
			return policy.Principal{}, fmt.Errorf("[%s] %w", op, err)
		}
		errs = append(errs, err)
	}
	if len(errs) == 0 {
		return policy.Principal{}, fmt.Errorf("[%s] no authenticator configured, err=%w", op, ErrUnauthenticated)
	}
	return policy.Principal{}, fmt.Errorf("[%s] %w", op, errors.Join(errs...))
}
