package auth

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/coreos/go-oidc/v3/oidc"
	"gorm.io/gorm"

	"loadboard/models"
	"loadboard/policy"
)

// IDTokenClaims 只取出建立對應關係與日誌所需的欄位
// 參考https://auth0.com/docs/get-started/apis/scopes/openid-connect-scopes
type IDTokenClaims struct {
	Email             string `json:"email"`
	EmailVerified     bool   `json:"email_verified"`
	PreferredUsername string `json:"preferred_username"`
}

type oidcOptions struct {
	logger *slog.Logger
}

type OIDCOption func(*oidcOptions)

// WithOIDCLogger 設置日誌記錄器
func WithOIDCLogger(logger *slog.Logger) OIDCOption {
	return func(o *oidcOptions) {
		o.logger = logger
	}
}

// OIDCAuthenticator 驗證外部身份提供者簽發的 ID Token，
// 再透過 (iss, sub) 對應到平台使用者
type OIDCAuthenticator struct {
	db       *gorm.DB
	verifier *oidc.IDTokenVerifier
	logger   *slog.Logger
}

// DiscoverVerifier 透過 discovery 文件建立 ID Token 驗證器
func DiscoverVerifier(ctx context.Context, issuerURL, clientID string) (*oidc.IDTokenVerifier, error) {
	const op = "DiscoverVerifier"
	provider, err := oidc.NewProvider(ctx, issuerURL)
	if err != nil {
		return nil, fmt.Errorf("[%s] Fail to create provider, err=%w", op, err)
	}
	return provider.Verifier(&oidc.Config{ClientID: clientID}), nil
}

func NewOIDCAuthenticator(db *gorm.DB, verifier *oidc.IDTokenVerifier, opts ...OIDCOption) (*OIDCAuthenticator, error) {
	if db == nil {
		return nil, errors.New("db cannot be nil")
	}
	if verifier == nil {
		return nil, errors.New("verifier cannot be nil")
	}

	// 默認選項
	options := oidcOptions{
		logger: slog.Default(),
	}
	// 應用自定義選項
	for _, opt := range opts {
		opt(&options)
	}

	return &OIDCAuthenticator{
		db:       db,
		verifier: verifier,
		logger:   options.logger.With(slog.String("caller", "OIDCAuthenticator")),
	}, nil
}

func (a *OIDCAuthenticator) Authenticate(ctx context.Context, token string) (policy.Principal, error) {
	const op = "OIDCAuthenticate"

	idToken, err := a.verifier.Verify(ctx, token)
	if err != nil {
		a.logger.Debug("id token rejected", slog.Any("error", err))
		return policy.Principal{}, fmt.Errorf("[%s] %v: %w", op, err, ErrUnauthenticated)
	}
	var claims IDTokenClaims
	if err := idToken.Claims(&claims); err != nil {
		return policy.Principal{}, fmt.Errorf("[%s] Fail to parse claims, err=%v: %w", op, err, ErrUnauthenticated)
	}

	var identity models.UserIdentity
	err = a.db.WithContext(ctx).
		First(&identity, "issuer = ? AND subject = ?", idToken.Issuer, idToken.Subject).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			a.logger.Info("unlinked identity",
				slog.String("issuer", idToken.Issuer),
				slog.String("subject", idToken.Subject),
				slog.String("email", claims.Email))
			return policy.Principal{}, fmt.Errorf("[%s] identity is not linked to a user: %w", op, ErrUnauthenticated)
		}
		return policy.Principal{}, fmt.Errorf("[%s] Fail to find identity, err=%w", op, err)
	}
	p, err := principalOf(ctx, a.db, identity.UserID)
	if err != nil {
		return policy.Principal{}, fmt.Errorf("[%s] %w", op, err)
	}
	return p, nil
}
