package auth

import (
	"context"
	"crypto"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
	"gorm.io/gorm"

	"loadboard/policy"
)

// Claims 是平台簽發的存取令牌內容，sub 為使用者 ID
type Claims struct {
	Username string `json:"username"`
	jwt.RegisteredClaims
}

type jwtOptions struct {
	logger   *slog.Logger
	issuer   string
	audience string
	leeway   time.Duration
}

type JWTOption func(*jwtOptions)

// WithJWTLogger 設置日誌記錄器
func WithJWTLogger(logger *slog.Logger) JWTOption {
	return func(o *jwtOptions) {
		o.logger = logger
	}
}

// WithJWTIssuer 要求令牌的 iss 必須相符
func WithJWTIssuer(issuer string) JWTOption {
	return func(o *jwtOptions) {
		o.issuer = issuer
	}
}

// WithJWTAudience 要求令牌的 aud 必須包含指定值
func WithJWTAudience(audience string) JWTOption {
	return func(o *jwtOptions) {
		o.audience = audience
	}
}

// WithJWTLeeway 設置時間驗證的容許誤差
func WithJWTLeeway(leeway time.Duration) JWTOption {
	return func(o *jwtOptions) {
		o.leeway = leeway
	}
}

// JWTAuthenticator 驗證以 Ed25519 簽署的存取令牌
type JWTAuthenticator struct {
	db     *gorm.DB
	key    crypto.PublicKey
	parser *jwt.Parser
	logger *slog.Logger
}

func NewJWTAuthenticator(db *gorm.DB, key crypto.PublicKey, opts ...JWTOption) (*JWTAuthenticator, error) {
	if db == nil {
		return nil, errors.New("db cannot be nil")
	}
	if key == nil {
		return nil, errors.New("public key cannot be nil")
	}

	// 默認選項
	options := jwtOptions{
		logger: slog.Default(),
		leeway: 30 * time.Second,
	}
	// 應用自定義選項
	for _, opt := range opts {
		opt(&options)
	}

	parserOpts := []jwt.ParserOption{
		jwt.WithValidMethods([]string{jwt.SigningMethodEdDSA.Alg()}),
		jwt.WithExpirationRequired(),
		jwt.WithLeeway(options.leeway),
	}
	if options.issuer != "" {
		parserOpts = append(parserOpts, jwt.WithIssuer(options.issuer))
	}
	if options.audience != "" {
		parserOpts = append(parserOpts, jwt.WithAudience(options.audience))
	}

	return &JWTAuthenticator{
		db:     db,
		key:    key,
		parser: jwt.NewParser(parserOpts...),
		logger: options.logger.With(slog.String("caller", "JWTAuthenticator")),
	}, nil
}

// LoadEd25519PublicKey 解析 PEM 格式的 Ed25519 公鑰
func LoadEd25519PublicKey(pemBytes []byte) (crypto.PublicKey, error) {
	const op = "LoadEd25519PublicKey"
	key, err := jwt.ParseEdPublicKeyFromPEM(pemBytes)
	if err != nil {
		return nil, fmt.Errorf("[%s] Fail to parse public key, err=%w", op, err)
	}
	return key, nil
}

func (a *JWTAuthenticator) Authenticate(ctx context.Context, token string) (policy.Principal, error) {
	const op = "JWTAuthenticate"

	claims, err := a.parse(token)
	if err != nil {
		a.logger.Debug("token rejected", slog.Any("error", err))
		return policy.Principal{}, fmt.Errorf("[%s] %v: %w", op, err, ErrUnauthenticated)
	}
	userID, err := uuid.Parse(claims.Subject)
	if err != nil {
		return policy.Principal{}, fmt.Errorf("[%s] subject is not a user id: %w", op, ErrUnauthenticated)
	}
	p, err := principalOf(ctx, a.db, userID)
	if err != nil {
		return policy.Principal{}, fmt.Errorf("[%s] %w", op, err)
	}
	return p, nil
}

func (a *JWTAuthenticator) parse(tokenString string) (*Claims, error) {
	token, err := a.parser.ParseWithClaims(tokenString, &Claims{}, func(token *jwt.Token) (interface{}, error) {
		return a.key, nil
	})
	if err != nil {
		return nil, err
	}
	if !token.Valid {
		return nil, errors.New("token is invalid")
	}
	claims, ok := token.Claims.(*Claims)
	if !ok {
		return nil, errors.New("token claims are invalid")
	}
	return claims, nil
}
