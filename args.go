package main

import (
	"strings"

	"github.com/spf13/pflag"
	"github.com/spf13/viper"

	"loadboard/api"
)

func ParseArgs() Args {
	defaults := api.DefaultRuntimeConfig()

	// server config
	pflag.String("server-url", "0.0.0.0:8080", "")

	// db config
	pflag.String("db-user", "", "")
	pflag.String("db-password", "", "")
	pflag.String("db-host", "", "")
	pflag.Int("db-port", 5432, "")
	pflag.String("db-database", "", "")
	pflag.String("db-schema", "", "")
	pflag.Int("db-max-open-conns", 20, "")
	pflag.Bool("db-auto-migrate", false, "create tables on startup")

	// redis config
	pflag.String("redis-addr", "", "")
	pflag.String("redis-password", "", "")
	pflag.Int("redis-db", 15, "")
	pflag.String("redis-key-prefix", "loadboard", "prefix of the per-load lock keys")

	// redis stream keys
	pflag.String("redis-stream-key-for-events", "loadboard-shared-event-stream", "empty to deliver on this node only")

	// auth config
	pflag.String("jwt-public-key-file", "", "PEM encoded Ed25519 public key")
	pflag.String("jwt-issuer", "", "")
	pflag.String("jwt-audience", "", "")
	pflag.String("oidc-issuer-url", "", "")
	pflag.String("oidc-client-id", "", "")
	pflag.String("internal-token", "", "shared secret of the internal endpoints")

	// runtime config
	pflag.Duration("lock-wait", defaults.LockWait, "max wait for the per-load lock")
	pflag.Int("command-workers", defaults.CommandWorkers, "max concurrent commands")
	pflag.Int("connection-buffer", defaults.ConnectionBuffer, "outbound frames queued per connection")
	pflag.Duration("heartbeat-interval", defaults.HeartbeatInterval, "")
	pflag.StringSlice("allowed-origins", nil, "websocket origins, empty to accept any")

	// bind pflag to viper
	pflag.Parse()
	viper.BindPFlags(pflag.CommandLine)
	viper.AutomaticEnv()
	viper.SetEnvPrefix("LOADBOARD")
	viper.SetEnvKeyReplacer(strings.NewReplacer("-", "_"))

	// initial arguments
	return Args{
		ServerURL: viper.GetString("server-url"),
		ServerConfig: api.ServerConfig{
			DB: api.DBConfig{
				User:         viper.GetString("db-user"),
				Password:     viper.GetString("db-password"),
				Host:         viper.GetString("db-host"),
				Port:         viper.GetInt("db-port"),
				Database:     viper.GetString("db-database"),
				Schema:       viper.GetString("db-schema"),
				MaxOpenConns: viper.GetInt("db-max-open-conns"),
				AutoMigrate:  viper.GetBool("db-auto-migrate"),
			},
			Redis: api.RedisConfig{
				Addr:      viper.GetString("redis-addr"),
				Password:  viper.GetString("redis-password"),
				DB:        viper.GetInt("redis-db"),
				KeyPrefix: viper.GetString("redis-key-prefix"),
				StreamKeys: api.RedisStreamKeys{
					Events: viper.GetString("redis-stream-key-for-events"),
				},
			},
			Auth: api.AuthConfig{
				JWTPublicKeyFile: viper.GetString("jwt-public-key-file"),
				JWTIssuer:        viper.GetString("jwt-issuer"),
				JWTAudience:      viper.GetString("jwt-audience"),
				OIDCIssuerURL:    viper.GetString("oidc-issuer-url"),
				OIDCClientID:     viper.GetString("oidc-client-id"),
				InternalToken:    viper.GetString("internal-token"),
			},
			Runtime: api.RuntimeConfig{
				LockWait:          viper.GetDuration("lock-wait"),
				CommandWorkers:    viper.GetInt("command-workers"),
				ConnectionBuffer:  viper.GetInt("connection-buffer"),
				HeartbeatInterval: viper.GetDuration("heartbeat-interval"),
				AllowedOrigins:    viper.GetStringSlice("allowed-origins"),
			},
		},
	}
}

type Args struct {
	ServerURL    string
	ServerConfig api.ServerConfig
}

// Validate 至少需要一種令牌驗證方式，OIDC 需同時設定 issuer 與 client id
func (args Args) Validate() bool {
	auth := args.ServerConfig.Auth
	hasJWT := auth.JWTPublicKeyFile != ""
	hasOIDC := auth.OIDCIssuerURL != "" && auth.OIDCClientID != ""
	return args.ServerURL != "" &&
		args.ServerConfig.DB.Host != "" &&
		args.ServerConfig.Redis.Addr != "" &&
		(hasJWT || hasOIDC) &&
		args.ServerConfig.Runtime.CommandWorkers > 0
}
