package config

import (
	"os"
	"strconv"
	"time"

	"github.com/joho/godotenv"
)

// envPrefix namespaces every environment variable read by parseEnv.
const envPrefix = "TORNPROXY_"

// dotEnvFile is loaded when present. Variables already set in the process
// environment win over the file.
var dotEnvFile = ".env"

// parseEnv overlays Config with TORNPROXY_* environment variables, after
// loading dotEnvFile if it exists. Unset or empty variables leave the
// current value untouched; malformed durations are ignored.
//
// Durations are accepted as Go duration strings ("15m") or as a bare integer
// of seconds.
func parseEnv(config *Config) {
	if _, err := os.Stat(dotEnvFile); err == nil {
		if err := godotenv.Load(dotEnvFile); err != nil {
			panic(err)
		}
	}

	setString(&config.EndpointAddrHTTP, "HTTP_ADDR")
	setString(&config.EndpointAddrGRPC, "GRPC_ADDR")
	setString(&config.DatabaseDSN, "DATABASE_DSN")
	setString(&config.SecretKey, "JWT_SECRET")
	setString(&config.VaultKey, "VAULT_KEY")
	setString(&config.VaultSalt, "VAULT_SALT")
	setDuration(&config.SessionValidityDuration, "SESSION_VALIDITY")
	setDuration(&config.UpstreamTimeout, "UPSTREAM_TIMEOUT")
	setString(&config.PrimaryUpstreamURL, "PRIMARY_UPSTREAM_URL")
	setString(&config.CompanionUpstreamURL, "COMPANION_UPSTREAM_URL")
	setString(&config.Environment, "ENV")
	setString(&config.DenyList, "DENY_LIST")
	setString(&config.RedisAddr, "REDIS_ADDR")
}

func setString(dst *string, name string) {
	if v := os.Getenv(envPrefix + name); v != "" {
		*dst = v
	}
}

func setDuration(dst *time.Duration, name string) {
	v := os.Getenv(envPrefix + name)
	if v == "" {
		return
	}
	if d, err := time.ParseDuration(v); err == nil {
		*dst = d
		return
	}
	if n, err := strconv.Atoi(v); err == nil {
		*dst = time.Duration(n) * time.Second
	}
}
