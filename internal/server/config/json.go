package config

import (
	"encoding/json"
	"os"

	"github.com/dmitrijs2005/tornproxy/internal/flagx"
	"github.com/dmitrijs2005/tornproxy/internal/timex"
)

// JsonConfig is the on-disk shape of the configuration file. Durations use
// timex.Duration so both "15m" and integer nanoseconds are accepted.
// Fields left out of the file keep their current value.
type JsonConfig struct {
	EndpointAddrHTTP        string         `json:"endpoint_addr_http"`
	EndpointAddrGRPC        string         `json:"endpoint_addr_grpc"`
	DatabaseDSN             string         `json:"database_dsn"`
	SecretKey               string         `json:"secret_key"`
	VaultKey                string         `json:"vault_key"`
	VaultSalt               string         `json:"vault_salt"`
	SessionValidityDuration timex.Duration `json:"session_validity_duration"`
	UpstreamTimeout         timex.Duration `json:"upstream_timeout"`
	PrimaryUpstreamURL      string         `json:"primary_upstream_url"`
	CompanionUpstreamURL    string         `json:"companion_upstream_url"`
	Environment             string         `json:"environment"`
	DenyList                string         `json:"deny_list"`
	RedisAddr               string         `json:"redis_addr"`
}

// parseJson loads configuration values from the JSON file named by the -c or
// -config flag into config. Without the flag nothing happens. An unreadable
// file or invalid JSON panics.
func parseJson(config *Config) {

	jsonConfigFile := flagx.JsonConfigFlags()

	// nothing to load
	if jsonConfigFile == "" {
		return
	}

	c := &JsonConfig{}

	file, err := os.ReadFile(jsonConfigFile)
	if err != nil {
		panic(err)
	}

	err = json.Unmarshal(file, c)
	if err != nil {
		panic(err)
	}

	overlay(&config.EndpointAddrHTTP, c.EndpointAddrHTTP)
	overlay(&config.EndpointAddrGRPC, c.EndpointAddrGRPC)
	overlay(&config.DatabaseDSN, c.DatabaseDSN)
	overlay(&config.SecretKey, c.SecretKey)
	overlay(&config.VaultKey, c.VaultKey)
	overlay(&config.VaultSalt, c.VaultSalt)
	overlay(&config.PrimaryUpstreamURL, c.PrimaryUpstreamURL)
	overlay(&config.CompanionUpstreamURL, c.CompanionUpstreamURL)
	overlay(&config.Environment, c.Environment)
	overlay(&config.DenyList, c.DenyList)
	overlay(&config.RedisAddr, c.RedisAddr)

	if c.SessionValidityDuration.Duration > 0 {
		config.SessionValidityDuration = c.SessionValidityDuration.Duration
	}
	if c.UpstreamTimeout.Duration > 0 {
		config.UpstreamTimeout = c.UpstreamTimeout.Duration
	}
}

func overlay(dst *string, v string) {
	if v != "" {
		*dst = v
	}
}
