package config

import (
	"encoding/json"
	"fmt"
	"os"

	"github.com/dmitrijs2005/gatekeeper/internal/flagx"
	"github.com/dmitrijs2005/gatekeeper/internal/timex"
)

// JSONConfig mirrors Config for file loading. Durations use timex.Duration so
// both "30s" and integer nanoseconds are accepted. Pointer fields distinguish
// "absent" from "false"/"0".
type JSONConfig struct {
	EndpointAddrHTTP             string          `json:"endpoint_addr_http"`
	EndpointAddrGRPC             string          `json:"endpoint_addr_grpc"`
	RoutePrefix                  string          `json:"route_prefix"`
	Storage                      string          `json:"storage"`
	DatabaseDSN                  string          `json:"database_dsn"`
	RecoveryStore                string          `json:"recovery_store"`
	RedisAddr                    string          `json:"redis_addr"`
	AccessTokenSecret            string          `json:"access_token_secret"`
	RefreshTokenSecret           string          `json:"refresh_token_secret"`
	AccessTokenValidityDuration  *timex.Duration `json:"access_token_validity_duration"`
	RefreshTokenValidityDuration *timex.Duration `json:"refresh_token_validity_duration"`
	ResetTokenValidityDuration   *timex.Duration `json:"reset_token_validity_duration"`
	BcryptCost                   *int            `json:"bcrypt_cost"`
	CookieSecure                 *bool           `json:"cookie_secure"`
	RequestTimeout               *timex.Duration `json:"request_timeout"`
	FrontendURL                  string          `json:"frontend_url"`
	SMTPAddr                     string          `json:"smtp_addr"`
	MailFrom                     string          `json:"mail_from"`
	MailTimeout                  *timex.Duration `json:"mail_timeout"`
	HealthCheckInterval          *timex.Duration `json:"health_check_interval"`
	LogLevel                     string          `json:"log_level"`
}

// parseJSON overlays values from the file named by -c/-config onto config.
// Fields missing from the file keep their current value.
func parseJSON(config *Config, args []string) error {
	path := flagx.ConfigFileFlag(args)
	if path == "" {
		return nil
	}

	data, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("read config file: %w", err)
	}

	c := &JSONConfig{}
	if err := json.Unmarshal(data, c); err != nil {
		return fmt.Errorf("parse config file: %w", err)
	}

	setString(&config.EndpointAddrHTTP, c.EndpointAddrHTTP)
	setString(&config.EndpointAddrGRPC, c.EndpointAddrGRPC)
	setString(&config.RoutePrefix, c.RoutePrefix)
	setString(&config.Storage, c.Storage)
	setString(&config.DatabaseDSN, c.DatabaseDSN)
	setString(&config.RecoveryStore, c.RecoveryStore)
	setString(&config.RedisAddr, c.RedisAddr)
	setString(&config.AccessTokenSecret, c.AccessTokenSecret)
	setString(&config.RefreshTokenSecret, c.RefreshTokenSecret)
	setString(&config.FrontendURL, c.FrontendURL)
	setString(&config.SMTPAddr, c.SMTPAddr)
	setString(&config.MailFrom, c.MailFrom)
	setString(&config.LogLevel, c.LogLevel)

	if c.AccessTokenValidityDuration != nil {
		config.AccessTokenValidityDuration = c.AccessTokenValidityDuration.Duration
	}
	if c.RefreshTokenValidityDuration != nil {
		config.RefreshTokenValidityDuration = c.RefreshTokenValidityDuration.Duration
	}
	if c.ResetTokenValidityDuration != nil {
		config.ResetTokenValidityDuration = c.ResetTokenValidityDuration.Duration
	}
	if c.RequestTimeout != nil {
		config.RequestTimeout = c.RequestTimeout.Duration
	}
	if c.MailTimeout != nil {
		config.MailTimeout = c.MailTimeout.Duration
	}
	if c.HealthCheckInterval != nil {
		config.HealthCheckInterval = c.HealthCheckInterval.Duration
	}
	if c.BcryptCost != nil {
		config.BcryptCost = *c.BcryptCost
	}
	if c.CookieSecure != nil {
		config.CookieSecure = *c.CookieSecure
	}

	return nil
}

func setString(dst *string, v string) {
	if v != "" {
		*dst = v
	}
}
