package config

import (
	"flag"
	"io"

	"github.com/dmitrijs2005/gatekeeper/internal/flagx"
)

// parseFlags populates selected Config fields from command-line flags.
//
// Supported flags (short forms):
//
//	-a string     HTTP bind address (e.g. ":8080")
//	-g string     gRPC health bind address
//	-d string     PostgreSQL DSN
//	-k string     Redis address for the reset-token store
//	-t duration   access token validity (e.g. "30s")
//	-r duration   refresh token validity (e.g. "168h")
//	-x duration   reset token validity
//	-f string     frontend base URL used in reset links
//	-m string     SMTP relay address
//	-l string     log level
//
// Secrets are deliberately not accepted as flags: command lines are visible
// to every user on the host.
func parseFlags(config *Config, args []string) error {
	args = flagx.FilterArgs(args, []string{"-a", "-g", "-d", "-k", "-t", "-r", "-x", "-f", "-m", "-l"})

	fs := flag.NewFlagSet("server", flag.ContinueOnError)
	fs.SetOutput(io.Discard)

	fs.StringVar(&config.EndpointAddrHTTP, "a", config.EndpointAddrHTTP, "HTTP address and port")
	fs.StringVar(&config.EndpointAddrGRPC, "g", config.EndpointAddrGRPC, "gRPC health address and port")
	fs.StringVar(&config.DatabaseDSN, "d", config.DatabaseDSN, "database DSN")
	fs.StringVar(&config.RedisAddr, "k", config.RedisAddr, "redis address")
	fs.DurationVar(&config.AccessTokenValidityDuration, "t", config.AccessTokenValidityDuration, "access token validity")
	fs.DurationVar(&config.RefreshTokenValidityDuration, "r", config.RefreshTokenValidityDuration, "refresh token validity")
	fs.DurationVar(&config.ResetTokenValidityDuration, "x", config.ResetTokenValidityDuration, "reset token validity")
	fs.StringVar(&config.FrontendURL, "f", config.FrontendURL, "frontend base URL")
	fs.StringVar(&config.SMTPAddr, "m", config.SMTPAddr, "SMTP relay address")
	fs.StringVar(&config.LogLevel, "l", config.LogLevel, "log level")

	return fs.Parse(args)
}
