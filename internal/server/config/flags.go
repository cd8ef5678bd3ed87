package config

import (
	"flag"
	"os"
	"time"

	"github.com/dmitrijs2005/tornproxy/internal/flagx"
)

// parseFlags populates selected server Config fields from command-line flags.
//
// Supported flags (short forms):
//
//	-a string   HTTP bind address (e.g., ":3001")
//	-g string   gRPC health bind address (e.g., ":50051")
//	-d string   PostgreSQL DSN
//	-s string   JWT HMAC secret key
//	-k string   vault master key (base64 of 32 bytes, or passphrase)
//	-l string   vault salt for passphrase keys
//	-t int      session validity, minutes
//	-o int      upstream timeout, seconds
//	-p string   primary upstream base URL
//	-x string   companion upstream base URL
//	-m string   environment ("development" disables Secure cookies)
//	-y string   session deny list backend (none, postgres, redis)
//	-r string   redis address for the redis deny list
//
// The function first filters os.Args to only the flags it recognizes using
// flagx.FilterArgs, so -c/-config used by parseJson does not collide.
func parseFlags(config *Config) {
	args := flagx.FilterArgs(os.Args[1:], []string{"-a", "-g", "-d", "-s", "-k", "-l", "-t", "-o", "-p", "-x", "-m", "-y", "-r"})

	fs := flag.NewFlagSet("main", flag.ContinueOnError)

	fs.StringVar(&config.EndpointAddrHTTP, "a", config.EndpointAddrHTTP, "address and port to run HTTP server")
	fs.StringVar(&config.EndpointAddrGRPC, "g", config.EndpointAddrGRPC, "address and port to run gRPC health server")
	fs.StringVar(&config.DatabaseDSN, "d", config.DatabaseDSN, "database DSN")
	fs.StringVar(&config.SecretKey, "s", config.SecretKey, "session secret key")
	fs.StringVar(&config.VaultKey, "k", config.VaultKey, "vault master key")
	fs.StringVar(&config.VaultSalt, "l", config.VaultSalt, "vault salt")

	sessionValidity := fs.Int("t", int(config.SessionValidityDuration.Minutes()), "session validity (in minutes)")
	upstreamTimeout := fs.Int("o", int(config.UpstreamTimeout.Seconds()), "upstream timeout (in seconds)")

	fs.StringVar(&config.PrimaryUpstreamURL, "p", config.PrimaryUpstreamURL, "primary upstream URL")
	fs.StringVar(&config.CompanionUpstreamURL, "x", config.CompanionUpstreamURL, "companion upstream URL")
	fs.StringVar(&config.Environment, "m", config.Environment, "environment")
	fs.StringVar(&config.DenyList, "y", config.DenyList, "session deny list backend")
	fs.StringVar(&config.RedisAddr, "r", config.RedisAddr, "redis address")

	if err := fs.Parse(args); err != nil {
		panic(err)
	}

	config.SessionValidityDuration = time.Duration(*sessionValidity) * time.Minute
	config.UpstreamTimeout = time.Duration(*upstreamTimeout) * time.Second
}
