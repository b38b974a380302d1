package config

import (
	"flag"
	"os"
	"time"

	"github.com/fedanode/result-service/internal/flagx"
)

// parseFlags populates selected Config fields from command-line flags.
//
// Supported flags:
//
//	-a string   HTTP bind address (e.g., ":8080")
//	-d string   PostgreSQL DSN
//	-e string   S3 endpoint (host:port)
//	-b string   S3 bucket name
//	-o string   OIDC JWKS (certs) URL
//	-w int      dispatcher worker count
//	-l int      dispatcher lease TTL, seconds
//	-m int      dispatcher max delivery attempts
//
// os.Args is first filtered to only the flags handled here via
// flagx.FilterArgs, avoiding collisions with other components.
func parseFlags(config *Config) {
	args := flagx.FilterArgs(os.Args[1:], []string{"-a", "-d", "-e", "-b", "-o", "-w", "-l", "-m"})

	fs := flag.NewFlagSet("main", flag.ContinueOnError)

	fs.StringVar(&config.EndpointAddrHTTP, "a", config.EndpointAddrHTTP, "address and port to run server")
	fs.StringVar(&config.DatabaseDSN, "d", config.DatabaseDSN, "database DSN")
	fs.StringVar(&config.S3Endpoint, "e", config.S3Endpoint, "S3 endpoint")
	fs.StringVar(&config.S3Bucket, "b", config.S3Bucket, "S3 bucket")
	fs.StringVar(&config.OIDCCertsURL, "o", config.OIDCCertsURL, "OIDC JWKS URL")
	fs.IntVar(&config.DispatcherWorkers, "w", config.DispatcherWorkers, "dispatcher workers")
	fs.IntVar(&config.DispatcherMaxAttempts, "m", config.DispatcherMaxAttempts, "dispatcher max attempts")

	leaseTTL := fs.Int("l", int(config.DispatcherLeaseTTL.Seconds()), "dispatcher lease TTL (in seconds)")

	if err := fs.Parse(args); err != nil {
		panic(err)
	}

	config.DispatcherLeaseTTL = time.Duration(*leaseTTL) * time.Second
}
