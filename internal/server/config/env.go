package config

import (
	"fmt"
	"os"
	"strconv"
	"time"
)

// parseEnv overlays NRS_-prefixed environment variables. Nesting is spelled
// with a double underscore, e.g. NRS_HUB__PASSWORD_AUTH__USERNAME, matching
// the env surface analysis deployments already use. A value that does not
// parse is a configuration error, not a silent fallback to the default.
func parseEnv(config *Config) error {
	p := &envParser{}

	p.stringVar(&config.EndpointAddrHTTP, "NRS_SERVER__ADDR")
	p.stringVar(&config.DatabaseDSN, "NRS_POSTGRES__DSN")

	p.stringVar(&config.S3Endpoint, "NRS_MINIO__ENDPOINT")
	p.stringVar(&config.S3Region, "NRS_MINIO__REGION")
	p.stringVar(&config.S3Bucket, "NRS_MINIO__BUCKET")
	p.stringVar(&config.S3AccessKey, "NRS_MINIO__ACCESS_KEY")
	p.stringVar(&config.S3SecretKey, "NRS_MINIO__SECRET_KEY")
	p.boolVar(&config.S3UseSSL, "NRS_MINIO__USE_SSL")

	p.stringVar(&config.OIDCCertsURL, "NRS_OIDC__CERTS_URL")
	p.stringVar(&config.OIDCClientIDClaimName, "NRS_OIDC__CLIENT_ID_CLAIM_NAME")
	p.boolVar(&config.OIDCSkipValidation, "NRS_OIDC__SKIP_JWT_VALIDATION")

	p.stringVar(&config.HubCoreBaseURL, "NRS_HUB__CORE_BASE_URL")
	p.stringVar(&config.HubAuthBaseURL, "NRS_HUB__AUTH_BASE_URL")
	p.stringVar(&config.HubStorageBaseURL, "NRS_HUB__STORAGE_BASE_URL")
	p.stringVar(&config.HubAuthMethod, "NRS_HUB__AUTH_METHOD")
	p.stringVar(&config.HubUsername, "NRS_HUB__PASSWORD_AUTH__USERNAME")
	p.stringVar(&config.HubPassword, "NRS_HUB__PASSWORD_AUTH__PASSWORD")
	p.stringVar(&config.HubRobotID, "NRS_HUB__ROBOT_AUTH__ID")
	p.stringVar(&config.HubRobotSecret, "NRS_HUB__ROBOT_AUTH__SECRET")

	p.stringVar(&config.KeyProvider, "NRS_CRYPTO__PROVIDER")
	p.stringVar(&config.ECDHPrivateKey, "NRS_CRYPTO__ECDH_PRIVATE_KEY")
	p.stringVar(&config.HubPublicKey, "NRS_CRYPTO__HUB_PUBLIC_KEY")

	p.intVar(&config.DispatcherWorkers, "NRS_DISPATCHER__WORKERS")
	p.intVar(&config.DispatcherBatchSize, "NRS_DISPATCHER__BATCH_SIZE")
	p.durationVar(&config.DispatcherPollInterval, "NRS_DISPATCHER__POLL_INTERVAL")
	p.durationVar(&config.DispatcherLeaseTTL, "NRS_DISPATCHER__LEASE_TTL")
	p.intVar(&config.DispatcherMaxAttempts, "NRS_DISPATCHER__MAX_ATTEMPTS")
	p.durationVar(&config.DispatcherBackoffBase, "NRS_DISPATCHER__BACKOFF_BASE")
	p.durationVar(&config.DispatcherBackoffCap, "NRS_DISPATCHER__BACKOFF_CAP")

	p.int64Var(&config.MaxUploadBytes, "NRS_SERVER__MAX_UPLOAD_BYTES")

	return p.err
}

// envParser stops at the first malformed value and remembers which variable
// it came from.
type envParser struct {
	err error
}

func (p *envParser) stringVar(dst *string, name string) {
	if p.err != nil {
		return
	}
	if v, ok := os.LookupEnv(name); ok {
		*dst = v
	}
}

func (p *envParser) boolVar(dst *bool, name string) {
	if p.err != nil {
		return
	}
	if v, ok := os.LookupEnv(name); ok {
		parsed, err := strconv.ParseBool(v)
		if err != nil {
			p.err = fmt.Errorf("parse %s=%q: %w", name, v, err)
			return
		}
		*dst = parsed
	}
}

func (p *envParser) intVar(dst *int, name string) {
	if p.err != nil {
		return
	}
	if v, ok := os.LookupEnv(name); ok {
		parsed, err := strconv.Atoi(v)
		if err != nil {
			p.err = fmt.Errorf("parse %s=%q: %w", name, v, err)
			return
		}
		*dst = parsed
	}
}

func (p *envParser) int64Var(dst *int64, name string) {
	if p.err != nil {
		return
	}
	if v, ok := os.LookupEnv(name); ok {
		parsed, err := strconv.ParseInt(v, 10, 64)
		if err != nil {
			p.err = fmt.Errorf("parse %s=%q: %w", name, v, err)
			return
		}
		*dst = parsed
	}
}

func (p *envParser) durationVar(dst *time.Duration, name string) {
	if p.err != nil {
		return
	}
	if v, ok := os.LookupEnv(name); ok {
		parsed, err := time.ParseDuration(v)
		if err != nil {
			p.err = fmt.Errorf("parse %s=%q: %w", name, v, err)
			return
		}
		*dst = parsed
	}
}
