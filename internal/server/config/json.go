package config

import (
	"encoding/json"
	"os"

	"github.com/fedanode/result-service/internal/flagx"
	"github.com/fedanode/result-service/internal/timex"
)

// JsonConfig is the DTO for the optional JSON config file. Duration fields
// accept both "30s" strings and integer nanoseconds. Pointer fields
// distinguish "absent" from zero so the overlay only touches keys that are
// present in the file.
type JsonConfig struct {
	EndpointAddrHTTP *string `json:"endpoint_addr_http"`
	DatabaseDSN      *string `json:"database_dsn"`

	S3Endpoint  *string `json:"s3_endpoint"`
	S3Region    *string `json:"s3_region"`
	S3Bucket    *string `json:"s3_bucket"`
	S3AccessKey *string `json:"s3_access_key"`
	S3SecretKey *string `json:"s3_secret_key"`
	S3UseSSL    *bool   `json:"s3_use_ssl"`

	OIDCCertsURL          *string `json:"oidc_certs_url"`
	OIDCClientIDClaimName *string `json:"oidc_client_id_claim_name"`
	OIDCSkipValidation    *bool   `json:"oidc_skip_jwt_validation"`

	HubCoreBaseURL    *string `json:"hub_core_base_url"`
	HubAuthBaseURL    *string `json:"hub_auth_base_url"`
	HubStorageBaseURL *string `json:"hub_storage_base_url"`
	HubAuthMethod     *string `json:"hub_auth_method"`
	HubUsername       *string `json:"hub_username"`
	HubPassword       *string `json:"hub_password"`
	HubRobotID        *string `json:"hub_robot_id"`
	HubRobotSecret    *string `json:"hub_robot_secret"`

	KeyProvider    *string `json:"key_provider"`
	ECDHPrivateKey *string `json:"ecdh_private_key"`
	HubPublicKey   *string `json:"hub_public_key"`

	DispatcherWorkers      *int            `json:"dispatcher_workers"`
	DispatcherBatchSize    *int            `json:"dispatcher_batch_size"`
	DispatcherPollInterval *timex.Duration `json:"dispatcher_poll_interval"`
	DispatcherLeaseTTL     *timex.Duration `json:"dispatcher_lease_ttl"`
	DispatcherMaxAttempts  *int            `json:"dispatcher_max_attempts"`
	DispatcherBackoffBase  *timex.Duration `json:"dispatcher_backoff_base"`
	DispatcherBackoffCap   *timex.Duration `json:"dispatcher_backoff_cap"`

	MaxUploadBytes *int64 `json:"max_upload_bytes"`
}

// parseJson overlays values from the JSON file named by -c/-config, if any.
// An unreadable or malformed file is a startup failure.
func parseJson(config *Config) {
	jsonConfigFile := flagx.JsonConfigFlags()
	if jsonConfigFile == "" {
		return
	}

	file, err := os.ReadFile(jsonConfigFile)
	if err != nil {
		panic(err)
	}

	c := &JsonConfig{}
	if err := json.Unmarshal(file, c); err != nil {
		panic(err)
	}

	setString := func(dst *string, src *string) {
		if src != nil {
			*dst = *src
		}
	}
	setBool := func(dst *bool, src *bool) {
		if src != nil {
			*dst = *src
		}
	}
	setInt := func(dst *int, src *int) {
		if src != nil {
			*dst = *src
		}
	}

	setString(&config.EndpointAddrHTTP, c.EndpointAddrHTTP)
	setString(&config.DatabaseDSN, c.DatabaseDSN)

	setString(&config.S3Endpoint, c.S3Endpoint)
	setString(&config.S3Region, c.S3Region)
	setString(&config.S3Bucket, c.S3Bucket)
	setString(&config.S3AccessKey, c.S3AccessKey)
	setString(&config.S3SecretKey, c.S3SecretKey)
	setBool(&config.S3UseSSL, c.S3UseSSL)

	setString(&config.OIDCCertsURL, c.OIDCCertsURL)
	setString(&config.OIDCClientIDClaimName, c.OIDCClientIDClaimName)
	setBool(&config.OIDCSkipValidation, c.OIDCSkipValidation)

	setString(&config.HubCoreBaseURL, c.HubCoreBaseURL)
	setString(&config.HubAuthBaseURL, c.HubAuthBaseURL)
	setString(&config.HubStorageBaseURL, c.HubStorageBaseURL)
	setString(&config.HubAuthMethod, c.HubAuthMethod)
	setString(&config.HubUsername, c.HubUsername)
	setString(&config.HubPassword, c.HubPassword)
	setString(&config.HubRobotID, c.HubRobotID)
	setString(&config.HubRobotSecret, c.HubRobotSecret)

	setString(&config.KeyProvider, c.KeyProvider)
	setString(&config.ECDHPrivateKey, c.ECDHPrivateKey)
	setString(&config.HubPublicKey, c.HubPublicKey)

	setInt(&config.DispatcherWorkers, c.DispatcherWorkers)
	setInt(&config.DispatcherBatchSize, c.DispatcherBatchSize)
	setInt(&config.DispatcherMaxAttempts, c.DispatcherMaxAttempts)
	if c.DispatcherPollInterval != nil {
		config.DispatcherPollInterval = c.DispatcherPollInterval.Duration
	}
	if c.DispatcherLeaseTTL != nil {
		config.DispatcherLeaseTTL = c.DispatcherLeaseTTL.Duration
	}
	if c.DispatcherBackoffBase != nil {
		config.DispatcherBackoffBase = c.DispatcherBackoffBase.Duration
	}
	if c.DispatcherBackoffCap != nil {
		config.DispatcherBackoffCap = c.DispatcherBackoffCap.Duration
	}

	if c.MaxUploadBytes != nil {
		config.MaxUploadBytes = *c.MaxUploadBytes
	}
}
