package bootstrap

import (
	"fmt"
	"os"
	"strconv"
	"time"

	"gopkg.in/yaml.v3"
)

// Config is the resolved runtime configuration for the PowerAuth server. It merges file
// defaults and environment overrides to support both local and deployed runs.
type Config struct {
	ServiceID string

	HTTPPort int
	GRPCPort int

	DatabaseURL string
	RedisURL    string
	MaxDBConns  int32

	ActivationValidity              time.Duration
	SignatureMaxFailedAttempts      uint32
	SignatureValidationLookahead    int
	ActivationCodeGenerationRetries int
	ShortIDGenerationRetries        int
	DefaultOTPValidation            string
	DefaultVersion                  int
	ServerKeyEncryption             string
	MasterDBEncryptionKeyBase64     string

	ExpirationSweepInterval  time.Duration
	ExpirationSweepBatchSize int

	CallbackPollInterval time.Duration
	CallbackBatchSize    int
	CallbackClaimTTL     time.Duration
	CallbackMaxRetries   int
}

// configFile mirrors the YAML schema used by configs/default.yaml.
type configFile struct {
	Service struct {
		ID       string `yaml:"id"`
		HTTPPort int    `yaml:"http_port"`
		GRPCPort int    `yaml:"grpc_port"`
	} `yaml:"service"`
	Dependencies struct {
		PostgresURL string `yaml:"postgres_url"`
		RedisURL    string `yaml:"redis_url"`
	} `yaml:"dependencies"`
	Activation struct {
		ValidityMilliseconds              int    `yaml:"validity_milliseconds"`
		SignatureMaxFailedAttempts        int    `yaml:"signature_max_failed_attempts"`
		SignatureValidationLookahead      int    `yaml:"signature_validation_lookahead"`
		GenerateActivationIDIterations    int    `yaml:"generate_activation_id_iterations"`
		GenerateActivationShortIDIterations int  `yaml:"generate_activation_short_id_iterations"`
		DefaultOTPValidation              string `yaml:"default_otp_validation"`
		DefaultVersion                    int    `yaml:"default_version"`
		ServerPrivateKeyEncryption        string `yaml:"server_private_key_encryption"`
	} `yaml:"activation"`
	Sweep struct {
		IntervalSeconds int `yaml:"interval_seconds"`
		BatchSize       int `yaml:"batch_size"`
	} `yaml:"expiration_sweep"`
	Callback struct {
		PollIntervalSeconds int `yaml:"poll_interval_seconds"`
		BatchSize           int `yaml:"batch_size"`
		ClaimTTLSeconds     int `yaml:"claim_ttl_seconds"`
		MaxRetries          int `yaml:"max_retries"`
	} `yaml:"callback"`
}

// LoadConfig resolves configuration in priority order: defaults -> file -> env.
func LoadConfig(path string) (Config, error) {
	cfg := Config{
		ServiceID:                       "powerauth-server",
		HTTPPort:                        8080,
		GRPCPort:                        9090,
		MaxDBConns:                      20,
		ActivationValidity:              5 * time.Minute,
		SignatureMaxFailedAttempts:      5,
		SignatureValidationLookahead:    20,
		ActivationCodeGenerationRetries: 10,
		ShortIDGenerationRetries:        10,
		DefaultOTPValidation:            "NONE",
		DefaultVersion:                  3,
		ServerKeyEncryption:             "NO_ENCRYPTION",
		ExpirationSweepInterval:         60 * time.Second,
		ExpirationSweepBatchSize:        100,
		CallbackPollInterval:            2 * time.Second,
		CallbackBatchSize:               100,
		CallbackClaimTTL:                30 * time.Second,
		CallbackMaxRetries:              5,
	}

	raw, err := os.ReadFile(path)
	if err == nil {
		var f configFile
		if unmarshalErr := yaml.Unmarshal(raw, &f); unmarshalErr != nil {
			return Config{}, fmt.Errorf("parse config file: %w", unmarshalErr)
		}
		if f.Service.ID != "" {
			cfg.ServiceID = f.Service.ID
		}
		if f.Service.HTTPPort > 0 {
			cfg.HTTPPort = f.Service.HTTPPort
		}
		if f.Service.GRPCPort > 0 {
			cfg.GRPCPort = f.Service.GRPCPort
		}
		if f.Dependencies.PostgresURL != "" {
			cfg.DatabaseURL = f.Dependencies.PostgresURL
		}
		if f.Dependencies.RedisURL != "" {
			cfg.RedisURL = f.Dependencies.RedisURL
		}
		if f.Activation.ValidityMilliseconds > 0 {
			cfg.ActivationValidity = time.Duration(f.Activation.ValidityMilliseconds) * time.Millisecond
		}
		if f.Activation.SignatureMaxFailedAttempts > 0 {
			cfg.SignatureMaxFailedAttempts = uint32(f.Activation.SignatureMaxFailedAttempts)
		}
		if f.Activation.SignatureValidationLookahead > 0 {
			cfg.SignatureValidationLookahead = f.Activation.SignatureValidationLookahead
		}
		if f.Activation.GenerateActivationIDIterations > 0 {
			cfg.ActivationCodeGenerationRetries = f.Activation.GenerateActivationIDIterations
		}
		if f.Activation.GenerateActivationShortIDIterations > 0 {
			cfg.ShortIDGenerationRetries = f.Activation.GenerateActivationShortIDIterations
		}
		if f.Activation.DefaultOTPValidation != "" {
			cfg.DefaultOTPValidation = f.Activation.DefaultOTPValidation
		}
		if f.Activation.DefaultVersion > 0 {
			cfg.DefaultVersion = f.Activation.DefaultVersion
		}
		if f.Activation.ServerPrivateKeyEncryption != "" {
			cfg.ServerKeyEncryption = f.Activation.ServerPrivateKeyEncryption
		}
		if f.Sweep.IntervalSeconds > 0 {
			cfg.ExpirationSweepInterval = time.Duration(f.Sweep.IntervalSeconds) * time.Second
		}
		if f.Sweep.BatchSize > 0 {
			cfg.ExpirationSweepBatchSize = f.Sweep.BatchSize
		}
		if f.Callback.PollIntervalSeconds > 0 {
			cfg.CallbackPollInterval = time.Duration(f.Callback.PollIntervalSeconds) * time.Second
		}
		if f.Callback.BatchSize > 0 {
			cfg.CallbackBatchSize = f.Callback.BatchSize
		}
		if f.Callback.ClaimTTLSeconds > 0 {
			cfg.CallbackClaimTTL = time.Duration(f.Callback.ClaimTTLSeconds) * time.Second
		}
		if f.Callback.MaxRetries > 0 {
			cfg.CallbackMaxRetries = f.Callback.MaxRetries
		}
	}

	cfg.DatabaseURL = envOrDefault("DB_URL", envOrDefault("POSTGRES_URL", cfg.DatabaseURL))
	cfg.RedisURL = envOrDefault("REDIS_URL", cfg.RedisURL)
	cfg.MasterDBEncryptionKeyBase64 = envOrDefault("MASTER_DB_ENCRYPTION_KEY", cfg.MasterDBEncryptionKeyBase64)
	cfg.ServerKeyEncryption = envOrDefault("SERVER_PRIVATE_KEY_ENCRYPTION", cfg.ServerKeyEncryption)

	cfg.HTTPPort = envInt("HTTP_PORT", cfg.HTTPPort)
	cfg.GRPCPort = envInt("GRPC_PORT", cfg.GRPCPort)
	cfg.MaxDBConns = int32(envInt("DB_MAX_CONNS", int(cfg.MaxDBConns)))
	cfg.SignatureMaxFailedAttempts = uint32(envInt("SIGNATURE_MAX_FAILED_ATTEMPTS", int(cfg.SignatureMaxFailedAttempts)))
	cfg.SignatureValidationLookahead = envInt("SIGNATURE_VALIDATION_LOOKAHEAD", cfg.SignatureValidationLookahead)
	cfg.ActivationValidity = time.Duration(envInt("ACTIVATION_VALIDITY_MILLISECONDS", int(cfg.ActivationValidity.Milliseconds()))) * time.Millisecond
	cfg.ExpirationSweepInterval = time.Duration(envInt("EXPIRATION_SWEEP_INTERVAL_SECONDS", int(cfg.ExpirationSweepInterval.Seconds()))) * time.Second
	cfg.ExpirationSweepBatchSize = envInt("EXPIRATION_SWEEP_BATCH_SIZE", cfg.ExpirationSweepBatchSize)
	cfg.CallbackPollInterval = time.Duration(envInt("CALLBACK_POLL_SECONDS", int(cfg.CallbackPollInterval.Seconds()))) * time.Second
	cfg.CallbackBatchSize = envInt("CALLBACK_BATCH_SIZE", cfg.CallbackBatchSize)
	cfg.CallbackClaimTTL = time.Duration(envInt("CALLBACK_CLAIM_TTL_SECONDS", int(cfg.CallbackClaimTTL.Seconds()))) * time.Second
	cfg.CallbackMaxRetries = envInt("CALLBACK_MAX_RETRIES", cfg.CallbackMaxRetries)

	if cfg.DatabaseURL == "" {
		return Config{}, fmt.Errorf("missing DB_URL/POSTGRES_URL")
	}
	if cfg.RedisURL == "" {
		return Config{}, fmt.Errorf("missing REDIS_URL")
	}
	if cfg.ServerKeyEncryption == "AES_HMAC" && cfg.MasterDBEncryptionKeyBase64 == "" {
		return Config{}, fmt.Errorf("missing MASTER_DB_ENCRYPTION_KEY for AES_HMAC server key encryption")
	}

	return cfg, nil
}

func envOrDefault(name, fallback string) string {
	if value := os.Getenv(name); value != "" {
		return value
	}
	return fallback
}

func envInt(name string, fallback int) int {
	raw := os.Getenv(name)
	if raw == "" {
		return fallback
	}
	v, err := strconv.Atoi(raw)
	if err != nil {
		return fallback
	}
	return v
}
