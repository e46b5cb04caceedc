package config

import (
	"crypto/ed25519"
	"crypto/rand"
	"encoding/base64"
	"encoding/hex"
	"flag"
	"fmt"
	"log/slog"
	"os"
	"strconv"
	"strings"
)

// Config holds all runtime configuration for the calltrail server.
// Precedence: CLI flags > env vars > defaults. The struct is immutable
// after Load; components receive it (or decoded fields) at construction
// time and never read ambient global state.
type Config struct {
	DataDir     string
	HTTPPort    int
	LogLevel    string
	LogFormat   string // log output format: "text" or "json"
	CORSOrigins string

	// Webhook signature verification.
	WebhookPublicKey string // base64-encoded Ed25519 public key from the provider portal
	SignatureHeader  string // header carrying the detached signature
	TimestampHeader  string // header carrying the signed timestamp
	RequireSignature bool   // operational escape hatch; must stay true in production

	// Outbound provider credentials.
	ProviderBaseURL string
	ProviderAPIKey  string

	// Operator API auth.
	OperatorSecret string // hex-encoded 32-byte secret for operator JWT signing

	// Optional backends.
	AuditDSN  string // PostgreSQL DSN for the archival audit sink
	RedisAddr string // redis address for the duplicate-delivery fast path

	// Policy thresholds.
	TranscriptConfidenceMin float64 // below this, transcript creation requires confirmation
	SynthesisNoiseMax       float64 // above this, synthesis planning is blocked

	// Recording retention defaults (days), by classification.
	RetentionBillingDays     int
	RetentionOperationalDays int
}

// defaults
const (
	defaultDataDir         = "./data"
	defaultHTTPPort        = 8080
	defaultLogLevel        = "info"
	defaultLogFormat       = "text"
	defaultSigHeader       = "X-Webhook-Signature"
	defaultTSHeader        = "X-Webhook-Timestamp"
	defaultConfidenceMin   = 0.80
	defaultNoiseMax        = 0.60
	defaultBillingDays     = 2555
	defaultOperationalDays = 90
)

// envPrefix is the prefix for all calltrail environment variables.
const envPrefix = "CALLTRAIL_"

// Load parses configuration from CLI flags and environment variables.
// Precedence: CLI flags > env vars > defaults.
func Load() (*Config, error) {
	cfg := &Config{}

	fs := flag.NewFlagSet("calltrail", flag.ContinueOnError)

	fs.StringVar(&cfg.DataDir, "data-dir", defaultDataDir, "data directory for database and file storage")
	fs.IntVar(&cfg.HTTPPort, "http-port", defaultHTTPPort, "HTTP server listen port")
	fs.StringVar(&cfg.LogLevel, "log-level", defaultLogLevel, "log level (debug, info, warn, error)")
	fs.StringVar(&cfg.LogFormat, "log-format", defaultLogFormat, "log output format (text, json)")
	fs.StringVar(&cfg.CORSOrigins, "cors-origins", "", "comma-separated list of allowed CORS origins (use * for all)")
	fs.StringVar(&cfg.WebhookPublicKey, "webhook-public-key", "", "base64-encoded Ed25519 public key for webhook signature verification")
	fs.StringVar(&cfg.SignatureHeader, "signature-header", defaultSigHeader, "request header carrying the webhook signature")
	fs.StringVar(&cfg.TimestampHeader, "timestamp-header", defaultTSHeader, "request header carrying the webhook timestamp")
	fs.BoolVar(&cfg.RequireSignature, "require-signature", true, "require a valid webhook signature (disable only for local replay)")
	fs.StringVar(&cfg.ProviderBaseURL, "provider-base-url", "", "base URL of the outbound messaging provider API")
	fs.StringVar(&cfg.ProviderAPIKey, "provider-api-key", "", "API key for the outbound messaging provider")
	fs.StringVar(&cfg.OperatorSecret, "operator-secret", "", "hex-encoded 32-byte secret for operator JWT signing (auto-generated if empty)")
	fs.StringVar(&cfg.AuditDSN, "audit-dsn", "", "PostgreSQL DSN for the archival audit sink (sqlite audit table used if empty)")
	fs.StringVar(&cfg.RedisAddr, "redis-addr", "", "redis address for the duplicate-delivery cache (disabled if empty)")
	fs.Float64Var(&cfg.TranscriptConfidenceMin, "transcript-confidence-min", defaultConfidenceMin, "minimum transcription confidence before confirmation is required")
	fs.Float64Var(&cfg.SynthesisNoiseMax, "synthesis-noise-max", defaultNoiseMax, "maximum ambient noise level allowed for synthesis planning")
	fs.IntVar(&cfg.RetentionBillingDays, "retention-billing-days", defaultBillingDays, "recording retention in days for billing-classified calls")
	fs.IntVar(&cfg.RetentionOperationalDays, "retention-operational-days", defaultOperationalDays, "recording retention in days for operational-classified calls")

	if err := fs.Parse(os.Args[1:]); err != nil {
		return nil, fmt.Errorf("parsing flags: %w", err)
	}

	// Apply env var overrides for any flags not explicitly set on the
	// command line. CLI flags take precedence over env vars.
	applyEnvOverrides(fs, cfg)

	if err := cfg.validate(); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}

	return cfg, nil
}

// applyEnvOverrides checks environment variables for any flag that was not
// explicitly provided on the command line. This preserves the precedence:
// CLI flags > env vars > defaults.
func applyEnvOverrides(fs *flag.FlagSet, cfg *Config) {
	// Track which flags were explicitly set via CLI.
	set := make(map[string]bool)
	fs.Visit(func(f *flag.Flag) {
		set[f.Name] = true
	})

	// Map of flag name to env var name.
	envMap := map[string]string{
		"data-dir":                   envPrefix + "DATA_DIR",
		"http-port":                  envPrefix + "HTTP_PORT",
		"log-level":                  envPrefix + "LOG_LEVEL",
		"log-format":                 envPrefix + "LOG_FORMAT",
		"cors-origins":               envPrefix + "CORS_ORIGINS",
		"webhook-public-key":         envPrefix + "WEBHOOK_PUBLIC_KEY",
		"signature-header":           envPrefix + "SIGNATURE_HEADER",
		"timestamp-header":           envPrefix + "TIMESTAMP_HEADER",
		"require-signature":          envPrefix + "REQUIRE_SIGNATURE",
		"provider-base-url":          envPrefix + "PROVIDER_BASE_URL",
		"provider-api-key":           envPrefix + "PROVIDER_API_KEY",
		"operator-secret":            envPrefix + "OPERATOR_SECRET",
		"audit-dsn":                  envPrefix + "AUDIT_DSN",
		"redis-addr":                 envPrefix + "REDIS_ADDR",
		"transcript-confidence-min":  envPrefix + "TRANSCRIPT_CONFIDENCE_MIN",
		"synthesis-noise-max":        envPrefix + "SYNTHESIS_NOISE_MAX",
		"retention-billing-days":     envPrefix + "RETENTION_BILLING_DAYS",
		"retention-operational-days": envPrefix + "RETENTION_OPERATIONAL_DAYS",
	}

	for flagName, envVar := range envMap {
		if set[flagName] {
			continue
		}
		val, ok := os.LookupEnv(envVar)
		if !ok || val == "" {
			continue
		}
		switch flagName {
		case "data-dir":
			cfg.DataDir = val
		case "http-port":
			if v, err := strconv.Atoi(val); err == nil {
				cfg.HTTPPort = v
			}
		case "log-level":
			cfg.LogLevel = val
		case "log-format":
			cfg.LogFormat = val
		case "cors-origins":
			cfg.CORSOrigins = val
		case "webhook-public-key":
			cfg.WebhookPublicKey = val
		case "signature-header":
			cfg.SignatureHeader = val
		case "timestamp-header":
			cfg.TimestampHeader = val
		case "require-signature":
			if v, err := strconv.ParseBool(val); err == nil {
				cfg.RequireSignature = v
			}
		case "provider-base-url":
			cfg.ProviderBaseURL = val
		case "provider-api-key":
			cfg.ProviderAPIKey = val
		case "operator-secret":
			cfg.OperatorSecret = val
		case "audit-dsn":
			cfg.AuditDSN = val
		case "redis-addr":
			cfg.RedisAddr = val
		case "transcript-confidence-min":
			if v, err := strconv.ParseFloat(val, 64); err == nil {
				cfg.TranscriptConfidenceMin = v
			}
		case "synthesis-noise-max":
			if v, err := strconv.ParseFloat(val, 64); err == nil {
				cfg.SynthesisNoiseMax = v
			}
		case "retention-billing-days":
			if v, err := strconv.Atoi(val); err == nil {
				cfg.RetentionBillingDays = v
			}
		case "retention-operational-days":
			if v, err := strconv.Atoi(val); err == nil {
				cfg.RetentionOperationalDays = v
			}
		}
	}
}

// validate checks that the config values are sane.
func (c *Config) validate() error {
	if c.HTTPPort < 1 || c.HTTPPort > 65535 {
		return fmt.Errorf("http-port must be between 1 and 65535, got %d", c.HTTPPort)
	}

	validLevels := map[string]bool{"debug": true, "info": true, "warn": true, "error": true}
	if !validLevels[strings.ToLower(c.LogLevel)] {
		return fmt.Errorf("log-level must be one of debug, info, warn, error; got %q", c.LogLevel)
	}
	c.LogLevel = strings.ToLower(c.LogLevel)

	validFormats := map[string]bool{"text": true, "json": true}
	if !validFormats[strings.ToLower(c.LogFormat)] {
		return fmt.Errorf("log-format must be one of text, json; got %q", c.LogFormat)
	}
	c.LogFormat = strings.ToLower(c.LogFormat)

	if c.WebhookPublicKey != "" {
		if _, err := c.WebhookPublicKeyBytes(); err != nil {
			return err
		}
	}
	if c.RequireSignature && c.WebhookPublicKey == "" {
		return fmt.Errorf("webhook-public-key is required when require-signature is enabled")
	}

	if c.TranscriptConfidenceMin < 0 || c.TranscriptConfidenceMin > 1 {
		return fmt.Errorf("transcript-confidence-min must be between 0 and 1, got %v", c.TranscriptConfidenceMin)
	}
	if c.SynthesisNoiseMax < 0 || c.SynthesisNoiseMax > 1 {
		return fmt.Errorf("synthesis-noise-max must be between 0 and 1, got %v", c.SynthesisNoiseMax)
	}
	if c.RetentionBillingDays < 1 {
		return fmt.Errorf("retention-billing-days must be positive, got %d", c.RetentionBillingDays)
	}
	if c.RetentionOperationalDays < 1 {
		return fmt.Errorf("retention-operational-days must be positive, got %d", c.RetentionOperationalDays)
	}

	return nil
}

// WebhookPublicKeyBytes returns the decoded Ed25519 public key, or nil if
// no key is configured.
func (c *Config) WebhookPublicKeyBytes() (ed25519.PublicKey, error) {
	if c.WebhookPublicKey == "" {
		return nil, nil
	}
	key, err := base64.StdEncoding.DecodeString(c.WebhookPublicKey)
	if err != nil {
		return nil, fmt.Errorf("decoding webhook public key: %w", err)
	}
	if len(key) != ed25519.PublicKeySize {
		return nil, fmt.Errorf("webhook public key must decode to %d bytes, got %d", ed25519.PublicKeySize, len(key))
	}
	return ed25519.PublicKey(key), nil
}

// OperatorSecretBytes returns the decoded 32-byte operator JWT secret.
// If no secret is configured, it generates a random 32-byte key and stores
// the hex-encoded value back in the config for the process lifetime.
func (c *Config) OperatorSecretBytes() ([]byte, error) {
	if c.OperatorSecret == "" {
		key := make([]byte, 32)
		if _, err := rand.Read(key); err != nil {
			return nil, fmt.Errorf("generating operator secret: %w", err)
		}
		c.OperatorSecret = hex.EncodeToString(key)
		slog.Warn("no operator secret configured, generated an ephemeral one; operator tokens will not survive a restart")
		return key, nil
	}
	key, err := hex.DecodeString(c.OperatorSecret)
	if err != nil {
		return nil, fmt.Errorf("decoding operator secret: %w", err)
	}
	if len(key) != 32 {
		return nil, fmt.Errorf("operator secret must decode to 32 bytes, got %d", len(key))
	}
	return key, nil
}

// SlogLevel converts the configured log level to a slog.Level.
func (c *Config) SlogLevel() slog.Level {
	switch strings.ToLower(c.LogLevel) {
	case "debug":
		return slog.LevelDebug
	case "warn":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}
