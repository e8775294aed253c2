// Package config loads the service configuration from the environment.
package config

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/caarlos0/env/v10"
)

// Render modes for token images.
const (
	RenderInline    = "inline"
	RenderSandboxed = "sandboxed"
)

const (
	EnvDevelopment = "development"
	EnvStaging     = "staging"
	EnvProduction  = "production"
)

const (
	LogFormatJSON = "json"
	LogFormatText = "text"
)

type Config struct {
	AppEnv  string `env:"APP_ENV" envDefault:"development"`
	AppPort int    `env:"APP_PORT" envDefault:"8080"`

	RPCURL  string `env:"RPC_URL,required,notEmpty"`
	ChainID int64  `env:"CHAIN_ID" envDefault:"31337"`

	// CONTRACT_NAME is looked up in DEPLOYED_CONTRACTS, a list of
	// name:address pairs such as "NFTContract:0x5FbD...,Other:0xe7f1...".
	ContractName      string            `env:"CONTRACT_NAME" envDefault:"NFTContract"`
	DeployedContracts map[string]string `env:"DEPLOYED_CONTRACTS" envSeparator:"," envKeyValSeparator:":"`

	// Without a signer the service is read-only.
	SignerPrivateKey string `env:"SIGNER_PRIVATE_KEY"`
	// Defaults to the signer address.
	ConnectedAccount string `env:"CONNECTED_ACCOUNT"`

	// Both optional. Without Postgres there is no mint history; without
	// Redis every read goes to the chain.
	DatabaseURL string `env:"DATABASE_URL"`
	RedisURL    string `env:"REDIS_URL"`

	MintAPIKeyHash string        `env:"MINT_API_KEY_HASH"`
	MintWaitMined  bool          `env:"MINT_WAIT_MINED" envDefault:"true"`
	MintTimeout    time.Duration `env:"MINT_TIMEOUT" envDefault:"2m"`
	// Only used when MINT_WAIT_MINED is false: a mint settles once the
	// transaction is broadcast, before it is included. For this long the
	// recipient's owned set bypasses the cache, and a second refresh runs
	// when it ends.
	MintSettleDelay time.Duration `env:"MINT_SETTLE_DELAY" envDefault:"15s"`

	MetadataConcurrency int           `env:"METADATA_CONCURRENCY" envDefault:"8"`
	TokenURICacheTTL    time.Duration `env:"TOKEN_URI_CACHE_TTL" envDefault:"1h"`
	OwnedTokensCacheTTL time.Duration `env:"OWNED_TOKENS_CACHE_TTL" envDefault:"30s"`
	RenderMode          string        `env:"RENDER_MODE" envDefault:"inline"`

	MintWebhookURL    string `env:"MINT_WEBHOOK_URL"`
	MintWebhookSecret string `env:"MINT_WEBHOOK_SECRET"`

	LogLevel  string `env:"LOG_LEVEL" envDefault:"info"`
	LogFormat string `env:"LOG_FORMAT" envDefault:"json"`

	ReadTimeout     time.Duration `env:"READ_TIMEOUT" envDefault:"5s"`
	WriteTimeout    time.Duration `env:"WRITE_TIMEOUT" envDefault:"150s"`
	ShutdownTimeout time.Duration `env:"SHUTDOWN_TIMEOUT" envDefault:"30s"`

	// Per client IP.
	RateLimitMintEnabled bool    `env:"RATE_LIMIT_MINT_ENABLED" envDefault:"true"`
	RateLimitMintRPS     float64 `env:"RATE_LIMIT_MINT_RPS" envDefault:"0.2"`
	RateLimitMintBurst   int     `env:"RATE_LIMIT_MINT_BURST" envDefault:"3"`

	// Exact origins or "*.domain" patterns.
	CORSAllowedOrigins []string `env:"CORS_ALLOWED_ORIGINS" envSeparator:","`
	MaxRequestBodySize int64    `env:"MAX_REQUEST_BODY_SIZE" envDefault:"65536"`
}

func (c *Config) IsDevelopment() bool {
	return c.AppEnv == EnvDevelopment
}

// MintEnabled reports whether a signer is configured.
func (c *Config) MintEnabled() bool {
	return c.SignerPrivateKey != ""
}

// normalize trims list entries the env parser leaves as typed.
func (c *Config) normalize() {
	origins := c.CORSAllowedOrigins[:0]
	for _, o := range c.CORSAllowedOrigins {
		if o = strings.TrimSpace(o); o != "" {
			origins = append(origins, o)
		}
	}
	if len(origins) == 0 {
		origins = nil
	}
	c.CORSAllowedOrigins = origins
	c.AppEnv = strings.ToLower(strings.TrimSpace(c.AppEnv))
}

// Validate reports every cross-field problem at once.
func (c *Config) Validate() error {
	var errs []error
	check := func(ok bool, format string, args ...any) {
		if !ok {
			errs = append(errs, fmt.Errorf(format, args...))
		}
	}

	switch c.AppEnv {
	case EnvDevelopment, EnvStaging, EnvProduction:
	default:
		check(false, "APP_ENV must be development, staging or production, got %q", c.AppEnv)
	}
	_, known := c.DeployedContracts[c.ContractName]
	check(known, "CONTRACT_NAME %q not found in DEPLOYED_CONTRACTS", c.ContractName)
	check(c.ChainID > 0, "CHAIN_ID must be positive")
	check(c.RenderMode == RenderInline || c.RenderMode == RenderSandboxed,
		"RENDER_MODE must be %q or %q, got %q", RenderInline, RenderSandboxed, c.RenderMode)
	check(c.LogFormat == LogFormatJSON || c.LogFormat == LogFormatText, "LOG_FORMAT must be json or text, got %q", c.LogFormat)
	check(c.MetadataConcurrency >= 1, "METADATA_CONCURRENCY must be at least 1")
	check(c.MintTimeout > 0, "MINT_TIMEOUT must be positive")
	if !c.MintWaitMined {
		check(c.MintSettleDelay > 0, "MINT_SETTLE_DELAY must be positive when MINT_WAIT_MINED is false")
	}
	// A synchronous mint holds the request open until the receipt arrives.
	if c.MintWaitMined && c.WriteTimeout > 0 {
		check(c.WriteTimeout > c.MintTimeout, "WRITE_TIMEOUT (%s) must exceed MINT_TIMEOUT (%s)", c.WriteTimeout, c.MintTimeout)
	}
	if c.RateLimitMintEnabled {
		check(c.RateLimitMintRPS > 0 && c.RateLimitMintBurst >= 1,
			"RATE_LIMIT_MINT_RPS and RATE_LIMIT_MINT_BURST must be positive")
	}
	check(c.MintWebhookURL == "" || c.MintWebhookSecret != "", "MINT_WEBHOOK_SECRET is required with MINT_WEBHOOK_URL")

	return errors.Join(errs...)
}

// Load reads the environment and validates the result.
func Load() (*Config, error) {
	var cfg Config
	if err := env.Parse(&cfg); err != nil {
		return nil, fmt.Errorf("parse config: %w", err)
	}
	cfg.normalize()
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}
	return &cfg, nil
}
