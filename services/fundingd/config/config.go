package config

import (
	"fmt"
	"os"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

// Duration wraps time.Duration to support YAML unmarshalling.
type Duration struct {
	time.Duration
}

// UnmarshalYAML parses human readable duration strings.
func (d *Duration) UnmarshalYAML(value *yaml.Node) error {
	if value == nil {
		return nil
	}
	if value.Kind != yaml.ScalarNode {
		return fmt.Errorf("duration must be string")
	}
	raw := value.Value
	if raw == "" {
		d.Duration = 0
		return nil
	}
	parsed, err := time.ParseDuration(raw)
	if err != nil {
		return fmt.Errorf("parse duration %q: %w", raw, err)
	}
	d.Duration = parsed
	return nil
}

// Config captures runtime configuration for fundingd.
type Config struct {
	Environment string           `yaml:"environment"`
	Ledger      LedgerConfig     `yaml:"ledger"`
	Oracle      OracleConfig     `yaml:"oracle"`
	Provider    ProviderConfig   `yaml:"provider"`
	Reconciler  ReconcilerConfig `yaml:"reconciler"`
	Admin       AdminConfig      `yaml:"admin"`
}

// LedgerConfig locates the escrow ledger the oracle writes to.
type LedgerConfig struct {
	NetworkID   string `yaml:"network_id"`
	RPCEndpoint string `yaml:"rpc_endpoint"`
	ContractID  string `yaml:"contract_id"`
}

// OracleConfig identifies the privileged oracle account. The signing key may
// be supplied inline, via an environment variable, or via a file.
type OracleConfig struct {
	AccountID      string `yaml:"account_id"`
	SigningKey     string `yaml:"signing_key"`
	SigningKeyEnv  string `yaml:"signing_key_env"`
	SigningKeyFile string `yaml:"signing_key_file"`
}

// ProviderConfig points at the cross-chain quote provider.
type ProviderConfig struct {
	BaseURL    string  `yaml:"base_url"`
	APIKey     string  `yaml:"api_key"`
	APIKeyEnv  string  `yaml:"api_key_env"`
	APIKeyFile string  `yaml:"api_key_file"`
	RateLimit  float64 `yaml:"rate_limit"`
	RateBurst  int     `yaml:"rate_burst"`
}

// ReconcilerConfig tunes the reconciliation cadence.
type ReconcilerConfig struct {
	PollInterval   Duration `yaml:"poll_interval"`
	TickFloor      Duration `yaml:"tick_floor"`
	PageSize       int      `yaml:"page_size"`
	RotationBuffer Duration `yaml:"rotation_buffer"`
}

// AdminConfig configures the HTTP surface.
type AdminConfig struct {
	ListenAddress   string `yaml:"listen"`
	BearerToken     string `yaml:"bearer_token"`
	BearerTokenFile string `yaml:"bearer_token_file"`
}

// Load reads configuration from the supplied path.
func Load(path string) (Config, error) {
	cfg := Config{}
	file, err := os.Open(path)
	if err != nil {
		return cfg, fmt.Errorf("open config: %w", err)
	}
	defer file.Close()
	dec := yaml.NewDecoder(file)
	if err := dec.Decode(&cfg); err != nil {
		return cfg, fmt.Errorf("decode config: %w", err)
	}
	applyDefaults(&cfg)
	if err := cfg.Oracle.normalise(); err != nil {
		return cfg, err
	}
	if err := cfg.Provider.normalise(); err != nil {
		return cfg, err
	}
	if err := cfg.Admin.normalise(); err != nil {
		return cfg, err
	}
	if err := validate(cfg); err != nil {
		return cfg, err
	}
	return cfg, nil
}

func applyDefaults(cfg *Config) {
	if cfg.Environment == "" {
		cfg.Environment = "development"
	}
	if cfg.Admin.ListenAddress == "" {
		cfg.Admin.ListenAddress = ":7085"
	}
	if cfg.Reconciler.PollInterval.Duration == 0 {
		cfg.Reconciler.PollInterval.Duration = 5 * time.Second
	}
	if cfg.Reconciler.TickFloor.Duration == 0 {
		cfg.Reconciler.TickFloor.Duration = 250 * time.Millisecond
	}
	if cfg.Reconciler.PageSize <= 0 {
		cfg.Reconciler.PageSize = 100
	}
	if cfg.Reconciler.RotationBuffer.Duration == 0 {
		cfg.Reconciler.RotationBuffer.Duration = 10 * time.Second
	}
	if cfg.Provider.RateLimit <= 0 {
		cfg.Provider.RateLimit = 5
	}
	if cfg.Provider.RateBurst <= 0 {
		cfg.Provider.RateBurst = 1
	}
}

func (o *OracleConfig) normalise() error {
	if o == nil {
		return fmt.Errorf("oracle configuration missing")
	}
	o.AccountID = strings.TrimSpace(o.AccountID)
	o.SigningKey = strings.TrimSpace(o.SigningKey)
	o.SigningKeyEnv = strings.TrimSpace(o.SigningKeyEnv)
	o.SigningKeyFile = strings.TrimSpace(o.SigningKeyFile)
	if o.SigningKey != "" {
		return nil
	}
	switch {
	case o.SigningKeyEnv != "":
		value := strings.TrimSpace(os.Getenv(o.SigningKeyEnv))
		if value == "" {
			return fmt.Errorf("signing_key_env %s is empty", o.SigningKeyEnv)
		}
		o.SigningKey = value
	case o.SigningKeyFile != "":
		contents, err := os.ReadFile(o.SigningKeyFile)
		if err != nil {
			return fmt.Errorf("read signing_key_file: %w", err)
		}
		o.SigningKey = strings.TrimSpace(string(contents))
	default:
		return fmt.Errorf("oracle signing_key is required")
	}
	return nil
}

func (p *ProviderConfig) normalise() error {
	if p == nil {
		return fmt.Errorf("provider configuration missing")
	}
	p.BaseURL = strings.TrimSpace(p.BaseURL)
	p.APIKey = strings.TrimSpace(p.APIKey)
	p.APIKeyEnv = strings.TrimSpace(p.APIKeyEnv)
	p.APIKeyFile = strings.TrimSpace(p.APIKeyFile)
	if p.APIKey != "" {
		return nil
	}
	switch {
	case p.APIKeyEnv != "":
		p.APIKey = strings.TrimSpace(os.Getenv(p.APIKeyEnv))
	case p.APIKeyFile != "":
		contents, err := os.ReadFile(p.APIKeyFile)
		if err != nil {
			return fmt.Errorf("read api_key_file: %w", err)
		}
		p.APIKey = strings.TrimSpace(string(contents))
	}
	// The provider accepts unauthenticated calls at reduced rate limits, so a
	// missing key is allowed.
	return nil
}

func (a *AdminConfig) normalise() error {
	if a == nil {
		return fmt.Errorf("admin configuration missing")
	}
	token := strings.TrimSpace(a.BearerToken)
	if path := strings.TrimSpace(a.BearerTokenFile); path != "" {
		contents, err := os.ReadFile(path)
		if err != nil {
			return fmt.Errorf("read bearer_token_file: %w", err)
		}
		token = strings.TrimSpace(string(contents))
	}
	a.BearerToken = token
	return nil
}

func validate(cfg Config) error {
	if strings.TrimSpace(cfg.Ledger.RPCEndpoint) == "" {
		return fmt.Errorf("ledger rpc_endpoint is required")
	}
	if strings.TrimSpace(cfg.Ledger.ContractID) == "" {
		return fmt.Errorf("ledger contract_id is required")
	}
	if cfg.Oracle.AccountID == "" {
		return fmt.Errorf("oracle account_id is required")
	}
	if cfg.Provider.BaseURL == "" {
		return fmt.Errorf("provider base_url is required")
	}
	if cfg.Admin.BearerToken == "" {
		return fmt.Errorf("admin bearer_token is required")
	}
	return nil
}
