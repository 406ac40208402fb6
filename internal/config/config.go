package config

import (
	"fmt"
	"time"
)

// Config is the orchestrator process's top-level configuration,
// assembled by Load from a YAML/JSON5 file (with $include support, see
// loader.go) plus environment variable expansion.
type Config struct {
	Version int `yaml:"version"`

	Server   ServerConfig   `yaml:"server"`
	Jobs     JobsConfig     `yaml:"jobs"`
	Worker   WorkerConfig   `yaml:"worker"`
	Sandbox  SandboxConfig  `yaml:"sandbox"`
	Provider ProviderConfig `yaml:"provider"`
}

// ServerConfig controls the orchestrator's own HTTP listener.
type ServerConfig struct {
	ListenAddr string `yaml:"listen_addr"`
}

// JobsConfig tunes the §4.1 scheduler loop.
type JobsConfig struct {
	MaxIterations      int           `yaml:"max_iterations"`
	PerJobTimeout      time.Duration `yaml:"per_job_timeout"`
	StuckCheckInterval time.Duration `yaml:"stuck_check_interval"`
	MaxRepairAttempts  uint32        `yaml:"max_repair_attempts"`
}

// WorkerConfig controls the bearer tokens minted for sandboxed workers.
type WorkerConfig struct {
	// Secret signs worker tokens (HS256). Expected to come from the
	// environment via $ExpandEnv in the config file, e.g.
	// "${IRONCLAW_WORKER_SECRET}", never committed in plaintext.
	Secret string        `yaml:"secret"`
	TTL    time.Duration `yaml:"ttl"`
}

// SandboxConfig controls the §4.7 container job manager.
type SandboxConfig struct {
	Enabled     bool   `yaml:"enabled"`
	ProjectRoot string `yaml:"project_root"`
	Image       string `yaml:"image"`
}

// ProviderConfig lists the LLM provider legs tried in order by the
// failover chain. Credentials are read from environment variables at
// process construction time, never stored in the config file itself.
type ProviderConfig struct {
	Order []string `yaml:"order"`

	AnthropicModel string `yaml:"anthropic_model"`
	OpenAIModel    string `yaml:"openai_model"`
	BedrockModel   string `yaml:"bedrock_model"`
	BedrockRegion  string `yaml:"bedrock_region"`
}

// Default returns a Config populated with the scheduler's own
// conservative defaults (see jobs.DefaultConfig), a disabled sandbox,
// and an Anthropic-first provider order.
func Default() *Config {
	return &Config{
		Version: CurrentVersion,
		Server:  ServerConfig{ListenAddr: ":8080"},
		Jobs: JobsConfig{
			MaxIterations:      20,
			PerJobTimeout:      15 * time.Minute,
			StuckCheckInterval: 30 * time.Second,
			MaxRepairAttempts:  3,
		},
		Worker: WorkerConfig{TTL: 10 * time.Minute},
		Sandbox: SandboxConfig{
			Enabled:     false,
			ProjectRoot: "/var/lib/ironclaw/sandboxes",
			Image:       "ironclaw/worker:latest",
		},
		Provider: ProviderConfig{Order: []string{"anthropic", "openai", "bedrock"}},
	}
}

// Load reads path (resolving $include directives and $VAR expansion),
// decodes it strictly against Config's shape, validates its version,
// and fills in any zero-valued field from Default.
func Load(path string) (*Config, error) {
	raw, err := LoadRaw(path)
	if err != nil {
		return nil, fmt.Errorf("config: %w", err)
	}

	cfg, err := decodeRawConfig(raw)
	if err != nil {
		return nil, fmt.Errorf("config: %w", err)
	}

	if err := ValidateVersion(cfg.Version); err != nil {
		return nil, err
	}

	cfg.applyDefaults()
	return cfg, cfg.Validate()
}

func (c *Config) applyDefaults() {
	d := Default()
	if c.Server.ListenAddr == "" {
		c.Server.ListenAddr = d.Server.ListenAddr
	}
	if c.Jobs.MaxIterations == 0 {
		c.Jobs.MaxIterations = d.Jobs.MaxIterations
	}
	if c.Jobs.PerJobTimeout == 0 {
		c.Jobs.PerJobTimeout = d.Jobs.PerJobTimeout
	}
	if c.Jobs.StuckCheckInterval == 0 {
		c.Jobs.StuckCheckInterval = d.Jobs.StuckCheckInterval
	}
	if c.Jobs.MaxRepairAttempts == 0 {
		c.Jobs.MaxRepairAttempts = d.Jobs.MaxRepairAttempts
	}
	if c.Worker.TTL == 0 {
		c.Worker.TTL = d.Worker.TTL
	}
	if c.Sandbox.ProjectRoot == "" {
		c.Sandbox.ProjectRoot = d.Sandbox.ProjectRoot
	}
	if c.Sandbox.Image == "" {
		c.Sandbox.Image = d.Sandbox.Image
	}
	if len(c.Provider.Order) == 0 {
		c.Provider.Order = d.Provider.Order
	}
}

// Validate checks invariants Load's field-by-field defaulting can't
// express: a nonzero worker secret whenever sandboxing is enabled (a
// worker token can't be signed without one), and at least one provider
// in the failover order.
func (c *Config) Validate() error {
	if c.Sandbox.Enabled && c.Worker.Secret == "" {
		return fmt.Errorf("config: worker.secret is required when sandbox.enabled is true")
	}
	if len(c.Provider.Order) == 0 {
		return fmt.Errorf("config: provider.order must name at least one provider")
	}
	for _, name := range c.Provider.Order {
		switch name {
		case "anthropic", "openai", "bedrock":
		default:
			return fmt.Errorf("config: unknown provider %q in provider.order", name)
		}
	}
	return nil
}
