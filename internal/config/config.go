package config

import (
	"bytes"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"gopkg.in/yaml.v3"

	"riskline/internal/domain"
)

// Config models riskline.yml.
type Config struct {
	Risk struct {
		Weights          domain.RiskWeights `yaml:"weights"`
		ProposeThreshold float64            `yaml:"propose_threshold"`
	} `yaml:"risk"`
	Constraints struct {
		RampUpDays int `yaml:"ramp_up_days"`
		UrgentDays int `yaml:"urgent_days"`
	} `yaml:"constraints"`
	Simulation struct {
		Trials        int                                         `yaml:"trials"`
		Seed          *int64                                      `yaml:"seed"`
		Distributions map[domain.Intervention]domain.Distribution `yaml:"distributions"`
	} `yaml:"simulation"`
	Team struct {
		MaxSize int                           `yaml:"max_size"`
		Roles   map[string]domain.RoleProfile `yaml:"roles"`
	} `yaml:"team"`
	Finance struct {
		DevDayCost  float64 `yaml:"dev_day_cost"`
		HireDayCost float64 `yaml:"hire_day_cost"`
		HireDays    int     `yaml:"hire_days"`
		BudgetDays  int     `yaml:"budget_days"`
	} `yaml:"finance"`
	Explain struct {
		Provider  string `yaml:"provider"`
		Model     string `yaml:"model"`
		BaseURL   string `yaml:"base_url"`
		APIKeyEnv string `yaml:"api_key_env"`
		Timeout   string `yaml:"timeout"`
	} `yaml:"explain"`
	Cache struct {
		TTL string `yaml:"ttl"`
	} `yaml:"cache"`
	Log struct {
		Level  string `yaml:"level"`
		Format string `yaml:"format"`
	} `yaml:"log"`
}

// Load reads and validates config from workspace.
func Load(workspace string) (*Config, error) {
	path := Path(workspace)
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, fmt.Errorf("config %s not found; create one with rl init", path)
		}
		return nil, err
	}
	return FromYAML(data)
}

// Validate ensures the config meets required structure.
func (c *Config) Validate() error {
	w := c.Risk.Weights
	if w.BlockedDependency < 0 || w.HighPriorityBonus < 0 || w.OverdueTicket < 0 || w.DeadlineProximity < 0 {
		return fmt.Errorf("config.risk.weights must be non-negative")
	}
	if w.DeadlineWindowDays <= 0 {
		return fmt.Errorf("config.risk.weights.deadline_window_days must be positive")
	}
	if c.Risk.ProposeThreshold < 0 || c.Risk.ProposeThreshold > 1 {
		return fmt.Errorf("config.risk.propose_threshold must be within [0,1]")
	}
	if c.Constraints.RampUpDays <= 0 || c.Constraints.UrgentDays <= 0 {
		return fmt.Errorf("config.constraints thresholds must be positive")
	}
	if c.Simulation.Trials <= 0 {
		return fmt.Errorf("config.simulation.trials must be positive")
	}
	for _, action := range domain.Interventions {
		d, ok := c.Simulation.Distributions[action]
		if !ok {
			return fmt.Errorf("config.simulation.distributions missing %s", action)
		}
		if d.RiskReductionStd < 0 || d.CostPenaltyStd < 0 {
			return fmt.Errorf("distribution %s has negative stddev", action)
		}
	}
	for action := range c.Simulation.Distributions {
		if action.Index() < 0 {
			return fmt.Errorf("config.simulation.distributions: %w %q", domain.ErrUnknownIntervention, action)
		}
	}
	if len(c.Team.Roles) == 0 {
		return fmt.Errorf("config.team.roles is required")
	}
	for name, role := range c.Team.Roles {
		if strings.TrimSpace(name) == "" {
			return fmt.Errorf("config.team.roles contains empty role name")
		}
		if role.RampUpDays < 0 {
			return fmt.Errorf("role %s ramp_up_days must be non-negative", name)
		}
		if role.VelocityBoost <= 0 || role.CostPerDay <= 0 {
			return fmt.Errorf("role %s needs positive velocity_boost and cost_per_day", name)
		}
		if role.BlockedResolution < 0 || role.BlockedResolution > 1 {
			return fmt.Errorf("role %s blocked_resolution must be within [0,1]", name)
		}
	}
	if c.Team.MaxSize <= 0 {
		return fmt.Errorf("config.team.max_size must be positive")
	}
	if c.Finance.DevDayCost < 0 || c.Finance.HireDayCost < 0 || c.Finance.HireDays < 0 || c.Finance.BudgetDays < 0 {
		return fmt.Errorf("config.finance values must be non-negative")
	}
	switch c.Explain.Provider {
	case "", "none", "openai":
	default:
		return fmt.Errorf("config.explain.provider must be none or openai")
	}
	if c.Explain.Provider == "openai" && c.Explain.Model == "" {
		return fmt.Errorf("config.explain.model is required for provider openai")
	}
	if c.Explain.Timeout != "" {
		if _, err := time.ParseDuration(c.Explain.Timeout); err != nil {
			return fmt.Errorf("config.explain.timeout: %w", err)
		}
	}
	if c.Cache.TTL != "" {
		if _, err := time.ParseDuration(c.Cache.TTL); err != nil {
			return fmt.Errorf("config.cache.ttl: %w", err)
		}
	}
	switch strings.ToLower(c.Log.Level) {
	case "", "debug", "info", "warn", "warning", "error":
	default:
		return fmt.Errorf("config.log.level %q is not a log level", c.Log.Level)
	}
	switch c.Log.Format {
	case "", "text", "json":
	default:
		return fmt.Errorf("config.log.format must be text or json")
	}
	return nil
}

// ExplainTimeout returns the configured explainer timeout, 30s when unset.
func (c *Config) ExplainTimeout() time.Duration {
	if d, err := time.ParseDuration(c.Explain.Timeout); err == nil && d > 0 {
		return d
	}
	return 30 * time.Second
}

// CacheTTL returns the analysis cache lifetime; zero disables caching.
func (c *Config) CacheTTL() time.Duration {
	if c.Cache.TTL == "" {
		return 5 * time.Minute
	}
	d, _ := time.ParseDuration(c.Cache.TTL)
	return d
}

// Path returns the config file path for a workspace.
func Path(workspace string) string {
	if workspace == "" {
		workspace = "."
	}
	return filepath.Join(workspace, "riskline.yml")
}

// GenerateDefault returns default config YAML.
func GenerateDefault() string {
	return defaultTemplate
}

// LoadOptional returns the default config if the file does not exist.
func LoadOptional(workspace string) (*Config, error) {
	path := Path(workspace)
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return Default(), nil
		}
		return nil, err
	}
	return FromYAML(data)
}

// Default returns the built-in configuration.
func Default() *Config {
	var cfg Config
	_ = yaml.NewDecoder(bytes.NewBufferString(defaultTemplate)).Decode(&cfg)
	return &cfg
}

// FromYAML parses and validates config from raw YAML bytes. Sections left
// out of the document keep their defaults. A team.roles section replaces the
// default role table; simulation.distributions entries are merged per action.
func FromYAML(data []byte) (*Config, error) {
	cfg := Default()
	var team struct {
		Team struct {
			Roles map[string]domain.RoleProfile `yaml:"roles"`
		} `yaml:"team"`
	}
	if err := yaml.Unmarshal(data, &team); err != nil {
		return nil, fmt.Errorf("invalid config yaml: %w", err)
	}
	if team.Team.Roles != nil {
		cfg.Team.Roles = nil
	}
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("invalid config yaml: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// FromFile reads YAML config from the given path.
func FromFile(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	return FromYAML(data)
}

const defaultTemplate = `risk:
  weights:
    blocked_dependency: 0.4
    high_priority_bonus: 0.1
    overdue_ticket: 0.3
    deadline_proximity: 0.3
    deadline_window_days: 7
  propose_threshold: 0.4

constraints:
  ramp_up_days: 10
  urgent_days: 7

simulation:
  trials: 1000
  distributions:
    ADD_ENGINEER:        {rr_mean: 0.30, rr_std: 0.10, cp_mean: 0.20, cp_std: 0.05}
    ESCALATE_DEPENDENCY: {rr_mean: 0.40, rr_std: 0.12, cp_mean: 0.10, cp_std: 0.04}
    REDUCE_SCOPE:        {rr_mean: 0.50, rr_std: 0.15, cp_mean: 0.15, cp_std: 0.05}
    ACCEPT_DELAY:        {rr_mean: 0.00, rr_std: 0.02, cp_mean: 0.00, cp_std: 0.01}

team:
  max_size: 8
  roles:
    Senior Engineer: {velocity_boost: 0.20, ramp_up_days: 3, cost_per_day: 700, blocked_resolution: 0.15}
    Mid Engineer:    {velocity_boost: 0.12, ramp_up_days: 7, cost_per_day: 450, blocked_resolution: 0.05}
    Junior Engineer: {velocity_boost: 0.05, ramp_up_days: 14, cost_per_day: 250, blocked_resolution: 0.02}
    Tech Lead:       {velocity_boost: 0.10, ramp_up_days: 5, cost_per_day: 800, blocked_resolution: 0.25}
    QA Engineer:     {velocity_boost: 0.08, ramp_up_days: 5, cost_per_day: 400, blocked_resolution: 0.03}
    DevOps Engineer: {velocity_boost: 0.06, ramp_up_days: 5, cost_per_day: 550, blocked_resolution: 0.20}

finance:
  dev_day_cost: 800
  hire_day_cost: 1200
  hire_days: 30
  budget_days: 10

explain:
  provider: none
  model: gpt-4o-mini
  base_url: ""
  api_key_env: OPENAI_API_KEY
  timeout: 30s

cache:
  ttl: 5m

log:
  level: info
  format: text
`
