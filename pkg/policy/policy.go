// Package policy holds the tunable thresholds every other package reads
// from (spec.md §6): confidence floors, attempt budgets, error budgets,
// rate limits, sandbox isolation level, risk escalation settings, cascade
// depth, memory sizing, and watchdog thresholds.
//
// Configuration follows the teacher's three-layer precedence (defaults →
// environment variables → functional options), generalized from
// core.Config's struct-tag/env pattern into a single flat Policy struct
// since the decision engine has no HTTP/discovery/telemetry sub-configs of
// its own.
package policy

import (
	"fmt"
	"os"
	"strconv"
	"strings"

	"gopkg.in/yaml.v3"
)

// Policy is the full set of tunables the engine, breaker, cascade tracker,
// risk observer, rate limiter, memory ring, and watchdog read from.
type Policy struct {
	SyntaxConfFloor float64 `yaml:"syntax_conf_floor" env:"SELFHEAL_SYNTAX_CONF_FLOOR" default:"0.30"`
	LogicConfFloor  float64 `yaml:"logic_conf_floor" env:"SELFHEAL_LOGIC_CONF_FLOOR" default:"0.25"`

	MaxSyntaxAttempts int `yaml:"max_syntax_attempts" env:"SELFHEAL_MAX_SYNTAX_ATTEMPTS" default:"5"`
	MaxLogicAttempts  int `yaml:"max_logic_attempts" env:"SELFHEAL_MAX_LOGIC_ATTEMPTS" default:"7"`

	SyntaxErrorBudget float64 `yaml:"syntax_error_budget" env:"SELFHEAL_SYNTAX_ERROR_BUDGET" default:"0.10"`
	LogicErrorBudget  float64 `yaml:"logic_error_budget" env:"SELFHEAL_LOGIC_ERROR_BUDGET" default:"0.20"`

	RateLimitPerMin int `yaml:"rate_limit_per_min" env:"SELFHEAL_RATE_LIMIT_PER_MIN" default:"15"`

	SandboxIsolation string `yaml:"sandbox_isolation" env:"SELFHEAL_SANDBOX_ISOLATION" default:"full"`

	RequireHumanOnRisky bool     `yaml:"require_human_on_risky" env:"SELFHEAL_REQUIRE_HUMAN_ON_RISKY" default:"true"`
	RiskyKeywords       []string `yaml:"risky_keywords" env:"SELFHEAL_RISKY_KEYWORDS"`

	MaxCascadeDepth int `yaml:"max_cascade_depth" env:"SELFHEAL_MAX_CASCADE_DEPTH" default:"5"`

	MemoryMax   int   `yaml:"memory_max" env:"SELFHEAL_MEMORY_MAX" default:"500"`
	MemoryTTLMS int64 `yaml:"memory_ttl_ms" env:"SELFHEAL_MEMORY_TTL_MS" default:"604800000"`

	WallThresholdMS     int64 `yaml:"wall_threshold_ms" env:"SELFHEAL_WALL_THRESHOLD_MS" default:"5000"`
	CPUThresholdPercent int64 `yaml:"cpu_threshold_percent" env:"SELFHEAL_CPU_THRESHOLD_PERCENT" default:"90"`
}

// defaultRiskyKeywords is spec.md §6's risky_keywords default.
var defaultRiskyKeywords = []string{"schema_change", "auth_bypass", "production_data_modification"}

// Default returns the policy with every spec.md §6 default applied.
func Default() *Policy {
	return &Policy{
		SyntaxConfFloor:     0.30,
		LogicConfFloor:      0.25,
		MaxSyntaxAttempts:   5,
		MaxLogicAttempts:    7,
		SyntaxErrorBudget:   0.10,
		LogicErrorBudget:    0.20,
		RateLimitPerMin:     15,
		SandboxIsolation:    "full",
		RequireHumanOnRisky: true,
		RiskyKeywords:       append([]string(nil), defaultRiskyKeywords...),
		MaxCascadeDepth:     5,
		MemoryMax:           500,
		MemoryTTLMS:         7 * 24 * 3600 * 1000,
		WallThresholdMS:     5000,
		CPUThresholdPercent: 90,
	}
}

// Option mutates a Policy being built by New; an error aborts construction.
type Option func(*Policy) error

// LoadFromEnv overrides p's fields from SELFHEAL_* environment variables
// where present, mirroring core.Config.LoadFromEnv's "set only if present"
// discipline.
func (p *Policy) LoadFromEnv() error {
	if v := os.Getenv("SELFHEAL_SYNTAX_CONF_FLOOR"); v != "" {
		f, err := strconv.ParseFloat(v, 64)
		if err != nil {
			return fmt.Errorf("SELFHEAL_SYNTAX_CONF_FLOOR: %w", err)
		}
		p.SyntaxConfFloor = f
	}
	if v := os.Getenv("SELFHEAL_LOGIC_CONF_FLOOR"); v != "" {
		f, err := strconv.ParseFloat(v, 64)
		if err != nil {
			return fmt.Errorf("SELFHEAL_LOGIC_CONF_FLOOR: %w", err)
		}
		p.LogicConfFloor = f
	}
	if v := os.Getenv("SELFHEAL_MAX_SYNTAX_ATTEMPTS"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil {
			return fmt.Errorf("SELFHEAL_MAX_SYNTAX_ATTEMPTS: %w", err)
		}
		p.MaxSyntaxAttempts = n
	}
	if v := os.Getenv("SELFHEAL_MAX_LOGIC_ATTEMPTS"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil {
			return fmt.Errorf("SELFHEAL_MAX_LOGIC_ATTEMPTS: %w", err)
		}
		p.MaxLogicAttempts = n
	}
	if v := os.Getenv("SELFHEAL_SYNTAX_ERROR_BUDGET"); v != "" {
		f, err := strconv.ParseFloat(v, 64)
		if err != nil {
			return fmt.Errorf("SELFHEAL_SYNTAX_ERROR_BUDGET: %w", err)
		}
		p.SyntaxErrorBudget = f
	}
	if v := os.Getenv("SELFHEAL_LOGIC_ERROR_BUDGET"); v != "" {
		f, err := strconv.ParseFloat(v, 64)
		if err != nil {
			return fmt.Errorf("SELFHEAL_LOGIC_ERROR_BUDGET: %w", err)
		}
		p.LogicErrorBudget = f
	}
	if v := os.Getenv("SELFHEAL_RATE_LIMIT_PER_MIN"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil {
			return fmt.Errorf("SELFHEAL_RATE_LIMIT_PER_MIN: %w", err)
		}
		p.RateLimitPerMin = n
	}
	if v := os.Getenv("SELFHEAL_SANDBOX_ISOLATION"); v != "" {
		p.SandboxIsolation = v
	}
	if v := os.Getenv("SELFHEAL_REQUIRE_HUMAN_ON_RISKY"); v != "" {
		p.RequireHumanOnRisky = parseBool(v)
	}
	if v := os.Getenv("SELFHEAL_RISKY_KEYWORDS"); v != "" {
		p.RiskyKeywords = parseStringList(v)
	}
	if v := os.Getenv("SELFHEAL_MAX_CASCADE_DEPTH"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil {
			return fmt.Errorf("SELFHEAL_MAX_CASCADE_DEPTH: %w", err)
		}
		p.MaxCascadeDepth = n
	}
	if v := os.Getenv("SELFHEAL_MEMORY_MAX"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil {
			return fmt.Errorf("SELFHEAL_MEMORY_MAX: %w", err)
		}
		p.MemoryMax = n
	}
	if v := os.Getenv("SELFHEAL_MEMORY_TTL_MS"); v != "" {
		n, err := strconv.ParseInt(v, 10, 64)
		if err != nil {
			return fmt.Errorf("SELFHEAL_MEMORY_TTL_MS: %w", err)
		}
		p.MemoryTTLMS = n
	}
	if v := os.Getenv("SELFHEAL_WALL_THRESHOLD_MS"); v != "" {
		n, err := strconv.ParseInt(v, 10, 64)
		if err != nil {
			return fmt.Errorf("SELFHEAL_WALL_THRESHOLD_MS: %w", err)
		}
		p.WallThresholdMS = n
	}
	if v := os.Getenv("SELFHEAL_CPU_THRESHOLD_PERCENT"); v != "" {
		n, err := strconv.ParseInt(v, 10, 64)
		if err != nil {
			return fmt.Errorf("SELFHEAL_CPU_THRESHOLD_PERCENT: %w", err)
		}
		p.CPUThresholdPercent = n
	}
	return nil
}

func parseStringList(s string) []string {
	parts := strings.Split(s, ",")
	out := make([]string, 0, len(parts))
	for _, part := range parts {
		if trimmed := strings.TrimSpace(part); trimmed != "" {
			out = append(out, trimmed)
		}
	}
	return out
}

func parseBool(s string) bool {
	s = strings.ToLower(strings.TrimSpace(s))
	return s == "true" || s == "1" || s == "yes" || s == "on"
}

// Validate rejects a Policy with values that would make the engine
// behave nonsensically.
func (p *Policy) Validate() error {
	if p.SyntaxConfFloor < 0 || p.SyntaxConfFloor > 1 {
		return fmt.Errorf("syntax_conf_floor out of range: %v", p.SyntaxConfFloor)
	}
	if p.LogicConfFloor < 0 || p.LogicConfFloor > 1 {
		return fmt.Errorf("logic_conf_floor out of range: %v", p.LogicConfFloor)
	}
	if p.MaxSyntaxAttempts < 1 {
		return fmt.Errorf("max_syntax_attempts must be >= 1: %d", p.MaxSyntaxAttempts)
	}
	if p.MaxLogicAttempts < 1 {
		return fmt.Errorf("max_logic_attempts must be >= 1: %d", p.MaxLogicAttempts)
	}
	if p.RateLimitPerMin < 1 {
		return fmt.Errorf("rate_limit_per_min must be >= 1: %d", p.RateLimitPerMin)
	}
	if p.MaxCascadeDepth < 1 {
		return fmt.Errorf("max_cascade_depth must be >= 1: %d", p.MaxCascadeDepth)
	}
	if p.MemoryMax < 1 {
		return fmt.Errorf("memory_max must be >= 1: %d", p.MemoryMax)
	}
	return nil
}

// WithSyntaxBudget overrides the syntax attempt budget and error rate.
func WithSyntaxBudget(maxAttempts int, errorBudget float64) Option {
	return func(p *Policy) error {
		p.MaxSyntaxAttempts = maxAttempts
		p.SyntaxErrorBudget = errorBudget
		return nil
	}
}

// WithLogicBudget overrides the logic attempt budget and error rate.
func WithLogicBudget(maxAttempts int, errorBudget float64) Option {
	return func(p *Policy) error {
		p.MaxLogicAttempts = maxAttempts
		p.LogicErrorBudget = errorBudget
		return nil
	}
}

// WithConfFloors overrides both class confidence floors.
func WithConfFloors(syntax, logic float64) Option {
	return func(p *Policy) error {
		p.SyntaxConfFloor = syntax
		p.LogicConfFloor = logic
		return nil
	}
}

// WithRateLimit overrides rate_limit_per_min.
func WithRateLimit(perMin int) Option {
	return func(p *Policy) error {
		p.RateLimitPerMin = perMin
		return nil
	}
}

// WithSandboxIsolation overrides the isolation level string passed
// verbatim to the sandbox port.
func WithSandboxIsolation(level string) Option {
	return func(p *Policy) error {
		p.SandboxIsolation = level
		return nil
	}
}

// WithRiskyKeywords overrides the case-insensitive risky substring set
// and whether a match forces HumanReview.
func WithRiskyKeywords(requireHuman bool, keywords []string) Option {
	return func(p *Policy) error {
		p.RequireHumanOnRisky = requireHuman
		p.RiskyKeywords = keywords
		return nil
	}
}

// WithCascadeDepth overrides max_cascade_depth.
func WithCascadeDepth(depth int) Option {
	return func(p *Policy) error {
		p.MaxCascadeDepth = depth
		return nil
	}
}

// WithMemory overrides memory_max and memory_ttl_ms.
func WithMemory(max int, ttlMS int64) Option {
	return func(p *Policy) error {
		p.MemoryMax = max
		p.MemoryTTLMS = ttlMS
		return nil
	}
}

// WithWatchdog overrides wall_threshold_ms and cpu_threshold_percent.
func WithWatchdog(wallMS, cpuPercent int64) Option {
	return func(p *Policy) error {
		p.WallThresholdMS = wallMS
		p.CPUThresholdPercent = cpuPercent
		return nil
	}
}

// WithYAMLFile loads a YAML policy file, overriding matching fields.
func WithYAMLFile(path string) Option {
	return func(p *Policy) error {
		return p.loadYAMLFile(path)
	}
}

func (p *Policy) loadYAMLFile(path string) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("read policy file %s: %w", path, err)
	}
	if err := yaml.Unmarshal(data, p); err != nil {
		return fmt.Errorf("parse policy file %s: %w", path, err)
	}
	return nil
}

// New builds a Policy applying, in order: defaults, environment variables,
// then functional options (highest priority), then validates the result.
func New(opts ...Option) (*Policy, error) {
	p := Default()

	if err := p.LoadFromEnv(); err != nil {
		return nil, fmt.Errorf("policy: load env: %w", err)
	}

	for _, opt := range opts {
		if err := opt(p); err != nil {
			return nil, fmt.Errorf("policy: apply option: %w", err)
		}
	}

	if err := p.Validate(); err != nil {
		return nil, fmt.Errorf("policy: invalid: %w", err)
	}

	return p, nil
}

// PresetSOTA targets a high-capability advisor model: generous attempt
// budgets and looser error tolerance, since a stronger model's proposals
// are worth retrying further before giving up.
func PresetSOTA() *Policy {
	p := Default()
	p.MaxSyntaxAttempts = 8
	p.MaxLogicAttempts = 10
	p.SyntaxErrorBudget = 0.15
	p.LogicErrorBudget = 0.25
	p.SyntaxConfFloor = 0.25
	p.LogicConfFloor = 0.20
	return p
}

// PresetMidTier is spec.md §6's defaults verbatim, calibrated for a
// mid-capability advisor model.
func PresetMidTier() *Policy {
	return Default()
}

// PresetLocalSmall targets a small, locally-hosted advisor model: tighter
// budgets and stricter confidence floors, since a weaker model's
// proposals should be cut off sooner.
func PresetLocalSmall() *Policy {
	p := Default()
	p.MaxSyntaxAttempts = 3
	p.MaxLogicAttempts = 4
	p.SyntaxErrorBudget = 0.05
	p.LogicErrorBudget = 0.10
	p.SyntaxConfFloor = 0.40
	p.LogicConfFloor = 0.35
	return p
}
