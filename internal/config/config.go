package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"gopkg.in/yaml.v3"

	"operador/internal/domain"
)

// Config models operador.yml.
type Config struct {
	Server struct {
		Addr               string `yaml:"addr"`
		BasePath           string `yaml:"base_path"`
		RateLimitPerMinute int    `yaml:"rate_limit_per_minute"`
	} `yaml:"server"`
	Auth struct {
		Mode          string `yaml:"mode"`
		DefaultUserID int64  `yaml:"default_user_id"`
		DefaultEmail  string `yaml:"default_email"`
		JWTSecret     string `yaml:"jwt_secret"`
		TokenTTLHours int    `yaml:"token_ttl_hours"`
	} `yaml:"auth"`
	Clock struct {
		Timezone string `yaml:"timezone"`
	} `yaml:"clock"`
	Log    Log `yaml:"log"`
	Ritual struct {
		ActionSeconds int  `yaml:"action_seconds"`
		RecordNotDone bool `yaml:"record_not_done"`
	} `yaml:"ritual"`
	Redis struct {
		Addr           string `yaml:"addr"`
		Password       string `yaml:"password"`
		DB             int    `yaml:"db"`
		LockTTLSeconds int    `yaml:"lock_ttl_seconds"`
	} `yaml:"redis"`
	Agents struct {
		Model  string `yaml:"model"`
		APIKey string `yaml:"api_key"`
	} `yaml:"agents"`
	Webhooks []Webhook                `yaml:"webhooks"`
	Missions []domain.MissionTemplate `yaml:"missions"`
}

type Log struct {
	Level      string `yaml:"level"`
	Path       string `yaml:"path"`
	MaxSizeMB  int    `yaml:"max_size_mb"`
	MaxBackups int    `yaml:"max_backups"`
	MaxAgeDays int    `yaml:"max_age_days"`
	Compress   bool   `yaml:"compress"`
}

type Webhook struct {
	URL            string   `yaml:"url"`
	Events         []string `yaml:"events"`
	Secret         string   `yaml:"secret"`
	TimeoutSeconds int      `yaml:"timeout_seconds"`
	Enabled        *bool    `yaml:"enabled"`
}

const (
	AuthSingle = "single"
	AuthToken  = "token"
)

// ActionDuration is the ritual countdown length.
func (c *Config) ActionDuration() time.Duration {
	return time.Duration(c.Ritual.ActionSeconds) * time.Second
}

// TokenTTL is the lifetime of issued session tokens.
func (c *Config) TokenTTL() time.Duration {
	return time.Duration(c.Auth.TokenTTLHours) * time.Hour
}

// Validate ensures the config meets required structure.
func (c *Config) Validate() error {
	switch c.Auth.Mode {
	case AuthSingle:
		if c.Auth.DefaultUserID <= 0 {
			return fmt.Errorf("config.auth.default_user_id must be positive in single mode")
		}
	case AuthToken:
		if strings.TrimSpace(c.Auth.JWTSecret) == "" {
			return fmt.Errorf("config.auth.jwt_secret is required in token mode")
		}
	default:
		return fmt.Errorf("config.auth.mode must be 'single' or 'token', got %q", c.Auth.Mode)
	}
	if c.Auth.TokenTTLHours <= 0 {
		return fmt.Errorf("config.auth.token_ttl_hours must be positive")
	}
	if c.Server.BasePath != "" && !strings.HasPrefix(c.Server.BasePath, "/") {
		return fmt.Errorf("config.server.base_path must start with /")
	}
	if c.Server.RateLimitPerMinute < 0 {
		return fmt.Errorf("config.server.rate_limit_per_minute must not be negative")
	}
	if c.Clock.Timezone != "" {
		if _, err := time.LoadLocation(c.Clock.Timezone); err != nil {
			return fmt.Errorf("config.clock.timezone: %w", err)
		}
	}
	switch strings.ToLower(c.Log.Level) {
	case "", "debug", "info", "warn", "error":
	default:
		return fmt.Errorf("config.log.level %q is not one of debug, info, warn, error", c.Log.Level)
	}
	if c.Ritual.ActionSeconds <= 0 {
		return fmt.Errorf("config.ritual.action_seconds must be positive")
	}
	for i, wh := range c.Webhooks {
		if strings.TrimSpace(wh.URL) == "" {
			return fmt.Errorf("config.webhooks[%d].url is required", i)
		}
		if wh.TimeoutSeconds < 0 {
			return fmt.Errorf("config.webhooks[%d].timeout_seconds must not be negative", i)
		}
	}
	if len(c.Missions) != domain.MissionCount {
		return fmt.Errorf("config.missions must list exactly %d missions, got %d", domain.MissionCount, len(c.Missions))
	}
	seen := map[int]bool{}
	for _, m := range c.Missions {
		if m.Number < 1 || m.Number > domain.MissionCount {
			return fmt.Errorf("config.missions number %d out of range 1..%d", m.Number, domain.MissionCount)
		}
		if seen[m.Number] {
			return fmt.Errorf("config.missions number %d repeated", m.Number)
		}
		seen[m.Number] = true
		if m.Title == "" {
			return fmt.Errorf("config.missions[%d].title is required", m.Number)
		}
		if m.RequiredStreak < 0 {
			return fmt.Errorf("config.missions[%d].required_streak must not be negative", m.Number)
		}
	}
	return nil
}

// Path returns the config file path for a workspace.
func Path(workspace string) string {
	if workspace == "" {
		workspace = "."
	}
	return filepath.Join(workspace, "operador.yml")
}

// GenerateDefault returns default config YAML.
func GenerateDefault() string {
	return defaultTemplate
}

// Load reads and validates config from workspace.
func Load(workspace string) (*Config, error) {
	path := Path(workspace)
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, fmt.Errorf("config %s not found; create it with operador init", path)
		}
		return nil, err
	}
	return FromYAML(data)
}

// LoadOptional falls back to Default when the config file does not exist.
func LoadOptional(workspace string) (*Config, error) {
	data, err := os.ReadFile(Path(workspace))
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
	if err := yaml.Unmarshal([]byte(defaultTemplate), &cfg); err != nil {
		panic(fmt.Sprintf("default config template: %v", err))
	}
	return &cfg
}

// FromYAML parses and validates config from raw YAML bytes. Keys missing
// from data keep their default values.
func FromYAML(data []byte) (*Config, error) {
	cfg := Default()
	missions := cfg.Missions
	cfg.Missions = nil
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("invalid config yaml: %w", err)
	}
	if len(cfg.Missions) == 0 {
		cfg.Missions = missions
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

const defaultTemplate = `server:
  addr: 127.0.0.1:8080
  base_path: /v1
  rate_limit_per_minute: 120

auth:
  mode: single
  default_user_id: 1
  default_email: operador@localhost
  jwt_secret: ""
  token_ttl_hours: 168

clock:
  timezone: UTC

log:
  level: info
  path: ""
  max_size_mb: 50
  max_backups: 5
  max_age_days: 30
  compress: true

ritual:
  action_seconds: 900
  record_not_done: true

redis:
  addr: ""
  password: ""
  db: 0
  lock_ttl_seconds: 10

agents:
  model: gemini-2.0-flash
  api_key: ""

webhooks: []

missions:
  - number: 1
    title: "Corte de Ruído"
    objective: "Criar um vácuo operacional de 7 dias"
    minimal_action: "Identificar e cortar 3 fontes de ruído por 24h"
    repetition_rule: "Manter o corte por 7 dias seguidos"
    completion_criteria: "Registro binário FEITO por 7 dias consecutivos"
    silent_penalty: "Não avança para a Missão 2"
    required_streak: 7
  - number: 2
    title: "Visão Macro"
    objective: "Desmontar para entender"
    minimal_action: "Mapear 1 área de vida em 3 dimensões"
    repetition_rule: "Repetir por 7 dias"
    completion_criteria: "Visão clara de 1 área"
    silent_penalty: "Não destrava próxima"
    required_streak: 7
  - number: 3
    title: "Operação Diária"
    objective: "Repetição sem recompensa imediata"
    minimal_action: "Executar a Ação Mínima de 15 minutos"
    repetition_rule: "Todos os dias por 7 dias"
    completion_criteria: "7 dias consecutivos FEITO"
    silent_penalty: "Sem mensagem motivacional"
    required_streak: 7
  - number: 4
    title: "Autonomia e Saída"
    objective: "Operar sozinho"
    minimal_action: "Revisar padrão estabelecido"
    repetition_rule: "Revisão semanal"
    completion_criteria: "Autonomia detectada"
    silent_penalty: "Sem suporte"
    required_streak: 7
`
