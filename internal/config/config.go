package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"

	alarmapp "groundstation-safety/internal/alarms/application"
	alarms "groundstation-safety/internal/alarms/domain"
)

// EnvConfigPath names the variable holding the YAML config path.
const EnvConfigPath = "GS_CONFIG"

// Config is the ground station service configuration.
type Config struct {
	HTTPAddr       string         `yaml:"http_addr"`
	PropertiesFile string         `yaml:"properties_file"`
	Auth           AuthConfig     `yaml:"auth"`
	MQTT           MQTTConfig     `yaml:"mqtt"`
	Redis          RedisConfig    `yaml:"redis"`
	Journal        JournalConfig  `yaml:"journal"`
	Alarms         AlarmsConfig   `yaml:"alarms"`
	Brake          BrakeConfig    `yaml:"brake"`
	Commands       CommandsConfig `yaml:"commands"`
}

type AuthConfig struct {
	JWTSecret     string        `yaml:"jwt_secret"`
	IngestSecret  string        `yaml:"ingest_secret"`
	IngestMaxSkew time.Duration `yaml:"ingest_max_skew"`
}

type MQTTConfig struct {
	Broker         string `yaml:"broker"`
	ClientID       string `yaml:"client_id"`
	TelemetryTopic string `yaml:"telemetry_topic"`
	CommandTopic   string `yaml:"command_topic"`
	QoS            int    `yaml:"qos"`
}

type RedisConfig struct {
	Addr      string        `yaml:"addr"`
	Password  string        `yaml:"password"`
	DB        int           `yaml:"db"`
	KeyPrefix string        `yaml:"key_prefix"`
	TTL       time.Duration `yaml:"ttl"`
}

type JournalConfig struct {
	Driver string `yaml:"driver"`
	DSN    string `yaml:"dsn"`
}

type AlarmsConfig struct {
	TemperatureThreshold float64             `yaml:"temperature_threshold"`
	AllowSourceRemoval   bool                `yaml:"allow_source_removal"`
	LabelVersion         string              `yaml:"label_version"`
	LabelTables          map[string][]string `yaml:"label_tables"`
	LeviFaultLabels      []string            `yaml:"levi_fault_labels"`
	WebhookURL           string              `yaml:"webhook_url"`
	NotifyTemplate       string              `yaml:"notify_template"`
	NotifyDedupeWindow   time.Duration       `yaml:"notify_dedupe_window"`
	NotifyCooldown       time.Duration       `yaml:"notify_cooldown"`
	NotifyTimeout        time.Duration       `yaml:"notify_timeout"`
	NotifyMinSeverity    string              `yaml:"notify_min_severity"`
	EscalationAfter      time.Duration       `yaml:"escalation_after"`
	DashboardURL         string              `yaml:"dashboard_url"`
	StaleSweepInterval   time.Duration       `yaml:"stale_sweep_interval"`
}

type BrakeConfig struct {
	PressureSignal string `yaml:"pressure_signal"`
	ModeSignal     string `yaml:"mode_signal"`
	DeployedModes  []int  `yaml:"deployed_modes"`
}

type CommandsConfig struct {
	EmergencyCommand string        `yaml:"emergency_command"`
	Timeout          time.Duration `yaml:"timeout"`
	Allowed          []string      `yaml:"allowed"`
}

// Default returns the built-in configuration.
func Default() Config {
	engine := alarmapp.DefaultConfig()
	return Config{
		HTTPAddr: ":8080",
		Auth: AuthConfig{
			IngestMaxSkew: 5 * time.Minute,
		},
		MQTT: MQTTConfig{
			ClientID:       "groundstation-safety",
			TelemetryTopic: "vehicle/telemetry/#",
			CommandTopic:   "vehicle/commands",
			QoS:            1,
		},
		Redis: RedisConfig{
			KeyPrefix: "gs:signal:",
			TTL:       24 * time.Hour,
		},
		Journal: JournalConfig{
			Driver: "sqlite",
		},
		Alarms: AlarmsConfig{
			TemperatureThreshold: engine.TemperatureThreshold,
			LabelVersion:         alarms.DefaultLabelVersion,
			NotifyTimeout:        5 * time.Second,
			NotifyMinSeverity:    string(alarms.SeverityWarning),
			StaleSweepInterval:   time.Second,
		},
		Brake: BrakeConfig{
			PressureSignal: engine.Brake.PressureSignal,
			ModeSignal:     engine.Brake.ModeSignal,
			DeployedModes:  engine.Brake.DeployedModes,
		},
		Commands: CommandsConfig{
			EmergencyCommand: engine.Brake.EmergencyCommand,
			Timeout:          engine.CommandTimeout,
			Allowed:          []string{engine.Brake.EmergencyCommand},
		},
	}
}

// Load reads defaults, then the YAML file at path (when non-empty), then
// environment overrides, and validates the result.
func Load(path string) (*Config, error) {
	cfg := Default()
	if path != "" {
		raw, err := os.ReadFile(path)
		if err != nil {
			return nil, err
		}
		if err := yaml.Unmarshal(raw, &cfg); err != nil {
			return nil, fmt.Errorf("config: %s: %w", path, err)
		}
	}
	cfg.applyEnv(os.Getenv)
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// LoadFromEnv loads the file named by GS_CONFIG, if any.
func LoadFromEnv() (*Config, error) {
	return Load(os.Getenv(EnvConfigPath))
}

func (c *Config) applyEnv(getenv func(string) string) {
	env := envReader(getenv)
	c.HTTPAddr = env.str("HTTP_ADDR", c.HTTPAddr)
	c.PropertiesFile = env.str("GS_PROPERTIES_FILE", c.PropertiesFile)
	c.Auth.JWTSecret = env.str("AUTH_JWT_SECRET", env.str("JWT_SECRET", c.Auth.JWTSecret))
	c.Auth.IngestSecret = env.str("INGEST_HMAC_SECRET", c.Auth.IngestSecret)
	c.Auth.IngestMaxSkew = env.duration("INGEST_MAX_SKEW", c.Auth.IngestMaxSkew)
	c.MQTT.Broker = env.str("MQTT_BROKER", c.MQTT.Broker)
	c.MQTT.ClientID = env.str("MQTT_CLIENT_ID", c.MQTT.ClientID)
	c.Redis.Addr = env.str("REDIS_ADDR", c.Redis.Addr)
	c.Redis.Password = env.str("REDIS_PASSWORD", c.Redis.Password)
	c.Redis.DB = env.integer("REDIS_DB", c.Redis.DB)
	c.Journal.Driver = env.str("JOURNAL_DRIVER", c.Journal.Driver)
	c.Journal.DSN = env.str("JOURNAL_DSN", env.str("DATABASE_URL", c.Journal.DSN))
	c.Alarms.WebhookURL = env.str("ALARM_WEBHOOK_URL", c.Alarms.WebhookURL)
	c.Alarms.NotifyTemplate = env.str("ALARM_NOTIFY_TEMPLATE", c.Alarms.NotifyTemplate)
	c.Alarms.NotifyDedupeWindow = env.duration("ALARM_NOTIFY_DEDUP_WINDOW", c.Alarms.NotifyDedupeWindow)
	c.Alarms.NotifyCooldown = env.duration("ALARM_NOTIFY_COOLDOWN", c.Alarms.NotifyCooldown)
	c.Alarms.EscalationAfter = env.duration("ALARM_ESCALATION_AFTER", c.Alarms.EscalationAfter)
	c.Alarms.AllowSourceRemoval = env.boolean("ALARM_ALLOW_SOURCE_REMOVAL", c.Alarms.AllowSourceRemoval)
	c.Alarms.LabelVersion = env.str("ALARM_LABEL_VERSION", c.Alarms.LabelVersion)
}

// Validate checks the configuration.
func (c *Config) Validate() error {
	if c.HTTPAddr == "" {
		return errors.New("config: http_addr is required")
	}
	if c.MQTT.QoS < 0 || c.MQTT.QoS > 2 {
		return fmt.Errorf("config: mqtt.qos must be 0, 1 or 2, got %d", c.MQTT.QoS)
	}
	if c.MQTT.Broker != "" && (c.MQTT.TelemetryTopic == "" || c.MQTT.CommandTopic == "") {
		return errors.New("config: mqtt topics are required when a broker is set")
	}
	switch strings.ToLower(c.Journal.Driver) {
	case "sqlite", "sqlite3", "pgx", "postgres", "postgresql":
	default:
		return fmt.Errorf("config: unsupported journal.driver %q", c.Journal.Driver)
	}
	if c.Alarms.StaleSweepInterval < 0 {
		return errors.New("config: alarms.stale_sweep_interval must not be negative")
	}
	if c.Alarms.NotifyMinSeverity != "" && !validSeverity(c.Alarms.NotifyMinSeverity) {
		return fmt.Errorf("config: unknown alarms.notify_min_severity %q", c.Alarms.NotifyMinSeverity)
	}
	if _, err := c.EngineConfig(); err != nil {
		return err
	}
	return nil
}

// EngineConfig builds the escalation engine configuration.
func (c *Config) EngineConfig() (alarmapp.Config, error) {
	out := alarmapp.DefaultConfig()
	out.TemperatureThreshold = c.Alarms.TemperatureThreshold
	out.LeviFaultLabels = c.Alarms.LeviFaultLabels

	tables := alarms.DefaultLabelTables()
	for version, labels := range c.Alarms.LabelTables {
		tables[version] = alarms.LabelTable{Version: version, Labels: labels}
	}
	version := c.Alarms.LabelVersion
	if version == "" {
		version = alarms.DefaultLabelVersion
	}
	labels, err := tables.Select(version)
	if err != nil {
		return alarmapp.Config{}, fmt.Errorf("config: alarms.label_version: %w", err)
	}
	out.Labels = labels

	if c.Brake.PressureSignal != "" {
		out.Brake.PressureSignal = c.Brake.PressureSignal
	}
	if c.Brake.ModeSignal != "" {
		out.Brake.ModeSignal = c.Brake.ModeSignal
	}
	if len(c.Brake.DeployedModes) > 0 {
		out.Brake.DeployedModes = c.Brake.DeployedModes
	}
	if c.Commands.EmergencyCommand != "" {
		out.Brake.EmergencyCommand = c.Commands.EmergencyCommand
	}
	if c.Commands.Timeout > 0 {
		out.CommandTimeout = c.Commands.Timeout
	}
	if err := out.Validate(); err != nil {
		return alarmapp.Config{}, err
	}
	return out, nil
}

func validSeverity(value string) bool {
	switch alarms.Severity(value) {
	case alarms.SeverityInfo, alarms.SeverityWarning, alarms.SeverityError, alarms.SeverityCritical:
		return true
	}
	return false
}

type envReader func(string) string

func (g envReader) str(key, fallback string) string {
	value := g(key)
	if value == "" {
		return fallback
	}
	return value
}

func (g envReader) integer(key string, fallback int) int {
	value := g(key)
	if value == "" {
		return fallback
	}
	parsed, err := strconv.Atoi(value)
	if err != nil {
		return fallback
	}
	return parsed
}

func (g envReader) duration(key string, fallback time.Duration) time.Duration {
	value := g(key)
	if value == "" {
		return fallback
	}
	parsed, err := time.ParseDuration(value)
	if err != nil {
		return fallback
	}
	return parsed
}

func (g envReader) boolean(key string, fallback bool) bool {
	value := g(key)
	if value == "" {
		return fallback
	}
	parsed, err := strconv.ParseBool(value)
	if err != nil {
		return fallback
	}
	return parsed
}
