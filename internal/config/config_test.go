package config

import (
	"errors"
	"os"
	"path/filepath"
	"testing"
	"time"

	alarms "groundstation-safety/internal/alarms/domain"
)

func writeConfig(t *testing.T, data string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "config.yaml")
	if err := os.WriteFile(path, []byte(data), 0o600); err != nil {
		t.Fatalf("write config: %v", err)
	}
	return path
}

func TestLoadAppliesDefaults(t *testing.T) {
	path := writeConfig(t, `
http_addr: ":9090"
mqtt:
  broker: tcp://localhost:1883
alarms:
  temperature_threshold: 75
  stale_sweep_interval: 500ms
`)
	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("load config: %v", err)
	}
	if cfg.HTTPAddr != ":9090" {
		t.Fatalf("unexpected http addr %s", cfg.HTTPAddr)
	}
	if cfg.MQTT.TelemetryTopic != "vehicle/telemetry/#" {
		t.Fatalf("expected default telemetry topic, got %s", cfg.MQTT.TelemetryTopic)
	}
	if cfg.Alarms.StaleSweepInterval != 500*time.Millisecond {
		t.Fatalf("expected 500ms sweep, got %s", cfg.Alarms.StaleSweepInterval)
	}
	if cfg.Alarms.LabelVersion != alarms.DefaultLabelVersion {
		t.Fatalf("expected default label version, got %s", cfg.Alarms.LabelVersion)
	}
	engine, err := cfg.EngineConfig()
	if err != nil {
		t.Fatalf("engine config: %v", err)
	}
	if engine.TemperatureThreshold != 75 {
		t.Fatalf("expected threshold 75, got %v", engine.TemperatureThreshold)
	}
	if engine.Brake.EmergencyCommand != "EmergencyBrake" {
		t.Fatalf("unexpected emergency command %s", engine.Brake.EmergencyCommand)
	}
}

func TestLoadWithoutFile(t *testing.T) {
	cfg, err := Load("")
	if err != nil {
		t.Fatalf("load defaults: %v", err)
	}
	if cfg.Journal.Driver != "sqlite" {
		t.Fatalf("unexpected journal driver %s", cfg.Journal.Driver)
	}
}

func TestLabelTableSelection(t *testing.T) {
	path := writeConfig(t, `
alarms:
  label_version: v3
  label_tables:
    v3: [General, Propulsion, Levitation, BMS]
`)
	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("load config: %v", err)
	}
	engine, _ := cfg.EngineConfig()
	if engine.Labels.Version != "v3" || len(engine.Labels.Labels) != 4 {
		t.Fatalf("unexpected label table %+v", engine.Labels)
	}

	bad := writeConfig(t, "alarms:\n  label_version: v9\n")
	if _, err := Load(bad); !errors.Is(err, alarms.ErrInvalidLabelTable) {
		t.Fatalf("expected ErrInvalidLabelTable, got %v", err)
	}
}

func TestValidateRejects(t *testing.T) {
	cases := map[string]string{
		"qos":      "mqtt:\n  qos: 3\n",
		"driver":   "journal:\n  driver: oracle\n",
		"severity": "alarms:\n  notify_min_severity: loud\n",
		"addr":     "http_addr: \"\"\n",
	}
	for name, data := range cases {
		if _, err := Load(writeConfig(t, data)); err == nil {
			t.Fatalf("%s: expected validation error", name)
		}
	}
}

func TestApplyEnvOverrides(t *testing.T) {
	cfg := Default()
	env := map[string]string{
		"AUTH_JWT_SECRET":            "s3cret",
		"MQTT_BROKER":                "tcp://broker:1883",
		"REDIS_DB":                   "2",
		"DATABASE_URL":               "postgres://gs@db/gs",
		"ALARM_ALLOW_SOURCE_REMOVAL": "true",
		"ALARM_NOTIFY_DEDUP_WINDOW":  "30s",
		"ALARM_NOTIFY_COOLDOWN":      "not-a-duration",
	}
	cfg.applyEnv(func(key string) string { return env[key] })

	if cfg.Auth.JWTSecret != "s3cret" || cfg.MQTT.Broker != "tcp://broker:1883" {
		t.Fatalf("unexpected overrides %+v", cfg)
	}
	if cfg.Redis.DB != 2 || cfg.Journal.DSN != "postgres://gs@db/gs" {
		t.Fatalf("unexpected redis/journal %+v %+v", cfg.Redis, cfg.Journal)
	}
	if !cfg.Alarms.AllowSourceRemoval || cfg.Alarms.NotifyDedupeWindow != 30*time.Second {
		t.Fatalf("unexpected alarms %+v", cfg.Alarms)
	}
	if cfg.Alarms.NotifyCooldown != 0 {
		t.Fatalf("invalid duration should keep fallback, got %s", cfg.Alarms.NotifyCooldown)
	}
}
