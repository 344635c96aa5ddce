package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"

	"gopkg.in/yaml.v3"
)

type TelemetryConfig struct {
	LogLevel       string `yaml:"log_level"`
	OTLPEndpoint   string `yaml:"otlp_endpoint"`
	OTLPInsecure   bool   `yaml:"otlp_insecure"`
	PrometheusBind string `yaml:"prometheus_bind"`
}

type HTTPConfig struct {
	Bind string `yaml:"bind"`
	Port int    `yaml:"port"`
}

type Config struct {
	RuntimeName string          `yaml:"runtime_name"`
	Environment string          `yaml:"environment"`
	HTTP        HTTPConfig      `yaml:"http"`
	Telemetry   TelemetryConfig `yaml:"telemetry"`
	Bus         BusConfig       `yaml:"bus"`
	Engine      EngineConfig    `yaml:"engine"`
	History     HistoryConfig   `yaml:"history"`
	Playback    PlaybackConfig  `yaml:"playback"`
}

type BusConfig struct {
	Embedded       bool     `yaml:"embedded"`
	Port           int      `yaml:"port"`
	Servers        []string `yaml:"servers"`
	Username       string   `yaml:"username"`
	Password       string   `yaml:"password"`
	Token          string   `yaml:"token"`
	TLSInsecure    bool     `yaml:"tls_insecure"`
	ConnectTimeout int      `yaml:"connect_timeout_ms"`
	MaxPayloadMB   int      `yaml:"max_payload_mb"`
}

type EngineConfig struct {
	Mode              string `yaml:"mode"` // mock, exec
	Command           string `yaml:"command"`
	ModelPath         string `yaml:"model_path"`
	DefaultVoice      string `yaml:"default_voice"`
	SampleRate        int    `yaml:"sample_rate"`
	GenerateTimeoutMS int    `yaml:"generate_timeout_ms"`
}

type HistoryConfig struct {
	Path          string `yaml:"path"`
	MaxRecords    int    `yaml:"max_records"`
	VacuumOnStart bool   `yaml:"vacuum_on_start"`
}

type PlaybackConfig struct {
	DeviceBufferMS int     `yaml:"device_buffer_ms"`
	Volume         float64 `yaml:"volume"`
	Speed          float64 `yaml:"speed"`
}

func Default() Config {
	return Config{
		RuntimeName: "voxd",
		Environment: "development",
		HTTP: HTTPConfig{
			Bind: "127.0.0.1",
			Port: 8090,
		},
		Telemetry: TelemetryConfig{
			LogLevel:       "info",
			OTLPEndpoint:   "",
			OTLPInsecure:   true,
			PrometheusBind: ":9091",
		},
		Bus: BusConfig{
			Embedded:       true,
			Port:           4222,
			Servers:        []string{"nats://localhost:4222"},
			ConnectTimeout: 2000,
			MaxPayloadMB:   32,
		},
		Engine: EngineConfig{
			Mode:              "mock",
			DefaultVoice:      "af_sky",
			SampleRate:        24000,
			GenerateTimeoutMS: 120000,
		},
		History: HistoryConfig{
			Path:       "./data/voxd-history.db",
			MaxRecords: 200,
		},
		Playback: PlaybackConfig{
			DeviceBufferMS: 100,
			Volume:         1.0,
			Speed:          1.0,
		},
	}
}

func Load(path string) (Config, error) {
	cfg := Default()

	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			if os.IsNotExist(err) {
				return cfg, fmt.Errorf("config file not found: %w", err)
			}
			return cfg, fmt.Errorf("failed to read config file: %w", err)
		}
		if err := yaml.Unmarshal(data, &cfg); err != nil {
			return cfg, fmt.Errorf("failed to parse config file: %w", err)
		}
	}

	applyEnvOverrides(&cfg)
	if err := validate(cfg); err != nil {
		return cfg, err
	}
	return cfg, nil
}

func applyEnvOverrides(cfg *Config) {
	overrideString(&cfg.RuntimeName, "VOXD_RUNTIME_NAME")
	overrideString(&cfg.Environment, "VOXD_RUNTIME_ENVIRONMENT")
	overrideString(&cfg.HTTP.Bind, "VOXD_HTTP_BIND")
	overrideInt(&cfg.HTTP.Port, "VOXD_HTTP_PORT")
	overrideString(&cfg.Telemetry.LogLevel, "VOXD_TELEMETRY_LOG_LEVEL")
	overrideString(&cfg.Telemetry.OTLPEndpoint, "VOXD_TELEMETRY_OTLP_ENDPOINT")
	overrideBool(&cfg.Telemetry.OTLPInsecure, "VOXD_TELEMETRY_OTLP_INSECURE")
	overrideString(&cfg.Telemetry.PrometheusBind, "VOXD_TELEMETRY_PROMETHEUS_BIND")
	overrideBool(&cfg.Bus.Embedded, "VOXD_BUS_EMBEDDED")
	overrideInt(&cfg.Bus.Port, "VOXD_BUS_PORT")
	overrideStringSlice(&cfg.Bus.Servers, "VOXD_BUS_SERVERS")
	overrideString(&cfg.Bus.Username, "VOXD_BUS_USERNAME")
	overrideString(&cfg.Bus.Password, "VOXD_BUS_PASSWORD")
	overrideString(&cfg.Bus.Token, "VOXD_BUS_TOKEN")
	overrideBool(&cfg.Bus.TLSInsecure, "VOXD_BUS_TLS_INSECURE")
	overrideInt(&cfg.Bus.ConnectTimeout, "VOXD_BUS_CONNECT_TIMEOUT_MS")
	overrideInt(&cfg.Bus.MaxPayloadMB, "VOXD_BUS_MAX_PAYLOAD_MB")
	overrideString(&cfg.Engine.Mode, "VOXD_ENGINE_MODE")
	overrideString(&cfg.Engine.Command, "VOXD_ENGINE_COMMAND")
	overrideString(&cfg.Engine.ModelPath, "VOXD_ENGINE_MODEL_PATH")
	overrideString(&cfg.Engine.DefaultVoice, "VOXD_ENGINE_DEFAULT_VOICE")
	overrideInt(&cfg.Engine.SampleRate, "VOXD_ENGINE_SAMPLE_RATE")
	overrideInt(&cfg.Engine.GenerateTimeoutMS, "VOXD_ENGINE_GENERATE_TIMEOUT_MS")
	overrideString(&cfg.History.Path, "VOXD_HISTORY_PATH")
	overrideInt(&cfg.History.MaxRecords, "VOXD_HISTORY_MAX_RECORDS")
	overrideBool(&cfg.History.VacuumOnStart, "VOXD_HISTORY_VACUUM_ON_START")
	overrideInt(&cfg.Playback.DeviceBufferMS, "VOXD_PLAYBACK_DEVICE_BUFFER_MS")
	overrideFloat(&cfg.Playback.Volume, "VOXD_PLAYBACK_VOLUME")
	overrideFloat(&cfg.Playback.Speed, "VOXD_PLAYBACK_SPEED")
}

func overrideString(target *string, envKey string) {
	if value, ok := os.LookupEnv(envKey); ok && strings.TrimSpace(value) != "" {
		*target = value
	}
}

func overrideInt(target *int, envKey string) {
	if value, ok := os.LookupEnv(envKey); ok {
		if parsed, err := strconv.Atoi(value); err == nil {
			*target = parsed
		}
	}
}

func overrideBool(target *bool, envKey string) {
	if value, ok := os.LookupEnv(envKey); ok {
		if parsed, err := strconv.ParseBool(value); err == nil {
			*target = parsed
		}
	}
}

func overrideStringSlice(target *[]string, envKey string) {
	if value, ok := os.LookupEnv(envKey); ok {
		parts := strings.Split(value, ",")
		var trimmed []string
		for _, p := range parts {
			if s := strings.TrimSpace(p); s != "" {
				trimmed = append(trimmed, s)
			}
		}
		if len(trimmed) > 0 {
			*target = trimmed
		}
	}
}

func overrideFloat(target *float64, envKey string) {
	if value, ok := os.LookupEnv(envKey); ok {
		if parsed, err := strconv.ParseFloat(value, 64); err == nil {
			*target = parsed
		}
	}
}

func validate(cfg Config) error {
	if cfg.RuntimeName == "" {
		return errors.New("runtime_name must not be empty")
	}
	if cfg.HTTP.Port <= 0 || cfg.HTTP.Port > 65535 {
		return errors.New("http.port must be between 1 and 65535")
	}
	if cfg.Bus.Embedded {
		if cfg.Bus.Port <= 0 || cfg.Bus.Port > 65535 {
			return errors.New("bus.port must be between 1 and 65535 when embedded mode is enabled")
		}
	} else {
		if len(cfg.Bus.Servers) == 0 {
			return errors.New("bus.servers must not be empty when embedded mode is disabled")
		}
	}
	if cfg.Bus.MaxPayloadMB <= 0 {
		return errors.New("bus.max_payload_mb must be positive")
	}
	switch cfg.Engine.Mode {
	case "mock", "exec":
		// ok
	default:
		return errors.New("engine.mode must be one of mock|exec")
	}
	if cfg.Engine.Mode == "exec" && cfg.Engine.Command == "" {
		return errors.New("engine.command must be set when mode=exec")
	}
	if cfg.Engine.SampleRate <= 0 {
		return errors.New("engine.sample_rate must be positive")
	}
	if cfg.Engine.GenerateTimeoutMS <= 0 {
		return errors.New("engine.generate_timeout_ms must be positive")
	}
	if cfg.Engine.DefaultVoice == "" {
		return errors.New("engine.default_voice must not be empty")
	}
	if cfg.History.Path == "" {
		return errors.New("history.path must not be empty")
	}
	if cfg.History.MaxRecords < 0 {
		return errors.New("history.max_records must be >= 0")
	}
	if cfg.Telemetry.PrometheusBind == "" {
		return errors.New("telemetry.prometheus_bind must not be empty")
	}
	if cfg.Playback.DeviceBufferMS <= 0 {
		return errors.New("playback.device_buffer_ms must be positive")
	}
	if cfg.Playback.Volume < 0 || cfg.Playback.Volume > 2.0 {
		return errors.New("playback.volume must be within [0.0, 2.0]")
	}
	if cfg.Playback.Speed < 0.5 || cfg.Playback.Speed > 2.0 {
		return errors.New("playback.speed must be within [0.5, 2.0]")
	}
	return nil
}
