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
	LogLevel     string `yaml:"log_level"`
	OTLPEndpoint string `yaml:"otlp_endpoint"`
	OTLPInsecure bool   `yaml:"otlp_insecure"`
}

type HTTPConfig struct {
	Bind string `yaml:"bind"`
	Port int    `yaml:"port"`
}

type Config struct {
	DaemonName  string            `yaml:"daemon_name"`
	Environment string            `yaml:"environment"`
	HTTP        HTTPConfig        `yaml:"http"`
	Telemetry   TelemetryConfig   `yaml:"telemetry"`
	Bus         BusConfig         `yaml:"bus"`
	Audio       AudioConfig       `yaml:"audio"`
	Conditioner ConditionerConfig `yaml:"conditioner"`
	STT         STTConfig         `yaml:"stt"`
	Events      EventsConfig      `yaml:"events"`
	Transcripts TranscriptConfig  `yaml:"transcripts"`
}

type BusConfig struct {
	Enabled        bool     `yaml:"enabled"`
	Embedded       bool     `yaml:"embedded"`
	Port           int      `yaml:"port"`
	Servers        []string `yaml:"servers"`
	Username       string   `yaml:"username"`
	Password       string   `yaml:"password"`
	Token          string   `yaml:"token"`
	TLSInsecure    bool     `yaml:"tls_insecure"`
	ConnectTimeout int      `yaml:"connect_timeout_ms"`
}

type AudioConfig struct {
	// DeviceSampleRate of 0 opens the capture device at its native rate.
	DeviceSampleRate int `yaml:"device_sample_rate"`
	BlockSize        int `yaml:"block_size"`
	TargetSampleRate int `yaml:"target_sample_rate"`
}

type ConditionerConfig struct {
	Enabled       bool    `yaml:"enabled"`
	NoiseGateRMS  float64 `yaml:"noise_gate_rms"`
	SoftGateRMS   float64 `yaml:"soft_gate_rms"`
	HighPassCoeff float64 `yaml:"high_pass_coeff"`
	GainTarget    float64 `yaml:"gain_target"`
	MaxGain       float64 `yaml:"max_gain"`
	MinBoost      float64 `yaml:"min_boost"`
}

type STTConfig struct {
	Backend        string `yaml:"backend"` // vosk, whisper, exec, mock
	ModelPath      string `yaml:"model_path"`
	Language       string `yaml:"language"`
	Command        string `yaml:"command"`
	PartialEveryMS int    `yaml:"partial_every_ms"`
}

type EventsConfig struct {
	PushEnabled   bool `yaml:"push_enabled"`
	QueueCapacity int  `yaml:"queue_capacity"`
}

type TranscriptConfig struct {
	Path          string `yaml:"path"`
	RetentionMode string `yaml:"retention_mode"`
	RetentionDays int    `yaml:"retention_days"`
	MaxSessions   int    `yaml:"max_sessions"`
	VacuumOnStart bool   `yaml:"vacuum_on_start"`
}

func Default() Config {
	return Config{
		DaemonName:  "sttd",
		Environment: "development",
		HTTP: HTTPConfig{
			Bind: "127.0.0.1",
			Port: 8574,
		},
		Telemetry: TelemetryConfig{
			LogLevel:     "info",
			OTLPEndpoint: "",
			OTLPInsecure: true,
		},
		Bus: BusConfig{
			Enabled:        false,
			Embedded:       true,
			Port:           4222,
			Servers:        []string{"nats://localhost:4222"},
			ConnectTimeout: 2000,
		},
		Audio: AudioConfig{
			DeviceSampleRate: 0,
			BlockSize:        1024,
			TargetSampleRate: 16000,
		},
		Conditioner: ConditionerConfig{
			Enabled:       true,
			NoiseGateRMS:  200,
			SoftGateRMS:   1000,
			HighPassCoeff: 0.97,
			GainTarget:    16000,
			MaxGain:       10,
			MinBoost:      1.5,
		},
		STT: STTConfig{
			Backend:        "vosk",
			ModelPath:      "./models/vosk-model-small-en-us-0.15",
			Language:       "en",
			PartialEveryMS: 800,
		},
		Events: EventsConfig{
			PushEnabled:   false,
			QueueCapacity: 100,
		},
		Transcripts: TranscriptConfig{
			Path:          "./data/transcripts.db",
			RetentionMode: "session",
			RetentionDays: 30,
			MaxSessions:   10000,
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
	overrideString(&cfg.DaemonName, "STTD_DAEMON_NAME")
	overrideString(&cfg.Environment, "STTD_ENVIRONMENT")
	overrideString(&cfg.HTTP.Bind, "STTD_HTTP_BIND")
	overrideInt(&cfg.HTTP.Port, "STTD_HTTP_PORT")
	overrideString(&cfg.Telemetry.LogLevel, "STTD_TELEMETRY_LOG_LEVEL")
	overrideString(&cfg.Telemetry.OTLPEndpoint, "STTD_TELEMETRY_OTLP_ENDPOINT")
	overrideBool(&cfg.Telemetry.OTLPInsecure, "STTD_TELEMETRY_OTLP_INSECURE")
	overrideBool(&cfg.Bus.Enabled, "STTD_BUS_ENABLED")
	overrideBool(&cfg.Bus.Embedded, "STTD_BUS_EMBEDDED")
	overrideInt(&cfg.Bus.Port, "STTD_BUS_PORT")
	overrideStringSlice(&cfg.Bus.Servers, "STTD_BUS_SERVERS")
	overrideString(&cfg.Bus.Username, "STTD_BUS_USERNAME")
	overrideString(&cfg.Bus.Password, "STTD_BUS_PASSWORD")
	overrideString(&cfg.Bus.Token, "STTD_BUS_TOKEN")
	overrideBool(&cfg.Bus.TLSInsecure, "STTD_BUS_TLS_INSECURE")
	overrideInt(&cfg.Bus.ConnectTimeout, "STTD_BUS_CONNECT_TIMEOUT_MS")
	overrideInt(&cfg.Audio.DeviceSampleRate, "STTD_AUDIO_DEVICE_SAMPLE_RATE")
	overrideInt(&cfg.Audio.BlockSize, "STTD_AUDIO_BLOCK_SIZE")
	overrideInt(&cfg.Audio.TargetSampleRate, "STTD_AUDIO_TARGET_SAMPLE_RATE")
	overrideBool(&cfg.Conditioner.Enabled, "STTD_CONDITIONER_ENABLED")
	overrideFloat(&cfg.Conditioner.NoiseGateRMS, "STTD_CONDITIONER_NOISE_GATE_RMS")
	overrideFloat(&cfg.Conditioner.SoftGateRMS, "STTD_CONDITIONER_SOFT_GATE_RMS")
	overrideFloat(&cfg.Conditioner.HighPassCoeff, "STTD_CONDITIONER_HIGH_PASS_COEFF")
	overrideFloat(&cfg.Conditioner.GainTarget, "STTD_CONDITIONER_GAIN_TARGET")
	overrideFloat(&cfg.Conditioner.MaxGain, "STTD_CONDITIONER_MAX_GAIN")
	overrideFloat(&cfg.Conditioner.MinBoost, "STTD_CONDITIONER_MIN_BOOST")
	overrideString(&cfg.STT.Backend, "STTD_STT_BACKEND")
	overrideString(&cfg.STT.ModelPath, "STTD_STT_MODEL_PATH")
	overrideString(&cfg.STT.Language, "STTD_STT_LANGUAGE")
	overrideString(&cfg.STT.Command, "STTD_STT_COMMAND")
	overrideInt(&cfg.STT.PartialEveryMS, "STTD_STT_PARTIAL_EVERY_MS")
	overrideBool(&cfg.Events.PushEnabled, "STTD_EVENTS_PUSH_ENABLED")
	overrideInt(&cfg.Events.QueueCapacity, "STTD_EVENTS_QUEUE_CAPACITY")
	overrideString(&cfg.Transcripts.Path, "STTD_TRANSCRIPTS_PATH")
	overrideString(&cfg.Transcripts.RetentionMode, "STTD_TRANSCRIPTS_RETENTION_MODE")
	overrideInt(&cfg.Transcripts.RetentionDays, "STTD_TRANSCRIPTS_RETENTION_DAYS")
	overrideInt(&cfg.Transcripts.MaxSessions, "STTD_TRANSCRIPTS_MAX_SESSIONS")
	overrideBool(&cfg.Transcripts.VacuumOnStart, "STTD_TRANSCRIPTS_VACUUM_ON_START")
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
	if cfg.DaemonName == "" {
		return errors.New("daemon_name must not be empty")
	}
	if cfg.HTTP.Port <= 0 || cfg.HTTP.Port > 65535 {
		return errors.New("http.port must be between 1 and 65535")
	}
	if cfg.Bus.Enabled {
		if cfg.Bus.Embedded {
			if cfg.Bus.Port <= 0 || cfg.Bus.Port > 65535 {
				return errors.New("bus.port must be between 1 and 65535 when embedded mode is enabled")
			}
		} else if len(cfg.Bus.Servers) == 0 {
			return errors.New("bus.servers must not be empty when embedded mode is disabled")
		}
	}
	if cfg.Audio.DeviceSampleRate < 0 {
		return errors.New("audio.device_sample_rate must be 0 (native) or positive")
	}
	if cfg.Audio.BlockSize <= 0 {
		return errors.New("audio.block_size must be positive")
	}
	if cfg.Audio.TargetSampleRate <= 0 {
		return errors.New("audio.target_sample_rate must be positive")
	}
	if cfg.Conditioner.Enabled {
		if cfg.Conditioner.NoiseGateRMS < 0 {
			return errors.New("conditioner.noise_gate_rms must be >= 0")
		}
		if cfg.Conditioner.SoftGateRMS < cfg.Conditioner.NoiseGateRMS {
			return errors.New("conditioner.soft_gate_rms must be >= noise_gate_rms")
		}
		if cfg.Conditioner.HighPassCoeff <= 0 || cfg.Conditioner.HighPassCoeff >= 1 {
			return errors.New("conditioner.high_pass_coeff must be in (0, 1)")
		}
		if cfg.Conditioner.MaxGain < 1 {
			return errors.New("conditioner.max_gain must be >= 1")
		}
	}
	switch cfg.STT.Backend {
	case "vosk", "whisper", "exec", "mock":
	default:
		return errors.New("stt.backend must be one of vosk|whisper|exec|mock")
	}
	if cfg.STT.Backend == "exec" && cfg.STT.Command == "" {
		return errors.New("stt.command must be set when backend=exec")
	}
	if cfg.Events.QueueCapacity <= 0 {
		return errors.New("events.queue_capacity must be positive")
	}
	if cfg.Transcripts.Path == "" {
		return errors.New("transcripts.path must not be empty")
	}
	switch cfg.Transcripts.RetentionMode {
	case "ephemeral", "session", "persistent":
		// ok
	default:
		return errors.New("transcripts.retention_mode must be one of ephemeral|session|persistent")
	}
	if cfg.Transcripts.RetentionDays < 0 {
		return errors.New("transcripts.retention_days must be >= 0")
	}
	return nil
}
