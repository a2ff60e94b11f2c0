package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"

	"gopkg.in/yaml.v3"
)

// Config holds all application configuration.
type Config struct {
	Eight EightConfig `yaml:"eight"`
	HTTP  HTTPConfig  `yaml:"http"`
	MQTT  MQTTConfig  `yaml:"mqtt"`
	Poll  PollConfig  `yaml:"poll"`
	Log   LogConfig   `yaml:"log"`
}

// EightConfig holds vendor cloud API configuration. The URLs are
// overridable mainly for tests.
type EightConfig struct {
	Email        string `yaml:"email"`
	Password     string `yaml:"password"`
	ClientID     string `yaml:"client_id"`
	ClientSecret string `yaml:"client_secret"`
	Timezone     string `yaml:"timezone"`
	TempUnit     string `yaml:"temp_unit"`
	AuthURL      string `yaml:"auth_url"`
	ClientAPIURL string `yaml:"client_api_url"`
	AppAPIURL    string `yaml:"app_api_url"`
}

// MQTTConfig holds MQTT broker configuration.
type MQTTConfig struct {
	Enabled     bool   `yaml:"enabled"`
	Broker      string `yaml:"broker"`
	Username    string `yaml:"username"`
	Password    string `yaml:"password"`
	TopicPrefix string `yaml:"topic_prefix"`
	DeviceName  string `yaml:"device_name"`
}

// HTTPConfig holds HTTP server configuration.
type HTTPConfig struct {
	Addr string `yaml:"addr"`
}

// PollConfig holds the refresh cadences, in seconds.
type PollConfig struct {
	DeviceInterval  int `yaml:"device_interval"`
	UserInterval    int `yaml:"user_interval"`
	BaseInterval    int `yaml:"base_interval"`
	SpeakerInterval int `yaml:"speaker_interval"`
}

// LogConfig holds logging configuration.
type LogConfig struct {
	Level  string `yaml:"level"`
	Format string `yaml:"format"`
}

// Defaults returns a Config with sensible defaults.
func Defaults() Config {
	return Config{
		Eight: EightConfig{
			Timezone:     "UTC",
			TempUnit:     "celsius",
			AuthURL:      "https://auth-api.8slp.net/v1/tokens",
			ClientAPIURL: "https://client-api.8slp.net/v1",
			AppAPIURL:    "https://app-api.8slp.net",
		},
		HTTP: HTTPConfig{
			Addr: ":8080",
		},
		MQTT: MQTTConfig{
			TopicPrefix: "eightsleep",
			DeviceName:  "Eight Sleep Pod",
		},
		Poll: PollConfig{
			DeviceInterval:  60,
			UserInterval:    30,
			BaseInterval:    60,
			SpeakerInterval: 60,
		},
		Log: LogConfig{
			Level:  "info",
			Format: "text",
		},
	}
}

// Load reads configuration from a YAML file at path, then overlays environment variables.
// If path is empty, only defaults + env vars are used.
func Load(path string) (Config, error) {
	cfg := Defaults()

	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			if !os.IsNotExist(err) {
				return cfg, fmt.Errorf("config: read %s: %w", path, err)
			}
			// file not found is ok, use defaults
		} else {
			if err := yaml.Unmarshal(data, &cfg); err != nil {
				return cfg, fmt.Errorf("config: parse %s: %w", path, err)
			}
		}
	}

	applyEnv(&cfg)

	if cfg.Eight.Email == "" || cfg.Eight.Password == "" {
		return cfg, fmt.Errorf("config: eight.email and eight.password are required")
	}
	return cfg, nil
}

// applyEnv overlays environment variables on top of the config.
// Env vars take precedence over YAML values.
func applyEnv(cfg *Config) {
	if v := os.Getenv("EIGHT_EMAIL"); v != "" {
		cfg.Eight.Email = v
	}
	if v := os.Getenv("EIGHT_PASSWORD"); v != "" {
		cfg.Eight.Password = v
	}
	if v := os.Getenv("EIGHT_CLIENT_ID"); v != "" {
		cfg.Eight.ClientID = v
	}
	if v := os.Getenv("EIGHT_CLIENT_SECRET"); v != "" {
		cfg.Eight.ClientSecret = v
	}
	if v := os.Getenv("EIGHT_TIMEZONE"); v != "" {
		cfg.Eight.Timezone = v
	}
	if v := os.Getenv("EIGHT_TEMP_UNIT"); v != "" {
		cfg.Eight.TempUnit = v
	}
	if v := os.Getenv("EIGHT_AUTH_URL"); v != "" {
		cfg.Eight.AuthURL = v
	}
	if v := os.Getenv("EIGHT_CLIENT_API_URL"); v != "" {
		cfg.Eight.ClientAPIURL = v
	}
	if v := os.Getenv("EIGHT_APP_API_URL"); v != "" {
		cfg.Eight.AppAPIURL = v
	}
	if v := os.Getenv("EIGHT_HTTP_ADDR"); v != "" {
		cfg.HTTP.Addr = v
	}
	if v := os.Getenv("EIGHT_MQTT_ENABLED"); v != "" {
		cfg.MQTT.Enabled = parseBool(v)
	}
	if v := os.Getenv("EIGHT_MQTT_BROKER"); v != "" {
		cfg.MQTT.Broker = v
	}
	if v := os.Getenv("EIGHT_MQTT_USERNAME"); v != "" {
		cfg.MQTT.Username = v
	}
	if v := os.Getenv("EIGHT_MQTT_PASSWORD"); v != "" {
		cfg.MQTT.Password = v
	}
	if v := os.Getenv("EIGHT_MQTT_TOPIC_PREFIX"); v != "" {
		cfg.MQTT.TopicPrefix = v
	}
	if v := os.Getenv("EIGHT_MQTT_DEVICE_NAME"); v != "" {
		cfg.MQTT.DeviceName = v
	}
	if v := os.Getenv("EIGHT_POLL_DEVICE_INTERVAL"); v != "" {
		cfg.Poll.DeviceInterval = parseInt(v, cfg.Poll.DeviceInterval)
	}
	if v := os.Getenv("EIGHT_POLL_USER_INTERVAL"); v != "" {
		cfg.Poll.UserInterval = parseInt(v, cfg.Poll.UserInterval)
	}
	if v := os.Getenv("EIGHT_POLL_BASE_INTERVAL"); v != "" {
		cfg.Poll.BaseInterval = parseInt(v, cfg.Poll.BaseInterval)
	}
	if v := os.Getenv("EIGHT_POLL_SPEAKER_INTERVAL"); v != "" {
		cfg.Poll.SpeakerInterval = parseInt(v, cfg.Poll.SpeakerInterval)
	}
	if v := os.Getenv("EIGHT_LOG_LEVEL"); v != "" {
		cfg.Log.Level = v
	}
	if v := os.Getenv("EIGHT_LOG_FORMAT"); v != "" {
		cfg.Log.Format = v
	}
}

func parseBool(s string) bool {
	s = strings.ToLower(strings.TrimSpace(s))
	b, _ := strconv.ParseBool(s)
	return b
}

func parseInt(s string, def int) int {
	n, err := strconv.Atoi(strings.TrimSpace(s))
	if err != nil {
		return def
	}
	return n
}
