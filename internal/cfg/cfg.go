// Package cfg loads service configuration from a YAML file with
// environment-variable overrides, and validates it before anything starts.
package cfg

import (
	"fmt"
	"os"
	"strconv"
	"time"

	"gopkg.in/yaml.v3"
)

// Oracle kinds.
const (
	OracleSubprocess = "subprocess"
	OracleHTTP       = "http"
)

// OracleConfig describes one base classifier endpoint.
type OracleConfig struct {
	Name string `yaml:"name"`
	Kind string `yaml:"kind"` // subprocess or http

	// http
	URL string `yaml:"url"`

	// subprocess
	PythonPath string `yaml:"pythonPath"`
	ScriptPath string `yaml:"scriptPath"`
	ModelPath  string `yaml:"modelPath"`
}

// Settings is the resolved runtime configuration.
type Settings struct {
	ListenAddr  string
	MetricsPort int
	DataPath    string

	Primary       OracleConfig
	BaseA         OracleConfig
	BaseB         OracleConfig
	OracleTimeout time.Duration

	BlendLo       float64
	BlendHi       float64
	Trials        int
	Seed          int64
	SplitFraction float64

	FeedURL     string
	AuditTrail  bool
	DatasetPath string
}

// ConfigFile mirrors the YAML layout.
type ConfigFile struct {
	Server struct {
		ListenAddr  string `yaml:"listenAddr"`
		MetricsPort int    `yaml:"metricsPort"`
	} `yaml:"server"`

	Oracles struct {
		Primary OracleConfig `yaml:"primary"`
		BaseA   OracleConfig `yaml:"baseA"`
		BaseB   OracleConfig `yaml:"baseB"`
		Timeout string       `yaml:"timeout"`
	} `yaml:"oracles"`

	Calibration struct {
		BlendLo       float64 `yaml:"blendLo"`
		BlendHi       float64 `yaml:"blendHi"`
		Trials        int     `yaml:"trials"`
		Seed          int64   `yaml:"seed"`
		SplitFraction float64 `yaml:"splitFraction"`
		DatasetPath   string  `yaml:"datasetPath"`
	} `yaml:"calibration"`

	Feed struct {
		URL string `yaml:"url"`
	} `yaml:"feed"`

	System struct {
		DataPath   string `yaml:"dataPath"`
		AuditTrail bool   `yaml:"auditTrail"`
	} `yaml:"system"`
}

// Load resolves settings from the file named by CONFIG_FILE, falling back
// to environment variables alone.
func Load() (Settings, error) {
	if configPath := os.Getenv("CONFIG_FILE"); configPath != "" {
		return loadFromYAML(configPath)
	}
	return loadFromEnv()
}

func loadFromYAML(path string) (Settings, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return Settings{}, fmt.Errorf("failed to read config file %s: %w", path, err)
	}

	var config ConfigFile
	if err := yaml.Unmarshal(data, &config); err != nil {
		return Settings{}, fmt.Errorf("failed to parse config file: %w", err)
	}

	timeout, err := time.ParseDuration(config.Oracles.Timeout)
	if err != nil {
		timeout = 2 * time.Second
	}

	settings := Settings{
		ListenAddr:    getEnvOrDefault("LISTEN_ADDR", defaultString(config.Server.ListenAddr, ":8080")),
		MetricsPort:   getIntFromEnvOrConfig("METRICS_PORT", config.Server.MetricsPort, 9090),
		DataPath:      getEnvOrDefault("DATA_PATH", config.System.DataPath),
		Primary:       config.Oracles.Primary,
		BaseA:         config.Oracles.BaseA,
		BaseB:         config.Oracles.BaseB,
		OracleTimeout: getDurationOrDefault("ORACLE_TIMEOUT", timeout),
		BlendLo:       getFloatFromEnvOrConfig("BLEND_LO", config.Calibration.BlendLo, 0.2),
		BlendHi:       getFloatFromEnvOrConfig("BLEND_HI", config.Calibration.BlendHi, 0.8),
		Trials:        getIntFromEnvOrConfig("BLEND_TRIALS", config.Calibration.Trials, 30),
		Seed:          int64(getIntFromEnvOrConfig("SEARCH_SEED", int(config.Calibration.Seed), 42)),
		SplitFraction: getFloatFromEnvOrConfig("SPLIT_FRACTION", config.Calibration.SplitFraction, 0.8),
		FeedURL:       getEnvOrDefault("FEED_URL", config.Feed.URL),
		AuditTrail:    getBoolFromEnvOrConfig("AUDIT_TRAIL", config.System.AuditTrail),
		DatasetPath:   getEnvOrDefault("DATASET_PATH", config.Calibration.DatasetPath),
	}

	if err := validateSettings(&settings); err != nil {
		return Settings{}, fmt.Errorf("configuration validation failed: %w", err)
	}
	return settings, nil
}

func loadFromEnv() (Settings, error) {
	settings := Settings{
		ListenAddr:  getEnvOrDefault("LISTEN_ADDR", ":8080"),
		MetricsPort: getIntOrDefault("METRICS_PORT", 9090),
		DataPath:    os.Getenv("DATA_PATH"), // optional
		Primary: OracleConfig{
			Name:       getEnvOrDefault("PRIMARY_ORACLE_NAME", "xgb_qr"),
			Kind:       getEnvOrDefault("PRIMARY_ORACLE_KIND", OracleSubprocess),
			URL:        os.Getenv("PRIMARY_ORACLE_URL"),
			PythonPath: getEnvOrDefault("PRIMARY_ORACLE_PYTHON", "python3"),
			ScriptPath: getEnvOrDefault("PRIMARY_ORACLE_SCRIPT", "scripts/model_runner.py"),
			ModelPath:  getEnvOrDefault("PRIMARY_ORACLE_MODEL", "models/xgb_qr.onnx"),
		},
		BaseA: OracleConfig{
			Name:       getEnvOrDefault("BASE_A_ORACLE_NAME", "lgb_qr"),
			Kind:       getEnvOrDefault("BASE_A_ORACLE_KIND", OracleSubprocess),
			URL:        os.Getenv("BASE_A_ORACLE_URL"),
			PythonPath: getEnvOrDefault("BASE_A_ORACLE_PYTHON", "python3"),
			ScriptPath: getEnvOrDefault("BASE_A_ORACLE_SCRIPT", "scripts/model_runner.py"),
			ModelPath:  getEnvOrDefault("BASE_A_ORACLE_MODEL", "models/lgb_qr.onnx"),
		},
		BaseB: OracleConfig{
			Name:       getEnvOrDefault("BASE_B_ORACLE_NAME", "rf_qr"),
			Kind:       getEnvOrDefault("BASE_B_ORACLE_KIND", OracleSubprocess),
			URL:        os.Getenv("BASE_B_ORACLE_URL"),
			PythonPath: getEnvOrDefault("BASE_B_ORACLE_PYTHON", "python3"),
			ScriptPath: getEnvOrDefault("BASE_B_ORACLE_SCRIPT", "scripts/model_runner.py"),
			ModelPath:  getEnvOrDefault("BASE_B_ORACLE_MODEL", "models/rf_qr.onnx"),
		},
		OracleTimeout: getDurationOrDefault("ORACLE_TIMEOUT", 2*time.Second),
		BlendLo:       getFloatOrDefault("BLEND_LO", 0.2),
		BlendHi:       getFloatOrDefault("BLEND_HI", 0.8),
		Trials:        getIntOrDefault("BLEND_TRIALS", 30),
		Seed:          int64(getIntOrDefault("SEARCH_SEED", 42)),
		SplitFraction: getFloatOrDefault("SPLIT_FRACTION", 0.8),
		FeedURL:       os.Getenv("FEED_URL"), // optional
		AuditTrail:    getBoolOrDefault("AUDIT_TRAIL", false),
		DatasetPath:   os.Getenv("DATASET_PATH"),
	}

	if err := validateSettings(&settings); err != nil {
		return Settings{}, fmt.Errorf("configuration validation failed: %w", err)
	}
	return settings, nil
}

func getEnvOrDefault(key, defaultValue string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return defaultValue
}

func defaultString(v, def string) string {
	if v != "" {
		return v
	}
	return def
}

func getDurationOrDefault(key string, defaultValue time.Duration) time.Duration {
	if v := os.Getenv(key); v != "" {
		if d, err := time.ParseDuration(v); err == nil {
			return d
		}
	}
	return defaultValue
}

func getIntOrDefault(key string, defaultValue int) int {
	if v := os.Getenv(key); v != "" {
		if i, err := strconv.Atoi(v); err == nil {
			return i
		}
	}
	return defaultValue
}

func getFloatOrDefault(key string, defaultValue float64) float64 {
	if v := os.Getenv(key); v != "" {
		if f, err := strconv.ParseFloat(v, 64); err == nil {
			return f
		}
	}
	return defaultValue
}

func getBoolOrDefault(key string, defaultValue bool) bool {
	if v := os.Getenv(key); v != "" {
		if b, err := strconv.ParseBool(v); err == nil {
			return b
		}
	}
	return defaultValue
}

func getIntFromEnvOrConfig(key string, configValue, def int) int {
	if env := os.Getenv(key); env != "" {
		if val, err := strconv.Atoi(env); err == nil {
			return val
		}
	}
	if configValue != 0 {
		return configValue
	}
	return def
}

func getFloatFromEnvOrConfig(key string, configValue, def float64) float64 {
	if env := os.Getenv(key); env != "" {
		if val, err := strconv.ParseFloat(env, 64); err == nil {
			return val
		}
	}
	if configValue != 0 {
		return configValue
	}
	return def
}

func getBoolFromEnvOrConfig(key string, configValue bool) bool {
	if env := os.Getenv(key); env != "" {
		if val, err := strconv.ParseBool(env); err == nil {
			return val
		}
	}
	return configValue
}

// validateSettings checks every value a misconfigured deployment could get
// wrong before the service accepts traffic.
func validateSettings(settings *Settings) error {
	if settings.ListenAddr == "" {
		return fmt.Errorf("listen address cannot be empty")
	}
	if settings.MetricsPort < 1024 || settings.MetricsPort > 65535 {
		return fmt.Errorf("metrics port must be between 1024 and 65535, got %d", settings.MetricsPort)
	}

	for _, oc := range []struct {
		label string
		cfg   OracleConfig
	}{
		{"primary", settings.Primary},
		{"baseA", settings.BaseA},
		{"baseB", settings.BaseB},
	} {
		if oc.cfg.Name == "" {
			return fmt.Errorf("%s oracle: name is required", oc.label)
		}
		switch oc.cfg.Kind {
		case OracleSubprocess:
			if oc.cfg.ScriptPath == "" || oc.cfg.ModelPath == "" {
				return fmt.Errorf("%s oracle: subprocess kind requires scriptPath and modelPath", oc.label)
			}
		case OracleHTTP:
			if oc.cfg.URL == "" {
				return fmt.Errorf("%s oracle: http kind requires url", oc.label)
			}
		default:
			return fmt.Errorf("%s oracle: unknown kind %q", oc.label, oc.cfg.Kind)
		}
	}

	if settings.OracleTimeout < 100*time.Millisecond || settings.OracleTimeout > time.Minute {
		return fmt.Errorf("oracle timeout must be between 100ms and 1m, got %v", settings.OracleTimeout)
	}
	if settings.BlendLo < 0 || settings.BlendHi > 1 || settings.BlendLo >= settings.BlendHi {
		return fmt.Errorf("blend bounds must satisfy 0 <= lo < hi <= 1, got [%f, %f]", settings.BlendLo, settings.BlendHi)
	}
	if settings.Trials < 1 || settings.Trials > 10000 {
		return fmt.Errorf("trial budget must be between 1 and 10000, got %d", settings.Trials)
	}
	if settings.SplitFraction <= 0 || settings.SplitFraction >= 1 {
		return fmt.Errorf("split fraction must be in (0, 1), got %f", settings.SplitFraction)
	}
	if settings.AuditTrail && settings.DataPath == "" {
		return fmt.Errorf("audit trail requires a data path")
	}
	return nil
}
