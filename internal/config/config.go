package config

import (
	"fmt"
	"regexp"
	"strings"
	"time"

	"github.com/fsnotify/fsnotify"
	"github.com/spf13/viper"
)

var hashPrefixPattern = regexp.MustCompile(`^[A-Za-z][A-Za-z0-9]*$`)

// Load loads configuration from file and environment variables
func Load(configPath string) (*Config, error) {
	// Set defaults
	config := GetDefaults()

	// Configure viper
	viper.SetConfigName("config")
	viper.SetConfigType("yaml")
	viper.AddConfigPath(".")
	viper.AddConfigPath("./configs")
	viper.AddConfigPath("/etc/anonymizer/")
	viper.AddConfigPath("$HOME/.anonymizer/")

	// Environment variable overrides
	viper.SetEnvPrefix("ANONYMIZER")
	viper.AutomaticEnv()
	viper.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))

	// Use specific config file if provided
	if configPath != "" {
		viper.SetConfigFile(configPath)
	}

	// Read configuration
	if err := viper.ReadInConfig(); err != nil {
		// Config file not found is not an error - we'll use defaults
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return nil, fmt.Errorf("failed to read config file: %w", err)
		}
	}

	// Unmarshal into config struct
	if err := viper.Unmarshal(config); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}

	// Validate configuration
	if err := Validate(config); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}

	return config, nil
}

// Validate checks the loaded configuration. Every failure here is fatal at
// startup so that no per-record processing ever runs against a broken policy.
func Validate(config *Config) error {
	if config.Server.Port <= 0 || config.Server.Port > 65535 {
		return fmt.Errorf("invalid server port: %d", config.Server.Port)
	}

	if err := validatePrivacy(&config.Privacy); err != nil {
		return err
	}

	switch config.Storage.Mode {
	case "database":
		if config.Storage.DatabaseURL == "" {
			return fmt.Errorf("storage mode %q requires database_url", config.Storage.Mode)
		}
	case "sqlfile":
		if config.Storage.SQLPath == "" {
			return fmt.Errorf("storage mode %q requires sql_path", config.Storage.Mode)
		}
	case "none":
	default:
		return fmt.Errorf("invalid storage mode: %s (must be database, sqlfile, or none)", config.Storage.Mode)
	}

	if config.Logging.Level != "debug" && config.Logging.Level != "info" && config.Logging.Level != "warn" && config.Logging.Level != "error" {
		return fmt.Errorf("invalid log level: %s (must be debug, info, warn, or error)", config.Logging.Level)
	}

	if config.Logging.Format != "json" && config.Logging.Format != "console" {
		return fmt.Errorf("invalid log format: %s (must be json or console)", config.Logging.Format)
	}

	return nil
}

func validatePrivacy(privacy *PrivacyConfig) error {
	if privacy.HashSecret == "" {
		return fmt.Errorf("privacy.hash_secret must not be empty")
	}
	if privacy.FallbackSecret == "" {
		return fmt.Errorf("privacy.fallback_secret must not be empty")
	}
	// The fallback pseudonymizer covers a different trust domain than the
	// surrogate registry; reusing one key for both collapses that boundary.
	if privacy.FallbackSecret == privacy.HashSecret {
		return fmt.Errorf("privacy.fallback_secret must differ from privacy.hash_secret")
	}
	if privacy.HashLength < 1 || privacy.HashLength > 64 {
		return fmt.Errorf("invalid privacy.hash_length: %d (must be 1-64)", privacy.HashLength)
	}
	if !hashPrefixPattern.MatchString(privacy.HashPrefix) {
		return fmt.Errorf("invalid privacy.hash_prefix: %q", privacy.HashPrefix)
	}
	if privacy.ReferenceNow != "" {
		if _, err := time.Parse(time.RFC3339, privacy.ReferenceNow); err != nil {
			return fmt.Errorf("invalid privacy.reference_now: %w", err)
		}
	}
	if len(privacy.Rules) == 0 {
		return fmt.Errorf("privacy.rules must declare at least one field rule")
	}
	for i, rule := range privacy.Rules {
		if err := validateRule(rule); err != nil {
			return fmt.Errorf("privacy.rules[%d]: %w", i, err)
		}
	}
	return nil
}

func validateRule(rule FieldRuleRaw) error {
	if rule.Path == "" {
		return fmt.Errorf("path must not be empty")
	}
	for _, segment := range strings.Split(rule.Path, ".") {
		if segment == "" {
			return fmt.Errorf("malformed path pattern: %q", rule.Path)
		}
	}
	switch rule.Strategy {
	case "passthrough", "detect_hash", "generalize_address", "fallback_pseudonymize":
	case "generalize_date":
		if rule.DatePolicy != "birth" && rule.DatePolicy != "effective" {
			return fmt.Errorf("generalize_date requires date_policy birth or effective, got %q", rule.DatePolicy)
		}
	default:
		return fmt.Errorf("unknown strategy: %q", rule.Strategy)
	}
	return nil
}

// Watch starts watching the configuration file for changes
func Watch(config *Config, callback func(*Config)) error {
	viper.WatchConfig()
	viper.OnConfigChange(func(e fsnotify.Event) {
		newConfig := &Config{}
		if err := viper.Unmarshal(newConfig); err != nil {
			// Log error but don't crash
			return
		}

		if err := Validate(newConfig); err != nil {
			// Log error but don't crash
			return
		}

		callback(newConfig)
	})

	return nil
}
