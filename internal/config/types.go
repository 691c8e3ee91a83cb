package config

import "time"

// Config represents the main configuration structure
type Config struct {
	Server    ServerConfig    `yaml:"server" mapstructure:"server"`
	Privacy   PrivacyConfig   `yaml:"privacy" mapstructure:"privacy"`
	Detector  DetectorConfig  `yaml:"detector" mapstructure:"detector"`
	Storage   StorageConfig   `yaml:"storage" mapstructure:"storage"`
	Cache     CacheConfig     `yaml:"cache" mapstructure:"cache"`
	Logging   LoggingConfig   `yaml:"logging" mapstructure:"logging"`
	WebSocket WebSocketConfig `yaml:"websocket" mapstructure:"websocket"`
}

// ServerConfig contains HTTP server configuration
type ServerConfig struct {
	Port         int           `yaml:"port" mapstructure:"port"`
	ReadTimeout  time.Duration `yaml:"read_timeout" mapstructure:"read_timeout"`
	WriteTimeout time.Duration `yaml:"write_timeout" mapstructure:"write_timeout"`
	IdleTimeout  time.Duration `yaml:"idle_timeout" mapstructure:"idle_timeout"`
	RateLimit    struct {
		Enabled        bool `yaml:"enabled" mapstructure:"enabled"`
		RequestsPerMin int  `yaml:"requests_per_min" mapstructure:"requests_per_min"`
		Burst          int  `yaml:"burst" mapstructure:"burst"`
	} `yaml:"rate_limit" mapstructure:"rate_limit"`
}

// PrivacyConfig contains the de-identification policy: the two secrets, the
// surrogate token shape, the reference time for age computation, and the
// field rule table applied to every record.
type PrivacyConfig struct {
	HashSecret     string          `yaml:"hash_secret" mapstructure:"hash_secret"`
	HashPrefix     string          `yaml:"hash_prefix" mapstructure:"hash_prefix"`
	HashLength     int             `yaml:"hash_length" mapstructure:"hash_length"`
	FallbackSecret string          `yaml:"fallback_secret" mapstructure:"fallback_secret"`
	ReferenceNow   string          `yaml:"reference_now" mapstructure:"reference_now"` // RFC3339; empty means wall clock
	Rules          []FieldRuleRaw  `yaml:"rules" mapstructure:"rules"`
}

// FieldRuleRaw is the configuration form of a field rule. It is compiled and
// validated by the engine at startup.
type FieldRuleRaw struct {
	Path       string   `yaml:"path" mapstructure:"path"`
	Strategy   string   `yaml:"strategy" mapstructure:"strategy"`
	DatePolicy string   `yaml:"date_policy" mapstructure:"date_policy"`
	Labels     []string `yaml:"labels" mapstructure:"labels"`
}

// DetectorConfig contains PHI entity detection configuration
type DetectorConfig struct {
	Detectors []string `yaml:"detectors" mapstructure:"detectors"`
	MinScore  float64  `yaml:"min_score" mapstructure:"min_score"`
	ModelPath string   `yaml:"model_path" mapstructure:"model_path"` // optional ONNX NER model
}

// StorageConfig contains anonymized record persistence configuration
type StorageConfig struct {
	Mode            string        `yaml:"mode" mapstructure:"mode"` // database, sqlfile, or none
	DatabaseURL     string        `yaml:"database_url" mapstructure:"database_url"`
	MaxOpenConns    int           `yaml:"max_open_conns" mapstructure:"max_open_conns"`
	MaxIdleConns    int           `yaml:"max_idle_conns" mapstructure:"max_idle_conns"`
	ConnMaxLifetime time.Duration `yaml:"conn_max_lifetime" mapstructure:"conn_max_lifetime"`
	SQLPath         string        `yaml:"sql_path" mapstructure:"sql_path"`
}

// CacheConfig contains the optional detection span cache configuration
type CacheConfig struct {
	Enabled        bool          `yaml:"enabled" mapstructure:"enabled"`
	RedisURL       string        `yaml:"redis_url" mapstructure:"redis_url"`
	KeyPrefix      string        `yaml:"key_prefix" mapstructure:"key_prefix"`
	DefaultTTL     time.Duration `yaml:"default_ttl" mapstructure:"default_ttl"`
	MaxConnections int           `yaml:"max_connections" mapstructure:"max_connections"`
	MinIdleConns   int           `yaml:"min_idle_conns" mapstructure:"min_idle_conns"`
}

// LoggingConfig contains logging configuration
type LoggingConfig struct {
	Level  string `yaml:"level" mapstructure:"level"`
	Format string `yaml:"format" mapstructure:"format"` // json or console
	File   struct {
		Enabled  bool   `yaml:"enabled" mapstructure:"enabled"`
		Path     string `yaml:"path" mapstructure:"path"`
		MaxSize  int    `yaml:"max_size" mapstructure:"max_size"`
		MaxAge   int    `yaml:"max_age" mapstructure:"max_age"`
		Compress bool   `yaml:"compress" mapstructure:"compress"`
	} `yaml:"file" mapstructure:"file"`
}

// WebSocketConfig contains WebSocket configuration for the audit feed
type WebSocketConfig struct {
	Enabled         bool          `yaml:"enabled" mapstructure:"enabled"`
	Path            string        `yaml:"path" mapstructure:"path"`
	MaxConnections  int           `yaml:"max_connections" mapstructure:"max_connections"`
	PingInterval    time.Duration `yaml:"ping_interval" mapstructure:"ping_interval"`
	PongTimeout     time.Duration `yaml:"pong_timeout" mapstructure:"pong_timeout"`
	WriteTimeout    time.Duration `yaml:"write_timeout" mapstructure:"write_timeout"`
	MaxMessageSize  int64         `yaml:"max_message_size" mapstructure:"max_message_size"`
	BroadcastAudits bool          `yaml:"broadcast_audits" mapstructure:"broadcast_audits"`
	BroadcastSystem bool          `yaml:"broadcast_system" mapstructure:"broadcast_system"`
}

// GetDefaults returns a configuration with sensible defaults. The default
// rule table covers the patient document schema used by the anonymize
// endpoint and the batch pipeline.
func GetDefaults() *Config {
	cfg := &Config{
		Server: ServerConfig{
			Port:         8004,
			ReadTimeout:  30 * time.Second,
			WriteTimeout: 30 * time.Second,
			IdleTimeout:  60 * time.Second,
		},
		Privacy: PrivacyConfig{
			HashSecret:     "ai-chat-ehr-safe-harbor",
			HashPrefix:     "anon",
			HashLength:     12,
			FallbackSecret: "ai-chat-ehr-fallback",
			Rules:          DefaultFieldRules(),
		},
		Detector: DetectorConfig{
			Detectors: []string{"all"},
			MinScore:  0.3,
		},
		Storage: StorageConfig{
			Mode:            "sqlfile",
			MaxOpenConns:    10,
			MaxIdleConns:    5,
			ConnMaxLifetime: 30 * time.Minute,
			SQLPath:         "anonymizer_dry_run.sql",
		},
		Cache: CacheConfig{
			Enabled:        false,
			RedisURL:       "redis://localhost:6379/0",
			KeyPrefix:      "anonymizer",
			DefaultTTL:     time.Hour,
			MaxConnections: 10,
			MinIdleConns:   2,
		},
		Logging: LoggingConfig{
			Level:  "info",
			Format: "json",
		},
		WebSocket: WebSocketConfig{
			Enabled:         true,
			Path:            "/ws",
			MaxConnections:  100,
			PingInterval:    54 * time.Second,
			PongTimeout:     60 * time.Second,
			WriteTimeout:    10 * time.Second,
			MaxMessageSize:  512,
			BroadcastAudits: true,
			BroadcastSystem: true,
		},
	}
	cfg.Server.RateLimit.Enabled = true
	cfg.Server.RateLimit.RequestsPerMin = 120
	cfg.Server.RateLimit.Burst = 20
	return cfg
}

// DefaultFieldRules returns the built-in de-identification policy for patient
// documents: free-text fields go through detection and hashing, known-schema
// dates and addresses are generalized, and opaque identifiers fall back to
// pseudonymization when detection finds nothing.
func DefaultFieldRules() []FieldRuleRaw {
	return []FieldRuleRaw{
		{Path: "name", Strategy: "detect_hash", Labels: []string{"PERSON"}},
		{Path: "dob", Strategy: "generalize_date", DatePolicy: "birth"},
		{Path: "phone", Strategy: "detect_hash", Labels: []string{"PHONE_NUMBER"}},
		{Path: "email", Strategy: "detect_hash", Labels: []string{"EMAIL_ADDRESS"}},
		{Path: "mrn", Strategy: "fallback_pseudonymize", Labels: []string{"MEDICAL_RECORD_NUMBER", "ACCOUNT_NUMBER"}},
		{Path: "gender", Strategy: "passthrough"},
		{Path: "coverage.*.effectiveDate", Strategy: "generalize_date", DatePolicy: "effective"},
		{Path: "coverage.*.address", Strategy: "generalize_address"},
		{Path: "coverage.*.memberId", Strategy: "fallback_pseudonymize", Labels: []string{"MEMBER_ID", "ACCOUNT_NUMBER"}},
		{Path: "coverage.*.payerName", Strategy: "detect_hash", Labels: []string{"ORGANIZATION", "FACILITY_NAME", "PERSON"}},
		{Path: "careTeam.*.name", Strategy: "detect_hash", Labels: []string{"PERSON"}},
		{Path: "careTeam.*.organization", Strategy: "detect_hash", Labels: []string{"ORGANIZATION", "FACILITY_NAME"}},
		{Path: "clinicalNotes.*.author", Strategy: "detect_hash", Labels: []string{"PERSON"}},
		{Path: "clinicalNotes.*.text", Strategy: "detect_hash"},
	}
}
