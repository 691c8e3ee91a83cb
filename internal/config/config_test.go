package config

import (
	"strings"
	"testing"
)

func TestDefaultsAreValid(t *testing.T) {
	if err := Validate(GetDefaults()); err != nil {
		t.Errorf("default configuration must validate: %v", err)
	}
}

func TestValidateRejectsBadConfig(t *testing.T) {
	tests := []struct {
		name    string
		mutate  func(*Config)
		wantErr string
	}{
		{
			"zero port",
			func(c *Config) { c.Server.Port = 0 },
			"invalid server port",
		},
		{
			"port too large",
			func(c *Config) { c.Server.Port = 70000 },
			"invalid server port",
		},
		{
			"empty hash secret",
			func(c *Config) { c.Privacy.HashSecret = "" },
			"hash_secret",
		},
		{
			"empty fallback secret",
			func(c *Config) { c.Privacy.FallbackSecret = "" },
			"fallback_secret",
		},
		{
			"shared secret",
			func(c *Config) { c.Privacy.FallbackSecret = c.Privacy.HashSecret },
			"must differ",
		},
		{
			"hash length zero",
			func(c *Config) { c.Privacy.HashLength = 0 },
			"hash_length",
		},
		{
			"hash length over digest size",
			func(c *Config) { c.Privacy.HashLength = 65 },
			"hash_length",
		},
		{
			"digit-led prefix",
			func(c *Config) { c.Privacy.HashPrefix = "9anon" },
			"hash_prefix",
		},
		{
			"bad reference time",
			func(c *Config) { c.Privacy.ReferenceNow = "June 1st 2024" },
			"reference_now",
		},
		{
			"no rules",
			func(c *Config) { c.Privacy.Rules = nil },
			"at least one field rule",
		},
		{
			"empty rule path",
			func(c *Config) { c.Privacy.Rules[0].Path = "" },
			"path must not be empty",
		},
		{
			"malformed rule path",
			func(c *Config) { c.Privacy.Rules[0].Path = "coverage..address" },
			"malformed path",
		},
		{
			"unknown strategy",
			func(c *Config) { c.Privacy.Rules[0].Strategy = "shred" },
			"unknown strategy",
		},
		{
			"generalize_date without policy",
			func(c *Config) {
				c.Privacy.Rules[0] = FieldRuleRaw{Path: "dob", Strategy: "generalize_date"}
			},
			"date_policy",
		},
		{
			"database mode without url",
			func(c *Config) { c.Storage.Mode = "database"; c.Storage.DatabaseURL = "" },
			"database_url",
		},
		{
			"sqlfile mode without path",
			func(c *Config) { c.Storage.Mode = "sqlfile"; c.Storage.SQLPath = "" },
			"sql_path",
		},
		{
			"unknown storage mode",
			func(c *Config) { c.Storage.Mode = "tape" },
			"invalid storage mode",
		},
		{
			"unknown log level",
			func(c *Config) { c.Logging.Level = "verbose" },
			"invalid log level",
		},
		{
			"unknown log format",
			func(c *Config) { c.Logging.Format = "xml" },
			"invalid log format",
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := GetDefaults()
			tt.mutate(cfg)
			err := Validate(cfg)
			if err == nil {
				t.Fatalf("expected error")
			}
			if !strings.Contains(err.Error(), tt.wantErr) {
				t.Errorf("error %q does not mention %q", err, tt.wantErr)
			}
		})
	}
}

func TestValidateAcceptsNoneStorage(t *testing.T) {
	cfg := GetDefaults()
	cfg.Storage.Mode = "none"
	cfg.Storage.SQLPath = ""
	if err := Validate(cfg); err != nil {
		t.Errorf("none storage should not require paths: %v", err)
	}
}

func TestDefaultRulesCoverPatientSchema(t *testing.T) {
	byPath := make(map[string]FieldRuleRaw)
	for _, rule := range DefaultFieldRules() {
		byPath[rule.Path] = rule
	}

	if rule := byPath["dob"]; rule.Strategy != "generalize_date" || rule.DatePolicy != "birth" {
		t.Errorf("dob rule = %+v", rule)
	}
	if rule := byPath["coverage.*.effectiveDate"]; rule.DatePolicy != "effective" {
		t.Errorf("effectiveDate rule = %+v", rule)
	}
	if rule := byPath["coverage.*.address"]; rule.Strategy != "generalize_address" {
		t.Errorf("address rule = %+v", rule)
	}
	if rule := byPath["mrn"]; rule.Strategy != "fallback_pseudonymize" {
		t.Errorf("mrn rule = %+v", rule)
	}
	if rule := byPath["gender"]; rule.Strategy != "passthrough" {
		t.Errorf("gender rule = %+v", rule)
	}
}
