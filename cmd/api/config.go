package main

import (
	"encoding/json"
	"fmt"
	"os"
	"time"
)

type SeedHost struct {
	Email            string `json:"email"`
	PropertyID       string `json:"property_id"`
	PhoneNumberID    string `json:"phone_number_id"`
	AccessToken      string `json:"access_token"`
	VerifyToken      string `json:"verify_token"`
	APIVersion       string `json:"api_version"`
	ExpiryTemplate   string `json:"expiry_template"`
	TemplateLanguage string `json:"template_language"`
}

type Config struct {
	HttpPort               int           `json:"http_port"`
	DbConnString           string        `json:"db_conn_string"`
	RedisAddr              string        `json:"redis_addr"`
	AppSecret              string        `json:"app_secret"`
	GraphAPIURL            string        `json:"graph_api_url"`
	BatchTimeoutStr        string        `json:"batch_timeout"`
	BatchTimeout           time.Duration `json:"-"`
	TemplateMaxRetry       int           `json:"template_max_retry"`
	ExpiryTemplateName     string        `json:"expiry_template_name"`
	ExpiryTemplateLanguage string        `json:"expiry_template_language"`
	DedupeTTLStr           string        `json:"dedupe_ttl"`
	DedupeTTL              time.Duration `json:"-"`
	SeedHosts              []SeedHost    `json:"seed_hosts"`
}

// ReadConfigJson reads json formatted configuration from the given file and
// applies environment overrides
func ReadConfigJson(configFile string) (*Config, error) {
	content, err := os.ReadFile(configFile)
	if err != nil {
		return nil, err
	}

	cfg := new(Config)

	if err = json.Unmarshal(content, cfg); err != nil {
		return nil, err
	}

	cfg.applyEnv()

	if cfg.BatchTimeout, err = parseOptionalDuration(cfg.BatchTimeoutStr); err != nil {
		return nil, fmt.Errorf("batch_timeout: %w", err)
	}
	if cfg.DedupeTTL, err = parseOptionalDuration(cfg.DedupeTTLStr); err != nil {
		return nil, fmt.Errorf("dedupe_ttl: %w", err)
	}

	if cfg.HttpPort == 0 {
		cfg.HttpPort = 6060
	}
	if cfg.TemplateMaxRetry <= 0 {
		cfg.TemplateMaxRetry = 3
	}

	return cfg, nil
}

func (c *Config) applyEnv() {
	if v := os.Getenv("WHATSAPP_APP_SECRET"); v != "" {
		c.AppSecret = v
	}
	if v := os.Getenv("DB_CONN_STRING"); v != "" {
		c.DbConnString = v
	}
	if v := os.Getenv("REDIS_ADDR"); v != "" {
		c.RedisAddr = v
	}
}

// empty means "use the service default"
func parseOptionalDuration(s string) (time.Duration, error) {
	if s == "" {
		return 0, nil
	}
	return time.ParseDuration(s)
}
