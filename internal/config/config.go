package config

import (
	"fmt"
	"os"
	"strconv"
	"time"

	"gopkg.in/yaml.v3"
)

// Config is the full net-scout configuration. Thresholds and limits are
// carried explicitly into the rule engine and enricher at construction so
// concurrent invocations cannot interfere through shared mutable state.
type Config struct {
	Database   DatabaseConfig   `yaml:"database"`
	Detection  DetectionConfig  `yaml:"detection"`
	Enrichment EnrichmentConfig `yaml:"enrichment"`
	Alerting   AlertingConfig   `yaml:"alerting"`
	API        APIConfig        `yaml:"api"`
	Logging    LoggingConfig    `yaml:"logging"`

	// set when any provider toggle came from the environment, so the
	// all-on default does not override an explicit opt-out.
	enrichToggleFromEnv bool
}

type DatabaseConfig struct {
	Host     string `yaml:"host"`
	Port     string `yaml:"port"`
	User     string `yaml:"user"`
	Password string `yaml:"password"`
	Name     string `yaml:"name"`
	SSLMode  string `yaml:"ssl_mode"`
}

// DSN builds the lib/pq connection string.
func (d DatabaseConfig) DSN() string {
	return fmt.Sprintf("host=%s port=%s user=%s password=%s dbname=%s sslmode=%s",
		d.Host, d.Port, d.User, d.Password, d.Name, d.SSLMode)
}

type DetectionConfig struct {
	HorizontalDstIPThreshold int    `yaml:"horizontal_dst_ip_threshold"`
	HorizontalConnThreshold  int    `yaml:"horizontal_conn_threshold"`
	VerticalPortsThreshold   int    `yaml:"vertical_ports_threshold"`
	RepeatedConnThreshold    int    `yaml:"repeated_conn_threshold"`
	PerRuleLimit             int    `yaml:"per_rule_limit"`
	MaxAlertsPerRun          int    `yaml:"max_alerts_per_run"`
	DefaultSince             string `yaml:"default_since"`
}

type EnrichmentConfig struct {
	EnableRDNS       bool          `yaml:"enable_rdns"`
	EnableWhois      bool          `yaml:"enable_whois"`
	EnableTraceroute bool          `yaml:"enable_traceroute"`
	TracerouteHops   int           `yaml:"traceroute_max_hops"`
	TracerouteWait   time.Duration `yaml:"traceroute_timeout"`
	WhoisWait        time.Duration `yaml:"whois_timeout"`
	RDNSWait         time.Duration `yaml:"rdns_timeout"`
	Sleep            time.Duration `yaml:"sleep"`
	Workers          int           `yaml:"workers"`
	MaxPerRun        int           `yaml:"max_per_run"`
	MaxInteractive   int           `yaml:"max_interactive"`
	PDNSAPIURL       string        `yaml:"pdns_api_url"`
	PDNSAPIKey       string        `yaml:"pdns_api_key"`
}

// PDNSEnabled reports whether the passive DNS provider has credentials.
// Absence is not an error, just a skipped provider.
func (e EnrichmentConfig) PDNSEnabled() bool {
	return e.PDNSAPIURL != "" && e.PDNSAPIKey != ""
}

type AlertingConfig struct {
	Telegram TelegramConfig `yaml:"telegram"`
}

type TelegramConfig struct {
	Enabled   bool   `yaml:"enabled"`
	BotToken  string `yaml:"bot_token"`
	ChatID    string `yaml:"chat_id"`
	ParseMode string `yaml:"parse_mode"`
}

type APIConfig struct {
	Port string `yaml:"port"`
}

type LoggingConfig struct {
	Level  string `yaml:"level"`
	Format string `yaml:"format"`
}

// Load reads the YAML config file, applies NET_SCOUT_* environment
// overrides and fills defaults. A missing file is not an error; the
// defaults plus environment are used.
func Load(path string) (*Config, error) {
	cfg := &Config{}

	data, err := os.ReadFile(path)
	if err == nil {
		if err := yaml.Unmarshal(data, cfg); err != nil {
			return nil, fmt.Errorf("failed to parse config file %s: %w", path, err)
		}
	} else if !os.IsNotExist(err) {
		return nil, fmt.Errorf("failed to read config file %s: %w", path, err)
	}

	cfg.applyEnv()

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}
	return cfg, nil
}

func (c *Config) applyEnv() {
	envStr(&c.Database.Host, "NET_SCOUT_DB_HOST")
	envStr(&c.Database.Port, "NET_SCOUT_DB_PORT")
	envStr(&c.Database.User, "NET_SCOUT_DB_USER")
	envStr(&c.Database.Password, "NET_SCOUT_DB_PASSWORD")
	envStr(&c.Database.Name, "NET_SCOUT_DB_NAME")

	envInt(&c.Detection.HorizontalDstIPThreshold, "NET_SCOUT_HORIZONTAL_DST_IP_THRESHOLD")
	envInt(&c.Detection.HorizontalConnThreshold, "NET_SCOUT_HORIZONTAL_CONN_THRESHOLD")
	envInt(&c.Detection.VerticalPortsThreshold, "NET_SCOUT_VERTICAL_PORTS_THRESHOLD")
	envInt(&c.Detection.RepeatedConnThreshold, "NET_SCOUT_REPEATED_CONN_THRESHOLD")
	envInt(&c.Detection.MaxAlertsPerRun, "NET_SCOUT_MAX_ALERTS_PER_RUN")
	envStr(&c.Detection.DefaultSince, "NET_SCOUT_DEFAULT_SINCE")

	if envBool(&c.Enrichment.EnableRDNS, "NET_SCOUT_ENABLE_RDNS") {
		c.enrichToggleFromEnv = true
	}
	if envBool(&c.Enrichment.EnableWhois, "NET_SCOUT_ENABLE_WHOIS") {
		c.enrichToggleFromEnv = true
	}
	if envBool(&c.Enrichment.EnableTraceroute, "NET_SCOUT_ENABLE_TRACEROUTE") {
		c.enrichToggleFromEnv = true
	}
	envInt(&c.Enrichment.TracerouteHops, "NET_SCOUT_TRACEROUTE_MAX_HOPS")
	envInt(&c.Enrichment.MaxPerRun, "NET_SCOUT_MAX_ENRICH_PER_RUN")
	envStr(&c.Enrichment.PDNSAPIURL, "PDNS_API_URL")
	envStr(&c.Enrichment.PDNSAPIKey, "PDNS_API_KEY")

	envStr(&c.Logging.Level, "NET_SCOUT_LOG_LEVEL")
}

// Validate fills defaults for anything unset.
func (c *Config) Validate() error {
	if c.Database.Host == "" {
		c.Database.Host = "localhost"
	}
	if c.Database.Port == "" {
		c.Database.Port = "5432"
	}
	if c.Database.User == "" {
		c.Database.User = "netscout"
	}
	if c.Database.Name == "" {
		c.Database.Name = "net_sentinel"
	}
	if c.Database.SSLMode == "" {
		c.Database.SSLMode = "disable"
	}

	d := &c.Detection
	if d.HorizontalDstIPThreshold <= 0 {
		d.HorizontalDstIPThreshold = 50
	}
	if d.HorizontalConnThreshold <= 0 {
		d.HorizontalConnThreshold = 200
	}
	if d.VerticalPortsThreshold <= 0 {
		d.VerticalPortsThreshold = 50
	}
	if d.RepeatedConnThreshold <= 0 {
		d.RepeatedConnThreshold = 200
	}
	if d.PerRuleLimit <= 0 {
		d.PerRuleLimit = 200
	}
	if d.MaxAlertsPerRun <= 0 {
		d.MaxAlertsPerRun = 500
	}
	if d.DefaultSince == "" {
		d.DefaultSince = "1 hour"
	}

	e := &c.Enrichment
	if c.rawEnrichmentUnset() {
		e.EnableRDNS = true
		e.EnableWhois = true
		e.EnableTraceroute = true
	}
	if e.TracerouteHops <= 0 {
		e.TracerouteHops = 20
	}
	if e.TracerouteWait <= 0 {
		e.TracerouteWait = 10 * time.Second
	}
	if e.WhoisWait <= 0 {
		e.WhoisWait = 8 * time.Second
	}
	if e.RDNSWait <= 0 {
		e.RDNSWait = 5 * time.Second
	}
	if e.Sleep <= 0 {
		e.Sleep = 200 * time.Millisecond
	}
	if e.Workers <= 0 {
		e.Workers = 4
	}
	if e.MaxPerRun <= 0 {
		e.MaxPerRun = 50
	}
	if e.MaxInteractive <= 0 {
		e.MaxInteractive = 10
	}

	if c.Alerting.Telegram.ParseMode == "" {
		c.Alerting.Telegram.ParseMode = "Markdown"
	}
	if c.API.Port == "" {
		c.API.Port = "5001"
	}
	if c.Logging.Level == "" {
		c.Logging.Level = "INFO"
	}
	if c.Logging.Format == "" {
		c.Logging.Format = "text"
	}
	return nil
}

// rawEnrichmentUnset detects the zero-value enrichment section so the
// provider toggles can default to on without a tri-state YAML type.
func (c *Config) rawEnrichmentUnset() bool {
	if c.enrichToggleFromEnv {
		return false
	}
	e := c.Enrichment
	return !e.EnableRDNS && !e.EnableWhois && !e.EnableTraceroute &&
		e.TracerouteHops == 0 && e.Sleep == 0 && e.MaxPerRun == 0
}

// Default returns the built-in configuration.
func Default() *Config {
	cfg := &Config{}
	cfg.applyEnv()
	_ = cfg.Validate()
	return cfg
}

func envStr(dst *string, key string) {
	if v := os.Getenv(key); v != "" {
		*dst = v
	}
}

func envInt(dst *int, key string) {
	if v := os.Getenv(key); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			*dst = n
		}
	}
}

func envBool(dst *bool, key string) bool {
	switch os.Getenv(key) {
	case "":
		return false
	case "0", "false", "False":
		*dst = false
	default:
		*dst = true
	}
	return true
}
