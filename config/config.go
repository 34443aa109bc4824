// Package config loads and validates the sync service configuration from a
// JSON file with environment variable overrides for endpoints and secrets.
package config

import (
	"encoding/json"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/cvaz1306/owui-kb-s3-sync-webhook/errors"
)

// Config represents the complete service configuration.
type Config struct {
	Service   ServiceConfig   `json:"service"`
	S3        S3Config        `json:"s3"`
	Knowledge KnowledgeConfig `json:"knowledge"`
	NATS      NATSConfig      `json:"nats"`
	Mapping   MappingConfig   `json:"mapping"`
	HTTP      HTTPConfig      `json:"http"`
}

// ServiceConfig identifies the service instance.
type ServiceConfig struct {
	Name string `json:"name"`
}

// S3Config points at the bucket being synchronized.
type S3Config struct {
	Endpoint        string `json:"endpoint"`
	Region          string `json:"region"`
	Bucket          string `json:"bucket"`
	AccessKeyID     string `json:"access_key_id"`
	SecretAccessKey string `json:"secret_access_key"`
	ForcePathStyle  bool   `json:"force_path_style"`
}

// KnowledgeConfig points at the Open WebUI instance and collection.
type KnowledgeConfig struct {
	BaseURL     string `json:"base_url"`
	APIKey      string `json:"api_key"`
	KnowledgeID string `json:"knowledge_id"`
}

// NATSConfig configures the KV mapping backend.
type NATSConfig struct {
	URLs         []string `json:"urls"`
	KVBucket     string   `json:"kv_bucket"`
	ProbeTimeout Duration `json:"probe_timeout"`
}

// MappingConfig selects and tunes the mapping store.
type MappingConfig struct {
	Backend      string `json:"backend"` // auto, kv, file, memory
	FilePath     string `json:"file_path"`
	PruneOrphans bool   `json:"prune_orphans"`
}

// HTTPConfig configures the gateway listener.
type HTTPConfig struct {
	Addr            string   `json:"addr"`
	MaxRequestSize  int64    `json:"max_request_size"`
	RequestTimeout  Duration `json:"request_timeout"`
	ShutdownTimeout Duration `json:"shutdown_timeout"`
}

// Duration wraps time.Duration so JSON configs can say "30s" or "2m".
type Duration time.Duration

// UnmarshalJSON accepts both duration strings and nanosecond numbers.
func (d *Duration) UnmarshalJSON(data []byte) error {
	if len(data) > 0 && data[0] == '"' {
		var s string
		if err := json.Unmarshal(data, &s); err != nil {
			return err
		}
		parsed, err := time.ParseDuration(s)
		if err != nil {
			return err
		}
		*d = Duration(parsed)
		return nil
	}

	var n int64
	if err := json.Unmarshal(data, &n); err != nil {
		return err
	}
	*d = Duration(n)
	return nil
}

// MarshalJSON renders the duration as a string.
func (d Duration) MarshalJSON() ([]byte, error) {
	return json.Marshal(time.Duration(d).String())
}

// Std returns the value as a time.Duration.
func (d Duration) Std() time.Duration {
	return time.Duration(d)
}

// Load reads, overrides and validates a configuration file.
func Load(path string) (*Config, error) {
	data, err := safeReadFile(path)
	if err != nil {
		return nil, errors.WrapInvalid(err, "Config", "Load", "read config file")
	}

	if err := validateJSONDepth(data); err != nil {
		return nil, errors.WrapInvalid(err, "Config", "Load", "validate JSON structure")
	}

	var cfg Config
	if err := json.Unmarshal(data, &cfg); err != nil {
		return nil, errors.WrapInvalid(err, "Config", "Load", "parse config file")
	}

	cfg.applyDefaults()
	if err := cfg.applyEnvOverrides(); err != nil {
		return nil, err
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	return &cfg, nil
}

func (c *Config) applyDefaults() {
	if c.Service.Name == "" {
		c.Service.Name = "owui-kb-s3-sync-webhook"
	}
	if c.S3.Region == "" {
		c.S3.Region = "us-east-1"
	}
	if c.Mapping.Backend == "" {
		c.Mapping.Backend = "auto"
	}
	if c.Mapping.FilePath == "" {
		c.Mapping.FilePath = "mappings.json"
	}
	if c.NATS.KVBucket == "" {
		c.NATS.KVBucket = "owui-mappings"
	}
	if c.NATS.ProbeTimeout == 0 {
		c.NATS.ProbeTimeout = Duration(5 * time.Second)
	}
	if c.HTTP.Addr == "" {
		c.HTTP.Addr = ":5005"
	}
	if c.HTTP.RequestTimeout == 0 {
		c.HTTP.RequestTimeout = Duration(30 * time.Second)
	}
	if c.HTTP.ShutdownTimeout == 0 {
		c.HTTP.ShutdownTimeout = Duration(10 * time.Second)
	}
}

// envOverride applies an environment variable to a target when set.
func envOverride(key string, target *string) error {
	value, ok := os.LookupEnv(key)
	if !ok {
		return nil
	}
	if err := validateEnvVar(key, value); err != nil {
		return errors.WrapInvalid(err, "Config", "applyEnvOverrides", "validate "+key)
	}
	*target = value
	return nil
}

// applyEnvOverrides lets deployment environments inject endpoints and
// secrets without writing them into the config file.
func (c *Config) applyEnvOverrides() error {
	stringOverrides := []struct {
		key    string
		target *string
	}{
		{"OWUI_SYNC_S3_ENDPOINT", &c.S3.Endpoint},
		{"OWUI_SYNC_S3_REGION", &c.S3.Region},
		{"OWUI_SYNC_S3_BUCKET", &c.S3.Bucket},
		{"OWUI_SYNC_S3_ACCESS_KEY", &c.S3.AccessKeyID},
		{"OWUI_SYNC_S3_SECRET_KEY", &c.S3.SecretAccessKey},
		{"OWUI_SYNC_OWUI_URL", &c.Knowledge.BaseURL},
		{"OWUI_SYNC_OWUI_API_KEY", &c.Knowledge.APIKey},
		{"OWUI_SYNC_KNOWLEDGE_ID", &c.Knowledge.KnowledgeID},
		{"OWUI_SYNC_KV_BUCKET", &c.NATS.KVBucket},
		{"OWUI_SYNC_MAPPING_BACKEND", &c.Mapping.Backend},
		{"OWUI_SYNC_MAPPING_FILE", &c.Mapping.FilePath},
		{"OWUI_SYNC_HTTP_ADDR", &c.HTTP.Addr},
	}
	for _, o := range stringOverrides {
		if err := envOverride(o.key, o.target); err != nil {
			return err
		}
	}

	if value, ok := os.LookupEnv("OWUI_SYNC_NATS_URLS"); ok {
		if err := validateEnvVar("OWUI_SYNC_NATS_URLS", value); err != nil {
			return errors.WrapInvalid(err, "Config", "applyEnvOverrides",
				"validate OWUI_SYNC_NATS_URLS")
		}
		urls := strings.Split(value, ",")
		c.NATS.URLs = c.NATS.URLs[:0]
		for _, u := range urls {
			if trimmed := strings.TrimSpace(u); trimmed != "" {
				c.NATS.URLs = append(c.NATS.URLs, trimmed)
			}
		}
	}

	if value, ok := os.LookupEnv("OWUI_SYNC_PRUNE_ORPHANS"); ok {
		parsed, err := strconv.ParseBool(value)
		if err != nil {
			return errors.WrapInvalid(err, "Config", "applyEnvOverrides",
				"parse OWUI_SYNC_PRUNE_ORPHANS")
		}
		c.Mapping.PruneOrphans = parsed
	}

	return nil
}

// Validate rejects configurations the service cannot run with.
func (c *Config) Validate() error {
	if c.S3.Bucket == "" {
		return errors.WrapInvalid(errors.ErrMissingConfig, "Config", "Validate",
			"s3.bucket is required")
	}
	if c.Knowledge.BaseURL == "" {
		return errors.WrapInvalid(errors.ErrMissingConfig, "Config", "Validate",
			"knowledge.base_url is required")
	}
	if c.Knowledge.APIKey == "" {
		return errors.WrapInvalid(errors.ErrMissingConfig, "Config", "Validate",
			"knowledge.api_key is required (set OWUI_SYNC_OWUI_API_KEY)")
	}
	if c.Knowledge.KnowledgeID == "" {
		return errors.WrapInvalid(errors.ErrMissingConfig, "Config", "Validate",
			"knowledge.knowledge_id is required")
	}

	switch c.Mapping.Backend {
	case "auto", "kv", "file", "memory":
	default:
		return errors.WrapInvalid(errors.ErrInvalidConfig, "Config", "Validate",
			"mapping.backend must be auto, kv, file or memory")
	}

	if c.Mapping.Backend == "kv" || (c.Mapping.Backend == "auto" && len(c.NATS.URLs) > 0) {
		if c.NATS.KVBucket == "" {
			return errors.WrapInvalid(errors.ErrMissingConfig, "Config", "Validate",
				"nats.kv_bucket is required for the kv backend")
		}
	}
	if c.Mapping.Backend == "kv" && len(c.NATS.URLs) == 0 {
		return errors.WrapInvalid(errors.ErrMissingConfig, "Config", "Validate",
			"nats.urls is required when mapping.backend is kv")
	}
	if (c.Mapping.Backend == "file" || c.Mapping.Backend == "auto") && c.Mapping.FilePath == "" {
		return errors.WrapInvalid(errors.ErrMissingConfig, "Config", "Validate",
			"mapping.file_path is required for the file backend")
	}

	if c.HTTP.MaxRequestSize < 0 {
		return errors.WrapInvalid(errors.ErrInvalidConfig, "Config", "Validate",
			"http.max_request_size cannot be negative")
	}

	return nil
}
