package main

import (
	"fmt"
	"os"

	"gopkg.in/yaml.v3"

	"github.com/stackmint/botflow/pkg/adapters/memory"
	"github.com/stackmint/botflow/pkg/domain"
)

// Config is the serve command's configuration file.
type Config struct {
	// Addr is the listen address of the HTTP server.
	Addr string `yaml:"addr"`

	// LogLevel is one of debug, info, warn, error.
	LogLevel string `yaml:"log_level"`

	// CacheTTL is the tool response cache validity window, as a Go duration
	// string ("10m"). Empty keeps the executor default.
	CacheTTL string `yaml:"cache_ttl"`

	// FlowsFile seeds flows and tools from a YAML document.
	FlowsFile string `yaml:"flows_file"`

	Redis RedisConfig `yaml:"redis"`
}

// RedisConfig configures the optional Redis backend. An empty Addr keeps
// everything in memory.
type RedisConfig struct {
	Addr     string `yaml:"addr"`
	Password string `yaml:"password"`
	DB       int    `yaml:"db"`
}

func defaultConfig() Config {
	return Config{
		Addr:     ":8080",
		LogLevel: "info",
	}
}

// loadConfig reads the YAML config file, then applies environment overrides.
// A missing file is not an error; the defaults stand.
func loadConfig(path string) (Config, error) {
	cfg := defaultConfig()

	raw, err := os.ReadFile(path)
	if err == nil {
		if err := yaml.Unmarshal(raw, &cfg); err != nil {
			return cfg, fmt.Errorf("failed to parse config %s: %w", path, err)
		}
	} else if !os.IsNotExist(err) {
		return cfg, fmt.Errorf("failed to read config %s: %w", path, err)
	}

	if v := os.Getenv("BOTFLOW_ADDR"); v != "" {
		cfg.Addr = v
	}
	if v := os.Getenv("BOTFLOW_LOG_LEVEL"); v != "" {
		cfg.LogLevel = v
	}
	if v := os.Getenv("BOTFLOW_REDIS_ADDR"); v != "" {
		cfg.Redis.Addr = v
	}
	if v := os.Getenv("BOTFLOW_REDIS_PASSWORD"); v != "" {
		cfg.Redis.Password = v
	}
	if v := os.Getenv("BOTFLOW_FLOWS_FILE"); v != "" {
		cfg.FlowsFile = v
	}

	return cfg, nil
}

// flowsDocument is the shape of the flow seed file.
type flowsDocument struct {
	Flows []*domain.Flow `yaml:"flows"`
	Tools []*domain.Tool `yaml:"tools"`
}

// loadFlows seeds a flow store from the configured YAML document.
func loadFlows(path string, store *memory.FlowStore) error {
	raw, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("failed to read flows file %s: %w", path, err)
	}

	var doc flowsDocument
	if err := yaml.Unmarshal(raw, &doc); err != nil {
		return fmt.Errorf("failed to parse flows file %s: %w", path, err)
	}

	for _, flow := range doc.Flows {
		store.PutFlow(flow)
	}
	for _, tool := range doc.Tools {
		store.PutTool(tool)
	}
	return nil
}
