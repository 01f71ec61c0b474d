package mcpserver

import (
	"encoding/json"
	"fmt"
	"os"
	"time"
)

// ServerConfig holds the complete server configuration.
type ServerConfig struct {
	Server      ServerSettings `json:"server"`
	Storage     StorageConfig  `json:"storage"`
	Retrieval   RetrievalConfig `json:"retrieval"`
	RAG         RAGConfig      `json:"rag"`
	Review      ReviewConfig   `json:"review"`
	Logging     LoggingConfig  `json:"logging"`
}

// ServerSettings holds MCP server specific settings.
type ServerSettings struct {
	Name        string        `json:"name"`
	Version     string        `json:"version"`
	Description string        `json:"description"`
	Port        int           `json:"port"`
	Host        string        `json:"host"`
	Timeout     time.Duration `json:"timeout"`
}

// StorageConfig selects and tunes the three memory tiers.
type StorageConfig struct {
	ShortTerm ShortTermConfig `json:"short_term"`
	LongTerm  LongTermConfig  `json:"long_term"`
	Graph     GraphConfig     `json:"graph"`
}

// ShortTermConfig configures the Redis-backed KV tier.
type ShortTermConfig struct {
	Provider string        `json:"provider"` // "memory" or "redis"
	Addr     string        `json:"addr"`
	TTL      time.Duration `json:"ttl"`
}

// LongTermConfig configures the Qdrant-backed vector tier.
type LongTermConfig struct {
	Provider   string `json:"provider"` // "memory" or "qdrant"
	Host       string `json:"host"`
	Port       int    `json:"port"`
	VectorSize uint64 `json:"vector_size"`
	Naming     string `json:"naming"` // "file_based" or "user_based"
}

// GraphConfig configures the Mongo-backed graph/document tier.
type GraphConfig struct {
	Provider string `json:"provider"` // "memory" or "mongo"
	URI      string `json:"uri"`
	Database string `json:"database"`
}

// RetrievalConfig tunes the real-time retrieval pipeline.
type RetrievalConfig struct {
	CacheTTL      time.Duration `json:"cache_ttl"`
	WorkerPool    int           `json:"worker_pool"`
	PerTierTimeout time.Duration `json:"per_tier_timeout"`
}

// RAGConfig tunes the hybrid RAG fusion weights.
type RAGConfig struct {
	VectorWeight float64 `json:"vector_weight"`
	GraphWeight  float64 `json:"graph_weight"`
}

// ReviewConfig tunes the weekly memory review job.
type ReviewConfig struct {
	ArchiveAfterDays   int `json:"archive_after_days"`
	MaxAccessThreshold int `json:"max_access_threshold"`
	StaleCheckDays     int `json:"stale_check_days"`
}

// LoggingConfig holds logging configuration.
type LoggingConfig struct {
	Level  string `json:"level"`
	Format string `json:"format"`
	Output string `json:"output"`
}

// DefaultServerConfig returns a default server configuration running
// entirely on in-process backends, suitable for local/dev mode and tests.
func DefaultServerConfig() *ServerConfig {
	return &ServerConfig{
		Server: ServerSettings{
			Name:        "agentic-memory-system",
			Version:     "1.0.0",
			Description: "Agentic Memory System MCP Server",
			Port:        8080,
			Host:        "localhost",
			Timeout:     30 * time.Second,
		},
		Storage: StorageConfig{
			ShortTerm: ShortTermConfig{Provider: "memory", TTL: time.Hour},
			LongTerm:  LongTermConfig{Provider: "memory", VectorSize: 1536, Naming: "user_based"},
			Graph:     GraphConfig{Provider: "memory", Database: "memory"},
		},
		Retrieval: RetrievalConfig{
			CacheTTL:       300 * time.Second,
			WorkerPool:     4,
			PerTierTimeout: 5 * time.Second,
		},
		RAG: RAGConfig{
			VectorWeight: 0.6,
			GraphWeight:  0.4,
		},
		Review: ReviewConfig{
			ArchiveAfterDays:   90,
			MaxAccessThreshold: 3,
			StaleCheckDays:     180,
		},
		Logging: LoggingConfig{
			Level:  "info",
			Format: "json",
			Output: "stdout",
		},
	}
}

// LoadConfig loads configuration from a JSON file.
func LoadConfig(filename string) (*ServerConfig, error) {
	data, err := os.ReadFile(filename)
	if err != nil {
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}

	config := DefaultServerConfig()
	if err := json.Unmarshal(data, config); err != nil {
		return nil, fmt.Errorf("failed to parse config file: %w", err)
	}

	if err := config.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}

	return config, nil
}

// SaveConfig saves configuration to a JSON file.
func (c *ServerConfig) SaveConfig(filename string) error {
	data, err := json.MarshalIndent(c, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to marshal config: %w", err)
	}
	return os.WriteFile(filename, data, 0644)
}

// Validate validates the server configuration.
func (c *ServerConfig) Validate() error {
	if err := c.Server.Validate(); err != nil {
		return fmt.Errorf("server config validation failed: %w", err)
	}
	if err := c.Logging.Validate(); err != nil {
		return fmt.Errorf("logging config validation failed: %w", err)
	}
	if c.RAG.VectorWeight+c.RAG.GraphWeight <= 0 {
		return fmt.Errorf("rag fusion weights must sum to a positive value")
	}
	return nil
}

// Validate validates server settings.
func (s *ServerSettings) Validate() error {
	if s.Name == "" {
		return fmt.Errorf("server name cannot be empty")
	}
	if s.Version == "" {
		return fmt.Errorf("server version cannot be empty")
	}
	if s.Port <= 0 || s.Port > 65535 {
		return fmt.Errorf("server port must be between 1 and 65535, got %d", s.Port)
	}
	if s.Host == "" {
		return fmt.Errorf("server host cannot be empty")
	}
	if s.Timeout <= 0 {
		return fmt.Errorf("server timeout must be positive, got %v", s.Timeout)
	}
	return nil
}

// Validate validates logging configuration.
func (l *LoggingConfig) Validate() error {
	validLevels := []string{"debug", "info", "warn", "error", "fatal"}
	ok := false
	for _, level := range validLevels {
		if l.Level == level {
			ok = true
			break
		}
	}
	if !ok {
		return fmt.Errorf("invalid log level: %s, must be one of %v", l.Level, validLevels)
	}

	validFormats := []string{"json", "text"}
	ok = false
	for _, format := range validFormats {
		if l.Format == format {
			ok = true
			break
		}
	}
	if !ok {
		return fmt.Errorf("invalid log format: %s, must be one of %v", l.Format, validFormats)
	}
	if l.Output == "" {
		return fmt.Errorf("log output cannot be empty")
	}
	return nil
}
