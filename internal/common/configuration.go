/*******************************************************************************
* Copyright (C) 2026 the Eclipse BaSyx Authors and Fraunhofer IESE
*
* Permission is hereby granted, free of charge, to any person obtaining
* a copy of this software and associated documentation files (the
* "Software"), to deal in the Software without restriction, including
* without limitation the rights to use, copy, modify, merge, publish,
* distribute, sublicense, and/or sell copies of the Software, and to
* permit persons to whom the Software is furnished to do so, subject to
* the following conditions:
*
* The above copyright notice and this permission notice shall be
* included in all copies or substantial portions of the Software.
*
* THE SOFTWARE IS PROVIDED "AS IS", WITHOUT WARRANTY OF ANY KIND,
* EXPRESS OR IMPLIED, INCLUDING BUT NOT LIMITED TO THE WARRANTIES OF
* MERCHANTABILITY, FITNESS FOR A PARTICULAR PURPOSE AND
* NONINFRINGEMENT. IN NO EVENT SHALL THE AUTHORS OR COPYRIGHT HOLDERS BE
* LIABLE FOR ANY CLAIM, DAMAGES OR OTHER LIABILITY, WHETHER IN AN ACTION
* OF CONTRACT, TORT OR OTHERWISE, ARISING FROM, OUT OF OR IN CONNECTION
* WITH THE SOFTWARE OR THE USE OR OTHER DEALINGS IN THE SOFTWARE.
*
* SPDX-License-Identifier: MIT
******************************************************************************/

// Package common provides configuration management, database initialization,
// error helpers and HTTP endpoint utilities for the BaSyx access rule service.
// It includes support for YAML configuration files, environment variable
// overrides, CORS setup and health endpoints.
// nolint:all
package common

import (
	"fmt"
	"log"
	"strings"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/cors"
	jsoniter "github.com/json-iterator/go"
	"github.com/spf13/viper"
)

// Rule store backends selectable through abac.backend.
const (
	BackendMemory   = "memory"
	BackendPostgres = "postgres"
	BackendMongo    = "mongo"
)

// PrintSplash displays the service banner during start-up.
func PrintSplash() {
	log.Printf(`
	██████╗  █████╗ ███████╗██╗   ██╗██╗  ██╗     █████╗ ██████╗  █████╗  ██████╗
	██╔══██╗██╔══██╗██╔════╝╚██╗ ██╔╝╚██╗██╔╝    ██╔══██╗██╔══██╗██╔══██╗██╔════╝
	██████╔╝███████║███████╗ ╚████╔╝  ╚███╔╝     ███████║██████╔╝███████║██║
	██╔══██╗██╔══██║╚════██║  ╚██╔╝   ██╔██╗     ██╔══██║██╔══██╗██╔══██║██║
	██████╔╝██║  ██║███████║   ██║   ██╔╝ ██╗    ██║  ██║██████╔╝██║  ██║╚██████╗
	╚═════╝ ╚═╝  ╚═╝╚══════╝   ╚═╝   ╚═╝  ╚═╝    ╚═╝  ╚═╝╚═════╝ ╚═╝  ╚═╝ ╚═════╝
	`)
}

// Config represents the complete configuration of the access rule service.
type Config struct {
	Server     ServerConfig   `mapstructure:"server" json:"server"`
	Postgres   PostgresConfig `mapstructure:"postgres" json:"postgres"`
	Mongo      MongoConfig    `mapstructure:"mongo" json:"mongo"`
	Redis      RedisConfig    `mapstructure:"redis" json:"redis"`
	CorsConfig CorsConfig     `mapstructure:"cors" json:"cors"`
	ABAC       ABACConfig     `mapstructure:"abac" json:"abac"`
}

// ServerConfig contains HTTP server configuration parameters.
type ServerConfig struct {
	Host        string `mapstructure:"host" json:"host"`
	Port        int    `mapstructure:"port" json:"port"`               // HTTP server port (default: 5010)
	ContextPath string `mapstructure:"contextPath" json:"contextPath"` // Base path for all endpoints
}

// PostgresConfig contains PostgreSQL connection parameters for the rule repository.
type PostgresConfig struct {
	Host                   string `mapstructure:"host" json:"host"`
	Port                   int    `mapstructure:"port" json:"port"`
	User                   string `mapstructure:"user" json:"user"`
	Password               string `mapstructure:"password" json:"password"`
	DBName                 string `mapstructure:"dbname" json:"dbname"`
	SSLMode                string `mapstructure:"sslmode" json:"sslmode"`
	MaxOpenConnections     int    `mapstructure:"maxOpenConnections" json:"maxOpenConnections"`
	MaxIdleConnections     int    `mapstructure:"maxIdleConnections" json:"maxIdleConnections"`
	ConnMaxLifetimeMinutes int    `mapstructure:"connMaxLifetimeMinutes" json:"connMaxLifetimeMinutes"`
}

// DSN renders the lib/pq connection URL.
func (p PostgresConfig) DSN() string {
	sslMode := p.SSLMode
	if sslMode == "" {
		sslMode = "disable"
	}
	return fmt.Sprintf("postgres://%s:%s@%s:%d/%s?sslmode=%s", p.User, p.Password, p.Host, p.Port, p.DBName, sslMode)
}

// MongoConfig contains MongoDB connection parameters for the rule repository.
type MongoConfig struct {
	URI            string `mapstructure:"uri" json:"uri"`
	Database       string `mapstructure:"database" json:"database"`
	TimeoutSeconds int    `mapstructure:"timeoutSeconds" json:"timeoutSeconds"`
}

// RedisConfig configures the rule change notifier. An empty Addr disables it.
type RedisConfig struct {
	Addr     string `mapstructure:"addr" json:"addr"`
	Password string `mapstructure:"password" json:"password"`
	DB       int    `mapstructure:"db" json:"db"`
	Channel  string `mapstructure:"channel" json:"channel"`
}

// CorsConfig contains Cross-Origin Resource Sharing (CORS) policy settings.
type CorsConfig struct {
	AllowedOrigins   []string `mapstructure:"allowedOrigins" json:"allowedOrigins"`
	AllowedMethods   []string `mapstructure:"allowedMethods" json:"allowedMethods"`
	AllowedHeaders   []string `mapstructure:"allowedHeaders" json:"allowedHeaders"`
	AllowCredentials bool     `mapstructure:"allowCredentials" json:"allowCredentials"`
}

// ABACConfig contains the settings of the decision engine and its rule store.
type ABACConfig struct {
	Enabled          bool   `mapstructure:"enabled" json:"enabled"`                   // Protect the rule API with the engine itself
	ModelPath        string `mapstructure:"modelPath" json:"modelPath"`               // Access rule model file (JSON or YAML)
	Backend          string `mapstructure:"backend" json:"backend"`                   // memory, postgres or mongo
	RulesTable       string `mapstructure:"rulesTable" json:"rulesTable"`             // Postgres table holding rules
	RulesCollection  string `mapstructure:"rulesCollection" json:"rulesCollection"`   // Mongo collection holding rules
	SyncModelToStore bool   `mapstructure:"syncModelToStore" json:"syncModelToStore"` // Replace stored rules with the model file on start-up
	RegexCacheSize   int64  `mapstructure:"regexCacheSize" json:"regexCacheSize"`     // Maximum number of cached compiled patterns
	Debug            bool   `mapstructure:"debug" json:"debug"`                       // Log per-rule evaluation details
	SubjectHeader    string `mapstructure:"subjectHeader" json:"subjectHeader"`       // Header carrying the caller's claims as JSON
}

// LoadConfig loads the configuration from a YAML file and environment variables.
//
// Precedence, highest first: environment variables, configuration file,
// defaults. Environment variables use underscore notation (ABAC_BACKEND for
// abac.backend).
//
// Example:
//
//	config, err := LoadConfig("config.yaml")
//	if err != nil {
//	    log.Fatal("Failed to load config:", err)
//	}
func LoadConfig(configPath string) (*Config, error) {
	v := viper.New()

	setDefaults(v)

	if configPath != "" {
		log.Printf("📁 Loading config from file: %s", configPath)
		v.SetConfigFile(configPath)
		if err := v.ReadInConfig(); err != nil {
			return nil, fmt.Errorf("read config: %w", err)
		}
	} else {
		log.Println("📁 No config file provided, loading from environment variables only")
	}

	v.AutomaticEnv()
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))

	cfg := new(Config)
	if err := v.Unmarshal(cfg); err != nil {
		return nil, fmt.Errorf("unmarshal config: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	log.Println("✅ Configuration loaded successfully")
	PrintConfiguration(cfg)
	return cfg, nil
}

// Validate checks cross-field constraints that defaults cannot express.
func (c *Config) Validate() error {
	switch c.ABAC.Backend {
	case BackendMemory, BackendPostgres, BackendMongo:
	default:
		return fmt.Errorf("abac.backend must be one of %s, %s, %s (got %q)", BackendMemory, BackendPostgres, BackendMongo, c.ABAC.Backend)
	}
	if c.ABAC.Backend == BackendMemory && strings.TrimSpace(c.ABAC.ModelPath) == "" {
		return fmt.Errorf("abac.modelPath is required for the memory backend")
	}
	if c.ABAC.RegexCacheSize <= 0 {
		return fmt.Errorf("abac.regexCacheSize must be positive")
	}
	return nil
}

// setDefaults configures defaults that let the service start against a
// local development environment.
func setDefaults(v *viper.Viper) {
	v.SetDefault("server.host", "0.0.0.0")
	v.SetDefault("server.port", 5010)
	v.SetDefault("server.contextPath", "")

	v.SetDefault("postgres.host", "db")
	v.SetDefault("postgres.port", 5432)
	v.SetDefault("postgres.user", "admin")
	v.SetDefault("postgres.password", "admin123")
	v.SetDefault("postgres.dbname", "basyxTestDB")
	v.SetDefault("postgres.sslmode", "disable")
	v.SetDefault("postgres.maxOpenConnections", 10)
	v.SetDefault("postgres.maxIdleConnections", 10)
	v.SetDefault("postgres.connMaxLifetimeMinutes", 5)

	v.SetDefault("mongo.uri", "mongodb://mongo:27017")
	v.SetDefault("mongo.database", "basyx")
	v.SetDefault("mongo.timeoutSeconds", 10)

	v.SetDefault("redis.addr", "")
	v.SetDefault("redis.db", 0)
	v.SetDefault("redis.channel", "basyx:abac:rules")

	v.SetDefault("cors.allowedOrigins", []string{"*"})
	v.SetDefault("cors.allowedMethods", []string{"GET", "POST", "PUT", "DELETE", "OPTIONS"})
	v.SetDefault("cors.allowedHeaders", []string{"*"})
	v.SetDefault("cors.allowCredentials", true)

	v.SetDefault("abac.enabled", false)
	v.SetDefault("abac.modelPath", "config/access_rules/access-rules.json")
	v.SetDefault("abac.backend", BackendMemory)
	v.SetDefault("abac.rulesTable", "abac_access_rules")
	v.SetDefault("abac.rulesCollection", "access_rules")
	v.SetDefault("abac.syncModelToStore", false)
	v.SetDefault("abac.regexCacheSize", 1024)
	v.SetDefault("abac.debug", false)
	v.SetDefault("abac.subjectHeader", "X-Subject-Claims")
}

// PrintConfiguration prints the configuration with credentials redacted.
func PrintConfiguration(cfg *Config) {
	cfgCopy := *cfg

	if cfg.Postgres.Host != "" {
		cfgCopy.Postgres.Host = "****"
		cfgCopy.Postgres.User = "****"
		cfgCopy.Postgres.Password = "****"
	}
	if cfg.Mongo.URI != "" {
		cfgCopy.Mongo.URI = "****"
	}
	if cfg.Redis.Password != "" {
		cfgCopy.Redis.Password = "****"
	}

	configJSON, err := jsoniter.ConfigCompatibleWithStandardLibrary.MarshalIndent(cfgCopy, "", "  ")
	if err != nil {
		log.Printf("Unable to marshal configuration to JSON: %v", err)
		return
	}

	log.Printf("📜 Loaded configuration:\n%s", string(configJSON))
}

// AddCors configures Cross-Origin Resource Sharing (CORS) middleware for the router.
func AddCors(r chi.Router, config *Config) {
	c := cors.New(cors.Options{
		AllowedOrigins:   config.CorsConfig.AllowedOrigins,
		AllowedMethods:   config.CorsConfig.AllowedMethods,
		AllowedHeaders:   config.CorsConfig.AllowedHeaders,
		AllowCredentials: config.CorsConfig.AllowCredentials,
	})
	r.Use(c.Handler)
}
