// Package config loads querylens settings from a json or yaml file and the environment
package config

import (
	_ "embed"
	"encoding/json"
	"os"
	"strings"
	"time"

	"github.com/autom8ter/querylens"
	"github.com/autom8ter/querylens/errors"
	"github.com/autom8ter/querylens/util"
	"github.com/mitchellh/mapstructure"
	"github.com/spf13/viper"
	"github.com/xeipuuv/gojsonschema"
)

//go:embed schema.json
var settingsSchema string

const (
	// EnvPrefix prefixes the environment variables that override any setting, e.g. QUERYLENS_SERVER_PORT
	EnvPrefix = "QUERYLENS"
	// SecretPlaceholder is replaced in the mongodb uri by the value of MONGODB_PWD
	SecretPlaceholder = "<secret>"
)

// Config holds every querylens setting
type Config struct {
	MongoDB MongoDB `json:"mongodb"`
	Server  Server  `json:"server"`
	Store   Store   `json:"store"`
	Log     Log     `json:"log"`
	Search  Search  `json:"search"`
	RunIDs  RunIDs  `json:"runids"`
}

// MongoDB configures the mongodb store
type MongoDB struct {
	URI      string       `json:"uri"`
	Database string       `json:"database"`
	Options  MongoOptions `json:"options"`
}

// MongoOptions configures the pooled mongodb client
type MongoOptions struct {
	MaxPoolSize            int           `json:"max_pool_size" validate:"min=1"`
	ConnectTimeout         time.Duration `json:"connect_timeout"`
	ServerSelectionTimeout time.Duration `json:"server_selection_timeout"`
}

// Server configures the http server
type Server struct {
	Port             int           `json:"port" validate:"min=1,max=65535"`
	CORS             CORS          `json:"cors"`
	ValidateRequests bool          `json:"validate_requests"`
	FeedInterval     time.Duration `json:"feed_interval"`
}

// CORS configures cross origin requests
type CORS struct {
	Origins []string `json:"origins"`
}

// Store selects the store provider
type Store struct {
	Provider    string `json:"provider" validate:"oneof=mongodb embedded"`
	StoragePath string `json:"storage_path"`
}

// Log configures logging
type Log struct {
	Level string `json:"level"`
}

// Search configures the search path
type Search struct {
	Unscoped querylens.UnscopedSearchMode `json:"unscoped" validate:"oneof=match-null browse"`
}

// RunIDs configures the run id resolver
type RunIDs struct {
	Collection string `json:"collection" validate:"required"`
	MaxResults int    `json:"max_results" validate:"min=1"`
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("mongodb.uri", "")
	v.SetDefault("mongodb.database", "")
	v.SetDefault("mongodb.options.max_pool_size", 20)
	v.SetDefault("mongodb.options.connect_timeout", "10s")
	v.SetDefault("mongodb.options.server_selection_timeout", "10s")
	v.SetDefault("server.port", 3001)
	v.SetDefault("server.cors.origins", []string{"*"})
	v.SetDefault("server.validate_requests", false)
	v.SetDefault("server.feed_interval", "30s")
	v.SetDefault("store.provider", "mongodb")
	v.SetDefault("store.storage_path", "")
	v.SetDefault("log.level", "info")
	v.SetDefault("search.unscoped", string(querylens.UnscopedMatchNull))
	v.SetDefault("runids.collection", querylens.DefaultRunIDCollection)
	v.SetDefault("runids.max_results", querylens.DefaultMaxRunIDs)
}

// Load reads the settings file, if any, and applies the environment overrides:
// QUERYLENS_* sets any key, MONGODB_PWD fills the uri's <secret> placeholder,
// MONGODB_URI replaces the uri and PORT sets the server port.
// The merged settings are validated before they are returned.
func Load(path string) (*Config, error) {
	v := viper.New()
	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()
	setDefaults(v)
	if path != "" {
		v.SetConfigFile(path)
		if err := v.ReadInConfig(); err != nil {
			return nil, errors.Wrap(err, errors.Validation, "failed to read config file %s", path)
		}
	}
	if port := os.Getenv("PORT"); port != "" {
		v.Set("server.port", port)
	}
	var cfg Config
	if err := v.Unmarshal(&cfg, viper.DecoderConfigOption(func(c *mapstructure.DecoderConfig) {
		c.TagName = "json"
	})); err != nil {
		return nil, errors.Wrap(err, errors.Validation, "failed to decode config")
	}
	if pwd := os.Getenv("MONGODB_PWD"); pwd != "" {
		cfg.MongoDB.URI = strings.ReplaceAll(cfg.MongoDB.URI, SecretPlaceholder, pwd)
	}
	if uri := os.Getenv("MONGODB_URI"); uri != "" {
		cfg.MongoDB.URI = uri
	}
	cfg.Log.Level = strings.ToLower(cfg.Log.Level)
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// Validate validates the settings against the settings json schema, then the struct's validation tags
func (c *Config) Validate() error {
	bits, err := json.Marshal(c)
	if err != nil {
		return errors.Wrap(err, errors.Internal, "failed to encode config")
	}
	result, err := gojsonschema.Validate(gojsonschema.NewStringLoader(settingsSchema), gojsonschema.NewBytesLoader(bits))
	if err != nil {
		return errors.Wrap(err, errors.Internal, "failed to load settings schema")
	}
	if !result.Valid() {
		var errs []string
		for _, err := range result.Errors() {
			errs = append(errs, err.String())
		}
		return errors.New(errors.Validation, "invalid config: %s", strings.Join(errs, ", "))
	}
	return util.ValidateStruct(c)
}

// MaskedURI returns the mongodb uri with its credentials masked
func (c *Config) MaskedURI() string {
	return util.MaskSecret(c.MongoDB.URI)
}

// StoreParams returns the params of the configured store provider
func (c *Config) StoreParams() map[string]any {
	if c.Store.Provider == "embedded" {
		return map[string]any{
			"storage_path": c.Store.StoragePath,
		}
	}
	return map[string]any{
		"uri":                      c.MongoDB.URI,
		"database":                 c.MongoDB.Database,
		"max_pool_size":            c.MongoDB.Options.MaxPoolSize,
		"connect_timeout":          c.MongoDB.Options.ConnectTimeout,
		"server_selection_timeout": c.MongoDB.Options.ServerSelectionTimeout,
	}
}

// ServiceOptions returns the service options of the settings
func (c *Config) ServiceOptions(logger querylens.Logger) []querylens.Option {
	return []querylens.Option{
		querylens.WithLogger(logger),
		querylens.WithRunIDCollection(c.RunIDs.Collection),
		querylens.WithMaxRunIDs(c.RunIDs.MaxResults),
		querylens.WithUnscopedSearch(c.Search.Unscoped),
	}
}
