// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package config

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/url"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/caarlos0/env/v11"
	"github.com/tidwall/jsonc"
	"gopkg.in/yaml.v3"

	"github.com/bureau-foundation/shopkeep/lib/ref"
)

// EnvironmentPrefix prefixes every environment override.
const EnvironmentPrefix = "SHOPKEEP_"

// Config is the complete shopkeep configuration.
type Config struct {
	// AdminID is the one Matrix user allowed to run admin commands.
	AdminID string `yaml:"admin_id" json:"admin_id" env:"ADMIN_ID"`

	// CommandPrefix starts every command message. Default: "!".
	CommandPrefix string `yaml:"command_prefix" json:"command_prefix" env:"COMMAND_PREFIX"`

	Matrix       MatrixConfig       `yaml:"matrix" json:"matrix" envPrefix:"MATRIX_"`
	Rooms        RoomsConfig        `yaml:"rooms" json:"rooms" envPrefix:"ROOMS_"`
	LiveStock    LiveStockConfig    `yaml:"live_stock" json:"live_stock" envPrefix:"LIVE_STOCK_"`
	Progress     ProgressConfig     `yaml:"progress" json:"progress" envPrefix:"PROGRESS_"`
	Import       ImportConfig       `yaml:"import" json:"import" envPrefix:"IMPORT_"`
	Confirmation ConfirmationConfig `yaml:"confirmation" json:"confirmation" envPrefix:"CONFIRMATION_"`
	Database     DatabaseConfig     `yaml:"database" json:"database" envPrefix:"DATABASE_"`
	Ops          OpsConfig          `yaml:"ops" json:"ops" envPrefix:"OPS_"`
}

// MatrixConfig locates the homeserver and the bot's credentials.
type MatrixConfig struct {
	Homeserver string `yaml:"homeserver" json:"homeserver" env:"HOMESERVER"`
	UserID     string `yaml:"user_id" json:"user_id" env:"USER_ID"`

	// AccessTokenFile holds the bot's access token. The token itself
	// never appears in the configuration.
	AccessTokenFile string `yaml:"access_token_file" json:"access_token_file" env:"ACCESS_TOKEN_FILE"`
}

// RoomsConfig names the rooms the bot works in. Each is a room ID
// ("!abc:server") or alias ("#shop:server").
type RoomsConfig struct {
	Commands  string `yaml:"commands" json:"commands" env:"COMMANDS"`
	LiveStock string `yaml:"live_stock" json:"live_stock" env:"LIVE_STOCK"`
}

// LiveStockConfig configures the live stock message.
type LiveStockConfig struct {
	Interval Duration `yaml:"interval" json:"interval" env:"INTERVAL"`
}

// ProgressConfig sets how often batch operations report progress.
type ProgressConfig struct {
	Every       int      `yaml:"every" json:"every" env:"EVERY"`
	MinInterval Duration `yaml:"min_interval" json:"min_interval" env:"MIN_INTERVAL"`
}

// ImportConfig limits stock file uploads.
type ImportConfig struct {
	MaxSize           int64    `yaml:"max_size" json:"max_size" env:"MAX_SIZE"`
	AllowedExtensions []string `yaml:"allowed_extensions" json:"allowed_extensions" env:"ALLOWED_EXTENSIONS" envSeparator:","`
}

// ConfirmationConfig configures reaction confirmations.
type ConfirmationConfig struct {
	Timeout Duration `yaml:"timeout" json:"timeout" env:"TIMEOUT"`
}

// DatabaseConfig locates the SQLite database.
type DatabaseConfig struct {
	Path     string `yaml:"path" json:"path" env:"PATH"`
	PoolSize int    `yaml:"pool_size" json:"pool_size" env:"POOL_SIZE"`
}

// OpsConfig configures the operator surfaces. An empty value disables
// that surface.
type OpsConfig struct {
	Socket      string `yaml:"socket" json:"socket" env:"SOCKET"`
	HTTPAddress string `yaml:"http_address" json:"http_address" env:"HTTP_ADDRESS"`
}

// Default returns the configuration every file is decoded over.
func Default() *Config {
	return &Config{
		CommandPrefix: "!",
		LiveStock:     LiveStockConfig{Interval: Duration(15 * time.Second)},
		Progress:      ProgressConfig{Every: 10},
		Import: ImportConfig{
			MaxSize:           100 * 1024,
			AllowedExtensions: []string{"txt"},
		},
		Confirmation: ConfirmationConfig{Timeout: Duration(30 * time.Second)},
		Database:     DatabaseConfig{Path: "shopkeep.db", PoolSize: 4},
		Ops:          OpsConfig{Socket: "shopkeep.sock"},
	}
}

// Load loads the file named by SHOPKEEP_CONFIG.
func Load() (*Config, error) {
	path := os.Getenv(EnvironmentPrefix + "CONFIG")
	if path == "" {
		return nil, fmt.Errorf("%sCONFIG environment variable not set; "+
			"set it to the path of your shopkeep config file, or use --config", EnvironmentPrefix)
	}
	return LoadFile(path)
}

// LoadFile loads path over Default and applies environment overrides.
// The result is not validated.
func LoadFile(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("config: %w", err)
	}
	cfg := Default()
	if err := cfg.decode(path, data); err != nil {
		return nil, err
	}
	if err := cfg.applyEnvironment(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func (c *Config) decode(path string, data []byte) error {
	switch extension := strings.ToLower(filepath.Ext(path)); extension {
	case ".yaml", ".yml":
		if err := yaml.Unmarshal(data, c); err != nil {
			return fmt.Errorf("config: parsing %s: %w", path, err)
		}
	case ".json", ".jsonc":
		if err := json.Unmarshal(jsonc.ToJSON(data), c); err != nil {
			return fmt.Errorf("config: parsing %s: %w", path, err)
		}
	default:
		return fmt.Errorf("config: %s: unsupported extension %q (use .yaml, .yml, .json, or .jsonc)", path, extension)
	}
	return nil
}

func (c *Config) applyEnvironment() error {
	if err := env.ParseWithOptions(c, env.Options{Prefix: EnvironmentPrefix}); err != nil {
		return fmt.Errorf("config: environment overrides: %w", err)
	}
	return nil
}

// Validate checks the configuration, reporting every problem at once.
func (c *Config) Validate() error {
	var errs []error

	if c.AdminID == "" {
		errs = append(errs, errors.New("admin_id is required"))
	} else if _, err := ref.ParseUserID(c.AdminID); err != nil {
		errs = append(errs, fmt.Errorf("admin_id: %w", err))
	}
	if strings.TrimSpace(c.CommandPrefix) == "" {
		errs = append(errs, errors.New("command_prefix must not be empty"))
	}

	if c.Matrix.Homeserver == "" {
		errs = append(errs, errors.New("matrix.homeserver is required"))
	} else if parsed, err := url.Parse(c.Matrix.Homeserver); err != nil || parsed.Host == "" {
		errs = append(errs, fmt.Errorf("matrix.homeserver %q is not a valid URL", c.Matrix.Homeserver))
	}
	if _, err := ref.ParseUserID(c.Matrix.UserID); err != nil {
		errs = append(errs, fmt.Errorf("matrix.user_id: %w", err))
	}
	if c.Matrix.AccessTokenFile == "" {
		errs = append(errs, errors.New("matrix.access_token_file is required"))
	}

	if c.Rooms.Commands == "" {
		errs = append(errs, errors.New("rooms.commands is required"))
	}
	if c.Rooms.LiveStock == "" {
		errs = append(errs, errors.New("rooms.live_stock is required"))
	}

	if c.LiveStock.Interval <= 0 {
		errs = append(errs, errors.New("live_stock.interval must be positive"))
	}
	if c.Progress.Every < 1 {
		errs = append(errs, errors.New("progress.every must be at least 1"))
	}
	if c.Progress.MinInterval < 0 {
		errs = append(errs, errors.New("progress.min_interval must not be negative"))
	}
	if c.Import.MaxSize <= 0 {
		errs = append(errs, errors.New("import.max_size must be positive"))
	}
	if len(c.Import.AllowedExtensions) == 0 {
		errs = append(errs, errors.New("import.allowed_extensions must list at least one extension"))
	}
	if c.Confirmation.Timeout <= 0 {
		errs = append(errs, errors.New("confirmation.timeout must be positive"))
	}
	if c.Database.Path == "" {
		errs = append(errs, errors.New("database.path is required"))
	}

	return errors.Join(errs...)
}

// ReadAccessToken reads the access token file, trimming whitespace.
func (c *Config) ReadAccessToken() ([]byte, error) {
	data, err := os.ReadFile(c.Matrix.AccessTokenFile)
	if err != nil {
		return nil, fmt.Errorf("config: reading access token: %w", err)
	}
	token := []byte(strings.TrimSpace(string(data)))
	clear(data)
	if len(token) == 0 {
		return nil, fmt.Errorf("config: access token file %s is empty", c.Matrix.AccessTokenFile)
	}
	return token, nil
}
