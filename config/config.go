// Package config loads the daemon configuration from file and
// environment and maps it onto server options and user records.
//
// Precedence, highest first: FTPKIT_* environment variables, the
// configuration file, built-in defaults. An environment variable takes
// effect only for a key that has a built-in default (listen, logging.*,
// metrics.*) or that appears in the configuration file.
package config

import (
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/spf13/viper"

	"github.com/ftpkit/ftpkit/server"
)

// Config is the full daemon configuration.
type Config struct {
	Listen  string        `mapstructure:"listen" validate:"required"`
	Logging LoggingConfig `mapstructure:"logging"`
	Metrics MetricsConfig `mapstructure:"metrics"`

	BlockSize          int           `mapstructure:"block_size" validate:"gte=0"`
	MaximumConnections int           `mapstructure:"maximum_connections" validate:"gte=0"`
	SocketTimeout      time.Duration `mapstructure:"socket_timeout"`
	IdleTimeout        time.Duration `mapstructure:"idle_timeout"`
	WaitFutureTimeout  time.Duration `mapstructure:"wait_future_timeout"`
	PathTimeout        time.Duration `mapstructure:"path_timeout"`
	Encoding           string        `mapstructure:"encoding"`

	ReadSpeedLimit               int64 `mapstructure:"read_speed_limit" validate:"gte=0"`
	WriteSpeedLimit              int64 `mapstructure:"write_speed_limit" validate:"gte=0"`
	ReadSpeedLimitPerConnection  int64 `mapstructure:"read_speed_limit_per_connection" validate:"gte=0"`
	WriteSpeedLimitPerConnection int64 `mapstructure:"write_speed_limit_per_connection" validate:"gte=0"`

	PassiveForcedAddress string `mapstructure:"passive_forced_address" validate:"omitempty,ip4_addr"`
	DataPortsFrom        int    `mapstructure:"data_ports_from" validate:"gte=0,lte=65535"`
	DataPortsTo          int    `mapstructure:"data_ports_to" validate:"gte=0,lte=65535,gtefield=DataPortsFrom"`

	Users []UserConfig `mapstructure:"users" validate:"dive"`
}

// LoggingConfig controls the slog setup.
type LoggingConfig struct {
	Level  string `mapstructure:"level" validate:"omitempty,oneof=debug info warn error"`
	Format string `mapstructure:"format" validate:"omitempty,oneof=text json"`
}

// MetricsConfig controls the optional Prometheus endpoint.
type MetricsConfig struct {
	Enabled bool   `mapstructure:"enabled"`
	Listen  string `mapstructure:"listen" validate:"required_if=Enabled true"`
}

// UserConfig is one account in the configuration file.
type UserConfig struct {
	Login    string `mapstructure:"login"`
	Password string `mapstructure:"password"`
	BasePath string `mapstructure:"base_path" validate:"required"`
	HomePath string `mapstructure:"home_path"`

	MaximumConnections int `mapstructure:"maximum_connections" validate:"gte=0"`

	ReadSpeedLimit               int64 `mapstructure:"read_speed_limit" validate:"gte=0"`
	WriteSpeedLimit              int64 `mapstructure:"write_speed_limit" validate:"gte=0"`
	ReadSpeedLimitPerConnection  int64 `mapstructure:"read_speed_limit_per_connection" validate:"gte=0"`
	WriteSpeedLimitPerConnection int64 `mapstructure:"write_speed_limit_per_connection" validate:"gte=0"`

	Permissions []PermissionConfig `mapstructure:"permissions" validate:"dive"`
}

// PermissionConfig is one path permission of a user.
type PermissionConfig struct {
	Path     string `mapstructure:"path" validate:"required,startswith=/"`
	Readable bool   `mapstructure:"readable"`
	Writable bool   `mapstructure:"writable"`
}

// Default returns the built-in configuration.
func Default() *Config {
	return &Config{
		Listen:  ":2121",
		Logging: LoggingConfig{Level: "info", Format: "text"},
		Metrics: MetricsConfig{Listen: ":9121"},
	}
}

// Load reads the configuration from configPath (empty uses defaults
// plus environment only) and validates it.
func Load(configPath string) (*Config, error) {
	v := viper.New()
	setupViper(v, configPath)

	if configPath != "" {
		if err := v.ReadInConfig(); err != nil {
			if os.IsNotExist(err) {
				return nil, fmt.Errorf("configuration file not found: %s", configPath)
			}
			if _, ok := err.(viper.ConfigFileNotFoundError); ok {
				return nil, fmt.Errorf("configuration file not found: %s", configPath)
			}
			return nil, fmt.Errorf("failed to read config file: %w", err)
		}
	}

	cfg := &Config{}
	if err := v.Unmarshal(cfg); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}
	if err := Validate(cfg); err != nil {
		return nil, err
	}
	return cfg, nil
}

func setupViper(v *viper.Viper, configPath string) {
	v.SetEnvPrefix("FTPKIT")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	// Defaults registered here are also what makes environment-only
	// overrides visible to Unmarshal.
	d := Default()
	v.SetDefault("listen", d.Listen)
	v.SetDefault("logging.level", d.Logging.Level)
	v.SetDefault("logging.format", d.Logging.Format)
	v.SetDefault("metrics.enabled", d.Metrics.Enabled)
	v.SetDefault("metrics.listen", d.Metrics.Listen)

	if configPath != "" {
		v.SetConfigFile(configPath)
	}
}

// Validate runs struct validation over the whole configuration.
func Validate(cfg *Config) error {
	validate := validator.New()
	if err := validate.Struct(cfg); err != nil {
		return fmt.Errorf("configuration validation failed: %w", err)
	}
	return nil
}

// ServerOptions maps the configuration onto server options.
func (c *Config) ServerOptions() []server.Option {
	opts := []server.Option{}

	users := make([]*server.User, 0, len(c.Users))
	for _, uc := range c.Users {
		users = append(users, uc.toUser())
	}
	if len(users) > 0 {
		opts = append(opts, server.WithUsers(users...))
	}

	if c.BlockSize > 0 {
		opts = append(opts, server.WithBlockSize(c.BlockSize))
	}
	if c.MaximumConnections > 0 {
		opts = append(opts, server.WithMaximumConnections(c.MaximumConnections))
	}
	if c.SocketTimeout > 0 {
		opts = append(opts, server.WithSocketTimeout(c.SocketTimeout))
	}
	if c.IdleTimeout > 0 {
		opts = append(opts, server.WithIdleTimeout(c.IdleTimeout))
	}
	if c.WaitFutureTimeout > 0 {
		opts = append(opts, server.WithWaitFutureTimeout(c.WaitFutureTimeout))
	}
	if c.PathTimeout > 0 {
		opts = append(opts, server.WithPathTimeout(c.PathTimeout))
	}
	if c.Encoding != "" {
		opts = append(opts, server.WithEncoding(c.Encoding))
	}
	if c.ReadSpeedLimit > 0 || c.WriteSpeedLimit > 0 {
		opts = append(opts, server.WithSpeedLimits(c.ReadSpeedLimit, c.WriteSpeedLimit))
	}
	if c.ReadSpeedLimitPerConnection > 0 || c.WriteSpeedLimitPerConnection > 0 {
		opts = append(opts, server.WithSpeedLimitsPerConnection(
			c.ReadSpeedLimitPerConnection, c.WriteSpeedLimitPerConnection))
	}
	if c.PassiveForcedAddress != "" {
		opts = append(opts, server.WithPassiveForcedAddress(c.PassiveForcedAddress))
	}
	if c.DataPortsFrom > 0 && c.DataPortsTo >= c.DataPortsFrom {
		ports := make([]int, 0, c.DataPortsTo-c.DataPortsFrom+1)
		for p := c.DataPortsFrom; p <= c.DataPortsTo; p++ {
			ports = append(ports, p)
		}
		opts = append(opts, server.WithDataPorts(ports))
	}
	return opts
}

func (uc UserConfig) toUser() *server.User {
	perms := make([]server.Permission, 0, len(uc.Permissions))
	for _, pc := range uc.Permissions {
		perms = append(perms, server.Permission{
			Path:     pc.Path,
			Readable: pc.Readable,
			Writable: pc.Writable,
		})
	}
	return &server.User{
		Login:                        uc.Login,
		Password:                     uc.Password,
		BasePath:                     uc.BasePath,
		HomePath:                     uc.HomePath,
		Permissions:                  perms,
		MaximumConnections:           uc.MaximumConnections,
		ReadSpeedLimit:               uc.ReadSpeedLimit,
		WriteSpeedLimit:              uc.WriteSpeedLimit,
		ReadSpeedLimitPerConnection:  uc.ReadSpeedLimitPerConnection,
		WriteSpeedLimitPerConnection: uc.WriteSpeedLimitPerConnection,
	}
}
