// Package config provides shared configuration for clusterd's master and
// worker processes using Viper, following the same defaults/env-overlay/override
// conventions across every deployment of this balancer.
package config

import (
	"errors"
	"log/slog"
	"os"
	"strings"

	"github.com/spf13/pflag"
	"github.com/spf13/viper"
)

// TransportKind selects which bundled transport plug-in the CLI wires up.
type TransportKind string

const (
	TransportHTTP TransportKind = "http"
	TransportWS   TransportKind = "ws"
	TransportGRPC TransportKind = "grpc"
)

// ClusterConfig is the `cluster:` section of the configuration surface:
// worker count, respawn policy, and the environment overlay applied to
// every spawned child.
type ClusterConfig struct {
	Workers int               `mapstructure:"workers"`
	Respawn bool              `mapstructure:"respawn"`
	Env     map[string]string `mapstructure:"env"`
}

// ListenConfig describes the single port the master binds.
type ListenConfig struct {
	Port     int    `mapstructure:"port"`
	Hostname string `mapstructure:"hostname"`
}

// Config holds the complete configuration surface for a clusterd process.
type Config struct {
	LogLevel      string        `mapstructure:"log_level"`
	TransportKind TransportKind `mapstructure:"transport_kind"`
	Listen        ListenConfig  `mapstructure:"listen"`
	Cluster       ClusterConfig `mapstructure:"cluster"`
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("log_level", "info")
	v.SetDefault("transport_kind", string(TransportHTTP))

	v.SetDefault("listen.port", 8080)
	v.SetDefault("listen.hostname", "")

	v.SetDefault("cluster.workers", 0) // 0 => resolved to runtime.NumCPU() by the caller
	v.SetDefault("cluster.respawn", true)
	v.SetDefault("cluster.env", map[string]string{})
}

// ConfigureViper wires up the env-var overlay (CLUSTERD_ prefix, "." -> "_")
// and the default config file search (./config.{yaml,toml,json,...}).
func ConfigureViper() {
	viper.SetEnvPrefix("CLUSTERD")
	viper.AutomaticEnv()
	viper.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	viper.SetConfigName("config")
	viper.AddConfigPath(".")
}

func init() {
	ConfigureViper()
}

// Load reads configuration from configPath (if non-empty), applies
// defaults and environment overrides, then applies any comma-separated
// "key:value" pairs from overrideStr with the highest precedence.
func Load(configPath string, overrideStr string) *Config {
	setDefaults(viper.GetViper())

	if configPath != "" {
		viper.SetConfigFile(configPath)
	}

	if err := viper.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if !errors.As(err, &notFound) {
			slog.Error("failed to read config file", "error", err, "config_file", viper.ConfigFileUsed())
			os.Exit(1)
		}
		slog.Info("no config file found, using defaults")
	} else {
		slog.Info("loaded config file", "path", viper.ConfigFileUsed())
	}

	var cfg Config
	if err := viper.Unmarshal(&cfg); err != nil {
		slog.Error("unable to unmarshal config", "error", err)
		os.Exit(1)
	}

	if overrideStr != "" {
		for _, pair := range strings.Split(overrideStr, ",") {
			parts := strings.SplitN(pair, ":", 2)
			if len(parts) != 2 {
				slog.Error("invalid override format", "pair", pair, "expected", "key:value")
				os.Exit(1)
			}
			viper.Set(strings.TrimSpace(parts[0]), strings.TrimSpace(parts[1]))
		}
		if err := viper.Unmarshal(&cfg); err != nil {
			slog.Error("failed to apply overrides to config", "error", err)
			os.Exit(1)
		}
	}

	return &cfg
}

// BindFlags binds pflag names to viper keys, so command-line flags take
// precedence over config-file values but below explicit overrides.
func BindFlags(bindFlags map[string]string) {
	for flagName, viperKey := range bindFlags {
		if err := viper.BindPFlag(viperKey, pflag.Lookup(flagName)); err != nil {
			slog.Error("failed to bind flag", "flag", flagName, "error", err)
			os.Exit(1)
		}
	}
}
