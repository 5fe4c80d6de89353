// Package config loads web3connect settings from an optional YAML file and
// the environment.
package config

import (
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/sigweihq/web3connect/pkg/chains"
	"github.com/sigweihq/web3connect/pkg/connectors"
	"github.com/sigweihq/web3connect/pkg/constants"
	"github.com/sigweihq/web3connect/pkg/preference"
	"github.com/spf13/viper"
)

// Config holds application configuration.
type Config struct {
	RPC         RPCConfig         `mapstructure:"rpc"`
	Pairing     PairingConfig     `mapstructure:"pairing"`
	Wallets     WalletsConfig     `mapstructure:"wallets"`
	Preferences PreferencesConfig `mapstructure:"preferences"`
	Chains      ChainsConfig      `mapstructure:"chains"`
	Log         LogConfig         `mapstructure:"log"`
}

// RPCConfig holds provider API keys. Empty keys fall back to public URLs.
type RPCConfig struct {
	InfuraKey  string `mapstructure:"infura_key"`
	AlchemyKey string `mapstructure:"alchemy_key"`
	GroveAppID string `mapstructure:"grove_app_id"`
}

// PairingConfig holds remote pairing settings.
type PairingConfig struct {
	ProjectID string                 `mapstructure:"project_id"`
	RelayURL  string                 `mapstructure:"relay_url"`
	Metadata  connectors.AppMetadata `mapstructure:"metadata"`
}

// WalletsConfig holds the endpoints of the injected wallets.
type WalletsConfig struct {
	InjectedURL      string `mapstructure:"injected_url"`
	OtherInjectedURL string `mapstructure:"other_injected_url"`
}

// PreferencesConfig selects where the last used connector is remembered.
type PreferencesConfig struct {
	Backend string `mapstructure:"backend"`
	Path    string `mapstructure:"path"`
}

// ChainsConfig holds chain table and endpoint settings.
type ChainsConfig struct {
	File            string        `mapstructure:"file"`
	DefaultChain    int64         `mapstructure:"default_chain"`
	HealthCheck     bool          `mapstructure:"health_check"`
	ChainList       bool          `mapstructure:"chainlist"`
	RefreshInterval time.Duration `mapstructure:"refresh_interval"`
}

// LogConfig holds logger settings.
type LogConfig struct {
	Level  string `mapstructure:"level"`
	Format string `mapstructure:"format"`
}

// Load reads configuration from path, or from WEB3CONNECT_CONFIG, or from
// config.yaml in the user config directory when neither is set. Only an
// explicitly named file has to exist. Env var overrides use prefix
// WEB3CONNECT_; the well known key variables are honoured without it.
func Load(path string) (Config, error) {
	v := viper.New()

	// default values
	v.SetDefault("pairing.metadata.name", constants.AppName)
	v.SetDefault("pairing.metadata.description", constants.AppDescription)
	v.SetDefault("wallets.injected_url", constants.DefaultWalletURL)
	v.SetDefault("preferences.backend", preference.BackendFile)
	v.SetDefault("chains.default_chain", constants.ChainMainnet)
	v.SetDefault("chains.health_check", false)
	v.SetDefault("chains.chainlist", false)
	v.SetDefault("chains.refresh_interval", constants.EndpointRefreshInterval)
	v.SetDefault("log.level", "info")
	v.SetDefault("log.format", "text")

	v.SetConfigType("yaml")

	if path == "" {
		path = os.Getenv(constants.EnvConfigFile)
	}
	explicit := path != ""
	if explicit {
		v.SetConfigFile(path)
	} else if dir, err := os.UserConfigDir(); err == nil {
		v.AddConfigPath(filepath.Join(dir, constants.DefaultConfigDir))
		v.SetConfigName("config")
	}

	v.SetEnvPrefix(constants.EnvPrefix)
	v.AutomaticEnv()
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	for key, env := range map[string]string{
		"rpc.infura_key":     constants.EnvInfuraKey,
		"rpc.alchemy_key":    constants.EnvAlchemyKey,
		"rpc.grove_app_id":   constants.EnvGroveAppID,
		"pairing.project_id": constants.EnvPairingProject,
	} {
		prefixed := constants.EnvPrefix + "_" + strings.ToUpper(strings.ReplaceAll(key, ".", "_"))
		if err := v.BindEnv(key, prefixed, env); err != nil {
			return Config{}, fmt.Errorf("bind %s: %w", env, err)
		}
	}

	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if explicit || !errors.As(err, &notFound) {
			return Config{}, fmt.Errorf("read config: %w", err)
		}
	}

	var c Config
	if err := v.Unmarshal(&c); err != nil {
		return Config{}, fmt.Errorf("unmarshal config: %w", err)
	}
	return c, nil
}

// Environment converts the configuration into adapter environment settings,
// loading the extra chain file when one is configured.
func (c Config) Environment() (connectors.EnvironmentConfig, error) {
	env := connectors.EnvironmentConfig{
		Keys: chains.Keys{
			InfuraKey:  c.RPC.InfuraKey,
			AlchemyKey: c.RPC.AlchemyKey,
			GroveAppID: c.RPC.GroveAppID,
		},
		ProjectID:    c.Pairing.ProjectID,
		Metadata:     c.Pairing.Metadata,
		DefaultChain: c.Chains.DefaultChain,
		HealthCheck:  c.Chains.HealthCheck,
		ChainList:    c.Chains.ChainList,
	}
	if c.Chains.File != "" {
		extra, err := chains.LoadFile(c.Chains.File)
		if err != nil {
			return connectors.EnvironmentConfig{}, err
		}
		env.ExtraChains = extra
	}
	return env, nil
}

// NewLogger builds the logger described by cfg, writing to w
func NewLogger(cfg LogConfig, w io.Writer) (*slog.Logger, error) {
	var level slog.Level
	if cfg.Level != "" {
		if err := level.UnmarshalText([]byte(cfg.Level)); err != nil {
			return nil, fmt.Errorf("log level: %w", err)
		}
	}

	opts := &slog.HandlerOptions{Level: level}
	switch strings.ToLower(cfg.Format) {
	case "", "text":
		return slog.New(slog.NewTextHandler(w, opts)), nil
	case "json":
		return slog.New(slog.NewJSONHandler(w, opts)), nil
	default:
		return nil, fmt.Errorf("unknown log format %q", cfg.Format)
	}
}
