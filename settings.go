package dnssd

import (
	"fmt"
	"runtime"
	"slices"
	"strings"
	"time"

	"github.com/go-viper/mapstructure/v2"
	"github.com/spf13/pflag"
	"github.com/spf13/viper"

	"github.com/axondata/go-dnssd/internal/logging"
)

// EnvPrefix prefixes every environment variable read by Settings
const EnvPrefix = "DNSSD"

// Settings are the process-level options of dnssd-service. The service
// table they point at is loaded separately by LoadServiceTable.
type Settings struct {
	// ServiceName is the identity registered with the host service manager
	ServiceName string `mapstructure:"service_name"`
	// ConfigFile overrides the environment-derived service table path
	ConfigFile string `mapstructure:"config_file"`
	// ConfigEnv names the environment variable holding the config base directory
	ConfigEnv string `mapstructure:"config_env"`
	// ConfigDir is the directory below the base directory
	ConfigDir string `mapstructure:"config_dir"`
	// LogLevel is DEBUG, INFO, WARN or ERROR
	LogLevel string `mapstructure:"log_level"`
	// LogFile is the log destination; empty logs to stderr
	LogFile string `mapstructure:"log_file"`
	// PollInterval bounds each wait on the control event queue
	PollInterval time.Duration `mapstructure:"poll_interval"`
	// DrainTimeout bounds the StopPending worker drain
	DrainTimeout time.Duration `mapstructure:"drain_timeout"`
	// StateFile is where resolved advertisements are published; empty disables it
	StateFile string `mapstructure:"state_file"`
	// WatchConfig warns when the service table changes on disk
	WatchConfig bool `mapstructure:"watch_config"`
	// Domain is the mDNS domain
	Domain string `mapstructure:"domain"`
	// PortAddress is the listen address probed for ephemeral ports
	PortAddress string `mapstructure:"port_address"`
}

// DefaultSettings returns the settings used when nothing is configured.
// On Windows the table lives at %ProgramData%\dnssd-service\config.toml;
// elsewhere at $CONFIGURATION_DIRECTORY/config.toml, the directory systemd
// provides through ConfigurationDirectory=.
func DefaultSettings() Settings {
	s := Settings{
		ServiceName:  DefaultServiceName,
		ConfigEnv:    "CONFIGURATION_DIRECTORY",
		LogLevel:     logging.LevelInfo,
		PollInterval: DefaultPollInterval,
		DrainTimeout: DefaultDrainTimeout,
		WatchConfig:  true,
		Domain:       DefaultDomain,
		PortAddress:  DefaultPortAddress,
	}
	if runtime.GOOS == "windows" {
		s.ConfigEnv = "ProgramData"
		s.ConfigDir = DefaultConfigDir
	}
	return s
}

// NewViper returns a viper instance carrying the defaults and reading
// DNSSD_* environment variables
func NewViper() *viper.Viper {
	v := viper.New()
	SetDefaults(v)
	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer("-", "_", ".", "_"))
	v.AutomaticEnv()
	return v
}

// SetDefaults registers DefaultSettings with v
func SetDefaults(v *viper.Viper) {
	d := DefaultSettings()
	v.SetDefault("service_name", d.ServiceName)
	v.SetDefault("config_file", d.ConfigFile)
	v.SetDefault("config_env", d.ConfigEnv)
	v.SetDefault("config_dir", d.ConfigDir)
	v.SetDefault("log_level", d.LogLevel)
	v.SetDefault("log_file", d.LogFile)
	v.SetDefault("poll_interval", d.PollInterval)
	v.SetDefault("drain_timeout", d.DrainTimeout)
	v.SetDefault("state_file", d.StateFile)
	v.SetDefault("watch_config", d.WatchConfig)
	v.SetDefault("domain", d.Domain)
	v.SetDefault("port_address", d.PortAddress)
}

// flagKeys maps command line flags onto settings keys
var flagKeys = map[string]string{
	"service-name":  "service_name",
	"config":        "config_file",
	"config-env":    "config_env",
	"config-dir":    "config_dir",
	"log-level":     "log_level",
	"log-file":      "log_file",
	"poll-interval": "poll_interval",
	"drain-timeout": "drain_timeout",
	"state-file":    "state_file",
	"watch-config":  "watch_config",
	"domain":        "domain",
	"port-address":  "port_address",
}

// AddFlags declares the settings flags on fs
func AddFlags(fs *pflag.FlagSet) {
	d := DefaultSettings()
	fs.String("service-name", d.ServiceName, "name registered with the host service manager")
	fs.String("config", "", "service table path (overrides the environment-derived location)")
	fs.String("config-env", d.ConfigEnv, "environment variable holding the config base directory")
	fs.String("config-dir", d.ConfigDir, "directory below the config base directory")
	fs.String("log-level", d.LogLevel, "log level: "+strings.Join(logging.ValidLevels(), ", "))
	fs.String("log-file", "", "log file path (default stderr)")
	fs.Duration("poll-interval", d.PollInterval, "bound on each wait for a control request")
	fs.Duration("drain-timeout", d.DrainTimeout, "time allowed for advertisements to be withdrawn on stop")
	fs.String("state-file", "", "publish resolved advertisements to this JSON file")
	fs.Bool("watch-config", d.WatchConfig, "warn when the service table changes on disk")
	fs.String("domain", d.Domain, "mDNS domain")
	fs.String("port-address", d.PortAddress, "listen address probed for auto-assigned ports")
}

// BindFlags binds the flags declared by AddFlags to v
func BindFlags(v *viper.Viper, fs *pflag.FlagSet) error {
	for flag, key := range flagKeys {
		f := fs.Lookup(flag)
		if f == nil {
			continue
		}
		if err := v.BindPFlag(key, f); err != nil {
			return fmt.Errorf("binding flag %s: %w", flag, err)
		}
	}
	return nil
}

// LoadSettings decodes and validates the settings held by v
func LoadSettings(v *viper.Viper) (Settings, error) {
	var s Settings
	hook := viper.DecodeHook(mapstructure.ComposeDecodeHookFunc(
		mapstructure.StringToTimeDurationHookFunc(),
		mapstructure.TextUnmarshallerHookFunc(),
	))
	if err := v.Unmarshal(&s, hook); err != nil {
		return Settings{}, fmt.Errorf("decoding settings: %w", err)
	}
	if err := s.Validate(); err != nil {
		return Settings{}, err
	}
	return s, nil
}

// Validate checks the settings for values the Supervisor cannot run with
func (s Settings) Validate() error {
	if s.ServiceName == "" {
		return fmt.Errorf("service_name must not be empty")
	}
	if s.ConfigFile == "" && s.ConfigEnv == "" {
		return fmt.Errorf("config_env must be set when config_file is empty")
	}
	if s.PollInterval <= 0 {
		return fmt.Errorf("poll_interval must be positive, got %s", s.PollInterval)
	}
	if s.DrainTimeout <= 0 {
		return fmt.Errorf("drain_timeout must be positive, got %s", s.DrainTimeout)
	}
	if !slices.Contains(logging.ValidLevels(), strings.ToUpper(s.LogLevel)) {
		return fmt.Errorf("log_level %q is not one of %s", s.LogLevel, strings.Join(logging.ValidLevels(), ", "))
	}
	return nil
}

// ResolveConfigPath returns the explicit config file or derives it from the
// environment
func (s Settings) ResolveConfigPath(lookupEnv func(string) (string, bool)) (string, error) {
	if s.ConfigFile != "" {
		return s.ConfigFile, nil
	}
	return ConfigPath(lookupEnv, s.ConfigEnv, s.ConfigDir, ConfigFileName)
}

// SupervisorOptions turns the settings into Supervisor options
func (s Settings) SupervisorOptions(configPath string, logger *logging.Logger) []Option {
	return []Option{
		WithServiceName(s.ServiceName),
		WithConfigPath(configPath),
		WithLogger(logger),
		WithPollInterval(s.PollInterval),
		WithDrainTimeout(s.DrainTimeout),
		WithStateFile(s.StateFile),
		WithConfigWatch(s.WatchConfig, DefaultWatchDebounce),
		WithPortAllocator(&TCPPortAllocator{Address: s.PortAddress}),
	}
}
