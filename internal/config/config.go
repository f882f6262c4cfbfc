package config

import (
	"io/fs"
	"os"
	"strings"
	"time"

	"codeberg.org/mutker/powerstatd/internal/errors"
	"codeberg.org/mutker/powerstatd/internal/sysfs"
	"github.com/joho/godotenv"
	"github.com/spf13/pflag"
	"github.com/spf13/viper"
)

const (
	DefaultInterval         = 60
	DefaultDiskPollInterval = 5
	DefaultLogLevel         = string(LogLevelInfo)
	DefaultConfigFile       = "/etc/powerstatd.toml"
	DefaultPIDFile          = "/run/powerstatd.pid"
	DefaultMetricsDB        = "/var/lib/powerstatd/reports.db"
	DefaultTextfile         = "/var/lib/node_exporter/textfile_collector/powerstatd.prom"

	defaultEnvPrefix = "POWERSTATD"
	defaultEnvFile   = ".env"
)

type Config struct {
	Interval         int    `mapstructure:"interval"`
	DiskPollInterval int    `mapstructure:"disk_poll_interval"`
	DiskDevice       string `mapstructure:"disk_device"`
	NoDisk           bool   `mapstructure:"no_disk"`
	CPUList          string `mapstructure:"cpus"`
	Arch             string `mapstructure:"arch"`
	SysfsRoot        string `mapstructure:"sysfs_root"`
	LogLevel         string `mapstructure:"log_level"`
	Debug            bool   `mapstructure:"debug"`
	Verbose          bool   `mapstructure:"verbose"`
	Metrics          bool   `mapstructure:"metrics"`
	MetricsDB        string `mapstructure:"metrics_db"`
	Textfile         string `mapstructure:"textfile"`
	PIDFile          string `mapstructure:"pid_file"`
	Once             bool   `mapstructure:"once"`

	// CPUs is CPUList parsed by Validate.
	CPUs []int `mapstructure:"-"`
}

func newFlagSet() *pflag.FlagSet {
	flags := pflag.NewFlagSet("powerstatd", pflag.ContinueOnError)

	flags.String("config", "", "Path to configuration file")
	flags.Int("interval", DefaultInterval, "Seconds between published reports")
	flags.Int("disk-poll-interval", DefaultDiskPollInterval, "Seconds between disk power mode queries")
	flags.String("disk-device", "", "Disk to probe (default: disk backing /)")
	flags.Bool("no-disk", false, "Disable the disk power mode probe")
	flags.String("cpus", "", "CPUs to collect, e.g. 0-3,6 (default: all online)")
	flags.String("arch", "", "Override microarchitecture detection")
	flags.String("sysfs-root", "/", "Root prefix for sysfs, procfs and debugfs paths")
	flags.String("log-level", DefaultLogLevel, "Log level (debug, info, warning, error)")
	flags.Bool("debug", false, "Enable debugging mode")
	flags.Bool("verbose", false, "Enable verbose logging")
	flags.Bool("metrics", false, "Persist reports to SQLite")
	flags.String("metrics-db", DefaultMetricsDB, "SQLite database for reports")
	flags.String("textfile", "", "Write reports as a Prometheus textfile at this .prom path")
	flags.String("pid-file", DefaultPIDFile, "PID file path")
	flags.Bool("once", false, "Publish one report after one interval and exit")

	return flags
}

// Load reads configuration from, in rising precedence: defaults, the TOML
// file, the environment (after loading .env) and command line flags.
func Load(args []string, opts ...Option) (*Config, error) {
	errFactory := errors.New()

	o := &options{envPrefix: defaultEnvPrefix, envFile: defaultEnvFile}
	for _, opt := range opts {
		if err := opt(o); err != nil {
			return nil, errFactory.Wrap(ErrInvalidConfig, err)
		}
	}

	if err := godotenv.Load(o.envFile); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return nil, errFactory.WrapWithData(ErrReadConfig, err, o.envFile)
	}

	flags := newFlagSet()
	if err := flags.Parse(args); err != nil {
		if errors.Is(err, pflag.ErrHelp) {
			return nil, err
		}
		return nil, errFactory.Wrap(ErrBindFlags, err)
	}

	v := viper.New()
	v.SetEnvPrefix(o.envPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer("-", "_"))
	v.AutomaticEnv()

	var bindErr error
	flags.VisitAll(func(f *pflag.Flag) {
		if f.Name == "config" {
			return
		}
		if err := v.BindPFlag(strings.ReplaceAll(f.Name, "-", "_"), f); err != nil && bindErr == nil {
			bindErr = err
		}
	})
	if bindErr != nil {
		return nil, errFactory.Wrap(ErrBindFlags, bindErr)
	}

	if err := readConfigFile(v, configPath(o, flags)); err != nil {
		return nil, err
	}

	cfg := &Config{}
	if err := v.Unmarshal(cfg); err != nil {
		return nil, errFactory.Wrap(ErrReadConfig, err)
	}

	// --debug and --verbose win over log_level.
	switch {
	case cfg.Debug:
		cfg.LogLevel = string(LogLevelDebug)
	case cfg.Verbose && cfg.LogLevel != string(LogLevelDebug):
		cfg.LogLevel = string(LogLevelInfo)
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	return cfg, nil
}

// configPath picks --config, then <PREFIX>_CONFIG, then WithConfigFile.
// Empty means the optional default file.
func configPath(o *options, flags *pflag.FlagSet) string {
	if p, _ := flags.GetString("config"); p != "" {
		return p
	}
	if p := os.Getenv(o.envPrefix + "_CONFIG"); p != "" {
		return p
	}
	if o.configPath != "" {
		return o.configPath
	}
	return ""
}

func readConfigFile(v *viper.Viper, path string) error {
	errFactory := errors.New()

	if path == "" {
		if _, err := os.Stat(DefaultConfigFile); err != nil {
			return nil
		}
		path = DefaultConfigFile
	}

	v.SetConfigFile(path)
	v.SetConfigType("toml")
	if err := v.ReadInConfig(); err != nil {
		return errFactory.WrapWithData(ErrReadConfig, err, path)
	}

	return nil
}

// Validate checks ranges and parses the CPU list.
func (c *Config) Validate() error {
	errFactory := errors.New()

	if c.Interval <= 0 {
		return errFactory.WithData(ErrInvalidInterval, map[string]int{"interval": c.Interval})
	}

	if c.DiskPollInterval <= 0 {
		return errFactory.WithData(ErrInvalidInterval, map[string]int{"disk_poll_interval": c.DiskPollInterval})
	}

	if !LogLevel(c.LogLevel).IsValid() {
		return errFactory.WithData(ErrInvalidLogLevel, c.LogLevel)
	}

	if c.CPUList != "" {
		cpus, err := sysfs.ParseCPUList(c.CPUList)
		if err != nil {
			return errFactory.WrapWithData(ErrInvalidConfig, err, c.CPUList)
		}
		c.CPUs = cpus
	}

	if c.Metrics && c.MetricsDB == "" {
		return errFactory.WithData(ErrInvalidConfig, "metrics enabled without metrics_db")
	}

	if c.SysfsRoot == "" {
		c.SysfsRoot = "/"
	}

	return nil
}

// IntervalDuration returns Interval as a duration.
func (c *Config) IntervalDuration() time.Duration {
	return time.Duration(c.Interval) * time.Second
}

// DiskPollDuration returns DiskPollInterval as a duration.
func (c *Config) DiskPollDuration() time.Duration {
	return time.Duration(c.DiskPollInterval) * time.Second
}
