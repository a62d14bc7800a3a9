package config

import (
	"os"
	"strings"
	"time"

	"codeberg.org/mutker/tapometer/internal/errors"
	"github.com/spf13/pflag"
	"github.com/spf13/viper"
)

const (
	DefaultLogLevel = "info"

	defaultInterval   = 500 * time.Millisecond
	defaultDuration   = 360 * time.Second
	defaultOutputDir  = "./results"
	defaultOutputName = "measurements"
	defaultJournalDB  = "tapometer.db"
)

// Config holds everything a measurement run needs. Values come from the
// config file (tapometer.toml), TAPOMETER_* environment variables and
// command-line flags, in increasing order of precedence.
type Config struct {
	Address    string        `mapstructure:"address"`
	Username   string        `mapstructure:"username"`
	Password   string        `mapstructure:"password"`
	Interval   time.Duration `mapstructure:"interval"`
	Duration   time.Duration `mapstructure:"duration"`
	OutputDir  string        `mapstructure:"output_dir"`
	OutputName string        `mapstructure:"output_name"`
	LogLevel   string        `mapstructure:"log_level"`
	Journal    bool          `mapstructure:"journal"`
	JournalDB  string        `mapstructure:"journal_db"`
	Check      bool          `mapstructure:"check"`
}

func Load() (*Config, error) {
	errFactory := errors.New()

	v := viper.New()
	v.SetDefault("address", "")
	v.SetDefault("username", "")
	v.SetDefault("password", "")
	v.SetDefault("interval", defaultInterval)
	v.SetDefault("duration", defaultDuration)
	v.SetDefault("output_dir", defaultOutputDir)
	v.SetDefault("output_name", defaultOutputName)
	v.SetDefault("log_level", DefaultLogLevel)
	v.SetDefault("journal", false)
	v.SetDefault("journal_db", defaultJournalDB)
	v.SetDefault("check", false)

	fs := pflag.NewFlagSet("tapometer", pflag.ContinueOnError)
	fs.ParseErrorsWhitelist.UnknownFlags = true
	fs.String("address", "", "Device address (host or host:port)")
	fs.String("username", "", "Device account username")
	fs.String("password", "", "Device account password")
	fs.Duration("interval", defaultInterval, "Time between samples")
	fs.Duration("duration", defaultDuration, "Total measurement duration")
	fs.String("output-dir", defaultOutputDir, "Directory for result files")
	fs.String("output-name", defaultOutputName, "Base name of the result file")
	fs.String("log-level", DefaultLogLevel, "Log level (debug, info, warning, error)")
	fs.Bool("journal", false, "Record finished sessions to the journal database")
	fs.String("journal-db", defaultJournalDB, "Path to the journal database")
	fs.Bool("check", false, "Only check that the device is reachable, then exit")
	if err := fs.Parse(os.Args[1:]); err != nil {
		return nil, errFactory.Wrap(errors.ErrBindFlags, err)
	}

	// Load configuration from file
	if path := os.Getenv("TAPOMETER_CONFIG"); path != "" {
		v.SetConfigFile(path)
	} else {
		v.SetConfigName("tapometer")
		v.SetConfigType("toml")
		v.AddConfigPath(".")
		v.AddConfigPath("$HOME/.config/tapometer")
		v.AddConfigPath("/etc")
	}
	if err := v.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return nil, errFactory.Wrap(errors.ErrReadConfig, err)
		}
	}

	// Environment variables override the file
	v.SetEnvPrefix("TAPOMETER")
	v.AutomaticEnv()

	// Explicit flags override everything
	fs.Visit(func(f *pflag.Flag) {
		v.Set(strings.ReplaceAll(f.Name, "-", "_"), f.Value.String())
	})

	config := &Config{}
	if err := v.Unmarshal(config); err != nil {
		return nil, errFactory.Wrap(errors.ErrInvalidConfig, err)
	}

	if err := config.Validate(); err != nil {
		return nil, err
	}

	return config, nil
}

// Validate checks the values Load cannot reject while decoding. Address,
// interval and duration are validated again by the session before any
// device I/O happens.
func (c *Config) Validate() error {
	errFactory := errors.New()

	switch c.LogLevel {
	case "debug", "info", "warning", "warn", "error":
	default:
		return errFactory.WithData(errors.ErrInvalidLogLevel, c.LogLevel)
	}

	if c.Interval <= 0 {
		return errFactory.WithData(errors.ErrInvalidInterval, c.Interval.String())
	}
	if c.Duration <= 0 {
		return errFactory.WithData(errors.ErrInvalidDuration, c.Duration.String())
	}

	return nil
}
