package config

// Configuration loading
// Priority (lowest to highest):
// 1. defaults
// 2. config.yaml (./ or ./etc, or the file given with --config)
// 3. .env file (loaded into the process environment)
// 4. environment variables
// 5. command-line flags

import (
	"errors"
	"fmt"
	"net/url"
	"strings"
	"time"

	"battery-chart/internal/features/batterychart"
	"battery-chart/internal/readings"

	"github.com/joho/godotenv"
	"github.com/spf13/pflag"
	"github.com/spf13/viper"
	"go.uber.org/zap/zapcore"
)

type Config struct {
	Server   ServerConfig   `mapstructure:"server"`
	Storage  StorageConfig  `mapstructure:"storage"`
	Chart    ChartConfig    `mapstructure:"chart"`
	Upstream UpstreamConfig `mapstructure:"upstream"`
	Telegram TelegramConfig `mapstructure:"telegram"`
	Log      LogConfig      `mapstructure:"log"`
}

type ServerConfig struct {
	Addr              string `mapstructure:"addr"`
	ReadHeaderTimeout int    `mapstructure:"read_header_timeout"` // seconds
	ShutdownTimeout   int    `mapstructure:"shutdown_timeout"`    // seconds
}

type StorageConfig struct {
	DataDir string `mapstructure:"data_dir"`
}

// ChartConfig - widget settings and the window/thinning of the plotted series
type ChartConfig struct {
	LoaderURL        string  `mapstructure:"loader_url"`
	Package          string  `mapstructure:"package"`
	ContainerID      string  `mapstructure:"container_id"`
	TimeLabel        string  `mapstructure:"time_label"`
	ValueLabel       string  `mapstructure:"value_label"`
	Width            string  `mapstructure:"width"`
	Height           string  `mapstructure:"height"`
	PointLimit       int     `mapstructure:"point_limit"`
	MinIntervalHours float64 `mapstructure:"min_interval_hours"`
	MaxQueryDays     int     `mapstructure:"max_query_days"`
}

// UpstreamConfig - another battery-chart (or compatible) server to pull readings from
type UpstreamConfig struct {
	BaseURL         string  `mapstructure:"base_url"`
	RequestTimeout  int     `mapstructure:"request_timeout"` // seconds
	MaxRetries      int     `mapstructure:"max_retries"`
	RateLimit       float64 `mapstructure:"rate_limit"` // requests per second
	Burst           int     `mapstructure:"burst"`
	MaxResponseSize int64   `mapstructure:"max_response_size"`
}

type TelegramConfig struct {
	BotToken string `mapstructure:"bot_token"`
	ChatID   string `mapstructure:"chat_id"`
}

type LogConfig struct {
	Dir   string `mapstructure:"dir"`
	Level string `mapstructure:"level"`
}

// RegisterFlags adds the configuration flags to fs (the root command's persistent flags).
func RegisterFlags(fs *pflag.FlagSet) {
	fs.String("config", "", "Path to config file (default: ./config.yaml or ./etc/config.yaml)")

	fs.String("server.addr", ":8080", "HTTP listen address (env: SERVER_ADDR)")

	fs.String("storage.data_dir", "data", "Directory for readings files (env: DATA_DIR)")

	fs.String("chart.container_id", batterychart.DefaultContainerID, "DOM id of the chart container (env: CHART_CONTAINER_ID)")
	fs.String("chart.value_label", batterychart.DefaultValueLabel, "Label of the value column (env: CHART_VALUE_LABEL)")
	fs.Int("chart.point_limit", readings.DefaultPointLimit, "Max points per chart (env: CHART_POINT_LIMIT)")
	fs.Float64("chart.min_interval_hours", readings.DefaultMinInterval.Hours(), "Min hours between adjacent points, 0 disables thinning (env: CHART_MIN_INTERVAL_HOURS)")

	fs.String("upstream.base_url", "", "Upstream server URL for fetch (env: UPSTREAM_BASE_URL)")
	fs.Int("upstream.max_retries", 3, "Max retries for upstream requests (env: UPSTREAM_MAX_RETRIES)")

	fs.String("telegram.chat_id", "", "Telegram chat for battery reports (env: TELEGRAM_CHAT_ID)")

	fs.String("log.dir", "logs", "Log directory (env: LOG_DIR)")
	fs.String("log.level", "info", "File log level: debug, info, warn, error (env: LOG_LEVEL)")
}

// LoadConfig builds the configuration. flags may be nil.
func LoadConfig(flags *pflag.FlagSet) (*Config, error) {
	godotenv.Load(".env")

	v := viper.New()
	setDefaults(v)

	configFile := ""
	if flags != nil {
		if f := flags.Lookup("config"); f != nil {
			configFile = f.Value.String()
		}
	}
	if configFile != "" {
		v.SetConfigFile(configFile)
		if err := v.ReadInConfig(); err != nil {
			return nil, fmt.Errorf("failed to read config file %s: %w", configFile, err)
		}
	} else {
		v.SetConfigName("config")
		v.SetConfigType("yaml")
		v.AddConfigPath(".")
		v.AddConfigPath("etc")
		if err := v.ReadInConfig(); err != nil {
			var notFound viper.ConfigFileNotFoundError
			if !errors.As(err, &notFound) {
				return nil, fmt.Errorf("failed to read config.yaml: %w", err)
			}
		}
	}

	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()
	setupEnvAliases(v)

	if flags != nil {
		// only flags set on the command line override, unset flags keep file/env values
		flags.VisitAll(func(f *pflag.Flag) {
			if f.Changed && f.Name != "config" {
				v.Set(f.Name, f.Value.String())
			}
		})
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("failed to decode config: %w", err)
	}
	if err := validateConfig(&cfg); err != nil {
		return nil, err
	}
	return &cfg, nil
}

func setupEnvAliases(v *viper.Viper) {
	v.BindEnv("server.addr", "SERVER_ADDR", "BATTERY_CHART_ADDR")
	v.BindEnv("storage.data_dir", "DATA_DIR", "BATTERY_CHART_DATA_DIR")

	v.BindEnv("chart.loader_url", "CHART_LOADER_URL")
	v.BindEnv("chart.package", "CHART_PACKAGE")
	v.BindEnv("chart.container_id", "CHART_CONTAINER_ID")
	v.BindEnv("chart.time_label", "CHART_TIME_LABEL")
	v.BindEnv("chart.value_label", "CHART_VALUE_LABEL")
	v.BindEnv("chart.point_limit", "CHART_POINT_LIMIT")
	v.BindEnv("chart.min_interval_hours", "CHART_MIN_INTERVAL_HOURS")
	v.BindEnv("chart.max_query_days", "CHART_MAX_QUERY_DAYS")

	v.BindEnv("upstream.base_url", "UPSTREAM_BASE_URL")
	v.BindEnv("upstream.request_timeout", "UPSTREAM_REQUEST_TIMEOUT")
	v.BindEnv("upstream.max_retries", "UPSTREAM_MAX_RETRIES")
	v.BindEnv("upstream.rate_limit", "UPSTREAM_RATE_LIMIT")

	v.BindEnv("telegram.bot_token", "TELEGRAM_BOT_TOKEN", "API_BOT_TOKEN")
	v.BindEnv("telegram.chat_id", "TELEGRAM_CHAT_ID", "API_BOT_CHAT_ID")

	v.BindEnv("log.dir", "LOG_DIR")
	v.BindEnv("log.level", "LOG_LEVEL")
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("server.addr", ":8080")
	v.SetDefault("server.read_header_timeout", 5)
	v.SetDefault("server.shutdown_timeout", 10)

	v.SetDefault("storage.data_dir", "data")

	v.SetDefault("chart.loader_url", batterychart.DefaultLoaderURL)
	v.SetDefault("chart.package", batterychart.DefaultPackage)
	v.SetDefault("chart.container_id", batterychart.DefaultContainerID)
	v.SetDefault("chart.time_label", batterychart.DefaultTimeLabel)
	v.SetDefault("chart.value_label", batterychart.DefaultValueLabel)
	v.SetDefault("chart.width", batterychart.DefaultWidth)
	v.SetDefault("chart.height", batterychart.DefaultHeight)
	v.SetDefault("chart.point_limit", readings.DefaultPointLimit)
	v.SetDefault("chart.min_interval_hours", readings.DefaultMinInterval.Hours())
	v.SetDefault("chart.max_query_days", int(readings.DefaultMaxQueryInterval/(24*time.Hour)))

	v.SetDefault("upstream.base_url", "")
	v.SetDefault("upstream.request_timeout", 30)
	v.SetDefault("upstream.max_retries", 3)
	v.SetDefault("upstream.rate_limit", 5.0)
	v.SetDefault("upstream.burst", 10)
	v.SetDefault("upstream.max_response_size", 10*1024*1024) // 10MB

	v.SetDefault("telegram.bot_token", "")
	v.SetDefault("telegram.chat_id", "")

	v.SetDefault("log.dir", "logs")
	v.SetDefault("log.level", "info")
}

func validateConfig(cfg *Config) error {
	if _, err := batterychart.ChartClass(cfg.Chart.Package); err != nil {
		return fmt.Errorf("invalid chart.package: %w", err)
	}
	if cfg.Chart.PointLimit <= 0 {
		return fmt.Errorf("chart.point_limit must be positive, got %d", cfg.Chart.PointLimit)
	}
	if cfg.Chart.MinIntervalHours < 0 {
		return fmt.Errorf("chart.min_interval_hours must not be negative")
	}
	if cfg.Chart.MaxQueryDays <= 0 {
		return fmt.Errorf("chart.max_query_days must be positive, got %d", cfg.Chart.MaxQueryDays)
	}
	if _, err := zapcore.ParseLevel(cfg.Log.Level); err != nil {
		return fmt.Errorf("invalid log.level: %w", err)
	}
	return nil
}

// ValidateFetch checks the settings the fetch command needs.
func (c *Config) ValidateFetch() error {
	if c.Upstream.BaseURL == "" {
		return fmt.Errorf("upstream.base_url is required (env: UPSTREAM_BASE_URL)")
	}
	u, err := url.Parse(c.Upstream.BaseURL)
	if err != nil || (u.Scheme != "http" && u.Scheme != "https") || u.Host == "" {
		return fmt.Errorf("upstream.base_url must be an http(s) URL, got %q", c.Upstream.BaseURL)
	}
	return nil
}

// ValidateNotify checks the settings the notify command needs.
func (c *Config) ValidateNotify() error {
	if c.Telegram.BotToken == "" {
		return fmt.Errorf("telegram.bot_token is required (env: TELEGRAM_BOT_TOKEN)")
	}
	if c.Telegram.ChatID == "" {
		return fmt.Errorf("telegram.chat_id is required (env: TELEGRAM_CHAT_ID)")
	}
	return nil
}

// ValidateServe checks the settings the serve command needs.
func (c *Config) ValidateServe() error {
	if c.Server.Addr == "" {
		return fmt.Errorf("server.addr is required")
	}
	if c.Chart.ContainerID == "" {
		return fmt.Errorf("chart.container_id is required")
	}
	return nil
}

func (c *Config) LogLevel() zapcore.Level {
	level, err := zapcore.ParseLevel(c.Log.Level)
	if err != nil {
		return zapcore.InfoLevel
	}
	return level
}

// ChartOptions maps the chart section to renderer options.
func (c ChartConfig) ChartOptions() batterychart.Options {
	return batterychart.Options{
		LoaderURL:   c.LoaderURL,
		Package:     c.Package,
		ContainerID: c.ContainerID,
		TimeLabel:   c.TimeLabel,
		ValueLabel:  c.ValueLabel,
		Width:       c.Width,
		Height:      c.Height,
	}
}

func (c ChartConfig) MinInterval() time.Duration {
	return time.Duration(c.MinIntervalHours * float64(time.Hour))
}

func (c ChartConfig) MaxQueryInterval() time.Duration {
	return time.Duration(c.MaxQueryDays) * 24 * time.Hour
}

func (c UpstreamConfig) Timeout() time.Duration {
	return time.Duration(c.RequestTimeout) * time.Second
}
