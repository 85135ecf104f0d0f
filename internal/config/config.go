// Package config loads the renew agent's configuration from viper: an
// optional config.yaml, RENEW_* environment variables and built-in defaults.
package config

import (
	"errors"
	"fmt"
	"net/url"
	"strings"
	"time"

	"github.com/spf13/viper"
)

// Config is the root configuration structure.
type Config struct {
	Dashboard   DashboardConfig   `mapstructure:"dashboard"`
	Selectors   SelectorConfig    `mapstructure:"selectors"`
	Browser     BrowserConfig     `mapstructure:"browser"`
	Renewal     RenewalConfig     `mapstructure:"renewal"`
	Pointer     PointerConfig     `mapstructure:"pointer"`
	Diagnostics DiagnosticsConfig `mapstructure:"diagnostics"`
	History     HistoryConfig     `mapstructure:"history"`
	Metrics     MetricsConfig     `mapstructure:"metrics"`
	Log         LogConfig         `mapstructure:"log"`
}

// DashboardConfig locates the dashboard being automated.
type DashboardConfig struct {
	BaseURL    string `mapstructure:"base_url"`
	LoginPath  string `mapstructure:"login_path"`
	LogoutPath string `mapstructure:"logout_path"`
}

// LoginURL is the absolute login page URL.
func (d DashboardConfig) LoginURL() string {
	return joinURL(d.BaseURL, d.LoginPath)
}

// LogoutURL is the absolute logout URL.
func (d DashboardConfig) LogoutURL() string {
	return joinURL(d.BaseURL, d.LogoutPath)
}

func joinURL(base, path string) string {
	return strings.TrimRight(base, "/") + "/" + strings.TrimLeft(path, "/")
}

// SelectorConfig holds the XPath/CSS selectors of the dashboard's controls.
type SelectorConfig struct {
	Email          string `mapstructure:"email"`
	Password       string `mapstructure:"password"`
	Submit         string `mapstructure:"submit"`
	LoginError     string `mapstructure:"login_error"`
	ResourceLink   string `mapstructure:"resource_link"`
	Trigger        string `mapstructure:"trigger"`
	Modal          string `mapstructure:"modal"`
	Confirm        string `mapstructure:"confirm"`
	Close          string `mapstructure:"close"`
	CaptchaError   string `mapstructure:"captcha_error"`
	NotYetEligible string `mapstructure:"not_yet_eligible"`
	ChallengeOK    string `mapstructure:"challenge_ok"`
}

// BrowserConfig holds settings for attaching to or launching Chrome.
type BrowserConfig struct {
	RemoteURL       string        `mapstructure:"remote_url"`
	ChromePath      string        `mapstructure:"chrome_path"`
	UserDataDir     string        `mapstructure:"user_data_dir"`
	Headless        bool          `mapstructure:"headless"`
	WindowWidth     int           `mapstructure:"window_width"`
	WindowHeight    int           `mapstructure:"window_height"`
	ConnectAttempts int           `mapstructure:"connect_attempts"`
	ConnectDelay    time.Duration `mapstructure:"connect_delay"`
	DefaultTimeout  time.Duration `mapstructure:"default_timeout"`
}

// RenewalConfig bounds the renewal attempt loop.
type RenewalConfig struct {
	MaxAttempts           int           `mapstructure:"max_attempts"`
	ChallengePolls        int           `mapstructure:"challenge_polls"`
	ChallengePollInterval time.Duration `mapstructure:"challenge_poll_interval"`
	ChallengeSettle       time.Duration `mapstructure:"challenge_settle"`
	VerifyWindow          time.Duration `mapstructure:"verify_window"`
	VerifyInterval        time.Duration `mapstructure:"verify_interval"`
	CloseSettle           time.Duration `mapstructure:"close_settle"`
	ReloadSettle          time.Duration `mapstructure:"reload_settle"`
	ModalTimeout          time.Duration `mapstructure:"modal_timeout"`
	TriggerTimeout        time.Duration `mapstructure:"trigger_timeout"`
	LoginErrorWindow      time.Duration `mapstructure:"login_error_window"`
	ResourceTimeout       time.Duration `mapstructure:"resource_timeout"`
}

// PointerConfig bounds the press/release hold time.
type PointerConfig struct {
	MinDelay time.Duration `mapstructure:"min_delay"`
	MaxDelay time.Duration `mapstructure:"max_delay"`
}

// DiagnosticsConfig controls where snapshots go.
type DiagnosticsConfig struct {
	Dir      string `mapstructure:"dir"`
	S3Bucket string `mapstructure:"s3_bucket"`
	S3Region string `mapstructure:"s3_region"`
	S3Prefix string `mapstructure:"s3_prefix"`
}

// HistoryConfig locates the SQLite run history. An empty path disables it.
type HistoryConfig struct {
	Path string `mapstructure:"path"`
}

// MetricsConfig locates the prometheus textfile. An empty path disables it.
type MetricsConfig struct {
	Textfile string `mapstructure:"textfile"`
}

// LogConfig holds logger settings.
type LogConfig struct {
	Level      string `mapstructure:"level"`
	Format     string `mapstructure:"format"`
	File       string `mapstructure:"file"`
	MaxSize    int    `mapstructure:"max_size"`
	MaxBackups int    `mapstructure:"max_backups"`
	MaxAge     int    `mapstructure:"max_age"`
}

// SetDefaults registers every key with its default, which also makes each
// key overridable through RENEW_* environment variables.
func SetDefaults(v *viper.Viper) {
	v.SetDefault("dashboard.base_url", "https://dashboard.katabump.com")
	v.SetDefault("dashboard.login_path", "/auth/login")
	v.SetDefault("dashboard.logout_path", "/auth/logout")

	v.SetDefault("selectors.email", `//input[@type='email' or @name='email']`)
	v.SetDefault("selectors.password", `//input[@type='password']`)
	v.SetDefault("selectors.submit", `//button[normalize-space(.)='Login']`)
	v.SetDefault("selectors.login_error", `//*[contains(text(),'Incorrect password or no account')]`)
	v.SetDefault("selectors.resource_link", `//a[normalize-space(.)='See']`)
	v.SetDefault("selectors.trigger", `//button[normalize-space(.)='Renew' and not(ancestor::*[@id='renew-modal'])]`)
	v.SetDefault("selectors.modal", `#renew-modal`)
	v.SetDefault("selectors.confirm", `//*[@id='renew-modal']//button[normalize-space(.)='Renew']`)
	v.SetDefault("selectors.close", `//*[@id='renew-modal']//*[@aria-label='Close']`)
	v.SetDefault("selectors.captcha_error", `//*[contains(text(),'Please complete the captcha to continue')]`)
	v.SetDefault("selectors.not_yet_eligible", `//*[contains(text(),"You can't renew your server yet")]`)
	v.SetDefault("selectors.challenge_ok", `//*[contains(text(),'Success!')]`)

	v.SetDefault("browser.remote_url", "")
	v.SetDefault("browser.chrome_path", "")
	v.SetDefault("browser.user_data_dir", "")
	v.SetDefault("browser.headless", false)
	v.SetDefault("browser.window_width", 1280)
	v.SetDefault("browser.window_height", 720)
	v.SetDefault("browser.connect_attempts", 5)
	v.SetDefault("browser.connect_delay", 2*time.Second)
	v.SetDefault("browser.default_timeout", 60*time.Second)

	v.SetDefault("renewal.max_attempts", 20)
	v.SetDefault("renewal.challenge_polls", 30)
	v.SetDefault("renewal.challenge_poll_interval", time.Second)
	v.SetDefault("renewal.challenge_settle", 8*time.Second)
	v.SetDefault("renewal.verify_window", 3*time.Second)
	v.SetDefault("renewal.verify_interval", 200*time.Millisecond)
	v.SetDefault("renewal.close_settle", 2*time.Second)
	v.SetDefault("renewal.reload_settle", 3*time.Second)
	v.SetDefault("renewal.modal_timeout", 5*time.Second)
	v.SetDefault("renewal.trigger_timeout", 5*time.Second)
	v.SetDefault("renewal.login_error_window", 3*time.Second)
	v.SetDefault("renewal.resource_timeout", 15*time.Second)

	v.SetDefault("pointer.min_delay", 50*time.Millisecond)
	v.SetDefault("pointer.max_delay", 150*time.Millisecond)

	v.SetDefault("diagnostics.dir", "./screenshots")
	v.SetDefault("diagnostics.s3_bucket", "")
	v.SetDefault("diagnostics.s3_region", "us-east-1")
	v.SetDefault("diagnostics.s3_prefix", "renew")

	v.SetDefault("history.path", "./renew-history.db")
	v.SetDefault("metrics.textfile", "")

	v.SetDefault("log.level", "info")
	v.SetDefault("log.format", "console")
	v.SetDefault("log.file", "")
	v.SetDefault("log.max_size", 10)
	v.SetDefault("log.max_backups", 3)
	v.SetDefault("log.max_age", 28)
}

// NewViper returns a viper instance wired for config.yaml lookup and
// RENEW_* environment overrides.
func NewViper() *viper.Viper {
	v := viper.New()
	v.SetConfigName("config")
	v.SetConfigType("yaml")
	v.AddConfigPath(".")
	v.AddConfigPath("$HOME/.renew")

	v.SetEnvPrefix("RENEW")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	SetDefaults(v)
	return v
}

// Load reads the optional config file and unmarshals v into a Config.
func Load(v *viper.Viper) (*Config, error) {
	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if !errors.As(err, &notFound) {
			return nil, fmt.Errorf("failed to read config: %w", err)
		}
		// Config file not found is OK - we'll use defaults
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("error unmarshaling config: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// Validate rejects values the renewal flow cannot run with.
func (c *Config) Validate() error {
	if _, err := url.Parse(c.Dashboard.BaseURL); err != nil || c.Dashboard.BaseURL == "" {
		return fmt.Errorf("invalid dashboard.base_url %q", c.Dashboard.BaseURL)
	}
	if c.Renewal.MaxAttempts < 1 {
		return fmt.Errorf("renewal.max_attempts must be positive, got %d", c.Renewal.MaxAttempts)
	}
	if c.Renewal.ChallengePolls < 0 {
		return fmt.Errorf("renewal.challenge_polls must not be negative, got %d", c.Renewal.ChallengePolls)
	}
	if c.Pointer.MaxDelay < c.Pointer.MinDelay {
		return fmt.Errorf("pointer.max_delay (%s) is below pointer.min_delay (%s)", c.Pointer.MaxDelay, c.Pointer.MinDelay)
	}
	if c.Browser.ConnectAttempts < 1 {
		c.Browser.ConnectAttempts = 1
	}
	return nil
}
