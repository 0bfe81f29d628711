// File: internal/config/config.go
package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/spf13/viper"
)

// Config holds the entire application configuration.
type Config struct {
	Logger  LoggerConfig  `mapstructure:"logger" yaml:"logger"`
	Proxy   ProxyConfig   `mapstructure:"proxy" yaml:"proxy"`
	Mail    MailConfig    `mapstructure:"mail" yaml:"mail"`
	Browser BrowserConfig `mapstructure:"browser" yaml:"browser"`
	Login   LoginConfig   `mapstructure:"login" yaml:"login"`
	Store   StoreConfig   `mapstructure:"store" yaml:"store"`
}

// LoggerConfig holds all the configuration for the logger.
type LoggerConfig struct {
	Level       string `mapstructure:"level" yaml:"level"`
	Format      string `mapstructure:"format" yaml:"format"`
	AddSource   bool   `mapstructure:"add_source" yaml:"add_source"`
	ServiceName string `mapstructure:"service_name" yaml:"service_name"`
	LogFile     string `mapstructure:"log_file" yaml:"log_file"`
	MaxSize     int    `mapstructure:"max_size" yaml:"max_size"`
	MaxBackups  int    `mapstructure:"max_backups" yaml:"max_backups"`
	MaxAge      int    `mapstructure:"max_age" yaml:"max_age"`
	Compress    bool   `mapstructure:"compress" yaml:"compress"`
}

// ProxyConfig is the immutable credential tuple for the outbound proxy plus
// the parameters of the egress verification step.
type ProxyConfig struct {
	Host     string `mapstructure:"host" yaml:"host"`
	Port     int    `mapstructure:"port" yaml:"port"`
	Username string `mapstructure:"username" yaml:"username"`
	Password string `mapstructure:"password" yaml:"-"`
	Scheme   string `mapstructure:"scheme" yaml:"scheme"`

	// ExpectedIPPrefix is matched against the address echoed by the IP
	// services. The proxy's egress range is environment specific, so it is
	// configuration rather than a constant.
	ExpectedIPPrefix string   `mapstructure:"expected_ip_prefix" yaml:"expected_ip_prefix"`
	IPEchoEndpoints  []string `mapstructure:"ip_echo_endpoints" yaml:"ip_echo_endpoints"`
}

// MailConfig configures the mailbox the OTP codes are delivered to.
type MailConfig struct {
	Host          string        `mapstructure:"host" yaml:"host"`
	Port          int           `mapstructure:"port" yaml:"port"`
	SenderDomain  string        `mapstructure:"sender_domain" yaml:"sender_domain"`
	SubjectWords  []string      `mapstructure:"subject_words" yaml:"subject_words"`
	MaxRetries    int           `mapstructure:"max_retries" yaml:"max_retries"`
	RetryInterval time.Duration `mapstructure:"retry_interval" yaml:"retry_interval"`
}

// Addr returns the host:port dial address for the IMAP server.
func (m MailConfig) Addr() string {
	return fmt.Sprintf("%s:%d", m.Host, m.Port)
}

// BrowserConfig holds settings for the per-account browser sessions.
type BrowserConfig struct {
	Headless       bool          `mapstructure:"headless" yaml:"headless"`
	UserAgent      string        `mapstructure:"user_agent" yaml:"user_agent"`
	WindowWidth    int           `mapstructure:"window_width" yaml:"window_width"`
	WindowHeight   int           `mapstructure:"window_height" yaml:"window_height"`
	ArtifactDir    string        `mapstructure:"artifact_dir" yaml:"artifact_dir"`
	ProxySettle    time.Duration `mapstructure:"proxy_settle" yaml:"proxy_settle"`
	StartupTimeout time.Duration `mapstructure:"startup_timeout" yaml:"startup_timeout"`
}

// LoginConfig drives the login state machine: the target site, the localized
// element matchers, and the per-stage wait bounds.
type LoginConfig struct {
	SiteURL string `mapstructure:"site_url" yaml:"site_url"`
	// Domain is the substring the current location must contain for
	// navigation (and the weak success check) to count as on-site.
	Domain        string `mapstructure:"domain" yaml:"domain"`
	CountryCode   string `mapstructure:"country_code" yaml:"country_code"`
	ScreenshotDir string `mapstructure:"screenshot_dir" yaml:"screenshot_dir"`

	LoginButtonWait   time.Duration `mapstructure:"login_button_wait" yaml:"login_button_wait"`
	PhoneInputWait    time.Duration `mapstructure:"phone_input_wait" yaml:"phone_input_wait"`
	OTPInputWait      time.Duration `mapstructure:"otp_input_wait" yaml:"otp_input_wait"`
	SubmitButtonWait  time.Duration `mapstructure:"submit_button_wait" yaml:"submit_button_wait"`
	IndicatorWait     time.Duration `mapstructure:"indicator_wait" yaml:"indicator_wait"`
	PostSubmitSettle  time.Duration `mapstructure:"post_submit_settle" yaml:"post_submit_settle"`
	NavigationTimeout time.Duration `mapstructure:"navigation_timeout" yaml:"navigation_timeout"`
}

// StoreConfig locates the tabular account store and names its columns.
// The defaults mirror the spreadsheets this tool is fed in production,
// which carry Russian headers.
type StoreConfig struct {
	SourcePath     string `mapstructure:"source_path" yaml:"source_path"`
	TargetPath     string `mapstructure:"target_path" yaml:"target_path"`
	PhoneColumn    string `mapstructure:"phone_column" yaml:"phone_column"`
	EmailColumn    string `mapstructure:"email_column" yaml:"email_column"`
	PasswordColumn string `mapstructure:"password_column" yaml:"password_column"`
	CookiesColumn  string `mapstructure:"cookies_column" yaml:"cookies_column"`
}

// SetDefaults initializes default values for all configuration parameters.
func SetDefaults(v *viper.Viper) {
	// -- Logger --
	v.SetDefault("logger.level", "info")
	v.SetDefault("logger.format", "console")
	v.SetDefault("logger.add_source", false)
	v.SetDefault("logger.service_name", "onboard-cli")
	v.SetDefault("logger.log_file", "onboard.log")
	v.SetDefault("logger.max_size", 100)
	v.SetDefault("logger.max_backups", 5)
	v.SetDefault("logger.max_age", 30)
	v.SetDefault("logger.compress", true)

	// -- Proxy --
	v.SetDefault("proxy.scheme", "http")
	v.SetDefault("proxy.expected_ip_prefix", "85.142")
	v.SetDefault("proxy.ip_echo_endpoints", []string{
		"https://api.ipify.org",
		"https://ifconfig.me/ip",
		"https://ipinfo.io/ip",
	})

	// -- Mail --
	v.SetDefault("mail.host", "imap.rambler.ru")
	v.SetDefault("mail.port", 993)
	v.SetDefault("mail.sender_domain", "ozon.ru")
	v.SetDefault("mail.subject_words", []string{"код", "code", "ozon"})
	v.SetDefault("mail.max_retries", 8)
	v.SetDefault("mail.retry_interval", "5s")

	// -- Browser --
	v.SetDefault("browser.headless", false)
	v.SetDefault("browser.user_agent", "Mozilla/5.0 (Windows NT 10.0; Win64; x64) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/126.0.0.0 Safari/537.36")
	v.SetDefault("browser.window_width", 1920)
	v.SetDefault("browser.window_height", 1080)
	v.SetDefault("browser.artifact_dir", ".")
	v.SetDefault("browser.proxy_settle", "3s")
	v.SetDefault("browser.startup_timeout", "30s")

	// -- Login --
	v.SetDefault("login.site_url", "https://www.ozon.ru")
	v.SetDefault("login.domain", "ozon")
	v.SetDefault("login.country_code", "+7")
	v.SetDefault("login.screenshot_dir", ".")
	v.SetDefault("login.login_button_wait", "15s")
	v.SetDefault("login.phone_input_wait", "15s")
	v.SetDefault("login.otp_input_wait", "30s")
	v.SetDefault("login.submit_button_wait", "10s")
	v.SetDefault("login.indicator_wait", "5s")
	v.SetDefault("login.post_submit_settle", "15s")
	v.SetDefault("login.navigation_timeout", "60s")

	// -- Store --
	v.SetDefault("store.source_path", "accounts.xlsx")
	v.SetDefault("store.target_path", "accounts_updated.xlsx")
	v.SetDefault("store.phone_column", "Телефон")
	v.SetDefault("store.email_column", "Привязанная почта")
	v.SetDefault("store.password_column", "пароль от почты")
	v.SetDefault("store.cookies_column", "Cookies")
}

// NewDefaultConfig creates a new configuration struct populated with default values.
func NewDefaultConfig() *Config {
	v := viper.New()
	SetDefaults(v)

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		// This should not happen with defaults, but good to be safe.
		panic(fmt.Sprintf("failed to unmarshal default config: %v", err))
	}
	return &cfg
}

// NewConfigFromViper creates a new configuration instance from a viper object.
func NewConfigFromViper(v *viper.Viper) (*Config, error) {
	// Bind environment variables for sensitive data.
	v.BindEnv("proxy.password", "ONBOARD_PROXY_PASSWORD")

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("error unmarshaling config: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}
	return &cfg, nil
}

// Validate checks the configuration for required fields and sane values.
func (c *Config) Validate() error {
	if c.Proxy.Host == "" {
		return fmt.Errorf("proxy.host is a required configuration field")
	}
	if c.Proxy.Port <= 0 || c.Proxy.Port > 65535 {
		return fmt.Errorf("proxy.port must be a valid TCP port, got %d", c.Proxy.Port)
	}
	switch strings.ToLower(c.Proxy.Scheme) {
	case "http", "https":
	default:
		return fmt.Errorf("proxy.scheme must be http or https, got %q", c.Proxy.Scheme)
	}
	if c.Mail.Host == "" {
		return fmt.Errorf("mail.host is a required configuration field")
	}
	if c.Mail.MaxRetries <= 0 {
		return fmt.Errorf("mail.max_retries must be a positive integer")
	}
	if c.Mail.RetryInterval < 0 {
		return fmt.Errorf("mail.retry_interval must not be negative")
	}
	if c.Login.SiteURL == "" {
		return fmt.Errorf("login.site_url is a required configuration field")
	}
	if c.Login.Domain == "" {
		return fmt.Errorf("login.domain is a required configuration field")
	}
	if c.Login.OTPInputWait <= 0 {
		return fmt.Errorf("login.otp_input_wait must be a positive duration")
	}
	if c.Store.SourcePath == "" || c.Store.TargetPath == "" {
		return fmt.Errorf("store.source_path and store.target_path are required")
	}
	return nil
}
