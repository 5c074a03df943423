package config

import (
	"errors"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/rs/zerolog/log"
	"github.com/spf13/pflag"
	"github.com/spf13/viper"

	"github.com/dkeye/panorama/internal/core"
	"github.com/dkeye/panorama/internal/session"
)

type TLS struct {
	CertFile           string `mapstructure:"cert_file"`
	KeyFile            string `mapstructure:"key_file"`
	CAFile             string `mapstructure:"ca_file"`
	InsecureSkipVerify bool   `mapstructure:"insecure_skip_verify"`
}

// Enabled reports whether the listener should serve TLS.
func (t TLS) Enabled() bool { return t.CertFile != "" && t.KeyFile != "" }

type Config struct {
	Mode     string `mapstructure:"mode"`
	LogLevel string `mapstructure:"log_level"`

	Addr   string `mapstructure:"addr"`
	WSPath string `mapstructure:"ws_path"`
	Target string `mapstructure:"target"`
	Secret string `mapstructure:"secret"`

	HeartbeatInterval     time.Duration `mapstructure:"heartbeat_interval"`
	HeartbeatPayload      string        `mapstructure:"heartbeat_payload"`
	ReadTimeout           time.Duration `mapstructure:"read_timeout"`
	WriteTimeout          time.Duration `mapstructure:"write_timeout"`
	CloseTimeout          time.Duration `mapstructure:"close_timeout"`
	OutboundQueueCapacity int           `mapstructure:"outbound_queue_capacity"`
	BackpressurePolicy    string        `mapstructure:"backpressure_policy"`
	ReadLimit             int64         `mapstructure:"read_limit"`
	InitialMessage        string        `mapstructure:"initial_message"`

	HandshakeTimeout time.Duration `mapstructure:"handshake_timeout"`
	HandshakeRate    int           `mapstructure:"handshake_rate"`
	HandshakeWindow  time.Duration `mapstructure:"handshake_window"`

	TLS TLS `mapstructure:"tls"`
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("mode", "release")
	v.SetDefault("log_level", "info")
	v.SetDefault("addr", "127.0.0.1:8080")
	v.SetDefault("ws_path", "/ws")
	v.SetDefault("target", "ws://127.0.0.1:8080/ws")
	v.SetDefault("secret", "panorama-dev-secret")
	v.SetDefault("heartbeat_interval", "5s")
	v.SetDefault("heartbeat_payload", "")
	v.SetDefault("read_timeout", "10s")
	v.SetDefault("write_timeout", "5s")
	v.SetDefault("close_timeout", "1s")
	v.SetDefault("outbound_queue_capacity", 32)
	v.SetDefault("backpressure_policy", "block")
	v.SetDefault("read_limit", 32768)
	v.SetDefault("initial_message", "")
	v.SetDefault("handshake_timeout", "10s")
	v.SetDefault("handshake_rate", 0)
	v.SetDefault("handshake_window", "1s")
	v.SetDefault("tls.cert_file", "")
	v.SetDefault("tls.key_file", "")
	v.SetDefault("tls.ca_file", "")
	v.SetDefault("tls.insecure_skip_verify", false)
}

// Load reads config/config.<CONFIG_ENV>.yaml when present, then PANORAMA_*
// environment variables, then any flags that were set explicitly.
// The flag set may be nil.
func Load(flags *pflag.FlagSet) (*Config, error) {
	v := viper.New()
	v.SetConfigType("yaml")

	env := os.Getenv("CONFIG_ENV")
	if env == "" {
		env = "dev"
	}
	fileName := fmt.Sprintf("config/config.%s.yaml", env)
	v.SetConfigFile(fileName)

	setDefaults(v)

	v.SetEnvPrefix("PANORAMA")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_", "-", "_"))
	v.AutomaticEnv()

	if flags != nil {
		if err := bindFlags(v, flags); err != nil {
			return nil, err
		}
	}

	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if !errors.As(err, &notFound) && !errors.Is(err, os.ErrNotExist) {
			return nil, fmt.Errorf("failed to read config %s: %w", fileName, err)
		}
		log.Debug().Str("module", "config").Str("file", fileName).Msg("config file not found, using defaults")
	} else {
		log.Info().Str("module", "config").Str("file", fileName).Msg("loaded config")
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// bindFlags maps dashed flag names onto config keys, e.g. --read-timeout
// onto read_timeout and --tls-cert-file onto tls.cert_file.
func bindFlags(v *viper.Viper, flags *pflag.FlagSet) error {
	var err error
	flags.VisitAll(func(f *pflag.Flag) {
		if err != nil {
			return
		}
		key := strings.ReplaceAll(f.Name, "-", "_")
		if strings.HasPrefix(key, "tls_") {
			key = "tls." + strings.TrimPrefix(key, "tls_")
		}
		err = v.BindPFlag(key, f)
	})
	return err
}

func (c *Config) Validate() error {
	if _, err := core.ParsePolicy(c.BackpressurePolicy); err != nil {
		return err
	}
	if c.ReadLimit < 0 {
		return fmt.Errorf("read_limit must not be negative, got %d", c.ReadLimit)
	}
	if (c.TLS.CertFile == "") != (c.TLS.KeyFile == "") {
		return errors.New("tls.cert_file and tls.key_file must be set together")
	}
	if !strings.HasPrefix(c.WSPath, "/") {
		return fmt.Errorf("ws_path must start with '/', got %q", c.WSPath)
	}
	s, _ := c.Session()
	return s.Validate()
}

// Session converts the pump settings into a session.Config.
func (c *Config) Session() (session.Config, error) {
	policy, err := core.ParsePolicy(c.BackpressurePolicy)
	if err != nil {
		return session.Config{}, err
	}
	s := session.Config{
		HeartbeatInterval: c.HeartbeatInterval,
		ReadTimeout:       c.ReadTimeout,
		WriteTimeout:      c.WriteTimeout,
		CloseTimeout:      c.CloseTimeout,
		QueueCapacity:     c.OutboundQueueCapacity,
		Backpressure:      policy,
	}
	if c.HeartbeatPayload != "" {
		s.HeartbeatPayload = []byte(c.HeartbeatPayload)
	}
	if c.InitialMessage != "" {
		s.InitialFrame = core.Text(c.InitialMessage)
	}
	return s, nil
}
