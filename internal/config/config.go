package config

import (
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/rs/zerolog/log"
	"github.com/spf13/viper"
)

type RateConfig struct {
	Limit float64 `mapstructure:"limit"`
	Burst int     `mapstructure:"burst"`
	// Negotiation budgets offers, answers, candidates and link reports.
	NegotiationLimit float64 `mapstructure:"negotiation_limit"`
	NegotiationBurst int     `mapstructure:"negotiation_burst"`
}

type CORSConfig struct {
	AllowedOrigins []string `mapstructure:"allowed_origins"`
}

type AnalysisConfig struct {
	Enabled        bool          `mapstructure:"enabled"`
	ConnectTimeout time.Duration `mapstructure:"connect_timeout"`
}

type Config struct {
	Mode       string         `mapstructure:"mode"`
	Port       int            `mapstructure:"port"`
	LogLevel   string         `mapstructure:"log_level"`
	StaticPath string         `mapstructure:"static_path"`
	ReadLimit  int64          `mapstructure:"read_limit"`
	PingPeriod time.Duration  `mapstructure:"ping_period"`
	Secret     string         `mapstructure:"secret"`
	SendBuffer int            `mapstructure:"send_buffer"`
	Rate       RateConfig     `mapstructure:"rate"`
	CORS       CORSConfig     `mapstructure:"cors"`
	ICEServers []string       `mapstructure:"ice_servers"`
	Analysis   AnalysisConfig `mapstructure:"analysis"`
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("mode", "release")
	v.SetDefault("port", 8080)
	v.SetDefault("log_level", "info")
	v.SetDefault("static_path", "./web")
	v.SetDefault("read_limit", 32768)
	v.SetDefault("ping_period", "54s")
	v.SetDefault("secret", "change-me")
	v.SetDefault("send_buffer", 64)
	v.SetDefault("rate.limit", 20)
	v.SetDefault("rate.burst", 40)
	v.SetDefault("rate.negotiation_limit", 100)
	v.SetDefault("rate.negotiation_burst", 400)
	v.SetDefault("cors.allowed_origins", []string{"http://localhost:5173"})
	v.SetDefault("ice_servers", []string{"stun:stun.l.google.com:19302"})
	v.SetDefault("analysis.enabled", true)
	v.SetDefault("analysis.connect_timeout", "15s")
}

// Load reads config/config.<CONFIG_ENV>.yaml (env "dev" by default) over the defaults.
// MEET_* environment variables override both, e.g. MEET_PORT or MEET_ANALYSIS_ENABLED.
func Load() (*Config, error) {
	env := os.Getenv("CONFIG_ENV")
	if env == "" {
		env = "dev"
	}
	return LoadFile(fmt.Sprintf("config/config.%s.yaml", env))
}

func LoadFile(fileName string) (*Config, error) {
	v := viper.New()
	v.SetConfigType("yaml")
	v.SetConfigFile(fileName)
	v.AddConfigPath(".")
	v.AddConfigPath("./config")
	v.SetEnvPrefix("MEET")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()
	setDefaults(v)

	if err := v.ReadInConfig(); err != nil {
		log.Warn().Str("module", "config").Str("file", fileName).Msg("config file not found, using defaults")
	} else {
		log.Info().Str("module", "config").Str("file", fileName).Msg("loaded config")
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config: %w", err)
	}
	log.Info().Str("module", "config").Str("mode", cfg.Mode).Int("port", cfg.Port).Bool("analysis", cfg.Analysis.Enabled).Msg("config ready")
	return &cfg, nil
}
