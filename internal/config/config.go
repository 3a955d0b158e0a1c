package config

import (
	"errors"
	"fmt"
	"io/fs"
	"time"

	"github.com/caarlos0/env/v11"
	"github.com/joho/godotenv"
)

const (
	StrategyDiscover = "discover"
	StrategyCatalog  = "catalog"
)

var ErrInvalidStrategy = errors.New("invalid selection strategy")

// Config is read once at startup from the environment (and an optional .env).
type Config struct {
	Email    string `env:"EMAIL,required,notEmpty"`
	Password string `env:"PASSWORD,required,notEmpty"`

	BaseURL    string `env:"HAPPYSLAP_BASE_URL" envDefault:"https://happyslap.tv"`
	APIBaseURL string `env:"HAPPYSLAP_API_URL"  envDefault:"https://api.happyslap.tv"`
	HubURL     string `env:"HAPPYSLAP_HUB_URL"  envDefault:"https://api.happyslap.tv/hubs/party"`

	Strategy   string `env:"HOSTBOT_STRATEGY"    envDefault:"discover"`
	SearchTerm string `env:"HOSTBOT_SEARCH_TERM" envDefault:"Trivia"`
	GameType   string `env:"HOSTBOT_GAME_TYPE"   envDefault:"trivia"`
	Menu       string `env:"HOSTBOT_MENU"        envDefault:"host"`
	TokenKey   string `env:"HOSTBOT_TOKEN_KEY"   envDefault:"token"`

	Browser Browser
	Timing  Timing

	MaxAuthFailures int    `env:"HOSTBOT_MAX_AUTH_FAILURES" envDefault:"0"`
	StatusAddr      string `env:"HOSTBOT_STATUS_ADDR"       envDefault:":8080"`
	LogLevel        string `env:"HOSTBOT_LOG_LEVEL"         envDefault:"info"`
	LogEncoding     string `env:"HOSTBOT_LOG_ENCODING"      envDefault:"console"`
}

type Browser struct {
	Channel  string   `env:"HOSTBOT_BROWSER_CHANNEL" envDefault:"chrome"`
	Headless bool     `env:"HOSTBOT_HEADLESS"        envDefault:"false"`
	Args     []string `env:"HOSTBOT_BROWSER_ARGS"    envDefault:"--disable-web-security" envSeparator:","`
	Install  bool     `env:"HOSTBOT_INSTALL_BROWSERS" envDefault:"false"`
}

// Timing holds every wait and timeout the bot uses.
type Timing struct {
	RefreshInterval  time.Duration `env:"HOSTBOT_REFRESH_INTERVAL"   envDefault:"8h"`
	LoginTimeout     time.Duration `env:"HOSTBOT_LOGIN_TIMEOUT"      envDefault:"5s"`
	WaitTimeout      time.Duration `env:"HOSTBOT_WAIT_TIMEOUT"       envDefault:"30s"`
	SearchDebounce   time.Duration `env:"HOSTBOT_SEARCH_DEBOUNCE"    envDefault:"1500ms"`
	SettleDelay      time.Duration `env:"HOSTBOT_SETTLE_DELAY"       envDefault:"2s"`
	PartyTimeout     time.Duration `env:"HOSTBOT_PARTY_TIMEOUT"      envDefault:"15s"`
	PollInterval     time.Duration `env:"HOSTBOT_POLL_INTERVAL"      envDefault:"1s"`
	BaselineInterval time.Duration `env:"HOSTBOT_BASELINE_INTERVAL"  envDefault:"500ms"`
	BaselineTimeout  time.Duration `env:"HOSTBOT_BASELINE_TIMEOUT"   envDefault:"2m"`
	EmptyTimeout     time.Duration `env:"HOSTBOT_EMPTY_TIMEOUT"      envDefault:"600s"`
	StartCountdown   time.Duration `env:"HOSTBOT_START_COUNTDOWN"    envDefault:"50s"`
	EmptyCountdown   time.Duration `env:"HOSTBOT_EMPTY_COUNTDOWN"    envDefault:"10s"`
	RestartCountdown time.Duration `env:"HOSTBOT_RESTART_COUNTDOWN"  envDefault:"20s"`
	StartTimeout     time.Duration `env:"HOSTBOT_START_TIMEOUT"      envDefault:"5m"`
	RoundPause       time.Duration `env:"HOSTBOT_ROUND_PAUSE"        envDefault:"2s"`
	ErrorBackoff     time.Duration `env:"HOSTBOT_ERROR_BACKOFF"      envDefault:"5s"`
}

// Load reads dotenvPath (if it exists) into the process environment and then
// parses Config from it. Variables already set in the environment win.
func Load(dotenvPath string) (Config, error) {
	if dotenvPath != "" {
		if err := godotenv.Load(dotenvPath); err != nil && !errors.Is(err, fs.ErrNotExist) {
			return Config{}, fmt.Errorf("load %s: %w", dotenvPath, err)
		}
	}

	var cfg Config
	if err := env.Parse(&cfg); err != nil {
		return Config{}, fmt.Errorf("parse env: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

func (c Config) Validate() error {
	switch c.Strategy {
	case StrategyDiscover, StrategyCatalog:
	default:
		return fmt.Errorf("%w: %q (want %q or %q)", ErrInvalidStrategy, c.Strategy, StrategyDiscover, StrategyCatalog)
	}
	if c.MaxAuthFailures < 0 {
		return fmt.Errorf("HOSTBOT_MAX_AUTH_FAILURES must be >= 0, got %d", c.MaxAuthFailures)
	}
	if c.Timing.PollInterval <= 0 {
		return fmt.Errorf("HOSTBOT_POLL_INTERVAL must be positive, got %s", c.Timing.PollInterval)
	}
	return nil
}
