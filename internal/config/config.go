package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"

	"gopkg.in/yaml.v3"
)

// Config holds server configuration merged from a YAML file, environment
// variables, and defaults. Precedence: env > file > default.
type Config struct {
	Addr                   string
	RPCSocket              string
	DBPath                 string
	BootstrapAdminEmail    string
	BootstrapAdminPassword string
	SessionTTLHours        int
	BottleneckThresholdPct float64
}

type fileConfig struct {
	Addr                   string   `yaml:"addr"`
	RPCSocket              string   `yaml:"rpc_socket"`
	DBPath                 string   `yaml:"db_path"`
	BootstrapAdminEmail    string   `yaml:"bootstrap_admin_email"`
	BootstrapAdminPassword string   `yaml:"bootstrap_admin_password"`
	SessionTTLHours        *int     `yaml:"session_ttl_hours"`
	BottleneckThresholdPct *float64 `yaml:"bottleneck_threshold_pct"`
}

const (
	defaultAddr            = ":8080"
	defaultRPCSocket       = "/tmp/quebras.sock"
	defaultDBPath          = "quebras.db"
	defaultAdminEmail      = "admin@quebras.local"
	defaultAdminPassword   = "admin"
	defaultSessionTTLHours = 12
	defaultThresholdPct    = 30.0
)

func Default() Config {
	return Config{
		Addr:                   defaultAddr,
		RPCSocket:              defaultRPCSocket,
		DBPath:                 defaultDBPath,
		BootstrapAdminEmail:    defaultAdminEmail,
		BootstrapAdminPassword: defaultAdminPassword,
		SessionTTLHours:        defaultSessionTTLHours,
		BottleneckThresholdPct: defaultThresholdPct,
	}
}

// Load reads the YAML file at path when it exists, then applies environment
// overrides. A missing file is not an error; a malformed one is.
func Load(path string) (Config, error) {
	cfg := Default()

	if strings.TrimSpace(path) != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			if !errors.Is(err, os.ErrNotExist) {
				return cfg, fmt.Errorf("config load failed (%s): %w", path, err)
			}
		} else {
			var fileCfg fileConfig
			if err := yaml.Unmarshal(data, &fileCfg); err != nil {
				return cfg, fmt.Errorf("config parse failed (%s): %w", path, err)
			}
			cfg = applyFile(cfg, fileCfg)
		}
	}

	cfg.Addr = firstNonEmpty(os.Getenv("QUEBRAS_ADDR"), cfg.Addr)
	cfg.RPCSocket = firstNonEmpty(os.Getenv("QUEBRAS_RPC_SOCKET"), cfg.RPCSocket)
	cfg.DBPath = firstNonEmpty(os.Getenv("QUEBRAS_DB_PATH"), cfg.DBPath)
	cfg.BootstrapAdminEmail = firstNonEmpty(os.Getenv("QUEBRAS_BOOTSTRAP_ADMIN_EMAIL"), cfg.BootstrapAdminEmail)
	cfg.BootstrapAdminPassword = firstNonEmpty(os.Getenv("QUEBRAS_BOOTSTRAP_ADMIN_PASSWORD"), cfg.BootstrapAdminPassword)

	if v := strings.TrimSpace(os.Getenv("QUEBRAS_SESSION_TTL_HOURS")); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil {
			return cfg, fmt.Errorf("invalid QUEBRAS_SESSION_TTL_HOURS: %w", err)
		}
		cfg.SessionTTLHours = n
	}
	if v := strings.TrimSpace(os.Getenv("QUEBRAS_BOTTLENECK_THRESHOLD_PCT")); v != "" {
		f, err := strconv.ParseFloat(v, 64)
		if err != nil {
			return cfg, fmt.Errorf("invalid QUEBRAS_BOTTLENECK_THRESHOLD_PCT: %w", err)
		}
		cfg.BottleneckThresholdPct = f
	}

	if err := cfg.Validate(); err != nil {
		return cfg, err
	}
	return cfg, nil
}

func (c Config) Validate() error {
	if strings.TrimSpace(c.Addr) == "" {
		return errors.New("addr is required")
	}
	if strings.TrimSpace(c.RPCSocket) == "" {
		return errors.New("rpc_socket is required")
	}
	if strings.TrimSpace(c.DBPath) == "" {
		return errors.New("db_path is required")
	}
	if strings.TrimSpace(c.BootstrapAdminEmail) == "" {
		return errors.New("bootstrap_admin_email is required")
	}
	if c.SessionTTLHours <= 0 {
		return errors.New("session_ttl_hours must be positive")
	}
	if c.BottleneckThresholdPct <= 0 || c.BottleneckThresholdPct > 100 {
		return errors.New("bottleneck_threshold_pct must be in (0, 100]")
	}
	return nil
}

func applyFile(base Config, file fileConfig) Config {
	base.Addr = firstNonEmpty(file.Addr, base.Addr)
	base.RPCSocket = firstNonEmpty(file.RPCSocket, base.RPCSocket)
	base.DBPath = firstNonEmpty(file.DBPath, base.DBPath)
	base.BootstrapAdminEmail = firstNonEmpty(file.BootstrapAdminEmail, base.BootstrapAdminEmail)
	base.BootstrapAdminPassword = firstNonEmpty(file.BootstrapAdminPassword, base.BootstrapAdminPassword)
	if file.SessionTTLHours != nil && *file.SessionTTLHours > 0 {
		base.SessionTTLHours = *file.SessionTTLHours
	}
	if file.BottleneckThresholdPct != nil && *file.BottleneckThresholdPct > 0 {
		base.BottleneckThresholdPct = *file.BottleneckThresholdPct
	}
	return base
}

func firstNonEmpty(values ...string) string {
	for _, val := range values {
		if strings.TrimSpace(val) != "" {
			return val
		}
	}
	return ""
}
