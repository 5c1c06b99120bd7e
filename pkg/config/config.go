package config

import (
	"flag"
	"fmt"
	"net"
	"os"
	"strconv"
	"strings"

	"gopkg.in/yaml.v3"
)

// EffectiveConfigResult is the merged view of flags, environment and config
// file that the rest of the process consumes.
type EffectiveConfigResult struct {
	Config *Config
	Addr   string
	DBPath string
	// Source summarizes where values came from ("flags, env, config").
	Source string
}

// Load reads and parses the YAML config file at path.
func Load(path string) (*Config, error) {
	b, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, fmt.Errorf("config file not found: %s", path)
		}
		return nil, err
	}
	var cfg Config
	if err := yaml.Unmarshal(b, &cfg); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// ParseCommandFlags defines and parses command-line flags and returns their
// values along with a map indicating which flags were explicitly set.
func ParseCommandFlags() (addr string, dbPath string, cfgPath string, setFlags map[string]bool) {
	addrPtr := flag.String("addr", "127.0.0.1:8632", "HTTP listen address")
	dbPtr := flag.String("db", "./.igvault", "Pebble DB path")
	cfgPtr := flag.String("config", "./config.yaml", "Path to config file")
	flag.Parse()
	setFlags = map[string]bool{}
	flag.Visit(func(f *flag.Flag) { setFlags[f.Name] = true })
	return *addrPtr, *dbPtr, *cfgPtr, setFlags
}

// ResolveConfigPath decides the config file path using the flag-provided value
// and the environment variable IGVAULT_CONFIG when the flag was not set.
func ResolveConfigPath(flagPath string, flagSet bool) string {
	if flagSet {
		return flagPath
	}
	if p := os.Getenv("IGVAULT_CONFIG"); p != "" {
		return p
	}
	return flagPath
}

// LoadEnvOverrides applies IGVAULT_* environment overrides onto cfg and
// reports whether any env vars were used.
func LoadEnvOverrides(cfg *Config) bool {
	envUsed := false
	parseList := func(v string) []string {
		if v == "" {
			return nil
		}
		var parts []string
		for _, p := range strings.Split(v, ",") {
			if s := strings.TrimSpace(p); s != "" {
				parts = append(parts, s)
			}
		}
		return parts
	}

	if v := os.Getenv("IGVAULT_ADDR"); v != "" {
		envUsed = true
		if h, p, err := net.SplitHostPort(v); err == nil {
			cfg.Server.Address = h
			if pi, err := strconv.Atoi(p); err == nil {
				cfg.Server.Port = pi
			}
		} else {
			cfg.Server.Address = v
		}
	}
	if v := os.Getenv("IGVAULT_DB_PATH"); v != "" {
		envUsed = true
		cfg.Server.DBPath = v
	}
	if v := os.Getenv("IGVAULT_DOWNLOAD_DIR"); v != "" {
		envUsed = true
		cfg.Export.DownloadDir = v
	}
	if v := os.Getenv("IGVAULT_CORS_ORIGINS"); v != "" {
		envUsed = true
		cfg.Security.CORS.AllowedOrigins = parseList(v)
	}
	if v := os.Getenv("IGVAULT_API_KEYS"); v != "" {
		envUsed = true
		cfg.Security.APIKeys = parseList(v)
	}
	if v := os.Getenv("IGVAULT_RATE_RPS"); v != "" {
		if f, err := strconv.ParseFloat(strings.TrimSpace(v), 64); err == nil {
			envUsed = true
			cfg.Security.RateLimit.RPS = f
		}
	}
	if v := os.Getenv("IGVAULT_RATE_BURST"); v != "" {
		if n, err := strconv.Atoi(strings.TrimSpace(v)); err == nil {
			envUsed = true
			cfg.Security.RateLimit.Burst = n
		}
	}
	if v := os.Getenv("IGVAULT_LOG_LEVEL"); v != "" {
		envUsed = true
		cfg.Logging.Level = strings.TrimSpace(v)
	}
	return envUsed
}

// LoadEffective loads config from the given path and applies environment and
// flag precedence: flags win over env, env wins over the file.
func LoadEffective(cfgPath, addrFlag, dbFlag string, setFlags map[string]bool) (EffectiveConfigResult, error) {
	cfg, err := Load(cfgPath)
	fileUsed := err == nil
	if err != nil {
		cfg = &Config{}
	}
	envUsed := LoadEnvOverrides(cfg)

	addr := cfg.Addr()
	if setFlags["addr"] {
		addr = addrFlag
	}
	dbPath := cfg.Server.DBPath
	if dbPath == "" || setFlags["db"] {
		dbPath = dbFlag
	}

	var srcs []string
	if len(setFlags) > 0 {
		srcs = append(srcs, "flags")
	}
	if envUsed {
		srcs = append(srcs, "env")
	}
	if fileUsed {
		srcs = append(srcs, "config")
	}
	return EffectiveConfigResult{
		Config: cfg,
		Addr:   addr,
		DBPath: dbPath,
		Source: strings.Join(srcs, ", "),
	}, nil
}
